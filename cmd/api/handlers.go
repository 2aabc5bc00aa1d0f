package main

import (
	"context"
	"errors"
	"net/mail"
	"strings"

	"github.com/PaulBabatuyi/monochrome-chat/internal/apperr"
	"github.com/PaulBabatuyi/monochrome-chat/internal/auth"
	"github.com/PaulBabatuyi/monochrome-chat/internal/data"
	"github.com/PaulBabatuyi/monochrome-chat/internal/identity"
	"github.com/PaulBabatuyi/monochrome-chat/internal/normalize"
	"github.com/PaulBabatuyi/monochrome-chat/internal/session"

	"go.mongodb.org/mongo-driver/v2/bson"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const minPasswordLen = 6

// SignUp handles registration: hashes the password, stores the account,
// returns a JWT token
func (s *Server) SignUp(ctx context.Context, creds identity.Credentials) (identity.Grant, error) {
	email := normalize.Email(creds.Email)
	if err := validateCredentials(email, creds.Password); err != nil {
		return identity.Grant{}, err
	}

	hashed, err := auth.HashPassword(creds.Password)
	if err != nil {
		return identity.Grant{}, status.Errorf(codes.Internal, "failed to hash password: %v", err)
	}

	acct, err := s.accounts.CreateAccount(ctx, email, hashed, strings.TrimSpace(creds.DisplayName), strings.TrimSpace(creds.PhotoURL))
	if err != nil {
		return identity.Grant{}, s.rpcError("create account failed", err)
	}

	s.log.Info("account created", "email", acct.Email)
	return s.grant(acct)
}

// SignIn authenticates an account and returns a JWT token
func (s *Server) SignIn(ctx context.Context, creds identity.Credentials) (identity.Grant, error) {
	email := normalize.Email(creds.Email)
	if email == "" || creds.Password == "" {
		return identity.Grant{}, status.Error(codes.InvalidArgument, "email and password are required")
	}

	acct, err := s.accounts.GetAccountByEmail(ctx, email)
	if err != nil {
		// Unknown email and wrong password look the same to the caller
		if errors.Is(err, apperr.ErrUserNotFound) {
			return identity.Grant{}, s.rpcError("sign in", apperr.ErrInvalidCredentials)
		}
		return identity.Grant{}, s.rpcError("lookup account failed", err)
	}

	if err := auth.CheckPassword(acct.Password, creds.Password); err != nil {
		return identity.Grant{}, s.rpcError("sign in", apperr.ErrInvalidCredentials)
	}

	return s.grant(acct)
}

// Whoami returns the principal behind the caller's token.
func (s *Server) Whoami(ctx context.Context) (identity.Grant, error) {
	claims, ok := getClaimsFromContext(ctx)
	if !ok {
		return identity.Grant{}, status.Errorf(codes.Unauthenticated, "missing auth claims")
	}

	id, err := bson.ObjectIDFromHex(claims.UserID)
	if err != nil {
		return identity.Grant{}, status.Errorf(codes.Unauthenticated, "invalid subject")
	}

	acct, err := s.accounts.GetAccountByID(ctx, id)
	if err != nil {
		return identity.Grant{}, s.rpcError("lookup account failed", err)
	}

	return identity.Grant{Principal: principal(acct)}, nil
}

func (s *Server) grant(acct *data.Account) (identity.Grant, error) {
	token, expiresAt, err := s.auth.GenerateToken(acct.ID, acct.Email)
	if err != nil {
		return identity.Grant{}, status.Errorf(codes.Internal, "failed to generate token: %v", err)
	}
	return identity.Grant{Token: token, ExpiresAt: expiresAt, Principal: principal(acct)}, nil
}

// rpcError maps err to a status; anything outside the taxonomy is logged
// and hidden behind Internal.
func (s *Server) rpcError(msg string, err error) error {
	code := apperr.GRPCCode(err)
	if code == codes.Internal {
		s.log.Error(msg, "error", err)
		return status.Error(codes.Internal, "internal error")
	}
	return status.Error(code, apperr.UserMessage(err))
}

func validateCredentials(email, password string) error {
	if email == "" {
		return status.Error(codes.InvalidArgument, "email is required")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return status.Error(codes.InvalidArgument, "email is not valid")
	}
	if len(password) < minPasswordLen {
		return status.Errorf(codes.InvalidArgument, "password must be at least %d characters", minPasswordLen)
	}
	return nil
}

func principal(acct *data.Account) session.Principal {
	return session.Principal{
		ID:          acct.ID.Hex(),
		Email:       acct.Email,
		DisplayName: acct.DisplayName,
		PhotoURL:    acct.PhotoURL,
	}
}
