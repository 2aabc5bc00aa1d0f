package main

import (
	"context"
	"strings"

	"github.com/PaulBabatuyi/monochrome-chat/internal/auth"
	"github.com/PaulBabatuyi/monochrome-chat/internal/identity"
	"github.com/PaulBabatuyi/monochrome-chat/internal/logger"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// context key type for storing auth claims in context
type authContextKey struct{}

// getClaimsFromContext extracts auth claims from the context, if present.
func getClaimsFromContext(ctx context.Context) (*auth.Claims, bool) {
	v := ctx.Value(authContextKey{})
	if v == nil {
		return nil, false
	}
	c, ok := v.(*auth.Claims)
	return c, ok
}

// unauthenticatedMethods may be called without a token.
var unauthenticatedMethods = map[string]bool{
	identity.MethodSignUp: true,
	identity.MethodSignIn: true,
}

// authUnaryInterceptor returns a UnaryServerInterceptor that enforces JWT authentication
// for all methods except the allowed unauthenticated list (SignUp, SignIn).
func authUnaryInterceptor(j *auth.JWTManager) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		if unauthenticatedMethods[info.FullMethod] {
			return handler(ctx, req)
		}

		// extract Authorization header from metadata
		md, ok := metadata.FromIncomingContext(ctx)
		if !ok {
			return nil, status.Errorf(codes.Unauthenticated, "missing metadata")
		}
		authHeaders := md.Get(identity.AuthorizationHeader)
		if len(authHeaders) == 0 {
			return nil, status.Errorf(codes.Unauthenticated, "missing authorization header")
		}

		token := strings.TrimSpace(strings.TrimPrefix(authHeaders[0], "Bearer"))
		if token == "" {
			return nil, status.Errorf(codes.Unauthenticated, "invalid token")
		}

		claims, err := j.VerifyToken(token)
		if err != nil {
			return nil, status.Errorf(codes.Unauthenticated, "unauthenticated: %v", err)
		}

		// attach claims into context for handlers
		ctx = context.WithValue(ctx, authContextKey{}, claims)
		return handler(ctx, req)
	}
}

// loggingUnaryInterceptor logs every call with its status code.
func loggingUnaryInterceptor(log logger.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		resp, err := handler(ctx, req)
		code := status.Code(err)
		if code == codes.OK {
			log.Debug("rpc", "method", info.FullMethod)
		} else {
			log.Info("rpc failed", "method", info.FullMethod, "code", code.String())
		}
		return resp, err
	}
}
