package main

import (
	"context"

	"github.com/PaulBabatuyi/monochrome-chat/internal/auth"
	"github.com/PaulBabatuyi/monochrome-chat/internal/data"
	"github.com/PaulBabatuyi/monochrome-chat/internal/identity"
	"github.com/PaulBabatuyi/monochrome-chat/internal/logger"

	"go.mongodb.org/mongo-driver/v2/bson"
	"google.golang.org/grpc"
)

// AccountStore is the subset of data.AccountsStore the service uses.
type AccountStore interface {
	CreateAccount(ctx context.Context, email, hashedPassword, displayName, photoURL string) (*data.Account, error)
	GetAccountByEmail(ctx context.Context, email string) (*data.Account, error)
	GetAccountByID(ctx context.Context, id bson.ObjectID) (*data.Account, error)
}

// Server implements the identity service and contains references to the
// account store and auth logic.
type Server struct {
	accounts AccountStore
	auth     *auth.JWTManager
	log      logger.Logger
}

var _ identity.Server = (*Server)(nil)

// newServer returns a ready-to-use Server wired with the store and auth manager.
func newServer(accounts AccountStore, authMgr *auth.JWTManager, log logger.Logger) *Server {
	return &Server{accounts: accounts, auth: authMgr, log: log}
}

// registerService registers the identity service on the given gRPC server.
func registerService(s *grpc.Server, srv *Server) {
	identity.RegisterServer(s, srv)
}
