package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/PaulBabatuyi/monochrome-chat/internal/auth"
	"github.com/PaulBabatuyi/monochrome-chat/internal/config"
	"github.com/PaulBabatuyi/monochrome-chat/internal/data"
	"github.com/PaulBabatuyi/monochrome-chat/internal/db"
	"github.com/PaulBabatuyi/monochrome-chat/internal/identity"
	"github.com/PaulBabatuyi/monochrome-chat/internal/logger"
	"github.com/PaulBabatuyi/monochrome-chat/internal/middleware"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
)

func main() {
	// Read configuration from environment (and .env)
	cfg, err := config.Load()
	if err != nil {
		logger.New("info").Fatal("Failed to load config", "error", err)
	}
	appLogger := logger.New(cfg.Log.Level)
	if err := cfg.ValidateAPI(); err != nil {
		appLogger.Fatal("Invalid identity service config", "error", err)
	}

	ctx := context.Background()

	// Initialize database
	dbClient, err := db.New(ctx, cfg.Mongo.URI, cfg.Mongo.Database)
	if err != nil {
		appLogger.Fatal("Failed to connect to DB", "error", err)
	}
	defer func() {
		_ = dbClient.Close(ctx)
	}()

	// Ensure indexes exist
	if err := dbClient.CreateIndexes(ctx); err != nil {
		appLogger.Fatal("Failed to create indexes", "error", err)
	}
	appLogger.Info("Database ready", "database", cfg.Mongo.Database)

	accounts := data.NewAccountsStore(dbClient.AccountsCollection())

	// JWT_KEYS enables rotation; otherwise a single JWT_SECRET
	var jwtMgr *auth.JWTManager
	if len(cfg.JWT.Keys) > 0 {
		jwtMgr = auth.NewJWTManagerFromKeys(cfg.JWT.Keys, cfg.JWT.ActiveKid, cfg.JWT.TTL)
	} else {
		jwtMgr = auth.NewJWTManager(cfg.JWT.Secret, cfg.JWT.TTL)
	}

	// per-account and per-host buckets; a burst of 3 allows a couple of typo retries
	attempts := middleware.NewAttemptLimiter(cfg.Server.RateLimitRPM, 3, 10*time.Minute)
	defer attempts.Stop()

	var serverOpts []grpc.ServerOption

	// If TLS certs are configured, create server credentials
	if cfg.Server.TLSCert != "" && cfg.Server.TLSKey != "" {
		creds, err := credentials.NewServerTLSFromFile(cfg.Server.TLSCert, cfg.Server.TLSKey)
		if err != nil {
			appLogger.Fatal("Failed to load TLS certs", "error", err)
		}
		serverOpts = append(serverOpts, grpc.Creds(creds))
	} else {
		appLogger.Warn("TLS not configured; serving plaintext")
	}

	// logging -> rate limiter -> auth
	serverOpts = append(serverOpts, grpc.ChainUnaryInterceptor(
		loggingUnaryInterceptor(appLogger),
		middleware.LimitCredentialAttempts(attempts, identity.MethodSignUp, identity.MethodSignIn),
		authUnaryInterceptor(jwtMgr),
	))

	grpcServer := grpc.NewServer(serverOpts...)
	registerService(grpcServer, newServer(accounts, jwtMgr, appLogger))

	// Listen and serve
	listenAddr := fmt.Sprintf(":%s", cfg.Server.Port)
	lis, err := net.Listen("tcp", listenAddr)
	if err != nil {
		appLogger.Fatal("Failed to listen", "addr", listenAddr, "error", err)
	}

	go func() {
		appLogger.Info("gRPC server listening", "addr", listenAddr)
		if err := grpcServer.Serve(lis); err != nil {
			appLogger.Fatal("gRPC server exit", "error", err)
		}
	}()

	healthSrv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Server.HealthPort),
		Handler:           newHealthRouter(dbClient),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		appLogger.Info("Health endpoint listening", "addr", healthSrv.Addr)
		if err := healthSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Fatal("Health server exit", "error", err)
		}
	}()

	// Graceful shutdown on SIGINT/SIGTERM
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	appLogger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = healthSrv.Shutdown(shutdownCtx)
	grpcServer.GracefulStop()
}
