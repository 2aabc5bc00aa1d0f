package main

import (
	"context"
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/redis/go-redis/v9"

	"github.com/PaulBabatuyi/monochrome-chat/internal/chat"
	"github.com/PaulBabatuyi/monochrome-chat/internal/config"
	"github.com/PaulBabatuyi/monochrome-chat/internal/data"
	"github.com/PaulBabatuyi/monochrome-chat/internal/db"
	"github.com/PaulBabatuyi/monochrome-chat/internal/feed"
	"github.com/PaulBabatuyi/monochrome-chat/internal/identity"
	"github.com/PaulBabatuyi/monochrome-chat/internal/logger"
	"github.com/PaulBabatuyi/monochrome-chat/internal/session"
	"github.com/PaulBabatuyi/monochrome-chat/internal/state"
	"github.com/PaulBabatuyi/monochrome-chat/internal/ui"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "monochat:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// The terminal belongs to the UI; logs go to a file
	logFile, err := os.OpenFile(cfg.Log.File, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer logFile.Close()
	appLogger := logger.NewWithWriter(logFile, cfg.Log.Level)

	ctx := context.Background()

	dbClient, err := db.New(ctx, cfg.Mongo.URI, cfg.Mongo.Database)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer func() {
		_ = dbClient.Close(ctx)
	}()

	f, closeFeed, err := openFeed(ctx, cfg, dbClient)
	if err != nil {
		return err
	}
	defer closeFeed()
	appLogger.Info("Change feed ready", "backend", cfg.Feed.Backend)

	svc := chat.NewService(
		data.NewChatsStore(dbClient.ChatsCollection()),
		data.NewUsersStore(dbClient.UsersCollection()),
		f,
		appLogger.With("component", "chat"),
	)

	conn, err := grpc.NewClient(cfg.Client.AuthAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return fmt.Errorf("dial identity service: %w", err)
	}
	defer conn.Close()

	authClient := identity.NewClient(conn, identity.NewTokenFile(cfg.Client.SessionFile), appLogger.With("component", "identity"))

	sessions := session.NewStore(authClient, svc, appLogger.With("component", "session"), cfg.Client.OpTimeout)
	defer sessions.Close()

	container := state.New(svc, sessions, appLogger.With("component", "state"), cfg.Client.OpTimeout)
	defer container.Close()

	// Resolve the saved session while the UI shows its loading screen
	go func() {
		startCtx, cancel := context.WithTimeout(ctx, cfg.Client.OpTimeout)
		defer cancel()
		if err := authClient.Start(startCtx); err != nil {
			appLogger.Warn("Saved session not restored", "error", err)
		}
	}()

	p := tea.NewProgram(ui.New(container, authClient, appLogger, cfg.Client.OpTimeout), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("run ui: %w", err)
	}
	appLogger.Info("Exiting")
	return nil
}

// openFeed returns the change feed selected by FEED_BACKEND.
func openFeed(ctx context.Context, cfg *config.Config, dbClient *db.Client) (feed.Feed, func(), error) {
	if cfg.Feed.Backend != config.FeedRedis {
		return feed.NewMongoFeed(dbClient.ChatsCollection(), dbClient.UsersCollection()), func() {}, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, nil, fmt.Errorf("connect to redis: %w", err)
	}
	return feed.NewRedisFeed(rdb), func() { _ = rdb.Close() }, nil
}
