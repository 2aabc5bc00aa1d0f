// Package db manages MongoDB connections and collections.
package db

import (
	"context" // For connection timeout/cancellation
	"fmt"     // Error formatting
	"time"    // Duration for timeouts

	"go.mongodb.org/mongo-driver/v2/bson"           // Index key documents
	"go.mongodb.org/mongo-driver/v2/mongo"          // MongoDB driver
	"go.mongodb.org/mongo-driver/v2/mongo/options"  // MongoDB options
	"go.mongodb.org/mongo-driver/v2/mongo/readpref" // MongoDB read preference
)

// DefaultDatabase is used when no database name is configured.
const DefaultDatabase = "chat_db"

// Client wraps mongo.Client and exposes collections.
type Client struct {
	// client is the underlying MongoDB connection (thread-safe, can be reused)
	client *mongo.Client

	// db holds the "users", "chats" and "accounts" collections
	db *mongo.Database
}

// New connects to MongoDB and returns a Client bound to database dbName.
func New(ctx context.Context, mongoURI, dbName string) (*Client, error) {
	// Fail fast if MongoDB is unreachable
	opts := options.Client().
		ApplyURI(mongoURI).
		SetConnectTimeout(10 * time.Second)

	client, err := mongo.Connect(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	// Connect is lazy; the ping is the actual connection test
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	if dbName == "" {
		dbName = DefaultDatabase
	}

	return &Client{
		client: client,
		db:     client.Database(dbName),
	}, nil
}

// UsersCollection returns the users (directory) collection.
func (c *Client) UsersCollection() *mongo.Collection {
	return c.db.Collection("users")
}

// ChatsCollection returns the chats collection; messages are embedded in it.
func (c *Client) ChatsCollection() *mongo.Collection {
	return c.db.Collection("chats")
}

// AccountsCollection returns the credentials collection owned by the auth service.
func (c *Client) AccountsCollection() *mongo.Collection {
	return c.db.Collection("accounts")
}

// Ping checks the connection (used by the health endpoint).
func (c *Client) Ping(ctx context.Context) error {
	return c.client.Ping(ctx, readpref.Primary())
}

// Close disconnects from MongoDB.
func (c *Client) Close(ctx context.Context) error {
	return c.client.Disconnect(ctx)
}

// CreateIndexes creates the indexes the stores rely on.
func (c *Client) CreateIndexes(ctx context.Context) error {
	// ===== USERS =====
	// Point lookup by email (findUserByEmail); one directory record per address
	_, err := c.UsersCollection().Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("failed to create users index: %w", err)
	}

	// ===== ACCOUNTS =====
	_, err = c.AccountsCollection().Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("failed to create accounts index: %w", err)
	}

	// ===== CHATS =====
	chatIndexes := []mongo.IndexModel{
		{
			// "chats I belong to", newest first (multikey on the email array)
			Keys: bson.D{{Key: "participant_emails", Value: 1}, {Key: "updated_at", Value: -1}},
		},
		{
			// At most one 1:1 chat per unordered email pair; group chats carry no pair_key
			Keys: bson.D{{Key: "pair_key", Value: 1}},
			Options: options.Index().
				SetUnique(true).
				SetPartialFilterExpression(bson.D{{Key: "pair_key", Value: bson.D{{Key: "$type", Value: "string"}}}}),
		},
	}

	_, err = c.ChatsCollection().Indexes().CreateMany(ctx, chatIndexes)
	if err != nil {
		return fmt.Errorf("failed to create chat indexes: %w", err)
	}

	return nil
}
