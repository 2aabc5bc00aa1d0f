// Package data provides DB models and stores.
package data

import (
	"context" // Used for cancellation and timeouts
	"errors"  // Error handling
	"fmt"
	"time" // Timestamps

	"github.com/PaulBabatuyi/monochrome-chat/internal/apperr"
	"github.com/PaulBabatuyi/monochrome-chat/internal/normalize"

	"go.mongodb.org/mongo-driver/v2/bson"          // MongoDB document queries
	"go.mongodb.org/mongo-driver/v2/mongo"         // MongoDB driver
	"go.mongodb.org/mongo-driver/v2/mongo/options" // Find options
)

// ErrDuplicate is returned when a unique index rejects a write.
var ErrDuplicate = errors.New("duplicate key")

// UsersStore performs directory operations on the users collection.
type UsersStore struct {
	// coll is the "users" collection; documents are keyed by principal id
	coll *mongo.Collection
}

// NewUsersStore returns a UsersStore using the provided collection.
func NewUsersStore(coll *mongo.Collection) *UsersStore {
	return &UsersStore{coll: coll}
}

// CreateUser inserts the directory record for a freshly authenticated principal.
func (u *UsersStore) CreateUser(ctx context.Context, user *User) error {
	user.Email = normalize.Email(user.Email)
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	if _, err := u.coll.InsertOne(ctx, user); err != nil {
		// Either this principal already has a record (a concurrent first
		// sign-in) or another record claims the email
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// GetUserByID finds a directory record by principal id.
func (u *UsersStore) GetUserByID(ctx context.Context, id string) (*User, error) {
	var user User
	err := u.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&user)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, apperr.ErrUserNotFound
		}
		return nil, fmt.Errorf("find user %s: %w", id, err)
	}
	return &user, nil
}

// GetUserByEmail finds a user by (normalized) email.
func (u *UsersStore) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	var user User
	err := u.coll.FindOne(ctx, bson.M{"email": normalize.Email(email)}).Decode(&user)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, apperr.ErrUserNotFound
		}
		return nil, fmt.Errorf("find user by email: %w", err)
	}
	return &user, nil
}

// ListUsersExcept returns every user but the one with excludeEmail, ordered by name.
func (u *UsersStore) ListUsersExcept(ctx context.Context, excludeEmail string) ([]*User, error) {
	filter := bson.M{"email": bson.M{"$ne": normalize.Email(excludeEmail)}}
	opts := options.Find().SetSort(bson.D{{Key: "name", Value: 1}, {Key: "email", Value: 1}})

	cursor, err := u.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer cursor.Close(ctx)

	users := []*User{}
	if err := cursor.All(ctx, &users); err != nil {
		return nil, fmt.Errorf("decode users: %w", err)
	}
	return users, nil
}
