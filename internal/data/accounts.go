package data

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/PaulBabatuyi/monochrome-chat/internal/apperr"
	"github.com/PaulBabatuyi/monochrome-chat/internal/normalize"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

// AccountsStore holds credentials for the auth service. The chat client
// never reads it.
type AccountsStore struct {
	coll *mongo.Collection
}

// NewAccountsStore returns an AccountsStore using the given collection.
func NewAccountsStore(coll *mongo.Collection) *AccountsStore {
	return &AccountsStore{coll: coll}
}

// CreateAccount inserts a new account with an already hashed password.
func (a *AccountsStore) CreateAccount(ctx context.Context, email, hashedPassword, displayName, photoURL string) (*Account, error) {
	now := time.Now().UTC()
	acct := &Account{
		Email:       normalize.Email(email),
		Password:    hashedPassword,
		DisplayName: displayName,
		PhotoURL:    photoURL,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	result, err := a.coll.InsertOne(ctx, acct)
	if err != nil {
		// unique index on email
		if mongo.IsDuplicateKeyError(err) {
			return nil, apperr.ErrAccountExists
		}
		return nil, fmt.Errorf("insert account: %w", err)
	}

	acct.ID = result.InsertedID.(bson.ObjectID)
	return acct, nil
}

// GetAccountByEmail finds an account by email.
func (a *AccountsStore) GetAccountByEmail(ctx context.Context, email string) (*Account, error) {
	var acct Account
	err := a.coll.FindOne(ctx, bson.M{"email": normalize.Email(email)}).Decode(&acct)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, apperr.ErrUserNotFound
		}
		return nil, fmt.Errorf("find account: %w", err)
	}
	return &acct, nil
}

// GetAccountByID finds an account by ObjectID.
func (a *AccountsStore) GetAccountByID(ctx context.Context, id bson.ObjectID) (*Account, error) {
	var acct Account
	err := a.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&acct)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, apperr.ErrUserNotFound
		}
		return nil, fmt.Errorf("find account: %w", err)
	}
	return &acct, nil
}
