package feed

import (
	"context"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// MongoFeed turns MongoDB change streams into signals. It needs a replica
// set (or Atlas); standalone servers reject Watch.
type MongoFeed struct {
	chats *mongo.Collection
	users *mongo.Collection
}

// NewMongoFeed returns a feed watching the chats and users collections.
func NewMongoFeed(chats, users *mongo.Collection) *MongoFeed {
	return &MongoFeed{chats: chats, users: users}
}

// Changes opens a change stream for key.
func (f *MongoFeed) Changes(ctx context.Context, key string) (<-chan Signal, error) {
	coll, pipeline, err := f.watchFor(key)
	if err != nil {
		return nil, err
	}

	// Deleted or since-removed documents have no full document, so let
	// every delete through; subscribers re-query and drop what is gone
	opts := options.ChangeStream().SetFullDocument(options.UpdateLookup)
	cs, err := coll.Watch(ctx, pipeline, opts)
	if err != nil {
		return nil, fmt.Errorf("watch %s: %w", key, err)
	}

	out := make(chan Signal, 1)
	go func() {
		defer close(out)
		defer cs.Close(context.Background())

		for cs.Next(ctx) {
			signal(out)
		}
		if err := cs.Err(); err != nil && ctx.Err() == nil {
			fail(ctx, out, fmt.Errorf("change stream %s: %w", key, err))
		}
	}()
	return out, nil
}

// Notify is a no-op: the change stream already sees every write.
func (f *MongoFeed) Notify(context.Context, ...string) error {
	return nil
}

func (f *MongoFeed) watchFor(key string) (*mongo.Collection, mongo.Pipeline, error) {
	if key == DirectoryKey {
		return f.users, mongo.Pipeline{}, nil
	}

	email, ok := strings.CutPrefix(key, "chats:")
	if !ok || email == "" {
		return nil, nil, fmt.Errorf("unsupported feed key %q", key)
	}

	match := bson.D{{Key: "$match", Value: bson.D{{Key: "$or", Value: bson.A{
		bson.D{{Key: "fullDocument.participant_emails", Value: email}},
		bson.D{{Key: "operationType", Value: "delete"}},
	}}}}}
	return f.chats, mongo.Pipeline{match}, nil
}
