package feed

import (
	"context"
	"os"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

func TestMongoWatchForKeys(t *testing.T) {
	f := NewMongoFeed(nil, nil)

	if _, _, err := f.watchFor(DirectoryKey); err != nil {
		t.Fatalf("directory key rejected: %v", err)
	}
	_, pipeline, err := f.watchFor(ChatsKey("a@x.io"))
	if err != nil {
		t.Fatalf("chats key rejected: %v", err)
	}
	if len(pipeline) != 1 {
		t.Fatalf("expected one $match stage, got %d", len(pipeline))
	}
	for _, bad := range []string{"", "chats:", "users:a@x.io"} {
		if _, _, err := f.watchFor(bad); err == nil {
			t.Fatalf("expected error for key %q", bad)
		}
	}
}

// Change streams need a replica set; point MONGODB_URI at one to run this.
func TestMongoFeedSignalsOnInsert(t *testing.T) {
	uri := os.Getenv("MONGODB_URI")
	if uri == "" {
		t.Skip("MONGODB_URI not set; skipping integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = client.Disconnect(context.Background()) }()

	db := client.Database("monochat_feed_test")
	defer func() { _ = db.Drop(context.Background()) }()

	f := NewMongoFeed(db.Collection("chats"), db.Collection("users"))
	ch, err := f.Changes(ctx, ChatsKey("a@x.io"))
	if err != nil {
		t.Skipf("change streams unavailable: %v", err)
	}

	_, err = db.Collection("chats").InsertOne(ctx, bson.M{"_id": "c1", "participant_emails": bson.A{"a@x.io", "b@x.io"}})
	if err != nil {
		t.Fatal(err)
	}

	if s, ok := recv(t, ch); !ok || s.Err != nil {
		t.Fatalf("expected change signal, got %+v ok=%v", s, ok)
	}
}
