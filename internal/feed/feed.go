// Package feed carries "something changed" signals from the document store
// to live subscriptions. A signal has no payload; subscribers re-query.
package feed

import (
	"context"
	"errors"

	"github.com/PaulBabatuyi/monochrome-chat/internal/normalize"
)

// DirectoryKey is the key for changes to the users collection.
const DirectoryKey = "directory"

// ErrClosed is returned by Changes after the feed has been closed.
var ErrClosed = errors.New("feed closed")

// Signal is one notification. A non-nil Err is terminal and the channel is
// closed right after it.
type Signal struct {
	Err error
}

// Feed is the realtime change transport.
type Feed interface {
	// Changes returns a channel that receives a Signal after every change
	// under key. Bursts may be coalesced into one Signal. The channel is
	// closed when ctx is done.
	Changes(ctx context.Context, key string) (<-chan Signal, error)
	// Notify announces a write under keys. Backends that observe the store
	// directly ignore it.
	Notify(ctx context.Context, keys ...string) error
}

// ChatsKey is the key for changes to any chat whose participants include
// email.
func ChatsKey(email string) string {
	return "chats:" + normalize.Email(email)
}

// signal performs a coalescing send: if a Signal is already pending the
// subscriber will re-query anyway.
func signal(ch chan Signal) {
	select {
	case ch <- Signal{}:
	default:
	}
}

// fail delivers a terminal error unless the subscriber is gone.
func fail(ctx context.Context, ch chan Signal, err error) {
	select {
	case ch <- Signal{Err: err}:
	case <-ctx.Done():
	}
}
