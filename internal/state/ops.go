package state

import (
	"context"
	"time"

	"github.com/PaulBabatuyi/monochrome-chat/internal/data"
)

// Op is a remote operation to run off the UI goroutine. Its Result goes
// back through Complete.
type Op func(ctx context.Context) Result

type opKind int

const (
	opSend opKind = iota
	opEdit
	opDeleteMessage
	opDeleteChat
	opMarkRead
	opFindContact
	opCreateChat
	opSignOut
	opResubscribe
)

// Result is the outcome of an Op.
type Result struct {
	gen    uint64
	kind   opKind
	chatID string
	email  string
	user   *data.User
	chat   *data.Chat
	err    error
}

// Err returns the operation error, if any.
func (r Result) Err() error { return r.err }

// op wraps fn with the operation timeout and tags its result with the
// identity generation it was issued under.
func (c *Container) op(kind opKind, fn func(ctx context.Context) Result) Op {
	gen, timeout := c.gen, c.opTimeout
	return func(ctx context.Context) Result {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		r := fn(ctx)
		r.gen, r.kind = gen, kind
		return r
	}
}

// opTimeoutOrDefault guards against a zero timeout from config.
func opTimeoutOrDefault(d time.Duration) time.Duration {
	if d <= 0 {
		return 10 * time.Second
	}
	return d
}
