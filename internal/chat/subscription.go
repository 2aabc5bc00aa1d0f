package chat

import (
	"context"
	"fmt"

	"github.com/PaulBabatuyi/monochrome-chat/internal/feed"
)

// Subscription is a live query handle.
type Subscription struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Cancel stops the subscription and waits for its listener to exit. No
// callback runs after Cancel returns. Callbacks must not call Cancel.
func (s *Subscription) Cancel() {
	s.cancel()
	<-s.done
}

// Done is closed once the listener has exited.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// subscribe opens the change feed for key, then delivers a snapshot from
// load on open and after every signal. Load failures are reported and the
// listener keeps going; a feed failure or a closed feed ends the
// subscription.
func subscribe[T any](ctx context.Context, f feed.Feed, key string, load func(context.Context) (T, error), onUpdate func(T), onError func(error)) (*Subscription, error) {
	ctx, cancel := context.WithCancel(ctx)

	// Subscribe before the first query so no write falls in between
	signals, err := f.Changes(ctx, key)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("open feed %s: %w", key, err)
	}

	sub := &Subscription{cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(sub.done)

		deliver := func() {
			snap, err := load(ctx)
			if ctx.Err() != nil {
				return
			}
			if err != nil {
				onError(err)
				return
			}
			onUpdate(snap)
		}

		deliver()
		for {
			select {
			case <-ctx.Done():
				return
			case s, ok := <-signals:
				if !ok {
					// the feed went away without naming a cause
					if ctx.Err() == nil {
						onError(feed.ErrClosed)
					}
					return
				}
				if s.Err != nil {
					if ctx.Err() == nil {
						onError(s.Err)
					}
					return
				}
				deliver()
			}
		}
	}()
	return sub, nil
}
