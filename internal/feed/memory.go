package feed

import (
	"context"
	"sync"
)

// Memory is an in-process feed for tests and single-process use.
type Memory struct {
	mu     sync.Mutex
	subs   map[string]map[chan Signal]struct{}
	closed bool
}

// NewMemory returns an empty in-process feed.
func NewMemory() *Memory {
	return &Memory{subs: map[string]map[chan Signal]struct{}{}}
}

// Changes registers a subscriber until ctx is done.
func (m *Memory) Changes(ctx context.Context, key string) (<-chan Signal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}

	ch := make(chan Signal, 1)
	if m.subs[key] == nil {
		m.subs[key] = map[chan Signal]struct{}{}
	}
	m.subs[key][ch] = struct{}{}

	go func() {
		<-ctx.Done()
		m.mu.Lock()
		defer m.mu.Unlock()
		if _, ok := m.subs[key][ch]; ok {
			delete(m.subs[key], ch)
			close(ch)
		}
	}()
	return ch, nil
}

// Notify signals every subscriber of keys.
func (m *Memory) Notify(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		for ch := range m.subs[k] {
			signal(ch)
		}
	}
	return nil
}

// Fail delivers a terminal error to every subscriber of key and drops them.
func (m *Memory) Fail(key string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for ch := range m.subs[key] {
		// buffered; drop a pending change so the error always fits
		select {
		case <-ch:
		default:
		}
		ch <- Signal{Err: err}
		close(ch)
		delete(m.subs[key], ch)
	}
}

// Subscribers returns the number of live subscribers of key.
func (m *Memory) Subscribers(key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subs[key])
}

// Close closes every subscriber channel and rejects new ones.
func (m *Memory) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	for k, set := range m.subs {
		for ch := range set {
			close(ch)
		}
		delete(m.subs, k)
	}
}
