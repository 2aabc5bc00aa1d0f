// Package session keeps the signed-in identity and decides which view a
// client may show.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/PaulBabatuyi/monochrome-chat/internal/apperr"
	"github.com/PaulBabatuyi/monochrome-chat/internal/data"
	"github.com/PaulBabatuyi/monochrome-chat/internal/logger"
	"github.com/PaulBabatuyi/monochrome-chat/internal/normalize"
)

// Principal is the authenticated subject reported by the auth service.
type Principal struct {
	ID          string
	Email       string
	DisplayName string
	PhotoURL    string
}

// AuthService is the auth boundary. OnIdentityChanged delivers the current
// principal (nil when signed out) once on registration and again after
// every change; deliveries are sequential.
type AuthService interface {
	OnIdentityChanged(fn func(*Principal)) (unsubscribe func())
	SignOut(ctx context.Context) error
}

// Directory reads and creates user records.
type Directory interface {
	GetUser(ctx context.Context, id string) (*data.User, error)
	CreateUser(ctx context.Context, user *data.User) (*data.User, error)
}

// Change is delivered to subscribers after every identity notification.
// Warning is non-nil when the identity is degraded.
type Change struct {
	User    *data.User
	Warning error
}

// Store tracks the current identity.
type Store struct {
	auth    AuthService
	dir     Directory
	log     logger.Logger
	timeout time.Duration

	mu        sync.Mutex
	current   *data.User
	warning   error
	resolving bool
	subs      map[int]func(Change)
	nextSub   int

	// deliverMu serializes subscriber callbacks
	deliverMu sync.Mutex

	unsubscribe func()
}

// NewStore registers with auth and returns a store that is resolving
// until the first notification has been handled. timeout bounds each
// directory round trip.
func NewStore(auth AuthService, dir Directory, log logger.Logger, timeout time.Duration) *Store {
	s := &Store{
		auth:      auth,
		dir:       dir,
		log:       log,
		timeout:   timeout,
		resolving: true,
		subs:      map[int]func(Change){},
	}
	s.unsubscribe = auth.OnIdentityChanged(s.handle)
	return s
}

// Current returns the signed-in user or nil.
func (s *Store) Current() *data.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return nil
	}
	u := *s.current
	return &u
}

// Resolving reports whether the first identity check is still running.
func (s *Store) Resolving() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resolving
}

// Warning returns the degrade warning for the current identity, if any.
func (s *Store) Warning() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.warning
}

// SignOut ends the session. The identity becomes nil once the auth
// service reports the change.
func (s *Store) SignOut(ctx context.Context) error {
	if err := s.auth.SignOut(ctx); err != nil {
		return fmt.Errorf("sign out: %w", err)
	}
	return nil
}

// Subscribe calls fn after every identity change. If the identity is
// already resolved fn is called once right away with the current state.
func (s *Store) Subscribe(fn func(Change)) (unsubscribe func()) {
	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()

	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	resolved := !s.resolving
	change := Change{User: s.current, Warning: s.warning}
	s.mu.Unlock()

	if resolved {
		fn(copyChange(change))
	}

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// Close stops listening to the auth service.
func (s *Store) Close() {
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
}

// Redirect returns the view to move to from view, if any.
func (s *Store) Redirect(view View) (View, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Route(view, s.resolving, s.current != nil)
}

func (s *Store) handle(p *Principal) {
	var change Change
	if p != nil {
		change = s.resolve(p)
	}

	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()

	s.mu.Lock()
	s.current = change.User
	s.warning = change.Warning
	s.resolving = false
	subs := make([]func(Change), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	for _, fn := range subs {
		fn(copyChange(change))
	}
}

// resolve finds or creates the directory record for p. Any failure keeps
// the user signed in with an identity built from the principal alone.
func (s *Store) resolve(p *Principal) Change {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	user, err := s.dir.GetUser(ctx, p.ID)
	if errors.Is(err, apperr.ErrUserNotFound) {
		user, err = s.dir.CreateUser(ctx, newUser(p))
		if err == nil {
			s.log.Info("directory record created", "user_id", p.ID)
		}
	}
	if err != nil {
		s.log.Warn("identity degraded", "user_id", p.ID, "error", err)
		return Change{
			User:    newUser(p),
			Warning: fmt.Errorf("%w: %v", apperr.ErrIdentityDegraded, err),
		}
	}
	return Change{User: user}
}

// newUser builds a directory record from principal fields.
func newUser(p *Principal) *data.User {
	email := normalize.Email(p.Email)

	name := strings.TrimSpace(p.DisplayName)
	if name == "" {
		name, _, _ = strings.Cut(email, "@")
	}
	avatar := p.PhotoURL
	if avatar == "" {
		avatar = PlaceholderAvatar(p.ID)
	}
	return &data.User{ID: p.ID, Name: name, Email: email, AvatarURL: avatar}
}

// PlaceholderAvatar returns the seeded placeholder image for id.
func PlaceholderAvatar(id string) string {
	return fmt.Sprintf("https://picsum.photos/seed/%s/100/100", id)
}

func copyChange(c Change) Change {
	if c.User != nil {
		u := *c.User
		c.User = &u
	}
	return c
}
