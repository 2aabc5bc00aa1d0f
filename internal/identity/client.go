package identity

import (
	"context"
	"fmt"
	"sync"

	"github.com/PaulBabatuyi/monochrome-chat/internal/apperr"
	"github.com/PaulBabatuyi/monochrome-chat/internal/logger"
	"github.com/PaulBabatuyi/monochrome-chat/internal/session"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// Client talks to the identity service and implements session.AuthService.
type Client struct {
	conn   grpc.ClientConnInterface
	tokens *TokenFile
	log    logger.Logger

	mu        sync.Mutex
	principal *session.Principal
	resolved  bool
	listeners map[int]func(*session.Principal)
	nextID    int

	// notifyMu keeps deliveries sequential
	notifyMu sync.Mutex
}

var _ session.AuthService = (*Client)(nil)

// NewClient returns a client over conn persisting tokens in tokens.
func NewClient(conn grpc.ClientConnInterface, tokens *TokenFile, log logger.Logger) *Client {
	return &Client{
		conn:      conn,
		tokens:    tokens,
		log:       log,
		listeners: map[int]func(*session.Principal){},
	}
}

// Start restores the saved session, if any, by asking the service who the
// token belongs to. It always resolves the identity: on failure the client
// reports signed out and returns the error for logging. A token the service
// rejects, or whose account is gone, is discarded; on transport errors it
// is kept for the next run.
func (c *Client) Start(ctx context.Context) error {
	saved, err := c.tokens.Load()
	if err != nil || saved == nil {
		c.set(nil)
		return err
	}

	grant, err := c.whoami(ctx, saved.Token)
	if err != nil {
		if k := apperr.KindOf(err); k == apperr.KindAuth || k == apperr.KindNotFound {
			_ = c.tokens.Clear()
		}
		c.set(nil)
		return fmt.Errorf("restore session: %w", err)
	}

	c.log.Info("session restored", "email", grant.Principal.Email)
	c.set(&grant.Principal)
	return nil
}

// SignIn authenticates with email and password.
func (c *Client) SignIn(ctx context.Context, email, password string) error {
	return c.authenticate(ctx, MethodSignIn, Credentials{Email: email, Password: password})
}

// SignUp creates an account and signs in.
func (c *Client) SignUp(ctx context.Context, creds Credentials) error {
	return c.authenticate(ctx, MethodSignUp, creds)
}

func (c *Client) authenticate(ctx context.Context, method string, creds Credentials) error {
	resp := &structpb.Struct{}
	if err := c.conn.Invoke(ctx, method, creds.Struct(), resp); err != nil {
		return fromStatus(err)
	}

	grant := GrantFromStruct(resp)
	if grant.Token == "" {
		return fmt.Errorf("%s: empty token in response", method)
	}
	if err := c.tokens.Save(Saved{Token: grant.Token, Email: grant.Principal.Email, ExpiresAt: grant.ExpiresAt}); err != nil {
		// the session still works for this run
		c.log.Warn("could not persist session", "error", err)
	}

	c.set(&grant.Principal)
	return nil
}

// SignOut forgets the token and reports the signed-out state.
func (c *Client) SignOut(context.Context) error {
	if err := c.tokens.Clear(); err != nil {
		return err
	}
	c.set(nil)
	return nil
}

// OnIdentityChanged registers fn. If the identity is already resolved fn
// is called right away.
func (c *Client) OnIdentityChanged(fn func(*session.Principal)) func() {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()

	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	resolved, p := c.resolved, copyPrincipal(c.principal)
	c.mu.Unlock()

	if resolved {
		fn(p)
	}
	return func() {
		c.mu.Lock()
		delete(c.listeners, id)
		c.mu.Unlock()
	}
}

// Principal returns the signed-in principal or nil.
func (c *Client) Principal() *session.Principal {
	c.mu.Lock()
	defer c.mu.Unlock()
	return copyPrincipal(c.principal)
}

func (c *Client) set(p *session.Principal) {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()

	c.mu.Lock()
	c.principal = copyPrincipal(p)
	c.resolved = true
	fns := make([]func(*session.Principal), 0, len(c.listeners))
	for _, fn := range c.listeners {
		fns = append(fns, fn)
	}
	c.mu.Unlock()

	for _, fn := range fns {
		fn(copyPrincipal(p))
	}
}

func (c *Client) whoami(ctx context.Context, token string) (Grant, error) {
	ctx = metadata.AppendToOutgoingContext(ctx, AuthorizationHeader, "Bearer "+token)
	resp := &structpb.Struct{}
	if err := c.conn.Invoke(ctx, MethodWhoami, &structpb.Struct{}, resp); err != nil {
		return Grant{}, fromStatus(err)
	}
	return GrantFromStruct(resp), nil
}

// fromStatus maps an RPC error onto the app taxonomy where one applies.
func fromStatus(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	if st.Code() == codes.DeadlineExceeded {
		return fmt.Errorf("identity service: %w", context.DeadlineExceeded)
	}
	if mapped := apperr.FromGRPCCode(st.Code()); mapped != nil {
		return mapped
	}
	return fmt.Errorf("identity service: %s", st.Message())
}

func copyPrincipal(p *session.Principal) *session.Principal {
	if p == nil {
		return nil
	}
	cp := *p
	return &cp
}
