package middleware

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/PaulBabatuyi/monochrome-chat/internal/apperr"
	"github.com/PaulBabatuyi/monochrome-chat/internal/normalize"

	"golang.org/x/time/rate"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// AttemptLimiter throttles credential attempts against the identity service.
// Every attempt draws from two token buckets: one for the account email
// named in the request and one for the calling host, so neither password
// guessing on one account nor spraying many accounts from one host gets
// through.
type AttemptLimiter struct {
	mu      sync.Mutex
	limit   rate.Limit
	burst   int
	idle    time.Duration
	buckets map[string]*bucket

	now  func() time.Time
	stop chan struct{}
	once sync.Once
}

type bucket struct {
	lim  *rate.Limiter
	seen time.Time
}

// NewAttemptLimiter allows perMinute attempts per account and per host, with
// burst quick retries. Buckets unused for idle are swept every idle/2.
func NewAttemptLimiter(perMinute, burst int, idle time.Duration) *AttemptLimiter {
	if perMinute <= 0 {
		perMinute = 10
	}
	if burst <= 0 {
		burst = 1
	}
	if idle <= 0 {
		idle = 10 * time.Minute
	}
	l := &AttemptLimiter{
		limit:   rate.Every(time.Minute / time.Duration(perMinute)),
		burst:   burst,
		idle:    idle,
		buckets: map[string]*bucket{},
		now:     time.Now,
		stop:    make(chan struct{}),
	}
	go l.sweepLoop(idle / 2)
	return l
}

func (l *AttemptLimiter) sweepLoop(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.sweep()
		case <-l.stop:
			return
		}
	}
}

// sweep drops buckets nobody has drawn from within the idle window.
func (l *AttemptLimiter) sweep() {
	cutoff := l.now().Add(-l.idle)
	l.mu.Lock()
	defer l.mu.Unlock()
	for k, b := range l.buckets {
		if b.seen.Before(cutoff) {
			delete(l.buckets, k)
		}
	}
}

// Stop ends the sweeper. Safe to call more than once.
func (l *AttemptLimiter) Stop() {
	l.once.Do(func() { close(l.stop) })
}

// Allow records one attempt for the account and the host; empty keys are
// skipped. Both buckets must have a token for the attempt to pass.
func (l *AttemptLimiter) Allow(email, host string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()

	ok := true
	for _, key := range []string{hostKey(host), accountKey(email)} {
		if key == "" {
			continue
		}
		if !l.take(key, now) {
			ok = false
		}
	}
	return ok
}

// take must be called with mu held.
func (l *AttemptLimiter) take(key string, now time.Time) bool {
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(l.limit, l.burst)}
		l.buckets[key] = b
	}
	b.seen = now
	return b.lim.AllowN(now, 1)
}

// Tracked returns the number of live buckets.
func (l *AttemptLimiter) Tracked() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

func accountKey(email string) string {
	if email == "" {
		return ""
	}
	return "account:" + email
}

func hostKey(host string) string {
	if host == "" {
		return ""
	}
	return "host:" + host
}

// LimitCredentialAttempts throttles the listed methods (SignUp and SignIn)
// and passes every other call straight through. A throttled call fails with
// the same ResourceExhausted status the identity client maps back to
// apperr.ErrRateLimited.
func LimitCredentialAttempts(l *AttemptLimiter, methods ...string) grpc.UnaryServerInterceptor {
	limited := make(map[string]bool, len(methods))
	for _, m := range methods {
		limited[m] = true
	}
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if !limited[info.FullMethod] {
			return handler(ctx, req)
		}
		if !l.Allow(requestEmail(req), peerHost(ctx)) {
			return nil, status.Error(codes.ResourceExhausted, apperr.ErrRateLimited.Error())
		}
		return handler(ctx, req)
	}
}

// peerHost is the caller's address without the port, so reconnects from
// fresh ephemeral ports share a bucket.
func peerHost(ctx context.Context) string {
	p, ok := peer.FromContext(ctx)
	if !ok || p.Addr == nil {
		return ""
	}
	addr := p.Addr.String()
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}

// requestEmail reads the normalized account email from a credentials
// payload.
func requestEmail(req any) string {
	type emailGetter interface{ GetEmail() string }
	switch r := req.(type) {
	case emailGetter:
		return normalize.Email(r.GetEmail())
	case *structpb.Struct:
		if v, ok := r.GetFields()["email"]; ok {
			return normalize.Email(v.GetStringValue())
		}
	}
	return ""
}
