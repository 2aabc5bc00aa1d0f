package middleware

import (
	"context"
	"net"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	signIn = "/monochat.identity.v1.Identity/SignIn"
	whoami = "/monochat.identity.v1.Identity/Whoami"
)

type credentials struct{ email string }

func (c credentials) GetEmail() string { return c.email }

func newTestLimiter(t *testing.T, perMinute, burst int) (*AttemptLimiter, *time.Time) {
	t.Helper()
	l := NewAttemptLimiter(perMinute, burst, time.Hour)
	t.Cleanup(l.Stop)
	clock := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return clock }
	return l, &clock
}

func fromHost(ip string, port int) context.Context {
	return peer.NewContext(context.Background(), &peer.Peer{Addr: &net.TCPAddr{IP: net.ParseIP(ip), Port: port}})
}

func signInRequest(t *testing.T, email string) *structpb.Struct {
	t.Helper()
	req, err := structpb.NewStruct(map[string]any{"email": email, "password": "secret1"})
	if err != nil {
		t.Fatal(err)
	}
	return req
}

func TestAccountBucketRefills(t *testing.T) {
	l, clock := newTestLimiter(t, 6, 2)

	for i := 0; i < 2; i++ {
		if !l.Allow("ann@x.io", "") {
			t.Fatalf("attempt %d should pass within the burst", i)
		}
	}
	if l.Allow("ann@x.io", "") {
		t.Fatal("third quick attempt should be throttled")
	}

	// six per minute refills one token every ten seconds
	*clock = clock.Add(10 * time.Second)
	if !l.Allow("ann@x.io", "") {
		t.Fatal("attempt after refill should pass")
	}
}

func TestHostBucketSpansAccounts(t *testing.T) {
	l, _ := newTestLimiter(t, 1, 2)

	if !l.Allow("a@x.io", "10.0.0.1") || !l.Allow("b@x.io", "10.0.0.1") {
		t.Fatal("first attempts should pass")
	}
	if l.Allow("c@x.io", "10.0.0.1") {
		t.Fatal("a fresh account from a drained host should be throttled")
	}
	if !l.Allow("c@x.io", "10.0.0.2") {
		t.Fatal("another host should have its own bucket")
	}
}

func TestSweepDropsIdleBuckets(t *testing.T) {
	l, clock := newTestLimiter(t, 10, 1)

	l.Allow("a@x.io", "10.0.0.1")
	if l.Tracked() != 2 {
		t.Fatalf("expected account and host buckets, got %d", l.Tracked())
	}

	*clock = clock.Add(30 * time.Minute)
	l.Allow("b@x.io", "")
	*clock = clock.Add(31 * time.Minute)
	l.sweep()
	if l.Tracked() != 1 {
		t.Fatalf("expected only the recent bucket to survive, got %d", l.Tracked())
	}
}

func TestRequestEmail(t *testing.T) {
	st, err := structpb.NewStruct(map[string]any{"email": " Ann@Example.com"})
	if err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		name string
		req  any
		want string
	}{
		{"struct", st, "ann@example.com"},
		{"getter", credentials{email: "BOB@x.io"}, "bob@x.io"},
		{"empty struct", &structpb.Struct{}, ""},
		{"other", "nope", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := requestEmail(tc.req); got != tc.want {
				t.Fatalf("requestEmail = %q want %q", got, tc.want)
			}
		})
	}
}

func TestPeerHostDropsPort(t *testing.T) {
	if got := peerHost(fromHost("192.168.1.9", 40123)); got != "192.168.1.9" {
		t.Fatalf("peerHost = %q", got)
	}
	if got := peerHost(context.Background()); got != "" {
		t.Fatalf("peerHost without peer = %q", got)
	}
}

func TestLimitCredentialAttempts(t *testing.T) {
	l, _ := newTestLimiter(t, 1, 1)
	icpt := LimitCredentialAttempts(l, signIn)
	handler := func(ctx context.Context, req any) (any, error) { return "ok", nil }
	info := &grpc.UnaryServerInfo{FullMethod: signIn}

	if _, err := icpt(fromHost("127.0.0.1", 1), signInRequest(t, "a@x.io"), info, handler); err != nil {
		t.Fatalf("first sign-in should pass: %v", err)
	}

	// the account bucket follows the email across hosts
	_, err := icpt(fromHost("127.0.0.2", 2), signInRequest(t, "a@x.io"), info, handler)
	if status.Code(err) != codes.ResourceExhausted {
		t.Fatalf("expected ResourceExhausted for the same account, got %v", err)
	}
	// a reconnect from a new port is still the same host
	_, err = icpt(fromHost("127.0.0.1", 3), signInRequest(t, "b@x.io"), info, handler)
	if status.Code(err) != codes.ResourceExhausted {
		t.Fatalf("expected ResourceExhausted for the same host, got %v", err)
	}

	free := &grpc.UnaryServerInfo{FullMethod: whoami}
	for i := 0; i < 3; i++ {
		if _, err := icpt(fromHost("127.0.0.1", 1), &structpb.Struct{}, free, handler); err != nil {
			t.Fatalf("Whoami throttled: %v", err)
		}
	}
}
