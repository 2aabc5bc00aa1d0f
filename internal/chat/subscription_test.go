package chat

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/PaulBabatuyi/monochrome-chat/internal/data"
	"github.com/PaulBabatuyi/monochrome-chat/internal/feed"
)

func waitSnapshot(t *testing.T, ch <-chan []*data.Chat) []*data.Chat {
	t.Helper()
	select {
	case s := <-ch:
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for snapshot")
		return nil
	}
}

func TestStreamChatsDeliversSnapshots(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	snaps := make(chan []*data.Chat, 10)
	sub, err := h.svc.StreamChatsForUser(ctx, "A@x.com", func(c []*data.Chat) { snaps <- c }, func(err error) {
		t.Errorf("unexpected error: %v", err)
	})
	if err != nil {
		t.Fatalf("StreamChatsForUser failed: %v", err)
	}
	defer sub.Cancel()

	if got := waitSnapshot(t, snaps); len(got) != 0 {
		t.Fatalf("expected empty initial snapshot, got %d", len(got))
	}

	first, _ := h.svc.CreateChat(ctx, u1, u2)
	if got := waitSnapshot(t, snaps); len(got) != 1 {
		t.Fatalf("expected 1 chat, got %d", len(got))
	}

	second, _ := h.svc.CreateChat(ctx, u3, u1)
	got := waitSnapshot(t, snaps)
	if len(got) != 2 || got[0].ID != second.ID {
		t.Fatalf("expected newest chat first, got %v", got)
	}

	// activity on the older chat moves it to the top
	h.svc.SendMessage(ctx, first.ID, "bump", u2)
	got = waitSnapshot(t, snaps)
	if got[0].ID != first.ID {
		t.Fatalf("expected %s first after send, got %s", first.ID, got[0].ID)
	}
}

func TestCancelStopsCallbacks(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	snaps := make(chan []*data.Chat, 10)
	sub, err := h.svc.StreamChatsForUser(ctx, "a@x.com", func(c []*data.Chat) { snaps <- c }, func(error) {})
	if err != nil {
		t.Fatal(err)
	}
	waitSnapshot(t, snaps)
	sub.Cancel()

	select {
	case <-sub.Done():
	default:
		t.Fatal("Done not closed after Cancel")
	}

	h.svc.CreateChat(ctx, u1, u2)
	select {
	case <-snaps:
		t.Fatal("callback after Cancel")
	case <-time.After(50 * time.Millisecond):
	}
	deadline := time.Now().Add(time.Second)
	for h.feed.Subscribers(feed.ChatsKey("a@x.com")) != 0 {
		if time.Now().After(deadline) {
			t.Fatal("listener leaked")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestFeedFailureEndsSubscription(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	snaps := make(chan []*data.Chat, 10)
	errs := make(chan error, 1)
	sub, err := h.svc.StreamChatsForUser(ctx, "a@x.com", func(c []*data.Chat) { snaps <- c }, func(err error) { errs <- err })
	if err != nil {
		t.Fatal(err)
	}
	waitSnapshot(t, snaps)

	boom := errors.New("stream lost")
	h.feed.Fail(feed.ChatsKey("a@x.com"), boom)

	select {
	case err := <-errs:
		if !errors.Is(err, boom) {
			t.Fatalf("unexpected error %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("expected onError")
	}
	select {
	case <-sub.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("subscription did not end")
	}
	sub.Cancel()
}

func TestClosedFeedEndsSubscription(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	snaps := make(chan []*data.Chat, 10)
	errs := make(chan error, 1)
	sub, err := h.svc.StreamChatsForUser(ctx, "a@x.com", func(c []*data.Chat) { snaps <- c }, func(err error) { errs <- err })
	if err != nil {
		t.Fatal(err)
	}
	waitSnapshot(t, snaps)

	h.feed.Close()

	select {
	case err := <-errs:
		if !errors.Is(err, feed.ErrClosed) {
			t.Fatalf("expected feed.ErrClosed, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("expected onError when the feed closes")
	}
	select {
	case <-sub.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("subscription did not end")
	}
	sub.Cancel()
}

func TestCancelDoesNotReportClosedFeed(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	snaps := make(chan []*data.Chat, 10)
	errs := make(chan error, 1)
	sub, err := h.svc.StreamChatsForUser(ctx, "a@x.com", func(c []*data.Chat) { snaps <- c }, func(err error) { errs <- err })
	if err != nil {
		t.Fatal(err)
	}
	waitSnapshot(t, snaps)

	sub.Cancel()
	h.feed.Close()

	select {
	case err := <-errs:
		t.Fatalf("unexpected error after Cancel: %v", err)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestStreamDirectory(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	users := make(chan []*data.User, 10)
	sub, err := h.svc.StreamDirectory(ctx, "a@x.com", func(u []*data.User) { users <- u }, func(err error) {
		t.Errorf("unexpected error: %v", err)
	})
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Cancel()

	select {
	case got := <-users:
		if len(got) != 2 {
			t.Fatalf("expected 2 users besides a@x.com, got %d", len(got))
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no directory snapshot")
	}

	if _, err := h.svc.CreateUser(ctx, &data.User{ID: "u4", Name: "Cuatro", Email: "d@x.com"}); err != nil {
		t.Fatal(err)
	}
	select {
	case got := <-users:
		if len(got) != 3 {
			t.Fatalf("expected 3 users, got %d", len(got))
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no snapshot after CreateUser")
	}
}

// U1 creates a chat with U2 and says hi; U2 sees one unread message, opens
// the chat and the counter drops back to zero.
func TestUnreadScenario(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	snaps := make(chan []*data.Chat, 10)
	sub, err := h.svc.StreamChatsForUser(ctx, u2.Email, func(c []*data.Chat) { snaps <- c }, func(error) {})
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Cancel()
	waitSnapshot(t, snaps)

	c, err := h.svc.CreateChat(ctx, u1, u2)
	if err != nil {
		t.Fatal(err)
	}
	waitSnapshot(t, snaps)

	if _, err := h.svc.SendMessage(ctx, c.ID, "hi", u1); err != nil {
		t.Fatal(err)
	}
	got := waitSnapshot(t, snaps)
	if got[0].Unread(u2.ID) != 1 || got[0].Unread(u1.ID) != 0 {
		t.Fatalf("after send: %v", got[0].UnreadCount)
	}

	if err := h.svc.MarkRead(ctx, c.ID, u2.ID); err != nil {
		t.Fatal(err)
	}
	got = waitSnapshot(t, snaps)
	if got[0].Unread(u2.ID) != 0 {
		t.Fatalf("after open: %v", got[0].UnreadCount)
	}
}

func TestLoadErrorKeepsListening(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	boom := errors.New("store down")
	h.chats.FailFind(boom)

	snaps := make(chan []*data.Chat, 10)
	errs := make(chan error, 10)
	sub, err := h.svc.StreamChatsForUser(ctx, "a@x.com", func(c []*data.Chat) { snaps <- c }, func(err error) { errs <- err })
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Cancel()

	select {
	case err := <-errs:
		if !errors.Is(err, boom) {
			t.Fatalf("unexpected error %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("expected load error")
	}

	h.chats.FailFind(nil)

	_ = h.feed.Notify(ctx, feed.ChatsKey("a@x.com"))
	waitSnapshot(t, snaps)
}
