package state

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/PaulBabatuyi/monochrome-chat/internal/apperr"
	"github.com/PaulBabatuyi/monochrome-chat/internal/chat"
	"github.com/PaulBabatuyi/monochrome-chat/internal/chat/chattest"
	"github.com/PaulBabatuyi/monochrome-chat/internal/data"
	"github.com/PaulBabatuyi/monochrome-chat/internal/feed"
	"github.com/PaulBabatuyi/monochrome-chat/internal/logger"
	"github.com/PaulBabatuyi/monochrome-chat/internal/session"
)

func newUsers() (u1, u2, u3 *data.User) {
	return &data.User{ID: "u1", Name: "Uno", Email: "a@x.com"},
		&data.User{ID: "u2", Name: "Dos", Email: "b@x.com"},
		&data.User{ID: "u3", Name: "Tres", Email: "c@x.com"}
}

// fakeSession replays the current change to new subscribers once resolved.
type fakeSession struct {
	mu         sync.Mutex
	resolved   bool
	current    session.Change
	fns        map[int]func(session.Change)
	next       int
	signOutErr error
}

func newFakeSession() *fakeSession {
	return &fakeSession{fns: map[int]func(session.Change){}}
}

func (f *fakeSession) Subscribe(fn func(session.Change)) func() {
	f.mu.Lock()
	id := f.next
	f.next++
	f.fns[id] = fn
	resolved, cur := f.resolved, f.current
	f.mu.Unlock()

	if resolved {
		fn(cur)
	}
	return func() {
		f.mu.Lock()
		delete(f.fns, id)
		f.mu.Unlock()
	}
}

func (f *fakeSession) SignOut(context.Context) error {
	if f.signOutErr != nil {
		return f.signOutErr
	}
	f.set(session.Change{})
	return nil
}

func (f *fakeSession) set(c session.Change) {
	f.mu.Lock()
	f.resolved, f.current = true, c
	fns := make([]func(session.Change), 0, len(f.fns))
	for _, fn := range f.fns {
		fns = append(fns, fn)
	}
	f.mu.Unlock()
	for _, fn := range fns {
		fn(c)
	}
}

type world struct {
	svc   *chat.Service
	chats *chattest.Chats
	feed  *feed.Memory
	u1    *data.User
	u2    *data.User
	u3    *data.User
}

func newWorld(t *testing.T) *world {
	t.Helper()
	u1, u2, u3 := newUsers()
	w := &world{chats: chattest.NewChats(), feed: feed.NewMemory(), u1: u1, u2: u2, u3: u3}
	w.svc = chat.NewService(w.chats, chattest.NewUsers(u1, u2, u3), w.feed, logger.Discard())
	t.Cleanup(w.feed.Close)
	return w
}

type client struct {
	t    *testing.T
	c    *Container
	sess *fakeSession
}

func (w *world) client(t *testing.T) *client {
	t.Helper()
	sess := newFakeSession()
	c := New(w.svc, sess, logger.Discard(), time.Second)
	t.Cleanup(c.Close)
	return &client{t: t, c: c, sess: sess}
}

// signIn resolves the session to u and waits for both snapshots.
func (cl *client) signIn(u *data.User) {
	cl.t.Helper()
	cp := *u
	cl.sess.set(session.Change{User: &cp})
	cl.pump(func() bool { return cl.c.Ready() })
}

// pump applies events, running any resulting ops, until cond holds.
func (cl *client) pump(cond func() bool) {
	cl.t.Helper()
	deadline := time.After(2 * time.Second)
	for !cond() {
		select {
		case ev := <-cl.c.Events():
			cl.run(cl.c.Apply(ev))
		case <-deadline:
			cl.t.Fatalf("condition not reached; phase %s", cl.c.Phase())
		}
	}
}

func (cl *client) run(op Op) {
	for op != nil {
		op = cl.c.Complete(op(context.Background()))
	}
}

func (cl *client) chat(id string) *data.Chat {
	for _, ch := range cl.c.Chats() {
		if ch.ID == id {
			return ch
		}
	}
	return nil
}

// waitSubscribers polls until key has want live subscribers.
func waitSubscribers(t *testing.T, f *feed.Memory, key string, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for f.Subscribers(key) != want {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d subscribers on %s, got %d", want, key, f.Subscribers(key))
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func lastNotice(t *testing.T, c *Container) Notice {
	t.Helper()
	n := c.TakeNotices()
	if len(n) == 0 {
		t.Fatal("expected a notice")
	}
	return n[len(n)-1]
}

func TestPhases(t *testing.T) {
	w := newWorld(t)
	cl := w.client(t)

	if got := cl.c.Phase(); got != PhaseAuthPending {
		t.Fatalf("expected auth_pending before resolve, got %s", got)
	}

	cl.sess.set(session.Change{})
	cl.pump(func() bool { return cl.c.Phase() == PhaseUnauthenticated })
	if cl.c.LoadingChats() || cl.c.LoadingUsers() {
		t.Fatal("expected no loading flags when signed out")
	}

	cp := *w.u1
	cl.sess.set(session.Change{User: &cp})
	cl.pump(func() bool { return cl.c.Phase() != PhaseUnauthenticated })
	if got := cl.c.Phase(); got != PhaseDataLoading && got != PhaseDataReady {
		t.Fatalf("expected data_loading, got %s", got)
	}

	cl.pump(func() bool { return cl.c.Ready() })
	if len(cl.c.Users()) != 2 {
		t.Fatalf("expected 2 directory users, got %d", len(cl.c.Users()))
	}
	if cl.c.LoadingChats() || cl.c.LoadingUsers() {
		t.Fatal("expected loading flags cleared")
	}
}

func TestStartChatFlow(t *testing.T) {
	w := newWorld(t)
	cl := w.client(t)
	cl.signIn(w.u1)

	if op := cl.c.StartChat("   "); op != nil {
		t.Fatal("expected no op for empty email")
	}
	if n := lastNotice(t, cl.c); n.Body != "Email cannot be empty." || !n.Error {
		t.Fatalf("unexpected notice %+v", n)
	}

	if op := cl.c.StartChat("A@X.com"); op != nil {
		t.Fatal("expected no op for own email")
	}
	if n := lastNotice(t, cl.c); n.Body != "You cannot add yourself as a contact." {
		t.Fatalf("unexpected notice %+v", n)
	}

	cl.run(cl.c.StartChat("nobody@x.com"))
	if n := lastNotice(t, cl.c); n.Title != "Contact Not Found" || n.Body != "No user found with email nobody@x.com." {
		t.Fatalf("unexpected notice %+v", n)
	}
	if cl.c.FindingContact() {
		t.Fatal("expected finding flag cleared")
	}

	cl.run(cl.c.StartChat("b@x.com"))
	if n := lastNotice(t, cl.c); n.Title != "Chat Started" || n.Body != "Chat with Dos started." {
		t.Fatalf("unexpected notice %+v", n)
	}
	id := cl.c.SelectedID()
	if id == "" {
		t.Fatal("expected the new chat to be selected")
	}

	// the selection survives until the chat shows up in a snapshot
	cl.pump(func() bool { return cl.c.SelectedChat() != nil })
	if cl.c.SelectedID() != id {
		t.Fatalf("selection moved to %s", cl.c.SelectedID())
	}

	cl.run(cl.c.StartChat("b@x.com"))
	if n := lastNotice(t, cl.c); n.Title != "Chat Exists" {
		t.Fatalf("unexpected notice %+v", n)
	}
	if len(cl.c.Chats()) != 1 {
		t.Fatalf("expected one chat, got %d", len(cl.c.Chats()))
	}
}

func TestContacts(t *testing.T) {
	w := newWorld(t)
	cl := w.client(t)
	cl.signIn(w.u1)

	if got := len(cl.c.Contacts()); got != 2 {
		t.Fatalf("expected 2 contacts, got %d", got)
	}

	if _, err := w.svc.CreateChat(context.Background(), w.u1, w.u2); err != nil {
		t.Fatal(err)
	}
	cl.pump(func() bool { return len(cl.c.Chats()) == 1 })

	contacts := cl.c.Contacts()
	if len(contacts) != 1 || contacts[0].ID != "u3" {
		t.Fatalf("expected only u3 left, got %+v", contacts)
	}
}

func TestSelectionFallsBackOnDesktop(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()
	first, _ := w.svc.CreateChat(ctx, w.u1, w.u2)
	second, _ := w.svc.CreateChat(ctx, w.u1, w.u3)

	cl := w.client(t)
	cl.signIn(w.u1)
	if cl.c.SelectedID() != "" {
		t.Fatal("expected no initial selection")
	}

	cl.run(cl.c.SelectChat(second.ID))
	if err := w.svc.DeleteChat(ctx, second.ID); err != nil {
		t.Fatal(err)
	}
	cl.pump(func() bool { return len(cl.c.Chats()) == 1 })

	if got := cl.c.SelectedID(); got != first.ID {
		t.Fatalf("expected fallback to %s, got %q", first.ID, got)
	}
}

func TestSelectionClearsOnMobile(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()
	_, _ = w.svc.CreateChat(ctx, w.u1, w.u2)
	second, _ := w.svc.CreateChat(ctx, w.u1, w.u3)

	cl := w.client(t)
	cl.signIn(w.u1)
	cl.c.Resize(MobileBreakpoint - 1)
	if cl.c.Layout() != Mobile || cl.c.Pane() != PaneList {
		t.Fatal("expected mobile list pane")
	}

	cl.run(cl.c.SelectChat(second.ID))
	if cl.c.Pane() != PaneChat {
		t.Fatal("expected chat pane after select")
	}

	if err := w.svc.DeleteChat(ctx, second.ID); err != nil {
		t.Fatal(err)
	}
	cl.pump(func() bool { return len(cl.c.Chats()) == 1 })

	if cl.c.SelectedID() != "" {
		t.Fatalf("expected selection cleared, got %q", cl.c.SelectedID())
	}
	if cl.c.Pane() != PaneList {
		t.Fatal("expected list pane after the chat vanished")
	}
}

func TestBackAndResize(t *testing.T) {
	w := newWorld(t)
	ch, _ := w.svc.CreateChat(context.Background(), w.u1, w.u2)
	cl := w.client(t)
	cl.signIn(w.u1)

	cl.run(cl.c.SelectChat(ch.ID))
	cl.c.Back()
	if cl.c.Pane() != PaneList {
		t.Fatal("Back on desktop is a no-op but pane must stay list")
	}

	cl.c.Resize(40)
	if cl.c.Pane() != PaneChat {
		t.Fatal("expected chat pane when shrinking with a selection")
	}
	cl.c.Back()
	if cl.c.Pane() != PaneList {
		t.Fatal("expected list pane after Back")
	}
	cl.c.Resize(120)
	if cl.c.Layout() != Desktop {
		t.Fatal("expected desktop layout")
	}
}

func TestSendRequiresSelection(t *testing.T) {
	w := newWorld(t)
	cl := w.client(t)
	cl.signIn(w.u1)

	if op := cl.c.SendMessage("hi"); op != nil {
		t.Fatal("expected no op without a selection")
	}
	n := lastNotice(t, cl.c)
	if n.Title != "Error Sending Message" || n.Body != apperr.ErrNoChat.Error() {
		t.Fatalf("unexpected notice %+v", n)
	}
}

func TestSendMessageAndErrors(t *testing.T) {
	w := newWorld(t)
	ch, _ := w.svc.CreateChat(context.Background(), w.u1, w.u2)
	cl := w.client(t)
	cl.signIn(w.u1)
	cl.run(cl.c.SelectChat(ch.ID))

	op := cl.c.SendMessage("   ")
	if !cl.c.Sending() {
		t.Fatal("expected sending flag while the op is pending")
	}
	cl.run(op)
	if cl.c.Sending() {
		t.Fatal("expected sending flag cleared")
	}
	if n := lastNotice(t, cl.c); n.Title != "Error Sending Message" || n.Body != "Message cannot be empty." {
		t.Fatalf("unexpected notice %+v", n)
	}

	cl.run(cl.c.SendMessage("hello"))
	if n := cl.c.TakeNotices(); len(n) != 0 {
		t.Fatalf("expected no notice on success, got %+v", n)
	}
	cl.pump(func() bool {
		c := cl.chat(ch.ID)
		return c != nil && len(c.Messages) == 1
	})

	msgID := cl.chat(ch.ID).Messages[0].ID
	cl.run(cl.c.EditMessage(msgID, "hello again"))
	if n := lastNotice(t, cl.c); n.Title != "Message Edited" || n.Body != "Your message has been updated." {
		t.Fatalf("unexpected notice %+v", n)
	}

	cl.run(cl.c.DeleteMessage("missing"))
	if n := lastNotice(t, cl.c); n.Title != "Error Deleting Message" || n.Body != apperr.ErrMessageNotFound.Error() {
		t.Fatalf("unexpected notice %+v", n)
	}

	cl.run(cl.c.DeleteMessage(msgID))
	if n := lastNotice(t, cl.c); n.Title != "Message Deleted" {
		t.Fatalf("unexpected notice %+v", n)
	}
}

func TestDeleteChatClearsSelection(t *testing.T) {
	w := newWorld(t)
	ch, _ := w.svc.CreateChat(context.Background(), w.u1, w.u2)
	cl := w.client(t)
	cl.signIn(w.u1)
	cl.run(cl.c.SelectChat(ch.ID))

	cl.run(cl.c.DeleteChat(ch.ID))
	if n := lastNotice(t, cl.c); n.Title != "Chat Deleted" || n.Body != "The chat has been removed." {
		t.Fatalf("unexpected notice %+v", n)
	}
	if cl.c.SelectedID() != "" {
		t.Fatal("expected selection cleared")
	}
	cl.pump(func() bool { return len(cl.c.Chats()) == 0 })
}

func TestUnreadScenario(t *testing.T) {
	w := newWorld(t)
	alice := w.client(t)
	bob := w.client(t)
	alice.signIn(w.u1)
	bob.signIn(w.u2)

	alice.run(alice.c.StartChat("b@x.com"))
	id := alice.c.SelectedID()
	alice.run(alice.c.SendMessage("hi"))

	bob.pump(func() bool {
		c := bob.chat(id)
		return c != nil && c.Unread("u2") == 1
	})
	if c := bob.chat(id); c.LastMessagePreview != "hi" {
		t.Fatalf("unexpected preview %q", c.LastMessagePreview)
	}

	bob.run(bob.c.SelectChat(id))
	bob.pump(func() bool { return bob.chat(id).Unread("u2") == 0 })
	if got := w.chats.Get(id).Unread("u1"); got != 0 {
		t.Fatalf("sender's counter should stay 0, got %d", got)
	}
}

func TestVisibleChatIsMarkedRead(t *testing.T) {
	w := newWorld(t)
	ch, _ := w.svc.CreateChat(context.Background(), w.u1, w.u2)
	bob := w.client(t)
	bob.signIn(w.u2)
	bob.run(bob.c.SelectChat(ch.ID))

	if _, err := w.svc.SendMessage(context.Background(), ch.ID, "ping", w.u1); err != nil {
		t.Fatal(err)
	}
	bob.pump(func() bool {
		c := bob.chat(ch.ID)
		return c != nil && len(c.Messages) == 1 && c.Unread("u2") == 0
	})
}

func TestStaleResultsAreDropped(t *testing.T) {
	w := newWorld(t)
	ch, _ := w.svc.CreateChat(context.Background(), w.u1, w.u2)
	cl := w.client(t)
	cl.signIn(w.u1)

	op := cl.c.DeleteChat(ch.ID)
	cl.sess.set(session.Change{})
	cl.pump(func() bool { return cl.c.Phase() == PhaseUnauthenticated })

	cl.c.TakeNotices()
	if next := cl.c.Complete(op(context.Background())); next != nil {
		t.Fatal("expected no follow-up op")
	}
	if n := cl.c.TakeNotices(); len(n) != 0 {
		t.Fatalf("expected stale result dropped, got %+v", n)
	}
	if len(cl.c.Chats()) != 0 {
		t.Fatal("expected chats cleared on sign out")
	}
}

func TestSignOut(t *testing.T) {
	w := newWorld(t)
	cl := w.client(t)
	cl.signIn(w.u1)

	op := cl.c.SignOut()
	if cl.c.Phase() != PhaseAuthPending {
		t.Fatalf("expected auth_pending while signing out, got %s", cl.c.Phase())
	}
	cl.run(op)
	cl.pump(func() bool { return cl.c.Phase() == PhaseUnauthenticated })
	if cl.c.User() != nil {
		t.Fatal("expected no user")
	}
	waitSubscribers(t, w.feed, feed.ChatsKey("a@x.com"), 0)
}

func TestSignOutFailure(t *testing.T) {
	w := newWorld(t)
	cl := w.client(t)
	cl.signIn(w.u1)
	cl.sess.signOutErr = errors.New("offline")

	cl.run(cl.c.SignOut())
	if cl.c.Phase() != PhaseDataReady {
		t.Fatalf("expected to stay ready, got %s", cl.c.Phase())
	}
	if n := lastNotice(t, cl.c); n.Title != "Error Signing Out" {
		t.Fatalf("unexpected notice %+v", n)
	}
}

func TestDegradedIdentityWarns(t *testing.T) {
	w := newWorld(t)
	cl := w.client(t)
	cp := *w.u1
	cl.sess.set(session.Change{User: &cp, Warning: apperr.ErrIdentityDegraded})
	cl.pump(func() bool { return cl.c.Ready() })

	n := cl.c.TakeNotices()
	if len(n) != 1 || n[0].Body != apperr.ErrIdentityDegraded.Error() {
		t.Fatalf("unexpected notices %+v", n)
	}
}

func TestSubscriptionErrorAndResubscribe(t *testing.T) {
	w := newWorld(t)
	cl := w.client(t)
	cl.signIn(w.u1)

	w.feed.Fail(feed.ChatsKey("a@x.com"), errors.New("stream closed"))
	cl.pump(func() bool {
		for _, n := range cl.c.TakeNotices() {
			if n.Body == "Could not load chats." {
				return true
			}
		}
		return false
	})
	if cl.c.LoadingChats() {
		t.Fatal("expected loading flag cleared")
	}

	cl.run(cl.c.Resubscribe())
	cl.pump(func() bool { return !cl.c.LoadingChats() && !cl.c.LoadingUsers() })
	waitSubscribers(t, w.feed, feed.ChatsKey("a@x.com"), 1)
}

func TestCloseStopsSubscriptions(t *testing.T) {
	w := newWorld(t)
	cl := w.client(t)
	cl.signIn(w.u1)

	cl.c.Close()
	waitSubscribers(t, w.feed, feed.ChatsKey("a@x.com"), 0)
	waitSubscribers(t, w.feed, feed.DirectoryKey, 0)
	select {
	case <-cl.c.Done():
	default:
		t.Fatal("expected Done closed")
	}
}
