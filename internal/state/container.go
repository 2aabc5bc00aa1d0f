// Package state holds the client-side chat state: the cached chat list
// and directory, the selection, loading flags and layout.
//
// A Container is owned by one goroutine (the UI loop). Subscriptions and
// the session push Events into the channel returned by Events; the owner
// applies them with Apply. Remote operations are returned as Op values to
// run elsewhere, and their Result goes back through Complete.
package state

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/PaulBabatuyi/monochrome-chat/internal/apperr"
	"github.com/PaulBabatuyi/monochrome-chat/internal/chat"
	"github.com/PaulBabatuyi/monochrome-chat/internal/data"
	"github.com/PaulBabatuyi/monochrome-chat/internal/logger"
	"github.com/PaulBabatuyi/monochrome-chat/internal/normalize"
	"github.com/PaulBabatuyi/monochrome-chat/internal/session"
)

// ChatService is the access layer used by the container.
type ChatService interface {
	FindUserByEmail(ctx context.Context, email string) (*data.User, error)
	StreamChatsForUser(ctx context.Context, email string, onUpdate func([]*data.Chat), onError func(error)) (*chat.Subscription, error)
	StreamDirectory(ctx context.Context, excludeEmail string, onUpdate func([]*data.User), onError func(error)) (*chat.Subscription, error)
	CreateChat(ctx context.Context, initiator, counterpart *data.User) (*data.Chat, error)
	SendMessage(ctx context.Context, chatID, text string, sender *data.User) (*data.Message, error)
	EditMessage(ctx context.Context, chatID, messageID, newText string) error
	DeleteMessage(ctx context.Context, chatID, messageID string) error
	DeleteChat(ctx context.Context, chatID string) error
	MarkRead(ctx context.Context, chatID, userID string) error
}

// Session is the identity source.
type Session interface {
	Subscribe(fn func(session.Change)) (unsubscribe func())
	SignOut(ctx context.Context) error
}

// Phase is the readiness of the container.
type Phase int

const (
	PhaseAuthPending Phase = iota
	PhaseUnauthenticated
	PhaseDataLoading
	PhaseDataReady
)

func (p Phase) String() string {
	switch p {
	case PhaseUnauthenticated:
		return "unauthenticated"
	case PhaseDataLoading:
		return "data_loading"
	case PhaseDataReady:
		return "data_ready"
	default:
		return "auth_pending"
	}
}

// Layout is the screen arrangement.
type Layout int

const (
	Desktop Layout = iota // list and chat side by side
	Mobile                // one pane at a time
)

// Pane is the visible pane in the mobile layout.
type Pane int

const (
	PaneList Pane = iota
	PaneChat
)

// MobileBreakpoint is the terminal width below which the mobile layout is
// used.
const MobileBreakpoint = 80

const eventBuffer = 64

// Container is the chat state for the signed-in user.
type Container struct {
	svc       ChatService
	sess      Session
	log       logger.Logger
	opTimeout time.Duration

	events    chan Event
	done      chan struct{}
	closeOnce sync.Once
	unsub     func()

	// subscription side, guarded by subMu
	subMu     sync.Mutex
	subGen    uint64
	subUser   *data.User
	subCancel context.CancelFunc
	subs      []*chat.Subscription

	// owner side
	gen          uint64
	resolved     bool
	user         *data.User
	warning      error
	chats        []*data.Chat
	users        []*data.User
	chatsLoaded  bool
	usersLoaded  bool
	loadingChats bool
	loadingUsers bool
	sending      int
	finding      bool
	creating     bool
	signingOut   bool
	selectedID   string
	pendingID    string // selected but not yet in a snapshot
	marking      map[string]bool
	layout       Layout
	pane         Pane
	notices      []Notice
}

// New returns a container following sess. Call Close when done.
func New(svc ChatService, sess Session, log logger.Logger, opTimeout time.Duration) *Container {
	c := &Container{
		svc:       svc,
		sess:      sess,
		log:       log,
		opTimeout: opTimeoutOrDefault(opTimeout),
		events:    make(chan Event, eventBuffer),
		done:      make(chan struct{}),
		marking:   map[string]bool{},
	}
	c.unsub = sess.Subscribe(c.onIdentity)
	return c
}

// Events is the input channel to drain on the owner goroutine.
func (c *Container) Events() <-chan Event { return c.events }

// Done is closed by Close.
func (c *Container) Done() <-chan struct{} { return c.done }

// Close stops the session subscription and both live queries.
func (c *Container) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		if c.unsub != nil {
			c.unsub()
		}
		c.subMu.Lock()
		c.stopSubsLocked()
		c.subMu.Unlock()
	})
}

func (c *Container) closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// onIdentity runs on the session's goroutine.
func (c *Container) onIdentity(change session.Change) {
	c.subMu.Lock()
	defer c.subMu.Unlock()

	c.stopSubsLocked()
	if c.closed() {
		return
	}

	c.subGen++
	gen := c.subGen
	c.subUser = change.User

	ctx, cancel := context.WithCancel(context.Background())
	c.subCancel = cancel

	c.post(ctx, IdentityChanged{Gen: gen, Change: change})
	if change.User != nil {
		c.startSubsLocked(ctx, gen, change.User)
	}
}

func (c *Container) startSubsLocked(ctx context.Context, gen uint64, user *data.User) {
	chats, err := c.svc.StreamChatsForUser(ctx, user.Email,
		func(list []*data.Chat) { c.post(ctx, ChatsSnapshot{Gen: gen, Chats: list}) },
		func(err error) { c.post(ctx, SubscriptionError{Gen: gen, Source: SourceChats, Err: err}) },
	)
	if err != nil {
		c.post(ctx, SubscriptionError{Gen: gen, Source: SourceChats, Err: err})
	} else {
		c.subs = append(c.subs, chats)
	}

	users, err := c.svc.StreamDirectory(ctx, user.Email,
		func(list []*data.User) { c.post(ctx, UsersSnapshot{Gen: gen, Users: list}) },
		func(err error) { c.post(ctx, SubscriptionError{Gen: gen, Source: SourceUsers, Err: err}) },
	)
	if err != nil {
		c.post(ctx, SubscriptionError{Gen: gen, Source: SourceUsers, Err: err})
	} else {
		c.subs = append(c.subs, users)
	}
}

// stopSubsLocked cancels the identity context before waiting on the
// listeners so none of them stays blocked in post.
func (c *Container) stopSubsLocked() {
	if c.subCancel != nil {
		c.subCancel()
		c.subCancel = nil
	}
	for _, s := range c.subs {
		s.Cancel()
	}
	c.subs = nil
}

func (c *Container) post(ctx context.Context, ev Event) {
	select {
	case c.events <- ev:
	case <-ctx.Done():
	case <-c.done:
	}
}

// Resubscribe reopens both live queries for the current identity, after a
// SubscriptionError.
func (c *Container) Resubscribe() Op {
	if c.user == nil {
		return nil
	}
	c.loadingChats, c.loadingUsers = true, true
	gen := c.gen
	return func(context.Context) Result {
		c.subMu.Lock()
		defer c.subMu.Unlock()
		if c.subGen != gen || c.subUser == nil || c.closed() {
			return Result{gen: gen, kind: opResubscribe}
		}
		c.stopSubsLocked()
		ctx, cancel := context.WithCancel(context.Background())
		c.subCancel = cancel
		c.startSubsLocked(ctx, gen, c.subUser)
		return Result{gen: gen, kind: opResubscribe}
	}
}

// Apply folds ev into the state. The returned Op, if any, should be run.
func (c *Container) Apply(ev Event) Op {
	switch ev := ev.(type) {
	case IdentityChanged:
		c.applyIdentity(ev)
	case ChatsSnapshot:
		if ev.Gen != c.gen {
			return nil
		}
		c.chats = ev.Chats
		c.chatsLoaded = true
		c.loadingChats = false
		c.reconcileSelection()
		return c.markVisibleRead()
	case UsersSnapshot:
		if ev.Gen != c.gen {
			return nil
		}
		c.users = ev.Users
		c.usersLoaded = true
		c.loadingUsers = false
	case SubscriptionError:
		if ev.Gen != c.gen {
			return nil
		}
		c.log.Error("subscription failed", "source", string(ev.Source), "error", ev.Err)
		switch ev.Source {
		case SourceChats:
			c.loadingChats = false
			c.notify(Notice{Title: "Error", Body: "Could not load chats.", Error: true})
		case SourceUsers:
			c.loadingUsers = false
			c.notify(Notice{Title: "Error", Body: "Could not load users.", Error: true})
		}
	}
	return nil
}

func (c *Container) applyIdentity(ev IdentityChanged) {
	c.gen = ev.Gen
	c.resolved = true
	c.user = ev.Change.User
	c.warning = ev.Change.Warning

	c.chats, c.users = nil, nil
	c.chatsLoaded, c.usersLoaded = false, false
	c.sending = 0
	c.finding, c.creating, c.signingOut = false, false, false
	c.selectedID, c.pendingID = "", ""
	c.marking = map[string]bool{}
	c.pane = PaneList

	signedIn := c.user != nil
	c.loadingChats, c.loadingUsers = signedIn, signedIn
	if signedIn && c.warning != nil {
		c.notify(Notice{Title: "Warning", Body: apperr.UserMessage(c.warning), Error: true})
	}
}

// reconcileSelection moves the selection off a chat that left the list:
// to the first chat on desktop, to nothing on mobile.
func (c *Container) reconcileSelection() {
	if c.pendingID != "" {
		if c.findChat(c.pendingID) == nil {
			return
		}
		c.pendingID = ""
	}
	if c.selectedID == "" || c.findChat(c.selectedID) != nil {
		return
	}
	if c.layout == Desktop && len(c.chats) > 0 {
		c.selectedID = c.chats[0].ID
		return
	}
	c.selectedID = ""
	if c.layout == Mobile {
		c.pane = PaneList
	}
}

// markVisibleRead clears the unread counter of the chat on screen.
func (c *Container) markVisibleRead() Op {
	if c.user == nil || c.selectedID == "" {
		return nil
	}
	if c.layout == Mobile && c.pane != PaneChat {
		return nil
	}
	ch := c.findChat(c.selectedID)
	if ch == nil || ch.Unread(c.user.ID) == 0 {
		return nil
	}
	return c.markRead(ch.ID)
}

func (c *Container) markRead(chatID string) Op {
	if c.user == nil || c.marking[chatID] {
		return nil
	}
	c.marking[chatID] = true
	userID := c.user.ID
	return c.op(opMarkRead, func(ctx context.Context) Result {
		return Result{chatID: chatID, err: c.svc.MarkRead(ctx, chatID, userID)}
	})
}

func (c *Container) findChat(id string) *data.Chat {
	for _, ch := range c.chats {
		if ch.ID == id {
			return ch
		}
	}
	return nil
}

func (c *Container) notify(n Notice) {
	c.notices = append(c.notices, n)
}

func (c *Container) fail(title string, err error) {
	c.notify(Notice{Title: title, Body: apperr.UserMessage(err), Error: true})
}

// SelectChat shows chatID and marks it read.
func (c *Container) SelectChat(chatID string) Op {
	c.selectedID, c.pendingID = chatID, ""
	if c.layout == Mobile {
		c.pane = PaneChat
	}
	return c.markRead(chatID)
}

// selectCreated selects a chat that may not be in the list yet.
func (c *Container) selectCreated(chatID string) Op {
	op := c.SelectChat(chatID)
	if c.findChat(chatID) == nil {
		c.pendingID = chatID
	}
	return op
}

// Back returns to the chat list in the mobile layout.
func (c *Container) Back() {
	if c.layout == Mobile {
		c.pane = PaneList
	}
}

// Resize picks the layout for a terminal width.
func (c *Container) Resize(width int) {
	if width < MobileBreakpoint {
		c.layout = Mobile
		if c.selectedID != "" {
			c.pane = PaneChat
		} else {
			c.pane = PaneList
		}
		return
	}
	c.layout = Desktop
}

// SendMessage sends text to the selected chat.
func (c *Container) SendMessage(text string) Op {
	chatID := c.selectedID
	if c.user == nil || chatID == "" {
		c.fail("Error Sending Message", apperr.ErrNoChat)
		return nil
	}
	c.sending++
	sender := *c.user
	return c.op(opSend, func(ctx context.Context) Result {
		_, err := c.svc.SendMessage(ctx, chatID, text, &sender)
		return Result{chatID: chatID, err: err}
	})
}

// EditMessage replaces the text of a message in the selected chat.
func (c *Container) EditMessage(messageID, text string) Op {
	chatID := c.selectedID
	if chatID == "" {
		c.fail("Error Editing Message", apperr.ErrNoChat)
		return nil
	}
	return c.op(opEdit, func(ctx context.Context) Result {
		return Result{chatID: chatID, err: c.svc.EditMessage(ctx, chatID, messageID, text)}
	})
}

// DeleteMessage removes a message from the selected chat.
func (c *Container) DeleteMessage(messageID string) Op {
	chatID := c.selectedID
	if chatID == "" {
		c.fail("Error Deleting Message", apperr.ErrNoChat)
		return nil
	}
	return c.op(opDeleteMessage, func(ctx context.Context) Result {
		return Result{chatID: chatID, err: c.svc.DeleteMessage(ctx, chatID, messageID)}
	})
}

// DeleteChat removes a chat.
func (c *Container) DeleteChat(chatID string) Op {
	return c.op(opDeleteChat, func(ctx context.Context) Result {
		return Result{chatID: chatID, err: c.svc.DeleteChat(ctx, chatID)}
	})
}

// StartChat looks up a contact by email and opens the chat with them,
// creating it if needed.
func (c *Container) StartChat(email string) Op {
	email = strings.TrimSpace(email)
	if email == "" || c.user == nil {
		c.notify(Notice{Title: "Error", Body: "Email cannot be empty.", Error: true})
		return nil
	}
	if normalize.Email(email) == normalize.Email(c.user.Email) {
		c.notify(Notice{Title: "Error", Body: "You cannot add yourself as a contact.", Error: true})
		return nil
	}
	c.finding = true
	return c.op(opFindContact, func(ctx context.Context) Result {
		u, err := c.svc.FindUserByEmail(ctx, email)
		return Result{email: email, user: u, err: err}
	})
}

// StartChatWith creates (or reopens) the 1:1 chat with contact.
func (c *Container) StartChatWith(contact *data.User) Op {
	if c.user == nil || contact == nil {
		return nil
	}
	c.creating = true
	initiator, counterpart := *c.user, *contact
	return c.op(opCreateChat, func(ctx context.Context) Result {
		ch, err := c.svc.CreateChat(ctx, &initiator, &counterpart)
		return Result{user: &counterpart, chat: ch, err: err}
	})
}

// SignOut ends the session. The container waits in PhaseAuthPending until
// the session reports the change.
func (c *Container) SignOut() Op {
	if c.user == nil || c.signingOut {
		return nil
	}
	c.signingOut = true
	return c.op(opSignOut, func(ctx context.Context) Result {
		return Result{err: c.sess.SignOut(ctx)}
	})
}

// Complete applies the result of an Op. Results from a previous identity
// are dropped.
func (c *Container) Complete(r Result) Op {
	if r.gen != c.gen {
		return nil
	}

	switch r.kind {
	case opSend:
		if c.sending > 0 {
			c.sending--
		}
		if r.err != nil {
			c.fail("Error Sending Message", r.err)
		}
	case opEdit:
		if r.err != nil {
			c.fail("Error Editing Message", r.err)
			return nil
		}
		c.notify(Notice{Title: "Message Edited", Body: "Your message has been updated."})
	case opDeleteMessage:
		if r.err != nil {
			c.fail("Error Deleting Message", r.err)
			return nil
		}
		c.notify(Notice{Title: "Message Deleted", Body: "Your message has been removed."})
	case opDeleteChat:
		if r.err != nil {
			c.fail("Error Deleting Chat", r.err)
			return nil
		}
		c.notify(Notice{Title: "Chat Deleted", Body: "The chat has been removed."})
		if c.selectedID == r.chatID {
			c.selectedID, c.pendingID = "", ""
			if c.layout == Mobile {
				c.pane = PaneList
			}
		}
	case opMarkRead:
		delete(c.marking, r.chatID)
		if r.err != nil {
			c.log.Warn("mark read failed", "chat_id", r.chatID, "error", r.err)
		}
	case opFindContact:
		c.finding = false
		return c.foundContact(r)
	case opCreateChat:
		c.creating = false
		if r.err != nil {
			c.fail("Error Creating Chat", r.err)
			return nil
		}
		c.notify(Notice{Title: "Chat Started", Body: fmt.Sprintf("Chat with %s started.", r.user.Name)})
		return c.selectCreated(r.chat.ID)
	case opSignOut:
		if r.err != nil {
			c.signingOut = false
			c.fail("Error Signing Out", r.err)
		}
	case opResubscribe:
	}
	return nil
}

func (c *Container) foundContact(r Result) Op {
	if errors.Is(r.err, apperr.ErrUserNotFound) {
		c.notify(Notice{Title: "Contact Not Found", Body: fmt.Sprintf("No user found with email %s.", r.email), Error: true})
		return nil
	}
	if r.err != nil {
		c.fail("Error", r.err)
		return nil
	}

	email := normalize.Email(r.user.Email)
	for _, ch := range c.chats {
		if !ch.IsGroup && ch.HasParticipant(email) {
			c.notify(Notice{Title: "Chat Exists", Body: fmt.Sprintf("You already have a chat with %s. Selecting it.", r.user.Name)})
			return c.SelectChat(ch.ID)
		}
	}
	return c.StartChatWith(r.user)
}

// TakeNotices returns and clears the pending notices.
func (c *Container) TakeNotices() []Notice {
	n := c.notices
	c.notices = nil
	return n
}

// Phase reports readiness.
func (c *Container) Phase() Phase {
	switch {
	case !c.resolved || c.signingOut:
		return PhaseAuthPending
	case c.user == nil:
		return PhaseUnauthenticated
	case c.chatsLoaded && c.usersLoaded:
		return PhaseDataReady
	default:
		return PhaseDataLoading
	}
}

// Ready reports whether both live queries have delivered.
func (c *Container) Ready() bool { return c.Phase() == PhaseDataReady }

// User returns the signed-in user or nil.
func (c *Container) User() *data.User { return c.user }

// Warning is the degrade warning for the current identity.
func (c *Container) Warning() error { return c.warning }

// Chats returns the cached chat list, newest first. Callers must not
// modify it.
func (c *Container) Chats() []*data.Chat { return c.chats }

// Users returns the cached directory without the signed-in user.
func (c *Container) Users() []*data.User { return c.users }

// Contacts returns the directory users with no 1:1 chat with the
// signed-in user yet.
func (c *Container) Contacts() []*data.User {
	if c.user == nil {
		return nil
	}
	me := normalize.Email(c.user.Email)
	partners := map[string]bool{}
	for _, ch := range c.chats {
		if ch.IsGroup {
			continue
		}
		for _, e := range ch.ParticipantEmails {
			if e != me {
				partners[e] = true
			}
		}
	}

	var out []*data.User
	for _, u := range c.users {
		if !partners[normalize.Email(u.Email)] {
			out = append(out, u)
		}
	}
	return out
}

// SelectedID returns the selected chat id, possibly not in the list yet.
func (c *Container) SelectedID() string { return c.selectedID }

// SelectedChat returns the selected chat or nil.
func (c *Container) SelectedChat() *data.Chat {
	if c.selectedID == "" {
		return nil
	}
	return c.findChat(c.selectedID)
}

func (c *Container) Layout() Layout       { return c.layout }
func (c *Container) Pane() Pane           { return c.pane }
func (c *Container) LoadingChats() bool   { return c.loadingChats }
func (c *Container) LoadingUsers() bool   { return c.loadingUsers }
func (c *Container) Sending() bool        { return c.sending > 0 }
func (c *Container) FindingContact() bool { return c.finding }
func (c *Container) CreatingChat() bool   { return c.creating }
