package state

import (
	"github.com/PaulBabatuyi/monochrome-chat/internal/data"
	"github.com/PaulBabatuyi/monochrome-chat/internal/session"
)

// Event is an immutable input to the container, produced off the UI
// goroutine and applied on it.
type Event interface {
	isEvent()
}

// IdentityChanged carries a session change and opens a new generation.
type IdentityChanged struct {
	Gen    uint64
	Change session.Change
}

// ChatsSnapshot is a full chat-list result for one identity generation.
type ChatsSnapshot struct {
	Gen   uint64
	Chats []*data.Chat
}

// UsersSnapshot is a full directory result for one identity generation.
type UsersSnapshot struct {
	Gen   uint64
	Users []*data.User
}

// Source names a live subscription.
type Source string

const (
	SourceChats Source = "chats"
	SourceUsers Source = "users"
)

// SubscriptionError reports a failed load or a dead subscription.
type SubscriptionError struct {
	Gen    uint64
	Source Source
	Err    error
}

func (IdentityChanged) isEvent()   {}
func (ChatsSnapshot) isEvent()     {}
func (UsersSnapshot) isEvent()     {}
func (SubscriptionError) isEvent() {}

// Notice is a user-facing notification.
type Notice struct {
	Title string
	Body  string
	Error bool
}
