// Package chattest provides in-memory stores with the same update
// semantics as the Mongo stores, for tests.
package chattest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/PaulBabatuyi/monochrome-chat/internal/apperr"
	"github.com/PaulBabatuyi/monochrome-chat/internal/data"
	"github.com/PaulBabatuyi/monochrome-chat/internal/normalize"
)

// Chats is an in-memory chat store.
type Chats struct {
	mu       sync.Mutex
	docs     map[string]*data.Chat
	failFind error
	writes   int
}

// NewChats returns an empty store.
func NewChats() *Chats {
	return &Chats{docs: map[string]*data.Chat{}}
}

func (m *Chats) InsertChat(_ context.Context, chat *data.Chat) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.docs[chat.ID]; ok {
		return data.ErrDuplicate
	}
	for _, c := range m.docs {
		if chat.PairKey != "" && c.PairKey == chat.PairKey {
			return data.ErrDuplicate
		}
	}
	m.docs[chat.ID] = chat.Clone()
	m.writes++
	return nil
}

func (m *Chats) GetChat(_ context.Context, id string) (*data.Chat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.docs[id]
	if !ok {
		return nil, apperr.ErrChatNotFound
	}
	return c.Clone(), nil
}

func (m *Chats) FindChatByPairKey(_ context.Context, key string) (*data.Chat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.docs {
		if c.PairKey == key {
			return c.Clone(), nil
		}
	}
	return nil, apperr.ErrChatNotFound
}

func (m *Chats) FindChatsByParticipant(_ context.Context, email string) ([]*data.Chat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failFind != nil {
		return nil, m.failFind
	}
	out := []*data.Chat{}
	for _, c := range m.docs {
		if c.HasParticipant(normalize.Email(email)) {
			out = append(out, c.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *Chats) AppendMessage(_ context.Context, chatID string, msg data.Message, preview string, incUnread []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.docs[chatID]
	if !ok {
		return apperr.ErrChatNotFound
	}
	c.Messages = append(c.Messages, msg)
	c.LastMessagePreview = preview
	c.LastMessageAt = msg.Timestamp
	c.UpdatedAt = msg.Timestamp
	for _, id := range incUnread {
		c.UnreadCount[id]++
	}
	m.writes++
	return nil
}

func (m *Chats) UpdateMessageText(_ context.Context, chatID, messageID, text string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.docs[chatID]
	if !ok {
		return apperr.ErrChatNotFound
	}
	i := c.MessageIndex(messageID)
	if i < 0 {
		return apperr.ErrMessageNotFound
	}
	c.Messages[i].Text = text
	c.Messages[i].Edited = true
	c.Messages[i].Timestamp = at
	c.UpdatedAt = at
	m.writes++
	return nil
}

func (m *Chats) PullMessage(_ context.Context, chatID, messageID string, at time.Time) (*data.Chat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.docs[chatID]
	if !ok {
		return nil, apperr.ErrChatNotFound
	}
	i := c.MessageIndex(messageID)
	if i < 0 {
		return nil, apperr.ErrMessageNotFound
	}
	c.Messages = append(c.Messages[:i:i], c.Messages[i+1:]...)
	c.UpdatedAt = at
	m.writes++
	return c.Clone(), nil
}

func (m *Chats) SetPreview(_ context.Context, chatID, lastID, preview string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.docs[chatID]
	if !ok {
		return false, nil
	}
	newest := ""
	if last := c.LastMessage(); last != nil {
		newest = last.ID
	}
	if newest != lastID {
		return false, nil
	}
	c.LastMessagePreview = preview
	c.LastMessageAt = at
	m.writes++
	return true, nil
}

func (m *Chats) ResetUnread(_ context.Context, chatID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.docs[chatID]
	if !ok {
		return apperr.ErrChatNotFound
	}
	c.UnreadCount[userID] = 0
	m.writes++
	return nil
}

func (m *Chats) DeleteChat(_ context.Context, chatID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.docs[chatID]; !ok {
		return apperr.ErrChatNotFound
	}
	delete(m.docs, chatID)
	m.writes++
	return nil
}

// Get returns a copy of a stored chat, or nil.
func (m *Chats) Get(id string) *data.Chat {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.docs[id].Clone()
}

// Writes counts successful writes.
func (m *Chats) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

// FailFind makes FindChatsByParticipant return err until called with nil.
func (m *Chats) FailFind(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failFind = err
}

// Users is an in-memory directory.
type Users struct {
	mu    sync.Mutex
	users map[string]*data.User
}

// NewUsers returns a directory holding users.
func NewUsers(users ...*data.User) *Users {
	m := &Users{users: map[string]*data.User{}}
	for _, u := range users {
		m.users[u.ID] = u
	}
	return m
}

func (m *Users) CreateUser(_ context.Context, u *data.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[u.ID]; ok {
		return data.ErrDuplicate
	}
	cp := *u
	m.users[u.ID] = &cp
	return nil
}

func (m *Users) GetUserByID(_ context.Context, id string) (*data.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, apperr.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *Users) GetUserByEmail(_ context.Context, email string) (*data.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == normalize.Email(email) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, apperr.ErrUserNotFound
}

func (m *Users) ListUsersExcept(_ context.Context, exclude string) ([]*data.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*data.User{}
	for _, u := range m.users {
		if u.Email != exclude {
			cp := *u
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
