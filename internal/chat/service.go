// Package chat is the directory and chat access layer. Every operation
// returns an error instead of panicking; turning errors into notices is
// the caller's job.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/PaulBabatuyi/monochrome-chat/internal/apperr"
	"github.com/PaulBabatuyi/monochrome-chat/internal/data"
	"github.com/PaulBabatuyi/monochrome-chat/internal/feed"
	"github.com/PaulBabatuyi/monochrome-chat/internal/logger"
	"github.com/PaulBabatuyi/monochrome-chat/internal/normalize"

	"github.com/google/uuid"
)

// ChatStore is the document-store surface for chats.
type ChatStore interface {
	InsertChat(ctx context.Context, chat *data.Chat) error
	GetChat(ctx context.Context, chatID string) (*data.Chat, error)
	FindChatByPairKey(ctx context.Context, pairKey string) (*data.Chat, error)
	FindChatsByParticipant(ctx context.Context, email string) ([]*data.Chat, error)
	AppendMessage(ctx context.Context, chatID string, msg data.Message, preview string, incUnread []string) error
	UpdateMessageText(ctx context.Context, chatID, messageID, text string, at time.Time) error
	PullMessage(ctx context.Context, chatID, messageID string, at time.Time) (*data.Chat, error)
	SetPreview(ctx context.Context, chatID, lastID, preview string, at time.Time) (bool, error)
	ResetUnread(ctx context.Context, chatID, userID string) error
	DeleteChat(ctx context.Context, chatID string) error
}

// Directory is the document-store surface for users.
type Directory interface {
	CreateUser(ctx context.Context, user *data.User) error
	GetUserByID(ctx context.Context, id string) (*data.User, error)
	GetUserByEmail(ctx context.Context, email string) (*data.User, error)
	ListUsersExcept(ctx context.Context, excludeEmail string) ([]*data.User, error)
}

// Service implements the access layer over a ChatStore, a Directory and a
// change feed.
type Service struct {
	chats ChatStore
	users Directory
	feed  feed.Feed
	log   logger.Logger

	now   func() time.Time
	newID func() string
}

// NewService wires the access layer.
func NewService(chats ChatStore, users Directory, f feed.Feed, log logger.Logger) *Service {
	return &Service{
		chats: chats,
		users: users,
		feed:  f,
		log:   log,
		now:   func() time.Time { return time.Now().UTC() },
		newID: uuid.NewString,
	}
}

// timestamp returns the current time at store precision.
func (s *Service) timestamp() time.Time {
	return s.now().Truncate(time.Millisecond)
}

// notify publishes changes after a successful write. A failed publish only
// delays other clients until their next signal, so it is logged.
func (s *Service) notify(ctx context.Context, keys ...string) {
	if err := s.feed.Notify(ctx, keys...); err != nil {
		s.log.Warn("change notification failed", "keys", keys, "error", err)
	}
}

func chatKeys(chat *data.Chat) []string {
	keys := make([]string, 0, len(chat.ParticipantEmails))
	for _, e := range chat.ParticipantEmails {
		keys = append(keys, feed.ChatsKey(e))
	}
	return keys
}

// FindUserByEmail resolves a typed email to a directory record.
func (s *Service) FindUserByEmail(ctx context.Context, email string) (*data.User, error) {
	email = normalize.Email(email)
	if email == "" {
		return nil, apperr.ErrEmptyEmail
	}
	return s.users.GetUserByEmail(ctx, email)
}

// GetUser reads a directory record by principal id.
func (s *Service) GetUser(ctx context.Context, id string) (*data.User, error) {
	return s.users.GetUserByID(ctx, id)
}

// CreateUser stores a directory record. When a concurrent sign-in already
// created the same principal, the stored record is returned.
func (s *Service) CreateUser(ctx context.Context, user *data.User) (*data.User, error) {
	if user.CreatedAt.IsZero() {
		user.CreatedAt = s.timestamp()
	}
	err := s.users.CreateUser(ctx, user)
	if errors.Is(err, data.ErrDuplicate) {
		if existing, getErr := s.users.GetUserByID(ctx, user.ID); getErr == nil {
			return existing, nil
		}
	}
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}

	s.notify(ctx, feed.DirectoryKey)
	return user, nil
}

// StreamChatsForUser delivers the chats of email, most recently updated
// first, on open and after every change.
func (s *Service) StreamChatsForUser(ctx context.Context, email string, onUpdate func([]*data.Chat), onError func(error)) (*Subscription, error) {
	email = normalize.Email(email)
	load := func(ctx context.Context) ([]*data.Chat, error) {
		return s.chats.FindChatsByParticipant(ctx, email)
	}
	return subscribe(ctx, s.feed, feed.ChatsKey(email), load, onUpdate, onError)
}

// StreamDirectory delivers every user except excludeEmail on open and
// after every directory change.
func (s *Service) StreamDirectory(ctx context.Context, excludeEmail string, onUpdate func([]*data.User), onError func(error)) (*Subscription, error) {
	excludeEmail = normalize.Email(excludeEmail)
	load := func(ctx context.Context) ([]*data.User, error) {
		return s.users.ListUsersExcept(ctx, excludeEmail)
	}
	return subscribe(ctx, s.feed, feed.DirectoryKey, load, onUpdate, onError)
}

// CreateChat returns the 1:1 chat between initiator and counterpart,
// creating it on first contact.
func (s *Service) CreateChat(ctx context.Context, initiator, counterpart *data.User) (*data.Chat, error) {
	a, b := normalize.Email(initiator.Email), normalize.Email(counterpart.Email)
	if a == "" || b == "" {
		return nil, apperr.ErrEmptyEmail
	}
	if a == b {
		return nil, apperr.ErrSelfChat
	}

	existing, err := s.findPairChat(ctx, a, b)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	now := s.timestamp()
	p1, p2 := initiator.Participant(), counterpart.Participant()
	p1.Email, p2.Email = a, b

	chat := &data.Chat{
		ID:                 s.newID(),
		Participants:       []data.Participant{p1, p2},
		ParticipantEmails:  normalize.Emails(a, b),
		PairKey:            normalize.PairKey(a, b),
		Messages:           []data.Message{},
		Name:               counterpart.Name,
		AvatarURL:          counterpart.AvatarURL,
		LastMessagePreview: previewStarted,
		LastMessageAt:      now,
		UnreadCount:        map[string]int{p1.ID: 0, p2.ID: 0},
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	if err := s.chats.InsertChat(ctx, chat); err != nil {
		// Lost a race with the other participant's create
		if errors.Is(err, data.ErrDuplicate) {
			return s.chats.FindChatByPairKey(ctx, chat.PairKey)
		}
		return nil, fmt.Errorf("create chat: %w", err)
	}

	s.log.Info("chat created", "chat_id", chat.ID, "participants", chat.ParticipantEmails)
	s.notify(ctx, chatKeys(chat)...)
	return chat, nil
}

// findPairChat looks for a non-group chat with exactly the two emails.
func (s *Service) findPairChat(ctx context.Context, a, b string) (*data.Chat, error) {
	chats, err := s.chats.FindChatsByParticipant(ctx, a)
	if err != nil {
		return nil, fmt.Errorf("find existing chat: %w", err)
	}
	for _, c := range chats {
		if !c.IsGroup && len(c.ParticipantEmails) == 2 && c.HasParticipant(a) && c.HasParticipant(b) {
			return c, nil
		}
	}
	return nil, nil
}

// SendMessage appends a message from sender and bumps every other
// participant's unread counter.
func (s *Service) SendMessage(ctx context.Context, chatID, text string, sender *data.User) (*data.Message, error) {
	if strings.TrimSpace(text) == "" {
		return nil, apperr.ErrEmptyMessage
	}

	chat, err := s.chats.GetChat(ctx, chatID)
	if err != nil {
		return nil, err
	}

	senderEmail := normalize.Email(sender.Email)
	msg := data.Message{
		ID:              s.newID(),
		Text:            text,
		Timestamp:       s.timestamp(),
		SenderEmail:     senderEmail,
		SenderName:      sender.Name,
		SenderAvatarURL: sender.AvatarURL,
		Status:          data.StatusSent,
	}

	var others []string
	for _, p := range chat.Participants {
		if p.ID != sender.ID && normalize.Email(p.Email) != senderEmail {
			others = append(others, p.ID)
		}
	}

	if err := s.chats.AppendMessage(ctx, chatID, msg, Preview(text), others); err != nil {
		return nil, err
	}

	s.notify(ctx, chatKeys(chat)...)
	return &msg, nil
}

// EditMessage replaces a message's text and marks it edited. The chat
// preview is left as is.
func (s *Service) EditMessage(ctx context.Context, chatID, messageID, newText string) error {
	if strings.TrimSpace(newText) == "" {
		return apperr.ErrEmptyMessage
	}

	chat, err := s.chats.GetChat(ctx, chatID)
	if err != nil {
		return err
	}
	if chat.MessageIndex(messageID) < 0 {
		return apperr.ErrMessageNotFound
	}

	if err := s.chats.UpdateMessageText(ctx, chatID, messageID, newText, s.timestamp()); err != nil {
		return err
	}

	s.notify(ctx, chatKeys(chat)...)
	return nil
}

// DeleteMessage removes a message and recomputes the preview from the new
// last message. The removal is a single atomic pull, so messages sent in the
// meantime survive; the preview is only written while the message it was
// computed from is still the newest.
func (s *Service) DeleteMessage(ctx context.Context, chatID, messageID string) error {
	now := s.timestamp()
	chat, err := s.chats.PullMessage(ctx, chatID, messageID, now)
	if err != nil {
		return err
	}

	preview, previewAt, lastID := previewAfter(chat, now)
	written, err := s.chats.SetPreview(ctx, chatID, lastID, preview, previewAt)
	if err != nil {
		return err
	}
	if !written {
		s.log.Debug("preview superseded by a newer write", "chat_id", chatID)
	}

	s.notify(ctx, chatKeys(chat)...)
	return nil
}

// DeleteChat removes the chat and every message in it.
func (s *Service) DeleteChat(ctx context.Context, chatID string) error {
	chat, err := s.chats.GetChat(ctx, chatID)
	if err != nil {
		return err
	}
	if err := s.chats.DeleteChat(ctx, chatID); err != nil {
		return err
	}

	s.log.Info("chat deleted", "chat_id", chatID)
	s.notify(ctx, chatKeys(chat)...)
	return nil
}

// MarkRead zeroes userID's unread counter on the chat. Callers only log
// the error.
func (s *Service) MarkRead(ctx context.Context, chatID, userID string) error {
	chat, err := s.chats.GetChat(ctx, chatID)
	if err != nil {
		return err
	}
	// Nothing to write; skip the update and the echo
	if chat.Unread(userID) == 0 {
		if _, ok := chat.UnreadCount[userID]; ok {
			return nil
		}
	}

	if err := s.chats.ResetUnread(ctx, chatID, userID); err != nil {
		return err
	}
	s.notify(ctx, chatKeys(chat)...)
	return nil
}
