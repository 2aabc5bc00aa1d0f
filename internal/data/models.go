package data

import (
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// User maps to the users (directory) collection, keyed by the principal id
// the auth service assigned.
type User struct {
	ID        string    `bson:"_id"`
	Name      string    `bson:"name"`
	Email     string    `bson:"email"`
	AvatarURL string    `bson:"avatar_url,omitempty"`
	CreatedAt time.Time `bson:"created_at"`
}

// Participant is the copy of a User embedded in a chat document.
type Participant struct {
	ID        string `bson:"id"`
	Name      string `bson:"name"`
	Email     string `bson:"email"`
	AvatarURL string `bson:"avatar_url,omitempty"`
}

// Participant returns the embedded form of u.
func (u *User) Participant() Participant {
	return Participant{ID: u.ID, Name: u.Name, Email: u.Email, AvatarURL: u.AvatarURL}
}

// MessageStatus is the delivery status of a message.
type MessageStatus string

const (
	StatusSent      MessageStatus = "sent"
	StatusDelivered MessageStatus = "delivered"
	StatusRead      MessageStatus = "read"
)

// Message is embedded in Chat.Messages; ids are unique within one chat.
type Message struct {
	ID              string        `bson:"id"`
	Text            string        `bson:"text"`
	Timestamp       time.Time     `bson:"timestamp"`
	SenderEmail     string        `bson:"sender_email"`
	SenderName      string        `bson:"sender_name,omitempty"`
	SenderAvatarURL string        `bson:"sender_avatar_url,omitempty"`
	Status          MessageStatus `bson:"status"`
	Edited          bool          `bson:"edited,omitempty"`
}

// Chat maps to the chats collection. Messages are stored inline.
type Chat struct {
	ID                 string         `bson:"_id"`
	Participants       []Participant  `bson:"participants"`
	ParticipantEmails  []string       `bson:"participant_emails"` // normalized, sorted, unique
	PairKey            string         `bson:"pair_key,omitempty"` // 1:1 chats only
	Messages           []Message      `bson:"messages"`
	Name               string         `bson:"name"`
	AvatarURL          string         `bson:"avatar_url,omitempty"`
	LastMessagePreview string         `bson:"last_message_preview"`
	LastMessageAt      time.Time      `bson:"last_message_at"`
	UnreadCount        map[string]int `bson:"unread_count"` // user id -> count
	IsGroup            bool           `bson:"is_group"`
	CreatedAt          time.Time      `bson:"created_at"`
	UpdatedAt          time.Time      `bson:"updated_at"`
}

// Clone returns a deep copy so snapshots handed to the UI never alias
// store-owned slices or maps.
func (c *Chat) Clone() *Chat {
	if c == nil {
		return nil
	}
	out := *c
	out.Participants = append([]Participant(nil), c.Participants...)
	out.ParticipantEmails = append([]string(nil), c.ParticipantEmails...)
	out.Messages = append([]Message(nil), c.Messages...)
	out.UnreadCount = make(map[string]int, len(c.UnreadCount))
	for k, v := range c.UnreadCount {
		out.UnreadCount[k] = v
	}
	return &out
}

// LastMessage returns the newest message, or nil for an empty chat.
func (c *Chat) LastMessage() *Message {
	if len(c.Messages) == 0 {
		return nil
	}
	return &c.Messages[len(c.Messages)-1]
}

// MessageIndex returns the position of the message with id, or -1.
func (c *Chat) MessageIndex(id string) int {
	for i := range c.Messages {
		if c.Messages[i].ID == id {
			return i
		}
	}
	return -1
}

// HasParticipant reports whether the normalized email takes part in c.
func (c *Chat) HasParticipant(email string) bool {
	for _, e := range c.ParticipantEmails {
		if e == email {
			return true
		}
	}
	return false
}

// Unread returns the unread counter for userID.
func (c *Chat) Unread(userID string) int {
	return c.UnreadCount[userID]
}

// Counterpart returns the other participant of a 1:1 chat as seen by
// viewerEmail. ok is false for group chats or when viewer is not a member.
func (c *Chat) Counterpart(viewerEmail string) (Participant, bool) {
	if c.IsGroup || len(c.Participants) != 2 {
		return Participant{}, false
	}
	for i, p := range c.Participants {
		if p.Email == viewerEmail {
			return c.Participants[1-i], true
		}
	}
	return Participant{}, false
}

// DisplayNameFor is the chat title shown to viewerEmail: the counterpart's
// name in a 1:1 chat, the stored name otherwise.
func (c *Chat) DisplayNameFor(viewerEmail string) string {
	if p, ok := c.Counterpart(viewerEmail); ok && p.Name != "" {
		return p.Name
	}
	return c.Name
}

// Account maps to the accounts collection owned by the auth service.
type Account struct {
	ID          bson.ObjectID `bson:"_id,omitempty"`
	Email       string        `bson:"email"`
	Password    string        `bson:"password"`
	DisplayName string        `bson:"display_name,omitempty"`
	PhotoURL    string        `bson:"photo_url,omitempty"`
	CreatedAt   time.Time     `bson:"created_at"`
	UpdatedAt   time.Time     `bson:"updated_at"`
}
