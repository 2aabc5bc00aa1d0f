package data

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/PaulBabatuyi/monochrome-chat/internal/apperr"
	"github.com/PaulBabatuyi/monochrome-chat/internal/normalize"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// ChatsStore provides chat document operations. Every message write goes
// through the parent chat document.
type ChatsStore struct {
	coll *mongo.Collection
}

// NewChatsStore returns a ChatsStore using the given collection.
func NewChatsStore(coll *mongo.Collection) *ChatsStore {
	return &ChatsStore{coll: coll}
}

// InsertChat persists a new chat document.
func (s *ChatsStore) InsertChat(ctx context.Context, chat *Chat) error {
	// $push and $inc fail on null fields, so never store nil collections
	if chat.Messages == nil {
		chat.Messages = []Message{}
	}
	if chat.UnreadCount == nil {
		chat.UnreadCount = map[string]int{}
	}

	if _, err := s.coll.InsertOne(ctx, chat); err != nil {
		// pair_key unique index: someone created this 1:1 chat first
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert chat: %w", err)
	}
	return nil
}

// GetChat reads one chat document.
func (s *ChatsStore) GetChat(ctx context.Context, chatID string) (*Chat, error) {
	var chat Chat
	err := s.coll.FindOne(ctx, bson.M{"_id": chatID}).Decode(&chat)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, apperr.ErrChatNotFound
		}
		return nil, fmt.Errorf("find chat %s: %w", chatID, err)
	}
	return &chat, nil
}

// FindChatByPairKey returns the 1:1 chat for a pair key.
func (s *ChatsStore) FindChatByPairKey(ctx context.Context, pairKey string) (*Chat, error) {
	var chat Chat
	err := s.coll.FindOne(ctx, bson.M{"pair_key": pairKey, "is_group": false}).Decode(&chat)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, apperr.ErrChatNotFound
		}
		return nil, fmt.Errorf("find chat by pair: %w", err)
	}
	return &chat, nil
}

// FindChatsByParticipant returns every chat whose participant list contains
// email, most recently updated first.
func (s *ChatsStore) FindChatsByParticipant(ctx context.Context, email string) ([]*Chat, error) {
	// equality on an array field matches any element (array-contains)
	filter := bson.M{"participant_emails": normalize.Email(email)}
	opts := options.Find().SetSort(bson.D{{Key: "updated_at", Value: -1}, {Key: "_id", Value: 1}})

	cursor, err := s.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find chats: %w", err)
	}
	defer cursor.Close(ctx)

	chats := []*Chat{}
	if err := cursor.All(ctx, &chats); err != nil {
		return nil, fmt.Errorf("decode chats: %w", err)
	}
	return chats, nil
}

// AppendMessage pushes msg onto the chat, refreshes the denormalized preview
// and bumps the unread counter of every id in incUnread, in one update.
func (s *ChatsStore) AppendMessage(ctx context.Context, chatID string, msg Message, preview string, incUnread []string) error {
	update := bson.D{
		{Key: "$push", Value: bson.D{{Key: "messages", Value: msg}}},
		{Key: "$set", Value: bson.D{
			{Key: "last_message_preview", Value: preview},
			{Key: "last_message_at", Value: msg.Timestamp},
			{Key: "updated_at", Value: msg.Timestamp},
		}},
	}

	if len(incUnread) > 0 {
		inc := bson.D{}
		for _, id := range incUnread {
			field, err := unreadField(id)
			if err != nil {
				return err
			}
			inc = append(inc, bson.E{Key: field, Value: 1})
		}
		update = append(update, bson.E{Key: "$inc", Value: inc})
	}

	res, err := s.coll.UpdateOne(ctx, bson.M{"_id": chatID}, update)
	if err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	if res.MatchedCount == 0 {
		return apperr.ErrChatNotFound
	}
	return nil
}

// UpdateMessageText rewrites one embedded message in place via the
// positional operator.
func (s *ChatsStore) UpdateMessageText(ctx context.Context, chatID, messageID, text string, at time.Time) error {
	filter := bson.M{"_id": chatID, "messages.id": messageID}
	update := bson.D{{Key: "$set", Value: bson.D{
		{Key: "messages.$.text", Value: text},
		{Key: "messages.$.edited", Value: true},
		{Key: "messages.$.timestamp", Value: at},
		{Key: "updated_at", Value: at},
	}}}

	res, err := s.coll.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("update message: %w", err)
	}
	if res.MatchedCount > 0 {
		return nil
	}
	return s.messageMiss(ctx, chatID)
}

// messageMiss tells a missing chat apart from a missing message after a
// filtered write matched nothing.
func (s *ChatsStore) messageMiss(ctx context.Context, chatID string) error {
	n, err := s.coll.CountDocuments(ctx, bson.M{"_id": chatID})
	if err != nil {
		return fmt.Errorf("count chat: %w", err)
	}
	if n == 0 {
		return apperr.ErrChatNotFound
	}
	return apperr.ErrMessageNotFound
}

// PullMessage removes one embedded message and returns the chat as it is
// after the removal. Messages pushed concurrently are left untouched.
func (s *ChatsStore) PullMessage(ctx context.Context, chatID, messageID string, at time.Time) (*Chat, error) {
	filter := bson.M{"_id": chatID, "messages.id": messageID}
	update := bson.D{
		{Key: "$pull", Value: bson.D{{Key: "messages", Value: bson.D{{Key: "id", Value: messageID}}}}},
		{Key: "$set", Value: bson.D{{Key: "updated_at", Value: at}}},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var chat Chat
	err := s.coll.FindOneAndUpdate(ctx, filter, update, opts).Decode(&chat)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, s.messageMiss(ctx, chatID)
	}
	if err != nil {
		return nil, fmt.Errorf("pull message: %w", err)
	}
	return &chat, nil
}

// SetPreview writes the preview fields only while lastID is still the
// newest message ("" for an empty chat). It reports whether the write
// landed; a miss means a newer write already owns the preview.
func (s *ChatsStore) SetPreview(ctx context.Context, chatID, lastID, preview string, at time.Time) (bool, error) {
	filter := bson.M{"_id": chatID}
	if lastID == "" {
		filter["messages"] = bson.M{"$size": 0}
	} else {
		filter["$expr"] = bson.M{"$eq": bson.A{bson.M{"$arrayElemAt": bson.A{"$messages.id", -1}}, lastID}}
	}
	update := bson.D{{Key: "$set", Value: bson.D{
		{Key: "last_message_preview", Value: preview},
		{Key: "last_message_at", Value: at},
	}}}

	res, err := s.coll.UpdateOne(ctx, filter, update)
	if err != nil {
		return false, fmt.Errorf("set preview: %w", err)
	}
	return res.MatchedCount > 0, nil
}

// ResetUnread sets one user's unread counter to zero.
func (s *ChatsStore) ResetUnread(ctx context.Context, chatID, userID string) error {
	field, err := unreadField(userID)
	if err != nil {
		return err
	}

	res, err := s.coll.UpdateOne(ctx, bson.M{"_id": chatID}, bson.D{{Key: "$set", Value: bson.D{{Key: field, Value: 0}}}})
	if err != nil {
		return fmt.Errorf("reset unread: %w", err)
	}
	if res.MatchedCount == 0 {
		return apperr.ErrChatNotFound
	}
	return nil
}

// DeleteChat removes the chat document and with it every message.
func (s *ChatsStore) DeleteChat(ctx context.Context, chatID string) error {
	res, err := s.coll.DeleteOne(ctx, bson.M{"_id": chatID})
	if err != nil {
		return fmt.Errorf("delete chat: %w", err)
	}
	if res.DeletedCount == 0 {
		return apperr.ErrChatNotFound
	}
	return nil
}

// unreadField builds the dotted path for a user's counter; ids are used as
// map keys so they must not contain path syntax.
func unreadField(userID string) (string, error) {
	if userID == "" || strings.ContainsAny(userID, ".$") {
		return "", fmt.Errorf("invalid user id %q for unread counter", userID)
	}
	return "unread_count." + userID, nil
}
