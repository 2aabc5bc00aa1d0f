package data

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/PaulBabatuyi/monochrome-chat/internal/apperr"
	"github.com/PaulBabatuyi/monochrome-chat/internal/normalize"
)

func newPairChat(id string, at time.Time) *Chat {
	a := Participant{ID: "ua", Name: "A", Email: "a@example.com"}
	b := Participant{ID: "ub", Name: "B", Email: "b@example.com"}
	return &Chat{
		ID:                 id,
		Participants:       []Participant{a, b},
		ParticipantEmails:  normalize.Emails(a.Email, b.Email),
		PairKey:            normalize.PairKey(a.Email, b.Email),
		Name:               "A & B",
		LastMessagePreview: "Chat started",
		LastMessageAt:      at,
		CreatedAt:          at,
		UpdatedAt:          at,
	}
}

func TestChatsInsertAndDuplicatePair(t *testing.T) {
	c := setupDB(t)
	chats := NewChatsStore(c.ChatsCollection())
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	if err := chats.InsertChat(ctx, newPairChat("c1", now)); err != nil {
		t.Fatalf("InsertChat failed: %v", err)
	}
	if err := chats.InsertChat(ctx, newPairChat("c2", now)); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate for second pair chat, got %v", err)
	}

	got, err := chats.FindChatByPairKey(ctx, normalize.PairKey("b@example.com", "a@example.com"))
	if err != nil {
		t.Fatalf("FindChatByPairKey failed: %v", err)
	}
	if got.ID != "c1" {
		t.Fatalf("expected c1, got %s", got.ID)
	}
	if got.Messages == nil || got.UnreadCount == nil {
		t.Fatal("expected empty, non-nil messages and unread map")
	}
}

func TestChatsMessageLifecycle(t *testing.T) {
	c := setupDB(t)
	chats := NewChatsStore(c.ChatsCollection())
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	if err := chats.InsertChat(ctx, newPairChat("c1", now)); err != nil {
		t.Fatalf("InsertChat failed: %v", err)
	}

	m1 := Message{ID: "m1", Text: "hello", Timestamp: now.Add(time.Second), SenderEmail: "a@example.com", Status: StatusSent}
	if err := chats.AppendMessage(ctx, "c1", m1, "hello", []string{"ub"}); err != nil {
		t.Fatalf("AppendMessage failed: %v", err)
	}
	m2 := Message{ID: "m2", Text: "again", Timestamp: now.Add(2 * time.Second), SenderEmail: "a@example.com", Status: StatusSent}
	if err := chats.AppendMessage(ctx, "c1", m2, "again", []string{"ub"}); err != nil {
		t.Fatalf("AppendMessage failed: %v", err)
	}

	got, err := chats.GetChat(ctx, "c1")
	if err != nil {
		t.Fatalf("GetChat failed: %v", err)
	}
	if len(got.Messages) != 2 || got.Unread("ub") != 2 || got.Unread("ua") != 0 {
		t.Fatalf("unexpected state: %d messages, unread ub=%d ua=%d", len(got.Messages), got.Unread("ub"), got.Unread("ua"))
	}
	if !got.UpdatedAt.Equal(m2.Timestamp) || got.LastMessagePreview != "again" {
		t.Fatalf("preview not refreshed: %q at %v", got.LastMessagePreview, got.UpdatedAt)
	}

	editAt := now.Add(3 * time.Second)
	if err := chats.UpdateMessageText(ctx, "c1", "m1", "hello!", editAt); err != nil {
		t.Fatalf("UpdateMessageText failed: %v", err)
	}
	if err := chats.UpdateMessageText(ctx, "c1", "missing", "x", editAt); !errors.Is(err, apperr.ErrMessageNotFound) {
		t.Fatalf("expected ErrMessageNotFound, got %v", err)
	}
	if err := chats.UpdateMessageText(ctx, "nope", "m1", "x", editAt); !errors.Is(err, apperr.ErrChatNotFound) {
		t.Fatalf("expected ErrChatNotFound, got %v", err)
	}

	got, _ = chats.GetChat(ctx, "c1")
	if got.Messages[0].Text != "hello!" || !got.Messages[0].Edited {
		t.Fatalf("edit not applied: %+v", got.Messages[0])
	}

	if err := chats.ResetUnread(ctx, "c1", "ub"); err != nil {
		t.Fatalf("ResetUnread failed: %v", err)
	}

	pulled, err := chats.PullMessage(ctx, "c1", "m2", editAt)
	if err != nil {
		t.Fatalf("PullMessage failed: %v", err)
	}
	if len(pulled.Messages) != 1 || pulled.Messages[0].ID != "m1" || !pulled.UpdatedAt.Equal(editAt) {
		t.Fatalf("pull returned stale document: %+v", pulled)
	}
	if _, err := chats.PullMessage(ctx, "c1", "m2", editAt); !errors.Is(err, apperr.ErrMessageNotFound) {
		t.Fatalf("expected ErrMessageNotFound, got %v", err)
	}
	if _, err := chats.PullMessage(ctx, "nope", "m1", editAt); !errors.Is(err, apperr.ErrChatNotFound) {
		t.Fatalf("expected ErrChatNotFound, got %v", err)
	}

	// the preview only lands while the named message is still the newest
	if ok, err := chats.SetPreview(ctx, "c1", "m2", "stale", editAt); err != nil || ok {
		t.Fatalf("SetPreview with stale last id: ok=%v err=%v", ok, err)
	}
	if ok, err := chats.SetPreview(ctx, "c1", "m1", "hello!", editAt); err != nil || !ok {
		t.Fatalf("SetPreview failed: ok=%v err=%v", ok, err)
	}

	if _, err := chats.PullMessage(ctx, "c1", "m1", editAt); err != nil {
		t.Fatalf("PullMessage failed: %v", err)
	}
	if ok, err := chats.SetPreview(ctx, "c1", "", "Chat cleared", editAt); err != nil || !ok {
		t.Fatalf("SetPreview on empty chat: ok=%v err=%v", ok, err)
	}

	got, _ = chats.GetChat(ctx, "c1")
	if len(got.Messages) != 0 || got.Unread("ub") != 0 || got.LastMessagePreview != "Chat cleared" {
		t.Fatalf("unexpected state after clear: %+v", got)
	}

	// an emptied chat must still accept pushes
	if err := chats.AppendMessage(ctx, "c1", m1, "hello", nil); err != nil {
		t.Fatalf("AppendMessage after clear failed: %v", err)
	}

	if err := chats.DeleteChat(ctx, "c1"); err != nil {
		t.Fatalf("DeleteChat failed: %v", err)
	}
	if err := chats.DeleteChat(ctx, "c1"); !errors.Is(err, apperr.ErrChatNotFound) {
		t.Fatalf("expected ErrChatNotFound, got %v", err)
	}
}

func TestFindChatsByParticipantOrder(t *testing.T) {
	c := setupDB(t)
	chats := NewChatsStore(c.ChatsCollection())
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	older := newPairChat("old", now)
	newer := &Chat{
		ID:                "new",
		Participants:      []Participant{{ID: "ua", Email: "a@example.com"}, {ID: "uc", Email: "c@example.com"}},
		ParticipantEmails: normalize.Emails("a@example.com", "c@example.com"),
		PairKey:           normalize.PairKey("a@example.com", "c@example.com"),
		UpdatedAt:         now.Add(time.Minute),
	}
	for _, ch := range []*Chat{older, newer} {
		if err := chats.InsertChat(ctx, ch); err != nil {
			t.Fatalf("InsertChat(%s) failed: %v", ch.ID, err)
		}
	}

	list, err := chats.FindChatsByParticipant(ctx, "A@example.com")
	if err != nil {
		t.Fatalf("FindChatsByParticipant failed: %v", err)
	}
	if len(list) != 2 || list[0].ID != "new" || list[1].ID != "old" {
		t.Fatalf("unexpected order: %v", list)
	}

	list, _ = chats.FindChatsByParticipant(ctx, "c@example.com")
	if len(list) != 1 {
		t.Fatalf("expected 1 chat for c, got %d", len(list))
	}
}

func TestUnreadFieldRejectsPathSyntax(t *testing.T) {
	for _, id := range []string{"", "a.b", "$x"} {
		if _, err := unreadField(id); err == nil {
			t.Fatalf("expected error for %q", id)
		}
	}
	f, err := unreadField("uid-1")
	if err != nil || f != "unread_count.uid-1" {
		t.Fatalf("unexpected field %q err=%v", f, err)
	}
}
