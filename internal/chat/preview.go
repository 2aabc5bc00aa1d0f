package chat

import (
	"time"
	"unicode/utf8"

	"github.com/PaulBabatuyi/monochrome-chat/internal/data"
)

const (
	previewLimit   = 30
	previewStarted = "Chat started"
	previewCleared = "Chat cleared"
)

// Preview returns the chat-list preview for text: its first 30 runes, with
// "..." appended when text is longer.
func Preview(text string) string {
	if utf8.RuneCountInString(text) <= previewLimit {
		return text
	}
	return string([]rune(text)[:previewLimit]) + "..."
}

// previewAfter derives the preview fields and the id of the message they
// describe ("" once the chat is empty) from the chat as it stands.
func previewAfter(chat *data.Chat, now time.Time) (preview string, at time.Time, lastID string) {
	last := chat.LastMessage()
	if last == nil {
		return previewCleared, now, ""
	}
	return Preview(last.Text), last.Timestamp, last.ID
}
