package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/PaulBabatuyi/monochrome-chat/internal/data"
	"github.com/PaulBabatuyi/monochrome-chat/internal/normalize"
)

const (
	headerHeight   = 2
	composerHeight = 2
)

// chatView is the message pane: header, messages and composer.
type chatView struct {
	viewport viewport.Model
	composer textinput.Model

	chatID    string
	count     int    // messages rendered last time
	cursorID  string // highlighted own message, "" for none
	editingID string // message being edited in the composer
	draft     string // composer text saved while editing
}

func newChatView() chatView {
	composer := textinput.New()
	composer.Placeholder = "Type a message..."
	composer.CharLimit = 2000
	composer.Prompt = "> "
	return chatView{viewport: viewport.New(40, 10), composer: composer}
}

func (v *chatView) resize(width, height int) {
	v.viewport.Width = width
	v.viewport.Height = max(height-headerHeight-composerHeight, 1)
	v.composer.Width = max(width-4, 1)
}

// sync re-renders the messages of chat and follows new ones.
func (v *chatView) sync(chat *data.Chat, me *data.User, loading bool) {
	if chat == nil {
		v.chatID, v.count, v.cursorID = "", 0, ""
		v.stopEditing()
		v.viewport.SetContent(renderEmpty(loading))
		return
	}
	if chat.ID != v.chatID {
		v.chatID, v.count, v.cursorID = chat.ID, -1, ""
		v.stopEditing()
	}
	// the highlight follows the message, not its position
	cursor := chat.MessageIndex(v.cursorID)
	if cursor < 0 {
		v.cursorID = ""
	}
	if v.editingID != "" && chat.MessageIndex(v.editingID) < 0 {
		v.stopEditing()
	}

	v.viewport.SetContent(renderMessages(chat.Messages, me, v.viewport.Width, cursor))
	if len(chat.Messages) != v.count {
		v.count = len(chat.Messages)
		if v.cursorID == "" {
			v.viewport.GotoBottom()
		}
	}
}

func (v *chatView) stopEditing() {
	if v.editingID == "" {
		return
	}
	v.editingID = ""
	v.composer.SetValue(v.draft)
	v.draft = ""
}

// chatAction is what the user asked for in the chat pane.
type chatAction struct {
	send      string
	editID    string
	editText  string
	deleteID  string
	leave     bool
	confirmDl bool
}

func (v *chatView) update(msg tea.KeyMsg, chat *data.Chat, me *data.User) (act chatAction, cmd tea.Cmd) {
	switch msg.String() {
	case "esc":
		if v.editingID != "" {
			v.stopEditing()
			return act, nil
		}
		if v.cursorID != "" {
			v.cursorID = ""
			return act, nil
		}
		act.leave = true
		return act, nil
	case "pgup", "pgdown":
		v.viewport, cmd = v.viewport.Update(msg)
		return act, cmd
	}

	if chat == nil {
		return act, nil
	}

	switch msg.String() {
	case "ctrl+k":
		act.confirmDl = true
		return act, nil
	case "up":
		if v.editingID == "" && v.composer.Value() == "" {
			v.moveCursor(chat, me, -1)
			return act, nil
		}
	case "down":
		if v.editingID == "" && v.composer.Value() == "" {
			v.moveCursor(chat, me, 1)
			return act, nil
		}
	case "ctrl+e":
		if m := v.ownAtCursor(chat, me); m != nil {
			v.draft = v.composer.Value()
			v.editingID = m.ID
			v.composer.SetValue(m.Text)
			v.composer.CursorEnd()
		}
		return act, nil
	case "ctrl+d":
		if m := v.ownAtCursor(chat, me); m != nil {
			act.deleteID = m.ID
			v.cursorID = ""
		}
		return act, nil
	case "enter":
		return v.submit(chat), nil
	}

	v.composer, cmd = v.composer.Update(msg)
	return act, cmd
}

// submit turns the composer content into a send or an edit. An edit that
// leaves the text unchanged is dropped.
func (v *chatView) submit(chat *data.Chat) chatAction {
	var act chatAction
	text := v.composer.Value()

	if v.editingID != "" {
		id := v.editingID
		trimmed := strings.TrimSpace(text)
		if i := chat.MessageIndex(id); i >= 0 && trimmed != "" && trimmed != chat.Messages[i].Text {
			act.editID, act.editText = id, trimmed
		}
		v.stopEditing()
		v.cursorID = ""
		return act
	}

	if strings.TrimSpace(text) == "" {
		return act
	}
	act.send = text
	v.composer.SetValue("")
	return act
}

// moveCursor steps through the signed-in user's own messages.
func (v *chatView) moveCursor(chat *data.Chat, me *data.User, step int) {
	i := chat.MessageIndex(v.cursorID)
	if i < 0 {
		if step > 0 {
			return
		}
		i = len(chat.Messages)
	}
	for i += step; i >= 0 && i < len(chat.Messages); i += step {
		if isOwn(chat.Messages[i], me) {
			v.cursorID = chat.Messages[i].ID
			return
		}
	}
	if step > 0 {
		v.cursorID = ""
	}
}

func (v *chatView) ownAtCursor(chat *data.Chat, me *data.User) *data.Message {
	i := chat.MessageIndex(v.cursorID)
	if i < 0 {
		return nil
	}
	m := &chat.Messages[i]
	if !isOwn(*m, me) {
		return nil
	}
	return m
}

func isOwn(m data.Message, me *data.User) bool {
	return me != nil && m.SenderEmail == normalize.Email(me.Email)
}

func (v chatView) View(chat *data.Chat, me *data.User, width int, sending bool) string {
	header := renderHeader(chat, me, width)

	status := ""
	switch {
	case v.editingID != "":
		status = mutedStyle.Render("editing · enter: save · esc: cancel")
	case sending:
		status = mutedStyle.Render("sending...")
	case v.cursorID != "":
		status = mutedStyle.Render("ctrl+e: edit · ctrl+d: delete · esc: done")
	}
	composer := v.composer.View()
	if status != "" {
		composer = status + "\n" + composer
	}
	if chat == nil {
		composer = ""
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		header,
		v.viewport.View(),
		footerStyle.Width(width).Render(composer),
	)
}

func renderHeader(chat *data.Chat, me *data.User, width int) string {
	if chat == nil {
		return headerStyle.Width(width).Render(mutedStyle.Render("No chat selected"))
	}
	sub := "Online"
	if chat.IsGroup {
		sub = fmt.Sprintf("%d members", len(chat.Participants))
	}
	left := chat.DisplayNameFor(me.Email) + "  " + mutedStyle.Render(sub)
	right := mutedStyle.Render("ctrl+k delete chat")
	gap := max(width-2-lipgloss.Width(left)-lipgloss.Width(right), 1)
	return headerStyle.Width(width).Render(left + strings.Repeat(" ", gap) + right)
}

func renderEmpty(loading bool) string {
	if loading {
		return mutedStyle.Render("Loading messages...")
	}
	return "Select a chat to start messaging\n" +
		mutedStyle.Render("Or, start a new conversation from the sidebar.")
}

// renderMessages lays out msgs: own messages on the right with a status
// mark, others on the left under the sender's name.
func renderMessages(msgs []data.Message, me *data.User, width, cursor int) string {
	if len(msgs) == 0 {
		return "No messages yet"
	}
	bubbleWidth := max(width*7/10, 10)

	blocks := make([]string, 0, len(msgs))
	for i, m := range msgs {
		own := isOwn(m, me)

		meta := formatTime(m.Timestamp)
		if m.Edited {
			meta = "(edited) " + meta
		}
		meta = mutedStyle.Render(meta)
		if own {
			meta += " " + statusMark(m.Status)
		}

		style := otherBubbleStyle
		if own {
			style = ownBubbleStyle
		}
		if i == cursor {
			style = style.Inherit(cursorBubbleStyle)
		}
		text := lipgloss.NewStyle().MaxWidth(bubbleWidth).Width(min(lipgloss.Width(m.Text), bubbleWidth)).Render(m.Text)
		bubble := style.Render(text)

		if own {
			block := lipgloss.JoinVertical(lipgloss.Right, bubble, meta)
			blocks = append(blocks, lipgloss.PlaceHorizontal(width, lipgloss.Right, block))
			continue
		}
		name := m.SenderName
		if name == "" {
			name, _, _ = strings.Cut(m.SenderEmail, "@")
		}
		blocks = append(blocks, lipgloss.JoinVertical(lipgloss.Left,
			senderStyle.Render(name), bubble, meta))
	}
	return strings.Join(blocks, "\n")
}

// statusMark is the delivery mark under an own message; read is bold.
func statusMark(s data.MessageStatus) string {
	switch s {
	case data.StatusRead:
		return lipgloss.NewStyle().Bold(true).Render("✓✓")
	case data.StatusDelivered:
		return mutedStyle.Render("✓✓")
	case data.StatusSent:
		return mutedStyle.Render("✓")
	default:
		return mutedStyle.Render("…")
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "--:--"
	}
	return t.Local().Format("15:04")
}
