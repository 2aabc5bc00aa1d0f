package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/PaulBabatuyi/monochrome-chat/internal/data"
)

// sidebar is the chat list with its search box.
type sidebar struct {
	cursor    int
	search    textinput.Model
	searching bool
}

func newSidebar() sidebar {
	search := textinput.New()
	search.Placeholder = "Search chats..."
	search.CharLimit = 64
	search.Prompt = "/ "
	return sidebar{search: search}
}

// visible filters chats by the search text against the title shown to me.
func (s *sidebar) visible(chats []*data.Chat, me string) []*data.Chat {
	q := strings.ToLower(strings.TrimSpace(s.search.Value()))
	if q == "" {
		return chats
	}
	var out []*data.Chat
	for _, c := range chats {
		if strings.Contains(strings.ToLower(c.DisplayNameFor(me)), q) {
			out = append(out, c)
		}
	}
	return out
}

// update moves the cursor or edits the search. It returns the chat id to
// open when the user picks one.
func (s *sidebar) update(msg tea.KeyMsg, chats []*data.Chat) (open string, cmd tea.Cmd) {
	if s.searching {
		switch msg.String() {
		case "esc":
			s.searching = false
			s.search.Blur()
			s.search.SetValue("")
			return "", nil
		case "enter":
			s.searching = false
			s.search.Blur()
			s.cursor = 0
			return "", nil
		}
		s.search, cmd = s.search.Update(msg)
		s.cursor = 0
		return "", cmd
	}

	switch msg.String() {
	case "/":
		s.searching = true
		return "", s.search.Focus()
	case "up", "k":
		if s.cursor > 0 {
			s.cursor--
		}
	case "down", "j":
		if s.cursor < len(chats)-1 {
			s.cursor++
		}
	case "enter":
		if s.cursor >= 0 && s.cursor < len(chats) {
			return chats[s.cursor].ID, nil
		}
	}
	return "", nil
}

func (s *sidebar) clamp(n int) {
	if s.cursor >= n {
		s.cursor = n - 1
	}
	if s.cursor < 0 {
		s.cursor = 0
	}
}

// renderChatItem draws one list entry: title, unread badge and preview.
func renderChatItem(c *data.Chat, me *data.User, width int, selected, cursor bool) string {
	title := c.DisplayNameFor(me.Email)
	if title == "" {
		title = "(unnamed)"
	}
	marker := "  "
	if cursor {
		marker = "> "
	}

	badge := ""
	if n := c.Unread(me.ID); n > 0 {
		badge = badgeStyle.Render(fmt.Sprintf("%d", n))
	}
	inner := max(width-4, 8)
	head := truncate(marker+title, inner-lipgloss.Width(badge)-1)
	gap := max(inner-lipgloss.Width(head)-lipgloss.Width(badge), 1)
	line1 := head + strings.Repeat(" ", gap) + badge

	line2 := "  " + mutedStyle.Render(truncate(c.LastMessagePreview, inner-2))

	style := itemStyle
	if selected {
		style = selectedItemStyle
	}
	return style.Render(line1 + "\n" + line2)
}

func (s sidebar) View(chats []*data.Chat, me *data.User, selectedID string, width, height int, loading, finding bool) string {
	var b strings.Builder
	header := "Chats"
	if finding {
		header += mutedStyle.Render("  searching...")
	}
	b.WriteString(titleStyle.Render(header) + "\n")
	if s.searching || s.search.Value() != "" {
		b.WriteString(s.search.View() + "\n")
	}
	b.WriteString("\n")

	switch {
	case loading:
		b.WriteString(mutedStyle.Render("  Loading chats..."))
	case len(chats) == 0:
		b.WriteString(mutedStyle.Render("  No chats found."))
	default:
		items := make([]string, 0, len(chats))
		for i, c := range chats {
			items = append(items, renderChatItem(c, me, width, c.ID == selectedID, i == s.cursor))
		}
		b.WriteString(strings.Join(items, "\n"))
	}

	footer := mutedStyle.Render(truncate("ctrl+n contact · ctrl+o new chat · ctrl+x log out", width))
	body := lipgloss.NewStyle().Height(max(height-1, 1)).MaxHeight(max(height-1, 1)).Render(b.String())
	return sidebarStyle.Width(width).Render(body + "\n" + footer)
}

// truncate cuts s to width cells with an ellipsis.
func truncate(s string, width int) string {
	if width <= 0 {
		return ""
	}
	if lipgloss.Width(s) <= width {
		return s
	}
	r := []rune(s)
	for len(r) > 0 && lipgloss.Width(string(r))+1 > width {
		r = r[:len(r)-1]
	}
	return string(r) + "…"
}
