package ui

import (
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/PaulBabatuyi/monochrome-chat/internal/state"
)

const maxNotices = 3

type shownNotice struct {
	id int
	state.Notice
}

// noticeList holds the notices on screen, newest last.
type noticeList struct {
	items  []shownNotice
	nextID int
}

// push shows ns and returns the commands that expire them.
func (l *noticeList) push(ns []state.Notice) tea.Cmd {
	var cmds []tea.Cmd
	for _, n := range ns {
		l.nextID++
		l.items = append(l.items, shownNotice{id: l.nextID, Notice: n})
		cmds = append(cmds, expireNotice(l.nextID))
	}
	if len(l.items) > maxNotices {
		l.items = l.items[len(l.items)-maxNotices:]
	}
	return tea.Batch(cmds...)
}

func (l *noticeList) expire(id int) {
	for i, n := range l.items {
		if n.id == id {
			l.items = append(l.items[:i], l.items[i+1:]...)
			return
		}
	}
}

func (l *noticeList) view(width int) string {
	if len(l.items) == 0 {
		return ""
	}
	lines := make([]string, 0, len(l.items))
	for _, n := range l.items {
		style := noticeStyle
		if n.Error {
			style = errorNoticeStyle
		}
		text := n.Title
		if n.Body != "" {
			text += ": " + n.Body
		}
		lines = append(lines, style.Width(max(width-2, 10)).Render(text))
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func (l *noticeList) height(width int) int {
	v := l.view(width)
	if v == "" {
		return 0
	}
	return strings.Count(v, "\n") + 1
}
