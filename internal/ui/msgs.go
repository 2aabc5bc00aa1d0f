package ui

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/PaulBabatuyi/monochrome-chat/internal/state"
)

const noticeTTL = 4 * time.Second

type eventMsg struct{ ev state.Event }

type resultMsg struct{ r state.Result }

type authResultMsg struct{ err error }

type noticeExpiredMsg struct{ id int }

// waitEvent blocks until the container has an event. It is re-issued after
// every event.
func waitEvent(c *state.Container) tea.Cmd {
	return func() tea.Msg {
		select {
		case ev := <-c.Events():
			return eventMsg{ev: ev}
		case <-c.Done():
			return nil
		}
	}
}

// runOp runs a container operation off the event loop.
func runOp(op state.Op) tea.Cmd {
	if op == nil {
		return nil
	}
	return func() tea.Msg {
		return resultMsg{r: op(context.Background())}
	}
}

func expireNotice(id int) tea.Cmd {
	return tea.Tick(noticeTTL, func(time.Time) tea.Msg {
		return noticeExpiredMsg{id: id}
	})
}
