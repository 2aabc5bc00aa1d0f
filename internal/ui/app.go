// Package ui is the terminal front end: a bubbletea program over a
// state.Container.
package ui

import (
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/PaulBabatuyi/monochrome-chat/internal/apperr"
	"github.com/PaulBabatuyi/monochrome-chat/internal/logger"
	"github.com/PaulBabatuyi/monochrome-chat/internal/session"
	"github.com/PaulBabatuyi/monochrome-chat/internal/state"
)

const sidebarWidth = 34

type focus int

const (
	focusSidebar focus = iota
	focusChat
)

// Model is the root bubbletea model.
type Model struct {
	c       *state.Container
	auth    Authenticator
	log     logger.Logger
	timeout time.Duration

	view   session.View
	width  int
	height int
	focus  focus

	form    authForm
	sidebar sidebar
	chat    chatView
	dialog  dialog
	notices noticeList
	spinner spinner.Model
}

// New returns the root model. timeout bounds sign-in and sign-up calls.
func New(c *state.Container, auth Authenticator, log logger.Logger, timeout time.Duration) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return Model{
		c:       c,
		auth:    auth,
		log:     log,
		timeout: timeout,
		view:    session.ViewMain,
		width:   100,
		height:  30,
		form:    newAuthForm(session.ViewLogin),
		sidebar: newSidebar(),
		chat:    newChatView(),
		spinner: sp,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(waitEvent(m.c), m.spinner.Tick, textinput.Blink)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.c.Resize(msg.Width)

	case eventMsg:
		cmds = append(cmds, waitEvent(m.c), runOp(m.c.Apply(msg.ev)))

	case resultMsg:
		cmds = append(cmds, runOp(m.c.Complete(msg.r)))

	case authResultMsg:
		m.form.busy = false
		if msg.err != nil {
			m.log.Warn("authentication failed", "error", msg.err)
			m.form.err = apperr.UserMessage(msg.err)
		}

	case noticeExpiredMsg:
		m.notices.expire(msg.id)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		cmds = append(cmds, m.handleKey(msg))
	}

	m.route()
	m.layout()
	cmds = append(cmds, m.notices.push(m.c.TakeNotices()))
	return m, tea.Batch(cmds...)
}

// route moves between the auth views and main as the identity changes.
func (m *Model) route() {
	resolving := m.c.Phase() == state.PhaseAuthPending
	next, ok := session.Route(m.view, resolving, m.c.User() != nil)
	if !ok {
		return
	}
	m.view = next
	if next.IsAuthView() {
		m.form = newAuthForm(next)
		return
	}
	m.focus = focusSidebar
	m.sidebar = newSidebar()
	m.dialog.close()
}

func (m *Model) handleKey(msg tea.KeyMsg) tea.Cmd {
	if m.view.IsAuthView() {
		cmd, switchTo := m.form.update(msg, m.auth, m.timeout)
		if switchTo != "" {
			m.view = switchTo
			m.form = newAuthForm(switchTo)
		}
		return cmd
	}
	if !m.c.Ready() && m.c.Phase() != state.PhaseDataLoading {
		return nil
	}

	if m.dialog.active() {
		act, _, cmd := m.dialog.update(msg, m.c.Contacts())
		switch {
		case act.addEmail != "":
			return runOp(m.c.StartChat(act.addEmail))
		case act.pick != nil:
			return runOp(m.c.StartChatWith(act.pick))
		case act.deleteChat != "":
			return runOp(m.c.DeleteChat(act.deleteChat))
		}
		return cmd
	}

	switch msg.String() {
	case "ctrl+n":
		return m.dialog.open(dialogAddContact)
	case "ctrl+o":
		return m.dialog.open(dialogPickContact)
	case "ctrl+x":
		return runOp(m.c.SignOut())
	case "ctrl+r":
		return runOp(m.c.Resubscribe())
	case "tab":
		if m.c.Layout() == state.Desktop && !m.sidebar.searching {
			m.toggleFocus()
			return nil
		}
	}

	if m.focus == focusSidebar && m.sidebarVisible() {
		chats := m.sidebar.visible(m.c.Chats(), m.me())
		open, cmd := m.sidebar.update(msg, chats)
		if open == "" {
			return cmd
		}
		m.setFocus(focusChat)
		return runOp(m.c.SelectChat(open))
	}

	act, cmd := m.chat.update(msg, m.c.SelectedChat(), m.c.User())
	switch {
	case act.leave:
		m.c.Back()
		m.setFocus(focusSidebar)
	case act.confirmDl:
		m.dialog.open(dialogDeleteChat)
		m.dialog.chatID = m.c.SelectedID()
	case act.send != "":
		return runOp(m.c.SendMessage(act.send))
	case act.editID != "":
		return runOp(m.c.EditMessage(act.editID, act.editText))
	case act.deleteID != "":
		return runOp(m.c.DeleteMessage(act.deleteID))
	}
	return cmd
}

func (m *Model) me() string {
	if u := m.c.User(); u != nil {
		return u.Email
	}
	return ""
}

func (m *Model) toggleFocus() {
	if m.focus == focusSidebar {
		m.setFocus(focusChat)
	} else {
		m.setFocus(focusSidebar)
	}
}

func (m *Model) setFocus(f focus) {
	m.focus = f
	if f == focusChat {
		m.chat.composer.Focus()
	} else {
		m.chat.composer.Blur()
	}
}

func (m *Model) sidebarVisible() bool {
	return m.c.Layout() == state.Desktop || m.c.Pane() == state.PaneList
}

func (m *Model) chatVisible() bool {
	return m.c.Layout() == state.Desktop || m.c.Pane() == state.PaneChat
}

// layout sizes the panes and pushes the selected chat into the chat view.
func (m *Model) layout() {
	if m.view != session.ViewMain {
		return
	}
	if m.c.Layout() == state.Mobile {
		// the visible pane takes the keys
		if m.c.Pane() == state.PaneChat {
			m.setFocus(focusChat)
		} else {
			m.setFocus(focusSidebar)
		}
	}

	chatWidth := m.width
	if m.c.Layout() == state.Desktop {
		chatWidth = max(m.width-sidebarWidth-1, 20)
	}
	m.chat.resize(chatWidth, m.mainHeight())
	m.sidebar.clamp(len(m.sidebar.visible(m.c.Chats(), m.me())))

	loading := m.c.LoadingChats() && m.c.SelectedID() != ""
	if user := m.c.User(); user != nil {
		m.chat.sync(m.c.SelectedChat(), user, loading)
	}
}

func (m *Model) mainHeight() int {
	return max(m.height-m.notices.height(m.width), 3)
}

func (m Model) View() string {
	var body string
	switch {
	case m.view.IsAuthView():
		body = m.form.View(m.width, m.mainHeight())
	case m.c.Phase() == state.PhaseAuthPending:
		body = overlay(m.spinner.View()+" Loading...", m.width, m.mainHeight())
	case m.c.Phase() == state.PhaseDataLoading && m.c.LoadingChats():
		body = overlay(m.spinner.View()+" Loading chats...", m.width, m.mainHeight())
	default:
		body = m.mainView()
	}

	if n := m.notices.view(m.width); n != "" {
		return lipgloss.JoinVertical(lipgloss.Left, body, n)
	}
	return body
}

func (m Model) mainView() string {
	height := m.mainHeight()
	if m.dialog.active() {
		return overlay(m.dialog.View(m.c.Contacts(), m.c.CreatingChat()), m.width, height)
	}

	user := m.c.User()
	chats := m.sidebar.visible(m.c.Chats(), m.me())
	side := func(width int) string {
		return m.sidebar.View(chats, user, m.c.SelectedID(), width, height, m.c.LoadingChats(), m.c.FindingContact())
	}
	chat := func(width int) string {
		return m.chat.View(m.c.SelectedChat(), user, width, m.c.Sending())
	}

	if m.c.Layout() == state.Mobile {
		if m.chatVisible() {
			return chat(m.width)
		}
		return side(m.width)
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, side(sidebarWidth), chat(max(m.width-sidebarWidth-1, 20)))
}
