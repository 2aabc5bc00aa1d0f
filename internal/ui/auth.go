package ui

import (
	"context"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/PaulBabatuyi/monochrome-chat/internal/identity"
	"github.com/PaulBabatuyi/monochrome-chat/internal/session"
)

// Authenticator signs users in and up. identity.Client implements it.
type Authenticator interface {
	SignIn(ctx context.Context, email, password string) error
	SignUp(ctx context.Context, creds identity.Credentials) error
}

const minPasswordLen = 6

// authForm is the login and sign-up screen.
type authForm struct {
	view    session.View
	inputs  []textinput.Model // email, password, then name on sign-up
	focused int
	busy    bool
	err     string
}

func newAuthForm(view session.View) authForm {
	email := textinput.New()
	email.Placeholder = "you@example.com"
	email.CharLimit = 128
	email.Width = 32
	email.Focus()

	password := textinput.New()
	password.Placeholder = "Password"
	password.EchoMode = textinput.EchoPassword
	password.CharLimit = 64
	password.Width = 32

	inputs := []textinput.Model{email, password}
	if view == session.ViewSignup {
		name := textinput.New()
		name.Placeholder = "Display name (optional)"
		name.CharLimit = 64
		name.Width = 32
		inputs = append(inputs, name)
	}
	return authForm{view: view, inputs: inputs}
}

func (f *authForm) focus(i int) {
	n := len(f.inputs)
	f.focused = (i%n + n) % n
	for j := range f.inputs {
		if j == f.focused {
			f.inputs[j].Focus()
		} else {
			f.inputs[j].Blur()
		}
	}
}

// update handles a key. switchTo is set when the user asks for the other
// auth view.
func (f *authForm) update(msg tea.KeyMsg, auth Authenticator, timeout time.Duration) (cmd tea.Cmd, switchTo session.View) {
	if f.busy {
		return nil, ""
	}
	switch msg.String() {
	case "ctrl+n":
		if f.view == session.ViewLogin {
			return nil, session.ViewSignup
		}
		return nil, session.ViewLogin
	case "tab", "down":
		f.focus(f.focused + 1)
		return nil, ""
	case "shift+tab", "up":
		f.focus(f.focused - 1)
		return nil, ""
	case "enter":
		if f.focused < len(f.inputs)-1 {
			f.focus(f.focused + 1)
			return nil, ""
		}
		return f.submit(auth, timeout), ""
	}

	var c tea.Cmd
	f.inputs[f.focused], c = f.inputs[f.focused].Update(msg)
	return c, ""
}

func (f *authForm) submit(auth Authenticator, timeout time.Duration) tea.Cmd {
	email := strings.TrimSpace(f.inputs[0].Value())
	password := f.inputs[1].Value()
	if email == "" || password == "" {
		f.err = "Email and password are required."
		return nil
	}
	if f.view == session.ViewSignup && len(password) < minPasswordLen {
		f.err = "Password must be at least 6 characters."
		return nil
	}

	f.err = ""
	f.busy = true
	creds := identity.Credentials{Email: email, Password: password}
	if f.view == session.ViewSignup {
		creds.DisplayName = strings.TrimSpace(f.inputs[2].Value())
	}
	signup := f.view == session.ViewSignup

	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if signup {
			return authResultMsg{err: auth.SignUp(ctx, creds)}
		}
		return authResultMsg{err: auth.SignIn(ctx, creds.Email, creds.Password)}
	}
}

func (f authForm) View(width, height int) string {
	title, hint := "Login", "ctrl+n: create an account"
	if f.view == session.ViewSignup {
		title, hint = "Sign Up", "ctrl+n: back to login"
	}
	labels := []string{"Email", "Password", "Name"}

	var b strings.Builder
	b.WriteString(titleStyle.Render("MonochromeChat · "+title) + "\n\n")
	for i, in := range f.inputs {
		b.WriteString(mutedStyle.Render(labels[i]) + "\n")
		b.WriteString(in.View() + "\n\n")
	}
	switch {
	case f.busy:
		b.WriteString(mutedStyle.Render("Please wait...") + "\n")
	case f.err != "":
		b.WriteString(errorStyle.Render(f.err) + "\n")
	}
	b.WriteString(mutedStyle.Render("enter: submit · tab: next field · " + hint))

	return lipgloss.Place(width, height, lipgloss.Center, lipgloss.Center, boxStyle.Render(b.String()))
}
