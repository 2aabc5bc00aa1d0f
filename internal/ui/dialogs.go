package ui

import (
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/PaulBabatuyi/monochrome-chat/internal/data"
)

type dialogKind int

const (
	dialogNone dialogKind = iota
	dialogAddContact
	dialogPickContact
	dialogDeleteChat
)

// dialog is the modal shown over the main view. Only one is open at a
// time.
type dialog struct {
	kind   dialogKind
	email  textinput.Model
	cursor int
	chatID string // dialogDeleteChat
}

func newEmailInput() textinput.Model {
	in := textinput.New()
	in.Placeholder = "friend@example.com"
	in.CharLimit = 128
	in.Width = 32
	return in
}

func (d *dialog) open(kind dialogKind) tea.Cmd {
	d.kind, d.cursor, d.chatID = kind, 0, ""
	if kind == dialogAddContact {
		d.email = newEmailInput()
		return d.email.Focus()
	}
	return nil
}

func (d *dialog) close() { d.kind = dialogNone }

func (d dialog) active() bool { return d.kind != dialogNone }

// dialogAction is what the user confirmed in a dialog.
type dialogAction struct {
	addEmail   string
	pick       *data.User
	deleteChat string
}

func (d *dialog) update(msg tea.KeyMsg, contacts []*data.User) (act dialogAction, done bool, cmd tea.Cmd) {
	if msg.String() == "esc" {
		d.close()
		return act, true, nil
	}

	switch d.kind {
	case dialogAddContact:
		if msg.String() == "enter" {
			act.addEmail = d.email.Value()
			d.close()
			return act, true, nil
		}
		d.email, cmd = d.email.Update(msg)
	case dialogPickContact:
		switch msg.String() {
		case "up", "k":
			if d.cursor > 0 {
				d.cursor--
			}
		case "down", "j":
			if d.cursor < len(contacts)-1 {
				d.cursor++
			}
		case "enter":
			if d.cursor < len(contacts) {
				act.pick = contacts[d.cursor]
			}
			d.close()
			return act, true, nil
		}
	case dialogDeleteChat:
		switch msg.String() {
		case "y", "enter":
			act.deleteChat = d.chatID
			d.close()
			return act, true, nil
		case "n":
			d.close()
			return act, true, nil
		}
	}
	return act, false, cmd
}

func (d dialog) View(contacts []*data.User, creating bool) string {
	var b strings.Builder
	switch d.kind {
	case dialogAddContact:
		b.WriteString(titleStyle.Render("Add New Contact") + "\n\n")
		b.WriteString(mutedStyle.Render("Email Address") + "\n")
		b.WriteString(d.email.View() + "\n\n")
		b.WriteString(mutedStyle.Render("enter: find and add · esc: cancel"))
	case dialogPickContact:
		b.WriteString(titleStyle.Render("Start New Chat") + "\n\n")
		switch {
		case creating:
			b.WriteString(mutedStyle.Render("Starting chat...") + "\n")
		case len(contacts) == 0:
			b.WriteString("No new contacts available for chat.\n")
			b.WriteString(mutedStyle.Render("Add new contacts by their email address with ctrl+n.") + "\n")
		default:
			for i, u := range contacts {
				line := u.Name + mutedStyle.Render("  "+u.Email)
				if i == d.cursor {
					b.WriteString(selectedItemStyle.Render(line) + "\n")
				} else {
					b.WriteString(itemStyle.Render(line) + "\n")
				}
			}
		}
		b.WriteString("\n" + mutedStyle.Render("enter: start chat · esc: cancel"))
	case dialogDeleteChat:
		b.WriteString(titleStyle.Render("Are you sure?") + "\n\n")
		b.WriteString("This action cannot be undone. This will permanently delete the chat\nand all its messages.\n\n")
		b.WriteString(mutedStyle.Render("y: delete · n: cancel"))
	}
	return boxStyle.Render(b.String())
}

// overlay centers box in a width x height area.
func overlay(box string, width, height int) string {
	return lipgloss.Place(width, height, lipgloss.Center, lipgloss.Center, box)
}
