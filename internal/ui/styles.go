package ui

import "github.com/charmbracelet/lipgloss"

// Monochrome palette.
var (
	fgColor     = lipgloss.AdaptiveColor{Light: "#111111", Dark: "#EEEEEE"}
	mutedColor  = lipgloss.AdaptiveColor{Light: "#777777", Dark: "#888888"}
	borderColor = lipgloss.AdaptiveColor{Light: "#BBBBBB", Dark: "#444444"}
	accentColor = lipgloss.AdaptiveColor{Light: "#000000", Dark: "#FFFFFF"}

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(accentColor).
			Padding(0, 1)

	mutedStyle = lipgloss.NewStyle().
			Foreground(mutedColor)

	errorStyle = lipgloss.NewStyle().
			Foreground(accentColor).
			Bold(true).
			Underline(true)

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(borderColor).
			Padding(1, 2)

	// Sidebar
	sidebarStyle = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder(), false, true, false, false).
			BorderForeground(borderColor)

	selectedItemStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(accentColor).
				Border(lipgloss.ThickBorder(), false, false, false, true).
				BorderForeground(accentColor).
				PaddingLeft(1)

	itemStyle = lipgloss.NewStyle().
			PaddingLeft(2)

	badgeStyle = lipgloss.NewStyle().
			Reverse(true).
			Bold(true).
			Padding(0, 1)

	// Chat
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Border(lipgloss.NormalBorder(), false, false, true, false).
			BorderForeground(borderColor).
			Padding(0, 1)

	footerStyle = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder(), true, false, false, false).
			BorderForeground(borderColor).
			Padding(0, 1)

	ownBubbleStyle = lipgloss.NewStyle().
			Reverse(true).
			Padding(0, 1)

	otherBubbleStyle = lipgloss.NewStyle().
				Foreground(fgColor).
				Border(lipgloss.RoundedBorder()).
				BorderForeground(borderColor).
				Padding(0, 1)

	cursorBubbleStyle = lipgloss.NewStyle().
				Bold(true).
				Underline(true)

	senderStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			Bold(true)

	noticeStyle = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder()).
			BorderForeground(borderColor).
			Padding(0, 1)

	errorNoticeStyle = noticeStyle.
				BorderForeground(accentColor).
				Bold(true)
)
