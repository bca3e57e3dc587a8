package tui

import "github.com/charmbracelet/lipgloss"

// Palette.
var (
	colorAccent  = lipgloss.Color("#5865f2") // Discord blurple
	colorLive    = lipgloss.Color("#22c55e")
	colorPending = lipgloss.Color("#d97706")
	colorOff     = lipgloss.Color("#6b7280")
	colorError   = lipgloss.Color("#dc2626")
	colorMuted   = lipgloss.Color("#9ca3af")
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorAccent).
			MarginBottom(1)

	inputBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorMuted).
			Padding(0, 1)

	badgeStyle = lipgloss.NewStyle().
			Bold(true).
			Padding(0, 1).
			Foreground(lipgloss.Color("#ffffff"))

	playingStyle = lipgloss.NewStyle().Italic(true)
	errorStyle   = lipgloss.NewStyle().Foreground(colorError)
	noticeStyle  = lipgloss.NewStyle().Foreground(colorPending)
	mutedStyle   = lipgloss.NewStyle().Foreground(colorMuted)
	appStyle     = lipgloss.NewStyle().Padding(1, 2)
)
