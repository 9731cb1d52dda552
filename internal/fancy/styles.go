package fancy

import (
	"github.com/charmbracelet/lipgloss"
)

// Layout styles.
var (
	RootStyle   = lipgloss.NewStyle().Foreground(ColorBlue).Bold(true)
	HeaderStyle = lipgloss.NewStyle().Foreground(ColorWhite).Bold(true)
	InfoStyle   = lipgloss.NewStyle().Foreground(ColorGray).Italic(true)
	BranchStyle = lipgloss.NewStyle().Foreground(ColorDarkGray)
)

func fg(c lipgloss.Color) func(string) string {
	style := lipgloss.NewStyle().Foreground(c)
	return func(s string) string { return style.Render(s) }
}

// Label renderers, one color per kind of user code object.
var (
	ActionText = fg(ColorOrange)
	HookText   = fg(ColorYellow)
	BotText    = fg(ColorMagenta)
	CountText  = fg(ColorCyan)
	ValidText  = fg(ColorGreen)
	ErrorText  = fg(ColorRed)
)

// PathText renders a file or module path.
func PathText(text string) string {
	return InfoStyle.Render(text)
}

// StatusText renders a run or task status: green when ok, red otherwise.
func StatusText(text string, ok bool) string {
	if ok {
		return ValidText(text)
	}
	return ErrorText(text)
}
