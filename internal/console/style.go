package console

import (
	"hash/fnv"

	"github.com/charmbracelet/lipgloss"

	"mastershell/internal/session"
)

var tagPalette = []lipgloss.Color{
	lipgloss.Color("3"),  // yellow
	lipgloss.Color("2"),  // green
	lipgloss.Color("5"),  // magenta
	lipgloss.Color("4"),  // blue
	lipgloss.Color("12"), // bright blue
	lipgloss.Color("10"), // bright green
	lipgloss.Color("13"), // bright magenta
	lipgloss.Color("11"), // bright yellow
}

// Formatter renders output lines for the console: per-session tag colors,
// red stderr tags, cyan system notices.
type Formatter struct {
	noColor     bool
	tagStyles   []lipgloss.Style
	stderrStyle lipgloss.Style
	systemStyle lipgloss.Style
	errorStyle  lipgloss.Style
	promptStyle lipgloss.Style
}

func NewFormatter(noColor bool) *Formatter {
	f := &Formatter{noColor: noColor}
	if noColor {
		return f
	}
	for _, color := range tagPalette {
		f.tagStyles = append(f.tagStyles, lipgloss.NewStyle().Foreground(color))
	}
	f.stderrStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	f.systemStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	f.errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	f.promptStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	return f
}

func (f *Formatter) Format(line session.OutputLine) string {
	tag := "[" + line.Session + "]"
	if f.noColor {
		return tag + " " + line.Text
	}
	switch line.Stream {
	case session.StreamSystem:
		return f.systemStyle.Render(tag + " " + line.Text)
	case session.StreamStderr:
		return f.stderrStyle.Render(tag) + " " + line.Text
	default:
		return f.tagStyle(line.Session).Render(tag) + " " + line.Text
	}
}

// Error renders an operator-facing error message.
func (f *Formatter) Error(message string) string {
	if f.noColor {
		return message
	}
	return f.errorStyle.Render(message)
}

// Prompt renders the console prompt.
func (f *Formatter) Prompt(prompt string) string {
	if f.noColor {
		return prompt
	}
	return f.promptStyle.Render(prompt)
}

// tagStyle picks a deterministic palette entry per session name, so a
// session keeps its color across the whole run.
func (f *Formatter) tagStyle(name string) lipgloss.Style {
	hash := fnv.New32a()
	_, _ = hash.Write([]byte(name))
	return f.tagStyles[int(hash.Sum32())%len(f.tagStyles)]
}
