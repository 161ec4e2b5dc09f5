package console

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

const (
	roleUser    = "user"
	roleBot     = "bot"
	roleDeleted = "deleted"
	roleError   = "error"
)

// entry is one line of console history.
type entry struct {
	role    string
	id      string
	content string
}

// theme groups reusable styles for console regions.
type theme struct {
	header     lipgloss.Style
	divider    lipgloss.Style
	userBox    lipgloss.Style
	userTitle  lipgloss.Style
	botBox     lipgloss.Style
	botTitle   lipgloss.Style
	errorBox   lipgloss.Style
	errorTitle lipgloss.Style
	status     lipgloss.Style
	statusBusy lipgloss.Style
	hint       lipgloss.Style
	input      lipgloss.Style
	viewport   lipgloss.Style
}

func newTheme(r *lipgloss.Renderer) theme {
	return theme{
		header: r.NewStyle().
			Bold(true).
			Padding(0, 1).
			Foreground(lipgloss.Color("230")).
			Background(lipgloss.Color("24")),
		divider: r.NewStyle().
			Foreground(lipgloss.Color("31")),
		userBox: r.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("214")).
			Padding(0, 1),
		userTitle: r.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("16")).
			Background(lipgloss.Color("214")).
			Padding(0, 1),
		botBox: r.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("39")).
			Padding(0, 1),
		botTitle: r.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("16")).
			Background(lipgloss.Color("39")).
			Padding(0, 1),
		errorBox: r.NewStyle().
			Border(lipgloss.DoubleBorder()).
			BorderForeground(lipgloss.Color("203")).
			Foreground(lipgloss.Color("203")).
			Padding(0, 1),
		errorTitle: r.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("231")).
			Background(lipgloss.Color("160")).
			Padding(0, 1),
		status: r.NewStyle().
			Foreground(lipgloss.Color("250")).
			Bold(true),
		statusBusy: r.NewStyle().
			Foreground(lipgloss.Color("222")).
			Bold(true),
		hint: r.NewStyle().
			Foreground(lipgloss.Color("244")),
		input: r.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("31")).
			Padding(0, 1),
		viewport: r.NewStyle().
			Border(lipgloss.ThickBorder()).
			BorderForeground(lipgloss.Color("31")).
			Padding(0, 1),
	}
}

// render draws one entry. A width of zero lets boxes size to their content.
func (t theme) render(e entry, width int) string {
	box := func(s lipgloss.Style) lipgloss.Style {
		if width > 0 {
			return s.Width(width)
		}
		return s
	}

	content := strings.TrimSpace(e.content)
	switch e.role {
	case roleUser:
		return lipgloss.JoinVertical(lipgloss.Left,
			t.userTitle.Render("you"),
			box(t.userBox).Render(content),
		)
	case roleBot:
		return lipgloss.JoinVertical(lipgloss.Left,
			t.botTitle.Render("relaybot #"+e.id),
			box(t.botBox).Render(content),
		)
	case roleDeleted:
		return t.hint.Render("message #" + e.id + " deleted")
	default:
		return lipgloss.JoinVertical(lipgloss.Left,
			t.errorTitle.Render("error"),
			box(t.errorBox).Render(content),
		)
	}
}
