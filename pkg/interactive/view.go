package interactive

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("14"))
	cursorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("13"))
	selectedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	dimStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	warningStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	helpStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

func (m Model) View() string {
	switch m.phase {
	case PhaseSubmitted, PhaseCancelled:
		return ""
	case PhaseConfirming:
		return m.viewConfirming()
	default:
		return m.viewList()
	}
}

func (m Model) viewList() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render(fmt.Sprintf("Select roles to %s", m.mode.verb())))
	b.WriteString("\n\n")

	if m.phase == PhaseFiltering || m.filter.Value() != "" {
		b.WriteString(m.filter.View())
		b.WriteString("\n\n")
	}

	visible := m.visible()
	if len(visible) == 0 {
		b.WriteString(dimStyle.Render("  no assignments match"))
		b.WriteString("\n")
	}

	for row, idx := range visible {
		a := m.assignments[idx]

		cursor := "  "
		if row == m.cursor && m.phase == PhaseBrowsing {
			cursor = cursorStyle.Render("> ")
		}

		check := "[ ]"
		line := fmt.Sprintf("%s %-40s %s", check, a.Role, a.Display())
		if _, ok := m.selected[a.Key()]; ok {
			line = selectedStyle.Render(fmt.Sprintf("[x] %-40s %s", a.Role, a.Display()))
		}

		b.WriteString(cursor)
		b.WriteString(line)
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(helpStyle.Render(fmt.Sprintf(
		"%d selected  ·  space select  ·  / filter  ·  enter confirm  ·  q quit",
		len(m.selected))))
	b.WriteString("\n")
	return b.String()
}

func (m Model) viewConfirming() string {
	var b strings.Builder

	picked := m.selectedAssignments()
	b.WriteString(titleStyle.Render(fmt.Sprintf("Confirm: %s %d role(s)", m.mode.verb(), len(picked))))
	b.WriteString("\n\n")

	for _, a := range picked {
		b.WriteString(fmt.Sprintf("  %-40s %s\n", a.Role, a.Display()))
	}
	if len(picked) == 0 {
		b.WriteString(dimStyle.Render("  nothing selected; confirming is a no-op"))
		b.WriteString("\n")
	}

	if m.mode == ModeActivate {
		b.WriteString("\n")
		b.WriteString(m.justification.View())
		b.WriteString("\n")
		b.WriteString(m.duration.View())
		b.WriteString("\n")
	}

	if m.warning != "" {
		b.WriteString("\n")
		b.WriteString(warningStyle.Render("! " + m.warning))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(helpStyle.Render("enter submit  ·  tab switch field  ·  esc back"))
	b.WriteString("\n")
	return b.String()
}
