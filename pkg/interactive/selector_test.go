package interactive

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/praetorian-inc/pimctl/pkg/pim"
)

func testAssignments() []pim.Assignment {
	return []pim.Assignment{
		{Role: "Owner", Scope: "/subscriptions/a", ScopeName: "Production"},
		{Role: "Contributor", Scope: "/subscriptions/a", ScopeName: "Production"},
		{Role: "Reader", Scope: "/subscriptions/b", ScopeName: "Staging"},
	}
}

func key(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEscape}
	case "tab":
		return tea.KeyMsg{Type: tea.KeyTab}
	case "up":
		return tea.KeyMsg{Type: tea.KeyUp}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	case " ":
		return tea.KeyMsg{Type: tea.KeySpace}
	case "ctrl+c":
		return tea.KeyMsg{Type: tea.KeyCtrlC}
	default:
		return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
	}
}

func press(t *testing.T, m Model, keys ...string) Model {
	t.Helper()
	for _, k := range keys {
		next, _ := m.Update(key(k))
		var ok bool
		m, ok = next.(Model)
		require.True(t, ok)
	}
	return m
}

func typeText(t *testing.T, m Model, text string) Model {
	t.Helper()
	for _, r := range text {
		m = press(t, m, string(r))
	}
	return m
}

func TestSelectionSurvivesFiltering(t *testing.T) {
	m := New(ModeActivate, testAssignments(), Options{Justification: "work"})

	// Select Owner, then filter it out of view, then clear the filter.
	m = press(t, m, " ", "/")
	require.Equal(t, PhaseFiltering, m.Phase())
	m = typeText(t, m, "reader")
	m = press(t, m, "enter")
	require.Equal(t, PhaseBrowsing, m.Phase())
	require.Len(t, m.visible(), 1)

	m = press(t, m, "/")
	m = press(t, m, "esc")
	require.Len(t, m.visible(), 3)

	m = press(t, m, "enter", "enter")
	require.Equal(t, PhaseSubmitted, m.Phase())

	ops := m.Operations()
	require.Len(t, ops, 1)
	assert.Equal(t, "Owner", ops[0].Role)
}

func TestToggleWhileFilteredKeepsIdentity(t *testing.T) {
	m := New(ModeDeactivate, testAssignments(), Options{})

	// Narrow to Reader, select it, then widen again: the selection must
	// still point at Reader, not at whatever sits at index 0 now.
	m = press(t, m, "/")
	m = typeText(t, m, "staging")
	m = press(t, m, "enter", " ")
	m = press(t, m, "/", "esc")

	m = press(t, m, "enter", "enter")
	require.Equal(t, PhaseSubmitted, m.Phase())

	ops := m.Operations()
	require.Len(t, ops, 1)
	assert.Equal(t, "Reader", ops[0].Role)
	assert.Equal(t, pim.ActionDeactivate, ops[0].Action)
}

func TestEmptySelectionConfirmIsNoOp(t *testing.T) {
	m := New(ModeActivate, testAssignments(), Options{})

	m = press(t, m, "enter", "enter")
	require.Equal(t, PhaseSubmitted, m.Phase())

	ops := m.Operations()
	require.NotNil(t, ops)
	assert.Empty(t, ops)
}

func TestCancelEmitsNothing(t *testing.T) {
	for _, cancel := range []string{"q", "esc", "ctrl+c"} {
		m := New(ModeActivate, testAssignments(), Options{Justification: "work"})
		m = press(t, m, " ", cancel)

		require.Equal(t, PhaseCancelled, m.Phase(), "cancel key %q", cancel)
		assert.True(t, m.Cancelled())
		assert.Nil(t, m.Operations())
	}
}

func TestCancelFromConfirming(t *testing.T) {
	m := New(ModeActivate, testAssignments(), Options{Justification: "work"})
	m = press(t, m, " ", "enter", "ctrl+c")
	assert.True(t, m.Cancelled())
	assert.Nil(t, m.Operations())
}

func TestBlankJustificationBlocksSubmit(t *testing.T) {
	m := New(ModeActivate, testAssignments(), Options{})

	m = press(t, m, " ", "enter")
	require.Equal(t, PhaseConfirming, m.Phase())

	m = press(t, m, "enter")
	assert.Equal(t, PhaseConfirming, m.Phase(), "blank justification must block submit")
	assert.NotEmpty(t, m.warning)

	m = typeText(t, m, "deploy")
	m = press(t, m, "enter")
	require.Equal(t, PhaseSubmitted, m.Phase())

	ops := m.Operations()
	require.Len(t, ops, 1)
	assert.Equal(t, "deploy", ops[0].Justification)
}

func TestDeactivateNeedsNoJustification(t *testing.T) {
	m := New(ModeDeactivate, testAssignments(), Options{})
	m = press(t, m, " ", "enter", "enter")
	require.Equal(t, PhaseSubmitted, m.Phase())
	require.Len(t, m.Operations(), 1)
	assert.Empty(t, m.Operations()[0].Justification)
}

func TestCursorMovesOverVisibleSet(t *testing.T) {
	m := New(ModeActivate, testAssignments(), Options{Justification: "work"})

	m = press(t, m, "down", "down", " ")
	m = press(t, m, "enter", "enter")
	ops := m.Operations()
	require.Len(t, ops, 1)
	assert.Equal(t, "Reader", ops[0].Role)
}

func TestCursorClampsAtBounds(t *testing.T) {
	m := New(ModeActivate, testAssignments(), Options{Justification: "work"})

	m = press(t, m, "up", "up", " ")
	m = press(t, m, "down", "down", "down", "down", "down", " ")

	m = press(t, m, "enter", "enter")
	ops := m.Operations()
	require.Len(t, ops, 2)
	assert.Equal(t, "Owner", ops[0].Role)
	assert.Equal(t, "Reader", ops[1].Role)
}

func TestDurationInput(t *testing.T) {
	m := New(ModeActivate, testAssignments(), Options{Justification: "work"})

	m = press(t, m, " ", "enter", "tab")
	// Clear the seeded default and type a new value.
	m.duration.SetValue("")
	m = typeText(t, m, "60")
	m = press(t, m, "enter")

	require.Equal(t, PhaseSubmitted, m.Phase())
	ops := m.Operations()
	require.Len(t, ops, 1)
	assert.Equal(t, time.Hour, ops[0].Duration)
}

func TestInvalidDurationFallsBackToDefault(t *testing.T) {
	m := New(ModeActivate, testAssignments(), Options{Justification: "work"})
	m = press(t, m, " ", "enter", "tab")
	m.duration.SetValue("not-a-number")
	m = press(t, m, "enter")

	ops := m.Operations()
	require.Len(t, ops, 1)
	assert.Equal(t, pim.DefaultDuration, ops[0].Duration)
}

func TestViewRendersWithoutTerminal(t *testing.T) {
	m := New(ModeActivate, testAssignments(), Options{Justification: "work"})
	m = press(t, m, " ")

	view := m.View()
	assert.True(t, strings.Contains(view, "Owner"))
	assert.True(t, strings.Contains(view, "[x]"))

	m = press(t, m, "enter")
	view = m.View()
	assert.True(t, strings.Contains(view, "Confirm"))
}
