// Package interactive is the terminal picker for eligible and active role
// assignments. The model is a pure bubbletea state machine: tests drive it
// with key messages, no terminal required, and the selected assignments
// only become operations once the operator confirms.
package interactive

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-isatty"

	"github.com/praetorian-inc/pimctl/pkg/pim"
)

// Mode decides which action confirmed selections turn into.
type Mode int

const (
	// ModeActivate picks from eligible assignments and emits activations.
	ModeActivate Mode = iota
	// ModeDeactivate picks from active assignments and emits deactivations.
	ModeDeactivate
)

func (m Mode) verb() string {
	if m == ModeActivate {
		return "activate"
	}
	return "deactivate"
}

// Phase is the selector's position in its state machine.
type Phase int

const (
	// PhaseBrowsing is the default: navigation and selection keys apply.
	PhaseBrowsing Phase = iota
	// PhaseFiltering routes keystrokes to the filter input.
	PhaseFiltering
	// PhaseConfirming shows the summary and, for activation, the
	// justification and duration inputs.
	PhaseConfirming
	// PhaseSubmitted is terminal: the selection becomes operations.
	PhaseSubmitted
	// PhaseCancelled is terminal: nothing is emitted.
	PhaseCancelled
)

const (
	focusJustification = iota
	focusDuration
)

// Options seeds the confirmation inputs.
type Options struct {
	Justification string
	Duration      time.Duration
}

// Model is the selector state. Selection is keyed by assignment identity
// (role + scope), not by list position, so filtering never drops or
// duplicates a selection made before the filter was applied.
type Model struct {
	mode        Mode
	assignments []pim.Assignment

	cursor   int
	selected map[string]struct{}

	filter        textinput.Model
	justification textinput.Model
	duration      textinput.Model
	focus         int

	phase   Phase
	warning string

	width  int
	height int
}

// New builds a selector over the given assignments.
func New(mode Mode, assignments []pim.Assignment, opts Options) Model {
	filter := textinput.New()
	filter.Prompt = "/"
	filter.Placeholder = "filter by role or scope"

	justification := textinput.New()
	justification.Prompt = "justification: "
	justification.SetValue(opts.Justification)

	duration := textinput.New()
	duration.Prompt = "duration (minutes): "
	if opts.Duration <= 0 {
		opts.Duration = pim.DefaultDuration
	}
	duration.SetValue(strconv.Itoa(int(opts.Duration.Minutes())))

	return Model{
		mode:          mode,
		assignments:   assignments,
		selected:      map[string]struct{}{},
		filter:        filter,
		justification: justification,
		duration:      duration,
	}
}

// Phase exposes the machine state for tests and callers.
func (m Model) Phase() Phase { return m.phase }

// Cancelled reports whether the selector ended without emitting anything.
func (m Model) Cancelled() bool { return m.phase == PhaseCancelled }

// visible returns the indices of assignments the current filter shows.
// Filtering narrows the view, never the selection.
func (m Model) visible() []int {
	needle := strings.ToLower(strings.TrimSpace(m.filter.Value()))
	var out []int
	for i, a := range m.assignments {
		if needle == "" ||
			strings.Contains(strings.ToLower(a.Role), needle) ||
			strings.Contains(strings.ToLower(a.ScopeName), needle) ||
			strings.Contains(strings.ToLower(string(a.Scope)), needle) {
			out = append(out, i)
		}
	}
	return out
}

func (m Model) selectedAssignments() []pim.Assignment {
	var out []pim.Assignment
	for _, a := range m.assignments {
		if _, ok := m.selected[a.Key()]; ok {
			out = append(out, a)
		}
	}
	return out
}

// Operations converts the confirmed selection into batch operations. It
// returns nil unless the selector reached PhaseSubmitted; an empty
// confirmed selection yields an empty, non-nil list.
func (m Model) Operations() []pim.Operation {
	if m.phase != PhaseSubmitted {
		return nil
	}

	action := pim.ActionActivate
	if m.mode == ModeDeactivate {
		action = pim.ActionDeactivate
	}

	ops := []pim.Operation{}
	for _, a := range m.selectedAssignments() {
		op := pim.Operation{
			Action: action,
			Role:   a.Role,
			Scope:  a.Scope,
			Target: a,
		}
		if m.mode == ModeActivate {
			op.Justification = strings.TrimSpace(m.justification.Value())
			op.Duration = m.durationValue()
		}
		ops = append(ops, op)
	}
	return ops
}

func (m Model) durationValue() time.Duration {
	minutes, err := strconv.Atoi(strings.TrimSpace(m.duration.Value()))
	if err != nil || minutes <= 0 {
		return pim.DefaultDuration
	}
	return time.Duration(minutes) * time.Minute
}

func (m Model) Init() tea.Cmd { return nil }

// Update is the whole state machine: a pure function from (state, msg) to
// the next state.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			m.phase = PhaseCancelled
			return m, tea.Quit
		}
		switch m.phase {
		case PhaseBrowsing:
			return m.updateBrowsing(msg)
		case PhaseFiltering:
			return m.updateFiltering(msg)
		case PhaseConfirming:
			return m.updateConfirming(msg)
		}
	}
	return m, nil
}

func (m Model) updateBrowsing(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	visible := m.visible()

	switch msg.String() {
	case "q", "esc":
		m.phase = PhaseCancelled
		return m, tea.Quit

	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}

	case "down", "j":
		if m.cursor < len(visible)-1 {
			m.cursor++
		}

	case " ":
		if m.cursor < len(visible) {
			key := m.assignments[visible[m.cursor]].Key()
			if _, ok := m.selected[key]; ok {
				delete(m.selected, key)
			} else {
				m.selected[key] = struct{}{}
			}
		}

	case "/":
		m.phase = PhaseFiltering
		m.filter.Focus()
		return m, textinput.Blink

	case "enter":
		m.phase = PhaseConfirming
		m.warning = ""
		if m.mode == ModeActivate {
			m.focus = focusJustification
			m.justification.Focus()
			return m, textinput.Blink
		}
	}
	return m, nil
}

func (m Model) updateFiltering(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		// Esc abandons the filter entirely.
		m.filter.SetValue("")
		m.filter.Blur()
		m.phase = PhaseBrowsing
		m.cursor = 0
		return m, nil

	case "enter":
		// Enter keeps the narrowed view and returns to browsing.
		m.filter.Blur()
		m.phase = PhaseBrowsing
		m.cursor = 0
		return m, nil
	}

	var cmd tea.Cmd
	m.filter, cmd = m.filter.Update(msg)
	m.cursor = 0
	return m, cmd
}

func (m Model) updateConfirming(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.phase = PhaseBrowsing
		m.warning = ""
		m.justification.Blur()
		m.duration.Blur()
		return m, nil

	case "tab", "shift+tab":
		if m.mode == ModeActivate {
			if m.focus == focusJustification {
				m.focus = focusDuration
				m.justification.Blur()
				m.duration.Focus()
			} else {
				m.focus = focusJustification
				m.duration.Blur()
				m.justification.Focus()
			}
			return m, textinput.Blink
		}
		return m, nil

	case "enter":
		// Activations need a justification, but only when something is
		// actually selected: an empty confirmation is a valid no-op.
		if m.mode == ModeActivate && len(m.selected) > 0 &&
			strings.TrimSpace(m.justification.Value()) == "" {
			m.warning = "justification required"
			return m, nil
		}
		m.phase = PhaseSubmitted
		return m, tea.Quit
	}

	if m.mode == ModeActivate {
		var cmd tea.Cmd
		if m.focus == focusDuration {
			m.duration, cmd = m.duration.Update(msg)
		} else {
			m.justification, cmd = m.justification.Update(msg)
		}
		m.warning = ""
		return m, cmd
	}
	return m, nil
}

// Run drives the selector on the terminal. The UI renders on stderr so
// stdout stays reserved for machine-readable output.
func Run(m Model) (Model, error) {
	if !isatty.IsTerminal(os.Stderr.Fd()) && !isatty.IsCygwinTerminal(os.Stderr.Fd()) {
		return m, fmt.Errorf("interactive mode needs a terminal")
	}

	p := tea.NewProgram(m, tea.WithOutput(os.Stderr))
	final, err := p.Run()
	if err != nil {
		return m, fmt.Errorf("running selector: %w", err)
	}
	result, ok := final.(Model)
	if !ok {
		return m, fmt.Errorf("unexpected selector model %T", final)
	}
	return result, nil
}
