package pim

import (
	"fmt"
	"strings"
	"time"
)

// Action names the remote mutation an Operation performs.
type Action string

const (
	ActionActivate         Action = "activate"
	ActionDeactivate       Action = "deactivate"
	ActionRemoveAssignment Action = "remove-assignment"
	ActionRemoveEligible   Action = "remove-eligible"
)

// Operation is one unit of orchestration work: a single remote mutation
// against one role at one scope. Operations are built from CLI arguments,
// a role-set config, or the interactive selector, and are never reused
// across batches.
type Operation struct {
	Action        Action
	Role          string
	Scope         Scope
	Justification string
	Duration      time.Duration

	// Target is the resolved assignment the mutation applies to. It
	// carries the role definition id, principal, and schedule ids the
	// request body needs.
	Target Assignment
}

// Describe renders the operation for progress lines and retry logging.
func (op Operation) Describe() string {
	where := op.Target.Display()
	if where == "" {
		where = string(op.Scope)
	}
	return fmt.Sprintf("%s %q at %q", op.Action, op.Role, where)
}

// Key matches Assignment.Key: outcomes are looked up by (role, scope).
func (op Operation) Key() string {
	return strings.ToLower(op.Role) + "@" + strings.ToLower(string(op.Scope))
}

// OutcomeKind classifies how an Operation ended.
type OutcomeKind int

const (
	// Succeeded means the mutation landed (and, when waiting was
	// requested, the expected state was observed).
	Succeeded OutcomeKind = iota
	// Failed means the mutation errored past the retry budget.
	Failed
	// TimedOutWaiting means the mutation succeeded but the expected
	// state was not observed before the wait budget ran out. The change
	// may still land asynchronously.
	TimedOutWaiting
)

func (k OutcomeKind) String() string {
	switch k {
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	case TimedOutWaiting:
		return "timed out waiting"
	default:
		return "unknown"
	}
}

// Outcome is the terminal result of one Operation. Exactly one Outcome
// exists per Operation in a batch; it is never mutated after the
// orchestrator records it.
type Outcome struct {
	Operation Operation
	Kind      OutcomeKind
	Err       error

	// Attempts is how many times the mutation ran, the successful or final
	// failing attempt included.
	Attempts int
}

// Report aggregates the outcomes of one batch run.
type Report struct {
	Outcomes []Outcome
}

// Lookup finds the outcome for a (role, scope) pair. When the batch held
// duplicate entries the first recorded outcome wins.
func (r *Report) Lookup(role string, scope Scope) (Outcome, bool) {
	key := strings.ToLower(role) + "@" + strings.ToLower(string(scope))
	for _, o := range r.Outcomes {
		if o.Operation.Key() == key {
			return o, true
		}
	}
	return Outcome{}, false
}

// Failed returns every outcome that did not succeed, timeouts included.
func (r *Report) Failed() []Outcome {
	var out []Outcome
	for _, o := range r.Outcomes {
		if o.Kind != Succeeded {
			out = append(out, o)
		}
	}
	return out
}

// OK reports whether every operation in the batch succeeded.
func (r *Report) OK() bool {
	return len(r.Failed()) == 0
}
