package pim

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

const (
	// DefaultConcurrency bounds simultaneous in-flight operations. Four
	// keeps a healthy margin under the PIM endpoint's rate limits.
	DefaultConcurrency = 4
	// DefaultPollInterval is the wait between assignment state checks
	// while waiting for an activation or deactivation to land.
	DefaultPollInterval = 10 * time.Second
)

// Orchestrator runs a batch of operations across a bounded worker pool.
// Operations are independent: one failure never cancels or blocks the
// others. Every input operation produces exactly one Outcome.
type Orchestrator struct {
	Directory   Directory
	Retrier     *Retrier
	Concurrency int

	// Wait, when non-nil, is the per-operation budget for polling the
	// directory until the assignment reaches the expected state after a
	// successful mutation. Exhausting it yields TimedOutWaiting, not
	// Failed, since the change may still land asynchronously.
	Wait         *time.Duration
	PollInterval time.Duration

	Log *slog.Logger
}

func (o *Orchestrator) concurrency() int {
	if o.Concurrency <= 0 {
		return DefaultConcurrency
	}
	return o.Concurrency
}

func (o *Orchestrator) pollInterval() time.Duration {
	if o.PollInterval <= 0 {
		return DefaultPollInterval
	}
	return o.PollInterval
}

func (o *Orchestrator) retrier() *Retrier {
	if o.Retrier != nil {
		return o.Retrier
	}
	return &Retrier{Log: o.Log}
}

func (o *Orchestrator) log() *slog.Logger {
	if o.Log != nil {
		return o.Log
	}
	return slog.Default()
}

// Run executes every operation and blocks until all workers drain.
// Completion order is unordered; the report holds one Outcome per input
// operation regardless of concurrency or individual failures.
func (o *Orchestrator) Run(ctx context.Context, operations []Operation) *Report {
	report := &Report{Outcomes: make([]Outcome, 0, len(operations))}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		semaphore = make(chan struct{}, o.concurrency())
	)

	for _, op := range operations {
		wg.Add(1)
		semaphore <- struct{}{}

		go func(op Operation) {
			defer func() {
				<-semaphore
				wg.Done()
			}()

			outcome := o.execute(ctx, op)

			mu.Lock()
			report.Outcomes = append(report.Outcomes, outcome)
			mu.Unlock()
		}(op)
	}

	wg.Wait()
	return report
}

// execute runs one operation end-to-end: the retrying mutation, then the
// optional wait-poll for the expected assignment state.
func (o *Orchestrator) execute(ctx context.Context, op Operation) Outcome {
	attempts, err := o.retrier().Do(ctx, op.Describe(), func() error {
		return o.mutate(ctx, op)
	})
	if err != nil {
		return Outcome{Operation: op, Kind: Failed, Err: err, Attempts: attempts}
	}

	if o.Wait != nil {
		if err := o.waitForState(ctx, op, *o.Wait); err != nil {
			return Outcome{Operation: op, Kind: TimedOutWaiting, Err: err, Attempts: attempts}
		}
	}

	return Outcome{Operation: op, Kind: Succeeded, Attempts: attempts}
}

func (o *Orchestrator) mutate(ctx context.Context, op Operation) error {
	switch op.Action {
	case ActionActivate:
		return o.Directory.Activate(ctx, op.Target, op.Justification, op.Duration)
	case ActionDeactivate:
		return o.Directory.Deactivate(ctx, op.Target)
	case ActionRemoveAssignment:
		return o.Directory.RemoveAssignment(ctx, op.Target)
	case ActionRemoveEligible:
		return o.Directory.RemoveEligible(ctx, op.Target)
	default:
		return fmt.Errorf("unsupported action %q", op.Action)
	}
}

// waitForState polls the directory until the operation's post-condition
// holds or the budget runs out. Activation expects the assignment to show
// as Active; every other action expects it to no longer be Active. The
// state is checked at least once even with a zero budget.
func (o *Orchestrator) waitForState(ctx context.Context, op Operation, budget time.Duration) error {
	deadline := time.Now().Add(budget)

	for {
		state, err := o.Directory.AssignmentState(ctx, op.Role, op.Scope)
		if err != nil {
			o.log().Warn("checking assignment state", "operation", op.Describe(), "error", err)
		} else if stateSatisfies(op.Action, state) {
			return nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return fmt.Errorf("%s: state %q not reached within %s", op.Describe(), expectedState(op.Action), budget)
		}

		wait := o.pollInterval()
		if wait > remaining {
			wait = remaining
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

func stateSatisfies(action Action, state State) bool {
	if action == ActionActivate {
		return state == StateActive
	}
	return state != StateActive
}

func expectedState(action Action) State {
	if action == ActionActivate {
		return StateActive
	}
	return StateRemoved
}
