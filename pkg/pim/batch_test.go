package pim

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDirectory is a scriptable Directory for orchestrator and orphan
// tests. Mutations record their targets; per-key errors and states steer
// individual operations.
type fakeDirectory struct {
	mu sync.Mutex

	eligible    map[Scope][]Assignment
	active      map[Scope][]Assignment
	assignments map[Scope][]Assignment
	children    map[Scope][]Resource

	mutateErr map[string]error // keyed by role@scope, lowercase
	states    map[string]State

	activated   []Assignment
	deactivated []Assignment
	removed     []Assignment

	stateChecks int
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{
		eligible:    map[Scope][]Assignment{},
		active:      map[Scope][]Assignment{},
		assignments: map[Scope][]Assignment{},
		children:    map[Scope][]Resource{},
		mutateErr:   map[string]error{},
		states:      map[string]State{},
	}
}

func (f *fakeDirectory) ListEligible(_ context.Context, scope Scope, _ ListFilter) ([]Assignment, error) {
	return f.eligible[scope], nil
}

func (f *fakeDirectory) ListActive(_ context.Context, scope Scope, _ ListFilter) ([]Assignment, error) {
	return f.active[scope], nil
}

func (f *fakeDirectory) ListRoleAssignments(_ context.Context, scope Scope) ([]Assignment, error) {
	return f.assignments[scope], nil
}

func (f *fakeDirectory) ListChildResources(_ context.Context, scope Scope) ([]Resource, error) {
	return f.children[scope], nil
}

func (f *fakeDirectory) mutation(target Assignment, record *[]Assignment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.mutateErr[target.Key()]; err != nil {
		return err
	}
	*record = append(*record, target)
	return nil
}

func (f *fakeDirectory) Activate(_ context.Context, target Assignment, _ string, _ time.Duration) error {
	return f.mutation(target, &f.activated)
}

func (f *fakeDirectory) Deactivate(_ context.Context, target Assignment) error {
	return f.mutation(target, &f.deactivated)
}

func (f *fakeDirectory) RemoveAssignment(_ context.Context, target Assignment) error {
	return f.mutation(target, &f.removed)
}

func (f *fakeDirectory) RemoveEligible(_ context.Context, target Assignment) error {
	return f.mutation(target, &f.removed)
}

func (f *fakeDirectory) AssignmentState(_ context.Context, role string, scope Scope) (State, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stateChecks++
	key := Assignment{Role: role, Scope: scope}.Key()
	if state, ok := f.states[key]; ok {
		return state, nil
	}
	return StateRemoved, nil
}

func activation(role, scope string) Operation {
	return Operation{
		Action:        ActionActivate,
		Role:          role,
		Scope:         Scope(scope),
		Justification: "testing",
		Duration:      time.Hour,
		Target:        Assignment{Role: role, Scope: Scope(scope), RoleDefinitionID: "def-" + role},
	}
}

func testOrchestrator(dir Directory, concurrency int) *Orchestrator {
	return &Orchestrator{
		Directory:   dir,
		Retrier:     fastRetrier(3),
		Concurrency: concurrency,
	}
}

func TestRunProducesOneOutcomePerOperation(t *testing.T) {
	for _, concurrency := range []int{1, 2, 4, 8} {
		dir := newFakeDirectory()
		ops := []Operation{
			activation("Owner", "/subscriptions/a"),
			activation("Contributor", "/subscriptions/a"),
			activation("Reader", "/subscriptions/b"),
			activation("Owner", "/subscriptions/c"),
			activation("Reader", "/subscriptions/c"),
		}

		report := testOrchestrator(dir, concurrency).Run(context.Background(), ops)

		require.Len(t, report.Outcomes, len(ops), "concurrency %d", concurrency)
		assert.True(t, report.OK())
		assert.Len(t, dir.activated, len(ops))
	}
}

func TestRunIsolatesPermanentFailure(t *testing.T) {
	dir := newFakeDirectory()
	ops := []Operation{
		activation("Owner", "/subscriptions/a"),
		activation("Contributor", "/subscriptions/b"),
		activation("Reader", "/subscriptions/c"),
	}
	dir.mutateErr[ops[1].Key()] = &azcore.ResponseError{StatusCode: http.StatusForbidden}

	report := testOrchestrator(dir, 2).Run(context.Background(), ops)

	require.Len(t, report.Outcomes, 3)
	assert.Len(t, report.Failed(), 1)

	owner, ok := report.Lookup("Owner", "/subscriptions/a")
	require.True(t, ok)
	assert.Equal(t, Succeeded, owner.Kind)

	contributor, ok := report.Lookup("Contributor", "/subscriptions/b")
	require.True(t, ok)
	assert.Equal(t, Failed, contributor.Kind)
	assert.Error(t, contributor.Err)

	reader, ok := report.Lookup("Reader", "/subscriptions/c")
	require.True(t, ok)
	assert.Equal(t, Succeeded, reader.Kind)
}

func TestRunZeroWaitBudgetTimesOutDistinctly(t *testing.T) {
	dir := newFakeDirectory()
	op := activation("Owner", "/subscriptions/a")
	// The directory never reports the role as active.

	wait := time.Duration(0)
	orch := testOrchestrator(dir, 1)
	orch.Wait = &wait
	orch.PollInterval = time.Nanosecond

	report := orch.Run(context.Background(), []Operation{op})

	require.Len(t, report.Outcomes, 1)
	assert.Equal(t, TimedOutWaiting, report.Outcomes[0].Kind)
	assert.NotEqual(t, Failed, report.Outcomes[0].Kind)
	assert.False(t, report.OK())
	// The state is still checked at least once even with a zero budget.
	assert.GreaterOrEqual(t, dir.stateChecks, 1)
}

func TestRunWaitsUntilActive(t *testing.T) {
	dir := newFakeDirectory()
	op := activation("Owner", "/subscriptions/a")
	dir.states[op.Key()] = StateActive

	wait := time.Minute
	orch := testOrchestrator(dir, 1)
	orch.Wait = &wait
	orch.PollInterval = time.Nanosecond

	report := orch.Run(context.Background(), []Operation{op})

	require.Len(t, report.Outcomes, 1)
	assert.Equal(t, Succeeded, report.Outcomes[0].Kind)
}

func TestRunDeactivationWaitsForRemoval(t *testing.T) {
	dir := newFakeDirectory()
	op := Operation{
		Action: ActionDeactivate,
		Role:   "Owner",
		Scope:  "/subscriptions/a",
		Target: Assignment{Role: "Owner", Scope: "/subscriptions/a"},
	}
	// After deactivation the grant shows as eligible again, which counts
	// as no longer active.
	dir.states[op.Key()] = StateEligible

	wait := time.Minute
	orch := testOrchestrator(dir, 1)
	orch.Wait = &wait
	orch.PollInterval = time.Nanosecond

	report := orch.Run(context.Background(), []Operation{op})

	require.Len(t, report.Outcomes, 1)
	assert.Equal(t, Succeeded, report.Outcomes[0].Kind)
	assert.Len(t, dir.deactivated, 1)
}

func TestRunDuplicateEntriesStayDistinct(t *testing.T) {
	dir := newFakeDirectory()
	op := activation("Owner", "/subscriptions/a")

	report := testOrchestrator(dir, 2).Run(context.Background(), []Operation{op, op})

	require.Len(t, report.Outcomes, 2)
	assert.True(t, report.OK())
	assert.Len(t, dir.activated, 2)
}

func TestRunRetriesTransientMutation(t *testing.T) {
	dir := newFakeDirectory()
	op := activation("Owner", "/subscriptions/a")

	var calls int
	var mu sync.Mutex
	flaky := &scriptedDirectory{
		fakeDirectory: dir,
		activate: func() error {
			mu.Lock()
			defer mu.Unlock()
			calls++
			if calls < 3 {
				return &azcore.ResponseError{StatusCode: http.StatusTooManyRequests}
			}
			return nil
		},
	}

	report := testOrchestrator(flaky, 1).Run(context.Background(), []Operation{op})

	require.Len(t, report.Outcomes, 1)
	assert.Equal(t, Succeeded, report.Outcomes[0].Kind)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 3, report.Outcomes[0].Attempts)
}

func TestRunEmptyBatch(t *testing.T) {
	report := testOrchestrator(newFakeDirectory(), 4).Run(context.Background(), nil)
	assert.Empty(t, report.Outcomes)
	assert.True(t, report.OK())
}

// scriptedDirectory overrides Activate with a closure.
type scriptedDirectory struct {
	*fakeDirectory
	activate func() error
}

func (s *scriptedDirectory) Activate(context.Context, Assignment, string, time.Duration) error {
	return s.activate()
}
