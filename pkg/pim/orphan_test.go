package pim

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeIdentity resolves a fixed set of principal ids.
type fakeIdentity struct {
	known map[string]struct{}
	err   error
	calls int
}

func (f *fakeIdentity) Known(_ context.Context, ids []string) (map[string]struct{}, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := map[string]struct{}{}
	for _, id := range ids {
		if _, ok := f.known[id]; ok {
			out[id] = struct{}{}
		}
	}
	return out, nil
}

func identityWith(ids ...string) *fakeIdentity {
	known := map[string]struct{}{}
	for _, id := range ids {
		known[id] = struct{}{}
	}
	return &fakeIdentity{known: known}
}

func TestDetectorReportsOnlyMissingPrincipals(t *testing.T) {
	dir := newFakeDirectory()
	root := Scope("/subscriptions/a")
	dir.assignments[root] = []Assignment{
		{ID: "ra-1", Role: "Owner", Scope: root, PrincipalID: "alive"},
		{ID: "ra-2", Role: "Reader", Scope: root, PrincipalID: "gone"},
		{ID: "ra-3", Role: "Contributor", Scope: root, PrincipalID: "alive"},
	}

	detector := &Detector{Directory: dir, Identity: identityWith("alive")}
	candidates, err := detector.Assignments(context.Background(), root, true)
	require.NoError(t, err)

	require.Len(t, candidates, 1)
	assert.Equal(t, "ra-2", candidates[0].ID)
	assert.Equal(t, "gone", candidates[0].OrphanedPrincipal)
}

func TestDetectorDeduplicatesAcrossEnumerationPaths(t *testing.T) {
	dir := newFakeDirectory()
	root := Scope("/subscriptions/a")
	child := Scope("/subscriptions/a/resourceGroups/rg")

	// The same assignment shows up at the subscription and again when the
	// resource group is enumerated.
	shared := Assignment{ID: "ra-dup", Role: "Owner", Scope: root, PrincipalID: "gone"}
	dir.assignments[root] = []Assignment{shared}
	dir.assignments[child] = []Assignment{
		shared,
		{ID: "ra-rg", Role: "Reader", Scope: child, PrincipalID: "gone"},
	}
	dir.children[root] = []Resource{{ID: string(child), Name: "rg", Type: "resourcegroup"}}

	detector := &Detector{Directory: dir, Identity: identityWith()}
	candidates, err := detector.Assignments(context.Background(), root, false)
	require.NoError(t, err)

	require.Len(t, candidates, 2)
	ids := []string{candidates[0].ID, candidates[1].ID}
	assert.ElementsMatch(t, []string{"ra-dup", "ra-rg"}, ids)
}

func TestDetectorSkipNestedStaysAtRoot(t *testing.T) {
	dir := newFakeDirectory()
	root := Scope("/subscriptions/a")
	child := Scope("/subscriptions/a/resourceGroups/rg")
	dir.assignments[root] = []Assignment{{ID: "ra-1", Role: "Owner", Scope: root, PrincipalID: "gone"}}
	dir.assignments[child] = []Assignment{{ID: "ra-2", Role: "Reader", Scope: child, PrincipalID: "gone"}}
	dir.children[root] = []Resource{{ID: string(child), Name: "rg", Type: "resourcegroup"}}

	detector := &Detector{Directory: dir, Identity: identityWith()}
	candidates, err := detector.Assignments(context.Background(), root, true)
	require.NoError(t, err)

	require.Len(t, candidates, 1)
	assert.Equal(t, "ra-1", candidates[0].ID)
}

func TestDetectorLookupFailureIsInconclusive(t *testing.T) {
	dir := newFakeDirectory()
	root := Scope("/subscriptions/a")
	dir.assignments[root] = []Assignment{{ID: "ra-1", Role: "Owner", Scope: root, PrincipalID: "gone"}}

	identity := &fakeIdentity{err: errors.New("graph unavailable")}
	detector := &Detector{Directory: dir, Identity: identity}

	candidates, err := detector.Assignments(context.Background(), root, true)
	require.NoError(t, err)
	assert.Empty(t, candidates, "a failed lookup must never be counted as an orphan")
}

func TestDetectorEligiblePass(t *testing.T) {
	dir := newFakeDirectory()
	root := Scope("/subscriptions/a")
	dir.eligible[root] = []Assignment{
		{ID: "el-1", Role: "Owner", Scope: root, PrincipalID: "alive"},
		{ID: "el-2", Role: "Owner", Scope: root, PrincipalID: "gone"},
	}

	detector := &Detector{Directory: dir, Identity: identityWith("alive")}
	candidates, err := detector.Eligible(context.Background(), root, true)
	require.NoError(t, err)

	require.Len(t, candidates, 1)
	assert.Equal(t, "el-2", candidates[0].ID)
}

func TestDetectorLooksUpEachPrincipalOnce(t *testing.T) {
	dir := newFakeDirectory()
	root := Scope("/subscriptions/a")
	dir.assignments[root] = []Assignment{
		{ID: "ra-1", Role: "Owner", Scope: root, PrincipalID: "gone"},
		{ID: "ra-2", Role: "Reader", Scope: root, PrincipalID: "gone"},
	}

	identity := identityWith()
	detector := &Detector{Directory: dir, Identity: identity}
	candidates, err := detector.Assignments(context.Background(), root, true)
	require.NoError(t, err)

	assert.Len(t, candidates, 2)
	assert.Equal(t, 1, identity.calls)
}
