package pim

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTargetValidate(t *testing.T) {
	tests := []struct {
		name    string
		target  Target
		wantErr string
	}{
		{name: "empty", target: Target{}},
		{name: "subscription only", target: Target{Subscription: "sub"}},
		{name: "subscription and group", target: Target{Subscription: "sub", ResourceGroup: "rg"}},
		{name: "full hierarchy", target: Target{Subscription: "sub", ResourceGroup: "rg", Provider: "Microsoft.Compute/virtualMachines/vm"}},
		{
			name:    "group without subscription",
			target:  Target{ResourceGroup: "rg"},
			wantErr: "--resource-group requires --subscription",
		},
		{
			name:    "provider without group",
			target:  Target{Subscription: "sub", Provider: "Microsoft.Compute/virtualMachines/vm"},
			wantErr: "--provider requires --resource-group",
		},
		{
			name:   "explicit scope bypasses hierarchy",
			target: Target{Scope: "/subscriptions/x/resourceGroups/y", ResourceGroup: "rg"},
		},
		{
			name:   "management group bypasses hierarchy",
			target: Target{ManagementGroup: "mg", Provider: "p"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.target.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.EqualError(t, err, tt.wantErr)

			var missing *MissingPrerequisiteError
			assert.ErrorAs(t, err, &missing)
		})
	}
}

func TestResolveExplicitScopeVerbatim(t *testing.T) {
	// No lookups wired: an explicit path must resolve without touching
	// anything.
	r := &Resolver{}
	resolved, err := r.Resolve(context.Background(), Target{
		Scope:         "/subscriptions/x/resourceGroups/y",
		ResourceGroup: "ignored",
	})
	require.NoError(t, err)
	assert.Equal(t, Scope("/subscriptions/x/resourceGroups/y"), resolved.Scope)
	assert.False(t, resolved.ByName())
}

func TestResolveFriendlyScopeName(t *testing.T) {
	r := &Resolver{}
	resolved, err := r.Resolve(context.Background(), Target{Scope: "Production Subscription"})
	require.NoError(t, err)
	assert.True(t, resolved.ByName())
	assert.Equal(t, "Production Subscription", resolved.Name)
}

func TestResolveHierarchy(t *testing.T) {
	r := &Resolver{}
	sub := "11111111-2222-3333-4444-555555555555"

	resolved, err := r.Resolve(context.Background(), Target{Subscription: sub})
	require.NoError(t, err)
	assert.Equal(t, SubscriptionScope(sub), resolved.Scope)

	resolved, err = r.Resolve(context.Background(), Target{Subscription: sub, ResourceGroup: "rg"})
	require.NoError(t, err)
	assert.Equal(t, Scope("/subscriptions/"+sub+"/resourceGroups/rg"), resolved.Scope)

	resolved, err = r.Resolve(context.Background(), Target{
		Subscription:  sub,
		ResourceGroup: "rg",
		Provider:      "Microsoft.Compute/virtualMachines/vm",
	})
	require.NoError(t, err)
	assert.Equal(t, Scope("/subscriptions/"+sub+"/resourceGroups/rg/providers/Microsoft.Compute/virtualMachines/vm"), resolved.Scope)
}

type staticSubscriptions map[string]string

func (s staticSubscriptions) SubscriptionID(_ context.Context, nameOrID string) (string, error) {
	if id, ok := s[nameOrID]; ok {
		return id, nil
	}
	return "", &UnknownScopeError{Name: nameOrID}
}

func TestResolveSubscriptionDisplayName(t *testing.T) {
	r := &Resolver{Subscriptions: staticSubscriptions{"Production": "11111111-2222-3333-4444-555555555555"}}

	resolved, err := r.Resolve(context.Background(), Target{Subscription: "Production"})
	require.NoError(t, err)
	assert.Equal(t, SubscriptionScope("11111111-2222-3333-4444-555555555555"), resolved.Scope)

	_, err = r.Resolve(context.Background(), Target{Subscription: "Staging"})
	var unknown *UnknownScopeError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "Staging", unknown.Name)
}

func TestResolveValidatesBeforeLookups(t *testing.T) {
	r := &Resolver{}
	_, err := r.Resolve(context.Background(), Target{ResourceGroup: "rg"})
	var missing *MissingPrerequisiteError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "resource-group", missing.Field)
}

func TestScopeContains(t *testing.T) {
	sub := Scope("/subscriptions/a")
	rg := Scope("/subscriptions/a/resourceGroups/rg")

	assert.True(t, sub.Contains(rg))
	assert.True(t, sub.Contains(sub))
	assert.False(t, rg.Contains(sub))
	assert.False(t, sub.Contains(Scope("/subscriptions/b")))
	assert.True(t, Scope("/SUBSCRIPTIONS/A").Contains(rg))
}

func TestParseScope(t *testing.T) {
	s, err := ParseScope("/subscriptions/a")
	require.NoError(t, err)
	assert.Equal(t, Scope("/subscriptions/a"), s)

	_, err = ParseScope("subscriptions/a")
	assert.Error(t, err)
}
