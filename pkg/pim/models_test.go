package pim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindAssignment(t *testing.T) {
	list := []Assignment{
		{Role: "Owner", Scope: "/subscriptions/a", ScopeName: "Production"},
		{Role: "Reader", Scope: "/subscriptions/a", ScopeName: "Production"},
		{Role: "Owner", Scope: "/subscriptions/b", ScopeName: "Staging"},
	}

	a, ok := FindAssignment(list, "owner", "/SUBSCRIPTIONS/B")
	require.True(t, ok)
	assert.Equal(t, Scope("/subscriptions/b"), a.Scope)

	a, ok = FindAssignment(list, "Reader", "production")
	require.True(t, ok)
	assert.Equal(t, "Reader", a.Role)

	_, ok = FindAssignment(list, "Owner", "Nonexistent")
	assert.False(t, ok)

	_, ok = FindAssignment(list, "Contributor", "Production")
	assert.False(t, ok)
}

func TestFindByRole(t *testing.T) {
	list := []Assignment{
		{Role: "Owner", Scope: "/subscriptions/a"},
		{Role: "owner", Scope: "/subscriptions/b"},
		{Role: "Reader", Scope: "/subscriptions/a"},
	}
	assert.Len(t, FindByRole(list, "OWNER"), 2)
	assert.Empty(t, FindByRole(list, "Contributor"))
}

func TestAssignmentKeyIsCaseInsensitive(t *testing.T) {
	a := Assignment{Role: "Owner", Scope: "/Subscriptions/A"}
	b := Assignment{Role: "OWNER", Scope: "/subscriptions/a"}
	assert.Equal(t, a.Key(), b.Key())
}

func TestResourceContainer(t *testing.T) {
	assert.True(t, Resource{Type: "resourcegroup"}.Container())
	assert.True(t, Resource{Type: "Microsoft.Management/managementGroups"}.Container())
	assert.True(t, Resource{Type: "subscription"}.Container())
	assert.False(t, Resource{Type: "Microsoft.Compute/virtualMachines"}.Container())
}

func TestIsoDuration(t *testing.T) {
	assert.Equal(t, "PT480M", isoDuration(DefaultDuration))
	assert.Equal(t, "PT30M", isoDuration(DefaultDuration/16))
}
