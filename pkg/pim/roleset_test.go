package pim

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadRoleSetJSON(t *testing.T) {
	path := writeTemp(t, "set.json", `[
		{"role": "Owner", "scope": "/subscriptions/a"},
		{"role": "Reader", "scope": "Production Subscription"}
	]`)

	entries, err := LoadRoleSet(path, nil)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, RoleSetEntry{Role: "Owner", Scope: "/subscriptions/a"}, entries[0])
	assert.Equal(t, RoleSetEntry{Role: "Reader", Scope: "Production Subscription"}, entries[1])
}

func TestLoadRoleSetYAML(t *testing.T) {
	path := writeTemp(t, "set.yaml", "- role: Owner\n  scope: /subscriptions/a\n")

	entries, err := LoadRoleSet(path, nil)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "Owner", entries[0].Role)
}

func TestLoadRoleSetStdin(t *testing.T) {
	stdin := strings.NewReader(`[{"role": "Owner", "scope": "/subscriptions/a"}]`)
	entries, err := LoadRoleSet("-", stdin)
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestLoadRoleSetAcceptsListingOutput(t *testing.T) {
	// The list command emits full assignments; the extra fields are
	// ignored when the output is piped back in as a role set.
	stdin := strings.NewReader(`[
		{"role": "Owner", "scope": "/subscriptions/a", "scope_name": "Prod", "principal_id": "p"}
	]`)
	entries, err := LoadRoleSet("-", stdin)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "/subscriptions/a", entries[0].Scope)
}

func TestLoadRoleSetKeepsDuplicates(t *testing.T) {
	stdin := strings.NewReader(`[
		{"role": "Owner", "scope": "/subscriptions/a"},
		{"role": "Owner", "scope": "/subscriptions/a"}
	]`)
	entries, err := LoadRoleSet("-", stdin)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestLoadRoleSetRejectsIncompleteEntries(t *testing.T) {
	_, err := LoadRoleSet("-", strings.NewReader(`[{"role": "Owner"}]`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing scope")

	_, err = LoadRoleSet("-", strings.NewReader(`[{"scope": "/subscriptions/a"}]`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing role")
}

func TestParseRoleFlag(t *testing.T) {
	entry, err := ParseRoleFlag("Owner=/subscriptions/a")
	require.NoError(t, err)
	assert.Equal(t, RoleSetEntry{Role: "Owner", Scope: "/subscriptions/a"}, entry)

	_, err = ParseRoleFlag("Owner")
	assert.Error(t, err)
	_, err = ParseRoleFlag("=scope")
	assert.Error(t, err)
}

func TestDistinctScopes(t *testing.T) {
	entries := []RoleSetEntry{
		{Role: "Owner", Scope: "/subscriptions/b"},
		{Role: "Reader", Scope: "/subscriptions/a"},
		{Role: "Contributor", Scope: "/subscriptions/b"},
	}
	assert.Equal(t, []string{"/subscriptions/a", "/subscriptions/b"}, DistinctScopes(entries))
}
