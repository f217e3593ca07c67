package pim

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/mpvl/unique"
	"gopkg.in/yaml.v3"
)

// RoleSetEntry is one line of a batch config: a role and the scope it
// applies at. Scope may be a fully qualified path or a friendly name that
// the resolver matches against listings. Entries are never deduplicated;
// two identical entries are two operations.
type RoleSetEntry struct {
	Role  string `json:"role" yaml:"role"`
	Scope string `json:"scope" yaml:"scope"`
}

func (e RoleSetEntry) validate() error {
	if e.Role == "" {
		return fmt.Errorf("role set entry missing role")
	}
	if e.Scope == "" {
		return fmt.Errorf("role set entry for %q missing scope", e.Role)
	}
	return nil
}

// LoadRoleSet reads batch entries from path. A path of "-" reads standard
// input, so one command's listing output can pipe straight into another's
// batch input. YAML is selected by file extension; everything else parses
// as JSON, which also accepts the richer objects the list command emits.
func LoadRoleSet(path string, stdin io.Reader) ([]RoleSetEntry, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("reading role set from stdin: %w", err)
		}
	} else {
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading role set: %w", err)
		}
	}

	var entries []RoleSetEntry
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &entries)
	default:
		err = json.Unmarshal(data, &entries)
	}
	if err != nil {
		return nil, fmt.Errorf("parsing role set %q: %w", path, err)
	}

	for _, e := range entries {
		if err := e.validate(); err != nil {
			return nil, err
		}
	}
	return entries, nil
}

// ParseRoleFlag parses a --role NAME=SCOPE argument.
func ParseRoleFlag(value string) (RoleSetEntry, error) {
	name, scope, ok := strings.Cut(value, "=")
	if !ok || name == "" || scope == "" {
		return RoleSetEntry{}, fmt.Errorf("role flag %q must look like NAME=SCOPE", value)
	}
	return RoleSetEntry{Role: name, Scope: scope}, nil
}

// DistinctScopes returns the sorted, deduplicated scope values of a role
// set, used when a cleanup pass should visit each scope once.
func DistinctScopes(entries []RoleSetEntry) []string {
	scopes := make([]string, 0, len(entries))
	for _, e := range entries {
		scopes = append(scopes, e.Scope)
	}
	s := unique.StringSlice{P: &scopes}
	unique.Sort(s)
	unique.Strings(s.P)
	return scopes
}
