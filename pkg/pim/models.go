package pim

import (
	"strings"
	"time"
)

// ListFilter selects whose assignments a listing returns.
type ListFilter string

const (
	// FilterAsTarget limits a listing to the calling principal.
	FilterAsTarget ListFilter = "asTarget()"
	// FilterAtScope returns every assignment at the scope regardless of
	// principal.
	FilterAtScope ListFilter = "atScope()"
)

// State is the lifecycle position of a role assignment.
type State string

const (
	StateActive   State = "Active"
	StateEligible State = "Eligible"
	StatePending  State = "Pending"
	StateRemoved  State = "Removed"
)

// Assignment is one eligible or active role grant. Listings produce them;
// operations and the selector consume them. Field names line up with the
// JSON emitted by listing commands so that output can be piped back in as
// batch input.
type Assignment struct {
	Role             string     `json:"role"`
	Scope            Scope      `json:"scope"`
	ScopeName        string     `json:"scope_name,omitempty"`
	RoleDefinitionID string     `json:"role_definition_id,omitempty"`
	PrincipalID      string     `json:"principal_id,omitempty"`
	PrincipalName    string     `json:"principal_name,omitempty"`
	PrincipalType    string     `json:"principal_type,omitempty"`
	ID               string     `json:"id,omitempty"`
	Name             string     `json:"name,omitempty"`
	ScheduleID       string     `json:"-"`
	StartTime        *time.Time `json:"start_time,omitempty"`
	EndTime          *time.Time `json:"end_time,omitempty"`
}

// Key identifies an assignment by role and scope, the pair that batch
// outcomes and selector state are keyed by.
func (a Assignment) Key() string {
	return strings.ToLower(a.Role) + "@" + strings.ToLower(string(a.Scope))
}

// Display is the assignment's human-readable location.
func (a Assignment) Display() string {
	if a.ScopeName != "" {
		return a.ScopeName
	}
	return string(a.Scope)
}

// FindAssignment locates the assignment matching role at the given scope
// path or scope display name. All comparisons are case-insensitive.
func FindAssignment(list []Assignment, role, scopeOrName string) (Assignment, bool) {
	for _, a := range list {
		if !strings.EqualFold(a.Role, role) {
			continue
		}
		if strings.EqualFold(string(a.Scope), scopeOrName) || strings.EqualFold(a.ScopeName, scopeOrName) {
			return a, true
		}
	}
	return Assignment{}, false
}

// FindByRole returns every assignment for the named role, used when the
// operator gave no scope selector.
func FindByRole(list []Assignment, role string) []Assignment {
	var out []Assignment
	for _, a := range list {
		if strings.EqualFold(a.Role, role) {
			out = append(out, a)
		}
	}
	return out
}

// Resource is an entry from the eligible child resource enumeration.
type Resource struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
}

// Container reports whether the resource can itself hold role assignments
// worth descending into.
func (r Resource) Container() bool {
	t := strings.ToLower(r.Type)
	return strings.Contains(t, "resourcegroup") || strings.Contains(t, "subscription") ||
		strings.Contains(t, "managementgroup")
}

// RoleDefinition describes a role available at some scope.
type RoleDefinition struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	RoleName    string `json:"role_name"`
	Description string `json:"description,omitempty"`
	Type        string `json:"type,omitempty"`
}
