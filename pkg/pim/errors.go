package pim

import "fmt"

// MissingPrerequisiteError reports a scope selector flag used without the
// flag it depends on.
type MissingPrerequisiteError struct {
	Field    string
	Requires string
}

func (e *MissingPrerequisiteError) Error() string {
	return fmt.Sprintf("--%s requires --%s", e.Field, e.Requires)
}

// UnknownScopeError reports a friendly scope name that matched nothing.
type UnknownScopeError struct {
	Name string
}

func (e *UnknownScopeError) Error() string {
	return fmt.Sprintf("scope %q does not match any known subscription, management group, or assignment", e.Name)
}

// AssignmentNotFoundError reports a role and scope pair absent from a listing.
type AssignmentNotFoundError struct {
	Role  string
	Scope string
}

func (e *AssignmentNotFoundError) Error() string {
	if e.Scope == "" {
		return fmt.Sprintf("no assignment found for role %q", e.Role)
	}
	return fmt.Sprintf("no assignment found for role %q at %q", e.Role, e.Scope)
}
