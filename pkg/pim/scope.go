package pim

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Scope is a fully qualified hierarchical resource path, for example
// /subscriptions/<id> or /subscriptions/<id>/resourceGroups/<name>.
// A Scope never changes once built.
type Scope string

// ParseScope checks that s is a resource path and returns it verbatim.
func ParseScope(s string) (Scope, error) {
	if !strings.HasPrefix(s, "/") {
		return "", fmt.Errorf("scope %q must start with /", s)
	}
	return Scope(s), nil
}

func SubscriptionScope(id string) Scope {
	return Scope("/subscriptions/" + id)
}

func ResourceGroupScope(subscription, group string) Scope {
	return Scope(fmt.Sprintf("/subscriptions/%s/resourceGroups/%s", subscription, group))
}

func ProviderScope(subscription, group, provider string) Scope {
	return Scope(fmt.Sprintf("/subscriptions/%s/resourceGroups/%s/providers/%s",
		subscription, group, strings.TrimPrefix(provider, "/")))
}

func ManagementGroupScope(id string) Scope {
	return Scope("/providers/Microsoft.Management/managementGroups/" + id)
}

func (s Scope) String() string { return string(s) }

func (s Scope) IsZero() bool { return s == "" }

// Contains reports whether other sits at or below s in the resource tree.
// Comparison is segment-wise and case-insensitive.
func (s Scope) Contains(other Scope) bool {
	a := s.segments()
	b := other.segments()
	if len(a) > len(b) {
		return false
	}
	for i := range a {
		if !strings.EqualFold(a[i], b[i]) {
			return false
		}
	}
	return true
}

func (s Scope) segments() []string {
	trimmed := strings.Trim(string(s), "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

// Target is the operator's description of where an operation applies,
// before resolution into a single scope path.
type Target struct {
	Subscription    string
	ResourceGroup   string
	Provider        string
	ManagementGroup string
	Scope           string
}

func (t Target) IsZero() bool {
	return t == Target{}
}

// Validate enforces the selector hierarchy without touching the network.
// An explicit scope or management group bypasses the hierarchy entirely.
func (t Target) Validate() error {
	if t.Scope != "" || t.ManagementGroup != "" {
		return nil
	}
	if t.ResourceGroup != "" && t.Subscription == "" {
		return &MissingPrerequisiteError{Field: "resource-group", Requires: "subscription"}
	}
	if t.Provider != "" && t.ResourceGroup == "" {
		return &MissingPrerequisiteError{Field: "provider", Requires: "resource-group"}
	}
	return nil
}

// Resolved carries a resolution result: either a concrete scope path, or a
// friendly name that still has to be matched against assignment listings.
type Resolved struct {
	Scope Scope
	Name  string
}

// ByName reports whether the target must be matched by display name.
func (r Resolved) ByName() bool { return r.Name != "" }

func (r Resolved) IsZero() bool { return r.Scope == "" && r.Name == "" }

// SubscriptionLookup resolves a subscription display name to its id.
type SubscriptionLookup interface {
	SubscriptionID(ctx context.Context, nameOrID string) (string, error)
}

// ManagementGroupLookup resolves a management group display name to its id.
type ManagementGroupLookup interface {
	ManagementGroupID(ctx context.Context, nameOrID string) (string, error)
}

// Resolver turns Targets into scope paths. The lookups may be nil, which
// restricts resolution to ids and explicit paths. Resolution failures are
// configuration errors and are never retried.
type Resolver struct {
	Subscriptions    SubscriptionLookup
	ManagementGroups ManagementGroupLookup
}

// Resolve validates the target and produces its scope. An explicit path is
// returned verbatim; a scope value without a leading slash is handed back as
// a friendly name for the caller to match against listings.
func (r *Resolver) Resolve(ctx context.Context, t Target) (Resolved, error) {
	if err := t.Validate(); err != nil {
		return Resolved{}, err
	}

	switch {
	case t.Scope != "":
		if strings.HasPrefix(t.Scope, "/") {
			return Resolved{Scope: Scope(t.Scope)}, nil
		}
		return Resolved{Name: t.Scope}, nil

	case t.ManagementGroup != "":
		id := t.ManagementGroup
		if r.ManagementGroups != nil {
			resolved, err := r.ManagementGroups.ManagementGroupID(ctx, id)
			if err != nil {
				return Resolved{}, err
			}
			id = resolved
		}
		return Resolved{Scope: ManagementGroupScope(id)}, nil

	case t.Subscription != "":
		id := t.Subscription
		if _, err := uuid.Parse(id); err != nil {
			if r.Subscriptions == nil {
				return Resolved{}, &UnknownScopeError{Name: id}
			}
			resolved, err := r.Subscriptions.SubscriptionID(ctx, id)
			if err != nil {
				return Resolved{}, err
			}
			id = resolved
		}
		switch {
		case t.Provider != "":
			return Resolved{Scope: ProviderScope(id, t.ResourceGroup, t.Provider)}, nil
		case t.ResourceGroup != "":
			return Resolved{Scope: ResourceGroupScope(id, t.ResourceGroup)}, nil
		default:
			return Resolved{Scope: SubscriptionScope(id)}, nil
		}

	default:
		return Resolved{}, nil
	}
}
