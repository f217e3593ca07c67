package pim

import (
	"context"
	"log/slog"
)

// IdentityDirectory answers whether principal ids still resolve in the
// identity provider. Known returns the subset of ids that exist; an error
// means the lookup itself failed and nothing can be concluded.
type IdentityDirectory interface {
	Known(ctx context.Context, ids []string) (map[string]struct{}, error)
}

// OrphanCandidate is a role assignment whose principal no longer resolves
// in the identity directory.
type OrphanCandidate struct {
	Assignment
	// OrphanedPrincipal is the id whose directory lookup came back empty.
	OrphanedPrincipal string `json:"orphaned_principal"`
}

// Detector finds assignments left behind by deleted principals. It only
// produces candidates; deletion is the caller's decision.
type Detector struct {
	Directory Directory
	Identity  IdentityDirectory
	Log       *slog.Logger
}

func (d *Detector) log() *slog.Logger {
	if d.Log != nil {
		return d.Log
	}
	return slog.Default()
}

// Assignments returns the orphaned persistent role assignments at scope
// and, unless skipNested, at every eligible child resource under it.
func (d *Detector) Assignments(ctx context.Context, scope Scope, skipNested bool) ([]OrphanCandidate, error) {
	return d.find(ctx, scope, skipNested, d.Directory.ListRoleAssignments)
}

// Eligible returns the orphaned eligible assignments at scope and, unless
// skipNested, at every eligible child resource under it.
func (d *Detector) Eligible(ctx context.Context, scope Scope, skipNested bool) ([]OrphanCandidate, error) {
	list := func(ctx context.Context, s Scope) ([]Assignment, error) {
		return d.Directory.ListEligible(ctx, s, FilterAtScope)
	}
	return d.find(ctx, scope, skipNested, list)
}

func (d *Detector) find(ctx context.Context, scope Scope, skipNested bool,
	list func(context.Context, Scope) ([]Assignment, error)) ([]OrphanCandidate, error) {

	scopes, err := d.enumerate(ctx, scope, skipNested)
	if err != nil {
		return nil, err
	}

	// The same assignment is reachable through more than one enumeration
	// path when scopes nest; dedup by assignment id.
	seen := map[string]struct{}{}
	var assignments []Assignment
	for _, s := range scopes {
		listed, err := list(ctx, s)
		if err != nil {
			return nil, err
		}
		for _, a := range listed {
			id := a.ID
			if id == "" {
				id = a.Key()
			}
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			assignments = append(assignments, a)
		}
	}

	return d.diff(ctx, assignments), nil
}

// enumerate returns root plus, unless skipNested, the scope of every
// eligible child resource reachable from it.
func (d *Detector) enumerate(ctx context.Context, root Scope, skipNested bool) ([]Scope, error) {
	out := []Scope{root}
	if skipNested {
		return out, nil
	}

	resources, err := ListResources(ctx, d.Directory, root, false)
	if err != nil {
		return nil, err
	}
	for _, r := range resources {
		out = append(out, Scope(r.ID))
	}
	return out, nil
}

// ListResources walks the eligible child resources under root. With
// skipNested only the direct children are returned; otherwise the walk
// descends into every container, with a visited set guarding against
// repeated reachability.
func ListResources(ctx context.Context, dir Directory, root Scope, skipNested bool) ([]Resource, error) {
	visited := map[Scope]struct{}{root: {}}
	var out []Resource
	queue := []Scope{root}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		children, err := dir.ListChildResources(ctx, current)
		if err != nil {
			return nil, err
		}
		for _, child := range children {
			scope := Scope(child.ID)
			if _, ok := visited[scope]; ok {
				continue
			}
			visited[scope] = struct{}{}
			out = append(out, child)
			if !skipNested && child.Container() {
				queue = append(queue, scope)
			}
		}
		if skipNested {
			break
		}
	}
	return out, nil
}

// diff looks up every distinct principal and keeps the assignments whose
// principal no longer exists. A failed lookup is inconclusive: those
// assignments are skipped with a warning, never reported as orphans.
func (d *Detector) diff(ctx context.Context, assignments []Assignment) []OrphanCandidate {
	ids := map[string]struct{}{}
	for _, a := range assignments {
		if a.PrincipalID != "" {
			ids[a.PrincipalID] = struct{}{}
		}
	}
	if len(ids) == 0 {
		return nil
	}

	lookup := make([]string, 0, len(ids))
	for id := range ids {
		lookup = append(lookup, id)
	}

	known, err := d.Identity.Known(ctx, lookup)
	if err != nil {
		d.log().Warn("principal lookup failed, skipping orphan detection for this pass", "error", err)
		return nil
	}

	var out []OrphanCandidate
	for _, a := range assignments {
		if a.PrincipalID == "" {
			continue
		}
		if _, ok := known[a.PrincipalID]; ok {
			continue
		}
		out = append(out, OrphanCandidate{Assignment: a, OrphanedPrincipal: a.PrincipalID})
	}
	return out
}
