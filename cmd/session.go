package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/praetorian-inc/pimctl/internal/message"
	"github.com/praetorian-inc/pimctl/pkg/graph"
	"github.com/praetorian-inc/pimctl/pkg/pim"
)

// session bundles the clients a command needs: the authorization
// directory, the Graph identity directory, and the scope resolver. Built
// once per invocation, after flag validation.
type session struct {
	client   *pim.Client
	identity *graph.Client
	resolver *pim.Resolver
}

func newSession(ctx context.Context) (*session, error) {
	cred, err := pim.Credential()
	if err != nil {
		return nil, err
	}

	identity, err := graph.NewClient(cred)
	if err != nil {
		return nil, err
	}

	principal, err := pim.PrincipalID(ctx, cred)
	if err != nil {
		// Tokens from some credential sources omit the oid claim; Graph
		// still knows who we are.
		principal, err = identity.Me(ctx)
		if err != nil {
			return nil, fmt.Errorf("resolving signed-in principal: %w", err)
		}
	}

	client, err := pim.NewClient(cred, principal)
	if err != nil {
		return nil, err
	}

	lookup, err := pim.NewARMLookup(cred)
	if err != nil {
		return nil, err
	}

	return &session{
		client:   client,
		identity: identity,
		resolver: &pim.Resolver{Subscriptions: lookup, ManagementGroups: lookup},
	}, nil
}

// resolveScope validates and resolves a selector that must end in a
// concrete scope path.
func (s *session) resolveScope(ctx context.Context, flags *scopeFlags) (pim.Scope, error) {
	resolved, err := s.resolver.Resolve(ctx, flags.target())
	if err != nil {
		return "", err
	}
	if resolved.ByName() {
		return "", &pim.UnknownScopeError{Name: resolved.Name}
	}
	if resolved.IsZero() {
		return "", fmt.Errorf("a scope selector is required: --subscription, --management-group, or --scope")
	}
	return resolved.Scope, nil
}

// resolveOperations matches role-set entries against the operator's own
// tenant-wide listings: eligible assignments for activation, active ones
// for deactivation. Any entry that matches nothing aborts the whole batch
// before a single mutation runs.
func (s *session) resolveOperations(ctx context.Context, entries []pim.RoleSetEntry,
	action pim.Action, justification string, duration time.Duration) ([]pim.Operation, error) {

	var (
		listed []pim.Assignment
		err    error
	)
	if action == pim.ActionActivate {
		listed, err = s.client.ListEligible(ctx, "", pim.FilterAsTarget)
	} else {
		listed, err = s.client.ListActive(ctx, "", pim.FilterAsTarget)
	}
	if err != nil {
		return nil, err
	}

	var ops []pim.Operation
	for _, entry := range entries {
		target, ok := pim.FindAssignment(listed, entry.Role, entry.Scope)
		if !ok {
			return nil, &pim.AssignmentNotFoundError{Role: entry.Role, Scope: entry.Scope}
		}
		ops = append(ops, pim.Operation{
			Action:        action,
			Role:          target.Role,
			Scope:         target.Scope,
			Justification: justification,
			Duration:      duration,
			Target:        target,
		})
	}
	return ops, nil
}

// resolveSingle builds the one operation for `activate role` and
// `deactivate role`. Without a scope selector the role must match exactly
// one assignment in the operator's listings.
func (s *session) resolveSingle(ctx context.Context, flags *scopeFlags, role string,
	action pim.Action, justification string, duration time.Duration) (pim.Operation, error) {

	resolved, err := s.resolver.Resolve(ctx, flags.target())
	if err != nil {
		return pim.Operation{}, err
	}

	var listed []pim.Assignment
	if action == pim.ActionActivate {
		listed, err = s.client.ListEligible(ctx, "", pim.FilterAsTarget)
	} else {
		listed, err = s.client.ListActive(ctx, "", pim.FilterAsTarget)
	}
	if err != nil {
		return pim.Operation{}, err
	}

	var target pim.Assignment
	switch {
	case resolved.ByName():
		var ok bool
		target, ok = pim.FindAssignment(listed, role, resolved.Name)
		if !ok {
			return pim.Operation{}, &pim.AssignmentNotFoundError{Role: role, Scope: resolved.Name}
		}
	case !resolved.IsZero():
		var ok bool
		target, ok = pim.FindAssignment(listed, role, string(resolved.Scope))
		if !ok {
			return pim.Operation{}, &pim.AssignmentNotFoundError{Role: role, Scope: string(resolved.Scope)}
		}
	default:
		matches := pim.FindByRole(listed, role)
		switch len(matches) {
		case 0:
			return pim.Operation{}, &pim.AssignmentNotFoundError{Role: role}
		case 1:
			target = matches[0]
		default:
			for _, m := range matches {
				message.Info("candidate: %s at %s", m.Role, m.Display())
			}
			return pim.Operation{}, fmt.Errorf("role %q matches %d assignments, add a scope selector", role, len(matches))
		}
	}

	return pim.Operation{
		Action:        action,
		Role:          target.Role,
		Scope:         target.Scope,
		Justification: justification,
		Duration:      duration,
		Target:        target,
	}, nil
}

// runBatch executes the operations and prints one progress line per
// outcome. The returned error is non-nil when any operation failed or
// timed out waiting, which drives the process exit code.
func runBatch(ctx context.Context, dir pim.Directory, ops []pim.Operation,
	concurrency int, wait *time.Duration) error {

	if len(ops) == 0 {
		message.Info("nothing to do")
		return nil
	}

	orchestrator := &pim.Orchestrator{
		Directory:   dir,
		Concurrency: concurrency,
		Wait:        wait,
	}
	report := orchestrator.Run(ctx, ops)

	for _, outcome := range report.Outcomes {
		switch outcome.Kind {
		case pim.Succeeded:
			message.Success("%s", outcome.Operation.Describe())
		case pim.TimedOutWaiting:
			message.Warning("%s: %v", outcome.Operation.Describe(), outcome.Err)
		default:
			message.Error("%s: %v", outcome.Operation.Describe(), outcome.Err)
		}
	}

	if failed := report.Failed(); len(failed) > 0 {
		return fmt.Errorf("%d of %d operations did not complete", len(failed), len(report.Outcomes))
	}
	return nil
}

// confirmed gates destructive commands: --yes skips the prompt, and a
// non-interactive stdin declines rather than hanging.
func confirmed(yes bool, format string, args ...interface{}) bool {
	if yes {
		return true
	}
	if !message.InteractiveInput() {
		message.Warning("stdin is not a terminal, pass --yes to proceed")
		return false
	}
	return message.Confirm(format, args...)
}

// loadAssignments reads full assignment objects, as emitted by the
// listing commands, from --config or piped stdin.
func loadAssignments(cmd *cobra.Command) ([]pim.Assignment, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" && !isatty.IsTerminal(os.Stdin.Fd()) && !isatty.IsCygwinTerminal(os.Stdin.Fd()) {
		path = "-"
	}
	if path == "" {
		return nil, fmt.Errorf("no assignments given: use --config or pipe a listing in")
	}

	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("reading assignments: %w", err)
	}

	var assignments []pim.Assignment
	if err := json.Unmarshal(data, &assignments); err != nil {
		return nil, fmt.Errorf("parsing assignments %q: %w", path, err)
	}
	if len(assignments) == 0 {
		return nil, fmt.Errorf("assignment list %q is empty", path)
	}
	return assignments, nil
}

// loadEntries gathers role-set entries from --config (with "-" or piped
// stdin meaning standard input) merged with any --role NAME=SCOPE flags.
func loadEntries(cmd *cobra.Command) ([]pim.RoleSetEntry, error) {
	var entries []pim.RoleSetEntry

	path, _ := cmd.Flags().GetString("config")
	if path == "" && !isatty.IsTerminal(os.Stdin.Fd()) && !isatty.IsCygwinTerminal(os.Stdin.Fd()) {
		path = "-"
	}
	if path != "" {
		loaded, err := pim.LoadRoleSet(path, os.Stdin)
		if err != nil {
			return nil, err
		}
		entries = loaded
	}

	roleFlags, _ := cmd.Flags().GetStringArray("role")
	for _, rf := range roleFlags {
		entry, err := pim.ParseRoleFlag(rf)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}

	if len(entries) == 0 {
		return nil, fmt.Errorf("no roles given: use --config or --role NAME=SCOPE")
	}
	return entries, nil
}
