package cmd

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/praetorian-inc/pimctl/internal/message"
	"github.com/praetorian-inc/pimctl/pkg/pim"
)

// activationWait is how long `cleanup auto` waits for its own role
// activations before scanning, since the scans need the activated
// permissions to be in effect.
const activationWait = 5 * time.Minute

var (
	cleanupAssignmentsScope scopeFlags
	cleanupEligibleScope    scopeFlags
	cleanupAllScope         scopeFlags
)

func init() {
	rootCmd.AddCommand(cleanupCmd)
	cleanupCmd.AddCommand(cleanupAssignmentsCmd, cleanupEligibleCmd, cleanupAllCmd, cleanupAutoCmd)

	for _, pair := range []struct {
		cmd   *cobra.Command
		scope *scopeFlags
	}{
		{cleanupAssignmentsCmd, &cleanupAssignmentsScope},
		{cleanupEligibleCmd, &cleanupEligibleScope},
		{cleanupAllCmd, &cleanupAllScope},
	} {
		pair.scope.register(pair.cmd)
		pair.cmd.Flags().Bool("yes", false, "delete without prompting")
		pair.cmd.Flags().Bool("skip-nested", false, "scan the given scope only, not its child resources")
		pair.cmd.Flags().Int("concurrency", pim.DefaultConcurrency, "maximum simultaneous deletions")
	}

	cleanupAutoCmd.Flags().Bool("yes", false, "delete without prompting")
	cleanupAutoCmd.Flags().Bool("skip-nested", false, "scan each scope only, not its child resources")
	cleanupAutoCmd.Flags().String("config", "", "role set file naming the roles to activate first, or - for stdin")
	cleanupAutoCmd.Flags().StringArray("role", nil, "additional NAME=SCOPE entry, repeatable")
	cleanupAutoCmd.Flags().Int("concurrency", pim.DefaultConcurrency, "maximum simultaneous operations")
}

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Find and delete role assignments whose principals no longer exist",
}

var cleanupAssignmentsCmd = &cobra.Command{
	Use:   "orphaned-assignments",
	Short: "Delete role assignments pointing at deleted principals",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCleanup(cmd, &cleanupAssignmentsScope, true, false)
	},
}

var cleanupEligibleCmd = &cobra.Command{
	Use:   "orphaned-eligible-assignments",
	Short: "Delete eligible assignments pointing at deleted principals",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCleanup(cmd, &cleanupEligibleScope, false, true)
	},
}

var cleanupAllCmd = &cobra.Command{
	Use:   "all",
	Short: "Run both orphan passes at a scope",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCleanup(cmd, &cleanupAllScope, true, true)
	},
}

var cleanupAutoCmd = &cobra.Command{
	Use:   "auto",
	Short: "Activate a role set, then run both orphan passes over its scopes",
	Long: `Activate the roles in a role-set config, wait for the activations to
take effect, then scan every distinct scope in the set for orphaned
assignments and eligible assignments and delete what the operator
confirms.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		entries, err := loadEntries(cmd)
		if err != nil {
			return err
		}

		session, err := newSession(ctx)
		if err != nil {
			return err
		}

		ops, err := session.resolveOperations(ctx, entries,
			pim.ActionActivate, "pimctl cleanup auto", pim.DefaultDuration)
		if err != nil {
			return err
		}

		message.Info("activating %d roles before scanning", len(ops))
		wait := activationWait
		if err := runBatch(ctx, session.client, ops, intSetting(cmd, "concurrency"), &wait); err != nil {
			return err
		}

		yes, _ := cmd.Flags().GetBool("yes")
		skipNested, _ := cmd.Flags().GetBool("skip-nested")

		for _, raw := range pim.DistinctScopes(entries) {
			scope := pim.Scope(raw)
			if !scope.IsZero() && raw[0] != '/' {
				// Friendly names in the set resolve to the scope the
				// activation actually landed on.
				for _, op := range ops {
					if op.Target.ScopeName == raw {
						scope = op.Scope
						break
					}
				}
			}
			message.Section("cleanup %s", scope)
			if err := cleanupScope(ctx, cmd, session, scope, true, true, yes, skipNested); err != nil {
				return err
			}
		}
		return nil
	},
}

func runCleanup(cmd *cobra.Command, flags *scopeFlags, assignments, eligible bool) error {
	ctx := cmd.Context()

	session, err := newSession(ctx)
	if err != nil {
		return err
	}
	scope, err := session.resolveScope(ctx, flags)
	if err != nil {
		return err
	}

	yes, _ := cmd.Flags().GetBool("yes")
	skipNested, _ := cmd.Flags().GetBool("skip-nested")
	return cleanupScope(ctx, cmd, session, scope, assignments, eligible, yes, skipNested)
}

func cleanupScope(ctx context.Context, cmd *cobra.Command, session *session,
	scope pim.Scope, assignments, eligible, yes, skipNested bool) error {

	detector := &pim.Detector{Directory: session.client, Identity: session.identity}

	if assignments {
		candidates, err := detector.Assignments(ctx, scope, skipNested)
		if err != nil {
			return err
		}
		if err := deleteCandidates(ctx, cmd, session, candidates, pim.ActionRemoveAssignment, yes); err != nil {
			return err
		}
	}

	if eligible {
		candidates, err := detector.Eligible(ctx, scope, skipNested)
		if err != nil {
			return err
		}
		if err := deleteCandidates(ctx, cmd, session, candidates, pim.ActionRemoveEligible, yes); err != nil {
			return err
		}
	}
	return nil
}

func deleteCandidates(ctx context.Context, cmd *cobra.Command, session *session,
	candidates []pim.OrphanCandidate, action pim.Action, yes bool) error {

	kind := "assignments"
	if action == pim.ActionRemoveEligible {
		kind = "eligible assignments"
	}

	if len(candidates) == 0 {
		message.Info("no orphaned %s found", kind)
		return nil
	}

	for _, c := range candidates {
		message.Warning("orphaned: %s at %s (principal %s)", c.Role, c.Display(), c.OrphanedPrincipal)
	}
	if !confirmed(yes, "delete %d orphaned %s?", len(candidates), kind) {
		message.Info("skipped %d orphaned %s", len(candidates), kind)
		return nil
	}

	var ops []pim.Operation
	for _, c := range candidates {
		ops = append(ops, pim.Operation{
			Action: action,
			Role:   c.Role,
			Scope:  c.Scope,
			Target: c.Assignment,
		})
	}
	return runBatch(ctx, session.client, ops, intSetting(cmd, "concurrency"), nil)
}
