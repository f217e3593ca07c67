package cmd

import (
	"github.com/spf13/cobra"

	"github.com/praetorian-inc/pimctl/internal/message"
	"github.com/praetorian-inc/pimctl/pkg/interactive"
	"github.com/praetorian-inc/pimctl/pkg/pim"
)

var deactivateRoleScope scopeFlags

func init() {
	rootCmd.AddCommand(deactivateCmd)
	deactivateCmd.AddCommand(deactivateRoleCmd, deactivateSetCmd, deactivateInteractiveCmd)

	deactivateRoleScope.register(deactivateRoleCmd)
	deactivateRoleCmd.Flags().Int("wait", 0, "seconds to wait for the role to report deactivated")

	deactivateSetCmd.Flags().String("config", "", "role set file, or - for stdin")
	deactivateSetCmd.Flags().StringArray("role", nil, "additional NAME=SCOPE entry, repeatable")
	deactivateSetCmd.Flags().Int("concurrency", pim.DefaultConcurrency, "maximum simultaneous deactivations")
	deactivateSetCmd.Flags().Int("wait", 0, "seconds to wait for each role to report deactivated")

	deactivateInteractiveCmd.Flags().Int("concurrency", pim.DefaultConcurrency, "maximum simultaneous deactivations")
	deactivateInteractiveCmd.Flags().Int("wait", 0, "seconds to wait for each role to report deactivated")
}

var deactivateCmd = &cobra.Command{
	Use:   "deactivate",
	Short: "Deactivate active role assignments",
}

var deactivateRoleCmd = &cobra.Command{
	Use:   "role ROLE",
	Short: "Deactivate a single active role",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		session, err := newSession(ctx)
		if err != nil {
			return err
		}

		op, err := session.resolveSingle(ctx, &deactivateRoleScope, args[0],
			pim.ActionDeactivate, "", 0)
		if err != nil {
			return err
		}

		return runBatch(ctx, session.client, []pim.Operation{op}, 1, waitSetting(cmd))
	},
}

var deactivateSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Deactivate a declared set of roles as one batch",
	Args:  cobra.NoArgs,
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

		ops, err := session.resolveOperations(ctx, entries, pim.ActionDeactivate, "", 0)
		if err != nil {
			return err
		}

		return runBatch(ctx, session.client, ops, intSetting(cmd, "concurrency"), waitSetting(cmd))
	},
}

var deactivateInteractiveCmd = &cobra.Command{
	Use:   "interactive",
	Short: "Pick roles to deactivate in a terminal picker",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		session, err := newSession(ctx)
		if err != nil {
			return err
		}

		active, err := session.client.ListActive(ctx, "", pim.FilterAsTarget)
		if err != nil {
			return err
		}
		if len(active) == 0 {
			message.Info("no active assignments")
			return nil
		}

		model, err := interactive.Run(interactive.New(interactive.ModeDeactivate, active, interactive.Options{}))
		if err != nil {
			return err
		}
		if model.Cancelled() {
			message.Info("cancelled, nothing deactivated")
			return nil
		}

		return runBatch(ctx, session.client, model.Operations(),
			intSetting(cmd, "concurrency"), waitSetting(cmd))
	},
}
