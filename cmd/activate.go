package cmd

import (
	"github.com/spf13/cobra"

	"github.com/praetorian-inc/pimctl/internal/message"
	"github.com/praetorian-inc/pimctl/pkg/interactive"
	"github.com/praetorian-inc/pimctl/pkg/pim"
)

var activateRoleScope scopeFlags

func init() {
	rootCmd.AddCommand(activateCmd)
	activateCmd.AddCommand(activateRoleCmd, activateSetCmd, activateInteractiveCmd)

	activateRoleScope.register(activateRoleCmd)
	activateRoleCmd.Flags().Int("duration", int(pim.DefaultDuration.Minutes()), "activation duration in minutes")
	activateRoleCmd.Flags().Int("wait", 0, "seconds to wait for the activation to report active")

	activateSetCmd.Flags().String("config", "", "role set file, or - for stdin")
	activateSetCmd.Flags().StringArray("role", nil, "additional NAME=SCOPE entry, repeatable")
	activateSetCmd.Flags().Int("concurrency", pim.DefaultConcurrency, "maximum simultaneous activations")
	activateSetCmd.Flags().Int("duration", int(pim.DefaultDuration.Minutes()), "activation duration in minutes")
	activateSetCmd.Flags().Int("wait", 0, "seconds to wait for each activation to report active")

	activateInteractiveCmd.Flags().String("justification", "", "justification prefilled in the picker")
	activateInteractiveCmd.Flags().Int("concurrency", pim.DefaultConcurrency, "maximum simultaneous activations")
	activateInteractiveCmd.Flags().Int("duration", int(pim.DefaultDuration.Minutes()), "activation duration in minutes")
	activateInteractiveCmd.Flags().Int("wait", 0, "seconds to wait for each activation to report active")
}

var activateCmd = &cobra.Command{
	Use:   "activate",
	Short: "Activate eligible role assignments",
}

var activateRoleCmd = &cobra.Command{
	Use:   "role ROLE JUSTIFICATION",
	Short: "Activate a single eligible role",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		session, err := newSession(ctx)
		if err != nil {
			return err
		}

		op, err := session.resolveSingle(ctx, &activateRoleScope, args[0],
			pim.ActionActivate, args[1], durationSetting(cmd, "duration"))
		if err != nil {
			return err
		}

		return runBatch(ctx, session.client, []pim.Operation{op}, 1, waitSetting(cmd))
	},
}

var activateSetCmd = &cobra.Command{
	Use:   "set JUSTIFICATION",
	Short: "Activate a declared set of roles as one batch",
	Long: `Activate every role in a role-set config. Entries come from --config
(a JSON or YAML file, - for stdin) and repeated --role NAME=SCOPE flags.
Scopes may be fully qualified paths or friendly names matched against
your eligible assignments.`,
	Args: cobra.ExactArgs(1),
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
			pim.ActionActivate, args[0], durationSetting(cmd, "duration"))
		if err != nil {
			return err
		}

		return runBatch(ctx, session.client, ops, intSetting(cmd, "concurrency"), waitSetting(cmd))
	},
}

var activateInteractiveCmd = &cobra.Command{
	Use:   "interactive",
	Short: "Pick roles to activate in a terminal picker",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		session, err := newSession(ctx)
		if err != nil {
			return err
		}

		eligible, err := session.client.ListEligible(ctx, "", pim.FilterAsTarget)
		if err != nil {
			return err
		}
		if len(eligible) == 0 {
			message.Info("no eligible assignments")
			return nil
		}

		justification, _ := cmd.Flags().GetString("justification")
		model, err := interactive.Run(interactive.New(interactive.ModeActivate, eligible, interactive.Options{
			Justification: justification,
			Duration:      durationSetting(cmd, "duration"),
		}))
		if err != nil {
			return err
		}
		if model.Cancelled() {
			message.Info("cancelled, nothing activated")
			return nil
		}

		return runBatch(ctx, session.client, model.Operations(),
			intSetting(cmd, "concurrency"), waitSetting(cmd))
	},
}
