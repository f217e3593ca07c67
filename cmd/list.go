package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/praetorian-inc/pimctl/internal/output"
	"github.com/praetorian-inc/pimctl/pkg/pim"
)

var listScope scopeFlags

func init() {
	rootCmd.AddCommand(listCmd)
	listScope.register(listCmd)
	listCmd.Flags().Bool("active", false, "list activated assignments instead of eligible ones")
	listCmd.Flags().String("filter", "asTarget", "listing filter: asTarget (your assignments) or atScope (everyone's)")
	listCmd.Flags().String("jq", "", "jq expression applied to the output")
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List eligible or active role assignments",
	Long: `List the role assignments visible to the signed-in principal, as JSON
on stdout. Without a scope selector the listing spans the whole tenant.
The output feeds straight back into 'activate set --config -'.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		session, err := newSession(ctx)
		if err != nil {
			return err
		}

		var scope pim.Scope
		if !listScope.empty() {
			scope, err = session.resolveScope(ctx, &listScope)
			if err != nil {
				return err
			}
		}

		filter := pim.FilterAsTarget
		switch value, _ := cmd.Flags().GetString("filter"); value {
		case "asTarget":
		case "atScope":
			filter = pim.FilterAtScope
		default:
			return fmt.Errorf("unknown filter %q: expected asTarget or atScope", value)
		}

		active, _ := cmd.Flags().GetBool("active")
		var assignments []pim.Assignment
		if active {
			assignments, err = session.client.ListActive(ctx, scope, filter)
		} else {
			assignments, err = session.client.ListEligible(ctx, scope, filter)
		}
		if err != nil {
			return err
		}
		if assignments == nil {
			assignments = []pim.Assignment{}
		}

		jqExpr, _ := cmd.Flags().GetString("jq")
		return output.Render(assignments, jqExpr)
	},
}
