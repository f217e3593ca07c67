package cmd

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/praetorian-inc/pimctl/internal/message"
	"github.com/praetorian-inc/pimctl/internal/output"
	"github.com/praetorian-inc/pimctl/pkg/pim"
)

var (
	roleAssignmentListScope   scopeFlags
	roleAssignmentDeleteScope scopeFlags
	roleDefinitionListScope   scopeFlags
	roleResourcesListScope    scopeFlags
)

func init() {
	rootCmd.AddCommand(roleCmd)
	roleCmd.AddCommand(roleAssignmentCmd, roleDefinitionCmd, roleResourcesCmd)
	roleAssignmentCmd.AddCommand(roleAssignmentListCmd, roleAssignmentDeleteCmd, roleAssignmentDeleteSetCmd)
	roleDefinitionCmd.AddCommand(roleDefinitionListCmd)
	roleResourcesCmd.AddCommand(roleResourcesListCmd)

	roleAssignmentListScope.register(roleAssignmentListCmd)
	roleAssignmentListCmd.Flags().String("jq", "", "jq expression applied to the output")

	roleAssignmentDeleteScope.register(roleAssignmentDeleteCmd)
	roleAssignmentDeleteCmd.Flags().Bool("yes", false, "delete without prompting")

	roleAssignmentDeleteSetCmd.Flags().String("config", "", "assignment list file, or - for stdin")
	roleAssignmentDeleteSetCmd.Flags().Int("concurrency", pim.DefaultConcurrency, "maximum simultaneous deletions")
	roleAssignmentDeleteSetCmd.Flags().Bool("yes", false, "delete without prompting")

	roleDefinitionListScope.register(roleDefinitionListCmd)
	roleDefinitionListCmd.Flags().String("jq", "", "jq expression applied to the output")

	roleResourcesListScope.register(roleResourcesListCmd)
	roleResourcesListCmd.Flags().Bool("skip-nested", false, "list direct children only")
	roleResourcesListCmd.Flags().String("jq", "", "jq expression applied to the output")
}

var roleCmd = &cobra.Command{
	Use:   "role",
	Short: "Inspect and manage role assignments, definitions, and resources",
}

var roleAssignmentCmd = &cobra.Command{
	Use:   "assignment",
	Short: "Manage persistent role assignments",
}

var roleAssignmentListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the role assignments at a scope",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		session, err := newSession(ctx)
		if err != nil {
			return err
		}
		scope, err := session.resolveScope(ctx, &roleAssignmentListScope)
		if err != nil {
			return err
		}

		assignments, err := session.client.ListRoleAssignments(ctx, scope)
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

var roleAssignmentDeleteCmd = &cobra.Command{
	Use:   "delete ROLE PRINCIPAL_ID",
	Short: "Delete one role assignment at a scope",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		role, principal := args[0], args[1]

		session, err := newSession(ctx)
		if err != nil {
			return err
		}
		scope, err := session.resolveScope(ctx, &roleAssignmentDeleteScope)
		if err != nil {
			return err
		}

		assignments, err := session.client.ListRoleAssignments(ctx, scope)
		if err != nil {
			return err
		}

		var target *pim.Assignment
		for i, a := range assignments {
			if strings.EqualFold(a.Role, role) && strings.EqualFold(a.PrincipalID, principal) {
				target = &assignments[i]
				break
			}
		}
		if target == nil {
			return &pim.AssignmentNotFoundError{Role: role, Scope: string(scope)}
		}

		yes, _ := cmd.Flags().GetBool("yes")
		if !confirmed(yes, "delete assignment %q for principal %s at %q?", target.Role, target.PrincipalID, scope) {
			message.Info("aborted")
			return nil
		}

		op := pim.Operation{Action: pim.ActionRemoveAssignment, Role: target.Role, Scope: target.Scope, Target: *target}
		return runBatch(ctx, session.client, []pim.Operation{op}, 1, nil)
	},
}

var roleAssignmentDeleteSetCmd = &cobra.Command{
	Use:   "delete-set",
	Short: "Delete a declared set of role assignments",
	Long: `Delete every assignment in a config file. The input is the JSON that
'role assignment list' emits, so listings pipe straight into deletion.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		assignments, err := loadAssignments(cmd)
		if err != nil {
			return err
		}

		session, err := newSession(ctx)
		if err != nil {
			return err
		}

		yes, _ := cmd.Flags().GetBool("yes")
		if !confirmed(yes, "delete %d role assignments?", len(assignments)) {
			message.Info("aborted")
			return nil
		}

		var ops []pim.Operation
		for _, a := range assignments {
			ops = append(ops, pim.Operation{
				Action: pim.ActionRemoveAssignment,
				Role:   a.Role,
				Scope:  a.Scope,
				Target: a,
			})
		}
		return runBatch(ctx, session.client, ops, intSetting(cmd, "concurrency"), nil)
	},
}

var roleDefinitionCmd = &cobra.Command{
	Use:   "definition",
	Short: "Inspect role definitions",
}

var roleDefinitionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the role definitions usable at a scope",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		session, err := newSession(ctx)
		if err != nil {
			return err
		}
		scope, err := session.resolveScope(ctx, &roleDefinitionListScope)
		if err != nil {
			return err
		}

		definitions, err := session.client.ListRoleDefinitions(ctx, scope)
		if err != nil {
			return err
		}
		if definitions == nil {
			definitions = []pim.RoleDefinition{}
		}

		jqExpr, _ := cmd.Flags().GetString("jq")
		return output.Render(definitions, jqExpr)
	},
}

var roleResourcesCmd = &cobra.Command{
	Use:   "resources",
	Short: "Inspect resources that can hold eligible assignments",
}

var roleResourcesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the eligible child resources under a scope",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		session, err := newSession(ctx)
		if err != nil {
			return err
		}
		scope, err := session.resolveScope(ctx, &roleResourcesListScope)
		if err != nil {
			return err
		}

		skipNested, _ := cmd.Flags().GetBool("skip-nested")
		resources, err := pim.ListResources(ctx, session.client, scope, skipNested)
		if err != nil {
			return err
		}
		if resources == nil {
			resources = []pim.Resource{}
		}

		jqExpr, _ := cmd.Flags().GetString("jq")
		return output.Render(resources, jqExpr)
	},
}
