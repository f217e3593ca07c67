package cmd

import (
	"github.com/spf13/cobra"

	"github.com/praetorian-inc/pimctl/pkg/pim"
)

// scopeFlags is the scope selector shared by every command that addresses
// a resource tree position: --subscription/--resource-group/--provider,
// --management-group, or an explicit --scope path.
type scopeFlags struct {
	subscription    string
	resourceGroup   string
	provider        string
	managementGroup string
	scope           string
}

func (f *scopeFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.subscription, "subscription", "", "subscription id or display name")
	cmd.Flags().StringVar(&f.resourceGroup, "resource-group", "", "resource group name, requires --subscription")
	cmd.Flags().StringVar(&f.provider, "provider", "", "provider resource path, requires --resource-group")
	cmd.Flags().StringVar(&f.managementGroup, "management-group", "", "management group name or display name")
	cmd.Flags().StringVar(&f.scope, "scope", "", "fully qualified scope path")

	cmd.MarkFlagsMutuallyExclusive("subscription", "scope")
	cmd.MarkFlagsMutuallyExclusive("subscription", "management-group")
	cmd.MarkFlagsMutuallyExclusive("management-group", "scope")
}

func (f *scopeFlags) target() pim.Target {
	return pim.Target{
		Subscription:    f.subscription,
		ResourceGroup:   f.resourceGroup,
		Provider:        f.provider,
		ManagementGroup: f.managementGroup,
		Scope:           f.scope,
	}
}

func (f *scopeFlags) empty() bool {
	return f.target().IsZero()
}
