package pim

import (
	"context"
	"fmt"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/managementgroups/armmanagementgroups"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/resources/armsubscriptions"
)

// ARMLookup resolves friendly subscription and management group names to
// their ids by listing what the credential can see. It backs the Resolver
// when scope selectors carry display names instead of ids.
type ARMLookup struct {
	subscriptions    *armsubscriptions.Client
	managementGroups *armmanagementgroups.Client
}

func NewARMLookup(cred azcore.TokenCredential) (*ARMLookup, error) {
	opts := ClientOptions()

	subs, err := armsubscriptions.NewClient(cred, opts)
	if err != nil {
		return nil, fmt.Errorf("building subscriptions client: %w", err)
	}
	groups, err := armmanagementgroups.NewClient(cred, opts)
	if err != nil {
		return nil, fmt.Errorf("building management groups client: %w", err)
	}
	return &ARMLookup{subscriptions: subs, managementGroups: groups}, nil
}

// SubscriptionID resolves a subscription display name (or id) to its id.
func (l *ARMLookup) SubscriptionID(ctx context.Context, nameOrID string) (string, error) {
	pager := l.subscriptions.NewListPager(nil)
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return "", fmt.Errorf("listing subscriptions: %w", err)
		}
		for _, sub := range page.Value {
			if sub == nil {
				continue
			}
			if strings.EqualFold(deref(sub.DisplayName), nameOrID) ||
				strings.EqualFold(deref(sub.SubscriptionID), nameOrID) {
				return deref(sub.SubscriptionID), nil
			}
		}
	}
	return "", &UnknownScopeError{Name: nameOrID}
}

// ManagementGroupID resolves a management group display name (or name) to
// the name segment its scope path uses.
func (l *ARMLookup) ManagementGroupID(ctx context.Context, nameOrID string) (string, error) {
	pager := l.managementGroups.NewListPager(nil)
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return "", fmt.Errorf("listing management groups: %w", err)
		}
		for _, group := range page.Value {
			if group == nil {
				continue
			}
			display := ""
			if group.Properties != nil {
				display = deref(group.Properties.DisplayName)
			}
			if strings.EqualFold(deref(group.Name), nameOrID) || strings.EqualFold(display, nameOrID) {
				return deref(group.Name), nil
			}
		}
	}
	return "", &UnknownScopeError{Name: nameOrID}
}
