package pim

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/arm"
	armruntime "github.com/Azure/azure-sdk-for-go/sdk/azcore/arm/runtime"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/runtime"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/authorization/armauthorization/v2"
	"github.com/google/uuid"
)

const (
	armEndpoint   = "https://management.azure.com"
	pimAPIVersion = "2020-10-01"

	// commandName is the header value the Azure portal's PIM blade sends;
	// the PIM endpoints expect it on every request.
	commandName = "Microsoft_Azure_PIMCommon."

	// DefaultDuration is how long an activation lasts when the operator
	// gives no --duration.
	DefaultDuration = 480 * time.Minute
)

// Directory is the authorization service as the orchestrator, orphan
// detector, and selector see it. Client implements it against ARM; tests
// substitute fakes.
type Directory interface {
	ListEligible(ctx context.Context, scope Scope, filter ListFilter) ([]Assignment, error)
	ListActive(ctx context.Context, scope Scope, filter ListFilter) ([]Assignment, error)
	ListRoleAssignments(ctx context.Context, scope Scope) ([]Assignment, error)
	ListChildResources(ctx context.Context, scope Scope) ([]Resource, error)
	Activate(ctx context.Context, target Assignment, justification string, duration time.Duration) error
	Deactivate(ctx context.Context, target Assignment) error
	RemoveAssignment(ctx context.Context, target Assignment) error
	RemoveEligible(ctx context.Context, target Assignment) error
	AssignmentState(ctx context.Context, role string, scope Scope) (State, error)
}

// commandNamePolicy stamps the PIM command-name header on every request.
type commandNamePolicy struct{}

func (commandNamePolicy) Do(req *policy.Request) (*http.Response, error) {
	req.Raw().Header.Set("X-Ms-Command-Name", commandName)
	return req.Next()
}

// ClientOptions returns the arm options every pimctl ARM client is built
// with: the command-name policy and the SDK's own retry loop disabled so
// the Retrier owns the whole budget.
func ClientOptions() *arm.ClientOptions {
	return &arm.ClientOptions{
		ClientOptions: policy.ClientOptions{
			PerCallPolicies: []policy.Policy{commandNamePolicy{}},
			Retry:           policy.RetryOptions{MaxRetries: -1},
		},
	}
}

// Client talks to the Azure authorization service: PIM schedule instances
// and requests, plain role assignments, role definitions, and eligible
// child resources. One Client is safe for concurrent use by the worker
// pool.
type Client struct {
	principalID string
	log         *slog.Logger

	// pl issues tenant-root listings; the typed pagers cannot express an
	// empty scope.
	pl runtime.Pipeline

	eligible         *armauthorization.RoleEligibilityScheduleInstancesClient
	active           *armauthorization.RoleAssignmentScheduleInstancesClient
	assignRequests   *armauthorization.RoleAssignmentScheduleRequestsClient
	eligibleRequests *armauthorization.RoleEligibilityScheduleRequestsClient
	assignments      *armauthorization.RoleAssignmentsClient
	definitions      *armauthorization.RoleDefinitionsClient
	children         *armauthorization.EligibleChildResourcesClient

	roleNameMu    sync.Mutex
	roleNameCache map[string]string
}

// NewClient builds the directory client. principalID is the signed-in
// operator's object id, stamped into self-activation requests.
func NewClient(cred azcore.TokenCredential, principalID string) (*Client, error) {
	opts := ClientOptions()

	pl, err := armruntime.NewPipeline("pimctl", "dev", cred, runtime.PipelineOptions{}, opts)
	if err != nil {
		return nil, fmt.Errorf("building ARM pipeline: %w", err)
	}

	eligible, err := armauthorization.NewRoleEligibilityScheduleInstancesClient(cred, opts)
	if err != nil {
		return nil, fmt.Errorf("building eligibility instances client: %w", err)
	}
	active, err := armauthorization.NewRoleAssignmentScheduleInstancesClient(cred, opts)
	if err != nil {
		return nil, fmt.Errorf("building assignment instances client: %w", err)
	}
	assignRequests, err := armauthorization.NewRoleAssignmentScheduleRequestsClient(cred, opts)
	if err != nil {
		return nil, fmt.Errorf("building assignment requests client: %w", err)
	}
	eligibleRequests, err := armauthorization.NewRoleEligibilityScheduleRequestsClient(cred, opts)
	if err != nil {
		return nil, fmt.Errorf("building eligibility requests client: %w", err)
	}
	// The role assignments client wants a subscription id, but the
	// scope-addressed calls used here never reference it.
	assignments, err := armauthorization.NewRoleAssignmentsClient("", cred, opts)
	if err != nil {
		return nil, fmt.Errorf("building role assignments client: %w", err)
	}
	definitions, err := armauthorization.NewRoleDefinitionsClient(cred, opts)
	if err != nil {
		return nil, fmt.Errorf("building role definitions client: %w", err)
	}
	children, err := armauthorization.NewEligibleChildResourcesClient(cred, opts)
	if err != nil {
		return nil, fmt.Errorf("building child resources client: %w", err)
	}

	return &Client{
		principalID:      principalID,
		log:              slog.Default(),
		pl:               pl,
		eligible:         eligible,
		active:           active,
		assignRequests:   assignRequests,
		eligibleRequests: eligibleRequests,
		assignments:      assignments,
		definitions:      definitions,
		children:         children,
		roleNameCache:    map[string]string{},
	}, nil
}

// ListEligible returns the eligible assignments visible at scope. An empty
// scope lists across the whole tenant.
func (c *Client) ListEligible(ctx context.Context, scope Scope, filter ListFilter) ([]Assignment, error) {
	if scope.IsZero() {
		return c.listRoot(ctx, "roleEligibilityScheduleInstances", filter)
	}

	var out []Assignment
	pager := c.eligible.NewListForScopePager(string(scope),
		&armauthorization.RoleEligibilityScheduleInstancesClientListForScopeOptions{Filter: to.Ptr(string(filter))})
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("listing eligible assignments at %q: %w", scope, err)
		}
		for _, inst := range page.Value {
			if inst == nil || inst.Properties == nil {
				continue
			}
			p := inst.Properties
			out = append(out, assignmentFromExpanded(p.ExpandedProperties, p.RoleDefinitionID, p.PrincipalID,
				deref(inst.ID), deref(inst.Name), deref(p.RoleEligibilityScheduleID), p.StartDateTime, p.EndDateTime))
		}
	}
	return out, nil
}

// ListActive returns the activated assignments visible at scope. An empty
// scope lists across the whole tenant.
func (c *Client) ListActive(ctx context.Context, scope Scope, filter ListFilter) ([]Assignment, error) {
	if scope.IsZero() {
		return c.listRoot(ctx, "roleAssignmentScheduleInstances", filter)
	}

	var out []Assignment
	pager := c.active.NewListForScopePager(string(scope),
		&armauthorization.RoleAssignmentScheduleInstancesClientListForScopeOptions{Filter: to.Ptr(string(filter))})
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("listing active assignments at %q: %w", scope, err)
		}
		for _, inst := range page.Value {
			if inst == nil || inst.Properties == nil {
				continue
			}
			p := inst.Properties
			a := assignmentFromExpanded(p.ExpandedProperties, p.RoleDefinitionID, p.PrincipalID,
				deref(inst.ID), deref(inst.Name), deref(p.RoleAssignmentScheduleID), p.StartDateTime, p.EndDateTime)
			if a.ScheduleID == "" {
				a.ScheduleID = deref(p.LinkedRoleEligibilityScheduleID)
			}
			out = append(out, a)
		}
	}
	return out, nil
}

// ListRoleAssignments returns the persistent role assignments at scope,
// role definition ids resolved to display names.
func (c *Client) ListRoleAssignments(ctx context.Context, scope Scope) ([]Assignment, error) {
	var out []Assignment
	pager := c.assignments.NewListForScopePager(string(scope),
		&armauthorization.RoleAssignmentsClientListForScopeOptions{Filter: to.Ptr(string(FilterAtScope))})
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("listing role assignments at %q: %w", scope, err)
		}
		for _, ra := range page.Value {
			if ra == nil || ra.Properties == nil {
				continue
			}
			p := ra.Properties
			out = append(out, Assignment{
				Role:             c.roleName(ctx, deref(p.RoleDefinitionID)),
				Scope:            Scope(deref(p.Scope)),
				RoleDefinitionID: deref(p.RoleDefinitionID),
				PrincipalID:      deref(p.PrincipalID),
				PrincipalType:    string(derefPtr(p.PrincipalType)),
				ID:               deref(ra.ID),
				Name:             deref(ra.Name),
			})
		}
	}
	return out, nil
}

// ListRoleDefinitions returns the role definitions usable at scope.
func (c *Client) ListRoleDefinitions(ctx context.Context, scope Scope) ([]RoleDefinition, error) {
	var out []RoleDefinition
	pager := c.definitions.NewListPager(string(scope), nil)
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("listing role definitions at %q: %w", scope, err)
		}
		for _, def := range page.Value {
			if def == nil || def.Properties == nil {
				continue
			}
			out = append(out, RoleDefinition{
				ID:          deref(def.ID),
				Name:        deref(def.Name),
				RoleName:    deref(def.Properties.RoleName),
				Description: deref(def.Properties.Description),
				Type:        deref(def.Properties.RoleType),
			})
		}
	}
	return out, nil
}

// ListChildResources enumerates the child resources of scope that can hold
// eligible role assignments.
func (c *Client) ListChildResources(ctx context.Context, scope Scope) ([]Resource, error) {
	var out []Resource
	pager := c.children.NewGetPager(string(scope), nil)
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("listing child resources of %q: %w", scope, err)
		}
		for _, r := range page.Value {
			if r == nil {
				continue
			}
			out = append(out, Resource{ID: deref(r.ID), Name: deref(r.Name), Type: deref(r.Type)})
		}
	}
	return out, nil
}

// Activate submits a self-activation schedule request for the target.
// The PIM endpoint rejects a re-activation of an already-active role with
// a 400; those conflicts count as success.
func (c *Client) Activate(ctx context.Context, target Assignment, justification string, duration time.Duration) error {
	if duration <= 0 {
		duration = DefaultDuration
	}

	props := &armauthorization.RoleAssignmentScheduleRequestProperties{
		PrincipalID:      to.Ptr(c.principalID),
		RoleDefinitionID: to.Ptr(target.RoleDefinitionID),
		RequestType:      to.Ptr(armauthorization.RequestTypeSelfActivate),
		Justification:    to.Ptr(justification),
		ScheduleInfo: &armauthorization.RoleAssignmentScheduleRequestPropertiesScheduleInfo{
			StartDateTime: to.Ptr(time.Now().UTC()),
			Expiration: &armauthorization.RoleAssignmentScheduleRequestPropertiesScheduleInfoExpiration{
				Type:     to.Ptr(armauthorization.TypeAfterDuration),
				Duration: to.Ptr(isoDuration(duration)),
			},
		},
	}
	if target.ScheduleID != "" {
		props.LinkedRoleEligibilityScheduleID = to.Ptr(target.ScheduleID)
	}

	_, err := c.assignRequests.Create(ctx, string(target.Scope), uuid.NewString(),
		armauthorization.RoleAssignmentScheduleRequest{Properties: props}, nil)
	if err != nil {
		if benignActivationConflict(err) {
			c.log.Debug("role already active", "role", target.Role, "scope", target.Scope)
			return nil
		}
		return fmt.Errorf("activating %q at %q: %w", target.Role, target.Scope, err)
	}
	return nil
}

// Deactivate submits a self-deactivation schedule request for the target.
func (c *Client) Deactivate(ctx context.Context, target Assignment) error {
	props := &armauthorization.RoleAssignmentScheduleRequestProperties{
		PrincipalID:      to.Ptr(c.principalID),
		RoleDefinitionID: to.Ptr(target.RoleDefinitionID),
		RequestType:      to.Ptr(armauthorization.RequestTypeSelfDeactivate),
	}

	_, err := c.assignRequests.Create(ctx, string(target.Scope), uuid.NewString(),
		armauthorization.RoleAssignmentScheduleRequest{Properties: props}, nil)
	if err != nil {
		return fmt.Errorf("deactivating %q at %q: %w", target.Role, target.Scope, err)
	}
	return nil
}

// RemoveAssignment deletes a persistent role assignment by id. A missing
// assignment counts as removed.
func (c *Client) RemoveAssignment(ctx context.Context, target Assignment) error {
	_, err := c.assignments.DeleteByID(ctx, target.ID, nil)
	if err != nil {
		var respErr *azcore.ResponseError
		if errors.As(err, &respErr) && respErr.StatusCode == http.StatusNotFound {
			return nil
		}
		return fmt.Errorf("removing assignment %q at %q: %w", target.Role, target.Scope, err)
	}
	return nil
}

// RemoveEligible submits an admin-remove eligibility request, revoking the
// target principal's eligibility for the role.
func (c *Client) RemoveEligible(ctx context.Context, target Assignment) error {
	props := &armauthorization.RoleEligibilityScheduleRequestProperties{
		PrincipalID:      to.Ptr(target.PrincipalID),
		RoleDefinitionID: to.Ptr(target.RoleDefinitionID),
		RequestType:      to.Ptr(armauthorization.RequestTypeAdminRemove),
	}
	if target.ScheduleID != "" {
		props.TargetRoleEligibilityScheduleID = to.Ptr(target.ScheduleID)
	}

	_, err := c.eligibleRequests.Create(ctx, string(target.Scope), uuid.NewString(),
		armauthorization.RoleEligibilityScheduleRequest{Properties: props}, nil)
	if err != nil {
		return fmt.Errorf("removing eligibility %q at %q: %w", target.Role, target.Scope, err)
	}
	return nil
}

// AssignmentState reports where the operator's grant for role at scope
// currently sits: Active, Eligible, or Removed.
func (c *Client) AssignmentState(ctx context.Context, role string, scope Scope) (State, error) {
	active, err := c.ListActive(ctx, scope, FilterAsTarget)
	if err != nil {
		return "", err
	}
	if _, ok := FindAssignment(active, role, string(scope)); ok {
		return StateActive, nil
	}

	eligible, err := c.ListEligible(ctx, scope, FilterAsTarget)
	if err != nil {
		return "", err
	}
	if _, ok := FindAssignment(eligible, role, string(scope)); ok {
		return StateEligible, nil
	}
	return StateRemoved, nil
}

// roleName resolves a role definition id to its display name, cached for
// the client's lifetime. Resolution failures fall back to the raw id.
func (c *Client) roleName(ctx context.Context, roleDefinitionID string) string {
	if roleDefinitionID == "" {
		return ""
	}

	c.roleNameMu.Lock()
	name, ok := c.roleNameCache[roleDefinitionID]
	c.roleNameMu.Unlock()
	if ok {
		return name
	}

	resp, err := c.definitions.GetByID(ctx, roleDefinitionID, nil)
	if err != nil || resp.Properties == nil || resp.Properties.RoleName == nil {
		c.log.Debug("resolving role definition", "id", roleDefinitionID, "error", err)
		return roleDefinitionID
	}

	name = *resp.Properties.RoleName
	c.roleNameMu.Lock()
	c.roleNameCache[roleDefinitionID] = name
	c.roleNameMu.Unlock()
	return name
}

// instancePage mirrors the wire shape of a schedule instance listing for
// the tenant-root path, which has no typed pager.
type instancePage struct {
	Value    []scheduleInstance `json:"value"`
	NextLink string             `json:"nextLink"`
}

type scheduleInstance struct {
	ID         string                     `json:"id"`
	Name       string                     `json:"name"`
	Properties scheduleInstanceProperties `json:"properties"`
}

type scheduleInstanceProperties struct {
	RoleDefinitionID          string             `json:"roleDefinitionId"`
	PrincipalID               string             `json:"principalId"`
	RoleEligibilityScheduleID string             `json:"roleEligibilityScheduleId"`
	RoleAssignmentScheduleID  string             `json:"roleAssignmentScheduleId"`
	StartDateTime             *time.Time         `json:"startDateTime"`
	EndDateTime               *time.Time         `json:"endDateTime"`
	ExpandedProperties        expandedProperties `json:"expandedProperties"`
}

type expandedProperties struct {
	Principal struct {
		ID          string `json:"id"`
		DisplayName string `json:"displayName"`
		Type        string `json:"type"`
	} `json:"principal"`
	RoleDefinition struct {
		ID          string `json:"id"`
		DisplayName string `json:"displayName"`
	} `json:"roleDefinition"`
	Scope struct {
		ID          string `json:"id"`
		DisplayName string `json:"displayName"`
	} `json:"scope"`
}

// listRoot issues a tenant-root schedule instance listing through the raw
// ARM pipeline, following nextLink pages.
func (c *Client) listRoot(ctx context.Context, operation string, filter ListFilter) ([]Assignment, error) {
	endpoint := armEndpoint + "/providers/Microsoft.Authorization/" + operation

	var out []Assignment
	next := ""
	for {
		url := next
		if url == "" {
			url = endpoint
		}
		req, err := runtime.NewRequest(ctx, http.MethodGet, url)
		if err != nil {
			return nil, err
		}
		if next == "" {
			qp := req.Raw().URL.Query()
			qp.Set("api-version", pimAPIVersion)
			qp.Set("$filter", string(filter))
			req.Raw().URL.RawQuery = qp.Encode()
		}
		req.Raw().Header.Set("Accept", "application/json")

		resp, err := c.pl.Do(req)
		if err != nil {
			return nil, fmt.Errorf("listing %s: %w", operation, err)
		}
		if !runtime.HasStatusCode(resp, http.StatusOK) {
			return nil, fmt.Errorf("listing %s: %w", operation, runtime.NewResponseError(resp))
		}

		var page instancePage
		if err := runtime.UnmarshalAsJSON(resp, &page); err != nil {
			return nil, fmt.Errorf("decoding %s response: %w", operation, err)
		}

		for _, inst := range page.Value {
			p := inst.Properties
			scheduleID := p.RoleEligibilityScheduleID
			if scheduleID == "" {
				scheduleID = p.RoleAssignmentScheduleID
			}
			out = append(out, Assignment{
				Role:             p.ExpandedProperties.RoleDefinition.DisplayName,
				Scope:            Scope(p.ExpandedProperties.Scope.ID),
				ScopeName:        p.ExpandedProperties.Scope.DisplayName,
				RoleDefinitionID: p.RoleDefinitionID,
				PrincipalID:      firstNonEmpty(p.PrincipalID, p.ExpandedProperties.Principal.ID),
				PrincipalName:    p.ExpandedProperties.Principal.DisplayName,
				PrincipalType:    p.ExpandedProperties.Principal.Type,
				ID:               inst.ID,
				Name:             inst.Name,
				ScheduleID:       scheduleID,
				StartTime:        p.StartDateTime,
				EndTime:          p.EndDateTime,
			})
		}

		if page.NextLink == "" {
			return out, nil
		}
		next = page.NextLink
	}
}

func assignmentFromExpanded(ep *armauthorization.ExpandedProperties, roleDefinitionID, principalID *string,
	id, name, scheduleID string, start, end *time.Time) Assignment {

	a := Assignment{
		RoleDefinitionID: deref(roleDefinitionID),
		PrincipalID:      deref(principalID),
		ID:               id,
		Name:             name,
		ScheduleID:       scheduleID,
		StartTime:        start,
		EndTime:          end,
	}
	if ep != nil {
		if ep.RoleDefinition != nil {
			a.Role = deref(ep.RoleDefinition.DisplayName)
		}
		if ep.Scope != nil {
			a.Scope = Scope(deref(ep.Scope.ID))
			a.ScopeName = deref(ep.Scope.DisplayName)
		}
		if ep.Principal != nil {
			if a.PrincipalID == "" {
				a.PrincipalID = deref(ep.Principal.ID)
			}
			a.PrincipalName = deref(ep.Principal.DisplayName)
			a.PrincipalType = deref(ep.Principal.Type)
		}
	}
	return a
}

// benignActivationConflict reports whether err is the PIM endpoint saying
// the role is already active or an identical request is in flight.
func benignActivationConflict(err error) bool {
	var respErr *azcore.ResponseError
	if !errors.As(err, &respErr) || respErr.StatusCode != http.StatusBadRequest {
		return false
	}
	switch respErr.ErrorCode {
	case "RoleAssignmentExists", "RoleAssignmentRequestExists":
		return true
	}
	return false
}

// isoDuration renders d as an ISO-8601 minute duration (PT480M).
func isoDuration(d time.Duration) string {
	return fmt.Sprintf("PT%dM", int(d.Minutes()))
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func derefPtr[T ~string](p *T) T {
	if p == nil {
		return ""
	}
	return *p
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
