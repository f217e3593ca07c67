package pim

import (
	"context"
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/golang-jwt/jwt/v5"
)

const armTokenScope = "https://management.azure.com/.default"

// Credential builds the default Azure credential chain (environment,
// workload identity, managed identity, az CLI).
func Credential() (azcore.TokenCredential, error) {
	cred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, fmt.Errorf("building Azure credential: %w", err)
	}
	return cred, nil
}

// PrincipalID returns the signed-in principal's object id, taken from the
// oid claim of an ARM access token. Activation requests must name the
// caller, not the group an eligibility was inherited from, so the token is
// the authoritative source.
func PrincipalID(ctx context.Context, cred azcore.TokenCredential) (string, error) {
	tok, err := cred.GetToken(ctx, policy.TokenRequestOptions{Scopes: []string{armTokenScope}})
	if err != nil {
		return "", fmt.Errorf("acquiring management token: %w", err)
	}
	oid, err := objectIDFromToken(tok.Token)
	if err != nil {
		return "", err
	}
	return oid, nil
}

func objectIDFromToken(raw string) (string, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return "", fmt.Errorf("parsing access token: %w", err)
	}
	oid, ok := claims["oid"].(string)
	if !ok || oid == "" {
		return "", fmt.Errorf("access token carries no oid claim")
	}
	return oid, nil
}
