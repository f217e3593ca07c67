// Package graph resolves principal ids against Microsoft Graph. The orphan
// detector uses it to decide whether a role assignment's principal still
// exists in the directory.
package graph

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	msgraphsdk "github.com/microsoftgraph/msgraph-sdk-go"
	"github.com/microsoftgraph/msgraph-sdk-go/directoryobjects"
)

const (
	// chunkSize is the id limit Graph's getByIds accepts per request.
	chunkSize = 50
	// DefaultCacheTTL bounds how long a principal lookup result is
	// reused. Overlapping scope scans hit the same principals repeatedly.
	DefaultCacheTTL = 5 * time.Minute
)

var graphScopes = []string{"https://graph.microsoft.com/.default"}

type cacheEntry struct {
	found bool
	at    time.Time
}

// Client answers principal existence queries with a TTL cache in front of
// Graph's directoryObjects getByIds call. Safe for concurrent use.
type Client struct {
	sdk *msgraphsdk.GraphServiceClient
	ttl time.Duration
	now func() time.Time

	// fetch returns the subset of ids that exist. Swapped in tests.
	fetch func(ctx context.Context, ids []string) ([]string, error)

	mu    sync.Mutex
	cache map[string]cacheEntry
}

// NewClient builds the Graph client on the given credential.
func NewClient(cred azcore.TokenCredential) (*Client, error) {
	sdk, err := msgraphsdk.NewGraphServiceClientWithCredentials(cred, graphScopes)
	if err != nil {
		return nil, fmt.Errorf("building Graph client: %w", err)
	}

	c := &Client{
		sdk:   sdk,
		ttl:   DefaultCacheTTL,
		now:   time.Now,
		cache: map[string]cacheEntry{},
	}
	c.fetch = c.getByIDs
	return c, nil
}

// Known returns the subset of ids that resolve to directory objects. An
// error means the lookup itself failed; callers must treat every id in the
// batch as inconclusive, not as missing.
func (c *Client) Known(ctx context.Context, ids []string) (map[string]struct{}, error) {
	out := map[string]struct{}{}

	var misses []string
	c.mu.Lock()
	for _, id := range ids {
		entry, ok := c.cache[id]
		if !ok || c.now().Sub(entry.at) > c.ttl {
			misses = append(misses, id)
			continue
		}
		if entry.found {
			out[id] = struct{}{}
		}
	}
	c.mu.Unlock()

	for start := 0; start < len(misses); start += chunkSize {
		end := start + chunkSize
		if end > len(misses) {
			end = len(misses)
		}
		chunk := misses[start:end]

		found, err := c.fetch(ctx, chunk)
		if err != nil {
			return nil, fmt.Errorf("looking up %d principals: %w", len(chunk), err)
		}

		resolved := map[string]struct{}{}
		for _, id := range found {
			resolved[id] = struct{}{}
			out[id] = struct{}{}
		}

		c.mu.Lock()
		stamp := c.now()
		for _, id := range chunk {
			_, ok := resolved[id]
			c.cache[id] = cacheEntry{found: ok, at: stamp}
		}
		c.mu.Unlock()
	}

	return out, nil
}

// Lookup reports whether a single principal id exists.
func (c *Client) Lookup(ctx context.Context, id string) (bool, error) {
	known, err := c.Known(ctx, []string{id})
	if err != nil {
		return false, err
	}
	_, ok := known[id]
	return ok, nil
}

// Me returns the signed-in principal's object id via Graph.
func (c *Client) Me(ctx context.Context) (string, error) {
	user, err := c.sdk.Me().Get(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("querying signed-in user: %w", err)
	}
	id := user.GetId()
	if id == nil || *id == "" {
		return "", fmt.Errorf("signed-in user has no object id")
	}
	return *id, nil
}

func (c *Client) getByIDs(ctx context.Context, ids []string) ([]string, error) {
	body := directoryobjects.NewGetByIdsPostRequestBody()
	body.SetIds(ids)

	resp, err := c.sdk.DirectoryObjects().GetByIds().PostAsGetByIdsPostResponse(ctx, body, nil)
	if err != nil {
		return nil, err
	}

	var out []string
	for _, obj := range resp.GetValue() {
		if id := obj.GetId(); id != nil {
			out = append(out, *id)
		}
	}
	return out, nil
}
