package version

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	releaseURL = "https://api.github.com/repos/praetorian-inc/pimctl/releases/latest"
	checkTTL   = 24 * time.Hour
)

type release struct {
	TagName string `json:"tag_name"`
}

// Latest returns the newest published release tag. Responses are cached in
// the OS temp dir so repeated invocations do not hit the release API.
func Latest(ctx context.Context) (string, error) {
	cache := cachePath()
	if cacheFresh(cache) {
		if data, err := os.ReadFile(cache); err == nil {
			return strings.TrimSpace(string(data)), nil
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, releaseURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetching latest release: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetching latest release: unexpected status %s", resp.Status)
	}

	var rel release
	if err := json.NewDecoder(resp.Body).Decode(&rel); err != nil {
		return "", fmt.Errorf("decoding release response: %w", err)
	}
	if rel.TagName == "" {
		return "", fmt.Errorf("release response has no tag name")
	}

	_ = os.WriteFile(cache, []byte(rel.TagName), 0644)
	return rel.TagName, nil
}

// Outdated reports whether the running build is older than the latest
// published release. Development builds are never reported as outdated.
func Outdated(ctx context.Context) (string, bool, error) {
	latest, err := Latest(ctx)
	if err != nil {
		return "", false, err
	}
	current := strings.TrimPrefix(Version, "v")
	if current == "dev" || current == "" {
		return latest, false, nil
	}
	return latest, strings.TrimPrefix(latest, "v") != current, nil
}

func cachePath() string {
	return filepath.Join(os.TempDir(), "pimctl-latest-release.cache")
}

func cacheFresh(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return time.Since(info.ModTime()) < checkTTL
}
