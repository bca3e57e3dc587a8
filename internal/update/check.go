// Package update checks for newer releases of the client via the release
// manifest published in the repository.
package update

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/mod/semver"
	"tools.zach/dev/jukeboxrpc/internal/paths"
	"tools.zach/dev/jukeboxrpc/internal/remote"
)

// maxManifestBytes bounds the manifest download.
const maxManifestBytes = 64 << 10

// ErrNoSource is returned when no manifest URL could be determined.
var ErrNoSource = errors.New("no release manifest URL configured")

// ///////////////////////////////////////////////
// Checker
// ///////////////////////////////////////////////

// Result describes the outcome of a successful check.
type Result struct {
	// Current is the running version.
	Current string
	// Latest is the newest released version, empty if the manifest has none.
	Latest string
	// Newer is true when Latest is a strictly newer semver than Current.
	Newer bool
}

// Checker fetches the release manifest.
type Checker struct {
	// URL is the manifest location.
	URL string
	// Client performs the request with retries.
	Client *retryablehttp.Client
}

// NewChecker returns a Checker for the repository's published manifest.
// URL is empty when the repository could not be determined.
func NewChecker() *Checker {
	client := retryablehttp.NewClient()
	client.RetryMax = 2
	client.RetryWaitMin = 500 * time.Millisecond
	client.HTTPClient.Timeout = 5 * time.Second
	client.Logger = nil // suppress retryablehttp's default logging
	return &Checker{URL: remote.Detect().RawURL(paths.ReleaseManifest), Client: client}
}

// Check compares current against the latest released version.
func (c *Checker) Check(ctx context.Context, current string) (Result, error) {
	res := Result{Current: current}
	if c.URL == "" {
		return res, ErrNoSource
	}
	latest, err := c.fetchLatest(ctx)
	if err != nil {
		return res, err
	}
	res.Latest = latest
	res.Newer = newer(current, latest)
	return res, nil
}

// Log runs Check and logs the outcome. Failures are logged at debug level
// and never returned; an update check must not affect the client.
func (c *Checker) Log(ctx context.Context, current string) Result {
	res, err := c.Check(ctx, current)
	switch {
	case errors.Is(err, ErrNoSource):
		slog.Debug("skipping version check: no remote URL configured")
	case err != nil:
		slog.Debug("version check failed", "error", err)
	case res.Newer:
		slog.Info("new version available", "current", current, "latest", res.Latest, "url", remote.Detect().ReleasesURL())
	default:
		slog.Debug("client is up to date", "version", current)
	}
	return res
}

// ///////////////////////////////////////////////
// Manifest
// ///////////////////////////////////////////////

// latestKey is the manifest entry holding the newest stable release.
const latestKey = "."

// fetchLatest downloads the release manifest and returns its latest entry.
func (c *Checker) fetchLatest(ctx context.Context) (string, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, c.URL, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	resp, err := c.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("GET %s: %w", c.URL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("GET %s: status %d", c.URL, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxManifestBytes))
	if err != nil {
		return "", fmt.Errorf("reading response: %w", err)
	}

	var manifest map[string]string
	if err := json.Unmarshal(body, &manifest); err != nil {
		return "", fmt.Errorf("parsing manifest: %w", err)
	}
	return manifest[latestKey], nil
}

// newer reports whether latest is a strictly higher semantic version than
// current. Either side may omit the leading "v"; invalid versions never
// compare as newer.
func newer(current, latest string) bool {
	c, l := canonical(current), canonical(latest)
	if !semver.IsValid(c) || !semver.IsValid(l) {
		return false
	}
	return semver.Compare(c, l) < 0
}

func canonical(v string) string {
	if v == "" || strings.HasPrefix(v, "v") {
		return v
	}
	return "v" + v
}
