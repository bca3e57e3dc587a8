// Package remote locates the client's GitHub repository so the update
// checker can fetch the release manifest and point users at new releases.
package remote

import (
	"context"
	"log/slog"
	"os/exec"
	"regexp"
	"strings"
	"sync"
	"time"
)

// Set at build time via:
//
//	-X tools.zach/dev/jukeboxrpc/internal/remote.ldOwner=...
//	-X tools.zach/dev/jukeboxrpc/internal/remote.ldRepo=...
var (
	ldOwner string
	ldRepo  string
)

// defaultBranch holds the published release manifest.
const defaultBranch = "main"

// githubRemoteRe captures owner and name from HTTPS or SSH GitHub URLs.
var githubRemoteRe = regexp.MustCompile(`github\.com[:/]([^/]+)/([^/\s]+?)(?:\.git)?/?$`)

// Repository identifies a GitHub repository. The zero value is "unknown".
type Repository struct {
	Owner  string
	Name   string
	Branch string
}

// Known reports whether both owner and name are set.
func (r Repository) Known() bool {
	return r.Owner != "" && r.Name != ""
}

// RawURL returns the raw content URL of path on r's branch, or "" when r is
// unknown.
func (r Repository) RawURL(path string) string {
	if !r.Known() {
		return ""
	}
	branch := r.Branch
	if branch == "" {
		branch = defaultBranch
	}
	return "https://raw.githubusercontent.com/" + r.Owner + "/" + r.Name + "/" + branch + "/" + strings.TrimPrefix(path, "/")
}

// ReleasesURL returns the latest-release page, or "" when r is unknown.
func (r Repository) ReleasesURL() string {
	if !r.Known() {
		return ""
	}
	return "https://github.com/" + r.Owner + "/" + r.Name + "/releases/latest"
}

// ParseRemote extracts the repository from a git remote URL.
func ParseRemote(url string) (Repository, bool) {
	m := githubRemoteRe.FindStringSubmatch(strings.TrimSpace(url))
	if m == nil {
		return Repository{}, false
	}
	return Repository{Owner: m[1], Name: m[2], Branch: defaultBranch}, true
}

var (
	detectOnce sync.Once
	detected   Repository
)

// Detect returns the repository from ldflags, falling back to the origin
// remote of the working directory's git checkout. The result is cached.
func Detect() Repository {
	detectOnce.Do(func() {
		detected = detect(gitOrigin)
	})
	return detected
}

func detect(origin func() (string, error)) Repository {
	if ldOwner != "" && ldRepo != "" {
		return Repository{Owner: ldOwner, Name: ldRepo, Branch: defaultBranch}
	}
	url, err := origin()
	if err != nil {
		slog.Debug("repository unknown: no ldflags and no git origin", "error", err)
		return Repository{}
	}
	repo, _ := ParseRemote(url)
	return repo
}

func gitOrigin() (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	out, err := exec.CommandContext(ctx, "git", "remote", "get-url", "origin").Output()
	return string(out), err
}
