// Package gitx wraps the git CLI. Every operation takes the clone
// directory explicitly so callers never depend on the process working
// directory.
package gitx

import (
	"context"
	"fmt"
	"net/url"
	"os/exec"
	"strings"
)

// Git runs git commands against local clones.
type Git struct{}

func New() *Git {
	return &Git{}
}

func (g *Git) run(ctx context.Context, dir string, args ...string) (string, error) {
	full := append([]string{"-C", dir}, args...)
	cmd := exec.CommandContext(ctx, "git", full...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("git %s: %s: %w", strings.Join(args, " "), strings.TrimSpace(string(out)), err)
	}
	return strings.TrimSpace(string(out)), nil
}

// Clone clones url into dir. Unlike the other operations dir is the
// target, not an existing clone.
func (g *Git) Clone(ctx context.Context, cloneURL, dir string) error {
	cmd := exec.CommandContext(ctx, "git", "clone", cloneURL, dir)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("git clone: %s: %w", strings.TrimSpace(string(out)), err)
	}
	return nil
}

func (g *Git) Fetch(ctx context.Context, dir string) error {
	_, err := g.run(ctx, dir, "fetch", "--prune", "origin")
	return err
}

func (g *Git) Pull(ctx context.Context, dir string) error {
	_, err := g.run(ctx, dir, "pull", "--ff-only")
	return err
}

// DefaultBranch resolves the remote HEAD, falling back to main when the
// symbolic ref is not set locally.
func (g *Git) DefaultBranch(ctx context.Context, dir string) (string, error) {
	out, err := g.run(ctx, dir, "symbolic-ref", "refs/remotes/origin/HEAD")
	if err == nil {
		return strings.TrimPrefix(out, "refs/remotes/origin/"), nil
	}
	if _, err := g.run(ctx, dir, "remote", "set-head", "origin", "--auto"); err != nil {
		return "main", nil
	}
	out, err = g.run(ctx, dir, "symbolic-ref", "refs/remotes/origin/HEAD")
	if err != nil {
		return "main", nil
	}
	return strings.TrimPrefix(out, "refs/remotes/origin/"), nil
}

func (g *Git) CurrentBranch(ctx context.Context, dir string) (string, error) {
	return g.run(ctx, dir, "rev-parse", "--abbrev-ref", "HEAD")
}

func (g *Git) HeadCommit(ctx context.Context, dir string) (string, error) {
	return g.run(ctx, dir, "rev-parse", "HEAD")
}

// LocalBranches lists local branch names.
func (g *Git) LocalBranches(ctx context.Context, dir string) ([]string, error) {
	out, err := g.run(ctx, dir, "branch", "--format=%(refname:short)")
	if err != nil {
		return nil, err
	}
	return splitLines(out), nil
}

// RemoteBranches queries origin for its branch heads. The remote is
// asked directly so the answer does not depend on fetch freshness.
func (g *Git) RemoteBranches(ctx context.Context, dir string) ([]string, error) {
	out, err := g.run(ctx, dir, "ls-remote", "--heads", "origin")
	if err != nil {
		return nil, err
	}
	var names []string
	for _, line := range splitLines(out) {
		fields := strings.Fields(line)
		if len(fields) != 2 {
			continue
		}
		names = append(names, strings.TrimPrefix(fields[1], "refs/heads/"))
	}
	return names, nil
}

func (g *Git) Checkout(ctx context.Context, dir, branch string) error {
	_, err := g.run(ctx, dir, "checkout", branch)
	return err
}

func (g *Git) CreateBranch(ctx context.Context, dir, branch string) error {
	_, err := g.run(ctx, dir, "checkout", "-b", branch)
	return err
}

func (g *Git) DeleteBranch(ctx context.Context, dir, branch string) error {
	_, err := g.run(ctx, dir, "branch", "-D", branch)
	return err
}

// ResetHard moves the current branch to ref, discarding local commits.
func (g *Git) ResetHard(ctx context.Context, dir, ref string) error {
	_, err := g.run(ctx, dir, "reset", "--hard", ref)
	return err
}

// ResetClean discards all local modifications, tracked and untracked.
func (g *Git) ResetClean(ctx context.Context, dir string) error {
	if _, err := g.run(ctx, dir, "reset", "--hard", "HEAD"); err != nil {
		return err
	}
	_, err := g.run(ctx, dir, "clean", "-fd")
	return err
}

func (g *Git) IsClean(ctx context.Context, dir string) (bool, error) {
	out, err := g.run(ctx, dir, "status", "--porcelain")
	if err != nil {
		return false, err
	}
	return out == "", nil
}

func (g *Git) RemoteURL(ctx context.Context, dir string) (string, error) {
	return g.run(ctx, dir, "remote", "get-url", "origin")
}

func (g *Git) setRemoteURL(ctx context.Context, dir, u string) error {
	_, err := g.run(ctx, dir, "remote", "set-url", "origin", u)
	return err
}

// Push pushes branch to origin with an upstream reference. When token is
// non-empty the remote URL is switched to an authenticated one for the
// duration of the push and restored afterwards, so the token is never
// left in the clone's config.
func (g *Git) Push(ctx context.Context, dir, branch, token string) error {
	if token == "" {
		_, err := g.run(ctx, dir, "push", "-u", "origin", branch)
		return err
	}
	original, err := g.RemoteURL(ctx, dir)
	if err != nil {
		return err
	}
	authed, err := AuthenticatedURL(original, token)
	if err != nil {
		return err
	}
	if err := g.setRemoteURL(ctx, dir, authed); err != nil {
		return err
	}
	defer g.setRemoteURL(context.WithoutCancel(ctx), dir, original)
	_, err = g.run(ctx, dir, "push", "-u", "origin", branch)
	return err
}

// AuthenticatedURL embeds a token into an https remote URL.
func AuthenticatedURL(remote, token string) (string, error) {
	u, err := url.Parse(remote)
	if err != nil {
		return "", fmt.Errorf("parse remote url: %w", err)
	}
	if u.Scheme != "https" {
		return "", fmt.Errorf("cannot authenticate %s remote %q", u.Scheme, remote)
	}
	u.User = url.UserPassword("x-access-token", token)
	return u.String(), nil
}

func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	var lines []string
	for _, l := range strings.Split(s, "\n") {
		l = strings.TrimSpace(l)
		if l != "" {
			lines = append(lines, l)
		}
	}
	return lines
}
