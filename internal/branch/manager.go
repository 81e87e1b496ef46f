// Package branch owns all working-copy mutation for one workflow
// invocation: resolving or creating the item's branch, checking it out,
// running the external editor, pushing, and rolling back on failure.
package branch

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/hochfrequenz/triagebot/internal/domain"
	"github.com/hochfrequenz/triagebot/internal/github"
)

// ErrNoBranch is returned by ResolveOrCreate when no branch exists for
// the item and creation was not allowed.
var ErrNoBranch = errors.New("no branch for item")

// GitOps is the git surface the manager needs. *gitx.Git satisfies it.
type GitOps interface {
	Fetch(ctx context.Context, dir string) error
	Pull(ctx context.Context, dir string) error
	DefaultBranch(ctx context.Context, dir string) (string, error)
	CurrentBranch(ctx context.Context, dir string) (string, error)
	HeadCommit(ctx context.Context, dir string) (string, error)
	LocalBranches(ctx context.Context, dir string) ([]string, error)
	RemoteBranches(ctx context.Context, dir string) ([]string, error)
	Checkout(ctx context.Context, dir, branch string) error
	CreateBranch(ctx context.Context, dir, branch string) error
	DeleteBranch(ctx context.Context, dir, branch string) error
	ResetHard(ctx context.Context, dir, ref string) error
	ResetClean(ctx context.Context, dir string) error
	Push(ctx context.Context, dir, branch, token string) error
}

// Editor runs the external code editor against a checked-out clone and
// returns its captured output. Implementations leave zero or more
// commits behind.
type Editor interface {
	Edit(ctx context.Context, dir, instruction string) (string, error)
}

// Manager drives the branch state machine for a single repository
// clone. It is not safe for concurrent use; items are processed one at
// a time by design, because they share the clone.
type Manager struct {
	git   GitOps
	gh    github.API
	repo  domain.Repo
	dir   string
	token string

	state   domain.BranchState
	branch  string
	created bool
	pushed  bool
}

func NewManager(git GitOps, gh github.API, repo domain.Repo, dir, token string) *Manager {
	return &Manager{
		git:   git,
		gh:    gh,
		repo:  repo,
		dir:   dir,
		token: token,
		state: domain.BranchIdle,
	}
}

func (m *Manager) State() domain.BranchState { return m.state }
func (m *Manager) Branch() string            { return m.branch }

// Reset returns the manager to Idle so it can serve the next item.
func (m *Manager) Reset() {
	m.state = domain.BranchIdle
	m.branch = ""
	m.created = false
	m.pushed = false
}

// RelatedBranches lists every local and remote branch referencing the
// item's number, deduplicated by name. A branch references an item when
// its name is the bare number or starts with "<number>-".
func (m *Manager) RelatedBranches(ctx context.Context, number int) ([]domain.BranchRef, error) {
	local, err := m.git.LocalBranches(ctx, m.dir)
	if err != nil {
		return nil, err
	}
	remote, err := m.git.RemoteBranches(ctx, m.dir)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var refs []domain.BranchRef
	for _, name := range local {
		if references(name, number) && !seen[name] {
			seen[name] = true
			refs = append(refs, domain.BranchRef{Name: name})
		}
	}
	for _, name := range remote {
		if references(name, number) && !seen[name] {
			seen[name] = true
			refs = append(refs, domain.BranchRef{Name: name, IsRemote: true})
		}
	}
	return refs, nil
}

func references(branch string, number int) bool {
	n := strconv.Itoa(number)
	return branch == n || strings.HasPrefix(branch, n+"-")
}

// ResolveOrCreate finds the item's branch. Exactly one match returns
// it. More than one is a hard error carrying the full ambiguous set;
// the caller must surface it, never guess. Zero matches returns
// ErrNoBranch, or creates a fresh branch off the default branch when
// allowCreate is set.
func (m *Manager) ResolveOrCreate(ctx context.Context, item domain.Item, allowCreate bool) (string, error) {
	refs, err := m.RelatedBranches(ctx, item.Number)
	if err != nil {
		return "", err
	}
	switch {
	case len(refs) > 1:
		return "", &domain.MultipleBranchesError{Number: item.Number, Branches: refs}
	case len(refs) == 1:
		m.branch = refs[0].Name
		m.state = domain.BranchResolved
		return m.branch, nil
	}

	if !allowCreate {
		return "", ErrNoBranch
	}

	name := BranchName(item.Number, item.Title)
	def, err := m.git.DefaultBranch(ctx, m.dir)
	if err != nil {
		return "", err
	}
	if err := m.git.ResetClean(ctx, m.dir); err != nil {
		return "", err
	}
	if err := m.git.Checkout(ctx, m.dir, def); err != nil {
		return "", err
	}
	if err := m.git.Pull(ctx, m.dir); err != nil {
		return "", err
	}
	if err := m.git.CreateBranch(ctx, m.dir, name); err != nil {
		return "", err
	}
	m.branch = name
	m.created = true
	m.state = domain.BranchResolved
	return name, nil
}

// Checkout switches the clone to branch, discarding any uncommitted
// state first. When the branch exists on origin it is hard-reset to the
// remote tip so every workflow starts from a known state, whatever a
// previous failed run left behind.
func (m *Manager) Checkout(ctx context.Context, branch string) error {
	if err := m.git.Fetch(ctx, m.dir); err != nil {
		return err
	}
	if err := m.git.ResetClean(ctx, m.dir); err != nil {
		return err
	}
	if err := m.git.Checkout(ctx, m.dir, branch); err != nil {
		return err
	}
	remote, err := m.git.RemoteBranches(ctx, m.dir)
	if err != nil {
		return err
	}
	for _, r := range remote {
		if r == branch {
			if err := m.git.ResetHard(ctx, m.dir, "origin/"+branch); err != nil {
				return err
			}
			break
		}
	}
	m.branch = branch
	m.state = domain.BranchCheckedOut
	return nil
}

// RunExternalEdit invokes the editor on the checked-out branch. A
// successful exit with an unchanged HEAD is reported as NoChangesError,
// never as success.
func (m *Manager) RunExternalEdit(ctx context.Context, editor Editor, instruction string) (string, error) {
	before, err := m.git.HeadCommit(ctx, m.dir)
	if err != nil {
		return "", err
	}
	out, err := editor.Edit(ctx, m.dir, instruction)
	if err != nil {
		return out, fmt.Errorf("external editor: %w", err)
	}
	after, err := m.git.HeadCommit(ctx, m.dir)
	if err != nil {
		return out, err
	}
	if before == after {
		return out, &domain.NoChangesError{Branch: m.branch}
	}
	m.state = domain.BranchMutated
	return out, nil
}

// Push pushes the working branch. A rejection is an outcome, not a
// panic: it comes back as ok=false with the rejection text.
func (m *Manager) Push(ctx context.Context) (bool, string) {
	if err := m.git.Push(ctx, m.dir, m.branch, m.token); err != nil {
		return false, err.Error()
	}
	m.pushed = true
	m.state = domain.BranchPushed
	return true, ""
}

// PublishPR opens a pull request from the working branch to the default
// branch.
func (m *Manager) PublishPR(ctx context.Context, title, body string) (domain.Item, error) {
	def, err := m.git.DefaultBranch(ctx, m.dir)
	if err != nil {
		return domain.Item{}, err
	}
	pr, err := m.gh.CreatePullRequest(ctx, m.repo, title, body, m.branch, def)
	if err != nil {
		return domain.Item{}, err
	}
	m.state = domain.BranchPublished
	return pr, nil
}

// CommentOnPR posts a comment on a pull request, skipping publication
// when the same text is already the latest comment. Retried failures
// must not spam the thread.
func (m *Manager) CommentOnPR(ctx context.Context, prNumber int, body string) error {
	comments, err := m.gh.ListComments(ctx, m.repo, prNumber)
	if err != nil {
		return err
	}
	if n := len(comments); n > 0 && strings.TrimSpace(comments[n-1].Body) == strings.TrimSpace(body) {
		return nil
	}
	return m.gh.CreateComment(ctx, m.repo, prNumber, body)
}

// Rollback returns the clone to the default branch and deletes the
// working branch if this invocation created it and never pushed it.
// Pre-existing branches are left alone. Safe to call from any state.
func (m *Manager) Rollback(ctx context.Context) error {
	def, err := m.git.DefaultBranch(ctx, m.dir)
	if err != nil {
		return err
	}
	if err := m.git.ResetClean(ctx, m.dir); err != nil {
		return err
	}
	if err := m.git.Checkout(ctx, m.dir, def); err != nil {
		return err
	}
	if m.created && m.branch != def && !m.pushed {
		if err := m.git.DeleteBranch(ctx, m.dir, m.branch); err != nil {
			return err
		}
	}
	m.Reset()
	return nil
}

var slugRe = regexp.MustCompile(`[^a-z0-9]+`)

// BranchName builds the canonical branch name for an item:
// "<number>-<slugified-title>", capped to keep refs manageable.
func BranchName(number int, title string) string {
	slug := slugRe.ReplaceAllString(strings.ToLower(title), "-")
	slug = strings.Trim(slug, "-")
	if len(slug) > 50 {
		slug = strings.Trim(slug[:50], "-")
	}
	if slug == "" {
		return strconv.Itoa(number)
	}
	return fmt.Sprintf("%d-%s", number, slug)
}
