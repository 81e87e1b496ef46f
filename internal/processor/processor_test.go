package processor

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hochfrequenz/triagebot/internal/config"
	"github.com/hochfrequenz/triagebot/internal/domain"
	"github.com/hochfrequenz/triagebot/internal/notify"
	"github.com/hochfrequenz/triagebot/internal/prompts"
)

type fakeGit struct {
	cloned    []string
	local     []string
	commits   int
	checkouts []string
	pulls     int
}

func (f *fakeGit) Clone(ctx context.Context, url, dir string) error {
	f.cloned = append(f.cloned, url)
	return os.MkdirAll(filepath.Join(dir, ".git"), 0o755)
}
func (f *fakeGit) Fetch(ctx context.Context, dir string) error { return nil }
func (f *fakeGit) Pull(ctx context.Context, dir string) error  { f.pulls++; return nil }
func (f *fakeGit) DefaultBranch(ctx context.Context, dir string) (string, error) {
	return "main", nil
}
func (f *fakeGit) CurrentBranch(ctx context.Context, dir string) (string, error) {
	return "main", nil
}
func (f *fakeGit) HeadCommit(ctx context.Context, dir string) (string, error) {
	return string(rune('a' + f.commits)), nil
}
func (f *fakeGit) LocalBranches(ctx context.Context, dir string) ([]string, error) {
	return f.local, nil
}
func (f *fakeGit) RemoteBranches(ctx context.Context, dir string) ([]string, error) {
	return nil, nil
}
func (f *fakeGit) Checkout(ctx context.Context, dir, b string) error {
	f.checkouts = append(f.checkouts, b)
	return nil
}
func (f *fakeGit) CreateBranch(ctx context.Context, dir, b string) error {
	f.local = append(f.local, b)
	return nil
}
func (f *fakeGit) DeleteBranch(ctx context.Context, dir, b string) error { return nil }
func (f *fakeGit) ResetHard(ctx context.Context, dir, ref string) error  { return nil }
func (f *fakeGit) ResetClean(ctx context.Context, dir string) error      { return nil }
func (f *fakeGit) Push(ctx context.Context, dir, b, token string) error  { return nil }

type fakeGH struct {
	items    []domain.Item
	comments map[int][]domain.Comment
	posted   map[int][]string
	panicOn  int
}

func newFakeGH() *fakeGH {
	return &fakeGH{comments: make(map[int][]domain.Comment), posted: make(map[int][]string)}
}

func (f *fakeGH) ListOpenItems(ctx context.Context, repo domain.Repo) ([]domain.Item, error) {
	return f.items, nil
}
func (f *fakeGH) ListComments(ctx context.Context, repo domain.Repo, number int) ([]domain.Comment, error) {
	if f.panicOn != 0 && number == f.panicOn {
		panic("library bug while listing comments")
	}
	return f.comments[number], nil
}
func (f *fakeGH) CreateComment(ctx context.Context, repo domain.Repo, number int, body string) error {
	f.posted[number] = append(f.posted[number], body)
	return nil
}
func (f *fakeGH) AddLabels(ctx context.Context, repo domain.Repo, number int, labels ...string) error {
	return nil
}
func (f *fakeGH) GetPullRequest(ctx context.Context, repo domain.Repo, number int) (domain.Item, error) {
	return domain.Item{Number: number, IsPR: true}, nil
}
func (f *fakeGH) CreatePullRequest(ctx context.Context, repo domain.Repo, title, body, head, base string) (domain.Item, error) {
	return domain.Item{Number: 99, IsPR: true, HeadRef: head, BaseRef: base}, nil
}
func (f *fakeGH) FindPullRequestForBranch(ctx context.Context, repo domain.Repo, b string) (domain.Item, bool, error) {
	return domain.Item{}, false, nil
}

type fakeRecorder struct {
	outcomes []domain.Outcome
	passes   int
	finished bool
}

func (r *fakeRecorder) RecordOutcome(repo domain.Repo, item domain.Item, out domain.Outcome) error {
	r.outcomes = append(r.outcomes, out)
	return nil
}
func (r *fakeRecorder) StartPass() (int64, error) { r.passes++; return int64(r.passes), nil }
func (r *fakeRecorder) FinishPass(id int64, items, errors int) error {
	r.finished = true
	return nil
}

type fakeLLM struct{}

func (fakeLLM) Generate(ctx context.Context, system, prompt string) (string, error) {
	return "analysis text", nil
}
func (fakeLLM) Model() string { return "test-model" }

type fakeEditor struct{ git *fakeGit }

func (e *fakeEditor) Edit(ctx context.Context, dir, instruction string) (string, error) {
	e.git.commits++
	return "edited", nil
}

type countingNotifier struct{ sent []notify.Notification }

func (c *countingNotifier) Send(n notify.Notification) error {
	c.sent = append(c.sent, n)
	return nil
}

func testConfig(t *testing.T) *config.Config {
	cfg := config.Default()
	cfg.General.Repos = []string{"o/r"}
	cfg.General.CloneDir = t.TempDir()
	cfg.GitHub.Token = "tok"
	return cfg
}

func TestProcessAll(t *testing.T) {
	git := &fakeGit{local: []string{"main"}}
	gh := newFakeGH()
	gh.items = []domain.Item{
		{Number: 1, Title: "needs triage", Labels: []string{"triagebot"}},
		{Number: 2, Title: "not opted in"},
		{Number: 3, Title: "ambiguous", Labels: []string{"triagebot"}},
	}
	gh.comments[3] = []domain.Comment{{Author: "alice", Body: "[ develop_issue ]"}}
	git.local = append(git.local, "3-fix-a", "3-fix-b")

	rec := &fakeRecorder{}
	notif := &countingNotifier{}
	p := New(testConfig(t), gh, git, &fakeEditor{git: git}, fakeLLM{}, prompts.NewLoader(), rec, notif)

	stats, err := p.ProcessAll(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.Items != 3 || stats.Success != 1 || stats.Skips != 1 || stats.Errors != 1 {
		t.Errorf("stats = %+v", stats)
	}
	if len(rec.outcomes) != 3 {
		t.Errorf("recorded %d outcomes", len(rec.outcomes))
	}
	if !rec.finished {
		t.Error("pass never finished")
	}
	if len(notif.sent) != 1 || notif.sent[0].Type != notify.NotifyError {
		t.Errorf("notifications = %+v", notif.sent)
	}
	if len(git.cloned) != 1 {
		t.Errorf("cloned %v, want one clone of the repo", git.cloned)
	}

	// a second pass reuses the existing clone
	if _, err := p.ProcessAll(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(git.cloned) != 1 {
		t.Errorf("second pass re-cloned: %v", git.cloned)
	}
}

func TestProcessItemFailureDoesNotStopPass(t *testing.T) {
	git := &fakeGit{local: []string{"main", "1-dup-a", "1-dup-b"}}
	gh := newFakeGH()
	gh.items = []domain.Item{
		{Number: 1, Title: "dup", Labels: []string{"triagebot"}},
		{Number: 2, Title: "fine", Labels: []string{"triagebot"}},
	}
	gh.comments[1] = []domain.Comment{{Author: "alice", Body: "[ develop_issue ]"}}

	rec := &fakeRecorder{}
	p := New(testConfig(t), gh, git, &fakeEditor{git: git}, fakeLLM{}, prompts.NewLoader(), rec, nil)

	stats, err := p.ProcessAll(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.Errors != 1 || stats.Success != 1 {
		t.Errorf("stats = %+v, the second item must still be processed", stats)
	}
}

func TestProcessItemPanicBecomesErrorOutcome(t *testing.T) {
	git := &fakeGit{local: []string{"main"}}
	gh := newFakeGH()
	gh.panicOn = 1
	gh.items = []domain.Item{
		{Number: 1, Title: "broken", Labels: []string{"triagebot"}},
		{Number: 2, Title: "fine", Labels: []string{"triagebot"}},
	}

	rec := &fakeRecorder{}
	p := New(testConfig(t), gh, git, &fakeEditor{git: git}, fakeLLM{}, prompts.NewLoader(), rec, nil)

	stats, err := p.ProcessAll(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.Items != 2 || stats.Errors != 1 || stats.Success != 1 {
		t.Errorf("stats = %+v, item 2 must survive item 1 panicking", stats)
	}
	if len(rec.outcomes) != 2 {
		t.Fatalf("recorded %d outcomes, want 2", len(rec.outcomes))
	}
	out := rec.outcomes[0]
	if out.Status != domain.OutcomeError || out.Err == nil {
		t.Fatalf("outcome = %+v, want error", out)
	}
	if !strings.Contains(out.Err.Error(), "panic") {
		t.Errorf("err = %q, want the panic surfaced", out.Err)
	}
}

func TestEnsureCloneRealignsExistingClone(t *testing.T) {
	cfg := testConfig(t)
	dir := filepath.Join(cfg.General.CloneDir, "o", "r")
	if err := os.MkdirAll(filepath.Join(dir, ".git"), 0o755); err != nil {
		t.Fatal(err)
	}

	git := &fakeGit{local: []string{"main"}}
	p := New(cfg, newFakeGH(), git, &fakeEditor{git: git}, fakeLLM{}, prompts.NewLoader(), &fakeRecorder{}, nil)

	if _, err := p.ProcessAll(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(git.cloned) != 0 {
		t.Errorf("re-cloned an existing checkout: %v", git.cloned)
	}
	if len(git.checkouts) == 0 || git.checkouts[0] != "main" {
		t.Errorf("checkouts = %v, want the default branch first", git.checkouts)
	}
	if git.pulls == 0 {
		t.Error("existing clone was never pulled")
	}
}
