// Package processor drives full triage passes: one pass visits every
// configured repository and resolves every open item to an outcome.
package processor

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"github.com/hochfrequenz/triagebot/internal/branch"
	"github.com/hochfrequenz/triagebot/internal/config"
	"github.com/hochfrequenz/triagebot/internal/domain"
	"github.com/hochfrequenz/triagebot/internal/github"
	"github.com/hochfrequenz/triagebot/internal/history"
	"github.com/hochfrequenz/triagebot/internal/llm"
	"github.com/hochfrequenz/triagebot/internal/notify"
	"github.com/hochfrequenz/triagebot/internal/prompts"
	"github.com/hochfrequenz/triagebot/internal/trigger"
	"github.com/hochfrequenz/triagebot/internal/workflow"
)

// Git is the version-control surface the processor needs: everything a
// branch manager uses plus cloning.
type Git interface {
	branch.GitOps
	Clone(ctx context.Context, url, dir string) error
}

// Recorder persists outcomes and pass boundaries. *store.Store
// satisfies it.
type Recorder interface {
	RecordOutcome(repo domain.Repo, item domain.Item, out domain.Outcome) error
	StartPass() (int64, error)
	FinishPass(id int64, items, errors int) error
}

// Stats summarizes one pass.
type Stats struct {
	Items   int
	Errors  int
	Skips   int
	Success int
}

// Processor owns the per-pass orchestration. Items within one
// repository are processed strictly sequentially because they share the
// repository clone; distinct repositories have distinct clones and run
// concurrently.
type Processor struct {
	cfg      *config.Config
	gh       github.API
	git      Git
	editor   branch.Editor
	llm      llm.Generator
	prompts  *prompts.Loader
	runner   *workflow.Runner
	recorder Recorder
	notifier notify.Notifier
}

func New(cfg *config.Config, gh github.API, git Git, editor branch.Editor, gen llm.Generator, loader *prompts.Loader, recorder Recorder, notifier notify.Notifier) *Processor {
	if notifier == nil {
		notifier = notify.NoopNotifier{}
	}
	return &Processor{
		cfg:      cfg,
		gh:       gh,
		git:      git,
		editor:   editor,
		llm:      gen,
		prompts:  loader,
		runner:   workflow.NewRunner(trigger.NewEvaluator(), workflow.NewDispatcher()),
		recorder: recorder,
		notifier: notifier,
	}
}

// ProcessAll runs one pass over every configured repository.
func (p *Processor) ProcessAll(ctx context.Context) (Stats, error) {
	passID, err := p.recorder.StartPass()
	if err != nil {
		return Stats{}, err
	}

	results := make([]Stats, len(p.cfg.General.Repos))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, name := range p.cfg.General.Repos {
		i, name := i, name
		g.Go(func() error {
			repo, err := domain.ParseRepo(name)
			if err != nil {
				return err
			}
			stats, err := p.ProcessRepo(gctx, repo)
			if err != nil {
				return fmt.Errorf("repository %s: %w", repo, err)
			}
			results[i] = stats
			return nil
		})
	}
	err = g.Wait()

	var total Stats
	for _, s := range results {
		total.Items += s.Items
		total.Errors += s.Errors
		total.Skips += s.Skips
		total.Success += s.Success
	}
	if ferr := p.recorder.FinishPass(passID, total.Items, total.Errors); ferr != nil && err == nil {
		err = ferr
	}
	return total, err
}

// ProcessRepo resolves every open item in one repository, one at a
// time. A failing item never stops the pass.
func (p *Processor) ProcessRepo(ctx context.Context, repo domain.Repo) (Stats, error) {
	dir, err := p.ensureClone(ctx, repo)
	if err != nil {
		return Stats{}, err
	}

	items, err := p.gh.ListOpenItems(ctx, repo)
	if err != nil {
		return Stats{}, err
	}
	slog.Info("processing repository", "repo", repo.String(), "items", len(items))

	var stats Stats
	for _, item := range items {
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}
		stats.Items++
		out := p.processItem(ctx, repo, dir, item)
		switch out.Status {
		case domain.OutcomeSuccess:
			stats.Success++
			slog.Info("item processed", "repo", repo.String(), "item", item.Number, "trigger", out.Kind.String())
		case domain.OutcomeSkip:
			stats.Skips++
			slog.Debug("item skipped", "repo", repo.String(), "item", item.Number, "reason", out.Reason)
		case domain.OutcomeError:
			stats.Errors++
			slog.Error("item failed", "repo", repo.String(), "item", item.Number, "err", out.Err)
			p.notifier.Send(notify.Notification{
				Title:   fmt.Sprintf("triage failed for #%d", item.Number),
				Message: out.Err.Error(),
				Type:    notify.NotifyError,
				Repo:    repo.String(),
				ItemURL: item.URL,
			})
		}
		if err := p.recorder.RecordOutcome(repo, item, out); err != nil {
			slog.Error("failed to record outcome", "repo", repo.String(), "item", item.Number, "err", err)
		}
	}
	return stats, nil
}

// processItem builds the environment for one item and runs it. Every
// failure is absorbed into the outcome, including panics from
// collaborators: one broken item must not take down the pass.
func (p *Processor) processItem(ctx context.Context, repo domain.Repo, dir string, item domain.Item) (out domain.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("item panicked", "repo", repo.String(), "item", item.Number, "panic", r)
			out = domain.Failure(domain.TriggerNone, fmt.Errorf("panic: %v", r))
		}
	}()

	comments, err := p.gh.ListComments(ctx, repo, item.Number)
	if err != nil {
		return domain.Failure(domain.TriggerNone, err)
	}

	input := trigger.Input{Item: item, Comments: history.New(comments)}
	if !item.IsPR {
		if linked, err := p.resolveLinkedPR(ctx, repo, input.Comments); err != nil {
			return domain.Failure(domain.TriggerNone, err)
		} else if linked != nil {
			input.LinkedPR = linked
		}
	}

	env := &workflow.Env{
		Repo:     repo,
		Item:     item,
		Input:    input,
		GH:       p.gh,
		Branch:   branch.NewManager(p.git, p.gh, repo, dir, p.cfg.GitHub.Token),
		Editor:   p.editor,
		LLM:      p.llm,
		Prompts:  p.prompts,
		BotLabel: p.cfg.GitHub.BotLabel,
	}
	return p.runner.Process(ctx, env)
}

// resolveLinkedPR finds the PR a previous develop flow opened for this
// issue and loads its comment thread.
func (p *Processor) resolveLinkedPR(ctx context.Context, repo domain.Repo, h history.History) (*trigger.LinkedPR, error) {
	number, url, ok := trigger.FindLinkedPR(h)
	if !ok {
		return nil, nil
	}
	comments, err := p.gh.ListComments(ctx, repo, number)
	if err != nil {
		return nil, fmt.Errorf("load linked PR #%d: %w", number, err)
	}
	return &trigger.LinkedPR{Number: number, URL: url, Comments: history.New(comments)}, nil
}

// ensureClone makes sure a checkout of the repository exists under the
// configured clone directory, sits on the default branch, and is up to
// date. A prior pass may have left the clone on a work branch.
func (p *Processor) ensureClone(ctx context.Context, repo domain.Repo) (string, error) {
	dir := filepath.Join(p.cfg.General.CloneDir, repo.Owner, repo.Name)
	if _, err := os.Stat(filepath.Join(dir, ".git")); err != nil {
		if err := os.MkdirAll(filepath.Dir(dir), 0o755); err != nil {
			return "", err
		}
		slog.Info("cloning repository", "repo", repo.String(), "dir", dir)
		if err := p.git.Clone(ctx, github.CloneURL(repo), dir); err != nil {
			return "", err
		}
		return dir, nil
	}
	if err := p.git.Fetch(ctx, dir); err != nil {
		return "", err
	}
	def, err := p.git.DefaultBranch(ctx, dir)
	if err != nil {
		return "", err
	}
	if err := p.git.ResetClean(ctx, dir); err != nil {
		return "", err
	}
	if err := p.git.Checkout(ctx, dir, def); err != nil {
		return "", err
	}
	if err := p.git.Pull(ctx, dir); err != nil {
		return "", err
	}
	return dir, nil
}
