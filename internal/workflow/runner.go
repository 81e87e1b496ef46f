package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hochfrequenz/triagebot/internal/branch"
	"github.com/hochfrequenz/triagebot/internal/domain"
	"github.com/hochfrequenz/triagebot/internal/github"
	"github.com/hochfrequenz/triagebot/internal/history"
	"github.com/hochfrequenz/triagebot/internal/llm"
	"github.com/hochfrequenz/triagebot/internal/prompts"
	"github.com/hochfrequenz/triagebot/internal/trigger"
)

// Env carries everything one workflow invocation needs. A fresh Env is
// built per item; the branch manager inside it owns the repository
// clone for the duration of the invocation.
type Env struct {
	Repo     domain.Repo
	Item     domain.Item
	Input    trigger.Input
	GH       github.API
	Branch   *branch.Manager
	Editor   branch.Editor
	LLM      llm.Generator
	Prompts  *prompts.Loader
	BotLabel string
}

// Runner executes exactly one workflow per item and enforces the
// cross-cutting contracts: preconditions, re-evaluation before any
// mutation, error publication, and rollback.
type Runner struct {
	eval       *trigger.Evaluator
	dispatcher *Dispatcher
}

func NewRunner(eval *trigger.Evaluator, dispatcher *Dispatcher) *Runner {
	// an unwired kind is a construction defect, not a runtime condition
	if err := dispatcher.Validate(); err != nil {
		panic(err)
	}
	return &Runner{eval: eval, dispatcher: dispatcher}
}

// Process reduces one item to a single outcome. Errors are published to
// the item and never propagate; a failed item does not fail the pass.
func (r *Runner) Process(ctx context.Context, env *Env) domain.Outcome {
	if reason, skip := r.precondition(env); skip {
		return domain.Skip(domain.TriggerNone, reason)
	}

	// evaluate immediately before mutating; the outcome of the pass
	// must reflect the thread as it is now
	kind := r.eval.Evaluate(env.Input)
	if kind == domain.TriggerNone {
		return domain.Skip(domain.TriggerNone, "no active trigger")
	}

	handler, ok := r.dispatcher.Lookup(kind)
	if !ok {
		return domain.Failure(kind, fmt.Errorf("no handler wired for trigger %q", kind))
	}

	slog.Info("running workflow", "repo", env.Repo.String(), "item", env.Item.Number, "trigger", kind.String())
	outcome := handler(ctx, env)

	if outcome.Status == domain.OutcomeError {
		r.reportError(ctx, env, outcome)
		if env.Branch != nil && env.Branch.State() != domain.BranchIdle {
			if err := env.Branch.Rollback(ctx); err != nil {
				slog.Error("rollback failed", "repo", env.Repo.String(), "item", env.Item.Number, "err", err)
			}
		}
	}
	return outcome
}

// precondition applies the skip taxonomy that is independent of the
// trigger kind.
func (r *Runner) precondition(env *Env) (string, bool) {
	if !r.botAddressed(env) {
		return fmt.Sprintf("item #%d does not carry the %s label", env.Item.Number, env.BotLabel), true
	}
	if r.hasUnresolvedError(env.Input.Comments) {
		return fmt.Sprintf("error already reported on #%d, awaiting human resolution", env.Item.Number), true
	}
	if env.Item.IsPR && env.Input.Comments.HasBot() && len(env.Input.Comments.SinceLastBot()) == 0 {
		return "already responded on PR, no new feedback", true
	}
	return "", false
}

// botAddressed reports whether the item opted in to triage, via the
// configured label or a title marker.
func (r *Runner) botAddressed(env *Env) bool {
	if env.Item.HasLabel(env.BotLabel) {
		return true
	}
	return strings.Contains(strings.ToLower(env.Item.Title), "[ "+env.BotLabel+" ]")
}

// hasUnresolvedError reports whether the newest bot comment announced a
// failure. Processing halts until a human reacts, which moves the bot
// comment out of last place.
func (r *Runner) hasUnresolvedError(h history.History) bool {
	last, ok := h.Last()
	if !ok || !history.IsBot(last) {
		return false
	}
	if tag, ok := history.ParseTag(last.Body); ok {
		return tag.Outcome == domain.OutcomeError
	}
	return strings.Contains(last.Body, "ERROR:")
}

// reportError publishes the failure to the item with a collapsible
// detail block, suppressing the post when the same text is already the
// latest comment.
func (r *Runner) reportError(ctx context.Context, env *Env, out domain.Outcome) {
	body := errorBody(env.Item, out)
	rendered := history.Render(history.Tag{Kind: out.Kind, Outcome: domain.OutcomeError}, body, env.LLM.Model())

	if last, ok := env.Input.Comments.Last(); ok && strings.TrimSpace(last.Body) == strings.TrimSpace(rendered) {
		slog.Info("error already reported, not re-posting", "item", env.Item.Number)
		return
	}
	if err := env.GH.CreateComment(ctx, env.Repo, env.Item.Number, rendered); err != nil {
		slog.Error("failed to post error comment", "item", env.Item.Number, "err", err)
	}
}

func errorBody(item domain.Item, out domain.Outcome) string {
	entity := "issue"
	if item.IsPR {
		entity = "PR"
	}
	return fmt.Sprintf("ERROR: failed to process %s #%d (trigger %s)\n\n<details><summary>Details</summary>\n\n```\n%v\n```\n\n</details>",
		entity, item.Number, out.Kind.String(), out.Err)
}
