package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hochfrequenz/triagebot/internal/branch"
	"github.com/hochfrequenz/triagebot/internal/domain"
	"github.com/hochfrequenz/triagebot/internal/history"
	"github.com/hochfrequenz/triagebot/internal/prompts"
	"github.com/hochfrequenz/triagebot/internal/trigger"
)

// summarizeAfter is the thread length past which the comment history is
// condensed before prompting.
const summarizeAfter = 12

// maxDetail caps the editor output embedded in a comment; GitHub
// rejects bodies past 64k.
const maxDetail = 50000

// runNewResponse posts the first triage response on an issue.
func runNewResponse(ctx context.Context, env *Env) domain.Outcome {
	const kind = domain.TriggerNewResponse

	data, err := promptData(ctx, env)
	if err != nil {
		return domain.Failure(kind, err)
	}
	text, err := generate(ctx, env, data, env.Prompts.BuildNewResponsePrompt)
	if err != nil {
		return domain.Failure(kind, err)
	}
	if err := publish(ctx, env, kind, text); err != nil {
		return domain.Failure(kind, err)
	}
	return domain.Success(kind)
}

// runUserFeedback answers human replies to an earlier bot response.
func runUserFeedback(ctx context.Context, env *Env) domain.Outcome {
	const kind = domain.TriggerUserFeedback

	data, err := promptData(ctx, env)
	if err != nil {
		return domain.Failure(kind, err)
	}
	data.Feedback = joinComments(env.Input.Comments.SinceLastBot())
	text, err := generate(ctx, env, data, env.Prompts.BuildFeedbackPrompt)
	if err != nil {
		return domain.Failure(kind, err)
	}
	if err := publish(ctx, env, kind, text); err != nil {
		return domain.Failure(kind, err)
	}
	return domain.Success(kind)
}

// runGenerateEditCommand posts an editor instruction for review; the
// develop flow executes it later.
func runGenerateEditCommand(ctx context.Context, env *Env) domain.Outcome {
	const kind = domain.TriggerGenerateEditCommand

	data, err := promptData(ctx, env)
	if err != nil {
		return domain.Failure(kind, err)
	}
	instruction, err := generate(ctx, env, data, env.Prompts.BuildEditInstructionPrompt)
	if err != nil {
		return domain.Failure(kind, err)
	}
	if err := publish(ctx, env, kind, instruction); err != nil {
		return domain.Failure(kind, err)
	}
	return domain.Success(kind)
}

// runDevelopIssue creates or resolves the issue's branch, runs the
// external editor, pushes, and opens a pull request.
func runDevelopIssue(ctx context.Context, env *Env) domain.Outcome {
	const kind = domain.TriggerDevelopIssue

	branchName, err := env.Branch.ResolveOrCreate(ctx, env.Item, true)
	if err != nil {
		// ambiguity is surfaced with the full branch set, never
		// resolved by guessing
		return domain.Failure(kind, err)
	}
	if err := env.Branch.Checkout(ctx, branchName); err != nil {
		return domain.Failure(kind, err)
	}

	data, err := promptData(ctx, env)
	if err != nil {
		return domain.Failure(kind, err)
	}
	instruction, err := generate(ctx, env, data, env.Prompts.BuildEditInstructionPrompt)
	if err != nil {
		return domain.Failure(kind, err)
	}

	editorOut, err := env.Branch.RunExternalEdit(ctx, env.Editor, instruction)
	if err != nil {
		return domain.Failure(kind, err)
	}

	if ok, msg := env.Branch.Push(ctx); !ok {
		return domain.Failure(kind, fmt.Errorf("push rejected: %s", msg))
	}

	pr, err := env.Branch.PublishPR(ctx, env.Item.Title, fmt.Sprintf("Closes #%d.\n\nAutomated changes for: %s", env.Item.Number, env.Item.Title))
	if err != nil {
		return domain.Failure(kind, err)
	}

	if err := env.GH.AddLabels(ctx, env.Repo, env.Item.Number, trigger.UnderDevelopmentLabel); err != nil {
		return domain.Failure(kind, err)
	}

	// the issue gets the cross-reference the followup flow looks for
	link := fmt.Sprintf("Created pull request: %s\nContinue discussion there.", pr.URL)
	if err := publish(ctx, env, kind, link); err != nil {
		return domain.Failure(kind, err)
	}

	prComment := history.Render(history.Tag{Kind: kind, Outcome: domain.OutcomeSuccess},
		instruction+detailsBlock("View Editor Output", editorOut), env.LLM.Model())
	if err := env.Branch.CommentOnPR(ctx, pr.Number, prComment); err != nil {
		return domain.Failure(kind, err)
	}
	return domain.Success(kind)
}

// runPRCommentFollowup applies feedback left on a previously created
// pull request.
func runPRCommentFollowup(ctx context.Context, env *Env) domain.Outcome {
	const kind = domain.TriggerPRCommentFollowup

	linked := env.Input.LinkedPR
	if linked == nil {
		return domain.Failure(kind, fmt.Errorf("no linked pull request for issue #%d", env.Item.Number))
	}

	branchName, err := env.Branch.ResolveOrCreate(ctx, env.Item, false)
	if err != nil {
		if errors.Is(err, branch.ErrNoBranch) {
			err = fmt.Errorf("pull request #%d exists but no branch references issue #%d", linked.Number, env.Item.Number)
		}
		return domain.Failure(kind, err)
	}
	if err := env.Branch.Checkout(ctx, branchName); err != nil {
		return domain.Failure(kind, err)
	}

	feedback := joinComments(linked.Comments.SinceLastBot())
	instruction := fmt.Sprintf("Apply the following review feedback to this branch:\n\n%s", feedback)

	editorOut, err := env.Branch.RunExternalEdit(ctx, env.Editor, instruction)
	if err != nil {
		return domain.Failure(kind, err)
	}
	if ok, msg := env.Branch.Push(ctx); !ok {
		return domain.Failure(kind, fmt.Errorf("push rejected: %s", msg))
	}

	body := history.Render(history.Tag{Kind: kind, Outcome: domain.OutcomeSuccess},
		"Applied the requested changes."+detailsBlock("View Editor Output", editorOut), env.LLM.Model())
	if err := env.Branch.CommentOnPR(ctx, linked.Number, body); err != nil {
		return domain.Failure(kind, err)
	}
	return domain.Success(kind)
}

// runStandalonePR works directly on a pull request's head branch.
func runStandalonePR(ctx context.Context, env *Env) domain.Outcome {
	const kind = domain.TriggerStandalonePR

	if env.Item.HeadRef == "" {
		return domain.Failure(kind, fmt.Errorf("PR #%d has no head branch", env.Item.Number))
	}
	if err := env.Branch.Checkout(ctx, env.Item.HeadRef); err != nil {
		return domain.Failure(kind, err)
	}

	feedback := joinComments(env.Input.Comments.SinceLastBot())
	var instruction string
	if feedback == "" {
		instruction = fmt.Sprintf("Review and improve this pull request.\n\nTitle: %s\n\n%s", env.Item.Title, env.Item.Body)
	} else {
		instruction = fmt.Sprintf("Apply the following review feedback to this branch:\n\n%s", feedback)
	}

	editorOut, err := env.Branch.RunExternalEdit(ctx, env.Editor, instruction)
	if err != nil {
		return domain.Failure(kind, err)
	}
	if ok, msg := env.Branch.Push(ctx); !ok {
		return domain.Failure(kind, fmt.Errorf("push rejected: %s", msg))
	}

	body := history.Render(history.Tag{Kind: kind, Outcome: domain.OutcomeSuccess},
		"Applied changes to this pull request."+detailsBlock("View Editor Output", editorOut), env.LLM.Model())
	if err := env.Branch.CommentOnPR(ctx, env.Item.Number, body); err != nil {
		return domain.Failure(kind, err)
	}
	return domain.Success(kind)
}

// promptData assembles the template data for an item, condensing long
// threads through the summarize prompt first.
func promptData(ctx context.Context, env *Env) (prompts.TriageData, error) {
	data := prompts.TriageData{
		Repo:   env.Repo.String(),
		Number: env.Item.Number,
		Title:  env.Item.Title,
		Body:   env.Item.Body,
	}
	rendered := renderThread(env.Input.Comments)
	if env.Input.Comments.Len() <= summarizeAfter {
		data.Comments = rendered
		return data, nil
	}

	sumData := data
	sumData.Comments = rendered
	prompt, err := env.Prompts.BuildSummaryPrompt(sumData)
	if err != nil {
		return data, err
	}
	summary, err := env.LLM.Generate(ctx, "", prompt)
	if err != nil {
		return data, fmt.Errorf("summarize thread: %w", err)
	}
	data.Comments = history.Clean(summary)
	data.Summary = data.Comments
	return data, nil
}

// generate runs the system preamble plus one prompt builder through
// the LLM and cleans the result.
func generate(ctx context.Context, env *Env, data prompts.TriageData, build func(prompts.TriageData) (string, error)) (string, error) {
	system, err := env.Prompts.BuildSystemPrompt(data)
	if err != nil {
		return "", err
	}
	prompt, err := build(data)
	if err != nil {
		return "", err
	}
	text, err := env.LLM.Generate(ctx, system, prompt)
	if err != nil {
		return "", err
	}
	return history.Clean(text), nil
}

// publish posts a success comment on the item, skipping the call when
// the identical body was already posted.
func publish(ctx context.Context, env *Env, kind domain.TriggerKind, body string) error {
	rendered := history.Render(history.Tag{Kind: kind, Outcome: domain.OutcomeSuccess}, body, env.LLM.Model())
	if env.Input.Comments.Contains(rendered) {
		return nil
	}
	return env.GH.CreateComment(ctx, env.Repo, env.Item.Number, rendered)
}

func renderThread(h history.History) string {
	var sb strings.Builder
	h.Each(func(c domain.Comment) {
		author := c.Author
		if history.IsBot(c) {
			author = "triagebot"
		}
		fmt.Fprintf(&sb, "%s: %s\n\n", author, strings.TrimSpace(c.Body))
	})
	return strings.TrimSpace(sb.String())
}

func joinComments(comments []domain.Comment) string {
	parts := make([]string, 0, len(comments))
	for _, c := range comments {
		parts = append(parts, strings.TrimSpace(c.Body))
	}
	return strings.Join(parts, "\n\n")
}

func detailsBlock(title, content string) string {
	if content == "" {
		return ""
	}
	if len(content) > maxDetail {
		content = content[:maxDetail] + "\n[output truncated]"
	}
	return fmt.Sprintf("\n\n<details><summary>%s</summary>\n\n```\n%s\n```\n\n</details>", title, content)
}
