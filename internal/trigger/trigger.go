// Package trigger classifies repository items into the workflow they
// need next. Evaluation is a fixed-priority rule list; the first rule
// whose predicate holds wins.
package trigger

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/hochfrequenz/triagebot/internal/domain"
	"github.com/hochfrequenz/triagebot/internal/history"
)

// Command markers users place in comments.
const (
	GenerateEditCommandMarker = "[ generate_edit_command ]"
	DevelopIssueMarker        = "[ develop_issue ]"
)

// UnderDevelopmentLabel marks issues whose development branch already
// has an open pull request.
const UnderDevelopmentLabel = "under_development"

// prCreatedRe matches the comment the develop flow posts when it opens
// a pull request for an issue.
var prCreatedRe = regexp.MustCompile(`Created pull request: (\S+/pull/(\d+))`)

// LinkedPR is the pull request a previous develop flow opened for an
// issue, with its own comment thread.
type LinkedPR struct {
	Number   int
	URL      string
	Comments history.History
}

// Input is everything the evaluator may inspect for one item. It is
// assembled fresh each pass; the evaluator itself reads but never
// mutates it.
type Input struct {
	Item     domain.Item
	Comments history.History
	LinkedPR *LinkedPR // nil when no "Created pull request" comment exists
}

// FindLinkedPR scans a thread for the PR-created comment and returns
// the referenced pull request number and URL.
func FindLinkedPR(h history.History) (number int, url string, ok bool) {
	found := false
	h.Each(func(c domain.Comment) {
		m := prCreatedRe.FindStringSubmatch(c.Body)
		if m == nil {
			return
		}
		n, err := strconv.Atoi(m[2])
		if err != nil {
			return
		}
		number, url, found = n, m[1], true
	})
	return number, url, found
}

// rule pairs a kind with its predicate. Order in the rules slice is the
// priority order.
type rule struct {
	kind domain.TriggerKind
	pred func(Input) bool
}

// Evaluator selects at most one trigger per item per pass.
type Evaluator struct {
	rules []rule
}

func NewEvaluator() *Evaluator {
	return &Evaluator{rules: []rule{
		{domain.TriggerGenerateEditCommand, hasGenerateEditCommand},
		{domain.TriggerUserFeedback, hasUserFeedback},
		{domain.TriggerPRCommentFollowup, hasPRCommentFollowup},
		{domain.TriggerDevelopIssue, hasDevelopIssue},
		{domain.TriggerStandalonePR, isStandalonePR},
		{domain.TriggerNewResponse, needsNewResponse},
	}}
}

// Evaluate returns the first matching trigger kind, or TriggerNone. It
// is a pure function of its input.
func (e *Evaluator) Evaluate(in Input) domain.TriggerKind {
	for _, r := range e.rules {
		if r.pred(in) {
			return r.kind
		}
	}
	return domain.TriggerNone
}

// Order exposes the priority order of the rule list.
func (e *Evaluator) Order() []domain.TriggerKind {
	kinds := make([]domain.TriggerKind, len(e.rules))
	for i, r := range e.rules {
		kinds[i] = r.kind
	}
	return kinds
}

func hasGenerateEditCommand(in Input) bool {
	last, ok := in.Comments.Last()
	return ok && strings.Contains(last.Body, GenerateEditCommandMarker)
}

func hasUserFeedback(in Input) bool {
	if !in.Comments.HasBot() {
		return false
	}
	return len(in.Comments.SinceLastBot()) > 0
}

func hasPRCommentFollowup(in Input) bool {
	if in.Item.IsPR || in.LinkedPR == nil {
		return false
	}
	pr := in.LinkedPR
	if !pr.Comments.HasBot() {
		return false
	}
	return len(pr.Comments.SinceLastBot()) > 0
}

func hasDevelopIssue(in Input) bool {
	if in.Item.IsPR || in.LinkedPR != nil {
		return false
	}
	if in.Item.HasLabel(UnderDevelopmentLabel) {
		return false
	}
	last, ok := in.Comments.Last()
	return ok && strings.Contains(last.Body, DevelopIssueMarker)
}

func isStandalonePR(in Input) bool {
	return in.Item.IsPR
}

func needsNewResponse(in Input) bool {
	return !in.Comments.HasBot()
}
