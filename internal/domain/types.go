// Package domain holds the core types shared across the triage engine.
package domain

import (
	"fmt"
	"time"
)

// TriggerKind identifies which workflow a repository item has asked for.
// Evaluation is priority-ordered; the zero value means no action.
type TriggerKind string

const (
	TriggerNone                TriggerKind = ""
	TriggerGenerateEditCommand TriggerKind = "generate_edit_command"
	TriggerUserFeedback        TriggerKind = "user_feedback"
	TriggerPRCommentFollowup   TriggerKind = "pr_comment_followup"
	TriggerDevelopIssue        TriggerKind = "develop_issue"
	TriggerStandalonePR        TriggerKind = "standalone_pr"
	TriggerNewResponse         TriggerKind = "new_response"
)

// Kinds lists every actionable trigger in evaluation priority order.
func Kinds() []TriggerKind {
	return []TriggerKind{
		TriggerGenerateEditCommand,
		TriggerUserFeedback,
		TriggerPRCommentFollowup,
		TriggerDevelopIssue,
		TriggerStandalonePR,
		TriggerNewResponse,
	}
}

func (k TriggerKind) IsValid() bool {
	switch k {
	case TriggerNone, TriggerGenerateEditCommand, TriggerUserFeedback,
		TriggerPRCommentFollowup, TriggerDevelopIssue,
		TriggerStandalonePR, TriggerNewResponse:
		return true
	}
	return false
}

func (k TriggerKind) String() string {
	if k == TriggerNone {
		return "none"
	}
	return string(k)
}

// Item is a unified view of a GitHub issue or pull request.
type Item struct {
	Number    int
	Title     string
	Body      string
	Author    string
	State     string
	Labels    []string
	IsPR      bool
	HeadRef   string // PR source branch, empty for issues
	BaseRef   string // PR target branch, empty for issues
	URL       string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// HasLabel reports whether the item carries the given label.
func (it Item) HasLabel(name string) bool {
	for _, l := range it.Labels {
		if l == name {
			return true
		}
	}
	return false
}

// Comment is a single comment on an issue or pull request.
type Comment struct {
	ID        int64
	Author    string
	Body      string
	CreatedAt time.Time
}

// BranchRef names a branch and where it was found.
type BranchRef struct {
	Name     string
	IsRemote bool
}

func (b BranchRef) String() string {
	if b.IsRemote {
		return "origin/" + b.Name
	}
	return b.Name
}

// BranchState tracks how far the lifecycle manager has advanced for an
// item's working branch. Transitions are strictly forward; Rollback
// returns the clone to Idle.
type BranchState string

const (
	BranchIdle       BranchState = "idle"
	BranchResolved   BranchState = "resolved"
	BranchCheckedOut BranchState = "checked_out"
	BranchMutated    BranchState = "mutated"
	BranchPushed     BranchState = "pushed"
	BranchPublished  BranchState = "published"
)

// OutcomeStatus is the three-way result of running a workflow.
type OutcomeStatus string

const (
	OutcomeSuccess OutcomeStatus = "success"
	OutcomeSkip    OutcomeStatus = "skip"
	OutcomeError   OutcomeStatus = "error"
)

// Outcome records what happened when a workflow ran for an item.
// A skip carries a human-readable reason, an error carries the cause.
type Outcome struct {
	Status OutcomeStatus
	Kind   TriggerKind
	Reason string
	Err    error
}

func Success(kind TriggerKind) Outcome {
	return Outcome{Status: OutcomeSuccess, Kind: kind}
}

func Skip(kind TriggerKind, reason string) Outcome {
	return Outcome{Status: OutcomeSkip, Kind: kind, Reason: reason}
}

func Failure(kind TriggerKind, err error) Outcome {
	return Outcome{Status: OutcomeError, Kind: kind, Err: err}
}

func (o Outcome) String() string {
	switch o.Status {
	case OutcomeSkip:
		return fmt.Sprintf("skip (%s)", o.Reason)
	case OutcomeError:
		return fmt.Sprintf("error: %v", o.Err)
	default:
		return string(o.Status)
	}
}

// Repo identifies a GitHub repository.
type Repo struct {
	Owner string
	Name  string
}

func (r Repo) String() string {
	return r.Owner + "/" + r.Name
}

// ParseRepo splits "owner/name" into a Repo.
func ParseRepo(s string) (Repo, error) {
	for i := 0; i < len(s); i++ {
		if s[i] == '/' {
			owner, name := s[:i], s[i+1:]
			if owner == "" || name == "" {
				break
			}
			return Repo{Owner: owner, Name: name}, nil
		}
	}
	return Repo{}, fmt.Errorf("invalid repository %q, want owner/name", s)
}
