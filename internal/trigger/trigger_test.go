package trigger

import (
	"testing"

	"github.com/hochfrequenz/triagebot/internal/domain"
	"github.com/hochfrequenz/triagebot/internal/history"
)

func botComment(body string) domain.Comment {
	return domain.Comment{Body: history.Render(history.Tag{Kind: domain.TriggerNewResponse, Outcome: domain.OutcomeSuccess}, body, "")}
}

func issue(num int, labels ...string) domain.Item {
	return domain.Item{Number: num, Title: "crash on startup", Labels: labels}
}

func TestEvaluate(t *testing.T) {
	eval := NewEvaluator()

	tests := []struct {
		name string
		in   Input
		want domain.TriggerKind
	}{
		{
			name: "issue with zero comments",
			in:   Input{Item: issue(1), Comments: history.New(nil)},
			want: domain.TriggerNewResponse,
		},
		{
			name: "single bot comment and nothing after",
			in: Input{Item: issue(2), Comments: history.New([]domain.Comment{
				botComment("initial triage"),
			})},
			want: domain.TriggerNone,
		},
		{
			name: "bot comment followed by human comment",
			in: Input{Item: issue(3), Comments: history.New([]domain.Comment{
				botComment("initial triage"),
				{Author: "alice", Body: "that is not quite right"},
			})},
			want: domain.TriggerUserFeedback,
		},
		{
			name: "edit command overrides feedback",
			in: Input{Item: issue(4), Comments: history.New([]domain.Comment{
				botComment("initial triage"),
				{Author: "alice", Body: "[ generate_edit_command ]"},
			})},
			want: domain.TriggerGenerateEditCommand,
		},
		{
			name: "develop command on fresh issue",
			in: Input{Item: issue(5), Comments: history.New([]domain.Comment{
				botComment("initial triage"),
				{Author: "alice", Body: "looks right"},
				{Author: "alice", Body: "[ develop_issue ] please"},
			})},
			// user feedback outranks develop by priority order
			want: domain.TriggerUserFeedback,
		},
		{
			name: "develop command outranks new response",
			in: Input{Item: issue(6), Comments: history.New([]domain.Comment{
				{Author: "alice", Body: "[ develop_issue ]"},
			})},
			want: domain.TriggerDevelopIssue,
		},
		{
			name: "develop command after bot response only",
			in: Input{Item: issue(7), Comments: history.New([]domain.Comment{
				{Author: "alice", Body: "some context"},
				botComment("triage"),
				{Author: "alice", Body: "[ develop_issue ]"},
			})},
			want: domain.TriggerUserFeedback,
		},
		{
			name: "develop blocked by under_development label",
			in: Input{Item: issue(8, UnderDevelopmentLabel), Comments: history.New([]domain.Comment{
				{Author: "alice", Body: "[ develop_issue ]"},
			})},
			want: domain.TriggerNewResponse,
		},
		{
			name: "pull request with zero comments",
			in:   Input{Item: domain.Item{Number: 9, IsPR: true}, Comments: history.New(nil)},
			want: domain.TriggerStandalonePR,
		},
		{
			name: "issue with linked PR awaiting reply",
			in: Input{
				Item:     issue(10),
				Comments: history.New([]domain.Comment{botComment("Created pull request: https://github.com/o/r/pull/11\nContinue discussion there.")}),
				LinkedPR: &LinkedPR{Number: 11, Comments: history.New([]domain.Comment{
					botComment("opened"),
					{Author: "alice", Body: "please rename this function"},
				})},
			},
			want: domain.TriggerPRCommentFollowup,
		},
		{
			name: "issue with linked PR and no new PR comments",
			in: Input{
				Item:     issue(11),
				Comments: history.New([]domain.Comment{botComment("Created pull request: https://github.com/o/r/pull/12\nContinue discussion there.")}),
				LinkedPR: &LinkedPR{Number: 12, Comments: history.New([]domain.Comment{botComment("opened")})},
			},
			want: domain.TriggerNone,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := eval.Evaluate(tt.in)
			if got != tt.want {
				t.Errorf("Evaluate = %q, want %q", got, tt.want)
			}
			// evaluation must be idempotent on unchanged input
			if again := eval.Evaluate(tt.in); again != got {
				t.Errorf("second evaluation = %q, first = %q", again, got)
			}
		})
	}
}

func TestOrderMatchesDomainKinds(t *testing.T) {
	order := NewEvaluator().Order()
	kinds := domain.Kinds()
	if len(order) != len(kinds) {
		t.Fatalf("rule count %d, kind count %d", len(order), len(kinds))
	}
	for i := range kinds {
		if order[i] != kinds[i] {
			t.Errorf("rule %d = %q, want %q", i, order[i], kinds[i])
		}
	}
}

func TestFindLinkedPR(t *testing.T) {
	h := history.New([]domain.Comment{
		{Body: "unrelated"},
		botComment("Created pull request: https://github.com/hochfrequenz/triagebot/pull/42\nContinue discussion there."),
	})
	num, url, ok := FindLinkedPR(h)
	if !ok {
		t.Fatal("linked PR not found")
	}
	if num != 42 {
		t.Errorf("number = %d, want 42", num)
	}
	if url != "https://github.com/hochfrequenz/triagebot/pull/42" {
		t.Errorf("url = %q", url)
	}

	if _, _, ok := FindLinkedPR(history.New([]domain.Comment{{Body: "no pr here"}})); ok {
		t.Error("found a PR in a thread without one")
	}
}
