// Package history inspects comment threads and renders the bot's own
// comments so they can be recognized on the next pass.
package history

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/hochfrequenz/triagebot/internal/domain"
)

// Marker is the substring that identifies a bot comment when no metadata
// tag is present. Kept stable so comments written by older versions are
// still recognized.
const Marker = "generated by triagebot"

const tagPrefix = "<!-- triagebot:"

var (
	terminateRe = regexp.MustCompile(`(?i)\bTERMINATE\b`)
	signatureRe = regexp.MustCompile(`\n*-{3,}\n\*This response was automatically generated by triagebot[^\n]*\*\n*`)
	tagRe       = regexp.MustCompile(`<!-- triagebot:(\{.*?\}) -->`)
)

// Tag is the machine-readable metadata embedded in every bot comment.
type Tag struct {
	Kind    domain.TriggerKind   `json:"kind"`
	Outcome domain.OutcomeStatus `json:"outcome"`
}

func (t Tag) render() string {
	b, _ := json.Marshal(t)
	return tagPrefix + string(b) + " -->"
}

// ParseTag extracts the metadata tag from a comment body.
func ParseTag(body string) (Tag, bool) {
	m := tagRe.FindStringSubmatch(body)
	if m == nil {
		return Tag{}, false
	}
	var t Tag
	if err := json.Unmarshal([]byte(m[1]), &t); err != nil {
		return Tag{}, false
	}
	return t, true
}

// Signature returns the trailing attribution line. The model name is
// included when known.
func Signature(model string) string {
	if model == "" {
		return "\n\n---\n*This response was automatically generated by triagebot*"
	}
	return fmt.Sprintf("\n\n---\n*This response was automatically generated by triagebot using model %s*", model)
}

// Render produces the full comment body for publication: metadata tag,
// cleaned response text, then the signature.
func Render(tag Tag, body, model string) string {
	return tag.render() + "\n" + Clean(body) + Signature(model)
}

// IsBot reports whether a comment was written by the bot, preferring the
// structured tag and falling back to the string marker.
func IsBot(c domain.Comment) bool {
	if _, ok := ParseTag(c.Body); ok {
		return true
	}
	return strings.Contains(c.Body, Marker)
}

// Clean strips termination tokens and any previous signatures from a
// model response so they are never echoed back into the thread.
func Clean(s string) string {
	s = terminateRe.ReplaceAllString(s, "")
	s = signatureRe.ReplaceAllString(s, "\n")
	return strings.TrimSpace(s)
}

// History is an ordered comment thread, oldest first.
type History struct {
	comments []domain.Comment
}

func New(comments []domain.Comment) History {
	return History{comments: comments}
}

func (h History) Len() int { return len(h.comments) }

// Each visits every comment in chronological order.
func (h History) Each(fn func(domain.Comment)) {
	for _, c := range h.comments {
		fn(c)
	}
}

// Last returns the newest comment.
func (h History) Last() (domain.Comment, bool) {
	if len(h.comments) == 0 {
		return domain.Comment{}, false
	}
	return h.comments[len(h.comments)-1], true
}

// LastIsBot reports whether the newest comment is the bot's.
func (h History) LastIsBot() bool {
	last, ok := h.Last()
	return ok && IsBot(last)
}

// HasBot reports whether the bot has commented anywhere in the thread.
func (h History) HasBot() bool {
	return h.LatestBotIndex() >= 0
}

// LatestBot returns the bot's newest comment.
func (h History) LatestBot() (domain.Comment, bool) {
	if i := h.LatestBotIndex(); i >= 0 {
		return h.comments[i], true
	}
	return domain.Comment{}, false
}

// LatestNonBot returns the newest comment not authored by the bot.
func (h History) LatestNonBot() (domain.Comment, bool) {
	for i := len(h.comments) - 1; i >= 0; i-- {
		if !IsBot(h.comments[i]) {
			return h.comments[i], true
		}
	}
	return domain.Comment{}, false
}

// LatestBotIndex returns the position of the bot's newest comment, or
// -1 when the bot has not commented.
func (h History) LatestBotIndex() int {
	for i := len(h.comments) - 1; i >= 0; i-- {
		if IsBot(h.comments[i]) {
			return i
		}
	}
	return -1
}

// SinceLastBot returns the comments that follow the bot's newest
// comment. With no bot comment in the thread the whole thread is
// returned.
func (h History) SinceLastBot() []domain.Comment {
	return h.comments[h.LatestBotIndex()+1:]
}

// Contains reports whether a comment with the given body text has
// already been published, ignoring surrounding whitespace. Used to keep
// publication idempotent across retries.
func (h History) Contains(body string) bool {
	want := strings.TrimSpace(body)
	for _, c := range h.comments {
		if strings.TrimSpace(c.Body) == want {
			return true
		}
	}
	return false
}
