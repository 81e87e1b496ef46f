// Package workflow executes the action a trigger asked for and reduces
// every execution to a single three-way outcome.
package workflow

import (
	"context"
	"fmt"

	"github.com/hochfrequenz/triagebot/internal/domain"
)

// HandlerFunc runs one complete workflow for an item.
type HandlerFunc func(ctx context.Context, env *Env) domain.Outcome

// Dispatcher maps trigger kinds to handlers. The registry is built once
// at construction and covers every actionable kind; an unwired kind is
// a defect, not a runtime nil.
type Dispatcher struct {
	handlers map[domain.TriggerKind]HandlerFunc
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: map[domain.TriggerKind]HandlerFunc{
		domain.TriggerGenerateEditCommand: runGenerateEditCommand,
		domain.TriggerUserFeedback:        runUserFeedback,
		domain.TriggerPRCommentFollowup:   runPRCommentFollowup,
		domain.TriggerDevelopIssue:        runDevelopIssue,
		domain.TriggerStandalonePR:        runStandalonePR,
		domain.TriggerNewResponse:         runNewResponse,
	}}
}

// Validate errors if any actionable trigger kind lacks a handler.
func (d *Dispatcher) Validate() error {
	for _, k := range domain.Kinds() {
		if _, ok := d.handlers[k]; !ok {
			return fmt.Errorf("trigger kind %q has no handler", k)
		}
	}
	return nil
}

// Lookup returns the handler for a kind. TriggerNone and unknown kinds
// have no handler; the caller treats that as a skip.
func (d *Dispatcher) Lookup(kind domain.TriggerKind) (HandlerFunc, bool) {
	h, ok := d.handlers[kind]
	return h, ok
}

// Kinds lists every wired trigger kind.
func (d *Dispatcher) Kinds() []domain.TriggerKind {
	kinds := make([]domain.TriggerKind, 0, len(d.handlers))
	for k := range d.handlers {
		kinds = append(kinds, k)
	}
	return kinds
}
