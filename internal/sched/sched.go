// Package sched runs triage passes on a cron schedule and reloads
// configuration when the config file changes on disk.
package sched

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/robfig/cron/v3"

	"github.com/hochfrequenz/triagebot/internal/processor"
)

// Pass is one full triage pass. *processor.Processor satisfies it.
type Pass interface {
	ProcessAll(ctx context.Context) (processor.Stats, error)
}

// Scheduler fires passes at the times a cron expression describes.
type Scheduler struct {
	schedule cron.Schedule
	expr     string
	pass     Pass
}

func New(expr string, pass Pass) (*Scheduler, error) {
	schedule, err := cron.ParseStandard(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", expr, err)
	}
	return &Scheduler{schedule: schedule, expr: expr, pass: pass}, nil
}

// Next returns the next firing time after now.
func (s *Scheduler) Next(now time.Time) time.Time {
	return s.schedule.Next(now)
}

// Run blocks, executing one pass per scheduled tick until the context
// is cancelled. A failing pass is logged and the loop continues.
func (s *Scheduler) Run(ctx context.Context) error {
	slog.Info("daemon started", "schedule", s.expr)
	for {
		next := s.Next(time.Now())
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		start := time.Now()
		stats, err := s.pass.ProcessAll(ctx)
		if err != nil {
			slog.Error("pass failed", "err", err)
			continue
		}
		slog.Info("pass finished",
			"items", stats.Items,
			"success", stats.Success,
			"skips", stats.Skips,
			"errors", stats.Errors,
			"duration", time.Since(start).Round(time.Millisecond))
	}
}

// debounce is how long file events must settle before a reload fires.
// Editors tend to produce bursts of writes.
const debounce = 500 * time.Millisecond

// WatchConfig watches path and calls onChange after writes settle. It
// blocks until the context is cancelled.
func WatchConfig(ctx context.Context, path string, onChange func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	// watch the directory; many editors replace the file on save
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return err
	}

	var timer *time.Timer
	fire := make(chan struct{}, 1)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounce, func() {
				select {
				case fire <- struct{}{}:
				default:
				}
			})
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("config watcher error", "err", err)
		case <-fire:
			slog.Info("config file changed, reloading", "path", path)
			onChange()
		}
	}
}
