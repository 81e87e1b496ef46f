// Package editor invokes the external AI code editor as a subprocess.
// The editor commits its own changes; callers compare commit hashes to
// learn whether anything happened.
package editor

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hochfrequenz/triagebot/internal/config"
)

// maxOutput caps captured editor output. Editors can be extremely
// chatty; everything past the cap is dropped, not buffered.
const maxOutput = 1 << 20

// selfUpdateMarker appears in aider's output when it upgraded itself
// instead of doing the requested work. One re-run picks up the new
// version.
const selfUpdateMarker = "Re-run aider to use new version"

// Runner executes the configured editor command.
type Runner struct {
	command string
	args    []string
	timeout time.Duration
}

func New(cfg config.EditorConfig) *Runner {
	timeout := time.Duration(cfg.TimeoutMinutes) * time.Minute
	if timeout <= 0 {
		timeout = 30 * time.Minute
	}
	return &Runner{command: cfg.Command, args: cfg.Args, timeout: timeout}
}

// Edit runs the editor in dir with the given instruction and returns
// its captured output. The call blocks until the editor exits or the
// timeout expires.
func (r *Runner) Edit(ctx context.Context, dir, instruction string) (string, error) {
	session := uuid.New().String()[:8]
	slog.Info("running editor", "session", session, "dir", dir, "command", r.command)

	out, err := r.runOnce(ctx, dir, instruction)
	if err != nil {
		return out, err
	}
	if strings.Contains(out, selfUpdateMarker) {
		slog.Info("editor self-updated, re-running", "session", session)
		return r.runOnce(ctx, dir, instruction)
	}
	return out, nil
}

func (r *Runner) runOnce(ctx context.Context, dir, instruction string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	args := append(append([]string{}, r.args...), "--message", instruction)
	cmd := exec.CommandContext(ctx, r.command, args...)
	cmd.Dir = dir

	var buf limitedWriter
	buf.limit = maxOutput
	cmd.Stdout = &buf
	cmd.Stderr = &buf

	err := cmd.Run()
	out := buf.String()
	if ctx.Err() == context.DeadlineExceeded {
		return out, fmt.Errorf("%s timed out after %s", r.command, r.timeout)
	}
	if err != nil {
		return out, fmt.Errorf("%s: %s: %w", r.command, lastLine(out), err)
	}
	return out, nil
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return lines[len(lines)-1]
}

// limitedWriter keeps the first limit bytes and discards the rest.
type limitedWriter struct {
	buf   []byte
	limit int
}

func (w *limitedWriter) Write(p []byte) (int, error) {
	if room := w.limit - len(w.buf); room > 0 {
		if len(p) > room {
			w.buf = append(w.buf, p[:room]...)
		} else {
			w.buf = append(w.buf, p...)
		}
	}
	return len(p), nil
}

func (w *limitedWriter) String() string { return string(w.buf) }
