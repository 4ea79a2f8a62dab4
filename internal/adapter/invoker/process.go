// Package invoker runs model attempts as external processes speaking the
// newline-delimited JSON event protocol on stdout.
package invoker

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/nmino-cmu/prodHacks-HeavyFingers-2026/internal/port/invoker"
)

const (
	eventBuffer  = 64
	maxLineBytes = 4 << 20
	stderrTail   = 2048
	waitDelay    = 2 * time.Second
)

var _ invoker.Invoker = (*Process)(nil)

// Config configures the process invoker.
type Config struct {
	Command       []string // argv prefix; request flags are appended
	Env           []string // extra KEY=VALUE entries on top of the server environment
	MaxConcurrent int
}

// Process starts one invocation process per attempt.
type Process struct {
	command []string
	env     []string
	pool    *pool
	log     *slog.Logger
}

// New returns a Process invoker. The command binary must be resolvable.
func New(cfg Config, log *slog.Logger) (*Process, error) {
	if len(cfg.Command) == 0 || cfg.Command[0] == "" {
		return nil, errors.New("invoker: no command configured")
	}
	if _, err := exec.LookPath(cfg.Command[0]); err != nil {
		return nil, fmt.Errorf("invoker: command not found: %s: %w", cfg.Command[0], err)
	}
	return &Process{
		command: append([]string(nil), cfg.Command...),
		env:     append([]string(nil), cfg.Env...),
		pool:    newPool(cfg.MaxConcurrent),
		log:     log,
	}, nil
}

// Invoke waits for a free slot and starts the process for req.
func (p *Process) Invoke(ctx context.Context, req invoker.Request) (<-chan invoker.Event, error) {
	if err := p.pool.acquire(ctx); err != nil {
		return nil, err
	}

	args := append(append([]string(nil), p.command[1:]...), invoker.Args(req)...)
	cmd := exec.CommandContext(ctx, p.command[0], args...) //nolint:gosec // command from trusted config
	cmd.Env = append(os.Environ(), p.env...)
	cmd.WaitDelay = waitDelay
	stderr := &tailBuffer{max: stderrTail}
	cmd.Stderr = stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		p.pool.release()
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		p.pool.release()
		return nil, fmt.Errorf("start process: %w", err)
	}
	p.log.Debug("invocation started", "model", req.Model, "conversation_id", req.ConversationID, "pid", cmd.Process.Pid, "stream", req.Stream)

	events := make(chan invoker.Event, eventBuffer)
	go p.run(ctx, cmd, stdout, stderr, req.Model, events)
	return events, nil
}

func (p *Process) run(ctx context.Context, cmd *exec.Cmd, stdout io.Reader, stderr *tailBuffer, model string, events chan<- invoker.Event) {
	defer p.pool.release()
	defer close(events)

	sawError := false
	sc := bufio.NewScanner(stdout)
	sc.Buffer(make([]byte, 64*1024), maxLineBytes)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		ev, err := invoker.Decode(line)
		if err != nil {
			p.log.Debug("ignoring invocation output line", "model", model, "error", err)
			continue
		}
		if ev.Kind == invoker.KindError {
			sawError = true
		}
		if !send(ctx, events, ev) {
			break
		}
	}
	scanErr := sc.Err()
	if scanErr != nil {
		_ = cmd.Process.Kill()
	}

	waitErr := cmd.Wait()
	if ctx.Err() != nil {
		p.log.Debug("invocation cancelled", "model", model)
		return
	}

	switch {
	case scanErr != nil:
		send(ctx, events, invoker.Event{Kind: invoker.KindError, Message: invoker.ReadFailedPrefix + ": " + scanErr.Error()})
	case waitErr != nil && !sawError:
		msg := invoker.ProcessFailedPrefix + ": " + waitErr.Error()
		if tail := stderr.String(); tail != "" {
			msg += ": " + tail
		}
		send(ctx, events, invoker.Event{Kind: invoker.KindError, Message: msg})
	}
	if waitErr != nil {
		p.log.Warn("invocation exited with error", "model", model, "error", waitErr)
	}
}

func send(ctx context.Context, events chan<- invoker.Event, ev invoker.Event) bool {
	select {
	case events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	buf []byte
	max int
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, p...)
	if over := len(b.buf) - b.max; over > 0 {
		b.buf = append(b.buf[:0], b.buf[over:]...)
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return strings.TrimSpace(string(b.buf))
}
