package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"git.home.luguber.info/inful/meshpack/internal/logfields"
)

const (
	defaultTailBytes = 4096
	waitDelay        = 5 * time.Second
)

// ExecRunner runs commands with os/exec.
type ExecRunner struct {
	DefaultTimeout time.Duration
	TailBytes      int
	Logger         *slog.Logger
}

// NewExecRunner returns an ExecRunner applying defaultTimeout to commands without their own.
func NewExecRunner(defaultTimeout time.Duration, logger *slog.Logger) *ExecRunner {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExecRunner{DefaultTimeout: defaultTimeout, TailBytes: defaultTailBytes, Logger: logger}
}

// Run executes cmd and blocks until it exits or its timeout elapses.
func (r *ExecRunner) Run(ctx context.Context, cmd Command) (Result, error) {
	timeout := cmd.Timeout
	if timeout <= 0 {
		timeout = r.DefaultTimeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	tail := newTailBuffer(r.TailBytes)
	c := exec.CommandContext(ctx, cmd.Name, cmd.Args...)
	c.Dir = cmd.Dir
	c.Env = cmd.Env
	if c.Env == nil {
		c.Env = []string{}
	}
	c.Stdout = cmd.Stdout
	var out *lineLogger
	if c.Stdout == nil && r.Logger.Enabled(ctx, slog.LevelDebug) {
		out = &lineLogger{logger: r.Logger.With(logfields.Command(cmd.Name))}
		c.Stdout = out
	}
	if cmd.Stderr != nil {
		c.Stderr = io.MultiWriter(cmd.Stderr, tail)
	} else {
		c.Stderr = tail
	}
	c.WaitDelay = waitDelay

	r.Logger.Debug("Running command", logfields.Command(cmd.String()), logfields.Dir(cmd.Dir))
	start := time.Now()
	err := c.Run()
	if out != nil {
		out.flush()
	}
	res := Result{Duration: time.Since(start), StderrTail: tail.String()}
	if c.ProcessState != nil {
		res.ExitCode = c.ProcessState.ExitCode()
	}

	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return res, fmt.Errorf("%s: %w after %s", cmd.String(), ErrTimeout, timeout)
		}
		if errors.Is(ctx.Err(), context.Canceled) {
			return res, fmt.Errorf("%s: %w", cmd.String(), ctx.Err())
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			r.Logger.Debug("Command failed",
				logfields.Command(cmd.String()),
				logfields.ExitCode(exitErr.ExitCode()),
				logfields.DurationMS(float64(res.Duration.Milliseconds())))
			return res, &ExitError{Command: cmd.String(), Code: exitErr.ExitCode(), Stderr: res.StderrTail}
		}
		if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) {
			return res, fmt.Errorf("%s: %w: %v", cmd.Name, ErrNotFound, err)
		}
		return res, fmt.Errorf("%s: %w", cmd.String(), err)
	}

	r.Logger.Debug("Command finished",
		logfields.Command(cmd.String()),
		logfields.DurationMS(float64(res.Duration.Milliseconds())))
	return res, VerifyOutputs(cmd)
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	max int
	buf []byte
}

func newTailBuffer(limit int) *tailBuffer {
	if limit <= 0 {
		limit = defaultTailBytes
	}
	return &tailBuffer{max: limit}
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.max; over > 0 {
		t.buf = append(t.buf[:0], t.buf[over:]...)
	}
	return len(p), nil
}

func (t *tailBuffer) String() string { return string(t.buf) }

// lineLogger logs each complete line written to it at debug level.
type lineLogger struct {
	logger  *slog.Logger
	partial []byte
}

func (l *lineLogger) Write(p []byte) (int, error) {
	l.partial = append(l.partial, p...)
	for {
		i := bytes.IndexByte(l.partial, '\n')
		if i < 0 {
			break
		}
		l.log(l.partial[:i])
		l.partial = l.partial[i+1:]
	}
	return len(p), nil
}

func (l *lineLogger) flush() {
	if len(l.partial) > 0 {
		l.log(l.partial)
		l.partial = nil
	}
}

func (l *lineLogger) log(line []byte) {
	if s := strings.TrimRight(string(line), "\r"); s != "" {
		l.logger.Debug(s, slog.String("stream", "stdout"))
	}
}
