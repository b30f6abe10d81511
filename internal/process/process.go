package process

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

// Command describes one external process invocation.
type Command struct {
	Name    string        // executable; a path containing a separator is resolved relative to Dir
	Args    []string      // arguments, not including Name
	Dir     string        // working directory
	Env     []string      // complete child environment; nil means an empty environment
	Timeout time.Duration // zero selects the runner default
	Expect  []string      // paths that must exist after a zero exit
	Stdout  io.Writer     // optional stream sinks
	Stderr  io.Writer
}

// String renders the command line for logs and error messages.
func (c Command) String() string {
	if len(c.Args) == 0 {
		return c.Name
	}
	return c.Name + " " + strings.Join(c.Args, " ")
}

// Result describes a finished invocation.
type Result struct {
	ExitCode   int
	Duration   time.Duration
	StderrTail string
}

// Runner executes commands. Implementations must block until the process exits.
type Runner interface {
	Run(ctx context.Context, cmd Command) (Result, error)
}

var (
	// ErrTimeout is returned when an invocation exceeds its timeout.
	ErrTimeout = errors.New("process timed out")
	// ErrMissingOutput is returned when a process exits 0 but a declared output is absent.
	ErrMissingOutput = errors.New("expected output missing")
	// ErrNotFound is returned when the executable cannot be located.
	ErrNotFound = errors.New("executable not found")
)

// ExitError reports a non-zero exit status.
type ExitError struct {
	Command string
	Code    int
	Stderr  string
}

func (e *ExitError) Error() string {
	msg := fmt.Sprintf("%s: exit status %d", e.Command, e.Code)
	if e.Stderr != "" {
		msg += ": " + lastLine(e.Stderr)
	}
	return msg
}

// MissingOutputError lists the declared outputs absent after a zero exit.
type MissingOutputError struct {
	Command string
	Paths   []string
}

func (e *MissingOutputError) Error() string {
	return fmt.Sprintf("%s exited 0 but did not produce %s", e.Command, strings.Join(e.Paths, ", "))
}

func (e *MissingOutputError) Is(target error) bool { return target == ErrMissingOutput }

// VerifyOutputs checks that every path in cmd.Expect exists.
func VerifyOutputs(cmd Command) error {
	var missing []string
	for _, p := range cmd.Expect {
		if _, err := os.Stat(p); err != nil {
			missing = append(missing, p)
		}
	}
	if len(missing) > 0 {
		return &MissingOutputError{Command: cmd.String(), Paths: missing}
	}
	return nil
}

func lastLine(s string) string {
	s = strings.TrimRight(s, "\n")
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}
