package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestCLIErrorAdapter_ExitCodeFor(t *testing.T) {
	adapter := NewCLIErrorAdapter(false, nil)

	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{name: "nil", err: nil, expected: 0},
		{name: "plain error", err: errors.New("boom"), expected: 1},
		{name: "validation", err: ValidationError("unknown target").Build(), expected: 2},
		{name: "config", err: ConfigError("bad config").Build(), expected: 7},
		{name: "git", err: GitError("clone failed").Build(), expected: 8},
		{name: "network", err: NetworkError("download failed").Build(), expected: 8},
		{name: "internal", err: InternalError("bug").Build(), expected: 10},
		{name: "provision", err: ProvisionError("openssl").Build(), expected: 11},
		{name: "build", err: BuildError("make").Build(), expected: 11},
		{name: "assembly", err: AssemblyError("dpkg-deb").Build(), expected: 11},
		{name: "runtime", err: RuntimeError("locked").Build(), expected: 12},
		{name: "eventstore", err: EventStoreError("journal write").Build(), expected: 12},
		{name: "wrapped build", err: fmt.Errorf("stage build: %w", BuildError("make").Build()), expected: 11},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := adapter.ExitCodeFor(tt.err); got != tt.expected {
				t.Errorf("ExitCodeFor() = %d, want %d", got, tt.expected)
			}
		})
	}
}

func TestCLIErrorAdapter_FormatError(t *testing.T) {
	adapter := NewCLIErrorAdapter(false, nil)

	if got := adapter.FormatError(nil); got != "" {
		t.Errorf("expected empty string for nil, got %q", got)
	}

	err := fmt.Errorf("stage build (tunnel): %w", BuildError("make failed").Build())
	want := "Error: stage build (tunnel): [build] make failed"
	if got := adapter.FormatError(err); got != want {
		t.Errorf("FormatError() = %q, want %q", got, want)
	}
}
