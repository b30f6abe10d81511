package git

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/meshpack/internal/config"
	ferrors "git.home.luguber.info/inful/meshpack/internal/foundation/errors"
	"git.home.luguber.info/inful/meshpack/internal/process"
	"git.home.luguber.info/inful/meshpack/internal/retry"
)

// fakeBackend simulates a VCS: Clone creates <path>/.git, Sync records the call.
type fakeBackend struct {
	clones   []string
	syncs    []string
	cloneErr []error // consumed one per call
	syncErr  []error
}

func (f *fakeBackend) Name() string { return "fake" }

func (f *fakeBackend) Clone(_ context.Context, co config.Checkout) error {
	f.clones = append(f.clones, co.Path)
	if len(f.cloneErr) > 0 {
		err := f.cloneErr[0]
		f.cloneErr = f.cloneErr[1:]
		if err != nil {
			return err
		}
	}
	return os.MkdirAll(filepath.Join(co.Path, ".git"), 0o755)
}

func (f *fakeBackend) Sync(_ context.Context, co config.Checkout) error {
	f.syncs = append(f.syncs, co.Path)
	if len(f.syncErr) > 0 {
		err := f.syncErr[0]
		f.syncErr = f.syncErr[1:]
		return err
	}
	return nil
}

func noSleep(context.Context, time.Duration) error { return nil }

func testPolicy(retries int) retry.Policy {
	return retry.NewPolicy(config.RetryBackoffFixed, time.Millisecond, time.Millisecond, retries)
}

func TestStager_ClonesWhenAbsentThenSyncs(t *testing.T) {
	root := t.TempDir()
	co := config.Checkout{Name: "tinc", URL: "https://example.com/tinc.git", Ref: "Release-1.1pre17", Path: filepath.Join(root, "nested", "tinc_src")}
	backend := &fakeBackend{}
	s := NewStager(backend, testPolicy(2), WithSleep(noSleep))

	outcome, err := s.Ensure(context.Background(), co)
	require.NoError(t, err)
	assert.Equal(t, OutcomeCloned, outcome)
	assert.DirExists(t, filepath.Join(co.Path, ".git"))

	for i := 0; i < 2; i++ {
		outcome, err = s.Ensure(context.Background(), co)
		require.NoError(t, err)
		assert.Equal(t, OutcomeSynced, outcome)
	}
	assert.Len(t, backend.clones, 1, "an existing checkout is never re-cloned")
	assert.Len(t, backend.syncs, 2, "every call contacts the remote")
}

func TestStager_ExistingCheckoutNeverRecloned(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dnetnode")
	require.NoError(t, os.MkdirAll(filepath.Join(path, ".git"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(path, "local.txt"), []byte("keep"), 0o600))
	backend := &fakeBackend{}
	s := NewStager(backend, testPolicy(0))

	outcome, err := s.Ensure(context.Background(), config.Checkout{Name: "dnetnode", URL: "u", Ref: "origin_tinc", Path: path})
	require.NoError(t, err)
	assert.Equal(t, OutcomeSynced, outcome)
	assert.Empty(t, backend.clones)
	assert.FileExists(t, filepath.Join(path, "local.txt"))
}

func TestStager_RetriesTransientFailures(t *testing.T) {
	co := config.Checkout{Name: "tinc", URL: "u", Ref: "r", Path: filepath.Join(t.TempDir(), "tinc")}
	backend := &fakeBackend{cloneErr: []error{
		errors.New("fatal: unable to access: Could not resolve host: git.vlan.cn"),
		errors.New("the remote end hung up unexpectedly"),
	}}
	var retried []string
	s := NewStager(backend, testPolicy(3), WithSleep(noSleep), WithRetryHook(func(op string) { retried = append(retried, op) }))

	outcome, err := s.Ensure(context.Background(), co)
	require.NoError(t, err)
	assert.Equal(t, OutcomeCloned, outcome)
	assert.Len(t, backend.clones, 3)
	assert.Equal(t, []string{"clone", "clone"}, retried)
}

func TestStager_RetriesAreBounded(t *testing.T) {
	co := config.Checkout{Name: "tinc", URL: "u", Ref: "r", Path: filepath.Join(t.TempDir(), "tinc")}
	require.NoError(t, os.MkdirAll(filepath.Join(co.Path, ".git"), 0o755))
	fail := errors.New("connection reset by peer")
	backend := &fakeBackend{syncErr: []error{fail, fail, fail, fail}}
	s := NewStager(backend, testPolicy(2), WithSleep(noSleep))

	_, err := s.Ensure(context.Background(), co)
	require.Error(t, err)
	assert.Len(t, backend.syncs, 3)
	var exhausted *retry.ExhaustedError
	assert.ErrorAs(t, err, &exhausted)
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryGit))
}

func TestStager_PermanentFailureNotRetried(t *testing.T) {
	co := config.Checkout{Name: "tinc", URL: "u", Ref: "r", Path: filepath.Join(t.TempDir(), "tinc")}
	backend := &fakeBackend{cloneErr: []error{errors.New("fatal: Authentication failed for 'https://git.vlan.cn/DNET/tinc.git/'")}}
	s := NewStager(backend, testPolicy(5), WithSleep(noSleep))

	_, err := s.Ensure(context.Background(), co)
	require.Error(t, err)
	assert.Len(t, backend.clones, 1)
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryAuth))
}

func TestStager_RefusesNonCheckoutDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tinc_src")
	require.NoError(t, os.MkdirAll(path, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(path, "stray"), []byte("x"), 0o600))
	backend := &fakeBackend{}
	s := NewStager(backend, testPolicy(3), WithSleep(noSleep))

	_, err := s.Ensure(context.Background(), config.Checkout{Name: "tinc", URL: "u", Ref: "r", Path: path})
	require.Error(t, err)
	var nac *NotACheckoutError
	assert.ErrorAs(t, err, &nac)
	assert.Empty(t, backend.clones)
	assert.FileExists(t, filepath.Join(path, "stray"))
}

func TestClassifyGitError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		category ferrors.ErrorCategory
		retry    bool
	}{
		{"auth", errors.New("fatal: Authentication failed"), ferrors.CategoryAuth, false},
		{"missing branch", errors.New("fatal: Remote branch nope not found in upstream origin"), ferrors.CategoryNotFound, false},
		{"missing repo", errors.New("remote: Repository not found."), ferrors.CategoryNotFound, false},
		{"diverged", &RemoteDivergedError{Op: "sync", URL: "u", Ref: "r", Err: errors.New("x")}, ferrors.CategoryGit, false},
		{"rebase conflict", errors.New("error: could not apply 1234... CONFLICT (content)"), ferrors.CategoryGit, false},
		{"network", errors.New("fatal: unable to access: Connection timed out"), ferrors.CategoryGit, true},
		{"git missing", fmt.Errorf("git: %w", process.ErrNotFound), ferrors.CategoryRuntime, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ClassifyGitError(tt.err, "clone", "https://example.com/x.git")
			ce, ok := ferrors.AsClassified(err)
			require.True(t, ok)
			assert.Equal(t, tt.category, ce.Category())
			assert.Equal(t, tt.retry, ce.CanRetry())
		})
	}
	assert.NoError(t, ClassifyGitError(nil, "clone", "u"))
}
