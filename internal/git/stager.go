package git

import (
	"context"
	stderrors "errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"git.home.luguber.info/inful/meshpack/internal/config"
	"git.home.luguber.info/inful/meshpack/internal/foundation/errors"
	"git.home.luguber.info/inful/meshpack/internal/logfields"
	"git.home.luguber.info/inful/meshpack/internal/retry"
)

// Outcome reports what Ensure did to a checkout.
type Outcome string

const (
	OutcomeCloned Outcome = "cloned"
	OutcomeSynced Outcome = "synced"
)

// Backend performs the VCS operations for a single attempt. Retrying is the Stager's job.
type Backend interface {
	Name() string
	// Clone creates co.Path from the remote at co.Ref. The parent directory exists.
	Clone(ctx context.Context, co config.Checkout) error
	// Sync brings an existing checkout at co.Path up to date with co.Ref.
	Sync(ctx context.Context, co config.Checkout) error
}

// Stager implements the clone-if-absent, sync-if-present contract on top of a Backend.
type Stager struct {
	backend Backend
	policy  retry.Policy
	logger  *slog.Logger
	onRetry func(op string)
	sleep   func(context.Context, time.Duration) error
}

// StagerOption customizes a Stager.
type StagerOption func(*Stager)

// WithLogger sets the Stager's logger.
func WithLogger(l *slog.Logger) StagerOption {
	return func(s *Stager) { s.logger = l }
}

// WithRetryHook registers a callback invoked before every retried attempt.
func WithRetryHook(fn func(op string)) StagerOption {
	return func(s *Stager) { s.onRetry = fn }
}

// WithSleep replaces the backoff wait; tests use it to avoid real delays.
func WithSleep(fn func(context.Context, time.Duration) error) StagerOption {
	return func(s *Stager) { s.sleep = fn }
}

// NewStager returns a Stager using backend and policy.
func NewStager(backend Backend, policy retry.Policy, opts ...StagerOption) *Stager {
	s := &Stager{backend: backend, policy: policy, logger: slog.Default()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Backend returns the configured backend name.
func (s *Stager) Backend() string { return s.backend.Name() }

// Ensure guarantees co.Path holds a working tree at or ahead of co.Ref.
func (s *Stager) Ensure(ctx context.Context, co config.Checkout) (Outcome, error) {
	present, err := isCheckout(co.Path)
	if err != nil {
		return "", ClassifyGitError(err, "inspect", co.URL)
	}

	if present {
		s.logger.Info("Synchronizing checkout", logfields.Repository(co.Name), logfields.Ref(co.Ref), logfields.Path(co.Path))
		if err := s.attempt(ctx, "sync", co, s.backend.Sync); err != nil {
			return "", err
		}
		return OutcomeSynced, nil
	}

	if err := os.MkdirAll(filepath.Dir(co.Path), 0o755); err != nil {
		return "", errors.WrapError(err, errors.CategoryFileSystem, "failed to create checkout parent").
			WithContext("path", co.Path).
			Build()
	}
	s.logger.Info("Cloning checkout", logfields.Repository(co.Name), logfields.URL(co.URL), logfields.Ref(co.Ref), logfields.Path(co.Path))
	if err := s.attempt(ctx, "clone", co, s.backend.Clone); err != nil {
		return "", err
	}
	return OutcomeCloned, nil
}

func (s *Stager) attempt(ctx context.Context, op string, co config.Checkout, fn func(context.Context, config.Checkout) error) error {
	opts := []retry.Option{
		retry.WithLogger(s.logger.With(logfields.Repository(co.Name))),
		retry.WithOnRetry(func(int, error) {
			if s.onRetry != nil {
				s.onRetry(op)
			}
		}),
	}
	if s.sleep != nil {
		opts = append(opts, retry.WithSleep(s.sleep))
	}
	err := s.policy.Do(ctx, "git "+op+" "+co.Name, func(ctx context.Context) error {
		return ClassifyGitError(fn(ctx, co), op, co.URL)
	}, opts...)
	if err != nil {
		s.logger.Error("Checkout failed", slog.String("operation", op), logfields.Repository(co.Name), logfields.Error(err))
	}
	return err
}

// isCheckout reports whether path already holds a checkout. A non-empty directory
// without .git is an error.
func isCheckout(path string) (bool, error) {
	if _, err := os.Stat(filepath.Join(path, ".git")); err == nil {
		return true, nil
	} else if !stderrors.Is(err, fs.ErrNotExist) {
		return false, err
	}
	entries, err := os.ReadDir(path)
	if err != nil {
		if stderrors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	if len(entries) > 0 {
		return false, &NotACheckoutError{Path: path}
	}
	return false, nil
}
