package git

import (
	stderrors "errors"
	"strings"

	"github.com/go-git/go-git/v5/plumbing/transport"

	"git.home.luguber.info/inful/meshpack/internal/foundation/errors"
	"git.home.luguber.info/inful/meshpack/internal/process"
)

// ClassifyGitError translates go-git or command-line git failures into ClassifiedErrors
// whose retry strategy drives the Stager's retry loop.
func ClassifyGitError(err error, op, url string) error {
	if err == nil {
		return nil
	}
	if _, ok := errors.AsClassified(err); ok {
		return err
	}

	b := errors.GitError(op+" failed").
		WithCause(err).
		WithContext("op", op).
		WithContext("url", url)

	var (
		authErr     *AuthError
		notFoundErr *NotFoundError
		protoErr    *UnsupportedProtocolError
		divErr      *RemoteDivergedError
		notCheckout *NotACheckoutError
	)
	l := strings.ToLower(err.Error())
	switch {
	case stderrors.Is(err, process.ErrNotFound):
		b.WithCategory(errors.CategoryRuntime).Fatal().WithRetry(errors.RetryNever)
	case stderrors.As(err, &divErr):
		b.WithContext("diverged", true).UserAction()
	case stderrors.As(err, &notCheckout):
		b.WithCategory(errors.CategoryFileSystem).UserAction()
	case stderrors.As(err, &authErr),
		stderrors.Is(err, transport.ErrAuthenticationRequired),
		stderrors.Is(err, transport.ErrAuthorizationFailed),
		strings.Contains(l, "authentication failed"),
		strings.Contains(l, "could not read username"),
		strings.Contains(l, "invalid username or password"),
		strings.Contains(l, "permission denied"):
		b.WithCategory(errors.CategoryAuth).UserAction()
	case stderrors.As(err, &notFoundErr),
		stderrors.Is(err, transport.ErrRepositoryNotFound),
		strings.Contains(l, "repository not found"),
		strings.Contains(l, "does not exist"),
		strings.Contains(l, "remote branch") && strings.Contains(l, "not found"),
		strings.Contains(l, "couldn't find remote ref"):
		b.WithCategory(errors.CategoryNotFound).WithRetry(errors.RetryNever)
	case stderrors.As(err, &protoErr),
		strings.Contains(l, "unsupported protocol"),
		strings.Contains(l, "protocol not supported"):
		b.WithCategory(errors.CategoryConfig).WithRetry(errors.RetryNever)
	case strings.Contains(l, "conflict"),
		strings.Contains(l, "cannot pull with rebase"),
		strings.Contains(l, "unstaged changes"):
		b.UserAction()
	default:
		// Remote hang-ups, resets, DNS failures and timeouts; anything unrecognized
		// from a network operation is treated the same way.
		b.Retryable()
	}
	return b.Build()
}
