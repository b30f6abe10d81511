package git

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"

	gogit "github.com/go-git/go-git/v5"
	ggitcfg "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"

	"git.home.luguber.info/inful/meshpack/internal/config"
	"git.home.luguber.info/inful/meshpack/internal/logfields"
)

// GoGitBackend stages checkouts in process with go-git. go-git cannot rebase, so a
// sync fast-forwards the local branch and reports divergence as RemoteDivergedError.
type GoGitBackend struct {
	logger *slog.Logger
}

// NewGoGitBackend returns the go-git backend.
func NewGoGitBackend(logger *slog.Logger) *GoGitBackend {
	if logger == nil {
		logger = slog.Default()
	}
	return &GoGitBackend{logger: logger}
}

func (b *GoGitBackend) Name() string { return string(config.SourceBackendGoGit) }

// Clone clones a single branch at co.Ref, falling back to a tag of that name.
func (b *GoGitBackend) Clone(ctx context.Context, co config.Checkout) error {
	auth, err := authMethod(co.Auth)
	if err != nil {
		return &AuthError{Op: "clone", URL: co.URL, Err: err}
	}
	opts := &gogit.CloneOptions{
		URL:           co.URL,
		Auth:          auth,
		ReferenceName: plumbing.NewBranchReferenceName(co.Ref),
		SingleBranch:  true,
	}
	repo, err := gogit.PlainCloneContext(ctx, co.Path, false, opts)
	if err != nil && isMissingRef(err) {
		b.logger.Debug("Branch not found, trying tag", logfields.Repository(co.Name), logfields.Ref(co.Ref))
		opts.ReferenceName = plumbing.NewTagReferenceName(co.Ref)
		repo, err = gogit.PlainCloneContext(ctx, co.Path, false, opts)
	}
	if err != nil {
		return classifyCloneError(co.URL, err)
	}
	if head, herr := repo.Head(); herr == nil {
		b.logger.Info("Checkout cloned", logfields.Repository(co.Name), slog.String("commit", short(head.Hash())))
	}
	return nil
}

// Sync fetches co.Ref and fast-forwards the working tree. A checkout that is already
// ahead of the remote is left untouched.
func (b *GoGitBackend) Sync(ctx context.Context, co config.Checkout) error {
	repo, err := gogit.PlainOpen(co.Path)
	if err != nil {
		return fmt.Errorf("open %s: %w", co.Path, err)
	}
	auth, err := authMethod(co.Auth)
	if err != nil {
		return &AuthError{Op: "fetch", URL: co.URL, Err: err}
	}

	remoteRef := plumbing.NewRemoteReferenceName("origin", co.Ref)
	fetchOpts := &gogit.FetchOptions{
		RemoteName: "origin",
		Auth:       auth,
		RefSpecs:   []ggitcfg.RefSpec{ggitcfg.RefSpec(fmt.Sprintf("+refs/heads/%s:%s", co.Ref, remoteRef))},
	}
	err = repo.FetchContext(ctx, fetchOpts)
	if err != nil && isMissingRef(err) {
		// Pinned to a tag rather than a branch.
		remoteRef = plumbing.NewTagReferenceName(co.Ref)
		fetchOpts.RefSpecs = []ggitcfg.RefSpec{ggitcfg.RefSpec(fmt.Sprintf("+%s:%s", remoteRef, remoteRef))}
		err = repo.FetchContext(ctx, fetchOpts)
	}
	if err != nil && !stderrors.Is(err, gogit.NoErrAlreadyUpToDate) {
		return classifyFetchError(co.URL, err)
	}

	target, err := repo.ResolveRevision(plumbing.Revision(remoteRef))
	if err != nil {
		return fmt.Errorf("resolve %s: %w", remoteRef, err)
	}
	head, err := repo.Head()
	if err != nil {
		return fmt.Errorf("head: %w", err)
	}

	if head.Hash() == *target {
		b.logger.Info("Checkout already up-to-date", logfields.Repository(co.Name), slog.String("commit", short(*target)))
		return nil
	}
	if ahead, aerr := isAncestor(repo, *target, head.Hash()); aerr == nil && ahead {
		b.logger.Info("Checkout ahead of remote", logfields.Repository(co.Name), slog.String("commit", short(head.Hash())))
		return nil
	}
	ff, err := isAncestor(repo, head.Hash(), *target)
	if err != nil {
		return fmt.Errorf("ancestor check: %w", err)
	}
	if !ff {
		return &RemoteDivergedError{Op: "sync", URL: co.URL, Ref: co.Ref, Err: fmt.Errorf("local %s and remote %s have diverged", short(head.Hash()), short(*target))}
	}

	wt, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("worktree: %w", err)
	}
	if err := wt.Reset(&gogit.ResetOptions{Commit: *target, Mode: gogit.HardReset}); err != nil {
		return fmt.Errorf("fast-forward reset: %w", err)
	}
	b.logger.Info("Fast-forwarded checkout", logfields.Repository(co.Name),
		slog.String("from", short(head.Hash())), slog.String("to", short(*target)))
	return nil
}

func isMissingRef(err error) bool {
	if stderrors.Is(err, plumbing.ErrReferenceNotFound) {
		return true
	}
	var noMatch gogit.NoMatchingRefSpecError
	return stderrors.As(err, &noMatch)
}

// classifyCloneError wraps go-git clone failures into typed permanent failures where recognizable.
func classifyCloneError(url string, err error) error {
	return classifyRemoteError("clone", url, err)
}

func classifyFetchError(url string, err error) error {
	return classifyRemoteError("fetch", url, err)
}

func classifyRemoteError(op, url string, err error) error {
	switch {
	case stderrors.Is(err, transport.ErrAuthenticationRequired), stderrors.Is(err, transport.ErrAuthorizationFailed):
		return &AuthError{Op: op, URL: url, Err: err}
	case stderrors.Is(err, transport.ErrRepositoryNotFound), isMissingRef(err):
		return &NotFoundError{Op: op, URL: url, Err: err}
	default:
		return fmt.Errorf("%s %s: %w", op, url, err)
	}
}

func isAncestor(repo *gogit.Repository, a, b plumbing.Hash) (bool, error) {
	if a == b {
		return true, nil
	}
	seen := map[plumbing.Hash]struct{}{}
	queue := []plumbing.Hash{b}
	for len(queue) > 0 {
		h := queue[0]
		queue = queue[1:]
		if h == a {
			return true, nil
		}
		if _, ok := seen[h]; ok {
			continue
		}
		seen[h] = struct{}{}
		commit, err := repo.CommitObject(h)
		if err != nil {
			return false, err
		}
		queue = append(queue, commit.ParentHashes...)
	}
	return false, nil
}

func short(h plumbing.Hash) string {
	return h.String()[:8]
}
