// Package git stages the source checkouts the build consumes.
//
// A Stager guarantees that a checkout path holds a working tree at or ahead of its
// pinned ref: an absent checkout is cloned, a present one is synchronized with a
// rebase-preferring pull. Existing checkouts are never re-cloned or deleted, and
// every call contacts the remote. Two backends are available:
//   - the git command line, invoked through process.Runner (default)
//   - go-git, in process, which fast-forwards and reports divergence instead of rebasing
//
// Transient network failures are retried under a bounded retry.Policy; authentication
// and not-found failures are permanent.
package git
