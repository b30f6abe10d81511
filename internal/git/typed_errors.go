package git

import "fmt"

// Typed git errors enabling structured classification without string parsing upstream.

type AuthError struct {
	Op, URL string
	Err     error
}

func (e *AuthError) Error() string { return fmt.Sprintf("%s auth error for %s: %v", e.Op, e.URL, e.Err) }
func (e *AuthError) Unwrap() error { return e.Err }

type NotFoundError struct {
	Op, URL string
	Err     error
}

func (e *NotFoundError) Error() string { return fmt.Sprintf("%s not found %s: %v", e.Op, e.URL, e.Err) }
func (e *NotFoundError) Unwrap() error { return e.Err }

type UnsupportedProtocolError struct {
	Op, URL string
	Err     error
}

func (e *UnsupportedProtocolError) Error() string {
	return fmt.Sprintf("%s unsupported protocol %s: %v", e.Op, e.URL, e.Err)
}
func (e *UnsupportedProtocolError) Unwrap() error { return e.Err }

// RemoteDivergedError reports a local branch that can no longer be fast-forwarded.
type RemoteDivergedError struct {
	Op, URL, Ref string
	Err          error
}

func (e *RemoteDivergedError) Error() string {
	return fmt.Sprintf("%s remote diverged %s@%s: %v", e.Op, e.URL, e.Ref, e.Err)
}
func (e *RemoteDivergedError) Unwrap() error { return e.Err }

// NotACheckoutError reports a non-empty directory at a checkout path without a .git entry.
// Cloning into it would fail; deleting it is never done automatically.
type NotACheckoutError struct {
	Path string
}

func (e *NotACheckoutError) Error() string {
	return fmt.Sprintf("%s exists but is not a git checkout", e.Path)
}
