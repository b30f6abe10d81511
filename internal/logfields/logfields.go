package logfields

import "log/slog"

// Canonical log field name constants to avoid drift across packages.
const (
	KeyRunID      = "run_id"
	KeyTarget     = "target"
	KeyStage      = "stage"
	KeyComponent  = "component"
	KeyDependency = "dependency"
	KeyDurationMS = "duration_ms"
	KeyCommand    = "command"
	KeyDir        = "dir"
	KeyExitCode   = "exit_code"
	KeyAttempt    = "attempt"
	KeyRepo       = "repository"
	KeyRef        = "ref"
	KeyPath       = "path"
	KeyURL        = "url"
	KeyName       = "name"
	KeyDigest     = "digest"
	KeySize       = "size_bytes"
	KeyError      = "error"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func RunID(id string) slog.Attr       { return slog.String(KeyRunID, id) }
func Target(t string) slog.Attr       { return slog.String(KeyTarget, t) }
func Stage(name string) slog.Attr     { return slog.String(KeyStage, name) }
func Component(c string) slog.Attr    { return slog.String(KeyComponent, c) }
func Dependency(d string) slog.Attr   { return slog.String(KeyDependency, d) }
func DurationMS(ms float64) slog.Attr { return slog.Float64(KeyDurationMS, ms) }
func Command(c string) slog.Attr      { return slog.String(KeyCommand, c) }
func Dir(d string) slog.Attr          { return slog.String(KeyDir, d) }
func ExitCode(code int) slog.Attr     { return slog.Int(KeyExitCode, code) }
func Attempt(n int) slog.Attr         { return slog.Int(KeyAttempt, n) }
func Repository(r string) slog.Attr   { return slog.String(KeyRepo, r) }
func Ref(r string) slog.Attr          { return slog.String(KeyRef, r) }
func Path(p string) slog.Attr         { return slog.String(KeyPath, p) }
func URL(u string) slog.Attr          { return slog.String(KeyURL, u) }
func Name(n string) slog.Attr         { return slog.String(KeyName, n) }
func Digest(d string) slog.Attr       { return slog.String(KeyDigest, d) }
func Size(n int64) slog.Attr          { return slog.Int64(KeySize, n) }
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
