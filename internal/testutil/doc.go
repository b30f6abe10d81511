// Package testutil builds throwaway staging roots for package-level tests: a
// resolved configuration pointing into t.TempDir(), an HTTP server standing in
// for source mirrors, and fake external tools for processtest.Runner.
package testutil
