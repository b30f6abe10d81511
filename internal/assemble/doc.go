// Package assemble lays out the package tree, runs the package builder and
// publishes the finished archive together with its BLAKE3 digest.
//
// The package tree is created if absent and never cleared, so files left by an
// earlier run stay in the tree. Copies are fail-fast: the first missing source
// aborts assembly before the package builder runs, and nothing is published.
package assemble
