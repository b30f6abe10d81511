// Package builder compiles the two package components from their checkouts.
//
// A build succeeds only when every tool exits zero and every expected binary
// exists afterwards. Tolerated problems (a failed toolchain update, a Makefile
// without the flags line the rpath patch targets) are returned as warnings.
package builder
