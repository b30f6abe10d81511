// Package errors provides the classified error primitives used across meshpack.
//
// Every failure that crosses a component boundary is a ClassifiedError carrying a
// category (provision, build, assembly, ...), a severity and a retry strategy. The
// retry strategy drives the bounded retry loop for network steps; the category
// drives the CLI exit code.
//
//	err := errors.NewError(errors.CategoryGit, "clone failed").
//		WithContext("url", checkout.URL).
//		WithCause(originalErr).
//		Retryable().
//		Build()
package errors
