// Package process invokes external tools (git, autotools, cargo, dpkg-deb, ...) as
// opaque collaborators.
//
// The contract for every invocation is: an explicit argv, working directory and
// complete environment in; exit status and the existence of the declared output
// paths out. A zero exit status whose declared outputs are missing is a failure.
// Every invocation carries its own timeout.
package process
