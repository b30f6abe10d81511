// Package provision stages the native libraries and the language toolchain the
// component builds link against.
//
// Work happens in a fixed order: the lib staging directory, host libraries
// (copied under their SONAME), native dependencies (fetch, local build steps,
// artifact copy) and finally the toolchain installer. Network work, meaning
// clones and downloads, runs under the retry policy. Local build steps fail the
// stage on their first error.
package provision
