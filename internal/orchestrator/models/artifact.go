package models

// ArtifactKind classifies what a stage produced.
type ArtifactKind string

const (
	ArtifactLibrary   ArtifactKind = "library"
	ArtifactToolchain ArtifactKind = "toolchain"
	ArtifactCheckout  ArtifactKind = "checkout"
	ArtifactBinary    ArtifactKind = "binary"
	ArtifactArchive   ArtifactKind = "archive"
)

// Artifact is a file or directory a stage produced or verified.
type Artifact struct {
	Kind   ArtifactKind
	Owner  string // component, dependency or checkout name
	Path   string
	Reused bool // already present, not produced by this run
}

// StepReport is what provision and build steps hand back to their stage.
// Warnings are tolerated failures; the stage records them and continues.
type StepReport struct {
	Artifacts []Artifact
	Skipped   []string
	Warnings  []error
}

// Merge appends other's entries to r.
func (r *StepReport) Merge(other StepReport) {
	r.Artifacts = append(r.Artifacts, other.Artifacts...)
	r.Skipped = append(r.Skipped, other.Skipped...)
	r.Warnings = append(r.Warnings, other.Warnings...)
}

// PublishedPackage describes the archive deposited in the publish directory.
type PublishedPackage struct {
	Archive    string // path the package builder wrote
	Path       string // published copy
	DigestPath string // <Path>.b3
	Digest     string // BLAKE3, hex encoded
	Size       int64
}
