package stages

import (
	"context"

	"git.home.luguber.info/inful/meshpack/internal/logfields"
	"git.home.luguber.info/inful/meshpack/internal/orchestrator/models"
)

// StageAssemble lays out the package tree and publishes the archive.
func StageAssemble(ctx context.Context, rs *models.RunState) error {
	pkg, err := rs.Assembler.Assemble(ctx)
	if err != nil {
		return stageFailure(ctx, models.StageAssemble, err)
	}
	rs.Report.Package = pkg
	rs.Report.Artifacts = append(rs.Report.Artifacts, models.Artifact{
		Kind:  models.ArtifactArchive,
		Owner: string(rs.Plan.Target),
		Path:  pkg.Path,
	})
	rs.Recorder.SetPackageSize(pkg.Size)
	if err := rs.Journal.PackagePublished(ctx, rs.RunID, *pkg); err != nil {
		rs.Logger.Warn("Failed to journal published package", logfields.Path(pkg.Path), logfields.Error(err))
	}
	return nil
}
