package provision

import (
	"context"
	"os"
	"path/filepath"

	"git.home.luguber.info/inful/meshpack/internal/foundation/errors"
	"git.home.luguber.info/inful/meshpack/internal/fsutil"
	"git.home.luguber.info/inful/meshpack/internal/logfields"
	"git.home.luguber.info/inful/meshpack/internal/orchestrator/models"
	"git.home.luguber.info/inful/meshpack/internal/process"
)

// CargoPath is the toolchain completion marker under cargoHome.
func CargoPath(cargoHome string) string {
	return filepath.Join(cargoHome, "bin", "cargo")
}

// provisionToolchain downloads and runs the toolchain installer.
func (p *Provisioner) provisionToolchain(ctx context.Context, force bool) (models.StepReport, error) {
	var rep models.StepReport
	tc := p.cfg.Provision.Toolchain
	if tc.Skip {
		return rep, nil
	}
	cargo := CargoPath(p.cfg.Paths.CargoHome)

	if !force {
		ok, err := fsutil.Exists(cargo)
		if err != nil {
			return rep, errors.WrapError(err, errors.CategoryFileSystem, "inspect toolchain").
				WithContext("path", cargo).
				Build()
		}
		if ok {
			p.logger.Info("Toolchain already installed, skipping", logfields.Path(cargo))
			rep.Skipped = append(rep.Skipped, "toolchain")
			rep.Artifacts = append(rep.Artifacts, models.Artifact{Kind: models.ArtifactToolchain, Owner: "toolchain", Path: cargo, Reused: true})
			return rep, nil
		}
	}

	script := filepath.Join(p.downloadDir(), "toolchain-installer.sh")
	if err := p.download(ctx, "toolchain", tc.InstallerURL, script); err != nil {
		return rep, err
	}
	if err := os.Chmod(script, 0o755); err != nil {
		return rep, errors.WrapError(err, errors.CategoryFileSystem, "make installer executable").
			WithContext("path", script).
			Build()
	}

	cmd := process.Command{
		Name:    "sh",
		Args:    append([]string{script}, tc.InstallerArgs...),
		Dir:     p.downloadDir(),
		Env:     p.rc.Environ(map[string]string{"CARGO_HOME": p.cfg.Paths.CargoHome}),
		Timeout: p.cfg.Timeouts.Build,
		Expect:  []string{cargo},
	}
	p.logger.Info("Installing toolchain", logfields.Command(cmd.String()))
	if _, err := p.runner.Run(ctx, cmd); err != nil {
		if ctx.Err() != nil {
			return rep, err
		}
		return rep, errors.WrapError(err, errors.CategoryProvision, "toolchain installer failed").
			Fatal().
			WithContext("command", cmd.String()).
			Build()
	}
	rep.Artifacts = append(rep.Artifacts, models.Artifact{Kind: models.ArtifactToolchain, Owner: "toolchain", Path: cargo})
	return rep, nil
}
