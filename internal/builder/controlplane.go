package builder

import (
	"context"
	"path/filepath"

	"git.home.luguber.info/inful/meshpack/internal/foundation/errors"
	"git.home.luguber.info/inful/meshpack/internal/fsutil"
	"git.home.luguber.info/inful/meshpack/internal/logfields"
	"git.home.luguber.info/inful/meshpack/internal/orchestrator/models"
	"git.home.luguber.info/inful/meshpack/internal/process"
)

func (b *Builder) buildControlPlane(ctx context.Context) (models.StepReport, error) {
	const c = models.ComponentControlPlane
	var rep models.StepReport
	cp := b.cfg.Build.ControlPlane
	dir := b.cfg.Sources.ControlPlane.Path
	cargoBin := filepath.Join(b.cfg.Paths.CargoHome, "bin")

	path := cargoBin
	if p := b.rc.Getenv("PATH"); p != "" {
		path = p + ":" + cargoBin
	}
	overrides := map[string]string{
		"PATH":        path,
		"CARGO_HOME":  b.cfg.Paths.CargoHome,
		"OPENSSL_DIR": b.rc.Expand(cp.OpenSSLDir),
	}
	if cp.OpenSSLStatic {
		overrides["OPENSSL_STATIC"] = "1"
	}
	env := b.rc.Environ(overrides)

	if cp.UpdateToolchain {
		cmd := process.Command{Name: toolPath(cargoBin, "rustup"), Args: []string{"update"}, Dir: dir, Env: env, Timeout: b.cfg.Timeouts.Fetch}
		if _, err := b.runner.Run(ctx, cmd); err != nil {
			if ctx.Err() != nil {
				return rep, err
			}
			w := errors.WrapError(err, errors.CategoryBuild, "toolchain update failed, building with the installed toolchain").
				Warning().
				WithContext("command", cmd.String()).
				Build()
			b.logger.Warn("Toolchain update failed", logfields.Command(cmd.String()), logfields.Error(err))
			rep.Warnings = append(rep.Warnings, w)
		}
	}

	bins := binaries(dir, cp.Binaries)
	if err := b.run(ctx, c, process.Command{
		Name:   toolPath(cargoBin, "cargo"),
		Args:   []string{"build", "--release"},
		Dir:    dir,
		Env:    env,
		Expect: bins,
	}); err != nil {
		return rep, err
	}
	for _, bin := range bins {
		rep.Artifacts = append(rep.Artifacts, models.Artifact{Kind: models.ArtifactBinary, Owner: string(c), Path: bin})
	}
	return rep, nil
}

// toolPath prefers the toolchain's own copy of name, falling back to a PATH lookup.
func toolPath(bin, name string) string {
	p := filepath.Join(bin, name)
	if ok, _ := fsutil.Exists(p); ok {
		return p
	}
	return name
}
