package builder

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"git.home.luguber.info/inful/meshpack/internal/fsutil"
	"git.home.luguber.info/inful/meshpack/internal/logfields"
	"git.home.luguber.info/inful/meshpack/internal/orchestrator/models"
	"git.home.luguber.info/inful/meshpack/internal/process"
)

// flagsLine is the compiler flags assignment the rpath patch extends.
const flagsLine = "FLAGS = -g -O2 -Wall"

func (b *Builder) buildTunnel(ctx context.Context) (models.StepReport, error) {
	const c = models.ComponentTunnel
	var rep models.StepReport
	tb := b.cfg.Build.Tunnel
	dir := b.cfg.Sources.Tunnel.Path
	env := b.rc.Environ(nil)

	if err := b.run(ctx, c, process.Command{
		Name:   "autoreconf",
		Args:   []string{"-fsi"},
		Dir:    dir,
		Env:    env,
		Expect: []string{filepath.Join(dir, "configure")},
	}); err != nil {
		return rep, err
	}
	if err := makeExecutable(filepath.Join(dir, "configure")); err != nil {
		return rep, buildFailure(err, c, "make configure executable")
	}

	makefile := filepath.Join(dir, "src", "Makefile")
	if err := b.run(ctx, c, process.Command{
		Name:   "./configure",
		Args:   b.rc.ExpandAll(tb.ConfigureArgs),
		Dir:    dir,
		Env:    env,
		Expect: []string{makefile},
	}); err != nil {
		return rep, err
	}

	if tb.RPath != "" {
		found, err := PatchRPath(makefile, tb.RPath)
		if err != nil {
			return rep, buildFailure(err, c, "patch Makefile rpath")
		}
		if !found {
			w := fmt.Errorf("%s has no %q line; binaries will not carry rpath %s", makefile, flagsLine, tb.RPath)
			b.logger.Warn("Makefile rpath patch not applied", logfields.Path(makefile), logfields.Error(w))
			rep.Warnings = append(rep.Warnings, w)
		}
	}

	bins := binaries(dir, tb.Binaries)
	if err := b.run(ctx, c, process.Command{Name: "make", Dir: dir, Env: env, Expect: bins}); err != nil {
		return rep, err
	}

	out := b.cfg.Paths.TunnelOut
	for _, bin := range bins {
		dst := filepath.Join(out, filepath.Base(bin))
		if err := fsutil.CopyFile(bin, dst); err != nil {
			return rep, buildFailure(err, c, "copy tunnel binary to output directory")
		}
		rep.Artifacts = append(rep.Artifacts, models.Artifact{Kind: models.ArtifactBinary, Owner: string(c), Path: dst})
	}
	return rep, nil
}

// PatchRPath appends -Wl,-rpath=<rpath> to every flags assignment in makefile.
// Lines already carrying the flag are left alone, so the patch is idempotent.
// found reports whether any flags line exists.
func PatchRPath(makefile, rpath string) (found bool, err error) {
	data, err := os.ReadFile(makefile)
	if err != nil {
		return false, err
	}
	flag := "-Wl,-rpath=" + rpath
	lines := strings.Split(string(data), "\n")
	changed := false
	for i, line := range lines {
		if !strings.Contains(line, flagsLine) {
			continue
		}
		found = true
		if strings.Contains(line, flag) {
			continue
		}
		lines[i] = strings.Replace(line, flagsLine, flagsLine+" "+flag, 1)
		changed = true
	}
	if !changed {
		return found, nil
	}
	info, err := os.Stat(makefile)
	if err != nil {
		return found, err
	}
	return found, os.WriteFile(makefile, []byte(strings.Join(lines, "\n")), info.Mode().Perm())
}
