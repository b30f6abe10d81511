package builder

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/meshpack/internal/foundation/errors"
	"git.home.luguber.info/inful/meshpack/internal/orchestrator/models"
	"git.home.luguber.info/inful/meshpack/internal/process"
	"git.home.luguber.info/inful/meshpack/internal/process/processtest"
	"git.home.luguber.info/inful/meshpack/internal/testutil"
)

type fixture struct {
	ws      *testutil.Workspace
	runner  *processtest.Runner
	builder *Builder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ws := testutil.NewWorkspace(t)
	r := processtest.New()
	testutil.InstallFakeTools(r, ws.Config)
	cfg := ws.Config
	require.NoError(t, testutil.WriteFile(filepath.Join(cfg.Sources.Tunnel.Path, "configure.ac"), "AC_INIT"))
	require.NoError(t, os.MkdirAll(cfg.Sources.ControlPlane.Path, 0o755))
	rc := models.NewRunContext(map[string]string{"PATH": "/usr/bin", "HOME": "/root"}, cfg.RunVariables())
	return &fixture{ws: ws, runner: r, builder: New(cfg, rc, r)}
}

func envValue(env []string, key string) (string, bool) {
	for _, kv := range env {
		if k, v, ok := strings.Cut(kv, "="); ok && k == key {
			return v, true
		}
	}
	return "", false
}

func TestBuildTunnel(t *testing.T) {
	f := newFixture(t)
	cfg := f.ws.Config

	rep, err := f.builder.Build(context.Background(), models.ComponentTunnel)
	require.NoError(t, err)
	assert.Empty(t, rep.Warnings)

	readline := filepath.Join(f.ws.Root, "readline-8.0")
	assert.Equal(t, []string{
		"autoreconf -fsi",
		"./configure --with-readline-lib=" + readline + "/shlib/ --with-readline-include=" + readline + "/include",
		"make",
	}, f.runner.Lines())
	for _, c := range f.runner.Calls() {
		assert.Equal(t, cfg.Sources.Tunnel.Path, c.Dir)
	}

	src := testutil.NewFileAssertions(t, cfg.Sources.Tunnel.Path)
	src.AssertExecutable("configure").
		AssertFileContains("src/Makefile", "CFLAGS = -g -O2 -Wall -Wl,-rpath=/opt/dnet/tinc/lib").
		AssertFileContains("src/Makefile", "\nFLAGS = -g -O2 -Wall -Wl,-rpath=/opt/dnet/tinc/lib")

	out := testutil.NewFileAssertions(t, cfg.Paths.TunnelOut)
	out.AssertFileExists("tinc").AssertFileExists("tincd")
	require.Len(t, rep.Artifacts, 2)
	assert.Equal(t, filepath.Join(cfg.Paths.TunnelOut, "tinc"), rep.Artifacts[0].Path)
}

func TestBuildTunnel_MakeFailureIsFatal(t *testing.T) {
	f := newFixture(t)
	f.runner.Handle("make", processtest.Fail(2, "tincd.c:12: error"))

	rep, err := f.builder.Build(context.Background(), models.ComponentTunnel)
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryBuild))
	assert.Contains(t, err.Error(), "tincd.c:12: error")
	assert.Empty(t, rep.Artifacts)
	testutil.NewFileAssertions(t, f.ws.Config.Paths.TunnelOut).AssertNoFile("tinc")
}

func TestBuildTunnel_ZeroExitWithoutBinaryIsFatal(t *testing.T) {
	f := newFixture(t)
	f.runner.Handle("make", processtest.Touch("src/tinc"))

	_, err := f.builder.Build(context.Background(), models.ComponentTunnel)
	require.Error(t, err)
	assert.ErrorIs(t, err, process.ErrMissingOutput)
	assert.Contains(t, err.Error(), "src/tincd")
}

func TestBuildTunnel_MissingFlagsLineWarns(t *testing.T) {
	f := newFixture(t)
	f.runner.Handle("configure", func(cmd process.Command) error {
		return testutil.WriteFile(filepath.Join(cmd.Dir, "src", "Makefile"), "all:\n\tcc -o tincd tincd.c\n")
	})

	rep, err := f.builder.Build(context.Background(), models.ComponentTunnel)
	require.NoError(t, err)
	require.Len(t, rep.Warnings, 1)
	assert.Contains(t, rep.Warnings[0].Error(), "rpath")
}

func TestPatchRPath_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "Makefile")
	require.NoError(t, os.WriteFile(path, []byte(testutil.TunnelMakefile), 0o644))

	for range 2 {
		found, err := PatchRPath(path, "/opt/dnet/tinc/lib")
		require.NoError(t, err)
		assert.True(t, found)
	}
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(string(data), "-Wl,-rpath=/opt/dnet/tinc/lib"))
	assert.Contains(t, string(data), "all: tinc tincd\n")
}

func TestBuildControlPlane(t *testing.T) {
	f := newFixture(t)
	cfg := f.ws.Config

	rep, err := f.builder.Build(context.Background(), models.ComponentControlPlane)
	require.NoError(t, err)
	assert.Empty(t, rep.Warnings)
	assert.Equal(t, []string{"rustup update", "cargo build --release"}, f.runner.Lines())

	cargo := f.runner.CallsTo("cargo")[0]
	assert.Equal(t, cfg.Sources.ControlPlane.Path, cargo.Dir)
	v, _ := envValue(cargo.Env, "OPENSSL_STATIC")
	assert.Equal(t, "1", v)
	v, _ = envValue(cargo.Env, "OPENSSL_DIR")
	assert.Equal(t, "/usr/local", v)
	v, _ = envValue(cargo.Env, "PATH")
	assert.Equal(t, "/usr/bin:"+filepath.Join(cfg.Paths.CargoHome, "bin"), v)
	v, _ = envValue(cargo.Env, "HOME")
	assert.Equal(t, "/root", v)

	require.Len(t, rep.Artifacts, 3)
	for _, a := range rep.Artifacts {
		assert.Equal(t, models.ArtifactBinary, a.Kind)
		_, err := os.Stat(a.Path)
		assert.NoError(t, err)
	}
}

func TestBuildControlPlane_PrefersToolchainBinaries(t *testing.T) {
	f := newFixture(t)
	cargo := filepath.Join(f.ws.Config.Paths.CargoHome, "bin", "cargo")
	require.NoError(t, testutil.WriteFile(cargo, "#!/bin/sh"))

	_, err := f.builder.Build(context.Background(), models.ComponentControlPlane)
	require.NoError(t, err)
	assert.Equal(t, cargo, f.runner.CallsTo("cargo")[0].Name)
	assert.Equal(t, "rustup", f.runner.CallsTo("rustup")[0].Name)
}

func TestBuildControlPlane_UpdateFailureIsTolerated(t *testing.T) {
	f := newFixture(t)
	f.runner.Handle("rustup", processtest.Fail(1, "network unreachable"))

	rep, err := f.builder.Build(context.Background(), models.ComponentControlPlane)
	require.NoError(t, err)
	require.Len(t, rep.Warnings, 1)
	assert.True(t, errors.HasSeverity(rep.Warnings[0], errors.SeverityWarning))
	assert.Len(t, f.runner.CallsTo("cargo"), 1)
}

func TestBuildControlPlane_NoUpdateOrStaticWhenDisabled(t *testing.T) {
	f := newFixture(t)
	f.ws.Config.Build.ControlPlane.UpdateToolchain = false
	f.ws.Config.Build.ControlPlane.OpenSSLStatic = false

	_, err := f.builder.Build(context.Background(), models.ComponentControlPlane)
	require.NoError(t, err)
	assert.Equal(t, []string{"cargo build --release"}, f.runner.Lines())
	_, ok := envValue(f.runner.CallsTo("cargo")[0].Env, "OPENSSL_STATIC")
	assert.False(t, ok)
}

func TestBuildControlPlane_MissingBinaryIsFatal(t *testing.T) {
	f := newFixture(t)
	f.runner.Handle("cargo", processtest.Touch("target/release/dnet"))

	_, err := f.builder.Build(context.Background(), models.ComponentControlPlane)
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryBuild))
	assert.ErrorIs(t, err, process.ErrMissingOutput)
}
