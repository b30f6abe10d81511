package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"git.home.luguber.info/inful/meshpack/internal/config"
	"git.home.luguber.info/inful/meshpack/internal/process"
	"git.home.luguber.info/inful/meshpack/internal/process/processtest"
)

// ControlPlaneFiles are the files a control-plane checkout carries for packaging.
var ControlPlaneFiles = []string{
	"cert.pem",
	"key.pem",
	"settings.example.toml",
	"compile_script/control",
	"compile_script/dnet.service",
}

// TunnelMakefile is the generated tunnel Makefile the rpath patch targets.
const TunnelMakefile = "CC = gcc\nCFLAGS = -g -O2 -Wall\nFLAGS = -g -O2 -Wall\nall: tinc tincd\n"

// InstallFakeTools registers handlers on r that behave like the external tools a
// run invokes against cfg: git, autoreconf, configure, make, cargo, the toolchain
// installer and dpkg-deb. Each creates the files the real tool would.
func InstallFakeTools(r *processtest.Runner, cfg *config.Config) {
	r.Handle("git", func(cmd process.Command) error {
		if len(cmd.Args) == 0 || cmd.Args[0] != "clone" {
			return nil
		}
		dest := cmd.Args[len(cmd.Args)-1]
		if err := os.MkdirAll(filepath.Join(dest, ".git"), 0o755); err != nil {
			return err
		}
		switch dest {
		case cfg.Sources.ControlPlane.Path:
			for _, f := range ControlPlaneFiles {
				if err := WriteFile(filepath.Join(dest, f), "control plane "+f); err != nil {
					return err
				}
			}
		case cfg.Sources.Tunnel.Path:
			return WriteFile(filepath.Join(dest, "configure.ac"), "AC_INIT([tinc])\n")
		}
		return nil
	})

	r.Handle("autoreconf", processtest.Touch("configure"))

	r.Handle("configure", func(cmd process.Command) error {
		if cmd.Dir == cfg.Sources.Tunnel.Path {
			return WriteFile(filepath.Join(cmd.Dir, "src", "Makefile"), TunnelMakefile)
		}
		return nil
	})

	r.Handle("make", func(cmd process.Command) error {
		for _, dep := range cfg.Provision.Dependencies {
			if dep.Dir != cmd.Dir {
				continue
			}
			for _, a := range dep.Artifacts {
				if err := WriteFile(filepath.Join(dep.Dir, a.From), "built "+a.From); err != nil {
					return err
				}
			}
		}
		if cmd.Dir == cfg.Sources.Tunnel.Path {
			for _, b := range cfg.Build.Tunnel.Binaries {
				if err := WriteFile(filepath.Join(cmd.Dir, b), "tunnel binary "+b); err != nil {
					return err
				}
			}
		}
		return nil
	})

	r.Handle("cargo", processtest.TouchExpected())
	r.Handle("sh", processtest.TouchExpected())

	r.Handle("dpkg-deb", func(cmd process.Command) error {
		if len(cmd.Args) < 2 {
			return fmt.Errorf("dpkg-deb: missing arguments")
		}
		tree, archive := cmd.Args[len(cmd.Args)-2], cmd.Args[len(cmd.Args)-1]
		listing, err := listTree(tree)
		if err != nil {
			return err
		}
		return WriteFile(archive, "debian package\n"+listing)
	})
}

// listTree renders every regular file below root, one relative path per line.
func listTree(root string) (string, error) {
	var b strings.Builder
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.Mode().IsRegular() {
			rel, _ := filepath.Rel(root, path)
			b.WriteString(rel + "\n")
		}
		return nil
	})
	return b.String(), err
}
