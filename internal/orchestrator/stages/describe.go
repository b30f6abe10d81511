package stages

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/gookit/color"

	"git.home.luguber.info/inful/meshpack/internal/config"
	"git.home.luguber.info/inful/meshpack/internal/orchestrator/models"
)

type painter struct{ enabled bool }

func (p painter) paint(c color.Color, s string) string {
	if !p.enabled {
		return s
	}
	return c.Sprint(s)
}

// Describe writes a human-readable rendering of plan as it would run against cfg.
// Colors are used only when colorize is set.
func Describe(w io.Writer, plan models.Plan, cfg *config.Config, colorize bool) error {
	p := painter{enabled: colorize}
	var b strings.Builder

	fmt.Fprintf(&b, "%s %s", p.paint(color.Bold, "target:"), p.paint(color.Cyan, string(plan.Target)))
	if plan.Init {
		b.WriteString(" " + p.paint(color.Yellow, "(init)"))
	}
	b.WriteString("\n")

	for i, s := range plan.Stages {
		fmt.Fprintf(&b, "%d. %s\n", i+1, p.paint(color.Bold, string(s)))
		for _, line := range stageDetails(plan, cfg, s) {
			fmt.Fprintf(&b, "   %s\n", line)
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func stageDetails(plan models.Plan, cfg *config.Config, s models.StageName) []string {
	var lines []string
	switch s {
	case models.StageProvision:
		mode := "skip items already staged"
		if plan.ForceProvision() {
			mode = "rebuild everything"
		}
		lines = append(lines, "mode: "+mode, "lib dir: "+cfg.Paths.LibDir)
		for _, l := range cfg.Provision.HostLibs {
			opt := ""
			if l.Optional {
				opt = " (optional)"
			}
			lines = append(lines, fmt.Sprintf("host lib: %s -> %s%s", filepath.Base(l.Source), l.Soname, opt))
		}
		for _, d := range cfg.Provision.Dependencies {
			ref := d.Fetch.URL
			if d.Fetch.Ref != "" {
				ref += "@" + d.Fetch.Ref
			}
			lines = append(lines, fmt.Sprintf("dependency: %s (%s %s, %d steps)", d.Name, d.Fetch.Kind, ref, len(d.Steps)))
		}
		if !cfg.Provision.Toolchain.Skip {
			lines = append(lines, "toolchain: "+cfg.Provision.Toolchain.InstallerURL+" -> "+cfg.Paths.CargoHome)
		}
	case models.StageSources:
		for _, c := range plan.Components {
			co := CheckoutFor(cfg, c)
			lines = append(lines, fmt.Sprintf("%s: %s@%s -> %s", co.Name, co.URL, co.Ref, co.Path))
		}
	case models.StageBuild:
		for _, c := range plan.Components {
			lines = append(lines, "component: "+string(c))
		}
	case models.StageAssemble:
		lines = append(lines,
			"package root: "+cfg.Paths.PackageRoot,
			"archive: "+cfg.Package.Archive,
			"publish: "+filepath.Join(cfg.Paths.PublishDir, filepath.Base(cfg.Package.Archive)))
	}
	return lines
}
