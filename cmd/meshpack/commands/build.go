package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"git.home.luguber.info/inful/meshpack/internal/orchestrator"
	"git.home.luguber.info/inful/meshpack/internal/orchestrator/models"
	"git.home.luguber.info/inful/meshpack/internal/orchestrator/stages"
)

// BuildCmd implements the 'build' command.
type BuildCmd struct {
	Target      string `arg:"" optional:"" help:"full (default), tunnel or control-plane"`
	Init        bool   `help:"Rebuild every dependency and run provisioning for any target"`
	DryRun      bool   `name:"dry-run" help:"Print the plan and exit"`
	MetricsFile string `name:"metrics-file" help:"Write Prometheus text-format metrics to this file" type:"path"`
}

func (b *BuildCmd) Run(g *Global, root *CLI) error {
	cfg, err := root.loadConfig(g)
	if err != nil {
		return err
	}
	plan, err := stages.PlanFor(b.Target, b.Init)
	if err != nil {
		return err
	}
	if b.DryRun {
		return stages.Describe(os.Stdout, plan, cfg, isTerminal(os.Stdout))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var progress io.Writer
	if isTerminal(os.Stderr) {
		progress = os.Stderr
	}
	o := orchestrator.New(cfg,
		orchestrator.WithLogger(g.Logger),
		orchestrator.WithProgress(progress),
		orchestrator.WithMetricsFile(b.MetricsFile),
	)
	report, err := o.Run(ctx, plan.Target, plan.Init)
	if report != nil {
		printReport(os.Stdout, report)
	}
	return err
}

func printReport(w io.Writer, r *models.Report) {
	fmt.Fprintf(w, "run %s: %s (%s)\n", r.RunID, r.Outcome, r.Duration().Round(time.Millisecond))
	for _, s := range r.Planned {
		res, ok := r.StageResults[s]
		if !ok {
			res = "not run"
		}
		fmt.Fprintf(w, "  %-10s %s\n", s, res)
	}
	if n := len(r.Warnings); n > 0 {
		fmt.Fprintf(w, "warnings: %d\n", n)
		for _, warn := range r.Warnings {
			fmt.Fprintf(w, "  - %v\n", warn)
		}
	}
	if r.Package != nil {
		fmt.Fprintf(w, "published %s (%d bytes, blake3 %s)\n", r.Package.Path, r.Package.Size, r.Package.Digest)
	}
}
