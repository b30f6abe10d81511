package commands

import (
	"os"

	"git.home.luguber.info/inful/meshpack/internal/orchestrator/stages"
)

// PlanCmd implements the 'plan' command.
type PlanCmd struct {
	Target string `arg:"" optional:"" help:"full (default), tunnel or control-plane"`
	Init   bool   `help:"Plan as if --init were given to build"`
}

func (p *PlanCmd) Run(g *Global, root *CLI) error {
	cfg, err := root.loadConfig(g)
	if err != nil {
		return err
	}
	plan, err := stages.PlanFor(p.Target, p.Init)
	if err != nil {
		return err
	}
	return stages.Describe(os.Stdout, plan, cfg, isTerminal(os.Stdout))
}
