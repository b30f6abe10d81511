package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"git.home.luguber.info/inful/meshpack/internal/eventstore"
	"git.home.luguber.info/inful/meshpack/internal/orchestrator"
)

// HistoryCmd implements the 'history' command.
type HistoryCmd struct {
	Limit int  `short:"n" help:"Number of runs to show" default:"10"`
	JSON  bool `help:"Print runs as JSON"`
}

func (h *HistoryCmd) Run(g *Global, root *CLI) error {
	cfg, err := root.loadConfig(g)
	if err != nil {
		return err
	}
	runs, err := orchestrator.History(context.Background(), cfg, h.Limit)
	if err != nil {
		return err
	}
	if h.JSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(runs)
	}
	return writeHistory(os.Stdout, runs)
}

func writeHistory(w io.Writer, runs []*eventstore.RunSummary) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tTARGET\tSTATUS\tSTARTED\tDURATION\tDETAIL")
	for _, r := range runs {
		detail := ""
		switch {
		case r.FailedStage != "":
			detail = r.FailedStage + ": " + r.Error
		case r.Package != nil:
			detail = r.Package.Path
		}
		target := r.Target
		if r.Init {
			target += " (init)"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			r.RunID, target, r.Status,
			r.StartedAt.Format(time.DateTime),
			r.Duration.Round(time.Second),
			detail)
	}
	return tw.Flush()
}
