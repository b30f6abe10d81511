package commands

import (
	"io"
	"log/slog"
	"os"

	"github.com/alecthomas/kong"
	"golang.org/x/term"

	"git.home.luguber.info/inful/meshpack/internal/config"
)

// Global carries state shared by every command once flags are parsed.
type Global struct {
	Logger *slog.Logger
}

// CLI definition & global flags.
type CLI struct {
	Config  string           `short:"c" help:"Configuration file path (built-in defaults when absent)" default:"meshpack.yaml" type:"path"`
	Verbose bool             `short:"v" help:"Enable verbose logging"`
	Version kong.VersionFlag `name:"version" help:"Show version and exit"`

	Build   BuildCmd   `cmd:"" help:"Run the stages for a target and publish the package"`
	Plan    PlanCmd    `cmd:"" help:"Print the stages a target would run"`
	Init    InitCmd    `cmd:"" help:"Write a default configuration file"`
	History HistoryCmd `cmd:"" help:"List recent runs from the run journal"`
	Verify  VerifyCmd  `cmd:"" help:"Check a published package against its BLAKE3 digest file"`
}

// AfterApply runs after flag parsing and installs a logger that honours -v.
// It is replaced once the configuration's log settings are known.
func (c *CLI) AfterApply(g *Global) error {
	level := slog.LevelInfo
	if c.Verbose {
		level = slog.LevelDebug
	}
	g.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(g.Logger)
	return nil
}

// loadConfig loads the configuration (defaults when the file is missing) and
// reconfigures logging from it.
func (c *CLI) loadConfig(g *Global) (*config.Config, error) {
	cfg, found, err := config.LoadOrDefault(c.Config)
	if err != nil {
		return nil, err
	}
	g.Logger = newLogger(os.Stderr, cfg.Log, c.Verbose)
	slog.SetDefault(g.Logger)
	if !found {
		g.Logger.Debug("No configuration file, using built-in defaults", "path", c.Config)
	}
	return cfg, nil
}

func newLogger(w io.Writer, lc config.LogConfig, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	switch lc.Level {
	case config.LogLevelDebug:
		level = slog.LevelDebug
	case config.LogLevelWarn:
		level = slog.LevelWarn
	case config.LogLevelError:
		level = slog.LevelError
	}
	if verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	if lc.Format == config.LogFormatJSON {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// isTerminal reports whether f is attached to a terminal.
func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}
