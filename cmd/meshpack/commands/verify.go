package commands

import (
	"fmt"
	"path/filepath"

	"git.home.luguber.info/inful/meshpack/internal/assemble"
)

// VerifyCmd implements the 'verify' command.
type VerifyCmd struct {
	Path string `arg:"" optional:"" help:"Published archive (defaults to the configured publish location)" type:"path"`
}

func (v *VerifyCmd) Run(g *Global, root *CLI) error {
	path := v.Path
	if path == "" {
		cfg, err := root.loadConfig(g)
		if err != nil {
			return err
		}
		path = filepath.Join(cfg.Paths.PublishDir, filepath.Base(cfg.Package.Archive))
	}
	digest, err := assemble.Verify(path)
	if err != nil {
		return err
	}
	fmt.Printf("%s: OK (blake3 %s)\n", path, digest)
	return nil
}
