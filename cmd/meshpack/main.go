package main

import (
	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/meshpack/cmd/meshpack/commands"
	"git.home.luguber.info/inful/meshpack/internal/foundation/errors"
	"git.home.luguber.info/inful/meshpack/internal/version"
)

func main() {
	cli := &commands.CLI{}
	global := &commands.Global{}
	parser := kong.Parse(cli,
		kong.Name("meshpack"),
		kong.Description("Build and package a mesh VPN node: tinc tunnel, dnet control plane and their native dependencies."),
		kong.UsageOnError(),
		kong.Vars{"version": version.String()},
		kong.Bind(global),
	)
	if err := parser.Run(global, cli); err != nil {
		errors.NewCLIErrorAdapter(cli.Verbose, global.Logger).HandleError(err)
	}
}
