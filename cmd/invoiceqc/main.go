package main

import (
	"github.com/alecthomas/kong"

	"github.com/garyjia/invoice-qc/internal/cli"
)

func main() {
	var cmds cli.Commands
	ctx := kong.Parse(&cmds,
		kong.Name("invoiceqc"),
		kong.Description("Validate structured invoices and flag anomalies."),
		kong.UsageOnError(),
		kong.Vars{"version": cli.Version},
	)
	err := ctx.Run(&cmds.Globals)
	ctx.FatalIfErrorf(err)
}
