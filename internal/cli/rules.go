package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/alecthomas/kong"
)

// RulesCmd lists the rule table
type RulesCmd struct{}

// Run executes the command
func (cmd *RulesCmd) Run(ctx *kong.Context, globals *Globals) error {
	return cmd.run(context.Background(), ctx.Stdout, globals)
}

func (cmd *RulesCmd) run(ctx context.Context, out io.Writer, globals *Globals) error {
	c, err := globals.start(ctx, "", nil)
	if err != nil {
		return err
	}
	defer c.Close()

	registry := c.Engine().Registry()
	for _, name := range registry.Names() {
		if registry.Enabled(name) {
			printSuccess(out, name)
		} else {
			_, _ = fmt.Fprintf(out, "%s %s\n", warnStyle.Render(warnSymbol), warnStyle.Render(name+" (disabled)"))
		}
	}
	return nil
}
