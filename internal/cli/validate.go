package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/alecthomas/kong"
	"go.uber.org/zap"

	"github.com/garyjia/invoice-qc/internal/config"
	"github.com/garyjia/invoice-qc/internal/container"
	"github.com/garyjia/invoice-qc/internal/models"
	"github.com/garyjia/invoice-qc/internal/normalize"
	"github.com/garyjia/invoice-qc/internal/report"
	"github.com/garyjia/invoice-qc/pkg/utils"
)

// ErrInvalidInvoices is returned by validate --fail-on-invalid when any
// invoice in the batch is invalid
var ErrInvalidInvoices = errors.New("batch contains invalid invoices")

// ValidateCmd validates a batch file
type ValidateCmd struct {
	Input         string `help:"JSON file with an array of invoices, or '-' for stdin." required:"" short:"i"`
	Report        string `help:"Write the JSON report to this file." short:"r"`
	XLSX          string `name:"xlsx" help:"Also write an XLSX report to this file."`
	HistoryDB     string `name:"history-db" help:"SQLite file holding supplier history across runs."`
	FailOnInvalid bool   `help:"Exit non-zero when any invoice is invalid."`

	now   func() time.Time
	stdin io.Reader
}

// Run executes the command
func (cmd *ValidateCmd) Run(ctx *kong.Context, globals *Globals) error {
	return cmd.run(context.Background(), ctx.Stdout, globals)
}

func (cmd *ValidateCmd) run(ctx context.Context, out io.Writer, globals *Globals) error {
	data, err := cmd.readInput()
	if err != nil {
		return err
	}

	c, err := globals.start(ctx, cmd.HistoryDB, cmd.now)
	if err != nil {
		return err
	}
	defer c.Close()

	records, err := normalize.DecodeBatch(bytes.NewReader(data))
	if err != nil {
		printError(out, err.Error())
		return err
	}

	batch, err := c.ValidationService().ValidateBatch(ctx, records)
	if err != nil {
		return err
	}

	writer := report.NewWriter(c.Logger())
	for _, path := range []string{cmd.Report, cmd.XLSX} {
		if path == "" {
			continue
		}
		if err := writer.WriteFile(path, batch); err != nil {
			return err
		}
	}

	printSummary(out, batch)
	for _, path := range []string{cmd.Report, cmd.XLSX} {
		if path != "" {
			printInfof(out, "Report written to %s", pathStyle.Render(path))
		}
	}

	if cmd.FailOnInvalid && batch.Invalid > 0 {
		return ErrInvalidInvoices
	}
	return nil
}

func (cmd *ValidateCmd) readInput() ([]byte, error) {
	if cmd.Input == "-" {
		in := cmd.stdin
		if in == nil {
			in = os.Stdin
		}
		data, err := io.ReadAll(in)
		if err != nil {
			return nil, fmt.Errorf("failed to read from stdin: %w", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(cmd.Input)
	if err != nil {
		return nil, fmt.Errorf("failed to read input: %w", err)
	}
	return data, nil
}

func printSummary(w io.Writer, batch models.BatchReport) {
	printInfof(w, "Validated %d invoice(s)", batch.Total)
	if batch.Valid > 0 {
		printSuccess(w, fmt.Sprintf("%d valid", batch.Valid))
	}
	if batch.Invalid > 0 {
		printError(w, fmt.Sprintf("%d invalid", batch.Invalid))
	}

	warned := 0
	for _, v := range batch.Verdicts {
		if v.IsValid && len(v.Warnings()) > 0 {
			warned++
		}
	}
	if warned > 0 {
		printWarn(w, fmt.Sprintf("%d valid with warnings", warned))
	}

	for _, cc := range batch.TopErrorCodes {
		printInfof(w, "%s ×%d", codeStyle.Render(cc.Code), cc.Count)
	}
}

// start loads configuration and starts a container. A non-empty historyDB
// overrides the configured database path.
func (g *Globals) start(ctx context.Context, historyDB string, now func() time.Time) (*container.Container, error) {
	cfg, err := config.Load(g.Config)
	if err != nil {
		return nil, err
	}
	if historyDB != "" {
		cfg.Database.Path = historyDB
	}

	level := g.LogLevel
	if level == "" {
		level = "warn"
	}
	logger, err := utils.NewLogger(utils.LoggerConfig{
		Level:      level,
		OutputPath: "stderr",
		Format:     "console",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	var opts []container.Option
	if now != nil {
		opts = append(opts, container.WithClock(now))
	}
	c, err := container.NewContainer(cfg, logger, opts...)
	if err != nil {
		return nil, err
	}
	if err := c.Start(ctx); err != nil {
		logger.Error("Failed to start", zap.Error(err))
		return nil, err
	}
	return c, nil
}
