// Command budgetctl inspects and maintains budget data from the terminal.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"budgetcards/internal/backend"
	"budgetcards/internal/cli"
	"budgetcards/internal/config"
	applog "budgetcards/internal/log"
	"budgetcards/internal/store"

	"github.com/spf13/cobra"
)

const (
	jsonOutputFormat  = "json"
	tableOutputFormat = "table"
)

// app carries what every subcommand needs. Fields left nil are filled from
// the environment before the first command runs.
type app struct {
	logger    *applog.Logger
	cfg       *config.Config
	openStore func(ctx context.Context) (store.RowReader, func(), error)
}

func (a *app) init(logLevel string) error {
	if a.logger == nil {
		cli.LoadEnvFile()
		a.logger = cli.SetupLogger(logLevel)
	}
	if a.cfg == nil {
		cfg := config.Load()
		if err := cfg.Validate(); err != nil {
			return err
		}
		a.cfg = cfg
	}
	if a.openStore == nil {
		a.openStore = a.openBackend
	}
	return nil
}

// openBackend opens the configured store without the classification queue.
func (a *app) openBackend(ctx context.Context) (store.RowReader, func(), error) {
	bcfg, err := backend.FromAppConfig(a.cfg)
	if err != nil {
		return nil, nil, err
	}
	bcfg.AMQPURL = ""
	res, err := backend.NewFactory(a.logger.WithComponent(applog.ComponentBackend)).CreateBackend(ctx, bcfg)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s backend: %w", bcfg.Type, err)
	}
	return res.Store, func() { _ = res.Close() }, nil
}

func newRootCmd(a *app) *cobra.Command {
	var logLevel string
	root := &cobra.Command{
		Use:           "budgetctl",
		Short:         "Inspect and maintain monthly budget cards",
		Long:          `Command line companion of budgetd: show months, ask for summaries, classify text and migrate the SQLite schema.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return a.init(logLevel)
		},
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level: debug, info, warn or error")

	root.AddCommand(newMonthCmd(a), newClassifyCmd(a), newMigrateCmd(a))
	return root
}

func outputJSON(w io.Writer, data any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(data); err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return nil
}

func main() {
	root := newRootCmd(&app{})
	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
