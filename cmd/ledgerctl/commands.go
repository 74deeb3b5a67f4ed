package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/victoryunusa/truetab-api-sub000/config"
	"github.com/victoryunusa/truetab-api-sub000/internal/adapter/storage/postgres"
	"github.com/victoryunusa/truetab-api-sub000/internal/app"
	"github.com/victoryunusa/truetab-api-sub000/pkg/logger"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// cli carries state loaded once by the root command.
type cli struct {
	configPath string
	cfg        *config.Config
	log        zerolog.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:           "ledgerctl",
		Short:         "Operator tools for the TrueTab wallet ledger",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			_ = godotenv.Load()
			cfg, err := config.Load(c.configPath)
			if err != nil {
				return err
			}
			c.cfg = cfg
			c.log = logger.New("ledgerctl", cfg.Log.Level, cfg.Log.Pretty)
			return nil
		},
	}
	root.PersistentFlags().StringVarP(&c.configPath, "config", "c", "", "config file (default ./config.yaml)")

	root.AddCommand(c.migrateCmd())
	root.AddCommand(c.sweepCmd())
	root.AddCommand(c.processCmd())
	return root
}

func (c *cli) migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "migrate up|down",
		Short:     "Apply or roll back the database schema",
		ValidArgs: []string{string(postgres.MigrateUp), string(postgres.MigrateDown)},
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			if c.cfg.Database.Driver == "memory" {
				return fmt.Errorf("migrations need the postgres driver")
			}
			return postgres.Migrate(c.cfg.Database.DSN(), postgres.Direction(args[0]), c.log)
		},
	}
}

func (c *cli) sweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Re-verify stale PROCESSING payouts once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app.New(cmd.Context(), c.cfg, c.log)
			if err != nil {
				return err
			}
			defer a.Close()

			report, err := a.Sweeper.SweepOnce(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), report)
		},
	}
}

func (c *cli) processCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "process <payout-id>",
		Short: "Dispatch a PENDING payout to its gateway",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid payout id %q: %w", args[0], err)
			}

			a, err := app.New(cmd.Context(), c.cfg, c.log)
			if err != nil {
				return err
			}
			defer a.Close()

			p, err := a.Payouts.Process(cmd.Context(), id)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), p)
		},
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
