// apsentry - accounts-payable anomaly detection
//
// Usage:
//
//	apsentry seed
//	apsentry detect --tenant <uuid>
//	apsentry baselines --tenant <uuid>
//	apsentry alerts --tenant <uuid>
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	_ "github.com/lib/pq"

	"github.com/apsentry/apsentry/config"
	"github.com/apsentry/apsentry/internal/baseline"
	"github.com/apsentry/apsentry/internal/database"
	"github.com/apsentry/apsentry/internal/engine"
	"github.com/apsentry/apsentry/internal/seed"
)

func main() {
	app := &cli.App{
		Name:  "apsentry",
		Usage: "Audit accounts-payable records for duplicates, price creep and suspicious totals",
		Commands: []*cli.Command{
			detectCommand(),
			baselinesCommand(),
			alertsCommand(),
			seedCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Error().Err(err).Msg("Command failed")
		os.Exit(1)
	}
}

func tenantFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:     "tenant",
		Aliases:  []string{"t"},
		Usage:    "Tenant UUID",
		Required: true,
		EnvVars:  []string{"APSENTRY_TENANT"},
	}
}

// setup loads configuration, configures logging and opens the database.
func setup() (*config.Config, *database.DB, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	db, err := database.New(database.ConnectionParams{
		Host:     cfg.DBHost,
		Port:     cfg.DBPort,
		User:     cfg.DBUser,
		Password: cfg.DBPassword,
		DBName:   cfg.DBName,
		SSLMode:  cfg.DBSSLMode,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to database: %w", err)
	}
	return cfg, db, nil
}

func parseTenant(c *cli.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.String("tenant"))
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid tenant id %q: %w", c.String("tenant"), err)
	}
	return id, nil
}

func detectCommand() *cli.Command {
	return &cli.Command{
		Name:  "detect",
		Usage: "Run all anomaly detectors for a tenant",
		Flags: []cli.Flag{tenantFlag()},
		Action: func(c *cli.Context) error {
			tenantID, err := parseTenant(c)
			if err != nil {
				return err
			}
			cfg, db, err := setup()
			if err != nil {
				return err
			}
			defer db.Close()

			count, err := engine.New(db, cfg).RunDetection(c.Context, tenantID)
			if err != nil {
				return err
			}
			fmt.Printf("%d new anomalies\n", count)
			return nil
		},
	}
}

func baselinesCommand() *cli.Command {
	return &cli.Command{
		Name:  "baselines",
		Usage: "Recompute vendor baselines for a tenant",
		Flags: []cli.Flag{tenantFlag()},
		Action: func(c *cli.Context) error {
			tenantID, err := parseTenant(c)
			if err != nil {
				return err
			}
			cfg, db, err := setup()
			if err != nil {
				return err
			}
			defer db.Close()

			calc := baseline.NewCalculator(cfg.BaselineDays, log.With().Str("component", "baseline").Logger())
			count, err := calc.Run(c.Context, db, tenantID, time.Now())
			if err != nil {
				return err
			}
			fmt.Printf("%d baselines updated\n", count)
			return nil
		},
	}
}

func alertsCommand() *cli.Command {
	return &cli.Command{
		Name:  "alerts",
		Usage: "List open alert-worthy anomalies for a tenant, newest first",
		Flags: []cli.Flag{tenantFlag()},
		Action: func(c *cli.Context) error {
			tenantID, err := parseTenant(c)
			if err != nil {
				return err
			}
			_, db, err := setup()
			if err != nil {
				return err
			}
			defer db.Close()

			anomalies, err := db.OpenAlerts(c.Context, tenantID)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(os.Stdout)
			for _, a := range anomalies {
				if err := enc.Encode(a); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func seedCommand() *cli.Command {
	return &cli.Command{
		Name:  "seed",
		Usage: "Create a demo tenant with sample bills",
		Action: func(c *cli.Context) error {
			_, db, err := setup()
			if err != nil {
				return err
			}
			defer db.Close()

			tenantID, err := seed.Demo(c.Context, db, time.Now())
			if err != nil {
				return err
			}
			fmt.Printf("Seeded demo tenant %s. Run detection to find anomalies.\n", tenantID)
			return nil
		},
	}
}
