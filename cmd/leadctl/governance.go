package main

import (
	"context"
	"fmt"
	"time"

	"leadflow_backend/internal/bootstrap"
	"leadflow_backend/platform/config"
	"leadflow_backend/platform/db"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// ticker is satisfied by every periodic monitor.
type ticker interface {
	Name() string
	Tick(ctx context.Context) (processed, failed int, err error)
}

var detectAbuseCmd = &cobra.Command{
	Use:   "detect-abuse <tenant-id>",
	Short: "Evaluate a tenant's spend, lead and failure velocity",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tenantID, err := parseTenant(args[0])
		if err != nil {
			return err
		}
		return withApp(cmd, func(ctx context.Context, app *bootstrap.App) error {
			r, err := app.Abuse.Service().DetectAbusePatterns(ctx, tenantID)
			if err != nil {
				return err
			}
			printHeader("Abuse report")
			fmt.Printf("Spend last hour:  %d (mean %.1f/h)\n", r.RecentSpend, r.MeanHourlySpend)
			fmt.Printf("Leads last hour:  %d (mean %.1f/h)\n", r.RecentLeads, r.MeanHourlyLeads)
			fmt.Printf("API failures:     %d\n", r.APIFailures)
			fmt.Printf("Token drain:      %s\n", flag(r.TokenDrainAttack))
			fmt.Printf("Spam leads:       %s\n", flag(r.SpamLeadCreation))
			fmt.Printf("Suspicious:       %s\n", flag(r.SuspiciousActivity))
			if r.Paused && r.PausedUntil != nil {
				fmt.Println(color.RedString("Paused until %s", r.PausedUntil.Format(time.RFC3339)))
			}
			return nil
		})
	},
}

var scanLeakageCmd = &cobra.Command{
	Use:   "scan-leakage",
	Short: "Run one leakage monitor pass over stale leads",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd, func(ctx context.Context, app *bootstrap.App) error {
			return runOnce(ctx, app.Leakage.Monitor())
		})
	},
}

var slaSweepCmd = &cobra.Command{
	Use:   "sla-sweep",
	Short: "Notify agents about leads past their SLA deadline",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd, func(ctx context.Context, app *bootstrap.App) error {
			return runOnce(ctx, app.Routing.SLAWatcher())
		})
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if err := db.RunMigrations(cmd.Context(), cfg); err != nil {
			return err
		}
		fmt.Println(color.GreenString("Migrations applied"))
		return nil
	},
}

func runOnce(ctx context.Context, t ticker) error {
	start := time.Now()
	processed, failed, err := t.Tick(ctx)
	if err != nil {
		return err
	}
	printHeader(t.Name())
	fmt.Printf("Processed: %d\n", processed)
	if failed > 0 {
		fmt.Println(color.YellowString("Failed:    %d", failed))
	} else {
		fmt.Printf("Failed:    %d\n", failed)
	}
	fmt.Printf("Took:      %s\n", time.Since(start).Round(time.Millisecond))
	return nil
}
