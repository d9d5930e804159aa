// Command leadctl runs one-off governance operations against the same
// database and Redis the services use.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"leadflow_backend/internal/bootstrap"
	"leadflow_backend/platform/config"
	"leadflow_backend/platform/logger"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:           "leadctl",
	Short:         "Lead governance operations",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(balanceCmd)
	rootCmd.AddCommand(topUpCmd)
	rootCmd.AddCommand(reconcileCmd)
	rootCmd.AddCommand(detectAbuseCmd)
	rootCmd.AddCommand(scanLeakageCmd)
	rootCmd.AddCommand(slaSweepCmd)
	rootCmd.AddCommand(migrateCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("error: %v", err))
		os.Exit(1)
	}
}

// withApp loads configuration, wires the modules and hands them to fn.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, app *bootstrap.App) error) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log := logger.New(cfg.Env)

	app, err := bootstrap.New(cmd.Context(), cfg, log, bootstrap.Options{})
	if err != nil {
		return err
	}
	defer app.Close()

	return fn(cmd.Context(), app)
}

func parseTenant(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid tenant id %q", raw)
	}
	return id, nil
}

func printHeader(title string) {
	fmt.Println(color.CyanString(title))
}

func flag(ok bool) string {
	if ok {
		return color.RedString("yes")
	}
	return color.GreenString("no")
}
