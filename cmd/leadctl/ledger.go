package main

import (
	"context"
	"fmt"
	"strconv"

	"leadflow_backend/internal/bootstrap"
	ledger "leadflow_backend/internal/ledger/service"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	topUpReference   string
	topUpDescription string
)

var balanceCmd = &cobra.Command{
	Use:   "balance <tenant-id>",
	Short: "Print a tenant's token balance",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tenantID, err := parseTenant(args[0])
		if err != nil {
			return err
		}
		return withApp(cmd, func(ctx context.Context, app *bootstrap.App) error {
			bal, err := app.Ledger.Service().GetBalance(ctx, tenantID)
			if err != nil {
				return err
			}
			printHeader("Token balance")
			fmt.Printf("Tenant:  %s\n", tenantID)
			fmt.Printf("Balance: %d\n", bal.Balance)
			fmt.Printf("Paused:  %s\n", flag(bal.IsPaused))
			return nil
		})
	},
}

var topUpCmd = &cobra.Command{
	Use:   "top-up <tenant-id> <amount>",
	Short: "Credit tokens to a tenant and lift a balance pause",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		tenantID, err := parseTenant(args[0])
		if err != nil {
			return err
		}
		amount, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil || amount <= 0 {
			return fmt.Errorf("amount must be a positive integer")
		}
		return withApp(cmd, func(ctx context.Context, app *bootstrap.App) error {
			bal, err := app.Ledger.Service().TopUp(ctx, ledger.TopUpParams{
				TenantID:           tenantID,
				Amount:             amount,
				PaymentReferenceID: topUpReference,
				Description:        topUpDescription,
			})
			if err != nil {
				return err
			}
			fmt.Println(color.GreenString("Credited %d tokens", amount))
			fmt.Printf("Balance: %d (paused: %s)\n", bal.Balance, flag(bal.IsPaused))
			return nil
		})
	},
}

var reconcileCmd = &cobra.Command{
	Use:   "reconcile <tenant-id>",
	Short: "Compare the stored balance with the sum of ledger entries",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tenantID, err := parseTenant(args[0])
		if err != nil {
			return err
		}
		return withApp(cmd, func(ctx context.Context, app *bootstrap.App) error {
			res, err := app.Ledger.Service().Reconcile(ctx, tenantID)
			if err != nil {
				return err
			}
			printHeader("Ledger reconciliation")
			fmt.Printf("Stored balance: %d\n", res.Materialized)
			fmt.Printf("Entry sum:      %d\n", res.FromEntries)
			if res.Drift != 0 {
				fmt.Println(color.RedString("Drift:          %d", res.Drift))
			} else {
				fmt.Println(color.GreenString("Drift:          0"))
			}
			return nil
		})
	},
}

func init() {
	topUpCmd.Flags().StringVar(&topUpReference, "ref", "", "payment reference id")
	topUpCmd.Flags().StringVar(&topUpDescription, "description", "", "ledger entry description")
	_ = topUpCmd.MarkFlagRequired("ref")
}
