// Package cli implements the ledgerctl operator commands.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
)

// Backend is the set of ledger operations reachable from the command line.
type Backend interface {
	SeedAccounts(ctx context.Context, tenantID string) (accounts.SeedResult, error)
	CloseYear(ctx context.Context, tenantID, userID string) (journals.CloseResult, error)
	CheckIntegrity(ctx context.Context, tenantID string) ([]journals.IntegrityReport, error)
	TriggerJob(ctx context.Context, name, tenantID string) (*asynq.TaskInfo, error)
}

// Opener connects a Backend; the returned func releases its resources.
type Opener func(ctx context.Context) (Backend, func(), error)

// ErrIntegrityViolation is returned when an integrity run finds drift.
var ErrIntegrityViolation = errors.New("ledger integrity violations found")

// NewRootCommand builds the ledgerctl command tree.
func NewRootCommand(open Opener) *cobra.Command {
	root := &cobra.Command{
		Use:           "ledgerctl",
		Short:         "Operate the Odyssey ledger",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		newSeedCommand(open),
		newCloseYearCommand(open),
		newIntegrityCommand(open),
		newJobsCommand(open),
	)
	return root
}

func withBackend(cmd *cobra.Command, open Opener, fn func(Backend) error) error {
	backend, release, err := open(cmd.Context())
	if err != nil {
		return err
	}
	if release != nil {
		defer release()
	}
	return fn(backend)
}

func newSeedCommand(open Opener) *cobra.Command {
	var tenantID string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Seed the default chart of accounts for a tenant",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withBackend(cmd, open, func(b Backend) error {
				res, err := b.SeedAccounts(cmd.Context(), tenantID)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "tenant %s: %d created, %d renamed\n", tenantID, res.Created, res.Renamed)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&tenantID, "tenant", "", "tenant id")
	_ = cmd.MarkFlagRequired("tenant")
	return cmd
}

func newCloseYearCommand(open Opener) *cobra.Command {
	var tenantID, userID string
	cmd := &cobra.Command{
		Use:   "close-year",
		Short: "Close the open fiscal year of a tenant",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withBackend(cmd, open, func(b Backend) error {
				res, err := b.CloseYear(cmd.Context(), tenantID, userID)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "closed %s with %s (net profit %s), next year %s\n",
					res.ClosedYear.Name, res.Entry.Number, res.NetProfit.StringFixed(2), res.NextYear.Name)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&tenantID, "tenant", "", "tenant id")
	cmd.Flags().StringVar(&userID, "user", "ledgerctl", "user recorded as entry creator")
	_ = cmd.MarkFlagRequired("tenant")
	return cmd
}

func newIntegrityCommand(open Opener) *cobra.Command {
	var tenantID string
	cmd := &cobra.Command{
		Use:   "integrity",
		Short: "Compare stored balances with journal lines",
		Long:  "Runs the integrity check for one tenant, or every tenant when --tenant is empty.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withBackend(cmd, open, func(b Backend) error {
				reports, err := b.CheckIntegrity(cmd.Context(), tenantID)
				if err != nil {
					return err
				}
				return printReports(cmd.OutOrStdout(), reports)
			})
		},
	}
	cmd.Flags().StringVar(&tenantID, "tenant", "", "tenant id (all tenants when empty)")
	return cmd
}

func printReports(w io.Writer, reports []journals.IntegrityReport) error {
	violations := 0
	for _, report := range reports {
		if report.Healthy() {
			fmt.Fprintf(w, "%s: ok\n", report.TenantID)
			continue
		}
		violations++
		fmt.Fprintf(w, "%s: %d balance drifts, %d unbalanced entries\n", report.TenantID, len(report.Drifts), len(report.Unbalanced))
		for _, d := range report.Drifts {
			fmt.Fprintf(w, "  account %s stored=%s computed=%s\n", d.Code, d.Stored.StringFixed(2), d.Computed.StringFixed(2))
		}
		for _, u := range report.Unbalanced {
			fmt.Fprintf(w, "  entry %s debit=%s credit=%s\n", u.Number, u.Debit.StringFixed(2), u.Credit.StringFixed(2))
		}
	}
	if violations > 0 {
		return ErrIntegrityViolation
	}
	return nil
}

func newJobsCommand(open Opener) *cobra.Command {
	jobsCmd := &cobra.Command{
		Use:   "jobs",
		Short: "Manage background jobs",
	}
	var tenantID string
	trigger := &cobra.Command{
		Use:   "trigger <task>",
		Short: "Enqueue a background task (ledger:gl_integrity, ledger:idempotency_cleanup)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackend(cmd, open, func(b Backend) error {
				info, err := b.TriggerJob(cmd.Context(), args[0], tenantID)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "enqueued %s as %s on %s\n", args[0], info.ID, info.Queue)
				return nil
			})
		},
	}
	trigger.Flags().StringVar(&tenantID, "tenant", "", "tenant scope for ledger:gl_integrity")
	jobsCmd.AddCommand(trigger)
	return jobsCmd
}
