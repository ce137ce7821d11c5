package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/doseledger/doseledger/internal/domain/finance"
	"github.com/doseledger/doseledger/internal/platform/db"
)

func reportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Print financial reports from the live database",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "ledger",
		Short: "Clinic totals and patients with outstanding balances",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, done, err := reportServices(cmd)
			if err != nil {
				return err
			}
			defer done()

			l, err := svc.Dashboard(cmd.Context())
			if err != nil {
				return err
			}
			debtors, err := svc.Debtors(cmd.Context())
			if err != nil {
				return err
			}
			return printLedger(cmd.OutOrStdout(), l, debtors)
		},
	})

	monthsCmd := &cobra.Command{
		Use:   "months",
		Short: "Monthly revenue and pending amounts",
		RunE: func(cmd *cobra.Command, args []string) error {
			patientFlag, _ := cmd.Flags().GetString("patient")
			xlsxPath, _ := cmd.Flags().GetString("xlsx")

			var pid *uuid.UUID
			if patientFlag != "" {
				id, err := uuid.Parse(patientFlag)
				if err != nil {
					return fmt.Errorf("--patient: %w", err)
				}
				pid = &id
			}

			svc, done, err := reportServices(cmd)
			if err != nil {
				return err
			}
			defer done()

			groups, err := svc.MonthlyGroups(cmd.Context(), pid)
			if err != nil {
				return err
			}
			if xlsxPath == "" {
				return printMonths(cmd.OutOrStdout(), groups)
			}
			f, err := os.Create(xlsxPath)
			if err != nil {
				return err
			}
			if err := finance.ExportMonthlyXLSX(groups, f); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d month(s) to %s\n", len(groups), xlsxPath)
			return nil
		},
	}
	monthsCmd.Flags().String("patient", "", "Restrict to one patient id")
	monthsCmd.Flags().String("xlsx", "", "Write a workbook to this path instead of printing")
	cmd.AddCommand(monthsCmd)

	return cmd
}

func reportServices(cmd *cobra.Command) (*finance.Service, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	logger := newLogger(cfg)
	ctx := logger.WithContext(cmd.Context())
	cmd.SetContext(ctx)

	pool, err := db.NewPool(ctx, poolConfig(cfg))
	if err != nil {
		return nil, nil, err
	}
	svc, cleanup, err := newServices(ctx, cfg, pool, logger)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	return svc.finance, func() {
		cleanup()
		pool.Close()
	}, nil
}

func printLedger(out io.Writer, l *finance.Ledger, debtors []finance.BalanceRow) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "As of\t%s\n", l.AsOf)
	fmt.Fprintf(tw, "Realized value\t%s\n", l.TotalRealizedValue)
	fmt.Fprintf(tw, "Realized cost\t%s\n", l.TotalRealizedCost)
	fmt.Fprintf(tw, "Estimated profit\t%s\n", l.EstimatedProfit)
	fmt.Fprintf(tw, "Revenue\t%s\n", l.TotalRevenue)
	fmt.Fprintf(tw, "Pending (accrual)\t%s\n", l.TotalPending)
	fmt.Fprintf(tw, "Overdue\t%s\n", l.TotalOverdue)
	fmt.Fprintln(tw)

	fmt.Fprintln(tw, "MONTH\tREVENUE")
	for _, p := range l.RevenueSeries {
		fmt.Fprintf(tw, "%s %s\t%s\n", p.Label, p.Key[:4], p.Value)
	}
	fmt.Fprintln(tw)

	fmt.Fprintln(tw, "PATIENT\tNAME\tREALIZED\tPAID\tOUTSTANDING")
	for _, d := range debtors {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", d.PatientID, d.Name, d.Realized, d.Paid, d.Outstanding)
	}
	return tw.Flush()
}

func printMonths(out io.Writer, groups []finance.MonthGroup) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "MONTH\tRECORDS\tREVENUE\tPENDING")
	for _, g := range groups {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", g.Title, len(g.Records), g.Revenue, g.Pending)
	}
	return tw.Flush()
}
