package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/yangwenmai/threadauto/internal/config"
	"github.com/yangwenmai/threadauto/internal/store"
)

func newLedgerCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "List recorded publications, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(flagConfig)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			db, err := store.OpenSQLite(cfg.StateDBPath)
			if err != nil {
				return fmt.Errorf("opening ledger: %w", err)
			}
			defer db.Close()
			s, err := store.New(db)
			if err != nil {
				return fmt.Errorf("initializing ledger: %w", err)
			}
			return printLedger(cmd, s, limit)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum records to show")
	return cmd
}

func printLedger(cmd *cobra.Command, r store.LedgerReader, limit int) error {
	ctx := cmd.Context()
	total, err := r.Count(ctx)
	if err != nil {
		return err
	}
	if total == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "Ledger is empty.")
		return nil
	}
	records, err := r.List(ctx, limit)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "DATE\tOUTCOME\tUNITS\tROOT\tTITLE")
	for _, rec := range records {
		fmt.Fprintf(w, "%s\t%s\t%d/%d\t%s\t%s\n",
			rec.CreatedAt.Local().Format("2006-01-02 15:04"), rec.Outcome,
			rec.PublishedUnits, rec.TotalUnits, rec.RootHandle, rec.Title)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "\n%d of %d record(s)\n", len(records), total)
	return nil
}
