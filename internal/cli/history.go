package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/vietddude/batchfetch/internal/infra/storage/postgres"
)

var (
	historyLimit   int
	historyIndexes []int
)

var historyCmd = &cobra.Command{
	Use:   "history [batch_id]",
	Short: "List recent batches, or the outcomes of one batch, from PostgreSQL",
	Args:  cobra.MaximumNArgs(1),
	Run:   runHistory,
}

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "number of batches to list")
	historyCmd.Flags().IntSliceVar(&historyIndexes, "index", nil, "only show these outcome indexes")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	if cfg.Database.URL == "" {
		slog.Error("history requires database.url to be configured")
		os.Exit(1)
	}

	ctx := context.Background()
	db, err := postgres.NewDB(ctx, cfg.Database)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = db.Close()
	}()
	repo := postgres.NewOutcomeRepo(db)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	defer func() { _ = w.Flush() }()

	if len(args) == 0 {
		batches, err := repo.ListBatches(ctx, historyLimit)
		if err != nil {
			slog.Error("Failed to list batches", "error", err)
			os.Exit(1)
		}
		_, _ = fmt.Fprintln(w, "BATCH\tPOLICY\tSTATUS\tOK/TOTAL\tSTARTED\tDURATION")
		for _, b := range batches {
			_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d/%d\t%s\t%s\n",
				b.ID, b.Policy, b.Status, b.Succeeded, b.Total,
				b.StartedAt.Format(time.RFC3339), b.FinishedAt.Sub(b.StartedAt).Round(time.Millisecond))
		}
		return
	}

	outcomes, err := repo.GetOutcomes(ctx, args[0], historyIndexes)
	if err != nil {
		slog.Error("Failed to get outcomes", "batch", args[0], "error", err)
		os.Exit(1)
	}
	_, _ = fmt.Fprintln(w, "INDEX\tHANDLE\tOK\tATTEMPTS\tDURATION\tDETAIL")
	for _, o := range outcomes {
		detail := o.Error
		if o.Succeeded {
			detail = string(o.Value)
		}
		_, _ = fmt.Fprintf(w, "%d\t%s\t%t\t%d\t%dms\t%s\n",
			o.Index, o.HandleID, o.Succeeded, o.Attempts, o.DurationMs, truncate(detail, 72))
	}
}
