package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	redisclient "github.com/vietddude/batchfetch/internal/infra/redis"
)

var clearFailed bool

var failedCmd = &cobra.Command{
	Use:   "failed [batch_id]",
	Short: "Show failed outcomes queued in Redis",
	Args:  cobra.MaximumNArgs(1),
	Run:   runFailed,
}

func init() {
	failedCmd.Flags().BoolVar(&clearFailed, "clear", false, "remove the failed outcomes of the batch after printing")
	rootCmd.AddCommand(failedCmd)
}

func runFailed(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	if cfg.Redis.URL == "" {
		slog.Error("failed requires redis.url to be configured")
		os.Exit(1)
	}

	ctx := context.Background()
	client, err := redisclient.NewClient(ctx, cfg.Redis)
	if err != nil {
		slog.Error("Failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = client.Close()
	}()
	repo := redisclient.NewFailedOutcomeRepo(client)

	if len(args) == 0 {
		ids, err := repo.Batches(ctx, 20)
		if err != nil {
			slog.Error("Failed to list batches", "error", err)
			os.Exit(1)
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		_, _ = fmt.Fprintln(w, "BATCH\tFAILED")
		for _, id := range ids {
			n, _ := repo.Count(ctx, id)
			_, _ = fmt.Fprintf(w, "%s\t%d\n", id, n)
		}
		_ = w.Flush()
		return
	}

	batchID := args[0]
	list, err := repo.List(ctx, batchID)
	if err != nil {
		slog.Error("Failed to list failed outcomes", "batch", batchID, "error", err)
		os.Exit(1)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	_, _ = fmt.Fprintln(w, "INDEX\tHANDLE\tABORTED\tATTEMPTS\tFAILED AT\tERROR")
	for _, f := range list {
		_, _ = fmt.Fprintf(w, "%d\t%s\t%t\t%d\t%s\t%s\n",
			f.Index, f.HandleID, f.Aborted, f.Attempts, f.FailedAt.Format(time.RFC3339), truncate(f.Error, 72))
	}
	_ = w.Flush()

	if clearFailed {
		if err := repo.Clear(ctx, batchID); err != nil {
			slog.Error("Failed to clear failed outcomes", "batch", batchID, "error", err)
			os.Exit(1)
		}
		slog.Info("Cleared failed outcomes", "batch", batchID, "count", len(list))
	}
}
