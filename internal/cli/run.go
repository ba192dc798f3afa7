package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/vietddude/batchfetch/internal/control"
	"github.com/vietddude/batchfetch/internal/core/domain"
)

var policyFlag string

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Fetch every configured target once and print the outcomes",
	Run:   runOnce,
}

func init() {
	runCmd.Flags().StringVar(&policyFlag, "policy", "", "override the configured policy (sequential, parallel_fail_fast, parallel_best_effort)")
	rootCmd.AddCommand(runCmd)
}

func runOnce(cmd *cobra.Command, args []string) {
	cfg := loadConfig()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := control.NewApp(ctx, *cfg, slog.Default())
	if err != nil {
		slog.Error("Failed to initialize batchfetch", "error", err)
		os.Exit(1)
	}

	res, err := app.RunOnce(ctx, policyFlag)
	_ = app.Stop(context.Background())
	if err != nil {
		slog.Error("Batch rejected", "error", err)
		os.Exit(1)
	}

	printResult(res)
	if res.Status != domain.StatusAllSucceeded {
		os.Exit(1)
	}
}

func printResult(res *domain.BatchResult) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	_, _ = fmt.Fprintln(w, "INDEX\tHANDLE\tRESULT\tATTEMPTS\tDURATION\tDETAIL")
	for _, o := range res.Outcomes {
		result := o.Result()
		detail := ""
		switch {
		case o.Aborted():
			result = "aborted"
			detail = o.Err.Error()
		case o.Err != nil:
			detail = o.Err.Error()
		default:
			detail = fmt.Sprint(o.Value)
		}
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%s\t%s\n",
			o.Index, o.HandleID, result, o.Attempts, o.Duration.Round(time.Millisecond), truncate(detail, 72))
	}
	_ = w.Flush()

	s := res.Summary()
	fmt.Printf("\nbatch %s (%s): %s, %d/%d succeeded, %d failed (%d aborted, %d not attempted) in %s\n",
		res.ID, res.Policy, res.Status, s.Succeeded, s.Total, s.Failed, s.Aborted, s.NotAttempted, s.Elapsed.Round(time.Millisecond))
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
