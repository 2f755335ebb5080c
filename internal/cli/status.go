package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/vietddude/triage/internal/infra/storage"
	"github.com/vietddude/triage/internal/infra/storage/file"
)

var statusDays int

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show per-day partition statistics",
	Run:   showStatus,
}

func init() {
	statusCmd.Flags().IntVar(&statusDays, "days", 7, "number of days to report, ending yesterday")
	rootCmd.AddCommand(statusCmd)
}

func showStatus(cmd *cobra.Command, args []string) {
	cfg, err := loadConfig()
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	store := file.NewStore(cfg.Storage.BasePath, slog.Default())
	ctx := context.Background()

	fmt.Printf("%-12s %8s %10s %12s\n", "DAY", "EVENTS", "ANALYZED", "UNANALYZED")
	for i := statusDays; i >= 1; i-- {
		day := time.Now().AddDate(0, 0, -i)
		key := storage.PartitionKey(day)

		exists, err := store.Exists(ctx, key)
		if err != nil {
			slog.Error("Failed to check partition", "partition", key, "error", err)
			os.Exit(1)
		}
		if !exists {
			fmt.Printf("%-12s %8s\n", day.Format("2006-01-02"), "-")
			continue
		}

		events, err := store.Load(ctx, key)
		if err != nil {
			slog.Error("Failed to load partition", "partition", key, "error", err)
			os.Exit(1)
		}

		analyzed := 0
		for _, e := range events {
			if e.IsAnalyzed {
				analyzed++
			}
		}
		fmt.Printf("%-12s %8d %10d %12d\n",
			day.Format("2006-01-02"), len(events), analyzed, len(events)-analyzed)
	}
}
