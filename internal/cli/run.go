package cli

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/vietddude/triage/internal/control"
)

var (
	runDate   string
	runDryRun bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute a single analysis run",
	Long:  `Runs the analysis pipeline once for the given day (default: yesterday) and exits.`,
	Run:   runOnce,
}

func init() {
	runCmd.Flags().StringVar(&runDate, "date", "", "day to analyze, YYYY-MM-DD (default: yesterday)")
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "use in-memory storage; nothing is persisted")
	rootCmd.AddCommand(runCmd)
}

func runOnce(cmd *cobra.Command, args []string) {
	cfg, err := loadConfig()
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	day := time.Now().AddDate(0, 0, -1)
	if runDate != "" {
		day, err = time.ParseInLocation("2006-01-02", runDate, time.Local)
		if err != nil {
			slog.Error("Invalid --date, expected YYYY-MM-DD", "date", runDate)
			os.Exit(1)
		}
	}

	app, err := control.NewTriage(cfg, control.Options{DryRun: runDryRun})
	if err != nil {
		slog.Error("Failed to initialize Triage", "error", err)
		os.Exit(1)
	}

	if err := app.RunOnce(context.Background(), day); err != nil {
		slog.Error("Analysis run failed", "day", day.Format("2006-01-02"), "error", err)
		os.Exit(1)
	}
}
