package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/spf13/cobra"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show the attendance history",
	Long: `Show recorded attendance, optionally filtered, as a table, JSON or CSV.

Examples:
  # Today's check-ins of one department member
  face-attendance history --name "ada" --from 2024-03-01 --to 2024-03-01

  # Per-person totals
  face-attendance history --summary

  # CSV export
  face-attendance history --csv --output attendance.csv`,
	RunE: runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)

	historyCmd.Flags().String("identity", "", "Filter by identity ID")
	historyCmd.Flags().String("name", "", "Filter by name (case and accent insensitive)")
	historyCmd.Flags().String("from", "", "First day to include (YYYY-MM-DD)")
	historyCmd.Flags().String("to", "", "Last day to include (YYYY-MM-DD)")
	historyCmd.Flags().String("status", "", "Filter by status")
	historyCmd.Flags().Bool("summary", false, "Show per-identity totals instead of events")
	historyCmd.Flags().Bool("csv", false, "Output as CSV")
	historyCmd.Flags().String("output", "", "Write CSV to this file instead of stdout")
	historyCmd.Flags().Bool("json", false, "Output as JSON")
}

func historyFilter(cmd *cobra.Command) (attendance.Filter, error) {
	f := attendance.Filter{
		IdentityID: mustGetString(cmd, "identity"),
		Name:       mustGetString(cmd, "name"),
		From:       mustGetString(cmd, "from"),
		To:         mustGetString(cmd, "to"),
	}
	if s := mustGetString(cmd, "status"); s != "" {
		f.Status = database.ParseStatus(s)
	}
	return f, f.Validate()
}

func runHistory(cmd *cobra.Command, args []string) error {
	f, err := historyFilter(cmd)
	if err != nil {
		return err
	}
	summary := mustGetBool(cmd, "summary")
	csvOutput := mustGetBool(cmd, "csv")
	outputPath := mustGetString(cmd, "output")
	jsonOutput := mustGetBool(cmd, "json")

	ctx := context.Background()
	cfg := config.Load()
	repo, err := openRepository(ctx, cfg)
	if err != nil {
		return err
	}
	defer repo.Close()

	// History needs no cooldown state, the ledger is read only here.
	ledger, err := attendance.OpenLedger(ctx, repo, attendance.WithLocation(cfg.Attendance.Location()))
	if err != nil {
		return fmt.Errorf("failed to load attendance events: %w", err)
	}
	events := ledger.List(f)

	switch {
	case csvOutput:
		return writeHistoryCSV(events, outputPath)
	case summary && jsonOutput:
		return outputJSON(attendance.Summarize(events))
	case summary:
		printSummary(os.Stdout, attendance.Summarize(events))
		return nil
	case jsonOutput:
		return outputJSON(events)
	}

	if len(events) == 0 {
		fmt.Println("No attendance found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tIDENTITY\tDATE\tTIME\tSTATUS")
	fmt.Fprintln(w, "----\t--------\t----\t----\t------")
	for _, ev := range events {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", ev.DisplayName, ev.IdentityID, ev.Date, ev.Time, ev.Status)
	}
	w.Flush()

	fmt.Printf("\nTotal: %d events\n", len(events))
	return nil
}

func writeHistoryCSV(events []database.AttendanceEvent, path string) error {
	if path == "" {
		return attendance.WriteCSV(os.Stdout, events)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := attendance.WriteCSV(f, events); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", path, err)
	}
	fmt.Printf("Wrote %d events to %s\n", len(events), path)
	return nil
}

func printSummary(out io.Writer, summaries []attendance.IdentitySummary) {
	if len(summaries) == 0 {
		fmt.Fprintln(out, "No attendance found.")
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tIDENTITY\tSCANS\tFIRST\tLAST")
	fmt.Fprintln(w, "----\t--------\t-----\t-----\t----")
	for _, s := range summaries {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n", s.DisplayName, s.IdentityID, s.TotalScans, s.FirstDate, s.LastDate)
	}
	w.Flush()
}
