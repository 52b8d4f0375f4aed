package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/enrollment"
	"github.com/kozaktomas/face-attendance/internal/legacy"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import students.csv and attendance.csv from the previous system",
	Long: `Import the CSV files written by the previous attendance system.

students.csv needs the columns Name, Matric No, Department and Embedding
(a JSON array); Image Path is optional. attendance.csv needs Name, Matric No,
Date and Time; Status is optional and defaults to Check-In.

Rows that already exist are skipped, so the import can be re-run.

Examples:
  face-attendance import --students students.csv --attendance attendance.csv`,
	RunE: runImport,
}

func init() {
	rootCmd.AddCommand(importCmd)

	importCmd.Flags().String("students", "", "Path to students.csv")
	importCmd.Flags().String("attendance", "", "Path to attendance.csv")
	importCmd.Flags().Bool("json", false, "Output as JSON")
}

// ImportResult represents the result of an import run
type ImportResult struct {
	StudentsImported int    `json:"students_imported"`
	StudentsSkipped  int    `json:"students_skipped"`
	EventsImported   int    `json:"events_imported"`
	EventsSkipped    int    `json:"events_skipped"`
	Errors           int    `json:"errors"`
	DurationMs       int64  `json:"duration_ms"`
}

func newImportBar(n int, description string, quiet bool) *progressbar.ProgressBar {
	if quiet {
		return nil
	}
	return progressbar.NewOptions(n,
		progressbar.OptionSetDescription(description),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("rows"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionFullWidth(),
	)
}

// importStudents enrolls legacy students directly into the store. Field rules
// are not re-applied to historical identifiers, embeddings are still validated.
func importStudents(ctx context.Context, store *enrollment.Store, path string, result *ImportResult, quiet bool) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	students, rowErrs, err := legacy.ReadStudents(f)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	reportRowErrors(path, rowErrs, result, quiet)

	bar := newImportBar(len(students), "Importing students", quiet)
	now := time.Now().UTC()
	for _, s := range students {
		err := store.Insert(ctx, database.EnrollmentRecord{
			IdentityID:  s.IdentityID,
			DisplayName: s.Name,
			Group:       s.Department,
			ImageRef:    s.ImagePath,
			Embedding:   s.Embedding,
			CreatedAt:   now,
		})
		switch {
		case err == nil:
			result.StudentsImported++
		case errors.Is(err, database.ErrDuplicateIdentity):
			result.StudentsSkipped++
		case errors.Is(err, database.ErrStorageUnavailable):
			return err
		default:
			result.Errors++
			if !quiet {
				fmt.Fprintf(os.Stderr, "\n%s:%d: %v\n", path, s.Line, err)
			}
		}
		if bar != nil {
			bar.Add(1)
		}
	}
	if bar != nil {
		fmt.Println()
	}
	return nil
}

// importEvents appends legacy events to the ledger, skipping duplicates.
func importEvents(ctx context.Context, ledger *attendance.Ledger, loc *time.Location, path string, result *ImportResult, quiet bool) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	events, rowErrs, err := legacy.ReadAttendance(f, loc)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	reportRowErrors(path, rowErrs, result, quiet)

	bar := newImportBar(len(events), "Importing attendance", quiet)
	for _, ev := range events {
		_, err := ledger.Import(ctx, ev)
		switch {
		case err == nil:
			result.EventsImported++
		case errors.Is(err, database.ErrAlreadyRecorded):
			result.EventsSkipped++
		case errors.Is(err, database.ErrStorageUnavailable):
			return err
		default:
			result.Errors++
		}
		if bar != nil {
			bar.Add(1)
		}
	}
	if bar != nil {
		fmt.Println()
	}
	return nil
}

func reportRowErrors(path string, rowErrs []error, result *ImportResult, quiet bool) {
	result.Errors += len(rowErrs)
	if quiet {
		return
	}
	for _, e := range rowErrs {
		fmt.Fprintf(os.Stderr, "%s: %v\n", path, e)
	}
}

func runImport(cmd *cobra.Command, args []string) error {
	studentsPath := mustGetString(cmd, "students")
	attendancePath := mustGetString(cmd, "attendance")
	jsonOutput := mustGetBool(cmd, "json")

	if studentsPath == "" && attendancePath == "" {
		return errors.New("at least one of --students or --attendance is required")
	}

	ctx := context.Background()
	cfg := config.Load()
	startTime := time.Now()

	a, err := openApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	var result ImportResult
	if studentsPath != "" {
		if err := importStudents(ctx, a.store, studentsPath, &result, jsonOutput); err != nil {
			return err
		}
	}
	if attendancePath != "" {
		if err := importEvents(ctx, a.ledger, cfg.Attendance.Location(), attendancePath, &result, jsonOutput); err != nil {
			return err
		}
	}

	duration := time.Since(startTime)
	result.DurationMs = duration.Milliseconds()

	if jsonOutput {
		return outputJSON(result)
	}

	fmt.Println("\nImport complete!")
	if studentsPath != "" {
		fmt.Printf("  Students imported: %d\n", result.StudentsImported)
		fmt.Printf("  Students skipped:  %d\n", result.StudentsSkipped)
	}
	if attendancePath != "" {
		fmt.Printf("  Events imported:   %d\n", result.EventsImported)
		fmt.Printf("  Events skipped:    %d\n", result.EventsSkipped)
	}
	if result.Errors > 0 {
		fmt.Printf("  Errors:            %d\n", result.Errors)
	}
	fmt.Printf("  Duration:          %s\n", formatDuration(duration))
	return nil
}
