package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/spf13/cobra"
)

var markCmd = &cobra.Command{
	Use:   "mark",
	Short: "Mark attendance for a probe face",
	Long: `Identify a probe face against the enrolled gallery and record attendance.

Examples:
  # Check in from a camera snapshot
  face-attendance mark --image snapshot.jpg

  # Check out with a precomputed probe embedding
  face-attendance mark --embedding @probe.json --status checkout

  # Only identify, record nothing
  face-attendance mark --image snapshot.jpg --dry-run`,
	RunE: runMark,
}

func init() {
	rootCmd.AddCommand(markCmd)

	markCmd.Flags().String("image", "", "Probe face image")
	markCmd.Flags().String("embedding", "", "Probe embedding as JSON array, comma-separated list or @file")
	markCmd.Flags().String("status", "", "Attendance status (default Check-In)")
	markCmd.Flags().Bool("dry-run", false, "Identify only, do not record attendance")
	markCmd.Flags().Bool("json", false, "Output as JSON")
}

func runMark(cmd *cobra.Command, args []string) error {
	imagePath := mustGetString(cmd, "image")
	embeddingArg := mustGetString(cmd, "embedding")
	status := database.ParseStatus(mustGetString(cmd, "status"))
	dryRun := mustGetBool(cmd, "dry-run")
	jsonOutput := mustGetBool(cmd, "json")

	if (imagePath == "") == (embeddingArg == "") {
		return errors.New("exactly one of --image or --embedding is required")
	}
	if dryRun && imagePath != "" {
		return errors.New("--dry-run requires --embedding")
	}

	ctx := context.Background()
	a, err := openApp(ctx, config.Load())
	if err != nil {
		return err
	}
	defer a.Close()

	var ev database.AttendanceEvent
	switch {
	case imagePath != "":
		image, err := os.ReadFile(imagePath)
		if err != nil {
			return fmt.Errorf("failed to read image: %w", err)
		}
		ev, err = a.attendance.MarkImage(ctx, image, status, time.Now())
		if err != nil {
			return explainMarkError(err)
		}
	default:
		probe, err := readEmbeddingArg(embeddingArg)
		if err != nil {
			return err
		}
		if dryRun {
			result, err := a.attendance.Identify(probe)
			if err != nil {
				return explainMarkError(err)
			}
			if jsonOutput {
				return outputJSON(result)
			}
			fmt.Printf("Matched %s (%s) at distance %.4f\n", result.IdentityID, result.DisplayName, result.Distance)
			return nil
		}
		ev, err = a.attendance.MarkWithStatus(ctx, probe, status, time.Now())
		if err != nil {
			return explainMarkError(err)
		}
	}

	if jsonOutput {
		return outputJSON(ev)
	}
	fmt.Printf("%s: %s (%s) on %s at %s\n", ev.Status, ev.DisplayName, ev.IdentityID, ev.Date, ev.Time)
	return nil
}

// explainMarkError turns typed attendance errors into operator-friendly messages.
func explainMarkError(err error) error {
	var cooldown *database.CooldownError
	var noMatch *database.NoMatchError
	switch {
	case errors.As(err, &cooldown):
		return fmt.Errorf("%s was marked moments ago, try again in %s: %w",
			cooldown.IdentityID, cooldown.Remaining.Round(time.Second), err)
	case errors.As(err, &noMatch):
		return fmt.Errorf("face not recognised (closest distance %.4f): %w", noMatch.Distance, err)
	case errors.Is(err, database.ErrAlreadyRecorded):
		return fmt.Errorf("attendance already recorded today: %w", err)
	case errors.Is(err, database.ErrNoEnrollments):
		return fmt.Errorf("nobody is enrolled yet: %w", err)
	default:
		return fmt.Errorf("marking attendance failed: %w", err)
	}
}
