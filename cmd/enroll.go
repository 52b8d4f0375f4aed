package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/enrollment"
	"github.com/spf13/cobra"
)

var enrollCmd = &cobra.Command{
	Use:   "enroll",
	Short: "Enroll an identity from a face image or an embedding",
	Long: `Enroll a new identity. The embedding is either extracted from --image by the
embedding service, or given directly with --embedding as a JSON array, a
comma-separated list or @file.

Examples:
  # Enroll from a photo
  face-attendance enroll --name "Ada Obi" --id U20/ABC/DEF/1234 --group CSC --image ada.jpg

  # Enroll from a precomputed embedding
  face-attendance enroll --name "Ada Obi" --id U20/ABC/DEF/1234 --group CSC --embedding @ada.json`,
	RunE: runEnroll,
}

func init() {
	rootCmd.AddCommand(enrollCmd)

	enrollCmd.Flags().String("name", "", "Display name")
	enrollCmd.Flags().String("id", "", "Identity ID (matriculation number)")
	enrollCmd.Flags().String("group", "", "Group (department)")
	enrollCmd.Flags().String("image", "", "Face image to extract the embedding from")
	enrollCmd.Flags().String("embedding", "", "Embedding as JSON array, comma-separated list or @file")
	enrollCmd.Flags().Bool("json", false, "Output as JSON")
}

func runEnroll(cmd *cobra.Command, args []string) error {
	imagePath := mustGetString(cmd, "image")
	embeddingArg := mustGetString(cmd, "embedding")
	jsonOutput := mustGetBool(cmd, "json")

	if (imagePath == "") == (embeddingArg == "") {
		return errors.New("exactly one of --image or --embedding is required")
	}

	req := enrollment.RegisterRequest{
		Name:       mustGetString(cmd, "name"),
		IdentityID: mustGetString(cmd, "id"),
		Group:      mustGetString(cmd, "group"),
	}

	ctx := context.Background()
	a, err := openApp(ctx, config.Load())
	if err != nil {
		return err
	}
	defer a.Close()

	var image []byte
	if imagePath != "" {
		image, err = os.ReadFile(imagePath)
		if err != nil {
			return fmt.Errorf("failed to read image: %w", err)
		}
	} else {
		req.Embedding, err = readEmbeddingArg(embeddingArg)
		if err != nil {
			return err
		}
	}

	if image != nil {
		_, err = a.enrollments.RegisterImage(ctx, req, image)
	} else {
		_, err = a.enrollments.Register(ctx, req)
	}
	if err != nil {
		return fmt.Errorf("enrollment failed: %w", err)
	}

	rec, _ := a.store.FindByID(req.IdentityID)
	if jsonOutput {
		return outputJSON(map[string]any{
			"identity_id": rec.IdentityID,
			"name":        rec.DisplayName,
			"group":       rec.Group,
			"image_ref":   rec.ImageRef,
			"dim":         rec.Dim(),
		})
	}

	fmt.Printf("Enrolled %s (%s, %s)\n", rec.IdentityID, rec.DisplayName, rec.Group)
	fmt.Printf("  Embedding dimension: %d\n", rec.Dim())
	if rec.ImageRef != "" {
		fmt.Printf("  Image: %s\n", rec.ImageRef)
	}
	fmt.Printf("  Total enrolled: %d\n", a.store.Len())
	return nil
}
