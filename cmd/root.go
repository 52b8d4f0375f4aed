package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "face-attendance",
	Short: "Face recognition attendance register",
	Long: `Face Attendance enrolls people by their face embedding and records
attendance by matching probe faces against the enrolled gallery.

Embeddings come from an InsightFace-compatible HTTP service, enrollments and
events are stored in SQLite, PostgreSQL (pgvector) or MySQL.`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}
