package main

import (
	"fmt"
	"log"
	"os"

	"github.com/commongroundz/backend/internal/config"
	"github.com/commongroundz/backend/internal/database"
	"github.com/commongroundz/backend/internal/logger"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "groundz",
	Short: "Common Groundz admin CLI - maintenance tasks against the database",
	Long: `Common Groundz admin CLI runs maintenance tasks directly against the
database: backfilling hashtags for existing posts, inspecting trending
tags, and similar one-off operations.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := godotenv.Load(); err != nil {
			log.Println("Warning: .env file not found, using system environment variables")
		}

		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		if err := logger.Initialize("warn", cfg.LogFile); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		if err := database.Initialize(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		database.Close()
	},
}

func init() {
	rootCmd.AddCommand(retagCmd)
	rootCmd.AddCommand(trendingCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
