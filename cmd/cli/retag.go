package main

import (
	"context"
	"fmt"

	"github.com/commongroundz/backend/internal/database"
	"github.com/commongroundz/backend/internal/models"
	"github.com/commongroundz/backend/internal/tags"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

var retagBatchSize int

var retagCmd = &cobra.Command{
	Use:   "retag",
	Short: "Re-run the hashtag pipeline over all existing posts",
	Long: `Walks every post in the database and re-runs hashtag extraction and
persistence. Useful after changing the hashtag grammar or importing
posts that predate hashtag support. Re-processing is idempotent, so
running this on already-tagged posts changes nothing.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		// No bus: nothing is subscribed in a one-shot CLI process
		svc := tags.NewService(tags.NewGormStore(database.DB), nil)
		ctx := context.Background()

		var processed, failed int
		var batch []models.Post
		result := database.DB.FindInBatches(&batch, retagBatchSize, func(tx *gorm.DB, _ int) error {
			for _, post := range batch {
				if !svc.ProcessPostContent(ctx, post.ID, post.Title, post.Content) {
					failed++
				}
				processed++
			}
			return nil
		})
		if result.Error != nil {
			return fmt.Errorf("retag walk failed after %d posts: %w", processed, result.Error)
		}

		fmt.Printf("Processed %d posts (%d with persistence failures)\n", processed, failed)
		return nil
	},
}

func init() {
	retagCmd.Flags().IntVar(&retagBatchSize, "batch-size", 200, "posts per database batch")
}
