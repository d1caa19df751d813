package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/commongroundz/backend/internal/database"
	"github.com/commongroundz/backend/internal/tags"
	"github.com/spf13/cobra"
)

var (
	trendingLimit int
	trendingJSON  bool
)

var trendingCmd = &cobra.Command{
	Use:   "trending",
	Short: "Print the current trending hashtags",
	RunE: func(cmd *cobra.Command, args []string) error {
		store := tags.NewGormStore(database.DB)
		trending, err := store.QueryTrendingTags(context.Background(), trendingLimit)
		if err != nil {
			return fmt.Errorf("trending query failed: %w", err)
		}

		if trendingJSON {
			return json.NewEncoder(os.Stdout).Encode(trending)
		}

		for i, tag := range trending {
			fmt.Printf("%2d. #%s  (%d uses, last %s)\n",
				i+1, tag.NormalizedKey, tag.UsageCount, tag.LastUsedAt.Format("2006-01-02"))
		}
		return nil
	},
}

func init() {
	trendingCmd.Flags().IntVar(&trendingLimit, "limit", 20, "number of tags to show")
	trendingCmd.Flags().BoolVar(&trendingJSON, "json", false, "output as JSON")
}
