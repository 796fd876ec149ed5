package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Print cache directory statistics",
		RunE:  runStats,
	})
}

func runStats(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	c, err := openCache(cfg, newLogger())
	if err != nil {
		return err
	}

	stats, err := c.Stats()
	if err != nil {
		return fmt.Errorf("collect stats: %w", err)
	}

	fmt.Printf("cache dir:        %s\n", cfg.CacheDir)
	fmt.Printf("hot segments:     %d (%d bytes est.)\n", stats.HotSegmentCount, stats.HotBytesEstimate)
	fmt.Printf("cold segments:    %d (%d bytes)\n", stats.ColdSegmentCount, stats.ColdBytes)
	fmt.Printf("symbols:          %d\n", len(stats.Symbols))
	for _, s := range stats.Symbols {
		fmt.Printf("  - %s\n", s)
	}
	if stats.OldestSegment != nil && stats.NewestSegment != nil {
		fmt.Printf("coverage:         %s .. %s\n", stats.OldestSegment.Format("2006-01-02"), stats.NewestSegment.Format("2006-01-02"))
	}
	return nil
}
