package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var clearSymbol string

func init() {
	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Clear cached segments",
		Long:  `Clear removes cached segment data. With --symbol, only that symbol's segments are dropped; otherwise every segment file and index entry is removed.`,
		RunE:  runClear,
	}
	clearCmd.Flags().StringVar(&clearSymbol, "symbol", "", "clear only this symbol (default: all)")
	rootCmd.AddCommand(clearCmd)
}

func runClear(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	c, err := openCache(cfg, newLogger())
	if err != nil {
		return err
	}

	if err := c.Clear(clearSymbol); err != nil {
		return fmt.Errorf("clear: %w", err)
	}

	if clearSymbol == "" {
		fmt.Println("cache cleared")
	} else {
		fmt.Printf("cleared segments for %s\n", clearSymbol)
	}
	return nil
}
