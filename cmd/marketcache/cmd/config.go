package cmd

import (
	"fmt"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/javi11/marketcache/internal/cacheconfig"
)

func init() {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage marketcache configuration",
	}
	configCmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		RunE:  runConfigInit,
	})
	rootCmd.AddCommand(configCmd)
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path := configFile
	if path == "" {
		path = "marketcache.yaml"
	}
	if err := cacheconfig.WriteDefault(afero.NewOsFs(), path); err != nil {
		return fmt.Errorf("write default config: %w", err)
	}
	fmt.Printf("wrote default config to %s\n", path)
	return nil
}
