package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/natefinch/lumberjack"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/javi11/marketcache/internal/cache"
	"github.com/javi11/marketcache/internal/cacheconfig"
	"github.com/javi11/marketcache/internal/segstore"
)

var (
	configFile string
	logFile    string
	jsonLogs   bool
)

var rootCmd = &cobra.Command{
	Use:   "marketcache",
	Short: "Operate a market-data segment cache directory",
	Long:  `marketcache inspects, clears, and verifies the segment cache directory used by the cache library, without requiring a live data provider.`,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "path to config file (default: ./marketcache.yaml)")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "rotate logs to this file instead of stderr")
	rootCmd.PersistentFlags().BoolVar(&jsonLogs, "json-logs", false, "emit structured JSON logs")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func newLogger() *slog.Logger {
	var handler slog.Handler
	var w *os.File = os.Stderr

	if logFile != "" {
		rotator := &lumberjack.Logger{
			Filename:   logFile,
			MaxSize:    50, // megabytes
			MaxBackups: 5,
			MaxAge:     28, // days
			Compress:   true,
		}
		if jsonLogs {
			handler = slog.NewJSONHandler(rotator, nil)
		} else {
			handler = slog.NewTextHandler(rotator, nil)
		}
		return slog.New(handler)
	}

	if jsonLogs {
		handler = slog.NewJSONHandler(w, nil)
	} else {
		handler = slog.NewTextHandler(w, nil)
	}
	return slog.New(handler)
}

func loadConfig() (cacheconfig.Config, error) {
	path := configFile
	if path == "" {
		path = "marketcache.yaml"
	}
	return cacheconfig.Load(path)
}

func openCache(cfg cacheconfig.Config, log *slog.Logger) (*cache.Cache, error) {
	fs := afero.NewOsFs()
	c, err := cache.New(fs, cfg.CacheDir, log, segstore.WithCompression(cfg.SegmentCompression))
	if err != nil {
		return nil, fmt.Errorf("open cache at %s: %w", cfg.CacheDir, err)
	}
	return c, nil
}
