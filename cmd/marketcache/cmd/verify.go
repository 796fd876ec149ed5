package cmd

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/javi11/marketcache/internal/segindex"
	"github.com/javi11/marketcache/internal/segstore"
)

func init() {
	rootCmd.AddCommand(&cobra.Command{
		Use:   "verify",
		Short: "Check the segment index against the on-disk .seg files",
		Long:  `verify loads the persisted segment index and cross-checks it against the .seg files actually present in the cache directory, reporting index entries with no backing file and files on disk the index does not reference.`,
		RunE:  runVerify,
	})
}

func runVerify(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	fs := afero.NewOsFs()
	log := newLogger()

	idx, err := segindex.New(fs, cfg.CacheDir, log)
	if err != nil {
		return fmt.Errorf("load index: %w", err)
	}

	onDisk := make(map[string]struct{})
	entries, err := afero.ReadDir(fs, cfg.CacheDir)
	if err != nil {
		return fmt.Errorf("read cache dir %s: %w", cfg.CacheDir, err)
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), segstore.SegmentExt) {
			continue
		}
		onDisk[e.Name()] = struct{}{}
	}

	segments := idx.AllSegments()
	referenced := make(map[string]struct{}, len(segments))

	var missingFiles []string
	for _, seg := range segments {
		referenced[seg.FilePath] = struct{}{}
		if _, ok := onDisk[seg.FilePath]; !ok {
			missingFiles = append(missingFiles, fmt.Sprintf("%s %s [%s, %s] -> %s", seg.Symbol, seg.DataType, seg.Start, seg.End, seg.FilePath))
		}
	}

	var orphanFiles []string
	for name := range onDisk {
		if _, ok := referenced[name]; !ok {
			orphanFiles = append(orphanFiles, name)
		}
	}
	sort.Strings(missingFiles)
	sort.Strings(orphanFiles)

	if len(missingFiles) == 0 && len(orphanFiles) == 0 {
		fmt.Printf("ok: %d segments, all backed by files\n", len(segments))
		return nil
	}

	for _, m := range missingFiles {
		fmt.Printf("missing file: %s\n", m)
	}
	for _, o := range orphanFiles {
		fmt.Printf("orphan file:  %s\n", o)
	}
	return fmt.Errorf("verify: %d missing, %d orphaned", len(missingFiles), len(orphanFiles))
}
