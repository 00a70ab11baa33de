package cmd

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wegman-software/airspace-go/internal/logger"
	"github.com/wegman-software/airspace-go/internal/parquet"
)

var exportFile string

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the airspace dataset to a Parquet file",
	Long: `Write the loaded dataset (after the bbox filter) to a zstd-compressed
Parquet file with one row per airspace. Limits are stored as value, unit and
datum columns plus a normalized feet column; the geometry is WKB.

The file can be read back with --input <file>.parquet.`,
	Run: runExport,
}

func init() {
	rootCmd.AddCommand(exportCmd)

	exportCmd.Flags().StringVarP(&exportFile, "file", "f", "", "Output file (default <output-dir>/airspaces.parquet)")
}

func runExport(cmd *cobra.Command, args []string) {
	log := logger.Get()
	start := time.Now()

	list, source, err := loadDataset(context.Background())
	if err != nil {
		exitWithError("Failed to load airspaces", err)
	}

	path := exportFile
	if path == "" {
		if err := os.MkdirAll(cfg.OutputDir, 0755); err != nil {
			exitWithError("Failed to create output directory", err)
		}
		path = filepath.Join(cfg.OutputDir, "airspaces.parquet")
	}

	n, err := parquet.WriteFile(path, list)
	if err != nil {
		exitWithError("Export failed", err)
	}

	log.Info("Export complete",
		zap.String("source", source),
		zap.String("file", path),
		zap.Int("rows", n),
		zap.Duration("duration", time.Since(start)),
	)
}
