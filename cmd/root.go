package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/wegman-software/airspace-go/internal/config"
	"github.com/wegman-software/airspace-go/internal/logger"
)

var (
	cfg             = config.DefaultConfig()
	configFile      string
	bboxSpec        string
	verbose         bool
	logFile         string
	metricsInterval time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "airspace-go",
	Short: "Airspace query and overlay engine",
	Long: `airspace-go loads OpenAIP airspace exports and answers the questions a
map client asks about them:

  - which airspaces contain a point, lowest first
  - which airspace layers to draw for a viewport, each clipped against the
    layers below it and styled per type and ICAO class

Data comes from a GeoJSON file (--input), a Parquet export or the fetch cache
(airspace-go fetch). It can be persisted to PostGIS (import) and served over
HTTP (serve).`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if configFile != "" {
			if err := applyConfigFile(cmd, configFile); err != nil {
				logger.Init(verbose)
				exitWithError("Failed to load config file", err)
			}
		}
		if bboxSpec != "" {
			bbox, err := config.ParseBBox(bboxSpec)
			if err != nil {
				logger.Init(verbose)
				exitWithError("Invalid bounding box", err)
			}
			cfg.BBoxSpec = bboxSpec
			cfg.BBox = bbox
		}

		if verbose {
			cfg.Verbose = true
		}
		if logFile != "" {
			cfg.LogFile = logFile
		}
		if metricsInterval > 0 {
			cfg.MetricsInterval = metricsInterval
		}

		if cfg.LogFile != "" {
			logger.InitWithFile(cfg.Verbose, cfg.LogFile)
		} else {
			logger.Init(cfg.Verbose)
		}
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Sync()
	},
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "YAML configuration file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Write JSON logs to file (rotated)")
	rootCmd.PersistentFlags().DurationVar(&metricsInterval, "metrics-interval", 0, "Interval for system metrics logging (default 30s)")
	rootCmd.PersistentFlags().IntVarP(&cfg.Workers, "workers", "w", cfg.Workers, "Number of parallel clipping workers")

	// Data flags
	rootCmd.PersistentFlags().StringVarP(&cfg.InputFile, "input", "i", cfg.InputFile, "Airspace GeoJSON or Parquet file")
	rootCmd.PersistentFlags().StringVar(&cfg.DataDir, "data-dir", cfg.DataDir, "Directory for fetched exports and fetch state")
	rootCmd.PersistentFlags().StringVarP(&bboxSpec, "bbox", "b", "", "Bounding box filter: minlon,minlat,maxlon,maxlat or a region name")
	rootCmd.PersistentFlags().StringVar(&cfg.PrefsFile, "prefs", cfg.PrefsFile, "Filter preferences file")
	rootCmd.PersistentFlags().StringVar(&cfg.StyleFile, "style", cfg.StyleFile, "Style YAML file")
	rootCmd.PersistentFlags().StringVarP(&cfg.OutputDir, "output-dir", "o", cfg.OutputDir, "Output directory for exports")

	// Database flags (persistent so they're available to all subcommands)
	rootCmd.PersistentFlags().StringVar(&cfg.DBHost, "db-host", cfg.DBHost, "PostgreSQL host")
	rootCmd.PersistentFlags().IntVar(&cfg.DBPort, "db-port", cfg.DBPort, "PostgreSQL port")
	rootCmd.PersistentFlags().StringVarP(&cfg.DBName, "db-name", "d", cfg.DBName, "PostgreSQL database name")
	rootCmd.PersistentFlags().StringVarP(&cfg.DBUser, "db-user", "U", cfg.DBUser, "PostgreSQL user")
	rootCmd.PersistentFlags().StringVarP(&cfg.DBPassword, "db-password", "W", cfg.DBPassword, "PostgreSQL password")
	rootCmd.PersistentFlags().StringVar(&cfg.DBSchema, "db-schema", cfg.DBSchema, "PostgreSQL schema")
}

// applyConfigFile loads path into cfg. Flags set on the command line win
// over values from the file.
func applyConfigFile(cmd *cobra.Command, path string) error {
	changed := map[string]string{}
	cmd.Flags().Visit(func(f *pflag.Flag) {
		changed[f.Name] = f.Value.String()
	})

	if err := cfg.LoadFile(path); err != nil {
		return err
	}

	for name, value := range changed {
		if err := cmd.Flags().Set(name, value); err != nil {
			return fmt.Errorf("flag --%s: %w", name, err)
		}
	}
	return nil
}

func exitWithError(msg string, err error) {
	log := logger.Get()
	if err != nil {
		log.Error(msg, zap.Error(err))
	} else {
		log.Error(msg)
	}
	os.Exit(1)
}
