package cmd

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/wegman-software/airspace-go/internal/airspace"
	"github.com/wegman-software/airspace-go/internal/filter"
	"github.com/wegman-software/airspace-go/internal/logger"
)

var (
	prefsEnabled         bool
	prefsShowFiltered    bool
	prefsExcludedTypes   []string
	prefsExcludedClasses []string
	prefsMaxAltitude     float64
	prefsDisplay         map[string]string
)

var prefsCmd = &cobra.Command{
	Use:   "prefs",
	Short: "Show or change the airspace filter preferences",
	Long: `Manage the filter preferences stored in --prefs.

Filtered airspaces stay in the dataset; they are only hidden from point
queries and overlays (or shown marked when show-filtered is on). An airspace
is filtered when its type or ICAO class is excluded, or when its lower
limit is above the maximum altitude.`,
}

var prefsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the current preferences",
	Run:   runPrefsShow,
}

var prefsSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Change preferences; unset flags keep their value",
	Long: `Change preferences. Only the flags given are changed.

Examples:
  airspace-go prefs set --exclude-types FIR,UIR --max-altitude 12500
  airspace-go prefs set --exclude-classes E,G --show-filtered
  airspace-go prefs set --display labels=false`,
	Run: runPrefsSet,
}

var prefsResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Restore the default preferences",
	Run: func(cmd *cobra.Command, args []string) {
		store := filter.NewFileStore(cfg.PrefsFile)
		if err := store.Save(context.Background(), filter.DefaultPreferences()); err != nil {
			exitWithError("Failed to save preferences", err)
		}
		logger.Get().Info("Preferences reset", zap.String("path", store.Path()))
	},
}

func init() {
	rootCmd.AddCommand(prefsCmd)
	prefsCmd.AddCommand(prefsShowCmd)
	prefsCmd.AddCommand(prefsSetCmd)
	prefsCmd.AddCommand(prefsResetCmd)

	prefsSetCmd.Flags().BoolVar(&prefsEnabled, "enabled", true, "Apply the filter")
	prefsSetCmd.Flags().BoolVar(&prefsShowFiltered, "show-filtered", false, "Show filtered airspaces, marked, instead of hiding them")
	prefsSetCmd.Flags().StringSliceVar(&prefsExcludedTypes, "exclude-types", nil, "Excluded airspace types (abbreviations or codes; empty clears)")
	prefsSetCmd.Flags().StringSliceVar(&prefsExcludedClasses, "exclude-classes", nil, "Excluded ICAO classes (A-G, none; empty clears)")
	prefsSetCmd.Flags().Float64Var(&prefsMaxAltitude, "max-altitude", 0, "Hide airspaces whose lower limit is above this many feet (0 = no limit)")
	prefsSetCmd.Flags().StringToStringVar(&prefsDisplay, "display", nil, "Display toggles, e.g. labels=false,legend=true")
}

func runPrefsShow(cmd *cobra.Command, args []string) {
	prefs, err := filter.NewFileStore(cfg.PrefsFile).Load(context.Background())
	if err != nil {
		exitWithError("Failed to load preferences", err)
	}
	out, err := yaml.Marshal(prefs)
	if err != nil {
		exitWithError("Failed to encode preferences", err)
	}
	fmt.Printf("# %s\n", cfg.PrefsFile)
	os.Stdout.Write(out)
}

func runPrefsSet(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	store := filter.NewFileStore(cfg.PrefsFile)

	prefs, err := store.Load(ctx)
	if err != nil {
		exitWithError("Failed to load preferences", err)
	}

	flags := cmd.Flags()
	if flags.Changed("enabled") {
		prefs.Enabled = prefsEnabled
	}
	if flags.Changed("show-filtered") {
		prefs.ShowFiltered = prefsShowFiltered
	}
	if flags.Changed("exclude-types") {
		prefs.ExcludedTypes, err = parseTypes(prefsExcludedTypes)
		if err != nil {
			exitWithError("Invalid airspace type", err)
		}
	}
	if flags.Changed("exclude-classes") {
		prefs.ExcludedClasses, err = parseClasses(prefsExcludedClasses)
		if err != nil {
			exitWithError("Invalid ICAO class", err)
		}
	}
	if flags.Changed("max-altitude") {
		prefs.MaxAltitudeFt = prefsMaxAltitude
	}
	for key, value := range prefsDisplay {
		on, err := strconv.ParseBool(value)
		if err != nil {
			exitWithError("Invalid display toggle", fmt.Errorf("%s=%s: %w", key, value, err))
		}
		prefs.Display[key] = on
	}

	if err := store.Save(ctx, prefs); err != nil {
		exitWithError("Failed to save preferences", err)
	}

	logger.Get().Info("Preferences saved",
		zap.String("path", store.Path()),
		zap.Bool("enabled", prefs.Enabled),
		zap.Int("excluded_types", len(prefs.ExcludedTypes)),
		zap.Int("excluded_classes", len(prefs.ExcludedClasses)),
		zap.Float64("max_altitude_ft", prefs.MaxAltitudeFt),
	)
}

func parseTypes(values []string) ([]airspace.Type, error) {
	out := make([]airspace.Type, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v == "" {
			continue
		}
		t, err := airspace.ParseType(v)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func parseClasses(values []string) ([]airspace.ICAOClass, error) {
	out := make([]airspace.ICAOClass, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v == "" {
			continue
		}
		c, err := airspace.ParseICAOClass(v)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}
