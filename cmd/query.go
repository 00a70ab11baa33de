package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/wegman-software/airspace-go/internal/airspace"
	"github.com/wegman-software/airspace-go/internal/engine"
	"github.com/wegman-software/airspace-go/internal/filter"
	"github.com/wegman-software/airspace-go/internal/identify"
	"github.com/wegman-software/airspace-go/internal/store"
)

var (
	queryJSON    bool
	queryPostGIS bool
)

var queryCmd = &cobra.Command{
	Use:   "query <lat> <lon>",
	Short: "List the airspaces containing a point",
	Long: `List every airspace containing the point, sorted by lower limit, then
upper limit, then name.

Airspaces excluded by the filter preferences are dropped, or marked with
an F when showFiltered is set. The lowest non-filtered layer is marked
with an asterisk.

With --postgis the containment test runs in the database (ST_Contains)
instead of the in-memory index; filter preferences still apply.`,
	Args: cobra.ExactArgs(2),
	Run:  runQuery,
}

func init() {
	rootCmd.AddCommand(queryCmd)

	queryCmd.Flags().BoolVar(&queryJSON, "json", false, "Print JSON instead of a table")
	queryCmd.Flags().BoolVar(&queryPostGIS, "postgis", false, "Run the point query against the PostGIS table")
}

func parseLatLon(args []string) (float64, float64, error) {
	lat, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid latitude %q", args[0])
	}
	lon, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid longitude %q", args[1])
	}
	return lat, lon, identify.ValidateCoordinate(lat, lon)
}

func runQuery(cmd *cobra.Command, args []string) {
	ctx := context.Background()

	lat, lon, err := parseLatLon(args)
	if err != nil {
		exitWithError("Invalid coordinate", err)
	}

	var res engine.PointResult
	if queryPostGIS {
		res, err = queryDatabase(ctx, lat, lon)
	} else {
		res, err = queryEngine(ctx, lat, lon)
	}
	if err != nil {
		exitWithError("Point query failed", err)
	}

	if queryJSON {
		printQueryJSON(lat, lon, res)
		return
	}
	printQueryTable(res)
}

func queryEngine(ctx context.Context, lat, lon float64) (engine.PointResult, error) {
	e, cleanup, err := newEngine(ctx)
	if err != nil {
		return engine.PointResult{}, err
	}
	defer cleanup()
	return e.Query(ctx, lat, lon)
}

func queryDatabase(ctx context.Context, lat, lon float64) (engine.PointResult, error) {
	st, err := store.Open(ctx, cfg)
	if err != nil {
		return engine.PointResult{}, err
	}
	defer st.Close()

	list, err := st.AirspacesAt(ctx, lat, lon)
	if err != nil {
		return engine.PointResult{}, err
	}

	prefs, err := filter.NewFileStore(cfg.PrefsFile).Load(ctx)
	if err != nil {
		return engine.PointResult{}, err
	}
	entries := filter.Annotate(list, prefs)
	return engine.PointResult{
		Entries:   filter.Visible(entries, prefs),
		Highlight: filter.Highlighted(entries),
	}, nil
}

func printQueryTable(res engine.PointResult) {
	if len(res.Entries) == 0 {
		fmt.Println("No airspace at this position")
		return
	}

	highlight := make(map[string]bool, len(res.Highlight))
	for _, id := range res.Highlight {
		highlight[id] = true
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "\tTYPE\tCLASS\tLOWER\tUPPER\tNAME")
	for _, e := range res.Entries {
		a := e.Airspace
		mark := " "
		switch {
		case highlight[a.ID]:
			mark = "*"
		case e.Filtered:
			mark = "F"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			mark, a.Type.Abbrev(), classLabel(a.Class), a.Lower, a.Upper, a.Name)
	}
	tw.Flush()
}

func classLabel(c airspace.ICAOClass) string {
	if l := c.Letter(); l != "" {
		return l
	}
	return "-"
}

type queryEntry struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Type        string `json:"type"`
	Class       string `json:"icaoClass"`
	Lower       string `json:"lower"`
	Upper       string `json:"upper"`
	Filtered    bool   `json:"filtered"`
	Highlighted bool   `json:"highlighted"`
}

func printQueryJSON(lat, lon float64, res engine.PointResult) {
	highlight := make(map[string]bool, len(res.Highlight))
	for _, id := range res.Highlight {
		highlight[id] = true
	}

	entries := make([]queryEntry, 0, len(res.Entries))
	for _, e := range res.Entries {
		a := e.Airspace
		entries = append(entries, queryEntry{
			ID:          a.ID,
			Name:        a.Name,
			Type:        a.Type.Abbrev(),
			Class:       a.Class.String(),
			Lower:       a.Lower.String(),
			Upper:       a.Upper.String(),
			Filtered:    e.Filtered,
			Highlighted: highlight[a.ID],
		})
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(map[string]any{
		"lat":       lat,
		"lon":       lon,
		"airspaces": entries,
	})
}
