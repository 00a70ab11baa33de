// Package store persists airspaces in PostGIS.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/wegman-software/airspace-go/internal/airspace"
	"github.com/wegman-software/airspace-go/internal/config"
	"github.com/wegman-software/airspace-go/internal/logger"
	"github.com/wegman-software/airspace-go/internal/wkb"
)

const (
	tableName = "airspaces"
	tempTable = "airspace_load_tmp"
)

var copyColumns = []string{
	"id", "name", "type", "icao_class", "country",
	"lower_value", "lower_unit", "lower_datum",
	"upper_value", "upper_unit", "upper_datum",
	"lower_ft", "upper_ft", "geom_wkb",
}

// Stats holds store statistics
type Stats struct {
	RowsLoaded int64
	Duration   time.Duration
}

// Store reads and writes the airspace table
type Store struct {
	pool   *pgxpool.Pool
	schema string
	log    *zap.Logger
}

// Open connects to PostgreSQL using cfg
func Open(ctx context.Context, cfg *config.Config) (*Store, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}
	poolConfig.MaxConns = int32(max(cfg.Workers, 2))

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}

	return &Store{pool: pool, schema: cfg.DBSchema, log: logger.Named("store")}, nil
}

// Close closes connections
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func (s *Store) table() string {
	return pgx.Identifier{s.schema, tableName}.Sanitize()
}

// EnsureSchema creates the PostGIS extension, schema, table and indexes
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS postgis"); err != nil {
		return fmt.Errorf("failed to create PostGIS extension: %w", err)
	}
	if s.schema != "public" {
		if _, err := s.pool.Exec(ctx, "CREATE SCHEMA IF NOT EXISTS "+pgx.Identifier{s.schema}.Sanitize()); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}

	for _, stmt := range schemaStatements(s.schema) {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create airspace table: %w", err)
		}
	}
	return nil
}

func schemaStatements(schema string) []string {
	tbl := pgx.Identifier{schema, tableName}.Sanitize()
	return []string{
		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				id TEXT PRIMARY KEY,
				name TEXT NOT NULL,
				type SMALLINT NOT NULL,
				icao_class SMALLINT NOT NULL,
				country TEXT,
				lower_value DOUBLE PRECISION NOT NULL,
				lower_unit SMALLINT NOT NULL,
				lower_datum SMALLINT NOT NULL,
				upper_value DOUBLE PRECISION NOT NULL,
				upper_unit SMALLINT NOT NULL,
				upper_datum SMALLINT NOT NULL,
				lower_ft DOUBLE PRECISION NOT NULL,
				upper_ft DOUBLE PRECISION NOT NULL,
				geom GEOMETRY(MultiPolygon, 4326) NOT NULL
			)`, tbl),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s USING GIST (geom)",
			pgx.Identifier{tableName + "_geom_idx"}.Sanitize(), tbl),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (lower_ft, upper_ft)",
			pgx.Identifier{tableName + "_limits_idx"}.Sanitize(), tbl),
	}
}

// Save replaces the stored dataset with list in one transaction
func (s *Store) Save(ctx context.Context, list []*airspace.Airspace) (*Stats, error) {
	start := time.Now()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	tempSQL := fmt.Sprintf(`
		DROP TABLE IF EXISTS %[1]s;
		CREATE TEMP TABLE %[1]s (
			id TEXT, name TEXT, type SMALLINT, icao_class SMALLINT, country TEXT,
			lower_value DOUBLE PRECISION, lower_unit SMALLINT, lower_datum SMALLINT,
			upper_value DOUBLE PRECISION, upper_unit SMALLINT, upper_datum SMALLINT,
			lower_ft DOUBLE PRECISION, upper_ft DOUBLE PRECISION,
			geom_wkb BYTEA
		) ON COMMIT DROP`, tempTable)
	if _, err := tx.Exec(ctx, tempSQL); err != nil {
		return nil, fmt.Errorf("failed to create temp table: %w", err)
	}

	rows := make(chan []any, 1024)
	go func() {
		defer close(rows)
		enc := wkb.NewEncoder(4096)
		for _, a := range list {
			select {
			case rows <- rowValues(a, enc):
			case <-ctx.Done():
				return
			}
		}
	}()

	count, err := tx.CopyFrom(ctx, pgx.Identifier{tempTable}, copyColumns, &rowSource{rows: rows, ctx: ctx})
	if err != nil {
		return nil, fmt.Errorf("COPY failed: %w", err)
	}

	if _, err := tx.Exec(ctx, "TRUNCATE "+s.table()); err != nil {
		return nil, fmt.Errorf("failed to truncate airspace table: %w", err)
	}

	insertSQL := fmt.Sprintf(`
		INSERT INTO %s
		SELECT id, name, type, icao_class, country,
			lower_value, lower_unit, lower_datum,
			upper_value, upper_unit, upper_datum,
			lower_ft, upper_ft,
			ST_Multi(ST_GeomFromEWKB(geom_wkb))
		FROM %s
		WHERE geom_wkb IS NOT NULL`, s.table(), tempTable)
	if _, err := tx.Exec(ctx, insertSQL); err != nil {
		return nil, fmt.Errorf("failed to insert from temp table: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit: %w", err)
	}

	if _, err := s.pool.Exec(ctx, "ANALYZE "+s.table()); err != nil {
		s.log.Warn("Failed to analyze airspace table", zap.Error(err))
	}

	stats := &Stats{RowsLoaded: count, Duration: time.Since(start)}
	s.log.Info("Airspaces stored", zap.Int64("rows", count), zap.Duration("duration", stats.Duration))
	return stats, nil
}

func rowValues(a *airspace.Airspace, enc *wkb.Encoder) []any {
	enc.EncodeMultiPolygon(a.Geometry)
	return []any{
		a.ID, a.Name, int16(a.Type), int16(a.Class), a.Country,
		a.Lower.Value, int16(a.Lower.Unit), int16(a.Lower.Datum),
		a.Upper.Value, int16(a.Upper.Unit), int16(a.Upper.Datum),
		a.Lower.Feet(), a.Upper.Feet(), enc.Copy(),
	}
}

const selectColumns = `id, name, type, icao_class, coalesce(country, ''),
	lower_value, lower_unit, lower_datum,
	upper_value, upper_unit, upper_datum,
	ST_AsBinary(geom)`

// Load reads every stored airspace
func (s *Store) Load(ctx context.Context) ([]*airspace.Airspace, error) {
	rows, err := s.pool.Query(ctx, fmt.Sprintf("SELECT %s FROM %s", selectColumns, s.table()))
	if err != nil {
		return nil, fmt.Errorf("failed to query airspaces: %w", err)
	}
	list, err := scanAll(rows)
	if err != nil {
		return nil, err
	}
	airspace.SortByAltitude(list)
	return list, nil
}

// AirspacesAt answers a point query in the database, sorted like the
// in-memory service
func (s *Store) AirspacesAt(ctx context.Context, lat, lon float64) ([]*airspace.Airspace, error) {
	q := fmt.Sprintf(`SELECT %s FROM %s
		WHERE ST_Contains(geom, ST_SetSRID(ST_MakePoint($1, $2), 4326))
		ORDER BY lower_ft, upper_ft, name, id`, selectColumns, s.table())
	rows, err := s.pool.Query(ctx, q, lon, lat)
	if err != nil {
		return nil, fmt.Errorf("failed to query airspaces at point: %w", err)
	}
	return scanAll(rows)
}

// Count returns the number of stored airspaces
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx, "SELECT count(*) FROM "+s.table()).Scan(&n)
	return n, err
}

func scanAll(rows pgx.Rows) ([]*airspace.Airspace, error) {
	defer rows.Close()

	var list []*airspace.Airspace
	for rows.Next() {
		var (
			id, name, country string
			typ, class        int16
			lowerV, upperV    float64
			lowerU, lowerD    int16
			upperU, upperD    int16
			geomWKB           []byte
		)
		if err := rows.Scan(&id, &name, &typ, &class, &country,
			&lowerV, &lowerU, &lowerD, &upperV, &upperU, &upperD, &geomWKB); err != nil {
			return nil, fmt.Errorf("failed to scan airspace row: %w", err)
		}

		geom, err := wkb.DecodeMultiPolygon(geomWKB)
		if err != nil {
			return nil, fmt.Errorf("airspace %s: %w", id, err)
		}

		lower, err := airspace.NewLimit(lowerV, airspace.Unit(lowerU), airspace.Datum(lowerD))
		if err != nil {
			return nil, fmt.Errorf("airspace %s lower limit: %w", id, err)
		}
		upper, err := airspace.NewLimit(upperV, airspace.Unit(upperU), airspace.Datum(upperD))
		if err != nil {
			return nil, fmt.Errorf("airspace %s upper limit: %w", id, err)
		}

		a := airspace.New(id, name, airspace.Type(typ), airspace.ICAOClass(class), lower, upper, geom)
		a.Country = country
		list = append(list, a)
	}
	return list, rows.Err()
}

// rowSource implements pgx.CopyFromSource for streaming rows
type rowSource struct {
	ctx     context.Context
	rows    <-chan []any
	current []any
}

func (r *rowSource) Next() bool {
	row, ok := <-r.rows
	if !ok {
		return false
	}
	r.current = row
	return true
}

func (r *rowSource) Values() ([]any, error) {
	return r.current, nil
}

func (r *rowSource) Err() error {
	return r.ctx.Err()
}
