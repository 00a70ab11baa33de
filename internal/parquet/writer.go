package parquet

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/memory"
	"github.com/apache/arrow/go/v14/parquet"
	"github.com/apache/arrow/go/v14/parquet/compress"
	"github.com/apache/arrow/go/v14/parquet/file"
	"github.com/apache/arrow/go/v14/parquet/pqarrow"

	"github.com/wegman-software/airspace-go/internal/airspace"
	"github.com/wegman-software/airspace-go/internal/wkb"
)

// DefaultBatchSize is the number of rows buffered per record batch
const DefaultBatchSize = 10000

// Schema is the airspace export layout. Geometry is plain WKB in EPSG:4326.
var Schema = arrow.NewSchema([]arrow.Field{
	{Name: "id", Type: arrow.BinaryTypes.String, Nullable: false},
	{Name: "name", Type: arrow.BinaryTypes.String, Nullable: false},
	{Name: "type", Type: arrow.BinaryTypes.String, Nullable: false},
	{Name: "icao_class", Type: arrow.BinaryTypes.String, Nullable: false},
	{Name: "country", Type: arrow.BinaryTypes.String, Nullable: false},
	{Name: "lower_value", Type: arrow.PrimitiveTypes.Float64, Nullable: false},
	{Name: "lower_unit", Type: arrow.PrimitiveTypes.Int8, Nullable: false},
	{Name: "lower_datum", Type: arrow.PrimitiveTypes.Int8, Nullable: false},
	{Name: "upper_value", Type: arrow.PrimitiveTypes.Float64, Nullable: false},
	{Name: "upper_unit", Type: arrow.PrimitiveTypes.Int8, Nullable: false},
	{Name: "upper_datum", Type: arrow.PrimitiveTypes.Int8, Nullable: false},
	{Name: "lower_ft", Type: arrow.PrimitiveTypes.Float64, Nullable: false},
	{Name: "upper_ft", Type: arrow.PrimitiveTypes.Float64, Nullable: false},
	{Name: "geom_wkb", Type: arrow.BinaryTypes.Binary, Nullable: false},
}, nil)

const (
	colID = iota
	colName
	colType
	colClass
	colCountry
	colLowerValue
	colLowerUnit
	colLowerDatum
	colUpperValue
	colUpperUnit
	colUpperDatum
	colLowerFt
	colUpperFt
	colGeom
)

// AirspaceWriter writes airspaces to a zstd compressed Parquet file
type AirspaceWriter struct {
	file      *os.File
	writer    *pqarrow.FileWriter
	builder   *array.RecordBuilder
	enc       *wkb.Encoder
	batchSize int
	count     int
	total     int
}

// NewAirspaceWriter creates a new airspace Parquet writer
func NewAirspaceWriter(path string, batchSize int) (*AirspaceWriter, error) {
	if batchSize < 1 {
		batchSize = DefaultBatchSize
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}

	writerProps := parquet.NewWriterProperties(
		parquet.WithCompression(compress.Codecs.Zstd),
		parquet.WithDictionaryDefault(false),
	)

	writer, err := pqarrow.NewFileWriter(Schema, f, writerProps, pqarrow.DefaultWriterProps())
	if err != nil {
		f.Close()
		return nil, err
	}

	return &AirspaceWriter{
		file:      f,
		writer:    writer,
		builder:   array.NewRecordBuilder(memory.DefaultAllocator, Schema),
		enc:       wkb.NewEncoderWithSRID(4096, 0),
		batchSize: batchSize,
	}, nil
}

// Write writes one airspace record
func (w *AirspaceWriter) Write(a *airspace.Airspace) error {
	b := w.builder
	b.Field(colID).(*array.StringBuilder).Append(a.ID)
	b.Field(colName).(*array.StringBuilder).Append(a.Name)
	b.Field(colType).(*array.StringBuilder).Append(a.Type.Abbrev())
	b.Field(colClass).(*array.StringBuilder).Append(a.Class.Letter())
	b.Field(colCountry).(*array.StringBuilder).Append(a.Country)
	b.Field(colLowerValue).(*array.Float64Builder).Append(a.Lower.Value)
	b.Field(colLowerUnit).(*array.Int8Builder).Append(int8(a.Lower.Unit))
	b.Field(colLowerDatum).(*array.Int8Builder).Append(int8(a.Lower.Datum))
	b.Field(colUpperValue).(*array.Float64Builder).Append(a.Upper.Value)
	b.Field(colUpperUnit).(*array.Int8Builder).Append(int8(a.Upper.Unit))
	b.Field(colUpperDatum).(*array.Int8Builder).Append(int8(a.Upper.Datum))
	b.Field(colLowerFt).(*array.Float64Builder).Append(a.Lower.Feet())
	b.Field(colUpperFt).(*array.Float64Builder).Append(a.Upper.Feet())
	b.Field(colGeom).(*array.BinaryBuilder).Append(w.enc.EncodeMultiPolygon(a.Geometry))

	w.count++
	w.total++
	if w.count >= w.batchSize {
		return w.flush()
	}
	return nil
}

// Count returns the number of rows written so far
func (w *AirspaceWriter) Count() int {
	return w.total
}

func (w *AirspaceWriter) flush() error {
	if w.count == 0 {
		return nil
	}
	rec := w.builder.NewRecord()
	defer rec.Release()
	err := w.writer.Write(rec)
	w.count = 0
	return err
}

// Close flushes buffered rows and closes the file
func (w *AirspaceWriter) Close() error {
	defer w.builder.Release()
	if err := w.flush(); err != nil {
		return err
	}
	if err := w.writer.Close(); err != nil {
		return err
	}
	if err := w.file.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
		return err
	}
	return nil
}

// WriteFile exports list to path
func WriteFile(path string, list []*airspace.Airspace) (int, error) {
	w, err := NewAirspaceWriter(path, DefaultBatchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to create parquet writer: %w", err)
	}
	for _, a := range list {
		if err := w.Write(a); err != nil {
			w.Close()
			return 0, fmt.Errorf("failed to write airspace %s: %w", a.ID, err)
		}
	}
	if err := w.Close(); err != nil {
		return 0, fmt.Errorf("failed to close parquet file: %w", err)
	}
	return w.Count(), nil
}

// ReadFile reads an airspace export back into records sorted by altitude
func ReadFile(ctx context.Context, path string) ([]*airspace.Airspace, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open parquet file: %w", err)
	}
	defer f.Close()

	pf, err := file.NewParquetReader(f)
	if err != nil {
		return nil, fmt.Errorf("failed to create parquet reader: %w", err)
	}
	defer pf.Close()

	arrowReader, err := pqarrow.NewFileReader(pf, pqarrow.ArrowReadProperties{}, memory.DefaultAllocator)
	if err != nil {
		return nil, fmt.Errorf("failed to create arrow reader: %w", err)
	}

	tbl, err := arrowReader.ReadTable(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read table: %w", err)
	}
	defer tbl.Release()

	if err := checkSchema(tbl.Schema()); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	list := make([]*airspace.Airspace, 0, tbl.NumRows())
	col := func(i int) *arrow.Chunked { return tbl.Column(i).Data() }

	for c := range col(colID).Chunks() {
		ids := col(colID).Chunk(c).(*array.String)
		names := col(colName).Chunk(c).(*array.String)
		types := col(colType).Chunk(c).(*array.String)
		classes := col(colClass).Chunk(c).(*array.String)
		countries := col(colCountry).Chunk(c).(*array.String)
		lowerV := col(colLowerValue).Chunk(c).(*array.Float64)
		lowerU := col(colLowerUnit).Chunk(c).(*array.Int8)
		lowerD := col(colLowerDatum).Chunk(c).(*array.Int8)
		upperV := col(colUpperValue).Chunk(c).(*array.Float64)
		upperU := col(colUpperUnit).Chunk(c).(*array.Int8)
		upperD := col(colUpperDatum).Chunk(c).(*array.Int8)
		geoms := col(colGeom).Chunk(c).(*array.Binary)

		for i := 0; i < ids.Len(); i++ {
			typ, err := airspace.ParseType(types.Value(i))
			if err != nil {
				return nil, fmt.Errorf("airspace %s: %w", ids.Value(i), err)
			}
			class, err := airspace.ParseICAOClass(classes.Value(i))
			if err != nil {
				return nil, fmt.Errorf("airspace %s: %w", ids.Value(i), err)
			}
			geom, err := wkb.DecodeMultiPolygon(geoms.Value(i))
			if err != nil {
				return nil, fmt.Errorf("airspace %s: %w", ids.Value(i), err)
			}

			lower, err := airspace.NewLimit(lowerV.Value(i), airspace.Unit(lowerU.Value(i)), airspace.Datum(lowerD.Value(i)))
			if err != nil {
				return nil, fmt.Errorf("airspace %s lower limit: %w", ids.Value(i), err)
			}
			upper, err := airspace.NewLimit(upperV.Value(i), airspace.Unit(upperU.Value(i)), airspace.Datum(upperD.Value(i)))
			if err != nil {
				return nil, fmt.Errorf("airspace %s upper limit: %w", ids.Value(i), err)
			}

			a := airspace.New(ids.Value(i), names.Value(i), typ, class, lower, upper, geom)
			a.Country = countries.Value(i)
			list = append(list, a)
		}
	}

	airspace.SortByAltitude(list)
	return list, nil
}

func checkSchema(got *arrow.Schema) error {
	if got.NumFields() != Schema.NumFields() {
		return fmt.Errorf("not an airspace export: %d columns, want %d", got.NumFields(), Schema.NumFields())
	}
	for i, f := range Schema.Fields() {
		if g := got.Field(i); g.Name != f.Name || !arrow.TypeEqual(g.Type, f.Type) {
			return fmt.Errorf("not an airspace export: column %d is %s %s, want %s %s", i, g.Name, g.Type, f.Name, f.Type)
		}
	}
	return nil
}
