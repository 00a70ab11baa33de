package wkb

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/paulmach/orb"
	orbwkb "github.com/paulmach/orb/encoding/wkb"
)

// WKB type constants (ISO SQL/MM)
const (
	wkbPoint        = 1
	wkbPolygon      = 3
	wkbMultiPolygon = 6

	// SRID flag for EWKB (PostGIS extended WKB)
	wkbSRIDFlag = 0x20000000
)

// Common SRID constants
const (
	SRID4326 = 4326 // WGS84
	SRID3857 = 3857 // Web Mercator
)

// Encoder encodes airspace geometry to little-endian EWKB for PostGIS COPY.
// An SRID of 0 produces plain WKB.
type Encoder struct {
	buf  []byte
	srid uint32
}

// NewEncoder creates a new WKB encoder with pre-allocated buffer and default SRID 4326
func NewEncoder(initialSize int) *Encoder {
	return NewEncoderWithSRID(initialSize, SRID4326)
}

// NewEncoderWithSRID creates a new WKB encoder with specified SRID
func NewEncoderWithSRID(initialSize int, srid int) *Encoder {
	return &Encoder{
		buf:  make([]byte, 0, initialSize),
		srid: uint32(srid),
	}
}

// SRID returns the encoder's current SRID
func (e *Encoder) SRID() int {
	return int(e.srid)
}

// Reset clears the buffer for reuse
func (e *Encoder) Reset() {
	e.buf = e.buf[:0]
}

// Bytes returns the encoded bytes. The slice is reused by the next Encode call.
func (e *Encoder) Bytes() []byte {
	return e.buf
}

// EncodePoint encodes a point
func (e *Encoder) EncodePoint(p orb.Point) []byte {
	e.Reset()
	e.ensureCapacity(25)
	e.header(wkbPoint)
	e.appendPoint(p)
	return e.buf
}

// EncodePolygon encodes a polygon with its holes
func (e *Encoder) EncodePolygon(poly orb.Polygon) []byte {
	e.Reset()
	e.ensureCapacity(13 + polygonSize(poly))
	e.header(wkbPolygon)
	e.appendRings(poly)
	return e.buf
}

// EncodeMultiPolygon encodes a multipolygon. Nested polygons carry no SRID.
func (e *Encoder) EncodeMultiPolygon(mp orb.MultiPolygon) []byte {
	e.Reset()
	size := 13
	for _, poly := range mp {
		size += 9 + polygonSize(poly)
	}
	e.ensureCapacity(size)

	e.header(wkbMultiPolygon)
	e.appendUint32(uint32(len(mp)))
	for _, poly := range mp {
		e.buf = append(e.buf, 0x01)
		e.appendUint32(wkbPolygon)
		e.appendRings(poly)
	}
	return e.buf
}

// Copy returns an owned copy of the current buffer
func (e *Encoder) Copy() []byte {
	out := make([]byte, len(e.buf))
	copy(out, e.buf)
	return out
}

func polygonSize(poly orb.Polygon) int {
	n := 4
	for _, ring := range poly {
		n += 4 + len(ring)*16
	}
	return n
}

func (e *Encoder) header(geomType uint32) {
	e.buf = append(e.buf, 0x01) // little-endian
	if e.srid == 0 {
		e.appendUint32(geomType)
		return
	}
	e.appendUint32(geomType | wkbSRIDFlag)
	e.appendUint32(e.srid)
}

func (e *Encoder) appendRings(poly orb.Polygon) {
	e.appendUint32(uint32(len(poly)))
	for _, ring := range poly {
		e.appendUint32(uint32(len(ring)))
		for _, p := range ring {
			e.appendPoint(p)
		}
	}
}

func (e *Encoder) appendPoint(p orb.Point) {
	e.appendFloat64(p[0]) // lon
	e.appendFloat64(p[1]) // lat
}

// ensureCapacity grows the buffer if needed
func (e *Encoder) ensureCapacity(n int) {
	if cap(e.buf)-len(e.buf) < n {
		newBuf := make([]byte, len(e.buf), len(e.buf)+n)
		copy(newBuf, e.buf)
		e.buf = newBuf
	}
}

func (e *Encoder) appendUint32(v uint32) {
	e.buf = binary.LittleEndian.AppendUint32(e.buf, v)
}

func (e *Encoder) appendFloat64(v float64) {
	e.buf = binary.LittleEndian.AppendUint64(e.buf, math.Float64bits(v))
}

// DecodeMultiPolygon parses plain WKB (as returned by ST_AsBinary) into a
// multipolygon; a single polygon is promoted
func DecodeMultiPolygon(b []byte) (orb.MultiPolygon, error) {
	g, err := orbwkb.Unmarshal(b)
	if err != nil {
		return nil, fmt.Errorf("failed to decode WKB: %w", err)
	}
	switch v := g.(type) {
	case orb.MultiPolygon:
		return v, nil
	case orb.Polygon:
		return orb.MultiPolygon{v}, nil
	}
	return nil, fmt.Errorf("unexpected WKB geometry %s", g.GeoJSONType())
}
