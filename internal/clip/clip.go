// Package clip reduces overlapping airspace polygons so that only the lowest
// applicable layer is drawn at each point, and trims geometry to a viewport.
package clip

import (
	"math"
	"sort"

	polyclip "github.com/ctessum/polyclip-go"
	"github.com/paulmach/orb"
	orbclip "github.com/paulmach/orb/clip"
	"github.com/paulmach/orb/simplify"

	"github.com/wegman-software/airspace-go/internal/airspace"
	"github.com/wegman-software/airspace-go/internal/geom"
)

// Fragments smaller than this (square degrees) are dropped from clip results
const minFragmentArea = 1e-10

// Informational regions never hide the layers above them
var transparent = map[airspace.Type]bool{
	airspace.TypeFIR:       true,
	airspace.TypeUIR:       true,
	airspace.TypeACC:       true,
	airspace.TypeFISSector: true,
	airspace.TypeADIZ:      true,
}

// Occludes reports whether a can hide higher layers
func Occludes(a *airspace.Airspace) bool {
	return !transparent[a.Type]
}

// LowestLayer returns the part of target not covered by any airspace in
// others with strictly lower limits. Layers with the same lower and upper
// limit are co-lowest and do not clip each other. Records whose bounds do
// not touch the target are ignored, as is the target itself.
func LowestLayer(target *airspace.Airspace, others []*airspace.Airspace) orb.MultiPolygon {
	tb := target.Bound()

	var clipping polyclip.Polygon
	for _, o := range others {
		if o == nil || o.ID == target.ID || !Occludes(o) || !below(o, target) {
			continue
		}
		if !o.Bound().Intersects(tb) {
			continue
		}
		p := toPolyclip(o.Geometry)
		if len(p) == 0 {
			continue
		}
		if clipping == nil {
			clipping = p
			continue
		}
		clipping = clipping.Construct(polyclip.UNION, p)
	}

	if len(clipping) == 0 {
		return target.Geometry
	}

	result := toPolyclip(target.Geometry).Construct(polyclip.DIFFERENCE, clipping)
	return fromPolyclip(result)
}

// below reports whether a is strictly lower than b by (lower, upper) limit
func below(a, b *airspace.Airspace) bool {
	if la, lb := a.Lower.Feet(), b.Lower.Feet(); la != lb {
		return la < lb
	}
	return a.Upper.Feet() < b.Upper.Feet()
}

// ToViewport clips mp to the rectangle b
func ToViewport(mp orb.MultiPolygon, b orb.Bound) orb.MultiPolygon {
	if len(mp) == 0 {
		return nil
	}
	if !mp.Bound().Intersects(b) {
		return nil
	}
	out := orbclip.MultiPolygon(b, mp.Clone())
	return dropDegenerate(out)
}

// Tolerance returns the Douglas-Peucker tolerance in degrees for a map zoom:
// half a 256px tile pixel. Zero above zoom 14.
func Tolerance(zoom float64) float64 {
	if zoom >= 14 {
		return 0
	}
	if zoom < 0 {
		zoom = 0
	}
	return 360.0 / (256.0 * math.Exp2(zoom)) / 2
}

// Simplify reduces vertex count for display at the given zoom. Rings that
// collapse are dropped; a polygon whose outer ring collapses is dropped.
func Simplify(mp orb.MultiPolygon, zoom float64) orb.MultiPolygon {
	tol := Tolerance(zoom)
	if tol == 0 || len(mp) == 0 {
		return mp
	}

	s := simplify.DouglasPeucker(tol)
	out := make(orb.MultiPolygon, 0, len(mp))
	for _, poly := range mp {
		var np orb.Polygon
		for i, ring := range poly {
			r := ring
			if len(ring) > 4 {
				if simp, ok := s.Simplify(ring.Clone()).(orb.Ring); ok {
					r = simp
				}
			}
			if len(r) < 4 {
				if i == 0 {
					break
				}
				continue
			}
			np = append(np, r)
		}
		if len(np) > 0 {
			out = append(out, np)
		}
	}
	return out
}

func toPolyclip(mp orb.MultiPolygon) polyclip.Polygon {
	var out polyclip.Polygon
	for _, poly := range mp {
		for _, ring := range poly {
			n := len(ring)
			if n > 1 && ring[0] == ring[n-1] {
				n--
			}
			if n < 3 {
				continue
			}
			c := make(polyclip.Contour, n)
			for i := 0; i < n; i++ {
				c[i] = polyclip.Point{X: ring[i][0], Y: ring[i][1]}
			}
			out = append(out, c)
		}
	}
	return out
}

type contour struct {
	ring  orb.Ring
	area  float64
	depth int
}

// fromPolyclip regroups a flat contour list into polygons with holes.
// A contour nested inside an even number of others is an outer ring; odd
// nesting makes it a hole of the smallest enclosing outer ring.
func fromPolyclip(p polyclip.Polygon) orb.MultiPolygon {
	contours := make([]*contour, 0, len(p))
	for _, c := range p {
		if len(c) < 3 {
			continue
		}
		ring := make(orb.Ring, 0, len(c)+1)
		for _, pt := range c {
			ring = append(ring, orb.Point{pt.X, pt.Y})
		}
		ring = append(ring, ring[0])
		area := geom.RingArea(ring)
		if area < minFragmentArea {
			continue
		}
		contours = append(contours, &contour{ring: ring, area: area})
	}

	// Larger contours first so parents precede children
	sort.SliceStable(contours, func(i, j int) bool {
		return contours[i].area > contours[j].area
	})

	parents := make([]int, len(contours))
	for i, c := range contours {
		parents[i] = -1
		probe := interiorProbe(c.ring)
		for j := i - 1; j >= 0; j-- {
			if geom.RingContains(contours[j].ring, probe) {
				c.depth++
				if parents[i] == -1 {
					parents[i] = j
				}
			}
		}
	}

	var out orb.MultiPolygon
	polyIndex := make(map[int]int)
	for i, c := range contours {
		if c.depth%2 == 0 {
			if c.ring.Orientation() != orb.CCW {
				c.ring.Reverse()
			}
			polyIndex[i] = len(out)
			out = append(out, orb.Polygon{c.ring})
		}
	}
	for i, c := range contours {
		if c.depth%2 == 1 {
			idx, ok := polyIndex[parents[i]]
			if !ok {
				continue
			}
			if c.ring.Orientation() != orb.CW {
				c.ring.Reverse()
			}
			out[idx] = append(out[idx], c.ring)
		}
	}
	return out
}

// interiorProbe returns a point just inside the ring near its first edge, so
// that nesting tests are not confused by vertices shared with other contours.
func interiorProbe(ring orb.Ring) orb.Point {
	for i := 0; i+1 < len(ring); i++ {
		a, b := ring[i], ring[i+1]
		if a == b {
			continue
		}
		mid := orb.Point{(a[0] + b[0]) / 2, (a[1] + b[1]) / 2}
		dx, dy := b[0]-a[0], b[1]-a[1]
		l := math.Hypot(dx, dy)
		eps := math.Min(1e-9, l*1e-3)
		nx, ny := -dy/l*eps, dx/l*eps
		left := orb.Point{mid[0] + nx, mid[1] + ny}
		if geom.RingContains(ring, left) {
			return left
		}
		return orb.Point{mid[0] - nx, mid[1] - ny}
	}
	return ring[0]
}

func dropDegenerate(mp orb.MultiPolygon) orb.MultiPolygon {
	out := mp[:0]
	for _, poly := range mp {
		if len(poly) == 0 || len(poly[0]) < 4 || geom.RingArea(poly[0]) < minFragmentArea {
			continue
		}
		out = append(out, poly)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
