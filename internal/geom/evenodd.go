// Package geom has the even-odd point tests used against rendered (already
// clipped) layer fragments.
package geom

import "github.com/paulmach/orb"

// RingContains reports whether p is inside ring using even-odd ray casting.
// The ring may be open or closed.
func RingContains(ring orb.Ring, p orb.Point) bool {
	n := len(ring)
	if n < 3 {
		return false
	}

	inside := false
	for i := 0; i < n; i++ {
		p0, p1 := ring[i], ring[(i+1)%n]
		if (p0[1] <= p[1] && p[1] < p1[1]) || (p1[1] <= p[1] && p[1] < p0[1]) {
			x := p0[0] + (p[1]-p0[1])*(p1[0]-p0[0])/(p1[1]-p0[1])
			if x > p[0] {
				inside = !inside
			}
		}
	}
	return inside
}

// PolygonContains applies the even-odd rule across all rings, so holes
// exclude their interior.
func PolygonContains(poly orb.Polygon, p orb.Point) bool {
	if len(poly) == 0 {
		return false
	}
	if !RingContains(poly[0], p) {
		return false
	}
	for _, hole := range poly[1:] {
		if RingContains(hole, p) {
			return false
		}
	}
	return true
}

// MultiPolygonContains reports whether any polygon contains p
func MultiPolygonContains(mp orb.MultiPolygon, p orb.Point) bool {
	for _, poly := range mp {
		if PolygonContains(poly, p) {
			return true
		}
	}
	return false
}

// RingArea returns the absolute planar area of ring (shoelace)
func RingArea(ring orb.Ring) float64 {
	n := len(ring)
	if n < 3 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		p0, p1 := ring[i], ring[(i+1)%n]
		sum += p0[0]*p1[1] - p1[0]*p0[1]
	}
	if sum < 0 {
		sum = -sum
	}
	return sum / 2
}

// LargestPolygon returns the polygon with the biggest outer ring
func LargestPolygon(mp orb.MultiPolygon) (orb.Polygon, bool) {
	var best orb.Polygon
	bestArea := -1.0
	for _, poly := range mp {
		if len(poly) == 0 {
			continue
		}
		if a := RingArea(poly[0]); a > bestArea {
			best, bestArea = poly, a
		}
	}
	return best, bestArea >= 0
}
