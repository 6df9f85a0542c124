// Package geom holds the geometry model used by spatial filters and
// features: orb shapes tagged with an EPSG code, WKT and EWKB decoding,
// planar predicates and axis-order handling.
package geom

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/ewkb"
	"github.com/paulmach/orb/encoding/wkt"
	"github.com/paulmach/orb/planar"
)

// Geometry is a shape in the coordinate system identified by SRID.
// Coordinates are in the axis order of their producer until normalised.
type Geometry struct {
	SRID  int
	Shape orb.Geometry
}

func NewPoint(x, y float64, srid int) Geometry {
	return Geometry{SRID: srid, Shape: orb.Point{x, y}}
}

// NewEnvelope builds the polygon of a box given by two corners in any order.
func NewEnvelope(x1, y1, x2, y2 float64, srid int) Geometry {
	b := orb.Bound{
		Min: orb.Point{math.Min(x1, x2), math.Min(y1, y2)},
		Max: orb.Point{math.Max(x1, x2), math.Max(y1, y2)},
	}
	return Geometry{SRID: srid, Shape: b.ToPolygon()}
}

// FromBounds returns a point when the box is degenerate and an envelope
// otherwise.
func FromBounds(minX, minY, maxX, maxY float64, srid int) Geometry {
	if minX == maxX && minY == maxY {
		return NewPoint(minX, minY, srid)
	}
	return NewEnvelope(minX, minY, maxX, maxY, srid)
}

// ParseWKT decodes well-known text.
func ParseWKT(s string, srid int) (Geometry, error) {
	shape, err := wkt.Unmarshal(s)
	if err != nil {
		return Geometry{}, fmt.Errorf("decoding wkt: %w", err)
	}
	return Geometry{SRID: srid, Shape: shape}, nil
}

// FromEWKB decodes the extended WKB PostGIS returns for ST_AsEWKB. A NULL
// column yields nil.
func FromEWKB(data []byte) (*Geometry, error) {
	if len(data) == 0 {
		return nil, nil
	}
	shape, srid, err := ewkb.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("decoding ewkb: %w", err)
	}
	return &Geometry{SRID: srid, Shape: shape}, nil
}

// Bounds returns the bounding box of g.
func (g Geometry) Bounds() (minX, minY, maxX, maxY float64) {
	b := g.Shape.Bound()
	return b.Min[0], b.Min[1], b.Max[0], b.Max[1]
}

// SwapAxes returns a copy of g with x and y exchanged.
func (g Geometry) SwapAxes() Geometry {
	return Geometry{SRID: g.SRID, Shape: swapAxes(g.Shape)}
}

func swapAxes(g orb.Geometry) orb.Geometry {
	switch s := g.(type) {
	case orb.Point:
		return orb.Point{s[1], s[0]}
	case orb.MultiPoint:
		return orb.MultiPoint(swapPoints(s))
	case orb.LineString:
		return orb.LineString(swapPoints(s))
	case orb.Ring:
		return orb.Ring(swapPoints(s))
	case orb.MultiLineString:
		out := make(orb.MultiLineString, len(s))
		for i, ls := range s {
			out[i] = swapPoints(ls)
		}
		return out
	case orb.Polygon:
		return swapPolygon(s)
	case orb.MultiPolygon:
		out := make(orb.MultiPolygon, len(s))
		for i, p := range s {
			out[i] = swapPolygon(p)
		}
		return out
	case orb.Collection:
		out := make(orb.Collection, len(s))
		for i, c := range s {
			out[i] = swapAxes(c)
		}
		return out
	case orb.Bound:
		return orb.Bound{Min: orb.Point{s.Min[1], s.Min[0]}, Max: orb.Point{s.Max[1], s.Max[0]}}
	}
	return g
}

func swapPoints(ps []orb.Point) []orb.Point {
	out := make([]orb.Point, len(ps))
	for i, p := range ps {
		out[i] = orb.Point{p[1], p[0]}
	}
	return out
}

func swapPolygon(p orb.Polygon) orb.Polygon {
	out := make(orb.Polygon, len(p))
	for i, r := range p {
		out[i] = swapPoints(r)
	}
	return out
}

// WKT renders g as well-known text.
func (g Geometry) WKT() string {
	return wkt.MarshalString(g.Shape)
}

// Intersects reports whether a and b share at least one point.
func Intersects(a, b Geometry) bool {
	if !a.Shape.Bound().Intersects(b.Shape.Bound()) {
		return false
	}
	for _, p := range vertices(a.Shape) {
		if covers(b.Shape, p) {
			return true
		}
	}
	for _, p := range vertices(b.Shape) {
		if covers(a.Shape, p) {
			return true
		}
	}
	return edgesCross(a.Shape, b.Shape)
}

// Within reports whether a lies completely inside b: every vertex of a is
// covered by b and no edge of a leaves b.
func Within(a, b Geometry) bool {
	outer := b.Shape.Bound()
	inner := a.Shape.Bound()
	if !outer.Contains(inner.Min) || !outer.Contains(inner.Max) {
		return false
	}
	for _, p := range vertices(a.Shape) {
		if !covers(b.Shape, p) {
			return false
		}
	}
	return !edgesCross(a.Shape, b.Shape)
}

// Contains reports whether a completely contains b.
func Contains(a, b Geometry) bool {
	return Within(b, a)
}

// covers reports whether p lies in the interior or on the boundary of g.
func covers(g orb.Geometry, p orb.Point) bool {
	switch s := g.(type) {
	case orb.Point:
		return s.Equal(p)
	case orb.MultiPoint:
		for _, q := range s {
			if q.Equal(p) {
				return true
			}
		}
		return false
	case orb.Ring:
		return planar.RingContains(s, p)
	case orb.Polygon:
		return planar.PolygonContains(s, p)
	case orb.MultiPolygon:
		return planar.MultiPolygonContains(s, p)
	case orb.Bound:
		return s.Contains(p)
	case orb.Collection:
		for _, c := range s {
			if covers(c, p) {
				return true
			}
		}
		return false
	}
	for _, e := range edges(g) {
		if onSegment(p, e[0], e[1]) {
			return true
		}
	}
	return false
}

func vertices(g orb.Geometry) []orb.Point {
	switch s := g.(type) {
	case orb.Point:
		return []orb.Point{s}
	case orb.MultiPoint:
		return s
	case orb.LineString:
		return s
	case orb.Ring:
		return s
	case orb.Bound:
		return s.ToRing()
	}
	var out []orb.Point
	for _, e := range edges(g) {
		out = append(out, e[0], e[1])
	}
	if c, ok := g.(orb.Collection); ok {
		for _, m := range c {
			out = append(out, vertices(m)...)
		}
	}
	return out
}

func edges(g orb.Geometry) [][2]orb.Point {
	var out [][2]orb.Point
	path := func(ps []orb.Point) {
		for i := 0; i+1 < len(ps); i++ {
			out = append(out, [2]orb.Point{ps[i], ps[i+1]})
		}
	}
	switch s := g.(type) {
	case orb.LineString:
		path(s)
	case orb.Ring:
		path(s)
	case orb.Bound:
		path(s.ToRing())
	case orb.MultiLineString:
		for _, ls := range s {
			path(ls)
		}
	case orb.Polygon:
		for _, r := range s {
			path(r)
		}
	case orb.MultiPolygon:
		for _, p := range s {
			for _, r := range p {
				path(r)
			}
		}
	case orb.Collection:
		for _, c := range s {
			out = append(out, edges(c)...)
		}
	}
	return out
}

// edgesCross reports whether an edge of a properly crosses an edge of b.
func edgesCross(a, b orb.Geometry) bool {
	eb := edges(b)
	for _, x := range edges(a) {
		for _, y := range eb {
			if properCross(x[0], x[1], y[0], y[1]) {
				return true
			}
		}
	}
	return false
}

func orientation(o, a, b orb.Point) float64 {
	return (a[0]-o[0])*(b[1]-o[1]) - (a[1]-o[1])*(b[0]-o[0])
}

func properCross(p1, p2, q1, q2 orb.Point) bool {
	d1, d2 := orientation(q1, q2, p1), orientation(q1, q2, p2)
	d3, d4 := orientation(p1, p2, q1), orientation(p1, p2, q2)
	return ((d1 > 0 && d2 < 0) || (d1 < 0 && d2 > 0)) &&
		((d3 > 0 && d4 < 0) || (d3 < 0 && d4 > 0))
}

func onSegment(p, a, b orb.Point) bool {
	if orientation(a, b, p) != 0 {
		return false
	}
	return p[0] >= math.Min(a[0], b[0]) && p[0] <= math.Max(a[0], b[0]) &&
		p[1] >= math.Min(a[1], b[1]) && p[1] <= math.Max(a[1], b[1])
}

// ParseSRID extracts the EPSG code from the CRS notations used by OGC
// services: URNs, HTTP URIs, "EPSG:n" and bare numbers.
func ParseSRID(crs string) (int, error) {
	s := strings.TrimSpace(crs)
	if s == "" {
		return 0, fmt.Errorf("empty crs")
	}
	if i := strings.LastIndexAny(s, ":/"); i >= 0 {
		s = s[i+1:]
	}
	code, err := strconv.Atoi(s)
	if err != nil || code <= 0 {
		return 0, fmt.Errorf("invalid crs %q", crs)
	}
	return code, nil
}
