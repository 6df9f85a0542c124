package geom

import (
	"fmt"
	"strconv"
	"strings"
)

// Range is an inclusive EPSG code range.
type Range struct {
	From, To int
}

// Ranges is a set of EPSG code ranges.
type Ranges []Range

// ParseRanges parses "4001-4999,2044-2045,3068" style lists.
func ParseRanges(s string) (Ranges, error) {
	var out Ranges
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		from, to, isRange := strings.Cut(part, "-")
		lo, err := strconv.Atoi(strings.TrimSpace(from))
		if err != nil {
			return nil, fmt.Errorf("invalid epsg range %q: %w", part, err)
		}
		hi := lo
		if isRange {
			hi, err = strconv.Atoi(strings.TrimSpace(to))
			if err != nil {
				return nil, fmt.Errorf("invalid epsg range %q: %w", part, err)
			}
		}
		if hi < lo {
			return nil, fmt.Errorf("invalid epsg range %q: upper bound below lower bound", part)
		}
		out = append(out, Range{From: lo, To: hi})
	}
	return out, nil
}

// Contains reports whether code falls in any range.
func (r Ranges) Contains(code int) bool {
	for _, rng := range r {
		if code >= rng.From && code <= rng.To {
			return true
		}
	}
	return false
}

// AxisOrder describes the coordinate order the backing store expects and
// which EPSG codes are defined with northing (latitude) first.
type AxisOrder struct {
	StorageSRID          int
	StorageNorthingFirst bool
	NorthingFirst        Ranges
}

// NorthingFirstFor reports whether srid is defined with northing first.
func (a AxisOrder) NorthingFirstFor(srid int) bool {
	return a.NorthingFirst.Contains(srid)
}

// Normalize brings g into the axis order of the store. A geometry without
// an SRID is taken to be in the storage SRID.
func (a AxisOrder) Normalize(g Geometry) Geometry {
	if g.SRID == 0 {
		g.SRID = a.StorageSRID
	}
	if a.NorthingFirstFor(g.SRID) != a.StorageNorthingFirst {
		return g.SwapAxes()
	}
	return g
}
