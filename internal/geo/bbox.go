// Package geo provides the bounding-box type shared by the search,
// network-construction, and DEM steps. Boxes are axis-aligned lon/lat
// rectangles in EPSG:4326, stored [W, S, E, N] to match the configuration
// schema and the search-tool manifest format.
package geo

import (
	"fmt"
	"math"
)

// BBox is an axis-aligned bounding box: West, South, East, North in degrees.
type BBox struct {
	West  float64 `json:"west" yaml:"west"`
	South float64 `json:"south" yaml:"south"`
	East  float64 `json:"east" yaml:"east"`
	North float64 `json:"north" yaml:"north"`
}

// FromSlice builds a BBox from the [W,S,E,N] array form used in config
// files and manifests.
func FromSlice(v []float64) (BBox, error) {
	if len(v) != 4 {
		return BBox{}, fmt.Errorf("bbox must have 4 elements [W,S,E,N], got %d", len(v))
	}
	b := BBox{West: v[0], South: v[1], East: v[2], North: v[3]}
	if err := b.Validate(); err != nil {
		return BBox{}, err
	}
	return b, nil
}

// Validate checks coordinate ranges and that the box is non-degenerate.
func (b BBox) Validate() error {
	if b.West < -180 || b.East > 180 || b.West >= b.East {
		return fmt.Errorf("invalid bbox longitudes: west=%v east=%v", b.West, b.East)
	}
	if b.South < -90 || b.North > 90 || b.South >= b.North {
		return fmt.Errorf("invalid bbox latitudes: south=%v north=%v", b.South, b.North)
	}
	return nil
}

// IsZero reports whether the box is the zero value.
func (b BBox) IsZero() bool {
	return b == BBox{}
}

// Union returns the smallest box containing both b and other.
func (b BBox) Union(other BBox) BBox {
	if b.IsZero() {
		return other
	}
	if other.IsZero() {
		return b
	}
	return BBox{
		West:  math.Min(b.West, other.West),
		South: math.Min(b.South, other.South),
		East:  math.Max(b.East, other.East),
		North: math.Max(b.North, other.North),
	}
}

// UnionAll returns the union of all boxes, skipping zero values.
// Returns the zero box if no non-zero boxes are given.
func UnionAll(boxes []BBox) BBox {
	var out BBox
	for _, b := range boxes {
		out = out.Union(b)
	}
	return out
}

// SNWE formats the box as "S N W E", the argument order expected by the
// stack processor's -b flag.
func (b BBox) SNWE() string {
	return fmt.Sprintf("%v %v %v %v", b.South, b.North, b.West, b.East)
}

// SnapOut expands the box outward to whole degrees: floor on the
// south/west edges, ceil on the north/east edges. DEM tiles are
// distributed per integer degree so the DEM step fetches on these bounds.
func (b BBox) SnapOut() BBox {
	return BBox{
		West:  math.Floor(b.West),
		South: math.Floor(b.South),
		East:  math.Ceil(b.East),
		North: math.Ceil(b.North),
	}
}

// WKT renders the box as a closed WKT polygon (lon lat order), the AOI
// format accepted by the search tool.
func (b BBox) WKT() string {
	return fmt.Sprintf("POLYGON((%v %v,%v %v,%v %v,%v %v,%v %v))",
		b.West, b.South,
		b.East, b.South,
		b.East, b.North,
		b.West, b.North,
		b.West, b.South,
	)
}
