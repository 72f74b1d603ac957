// Package network builds the small-baseline acquisition network: given the
// candidate scenes from discovery, it selects the scene subset and pair set
// used by the downstream stack processing. Build is a pure function of its
// inputs and deterministic regardless of input ordering.
package network

import (
	"time"

	"github.com/geodelta/sbaspipe/internal/config"
	"github.com/geodelta/sbaspipe/internal/geo"
)

// Scene is one candidate acquisition. Immutable after discovery, except for
// LocalPath which is set once when the product is downloaded.
type Scene struct {
	ID             string                `json:"id"`
	Date           time.Time             `json:"date"`
	Frame          string                `json:"frame,omitempty"`
	OrbitDirection config.OrbitDirection `json:"orbit_direction"`
	Footprint      geo.BBox              `json:"footprint"`
	Source         string                `json:"source,omitempty"`
	LocalPath      string                `json:"local_path,omitempty"`
}

// Pair is an ordered (reference, secondary) scene tuple. Reference is the
// earlier acquisition; ties on date are broken by scene id so the canonical
// direction is stable.
type Pair struct {
	Reference    string `json:"reference"`
	Secondary    string `json:"secondary"`
	BaselineDays int    `json:"baseline_days"`
}

// Params controls network construction.
type Params struct {
	OrbitDirection   config.OrbitDirection
	KNeighbors       int
	MaxTemporalDays  int
	EnsureChain      bool
	EnforceSameFrame bool
	MinRepeatDays    int
	MaxAcquisitions  int
}

// ParamsFromConfig maps the resolved configuration onto builder parameters.
func ParamsFromConfig(r *config.Resolved) Params {
	return Params{
		OrbitDirection:   r.OrbitDirection,
		KNeighbors:       r.Network.KNeighbors,
		MaxTemporalDays:  r.Network.MaxTemporalDays,
		EnsureChain:      r.Network.EnsureChain,
		EnforceSameFrame: r.Network.EnforceSameFrame,
		MinRepeatDays:    r.Network.MinRepeatDays,
		MaxAcquisitions:  r.Network.MaxAcquisitions,
	}
}

// Counts records how many scenes survived each construction stage. Attached
// to errors and to the network record for operator diagnostics.
type Counts struct {
	Considered      int `json:"considered"`
	AfterOrbit      int `json:"after_orbit_filter"`
	AfterFrame      int `json:"after_frame_filter"`
	AfterThinning   int `json:"after_thinning"`
	SelectedScenes  int `json:"selected_scenes"`
	Pairs           int `json:"pairs"`
	BridgesInserted int `json:"bridges_inserted"`
}

// Network is the builder output: the selected scene subset (date order), the
// full pair set, and the derived union extent. Callers may override Extent
// with an explicit box; unions over a wide temporal range can overshoot the
// common overlap.
type Network struct {
	Scenes []Scene  `json:"scenes"`
	Pairs  []Pair   `json:"pairs"`
	Extent geo.BBox `json:"extent"`
	Frame  string   `json:"frame,omitempty"`
	Counts Counts   `json:"counts"`
}

// SceneIDs returns the selected scene identifiers in date order.
func (n *Network) SceneIDs() []string {
	ids := make([]string, len(n.Scenes))
	for i, s := range n.Scenes {
		ids[i] = s.ID
	}
	return ids
}
