package network

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"

	"github.com/geodelta/sbaspipe/internal/geo"
)

// ConstructionError reports why the builder could not produce a usable
// network, with per-stage scene counts for diagnosis.
type ConstructionError struct {
	Stage  string
	Counts Counts
	Reason string
}

func (e *ConstructionError) Error() string {
	return fmt.Sprintf("network construction failed at %s: %s (considered=%d orbit=%d frame=%d thinned=%d pairs=%d)",
		e.Stage, e.Reason,
		e.Counts.Considered, e.Counts.AfterOrbit, e.Counts.AfterFrame, e.Counts.AfterThinning, e.Counts.Pairs)
}

// Build constructs the small-baseline network from the candidate scenes.
// It is a pure function: no hidden state, and output is identical for any
// permutation of the input slice.
func Build(scenes []Scene, params Params) (*Network, error) {
	counts := Counts{Considered: len(scenes)}

	if len(scenes) == 0 {
		return nil, &ConstructionError{Stage: "pre-filter", Counts: counts, Reason: "no candidate scenes"}
	}

	// Work on a sorted copy so input iteration order never matters.
	cand := make([]Scene, len(scenes))
	copy(cand, scenes)
	sortScenes(cand)

	// Orbit-direction pre-filter.
	cand = filterOrbit(cand, params)
	counts.AfterOrbit = len(cand)
	if len(cand) == 0 {
		return nil, &ConstructionError{Stage: "orbit-filter", Counts: counts, Reason: "no scenes match the orbit-direction filter"}
	}

	// Frame consistency. Missing frame metadata under enforcement signals an
	// upstream catalog inconsistency and is a hard error, not a silent drop.
	frame := ""
	if params.EnforceSameFrame {
		missing := 0
		for _, s := range cand {
			if s.Frame == "" {
				missing++
			}
		}
		if missing > 0 {
			counts.AfterFrame = 0
			return nil, &ConstructionError{
				Stage:  "frame-filter",
				Counts: counts,
				Reason: fmt.Sprintf("%d of %d scenes lack frame metadata but enforce_same_frame is enabled", missing, len(cand)),
			}
		}
		frame, cand = dominantFrame(cand)
	}
	counts.AfterFrame = len(cand)

	// Thinning reduces temporal density before pairing.
	cand = thin(cand, params.MinRepeatDays, params.MaxAcquisitions)
	counts.AfterThinning = len(cand)
	if len(cand) == 0 {
		return nil, &ConstructionError{Stage: "thinning", Counts: counts, Reason: "no scenes remain after thinning"}
	}

	// Pairing: connect each scene to its temporally nearest neighbors.
	pairSet := buildPairs(cand, params)
	counts.Pairs = len(pairSet)
	if len(pairSet) == 0 {
		return nil, &ConstructionError{Stage: "pairing", Counts: counts, Reason: "no valid pairs (check max_temporal_days and frame spread)"}
	}

	// Selection: only scenes that participate in at least one pair.
	selected := selectPaired(cand, pairSet)

	// Connectivity assurance bridges disconnected components with the
	// lowest-baseline cross-component edge until one component remains.
	bridges := 0
	if params.EnsureChain {
		pairSet, bridges = ensureConnected(selected, pairSet)
	}
	counts.BridgesInserted = bridges
	counts.SelectedScenes = len(selected)
	counts.Pairs = len(pairSet)

	pairs := canonicalPairs(selected, pairSet)

	boxes := make([]geo.BBox, len(selected))
	for i, s := range selected {
		boxes[i] = s.Footprint
	}

	return &Network{
		Scenes: selected,
		Pairs:  pairs,
		Extent: geo.UnionAll(boxes),
		Frame:  frame,
		Counts: counts,
	}, nil
}

// sortScenes orders scenes by date, then id, the canonical ordering all
// later stages rely on.
func sortScenes(s []Scene) {
	sort.Slice(s, func(i, j int) bool {
		if !s[i].Date.Equal(s[j].Date) {
			return s[i].Date.Before(s[j].Date)
		}
		return s[i].ID < s[j].ID
	})
}

func filterOrbit(scenes []Scene, params Params) []Scene {
	out := scenes[:0:0]
	for _, s := range scenes {
		if params.OrbitDirection.Matches(s.OrbitDirection) {
			out = append(out, s)
		}
	}
	return out
}

// dominantFrame restricts the candidates to the most frequent frame id.
// Ties go to the lexicographically smallest frame so the choice is stable.
func dominantFrame(scenes []Scene) (string, []Scene) {
	freq := map[string]int{}
	for _, s := range scenes {
		freq[s.Frame]++
	}
	best := ""
	for f, n := range freq {
		if best == "" || n > freq[best] || (n == freq[best] && f < best) {
			best = f
		}
	}
	out := scenes[:0:0]
	for _, s := range scenes {
		if s.Frame == best {
			out = append(out, s)
		}
	}
	return best, out
}

// daysBetween is the whole number of elapsed days between two acquisition
// times. Truncation matters for scenes carrying time of day: an 11.6-day gap
// counts as 11, not 12.
func daysBetween(a, b Scene) int {
	d := b.Date.Sub(a.Date).Hours() / 24
	if d < 0 {
		d = -d
	}
	return int(d)
}

// thin applies greedy minimum-interval thinning (keeping the earliest scene
// of each window) and then, if capped, deterministic uniform index sampling.
// Input must be date-sorted.
func thin(scenes []Scene, minRepeatDays, maxAcquisitions int) []Scene {
	out := scenes
	if minRepeatDays > 0 && len(out) > 1 {
		kept := []Scene{out[0]}
		last := out[0]
		for _, s := range out[1:] {
			if daysBetween(last, s) >= minRepeatDays {
				kept = append(kept, s)
				last = s
			}
		}
		out = kept
	}

	if maxAcquisitions > 0 && len(out) > maxAcquisitions {
		if maxAcquisitions == 1 {
			return out[:1]
		}
		n := len(out)
		k := maxAcquisitions
		sampled := make([]Scene, 0, k)
		seen := map[int]bool{}
		for i := 0; i < k; i++ {
			idx := (i*(n-1) + (k-1)/2) / (k - 1) // round(i*(n-1)/(k-1))
			if !seen[idx] {
				seen[idx] = true
				sampled = append(sampled, out[idx])
			}
		}
		out = sampled
	}
	return out
}

// edge is an undirected pair of indices into the candidate slice, stored
// with i < j in date-sorted order.
type edge struct{ i, j int }

func makeEdge(a, b int) edge {
	if a > b {
		a, b = b, a
	}
	return edge{a, b}
}

// buildPairs links every scene to its k temporally nearest neighbors,
// honoring the baseline limit and frame consistency. Duplicate undirected
// edges collapse in the set.
func buildPairs(cand []Scene, params Params) map[edge]bool {
	pairs := map[edge]bool{}
	for i := range cand {
		neighbors := nearestNeighbors(cand, i)
		added := 0
		for _, j := range neighbors {
			if added >= params.KNeighbors {
				break
			}
			if daysBetween(cand[i], cand[j]) > params.MaxTemporalDays {
				continue
			}
			if params.EnforceSameFrame && cand[i].Frame != cand[j].Frame {
				continue
			}
			pairs[makeEdge(i, j)] = true
			added++
		}
	}
	return pairs
}

// nearestNeighbors returns the other scene indices ordered by temporal
// distance from i, ties broken by earlier date then scene id.
func nearestNeighbors(cand []Scene, i int) []int {
	others := make([]int, 0, len(cand)-1)
	for j := range cand {
		if j != i {
			others = append(others, j)
		}
	}
	sort.Slice(others, func(a, b int) bool {
		da := daysBetween(cand[i], cand[others[a]])
		db := daysBetween(cand[i], cand[others[b]])
		if da != db {
			return da < db
		}
		if !cand[others[a]].Date.Equal(cand[others[b]].Date) {
			return cand[others[a]].Date.Before(cand[others[b]].Date)
		}
		return cand[others[a]].ID < cand[others[b]].ID
	})
	return others
}

// selectPaired returns the date-sorted scenes that appear in at least one
// pair, remapping the edge set onto the new indices in place.
func selectPaired(cand []Scene, pairs map[edge]bool) []Scene {
	used := map[int]bool{}
	for e := range pairs {
		used[e.i] = true
		used[e.j] = true
	}
	remap := make(map[int]int, len(used))
	selected := make([]Scene, 0, len(used))
	for i, s := range cand { // cand is already date-sorted
		if used[i] {
			remap[i] = len(selected)
			selected = append(selected, s)
		}
	}
	remapped := make(map[edge]bool, len(pairs))
	for e := range pairs {
		remapped[makeEdge(remap[e.i], remap[e.j])] = true
	}
	// Swap contents so callers keep using the same map value semantics.
	for e := range pairs {
		delete(pairs, e)
	}
	for e := range remapped {
		pairs[e] = true
	}
	return selected
}

// ensureConnected adds the lowest-temporal-baseline edge between connected
// components until a single component remains. Bridging edges ignore the
// baseline limit; an unbridged gap would leave scenes analytically isolated.
// Returns the augmented edge set and the number of bridges inserted.
func ensureConnected(scenes []Scene, pairs map[edge]bool) (map[edge]bool, int) {
	bridges := 0
	for {
		comps := components(len(scenes), pairs)
		if len(comps) <= 1 {
			return pairs, bridges
		}

		best := edge{-1, -1}
		bestDays := -1
		for _, e := range crossComponentEdges(scenes, comps) {
			d := daysBetween(scenes[e.i], scenes[e.j])
			if bestDays == -1 || d < bestDays || (d == bestDays && lessEdge(scenes, e, best)) {
				best = e
				bestDays = d
			}
		}
		pairs[best] = true
		bridges++
	}
}

// components computes connected components over the pair graph using the
// index-addressed undirected graph from gonum.
func components(n int, pairs map[edge]bool) [][]int {
	g := simple.NewUndirectedGraph()
	for i := 0; i < n; i++ {
		g.AddNode(simple.Node(i))
	}
	for e := range pairs {
		g.SetEdge(g.NewEdge(simple.Node(e.i), simple.Node(e.j)))
	}

	var comps [][]int
	for _, nodes := range topo.ConnectedComponents(g) {
		comp := make([]int, 0, len(nodes))
		for _, nd := range nodes {
			comp = append(comp, int(nd.ID()))
		}
		sort.Ints(comp)
		comps = append(comps, comp)
	}
	sort.Slice(comps, func(a, b int) bool { return comps[a][0] < comps[b][0] })
	return comps
}

// crossComponentEdges enumerates every candidate edge whose endpoints lie in
// different components.
func crossComponentEdges(scenes []Scene, comps [][]int) []edge {
	compOf := make([]int, len(scenes))
	for ci, comp := range comps {
		for _, i := range comp {
			compOf[i] = ci
		}
	}
	var out []edge
	for i := 0; i < len(scenes); i++ {
		for j := i + 1; j < len(scenes); j++ {
			if compOf[i] != compOf[j] {
				out = append(out, edge{i, j})
			}
		}
	}
	return out
}

// lessEdge is the deterministic tiebreak between equal-baseline bridge
// candidates: earlier reference date, then reference id, then secondary id.
func lessEdge(scenes []Scene, a, b edge) bool {
	if b.i < 0 {
		return true
	}
	if !scenes[a.i].Date.Equal(scenes[b.i].Date) {
		return scenes[a.i].Date.Before(scenes[b.i].Date)
	}
	if scenes[a.i].ID != scenes[b.i].ID {
		return scenes[a.i].ID < scenes[b.i].ID
	}
	return scenes[a.j].ID < scenes[b.j].ID
}

// canonicalPairs converts the index edge set into earlier-date-first Pair
// values sorted by (reference id, secondary id).
func canonicalPairs(scenes []Scene, pairs map[edge]bool) []Pair {
	out := make([]Pair, 0, len(pairs))
	for e := range pairs {
		ref, sec := scenes[e.i], scenes[e.j]
		// scenes is date-sorted so e.i is the earlier (or equal-date smaller
		// id) acquisition already.
		out = append(out, Pair{
			Reference:    ref.ID,
			Secondary:    sec.ID,
			BaselineDays: daysBetween(ref, sec),
		})
	}
	sort.Slice(out, func(a, b int) bool {
		if out[a].Reference != out[b].Reference {
			return out[a].Reference < out[b].Reference
		}
		return out[a].Secondary < out[b].Secondary
	})
	return out
}
