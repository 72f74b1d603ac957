package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/geodelta/sbaspipe/internal/config"
	"github.com/geodelta/sbaspipe/internal/geo"
	"github.com/geodelta/sbaspipe/internal/network"
	"github.com/geodelta/sbaspipe/internal/security"
)

// manifestScene is one entry of the search tool's output manifest. The
// manifest is the documented handoff format between the search tool and the
// discovery step: a JSON array of these objects.
type manifestScene struct {
	ID             string    `json:"id"`
	Date           string    `json:"date"`
	Frame          string    `json:"frame"`
	OrbitDirection string    `json:"orbit_direction"`
	BBox           []float64 `json:"bbox"`
	Source         string    `json:"source"`
}

// readSceneManifest decodes the search manifest into candidate scenes.
// Dates may be RFC 3339 or bare YYYY-MM-DD.
func readSceneManifest(path string) ([]network.Scene, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scene manifest: %w", err)
	}
	var raw []manifestScene
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse scene manifest %s: %w", path, err)
	}

	scenes := make([]network.Scene, 0, len(raw))
	for i, m := range raw {
		if m.ID == "" {
			return nil, fmt.Errorf("scene manifest %s: entry %d has no id", path, i)
		}
		// Scene ids become path components for the downloaded products.
		if !security.SafePathComponent(m.ID) {
			return nil, fmt.Errorf("scene manifest %s: entry %d: id %q is not usable as a file name", path, i, m.ID)
		}
		date, err := parseManifestDate(m.Date)
		if err != nil {
			return nil, fmt.Errorf("scene manifest %s: scene %s: %w", path, m.ID, err)
		}
		dir, err := config.ParseOrbitDirection(m.OrbitDirection)
		if err != nil {
			return nil, fmt.Errorf("scene manifest %s: scene %s: %w", path, m.ID, err)
		}
		var box geo.BBox
		if len(m.BBox) > 0 {
			box, err = geo.FromSlice(m.BBox)
			if err != nil {
				return nil, fmt.Errorf("scene manifest %s: scene %s: %w", path, m.ID, err)
			}
		}
		scenes = append(scenes, network.Scene{
			ID:             m.ID,
			Date:           date,
			Frame:          m.Frame,
			OrbitDirection: dir,
			Footprint:      box,
			Source:         m.Source,
		})
	}
	return scenes, nil
}

func parseManifestDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.ParseInLocation("2006-01-02", s, time.UTC); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("bad date %q (want RFC 3339 or YYYY-MM-DD)", s)
}
