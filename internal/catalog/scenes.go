package catalog

import (
	"fmt"
	"time"

	"github.com/geodelta/sbaspipe/internal/config"
	"github.com/geodelta/sbaspipe/internal/geo"
	"github.com/geodelta/sbaspipe/internal/network"
	"github.com/geodelta/sbaspipe/internal/timeutil"
)


// RecordDiscovery upserts the discovered scene set. Re-running discovery
// refreshes the metadata but keeps any local_path set by a prior download.
func (db *DB) RecordDiscovery(scenes []network.Scene, runID string, now time.Time) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin discovery transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO scenes (
			scene_id, acquired_at, frame, orbit_direction,
			west, south, east, north, source,
			discovered_run, discovered_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(scene_id) DO UPDATE SET
			acquired_at = excluded.acquired_at,
			frame = excluded.frame,
			orbit_direction = excluded.orbit_direction,
			west = excluded.west, south = excluded.south,
			east = excluded.east, north = excluded.north,
			source = excluded.source,
			discovered_run = excluded.discovered_run,
			updated_at = excluded.updated_at`)
	if err != nil {
		return fmt.Errorf("prepare scene upsert: %w", err)
	}
	defer stmt.Close()

	stamp := timeutil.UTCStamp(now)
	for _, s := range scenes {
		_, err := stmt.Exec(
			s.ID, timeutil.UTCStamp(s.Date), s.Frame, string(s.OrbitDirection),
			s.Footprint.West, s.Footprint.South, s.Footprint.East, s.Footprint.North,
			s.Source, runID, stamp, stamp,
		)
		if err != nil {
			return fmt.Errorf("upsert scene %s: %w", s.ID, err)
		}
	}
	return tx.Commit()
}

// MarkSelected flags the given scenes as members of the constructed network
// and clears the flag on everything else.
func (db *DB) MarkSelected(ids []string, now time.Time) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin selection transaction: %w", err)
	}
	defer tx.Rollback()

	stamp := timeutil.UTCStamp(now)
	if _, err := tx.Exec(`UPDATE scenes SET selected = 0, updated_at = ? WHERE selected != 0`, stamp); err != nil {
		return fmt.Errorf("clear selection: %w", err)
	}
	stmt, err := tx.Prepare(`UPDATE scenes SET selected = 1, updated_at = ? WHERE scene_id = ?`)
	if err != nil {
		return fmt.Errorf("prepare selection update: %w", err)
	}
	defer stmt.Close()
	for _, id := range ids {
		res, err := stmt.Exec(stamp, id)
		if err != nil {
			return fmt.Errorf("select scene %s: %w", id, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("select scene %s: not in catalog", id)
		}
	}
	return tx.Commit()
}

// SetLocalPath records where a downloaded product landed on disk.
func (db *DB) SetLocalPath(id, path string, now time.Time) error {
	res, err := db.Exec(`UPDATE scenes SET local_path = ?, updated_at = ? WHERE scene_id = ?`,
		path, timeutil.UTCStamp(now), id)
	if err != nil {
		return fmt.Errorf("set local path for %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("set local path for %s: not in catalog", id)
	}
	return nil
}

// SelectedScenes returns the selected scene set in acquisition order.
func (db *DB) SelectedScenes() ([]network.Scene, error) {
	return db.queryScenes(`SELECT scene_id, acquired_at, frame, orbit_direction,
		west, south, east, north, source, local_path
		FROM scenes WHERE selected = 1 ORDER BY acquired_at, scene_id`)
}

// AllScenes returns every cataloged scene in acquisition order.
func (db *DB) AllScenes() ([]network.Scene, error) {
	return db.queryScenes(`SELECT scene_id, acquired_at, frame, orbit_direction,
		west, south, east, north, source, local_path
		FROM scenes ORDER BY acquired_at, scene_id`)
}

func (db *DB) queryScenes(query string) ([]network.Scene, error) {
	rows, err := db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("query scenes: %w", err)
	}
	defer rows.Close()

	var out []network.Scene
	for rows.Next() {
		var s network.Scene
		var acquired, dir string
		var fp geo.BBox
		err := rows.Scan(&s.ID, &acquired, &s.Frame, &dir,
			&fp.West, &fp.South, &fp.East, &fp.North, &s.Source, &s.LocalPath)
		if err != nil {
			return nil, fmt.Errorf("scan scene row: %w", err)
		}
		s.Date, err = parseAcquiredAt(acquired)
		if err != nil {
			return nil, fmt.Errorf("scene %s: bad acquired_at %q: %w", s.ID, acquired, err)
		}
		s.OrbitDirection, err = config.ParseOrbitDirection(dir)
		if err != nil {
			return nil, fmt.Errorf("scene %s: %w", s.ID, err)
		}
		s.Footprint = fp
		out = append(out, s)
	}
	return out, rows.Err()
}

// parseAcquiredAt reads the stored acquisition timestamp. Rows written
// before the full-timestamp format carry a bare date.
func parseAcquiredAt(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.ParseInLocation("2006-01-02", s, time.UTC)
}

// Summary reports catalog totals for operator diagnostics.
type Summary struct {
	Total      int
	Selected   int
	Downloaded int
}

// Summarize counts cataloged, selected and downloaded scenes.
func (db *DB) Summarize() (Summary, error) {
	var s Summary
	row := db.QueryRow(`SELECT COUNT(*),
		COALESCE(SUM(selected), 0),
		COALESCE(SUM(CASE WHEN local_path != '' THEN 1 ELSE 0 END), 0)
		FROM scenes`)
	if err := row.Scan(&s.Total, &s.Selected, &s.Downloaded); err != nil {
		return Summary{}, fmt.Errorf("summarize catalog: %w", err)
	}
	return s, nil
}
