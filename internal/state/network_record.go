package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/geodelta/sbaspipe/internal/fsutil"
	"github.com/geodelta/sbaspipe/internal/network"
	"github.com/geodelta/sbaspipe/internal/timeutil"
)

// NetworkRecordName is the dedicated record holding the built acquisition
// network: selected scenes, pair set, and derived extent. Later steps read
// it as their input contract.
const NetworkRecordName = "network.json"

// networkRecord wraps the network with provenance for audits.
type networkRecord struct {
	GeneratedAt string           `json:"generated_at"`
	RunID       string           `json:"run_id,omitempty"`
	Network     *network.Network `json:"network"`
}

// SaveNetwork persists the built network record.
func (s *Store) SaveNetwork(n *network.Network, runID string) (string, error) {
	rec := networkRecord{
		GeneratedAt: timeutil.UTCStamp(s.clock.Now()),
		RunID:       runID,
		Network:     n,
	}
	data, err := json.MarshalIndent(&rec, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal network record: %w", err)
	}
	path := filepath.Join(s.dir, NetworkRecordName)
	if err := fsutil.WriteFileAtomic(path, append(data, '\n'), 0o644); err != nil {
		return "", err
	}
	return path, nil
}

// LoadNetwork reads the network record back. A missing record returns
// (nil, nil) so callers can report their own precondition failure; a
// malformed one is a CorruptionError.
func (s *Store) LoadNetwork() (*network.Network, error) {
	path := filepath.Join(s.dir, NetworkRecordName)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, &CorruptionError{Path: path, Err: err}
	}
	var rec networkRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, &CorruptionError{Path: path, Err: err}
	}
	if rec.Network == nil {
		return nil, &CorruptionError{Path: path, Err: fmt.Errorf("record has no network payload")}
	}
	return rec.Network, nil
}
