// Package config loads the declarative pipeline configuration, applies the
// documented defaults, validates required fields, and produces the immutable
// resolved snapshot persisted alongside the project outputs.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ConfigError reports a missing or invalid configuration field. It fails the
// run before any step executes.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: field %q: %s", e.Field, e.Reason)
}

// OrbitDirection filters acquisitions by pass direction.
type OrbitDirection string

const (
	OrbitAscending  OrbitDirection = "ASC"
	OrbitDescending OrbitDirection = "DESC"
	OrbitBoth       OrbitDirection = "BOTH"
)

// ParseOrbitDirection normalizes user input to an OrbitDirection.
// Accepts the long forms the upstream catalogs use.
func ParseOrbitDirection(s string) (OrbitDirection, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "ASC", "ASCENDING":
		return OrbitAscending, nil
	case "DESC", "DESCENDING":
		return OrbitDescending, nil
	case "BOTH":
		return OrbitBoth, nil
	}
	return "", fmt.Errorf("orbit_direction must be ASC, DESC or BOTH (got %q)", s)
}

// Matches reports whether a scene with the given direction passes the filter.
func (d OrbitDirection) Matches(sceneDir OrbitDirection) bool {
	return d == OrbitBoth || d == sceneDir
}

// File mirrors the YAML configuration file. Optional fields are pointers so
// omitted values fall back to the defaults enumerated in resolve.go; partial
// configs are safe.
type File struct {
	ProjectDir     string    `yaml:"project_dir"`
	AOIBBox        []float64 `yaml:"aoi_bbox"`
	DateStart      string    `yaml:"date_start"`
	DateEnd        string    `yaml:"date_end"`
	OrbitDirection string    `yaml:"orbit_direction"`

	Download *DownloadFile `yaml:"download,omitempty"`
	Network  *NetworkFile  `yaml:"network,omitempty"`
	Tools    *ToolsFile    `yaml:"tools,omitempty"`
}

// DownloadFile groups the scene search/download options.
type DownloadFile struct {
	SearchCommand   *string `yaml:"search_command,omitempty"`
	DownloadCommand *string `yaml:"download_command,omitempty"`
	MaxResults      *int    `yaml:"max_results,omitempty"`
	Platform        *string `yaml:"platform,omitempty"`
	BeamMode        *string `yaml:"beam_mode,omitempty"`
	ProcessingLevel *string `yaml:"processing_level,omitempty"`
	SkipExisting    *bool   `yaml:"skip_existing,omitempty"`
	Processes       *int    `yaml:"processes,omitempty"`
}

// NetworkFile groups the baseline-network construction parameters.
type NetworkFile struct {
	KNeighbors       *int  `yaml:"k_neighbors,omitempty"`
	MaxTemporalDays  *int  `yaml:"max_temporal_days,omitempty"`
	EnsureChain      *bool `yaml:"ensure_chain,omitempty"`
	EnforceSameFrame *bool `yaml:"enforce_same_frame,omitempty"`
	MinRepeatDays    *int  `yaml:"min_repeat_days,omitempty"`
	MaxAcquisitions  *int  `yaml:"max_acquisitions,omitempty"`
}

// ToolsFile groups the external-tool parameters. These are passed through to
// the invoked tools and are opaque to the orchestrator's own logic.
type ToolsFile struct {
	DEMCommand             *string  `yaml:"dem_command,omitempty"`
	DEMURL                 *string  `yaml:"dem_url,omitempty"`
	OrbitCommand           *string  `yaml:"orbit_command,omitempty"`
	OrbitPrefer            *string  `yaml:"orbit_prefer,omitempty"`
	StackCommand           *string  `yaml:"stack_command,omitempty"`
	Workflow               *string  `yaml:"workflow,omitempty"`
	SwathNum               *string  `yaml:"swath_num,omitempty"`
	Coregistration         *string  `yaml:"coregistration,omitempty"`
	ReferenceDate          *string  `yaml:"reference_date,omitempty"`
	NumConnections         *int     `yaml:"num_connections,omitempty"`
	RangeLooks             *int     `yaml:"range_looks,omitempty"`
	AzimuthLooks           *int     `yaml:"azimuth_looks,omitempty"`
	FilterStrength         *float64 `yaml:"filter_strength,omitempty"`
	UnwrapMethod           *string  `yaml:"unwrap_method,omitempty"`
	NumProc                *int     `yaml:"num_proc,omitempty"`
	TimeseriesCommand      *string  `yaml:"timeseries_command,omitempty"`
	TroposphericCorrection *string  `yaml:"tropospheric_correction,omitempty"`
}

const maxFileSize = 1 * 1024 * 1024 // 1MB

// Load reads and parses a configuration file. Validation happens during
// Resolve; Load only rejects unreadable or oversized input.
func Load(path string) (*File, error) {
	cleanPath := filepath.Clean(path)
	info, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("stat config file: %w", err)
	}
	if info.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse config YAML: %w", err)
	}
	return &f, nil
}

// parseDay parses a required YYYY-MM-DD date field.
func parseDay(field, value string) (time.Time, error) {
	if strings.TrimSpace(value) == "" {
		return time.Time{}, &ConfigError{Field: field, Reason: "required"}
	}
	t, err := time.ParseInLocation("2006-01-02", value, time.UTC)
	if err != nil {
		return time.Time{}, &ConfigError{Field: field, Reason: fmt.Sprintf("must be YYYY-MM-DD (got %q)", value)}
	}
	return t, nil
}
