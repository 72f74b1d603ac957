package config

import (
	"fmt"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/geodelta/sbaspipe/internal/fsutil"
	"github.com/geodelta/sbaspipe/internal/geo"
)

// Defaults applied during Resolve for every optional field. Enumerated here
// so the default table can be audited in one place.
const (
	DefaultSearchCommand   = "asfquery"
	DefaultDownloadCommand = "asffetch"
	DefaultMaxResults      = 5000
	DefaultBeamMode        = "IW"
	DefaultProcessingLevel = "SLC"
	DefaultProcesses       = 8

	DefaultKNeighbors      = 2
	DefaultMaxTemporalDays = 48

	DefaultDEMCommand             = "dem.py"
	DefaultDEMURL                 = "https://step.esa.int/auxdata/dem/SRTMGL1/"
	DefaultOrbitCommand           = "fetchOrbit"
	DefaultOrbitPrefer            = "precise"
	DefaultStackCommand           = "stackSentinel.py"
	DefaultWorkflow               = "interferogram"
	DefaultSwathNum               = "1 2 3"
	DefaultCoregistration         = "NESD"
	DefaultReferenceDate          = "auto"
	DefaultRangeLooks             = 9
	DefaultAzimuthLooks           = 3
	DefaultFilterStrength         = 0.5
	DefaultUnwrapMethod           = "snaphu"
	DefaultNumProc                = 8
	DefaultTimeseriesCommand      = "smallbaselineApp.py"
	DefaultTroposphericCorrection = "no"
)

// Resolved is the immutable validated configuration snapshot. Every field a
// later step consumes is concrete after Resolve; steps never consult the
// raw file again. Field order is fixed, so the YAML snapshot is byte-stable
// for identical logical input.
type Resolved struct {
	ProjectDir     string         `yaml:"project_dir"`
	AOIBBox        []float64      `yaml:"aoi_bbox,flow"`
	DateStart      string         `yaml:"date_start"`
	DateEnd        string         `yaml:"date_end"`
	OrbitDirection OrbitDirection `yaml:"orbit_direction"`

	Download DownloadOptions `yaml:"download"`
	Network  NetworkOptions  `yaml:"network"`
	Tools    ToolOptions     `yaml:"tools"`
}

// DownloadOptions are the resolved scene search/download options.
type DownloadOptions struct {
	SearchCommand   string `yaml:"search_command"`
	DownloadCommand string `yaml:"download_command"`
	MaxResults      int    `yaml:"max_results"`
	Platform        string `yaml:"platform"`
	BeamMode        string `yaml:"beam_mode"`
	ProcessingLevel string `yaml:"processing_level"`
	SkipExisting    bool   `yaml:"skip_existing"`
	Processes       int    `yaml:"processes"`
}

// NetworkOptions are the resolved network-construction parameters.
type NetworkOptions struct {
	KNeighbors       int  `yaml:"k_neighbors"`
	MaxTemporalDays  int  `yaml:"max_temporal_days"`
	EnsureChain      bool `yaml:"ensure_chain"`
	EnforceSameFrame bool `yaml:"enforce_same_frame"`
	MinRepeatDays    int  `yaml:"min_repeat_days"`
	MaxAcquisitions  int  `yaml:"max_acquisitions"`
}

// ToolOptions are the resolved external-tool parameters.
type ToolOptions struct {
	DEMCommand             string  `yaml:"dem_command"`
	DEMURL                 string  `yaml:"dem_url"`
	OrbitCommand           string  `yaml:"orbit_command"`
	OrbitPrefer            string  `yaml:"orbit_prefer"`
	StackCommand           string  `yaml:"stack_command"`
	Workflow               string  `yaml:"workflow"`
	SwathNum               string  `yaml:"swath_num"`
	Coregistration         string  `yaml:"coregistration"`
	ReferenceDate          string  `yaml:"reference_date"`
	NumConnections         int     `yaml:"num_connections"`
	RangeLooks             int     `yaml:"range_looks"`
	AzimuthLooks           int     `yaml:"azimuth_looks"`
	FilterStrength         float64 `yaml:"filter_strength"`
	UnwrapMethod           string  `yaml:"unwrap_method"`
	NumProc                int     `yaml:"num_proc"`
	TimeseriesCommand      string  `yaml:"timeseries_command"`
	TroposphericCorrection string  `yaml:"tropospheric_correction"`
}

func strOr(p *string, def string) string {
	if p != nil && *p != "" {
		return *p
	}
	return def
}

func intOr(p *int, def int) int {
	if p != nil {
		return *p
	}
	return def
}

func floatOr(p *float64, def float64) float64 {
	if p != nil {
		return *p
	}
	return def
}

func boolOr(p *bool, def bool) bool {
	if p != nil {
		return *p
	}
	return def
}

// Resolve validates f, applies the default table, and returns the immutable
// resolved snapshot. Any missing or invalid required field is reported as a
// ConfigError naming the field.
func Resolve(f *File) (*Resolved, error) {
	if f.ProjectDir == "" {
		return nil, &ConfigError{Field: "project_dir", Reason: "required"}
	}
	projectDir, err := filepath.Abs(f.ProjectDir)
	if err != nil {
		return nil, &ConfigError{Field: "project_dir", Reason: err.Error()}
	}

	if len(f.AOIBBox) == 0 {
		return nil, &ConfigError{Field: "aoi_bbox", Reason: "required"}
	}
	if _, err := geo.FromSlice(f.AOIBBox); err != nil {
		return nil, &ConfigError{Field: "aoi_bbox", Reason: err.Error()}
	}

	start, err := parseDay("date_start", f.DateStart)
	if err != nil {
		return nil, err
	}
	end, err := parseDay("date_end", f.DateEnd)
	if err != nil {
		return nil, err
	}
	if end.Before(start) {
		return nil, &ConfigError{Field: "date_end", Reason: "before date_start"}
	}

	if f.OrbitDirection == "" {
		return nil, &ConfigError{Field: "orbit_direction", Reason: "required"}
	}
	orbit, err := ParseOrbitDirection(f.OrbitDirection)
	if err != nil {
		return nil, &ConfigError{Field: "orbit_direction", Reason: err.Error()}
	}

	dl := f.Download
	if dl == nil {
		dl = &DownloadFile{}
	}
	nw := f.Network
	if nw == nil {
		nw = &NetworkFile{}
	}
	tl := f.Tools
	if tl == nil {
		tl = &ToolsFile{}
	}

	r := &Resolved{
		ProjectDir:     projectDir,
		AOIBBox:        append([]float64(nil), f.AOIBBox...),
		DateStart:      f.DateStart,
		DateEnd:        f.DateEnd,
		OrbitDirection: orbit,
		Download: DownloadOptions{
			SearchCommand:   strOr(dl.SearchCommand, DefaultSearchCommand),
			DownloadCommand: strOr(dl.DownloadCommand, DefaultDownloadCommand),
			MaxResults:      intOr(dl.MaxResults, DefaultMaxResults),
			Platform:        strOr(dl.Platform, ""),
			BeamMode:        strOr(dl.BeamMode, DefaultBeamMode),
			ProcessingLevel: strOr(dl.ProcessingLevel, DefaultProcessingLevel),
			SkipExisting:    boolOr(dl.SkipExisting, true),
			Processes:       intOr(dl.Processes, DefaultProcesses),
		},
		Network: NetworkOptions{
			KNeighbors:       intOr(nw.KNeighbors, DefaultKNeighbors),
			MaxTemporalDays:  intOr(nw.MaxTemporalDays, DefaultMaxTemporalDays),
			EnsureChain:      boolOr(nw.EnsureChain, true),
			EnforceSameFrame: boolOr(nw.EnforceSameFrame, true),
			MinRepeatDays:    intOr(nw.MinRepeatDays, 0),
			MaxAcquisitions:  intOr(nw.MaxAcquisitions, 0),
		},
		Tools: ToolOptions{
			DEMCommand:             strOr(tl.DEMCommand, DefaultDEMCommand),
			DEMURL:                 strOr(tl.DEMURL, DefaultDEMURL),
			OrbitCommand:           strOr(tl.OrbitCommand, DefaultOrbitCommand),
			OrbitPrefer:            strOr(tl.OrbitPrefer, DefaultOrbitPrefer),
			StackCommand:           strOr(tl.StackCommand, DefaultStackCommand),
			Workflow:               strOr(tl.Workflow, DefaultWorkflow),
			SwathNum:               strOr(tl.SwathNum, DefaultSwathNum),
			Coregistration:         strOr(tl.Coregistration, DefaultCoregistration),
			ReferenceDate:          strOr(tl.ReferenceDate, DefaultReferenceDate),
			NumConnections:         intOr(tl.NumConnections, 0),
			RangeLooks:             intOr(tl.RangeLooks, DefaultRangeLooks),
			AzimuthLooks:           intOr(tl.AzimuthLooks, DefaultAzimuthLooks),
			FilterStrength:         floatOr(tl.FilterStrength, DefaultFilterStrength),
			UnwrapMethod:           strOr(tl.UnwrapMethod, DefaultUnwrapMethod),
			NumProc:                intOr(tl.NumProc, DefaultNumProc),
			TimeseriesCommand:      strOr(tl.TimeseriesCommand, DefaultTimeseriesCommand),
			TroposphericCorrection: strOr(tl.TroposphericCorrection, DefaultTroposphericCorrection),
		},
	}

	if err := r.validateOptions(); err != nil {
		return nil, err
	}
	return r, nil
}

// validateOptions checks resolved option groups for values no step could
// act on.
func (r *Resolved) validateOptions() error {
	if r.Network.KNeighbors < 1 {
		return &ConfigError{Field: "network.k_neighbors", Reason: "must be >= 1"}
	}
	if r.Network.MaxTemporalDays < 1 {
		return &ConfigError{Field: "network.max_temporal_days", Reason: "must be >= 1"}
	}
	if r.Network.MinRepeatDays < 0 {
		return &ConfigError{Field: "network.min_repeat_days", Reason: "must be >= 0"}
	}
	if r.Network.MaxAcquisitions < 0 {
		return &ConfigError{Field: "network.max_acquisitions", Reason: "must be >= 0"}
	}
	switch r.Tools.OrbitPrefer {
	case "precise", "restituted":
	default:
		return &ConfigError{Field: "tools.orbit_prefer", Reason: fmt.Sprintf("must be precise or restituted (got %q)", r.Tools.OrbitPrefer)}
	}
	switch r.Tools.Workflow {
	case "interferogram", "slc", "correlation", "offset":
	default:
		return &ConfigError{Field: "tools.workflow", Reason: fmt.Sprintf("unknown workflow %q", r.Tools.Workflow)}
	}
	switch r.Tools.UnwrapMethod {
	case "snaphu", "icu":
	default:
		return &ConfigError{Field: "tools.unwrap_method", Reason: fmt.Sprintf("must be snaphu or icu (got %q)", r.Tools.UnwrapMethod)}
	}
	return nil
}

// AOI returns the area-of-interest bounding box.
func (r *Resolved) AOI() geo.BBox {
	b, _ := geo.FromSlice(r.AOIBBox) // validated during Resolve
	return b
}

// StartDate returns the parsed date_start.
func (r *Resolved) StartDate() time.Time {
	t, _ := time.ParseInLocation("2006-01-02", r.DateStart, time.UTC)
	return t
}

// EndDate returns the parsed date_end.
func (r *Resolved) EndDate() time.Time {
	t, _ := time.ParseInLocation("2006-01-02", r.DateEnd, time.UTC)
	return t
}

// SnapshotName is the resolved-config file written into the project root.
const SnapshotName = "config.resolved.yaml"

// WriteSnapshot persists the resolved configuration for reproducibility
// audits. Output is byte-stable for identical logical input so snapshots
// from different runs can be diffed.
func (r *Resolved) WriteSnapshot(projectDir string) (string, error) {
	data, err := yaml.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("marshal resolved config: %w", err)
	}
	path := filepath.Join(projectDir, SnapshotName)
	if err := fsutil.WriteFileAtomic(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write resolved config: %w", err)
	}
	return path, nil
}
