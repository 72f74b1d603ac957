package config

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

const minimalYAML = `
project_dir: /tmp/proj
aoi_bbox: [130.4, 32.6, 131.2, 33.1]
date_start: "2023-01-01"
date_end: "2023-06-30"
orbit_direction: ASC
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadAndResolveMinimal(t *testing.T) {
	f, err := Load(writeConfig(t, minimalYAML))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	r, err := Resolve(f)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	if r.OrbitDirection != OrbitAscending {
		t.Errorf("OrbitDirection = %q", r.OrbitDirection)
	}
	if r.Network.KNeighbors != DefaultKNeighbors {
		t.Errorf("KNeighbors = %d, want default %d", r.Network.KNeighbors, DefaultKNeighbors)
	}
	if !r.Network.EnsureChain || !r.Network.EnforceSameFrame {
		t.Error("chain/frame defaults should be on")
	}
	if r.Tools.StackCommand != DefaultStackCommand {
		t.Errorf("StackCommand = %q", r.Tools.StackCommand)
	}
	if r.Download.SkipExisting != true {
		t.Error("SkipExisting default should be true")
	}
	if got := r.StartDate().Format("2006-01-02"); got != "2023-01-01" {
		t.Errorf("StartDate = %s", got)
	}
}

func TestResolveRequiredFields(t *testing.T) {
	tests := []struct {
		name  string
		mut   func(*File)
		field string
	}{
		{"missing project_dir", func(f *File) { f.ProjectDir = "" }, "project_dir"},
		{"missing aoi_bbox", func(f *File) { f.AOIBBox = nil }, "aoi_bbox"},
		{"bad aoi_bbox", func(f *File) { f.AOIBBox = []float64{1, 2, 3} }, "aoi_bbox"},
		{"missing date_start", func(f *File) { f.DateStart = "" }, "date_start"},
		{"bad date_end", func(f *File) { f.DateEnd = "June 2023" }, "date_end"},
		{"reversed dates", func(f *File) { f.DateStart = "2023-06-30"; f.DateEnd = "2023-01-01" }, "date_end"},
		{"missing orbit_direction", func(f *File) { f.OrbitDirection = "" }, "orbit_direction"},
		{"bad orbit_direction", func(f *File) { f.OrbitDirection = "SIDEWAYS" }, "orbit_direction"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f, err := Load(writeConfig(t, minimalYAML))
			if err != nil {
				t.Fatal(err)
			}
			tc.mut(f)

			_, err = Resolve(f)
			var cerr *ConfigError
			if !errors.As(err, &cerr) {
				t.Fatalf("expected ConfigError, got %v", err)
			}
			if cerr.Field != tc.field {
				t.Errorf("field = %q, want %q", cerr.Field, tc.field)
			}
		})
	}
}

func TestResolveOptionValidation(t *testing.T) {
	f, _ := Load(writeConfig(t, minimalYAML+`
tools:
  orbit_prefer: approximate
`))
	_, err := Resolve(f)
	var cerr *ConfigError
	if !errors.As(err, &cerr) || cerr.Field != "tools.orbit_prefer" {
		t.Fatalf("expected tools.orbit_prefer ConfigError, got %v", err)
	}
}

func TestParseOrbitDirection(t *testing.T) {
	tests := []struct {
		in   string
		want OrbitDirection
	}{
		{"ASC", OrbitAscending},
		{"ascending", OrbitAscending},
		{"DESC", OrbitDescending},
		{"Descending", OrbitDescending},
		{"both", OrbitBoth},
	}
	for _, tc := range tests {
		got, err := ParseOrbitDirection(tc.in)
		if err != nil || got != tc.want {
			t.Errorf("ParseOrbitDirection(%q) = %q, %v", tc.in, got, err)
		}
	}
	if _, err := ParseOrbitDirection("up"); err == nil {
		t.Error("expected error for unknown direction")
	}

	if !OrbitBoth.Matches(OrbitAscending) || !OrbitAscending.Matches(OrbitAscending) {
		t.Error("Matches: BOTH and exact should pass")
	}
	if OrbitAscending.Matches(OrbitDescending) {
		t.Error("Matches: ASC should not accept DESC")
	}
}

func TestSnapshotByteStable(t *testing.T) {
	f, err := Load(writeConfig(t, minimalYAML))
	if err != nil {
		t.Fatal(err)
	}
	r, err := Resolve(f)
	if err != nil {
		t.Fatal(err)
	}

	dir1, dir2 := t.TempDir(), t.TempDir()
	p1, err := r.WriteSnapshot(dir1)
	if err != nil {
		t.Fatal(err)
	}
	p2, err := r.WriteSnapshot(dir2)
	if err != nil {
		t.Fatal(err)
	}

	d1, _ := os.ReadFile(p1)
	d2, _ := os.ReadFile(p2)
	if !bytes.Equal(d1, d2) {
		t.Errorf("snapshots differ:\n%s", cmp.Diff(string(d1), string(d2)))
	}
	if !strings.Contains(string(d1), "orbit_direction: ASC") {
		t.Errorf("snapshot missing resolved fields:\n%s", d1)
	}
}

func TestLoadCredentials(t *testing.T) {
	t.Setenv("EARTHDATA_USER", "alice")
	t.Setenv("EARTHDATA_PASS", "s3cret")

	c, err := LoadCredentials()
	if err != nil {
		t.Fatalf("LoadCredentials: %v", err)
	}
	if c.User != "alice" || c.Pass != "s3cret" {
		t.Errorf("creds = %+v", c)
	}

	envs := c.Env()
	if len(envs) != 2 || envs[0] != "EARTHDATA_USER=alice" {
		t.Errorf("Env() = %v", envs)
	}

	if (Credentials{}).Env() != nil {
		t.Error("empty credentials should produce nil env")
	}
}
