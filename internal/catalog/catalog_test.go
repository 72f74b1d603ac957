package catalog

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geodelta/sbaspipe/internal/config"
	"github.com/geodelta/sbaspipe/internal/geo"
	"github.com/geodelta/sbaspipe/internal/network"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func testScene(id string, day int) network.Scene {
	return network.Scene{
		ID:             id,
		Date:           time.Date(2023, 6, day, 0, 0, 0, 0, time.UTC),
		Frame:          "F101",
		OrbitDirection: config.OrbitAscending,
		Footprint:      geo.BBox{West: 10, South: 40, East: 11, North: 41},
		Source:         "asf",
	}
}

func TestMigrationsApply(t *testing.T) {
	db := openTestDB(t)
	version, dirty, err := db.SchemaVersion()
	require.NoError(t, err)
	assert.False(t, dirty, "schema reported dirty after fresh migration")
	assert.NotZero(t, version, "no migration version recorded")
}

func TestDiscoveryRoundTrip(t *testing.T) {
	db := openTestDB(t)
	now := time.Date(2023, 7, 1, 12, 0, 0, 0, time.UTC)

	scenes := []network.Scene{testScene("S1A_003", 3), testScene("S1A_001", 1)}
	require.NoError(t, db.RecordDiscovery(scenes, "run-1", now))

	got, err := db.AllScenes()
	require.NoError(t, err)
	want := []network.Scene{testScene("S1A_001", 1), testScene("S1A_003", 3)}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("scenes mismatch (-want +got):\n%s", diff)
	}
}

func TestDiscoveryKeepsTimeOfDay(t *testing.T) {
	db := openTestDB(t)
	now := time.Date(2023, 7, 1, 12, 0, 0, 0, time.UTC)

	s := testScene("S1A_001", 1)
	s.Date = time.Date(2023, 6, 1, 17, 42, 9, 0, time.UTC)
	require.NoError(t, db.RecordDiscovery([]network.Scene{s}, "run-1", now))

	got, err := db.AllScenes()
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, got[0].Date.Equal(s.Date), "acquisition time round-trip: got %v, want %v", got[0].Date, s.Date)
}

func TestRediscoveryKeepsLocalPath(t *testing.T) {
	db := openTestDB(t)
	now := time.Date(2023, 7, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, db.RecordDiscovery([]network.Scene{testScene("S1A_001", 1)}, "run-1", now))
	require.NoError(t, db.SetLocalPath("S1A_001", "/data/slc/S1A_001.zip", now))

	// Second discovery run sees the same scene again.
	require.NoError(t, db.RecordDiscovery([]network.Scene{testScene("S1A_001", 1)}, "run-2", now.Add(time.Hour)))

	got, err := db.AllScenes()
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "/data/slc/S1A_001.zip", got[0].LocalPath, "local path lost on rediscovery")
}

func TestSelectionReplacesPrevious(t *testing.T) {
	db := openTestDB(t)
	now := time.Date(2023, 7, 1, 12, 0, 0, 0, time.UTC)

	scenes := []network.Scene{testScene("a", 1), testScene("b", 2), testScene("c", 3)}
	require.NoError(t, db.RecordDiscovery(scenes, "run-1", now))

	require.NoError(t, db.MarkSelected([]string{"a", "b"}, now))
	require.NoError(t, db.MarkSelected([]string{"c"}, now))

	sel, err := db.SelectedScenes()
	require.NoError(t, err)
	require.Len(t, sel, 1)
	assert.Equal(t, "c", sel[0].ID, "selection not replaced")
}

func TestMarkSelectedUnknownScene(t *testing.T) {
	db := openTestDB(t)
	now := time.Date(2023, 7, 1, 12, 0, 0, 0, time.UTC)
	err := db.MarkSelected([]string{"missing"}, now)
	require.Error(t, err, "expected error selecting scene absent from catalog")
}

func TestSummarize(t *testing.T) {
	db := openTestDB(t)
	now := time.Date(2023, 7, 1, 12, 0, 0, 0, time.UTC)

	scenes := []network.Scene{testScene("a", 1), testScene("b", 2), testScene("c", 3)}
	require.NoError(t, db.RecordDiscovery(scenes, "run-1", now))
	require.NoError(t, db.MarkSelected([]string{"a", "b"}, now))
	require.NoError(t, db.SetLocalPath("a", "/data/slc/a.zip", now))

	sum, err := db.Summarize()
	require.NoError(t, err)
	assert.Equal(t, Summary{Total: 3, Selected: 2, Downloaded: 1}, sum)
}
