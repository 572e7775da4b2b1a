package colspec

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/hotspot-etl-service/internal/domain"
	"github.com/couchcryptid/hotspot-etl-service/internal/observability"
)

const specYAML = `columns:
  - source: latitude
    output: latitude
  - source: longitude
    output: longitude
  - source: bright_ti4
    output: brightness
`

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeSpec(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "columns.yaml")
	writeSpec(t, path, specYAML)

	spec, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, domain.ColumnSpec{
		{Source: "latitude", Output: "latitude"},
		{Source: "longitude", Output: "longitude"},
		{Source: "bright_ti4", Output: "brightness"},
	}, spec)
}

func TestLoadFile_Invalid(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name, content, wantErr string
	}{
		{"not yaml", "columns: [", "parse"},
		{"empty", "columns: []\n", "empty"},
		{"duplicate output", "columns:\n  - {source: a, output: x}\n  - {source: b, output: x}\n", "duplicate"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.name+".yaml")
			writeSpec(t, path, tt.content)
			_, err := LoadFile(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	_, err := LoadFile(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestStatic(t *testing.T) {
	spec := domain.ColumnSpec{{Source: "frp", Output: "power"}}
	s := Static(spec)
	assert.Equal(t, spec, s.ColumnSpec())
	require.NoError(t, s.Reload())
	require.NoError(t, s.Watch(context.Background()))
}

func TestStore_ReloadKeepsPreviousOnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "columns.yaml")
	writeSpec(t, path, specYAML)
	metrics := observability.NewMetricsForTesting()

	s, err := Open(path, metrics, discardLogger())
	require.NoError(t, err)

	writeSpec(t, path, "columns: [")
	require.Error(t, s.Reload())
	assert.Len(t, s.ColumnSpec(), 3)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.ColumnSpecReloads.WithLabelValues("error")), 0)

	writeSpec(t, path, "columns:\n  - {source: frp, output: power}\n")
	require.NoError(t, s.Reload())
	assert.Equal(t, domain.ColumnSpec{{Source: "frp", Output: "power"}}, s.ColumnSpec())
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.ColumnSpecReloads.WithLabelValues("success")), 0)
}

func TestOpen_InvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "columns.yaml")
	writeSpec(t, path, "columns: []\n")

	_, err := Open(path, observability.NewMetricsForTesting(), discardLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "column spec file")
}

func TestStore_WatchPicksUpChanges(t *testing.T) {
	path := filepath.Join(t.TempDir(), "columns.yaml")
	writeSpec(t, path, specYAML)

	s, err := Open(path, observability.NewMetricsForTesting(), discardLogger())
	require.NoError(t, err)
	s.debounce = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Watch(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	// The watcher registers asynchronously; keep rewriting until it sees one.
	want := domain.ColumnSpec{{Source: "latitude", Output: "lat"}, {Source: "longitude", Output: "lon"}}
	require.Eventually(t, func() bool {
		writeSpec(t, path, "columns:\n  - {source: latitude, output: lat}\n  - {source: longitude, output: lon}\n")
		got := s.ColumnSpec()
		return len(got) == 2 && got[0] == want[0] && got[1] == want[1]
	}, 5*time.Second, 50*time.Millisecond)
}

// mountConfigMap lays out dir the way a projected ConfigMap volume does:
// dir/columns.yaml -> ..data/columns.yaml, ..data -> ..<version>.
func mountConfigMap(t *testing.T, dir, version, content string) {
	t.Helper()
	versionDir := filepath.Join(dir, ".."+version)
	require.NoError(t, os.Mkdir(versionDir, 0o755))
	writeSpec(t, filepath.Join(versionDir, "columns.yaml"), content)

	tmp := filepath.Join(dir, "..data_tmp")
	require.NoError(t, os.Symlink(".."+version, tmp))
	require.NoError(t, os.Rename(tmp, filepath.Join(dir, "..data")))

	link := filepath.Join(dir, "columns.yaml")
	if _, err := os.Lstat(link); os.IsNotExist(err) {
		require.NoError(t, os.Symlink(filepath.Join("..data", "columns.yaml"), link))
	}
}

func TestStore_WatchFollowsConfigMapSymlinkSwap(t *testing.T) {
	dir := t.TempDir()
	mountConfigMap(t, dir, "v0", specYAML)
	path := filepath.Join(dir, "columns.yaml")

	s, err := Open(path, observability.NewMetricsForTesting(), discardLogger())
	require.NoError(t, err)
	require.Len(t, s.ColumnSpec(), 3)
	s.debounce = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Watch(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	// Each attempt publishes a fresh version, as the kubelet does.
	version := 0
	require.Eventually(t, func() bool {
		version++
		mountConfigMap(t, dir, fmt.Sprintf("v%d", version), "columns:\n  - {source: frp, output: power}\n")
		got := s.ColumnSpec()
		return len(got) == 1 && got[0] == domain.Column{Source: "frp", Output: "power"}
	}, 5*time.Second, 50*time.Millisecond)
}

func TestStore_Affects(t *testing.T) {
	dir := t.TempDir()
	s := &Store{path: filepath.Join(dir, "columns.yaml")}

	tests := []struct {
		name  string
		event fsnotify.Event
		want  bool
	}{
		{"write to file", fsnotify.Event{Name: filepath.Join(dir, "columns.yaml"), Op: fsnotify.Write}, true},
		{"file recreated", fsnotify.Event{Name: filepath.Join(dir, "columns.yaml"), Op: fsnotify.Create}, true},
		{"file chmod", fsnotify.Event{Name: filepath.Join(dir, "columns.yaml"), Op: fsnotify.Chmod}, false},
		{"configmap swap", fsnotify.Event{Name: filepath.Join(dir, "..data"), Op: fsnotify.Create}, true},
		{"configmap cleanup", fsnotify.Event{Name: filepath.Join(dir, "..data"), Op: fsnotify.Remove}, false},
		{"sibling file", fsnotify.Event{Name: filepath.Join(dir, "other.yaml"), Op: fsnotify.Write}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, s.affects(tt.event))
		})
	}
}
