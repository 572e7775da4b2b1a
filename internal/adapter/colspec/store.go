// Package colspec loads the column spec from a YAML file and keeps it current
// while the service runs.
//
// File format:
//
//	columns:
//	  - source: latitude
//	    output: latitude
//	  - source: bright_ti4
//	    output: brightness
//
// Watch follows edits to the file itself and also the atomic "..data"
// symlink swap Kubernetes uses to update mounted ConfigMaps.
package colspec

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/couchcryptid/hotspot-etl-service/internal/domain"
	"github.com/couchcryptid/hotspot-etl-service/internal/observability"
)

const defaultDebounce = 500 * time.Millisecond

// configMapDataDir is the symlink a projected ConfigMap volume swaps on update.
const configMapDataDir = "..data"

type file struct {
	Columns domain.ColumnSpec `yaml:"columns"`
}

// LoadFile reads and validates a column spec file.
func LoadFile(path string) (domain.ColumnSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := f.Columns.Validate(); err != nil {
		return nil, fmt.Errorf("validate %s: %w", path, err)
	}
	return f.Columns, nil
}

// Store hands out the current column spec. A Store created by Static never
// changes; one created by Open follows its file once Watch is running.
type Store struct {
	spec     atomic.Pointer[domain.ColumnSpec]
	path     string
	debounce time.Duration
	metrics  *observability.Metrics
	logger   *slog.Logger
}

// Static returns a Store that always yields spec.
func Static(spec domain.ColumnSpec) *Store {
	s := &Store{}
	s.spec.Store(&spec)
	return s
}

// Open loads path and returns a Store backed by it.
func Open(path string, metrics *observability.Metrics, logger *slog.Logger) (*Store, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("column spec file: %w", err)
	}
	spec, err := LoadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("column spec file: %w", err)
	}
	s := &Store{path: abs, debounce: defaultDebounce, metrics: metrics, logger: logger}
	s.spec.Store(&spec)
	return s, nil
}

// ColumnSpec returns the spec in effect. Callers must not modify it.
func (s *Store) ColumnSpec() domain.ColumnSpec {
	return *s.spec.Load()
}

// Reload re-reads the file. On error the previous spec stays in effect.
func (s *Store) Reload() error {
	if s.path == "" {
		return nil
	}
	spec, err := LoadFile(s.path)
	if err != nil {
		s.metrics.ColumnSpecReloads.WithLabelValues("error").Inc()
		return err
	}
	s.spec.Store(&spec)
	s.metrics.ColumnSpecReloads.WithLabelValues("success").Inc()
	s.logger.Info("column spec reloaded", "path", s.path, "columns", spec.String())
	return nil
}

// Watch reloads the spec whenever its file is written or recreated, until
// ctx is cancelled. The parent directory is watched so editors that save by
// rename are picked up. A Static store returns immediately.
func (s *Store) Watch(ctx context.Context) error {
	if s.path == "" {
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(s.path), err)
	}
	s.logger.Info("watching column spec file", "path", s.path)

	var timer *time.Timer
	var fire <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !s.affects(event) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(s.debounce)
			fire = timer.C
		case <-fire:
			fire = nil
			if err := s.Reload(); err != nil {
				s.logger.Error("column spec reload failed, keeping previous spec", "path", s.path, "error", err)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn("column spec watcher error", "error", err)
		}
	}
}

// affects reports whether event may have changed the spec file's contents.
// Kubernetes ConfigMap volumes never touch the file itself: they swap the
// "..data" symlink the file resolves through, which shows up as a Create.
func (s *Store) affects(event fsnotify.Event) bool {
	name := filepath.Clean(event.Name)
	switch {
	case name == s.path:
		return event.Has(fsnotify.Write) || event.Has(fsnotify.Create)
	case name == filepath.Join(filepath.Dir(s.path), configMapDataDir):
		return event.Has(fsnotify.Create)
	}
	return false
}
