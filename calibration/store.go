// Package calibration persists HardwareConfig atomically and mutates
// live calibration offsets through the bounded-increment contract of
// spec §4.5, generalizing the teacher's
// LoadFullCalibrationFromFile/SaveFullCalibrationToFile pair into a
// write-to-temp-then-rename single-writer store.
package calibration

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.viam.com/rdk/logging"

	"rovercore/boardpins"
	"rovercore/hal"
	"rovercore/roverr"
)

//go:embed template.json
var packagedTemplate []byte

// Store is the single-writer owner of the persisted HardwareConfig
// file. Reads are cache-validated by mtime; writes are atomic
// (temp-file + rename) and invalidate the cache.
type Store struct {
	path   string
	logger logging.Logger

	mu      sync.RWMutex
	cached  *hal.HardwareConfig
	mtime   time.Time
}

// NewStore binds a store to path without touching disk.
func NewStore(path string, logger logging.Logger) *Store {
	return &Store{path: path, logger: logger}
}

// Load reads HardwareConfig from disk, falling back to the packaged
// template when the configured path does not exist yet. Subsequent
// calls return the cached value unless the file's mtime has advanced.
func (s *Store) Load() (hal.HardwareConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	info, err := os.Stat(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			if s.cached != nil {
				return *s.cached, nil
			}
			return s.loadBytes(packagedTemplate)
		}
		return hal.HardwareConfig{}, &roverr.ConfigError{Path: s.path, Op: "stat", Err: err}
	}

	if s.cached != nil && !info.ModTime().After(s.mtime) {
		return *s.cached, nil
	}

	raw, err := os.ReadFile(s.path)
	if err != nil {
		return hal.HardwareConfig{}, &roverr.ConfigError{Path: s.path, Op: "read", Err: err}
	}
	cfg, err := s.loadBytes(raw)
	if err != nil {
		return hal.HardwareConfig{}, err
	}
	s.mtime = info.ModTime()
	return cfg, nil
}

func (s *Store) loadBytes(raw []byte) (hal.HardwareConfig, error) {
	var cfg hal.HardwareConfig
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return hal.HardwareConfig{}, &roverr.ConfigError{Path: s.path, Op: "unmarshal", Err: err}
	}
	if err := cfg.Validate(boardpins.Validate); err != nil {
		return hal.HardwareConfig{}, err
	}
	s.cached = &cfg
	return cfg, nil
}

// Save validates cfg then writes it atomically: marshal to a temp file
// in the same directory, fsync, then rename over the destination so
// readers never observe a half-written file.
func (s *Store) Save(cfg hal.HardwareConfig) error {
	if err := cfg.Validate(boardpins.Validate); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return &roverr.ConfigError{Path: s.path, Op: "marshal", Err: err}
	}

	dir := filepath.Dir(s.path)
	if dir == "" {
		dir = "."
	}
	tmp, err := os.CreateTemp(dir, ".hwconfig-*.tmp")
	if err != nil {
		return &roverr.ConfigError{Path: s.path, Op: "create temp", Err: err}
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return &roverr.ConfigError{Path: s.path, Op: "write temp", Err: err}
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return &roverr.ConfigError{Path: s.path, Op: "sync temp", Err: err}
	}
	if err := tmp.Close(); err != nil {
		return &roverr.ConfigError{Path: s.path, Op: "close temp", Err: err}
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return &roverr.ConfigError{Path: s.path, Op: "chmod temp", Err: err}
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return &roverr.ConfigError{Path: s.path, Op: "rename", Err: err}
	}

	info, err := os.Stat(s.path)
	if err != nil {
		return errors.Wrap(err, "stat after save")
	}
	s.cached = &cfg
	s.mtime = info.ModTime()
	if s.logger != nil {
		s.logger.Infof("saved hardware config to %s", s.path)
	}
	return nil
}
