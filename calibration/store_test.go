package calibration

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFallsBackToPackagedTemplateWhenMissing(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(filepath.Join(dir, "missing.json"), nil)

	cfg, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, "PCA9685", cfg.Driver.Chip)
	assert.NotNil(t, cfg.SteeringServo)
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hwconfig.json")
	store := NewStore(path, nil)

	cfg, err := store.Load()
	require.NoError(t, err)
	cfg.SteeringServo.CalibrationOffset = 0.4
	cfg.SteeringServo.SavedCalibrationOffset = 0.4

	require.NoError(t, store.Save(cfg))

	reloaded, err := NewStore(path, nil).Load()
	require.NoError(t, err)
	assert.Equal(t, 0.4, reloaded.SteeringServo.CalibrationOffset)
}

func TestSaveRejectsInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(filepath.Join(dir, "hwconfig.json"), nil)

	cfg, err := store.Load()
	require.NoError(t, err)
	cfg.SteeringServo.MinAngle = 30
	cfg.SteeringServo.MaxAngle = 30

	err = store.Save(cfg)
	assert.Error(t, err)
}

func TestLoadCachesByMtime(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hwconfig.json")
	store := NewStore(path, nil)

	cfg, err := store.Load()
	require.NoError(t, err)
	require.NoError(t, store.Save(cfg))

	first, err := store.Load()
	require.NoError(t, err)
	second, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, first, second)
}
