package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestReadConfigFromFile(t *testing.T) {
	path := writeConfig(t, `
peer_id: -GO0001-123456789012
port: 51413
max_attempts: 3
mongo: mongodb://localhost:27017
`)
	cfg, err := ReadConfigFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "-GO0001-123456789012", cfg.PeerID)
	assert.Equal(t, uint16(51413), cfg.Port)
	assert.Equal(t, 3, cfg.MaxAttempts)
	assert.Equal(t, int32(-1), cfg.NumWant)
	assert.Equal(t, 15*time.Second, cfg.BaseTimeoutDuration())
	assert.Equal(t, "mongodb://localhost:27017", cfg.Mongo)
}

func TestReadConfigFromFileInvalid(t *testing.T) {
	_, err := ReadConfigFromFile(writeConfig(t, "peer_id: short\n"))
	assert.True(t, errors.IsNotValid(err), "%v", err)

	_, err = ReadConfigFromFile(writeConfig(t, "max_attempts: 0\n"))
	assert.True(t, errors.IsNotValid(err), "%v", err)

	_, err = ReadConfigFromFile(writeConfig(t, "port: [1\n"))
	assert.Error(t, err)

	_, err = ReadConfigFromFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
