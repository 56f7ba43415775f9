package cfg

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsPortAndBindAddress(t *testing.T) {
	path := filepath.Join(t.TempDir(), "coordinator.yaml")
	require.NoError(t, os.WriteFile(path, []byte("controller: quiz\n"), 0o644))

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9123, c.Port)
	assert.Equal(t, "0.0.0.0", c.BindAddress)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "coordinator.yaml")
	contents := "bind_address: \"127.0.0.1\"\nport: 4000\nping_interval_seconds: 3\n"
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1", c.BindAddress)
	assert.Equal(t, 4000, c.Port)
	assert.Equal(t, 3*time.Second, c.PingInterval())
}

func TestTimingsZeroWhenUnset(t *testing.T) {
	var c Config
	assert.Equal(t, time.Duration(0), c.PingInterval())
	assert.Equal(t, time.Duration(0), c.IdleTimeout())
	assert.Equal(t, time.Duration(0), c.LoginTimeout())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
