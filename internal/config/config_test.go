package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_OverridesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`
[session]
name = "arena"
time_scale = 0.5

[scheduler]
tick_rate = "20ms"
max_ticks = 300

[timelines]
path = "data/timelines.yaml"
autostart = ["intro", "patrol"]

[logging]
level = "debug"
format = "json"
`))
	require.NoError(t, err)

	assert.Equal(t, "arena", cfg.Session.Name)
	assert.Equal(t, 0.5, cfg.Session.TimeScale)
	assert.Equal(t, 20*time.Millisecond, cfg.Scheduler.TickRate)
	assert.Equal(t, uint64(300), cfg.Scheduler.MaxTicks)
	assert.Equal(t, []string{"intro", "patrol"}, cfg.Timelines.Autostart)
	assert.Equal(t, "json", cfg.Logging.Format)

	// untouched sections keep their defaults
	assert.Equal(t, "scripts", cfg.Scripting.Dir)
	assert.Equal(t, 100, cfg.Journal.FlushInterval)
	assert.False(t, cfg.Database.Enabled)
	assert.NotZero(t, cfg.Session.StartTime)
}

func TestParse_Invalid(t *testing.T) {
	tests := map[string]string{
		"tick rate":   "[scheduler]\ntick_rate = \"0s\"\n",
		"time scale":  "[session]\ntime_scale = -1.0\n",
		"flush":       "[journal]\nflush_interval = 0\n",
		"dsn":         "[database]\nenabled = true\ndsn = \"\"\n",
		"log format":  "[logging]\nformat = \"xml\"\n",
		"bad toml":    "[scheduler\n",
		"batch limit": "[journal]\nbatch_limit = 0\n",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tickseq.toml")
	require.NoError(t, os.WriteFile(path, []byte("[scheduler]\ntick_rate = \"1s\"\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, time.Second, cfg.Scheduler.TickRate)

	_, err = Load(filepath.Join(dir, "missing.toml"))
	assert.ErrorContains(t, err, "read config")
}

func TestDefault_IsValid(t *testing.T) {
	assert.NoError(t, Default().Validate())
}
