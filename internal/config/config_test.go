package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Parallel()

	tmpDir := t.TempDir()
	cfgPath := filepath.Join(tmpDir, "opstrack.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("{}\n"), 0644))

	cfg, err := LoadConfig(cfgPath)
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Listen)
	assert.Equal(t, "./data", cfg.DataDir)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "console", cfg.LogFormat)
	assert.Equal(t, 24*time.Hour, cfg.DedupWindow())
	assert.True(t, cfg.Scheduler.IsEnabled())
	assert.Equal(t, 100, cfg.Reminders.BatchSize)
	assert.Equal(t, filepath.Join("./data", "opstrack.db"), cfg.DBPath())
}

func TestLoadConfigExpandsTildePaths(t *testing.T) {
	t.Parallel()

	tmpDir := t.TempDir()
	cfgPath := filepath.Join(tmpDir, "opstrack.yaml")
	body := `
data_dir: "~/opstrack-data"
`
	require.NoError(t, os.WriteFile(cfgPath, []byte(body), 0644))

	cfg, err := LoadConfig(cfgPath)
	require.NoError(t, err)

	home, err := os.UserHomeDir()
	require.NoError(t, err)
	require.NotEmpty(t, home)

	assert.Equal(t, filepath.Join(home, "opstrack-data"), cfg.DataDir)
}

func TestParseConfigLoopOverrides(t *testing.T) {
	t.Parallel()

	cfg, err := ParseConfig([]byte(`
scheduler:
  enabled: false
loops:
  docs_expiry:
    enabled: false
    interval_minutes: 30
  task_overdue:
    schedule: "*/5 * * * *"
`))
	require.NoError(t, err)

	assert.False(t, cfg.Scheduler.IsEnabled())

	docs := cfg.Loop("docs_expiry")
	assert.False(t, docs.EnabledOr(true))
	assert.Equal(t, 30, docs.IntervalOr(60))

	tasks := cfg.Loop("task_overdue")
	assert.True(t, tasks.EnabledOr(true))
	assert.Equal(t, 15, tasks.IntervalOr(15))
	assert.Equal(t, "*/5 * * * *", tasks.Schedule)

	unknown := cfg.Loop("missing")
	assert.True(t, unknown.EnabledOr(true))
}

func TestParseConfigRejectsBadValues(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
	}{
		{name: "bad schedule", body: "loops:\n  bonus_due:\n    schedule: \"not a cron\"\n"},
		{name: "negative interval", body: "loops:\n  bonus_due:\n    interval_minutes: -5\n"},
		{name: "bad dedup window", body: "engine:\n  dedup_window: \"tomorrow\"\n"},
		{name: "zero dedup window", body: "engine:\n  dedup_window: 0s\n"},
		{name: "negative dedup window", body: "engine:\n  dedup_window: -2h\n"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := ParseConfig([]byte(tt.body))
			require.Error(t, err)
		})
	}
}

func TestParseConfigDedupWindow(t *testing.T) {
	t.Parallel()

	cfg, err := ParseConfig([]byte("engine:\n  dedup_window: 90m\n"))
	require.NoError(t, err)
	assert.Equal(t, 90*time.Minute, cfg.DedupWindow())

	_, err = ParseConfig([]byte("engine:\n  dedup_window: 0s\n"))
	assert.ErrorIs(t, err, ErrInvalidDedupWindow)
}

func TestParseConfigNotifierBlocks(t *testing.T) {
	t.Parallel()

	cfg, err := ParseConfig([]byte("notifiers:\n  email:\n    default_recipient: ops@example.com\n"))
	require.NoError(t, err)
	require.Contains(t, cfg.Notifiers, "email")
	assert.Equal(t, "ops@example.com", cfg.Notifiers["email"]["default_recipient"])
}
