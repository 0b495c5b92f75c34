package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	for _, key := range []string{"TELEGRAM_TOKEN", "DATABASE_URL", "REPORT_INTERVAL_HOURS", "SUMMARY_TIME", "TIMEZONE", "WEEK_START", "LOG_LEVEL", "LOG_FILE"} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("TELEGRAM_TOKEN", " token ")

	cfg, err := LoadFrom(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "token", cfg.TelegramToken)
	assert.Equal(t, "task_planner.db", cfg.DatabaseURL)
	assert.Equal(t, 5*time.Hour, cfg.ReportInterval)
	assert.Empty(t, cfg.SummaryTime)
	assert.Equal(t, time.Local, cfg.Location)
	assert.Equal(t, time.Monday, cfg.WeekStart)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Empty(t, cfg.LogFile)
}

func TestLoad_FromEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv("TELEGRAM_TOKEN", "token")
	t.Setenv("DATABASE_URL", "data/planner.db")
	t.Setenv("REPORT_INTERVAL_HOURS", "3")
	t.Setenv("SUMMARY_TIME", "08:00")
	t.Setenv("TIMEZONE", "Europe/Moscow")
	t.Setenv("WEEK_START", "Sun")

	cfg, err := LoadFrom(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "data/planner.db", cfg.DatabaseURL)
	assert.Equal(t, 3*time.Hour, cfg.ReportInterval)
	assert.Equal(t, "08:00", cfg.SummaryTime)
	assert.Equal(t, "Europe/Moscow", cfg.Location.String())
	assert.Equal(t, time.Sunday, cfg.WeekStart)
}

func TestLoad_FromDotEnvFile(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("TELEGRAM_TOKEN=from-file\nREPORT_INTERVAL_HOURS=7\n"), 0o600))

	cfg, err := LoadFrom(dir)
	require.NoError(t, err)
	assert.Equal(t, "from-file", cfg.TelegramToken)
	assert.Equal(t, 7*time.Hour, cfg.ReportInterval)
}

func TestLoad_Errors(t *testing.T) {
	clearEnv(t)
	_, err := LoadFrom(t.TempDir())
	assert.ErrorContains(t, err, "TELEGRAM_TOKEN")

	t.Setenv("TELEGRAM_TOKEN", "token")
	t.Setenv("TIMEZONE", "Mars/Olympus")
	_, err = LoadFrom(t.TempDir())
	assert.ErrorContains(t, err, "TIMEZONE")

	t.Setenv("TIMEZONE", "UTC")
	t.Setenv("WEEK_START", "someday")
	_, err = LoadFrom(t.TempDir())
	assert.ErrorContains(t, err, "WEEK_START")
}

func TestParseInterval(t *testing.T) {
	assert.Equal(t, time.Duration(0), parseInterval(""))
	assert.Equal(t, time.Duration(0), parseInterval("-2"))
	assert.Equal(t, time.Duration(0), parseInterval("abc"))
	assert.Equal(t, 90*time.Minute, parseInterval("1.5"))
}

func TestNewLogger(t *testing.T) {
	logger, err := NewLogger(Config{LogLevel: "debug", LogFile: filepath.Join(t.TempDir(), "planner.log")})
	require.NoError(t, err)
	logger.Debugw("probe", "key", "value")

	_, err = NewLogger(Config{LogLevel: "loud"})
	assert.Error(t, err)
}
