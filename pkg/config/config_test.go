package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, BackendGoBLE, cfg.Backend)
	assert.Equal(t, 20*time.Second, cfg.InitTimeout)
	assert.Equal(t, 10*time.Second, cfg.ScanTimeout)
	assert.Equal(t, 3*time.Second, cfg.PreviewRollDelay)
	assert.Equal(t, uint32(256), cfg.DiagnosticsBuffer)
	assert.NoError(t, cfg.Validate())
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, BackendGoBLE, cfg.Backend)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
log_level: debug
backend: tinygo
init_timeout: 45s
bond_store: /tmp/dice-bonds.yaml
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, BackendTinyGo, cfg.Backend)
	assert.Equal(t, 45*time.Second, cfg.InitTimeout)
	assert.Equal(t, 10*time.Second, cfg.ScanTimeout, "MUST keep defaults for unset keys")
	assert.Equal(t, "/tmp/dice-bonds.yaml", cfg.BondStore)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"log level", "log_level: chatty", "invalid log_level"},
		{"backend", "backend: bluez", "invalid backend"},
		{"init timeout", "init_timeout: 0s", "init_timeout must be positive"},
		{"scan timeout", "scan_timeout: -1s", "scan_timeout must be positive"},
		{"roll delay", "preview_roll_delay: -1s", "preview_roll_delay must not be negative"},
		{"malformed", "backend: [", "failed to parse config"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

func TestConfig_NewLogger(t *testing.T) {
	tests := []struct {
		name     string
		logLevel string
		want     logrus.Level
	}{
		{name: "creates logger with debug level", logLevel: "debug", want: logrus.DebugLevel},
		{name: "creates logger with warn level", logLevel: "warn", want: logrus.WarnLevel},
		{name: "falls back to info on garbage", logLevel: "chatty", want: logrus.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{LogLevel: tt.logLevel}

			logger := cfg.NewLogger()
			assert.Equal(t, tt.want, logger.GetLevel())

			formatter, ok := logger.Formatter.(*logrus.TextFormatter)
			require.True(t, ok)
			assert.True(t, formatter.FullTimestamp)
			assert.Equal(t, time.RFC3339, formatter.TimestampFormat)
		})
	}
}

func BenchmarkDefaultConfig(b *testing.B) {
	for i := 0; i < b.N; i++ {
		_ = DefaultConfig()
	}
}
