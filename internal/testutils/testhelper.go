package testutils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
)

type TestHelper struct {
	T      *testing.T
	Logger *logrus.Logger
}

// NewTestHelper creates a test helper with a debug logger.
func NewTestHelper(t *testing.T) *TestHelper {
	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel) // enable debug logs to track execution flow
	return &TestHelper{
		T:      t,
		Logger: logger,
	}
}

// WriteConfig writes a config file into a fresh temp dir and returns its path.
// bond_store points into the same dir so tests never touch the user's files.
func (h *TestHelper) WriteConfig(content string) string {
	h.T.Helper()
	dir := h.T.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content += "\nbond_store: " + filepath.Join(dir, "bonds.yaml") + "\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		h.T.Fatalf("failed to write config: %v", err)
	}
	return path
}
