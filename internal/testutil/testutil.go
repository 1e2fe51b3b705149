// Package testutil provides shared test helpers for config files.
package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// SetupTestConfig creates a data directory and a minimal config file for
// tests. Returns the path to the generated config file.
func SetupTestConfig(t *testing.T, tmpDir string) string {
	t.Helper()

	dataDir := filepath.Join(tmpDir, "data")
	require.NoError(t, os.MkdirAll(dataDir, 0755))

	configContent := fmt.Sprintf(`data_dir: %s
server:
  port: 8090
remote:
  mode: direct
  airtable:
    api_key: fake-key-for-testing
    base_id: appTestBase
    words_table: tblWords
    users_table: tblUsers
`, dataDir)

	cfgPath := filepath.Join(tmpDir, "config.yml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(configContent), 0644))
	return cfgPath
}
