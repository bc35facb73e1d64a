package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testBundle = `{
  "nutrients": [{"code": "VITC", "name": "Vitamin C", "unit": "mg", "group": "vitamin"}],
  "categories": [{"category_type": "vitamin", "category_id": 1, "code": "VITC", "name": "Vitamin C", "unit": "mg"}],
  "foods": [{"food_id": 10, "name": "Orange"}]
}`

// setupEnv points every config key at a temporary data directory
func setupEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	bundlePath := filepath.Join(dir, "reference.json")
	require.NoError(t, os.WriteFile(bundlePath, []byte(testBundle), 0644))

	t.Setenv("DATA_DIR", dir)
	t.Setenv("DATABASE_DRIVER", "duckdb")
	t.Setenv("DATABASE_PATH", filepath.Join(dir, "nutrients.duckdb"))
	t.Setenv("DATABASE_URL", "")
	t.Setenv("REFERENCE_URL", "")
	t.Setenv("REFERENCE_PATH", bundlePath)
	t.Setenv("METADATA_PATH", filepath.Join(dir, "metadata.json"))
	t.Setenv("LOCK_FILE", filepath.Join(dir, "refresh.lock"))
	t.Setenv("TIMEZONE", "UTC")
	t.Setenv("TX_MAX_RETRIES", "5")
	t.Setenv("LOG_LEVEL", "ERROR")
	return dir
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	stdout := new(bytes.Buffer)
	cmd.SetOut(stdout)
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), err
}

func TestRootCmdHelp(t *testing.T) {
	output, err := execute(t, "--help")

	assert.NoError(t, err)
	assert.Contains(t, output, "Usage:")
	assert.Contains(t, output, "nutrient-engine [flags]")
	assert.Contains(t, output, "--stdio")
	assert.Contains(t, output, "--fetch-data")
	assert.Contains(t, output, "record_meal_entry")
	for _, sub := range []string{"repair", "check", "import", "version"} {
		assert.Contains(t, output, sub)
	}
}

func TestVersionCmd(t *testing.T) {
	output, err := execute(t, "version")

	assert.NoError(t, err)
	assert.Contains(t, output, "github.com/noot-app/nutrient-engine/releases/tag/")
}

func TestImportCmd(t *testing.T) {
	dir := setupEnv(t)

	_, err := execute(t, "import")
	require.NoError(t, err)

	raw, err := os.ReadFile(filepath.Join(dir, "metadata.json"))
	require.NoError(t, err)
	var meta map[string]any
	require.NoError(t, json.Unmarshal(raw, &meta))
	assert.NotEmpty(t, meta["imported_sha256"])

	_, err = execute(t, "import", "--force")
	assert.NoError(t, err)
}

func TestFetchDataFlag(t *testing.T) {
	dir := setupEnv(t)

	_, err := execute(t, "--fetch-data")
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(dir, "nutrients.duckdb"))
	assert.NoError(t, err)
}

func TestCheckAndRepairCmds(t *testing.T) {
	setupEnv(t)
	_, err := execute(t, "import")
	require.NoError(t, err)

	output, err := execute(t, "check", "--user", "1", "--date", "2024-03-10")
	require.NoError(t, err)
	var report map[string]any
	require.NoError(t, json.Unmarshal([]byte(output), &report))
	assert.Equal(t, true, report["consistent"])
	assert.Equal(t, float64(1), report["user_id"])

	output, err = execute(t, "repair", "--user", "1", "--date", "2024-03-10")
	require.NoError(t, err)
	var repaired map[string]any
	require.NoError(t, json.Unmarshal([]byte(output), &repaired))
	assert.Equal(t, true, repaired["repaired"])
	assert.Equal(t, "2024-03-10", repaired["date"])
}

func TestCmdErrors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		args []string
		want string
	}{
		{
			name: "missing user flag",
			args: []string{"check"},
			want: `required flag(s) "user" not set`,
		},
		{
			name: "bad date",
			args: []string{"repair", "--user", "1", "--date", "March 10"},
			want: "invalid date",
		},
		{
			name: "unknown driver",
			env:  map[string]string{"DATABASE_DRIVER": "sqlite"},
			args: []string{"check", "--user", "1"},
			want: "unsupported DATABASE_DRIVER",
		},
		{
			name: "postgres without url",
			env:  map[string]string{"DATABASE_DRIVER": "postgres"},
			args: []string{"import"},
			want: "DATABASE_URL is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setupEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := execute(t, tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestImportCmd_RejectsOverlappingRequirements(t *testing.T) {
	dir := setupEnv(t)
	bundle := `{
  "nutrients": [{"code": "FIBTG", "name": "Total fiber", "unit": "g", "group": "fiber"}],
  "categories": [{"category_type": "fiber", "category_id": 1, "code": "FIBER_TOTAL", "name": "Total Fiber", "unit": "g"}],
  "requirements": [
    {"category_type": "fiber", "category_id": 1, "sex": "female", "age_min": 19, "age_max": 50, "amount": 25, "unit": "g"},
    {"category_type": "fiber", "category_id": 1, "sex": "female", "age_min": 50, "age_max": 120, "amount": 21, "unit": "g"}
  ]
}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "reference.json"), []byte(bundle), 0644))

	_, err := execute(t, "import")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid reference data")

	raw, err := os.ReadFile(filepath.Join(dir, "metadata.json"))
	if err == nil {
		var meta map[string]any
		require.NoError(t, json.Unmarshal(raw, &meta))
		assert.Empty(t, meta["imported_sha256"])
	}
}
