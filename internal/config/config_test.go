package config

import (
	"io"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockFileReader implements FileReader for testing
type MockFileReader struct {
	files map[string]string // filename -> content
}

func (m MockFileReader) Open(filename string) (io.ReadCloser, error) {
	if content, exists := m.files[filename]; exists {
		return io.NopCloser(strings.NewReader(content)), nil
	}
	return nil, os.ErrNotExist
}

func (m MockFileReader) Stat(filename string) (os.FileInfo, error) {
	if _, exists := m.files[filename]; exists {
		return nil, nil
	}
	return nil, os.ErrNotExist
}

var configKeys = []string{
	"AUTH_TOKEN", "PORT", "ENV", "DATA_DIR", "DATABASE_DRIVER", "DATABASE_PATH",
	"DATABASE_URL", "REFERENCE_URL", "REFERENCE_PATH", "METADATA_PATH", "LOCK_FILE",
	"DISABLE_REMOTE_CHECK", "IGNORE_LOCK", "TIMEZONE", "TX_MAX_RETRIES",
}

// unsetConfigEnv removes every config key for the duration of the test
func unsetConfigEnv(t *testing.T) {
	t.Helper()
	for _, key := range configKeys {
		if original, existed := os.LookupEnv(key); existed {
			t.Cleanup(func() { os.Setenv(key, original) })
		} else {
			t.Cleanup(func() { os.Unsetenv(key) })
		}
		os.Unsetenv(key)
	}
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name     string
		envVars  map[string]string
		expected *Config
	}{
		{
			name:    "default values",
			envVars: map[string]string{},
			expected: &Config{
				AuthToken:      "super-secret-token",
				Port:           "8080",
				Environment:    "production",
				DataDir:        "./data",
				DatabaseDriver: "duckdb",
				DatabasePath:   "data/nutrients.duckdb", // filepath.Join result
				ReferencePath:  "data/reference.json",
				MetadataPath:   "data/metadata.json",
				LockFile:       "data/refresh.lock",
				Timezone:       "UTC",
				TxMaxRetries:   5,
			},
		},
		{
			name: "custom values",
			envVars: map[string]string{
				"AUTH_TOKEN":           "custom-token",
				"PORT":                 "3000",
				"ENV":                  "development",
				"DATA_DIR":             "/custom/data",
				"DATABASE_DRIVER":      "Postgres",
				"DATABASE_URL":         "postgres://localhost/nutrients",
				"REFERENCE_URL":        "https://example.com/reference.json",
				"DISABLE_REMOTE_CHECK": "true",
				"IGNORE_LOCK":          "1",
				"TIMEZONE":             "Europe/Berlin",
				"TX_MAX_RETRIES":       "9",
			},
			expected: &Config{
				AuthToken:          "custom-token",
				Port:               "3000",
				Environment:        "development",
				DataDir:            "/custom/data",
				DatabaseDriver:     "postgres",
				DatabasePath:       "/custom/data/nutrients.duckdb",
				DatabaseURL:        "postgres://localhost/nutrients",
				ReferenceURL:       "https://example.com/reference.json",
				ReferencePath:      "/custom/data/reference.json",
				MetadataPath:       "/custom/data/metadata.json",
				LockFile:           "/custom/data/refresh.lock",
				DisableRemoteCheck: true,
				IgnoreLock:         true,
				Timezone:           "Europe/Berlin",
				TxMaxRetries:       9,
			},
		},
		{
			name: "unparseable numbers and bools fall back",
			envVars: map[string]string{
				"TX_MAX_RETRIES": "many",
				"IGNORE_LOCK":    "sometimes",
			},
			expected: &Config{
				AuthToken:      "super-secret-token",
				Port:           "8080",
				Environment:    "production",
				DataDir:        "./data",
				DatabaseDriver: "duckdb",
				DatabasePath:   "data/nutrients.duckdb",
				ReferencePath:  "data/reference.json",
				MetadataPath:   "data/metadata.json",
				LockFile:       "data/refresh.lock",
				Timezone:       "UTC",
				TxMaxRetries:   5,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			unsetConfigEnv(t)
			for key, value := range tt.envVars {
				os.Setenv(key, value)
			}

			config := LoadWithFileReader(MockFileReader{files: map[string]string{}})
			assert.Equal(t, tt.expected, config)
		})
	}
}

func TestIsDevelopment(t *testing.T) {
	tests := []struct {
		name        string
		environment string
		expected    bool
	}{
		{"production mode", "production", false},
		{"development mode", "development", true},
		{"empty environment", "", false},
		{"other environment", "staging", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{Environment: tt.environment}
			assert.Equal(t, tt.expected, cfg.IsDevelopment())
		})
	}
}

func TestLocation(t *testing.T) {
	loc, err := (&Config{Timezone: "America/New_York"}).Location()
	require.NoError(t, err)
	assert.Equal(t, "America/New_York", loc.String())

	_, err = (&Config{Timezone: "Mars/Olympus_Mons"}).Location()
	assert.ErrorContains(t, err, "invalid TIMEZONE")
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{DatabaseDriver: DriverDuckDB, Timezone: "UTC", TxMaxRetries: 5}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"duckdb defaults", func(c *Config) {}, ""},
		{"postgres with url", func(c *Config) { c.DatabaseDriver = DriverPostgres; c.DatabaseURL = "postgres://x" }, ""},
		{"postgres without url", func(c *Config) { c.DatabaseDriver = DriverPostgres }, "DATABASE_URL is required"},
		{"unknown driver", func(c *Config) { c.DatabaseDriver = "sqlite" }, "unsupported DATABASE_DRIVER"},
		{"no retries", func(c *Config) { c.TxMaxRetries = 0 }, "TX_MAX_RETRIES"},
		{"bad timezone", func(c *Config) { c.Timezone = "Nowhere/Special" }, "invalid TIMEZONE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestLoadEnvFile(t *testing.T) {
	t.Run("with .env file", func(t *testing.T) {
		unsetConfigEnv(t)
		t.Cleanup(func() { os.Unsetenv("ANOTHER_VAR") })
		os.Unsetenv("ANOTHER_VAR")

		mockReader := MockFileReader{
			files: map[string]string{
				".env": `# Test .env file
AUTH_TOKEN=test-token-from-env
PORT=9999
# Comment line

ANOTHER_VAR="value with spaces"
`,
			},
		}

		loadEnvFileWithReader(mockReader)

		assert.Equal(t, "test-token-from-env", os.Getenv("AUTH_TOKEN"))
		assert.Equal(t, "9999", os.Getenv("PORT"))
		assert.Equal(t, "value with spaces", os.Getenv("ANOTHER_VAR"))

		// values already in the environment win
		os.Setenv("AUTH_TOKEN", "cli-override-token")
		loadEnvFileWithReader(mockReader)

		assert.Equal(t, "cli-override-token", os.Getenv("AUTH_TOKEN"))
		assert.Equal(t, "9999", os.Getenv("PORT"))
	})

	t.Run("without .env file", func(t *testing.T) {
		unsetConfigEnv(t)
		os.Setenv("AUTH_TOKEN", "cli-token")

		loadEnvFileWithReader(MockFileReader{files: map[string]string{}})

		assert.Equal(t, "cli-token", os.Getenv("AUTH_TOKEN"))
		_, portSet := os.LookupEnv("PORT")
		assert.False(t, portSet)
	})

	t.Run("Load picks up .env values", func(t *testing.T) {
		unsetConfigEnv(t)

		cfg := LoadWithFileReader(MockFileReader{files: map[string]string{
			".env": "DATABASE_DRIVER=postgres\nDATABASE_URL=postgres://db/nutrients\nTIMEZONE=Asia/Tokyo\n",
		}})

		assert.Equal(t, DriverPostgres, cfg.DatabaseDriver)
		assert.Equal(t, "postgres://db/nutrients", cfg.DatabaseURL)
		assert.Equal(t, "Asia/Tokyo", cfg.Timezone)
	})
}
