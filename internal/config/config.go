package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // TIMEZONE must resolve in minimal containers

	"github.com/joho/godotenv"
)

const (
	DriverDuckDB   = "duckdb"
	DriverPostgres = "postgres"
)

// Config holds all configuration for the nutrient engine
type Config struct {
	// Auth
	AuthToken string

	// Server
	Port        string
	Environment string

	// Storage
	DataDir        string
	DatabaseDriver string
	DatabasePath   string
	DatabaseURL    string

	// Reference bundle
	ReferenceURL       string
	ReferencePath      string
	MetadataPath       string
	LockFile           string
	DisableRemoteCheck bool
	IgnoreLock         bool

	// Engine
	Timezone     string
	TxMaxRetries int
}

// FileReader abstracts file access so .env loading can be tested
type FileReader interface {
	Open(filename string) (io.ReadCloser, error)
	Stat(filename string) (os.FileInfo, error)
}

type osFileReader struct{}

func (osFileReader) Open(filename string) (io.ReadCloser, error) { return os.Open(filename) }
func (osFileReader) Stat(filename string) (os.FileInfo, error)   { return os.Stat(filename) }

// Load reads configuration from environment variables after merging .env
func Load() *Config {
	return LoadWithFileReader(osFileReader{})
}

// LoadWithFileReader is Load with an injectable file reader
func LoadWithFileReader(reader FileReader) *Config {
	loadEnvFileWithReader(reader)

	dataDir := getEnv("DATA_DIR", "./data")

	return &Config{
		AuthToken:          getEnv("AUTH_TOKEN", "super-secret-token"),
		Port:               getEnv("PORT", "8080"),
		Environment:        getEnv("ENV", "production"),
		DataDir:            dataDir,
		DatabaseDriver:     strings.ToLower(getEnv("DATABASE_DRIVER", DriverDuckDB)),
		DatabasePath:       getEnv("DATABASE_PATH", filepath.Join(dataDir, "nutrients.duckdb")),
		DatabaseURL:        getEnv("DATABASE_URL", ""),
		ReferenceURL:       getEnv("REFERENCE_URL", ""),
		ReferencePath:      getEnv("REFERENCE_PATH", filepath.Join(dataDir, "reference.json")),
		MetadataPath:       getEnv("METADATA_PATH", filepath.Join(dataDir, "metadata.json")),
		LockFile:           getEnv("LOCK_FILE", filepath.Join(dataDir, "refresh.lock")),
		DisableRemoteCheck: getBool("DISABLE_REMOTE_CHECK"),
		IgnoreLock:         getBool("IGNORE_LOCK"),
		Timezone:           getEnv("TIMEZONE", "UTC"),
		TxMaxRetries:       getInt("TX_MAX_RETRIES", 5),
	}
}

// IsDevelopment reports whether ENV is "development"
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// Location resolves TIMEZONE, the zone that defines "today"
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// Validate rejects configurations the server cannot start with
func (c *Config) Validate() error {
	switch c.DatabaseDriver {
	case DriverDuckDB:
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when DATABASE_DRIVER is %s", DriverPostgres)
		}
	default:
		return fmt.Errorf("unsupported DATABASE_DRIVER %q (expected %s or %s)", c.DatabaseDriver, DriverDuckDB, DriverPostgres)
	}
	if c.TxMaxRetries < 1 {
		return fmt.Errorf("TX_MAX_RETRIES must be at least 1, got %d", c.TxMaxRetries)
	}
	_, err := c.Location()
	return err
}

// loadEnvFileWithReader merges .env into the environment. Variables that are
// already set win over the file.
func loadEnvFileWithReader(reader FileReader) {
	if _, err := reader.Stat(".env"); err != nil {
		return
	}
	f, err := reader.Open(".env")
	if err != nil {
		return
	}
	defer f.Close()

	values, err := godotenv.Parse(f)
	if err != nil {
		return
	}
	for key, value := range values {
		if _, exists := os.LookupEnv(key); !exists {
			os.Setenv(key, value)
		}
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBool(key string) bool {
	v, err := strconv.ParseBool(os.Getenv(key))
	return err == nil && v
}

func getInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return defaultValue
}
