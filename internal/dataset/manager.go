package dataset

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/noot-app/nutrient-engine/internal/config"
	"github.com/noot-app/nutrient-engine/internal/types"
)

// ErrNoBundle is returned when there is no local bundle and no URL to fetch one from
var ErrNoBundle = errors.New("no reference bundle available")

// Metadata holds information about the downloaded and imported bundle
type Metadata struct {
	SHA256         string    `json:"sha256"`
	DownloadedAt   time.Time `json:"downloaded_at"`
	ETag           string    `json:"etag,omitempty"`
	Size           int64     `json:"size"`
	ImportedSHA256 string    `json:"imported_sha256,omitempty"`
	ImportedAt     time.Time `json:"imported_at,omitempty"`
}

// Importer receives a decoded bundle. LoadCatalog tells whether the target
// already holds reference data.
type Importer interface {
	ImportReference(ctx context.Context, data *types.ReferenceData) error
	LoadCatalog(ctx context.Context) (types.CatalogData, error)
}

// Manager handles reference bundle downloading, metadata and import
type Manager struct {
	bundleURL    string
	bundlePath   string
	metadataPath string
	lockPath     string
	log          *slog.Logger
	config       *config.Config
	client       *http.Client
	waitTimeout  time.Duration
	pollInterval time.Duration
}

// NewManager creates a new reference bundle manager
func NewManager(bundleURL, bundlePath, metadataPath, lockPath string, cfg *config.Config, logger *slog.Logger) *Manager {
	return &Manager{
		bundleURL:    bundleURL,
		bundlePath:   bundlePath,
		metadataPath: metadataPath,
		lockPath:     lockPath,
		log:          logger,
		config:       cfg,
		client:       &http.Client{Timeout: 5 * time.Minute},
		waitTimeout:  10 * time.Minute,
		pollInterval: 2 * time.Second,
	}
}

// EnsureBundle makes sure a bundle is on disk, downloading it from the
// configured URL when missing or stale
func (m *Manager) EnsureBundle(ctx context.Context) error {
	start := time.Now()
	m.log.Info("Ensuring reference bundle is available", "bundle_path", m.bundlePath)

	_, statErr := os.Stat(m.bundlePath)
	exists := statErr == nil

	if m.bundleURL == "" {
		if !exists {
			return fmt.Errorf("%w: %s does not exist and REFERENCE_URL is not set", ErrNoBundle, m.bundlePath)
		}
		m.log.Info("No REFERENCE_URL configured, using local bundle", "duration", time.Since(start))
		return nil
	}

	if exists {
		if m.config.DisableRemoteCheck {
			m.log.Info("Remote checks disabled, using local bundle", "duration", time.Since(start))
			return nil
		}

		upToDate, err := m.isUpToDate(ctx)
		if err != nil {
			m.log.Warn("Failed to verify bundle freshness", "error", err)
		}
		if upToDate {
			m.log.Info("Reference bundle is up-to-date", "duration", time.Since(start))
			return nil
		}
	}

	if err := m.downloadWithLock(ctx); err != nil {
		return fmt.Errorf("failed to download reference bundle: %w", err)
	}

	m.log.Info("Reference bundle ensured", "duration", time.Since(start))
	return nil
}

// Import loads the bundle into imp unless force is false and the same bundle
// was already imported into a store that still holds reference data
func (m *Manager) Import(ctx context.Context, imp Importer, force bool) (bool, error) {
	start := time.Now()

	sha, err := computeSHA256(m.bundlePath)
	if err != nil {
		return false, fmt.Errorf("failed to hash reference bundle: %w", err)
	}

	meta, err := m.loadMetadata()
	if err != nil {
		m.log.Debug("No bundle metadata found", "error", err)
		meta = &Metadata{}
	}

	if !force && meta.ImportedSHA256 == sha {
		current, err := imp.LoadCatalog(ctx)
		if err != nil {
			return false, fmt.Errorf("failed to inspect store: %w", err)
		}
		if len(current.Nutrients) > 0 {
			m.log.Info("Reference bundle unchanged, skipping import", "sha256", shortSHA(sha))
			return false, nil
		}
		m.log.Info("Store holds no reference data, importing again", "sha256", shortSHA(sha))
	}

	data, err := LoadBundle(m.bundlePath)
	if err != nil {
		return false, err
	}

	if err := imp.ImportReference(ctx, data); err != nil {
		return false, fmt.Errorf("failed to import reference bundle: %w", err)
	}

	meta.SHA256 = sha
	meta.ImportedSHA256 = sha
	meta.ImportedAt = time.Now().UTC()
	if err := m.saveMetadata(meta); err != nil {
		m.log.Warn("Failed to save metadata", "error", err)
	}

	m.log.Info("Reference bundle imported",
		"sha256", shortSHA(sha),
		"foods", len(data.Foods),
		"composites", len(data.Composites),
		"requirements", len(data.Requirements),
		"duration", time.Since(start))
	return true, nil
}

// LoadBundle decodes a reference bundle file
func LoadBundle(path string) (*types.ReferenceData, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open reference bundle: %w", err)
	}
	defer f.Close()

	return DecodeBundle(f)
}

// DecodeBundle decodes a reference bundle, rejecting unknown fields
func DecodeBundle(r io.Reader) (*types.ReferenceData, error) {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()

	var data types.ReferenceData
	if err := dec.Decode(&data); err != nil {
		return nil, fmt.Errorf("failed to decode reference bundle: %w", err)
	}
	return &data, nil
}

// isUpToDate checks if the local bundle matches the remote one
func (m *Manager) isUpToDate(ctx context.Context) (bool, error) {
	localMeta, err := m.loadMetadata()
	if err != nil {
		m.log.Debug("No local metadata found", "error", err)
		return false, nil
	}

	remoteMeta, err := m.getRemoteMetadata(ctx)
	if err != nil {
		return false, err
	}

	if remoteMeta.ETag != "" && localMeta.ETag != "" {
		upToDate := remoteMeta.ETag == localMeta.ETag
		m.log.Debug("ETag comparison", "local", localMeta.ETag, "remote", remoteMeta.ETag, "up_to_date", upToDate)
		return upToDate, nil
	}

	upToDate := remoteMeta.Size == localMeta.Size
	m.log.Debug("Size comparison", "local", localMeta.Size, "remote", remoteMeta.Size, "up_to_date", upToDate)
	return upToDate, nil
}

// getRemoteMetadata fetches metadata from the remote URL using a HEAD request
func (m *Manager) getRemoteMetadata(ctx context.Context) (*Metadata, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, m.bundleURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HEAD request failed with status: %d", resp.StatusCode)
	}

	return &Metadata{
		ETag: resp.Header.Get("ETag"),
		Size: resp.ContentLength,
	}, nil
}

// downloadWithLock downloads the bundle while holding the lock file
func (m *Manager) downloadWithLock(ctx context.Context) error {
	start := time.Now()
	m.log.Info("Attempting to acquire download lock", "lock_path", m.lockPath)

	if m.config.IgnoreLock {
		if _, err := os.Stat(m.lockPath); err == nil {
			m.log.Warn("IGNORE_LOCK enabled, forcefully removing existing lock file", "lock_path", m.lockPath)
			if err := os.Remove(m.lockPath); err != nil {
				m.log.Warn("Failed to remove lock file", "error", err)
			}
		}
	}

	lockFile, err := acquireLock(m.lockPath)
	if err != nil {
		if !m.config.IgnoreLock {
			m.log.Info("Another instance is downloading, waiting", "lock_path", m.lockPath)
			return m.waitForDownload(ctx)
		}
		m.log.Warn("IGNORE_LOCK enabled but still failed to acquire lock, proceeding anyway", "error", err)
	}
	if lockFile != nil {
		defer releaseLock(lockFile, m.lockPath)
	}

	if err := os.MkdirAll(filepath.Dir(m.bundlePath), 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	// same directory as the bundle so the final rename is atomic
	tmpPath := m.bundlePath + ".tmp"
	etag, err := m.downloadFile(ctx, tmpPath)
	if err != nil {
		os.Remove(tmpPath)
		return err
	}

	if _, err := LoadBundle(tmpPath); err != nil {
		os.Remove(tmpPath)
		return err
	}

	sha, err := computeSHA256(tmpPath)
	if err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to compute SHA256: %w", err)
	}

	stat, err := os.Stat(tmpPath)
	if err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to stat file: %w", err)
	}

	if err := os.Rename(tmpPath, m.bundlePath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to move bundle into place: %w", err)
	}

	meta, err := m.loadMetadata()
	if err != nil {
		meta = &Metadata{}
	}
	meta.SHA256 = sha
	meta.DownloadedAt = time.Now().UTC()
	meta.ETag = etag
	meta.Size = stat.Size()
	if err := m.saveMetadata(meta); err != nil {
		m.log.Warn("Failed to save metadata", "error", err)
	}

	m.log.Info("Reference bundle downloaded", "size", stat.Size(), "sha256", shortSHA(sha), "duration", time.Since(start))
	return nil
}

// downloadFile writes the remote bundle to filePath and returns its ETag
func (m *Manager) downloadFile(ctx context.Context, filePath string) (string, error) {
	m.log.Info("Downloading reference bundle", "url", m.bundleURL, "path", filePath)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.bundleURL, nil)
	if err != nil {
		return "", err
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download failed with status: %d", resp.StatusCode)
	}

	file, err := os.Create(filePath)
	if err != nil {
		return "", err
	}
	defer file.Close()

	written, err := io.Copy(file, resp.Body)
	if err != nil {
		return "", err
	}

	m.log.Debug("Download completed", "bytes", written)
	return resp.Header.Get("ETag"), nil
}

// waitForDownload waits for another instance to finish the download
func (m *Manager) waitForDownload(ctx context.Context) error {
	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()

	timeout := time.After(m.waitTimeout)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timeout:
			return fmt.Errorf("timeout waiting for download by other instance")
		case <-ticker.C:
			_, bundleErr := os.Stat(m.bundlePath)
			_, lockErr := os.Stat(m.lockPath)
			if bundleErr == nil && os.IsNotExist(lockErr) {
				m.log.Info("Reference bundle now available after other instance completed")
				return nil
			}
		}
	}
}

func (m *Manager) loadMetadata() (*Metadata, error) {
	data, err := os.ReadFile(m.metadataPath)
	if err != nil {
		return nil, err
	}

	var meta Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}

	return &meta, nil
}

func (m *Manager) saveMetadata(meta *Metadata) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(m.metadataPath), 0755); err != nil {
		return err
	}
	return os.WriteFile(m.metadataPath, data, 0644)
}

// acquireLock attempts to acquire an exclusive lock
func acquireLock(lockPath string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(lockPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}

	// O_EXCL fails if the file exists
	return os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
}

func releaseLock(f *os.File, lockPath string) {
	f.Close()
	os.Remove(lockPath)
}

func computeSHA256(filePath string) (string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", err
	}
	defer file.Close()

	hash := sha256.New()
	if _, err := io.Copy(hash, file); err != nil {
		return "", err
	}

	return hex.EncodeToString(hash.Sum(nil)), nil
}

func shortSHA(sha string) string {
	if len(sha) > 16 {
		return sha[:16] + "..."
	}
	return sha
}
