package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/opensource-finance/claimguard/internal/domain"
)

// DiskStore writes blobs below a local directory.
type DiskStore struct {
	dir     string
	baseURL string
}

// NewDiskStore creates dir if needed. URLs are baseURL joined with the object key.
func NewDiskStore(dir, baseURL string) (*DiskStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("storage directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	return &DiskStore{dir: dir, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

// Store implements domain.DocumentStore.
func (s *DiskStore) Store(ctx context.Context, tenantID string, blob domain.Blob) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	key, err := objectKey(tenantID, blob.Name)
	if err != nil {
		return "", err
	}

	full := filepath.Join(s.dir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", fmt.Errorf("failed to create tenant directory: %w", err)
	}

	// Write to a temp file first so readers never see a partial document.
	tmp := full + ".tmp"
	if err := os.WriteFile(tmp, blob.Data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write document: %w", err)
	}
	if err := os.Rename(tmp, full); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("failed to write document: %w", err)
	}
	return s.baseURL + "/" + key, nil
}

// Path maps a URL returned by Store back to its file.
func (s *DiskStore) Path(url string) (string, bool) {
	key, ok := strings.CutPrefix(url, s.baseURL+"/")
	if !ok || strings.Contains(key, "..") {
		return "", false
	}
	return filepath.Join(s.dir, filepath.FromSlash(key)), true
}
