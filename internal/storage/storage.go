// Package storage persists claim documents and photos.
package storage

import (
	"fmt"
	"path"
	"strings"

	"github.com/google/uuid"
	"github.com/opensource-finance/claimguard/internal/domain"
)

// New creates the document store selected by cfg.Type.
func New(cfg domain.StorageConfig) (domain.DocumentStore, error) {
	switch cfg.Type {
	case "disk", "":
		return NewDiskStore(cfg.Directory, cfg.BaseURL)
	case "minio":
		return NewMinIOStore(cfg)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
}

// objectKey places a blob under its tenant with a unique prefix so repeated
// uploads of the same file name never collide.
func objectKey(tenantID, name string) (string, error) {
	if tenantID == "" {
		return "", fmt.Errorf("tenantID is required")
	}
	if strings.ContainsAny(tenantID, `/\`) || tenantID == "." || tenantID == ".." {
		return "", fmt.Errorf("invalid tenantID %q", tenantID)
	}
	return path.Join(tenantID, uuid.NewString()+"-"+cleanName(name)), nil
}

// cleanName strips directories and characters that are awkward in URLs.
func cleanName(name string) string {
	name = path.Base(strings.ReplaceAll(name, `\`, "/"))
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	out := strings.Trim(b.String(), ".")
	if out == "" {
		return "file"
	}
	return out
}
