package storage

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/opensource-finance/claimguard/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiskStore(t *testing.T) {
	store, err := NewDiskStore(t.TempDir(), "/documents/")
	require.NoError(t, err)
	ctx := context.Background()

	url, err := store.Store(ctx, "tenant-001", domain.Blob{Name: "receipt.pdf", ContentType: "application/pdf", Data: []byte("%PDF-1.4")})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(url, "/documents/tenant-001/"), url)
	assert.True(t, strings.HasSuffix(url, "-receipt.pdf"), url)

	path, ok := store.Path(url)
	require.True(t, ok)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4", string(data))

	again, err := store.Store(ctx, "tenant-001", domain.Blob{Name: "receipt.pdf", Data: []byte("second")})
	require.NoError(t, err)
	assert.NotEqual(t, url, again)

	_, ok = store.Path("/elsewhere/x")
	assert.False(t, ok)
}

func TestDiskStoreRejectsBadTenant(t *testing.T) {
	store, err := NewDiskStore(t.TempDir(), "/documents")
	require.NoError(t, err)

	for _, tenant := range []string{"", "..", "a/b"} {
		_, err := store.Store(context.Background(), tenant, domain.Blob{Name: "x", Data: []byte("x")})
		assert.Error(t, err, "tenant %q", tenant)
	}
}

func TestCleanName(t *testing.T) {
	tests := map[string]string{
		"receipt.pdf":         "receipt.pdf",
		"../../etc/passwd":    "passwd",
		`C:\photos\box 1.jpg`: "box_1.jpg",
		"..":                  "file",
		"caja dañada.png":     "caja_da_ada.png",
	}
	for in, want := range tests {
		t.Run(in, func(t *testing.T) {
			assert.Equal(t, want, cleanName(in))
		})
	}
}

func TestNew(t *testing.T) {
	store, err := New(domain.StorageConfig{Type: "disk", Directory: t.TempDir(), BaseURL: "/documents"})
	require.NoError(t, err)
	assert.IsType(t, &DiskStore{}, store)

	_, err = New(domain.StorageConfig{Type: "ftp"})
	assert.Error(t, err)
}
