// Package repotest provides throwaway SQLite repositories for tests.
package repotest

import (
	"path/filepath"
	"testing"

	"github.com/opensource-finance/claimguard/internal/domain"
	"github.com/opensource-finance/claimguard/internal/repository"
)

// New opens a migrated SQLite repository in a temporary directory.
// It is closed when the test finishes.
func New(tb testing.TB) domain.Repository {
	tb.Helper()

	path := filepath.Join(tb.TempDir(), "claimguard-test.db")
	repo, err := repository.New(domain.RepositoryConfig{Driver: "sqlite", SQLitePath: path})
	if err != nil {
		tb.Fatalf("failed to create repository: %v", err)
	}
	tb.Cleanup(func() { repo.Close() })
	return repo
}
