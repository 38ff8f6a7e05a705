package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/roach88/chartgen/internal/ir"
)

// createTestStore creates a new store in a temporary directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestRecord creates a record with one share and one version table.
func createTestRecord(id string) ir.Record {
	return ir.Record{
		ID:     id,
		Shares: []ir.Share{{Label: "busybox", Percent: 80}, {Label: "libc", Percent: 20}},
		Versions: map[string]ir.VersionMap{
			"libc": {"printf": "2.17", "memcpy": "2.31"},
		},
	}
}

func mustPut(t *testing.T, s *Store, rec ir.Record) {
	t.Helper()
	if _, err := s.PutRecord(context.Background(), rec); err != nil {
		t.Fatalf("PutRecord(%s) failed: %v", rec.ID, err)
	}
}
