package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/chartgen/internal/ir"
)

// Version sources stored in versions.source.
const (
	sourceString   = "string"
	sourceFunction = "function"
)

// PutRecord inserts a record with its shares and version tables in one
// transaction. A record whose ID is already stored is left untouched and
// PutRecord reports false.
func (s *Store) PutRecord(ctx context.Context, rec ir.Record) (bool, error) {
	if rec.ID == "" {
		return false, fmt.Errorf("put record: empty id")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("put record %s: %w", rec.ID, err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO records (id) VALUES (?)
		ON CONFLICT(id) DO NOTHING
	`, rec.ID)
	if err != nil {
		return false, fmt.Errorf("put record %s: %w", rec.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("put record %s: %w", rec.ID, err)
	}
	if n == 0 {
		return false, nil
	}

	for rank, sh := range rec.Shares {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO shares (record_id, rank, label, percent)
			VALUES (?, ?, ?, ?)
		`, rec.ID, rank, sh.Label, sh.Percent); err != nil {
			return false, fmt.Errorf("put record %s: share %d: %w", rec.ID, rank, err)
		}
	}

	if err := insertVersions(ctx, tx, rec.ID, sourceString, rec.Versions); err != nil {
		return false, err
	}
	if err := insertVersions(ctx, tx, rec.ID, sourceFunction, rec.FuncVersions); err != nil {
		return false, err
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("put record %s: commit: %w", rec.ID, err)
	}
	return true, nil
}

func insertVersions(ctx context.Context, tx *sql.Tx, recordID, source string, tables map[string]ir.VersionMap) error {
	for pkg, m := range tables {
		for item, tag := range m {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO versions (record_id, source, package, item, tag)
				VALUES (?, ?, ?, ?, ?)
			`, recordID, source, pkg, item, tag); err != nil {
				return fmt.Errorf("put record %s: %s version %s/%s: %w", recordID, source, pkg, item, err)
			}
		}
	}
	return nil
}
