package store

import (
	"context"
	"fmt"

	"github.com/roach88/chartgen/internal/ir"
)

// Records returns every stored record ordered by id COLLATE BINARY.
// Shares keep their stored rank order.
//
// Returns an empty slice (not nil) if the store is empty.
func (s *Store) Records(ctx context.Context) ([]ir.Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id FROM records
		ORDER BY id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}

	records := []ir.Record{}
	byID := make(map[string]int)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan record: %w", err)
		}
		byID[id] = len(records)
		records = append(records, ir.Record{ID: id})
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	rows.Close()

	if err := s.readShares(ctx, records, byID); err != nil {
		return nil, err
	}
	if err := s.readVersions(ctx, records, byID); err != nil {
		return nil, err
	}
	return records, nil
}

func (s *Store) readShares(ctx context.Context, records []ir.Record, byID map[string]int) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT record_id, label, percent FROM shares
		ORDER BY record_id COLLATE BINARY ASC, rank ASC
	`)
	if err != nil {
		return fmt.Errorf("query shares: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		var sh ir.Share
		if err := rows.Scan(&id, &sh.Label, &sh.Percent); err != nil {
			return fmt.Errorf("scan share: %w", err)
		}
		i, ok := byID[id]
		if !ok {
			continue
		}
		records[i].Shares = append(records[i].Shares, sh)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate shares: %w", err)
	}
	return nil
}

func (s *Store) readVersions(ctx context.Context, records []ir.Record, byID map[string]int) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT record_id, source, package, item, tag FROM versions
		ORDER BY record_id COLLATE BINARY ASC, source ASC, package COLLATE BINARY ASC, item COLLATE BINARY ASC
	`)
	if err != nil {
		return fmt.Errorf("query versions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id, source, pkg, item, tag string
		if err := rows.Scan(&id, &source, &pkg, &item, &tag); err != nil {
			return fmt.Errorf("scan version: %w", err)
		}
		i, ok := byID[id]
		if !ok {
			continue
		}
		rec := &records[i]
		var tables *map[string]ir.VersionMap
		switch source {
		case sourceString:
			tables = &rec.Versions
		case sourceFunction:
			tables = &rec.FuncVersions
		default:
			return fmt.Errorf("record %s: unknown version source %q", id, source)
		}
		if *tables == nil {
			*tables = make(map[string]ir.VersionMap)
		}
		if (*tables)[pkg] == nil {
			(*tables)[pkg] = make(ir.VersionMap)
		}
		(*tables)[pkg][item] = tag
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate versions: %w", err)
	}
	return nil
}
