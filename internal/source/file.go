package source

import (
	"bytes"
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/chartgen/internal/ir"
)

// RecordFile is the YAML document layout of a record file:
//
//	records:
//	  - id: 3b0c...
//	    shares:
//	      - {label: busybox, percent: 70}
//	    versions:
//	      libc: {printf: "2.17"}
//	    func_versions:
//	      libc: {memcpy: "2.31"}
type RecordFile struct {
	Records []ir.Record `yaml:"records"`
}

// File is a Source backed by a YAML record file. The file is read on every
// call to Records.
type File struct {
	Path string
}

// Records loads and validates the file.
func (f *File) Records(ctx context.Context) ([]ir.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rf, err := LoadFile(f.Path)
	if err != nil {
		return nil, err
	}
	return rf.Records, nil
}

// LoadFile reads and parses a record file. Unknown fields are rejected.
func LoadFile(path string) (*RecordFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read record file: %w", err)
	}
	return Parse(data)
}

// Parse decodes a record file from data.
func Parse(data []byte) (*RecordFile, error) {
	var rf RecordFile
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&rf); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateRecords(rf.Records); err != nil {
		return nil, fmt.Errorf("invalid record file: %w", err)
	}
	return &rf, nil
}

// validateRecords checks fields that end up in file names or payloads.
func validateRecords(records []ir.Record) error {
	for i, rec := range records {
		if rec.ID == "" {
			return fmt.Errorf("records[%d]: id is required", i)
		}
		if err := ir.ValidateName(rec.ID); err != nil {
			return fmt.Errorf("records[%d]: id %w", i, err)
		}
		for j, sh := range rec.Shares {
			if sh.Label == "" {
				return fmt.Errorf("records[%d].shares[%d]: label is required", i, j)
			}
			if sh.Percent < 0 || sh.Percent > 100 {
				return fmt.Errorf("records[%d].shares[%d]: percent %v out of range", i, j, sh.Percent)
			}
		}
		for pkg := range rec.Versions {
			if err := ir.ValidateName(pkg); err != nil {
				return fmt.Errorf("records[%d].versions: package %w", i, err)
			}
		}
		for pkg := range rec.FuncVersions {
			if err := ir.ValidateName(pkg); err != nil {
				return fmt.Errorf("records[%d].func_versions: package %w", i, err)
			}
		}
	}
	return nil
}
