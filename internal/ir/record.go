package ir

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnsafeName is returned by ValidateName.
var ErrUnsafeName = errors.New("not a valid file name segment")

// ValidateName checks that s can appear in a materialized output name
// without escaping the output directory: non-empty, not "." or "..", and
// free of path separators and NUL.
func ValidateName(s string) error {
	if s == "" || s == "." || s == ".." || strings.ContainsAny(s, "/\\\x00") {
		return fmt.Errorf("%q: %w", s, ErrUnsafeName)
	}
	return nil
}

// ShareScale is the number of fixed-point units per percent used in
// category-breakdown payloads. A share of 70.0% is stored as 700000.
const ShareScale = 10000

// Share is one entry of a ranked category breakdown.
// Percent is in the range 0..100.
type Share struct {
	Label   string  `yaml:"label" json:"label"`
	Percent float64 `yaml:"percent" json:"percent"`
}

// VersionMap maps an item name (string or function) to its version tag.
type VersionMap map[string]string

// Record is the analysis result for one file, as supplied by the analysis
// store. ID is the SHA-256 of the analyzed file.
type Record struct {
	ID string `yaml:"id" json:"id"`

	// Shares is the ranked category breakdown, sorted descending by Percent.
	Shares []Share `yaml:"shares,omitempty" json:"shares,omitempty"`

	// Versions holds one string-version table per package.
	Versions map[string]VersionMap `yaml:"versions,omitempty" json:"versions,omitempty"`

	// FuncVersions holds one function-version table per package.
	FuncVersions map[string]VersionMap `yaml:"func_versions,omitempty" json:"func_versions,omitempty"`
}

// Kind names an independent payload namespace with its own renderer.
type Kind string

const (
	// KindPieChart holds category-breakdown payloads.
	KindPieChart Kind = "piechart"
	// KindVersion holds version and function-version tables.
	KindVersion Kind = "version"
)

// Kinds lists every kind in scheduling order.
var Kinds = []Kind{KindPieChart, KindVersion}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	return k == KindPieChart || k == KindVersion
}

// Suffix is the kind-specific tail of a materialized output name.
type Suffix string

const (
	SuffixPieChart    Suffix = "piechart"
	SuffixVersion     Suffix = "version"
	SuffixFuncVersion Suffix = "funcversion"
)

// Requester identifies one consumer of a rendered digest.
type Requester struct {
	RecordID   string `json:"record_id"`
	Descriptor string `json:"descriptor,omitempty"` // package name, empty for pie charts
	Suffix     Suffix `json:"suffix"`
}

// OutputName returns the materialized file name for this requester:
// <recordId>-<descriptor>-<suffix>.<ext>, or <recordId>-<suffix>.<ext> when
// the descriptor is empty.
func (r Requester) OutputName(ext string) string {
	parts := []string{r.RecordID}
	if r.Descriptor != "" {
		parts = append(parts, r.Descriptor)
	}
	parts = append(parts, string(r.Suffix))
	return strings.Join(parts, "-") + "." + ext
}

func (r Requester) String() string {
	if r.Descriptor == "" {
		return fmt.Sprintf("%s/%s", r.RecordID, r.Suffix)
	}
	return fmt.Sprintf("%s/%s/%s", r.RecordID, r.Descriptor, r.Suffix)
}

// Job is one render unit: a single unique digest of one kind.
type Job struct {
	Kind        Kind   `json:"kind"`
	Digest      Digest `json:"digest"`
	PayloadPath string `json:"payload_path"`
}

// ArtifactName returns the cache artifact file name for a digest.
func ArtifactName(d Digest, ext string) string {
	return string(d) + "." + ext
}
