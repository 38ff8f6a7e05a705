package index

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"

	"github.com/roach88/chartgen/internal/ident"
	"github.com/roach88/chartgen/internal/ir"
)

// Entry is the index record for one distinct digest.
type Entry struct {
	Kind        ir.Kind
	Digest      ir.Digest
	PayloadPath string
	Requesters  []ir.Requester
	State       State
}

type key struct {
	kind   ir.Kind
	digest ir.Digest
}

func (k key) String() string {
	return string(k.kind) + "/" + k.digest.Short()
}

// Index maps (kind, digest) to the single retained payload and its
// requesters.
//
// INVARIANTS:
//   - Exactly one payload file exists per entry until Purge.
//   - Every entry has at least one requester.
type Index struct {
	dir     string
	gen     ident.Generator
	entries map[key]*Entry
}

// New creates an empty index that stores payloads under cacheDir.
// The directory must already exist.
func New(cacheDir string, gen ident.Generator) *Index {
	if gen == nil {
		gen = ident.UUIDv7Generator{}
	}
	return &Index{
		dir:     cacheDir,
		gen:     gen,
		entries: make(map[key]*Entry),
	}
}

// Dir returns the cache directory holding payload files.
func (x *Index) Dir() string {
	return x.dir
}

// Put indexes one payload for requester and returns its digest.
//
// The payload is streamed through the hasher in bounded chunks while being
// written to a temporary file. A first-seen digest keeps that file under
// a digest-derived name; a repeated digest discards it and only records the
// requester. Requesters are kept as an ordered set.
func (x *Index) Put(kind ir.Kind, payload []byte, req ir.Requester) (ir.Digest, error) {
	if !kind.Valid() {
		return "", fmt.Errorf("put: unknown kind %q", kind)
	}

	tmpPath := filepath.Join(x.dir, ".payload-"+x.gen.Generate()+".tmp")
	digest, err := writeAndHash(kind, tmpPath, payload)
	if err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("put %s payload: %w", kind, err)
	}

	k := key{kind: kind, digest: digest}
	if e, ok := x.entries[k]; ok {
		if err := os.Remove(tmpPath); err != nil {
			return "", fmt.Errorf("put %s payload: discard duplicate: %w", kind, err)
		}
		if !slices.Contains(e.Requesters, req) {
			e.Requesters = append(e.Requesters, req)
		}
		return digest, nil
	}

	finalPath := x.payloadPath(kind, digest)
	if err := os.Rename(tmpPath, finalPath); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("put %s payload: %w", kind, err)
	}
	x.entries[k] = &Entry{
		Kind:        kind,
		Digest:      digest,
		PayloadPath: finalPath,
		Requesters:  []ir.Requester{req},
		State:       StateCollecting,
	}
	return digest, nil
}

func writeAndHash(kind ir.Kind, path string, payload []byte) (ir.Digest, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return "", err
	}
	h := ir.NewHasher(kind)
	if _, err := ir.CopyChunked(io.MultiWriter(f, h), bytes.NewReader(payload)); err != nil {
		f.Close()
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	return ir.SumDigest(h), nil
}

func (x *Index) payloadPath(kind ir.Kind, digest ir.Digest) string {
	return filepath.Join(x.dir, string(kind)+"-"+string(digest)+".json")
}

// UniqueDigests returns a copy of every entry of kind, sorted by digest.
func (x *Index) UniqueDigests(kind ir.Kind) []Entry {
	var out []Entry
	for k, e := range x.entries {
		if k.kind == kind {
			out = append(out, e.clone())
		}
	}
	slices.SortFunc(out, func(a, b Entry) int {
		switch {
		case a.Digest < b.Digest:
			return -1
		case a.Digest > b.Digest:
			return 1
		}
		return 0
	})
	return out
}

// RequestersOf returns the requesters of a digest in first-seen order.
func (x *Index) RequestersOf(kind ir.Kind, digest ir.Digest) []ir.Requester {
	e, ok := x.entries[key{kind: kind, digest: digest}]
	if !ok {
		return nil
	}
	return slices.Clone(e.Requesters)
}

// Lookup returns a copy of the entry for (kind, digest).
func (x *Index) Lookup(kind ir.Kind, digest ir.Digest) (Entry, bool) {
	e, ok := x.entries[key{kind: kind, digest: digest}]
	if !ok {
		return Entry{}, false
	}
	return e.clone(), true
}

// Len returns the number of distinct digests of kind.
func (x *Index) Len(kind ir.Kind) int {
	n := 0
	for k := range x.entries {
		if k.kind == kind {
			n++
		}
	}
	return n
}

// Transition moves a digest from one state to another. The caller supplies
// the expected prior state so out-of-order updates are observable.
func (x *Index) Transition(kind ir.Kind, digest ir.Digest, from, to State) error {
	k := key{kind: kind, digest: digest}
	e, ok := x.entries[k]
	if !ok {
		return fmt.Errorf("transition: unknown digest %s", k)
	}
	if e.State != from || !isAllowedTransition(from, to) {
		return &TransitionError{Key: k.String(), From: from, To: to, Got: e.State}
	}
	e.State = to
	return nil
}

// Purge deletes every retained payload file. Files already gone are not
// an error; every other failure is returned.
func (x *Index) Purge() []error {
	var errs []error
	for k, e := range x.entries {
		if e.PayloadPath == "" {
			continue
		}
		if err := os.Remove(e.PayloadPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, fmt.Errorf("purge payload %s: %w", k, err))
			continue
		}
		e.PayloadPath = ""
	}
	return errs
}

func (e *Entry) clone() Entry {
	c := *e
	c.Requesters = slices.Clone(e.Requesters)
	return c
}
