package canon

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/roach88/chartgen/internal/ir"
)

// Entry is one (item, tag) pair of a version table.
type Entry struct {
	Item string
	Tag  string
}

// Ordered flattens a version map into its canonical sequence: distinct tags
// ascending, and within each tag the items ascending.
func Ordered(m ir.VersionMap) []Entry {
	entries := make([]Entry, 0, len(m))
	for item, tag := range m {
		entries = append(entries, Entry{Item: item, Tag: tag})
	}
	slices.SortFunc(entries, func(a, b Entry) int {
		if c := cmp.Compare(a.Tag, b.Tag); c != 0 {
			return c
		}
		return cmp.Compare(a.Item, b.Item)
	})
	return entries
}

// VersionTable canonicalizes a version or function-version map. ok is false
// for an empty map. Items and tags must be valid UTF-8 in NFC.
func VersionTable(m ir.VersionMap) (payload []byte, ok bool, err error) {
	if len(m) == 0 {
		return nil, false, nil
	}

	entries := Ordered(m)
	arr := make(ir.IRArray, len(entries))
	for i, e := range entries {
		if err := ir.ValidateString(e.Item); err != nil {
			return nil, false, fmt.Errorf("version table item: %w", err)
		}
		if err := ir.ValidateString(e.Tag); err != nil {
			return nil, false, fmt.Errorf("version table tag of %q: %w", e.Item, err)
		}
		arr[i] = ir.IRObject{
			"item": ir.IRString(e.Item),
			"tag":  ir.IRString(e.Tag),
		}
	}
	payload, err = ir.MarshalCanonical(ir.IRObject{"entries": arr})
	if err != nil {
		return nil, false, fmt.Errorf("canonicalize version table: %w", err)
	}
	return payload, true, nil
}
