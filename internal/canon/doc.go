// Package canon turns one record's sub-results into canonical payload bytes.
//
// Two sub-result shapes are supported:
//   - Category breakdowns: ranked (label, percent) lists, reduced with a
//     significance floor and a cumulative cutoff into pie-chart slices.
//   - Version tables: item -> version-tag maps, totally ordered by
//     (tag, item) so map iteration order never reaches the payload.
//
// Both are serialized with ir.MarshalCanonical. A sub-result that reduces
// to nothing yields no payload; that is not an error.
package canon
