// Package index implements the run-scoped dedup index.
//
// The index content-addresses canonical payloads by digest within a kind,
// persists exactly one payload file per distinct digest in the cache
// directory, and records every requester of each digest in first-seen
// order.
//
// Thread-safety model:
//   - An Index is owned by a single controller goroutine.
//   - All Put calls happen before any render job is submitted.
//   - Render workers only read payload files by path; they never touch the
//     Index itself.
package index
