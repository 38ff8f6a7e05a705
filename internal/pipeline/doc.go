// Package pipeline runs one chart generation pass over a set of records.
//
// A run has three phases:
//
//  1. Canonicalize and index every record sequentially. Identical payloads
//     collapse onto one digest with an ordered list of requesters.
//  2. Render every unique digest of a kind exactly once on a bounded worker
//     pool, then wait for the whole batch.
//  3. Fan each artifact out to its requesters (copy or symlink) and clean up.
//
// Only a directory precondition failure or a payload write failure aborts a
// run. Everything else is isolated to the digest or requester it concerns
// and reported in the Summary.
package pipeline
