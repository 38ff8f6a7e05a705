// Package materialize fans a rendered artifact out to every requester of
// its digest and cleans up the shared artifact afterwards.
//
// Decision rule per digest:
//   - no artifact: every requester is skipped and the digest is discarded
//   - links enabled and more than one requester: one symlink per requester
//   - otherwise: one independent copy per requester
//
// The shared artifact is deleted after fan-out unless at least one symlink
// now points at it. Filesystem failures never abort the fan-out; each one
// is returned as a *FanoutError in the DigestReport.
package materialize
