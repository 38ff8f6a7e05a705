// Package ir provides the shared value types for chart generation.
//
// This package contains type definitions and the canonical serialization
// used for content addressing. All other internal packages import ir; ir
// imports nothing internal.
//
// Key design constraints:
//   - NO float types in payloads - percentages are fixed-point int64 (ShareScale)
//   - Payload bytes come only from MarshalCanonical (RFC 8785)
//   - Digests are namespaced by Kind; two kinds never share a digest space
//   - No timestamps, addresses or random values ever reach a payload
package ir
