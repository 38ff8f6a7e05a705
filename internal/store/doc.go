// Package store provides the SQLite-backed analysis store that chart
// generation reads records from.
//
// Tables:
//   - records: one row per analyzed file, keyed by its SHA-256
//   - shares: ranked category breakdown entries of a record
//   - versions: per-package item versions, from strings or function
//     signatures (source column)
//
// # Deterministic Query Results
//
// Every read orders by id COLLATE BINARY (and rank or item within a
// record), so two reads of the same database yield identical records in
// identical order.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
