// Package storage provides the durable storage engine.
//
// The engine layers persistence over the in-memory keyspace:
//
//   - store: the primary in-memory keyspace with expiry and eviction
//   - wal: a mutation log replayed over the last snapshot on startup
//   - snapshot: periodic checksummed JSON dumps with backup fallback
//
// Mutations apply to memory first and are then logged, so a write
// rejected by the memory budget never reaches the log. A successful
// snapshot truncates the log it supersedes.
package storage
