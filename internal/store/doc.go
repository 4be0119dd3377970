// Package store provides persistent storage for the orchestrator using SQLite.
//
// # Architecture
//
// SQLiteStore implements the Store interface with one implementation file per
// aggregate:
//
//   - commands.go: pending administrative commands (create, active lookup, ack)
//   - streaming.go: streaming sessions (one open row per user)
//   - talk.go: push-to-talk sessions (closed exactly once)
//
// # Invariants
//
//   - FetchActiveCommand returns at most one row: the newest with
//     acknowledged_at IS NULL and expires_at in the future. Expired rows are
//     filtered at read time and never deleted.
//   - AcknowledgeCommands is idempotent; re-acknowledging affects zero rows
//     and succeeds.
//   - StartStreamingSession closes prior open rows and inserts the new one in
//     a single transaction, so at most one open session per user survives.
//   - CloseTalkSession sets stopped_at and stop_reason together, guarded on
//     stopped_at IS NULL, so the recorded reason is written once.
//
// # SQLite Configuration
//
// The store uses SQLite with WAL mode for concurrent reads:
//
//	PRAGMA journal_mode=WAL;
//	PRAGMA foreign_keys=ON;
//
// All timestamps are stored as RFC3339 UTC strings so lexicographic
// comparison in SQL matches chronological order.
//
// All methods accept context.Context for cancellation support.
package store
