// Package store is the SQLite persistence layer of schemahost.
//
// It plays three roles:
//   - storage collaborator: Tx.Execute runs queryir ops against
//     schema-scoped user tables inside one database transaction
//   - deployment log: every deployed source, in deploy order
//   - transaction log: the outcome of every top-level call, with its
//     storage deltas
//
// The database uses a single connection, so a Tx serializes all other
// access until it commits or rolls back. A committed call is logged through
// Tx.AppendTx inside its own transaction; a rolled-back call is logged by
// Store.AppendTx once the transaction has ended.
package store
