// Package journal appends connection events to a PostgreSQL table.
//
// The journal is a connection plugin. Event handlers only enqueue; a
// background loop batches entries and writes them with pgx.Batch, flushing
// when the batch is full and on a fixed interval. Writes are append-only and
// keyed by a random UUID, so a retried batch never duplicates rows.
package journal
