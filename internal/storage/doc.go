// Package storage provides the persistence layer used by the worker.
//
// It currently supports:
//   - Campaign specs and their status transitions
//   - Linked sender accounts (read side only)
//   - The append-only campaign event log, plus the aggregation queries the
//     analytics read side is built on
package storage
