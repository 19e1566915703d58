// Package storage persists the bot's recipient directory, broadcast
// history and homework list.
//
// Drivers share one contract: record-seen is an upsert, ListActive is a
// snapshot, and history is append-only.
package storage
