// Package memstore provides an ephemeral, thread-safe, in-memory
// implementation of the snapshot.Store interface.
//
// # Purpose
//
// This store keeps snapshots for the lifetime of the process only. It backs
// dry runs (`-store memory`) and tests that need a Store without touching
// disk or network.
//
// # Concurrency Model
//
// A single RWMutex guards the record slice. The scheduler is the only
// writer and saves at most once per tick, while the HTTP handlers may read
// concurrently, so a plain mutex is simpler than sync.Map here.
package memstore
