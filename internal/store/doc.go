// Package store provides SQLite-backed durable storage for verdant.
//
// The store holds three tables:
//   - Snapshots: the last saved history of each notebook (zstd-compressed)
//   - Checkpoints: the append-only checkpoint log, tagged with session ids
//   - Blobs: content-addressed output values too large to inline
//
// # Critical Patterns
//
// Checkpoint Log Ordering
//   - Checkpoints are keyed by (notebook, id) and read ORDER BY id
//   - Target cells are stored as canonical JSON
//
// Content Addressing
//   - Blob names are BLAKE3 digests of their content (ir.BlobName)
//   - Writing an existing blob is a no-op
//   - Snapshots carry a canonical digest that is checked on load
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
package store
