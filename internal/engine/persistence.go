package engine

import (
	"context"
	"fmt"

	"github.com/roach88/verdant/internal/history"
	"github.com/roach88/verdant/internal/ir"
)

// Persistence is the durable side of an Engine. Snapshots and checkpoint
// logs are keyed by notebook; blobs are content addressed and shared.
//
// Implemented by store.Store (SQLite).
type Persistence interface {
	history.BlobReader

	// LoadSnapshot returns the last saved snapshot of key. ok is false
	// when nothing was saved yet.
	LoadSnapshot(ctx context.Context, key string) (data []byte, ok bool, err error)
	SaveSnapshot(ctx context.Context, key string, data []byte) error

	// WriteBlob stores data under name. Writing an existing name is a no-op.
	WriteBlob(ctx context.Context, name string, data []byte) error

	// AppendCheckpoint adds cp to the log of key.
	AppendCheckpoint(ctx context.Context, key, session string, cp ir.Checkpoint) error
	// Checkpoints returns the log of key in id order.
	Checkpoints(ctx context.Context, key string) ([]ir.Checkpoint, error)
}

// writeBlobs offloads the large values of raw and writes them in the
// background. Failures are logged; the snapshot keeps the reference and a
// later load reports the blob as missing.
func (e *Engine) writeBlobs(ctx context.Context, raw []ir.Payload) {
	if e.persist == nil || e.blobThreshold <= 0 {
		return
	}
	_, blobs := history.Offload(raw, e.blobThreshold)
	for name, data := range blobs {
		e.blobs.Add(1)
		go func() {
			defer e.blobs.Done()
			if err := e.persist.WriteBlob(ctx, name, data); err != nil {
				e.logger.Warn("blob write failed",
					"blob", name,
					"bytes", len(data),
					"error", err,
				)
			}
		}()
	}
}

// flush waits for outstanding blob writes, stores every blob the snapshot
// references and then saves the snapshot. The blob set follows the current
// threshold, so a lower threshold than at commit time still finds its
// blobs on the next Open.
func (e *Engine) flush(ctx context.Context) error {
	if e.persist == nil {
		return nil
	}
	e.blobs.Wait()
	data, blobs, err := history.Encode(e.store, e.blobThreshold)
	if err != nil {
		return err
	}
	written := 0
	for name, blob := range blobs {
		if e.stored[name] {
			continue
		}
		if err := e.persist.WriteBlob(ctx, name, blob); err != nil {
			return fmt.Errorf("write blob %s: %w", name, err)
		}
		e.stored[name] = true
		written++
	}
	if err := e.persist.SaveSnapshot(ctx, e.key, data); err != nil {
		return err
	}
	e.logger.Debug("snapshot saved",
		"notebook", e.key,
		"bytes", len(data),
		"blobs", len(blobs),
		"blobs_written", written,
	)
	return nil
}
