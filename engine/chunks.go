package engine

import (
	"context"

	"github.com/rohanthewiz/logger"

	"notemirror/models"
	"notemirror/remote"
)

// syncScope runs the chunk-fetch/apply loop for one watermarked stream —
// the primary account or a single linked notebook. Starting at the locally
// persisted watermark, it pulls bounded chunks until the chunk's trailing
// watermark reaches the remote's current one. Chunks are applied strictly in
// arrival order; each apply is atomic and advances the watermark with it, so
// an interruption after N of M chunks resumes at exactly chunk N+1.
func (c *Coordinator) syncScope(ctx context.Context, rscope remote.Scope, mscope models.SyncScope) (int64, error) {
	local, err := mscope.Watermark()
	if err != nil {
		return 0, err
	}

	var current int64
	err = c.retry.Do(ctx, "current_watermark", func() error {
		var err error
		current, err = c.client.CurrentWatermark(ctx, rscope)
		return err
	})
	if err != nil {
		return local, err
	}

	if local >= current {
		logger.Debug("Scope already up to date", "scope", rscope.Name(), "watermark", local)
		return local, nil
	}

	logger.Info("Metadata sync starting",
		"scope", rscope.Name(),
		"local_watermark", local,
		"remote_watermark", current,
	)

	for local < current {
		var chunk *remote.Chunk
		err := c.retry.Do(ctx, "fetch_chunk", func() error {
			var err error
			chunk, err = c.client.FetchChunk(ctx, rscope, local, c.cfg.MaxChunkSize)
			return err
		})
		if err != nil {
			return local, err
		}

		// An empty chunk that doesn't move the watermark means the remote
		// has nothing more for us; terminate rather than spin.
		if chunk.IsEmpty() && chunk.FinalWatermark <= local {
			break
		}

		if err := models.ApplyChunk(mscope, chunk); err != nil {
			return local, err
		}
		local = chunk.FinalWatermark
	}

	logger.Info("Metadata sync complete", "scope", rscope.Name(), "watermark", local)
	return local, nil
}
