package pipeline

import (
	"context"

	"media-catalog/internal/catalog"
	"media-catalog/internal/config"
	"media-catalog/internal/logging"
	"media-catalog/internal/thumbstore"
)

// generateVideo extracts one frame per planned non-sprite slot at the task's
// sample position. A failed or timed-out extraction leaves a gap and the
// loop continues.
func (p *Pipeline) generateVideo(ctx context.Context, run *genRun, e *catalog.Entry, path string, tasks []slotTask, force bool) {
	for _, task := range tasks {
		if ctx.Err() != nil {
			return
		}
		if !force && p.populated(ctx, e.ID, task.slot) {
			continue
		}

		frame := p.extractFrame(ctx, path, task.position, task.spec.Width, task.spec.Height, task.spec.Crop)
		if frame == nil {
			run.failure()
			continue
		}

		data, err := encodeJPEG(frame)
		if err != nil {
			logging.Warn("Encoding frame %s/%s failed: %v", e.ID, task.slot, err)
			run.failure()
			continue
		}
		if p.put(ctx, e.ID, task.slot, data) {
			run.success(data)
		} else {
			run.failure()
		}
	}
}

// generateSprite samples count frames and concatenates them horizontally
// into one composite stored under the spec's label. Failed positions are
// padded with transparent filler so the sprite keeps its fixed geometry.
func (p *Pipeline) generateSprite(ctx context.Context, run *genRun, e *catalog.Entry, path string, spec config.ThumbConfig, force bool) {
	slot := thumbstore.LabelSlot(spec.Label)
	if !force && p.populated(ctx, e.ID, slot) {
		return
	}

	count := spec.Slots()
	frames := make([]imageOrGap, count)
	successes := 0
	for i := 0; i < count; i++ {
		if ctx.Err() != nil {
			return
		}
		frame := p.extractFrame(ctx, path, samplePosition(e.Duration, i, count), spec.Width, spec.Height, spec.Crop)
		frames[i] = imageOrGap{img: frame}
		if frame != nil {
			successes++
		}
	}

	if successes == 0 {
		logging.Warn("Sprite for %s: no frames extracted, skipping", e.ID)
		run.failure()
		return
	}

	sheet := assembleSprite(frames)
	data, err := encodePNG(sheet)
	if err != nil {
		logging.Warn("Encoding sprite %s/%s failed: %v", e.ID, slot, err)
		run.failure()
		return
	}
	if p.put(ctx, e.ID, slot, data) {
		logging.Debug("Stored sprite %s/%s: %d/%d frames, %d bytes", e.ID, slot, successes, count, len(data))
		run.success(data)
	} else {
		run.failure()
	}
}
