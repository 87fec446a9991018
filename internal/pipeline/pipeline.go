package pipeline

import (
	"context"
	"fmt"
	"time"

	"media-catalog/internal/catalog"
	"media-catalog/internal/config"
	"media-catalog/internal/logging"
	"media-catalog/internal/metrics"
	"media-catalog/internal/progress"
	"media-catalog/internal/thumbstore"
)

// Pipeline probes media files and derives their visual assets (thumbnails,
// sprite sheets) into the thumbnail store, reporting progress through an
// optional ordered sink.
type Pipeline struct {
	store *thumbstore.Store
	doc   *catalog.Document
	sink  *progress.Sink

	specs        []config.ThumbConfig
	ffmpegPath   string
	ffprobePath  string
	probeTimeout time.Duration
	frameTimeout time.Duration
}

// New wires a pipeline from the supplied configuration. sink may be nil when
// no UI collaborator listens for progress.
func New(store *thumbstore.Store, doc *catalog.Document, sink *progress.Sink, cfg *config.Config) *Pipeline {
	return &Pipeline{
		store:        store,
		doc:          doc,
		sink:         sink,
		specs:        cfg.Thumbs,
		ffmpegPath:   cfg.Tools.FFmpegPath,
		ffprobePath:  cfg.Tools.FFprobePath,
		probeTimeout: cfg.Tools.ProbeTimeout.Duration(),
		frameTimeout: cfg.Tools.FrameTimeout.Duration(),
	}
}

// Process probes the entry if its metadata is still at the sentinel and then
// generates thumbnails. It returns the number of thumbnails produced.
func (p *Pipeline) Process(ctx context.Context, e *catalog.Entry, path string, force bool) (int, error) {
	if !e.Probed() {
		p.Probe(ctx, e, path)
	}
	return p.Generate(ctx, e, path, force)
}

// slotTask is one planned thumbnail variant.
type slotTask struct {
	spec     config.ThumbConfig
	slot     thumbstore.Slot
	position float64 // video sample position in seconds
}

// Generate derives all configured thumbnails for the entry into the store.
//
// Precondition for any generation: Size > 0 and probed resolution > 0x0;
// otherwise no work is attempted and zero is returned. Populated slots are
// skipped unless force is set. Single-slot failures (decode errors, frame
// timeouts) are soft: the slot stays empty and the loop continues. The
// return value counts only thumbnails actually produced by this call.
func (p *Pipeline) Generate(ctx context.Context, e *catalog.Entry, path string, force bool) (int, error) {
	if e == nil || !e.Kind.IsFile() {
		return 0, fmt.Errorf("generate: not a file entry")
	}
	if e.Kind == catalog.KindAudio {
		return 0, nil
	}
	if e.Size <= 0 || e.Width <= 0 || e.Height <= 0 {
		logging.Debug("Skipping generation for %q: no usable metadata (size=%d res=%dx%d)",
			e.Name, e.Size, e.Width, e.Height)
		return 0, nil
	}

	tasks, sprites := p.plan(e)
	total := len(tasks) + len(sprites)
	if total == 0 {
		return 0, nil
	}

	run := &genRun{pipeline: p, total: total}

	switch e.Kind {
	case catalog.KindPhoto:
		p.generatePhoto(ctx, run, e, path, tasks, force)
	case catalog.KindVideo:
		p.generateVideo(ctx, run, e, path, tasks, force)
		for _, spec := range sprites {
			p.generateSprite(ctx, run, e, path, spec, force)
		}
	}

	if run.generated > 0 {
		metrics.PipelineGeneratedTotal.WithLabelValues(e.Kind.String()).Add(float64(run.generated))
		// The entry gained derived assets; make sure the document flushes.
		p.doc.MarkDirty()
	}
	return run.generated, nil
}

// plan lays out the slot for every configured variant. Single-count and
// sprite specs live under their label; multi-count specs take consecutive
// positional slots, numbered stably across specs in configuration order.
// Photos honor count like videos do; their sample positions are unused.
func (p *Pipeline) plan(e *catalog.Entry) (tasks []slotTask, sprites []config.ThumbConfig) {
	nextIndex := 0
	for _, spec := range p.specs {
		if spec.Sprite {
			if e.Kind == catalog.KindVideo {
				sprites = append(sprites, spec)
				continue
			}
			// Sprite assembly needs sampled video frames; a photo gets a
			// plain labeled variant from the same spec.
			tasks = append(tasks, slotTask{spec: spec, slot: thumbstore.LabelSlot(spec.Label)})
			continue
		}

		count := spec.Slots()
		if count == 1 {
			tasks = append(tasks, slotTask{
				spec:     spec,
				slot:     thumbstore.LabelSlot(spec.Label),
				position: samplePosition(e.Duration, 0, 1),
			})
			continue
		}
		for i := 0; i < count; i++ {
			tasks = append(tasks, slotTask{
				spec:     spec,
				slot:     thumbstore.IndexSlot(nextIndex),
				position: samplePosition(e.Duration, i, count),
			})
			nextIndex++
		}
	}
	return tasks, sprites
}

// samplePosition returns the i-th of count evenly-spaced sample positions
// (midpoints) across the duration.
func samplePosition(duration float64, i, count int) float64 {
	if duration <= 0 || count <= 0 {
		return 0
	}
	return duration * (float64(i) + 0.5) / float64(count)
}

// genRun tracks one generation run's progress accounting.
type genRun struct {
	pipeline  *Pipeline
	total     int
	generated int
	previewed bool
}

// success records a produced thumbnail and reports progress, attaching the
// first produced bytes as the preview payload.
func (r *genRun) success(data []byte) {
	r.generated++
	var preview []byte
	if !r.previewed {
		preview = data
		r.previewed = true
	}
	r.report(preview)
}

// failure reports progress after a failed slot attempt; the fraction is
// unchanged since nothing was generated.
func (r *genRun) failure() {
	r.report(nil)
}

func (r *genRun) report(preview []byte) {
	if r.pipeline.sink == nil {
		return
	}
	r.pipeline.sink.Report(float64(r.generated)/float64(r.total), preview)
}

// populated reports whether the slot already holds a blob.
func (p *Pipeline) populated(ctx context.Context, id string, slot thumbstore.Slot) bool {
	data, err := p.store.Get(ctx, id, slot)
	if err != nil {
		return false
	}
	return len(data) > 0
}

// put stores one produced thumbnail; store errors are soft.
func (p *Pipeline) put(ctx context.Context, id string, slot thumbstore.Slot, data []byte) bool {
	if err := p.store.Put(ctx, id, slot, data); err != nil {
		logging.Warn("Storing thumbnail %s/%s failed: %v", id, slot, err)
		return false
	}
	return true
}
