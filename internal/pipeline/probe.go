package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"os"
	"os/exec"
	"strconv"
	"time"

	"github.com/rwcarlsen/goexif/exif"

	"media-catalog/internal/catalog"
	"media-catalog/internal/logging"
	"media-catalog/internal/metrics"

	// Photo format decoders
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp" // WebP format support
)

// Probe extracts media metadata into the entry. All probing is soft-fail:
// errors are logged, sentinel values stay in place, and the zero/zero
// resolution sentinel blocks thumbnail generation for the file.
func (p *Pipeline) Probe(ctx context.Context, e *catalog.Entry, path string) {
	switch e.Kind {
	case catalog.KindPhoto:
		p.probePhoto(e, path)
	case catalog.KindVideo:
		p.probeVideo(ctx, e, path)
	default:
		logging.Debug("No prober for %s entry %q", e.Kind, e.Name)
	}
}

// probePhoto reads dimensions from the image header and, when present, the
// EXIF original-capture timestamp.
func (p *Pipeline) probePhoto(e *catalog.Entry, path string) {
	start := time.Now()
	defer func() {
		metrics.PipelineProbeDuration.WithLabelValues("photo").Observe(time.Since(start).Seconds())
	}()

	f, err := os.Open(path)
	if err != nil {
		logging.Warn("Photo probe: cannot open %s: %v", path, err)
		metrics.PipelineFailuresTotal.WithLabelValues("photo", "probe").Inc()
		return
	}
	defer func() {
		if err := f.Close(); err != nil {
			logging.Warn("failed to close %s after probe: %v", path, err)
		}
	}()

	cfg, format, err := image.DecodeConfig(f)
	if err != nil {
		logging.Warn("Photo probe: cannot decode %s: %v", path, err)
		metrics.PipelineFailuresTotal.WithLabelValues("photo", "probe").Inc()
		return
	}
	e.Width = cfg.Width
	e.Height = cfg.Height
	p.doc.MarkDirty()
	logging.Debug("Probed photo %s: %dx%d (%s)", path, cfg.Width, cfg.Height, format)

	// EXIF is optional; absence just leaves DateTaken zero.
	if _, err := f.Seek(0, 0); err != nil {
		return
	}
	x, err := exif.Decode(f)
	if err != nil {
		logging.Debug("No EXIF data in %s: %v", path, err)
		return
	}
	taken, err := x.DateTime()
	if err != nil {
		logging.Debug("No EXIF timestamp in %s: %v", path, err)
		return
	}
	e.DateTaken = taken
	p.doc.MarkDirty()
}

// ffprobeOutput mirrors the fields we need from ffprobe's JSON output.
type ffprobeOutput struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
	Streams []struct {
		CodecType string `json:"codec_type"`
		Width     int    `json:"width"`
		Height    int    `json:"height"`
	} `json:"streams"`
}

// probeVideo extracts duration and resolution via ffprobe, bounded by the
// probe timeout. A timeout kills the process and leaves the sentinels.
func (p *Pipeline) probeVideo(ctx context.Context, e *catalog.Entry, path string) {
	start := time.Now()
	defer func() {
		metrics.PipelineProbeDuration.WithLabelValues("video").Observe(time.Since(start).Seconds())
	}()

	ctx, cancel := context.WithTimeout(ctx, p.probeTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, p.ffprobePath,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			metrics.PipelineProcessTimeouts.Inc()
			logging.Warn("Video probe for %s killed after %v", path, p.probeTimeout)
		} else {
			logging.Warn("Video probe for %s failed: %v - %s", path, err, stderr.String())
		}
		metrics.PipelineFailuresTotal.WithLabelValues("video", "probe").Inc()
		return
	}

	var out ffprobeOutput
	if err := json.Unmarshal(stdout.Bytes(), &out); err != nil {
		logging.Warn("Video probe for %s produced bad JSON: %v", path, err)
		metrics.PipelineFailuresTotal.WithLabelValues("video", "probe").Inc()
		return
	}

	if out.Format.Duration != "" {
		if d, err := strconv.ParseFloat(out.Format.Duration, 64); err == nil {
			e.Duration = d
		}
	}
	for _, stream := range out.Streams {
		if stream.CodecType == "video" && stream.Width > 0 && stream.Height > 0 {
			e.Width = stream.Width
			e.Height = stream.Height
			break
		}
	}

	if e.Width == 0 || e.Height == 0 {
		// Leaves the sentinel; generation is blocked for this file.
		logging.Warn("Video probe for %s found no video stream dimensions", path)
		metrics.PipelineFailuresTotal.WithLabelValues("video", "probe").Inc()
		return
	}

	p.doc.MarkDirty()
	logging.Debug("Probed video %s: %.1fs %dx%d", path, e.Duration, e.Width, e.Height)
}

// frameFilter builds the ffmpeg filter graph for one thumbnail spec: center
// crop to the exact size when requested, otherwise aspect-preserving fit.
func frameFilter(width, height int, crop bool) string {
	if crop {
		return fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=increase,crop=%d:%d",
			width, height, width, height)
	}
	return fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=decrease", width, height)
}

// extractFrame grabs one frame at the given position via ffmpeg, with the
// spec's crop/scale options baked into the filter graph. On timeout the
// process is killed and nil is returned (a gap, not a fatal error).
func (p *Pipeline) extractFrame(ctx context.Context, path string, position float64, width, height int, crop bool) image.Image {
	ctx, cancel := context.WithTimeout(ctx, p.frameTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, p.ffmpegPath,
		"-ss", fmt.Sprintf("%.3f", position),
		"-i", path,
		"-vframes", "1",
		"-vf", frameFilter(width, height, crop),
		"-f", "image2pipe",
		"-vcodec", "png",
		"-",
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			metrics.PipelineProcessTimeouts.Inc()
			logging.Warn("Frame extraction for %s@%.1fs killed after %v", path, position, p.frameTimeout)
		} else {
			logging.Debug("Frame extraction for %s@%.1fs failed: %v - %s", path, position, err, stderr.String())
		}
		metrics.PipelineFailuresTotal.WithLabelValues("video", "frame").Inc()
		return nil
	}

	if stdout.Len() == 0 {
		logging.Debug("Frame extraction for %s@%.1fs produced no output", path, position)
		metrics.PipelineFailuresTotal.WithLabelValues("video", "frame").Inc()
		return nil
	}

	img, _, err := image.Decode(&stdout)
	if err != nil {
		logging.Debug("Cannot decode extracted frame from %s@%.1fs: %v", path, position, err)
		metrics.PipelineFailuresTotal.WithLabelValues("video", "frame").Inc()
		return nil
	}
	return img
}
