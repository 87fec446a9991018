package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"os"
	"os/exec"

	"github.com/disintegration/imaging"

	"media-catalog/internal/catalog"
	"media-catalog/internal/config"
	"media-catalog/internal/logging"
	"media-catalog/internal/metrics"
)

const jpegQuality = 80

// generatePhoto renders every planned variant of a photo. The source is
// decoded once and reused across specs.
func (p *Pipeline) generatePhoto(ctx context.Context, run *genRun, e *catalog.Entry, path string, tasks []slotTask, force bool) {
	var src image.Image

	for i, task := range tasks {
		if ctx.Err() != nil {
			return
		}
		if !force && p.populated(ctx, e.ID, task.slot) {
			continue
		}

		if src == nil {
			var err error
			src, err = p.loadPhoto(path, maxSpecDimension(p.specs))
			if err != nil {
				logging.Warn("Cannot decode photo %s: %v", path, err)
				metrics.PipelineFailuresTotal.WithLabelValues("photo", "decode").Inc()
				// Every remaining variant needs this decode; report each
				// one as a failed attempt so the fraction stays on plan.
				for range tasks[i:] {
					run.failure()
				}
				return
			}
		}

		thumb := renderVariant(src, task.spec)
		data, err := encodeJPEG(thumb)
		if err != nil {
			logging.Warn("Encoding thumbnail %s/%s failed: %v", e.ID, task.slot, err)
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

// renderVariant resizes to the spec: aspect-preserving fit, or an exact-size
// center crop when the spec asks for it.
func renderVariant(src image.Image, spec config.ThumbConfig) image.Image {
	if spec.Crop {
		return imaging.Fill(src, spec.Width, spec.Height, imaging.Center, imaging.Lanczos)
	}
	return imaging.Fit(src, spec.Width, spec.Height, imaging.Lanczos)
}

// maxSpecDimension returns the largest edge any spec asks for, used as the
// decode-time shrink target.
func maxSpecDimension(specs []config.ThumbConfig) int {
	max := 0
	for _, spec := range specs {
		if spec.Width > max {
			max = spec.Width
		}
		if spec.Height > max {
			max = spec.Height
		}
	}
	if max == 0 {
		max = 256
	}
	return max
}

// loadPhoto decodes a photo for thumbnailing. The vips path shrinks during
// decode when available; otherwise imaging opens the file with orientation
// applied, falling back to the stdlib decoders and finally to ffmpeg for
// formats none of the Go decoders handle.
func (p *Pipeline) loadPhoto(path string, targetDim int) (image.Image, error) {
	if IsVipsAvailable() {
		img, err := loadWithVips(path, targetDim)
		if err == nil {
			return img, nil
		}
		logging.Debug("vips decode failed for %s: %v, falling back", path, err)
	}

	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err == nil {
		return img, nil
	}
	logging.Debug("imaging.Open failed for %s: %v, trying stdlib decode", path, err)

	if img, err = decodePhotoFile(path); err == nil {
		return img, nil
	}
	logging.Debug("Standard decode failed for %s: %v, trying ffmpeg fallback", path, err)

	img, ffErr := p.decodePhotoWithFFmpeg(path)
	if ffErr != nil {
		return nil, fmt.Errorf("all photo decode methods failed for %s: %w", path, ffErr)
	}
	return img, nil
}

func decodePhotoFile(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := f.Close(); err != nil {
			logging.Warn("failed to close photo file %s: %v", path, err)
		}
	}()

	img, format, err := image.Decode(f)
	if err != nil {
		return nil, err
	}
	logging.Debug("Decoded photo format %s for %s", format, path)
	return img, nil
}

// decodePhotoWithFFmpeg shells out to ffmpeg for formats the Go decoders
// don't cover (HEIC and friends).
func (p *Pipeline) decodePhotoWithFFmpeg(path string) (image.Image, error) {
	ctx, cancel := context.WithTimeout(context.Background(), p.frameTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, p.ffmpegPath,
		"-i", path,
		"-vframes", "1",
		"-f", "image2pipe",
		"-vcodec", "png",
		"-",
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffmpeg decode failed: %v - %s", err, stderr.String())
	}
	if stdout.Len() == 0 {
		return nil, fmt.Errorf("ffmpeg produced no output for %s", path)
	}

	img, _, err := image.Decode(&stdout)
	if err != nil {
		return nil, fmt.Errorf("cannot decode ffmpeg output: %w", err)
	}
	return img, nil
}

func encodeJPEG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
