package segmenter

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"media-catalog/internal/logging"
	"media-catalog/internal/metrics"
)

var (
	// ErrEncodeTimeout is returned when the encoder does not exit within
	// the configured bound; the process is killed.
	ErrEncodeTimeout = errors.New("segment encode timed out")

	// ErrSegmentNotProduced is returned when the encoder exits but the
	// expected output file is absent.
	ErrSegmentNotProduced = errors.New("segment not produced")
)

// Segmenter synthesizes HLS-style playlists from duration metadata and
// produces individual transport segments on demand by re-invoking the
// encoder per request. Nothing is cached: each segment is encoded into an
// ephemeral location, read back and deleted.
type Segmenter struct {
	ffmpegPath    string
	encodeTimeout time.Duration
}

// New creates a Segmenter. ffmpegPath defaults to "ffmpeg" on PATH;
// encodeTimeout bounds each segment encode, defaulting to 60s.
func New(ffmpegPath string, encodeTimeout time.Duration) *Segmenter {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if encodeTimeout <= 0 {
		encodeTimeout = 60 * time.Second
	}
	return &Segmenter{ffmpegPath: ffmpegPath, encodeTimeout: encodeTimeout}
}

// SegmentCount returns how many segments cover duration seconds.
func SegmentCount(duration float64, segmentSeconds int) int {
	if duration <= 0 || segmentSeconds <= 0 {
		return 0
	}
	return int(math.Ceil(duration / float64(segmentSeconds)))
}

// Playlist renders the manifest for a media file of the given duration.
// Every entry declares segmentSeconds except the last, which declares the
// remainder. Purely a function of the two inputs: no I/O.
func (s *Segmenter) Playlist(duration float64, segmentSeconds int) string {
	count := SegmentCount(duration, segmentSeconds)

	var b strings.Builder
	b.WriteString("#EXTM3U\n")
	b.WriteString("#EXT-X-VERSION:3\n")
	fmt.Fprintf(&b, "#EXT-X-TARGETDURATION:%d\n", segmentSeconds)
	b.WriteString("#EXT-X-MEDIA-SEQUENCE:0\n")

	remaining := duration
	for i := 0; i < count; i++ {
		length := float64(segmentSeconds)
		if remaining < length {
			length = remaining
		}
		fmt.Fprintf(&b, "#EXTINF:%.3f,\n", length)
		fmt.Fprintf(&b, "%d.ts\n", i)
		remaining -= length
	}

	b.WriteString("#EXT-X-ENDLIST\n")
	return b.String()
}

// Segment encodes and returns transport segment index of the file at path.
// The encoder seeks to index*segmentSeconds, encodes segmentSeconds of
// output with timestamps reset, and writes into an ephemeral directory that
// is removed whether or not the encode succeeds.
//
// Fails with ErrEncodeTimeout when the process exceeds the configured bound
// (the process is killed) and ErrSegmentNotProduced when it exits without
// writing the segment.
func (s *Segmenter) Segment(ctx context.Context, path string, index, segmentSeconds int) ([]byte, error) {
	if index < 0 || segmentSeconds <= 0 {
		return nil, fmt.Errorf("invalid segment request: index=%d seconds=%d", index, segmentSeconds)
	}

	start := time.Now()
	outDir, err := os.MkdirTemp("", "segment-")
	if err != nil {
		metrics.SegmentRequestsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("creating segment scratch dir: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(outDir); err != nil {
			logging.Warn("failed to remove segment scratch dir %s: %v", outDir, err)
		}
	}()

	outPath := filepath.Join(outDir, fmt.Sprintf("%d.ts", index))
	offset := index * segmentSeconds

	ctx, cancel := context.WithTimeout(ctx, s.encodeTimeout)
	defer cancel()

	// Seek before the input for fast keyframe seeking; re-encode so the
	// segment is self-contained regardless of the source codec.
	cmd := exec.CommandContext(ctx, s.ffmpegPath,
		"-ss", strconv.Itoa(offset),
		"-t", strconv.Itoa(segmentSeconds),
		"-i", path,
		"-c:v", "libx264",
		"-preset", "veryfast",
		"-c:a", "aac",
		"-avoid_negative_ts", "make_zero",
		"-muxdelay", "0",
		"-f", "mpegts",
		"-y",
		outPath,
	)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	if ctx.Err() == context.DeadlineExceeded {
		metrics.SegmentRequestsTotal.WithLabelValues("timeout").Inc()
		metrics.PipelineProcessTimeouts.Inc()
		logging.Warn("Segment encode for %s[%d] killed after %v", path, index, s.encodeTimeout)
		return nil, fmt.Errorf("%w: %s segment %d after %v", ErrEncodeTimeout, path, index, s.encodeTimeout)
	}
	if runErr != nil {
		metrics.SegmentRequestsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("segment encode failed: %w - %s", runErr, stderr.String())
	}

	// Exactly one produced file is expected in the scratch dir.
	entries, err := os.ReadDir(outDir)
	if err != nil || len(entries) != 1 {
		metrics.SegmentRequestsTotal.WithLabelValues("missing").Inc()
		return nil, fmt.Errorf("%w: %s segment %d", ErrSegmentNotProduced, path, index)
	}

	data, err := os.ReadFile(filepath.Join(outDir, entries[0].Name()))
	if err != nil || len(data) == 0 {
		metrics.SegmentRequestsTotal.WithLabelValues("missing").Inc()
		return nil, fmt.Errorf("%w: %s segment %d", ErrSegmentNotProduced, path, index)
	}

	metrics.SegmentRequestsTotal.WithLabelValues("success").Inc()
	metrics.SegmentEncodeDuration.Observe(time.Since(start).Seconds())
	logging.Debug("Encoded segment %d of %s: %d bytes in %v", index, path, len(data), time.Since(start))
	return data, nil
}
