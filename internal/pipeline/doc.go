// Package pipeline probes media files (dimensions, duration, EXIF capture
// time) and derives their visual assets into the thumbnail store: resized
// photo variants, sampled video frames and composite sprite sheets.
//
// External processes (ffprobe, ffmpeg) run under bounded timeouts and are
// killed on expiry; every per-file and per-slot failure is soft, so bulk
// scans always complete best-effort.
package pipeline
