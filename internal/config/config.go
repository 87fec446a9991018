package config

import (
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

var positionalLabel = regexp.MustCompile(`^T[0-9]+$`)

// Config holds the settings consumed by the catalog core. It is supplied by
// the embedding process; the core only reads it.
type Config struct {
	Tools  ToolsConfig   `toml:"tools"`
	Store  StoreConfig   `toml:"store"`
	Stream StreamConfig  `toml:"stream"`
	Thumbs []ThumbConfig `toml:"thumbs"`
}

// ToolsConfig holds paths and timeouts for the external encoder/decoder
// processes.
type ToolsConfig struct {
	FFmpegPath   string   `toml:"ffmpeg_path"`
	FFprobePath  string   `toml:"ffprobe_path"`
	ProbeTimeout duration `toml:"probe_timeout"`
	FrameTimeout duration `toml:"frame_timeout"`
}

// StoreConfig holds thumbnail store settings.
type StoreConfig struct {
	Path       string `toml:"path"`
	MaxSlots   int    `toml:"max_slots"`
	Durability string `toml:"durability"` // "full" or "relaxed"
}

// StreamConfig holds on-demand segmenting settings.
type StreamConfig struct {
	SegmentSeconds int      `toml:"segment_seconds"`
	EncodeTimeout  duration `toml:"encode_timeout"`
}

// ThumbConfig describes one thumbnail variant to derive per file.
type ThumbConfig struct {
	Label  string `toml:"label"`
	Width  int    `toml:"width"`
	Height int    `toml:"height"`
	Crop   bool   `toml:"crop"`
	Count  int    `toml:"count"`
	Sprite bool   `toml:"sprite"`
}

// duration wraps time.Duration so TOML values like "30s" decode directly.
type duration time.Duration

func (d *duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = duration(parsed)
	return nil
}

// Duration returns the wrapped time.Duration.
func (d duration) Duration() time.Duration {
	return time.Duration(d)
}

// Default returns a Config with working defaults: system ffmpeg/ffprobe, a
// single 200x200 thumbnail per file, 10 second segments.
func Default() *Config {
	return &Config{
		Tools: ToolsConfig{
			FFmpegPath:   "ffmpeg",
			FFprobePath:  "ffprobe",
			ProbeTimeout: duration(15 * time.Second),
			FrameTimeout: duration(30 * time.Second),
		},
		Store: StoreConfig{
			Path:       "thumbs.db",
			MaxSlots:   16,
			Durability: "relaxed",
		},
		Stream: StreamConfig{
			SegmentSeconds: 10,
			EncodeTimeout:  duration(60 * time.Second),
		},
		Thumbs: []ThumbConfig{
			{Label: "default", Width: 200, Height: 200, Count: 1},
		},
	}
}

// Read decodes a Config from the provided reader, applying defaults for
// anything left unset.
func Read(r io.Reader) (*Config, error) {
	cfg := Default()
	if _, err := toml.NewDecoder(r).Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ReadFromFile reads a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	cfg, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Store.MaxSlots < 1 {
		return fmt.Errorf("store.max_slots must be positive, got %d", c.Store.MaxSlots)
	}
	switch c.Store.Durability {
	case "full", "relaxed":
	default:
		return fmt.Errorf("store.durability must be %q or %q, got %q", "full", "relaxed", c.Store.Durability)
	}
	if c.Stream.SegmentSeconds < 1 {
		return fmt.Errorf("stream.segment_seconds must be positive, got %d", c.Stream.SegmentSeconds)
	}

	slots := 0
	seen := make(map[string]bool)
	for i, spec := range c.Thumbs {
		if spec.Label == "" {
			return fmt.Errorf("thumbs[%d]: label must not be empty", i)
		}
		key := strings.ToUpper(spec.Label)
		if seen[key] {
			return fmt.Errorf("thumbs[%d]: duplicate label %q", i, spec.Label)
		}
		// Positional slot columns are named T<n>; a label of that shape
		// would alias one of them in the store.
		if positionalLabel.MatchString(key) {
			return fmt.Errorf("thumbs[%d]: label %q collides with positional slot naming", i, spec.Label)
		}
		seen[key] = true
		if spec.Width < 1 || spec.Height < 1 {
			return fmt.Errorf("thumbs[%d] %q: width and height must be positive", i, spec.Label)
		}
		if spec.Sprite {
			slots++
		} else {
			slots += spec.Slots()
		}
	}
	if slots > c.Store.MaxSlots {
		return fmt.Errorf("thumb specs need %d slots but store.max_slots is %d", slots, c.Store.MaxSlots)
	}
	return nil
}

// Slots returns how many thumbnail variants the spec produces, at least one.
func (t ThumbConfig) Slots() int {
	if t.Count < 1 {
		return 1
	}
	return t.Count
}
