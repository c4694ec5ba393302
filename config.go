package sapling

import (
	"fmt"
	"log/slog"
	"math"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// MaxQuads is the largest number of quads a single QuadBatch can hold. Four
// vertices per quad must stay addressable by 16-bit indices.
const MaxQuads = 16383

// minBatchCapacity is the smallest capacity a growing batch allocates.
const minBatchCapacity = 16

// Config holds the render settings for a Stage. The zero value is not
// useful; start from DefaultConfig or ParseConfig.
type Config struct {
	// BatchMinCapacity is the initial quad capacity of a batch once it grows.
	BatchMinCapacity int `toml:"batch_min_capacity"`
	// BatchMaxQuads caps the number of quads per batch. Clamped to MaxQuads.
	BatchMaxQuads int `toml:"batch_max_quads"`
	// Smoothing is the default texture filter for new images:
	// "none", "bilinear" or "trilinear".
	Smoothing string `toml:"smoothing"`
	// FieldOfView is the vertical 3D field of view in radians.
	FieldOfView float64 `toml:"field_of_view"`
	// StageWidth and StageHeight are the logical stage size in points.
	StageWidth  float64 `toml:"stage_width"`
	StageHeight float64 `toml:"stage_height"`
	// ClearColor is the RGBA color the back buffer is cleared to each frame.
	ClearColor [4]float64 `toml:"clear_color"`
	// Debug enables per-frame stats logging and tree sanity warnings.
	Debug bool `toml:"debug"`
	// LogLevel is one of "debug", "info", "warn", "error".
	LogLevel string `toml:"log_level"`
}

// DefaultConfig returns the settings used when no config file is supplied.
func DefaultConfig() Config {
	return Config{
		BatchMinCapacity: minBatchCapacity,
		BatchMaxQuads:    MaxQuads,
		Smoothing:        "bilinear",
		FieldOfView:      1.0,
		StageWidth:       640,
		StageHeight:      480,
		ClearColor:       [4]float64{0, 0, 0, 1},
		LogLevel:         "warn",
	}
}

// ParseConfig decodes TOML data on top of DefaultConfig and validates it.
// Keys missing from data keep their default values.
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("sapling: parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadConfig reads and parses a TOML config file.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("sapling: read config: %w", err)
	}
	return ParseConfig(data)
}

// Validate checks value ranges and clamps BatchMaxQuads to MaxQuads.
func (c *Config) Validate() error {
	if c.BatchMaxQuads <= 0 || c.BatchMaxQuads > MaxQuads {
		c.BatchMaxQuads = MaxQuads
	}
	if c.BatchMinCapacity <= 0 {
		c.BatchMinCapacity = minBatchCapacity
	}
	if c.BatchMinCapacity > c.BatchMaxQuads {
		return fmt.Errorf("sapling: batch_min_capacity %d exceeds batch_max_quads %d",
			c.BatchMinCapacity, c.BatchMaxQuads)
	}
	if _, err := parseSmoothing(c.Smoothing); err != nil {
		return err
	}
	if c.FieldOfView <= 0 || c.FieldOfView >= math.Pi {
		return fmt.Errorf("sapling: field_of_view %v must be in (0, π)", c.FieldOfView)
	}
	if c.StageWidth < 0 || c.StageHeight < 0 {
		return fmt.Errorf("sapling: negative stage size %vx%v", c.StageWidth, c.StageHeight)
	}
	if _, err := parseLogLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// DefaultSmoothing returns the parsed Smoothing setting.
func (c Config) DefaultSmoothing() Smoothing {
	s, _ := parseSmoothing(c.Smoothing)
	return s
}

// Clear returns ClearColor as a Color.
func (c Config) Clear() Color {
	return Color{c.ClearColor[0], c.ClearColor[1], c.ClearColor[2], c.ClearColor[3]}
}

// NewLogger builds a text logger writing to stderr at the configured level.
// Debug mode forces the debug level.
func (c Config) NewLogger() *slog.Logger {
	level, _ := parseLogLevel(c.LogLevel)
	if c.Debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func parseSmoothing(s string) (Smoothing, error) {
	switch strings.ToLower(s) {
	case "", "bilinear":
		return SmoothingBilinear, nil
	case "none":
		return SmoothingNone, nil
	case "trilinear":
		return SmoothingTrilinear, nil
	}
	return 0, fmt.Errorf("sapling: unknown smoothing %q", s)
}

func parseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("sapling: unknown log level %q", s)
}
