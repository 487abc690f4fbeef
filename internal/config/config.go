// Package config provides run configuration for the segregation simulator.
// It supports loading from YAML files and environment variables.
package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Unbounded is the Iterations value meaning "run until every agent is happy".
const Unbounded = -1

// MaxColours is the largest number of agent types a grid cell can encode.
const MaxColours = 127

// ErrInvalid is wrapped by every configuration validation error.
var ErrInvalid = errors.New("invalid configuration")

// Error reports a single invalid configuration field.
type Error struct {
	Field  string
	Value  any
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s=%v: %s", ErrInvalid, e.Field, e.Value, e.Reason)
}

func (e *Error) Unwrap() error {
	return ErrInvalid
}

// Invalid builds an *Error for the named field.
func Invalid(field string, value any, reason string) error {
	return &Error{Field: field, Value: value, Reason: reason}
}

// Config contains all run parameters. It is immutable once validated.
type Config struct {
	// Width and Height are the grid dimensions in cells.
	Width  int `json:"width" yaml:"width"`
	Height int `json:"height" yaml:"height"`

	// NumColours is the number of agent types.
	NumColours int `json:"num_colours" yaml:"num_colours"`

	// PercentEmpty is the fraction of cells left empty, in (0, 1].
	PercentEmpty float64 `json:"percent_empty" yaml:"percent_empty"`

	// SameNeighbour is the homophily threshold: the minimum fraction of
	// same-type occupied neighbours an agent needs to stay put.
	SameNeighbour float64 `json:"same_neighbour" yaml:"same_neighbour"`

	// Iterations is the round budget, or Unbounded to run to convergence.
	Iterations int `json:"iterations" yaml:"iterations"`

	// MaxRounds caps an Unbounded run that never converges.
	MaxRounds int `json:"max_rounds" yaml:"max_rounds"`

	// Seed fixes the random source. Nil draws a fresh seed per run.
	Seed *int64 `json:"seed,omitempty" yaml:"seed,omitempty"`

	// Workers > 1 evaluates happiness on that many goroutines.
	Workers int `json:"workers" yaml:"workers"`

	Output   OutputConfig   `json:"output" yaml:"output"`
	Database DatabaseConfig `json:"database" yaml:"database"`
	Logging  LoggingConfig  `json:"logging" yaml:"logging"`
}

// OutputConfig controls frame and animation rendering.
type OutputConfig struct {
	ImagesPath string `json:"images_path" yaml:"images_path"`
	// GIFPath defaults to ImagesPath when empty.
	GIFPath  string `json:"gif_path,omitempty" yaml:"gif_path,omitempty"`
	NoGIF    bool   `json:"no_gif" yaml:"no_gif"`
	NoImages bool   `json:"no_images" yaml:"no_images"`
	Palette  string `json:"palette" yaml:"palette"`
	// CellSize is the side of one cell in pixels.
	CellSize int `json:"cell_size" yaml:"cell_size"`
	// FrameDelay is the GIF delay between frames in 100ths of a second.
	FrameDelay int `json:"frame_delay" yaml:"frame_delay"`
}

// DatabaseConfig configures the run history store.
type DatabaseConfig struct {
	// Path to the SQLite file. Empty disables recording.
	Path string `json:"path" yaml:"path"`
	// Snapshots stores every iteration's grid, not only the run summary.
	Snapshots bool `json:"snapshots" yaml:"snapshots"`
}

// LoggingConfig configures log verbosity.
type LoggingConfig struct {
	// Level is one of "debug", "info", "warn", "error".
	Level string `json:"level" yaml:"level"`
}

// Default returns a Config matching the classic 60x60 two-colour setup.
func Default() *Config {
	return &Config{
		Width:         60,
		Height:        60,
		NumColours:    2,
		PercentEmpty:  0.5,
		SameNeighbour: 0.4,
		Iterations:    Unbounded,
		MaxRounds:     10000,
		Workers:       0,
		Output: OutputConfig{
			ImagesPath: "images",
			Palette:    "GnBu",
			CellSize:   8,
			FrameDelay: 20,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load builds a Config from defaults, an optional YAML file and the environment.
// Order: defaults -> path (if non-empty) -> environment variables
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		fileCfg, err := LoadFromFile(path)
		if err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
		cfg = fileCfg
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

// LoadFromFile loads configuration from a YAML file layered over Default.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	return cfg, nil
}

// Validate checks every field and returns the first *Error found.
func (c *Config) Validate() error {
	if c.Width <= 0 {
		return Invalid("width", c.Width, "must be positive")
	}
	if c.Height <= 0 {
		return Invalid("height", c.Height, "must be positive")
	}
	if c.NumColours < 1 || c.NumColours > MaxColours {
		return Invalid("num_colours", c.NumColours, fmt.Sprintf("must be between 1 and %d", MaxColours))
	}
	if math.IsNaN(c.PercentEmpty) || c.PercentEmpty < 0 || c.PercentEmpty > 1 {
		return Invalid("percent_empty", c.PercentEmpty, "must be between 0 and 1")
	}
	// With no empty cell an unhappy agent can never move.
	if EmptyCells(c.Width, c.Height, c.PercentEmpty) == 0 {
		return Invalid("percent_empty", c.PercentEmpty,
			fmt.Sprintf("leaves no empty cell on a %dx%d grid", c.Width, c.Height))
	}
	if math.IsNaN(c.SameNeighbour) || c.SameNeighbour < 0 || c.SameNeighbour > 1 {
		return Invalid("same_neighbour", c.SameNeighbour, "must be between 0 and 1")
	}
	if c.Iterations == 0 || c.Iterations < Unbounded {
		return Invalid("iterations", c.Iterations, "must be at least 1, or -1 to run until everyone is happy")
	}
	if c.MaxRounds < 1 {
		return Invalid("max_rounds", c.MaxRounds, "must be at least 1")
	}
	if c.Workers < 0 {
		return Invalid("workers", c.Workers, "must not be negative")
	}
	if c.Output.CellSize < 1 {
		return Invalid("output.cell_size", c.Output.CellSize, "must be at least 1")
	}
	if c.Output.FrameDelay < 0 {
		return Invalid("output.frame_delay", c.Output.FrameDelay, "must not be negative")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "warning": true, "error": true}
	if c.Logging.Level != "" && !validLevels[strings.ToLower(c.Logging.Level)] {
		return Invalid("logging.level", c.Logging.Level, "valid: debug, info, warn, error, or empty for default")
	}

	return nil
}

// EmptyCells returns the exact number of empty cells a width x height grid
// is generated with: round(percentEmpty * width * height).
func EmptyCells(width, height int, percentEmpty float64) int {
	return int(math.Round(percentEmpty * float64(width*height)))
}

// GIFDir returns the directory the animation is written to.
func (c *Config) GIFDir() string {
	if c.Output.GIFPath != "" {
		return c.Output.GIFPath
	}
	return c.Output.ImagesPath
}

// applyEnvOverrides applies SEGSIM_* environment variables to the config.
// Unparseable values are ignored.
func applyEnvOverrides(c *Config) {
	envInt("SEGSIM_WIDTH", &c.Width)
	envInt("SEGSIM_HEIGHT", &c.Height)
	envInt("SEGSIM_AGENT_TYPES", &c.NumColours)
	envInt("SEGSIM_ITERATIONS", &c.Iterations)
	envInt("SEGSIM_MAX_ROUNDS", &c.MaxRounds)
	envInt("SEGSIM_WORKERS", &c.Workers)
	envFloat("SEGSIM_PERCENT_EMPTY", &c.PercentEmpty)
	envFloat("SEGSIM_SAME_NEIGHBOUR", &c.SameNeighbour)

	if v := os.Getenv("SEGSIM_SEED"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.Seed = &n
		}
	}
	if v := os.Getenv("SEGSIM_IMAGES_PATH"); v != "" {
		c.Output.ImagesPath = v
	}
	if v := os.Getenv("SEGSIM_PALETTE"); v != "" {
		c.Output.Palette = v
	}
	if v := os.Getenv("SEGSIM_DB"); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv("SEGSIM_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envFloat(key string, dst *float64) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}
