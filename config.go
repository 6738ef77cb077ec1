// Package lyricmr wires the aggregation pipeline together: a coordinator and
// N-1 workers split a four-column song dataset, count words and songs per
// artist locally, and merge partial counts into the coordinator's global
// maps for ranking and reporting.
package lyricmr

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"

	"github.com/emptyOVO/lyricmr-go/token"
)

// SentimentConfig controls the external classifier hand-off.
type SentimentConfig struct {
	// Script is the classifier entry point; empty disables the stage.
	Script string `yaml:"script"`
}

// Config is the coordinator-side configuration. Workers only need the
// coordinator address; everything else reaches them in the Assign message.
type Config struct {
	Input       string          `yaml:"input"`
	OutputDir   string          `yaml:"output_dir"`
	WordLimit   int             `yaml:"word_limit"`
	ArtistLimit int             `yaml:"artist_limit"`
	MaxRecords  int64           `yaml:"max_records"` // 0 = unlimited, handy for test runs
	Mode        string          `yaml:"mode"`        // push | range
	Workers     int             `yaml:"workers"`     // participants beyond the coordinator
	Listen      string          `yaml:"listen"`
	Token       token.Config    `yaml:"token"`
	Sentiment   SentimentConfig `yaml:"sentiment"`
	StorePath   string          `yaml:"store"` // optional sqlite run history
}

// LoadConfig reads a YAML config file.
func LoadConfig(path string) (Config, error) {
	var cfg Config
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.UnmarshalStrict(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// WithDefaults fills unset fields with the defaults the original pipeline
// shipped with.
func (c *Config) WithDefaults() {
	if c.OutputDir == "" {
		c.OutputDir = "output"
	}
	if c.WordLimit == 0 {
		c.WordLimit = 100
	}
	if c.ArtistLimit == 0 {
		c.ArtistLimit = 50
	}
	if c.Mode == "" {
		c.Mode = "push"
	}
	if c.Listen == "" {
		c.Listen = ":10000"
	}
}

// Validate rejects configurations the run cannot start from.
func (c *Config) Validate() error {
	if c.Input == "" {
		return fmt.Errorf("input dataset path is required")
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers must be >= 0, got %d", c.Workers)
	}
	return nil
}
