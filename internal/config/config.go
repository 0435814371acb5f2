// Package config handles meshlod configuration loading and management.
package config

import "github.com/Faultbox/midgard-lod/internal/lod"

// Config holds all meshlod settings.
type Config struct {
	Simplify SimplifyConfig `yaml:"simplify" toml:"simplify"`
	LOD      LODConfig      `yaml:"lod" toml:"lod"`
	Logging  LoggingConfig  `yaml:"logging" toml:"logging"`
}

// SimplifyConfig holds the settings of a single simplification.
type SimplifyConfig struct {
	Ratio        float64 `yaml:"ratio" toml:"ratio"`             // Fraction of triangles to keep
	TargetTris   int     `yaml:"target_tris" toml:"target_tris"` // Overrides ratio when > 0
	MaxError     float64 `yaml:"max_error" toml:"max_error"`     // 0 = unbounded
	LockBoundary bool    `yaml:"lock_boundary" toml:"lock_boundary"`
	EdgeWeight   float32 `yaml:"edge_weight" toml:"edge_weight"`

	Weights AttributeWeights `yaml:"weights" toml:"weights"`
}

// AttributeWeights scales how much each vertex attribute resists change.
type AttributeWeights struct {
	Normal   float32 `yaml:"normal" toml:"normal"`
	TexCoord float32 `yaml:"texcoord" toml:"texcoord"`
	Color    float32 `yaml:"color" toml:"color"`
}

// LODConfig holds LOD chain settings.
type LODConfig struct {
	Levels  []lod.Level `yaml:"levels" toml:"levels"`
	Workers int         `yaml:"workers" toml:"workers"` // 0 = one per CPU
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level   string `yaml:"level" toml:"level"`
	LogFile string `yaml:"log_file" toml:"log_file"`
}

// Default returns a Config with sensible default values.
func Default() *Config {
	opts := lod.DefaultOptions()
	return &Config{
		Simplify: SimplifyConfig{
			Ratio:        opts.TargetRatio,
			LockBoundary: false,
			EdgeWeight:   opts.EdgeWeight,
			Weights: AttributeWeights{
				Normal:   opts.NormalWeight,
				TexCoord: opts.TexCoordWeight,
				Color:    opts.ColorWeight,
			},
		},
		LOD: LODConfig{
			Levels: []lod.Level{
				{Ratio: 0.5},
				{Ratio: 0.25},
				{Ratio: 0.125},
			},
		},
		Logging: LoggingConfig{
			Level:   "info",
			LogFile: "",
		},
	}
}

// Options converts the simplification settings into lod options.
func (c *Config) Options() lod.Options {
	s := c.Simplify
	return lod.Options{
		TargetRatio:    s.Ratio,
		TargetTris:     s.TargetTris,
		MaxError:       s.MaxError,
		LockBoundary:   s.LockBoundary,
		EdgeWeight:     s.EdgeWeight,
		NormalWeight:   s.Weights.Normal,
		TexCoordWeight: s.Weights.TexCoord,
		ColorWeight:    s.Weights.Color,
	}
}
