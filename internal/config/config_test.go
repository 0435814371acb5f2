package config

import (
	"errors"
	"flag"
	"os"
	"path/filepath"
	"testing"

	"github.com/Faultbox/midgard-lod/internal/lod"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Simplify.Ratio != 0.5 {
		t.Errorf("expected ratio 0.5, got %g", cfg.Simplify.Ratio)
	}
	if cfg.Simplify.EdgeWeight != 16 {
		t.Errorf("expected edge weight 16, got %g", cfg.Simplify.EdgeWeight)
	}
	if cfg.Simplify.LockBoundary {
		t.Error("expected lock_boundary to be false by default")
	}
	if cfg.Simplify.Weights.Normal != 1 {
		t.Errorf("expected normal weight 1, got %g", cfg.Simplify.Weights.Normal)
	}
	if len(cfg.LOD.Levels) != 3 {
		t.Errorf("expected 3 default levels, got %d", len(cfg.LOD.Levels))
	}

	if cfg.Logging.Level != "info" {
		t.Errorf("expected log level 'info', got %s", cfg.Logging.Level)
	}
	if cfg.Logging.LogFile != "" {
		t.Errorf("expected empty log file, got %s", cfg.Logging.LogFile)
	}
}

func TestOptions(t *testing.T) {
	cfg := Default()
	cfg.Simplify.TargetTris = 100
	cfg.Simplify.Weights.Color = 0

	opts := cfg.Options()
	if opts.TargetRatio != 0.5 || opts.TargetTris != 100 {
		t.Errorf("targets = %g/%d", opts.TargetRatio, opts.TargetTris)
	}
	if opts.ColorWeight != 0 || opts.TexCoordWeight != 1 {
		t.Errorf("weights = %g/%g", opts.ColorWeight, opts.TexCoordWeight)
	}
}

func TestLoadFromFile(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{
			name: "yaml",
			file: "meshlod.yaml",
			content: `
simplify:
  ratio: 0.3
  max_error: 0.01
  lock_boundary: true
  weights:
    texcoord: 4
lod:
  levels:
    - ratio: 0.5
    - ratio: 0.1
      max_error: 2
  workers: 3
logging:
  level: "debug"
  log_file: "meshlod.log"
`,
		},
		{
			name: "toml",
			file: "meshlod.toml",
			content: `
[simplify]
ratio = 0.3
max_error = 0.01
lock_boundary = true

[simplify.weights]
texcoord = 4.0

[lod]
workers = 3

[[lod.levels]]
ratio = 0.5

[[lod.levels]]
ratio = 0.1
max_error = 2.0

[logging]
level = "debug"
log_file = "meshlod.log"
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			configPath := filepath.Join(t.TempDir(), tt.file)
			if err := os.WriteFile(configPath, []byte(tt.content), 0644); err != nil {
				t.Fatalf("failed to write test config: %v", err)
			}

			cfg := Default()
			if err := loadFromFile(cfg, configPath); err != nil {
				t.Fatalf("failed to load config: %v", err)
			}

			if cfg.Simplify.Ratio != 0.3 {
				t.Errorf("expected ratio 0.3, got %g", cfg.Simplify.Ratio)
			}
			if cfg.Simplify.MaxError != 0.01 {
				t.Errorf("expected max error 0.01, got %g", cfg.Simplify.MaxError)
			}
			if !cfg.Simplify.LockBoundary {
				t.Error("expected lock_boundary to be true")
			}
			if cfg.Simplify.Weights.TexCoord != 4 {
				t.Errorf("expected texcoord weight 4, got %g", cfg.Simplify.Weights.TexCoord)
			}
			// Untouched fields keep their defaults.
			if cfg.Simplify.Weights.Normal != 1 {
				t.Errorf("expected normal weight to stay 1, got %g", cfg.Simplify.Weights.Normal)
			}
			if cfg.Simplify.EdgeWeight != 16 {
				t.Errorf("expected edge weight to stay 16, got %g", cfg.Simplify.EdgeWeight)
			}

			if len(cfg.LOD.Levels) != 2 {
				t.Fatalf("expected 2 levels, got %d", len(cfg.LOD.Levels))
			}
			if cfg.LOD.Levels[1].Ratio != 0.1 || cfg.LOD.Levels[1].MaxError != 2 {
				t.Errorf("unexpected level %+v", cfg.LOD.Levels[1])
			}
			if cfg.LOD.Workers != 3 {
				t.Errorf("expected 3 workers, got %d", cfg.LOD.Workers)
			}

			if cfg.Logging.Level != "debug" {
				t.Errorf("expected log level 'debug', got %s", cfg.Logging.Level)
			}
			if cfg.Logging.LogFile != "meshlod.log" {
				t.Errorf("expected log file 'meshlod.log', got %s", cfg.Logging.LogFile)
			}
		})
	}
}

func TestLoadFromFileInvalid(t *testing.T) {
	tests := []struct {
		file    string
		content string
	}{
		{"invalid.yaml", "simplify:\n  ratio: not a number\n  invalid syntax here\n"},
		{"invalid.toml", "[simplify\nratio = = 1\n"},
		{"config.json", "{}"},
	}

	for _, tt := range tests {
		t.Run(tt.file, func(t *testing.T) {
			configPath := filepath.Join(t.TempDir(), tt.file)
			if err := os.WriteFile(configPath, []byte(tt.content), 0644); err != nil {
				t.Fatalf("failed to write test config: %v", err)
			}
			if err := loadFromFile(Default(), configPath); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}

	err := loadFromFile(Default(), filepath.Join(t.TempDir(), "config.json"))
	if err == nil {
		t.Error("expected error loading missing file, got nil")
	}
}

func TestLoadFromFileUnknownFormat(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.ini")
	if err := os.WriteFile(configPath, []byte("x=1"), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	if err := loadFromFile(Default(), configPath); !errors.Is(err, ErrUnknownFormat) {
		t.Errorf("expected ErrUnknownFormat, got %v", err)
	}
}

func TestConfigDir(t *testing.T) {
	dir := ConfigDir()

	if dir == "" {
		t.Error("ConfigDir returned empty string")
	}
	if !filepath.IsAbs(dir) {
		t.Errorf("ConfigDir should return absolute path, got %s", dir)
	}
}

func TestFindConfigFile(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Chdir(t.TempDir())

	if path := findConfigFile(); path != "" {
		t.Errorf("expected empty path when no config exists, got %s", path)
	}

	if err := os.WriteFile("meshlod.toml", []byte("[simplify]\nratio = 0.2\n"), 0644); err != nil {
		t.Fatalf("failed to create test config: %v", err)
	}
	if path := findConfigFile(); path != "./meshlod.toml" {
		t.Errorf("expected ./meshlod.toml, got %q", path)
	}

	// YAML wins when both exist.
	if err := os.WriteFile("meshlod.yaml", []byte("simplify:\n  ratio: 0.2\n"), 0644); err != nil {
		t.Fatalf("failed to create test config: %v", err)
	}
	if path := findConfigFile(); path != "./meshlod.yaml" {
		t.Errorf("expected ./meshlod.yaml, got %q", path)
	}
}

func TestApplyFlags(t *testing.T) {
	tests := []struct {
		name   string
		args   []string
		verify func(t *testing.T, cfg *Config)
	}{
		{
			name: "debug flag",
			args: []string{"-debug"},
			verify: func(t *testing.T, cfg *Config) {
				if cfg.Logging.Level != "debug" {
					t.Errorf("expected log level 'debug', got %s", cfg.Logging.Level)
				}
			},
		},
		{
			name: "targets",
			args: []string{"-ratio", "0.1", "-min-tris", "500", "-max-error", "0.5"},
			verify: func(t *testing.T, cfg *Config) {
				if cfg.Simplify.Ratio != 0.1 || cfg.Simplify.TargetTris != 500 || cfg.Simplify.MaxError != 0.5 {
					t.Errorf("unexpected simplify config %+v", cfg.Simplify)
				}
			},
		},
		{
			name: "explicit zero edge weight",
			args: []string{"-edge-weight", "0"},
			verify: func(t *testing.T, cfg *Config) {
				if cfg.Simplify.EdgeWeight != 0 {
					t.Errorf("expected edge weight 0, got %g", cfg.Simplify.EdgeWeight)
				}
			},
		},
		{
			name: "no flags keeps defaults",
			args: nil,
			verify: func(t *testing.T, cfg *Config) {
				if cfg.Simplify.EdgeWeight != 16 || cfg.Simplify.LockBoundary {
					t.Errorf("defaults changed: %+v", cfg.Simplify)
				}
			},
		},
		{
			name: "lock boundary and workers",
			args: []string{"-lock-boundary", "-workers", "4", "-log-file", "x.log"},
			verify: func(t *testing.T, cfg *Config) {
				if !cfg.Simplify.LockBoundary {
					t.Error("expected lock_boundary to be true")
				}
				if cfg.LOD.Workers != 4 {
					t.Errorf("expected 4 workers, got %d", cfg.LOD.Workers)
				}
				if cfg.Logging.LogFile != "x.log" {
					t.Errorf("expected log file x.log, got %s", cfg.Logging.LogFile)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := flag.NewFlagSet("test", flag.ContinueOnError)
			f := BindFlags(fs)
			if err := fs.Parse(tt.args); err != nil {
				t.Fatalf("parse: %v", err)
			}

			cfg := Default()
			applyFlags(cfg, f)
			tt.verify(t, cfg)
		})
	}
}

func TestLoadPriority(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "meshlod.yaml")
	yamlContent := `
simplify:
  ratio: 0.4
  max_error: 0.2
`
	if err := os.WriteFile(configPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	f := BindFlags(fs)
	if err := fs.Parse([]string{"-config", configPath, "-ratio", "0.1"}); err != nil {
		t.Fatalf("parse: %v", err)
	}

	cfg, err := Load(f)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	// Ratio comes from the flag, max error from the file.
	if cfg.Simplify.Ratio != 0.1 {
		t.Errorf("expected ratio 0.1 from flag, got %g", cfg.Simplify.Ratio)
	}
	if cfg.Simplify.MaxError != 0.2 {
		t.Errorf("expected max error 0.2 from file, got %g", cfg.Simplify.MaxError)
	}
}

func TestLoadErrorNamesFile(t *testing.T) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	f := BindFlags(fs)
	missing := filepath.Join(t.TempDir(), "missing.yaml")
	if err := fs.Parse([]string{"-config", missing}); err != nil {
		t.Fatalf("parse: %v", err)
	}

	_, err := Load(f)
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected not-exist error, got %v", err)
	}
}

func TestSaveTo(t *testing.T) {
	for _, name := range []string{"out.yaml", "out.toml"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "nested", name)
			cfg := Default()
			cfg.Simplify.Ratio = 0.75
			cfg.LOD.Levels = append(cfg.LOD.Levels, lod.Level{Ratio: 0.05})

			if err := cfg.SaveTo(path); err != nil {
				t.Fatalf("SaveTo: %v", err)
			}

			back := Default()
			if err := loadFromFile(back, path); err != nil {
				t.Fatalf("loading saved config: %v", err)
			}
			if back.Simplify.Ratio != 0.75 {
				t.Errorf("expected ratio 0.75, got %g", back.Simplify.Ratio)
			}
			if len(back.LOD.Levels) != 4 {
				t.Errorf("expected 4 levels, got %d", len(back.LOD.Levels))
			}
		})
	}
}

func TestSave(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("HOME", t.TempDir())
	t.Setenv("APPDATA", t.TempDir())

	if err := Default().Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := os.Stat(filepath.Join(ConfigDir(), "meshlod.yaml")); err != nil {
		t.Errorf("saved config not found: %v", err)
	}
}
