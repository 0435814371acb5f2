package config

import "flag"

// Flags holds the command-line overrides of one subcommand.
type Flags struct {
	Config       string
	Debug        bool
	LogFile      string
	Ratio        float64
	TargetTris   int
	MaxError     float64
	LockBoundary bool
	EdgeWeight   float64
	Workers      int

	fs *flag.FlagSet
}

// BindFlags registers the shared flags on fs.
func BindFlags(fs *flag.FlagSet) *Flags {
	f := &Flags{fs: fs}
	fs.StringVar(&f.Config, "config", "", "Path to config file (.yaml or .toml)")
	fs.BoolVar(&f.Debug, "debug", false, "Enable debug logging")
	fs.StringVar(&f.LogFile, "log-file", "", "Also write logs to this file")
	fs.Float64Var(&f.Ratio, "ratio", 0, "Fraction of triangles to keep")
	fs.IntVar(&f.TargetTris, "min-tris", 0, "Triangle count to stop at (overrides -ratio)")
	fs.Float64Var(&f.MaxError, "max-error", 0, "Stop when the cheapest collapse costs more")
	fs.BoolVar(&f.LockBoundary, "lock-boundary", false, "Never move open borders")
	fs.Float64Var(&f.EdgeWeight, "edge-weight", 0, "Weight of border preserving quadrics")
	fs.IntVar(&f.Workers, "workers", 0, "LOD levels built at once")
	return f
}

// ConfigPath returns the explicit config path if provided via -config.
func (f *Flags) ConfigPath() string {
	if f == nil {
		return ""
	}
	return f.Config
}

// set reports whether the named flag was given on the command line.
func (f *Flags) set(name string) bool {
	found := false
	f.fs.Visit(func(fl *flag.Flag) {
		if fl.Name == name {
			found = true
		}
	})
	return found
}

// applyFlags applies CLI flag overrides to the config.
func applyFlags(cfg *Config, f *Flags) {
	if f == nil {
		return
	}
	if f.Debug {
		cfg.Logging.Level = "debug"
	}
	if f.LogFile != "" {
		cfg.Logging.LogFile = f.LogFile
	}
	if f.Ratio > 0 {
		cfg.Simplify.Ratio = f.Ratio
	}
	if f.TargetTris > 0 {
		cfg.Simplify.TargetTris = f.TargetTris
	}
	if f.MaxError > 0 {
		cfg.Simplify.MaxError = f.MaxError
	}
	if f.set("lock-boundary") {
		cfg.Simplify.LockBoundary = f.LockBoundary
	}
	if f.set("edge-weight") {
		cfg.Simplify.EdgeWeight = float32(f.EdgeWeight)
	}
	if f.Workers > 0 {
		cfg.LOD.Workers = f.Workers
	}
}
