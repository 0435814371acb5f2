package lod

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Level describes one entry of a LOD chain.
type Level struct {
	Ratio    float64 `yaml:"ratio" toml:"ratio"`
	MaxError float64 `yaml:"max_error" toml:"max_error"`
}

// ChainOptions controls BuildChain.
type ChainOptions struct {
	Options
	// Workers bounds the levels built at once. Zero means GOMAXPROCS.
	Workers int
	// Progress is called after each finished level. Calls are serialized.
	Progress func(level int, res Result)
}

// BuildChain simplifies mesh once per level, each level from the original
// mesh with its own simplifier, running levels concurrently. Meshes and
// results are returned in level order. The first failure cancels the
// remaining levels.
func BuildChain(ctx context.Context, mesh *Mesh, levels []Level, opts ChainOptions) ([]*Mesh, []Result, error) {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	meshes := make([]*Mesh, len(levels))
	results := make([]Result, len(levels))
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, lvl := range levels {
		g.Go(func() error {
			o := opts.Options
			o.TargetRatio = lvl.Ratio
			o.TargetTris = 0
			o.MaxError = lvl.MaxError
			o.Logger = log.With(zap.Int("level", i))

			out, res, err := Simplify(ctx, mesh, o)
			if err != nil {
				return fmt.Errorf("level %d: %w", i, err)
			}
			meshes[i] = out
			results[i] = res

			if opts.Progress != nil {
				mu.Lock()
				opts.Progress(i, res)
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	log.Debug("lod chain built", zap.Int("levels", len(levels)))
	return meshes, results, nil
}
