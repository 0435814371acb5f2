// meshlod is a CLI utility for simplifying triangle meshes and building LOD
// chains from Wavefront OBJ files.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/cheggaaa/pb.v1"

	"github.com/Faultbox/midgard-lod/internal/config"
	"github.com/Faultbox/midgard-lod/internal/logger"
	"github.com/Faultbox/midgard-lod/internal/lod"
	"github.com/Faultbox/midgard-lod/pkg/formats"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	args := os.Args[2:]

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var err error
	switch command {
	case "info":
		err = cmdInfo(args)
	case "simplify", "s":
		err = cmdSimplify(ctx, args)
	case "lod":
		err = cmdLOD(ctx, args)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}

	logger.Sync()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`meshlod - mesh simplification and LOD builder

Usage:
  meshlod <command> [options]

Commands:
  info <in.obj>                      Show mesh statistics
  simplify [flags] <in.obj> <out.obj> Simplify a mesh once
  lod [flags] <in.obj> <outdir>      Write one OBJ per configured level

Flags (simplify, lod):
  -config path      Config file (.yaml or .toml)
  -ratio r          Fraction of triangles to keep
  -min-tris n       Triangle count to stop at
  -max-error e      Stop when the cheapest collapse costs more
  -lock-boundary    Never move open borders
  -edge-weight w    Weight of border preserving quadrics
  -workers n        LOD levels built at once
  -debug            Enable debug logging
  -log-file path    Also write logs to this file

Examples:
  meshlod info statue.obj
  meshlod simplify -ratio 0.25 statue.obj statue_low.obj
  meshlod lod -config meshlod.yaml statue.obj ./lods`)
}

// setup parses flags, loads config and initializes logging.
func setup(name string, args []string, usage string) (*config.Config, []string, error) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: meshlod "+usage)
		fs.PrintDefaults()
	}
	flags := config.BindFlags(fs)
	fs.Parse(args)

	cfg, err := config.Load(flags)
	if err != nil {
		return nil, nil, err
	}
	if err := logger.Init(cfg.Logging.Level, cfg.Logging.LogFile); err != nil {
		return nil, nil, err
	}
	return cfg, fs.Args(), nil
}

func loadMesh(path string) (*lod.Mesh, error) {
	obj, err := formats.LoadOBJ(path)
	if err != nil {
		return nil, err
	}
	mesh := lod.MeshFromOBJ(obj)
	logger.Debug("mesh loaded",
		zap.String("path", path),
		zap.Int("verts", len(mesh.Vertices)),
		zap.Int("tris", mesh.TriangleCount()))
	return mesh, nil
}

func cmdInfo(args []string) error {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Usage: meshlod info <in.obj>")
		os.Exit(1)
	}

	obj, err := formats.LoadOBJ(args[0])
	if err != nil {
		return err
	}
	mesh := lod.MeshFromOBJ(obj)

	fmt.Printf("File:       %s\n", args[0])
	fmt.Printf("Positions:  %d\n", len(obj.Positions))
	fmt.Printf("TexCoords:  %d\n", len(obj.TexCoords))
	fmt.Printf("Normals:    %d\n", len(obj.Normals))
	fmt.Printf("Colors:     %v\n", len(obj.Colors) > 0)
	fmt.Printf("Triangles:  %d\n", obj.TriangleCount())
	fmt.Printf("Vertices:   %d (after splitting seams)\n", len(mesh.Vertices))
	fmt.Printf("Bounds:     %v - %v\n", mesh.Bounds.Min, mesh.Bounds.Max)
	return nil
}

func cmdSimplify(ctx context.Context, args []string) error {
	cfg, rest, err := setup("simplify", args, "simplify [flags] <in.obj> <out.obj>")
	if err != nil {
		return err
	}
	if len(rest) < 2 {
		fmt.Fprintln(os.Stderr, "Usage: meshlod simplify [flags] <in.obj> <out.obj>")
		os.Exit(1)
	}

	mesh, err := loadMesh(rest[0])
	if err != nil {
		return err
	}

	opts := cfg.Options()
	opts.Logger = logger.Named("simplify")
	out, res, err := lod.Simplify(ctx, mesh, opts)
	if err != nil {
		return err
	}
	if err := out.ToOBJ().SaveOBJ(rest[1]); err != nil {
		return err
	}

	printResult(rest[1], res)
	return nil
}

func cmdLOD(ctx context.Context, args []string) error {
	cfg, rest, err := setup("lod", args, "lod [flags] <in.obj> <outdir>")
	if err != nil {
		return err
	}
	if len(rest) < 2 {
		fmt.Fprintln(os.Stderr, "Usage: meshlod lod [flags] <in.obj> <outdir>")
		os.Exit(1)
	}
	if len(cfg.LOD.Levels) == 0 {
		return fmt.Errorf("no LOD levels configured")
	}

	mesh, err := loadMesh(rest[0])
	if err != nil {
		return err
	}
	if err := os.MkdirAll(rest[1], 0755); err != nil {
		return err
	}

	bar := pb.New(len(cfg.LOD.Levels))
	bar.Output = os.Stderr
	bar.ShowTimeLeft = false
	bar.Prefix("levels ")
	bar.Start()

	opts := lod.ChainOptions{
		Options: cfg.Options(),
		Workers: cfg.LOD.Workers,
		Progress: func(int, lod.Result) {
			bar.Increment()
		},
	}
	opts.Logger = logger.Named("lod")

	meshes, results, err := lod.BuildChain(ctx, mesh, cfg.LOD.Levels, opts)
	bar.Finish()
	if err != nil {
		return err
	}

	base := strings.TrimSuffix(filepath.Base(rest[0]), filepath.Ext(rest[0]))
	for i, m := range meshes {
		path := filepath.Join(rest[1], fmt.Sprintf("%s_lod%d.obj", base, i))
		if err := m.ToOBJ().SaveOBJ(path); err != nil {
			return err
		}
		printResult(path, results[i])
	}
	return nil
}

func printResult(path string, res lod.Result) {
	pct := 0.0
	if res.InputTris > 0 {
		pct = 100 * float64(res.OutputTris) / float64(res.InputTris)
	}
	fmt.Printf("%-40s %7d -> %7d tris (%5.1f%%)  verts %d -> %d  max error %.4g  %v\n",
		path, res.InputTris, res.OutputTris, pct, res.InputVerts, res.OutputVerts, res.MaxError, res.Duration.Round(1e6))
}
