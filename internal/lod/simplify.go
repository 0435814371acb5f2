package lod

import (
	"context"
	"errors"
	"fmt"
	gomath "math"
	"time"

	"go.uber.org/zap"

	"github.com/Faultbox/midgard-lod/pkg/math"
	"github.com/Faultbox/midgard-lod/pkg/simplify"
)

// Attribute channels handed to the simplifier.
const (
	attrNormal   = 0 // 3 channels
	attrTexCoord = 3 // 2 channels
	attrColor    = 5 // 4 channels
	numAttrs     = 9
)

// ErrInvalidTarget is returned for a target ratio outside (0, 1].
var ErrInvalidTarget = errors.New("target ratio must be in (0, 1]")

// Options controls one simplification run.
type Options struct {
	// TargetRatio is the fraction of triangles to keep.
	TargetRatio float64
	// TargetTris overrides TargetRatio when positive.
	TargetTris int
	// MaxError stops collapsing once the cheapest collapse costs more.
	// Zero or negative means no limit.
	MaxError float64

	LockBoundary bool
	EdgeWeight   float32

	NormalWeight   float32
	TexCoordWeight float32
	ColorWeight    float32

	Logger *zap.Logger
}

// DefaultOptions returns the options used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		TargetRatio:    0.5,
		EdgeWeight:     simplify.DefaultEdgeWeight,
		NormalWeight:   1,
		TexCoordWeight: 1,
		ColorWeight:    0.5,
	}
}

// Result reports what a simplification run did.
type Result struct {
	InputTris   int
	OutputTris  int
	InputVerts  int
	OutputVerts int
	MaxError    float64
	Collapses   int
	Duration    time.Duration
}

// targetTris returns the triangle floor for a mesh of n triangles.
func (o Options) targetTris(n int) (int, error) {
	if o.TargetTris > 0 {
		return o.TargetTris, nil
	}
	if !(o.TargetRatio > 0 && o.TargetRatio <= 1) {
		return 0, fmt.Errorf("%w: %g", ErrInvalidTarget, o.TargetRatio)
	}
	return int(gomath.Ceil(float64(n) * o.TargetRatio)), nil
}

func (o Options) attributeWeights() []float32 {
	w := make([]float32, numAttrs)
	for i := 0; i < 3; i++ {
		w[attrNormal+i] = o.NormalWeight
	}
	for i := 0; i < 2; i++ {
		w[attrTexCoord+i] = o.TexCoordWeight
	}
	for i := 0; i < 4; i++ {
		w[attrColor+i] = o.ColorWeight
	}
	return w
}

// Simplify reduces mesh to the configured target and returns a new mesh.
// The input is not modified.
func Simplify(ctx context.Context, mesh *Mesh, opts Options) (*Mesh, Result, error) {
	start := time.Now()
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	res := Result{
		InputTris:  mesh.TriangleCount(),
		InputVerts: len(mesh.Vertices),
	}
	target, err := opts.targetTris(res.InputTris)
	if err != nil {
		return nil, res, err
	}

	s, err := simplify.New(packVertices(mesh.Vertices), mesh.Indices, numAttrs, simplify.WithLogger(log))
	if err != nil {
		return nil, res, fmt.Errorf("building simplifier: %w", err)
	}
	s.SetAttributeWeights(opts.attributeWeights())
	s.SetEdgeWeight(opts.EdgeWeight)
	if opts.LockBoundary {
		s.SetBoundaryLocked()
	}

	maxError := opts.MaxError
	if maxError <= 0 {
		maxError = gomath.Inf(1)
	}
	res.MaxError, err = s.SimplifyMeshContext(ctx, maxError, target)
	if err != nil {
		return nil, res, err
	}

	verts, indexes := s.Output()
	out := &Mesh{
		Vertices: unpackVertices(verts),
		Indices:  indexes,
	}
	out.Bounds = calcBounds(out.Vertices)

	res.OutputTris = out.TriangleCount()
	res.OutputVerts = len(out.Vertices)
	res.Collapses = s.Stats().Collapses
	res.Duration = time.Since(start)

	log.Debug("mesh simplified",
		zap.Int("tris_in", res.InputTris),
		zap.Int("tris_out", res.OutputTris),
		zap.Int("target", target),
		zap.Float64("max_error", res.MaxError),
		zap.Duration("took", res.Duration))

	return out, res, nil
}

func packVertices(in []Vertex) []simplify.Vertex {
	out := make([]simplify.Vertex, len(in))
	for i, v := range in {
		out[i].Position = math.FromArray(v.Position)
		a := &out[i].Attributes
		copy(a[attrNormal:attrNormal+3], v.Normal[:])
		copy(a[attrTexCoord:attrTexCoord+2], v.TexCoord[:])
		copy(a[attrColor:attrColor+4], v.Color[:])
	}
	return out
}

// unpackVertices restores mesh vertices, renormalizing the interpolated
// normals.
func unpackVertices(in []simplify.Vertex) []Vertex {
	out := make([]Vertex, len(in))
	for i, v := range in {
		out[i].Position = v.Position.Array()
		a := &v.Attributes
		out[i].Normal = math.Vec3{X: a[attrNormal], Y: a[attrNormal+1], Z: a[attrNormal+2]}.Normalize().Array()
		copy(out[i].TexCoord[:], a[attrTexCoord:attrTexCoord+2])
		copy(out[i].Color[:], a[attrColor:attrColor+4])
	}
	return out
}
