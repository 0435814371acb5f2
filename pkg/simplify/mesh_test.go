package simplify

import (
	gomath "math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Faultbox/midgard-lod/pkg/math"
)

func vert(x, y, z float32) Vertex {
	return Vertex{Position: math.Vec3{X: x, Y: y, Z: z}}
}

// cubeMesh is a closed unit cube with one vertex per corner.
func cubeMesh() ([]Vertex, []uint32) {
	verts := []Vertex{
		vert(0, 0, 0), vert(1, 0, 0), vert(1, 1, 0), vert(0, 1, 0),
		vert(0, 0, 1), vert(1, 0, 1), vert(1, 1, 1), vert(0, 1, 1),
	}
	indexes := []uint32{
		0, 2, 1, 0, 3, 2, // bottom
		4, 5, 6, 4, 6, 7, // top
		0, 1, 5, 0, 5, 4, // front
		2, 3, 7, 2, 7, 6, // back
		1, 2, 6, 1, 6, 5, // right
		3, 0, 4, 3, 4, 7, // left
	}
	return verts, indexes
}

// gridMesh is an n x n quad grid over [0,n]² split into triangles, with
// heights from h. Attribute 0 and 1 hold X and Y.
func gridMesh(n int, h func(x, y float32) float32) ([]Vertex, []uint32) {
	var verts []Vertex
	for j := 0; j <= n; j++ {
		for i := 0; i <= n; i++ {
			x, y := float32(i), float32(j)
			v := vert(x, y, h(x, y))
			v.Attributes[0] = x
			v.Attributes[1] = y
			verts = append(verts, v)
		}
	}
	var indexes []uint32
	row := uint32(n + 1)
	for j := uint32(0); j < uint32(n); j++ {
		for i := uint32(0); i < uint32(n); i++ {
			a := j*row + i
			indexes = append(indexes, a, a+1, a+row+1, a, a+row+1, a+row)
		}
	}
	return verts, indexes
}

func flat(float32, float32) float32 { return 0 }

func wave(x, y float32) float32 {
	return float32(gomath.Sin(float64(x)*0.7) * gomath.Cos(float64(y)*0.5))
}

// requireValidOutput checks that every triangle references an output vertex
// and has three distinct positions.
func requireValidOutput(t *testing.T, verts []Vertex, indexes []uint32) {
	t.Helper()
	require.Zero(t, len(indexes)%3)
	for i := 0; i < len(indexes); i += 3 {
		a, b, c := indexes[i], indexes[i+1], indexes[i+2]
		require.Less(t, int(a), len(verts))
		require.Less(t, int(b), len(verts))
		require.Less(t, int(c), len(verts))
		pa, pb, pc := verts[a].Position, verts[b].Position, verts[c].Position
		require.False(t, pa == pb || pb == pc || pa == pc, "triangle %d has repeated positions", i/3)
	}
}

func triNormal(verts []Vertex, indexes []uint32, t int) math.Vec3 {
	p0 := verts[indexes[3*t]].Position
	p1 := verts[indexes[3*t+1]].Position
	p2 := verts[indexes[3*t+2]].Position
	return p1.Sub(p0).Cross(p2.Sub(p0))
}
