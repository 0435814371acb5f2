package simplify

import (
	gomath "math"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/Faultbox/midgard-lod/pkg/math"
)

const (
	degenerateArea = 1e-12
	minAreaRatio   = 1e-6
	minQuadricArea = 1e-8
	singularDet    = 1e-10
)

func toVec3d(v math.Vec3) mgl64.Vec3 {
	return mgl64.Vec3{float64(v.X), float64(v.Y), float64(v.Z)}
}

func fromVec3d(v mgl64.Vec3) math.Vec3 {
	return math.Vec3{X: float32(v[0]), Y: float32(v[1]), Z: float32(v[2])}
}

// Quadric is a position-only error quadric: xᵀAx + 2bᵀx + c with A
// symmetric.
type Quadric struct {
	xx, yy, zz, xy, xz, yz float64
	b                      mgl64.Vec3
	c                      float64
}

// NewPlaneQuadric returns the squared distance to the plane n·x + d = 0
// scaled by weight. n must be unit length.
func NewPlaneQuadric(n mgl64.Vec3, d, weight float64) Quadric {
	return Quadric{
		xx: weight * n[0] * n[0],
		yy: weight * n[1] * n[1],
		zz: weight * n[2] * n[2],
		xy: weight * n[0] * n[1],
		xz: weight * n[0] * n[2],
		yz: weight * n[1] * n[2],
		b:  n.Mul(weight * d),
		c:  weight * d * d,
	}
}

// NewEdgeQuadric returns the quadric of the plane through edge p0-p1 that is
// perpendicular to a face with the given normal. Used to hold open borders in
// place.
func NewEdgeQuadric(p0, p1, faceNormal mgl64.Vec3, weight float64) Quadric {
	edge := p1.Sub(p0)
	n := edge.Cross(faceNormal)
	l := n.Len()
	if l < degenerateArea {
		return Quadric{}
	}
	n = n.Mul(1 / l)
	return NewPlaneQuadric(n, -n.Dot(p0), weight*edge.Len())
}

// Add accumulates other into q.
func (q *Quadric) Add(other Quadric) {
	q.xx += other.xx
	q.yy += other.yy
	q.zz += other.zz
	q.xy += other.xy
	q.xz += other.xz
	q.yz += other.yz
	q.b = q.b.Add(other.b)
	q.c += other.c
}

// Evaluate returns the error at p, clamped at zero.
func (q Quadric) Evaluate(p mgl64.Vec3) float64 {
	x, y, z := p[0], p[1], p[2]
	e := x*x*q.xx + y*y*q.yy + z*z*q.zz +
		2*(x*y*q.xy+x*z*q.xz+y*z*q.yz) +
		2*q.b.Dot(p) + q.c
	return gomath.Max(e, 0)
}

// AttrQuadric is an error quadric over position and attribute channels.
//
// For a triangle with unit normal n, plane offset d and per-channel linear
// fits s_i(p) = g_i·p + d_i the quadric measures
//
//	area * ((n·p + d)² + Σ (g_i·p + d_i - s_i)²)
//
// The attribute block of the full matrix is area·I, which stays true under
// summation, so only gradients, offsets and total area are stored.
type AttrQuadric struct {
	xx, yy, zz, xy, xz, yz float64
	b                      mgl64.Vec3
	c                      float64

	g    [MaxAttributes]mgl64.Vec3
	d    [MaxAttributes]float64
	area float64
	n    int
}

// NewTriangleAttrQuadric builds the quadric for one triangle. Attributes are
// multiplied by weights before fitting. Degenerate triangles give an empty
// quadric.
func NewTriangleAttrQuadric(p0, p1, p2 mgl64.Vec3, a0, a1, a2 *[MaxAttributes]float32, weights *[MaxAttributes]float64, numAttributes int) AttrQuadric {
	q := AttrQuadric{n: numAttributes}

	e1 := p1.Sub(p0)
	e2 := p2.Sub(p0)
	normal := e1.Cross(e2)
	l := normal.Len()
	if l < degenerateArea {
		return q
	}
	normal = normal.Mul(1 / l)
	area := 0.5 * l
	dist := -normal.Dot(p0)

	q.xx = normal[0] * normal[0]
	q.yy = normal[1] * normal[1]
	q.zz = normal[2] * normal[2]
	q.xy = normal[0] * normal[1]
	q.xz = normal[0] * normal[2]
	q.yz = normal[1] * normal[2]
	q.b = normal.Mul(dist)
	q.c = dist * dist

	// Gradient g solves e1·g = Δs1, e2·g = Δs2, n·g = 0.
	inv := mgl64.Mat3FromRows(e1, e2, normal).Inv()
	for i := 0; i < numAttributes; i++ {
		w := weights[i]
		s0 := w * float64(a0[i])
		s1 := w * float64(a1[i])
		s2 := w * float64(a2[i])

		grad := inv.Mul3x1(mgl64.Vec3{s1 - s0, s2 - s0, 0})
		off := s0 - grad.Dot(p0)

		q.g[i] = grad
		q.d[i] = off

		q.xx += grad[0] * grad[0]
		q.yy += grad[1] * grad[1]
		q.zz += grad[2] * grad[2]
		q.xy += grad[0] * grad[1]
		q.xz += grad[0] * grad[2]
		q.yz += grad[1] * grad[2]
		q.b = q.b.Add(grad.Mul(off))
		q.c += off * off
	}

	q.scale(area)
	q.area = area
	return q
}

func (q *AttrQuadric) scale(s float64) {
	q.xx *= s
	q.yy *= s
	q.zz *= s
	q.xy *= s
	q.xz *= s
	q.yz *= s
	q.b = q.b.Mul(s)
	q.c *= s
	for i := 0; i < q.n; i++ {
		q.g[i] = q.g[i].Mul(s)
		q.d[i] *= s
	}
}

// Add accumulates other into q.
func (q *AttrQuadric) Add(other *AttrQuadric) {
	q.xx += other.xx
	q.yy += other.yy
	q.zz += other.zz
	q.xy += other.xy
	q.xz += other.xz
	q.yz += other.yz
	q.b = q.b.Add(other.b)
	q.c += other.c
	q.n = max(q.n, other.n)
	for i := 0; i < q.n; i++ {
		q.g[i] = q.g[i].Add(other.g[i])
		q.d[i] += other.d[i]
	}
	q.area += other.area
}

// Area returns the accumulated triangle area.
func (q *AttrQuadric) Area() float64 {
	return q.area
}

// Evaluate returns the error of a vertex at p with the given (unweighted)
// attributes, clamped at zero.
func (q *AttrQuadric) Evaluate(p mgl64.Vec3, attrs *[MaxAttributes]float32, weights *[MaxAttributes]float64) float64 {
	x, y, z := p[0], p[1], p[2]
	e := x*x*q.xx + y*y*q.yy + z*z*q.zz +
		2*(x*y*q.xy+x*z*q.xz+y*z*q.yz) +
		2*q.b.Dot(p) + q.c
	for i := 0; i < q.n; i++ {
		s := weights[i] * float64(attrs[i])
		e += q.area*s*s - 2*s*q.g[i].Dot(p) - 2*q.d[i]*s
	}
	return gomath.Max(e, 0)
}

// CalcAttributes writes the attribute values minimizing the error at p.
// Channels with zero weight are left untouched.
func (q *AttrQuadric) CalcAttributes(p mgl64.Vec3, attrs *[MaxAttributes]float32, weights *[MaxAttributes]float64) {
	if q.area < minQuadricArea {
		return
	}
	inv := 1 / q.area
	for i := 0; i < q.n; i++ {
		if weights[i] == 0 {
			continue
		}
		s := (q.g[i].Dot(p) + q.d[i]) * inv
		attrs[i] = float32(s / weights[i])
	}
}

// attrOptimizer finds the position minimizing a sum of attribute quadrics
// with their attributes at the optimum, plus position-only quadrics.
type attrOptimizer struct {
	xx, yy, zz, xy, xz, yz float64
	b                      mgl64.Vec3
}

// addAttrQuadric adds q with its attribute unknowns eliminated:
// A' = A - Σ gᵢgᵢᵀ/area, b' = b - Σ dᵢgᵢ/area.
func (o *attrOptimizer) addAttrQuadric(q *AttrQuadric) {
	o.xx += q.xx
	o.yy += q.yy
	o.zz += q.zz
	o.xy += q.xy
	o.xz += q.xz
	o.yz += q.yz
	o.b = o.b.Add(q.b)
	if q.area < minQuadricArea {
		return
	}
	inv := 1 / q.area
	for i := 0; i < q.n; i++ {
		g := q.g[i]
		o.xx -= g[0] * g[0] * inv
		o.yy -= g[1] * g[1] * inv
		o.zz -= g[2] * g[2] * inv
		o.xy -= g[0] * g[1] * inv
		o.xz -= g[0] * g[2] * inv
		o.yz -= g[1] * g[2] * inv
		o.b = o.b.Sub(g.Mul(q.d[i] * inv))
	}
}

func (o *attrOptimizer) addQuadric(q *Quadric) {
	o.xx += q.xx
	o.yy += q.yy
	o.zz += q.zz
	o.xy += q.xy
	o.xz += q.xz
	o.yz += q.yz
	o.b = o.b.Add(q.b)
}

// optimize solves A p = -b. It fails when the system is singular relative
// to its own scale.
func (o *attrOptimizer) optimize() (mgl64.Vec3, bool) {
	trace := o.xx + o.yy + o.zz
	if !(trace > 0) {
		return mgl64.Vec3{}, false
	}
	m := mgl64.Mat3FromRows(
		mgl64.Vec3{o.xx, o.xy, o.xz},
		mgl64.Vec3{o.xy, o.yy, o.yz},
		mgl64.Vec3{o.xz, o.yz, o.zz},
	)
	det := m.Det()
	s := trace / 3
	if gomath.Abs(det) < singularDet*s*s*s {
		return mgl64.Vec3{}, false
	}
	p := m.Inv().Mul3x1(o.b.Mul(-1))
	if gomath.IsNaN(p[0]) || gomath.IsNaN(p[1]) || gomath.IsNaN(p[2]) {
		return mgl64.Vec3{}, false
	}
	return p, true
}
