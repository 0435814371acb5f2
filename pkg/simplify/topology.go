package simplify

import (
	"slices"

	"github.com/Faultbox/midgard-lod/pkg/math"
)

// MaxAttributes is the number of attribute channels a Vertex can carry.
const MaxAttributes = 16

const invalidID = ^uint32(0)

// Vertex is one (position, attributes) pair of an indexed mesh. Only the
// first numAttributes channels given to New take part in simplification.
type Vertex struct {
	Position   math.Vec3
	Attributes [MaxAttributes]float32
}

// simpVert is the working record for an input vertex.
type simpVert struct {
	vert    Vertex
	adjTris []uint32
	group   uint32 // position group
	removed bool
	locked  bool
}

// simpTri references three vertex records.
type simpTri struct {
	verts   [3]uint32
	removed bool
}

// hasVert reports whether v is one of the corners.
func (t *simpTri) hasVert(v uint32) bool {
	return t.verts[0] == v || t.verts[1] == v || t.verts[2] == v
}

// simpEdge joins two vertex records. Edges whose endpoints share positions
// with another edge's endpoints belong to the same edge group.
type simpEdge struct {
	v0, v1  uint32
	group   uint32
	removed bool
}

// groupSet maps a group id to its members. Group ids are element ids of the
// group's first member, so a set never needs more slots than elements.
type groupSet struct {
	members [][]uint32
}

func newGroupSet(n int) groupSet {
	return groupSet{members: make([][]uint32, n)}
}

func (g *groupSet) grow(n int) {
	for len(g.members) < n {
		g.members = append(g.members, nil)
	}
}

func (g *groupSet) join(group, id uint32) {
	g.members[group] = append(g.members[group], id)
}

func (g *groupSet) leave(group, id uint32) {
	m := g.members[group]
	if i := slices.Index(m, id); i >= 0 {
		g.members[group] = slices.Delete(m, i, i+1)
	}
}

// appendUnique appends v to s unless it is already present.
func appendUnique(s []uint32, v uint32) []uint32 {
	if slices.Contains(s, v) {
		return s
	}
	return append(s, v)
}

// findAdjacentVerts appends every vertex sharing a triangle with v.
func (s *Simplifier) findAdjacentVerts(v uint32, out []uint32) []uint32 {
	for _, t := range s.verts[v].adjTris {
		for _, c := range s.tris[t].verts {
			if c != v {
				out = appendUnique(out, c)
			}
		}
	}
	return out
}

// findAdjacentVertsGroup appends every vertex sharing a triangle with any
// member of v's position group, excluding the group itself.
func (s *Simplifier) findAdjacentVertsGroup(v uint32, out []uint32) []uint32 {
	g := s.verts[v].group
	for _, m := range s.vertGroups.members[g] {
		for _, t := range s.verts[m].adjTris {
			for _, c := range s.tris[t].verts {
				if s.verts[c].group != g {
					out = appendUnique(out, c)
				}
			}
		}
	}
	return out
}

// adjacentGroups appends the position groups touching group g.
func (s *Simplifier) adjacentGroups(g uint32, out []uint32) []uint32 {
	for _, m := range s.vertGroups.members[g] {
		for _, t := range s.verts[m].adjTris {
			for _, c := range s.tris[t].verts {
				if cg := s.verts[c].group; cg != g {
					out = appendUnique(out, cg)
				}
			}
		}
	}
	return out
}

// numAdjTrisGroup counts triangles adjacent to v's whole position group.
func (s *Simplifier) numAdjTrisGroup(v uint32) int {
	n := 0
	for _, m := range s.vertGroups.members[s.verts[v].group] {
		n += len(s.verts[m].adjTris)
	}
	return n
}

// setLockedGroup sets the lock state on every member of v's group.
func (s *Simplifier) setLockedGroup(v uint32, locked bool) {
	for _, m := range s.vertGroups.members[s.verts[v].group] {
		s.verts[m].locked = locked
	}
}

// sharedTris appends the triangles with corners in both groups g0 and g1.
func (s *Simplifier) sharedTris(g0, g1 uint32, out []uint32) []uint32 {
	for _, m := range s.vertGroups.members[g0] {
		for _, t := range s.verts[m].adjTris {
			for _, c := range s.tris[t].verts {
				if s.verts[c].group == g1 {
					out = append(out, t)
					break
				}
			}
		}
	}
	return out
}

// replaceVertexIsValid reports whether moving corner oldV of triangle t to
// pos keeps the triangle facing the same way with non-zero area.
func (s *Simplifier) replaceVertexIsValid(t, oldV uint32, pos math.Vec3) bool {
	tri := &s.tris[t]
	var p [3]math.Vec3
	k := -1
	for i, c := range tri.verts {
		p[i] = s.verts[c].vert.Position
		if c == oldV {
			k = i
		}
	}
	if k < 0 {
		return true
	}

	before := toVec3d(p[1].Sub(p[0])).Cross(toVec3d(p[2].Sub(p[0])))
	p[k] = pos
	after := toVec3d(p[1].Sub(p[0])).Cross(toVec3d(p[2].Sub(p[0])))

	lb := before.Len()
	if lb < degenerateArea {
		return true
	}
	la := after.Len()
	if la < degenerateArea || la < lb*minAreaRatio {
		return false
	}
	return before.Dot(after) > 0
}

// replaceVertex moves corner oldV of triangle t to newV.
func (s *Simplifier) replaceVertex(t, oldV, newV uint32) {
	tri := &s.tris[t]
	for i, c := range tri.verts {
		if c == oldV {
			tri.verts[i] = newV
		}
	}
	old := &s.verts[oldV]
	if i := slices.Index(old.adjTris, t); i >= 0 {
		old.adjTris = slices.Delete(old.adjTris, i, i+1)
	}
	s.verts[newV].adjTris = append(s.verts[newV].adjTris, t)
}

// removeTri flags t removed and detaches it from its corners.
func (s *Simplifier) removeTri(t uint32) {
	tri := &s.tris[t]
	if tri.removed {
		return
	}
	tri.removed = true
	for _, c := range tri.verts {
		v := &s.verts[c]
		if i := slices.Index(v.adjTris, t); i >= 0 {
			v.adjTris = slices.Delete(v.adjTris, i, i+1)
		}
	}
	s.numTris--
}

// removeVert flags v removed and takes it out of its group.
func (s *Simplifier) removeVert(v uint32) {
	vert := &s.verts[v]
	if vert.removed {
		return
	}
	vert.removed = true
	vert.adjTris = nil
	s.vertGroups.leave(vert.group, v)
	s.numVerts--
}

// isDegenerate reports whether two corners of t share a position group.
func (s *Simplifier) isDegenerate(t uint32) bool {
	v := s.tris[t].verts
	g0, g1, g2 := s.verts[v[0]].group, s.verts[v[1]].group, s.verts[v[2]].group
	return g0 == g1 || g1 == g2 || g0 == g2
}
