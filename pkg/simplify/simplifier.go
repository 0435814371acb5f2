// Package simplify reduces the triangle count of indexed meshes by greedy
// edge collapse driven by quadric error metrics.
//
// Vertices that share a position but differ in attributes (UV seams, hard
// normals) are kept as separate records joined into a position group, so a
// collapse moves every variant of a position together and seams survive.
package simplify

import (
	"errors"
	"fmt"
	gomath "math"

	"go.uber.org/zap"

	"github.com/Faultbox/midgard-lod/pkg/binheap"
	"github.com/Faultbox/midgard-lod/pkg/hashtable"
	"github.com/Faultbox/midgard-lod/pkg/math"
)

// Errors returned by New and OutputMesh.
var (
	ErrIndexCount     = errors.New("index count is not a multiple of 3")
	ErrIndexRange     = errors.New("index out of vertex range")
	ErrAttributeCount = errors.New("attribute count out of range")
	ErrOutputTooSmall = errors.New("output buffer too small")
)

// DefaultEdgeWeight scales the quadrics that keep open borders in place.
const DefaultEdgeWeight = 16

// Simplifier holds the working topology of one mesh. It is not safe for
// concurrent use; independent meshes get independent Simplifiers.
type Simplifier struct {
	numAttributes    int
	attributeWeights [MaxAttributes]float64
	edgeWeight       float64

	verts []simpVert
	tris  []simpTri
	edges []simpEdge

	vertGroups groupSet
	edgeGroups groupSet

	edgeHash *hashtable.HashTable
	edgeHeap *binheap.Heap[float64]

	vertQuadrics []AttrQuadric
	edgeQuadrics []Quadric
	costsReady   bool

	numVerts int
	numTris  int

	stats Stats
	log   *zap.Logger
}

// Stats counts what the collapse loop did.
type Stats struct {
	Collapses int // performed collapses
	Locked    int // dropped edge groups with both ends locked
	Rejected  int // collapses skipped for topology or the triangle floor
}

// Option configures a Simplifier.
type Option func(*Simplifier)

// WithLogger sets the logger used for debug output.
func WithLogger(log *zap.Logger) Option {
	return func(s *Simplifier) {
		if log != nil {
			s.log = log
		}
	}
}

// New builds the topology for a triangle list. numAttributes is the number of
// attribute channels of each vertex that carry data.
//
// Triangles repeating a vertex index or having two corners at the same
// position are dropped. Vertices not referenced by any remaining triangle are
// not part of the output.
func New(verts []Vertex, indexes []uint32, numAttributes int, opts ...Option) (*Simplifier, error) {
	if len(indexes)%3 != 0 {
		return nil, fmt.Errorf("%w: %d", ErrIndexCount, len(indexes))
	}
	if numAttributes < 0 || numAttributes > MaxAttributes {
		return nil, fmt.Errorf("%w: %d (max %d)", ErrAttributeCount, numAttributes, MaxAttributes)
	}
	for i, idx := range indexes {
		if int(idx) >= len(verts) {
			return nil, fmt.Errorf("%w: index %d at position %d, %d vertices", ErrIndexRange, idx, i, len(verts))
		}
	}

	s := &Simplifier{
		numAttributes: numAttributes,
		edgeWeight:    DefaultEdgeWeight,
		verts:         make([]simpVert, len(verts)),
		vertGroups:    newGroupSet(len(verts)),
		log:           zap.NewNop(),
	}
	for i := range s.attributeWeights {
		s.attributeWeights[i] = 1
	}
	for _, opt := range opts {
		opt(s)
	}

	for i := range verts {
		s.verts[i].vert = verts[i]
		s.verts[i].group = invalidID
	}
	s.groupVerts()

	numInput := len(indexes) / 3
	s.tris = make([]simpTri, 0, numInput)
	dropped := 0
	for i := 0; i < numInput; i++ {
		v := [3]uint32{indexes[3*i], indexes[3*i+1], indexes[3*i+2]}
		g0, g1, g2 := s.verts[v[0]].group, s.verts[v[1]].group, s.verts[v[2]].group
		if g0 == g1 || g1 == g2 || g0 == g2 {
			dropped++
			continue
		}
		t := uint32(len(s.tris))
		s.tris = append(s.tris, simpTri{verts: v})
		for _, c := range v {
			s.verts[c].adjTris = append(s.verts[c].adjTris, t)
		}
	}
	s.numTris = len(s.tris)

	s.numVerts = len(s.verts)
	for i := range s.verts {
		if len(s.verts[i].adjTris) == 0 {
			s.removeVert(uint32(i))
		}
	}

	s.buildEdges()
	s.groupEdges()

	s.log.Debug("simplifier built",
		zap.Int("verts", s.numVerts),
		zap.Int("tris", s.numTris),
		zap.Int("edges", len(s.edges)),
		zap.Int("dropped_tris", dropped))

	return s, nil
}

// hashPoint hashes a position so that 0 and -0 collide.
func hashPoint(p math.Vec3) uint32 {
	return hashtable.Murmur32(floatKey(p.X), floatKey(p.Y), floatKey(p.Z))
}

func floatKey(f float32) uint32 {
	if f == 0 {
		return 0
	}
	return gomath.Float32bits(f)
}

// hashEdge is symmetric in its arguments.
func hashEdge(u, v uint32) uint16 {
	return uint16(hashtable.Murmur32(min(u, v), max(u, v)))
}

// groupVerts joins vertices with identical positions into position groups.
func (s *Simplifier) groupVerts() {
	ht := hashtable.New(4096, uint32(len(s.verts)))
	hashes := make([]uint16, len(s.verts))
	for i := range s.verts {
		hashes[i] = uint16(hashPoint(s.verts[i].vert.Position))
		ht.Add(hashes[i], uint32(i))
	}

	for i := range s.verts {
		if s.verts[i].group != invalidID {
			continue
		}
		g := uint32(i)
		s.verts[i].group = g
		s.vertGroups.join(g, g)
		pos := s.verts[i].vert.Position
		for j := range ht.Chain(hashes[i]) {
			other := &s.verts[j]
			if j == g || other.group != invalidID || other.vert.Position != pos {
				continue
			}
			other.group = g
			s.vertGroups.join(g, j)
		}
	}
}

// buildEdges creates one edge per distinct pair of vertex records joined by a
// triangle.
func (s *Simplifier) buildEdges() {
	s.edges = make([]simpEdge, 0, len(s.tris)*3/2+1)
	s.edgeHash = hashtable.New(4096, uint32(len(s.tris)*3/2+1))
	for t := range s.tris {
		v := s.tris[t].verts
		for j := 0; j < 3; j++ {
			a, b := v[j], v[(j+1)%3]
			if s.findEdge(a, b) != invalidID {
				continue
			}
			id := uint32(len(s.edges))
			s.edges = append(s.edges, simpEdge{v0: a, v1: b, group: invalidID})
			s.edgeHash.Add(hashEdge(a, b), id)
		}
	}
	s.edgeGroups = newGroupSet(len(s.edges))
}

// groupEdges joins edges whose endpoints share positions, flipping members so
// that v0 of every member sits at the same position.
func (s *Simplifier) groupEdges() {
	ht := hashtable.New(4096, uint32(len(s.edges)))
	hashes := make([]uint16, len(s.edges))
	for i := range s.edges {
		h0 := hashPoint(s.verts[s.edges[i].v0].vert.Position)
		h1 := hashPoint(s.verts[s.edges[i].v1].vert.Position)
		hashes[i] = uint16(hashtable.Murmur32(min(h0, h1), max(h0, h1)))
		ht.Add(hashes[i], uint32(i))
	}

	for i := range s.edges {
		e := &s.edges[i]
		if e.group != invalidID {
			continue
		}
		g := uint32(i)
		e.group = g
		s.edgeGroups.join(g, g)
		g0, g1 := s.verts[e.v0].group, s.verts[e.v1].group
		for j := range ht.Chain(hashes[i]) {
			other := &s.edges[j]
			if j == g || other.group != invalidID {
				continue
			}
			o0, o1 := s.verts[other.v0].group, s.verts[other.v1].group
			switch {
			case o0 == g0 && o1 == g1:
			case o0 == g1 && o1 == g0:
				other.v0, other.v1 = other.v1, other.v0
			default:
				continue
			}
			other.group = g
			s.edgeGroups.join(g, j)
		}
	}
}

// findEdge returns the edge joining u and v, or invalidID.
func (s *Simplifier) findEdge(u, v uint32) uint32 {
	for i := range s.edgeHash.Chain(hashEdge(u, v)) {
		e := &s.edges[i]
		if (e.v0 == u && e.v1 == v) || (e.v0 == v && e.v1 == u) {
			return i
		}
	}
	return invalidID
}

// SetAttributeWeights scales each attribute channel's contribution to the
// error. Extra entries are ignored. Call before InitCosts.
func (s *Simplifier) SetAttributeWeights(weights []float32) {
	for i := 0; i < s.numAttributes && i < len(weights); i++ {
		s.attributeWeights[i] = float64(weights[i])
	}
}

// SetEdgeWeight scales the border-preserving quadrics. Call before InitCosts.
func (s *Simplifier) SetEdgeWeight(weight float32) {
	s.edgeWeight = float64(weight)
}

// SetBoundaryLocked locks every position on an open border, so collapses
// never move or remove it.
func (s *Simplifier) SetBoundaryLocked() {
	var adj, shared []uint32
	locked := 0
	lock := func(g uint32) {
		v := s.vertGroups.members[g][0]
		if !s.verts[v].locked {
			locked++
			s.setLockedGroup(v, true)
		}
	}
	for g, members := range s.vertGroups.members {
		if len(members) == 0 {
			continue
		}
		g0 := uint32(g)
		adj = s.adjacentGroups(g0, adj[:0])
		for _, g1 := range adj {
			if g1 < g0 {
				continue
			}
			shared = s.sharedTris(g0, g1, shared[:0])
			if len(shared) == 1 {
				lock(g0)
				lock(g1)
			}
		}
	}
	s.log.Debug("boundary locked", zap.Int("groups", locked))
}

// InitCosts accumulates vertex quadrics and queues every edge by its collapse
// cost.
func (s *Simplifier) InitCosts() {
	s.vertQuadrics = make([]AttrQuadric, len(s.verts))
	s.edgeQuadrics = make([]Quadric, len(s.verts))
	for i := range s.vertQuadrics {
		s.vertQuadrics[i].n = s.numAttributes
	}

	for t := range s.tris {
		if s.tris[t].removed {
			continue
		}
		q := s.triQuadric(uint32(t))
		for _, c := range s.tris[t].verts {
			s.vertQuadrics[c].Add(&q)
		}
	}

	s.initEdgeQuadrics()

	s.edgeHeap = binheap.New[float64](uint32(len(s.edges)), uint32(len(s.edges)))
	for g, members := range s.edgeGroups.members {
		if len(members) == 0 {
			continue
		}
		if s.groupLocked(uint32(g)) {
			continue
		}
		cost := s.computeEdgeCollapseCost(uint32(g))
		for _, e := range members {
			s.edgeHeap.Add(cost, e)
		}
	}
	s.costsReady = true

	s.log.Debug("collapse costs initialized", zap.Uint32("queued", s.edgeHeap.Num()))
}

func (s *Simplifier) triQuadric(t uint32) AttrQuadric {
	v := s.tris[t].verts
	a, b, c := &s.verts[v[0]].vert, &s.verts[v[1]].vert, &s.verts[v[2]].vert
	return NewTriangleAttrQuadric(
		toVec3d(a.Position), toVec3d(b.Position), toVec3d(c.Position),
		&a.Attributes, &b.Attributes, &c.Attributes,
		&s.attributeWeights, s.numAttributes)
}

// initEdgeQuadrics adds a border-holding plane for every position pair used
// by exactly one triangle.
func (s *Simplifier) initEdgeQuadrics() {
	if s.edgeWeight == 0 {
		return
	}
	var shared []uint32
	for _, members := range s.edgeGroups.members {
		if len(members) == 0 {
			continue
		}
		e := &s.edges[members[0]]
		g0, g1 := s.verts[e.v0].group, s.verts[e.v1].group
		shared = s.sharedTris(g0, g1, shared[:0])
		if len(shared) != 1 {
			continue
		}
		v := s.tris[shared[0]].verts
		p0 := toVec3d(s.verts[v[0]].vert.Position)
		p1 := toVec3d(s.verts[v[1]].vert.Position)
		p2 := toVec3d(s.verts[v[2]].vert.Position)
		n := p1.Sub(p0).Cross(p2.Sub(p0))
		l := n.Len()
		if l < degenerateArea {
			continue
		}
		n = n.Mul(1 / l)
		q := NewEdgeQuadric(toVec3d(s.verts[e.v0].vert.Position), toVec3d(s.verts[e.v1].vert.Position), n, s.edgeWeight)
		for _, c := range v {
			if cg := s.verts[c].group; cg == g0 || cg == g1 {
				s.edgeQuadrics[c].Add(q)
			}
		}
	}
}

// groupLocked reports whether any member of an edge group has both ends
// locked. Such a group can never collapse.
func (s *Simplifier) groupLocked(g uint32) bool {
	for _, e := range s.edgeGroups.members[g] {
		if s.verts[s.edges[e].v0].locked && s.verts[s.edges[e].v1].locked {
			return true
		}
	}
	return false
}

// NumVerts returns the number of live vertices.
func (s *Simplifier) NumVerts() int {
	return s.numVerts
}

// NumTris returns the number of live triangles.
func (s *Simplifier) NumTris() int {
	return s.numTris
}

// Stats returns counters from the last simplification run.
func (s *Simplifier) Stats() Stats {
	return s.stats
}
