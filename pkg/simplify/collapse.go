package simplify

import (
	"context"
	gomath "math"
	"slices"

	"github.com/go-gl/mathgl/mgl64"
	"go.uber.org/zap"

	"github.com/Faultbox/midgard-lod/pkg/math"
)

const (
	// maxDegree is the triangle count around a position above which
	// collapses start paying degreePenalty per extra triangle.
	maxDegree     = 24
	degreePenalty = 100
	// foldPenalty is charged per triangle a collapse would flip or flatten.
	foldPenalty = 1e6
	// optimalReach bounds how far, in edge lengths, the optimal position may
	// lie from the edge midpoint before it is ignored.
	optimalReach = 2
)

// cluster is a set of vertex records that end up as one record after a
// collapse: a pair joined by a member edge, or a single unpaired record.
type cluster struct {
	keep, drop uint32 // drop is invalidID for unpaired records
	quadric    AttrQuadric
}

// collapsePlan describes the result of collapsing one edge group.
type collapsePlan struct {
	gv, gu   uint32 // kept and removed position groups
	pos      mgl64.Vec3
	cost     float64
	clusters []cluster
	shared   []uint32
}

// planCollapse gathers the clusters of edge group g and picks the cheapest
// target position.
func (s *Simplifier) planCollapse(g uint32) collapsePlan {
	members := s.edgeGroups.members[g]
	first := &s.edges[members[0]]
	plan := collapsePlan{
		gv: s.verts[first.v0].group,
		gu: s.verts[first.v1].group,
	}

	paired := make(map[uint32]bool)
	for _, e := range members {
		v0, v1 := s.edges[e].v0, s.edges[e].v1
		if paired[v0] || paired[v1] {
			continue
		}
		paired[v0], paired[v1] = true, true
		q := s.vertQuadrics[v0]
		q.Add(&s.vertQuadrics[v1])
		plan.clusters = append(plan.clusters, cluster{keep: v0, drop: v1, quadric: q})
	}
	var edgeQuadric Quadric
	for _, grp := range [2]uint32{plan.gv, plan.gu} {
		for _, v := range s.vertGroups.members[grp] {
			edgeQuadric.Add(s.edgeQuadrics[v])
			if !paired[v] {
				plan.clusters = append(plan.clusters, cluster{keep: v, drop: invalidID, quadric: s.vertQuadrics[v]})
			}
		}
	}

	plan.shared = s.sharedTris(plan.gv, plan.gu, nil)

	p0 := toVec3d(s.verts[first.v0].vert.Position)
	p1 := toVec3d(s.verts[first.v1].vert.Position)
	locked0, locked1 := s.verts[first.v0].locked, s.verts[first.v1].locked

	var candidates []mgl64.Vec3
	switch {
	case locked0 && locked1:
		plan.cost = gomath.Inf(1)
		plan.pos = p0
		return plan
	case locked0:
		candidates = append(candidates, p0)
	case locked1:
		candidates = append(candidates, p1)
	default:
		mid := p0.Add(p1).Mul(0.5)
		var opt attrOptimizer
		for i := range plan.clusters {
			opt.addAttrQuadric(&plan.clusters[i].quadric)
		}
		opt.addQuadric(&edgeQuadric)
		if pos, ok := opt.optimize(); ok && pos.Sub(mid).Len() <= optimalReach*p1.Sub(p0).Len() {
			candidates = append(candidates, pos)
		}
		candidates = append(candidates, mid, p0, p1)
	}

	plan.cost = gomath.Inf(1)
	for _, pos := range candidates {
		cost := edgeQuadric.Evaluate(pos)
		for i := range plan.clusters {
			c := &plan.clusters[i]
			attrs := s.verts[c.keep].vert.Attributes
			c.quadric.CalcAttributes(pos, &attrs, &s.attributeWeights)
			cost += c.quadric.Evaluate(pos, &attrs, &s.attributeWeights)
		}
		cost += s.collapsePenalty(&plan, fromVec3d(pos))
		if cost < plan.cost {
			plan.cost = cost
			plan.pos = pos
		}
	}
	return plan
}

// collapsePenalty charges for triangles that would fold and for positions
// that would end up with too many triangles.
func (s *Simplifier) collapsePenalty(plan *collapsePlan, pos math.Vec3) float64 {
	penalty := 0.0
	for _, grp := range [2]uint32{plan.gv, plan.gu} {
		for _, v := range s.vertGroups.members[grp] {
			for _, t := range s.verts[v].adjTris {
				if slices.Contains(plan.shared, t) {
					continue
				}
				if !s.replaceVertexIsValid(t, v, pos) {
					penalty += foldPenalty
				}
			}
		}
	}

	degree := s.numAdjTrisGroup(s.vertGroups.members[plan.gv][0]) +
		s.numAdjTrisGroup(s.vertGroups.members[plan.gu][0]) - 2*len(plan.shared)
	if degree > maxDegree {
		penalty += degreePenalty * float64(degree-maxDegree)
	}
	return penalty
}

// computeEdgeCollapseCost returns the error of collapsing edge group g.
func (s *Simplifier) computeEdgeCollapseCost(g uint32) float64 {
	return s.planCollapse(g).cost
}

// linkValid reports whether the position groups common to both ends of the
// edge are exactly the opposite corners of the shared triangles. Collapses
// that break this would pinch the surface.
func (s *Simplifier) linkValid(plan *collapsePlan) bool {
	var opposite []uint32
	for _, t := range plan.shared {
		for _, c := range s.tris[t].verts {
			if g := s.verts[c].group; g != plan.gv && g != plan.gu {
				opposite = appendUnique(opposite, g)
			}
		}
	}

	adjV := s.adjacentGroups(plan.gv, nil)
	adjU := s.adjacentGroups(plan.gu, nil)
	common := 0
	for _, g := range adjV {
		if g == plan.gu || !slices.Contains(adjU, g) {
			continue
		}
		if !slices.Contains(opposite, g) {
			return false
		}
		common++
	}
	return common == len(opposite)
}

// SimplifyMesh collapses edges in order of increasing cost until the next
// collapse would exceed maxError or leave fewer than minTris triangles. It
// returns the largest error of any performed collapse.
func (s *Simplifier) SimplifyMesh(maxError float64, minTris int) float64 {
	maxErr, _ := s.SimplifyMeshContext(context.Background(), maxError, minTris)
	return maxErr
}

// SimplifyMeshContext is SimplifyMesh with cancellation. Collapses done
// before cancellation are kept.
func (s *Simplifier) SimplifyMeshContext(ctx context.Context, maxError float64, minTris int) (float64, error) {
	if !s.costsReady {
		s.InitCosts()
	}
	s.stats = Stats{}

	maxErr := 0.0
	for !s.edgeHeap.Empty() && s.numTris > minTris {
		if err := ctx.Err(); err != nil {
			return maxErr, err
		}

		top := s.edgeHeap.Top()
		if s.edgeHeap.Key(top) > maxError {
			break
		}

		// collapse detaches every edge it touches from the heap, so only
		// entries left behind by other mutations can fail this.
		e := &s.edges[top]
		if e.removed || s.verts[e.v0].removed || s.verts[e.v1].removed {
			s.edgeHeap.Pop()
			continue
		}

		g := e.group
		if s.groupLocked(g) {
			s.dequeueGroup(g)
			s.stats.Locked++
			continue
		}

		plan := s.planCollapse(g)
		if !s.linkValid(&plan) || s.numTris-len(plan.shared) < minTris {
			s.dequeueGroup(g)
			s.stats.Rejected++
			continue
		}

		maxErr = gomath.Max(maxErr, plan.cost)
		s.collapse(&plan, g)
		s.stats.Collapses++
	}

	s.log.Debug("simplify done",
		zap.Int("tris", s.numTris),
		zap.Int("verts", s.numVerts),
		zap.Float64("max_error", maxErr),
		zap.Int("collapses", s.stats.Collapses),
		zap.Int("locked", s.stats.Locked),
		zap.Int("rejected", s.stats.Rejected))

	return maxErr, nil
}

func (s *Simplifier) dequeueGroup(g uint32) {
	for _, e := range s.edgeGroups.members[g] {
		s.edgeHeap.Remove(e)
	}
}

// collapse moves group gu onto gv at plan.pos and rebuilds the affected
// edges and costs.
func (s *Simplifier) collapse(plan *collapsePlan, g uint32) {
	gv, gu := plan.gv, plan.gu
	locked := s.verts[s.vertGroups.members[gv][0]].locked || s.verts[s.vertGroups.members[gu][0]].locked

	first := s.edges[s.edgeGroups.members[g][0]]
	p0 := toVec3d(s.verts[first.v0].vert.Position)
	p1 := toVec3d(s.verts[first.v1].vert.Position)

	oldEdges := s.incidentEdges(gv, gu)
	for _, e := range oldEdges {
		s.detachEdge(e)
	}

	lerpT := 0.0
	if d := p1.Sub(p0); d.Dot(d) > 0 {
		lerpT = mgl64.Clamp(plan.pos.Sub(p0).Dot(d)/d.Dot(d), 0, 1)
	}

	newPos := fromVec3d(plan.pos)
	for i := range plan.clusters {
		c := &plan.clusters[i]
		keep := &s.verts[c.keep]
		attrs := keep.vert.Attributes
		if c.drop != invalidID {
			drop := &s.verts[c.drop]
			for k := 0; k < s.numAttributes; k++ {
				attrs[k] = keep.vert.Attributes[k] + float32(lerpT)*(drop.vert.Attributes[k]-keep.vert.Attributes[k])
			}
			s.edgeQuadrics[c.keep].Add(s.edgeQuadrics[c.drop])
		}
		c.quadric.CalcAttributes(plan.pos, &attrs, &s.attributeWeights)
		keep.vert.Position = newPos
		keep.vert.Attributes = attrs
		s.vertQuadrics[c.keep] = c.quadric
	}

	// Triangles spanning both groups vanish; the rest move to the kept record.
	var touched []uint32
	for _, t := range plan.shared {
		touched = append(touched, s.tris[t].verts[:]...)
		s.removeTri(t)
	}
	for i := range plan.clusters {
		c := &plan.clusters[i]
		if c.drop == invalidID {
			continue
		}
		for _, t := range slices.Clone(s.verts[c.drop].adjTris) {
			s.replaceVertex(t, c.drop, c.keep)
		}
		s.removeVert(c.drop)
	}
	for _, v := range slices.Clone(s.vertGroups.members[gu]) {
		s.vertGroups.leave(gu, v)
		s.verts[v].group = gv
		s.vertGroups.join(gv, v)
	}
	for _, v := range s.vertGroups.members[gv] {
		for _, t := range slices.Clone(s.verts[v].adjTris) {
			if s.isDegenerate(t) {
				touched = append(touched, s.tris[t].verts[:]...)
				s.removeTri(t)
			}
		}
	}
	touched = append(touched, s.vertGroups.members[gv]...)
	for _, v := range touched {
		if !s.verts[v].removed && len(s.verts[v].adjTris) == 0 {
			s.removeVert(v)
		}
	}

	if len(s.vertGroups.members[gv]) == 0 {
		for _, e := range oldEdges {
			s.edges[e].removed = true
		}
		return
	}
	if locked {
		s.setLockedGroup(s.vertGroups.members[gv][0], true)
	}

	s.rebuildEdges(gv, oldEdges)
	s.updateCosts(gv)
}

// incidentEdges returns every edge touching a record of either group.
func (s *Simplifier) incidentEdges(gv, gu uint32) []uint32 {
	var out, adj []uint32
	for _, grp := range [2]uint32{gv, gu} {
		for _, x := range s.vertGroups.members[grp] {
			adj = s.findAdjacentVerts(x, adj[:0])
			for _, y := range adj {
				if e := s.findEdge(x, y); e != invalidID {
					out = appendUnique(out, e)
				}
			}
		}
	}
	return out
}

// detachEdge takes e out of the hash, its group and the heap.
func (s *Simplifier) detachEdge(e uint32) {
	edge := &s.edges[e]
	s.edgeHash.Remove(hashEdge(edge.v0, edge.v1), e)
	if edge.group != invalidID {
		s.edgeGroups.leave(edge.group, e)
	}
	edge.group = invalidID
	s.edgeHeap.Remove(e)
}

// rebuildEdges recreates the edges of group gv, reusing the ids in pool.
func (s *Simplifier) rebuildEdges(gv uint32, pool []uint32) {
	var fresh, adj []uint32
	next := 0
	for _, x := range s.vertGroups.members[gv] {
		adj = s.findAdjacentVerts(x, adj[:0])
		for _, y := range adj {
			if s.findEdge(x, y) != invalidID {
				continue
			}
			var id uint32
			if next < len(pool) {
				id = pool[next]
				next++
			} else {
				id = uint32(len(s.edges))
				s.edges = append(s.edges, simpEdge{})
				s.edgeGroups.grow(len(s.edges))
			}
			s.edges[id] = simpEdge{v0: x, v1: y, group: invalidID}
			s.edgeHash.Add(hashEdge(x, y), id)
			fresh = append(fresh, id)
		}
	}
	for _, id := range pool[next:] {
		s.edges[id].removed = true
	}

	// One group per neighbouring position group.
	byGroup := make(map[uint32]uint32)
	for _, id := range fresh {
		other := s.verts[s.edges[id].v1].group
		grp, ok := byGroup[other]
		if !ok {
			grp = id
			byGroup[other] = grp
		}
		s.edges[id].group = grp
		s.edgeGroups.join(grp, id)
	}
}

// updateCosts recomputes the cost of every edge group touching gv or its
// neighbours.
func (s *Simplifier) updateCosts(gv uint32) {
	ring := append([]uint32{gv}, s.adjacentGroups(gv, nil)...)
	seen := make(map[uint32]bool)
	var adj []uint32
	for _, grp := range ring {
		for _, x := range s.vertGroups.members[grp] {
			adj = s.findAdjacentVerts(x, adj[:0])
			for _, y := range adj {
				e := s.findEdge(x, y)
				if e == invalidID {
					continue
				}
				eg := s.edges[e].group
				if seen[eg] {
					continue
				}
				seen[eg] = true
				s.requeueGroup(eg)
			}
		}
	}
}

func (s *Simplifier) requeueGroup(g uint32) {
	if s.groupLocked(g) {
		s.dequeueGroup(g)
		return
	}
	cost := s.computeEdgeCollapseCost(g)
	for _, e := range s.edgeGroups.members[g] {
		if s.edgeHeap.IsPresent(e) {
			s.edgeHeap.Update(cost, e)
		} else {
			s.edgeHeap.Add(cost, e)
		}
	}
}
