package simplify

import "fmt"

// OutputMesh writes the live vertices and triangles into verts and indexes,
// which must hold at least NumVerts and 3*NumTris entries. Vertices keep
// their relative input order.
func (s *Simplifier) OutputMesh(verts []Vertex, indexes []uint32) error {
	if len(verts) < s.numVerts {
		return fmt.Errorf("%w: %d vertices, need %d", ErrOutputTooSmall, len(verts), s.numVerts)
	}
	if len(indexes) < 3*s.numTris {
		return fmt.Errorf("%w: %d indexes, need %d", ErrOutputTooSmall, len(indexes), 3*s.numTris)
	}

	remap := make([]uint32, len(s.verts))
	n := uint32(0)
	for i := range s.verts {
		if s.verts[i].removed {
			remap[i] = invalidID
			continue
		}
		verts[n] = s.verts[i].vert
		remap[i] = n
		n++
	}

	k := 0
	for t := range s.tris {
		if s.tris[t].removed {
			continue
		}
		for _, c := range s.tris[t].verts {
			indexes[k] = remap[c]
			k++
		}
	}
	return nil
}

// Output returns freshly allocated copies of the live mesh.
func (s *Simplifier) Output() ([]Vertex, []uint32) {
	verts := make([]Vertex, s.numVerts)
	indexes := make([]uint32, 3*s.numTris)
	// Sizes match by construction.
	_ = s.OutputMesh(verts, indexes)
	return verts, indexes
}
