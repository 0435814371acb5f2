// Package lod builds simplified levels of detail for triangle meshes.
package lod

import (
	"github.com/Faultbox/midgard-lod/pkg/formats"
	"github.com/Faultbox/midgard-lod/pkg/math"
)

// Vertex is a mesh vertex with position, normal, texture coordinates and
// color.
type Vertex struct {
	Position [3]float32
	Normal   [3]float32
	TexCoord [2]float32
	Color    [4]float32
}

// Mesh is an indexed triangle list.
type Mesh struct {
	Vertices []Vertex
	Indices  []uint32
	Bounds   Bounds
}

// Bounds holds the axis-aligned bounding box of a mesh.
type Bounds struct {
	Min [3]float32
	Max [3]float32
}

// TriangleCount returns the number of triangles.
func (m *Mesh) TriangleCount() int {
	return len(m.Indices) / 3
}

var white = [4]float32{1, 1, 1, 1}

// cornerKey identifies a distinct OBJ corner.
type cornerKey struct {
	v, vt, vn int32
}

// MeshFromOBJ converts an OBJ into an indexed mesh. Corners sharing position,
// texture coordinate and normal references become one vertex. Corners
// without a normal get an area-weighted face normal smoothed across all
// such vertices at the same position.
func MeshFromOBJ(obj *formats.OBJ) *Mesh {
	mesh := &Mesh{Indices: make([]uint32, 0, len(obj.Faces)*3)}
	index := make(map[cornerKey]uint32)
	var computed []bool

	for _, f := range obj.Faces {
		var tri [3]uint32
		for i, c := range f.Corners {
			key := cornerKey{c.V, c.VT, c.VN}
			idx, ok := index[key]
			if !ok {
				idx = uint32(len(mesh.Vertices))
				index[key] = idx
				mesh.Vertices = append(mesh.Vertices, objVertex(obj, c))
				computed = append(computed, c.VN == formats.NoIndex)
			}
			tri[i] = idx
		}
		mesh.Indices = append(mesh.Indices, tri[:]...)
	}

	// Accumulate unnormalized face normals; their length is twice the area.
	for i := 0; i+2 < len(mesh.Indices); i += 3 {
		a, b, c := mesh.Indices[i], mesh.Indices[i+1], mesh.Indices[i+2]
		n := faceNormal(mesh.Vertices[a].Position, mesh.Vertices[b].Position, mesh.Vertices[c].Position)
		for _, v := range [3]uint32{a, b, c} {
			if computed[v] {
				vn := math.FromArray(mesh.Vertices[v].Normal).Add(n)
				mesh.Vertices[v].Normal = vn.Array()
			}
		}
	}

	var smooth []int
	for i, ok := range computed {
		if ok {
			smooth = append(smooth, i)
		}
	}
	SmoothNormals(mesh.Vertices, smooth)

	mesh.Bounds = calcBounds(mesh.Vertices)
	return mesh
}

func objVertex(obj *formats.OBJ, c formats.OBJCorner) Vertex {
	v := Vertex{
		Position: obj.Positions[c.V],
		Color:    white,
	}
	if c.VT != formats.NoIndex {
		v.TexCoord = obj.TexCoords[c.VT]
	}
	if c.VN != formats.NoIndex {
		v.Normal = math.FromArray(obj.Normals[c.VN]).Normalize().Array()
	}
	if len(obj.Colors) == len(obj.Positions) {
		col := obj.Colors[c.V]
		v.Color = [4]float32{col[0], col[1], col[2], 1}
	}
	return v
}

func faceNormal(p0, p1, p2 [3]float32) math.Vec3 {
	a, b, c := math.FromArray(p0), math.FromArray(p1), math.FromArray(p2)
	return b.Sub(a).Cross(c.Sub(a))
}

// SmoothNormals averages the normals of the listed vertices that share a
// position and normalizes the result.
func SmoothNormals(vertices []Vertex, which []int) {
	const epsilon float32 = 0.001

	// Group vertices by quantized position for O(n) lookup
	posMap := make(map[[3]int32][]int)
	for _, i := range which {
		key := [3]int32{
			int32(vertices[i].Position[0] / epsilon),
			int32(vertices[i].Position[1] / epsilon),
			int32(vertices[i].Position[2] / epsilon),
		}
		posMap[key] = append(posMap[key], i)
	}

	for _, idxs := range posMap {
		var sum math.Vec3
		for _, idx := range idxs {
			sum = sum.Add(math.FromArray(vertices[idx].Normal))
		}
		avg := sum.Normalize().Array()
		for _, idx := range idxs {
			vertices[idx].Normal = avg
		}
	}
}

func calcBounds(vertices []Vertex) Bounds {
	if len(vertices) == 0 {
		return Bounds{}
	}
	lo := math.FromArray(vertices[0].Position)
	hi := lo
	for _, v := range vertices[1:] {
		p := math.FromArray(v.Position)
		lo = lo.Min(p)
		hi = hi.Max(p)
	}
	return Bounds{Min: lo.Array(), Max: hi.Array()}
}

// ToOBJ converts the mesh into an OBJ with one position, texture coordinate
// and normal per vertex. Vertex colors are written when any vertex is not
// white.
func (m *Mesh) ToOBJ() *formats.OBJ {
	obj := &formats.OBJ{
		Positions: make([][3]float32, len(m.Vertices)),
		TexCoords: make([][2]float32, len(m.Vertices)),
		Normals:   make([][3]float32, len(m.Vertices)),
		Faces:     make([]formats.OBJFace, 0, m.TriangleCount()),
	}
	colored := false
	for i, v := range m.Vertices {
		obj.Positions[i] = v.Position
		obj.TexCoords[i] = v.TexCoord
		obj.Normals[i] = v.Normal
		if v.Color != white {
			colored = true
		}
	}
	if colored {
		obj.Colors = make([][3]float32, len(m.Vertices))
		for i, v := range m.Vertices {
			obj.Colors[i] = [3]float32{v.Color[0], v.Color[1], v.Color[2]}
		}
	}
	for i := 0; i+2 < len(m.Indices); i += 3 {
		var f formats.OBJFace
		for j := range f.Corners {
			idx := int32(m.Indices[i+j])
			f.Corners[j] = formats.OBJCorner{V: idx, VT: idx, VN: idx}
		}
		obj.Faces = append(obj.Faces, f)
	}
	return obj
}
