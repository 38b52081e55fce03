package loader

import (
	"math"

	"github.com/quakeview/server/pkg/core"
	"github.com/quakeview/server/pkg/qdata"
)

// vertexKey identifies an output vertex. UVs are rounded to 3 decimals, so
// corners closer than that merge.
type vertexKey struct {
	pos    qdata.Vec3
	normal qdata.Vec3
	u, v   float64
}

func round3(x float64) float64 {
	return math.Round(x*1000) / 1000
}

// mesh accumulates deduplicated vertices for one output model.
type mesh struct {
	cache   map[vertexKey]int
	verts   []core.Vec3
	normals []core.Vec3
	uvs     []core.UV
	faces   []core.Face
}

func newMesh() *mesh {
	return &mesh{
		cache:   make(map[vertexKey]int),
		verts:   []core.Vec3{},
		normals: []core.Vec3{},
		uvs:     []core.UV{},
		faces:   []core.Face{},
	}
}

func (m *mesh) vertex(pos, normal qdata.Vec3, u, v float64) int {
	key := vertexKey{pos: pos, normal: normal, u: round3(u), v: round3(v)}
	if i, ok := m.cache[key]; ok {
		return i
	}
	i := len(m.verts)
	m.verts = append(m.verts, core.MapVertex(pos))
	m.normals = append(m.normals, core.MapVertex(normal))
	m.uvs = append(m.uvs, core.UV{X: float32(u), Y: float32(v)})
	m.cache[key] = i
	return i
}

func (m *mesh) model() core.Model {
	return core.Model{
		Frames: []core.Frame{{A: []core.Pose{{V: m.verts, N: m.normals}}}},
		UVs:    m.uvs,
		Faces:  m.faces,
	}
}

func (m *mesh) empty() bool { return len(m.faces) == 0 }
