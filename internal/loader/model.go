package loader

import (
	"strings"

	"github.com/quakeview/server/pkg/core"
	"github.com/quakeview/server/pkg/mdl"
	"github.com/quakeview/server/pkg/qdata"
)

// ModelPath maps a model name to its archive path: "player" and
// "progs/player.mdl" both name progs/player.mdl.
func ModelPath(name string) string {
	if strings.HasSuffix(name, ".mdl") {
		return name
	}
	return "progs/" + name + ".mdl"
}

type expandKey struct {
	vertex int
	front  bool
}

// LoadModel decodes an alias model. Each (vertex, facing) pair a triangle
// uses becomes one output vertex: seam vertices on back facing triangles
// sample the back half of the skin.
func (s *Session) LoadModel(name string) (*core.Model, error) {
	rec, err := s.archive.Get(ModelPath(name))
	if err != nil {
		return nil, err
	}
	m, err := mdl.Open(rec)
	if err != nil {
		return nil, err
	}
	if m.SkinWidth <= 0 || m.SkinHeight <= 0 {
		return nil, qdata.FormatErrorf("model %q has skin size %dx%d", name, m.SkinWidth, m.SkinHeight)
	}
	if len(m.Skins) == 0 || len(m.Skins[0].Images) == 0 {
		return nil, qdata.FormatErrorf("model %q has no skin", name)
	}

	iw, ih := 1.0/float64(m.SkinWidth), 1.0/float64(m.SkinHeight)
	expanded := make(map[expandKey]int)
	var compressed []int

	out := &core.Model{UVs: []core.UV{}, Faces: make([]core.Face, 0, len(m.Triangles))}
	for _, tri := range m.Triangles {
		face := core.Face{V: make([]int, 3), T: 0}
		for j, vi := range tri.V {
			key := expandKey{vertex: vi, front: tri.FacesFront()}
			idx, ok := expanded[key]
			if !ok {
				st := m.Vertices[vi]
				u := st.S
				if st.OnSeam() && !tri.FacesFront() {
					u += m.SkinWidth / 2
				}
				idx = len(compressed)
				compressed = append(compressed, vi)
				out.UVs = append(out.UVs, core.UV{X: float32(float64(u) * iw), Y: float32(float64(st.T) * ih)})
				expanded[key] = idx
			}
			face.V[j] = idx
		}
		out.Faces = append(out.Faces, face)
	}

	out.Frames = make([]core.Frame, len(m.Frames))
	for i, fr := range m.Frames {
		durations := fr.Durations()
		poses := make([]core.Pose, len(fr.Poses))
		for k, p := range fr.Poses {
			pose := core.Pose{V: make([]core.Vec3, len(compressed)), N: make([]core.Vec3, len(compressed))}
			for c, vi := range compressed {
				pose.V[c] = core.MapVertex(m.Position(p.Verts[vi]))
				pose.N[c] = core.MapVertex(m.Normal(p.Verts[vi]))
			}
			d := durations[k]
			pose.Time = &d
			poses[k] = pose
		}
		out.Frames[i] = core.Frame{A: poses}
	}

	skin := m.Skins[0].Images[0]
	stage := s.textures.Stage()
	out.TextureNames = []string{stage.Add("", m.SkinWidth, m.SkinHeight, skin)}
	out.Textures = []*core.Texture{{Width: m.SkinWidth, Height: m.SkinHeight, Data: skin}}

	switch s.opts.ModelFlags {
	case FlagsAutoRotate:
		rotate := 0
		if m.AutoRotate() {
			rotate = 1
		}
		out.AutoRotate = &rotate
	default:
		flags := m.Flags
		out.Flags = &flags
	}
	stage.Commit()

	s.logger.Debug("Loaded model",
		"model", name,
		"vertices", len(compressed),
		"faces", len(out.Faces),
		"frames", len(out.Frames))
	return out, nil
}
