package mdl

import (
	"github.com/quakeview/server/pkg/qdata"
)

// Model is a decoded alias model.
type Model struct {
	Scale       qdata.Vec3
	ScaleOrigin qdata.Vec3
	SkinWidth   int
	SkinHeight  int
	SyncType    string
	Flags       int

	Skins     []Skin
	Vertices  []STVert
	Triangles []Triangle
	Frames    []Frame

	rec *qdata.Record
}

// Open decodes a record of Schema.
func Open(rec *qdata.Record) (*Model, error) {
	if rec.Schema() != Schema {
		return nil, qdata.FormatErrorf("record %q is not a model", rec.Schema().Name)
	}
	g := qdata.NewGetter(rec)
	m := &Model{
		Scale:       g.Vec3("scale"),
		ScaleOrigin: g.Vec3("scale_origin"),
		SkinWidth:   g.Int("skinwidth"),
		SkinHeight:  g.Int("skinheight"),
		SyncType:    g.String("synctype"),
		Flags:       g.Int("flags"),
		rec:         rec,
	}
	if err := g.Err(); err != nil {
		return nil, err
	}
	var err error
	if m.Skins, err = qdata.Get[[]Skin](rec, "skins"); err != nil {
		return nil, err
	}
	if m.Vertices, err = qdata.Get[[]STVert](rec, "vertices"); err != nil {
		return nil, err
	}
	if m.Triangles, err = qdata.Get[[]Triangle](rec, "triangles"); err != nil {
		return nil, err
	}
	if m.Frames, err = qdata.Get[[]Frame](rec, "frames"); err != nil {
		return nil, err
	}
	return m, nil
}

// Decode decodes raw model bytes.
func Decode(data []byte) (*Model, error) {
	return Open(qdata.New(Schema, data, qdata.Context{}))
}

// Record returns the underlying record.
func (m *Model) Record() *qdata.Record { return m.rec }

// Position unpacks a frame vertex into model space.
func (m *Model) Position(v TriVert) qdata.Vec3 {
	return qdata.Vec3{
		m.ScaleOrigin[0] + float32(v[0])*m.Scale[0],
		m.ScaleOrigin[1] + float32(v[1])*m.Scale[1],
		m.ScaleOrigin[2] + float32(v[2])*m.Scale[2],
	}
}

// Normal returns the table normal of a frame vertex.
func (m *Model) Normal(v TriVert) qdata.Vec3 {
	return Normals[v[3]]
}

// AutoRotate reports whether the engine spins the model in place.
func (m *Model) AutoRotate() bool { return m.Flags&FlagRotate != 0 }
