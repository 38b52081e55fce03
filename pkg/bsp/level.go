package bsp

import (
	"github.com/quakeview/server/pkg/qdata"
)

// Plane is a splitting plane.
type Plane struct {
	Normal qdata.Vec3
	Dist   float32
	Type   int
}

// Node is an interior BSP node. Front and Back are unsigned child
// references: bit 15 set means a leaf, stored as the bitwise complement of
// the leaf index.
type Node struct {
	PlaneID int
	Front   int
	Back    int
}

// Leaf is a BSP leaf.
type Leaf struct {
	Type     int
	Ambients [4]uint8
}

// TexInfo maps positions on a face to texture coordinates.
type TexInfo struct {
	S      qdata.Vec4
	T      qdata.Vec4
	MipTex int
	Flags  int
}

// Face is a polygon bounded by LedgeNum entries of the edge list.
type Face struct {
	PlaneID   int
	Side      int
	LedgeID   int
	LedgeNum  int
	TexInfoID int
}

// Edge joins two vertexes.
type Edge struct {
	V0, V1 int
}

// Model is a sub-model: a contiguous face range and a node root.
type Model struct {
	BoundMin qdata.Vec3
	BoundMax qdata.Vec3
	Origin   qdata.Vec3
	Nodes    [4]int
	NumLeafs int
	FaceID   int
	FaceNum  int
}

// Mipmap is one mip level of a texture. Exactly one of Data (palette
// indexes) or Data24 (RGB triples, level 0 only) is set.
type Mipmap struct {
	W, H   int
	Data   []byte
	Data24 []byte
}

// Texture is a miptex entry. Mip levels are decoded on demand.
type Texture struct {
	Name   string
	Width  int
	Height int
	levels []*qdata.Record
}

// Mipmap decodes mip level i.
func (t *Texture) Mipmap(i int) (Mipmap, error) {
	if i < 0 || i >= len(t.levels) || t.levels[i] == nil {
		return Mipmap{}, qdata.FormatErrorf("texture %q has no mip level %d", t.Name, i)
	}
	g := qdata.NewGetter(t.levels[i])
	m := Mipmap{W: g.Int("w"), H: g.Int("h")}
	if err := g.Err(); err != nil {
		return Mipmap{}, err
	}
	if v, err := t.levels[i].Value("data24"); err == nil {
		m.Data24, _ = v.([]byte)
	} else {
		m.Data, _ = qdata.Get[[]byte](t.levels[i], "data")
	}
	return m, nil
}

// Level is a decoded level file.
type Level struct {
	rec *qdata.Record
}

// Open wraps a record of Schema.
func Open(rec *qdata.Record) (*Level, error) {
	if rec.Schema() != Schema {
		return nil, qdata.FormatErrorf("record %q is not a level", rec.Schema().Name)
	}
	if err := rec.Materialize(); err != nil {
		return nil, err
	}
	return &Level{rec: rec}, nil
}

// Decode wraps raw level bytes.
func Decode(data []byte) (*Level, error) {
	return Open(qdata.New(Schema, data, qdata.Context{}))
}

// Record returns the underlying record.
func (l *Level) Record() *qdata.Record { return l.rec }

func (l *Level) list(lump string) ([]*qdata.Record, error) {
	rec, err := qdata.Get[*qdata.Record](l.rec, lump)
	if err != nil {
		return nil, err
	}
	return qdata.Get[[]*qdata.Record](rec, "list")
}

// Entities returns the entity lump text.
func (l *Level) Entities() (string, error) {
	rec, err := qdata.Get[*qdata.Record](l.rec, "entities")
	if err != nil {
		return "", err
	}
	data, err := qdata.Get[[]byte](rec, "data")
	if err != nil {
		return "", err
	}
	// The lump is NUL terminated.
	for len(data) > 0 && data[len(data)-1] == 0 {
		data = data[:len(data)-1]
	}
	return string(data), nil
}

// Planes decodes the plane lump.
func (l *Level) Planes() ([]Plane, error) {
	recs, err := l.list("planes")
	if err != nil {
		return nil, err
	}
	out := make([]Plane, len(recs))
	for i, rec := range recs {
		g := qdata.NewGetter(rec)
		out[i] = Plane{Normal: g.Vec3("normal"), Dist: g.Float("dist"), Type: g.Int("type")}
		if err := g.Err(); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Nodes decodes the node lump.
func (l *Level) Nodes() ([]Node, error) {
	recs, err := l.list("nodes")
	if err != nil {
		return nil, err
	}
	out := make([]Node, len(recs))
	for i, rec := range recs {
		g := qdata.NewGetter(rec)
		out[i] = Node{PlaneID: g.Int("plane_id"), Front: g.Int("front"), Back: g.Int("back")}
		if err := g.Err(); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Leafs decodes the leaf lump.
func (l *Level) Leafs() ([]Leaf, error) {
	recs, err := l.list("leafs")
	if err != nil {
		return nil, err
	}
	out := make([]Leaf, len(recs))
	for i, rec := range recs {
		g := qdata.NewGetter(rec)
		out[i].Type = g.Int("type")
		for j, a := range g.Ints("ambients") {
			out[i].Ambients[j] = uint8(a)
		}
		if err := g.Err(); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// TexInfos decodes the texinfo lump.
func (l *Level) TexInfos() ([]TexInfo, error) {
	recs, err := l.list("texinfo")
	if err != nil {
		return nil, err
	}
	out := make([]TexInfo, len(recs))
	for i, rec := range recs {
		g := qdata.NewGetter(rec)
		out[i] = TexInfo{S: g.Vec4("s"), T: g.Vec4("t"), MipTex: g.Int("miptex"), Flags: g.Int("flags")}
		if err := g.Err(); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Faces decodes the face lump.
func (l *Level) Faces() ([]Face, error) {
	recs, err := l.list("faces")
	if err != nil {
		return nil, err
	}
	out := make([]Face, len(recs))
	for i, rec := range recs {
		g := qdata.NewGetter(rec)
		out[i] = Face{
			PlaneID:   g.Int("plane_id"),
			Side:      g.Int("side"),
			LedgeID:   g.Int("ledge_id"),
			LedgeNum:  g.Int("ledge_num"),
			TexInfoID: g.Int("texinfo_id"),
		}
		if err := g.Err(); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Edges decodes the edge lump.
func (l *Level) Edges() ([]Edge, error) {
	recs, err := l.list("edges")
	if err != nil {
		return nil, err
	}
	out := make([]Edge, len(recs))
	for i, rec := range recs {
		g := qdata.NewGetter(rec)
		out[i] = Edge{V0: g.Int("vertex0"), V1: g.Int("vertex1")}
		if err := g.Err(); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Ledges decodes the signed edge list.
func (l *Level) Ledges() ([]int, error) {
	rec, err := qdata.Get[*qdata.Record](l.rec, "ledges")
	if err != nil {
		return nil, err
	}
	return qdata.Get[[]int](rec, "list")
}

// Vertexes decodes the vertex lump.
func (l *Level) Vertexes() ([]qdata.Vec3, error) {
	rec, err := qdata.Get[*qdata.Record](l.rec, "vertexes")
	if err != nil {
		return nil, err
	}
	return qdata.Get[[]qdata.Vec3](rec, "list")
}

// Models decodes the sub-model lump.
func (l *Level) Models() ([]Model, error) {
	recs, err := l.list("models")
	if err != nil {
		return nil, err
	}
	out := make([]Model, len(recs))
	for i, rec := range recs {
		g := qdata.NewGetter(rec)
		out[i] = Model{
			BoundMin: g.Vec3("bound_min"),
			BoundMax: g.Vec3("bound_max"),
			Origin:   g.Vec3("origin"),
			Nodes:    [4]int{g.Int("node_id0"), g.Int("node_id1"), g.Int("node_id2"), g.Int("node_id3")},
			NumLeafs: g.Int("numleafs"),
			FaceID:   g.Int("face_id"),
			FaceNum:  g.Int("face_num"),
		}
		if err := g.Err(); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Textures decodes the miptex directory. Missing entries are nil.
func (l *Level) Textures() ([]*Texture, error) {
	rec, err := qdata.Get[*qdata.Record](l.rec, "textures")
	if err != nil {
		return nil, err
	}
	recs, err := qdata.Get[[]*qdata.Record](rec, "list")
	if err != nil {
		return nil, err
	}
	out := make([]*Texture, len(recs))
	for i, trec := range recs {
		if trec == nil {
			continue
		}
		g := qdata.NewGetter(trec)
		out[i] = &Texture{
			Name:   g.String("name"),
			Width:  g.Int("width"),
			Height: g.Int("height"),
			levels: g.Records("mipmaps"),
		}
		if err := g.Err(); err != nil {
			return nil, err
		}
	}
	return out, nil
}
