// Package bsp holds the BSP29 level layout: a version signature followed
// by fifteen (offset, size) lumps, and typed views over the lumps the
// geometry extractor needs.
package bsp

import (
	"github.com/quakeview/server/pkg/pak"
	"github.com/quakeview/server/pkg/qdata"
)

// Version is the BSP29 signature.
const Version = 29

// Leaf contents.
const (
	ContentsEmpty = -1
	ContentsSolid = -2
	ContentsWater = -3
	ContentsSlime = -4
	ContentsLava  = -5
	ContentsSky   = -6
)

var PlaneSchema = &qdata.Schema{
	Name: "plane",
	Fields: []qdata.FieldDef{
		{Name: "normal", Field: qdata.Vec3Field},
		{Name: "dist", Field: qdata.Float32},
		{Name: "type", Field: qdata.Int32},
	},
}

var PlanesSchema = listOf("planes", PlaneSchema)

// MipmapSchema decodes one mip level. It reads the owning texture's
// dimensions through its context: level i is (width>>i, height>>i)
// palette-indexed pixels, except that level 0 may be 24-bit RGB.
var MipmapSchema = &qdata.Schema{
	Name:   "mipmap",
	Unpack: unpackMipmap,
	Pack:   packMipmap,
}

func unpackMipmap(r *qdata.Reader, f *qdata.Fields) error {
	ctx := f.Context()
	data := r.Rest()
	if ctx.Parent == nil {
		return qdata.InvariantErrorf("mipmap without texture")
	}
	g := qdata.NewGetter(ctx.Parent)
	w, h := g.Int("width"), g.Int("height")
	if err := g.Err(); err != nil {
		return err
	}
	index := ctx.Index

	switch {
	case len(data) == 0:
		f.Set("w", 0)
		f.Set("h", 0)
		f.Set("data24", []byte{})
		return nil
	case index == 0 && len(data) == 3*w*h:
		f.Set("w", w)
		f.Set("h", h)
		f.Set("data24", data)
		return nil
	}
	if w%(1<<index) != 0 || h%(1<<index) != 0 {
		return qdata.FormatErrorf("%dx%d >> %d", w, h, index)
	}
	w >>= index
	h >>= index
	if w*h != len(data) {
		return qdata.FormatErrorf("mip level %d is %d bytes, want %dx%d", index, len(data), w, h)
	}
	f.Set("w", w)
	f.Set("h", h)
	f.Set("data", data)
	return nil
}

func packMipmap(w *qdata.Writer, f *qdata.Fields) error {
	mw, _ := f.Value("w").(int)
	mh, _ := f.Value("h").(int)
	if data24, ok := f.Value("data24").([]byte); ok {
		if len(data24) != 3*mw*mh {
			return qdata.InvariantErrorf("24-bit mipmap is %d bytes, want 3x%dx%d", len(data24), mw, mh)
		}
		w.Write(data24)
		return nil
	}
	data, _ := f.Value("data").([]byte)
	if len(data) != mw*mh {
		return qdata.InvariantErrorf("mipmap is %d bytes, want %dx%d", len(data), mw, mh)
	}
	w.Write(data)
	return nil
}

var TextureSchema = &qdata.Schema{
	Name: "texture",
	Fields: []qdata.FieldDef{
		{Name: "name", Field: qdata.CharPtr(16)},
		{Name: "width", Field: qdata.Int32},
		{Name: "height", Field: qdata.Int24},
		{Name: "gl_resolution", Field: qdata.Int8},
		{Name: "mipmaps", Field: qdata.FixedOfsArray(MipmapSchema, 4)},
	},
}

var TexturesSchema = &qdata.Schema{
	Name: "textures",
	Fields: []qdata.FieldDef{
		{Name: "list", Field: qdata.OfsArray(TextureSchema)},
	},
}

var VertexesSchema = &qdata.Schema{
	Name: "vertexes",
	Fields: []qdata.FieldDef{
		{Name: "list", Field: qdata.ArrayOf[qdata.Vec3](qdata.Vec3Field)},
	},
}

var NodeSchema = &qdata.Schema{
	Name: "node",
	Fields: []qdata.FieldDef{
		{Name: "plane_id", Field: qdata.Int32},
		{Name: "front", Field: qdata.Uint16},
		{Name: "back", Field: qdata.Uint16},
		{Name: "box", Field: qdata.FixedArray[int](qdata.Int16, 6)},
		{Name: "face_id", Field: qdata.Uint16},
		{Name: "face_num", Field: qdata.Uint16},
	},
}

var NodesSchema = listOf("nodes", NodeSchema)

var TexInfoSchema = &qdata.Schema{
	Name: "texinfo",
	Fields: []qdata.FieldDef{
		{Name: "s", Field: qdata.Vec4Field},
		{Name: "t", Field: qdata.Vec4Field},
		{Name: "miptex", Field: qdata.Int32},
		{Name: "flags", Field: qdata.Int32},
	},
}

var TexInfosSchema = listOf("texinfos", TexInfoSchema)

var FaceSchema = &qdata.Schema{
	Name: "face",
	Fields: []qdata.FieldDef{
		{Name: "plane_id", Field: qdata.Uint16},
		{Name: "side", Field: qdata.Uint16},
		{Name: "ledge_id", Field: qdata.Int32},
		{Name: "ledge_num", Field: qdata.Uint16},
		{Name: "texinfo_id", Field: qdata.Uint16},
		{Name: "typelight", Field: qdata.Uint8},
		{Name: "baselight", Field: qdata.Uint8},
		{Name: "light0", Field: qdata.Uint8},
		{Name: "light1", Field: qdata.Uint8},
		{Name: "lightmap", Field: qdata.Int32},
	},
}

var FacesSchema = listOf("faces", FaceSchema)

var LeafSchema = &qdata.Schema{
	Name: "leaf",
	Fields: []qdata.FieldDef{
		{Name: "type", Field: qdata.Int32},
		{Name: "vislist", Field: qdata.Int32},
		{Name: "box", Field: qdata.FixedArray[int](qdata.Int16, 6)},
		{Name: "lface_id", Field: qdata.Uint16},
		{Name: "lface_num", Field: qdata.Uint16},
		{Name: "ambients", Field: qdata.FixedArray[int](qdata.Uint8, 4)},
	},
}

var LeafsSchema = listOf("leafs", LeafSchema)

var EdgeSchema = &qdata.Schema{
	Name: "edge",
	Fields: []qdata.FieldDef{
		{Name: "vertex0", Field: qdata.Uint16},
		{Name: "vertex1", Field: qdata.Uint16},
	},
}

var EdgesSchema = listOf("edges", EdgeSchema)

var LedgesSchema = &qdata.Schema{
	Name: "ledges",
	Fields: []qdata.FieldDef{
		{Name: "list", Field: qdata.ArrayOf[int](qdata.Int32)},
	},
}

var ModelSchema = &qdata.Schema{
	Name: "model",
	Fields: []qdata.FieldDef{
		{Name: "bound_min", Field: qdata.Vec3Field},
		{Name: "bound_max", Field: qdata.Vec3Field},
		{Name: "origin", Field: qdata.Vec3Field},
		{Name: "node_id0", Field: qdata.Int32},
		{Name: "node_id1", Field: qdata.Int32},
		{Name: "node_id2", Field: qdata.Int32},
		{Name: "node_id3", Field: qdata.Int32},
		{Name: "numleafs", Field: qdata.Int32},
		{Name: "face_id", Field: qdata.Int32},
		{Name: "face_num", Field: qdata.Int32},
	},
}

var ModelsSchema = listOf("models", ModelSchema)

// LumpNames lists the lumps in file order.
var LumpNames = []string{
	"entities", "planes", "textures", "vertexes", "visibility", "nodes",
	"texinfo", "faces", "lighting", "clipnodes", "leafs", "lface",
	"edges", "ledges", "models",
}

// Schema decodes a whole level file.
var Schema = &qdata.Schema{
	Name: "bsp",
	Fields: []qdata.FieldDef{
		{Name: "signature", Field: qdata.SignatureInt(Version)},
		{Name: "entities", Field: qdata.Lump(qdata.Opaque, 4)},
		{Name: "planes", Field: qdata.Lump(PlanesSchema, 4)},
		{Name: "textures", Field: qdata.Lump(TexturesSchema, 4)},
		{Name: "vertexes", Field: qdata.Lump(VertexesSchema, 4)},
		{Name: "visibility", Field: qdata.Lump(qdata.Opaque, 4)},
		{Name: "nodes", Field: qdata.Lump(NodesSchema, 4)},
		{Name: "texinfo", Field: qdata.Lump(TexInfosSchema, 4)},
		{Name: "faces", Field: qdata.Lump(FacesSchema, 4)},
		{Name: "lighting", Field: qdata.Lump(qdata.Opaque, 4)},
		{Name: "clipnodes", Field: qdata.Lump(qdata.Opaque, 4)},
		{Name: "leafs", Field: qdata.Lump(LeafsSchema, 4)},
		{Name: "lface", Field: qdata.Lump(qdata.Opaque, 4)},
		{Name: "edges", Field: qdata.Lump(EdgesSchema, 4)},
		{Name: "ledges", Field: qdata.Lump(LedgesSchema, 4)},
		{Name: "models", Field: qdata.Lump(ModelsSchema, 4)},
	},
}

func listOf(name string, item *qdata.Schema) *qdata.Schema {
	return &qdata.Schema{
		Name: name,
		Fields: []qdata.FieldDef{
			{Name: "list", Field: qdata.Array(item)},
		},
	}
}

func init() {
	pak.Register(".bsp", Schema)
}
