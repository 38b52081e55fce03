package bsp

import (
	"github.com/quakeview/server/pkg/qdata"
)

// RawTexture is a miptex entry given by its mip levels. Levels holds the
// four palette-indexed mip images; a nil RawTexture leaves a hole in the
// texture directory.
type RawTexture struct {
	Name   string
	Width  int
	Height int
	Levels [4][]byte
}

// Contents is a level assembled from plain values. Encode turns it into
// level file bytes; lumps without a field here are written empty.
type Contents struct {
	Entities string
	Planes   []Plane
	Textures []*RawTexture
	Vertexes []qdata.Vec3
	Nodes    []Node
	TexInfos []TexInfo
	Faces    []Face
	Leafs    []Leaf
	Edges    []Edge
	Ledges   []int
	Models   []Model
}

// Encode writes c in BSP29 layout.
func (c *Contents) Encode() ([]byte, error) {
	lumps := map[string]*qdata.Record{
		"entities":   opaque(append([]byte(c.Entities), 0)),
		"visibility": opaque(nil),
		"lighting":   opaque(nil),
		"clipnodes":  opaque(nil),
		"lface":      opaque(nil),
		"vertexes":   qdata.NewDecoded(VertexesSchema, map[string]any{"list": c.Vertexes}),
		"ledges":     qdata.NewDecoded(LedgesSchema, map[string]any{"list": c.Ledges}),
	}

	lumps["planes"] = list(PlanesSchema, PlaneSchema, len(c.Planes), func(i int) map[string]any {
		p := c.Planes[i]
		return map[string]any{"normal": p.Normal, "dist": p.Dist, "type": p.Type}
	})
	lumps["nodes"] = list(NodesSchema, NodeSchema, len(c.Nodes), func(i int) map[string]any {
		n := c.Nodes[i]
		return map[string]any{
			"plane_id": n.PlaneID, "front": n.Front, "back": n.Back,
			"box": make([]int, 6), "face_id": 0, "face_num": 0,
		}
	})
	lumps["texinfo"] = list(TexInfosSchema, TexInfoSchema, len(c.TexInfos), func(i int) map[string]any {
		t := c.TexInfos[i]
		return map[string]any{"s": t.S, "t": t.T, "miptex": t.MipTex, "flags": t.Flags}
	})
	lumps["faces"] = list(FacesSchema, FaceSchema, len(c.Faces), func(i int) map[string]any {
		f := c.Faces[i]
		return map[string]any{
			"plane_id": f.PlaneID, "side": f.Side, "ledge_id": f.LedgeID,
			"ledge_num": f.LedgeNum, "texinfo_id": f.TexInfoID,
			"typelight": 0, "baselight": 0, "light0": 0, "light1": 0, "lightmap": -1,
		}
	})
	lumps["leafs"] = list(LeafsSchema, LeafSchema, len(c.Leafs), func(i int) map[string]any {
		l := c.Leafs[i]
		amb := make([]int, 4)
		for j, a := range l.Ambients {
			amb[j] = int(a)
		}
		return map[string]any{
			"type": l.Type, "vislist": -1, "box": make([]int, 6),
			"lface_id": 0, "lface_num": 0, "ambients": amb,
		}
	})
	lumps["edges"] = list(EdgesSchema, EdgeSchema, len(c.Edges), func(i int) map[string]any {
		return map[string]any{"vertex0": c.Edges[i].V0, "vertex1": c.Edges[i].V1}
	})
	lumps["models"] = list(ModelsSchema, ModelSchema, len(c.Models), func(i int) map[string]any {
		m := c.Models[i]
		return map[string]any{
			"bound_min": m.BoundMin, "bound_max": m.BoundMax, "origin": m.Origin,
			"node_id0": m.Nodes[0], "node_id1": m.Nodes[1], "node_id2": m.Nodes[2], "node_id3": m.Nodes[3],
			"numleafs": m.NumLeafs, "face_id": m.FaceID, "face_num": m.FaceNum,
		}
	})

	textures := make([]*qdata.Record, len(c.Textures))
	for i, t := range c.Textures {
		if t == nil {
			continue
		}
		levels := make([]*qdata.Record, 4)
		for j, data := range t.Levels {
			levels[j] = qdata.NewDecoded(MipmapSchema, map[string]any{
				"w": t.Width >> j, "h": t.Height >> j, "data": data,
			})
		}
		textures[i] = qdata.NewDecoded(TextureSchema, map[string]any{
			"name": t.Name, "width": t.Width, "height": t.Height,
			"gl_resolution": 0, "mipmaps": levels,
		})
	}
	lumps["textures"] = qdata.NewDecoded(TexturesSchema, map[string]any{"list": textures})

	values := make(map[string]any, len(lumps))
	for name, rec := range lumps {
		values[name] = rec
	}
	return qdata.NewDecoded(Schema, values).RawData()
}

func opaque(data []byte) *qdata.Record {
	return qdata.NewDecoded(qdata.Opaque, map[string]any{"data": data})
}

func list(schema, item *qdata.Schema, n int, values func(int) map[string]any) *qdata.Record {
	recs := make([]*qdata.Record, n)
	for i := range recs {
		recs[i] = qdata.NewDecoded(item, values(i))
	}
	return qdata.NewDecoded(schema, map[string]any{"list": recs})
}
