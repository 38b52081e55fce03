// Package loadertest builds small archives for tests of packages that
// decode or serve assets.
package loadertest

import (
	"bytes"
	"testing"

	"github.com/quakeview/server/pkg/bsp"
	"github.com/quakeview/server/pkg/mdl"
	"github.com/quakeview/server/pkg/pak"
	"github.com/quakeview/server/pkg/qdata"
	"github.com/stretchr/testify/require"
)

// ModelName is where Archive stores Model.
const ModelName = "progs/rotator.mdl"

// MipLevels fills four mip levels of a w x h texture.
func MipLevels(w, h int, fill byte) [4][]byte {
	var out [4][]byte
	for i := range out {
		out[i] = bytes.Repeat([]byte{fill}, (w>>i)*(h>>i))
	}
	return out
}

// Texture is a raw miptex filled with one palette index.
func Texture(name string, w, h int, fill byte) *bsp.RawTexture {
	return &bsp.RawTexture{Name: name, Width: w, Height: h, Levels: MipLevels(w, h, fill)}
}

// LevelEntities is the entity lump of Level.
const LevelEntities = `{ "classname" "worldspawn" "message" "test" }
{ "classname" "info_player_start" "origin" "32 16 24" }
{ "classname" "light" "origin" "0 0 64" }
{ "classname" "light" "origin" "64 0 64" "light" "300" }
{ "classname" "light_fluoro" "origin" "0 64 64" "style" "2" }
{ "classname" "light_torch_small_walltorch" "origin" "64 64 64" }
{ "classname" "func_door" "model" "*1" }
`

// Level is a level with two coplanar triangles sharing an edge
// and a third triangle on a wall plane using a second texture.
func Level() *bsp.Contents {
	return &bsp.Contents{
		Entities: LevelEntities,
		Planes: []bsp.Plane{
			{Normal: qdata.Vec3{0, 0, 1}, Dist: 0, Type: 2},
			{Normal: qdata.Vec3{0, 1, 0}, Dist: 0, Type: 1},
		},
		Textures: []*bsp.RawTexture{
			Texture("wall", 16, 16, 1),
			Texture("floor", 8, 8, 2),
		},
		Vertexes: []qdata.Vec3{{0, 0, 0}, {64, 0, 0}, {64, 64, 0}, {0, 64, 0}, {0, 0, 64}},
		Nodes: []bsp.Node{
			{PlaneID: 0, Front: 1, Back: 0xFFFF},
			{PlaneID: 1, Front: 0xFFFE, Back: 0xFFFD},
		},
		TexInfos: []bsp.TexInfo{
			{S: qdata.Vec4{1, 0, 0, 0}, T: qdata.Vec4{0, 1, 0, 0}, MipTex: 0},
			{S: qdata.Vec4{1, 0, 0, 0}, T: qdata.Vec4{0, 0, 1, 0}, MipTex: 1},
		},
		Faces: []bsp.Face{
			{PlaneID: 0, Side: 0, LedgeID: 0, LedgeNum: 3, TexInfoID: 0},
			{PlaneID: 0, Side: 0, LedgeID: 3, LedgeNum: 3, TexInfoID: 0},
			{PlaneID: 1, Side: 1, LedgeID: 6, LedgeNum: 3, TexInfoID: 1},
		},
		Leafs: []bsp.Leaf{
			{Type: bsp.ContentsSolid},
			{Type: bsp.ContentsEmpty},
			{Type: bsp.ContentsEmpty},
		},
		Edges: []bsp.Edge{
			{V0: 0, V1: 0}, {V0: 0, V1: 1}, {V0: 1, V1: 2}, {V0: 2, V1: 0},
			{V0: 2, V1: 3}, {V0: 3, V1: 0}, {V0: 1, V1: 4}, {V0: 4, V1: 0},
		},
		Ledges: []int{1, 2, 3, -3, 4, 5, 1, 6, 7},
		Models: []bsp.Model{
			{Nodes: [4]int{0, 0, 0, 0}, NumLeafs: 3, FaceID: 0, FaceNum: 3},
			{Nodes: [4]int{1, 0, 0, 0}, NumLeafs: 1, FaceID: 2, FaceNum: 1},
		},
	}
}

// Palette is a grey ramp.
func Palette() []byte {
	out := make([]byte, 768)
	for i := range out {
		out[i] = byte(i / 3)
	}
	return out
}

// Model is a rotating alias model with a single frame and a frame group.
func Model() *qdata.Record {
	pose := func(name string, x uint8) mdl.Pose {
		return mdl.Pose{
			Name:    name,
			BBoxMax: mdl.TriVert{x, 10, 10, 0},
			Verts:   []mdl.TriVert{{0, 0, 0, 0}, {x, 0, 0, 5}, {0, 10, 10, 161}},
		}
	}
	return qdata.NewDecoded(mdl.Schema, map[string]any{
		"scale":          qdata.Vec3{0.5, 0.5, 2},
		"scale_origin":   qdata.Vec3{-4, -4, 0},
		"boundingradius": float32(12),
		"eyeposition":    qdata.Vec3{0, 0, 8},
		"skinwidth":      4,
		"skinheight":     2,
		"synctype":       "sync",
		"flags":          mdl.FlagRotate | mdl.FlagRocket,
		"size":           float32(3),
		"skins":          []mdl.Skin{{Images: [][]byte{{1, 2, 3, 4, 5, 6, 7, 8}}}},
		"vertices":       []mdl.STVert{{Seam: 0, S: 0, T: 0}, {Seam: 0x20, S: 1, T: 1}, {Seam: 0, S: 3, T: 1}},
		"triangles": []mdl.Triangle{
			{Front: 1, V: [3]int{0, 1, 2}},
			{Front: 0, V: [3]int{2, 1, 0}},
		},
		"frames": []mdl.Frame{
			{Poses: []mdl.Pose{pose("stand1", 4)}},
			{
				Group:   true,
				BBoxMax: mdl.TriVert{8, 10, 10, 0},
				Times:   []float32{0.1, 0.3, 0.6},
				Poses:   []mdl.Pose{pose("run1", 2), pose("run2", 6), pose("run3", 8)},
			},
		},
	})
}

// Archive packs the given levels, the palette and the sample model,
// then reopens the bytes so every entry starts out raw.
func Archive(t *testing.T, levels map[string]*bsp.Contents) *pak.Archive {
	t.Helper()
	a := pak.New()
	for name, c := range levels {
		data, err := c.Encode()
		require.NoError(t, err)
		a.PutBytes("maps/"+name+".bsp", data)
	}
	a.PutBytes("gfx/palette.lmp", Palette())
	data, err := Model().RawData()
	require.NoError(t, err)
	a.PutBytes(ModelName, data)

	raw, err := a.RawData()
	require.NoError(t, err)
	out, err := pak.Open(raw)
	require.NoError(t, err)
	return out
}

