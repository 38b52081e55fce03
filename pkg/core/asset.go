// pkg/core/asset.go
package core

import "github.com/quakeview/server/pkg/qdata"

// Vec3 is a position or direction in viewer axes (y up).
type Vec3 struct {
	X float32 `json:"x"`
	Y float32 `json:"y"`
	Z float32 `json:"z"`
}

// UV is a texture coordinate, normalized by the texture size but not clamped.
type UV struct {
	X float32 `json:"x"`
	Y float32 `json:"y"`
}

// Face is a polygon over the shared vertex arrays.
type Face struct {
	V []int `json:"v"` // vertex indices, fan order
	T int   `json:"t"` // texture index
}

// Pose is one frame image: positions and normals parallel to the uv list.
type Pose struct {
	V    []Vec3   `json:"v"`
	N    []Vec3   `json:"n"`
	Time *float32 `json:"time,omitempty"`
}

// Frame is an animation clip of one or more poses.
type Frame struct {
	A []Pose `json:"a"`
}

// Texture is a texture served by content hash.
type Texture struct {
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	Data     []byte `json:"data"` // palette indexes, base64 in JSON
	Effect   string `json:"effect,omitempty"`
	AnimNext *int   `json:"anim_next,omitempty"`
	AnimAlt  *int   `json:"anim_alt,omitempty"`
}

// Texture effects.
const (
	EffectSky   = "sky"
	EffectWater = "water"
)

// Light is a static point light.
type Light struct {
	Origin Vec3    `json:"origin"`
	Light  float32 `json:"light"`
	Style  int     `json:"style,omitempty"`
}

// Plane is a splitting plane in viewer axes.
type Plane struct {
	Normal Vec3    `json:"normal"`
	Dist   float32 `json:"dist"`
}

// BSPNode is a compacted tree node. A child reference r >= 0 is a leaf
// table index; r < 0 is the node at position ^r.
type BSPNode struct {
	Plane Plane `json:"plane"`
	Front int   `json:"front"`
	Back  int   `json:"back"`
}

// BSPLeaf is a deduplicated leaf. Sounds is omitted when every ambient
// level is zero.
type BSPLeaf struct {
	Type   int   `json:"type"`
	Sounds []int `json:"sounds,omitempty"`
}

// Color is a palette entry.
type Color struct {
	R uint8 `json:"r"`
	G uint8 `json:"g"`
	B uint8 `json:"b"`
	A uint8 `json:"a"`
}

// Model is renderable geometry: a level sub-model or an alias model.
type Model struct {
	Frames       []Frame    `json:"frames"`
	UVs          []UV       `json:"uvs"`
	Faces        []Face     `json:"faces"`
	TextureNames []string   `json:"texturenames"`
	Textures     []*Texture `json:"textures,omitempty"`
	Flags        *int       `json:"flags,omitempty"`
	AutoRotate   *int       `json:"autorotate,omitempty"`
}

// Level is the world model with everything the viewer needs to light and
// query it.
type Level struct {
	Model
	Lights   []Light   `json:"lights"`
	BSPNodes []BSPNode `json:"bspnodes"`
	BSPLeafs []BSPLeaf `json:"bspleafs"`
	BSPRoot  int       `json:"bsproot"`
	Palette  []Color   `json:"palette"`
	Liquid   *Model    `json:"liquid,omitempty"`
}

// Hello describes the running level to a connecting viewer.
type Hello struct {
	Version     int      `json:"version"`
	Level       string   `json:"level"`
	StartPos    Vec3     `json:"start_pos"`
	LightStyles []string `json:"lightstyles"`
}

// MapVertex converts game axes (z up) to viewer axes by swapping y and z,
// which also mirrors the scene as the viewer expects.
func MapVertex(v qdata.Vec3) Vec3 {
	return Vec3{X: v[0], Y: v[2], Z: v[1]}
}

// MapAngles converts (pitch, yaw, roll) degrees. Angles keep their order.
func MapAngles(a qdata.Vec3) Vec3 {
	return Vec3{X: a[0], Y: a[1], Z: a[2]}
}
