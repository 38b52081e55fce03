package loader

import (
	"math"

	"github.com/quakeview/server/internal/parser"
	"github.com/quakeview/server/pkg/bsp"
	"github.com/quakeview/server/pkg/core"
	"github.com/quakeview/server/pkg/qdata"
)

// levelData holds the decoded lumps geometry extraction reads.
type levelData struct {
	planes   []bsp.Plane
	vertexes []qdata.Vec3
	edges    []bsp.Edge
	ledges   []int
	faces    []bsp.Face
	texinfos []bsp.TexInfo
	textures []*bsp.Texture
	models   []bsp.Model
}

func (s *Session) level(name string) (*bsp.Level, error) {
	rec, err := s.archive.Get("maps/" + name + ".bsp")
	if err != nil {
		return nil, err
	}
	return bsp.Open(rec)
}

func (s *Session) entities(l *bsp.Level) ([]parser.Entity, error) {
	text, err := l.Entities()
	if err != nil {
		return nil, err
	}
	return s.parser.ParseEntities(text)
}

// Entities parses the entity lump of maps/<name>.bsp.
func (s *Session) Entities(name string) ([]parser.Entity, error) {
	l, err := s.level(name)
	if err != nil {
		return nil, err
	}
	return s.entities(l)
}

func readLevel(l *bsp.Level) (*levelData, error) {
	d := &levelData{}
	var err error
	if d.planes, err = l.Planes(); err != nil {
		return nil, err
	}
	if d.vertexes, err = l.Vertexes(); err != nil {
		return nil, err
	}
	if d.edges, err = l.Edges(); err != nil {
		return nil, err
	}
	if d.ledges, err = l.Ledges(); err != nil {
		return nil, err
	}
	if d.faces, err = l.Faces(); err != nil {
		return nil, err
	}
	if d.texinfos, err = l.TexInfos(); err != nil {
		return nil, err
	}
	if d.textures, err = l.Textures(); err != nil {
		return nil, err
	}
	if d.models, err = l.Models(); err != nil {
		return nil, err
	}
	return d, nil
}

// textureUse records which textures a decode references and the index
// each face stores for them.
type textureUse struct {
	policy IndexPolicy
	local  map[int]int
	order  []int
}

func newTextureUse(policy IndexPolicy) *textureUse {
	return &textureUse{policy: policy, local: make(map[int]int)}
}

func (u *textureUse) ref(texid int) int {
	if u.policy == IndexAbsolute {
		return texid
	}
	return u.add(texid)
}

func (u *textureUse) add(texid int) int {
	if i, ok := u.local[texid]; ok {
		return i
	}
	i := len(u.order)
	u.local[texid] = i
	u.order = append(u.order, texid)
	return i
}

// faceLoop resolves a face's signed edge list into its vertex loop.
func (d *levelData) faceLoop(fi int, f bsp.Face) ([]qdata.Vec3, error) {
	if f.LedgeNum < 3 || f.LedgeID < 0 || f.LedgeID+f.LedgeNum > len(d.ledges) {
		return nil, qdata.FormatErrorf("face %d edge range %d+%d outside %d ledges", fi, f.LedgeID, f.LedgeNum, len(d.ledges))
	}
	from := make([]int, f.LedgeNum)
	to := make([]int, f.LedgeNum)
	for k := range from {
		e := d.ledges[f.LedgeID+k]
		idx := e
		if idx < 0 {
			idx = -idx
		}
		if idx >= len(d.edges) {
			return nil, qdata.FormatErrorf("face %d references edge %d of %d", fi, idx, len(d.edges))
		}
		v0, v1 := d.edges[idx].V0, d.edges[idx].V1
		if e < 0 {
			v0, v1 = v1, v0
		}
		from[k], to[k] = v0, v1
	}
	for k := range from {
		if to[k] != from[(k+1)%len(from)] {
			return nil, qdata.InvariantErrorf("face %d edge loop is not closed at edge %d", fi, k)
		}
	}

	poly := make([]qdata.Vec3, len(from))
	for k, vi := range from {
		if vi < 0 || vi >= len(d.vertexes) {
			return nil, qdata.FormatErrorf("face %d references vertex %d of %d", fi, vi, len(d.vertexes))
		}
		poly[k] = d.vertexes[vi]
	}
	return poly, nil
}

func inBounds(poly []qdata.Vec3, limit float32) bool {
	for _, v := range poly {
		for _, c := range v {
			if c < -limit || c > limit {
				return false
			}
		}
	}
	return true
}

func finite(poly []qdata.Vec3) bool {
	for _, v := range poly {
		for _, c := range v {
			if math.IsNaN(float64(c)) || math.IsInf(float64(c), 0) {
				return false
			}
		}
	}
	return true
}

// extract builds the geometry of a sub-model. keep filters faces by
// texture; nil keeps every face.
func (d *levelData) extract(m bsp.Model, keep func(*bsp.Texture) bool, use *textureUse) (*mesh, error) {
	if m.FaceID < 0 || m.FaceNum < 0 || m.FaceID+m.FaceNum > len(d.faces) {
		return nil, qdata.FormatErrorf("model face range %d+%d outside %d faces", m.FaceID, m.FaceNum, len(d.faces))
	}
	out := newMesh()
	for fi := m.FaceID; fi < m.FaceID+m.FaceNum; fi++ {
		f := d.faces[fi]
		if f.TexInfoID < 0 || f.TexInfoID >= len(d.texinfos) {
			return nil, qdata.FormatErrorf("face %d references texinfo %d of %d", fi, f.TexInfoID, len(d.texinfos))
		}
		info := d.texinfos[f.TexInfoID]
		if info.MipTex < 0 || info.MipTex >= len(d.textures) || d.textures[info.MipTex] == nil {
			return nil, qdata.FormatErrorf("face %d references missing texture %d", fi, info.MipTex)
		}
		tex := d.textures[info.MipTex]
		if keep != nil && !keep(tex) {
			continue
		}
		if tex.Width <= 0 || tex.Height <= 0 {
			return nil, qdata.FormatErrorf("texture %q has size %dx%d", tex.Name, tex.Width, tex.Height)
		}
		if f.PlaneID < 0 || f.PlaneID >= len(d.planes) {
			return nil, qdata.FormatErrorf("face %d references plane %d of %d", fi, f.PlaneID, len(d.planes))
		}

		poly, err := d.faceLoop(fi, f)
		if err != nil {
			return nil, err
		}

		normal := d.planes[f.PlaneID].Normal
		if f.Side != 0 {
			normal = qdata.Vec3{-normal[0], -normal[1], -normal[2]}
		}
		t := use.ref(info.MipTex)
		iw, ih := 1.0/float64(tex.Width), 1.0/float64(tex.Height)
		emit := func(vs []qdata.Vec3) {
			face := core.Face{V: make([]int, len(vs)), T: t}
			for k, v := range vs {
				s := dot(v, info.S)
				tt := dot(v, info.T)
				face.V[k] = out.vertex(v, normal, s*iw, tt*ih)
			}
			out.faces = append(out.faces, face)
		}

		if TextureEffect(tex.Name) == core.EffectSky {
			if !finite(poly) {
				return nil, qdata.FormatErrorf("sky face %d has a non-finite vertex", fi)
			}
			if !inBounds(poly, SkyMaxCoord) {
				return nil, qdata.FormatErrorf("sky face %d has a vertex beyond ±%d", fi, SkyMaxCoord)
			}
			for tri := range SkyTriangles(poly) {
				emit(tri[:])
			}
			continue
		}
		emit(poly)
	}
	return out, nil
}

func dot(v qdata.Vec3, p qdata.Vec4) float64 {
	return float64(v[0])*float64(p[0]) + float64(v[1])*float64(p[1]) + float64(v[2])*float64(p[2]) + float64(p[3])
}

// textureList registers the used textures and returns the texture names
// and entries faces index into.
func (d *levelData) textureList(use *textureUse, stage *TextureStage) ([]string, []*core.Texture, error) {
	index := make(map[string]int, len(d.textures))
	for i, tex := range d.textures {
		if tex == nil {
			continue
		}
		if _, dup := index[tex.Name]; !dup {
			index[tex.Name] = i
		}
	}
	next, alt := animLinks(index)

	order := use.order
	if use.policy == IndexAbsolute {
		order = make([]int, len(d.textures))
		for i := range order {
			order[i] = i
		}
	} else {
		// pull in the frames used textures animate through
		for k := 0; k < len(use.order); k++ {
			texid := use.order[k]
			if j, ok := next[texid]; ok {
				use.add(j)
			}
			if j, ok := alt[texid]; ok {
				use.add(j)
			}
		}
		order = use.order
	}
	pos := func(texid int) *int {
		i := texid
		if use.policy != IndexAbsolute {
			i = use.local[texid]
		}
		return &i
	}

	names := make([]string, len(order))
	out := make([]*core.Texture, len(order))
	for i, texid := range order {
		tex := d.textures[texid]
		if tex == nil {
			continue
		}
		mip, err := tex.Mipmap(0)
		if err != nil {
			return nil, nil, err
		}
		if mip.W != tex.Width || mip.H != tex.Height {
			return nil, nil, qdata.FormatErrorf("texture %q is %dx%d but its first mip level is %dx%d",
				tex.Name, tex.Width, tex.Height, mip.W, mip.H)
		}
		pixels := mip.Data
		if pixels == nil {
			pixels = mip.Data24
		}
		effect := TextureEffect(tex.Name)
		names[i] = stage.Add(effect, mip.W, mip.H, pixels)

		entry := &core.Texture{Width: mip.W, Height: mip.H, Data: pixels, Effect: effect}
		if j, ok := next[texid]; ok {
			entry.AnimNext = pos(j)
		}
		if j, ok := alt[texid]; ok {
			entry.AnimAlt = pos(j)
		}
		out[i] = entry
	}
	return names, out, nil
}

func isWater(tex *bsp.Texture) bool {
	return TextureEffect(tex.Name) == core.EffectWater
}

// LoadLevel decodes maps/<name>.bsp: the world sub-model with palette,
// static lights, the compacted BSP tree and, when enabled, the liquid
// surfaces as a separate model.
func (s *Session) LoadLevel(name string) (*core.Level, error) {
	l, err := s.level(name)
	if err != nil {
		return nil, err
	}
	d, err := readLevel(l)
	if err != nil {
		return nil, err
	}
	if len(d.models) == 0 {
		return nil, qdata.FormatErrorf("level %q has no models", name)
	}
	world := d.models[0]

	stage := s.textures.Stage()
	use := newTextureUse(s.opts.TextureIndex)
	geom, err := d.extract(world, nil, use)
	if err != nil {
		return nil, err
	}
	var liquid *mesh
	if s.opts.Liquid {
		if liquid, err = d.extract(world, isWater, use); err != nil {
			return nil, err
		}
	}
	names, textures, err := d.textureList(use, stage)
	if err != nil {
		return nil, err
	}

	palette, err := s.Palette()
	if err != nil {
		return nil, err
	}
	ents, err := s.entities(l)
	if err != nil {
		return nil, err
	}
	lights, err := s.parser.ParseLights(ents, s.opts.ExcludeTargetedLights)
	if err != nil {
		return nil, err
	}

	nodes, err := l.Nodes()
	if err != nil {
		return nil, err
	}
	leafs, err := l.Leafs()
	if err != nil {
		return nil, err
	}
	tree, err := CompactTree(nodes, leafs, d.planes, world.Nodes[0])
	if err != nil {
		return nil, err
	}

	out := &core.Level{
		Model:    geom.model(),
		Lights:   lights,
		BSPNodes: tree.Nodes,
		BSPLeafs: tree.Leafs,
		BSPRoot:  tree.Root,
		Palette:  palette,
	}
	out.TextureNames = names
	out.Textures = textures
	if liquid != nil && !liquid.empty() {
		lm := liquid.model()
		lm.TextureNames = names
		out.Liquid = &lm
	}
	stage.Commit()

	s.logger.Debug("Loaded level",
		"level", name,
		"vertices", len(geom.verts),
		"faces", len(geom.faces),
		"textures", len(names),
		"lights", len(lights),
		"bspnodes", len(tree.Nodes),
		"bspleafs", len(tree.Leafs))
	return out, nil
}

// LoadBSPModel decodes sub-model index of a level, the model "*index"
// entities refer to.
func (s *Session) LoadBSPModel(name string, index int) (*core.Model, error) {
	l, err := s.level(name)
	if err != nil {
		return nil, err
	}
	d, err := readLevel(l)
	if err != nil {
		return nil, err
	}
	if index < 0 || index >= len(d.models) {
		return nil, qdata.LookupErrorf("level %q has no model %d", name, index)
	}

	stage := s.textures.Stage()
	use := newTextureUse(s.opts.TextureIndex)
	geom, err := d.extract(d.models[index], nil, use)
	if err != nil {
		return nil, err
	}
	names, textures, err := d.textureList(use, stage)
	if err != nil {
		return nil, err
	}
	out := geom.model()
	out.TextureNames = names
	out.Textures = textures
	stage.Commit()

	s.logger.Debug("Loaded level model", "level", name, "model", index, "faces", len(geom.faces))
	return &out, nil
}
