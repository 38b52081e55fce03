// Package mdl decodes IDPO version 6 alias models: a fixed header, skins,
// texture-space vertices, triangles and quantized animation frames.
package mdl

import (
	"github.com/quakeview/server/pkg/pak"
	"github.com/quakeview/server/pkg/qdata"
)

// Version is the only supported alias model version.
const Version = 6

// Model flags.
const (
	FlagRocket  = 1
	FlagGrenade = 2
	FlagGib     = 4
	FlagRotate  = 8
	FlagTracer  = 16
	FlagZomGib  = 32
	FlagTracer2 = 64
	FlagTracer3 = 128
)

const seamBit = 0x20

// Skin is one skin slot: a single image, or a group of images each shown
// for the matching entry of Times.
type Skin struct {
	Group  bool
	Times  []float32
	Images [][]byte
}

// STVert is a texture-space vertex.
type STVert struct {
	Seam int
	S, T int
}

// OnSeam reports whether the vertex lies on the skin seam.
func (v STVert) OnSeam() bool { return v.Seam&seamBit != 0 }

// Triangle references three vertices.
type Triangle struct {
	Front int
	V     [3]int
}

// FacesFront reports whether the triangle uses the front half of the skin.
func (t Triangle) FacesFront() bool { return t.Front != 0 }

// TriVert is a packed frame vertex: one byte per axis and a normal index.
type TriVert [4]uint8

// Pose is one frame image.
type Pose struct {
	Name    string
	BBoxMin TriVert
	BBoxMax TriVert
	Verts   []TriVert
}

// Frame is a single pose or a group of poses. For groups, Times holds the
// engine's cumulative interval table and BBoxMin/BBoxMax the group bounds.
type Frame struct {
	Group   bool
	BBoxMin TriVert
	BBoxMax TriVert
	Times   []float32
	Poses   []Pose
}

// Durations returns how long each pose is displayed. A single frame lasts 1.
func (f Frame) Durations() []float32 {
	if !f.Group {
		return []float32{1}
	}
	out := make([]float32, len(f.Times))
	prev := float32(0)
	for i, t := range f.Times {
		out[i] = t - prev
		prev = t
	}
	return out
}

// Schema decodes a whole model file.
var Schema = &qdata.Schema{
	Name:   "mdl",
	Fields: header.Fields,
	Unpack: unpack,
	Pack:   pack,
}

var header = &qdata.Schema{
	Name: "mdl",
	Fields: []qdata.FieldDef{
		{Name: "signature", Field: qdata.Signature("IDPO")},
		{Name: "version", Field: qdata.SignatureInt(Version)},
		{Name: "scale", Field: qdata.Vec3Field},
		{Name: "scale_origin", Field: qdata.Vec3Field},
		{Name: "boundingradius", Field: qdata.Float32},
		{Name: "eyeposition", Field: qdata.Vec3Field},
		{Name: "numskins", Field: qdata.Int32},
		{Name: "skinwidth", Field: qdata.Int32},
		{Name: "skinheight", Field: qdata.Int32},
		{Name: "numverts", Field: qdata.Int32},
		{Name: "numtris", Field: qdata.Int32},
		{Name: "numframes", Field: qdata.Int32},
		{Name: "synctype", Field: qdata.Enum("sync", "rand")},
		{Name: "flags", Field: qdata.Int32},
		{Name: "size", Field: qdata.Float32},
	},
}

func init() {
	pak.Register(".mdl", Schema)
}

func unpack(r *qdata.Reader, f *qdata.Fields) error {
	if err := header.DecodeFields(r, f); err != nil {
		return err
	}
	hdr := func(name string) int {
		n, _ := f.Value(name).(int)
		return n
	}
	numskins, w, h := hdr("numskins"), hdr("skinwidth"), hdr("skinheight")
	numverts, numtris, numframes := hdr("numverts"), hdr("numtris"), hdr("numframes")
	for name, n := range map[string]int{"numskins": numskins, "skinwidth": w, "skinheight": h,
		"numverts": numverts, "numtris": numtris, "numframes": numframes} {
		if n < 0 {
			return qdata.FormatErrorf("mdl %s is negative: %d", name, n)
		}
	}
	// Reject counts the remaining bytes cannot possibly hold before allocating.
	if minSize := numskins*(4+w*h) + numverts*12 + numtris*16 + numframes*4; minSize > r.Remaining() || minSize < 0 {
		return qdata.FormatErrorf("mdl body needs at least %d bytes, have %d", minSize, r.Remaining())
	}

	skins := make([]Skin, numskins)
	for i := range skins {
		s, err := readSkin(r, w*h)
		if err != nil {
			return err
		}
		skins[i] = s
	}

	verts := make([]STVert, numverts)
	for i := range verts {
		var v [3]int32
		for j := range v {
			x, err := r.Int32()
			if err != nil {
				return err
			}
			v[j] = x
		}
		verts[i] = STVert{Seam: int(v[0]), S: int(v[1]), T: int(v[2])}
	}

	tris := make([]Triangle, numtris)
	for i := range tris {
		var v [4]int32
		for j := range v {
			x, err := r.Int32()
			if err != nil {
				return err
			}
			v[j] = x
		}
		tri := Triangle{Front: int(v[0]), V: [3]int{int(v[1]), int(v[2]), int(v[3])}}
		for _, ref := range tri.V {
			if ref < 0 || ref >= numverts {
				return qdata.FormatErrorf("triangle %d references vertex %d of %d", i, ref, numverts)
			}
		}
		tris[i] = tri
	}

	frames := make([]Frame, numframes)
	for i := range frames {
		fr, err := readFrame(r, numverts)
		if err != nil {
			return err
		}
		frames[i] = fr
	}

	f.Set("skins", skins)
	f.Set("vertices", verts)
	f.Set("triangles", tris)
	f.Set("frames", frames)
	return nil
}

func readSkin(r *qdata.Reader, size int) (Skin, error) {
	kind, err := r.Int32()
	if err != nil {
		return Skin{}, err
	}
	if kind == 0 {
		img, err := r.Read(size)
		if err != nil {
			return Skin{}, err
		}
		return Skin{Images: [][]byte{img}}, nil
	}
	n, err := r.Int32()
	if err != nil {
		return Skin{}, err
	}
	if n <= 0 || int(n)*(4+size) > r.Remaining() {
		return Skin{}, qdata.FormatErrorf("skin group of %d images does not fit", n)
	}
	s := Skin{Group: true, Times: make([]float32, n), Images: make([][]byte, n)}
	for i := range s.Times {
		if s.Times[i], err = r.Float32(); err != nil {
			return Skin{}, err
		}
	}
	for i := range s.Images {
		if s.Images[i], err = r.Read(size); err != nil {
			return Skin{}, err
		}
	}
	return s, nil
}

func readTriVert(r *qdata.Reader) (TriVert, error) {
	b, err := r.Read(4)
	if err != nil {
		return TriVert{}, err
	}
	return TriVert{b[0], b[1], b[2], b[3]}, nil
}

func readPose(r *qdata.Reader, numverts int) (Pose, error) {
	var p Pose
	var err error
	if p.BBoxMin, err = readTriVert(r); err != nil {
		return p, err
	}
	if p.BBoxMax, err = readTriVert(r); err != nil {
		return p, err
	}
	name, err := qdata.CharPtr(16).Read(r, nil)
	if err != nil {
		return p, err
	}
	p.Name = name.(string)
	p.Verts = make([]TriVert, numverts)
	for i := range p.Verts {
		if p.Verts[i], err = readTriVert(r); err != nil {
			return p, err
		}
		if int(p.Verts[i][3]) >= len(Normals) {
			return p, qdata.FormatErrorf("frame %q vertex %d has normal index %d", p.Name, i, p.Verts[i][3])
		}
	}
	return p, nil
}

func readFrame(r *qdata.Reader, numverts int) (Frame, error) {
	kind, err := r.Int32()
	if err != nil {
		return Frame{}, err
	}
	if kind == 0 {
		p, err := readPose(r, numverts)
		if err != nil {
			return Frame{}, err
		}
		return Frame{Poses: []Pose{p}}, nil
	}

	n, err := r.Int32()
	if err != nil {
		return Frame{}, err
	}
	if n <= 0 || int(n)*(4+24+4*numverts) > r.Remaining() {
		return Frame{}, qdata.FormatErrorf("frame group of %d poses does not fit", n)
	}
	fr := Frame{Group: true, Times: make([]float32, n), Poses: make([]Pose, n)}
	if fr.BBoxMin, err = readTriVert(r); err != nil {
		return Frame{}, err
	}
	if fr.BBoxMax, err = readTriVert(r); err != nil {
		return Frame{}, err
	}
	for i := range fr.Times {
		if fr.Times[i], err = r.Float32(); err != nil {
			return Frame{}, err
		}
	}
	for i := range fr.Poses {
		if fr.Poses[i], err = readPose(r, numverts); err != nil {
			return Frame{}, err
		}
	}
	return fr, nil
}

func pack(w *qdata.Writer, f *qdata.Fields) error {
	skins, _ := f.Value("skins").([]Skin)
	verts, _ := f.Value("vertices").([]STVert)
	tris, _ := f.Value("triangles").([]Triangle)
	frames, _ := f.Value("frames").([]Frame)
	f.Set("numskins", len(skins))
	f.Set("numverts", len(verts))
	f.Set("numtris", len(tris))
	f.Set("numframes", len(frames))

	if err := header.EncodeFields(w, f); err != nil {
		return err
	}
	sw, _ := f.Value("skinwidth").(int)
	sh, _ := f.Value("skinheight").(int)

	for i, s := range skins {
		for _, img := range s.Images {
			if len(img) != sw*sh {
				return qdata.InvariantErrorf("skin %d image is %d bytes, want %dx%d", i, len(img), sw, sh)
			}
		}
		if !s.Group {
			if len(s.Images) != 1 {
				return qdata.InvariantErrorf("single skin %d has %d images", i, len(s.Images))
			}
			w.Int32(0)
			w.Write(s.Images[0])
			continue
		}
		w.Int32(1)
		w.Int32(int32(len(s.Images)))
		for _, t := range s.Times {
			w.Float32(t)
		}
		for _, img := range s.Images {
			w.Write(img)
		}
	}
	for _, v := range verts {
		w.Int32(int32(v.Seam))
		w.Int32(int32(v.S))
		w.Int32(int32(v.T))
	}
	for _, t := range tris {
		w.Int32(int32(t.Front))
		for _, ref := range t.V {
			w.Int32(int32(ref))
		}
	}
	for i, fr := range frames {
		for _, p := range fr.Poses {
			if len(p.Verts) != len(verts) {
				return qdata.InvariantErrorf("frame %d pose %q has %d vertices, want %d", i, p.Name, len(p.Verts), len(verts))
			}
		}
		if !fr.Group {
			if len(fr.Poses) != 1 {
				return qdata.InvariantErrorf("single frame %d has %d poses", i, len(fr.Poses))
			}
			w.Int32(0)
			if err := writePose(w, fr.Poses[0]); err != nil {
				return err
			}
			continue
		}
		w.Int32(1)
		w.Int32(int32(len(fr.Poses)))
		w.Write(fr.BBoxMin[:])
		w.Write(fr.BBoxMax[:])
		for _, t := range fr.Times {
			w.Float32(t)
		}
		for _, p := range fr.Poses {
			if err := writePose(w, p); err != nil {
				return err
			}
		}
	}
	return nil
}

func writePose(w *qdata.Writer, p Pose) error {
	w.Write(p.BBoxMin[:])
	w.Write(p.BBoxMax[:])
	if _, err := qdata.CharPtr(16).Write(w, p.Name); err != nil {
		return err
	}
	for _, v := range p.Verts {
		w.Write(v[:])
	}
	return nil
}
