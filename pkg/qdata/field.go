package qdata

import (
	"bytes"
	"encoding/binary"
	"math"
	"slices"
)

// Field reads and writes one value of a record.
//
// Write may return a patch that the owning schema runs after all fields
// are written; lumps use it to append their body and backpatch the header.
type Field interface {
	Read(r *Reader, f *Fields) (any, error)
	Write(w *Writer, v any) (patch func() error, err error)
}

// Vec3 is three little-endian floats.
type Vec3 [3]float32

// Vec4 is four little-endian floats: a plane or a texture axis plus offset.
type Vec4 [4]float32

// Integer fields decode to int regardless of their width.
var (
	Int8   Field = intField{size: 1, signed: true}
	Uint8  Field = intField{size: 1}
	Int16  Field = intField{size: 2, signed: true}
	Uint16 Field = intField{size: 2}
	Int24  Field = intField{size: 3}
	Int32  Field = intField{size: 4, signed: true}
)

type intField struct {
	size   int
	signed bool
}

func (f intField) Read(r *Reader, _ *Fields) (any, error) {
	b, err := r.Read(f.size)
	if err != nil {
		return nil, err
	}
	var u uint32
	for i := f.size - 1; i >= 0; i-- {
		u = u<<8 | uint32(b[i])
	}
	if !f.signed {
		return int(u), nil
	}
	shift := 32 - 8*f.size
	return int(int32(u<<shift) >> shift), nil
}

func (f intField) Write(w *Writer, v any) (func() error, error) {
	n, err := asInt(v)
	if err != nil {
		return nil, err
	}
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], uint32(int32(n)))
	w.Write(b[:f.size])
	return nil, nil
}

func asInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int32:
		return int(n), nil
	case int16:
		return int(n), nil
	case int8:
		return int(n), nil
	case uint8:
		return int(n), nil
	case uint16:
		return int(n), nil
	case nil:
		return 0, nil
	}
	return 0, InvariantErrorf("value %T is not an integer", v)
}

// Float32 is a little-endian IEEE-754 single.
var Float32 Field = floatField{}

type floatField struct{}

func (floatField) Read(r *Reader, _ *Fields) (any, error) {
	return r.Float32()
}

func (floatField) Write(w *Writer, v any) (func() error, error) {
	x, ok := v.(float32)
	if !ok && v != nil {
		return nil, InvariantErrorf("value %T is not float32", v)
	}
	w.Float32(x)
	return nil, nil
}

// Vec3Field reads a Vec3.
var Vec3Field Field = vecField{n: 3}

// Vec4Field reads a Vec4.
var Vec4Field Field = vecField{n: 4}

type vecField struct{ n int }

func (f vecField) Read(r *Reader, _ *Fields) (any, error) {
	b, err := r.Read(4 * f.n)
	if err != nil {
		return nil, err
	}
	var out [4]float32
	for i := 0; i < f.n; i++ {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	if f.n == 3 {
		return Vec3{out[0], out[1], out[2]}, nil
	}
	return Vec4(out), nil
}

func (f vecField) Write(w *Writer, v any) (func() error, error) {
	var comps []float32
	switch x := v.(type) {
	case Vec3:
		comps = x[:]
	case Vec4:
		comps = x[:]
	default:
		return nil, InvariantErrorf("value %T is not a vector", v)
	}
	if len(comps) != f.n {
		return nil, InvariantErrorf("vector has %d components, want %d", len(comps), f.n)
	}
	for _, c := range comps {
		w.Float32(c)
	}
	return nil, nil
}

// CharPtr is a fixed-size, NUL-padded string field.
func CharPtr(size int) Field { return charPtr{size: size} }

type charPtr struct{ size int }

func (f charPtr) Read(r *Reader, _ *Fields) (any, error) {
	b, err := r.Read(f.size)
	if err != nil {
		return nil, err
	}
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b), nil
}

func (f charPtr) Write(w *Writer, v any) (func() error, error) {
	s, ok := v.(string)
	if !ok && v != nil {
		return nil, InvariantErrorf("value %T is not a string", v)
	}
	if len(s) >= f.size {
		return nil, InvariantErrorf("string %q does not fit in %d bytes", s, f.size)
	}
	buf := make([]byte, f.size)
	copy(buf, s)
	w.Write(buf)
	return nil, nil
}

// Enum is an int32 index into a fixed list of names.
func Enum(choices ...string) Field { return enumField{choices: choices} }

type enumField struct{ choices []string }

func (f enumField) Read(r *Reader, _ *Fields) (any, error) {
	x, err := r.Int32()
	if err != nil {
		return nil, err
	}
	if x < 0 || int(x) >= len(f.choices) {
		return nil, FormatErrorf("enum value %d out of range %v", x, f.choices)
	}
	return f.choices[x], nil
}

func (f enumField) Write(w *Writer, v any) (func() error, error) {
	s, _ := v.(string)
	i := slices.Index(f.choices, s)
	if i < 0 {
		return nil, InvariantErrorf("%v is not one of %v", v, f.choices)
	}
	w.Int32(int32(i))
	return nil, nil
}

// Signature is a fixed byte sequence that must match exactly.
func Signature(expected string) Field { return sigField{expected: expected} }

// SignatureInt is a fixed little-endian int32 that must match exactly.
func SignatureInt(expected int32) Field {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], uint32(expected))
	return sigField{expected: string(b[:])}
}

type sigField struct{ expected string }

func (f sigField) Read(r *Reader, _ *Fields) (any, error) {
	b, err := r.Read(len(f.expected))
	if err != nil {
		return nil, err
	}
	if string(b) != f.expected {
		return nil, FormatErrorf("bad signature: %q instead of %q", b, f.expected)
	}
	return f.expected, nil
}

func (f sigField) Write(w *Writer, v any) (func() error, error) {
	if s, ok := v.(string); ok && s != f.expected {
		return nil, InvariantErrorf("signature %q, want %q", s, f.expected)
	}
	w.Write([]byte(f.expected))
	return nil, nil
}
