package qdata

// Getter reads typed fields from a record and remembers the first error,
// so a sequence of reads can be checked once at the end.
type Getter struct {
	rec *Record
	err error
}

// NewGetter returns a Getter over rec.
func NewGetter(rec *Record) *Getter {
	return &Getter{rec: rec}
}

// Err returns the first error encountered.
func (g *Getter) Err() error { return g.err }

func get[T any](g *Getter, name string) T {
	var zero T
	if g.err != nil {
		return zero
	}
	v, err := Get[T](g.rec, name)
	if err != nil {
		g.err = err
		return zero
	}
	return v
}

// Int reads an integer field.
func (g *Getter) Int(name string) int { return get[int](g, name) }

// Float reads a float field.
func (g *Getter) Float(name string) float32 { return get[float32](g, name) }

// String reads a string, enum or signature field.
func (g *Getter) String(name string) string { return get[string](g, name) }

// Vec3 reads a Vec3 field.
func (g *Getter) Vec3(name string) Vec3 { return get[Vec3](g, name) }

// Vec4 reads a Vec4 field.
func (g *Getter) Vec4(name string) Vec4 { return get[Vec4](g, name) }

// Bytes reads a byte-slice field.
func (g *Getter) Bytes(name string) []byte { return get[[]byte](g, name) }

// Ints reads an integer array field.
func (g *Getter) Ints(name string) []int { return get[[]int](g, name) }

// Record reads a sub-record field.
func (g *Getter) Record(name string) *Record { return get[*Record](g, name) }

// Records reads a record list field.
func (g *Getter) Records(name string) []*Record { return get[[]*Record](g, name) }
