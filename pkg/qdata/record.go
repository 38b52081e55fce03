package qdata

import (
	"sync"
)

// Context is the information a lazily decoded record needs from its
// surroundings: the record that contains it and its position there.
type Context struct {
	Parent *Record
	Index  int
}

// FieldDef binds a name to a field codec.
type FieldDef struct {
	Name  string
	Field Field
}

// Schema describes how a record is laid out. Records without custom
// Unpack/Pack functions are read and written field by field, in order.
type Schema struct {
	Name   string
	Fields []FieldDef

	// Unpack overrides the default field-sequence decoding.
	Unpack func(r *Reader, f *Fields) error
	// Pack overrides the default field-sequence encoding.
	Pack func(w *Writer, f *Fields) error
}

// DecodeFields reads the schema's declared fields in order into f.
func (s *Schema) DecodeFields(r *Reader, f *Fields) error {
	for _, def := range s.Fields {
		v, err := def.Field.Read(r, f)
		if err != nil {
			return wrapField(s.Name, def.Name, err)
		}
		f.Set(def.Name, v)
	}
	return nil
}

// EncodeFields writes the schema's declared fields in order, then runs the
// deferred patches (lump bodies) they produced.
func (s *Schema) EncodeFields(w *Writer, f *Fields) error {
	var patches []func() error
	for _, def := range s.Fields {
		patch, err := def.Field.Write(w, f.Value(def.Name))
		if err != nil {
			return wrapField(s.Name, def.Name, err)
		}
		if patch != nil {
			patches = append(patches, patch)
		}
	}
	for _, patch := range patches {
		if err := patch(); err != nil {
			return err
		}
	}
	return nil
}

func (s *Schema) decode(r *Reader, f *Fields) error {
	if s.Unpack != nil {
		return s.Unpack(r, f)
	}
	return s.DecodeFields(r, f)
}

func (s *Schema) encode(w *Writer, f *Fields) error {
	if s.Pack != nil {
		return s.Pack(w, f)
	}
	return s.EncodeFields(w, f)
}

// Fields holds the decoded values of one record. Names outside the schema
// are allowed and kept in insertion order.
type Fields struct {
	rec    *Record
	names  []string
	values map[string]any
}

func newFields(rec *Record) *Fields {
	return &Fields{rec: rec, values: make(map[string]any)}
}

// Set stores a value.
func (f *Fields) Set(name string, v any) {
	if _, ok := f.values[name]; !ok {
		f.names = append(f.names, name)
	}
	f.values[name] = v
}

// Value returns a stored value or nil.
func (f *Fields) Value(name string) any {
	return f.values[name]
}

// Has reports whether name has been set.
func (f *Fields) Has(name string) bool {
	_, ok := f.values[name]
	return ok
}

// Names returns the stored names in insertion order.
func (f *Fields) Names() []string {
	return append([]string(nil), f.names...)
}

// Record returns the record these fields belong to.
func (f *Fields) Record() *Record { return f.rec }

// Context returns the owning record's context.
func (f *Fields) Context() Context { return f.rec.ctx }

// Record is a binary structure in one of two states: Raw (undecoded bytes
// plus context) or Decoded (field values). The first field access
// materializes it; the raw bytes are dropped afterwards and RawData
// re-encodes from the fields.
type Record struct {
	schema *Schema
	ctx    Context

	mu      sync.Mutex
	raw     []byte
	fields  *Fields
	decoded bool
	err     error
}

// New wraps raw bytes in a Raw record. Nothing is decoded yet.
func New(schema *Schema, raw []byte, ctx Context) *Record {
	return &Record{schema: schema, raw: raw, ctx: ctx}
}

// NewDecoded builds a Decoded record from values, for records that are
// assembled in code rather than read from bytes.
func NewDecoded(schema *Schema, values map[string]any) *Record {
	rec := &Record{schema: schema, decoded: true}
	rec.fields = newFields(rec)
	for _, def := range schema.Fields {
		if v, ok := values[def.Name]; ok {
			rec.fields.Set(def.Name, v)
		}
	}
	for name, v := range values {
		rec.fields.Set(name, v)
	}
	return rec
}

// Schema returns the record's schema.
func (r *Record) Schema() *Schema { return r.schema }

// Context returns the context the record was created with.
func (r *Record) Context() Context { return r.ctx }

// IsDecoded reports whether the record has been materialized.
func (r *Record) IsDecoded() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.decoded
}

// Materialize decodes the record if it is still Raw. Sub-records stay Raw.
// A failed decode leaves the record Raw and returns the same error on
// every later call.
func (r *Record) Materialize() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.materializeLocked()
}

func (r *Record) materializeLocked() error {
	if r.decoded {
		return nil
	}
	if r.err != nil {
		return r.err
	}
	fields := newFields(r)
	if err := r.schema.decode(NewReader(r.raw), fields); err != nil {
		r.err = err
		return err
	}
	r.fields = fields
	r.raw = nil
	r.decoded = true
	return nil
}

// Value materializes the record and returns the named value.
func (r *Record) Value(name string) (any, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.materializeLocked(); err != nil {
		return nil, err
	}
	v, ok := r.fields.values[name]
	if !ok {
		return nil, LookupErrorf("%s has no field %q", r.schema.Name, name)
	}
	return v, nil
}

// Set materializes the record and stores a value.
func (r *Record) Set(name string, v any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.materializeLocked(); err != nil {
		return err
	}
	r.fields.Set(name, v)
	return nil
}

// Names materializes the record and returns its field names.
func (r *Record) Names() ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.materializeLocked(); err != nil {
		return nil, err
	}
	return r.fields.Names(), nil
}

// RawData returns the record's bytes: the original bytes while Raw, a
// fresh encoding of the fields once Decoded.
func (r *Record) RawData() ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.decoded {
		return r.raw, nil
	}
	w := NewWriter()
	if err := r.schema.encode(w, r.fields); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}

// Get returns the named value as T.
func Get[T any](r *Record, name string) (T, error) {
	var zero T
	v, err := r.Value(name)
	if err != nil {
		return zero, err
	}
	t, ok := v.(T)
	if !ok {
		return zero, InvariantErrorf("%s.%s is %T, not %T", r.schema.Name, name, v, zero)
	}
	return t, nil
}

func wrapField(schema, field string, err error) error {
	return &FieldError{Schema: schema, Field: field, Err: err}
}

// FieldError records which field of which schema failed.
type FieldError struct {
	Schema string
	Field  string
	Err    error
}

func (e *FieldError) Error() string {
	return e.Schema + "." + e.Field + ": " + e.Err.Error()
}

func (e *FieldError) Unwrap() error { return e.Err }
