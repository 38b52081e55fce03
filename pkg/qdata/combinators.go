package qdata

// Lump is an (offset, size) pair pointing at a sub-blob of the same
// buffer. The sub-blob is wrapped in a Raw record of the given schema.
// On write the pair is a placeholder patched once every header field is
// out; the body is then appended and padded to align.
func Lump(schema *Schema, align int) Field {
	return lumpField{schema: schema, align: align}
}

type lumpField struct {
	schema *Schema
	align  int
}

func (l lumpField) Read(r *Reader, f *Fields) (any, error) {
	ofs, err := r.Int32()
	if err != nil {
		return nil, err
	}
	size, err := r.Int32()
	if err != nil {
		return nil, err
	}
	data, err := r.Slice(int(ofs), int(size))
	if err != nil {
		return nil, FormatErrorf("premature end of file in %s lump: %v", l.schema.Name, err)
	}
	return New(l.schema, data, Context{Parent: f.Record()}), nil
}

func (l lumpField) Write(w *Writer, v any) (func() error, error) {
	rec, ok := v.(*Record)
	if !ok {
		return nil, InvariantErrorf("lump value %T is not a record", v)
	}
	hdr := w.Tell()
	w.Int32(0)
	w.Int32(0)
	return func() error {
		data, err := rec.RawData()
		if err != nil {
			return err
		}
		cur := w.Tell()
		w.Seek(hdr)
		w.Int32(int32(cur))
		w.Int32(int32(len(data)))
		w.Seek(cur)
		w.Write(data)
		w.Pad(len(data), l.align)
		return nil
	}, nil
}

// OfsArray is an int32 count followed by that many int32 offsets, each
// pointing at an element inside the record's buffer. An element runs to the
// next offset, or to the end of the buffer for the last one. A negative
// offset is a missing element: it decodes to nil and encodes back as -1.
func OfsArray(schema *Schema) Field {
	return ofsArray{schema: schema, fixed: -1}
}

// FixedOfsArray is OfsArray with a constant count and no count field.
func FixedOfsArray(schema *Schema, n int) Field {
	return ofsArray{schema: schema, fixed: n}
}

type ofsArray struct {
	schema *Schema
	fixed  int
}

func (a ofsArray) Read(r *Reader, f *Fields) (any, error) {
	count := a.fixed
	if count < 0 {
		n, err := r.Int32()
		if err != nil {
			return nil, err
		}
		if n < 0 || int(n)*4 > r.Remaining() {
			return nil, FormatErrorf("%s offset table of %d entries does not fit", a.schema.Name, n)
		}
		count = int(n)
	}
	offsets := make([]int, count)
	for i := range offsets {
		ofs, err := r.Int32()
		if err != nil {
			return nil, err
		}
		offsets[i] = int(ofs)
	}

	out := make([]*Record, count)
	for i, ofs := range offsets {
		if ofs < 0 {
			continue
		}
		end := r.Len()
		for _, next := range offsets[i+1:] {
			if next >= 0 {
				end = next
				break
			}
		}
		data, err := r.Slice(ofs, end-ofs)
		if err != nil {
			return nil, FormatErrorf("%s element %d: %v", a.schema.Name, i, err)
		}
		out[i] = New(a.schema, data, Context{Parent: f.Record(), Index: i})
	}
	return out, nil
}

func (a ofsArray) Write(w *Writer, v any) (func() error, error) {
	list, ok := v.([]*Record)
	if !ok && v != nil {
		return nil, InvariantErrorf("offset array value %T is not a record list", v)
	}
	if a.fixed < 0 {
		w.Int32(int32(len(list)))
	} else if len(list) != a.fixed {
		return nil, InvariantErrorf("%s array has %d entries, want %d", a.schema.Name, len(list), a.fixed)
	}
	hdr := w.Tell()
	for range list {
		w.Int32(0)
	}
	offsets := make([]int32, len(list))
	for i, rec := range list {
		if rec == nil {
			offsets[i] = -1
			continue
		}
		offsets[i] = int32(w.Tell())
		data, err := rec.RawData()
		if err != nil {
			return nil, err
		}
		w.Write(data)
	}
	end := w.Tell()
	w.Seek(hdr)
	for _, ofs := range offsets {
		w.Int32(ofs)
	}
	w.Seek(end)
	return nil, nil
}

// Array decodes records of one schema back to back until the buffer is
// exhausted. Elements are decoded immediately.
func Array(schema *Schema) Field {
	return arrayField{schema: schema}
}

type arrayField struct{ schema *Schema }

func (a arrayField) Read(r *Reader, _ *Fields) (any, error) {
	var out []*Record
	for r.Remaining() > 0 {
		rec := &Record{schema: a.schema, decoded: true}
		rec.ctx = Context{Index: len(out)}
		fields := newFields(rec)
		if err := a.schema.decode(r, fields); err != nil {
			return nil, err
		}
		rec.fields = fields
		out = append(out, rec)
	}
	return out, nil
}

func (a arrayField) Write(w *Writer, v any) (func() error, error) {
	list, ok := v.([]*Record)
	if !ok && v != nil {
		return nil, InvariantErrorf("array value %T is not a record list", v)
	}
	for _, rec := range list {
		data, err := rec.RawData()
		if err != nil {
			return nil, err
		}
		w.Write(data)
	}
	return nil, nil
}

// ArrayOf decodes scalar values of one field type back to back until the
// buffer is exhausted, as a []T.
func ArrayOf[T any](item Field) Field {
	return arrayOf[T]{item: item, count: -1}
}

// FixedArray decodes exactly n scalar values of one field type as a []T.
func FixedArray[T any](item Field, n int) Field {
	return arrayOf[T]{item: item, count: n}
}

type arrayOf[T any] struct {
	item  Field
	count int
}

func (a arrayOf[T]) Read(r *Reader, f *Fields) (any, error) {
	var out []T
	for i := 0; (a.count < 0 && r.Remaining() > 0) || i < a.count; i++ {
		v, err := a.item.Read(r, f)
		if err != nil {
			return nil, err
		}
		t, ok := v.(T)
		if !ok {
			return nil, InvariantErrorf("array item %T is not %T", v, t)
		}
		out = append(out, t)
	}
	return out, nil
}

func (a arrayOf[T]) Write(w *Writer, v any) (func() error, error) {
	list, ok := v.([]T)
	if !ok && v != nil {
		return nil, InvariantErrorf("array value %T is not %T", v, list)
	}
	if a.count >= 0 && len(list) != a.count {
		return nil, InvariantErrorf("array has %d entries, want %d", len(list), a.count)
	}
	for _, x := range list {
		if _, err := a.item.Write(w, x); err != nil {
			return nil, err
		}
	}
	return nil, nil
}

// Opaque keeps a blob as uninterpreted bytes in its "data" field.
var Opaque = &Schema{
	Name: "opaque",
	Unpack: func(r *Reader, f *Fields) error {
		f.Set("data", r.Rest())
		return nil
	},
	Pack: func(w *Writer, f *Fields) error {
		data, _ := f.Value("data").([]byte)
		w.Write(data)
		return nil
	},
}
