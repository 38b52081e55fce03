// Package pak reads and writes PACK archives: a signature, a trailing
// directory of 64-byte entries and the entry blobs. Entries are wrapped in
// lazily decoded records whose schema is guessed from the file extension.
package pak

import (
	"os"
	"slices"
	"sync"

	"github.com/quakeview/server/pkg/qdata"
)

const (
	entrySize = 64

	// DefaultAlign is the padding applied after each blob on save.
	DefaultAlign = 4
)

var entrySchema = &qdata.Schema{
	Name: "pak entry",
	Fields: []qdata.FieldDef{
		{Name: "name", Field: qdata.CharPtr(56)},
		{Name: "ofs", Field: qdata.Int32},
		{Name: "size", Field: qdata.Int32},
	},
}

// Schema decodes a whole archive. Its fields are "names" (the original
// directory order), "added" (names put later, in insertion order) and
// "content" (name to entry record).
var Schema = &qdata.Schema{
	Name:   "pak",
	Fields: header.Fields,
	Unpack: unpack,
	Pack:   pack,
}

// header holds the fixed leading fields; unpack and pack run it directly.
var header = &qdata.Schema{
	Name: "pak",
	Fields: []qdata.FieldDef{
		{Name: "signature", Field: qdata.Signature("PACK")},
	},
}

func unpack(r *qdata.Reader, f *qdata.Fields) error {
	if err := header.DecodeFields(r, f); err != nil {
		return err
	}
	dirpos, err := r.Int32()
	if err != nil {
		return err
	}
	dirsize, err := r.Int32()
	if err != nil {
		return err
	}
	dir, err := r.Slice(int(dirpos), int(dirsize))
	if err != nil {
		return qdata.FormatErrorf("pak directory: %v", err)
	}

	count := len(dir) / entrySize
	names := make([]string, 0, count)
	content := make(map[string]*qdata.Record, count)
	for i := 0; i < count; i++ {
		g := qdata.NewGetter(qdata.New(entrySchema, dir[i*entrySize:(i+1)*entrySize], qdata.Context{}))
		name, ofs, size := g.String("name"), g.Int("ofs"), g.Int("size")
		if err := g.Err(); err != nil {
			return err
		}
		data, err := r.Slice(ofs, size)
		if err != nil {
			return qdata.FormatErrorf("pak entry %q: %v", name, err)
		}
		if _, dup := content[name]; !dup {
			names = append(names, name)
		}
		content[name] = qdata.New(Guess(name), data, qdata.Context{Parent: f.Record(), Index: i})
	}

	f.Set("names", names)
	f.Set("added", []string(nil))
	f.Set("content", content)
	return nil
}

func pack(w *qdata.Writer, f *qdata.Fields) error {
	if err := header.EncodeFields(w, f); err != nil {
		return err
	}
	content, _ := f.Value("content").(map[string]*qdata.Record)
	names := saveOrder(f)

	hdr := w.Tell()
	w.Int32(0)
	w.Int32(0)

	entries := make([]*qdata.Record, 0, len(names))
	for _, name := range names {
		data, err := content[name].RawData()
		if err != nil {
			return err
		}
		entries = append(entries, qdata.NewDecoded(entrySchema, map[string]any{
			"name": name,
			"ofs":  w.Tell(),
			"size": len(data),
		}))
		w.Write(data)
		w.Pad(len(data), DefaultAlign)
	}

	dirpos := w.Tell()
	for _, e := range entries {
		data, err := e.RawData()
		if err != nil {
			return err
		}
		w.Write(data)
	}
	end := w.Tell()
	w.Seek(hdr)
	w.Int32(int32(dirpos))
	w.Int32(int32(len(entries) * entrySize))
	w.Seek(end)
	return nil
}

// saveOrder lists untouched entries in their original order, followed by
// entries added since the archive was read.
func saveOrder(f *qdata.Fields) []string {
	content, _ := f.Value("content").(map[string]*qdata.Record)
	original, _ := f.Value("names").([]string)
	added, _ := f.Value("added").([]string)

	out := make([]string, 0, len(content))
	for _, name := range original {
		if _, ok := content[name]; ok {
			out = append(out, name)
		}
	}
	for _, name := range added {
		if _, ok := content[name]; ok && !slices.Contains(out, name) {
			out = append(out, name)
		}
	}
	return out
}

// Archive is a decoded PACK archive. It is safe for concurrent use.
type Archive struct {
	mu  sync.RWMutex
	rec *qdata.Record
}

// Open decodes an archive from memory.
func Open(data []byte) (*Archive, error) {
	return FromRecord(qdata.New(Schema, data, qdata.Context{}))
}

// Load reads and decodes an archive file.
func Load(filename string) (*Archive, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	return Open(data)
}

// New returns an empty archive.
func New() *Archive {
	return &Archive{rec: qdata.NewDecoded(Schema, map[string]any{
		"names":   []string(nil),
		"added":   []string(nil),
		"content": map[string]*qdata.Record{},
	})}
}

// FromRecord wraps a record of Schema, such as a nested archive entry.
func FromRecord(rec *qdata.Record) (*Archive, error) {
	if rec.Schema() != Schema {
		return nil, qdata.FormatErrorf("record %q is not an archive", rec.Schema().Name)
	}
	if err := rec.Materialize(); err != nil {
		return nil, err
	}
	return &Archive{rec: rec}, nil
}

func (a *Archive) content() map[string]*qdata.Record {
	m, _ := qdata.Get[map[string]*qdata.Record](a.rec, "content")
	return m
}

// Names returns entry names in the order Save writes them.
func (a *Archive) Names() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	original, _ := qdata.Get[[]string](a.rec, "names")
	added, _ := qdata.Get[[]string](a.rec, "added")
	content := a.content()
	names := make([]string, 0, len(content))
	for _, n := range append(slices.Clone(original), added...) {
		if _, ok := content[n]; ok && !slices.Contains(names, n) {
			names = append(names, n)
		}
	}
	return names
}

// Len returns the number of entries.
func (a *Archive) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.content())
}

// Get returns the entry named name.
func (a *Archive) Get(name string) (*qdata.Record, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	rec, ok := a.content()[name]
	if !ok {
		return nil, qdata.LookupErrorf("%q not in archive", name)
	}
	return rec, nil
}

// Put adds or replaces an entry. New names are appended to the save order.
func (a *Archive) Put(name string, rec *qdata.Record) {
	a.mu.Lock()
	defer a.mu.Unlock()
	content := a.content()
	if _, ok := content[name]; !ok {
		added, _ := qdata.Get[[]string](a.rec, "added")
		_ = a.rec.Set("added", append(added, name))
	}
	content[name] = rec
}

// PutBytes adds or replaces an entry from raw bytes, decoded according to
// its extension.
func (a *Archive) PutBytes(name string, data []byte) {
	a.Put(name, qdata.New(Guess(name), data, qdata.Context{}))
}

// Update merges other into a. Entries of other win on name collisions.
func (a *Archive) Update(other *Archive) {
	for _, name := range other.Names() {
		rec, err := other.Get(name)
		if err != nil {
			continue
		}
		a.Put(name, rec)
	}
}

// RawData encodes the archive.
func (a *Archive) RawData() ([]byte, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.rec.RawData()
}

// Save writes the archive to filename.
func (a *Archive) Save(filename string) error {
	data, err := a.RawData()
	if err != nil {
		return err
	}
	return os.WriteFile(filename, data, 0644)
}
