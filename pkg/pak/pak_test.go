package pak

import (
	"encoding/binary"
	"path/filepath"
	"testing"

	"github.com/quakeview/server/pkg/qdata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildArchive(t *testing.T, entries ...[2]string) []byte {
	t.Helper()
	a := New()
	for _, e := range entries {
		a.PutBytes(e[0], []byte(e[1]))
	}
	data, err := a.RawData()
	require.NoError(t, err)
	return data
}

func entryBytes(t *testing.T, a *Archive, name string) []byte {
	t.Helper()
	rec, err := a.Get(name)
	require.NoError(t, err)
	data, err := rec.RawData()
	require.NoError(t, err)
	return data
}

func TestOpen_ReadsDirectory(t *testing.T) {
	data := buildArchive(t,
		[2]string{"gfx/palette.lmp", "abc"},
		[2]string{"readme.txt", "hello world"},
	)

	assert.Equal(t, "PACK", string(data[:4]))
	dirpos := int(binary.LittleEndian.Uint32(data[4:]))
	dirsize := int(binary.LittleEndian.Uint32(data[8:]))
	assert.Equal(t, 2*64, dirsize)
	assert.Equal(t, len(data), dirpos+dirsize)

	a, err := Open(data)
	require.NoError(t, err)
	assert.Equal(t, []string{"gfx/palette.lmp", "readme.txt"}, a.Names())
	assert.Equal(t, 2, a.Len())
	assert.Equal(t, []byte("hello world"), entryBytes(t, a, "readme.txt"))
}

func TestOpen_AlignsBlobs(t *testing.T) {
	data := buildArchive(t,
		[2]string{"a.lmp", "x"},
		[2]string{"b.lmp", "yy"},
	)
	dirpos := int(binary.LittleEndian.Uint32(data[4:]))
	for i := 0; i < 2; i++ {
		ofs := binary.LittleEndian.Uint32(data[dirpos+i*64+56:])
		assert.Zero(t, ofs%DefaultAlign, "entry %d offset %d", i, ofs)
	}
}

func TestGet_Missing(t *testing.T) {
	a, err := Open(buildArchive(t, [2]string{"a.lmp", "x"}))
	require.NoError(t, err)

	_, err = a.Get("maps/nope.bsp")
	assert.ErrorIs(t, err, qdata.ErrLookup)
}

func TestOpen_Errors(t *testing.T) {
	good := buildArchive(t, [2]string{"a.lmp", "xyz"})

	tests := []struct {
		name   string
		mutate func([]byte) []byte
	}{
		{
			name: "bad signature",
			mutate: func(b []byte) []byte {
				b[0] = 'K'
				return b
			},
		},
		{
			name: "directory past end",
			mutate: func(b []byte) []byte {
				binary.LittleEndian.PutUint32(b[4:], uint32(len(b)))
				return b
			},
		},
		{
			name: "entry past end",
			mutate: func(b []byte) []byte {
				dirpos := int(binary.LittleEndian.Uint32(b[4:]))
				binary.LittleEndian.PutUint32(b[dirpos+60:], 1<<20)
				return b
			},
		},
		{
			name: "truncated header",
			mutate: func(b []byte) []byte {
				return b[:6]
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := tt.mutate(append([]byte(nil), good...))
			_, err := Open(data)
			assert.ErrorIs(t, err, qdata.ErrFormat)
		})
	}
}

func TestSave_PreservesOrderAndAppends(t *testing.T) {
	a, err := Open(buildArchive(t,
		[2]string{"z.lmp", "1"},
		[2]string{"a.lmp", "2"},
		[2]string{"m.lmp", "3"},
	))
	require.NoError(t, err)

	a.PutBytes("a.lmp", []byte("replaced"))
	a.PutBytes("new2.lmp", []byte("n2"))
	a.PutBytes("new1.lmp", []byte("n1"))

	path := filepath.Join(t.TempDir(), "out.pak")
	require.NoError(t, a.Save(path))

	b, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"z.lmp", "a.lmp", "m.lmp", "new2.lmp", "new1.lmp"}, b.Names())
	assert.Equal(t, []byte("replaced"), entryBytes(t, b, "a.lmp"))
	assert.Equal(t, []byte("n1"), entryBytes(t, b, "new1.lmp"))
}

func TestUpdate_LaterWins(t *testing.T) {
	base, err := Open(buildArchive(t,
		[2]string{"progs/a.lmp", "base-a"},
		[2]string{"progs/b.lmp", "base-b"},
	))
	require.NoError(t, err)
	patch, err := Open(buildArchive(t,
		[2]string{"progs/b.lmp", "patch-b"},
		[2]string{"progs/c.lmp", "patch-c"},
	))
	require.NoError(t, err)

	base.Update(patch)

	assert.Equal(t, []string{"progs/a.lmp", "progs/b.lmp", "progs/c.lmp"}, base.Names())
	assert.Equal(t, []byte("base-a"), entryBytes(t, base, "progs/a.lmp"))
	assert.Equal(t, []byte("patch-b"), entryBytes(t, base, "progs/b.lmp"))
	assert.Equal(t, []byte("patch-c"), entryBytes(t, base, "progs/c.lmp"))
}

func TestGuess(t *testing.T) {
	assert.Same(t, Schema, Guess("id1/pak1.pak"))
	assert.Same(t, Schema, Guess("UPPER.PAK"))
	assert.Same(t, qdata.Opaque, Guess("gfx/palette.lmp"))
	assert.Same(t, qdata.Opaque, Guess("noextension"))
}

func TestNestedArchive(t *testing.T) {
	inner := buildArchive(t, [2]string{"inner.txt", "deep"})

	outer := New()
	outer.PutBytes("sub/inner.pak", inner)
	data, err := outer.RawData()
	require.NoError(t, err)

	a, err := Open(data)
	require.NoError(t, err)
	rec, err := a.Get("sub/inner.pak")
	require.NoError(t, err)

	nested, err := FromRecord(rec)
	require.NoError(t, err)
	assert.Equal(t, []byte("deep"), entryBytes(t, nested, "inner.txt"))

	// Re-encoding the decoded nested archive reproduces its bytes.
	again, err := rec.RawData()
	require.NoError(t, err)
	assert.Equal(t, inner, again)
}

func TestFromRecord_WrongSchema(t *testing.T) {
	_, err := FromRecord(qdata.New(qdata.Opaque, nil, qdata.Context{}))
	assert.ErrorIs(t, err, qdata.ErrFormat)
}

func TestSchema_HeaderFields(t *testing.T) {
	assert.Equal(t, header.Fields, Schema.Fields)
	require.NotNil(t, Schema.Unpack)
	require.NotNil(t, Schema.Pack)
	assert.Nil(t, header.Unpack)

	a, err := Open(buildArchive(t, [2]string{"a.lmp", "xyz"}))
	require.NoError(t, err)
	assert.Equal(t, []byte("xyz"), entryBytes(t, a, "a.lmp"))
}
