package stream

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quakeview/server/internal/parser"
	"github.com/quakeview/server/pkg/delta"
	"github.com/quakeview/server/pkg/qdata"
)

const testEntities = `{ "classname" "worldspawn" }
{ "classname" "info_player_start" "origin" "32 16 24" "angle" "90" }
{ "classname" "func_door" "model" "*1" }
`

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testStyles() []string {
	styles := make([]string, NumLightStyles)
	for i := range styles {
		styles[i] = "m"
	}
	styles[32] = "abc"
	return styles
}

func newTestWorld(t *testing.T) *StaticWorld {
	t.Helper()
	ents, err := parser.NewParser(discardLogger()).ParseEntities(testEntities)
	require.NoError(t, err)
	w, err := NewStaticWorld(ents, testStyles())
	require.NoError(t, err)
	return w
}

func newTestHub(t *testing.T, sim Simulation, cfg Config, opts ...Option) *Hub {
	t.Helper()
	h, err := NewHub(sim, cfg, discardLogger(), opts...)
	require.NoError(t, err)
	return h
}

// entityBase is the snapshot index of entity e's model value.
func entityBase(e int) int {
	return NumLightStyles - FirstDynamicStyle + e*EntityValues
}

func TestFlatten(t *testing.T) {
	w := newTestWorld(t)

	snap, err := Flatten(w)
	require.NoError(t, err)
	require.Len(t, snap, SnapshotLen(3))
	assert.Equal(t, 59, len(snap))

	assert.Equal(t, delta.Str("abc"), snap[0])
	assert.Equal(t, delta.Str("m"), snap[31])

	b := entityBase(1)
	assert.Equal(t, delta.Str(""), snap[b])
	assert.Equal(t, delta.Num(0), snap[b+1])
	assert.Equal(t, delta.Num(0), snap[b+2])
	// origin y and z swap; angles keep their order.
	assert.Equal(t, []delta.Value{delta.Num(32), delta.Num(24), delta.Num(16)}, snap[b+3:b+6])
	assert.Equal(t, []delta.Value{delta.Num(0), delta.Num(90), delta.Num(0)}, snap[b+6:b+9])

	assert.Equal(t, delta.Str("*1"), snap[entityBase(2)])
}

func TestFlatten_ShortStyleTable(t *testing.T) {
	w := newTestWorld(t)
	w.styles = w.styles[:40]

	snap, err := Flatten(w)
	require.NoError(t, err)
	assert.Equal(t, delta.Str("m"), snap[7])
	assert.Equal(t, delta.Str(""), snap[8])
}

type crowdedSim struct {
	StaticWorld
	n int
}

func (s *crowdedSim) Entities() int { return s.n }

func TestFlatten_TooManyEntities(t *testing.T) {
	_, err := Flatten(&crowdedSim{n: MaxEntities + 1})
	assert.ErrorIs(t, err, qdata.ErrInvariant)
}

func TestFlatten_FieldErrors(t *testing.T) {
	tests := []struct {
		name  string
		field string
		value any
		want  error
	}{
		{name: "origin not a vector", field: "origin", value: "0 0 0", want: qdata.ErrInvariant},
		{name: "frame of unknown type", field: "frame", value: []int{1}, want: qdata.ErrInvariant},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := newTestWorld(t)
			require.NoError(t, w.SetField(1, tt.field, tt.value))
			_, err := Flatten(w)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	w := newTestWorld(t)
	delete(w.ents[2], "angles")
	_, err := Flatten(w)
	assert.ErrorIs(t, err, qdata.ErrLookup)
}

func TestStaticWorld(t *testing.T) {
	w := newTestWorld(t)
	assert.Equal(t, 3, w.Entities())

	v, err := w.Field(2, "model")
	require.NoError(t, err)
	assert.Equal(t, "*1", v)

	_, err = w.Field(3, "model")
	assert.ErrorIs(t, err, qdata.ErrLookup)
	_, err = w.Field(0, "health")
	assert.ErrorIs(t, err, qdata.ErrLookup)
	assert.ErrorIs(t, w.SetField(-1, "frame", 1), qdata.ErrLookup)

	require.NoError(t, w.Advance(100*time.Millisecond))
	require.NoError(t, w.Advance(50*time.Millisecond))
	assert.Equal(t, 150*time.Millisecond, w.Elapsed())

	require.NoError(t, w.SetLightstyle(33, "az"))
	assert.Equal(t, "az", w.Lightstyles()[33])
	assert.ErrorIs(t, w.SetLightstyle(64, "a"), qdata.ErrLookup)
}

func TestNewStaticWorld_BadEntity(t *testing.T) {
	_, err := NewStaticWorld([]parser.Entity{{"classname": "light", "origin": "1 2"}}, nil)
	assert.ErrorIs(t, err, qdata.ErrFormat)
}
