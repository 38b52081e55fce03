package delta

import (
	"math"
	"strings"
	"testing"

	"github.com/quakeview/server/pkg/qdata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncode_ChangedBit(t *testing.T) {
	e := NewEncoder()
	e.Encode([]Value{Num(1), Str("foo"), Num(3)})

	msg := e.Encode([]Value{Num(1), Str("foo"), Num(4)})
	require.Len(t, msg, 5)
	assert.Equal(t, byte(0x04), msg[0])
	assert.Equal(t, math.Float32bits(4), uint32(msg[1])<<24|uint32(msg[2])<<16|uint32(msg[3])<<8|uint32(msg[4]))
}

func TestEncode_Identical(t *testing.T) {
	cur := []Value{Num(1), Str("a"), Num(2), Num(3), Num(4), Num(5), Num(6), Num(7), Num(8)}
	e := NewEncoder()
	e.Encode(cur)

	msg := e.Encode(cur)
	assert.Equal(t, []byte{0, 0}, msg)
}

func TestEncode_FirstMessage(t *testing.T) {
	msg, next := Encode(nil, []Value{Num(0), Str("ab")})
	assert.Len(t, next, 8)
	// Zero matches the implicit previous value, the string does not.
	assert.Equal(t, []byte{0x02, 0xFF, 0xFF, 2, 'a', 'b'}, msg)
}

func TestDecode_RoundTrip(t *testing.T) {
	ticks := [][]Value{
		{Num(1), Str("foo"), Num(3)},
		{Num(1), Str("foo"), Num(4)},
		{Num(-2.5), Str(""), Num(4), Num(9), Num(1e9), Str("progs/player.mdl"), Num(0), Num(7), Num(8), Num(10)},
		{Num(-2.5), Num(0), Num(4)},
	}

	e := NewEncoder()
	var d Decoder
	for i, cur := range ticks {
		msg := e.Encode(cur)
		got, err := d.Decode(msg)
		require.NoError(t, err, "tick %d", i)
		assert.Equal(t, e.State(), got, "tick %d", i)
		assert.Equal(t, cur, got[:len(cur)], "tick %d", i)
	}
}

func TestDecode_ShorterPrevious(t *testing.T) {
	prev := []Value{Num(1)}
	cur := []Value{Num(1), Num(2), Num(3), Num(4), Num(5), Num(6), Num(7), Num(8), Num(9)}
	msg, next := Encode(prev, cur)

	got, err := Decode(prev, msg)
	require.NoError(t, err)
	assert.Equal(t, next, got)
	assert.Len(t, got, 16)
}

func TestDecode_Truncated(t *testing.T) {
	msg, _ := Encode(nil, []Value{Num(1), Str("hello")})
	for n := 1; n < len(msg); n++ {
		_, err := Decode(nil, msg[:n])
		assert.ErrorIs(t, err, qdata.ErrFormat, "prefix %d", n)
	}
}

func TestValue_Normalize(t *testing.T) {
	nan := float32(math.NaN())
	assert.Equal(t, Num(0), Num(nan))

	msg, _ := Encode([]Value{Num(0)}, []Value{{num: nan}})
	assert.Equal(t, []byte{0}, msg)

	long := Str(strings.Repeat("x", 300))
	assert.Len(t, long.Text(), MaxStringLen)
	assert.True(t, long.IsString())
	assert.Equal(t, "x", Str("x").Interface())
	assert.Equal(t, float32(2), Num(2).Interface())
}

func TestEncoder_Reset(t *testing.T) {
	cur := []Value{Num(5)}
	e := NewEncoder()
	e.Encode(cur)
	assert.Equal(t, []byte{0}, e.Encode(cur))

	e.Reset()
	assert.Nil(t, e.State())
	assert.Equal(t, byte(0x01), e.Encode(cur)[0])
}
