// Package delta compresses per-tick snapshots against the previous snapshot
// sent to the same recipient.
//
// A snapshot is padded to a multiple of 8 values. Each group of 8 becomes a
// header byte, where bit i marks item i as changed, followed by the changed
// items: a 4-byte big-endian float, or for strings the marker 0xFF 0xFF, a
// length byte and the string bytes. The marker is a NaN bit pattern, and
// NaN never appears as a payload because numbers are normalized on entry.
package delta

import (
	"encoding/binary"
	"math"

	"github.com/quakeview/server/pkg/qdata"
)

const (
	groupSize = 8

	// MaxStringLen is the longest string a value can carry.
	MaxStringLen = 255
)

var stringMarker = [2]byte{0xFF, 0xFF}

// Value is a snapshot item: a number or a short string. The zero Value is
// the number 0.
type Value struct {
	num   float32
	str   string
	isStr bool
}

// Num returns a numeric value. NaN becomes 0.
func Num(f float32) Value {
	if f != f {
		f = 0
	}
	return Value{num: f}
}

// Str returns a string value, truncated to MaxStringLen bytes.
func Str(s string) Value {
	if len(s) > MaxStringLen {
		s = s[:MaxStringLen]
	}
	return Value{str: s, isStr: true}
}

// IsString reports whether v holds a string.
func (v Value) IsString() bool { return v.isStr }

// Float returns the numeric payload, 0 for strings.
func (v Value) Float() float32 { return v.num }

// Text returns the string payload, "" for numbers.
func (v Value) Text() string { return v.str }

// Interface returns v as float32 or string, for JSON and logging.
func (v Value) Interface() any {
	if v.isStr {
		return v.str
	}
	return v.num
}

func pad(values []Value, n int) []Value {
	out := make([]Value, n)
	copy(out, values)
	return out
}

func paddedLen(n int) int {
	return (n + groupSize - 1) / groupSize * groupSize
}

// Encode encodes cur against prev and returns the message and the padded
// list that becomes the recipient's new previous state.
func Encode(prev, cur []Value) ([]byte, []Value) {
	n := paddedLen(len(cur))
	next := pad(cur, n)
	for i := range next {
		// Values built without Num could still carry NaN.
		if !next[i].isStr && next[i].num != next[i].num {
			next[i].num = 0
		}
	}
	old := pad(prev, n)

	msg := make([]byte, 0, n/groupSize)
	for g := 0; g < n; g += groupSize {
		hdr := len(msg)
		msg = append(msg, 0)
		for i := 0; i < groupSize; i++ {
			v := next[g+i]
			if v == old[g+i] {
				continue
			}
			msg[hdr] |= 1 << i
			msg = appendValue(msg, v)
		}
	}
	return msg, next
}

func appendValue(msg []byte, v Value) []byte {
	if v.isStr {
		msg = append(msg, stringMarker[:]...)
		msg = append(msg, byte(len(v.str)))
		return append(msg, v.str...)
	}
	return binary.BigEndian.AppendUint32(msg, math.Float32bits(v.num))
}

// Decode applies msg to prev and returns the new list, whose length is 8
// times the number of groups in msg.
func Decode(prev []Value, msg []byte) ([]Value, error) {
	var out []Value
	for pos := 0; pos < len(msg); {
		hdr := msg[pos]
		pos++
		base := len(out)
		for i := 0; i < groupSize; i++ {
			v := Value{}
			if base+i < len(prev) {
				v = prev[base+i]
			}
			if hdr&(1<<i) != 0 {
				var err error
				if v, pos, err = readValue(msg, pos); err != nil {
					return nil, err
				}
			}
			out = append(out, v)
		}
	}
	return out, nil
}

func readValue(msg []byte, pos int) (Value, int, error) {
	if pos+2 > len(msg) {
		return Value{}, pos, qdata.FormatErrorf("delta message truncated at %d", pos)
	}
	if msg[pos] == stringMarker[0] && msg[pos+1] == stringMarker[1] {
		pos += 2
		if pos >= len(msg) {
			return Value{}, pos, qdata.FormatErrorf("delta string length missing at %d", pos)
		}
		n := int(msg[pos])
		pos++
		if pos+n > len(msg) {
			return Value{}, pos, qdata.FormatErrorf("delta string of %d bytes truncated at %d", n, pos)
		}
		return Value{str: string(msg[pos : pos+n]), isStr: true}, pos + n, nil
	}
	if pos+4 > len(msg) {
		return Value{}, pos, qdata.FormatErrorf("delta float truncated at %d", pos)
	}
	return Num(math.Float32frombits(binary.BigEndian.Uint32(msg[pos:]))), pos + 4, nil
}

// Encoder holds one recipient's previous snapshot. It is not safe for
// concurrent use; the tick loop owns it.
type Encoder struct {
	prev []Value
}

// NewEncoder returns an Encoder whose previous state is empty, so the
// first message carries every non-zero value.
func NewEncoder() *Encoder {
	return &Encoder{}
}

// Encode encodes cur and makes it the previous state.
func (e *Encoder) Encode(cur []Value) []byte {
	msg, next := Encode(e.prev, cur)
	e.prev = next
	return msg
}

// Reset forgets the previous state; the next message is a full resync.
func (e *Encoder) Reset() {
	e.prev = nil
}

// State returns the previous state.
func (e *Encoder) State() []Value {
	return e.prev
}

// Decoder is the receiving side of an Encoder.
type Decoder struct {
	prev []Value
}

// Decode applies msg to the decoder's state.
func (d *Decoder) Decode(msg []byte) ([]Value, error) {
	out, err := Decode(d.prev, msg)
	if err != nil {
		return nil, err
	}
	d.prev = out
	return out, nil
}

// Reset forgets the decoder's state.
func (d *Decoder) Reset() {
	d.prev = nil
}
