package qdata

import (
	"encoding/binary"
	"math"
)

// Reader is a seekable cursor over an in-memory buffer.
type Reader struct {
	buf []byte
	pos int
}

// NewReader returns a Reader positioned at the start of buf.
func NewReader(buf []byte) *Reader {
	return &Reader{buf: buf}
}

// Read consumes exactly n bytes.
func (r *Reader) Read(n int) ([]byte, error) {
	if n < 0 || r.pos+n > len(r.buf) {
		return nil, FormatErrorf("premature end of data: need %d bytes at offset %d, have %d", n, r.pos, len(r.buf)-r.pos)
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

// Rest consumes everything up to the end of the buffer.
func (r *Reader) Rest() []byte {
	b := r.buf[r.pos:]
	r.pos = len(r.buf)
	return b
}

// Slice returns buf[ofs:ofs+size] without moving the cursor.
func (r *Reader) Slice(ofs, size int) ([]byte, error) {
	if ofs < 0 || size < 0 || ofs+size > len(r.buf) {
		return nil, FormatErrorf("range [%d, %d) outside buffer of %d bytes", ofs, ofs+size, len(r.buf))
	}
	return r.buf[ofs : ofs+size], nil
}

// Seek moves the cursor to an absolute offset.
func (r *Reader) Seek(pos int) error {
	if pos < 0 || pos > len(r.buf) {
		return FormatErrorf("seek to %d outside buffer of %d bytes", pos, len(r.buf))
	}
	r.pos = pos
	return nil
}

// Tell returns the cursor position.
func (r *Reader) Tell() int { return r.pos }

// Len returns the full buffer length.
func (r *Reader) Len() int { return len(r.buf) }

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int { return len(r.buf) - r.pos }

// Int32 reads a little-endian signed 32-bit integer.
func (r *Reader) Int32() (int32, error) {
	b, err := r.Read(4)
	if err != nil {
		return 0, err
	}
	return int32(binary.LittleEndian.Uint32(b)), nil
}

// Float32 reads a little-endian IEEE-754 single.
func (r *Reader) Float32() (float32, error) {
	b, err := r.Read(4)
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(binary.LittleEndian.Uint32(b)), nil
}

// Writer is a growable buffer that supports seeking back to patch
// previously written placeholders.
type Writer struct {
	buf []byte
	pos int
}

// NewWriter returns an empty Writer.
func NewWriter() *Writer {
	return &Writer{}
}

// Write writes p at the cursor, overwriting or extending the buffer.
func (w *Writer) Write(p []byte) {
	end := w.pos + len(p)
	if end > len(w.buf) {
		w.buf = append(w.buf, make([]byte, end-len(w.buf))...)
	}
	copy(w.buf[w.pos:], p)
	w.pos = end
}

// Pad writes the zero bytes needed to round a blob of n bytes up to align.
func (w *Writer) Pad(n, align int) {
	if align <= 1 {
		return
	}
	if pad := (align - n%align) % align; pad > 0 {
		w.Write(make([]byte, pad))
	}
}

// Int32 writes a little-endian signed 32-bit integer.
func (w *Writer) Int32(v int32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], uint32(v))
	w.Write(b[:])
}

// Float32 writes a little-endian IEEE-754 single.
func (w *Writer) Float32(v float32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], math.Float32bits(v))
	w.Write(b[:])
}

// Seek moves the cursor. Seeking past the end is allowed; the gap is
// zero-filled on the next Write.
func (w *Writer) Seek(pos int) { w.pos = pos }

// Tell returns the cursor position.
func (w *Writer) Tell() int { return w.pos }

// End returns the end of the written data.
func (w *Writer) End() int { return len(w.buf) }

// Bytes returns the written buffer.
func (w *Writer) Bytes() []byte { return w.buf }
