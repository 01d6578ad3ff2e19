// Package wire provides bounds-checked cursors over raw byte buffers.
//
// Every multi-byte integer in the Hotline protocol family is big-endian
// (network byte order), so the Reader and Writer here expose only
// big-endian accessors.
//
// The Reader is the single chokepoint protecting the decode layers from
// out-of-bounds access: every read checks the remaining length first and
// fails with ErrUnexpectedEnd if the buffer is short. Decoders built on
// top of it never index the underlying slice directly.
package wire

import (
	"encoding/binary"
	"errors"
)

// ErrUnexpectedEnd is returned when a read requests more bytes than remain
// in the buffer. It always propagates up as "this value could not be
// decoded"; no reader ever silently truncates.
var ErrUnexpectedEnd = errors.New("unexpected end of input")

// Reader is a read cursor over a byte slice.
// It never grows or copies the underlying buffer.
type Reader struct {
	buf []byte
	off int
}

// NewReader creates a Reader positioned at the start of buf.
func NewReader(buf []byte) *Reader {
	return &Reader{buf: buf}
}

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int {
	return len(r.buf) - r.off
}

// ReadUint8 reads a single byte.
func (r *Reader) ReadUint8() (uint8, error) {
	if r.Remaining() < 1 {
		return 0, ErrUnexpectedEnd
	}
	b := r.buf[r.off]
	r.off++
	return b, nil
}

// ReadUint16 reads a big-endian 16-bit integer.
func (r *Reader) ReadUint16() (uint16, error) {
	if r.Remaining() < 2 {
		return 0, ErrUnexpectedEnd
	}
	v := binary.BigEndian.Uint16(r.buf[r.off:])
	r.off += 2
	return v, nil
}

// ReadUint32 reads a big-endian 32-bit integer.
func (r *Reader) ReadUint32() (uint32, error) {
	if r.Remaining() < 4 {
		return 0, ErrUnexpectedEnd
	}
	v := binary.BigEndian.Uint32(r.buf[r.off:])
	r.off += 4
	return v, nil
}

// ReadBytes reads exactly n bytes and returns a copy, so the result stays
// valid after the caller discards or reuses the source buffer.
func (r *Reader) ReadBytes(n int) ([]byte, error) {
	if n < 0 || r.Remaining() < n {
		return nil, ErrUnexpectedEnd
	}
	out := make([]byte, n)
	copy(out, r.buf[r.off:r.off+n])
	r.off += n
	return out, nil
}

// Writer is a write cursor that appends to an internal buffer, growing it
// as needed. Writes cannot fail.
type Writer struct {
	buf []byte
}

// NewWriter creates an empty Writer.
func NewWriter() *Writer {
	return &Writer{}
}

// NewWriterSize creates a Writer with capacity for n bytes, avoiding
// reallocation when the final size is known up front.
func NewWriterSize(n int) *Writer {
	return &Writer{buf: make([]byte, 0, n)}
}

// Len returns the number of bytes written so far.
func (w *Writer) Len() int {
	return len(w.buf)
}

// Bytes returns the accumulated buffer. The Writer retains ownership;
// callers must not write to the Writer after mutating the returned slice.
func (w *Writer) Bytes() []byte {
	return w.buf
}

// WriteUint8 appends a single byte.
func (w *Writer) WriteUint8(v uint8) {
	w.buf = append(w.buf, v)
}

// WriteUint16 appends a big-endian 16-bit integer.
func (w *Writer) WriteUint16(v uint16) {
	w.buf = binary.BigEndian.AppendUint16(w.buf, v)
}

// WriteUint32 appends a big-endian 32-bit integer.
func (w *Writer) WriteUint32(v uint32) {
	w.buf = binary.BigEndian.AppendUint32(w.buf, v)
}

// WriteBytes appends raw bytes.
func (w *Writer) WriteBytes(p []byte) {
	w.buf = append(w.buf, p...)
}
