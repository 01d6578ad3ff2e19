// Package frame implements the fixed 20-byte transaction frame header and
// the framing of payload bytes behind it.
//
// A frame is the atomic unit on the wire. Its header layout:
//
//	┌─────────────────────────────────────────────────────────┐
//	│  Flags (1 byte)                                         │
//	├─────────────────────────────────────────────────────────┤
//	│  IsReply (1 byte) - 0 request, 1 reply                  │
//	├─────────────────────────────────────────────────────────┤
//	│  Type (2 bytes) - transaction type                      │
//	├─────────────────────────────────────────────────────────┤
//	│  ID (4 bytes) - correlates requests with replies        │
//	├─────────────────────────────────────────────────────────┤
//	│  ErrorCode (4 bytes) - nonzero only in error replies    │
//	├─────────────────────────────────────────────────────────┤
//	│  TotalSize (4 bytes) - full transaction payload length  │
//	├─────────────────────────────────────────────────────────┤
//	│  DataSize (4 bytes) - payload length in this frame      │
//	└─────────────────────────────────────────────────────────┘
//
// All multi-byte integers are big-endian. TotalSize and DataSize differ
// only when a transaction is split across frames; reassembly lives in the
// fragments package.
package frame

import (
	"errors"
	"fmt"
	"io"

	"github.com/smnsjas/go-hotline/wire"
)

// HeaderSize is the fixed length of the frame header in bytes.
const HeaderSize = 20

// DefaultMaxPayloadSize caps the per-frame payload accepted from a peer.
// Prevents a hostile DataSize from forcing an unbounded allocation.
const DefaultMaxPayloadSize = 1 << 20 // 1 MiB

var (
	// ErrInvalidFrame is returned when header fields are internally
	// inconsistent, such as DataSize exceeding TotalSize.
	ErrInvalidFrame = errors.New("invalid frame")
	// ErrPayloadTooLarge is returned when a header declares a payload
	// beyond the configured limit.
	ErrPayloadTooLarge = errors.New("frame payload too large")
)

// Frame is one wire frame: a header plus the payload bytes it carries.
type Frame struct {
	Flags     uint8
	IsReply   uint8
	Type      uint16
	ID        uint32
	ErrorCode uint32
	TotalSize uint32
	DataSize  uint32
	Payload   []byte
}

// Encode serializes the frame, header followed by payload. DataSize is
// taken from len(Payload); a zero TotalSize is filled in to match, which
// is the common single-frame case.
func (f *Frame) Encode() []byte {
	dataSize := uint32(len(f.Payload))
	totalSize := f.TotalSize
	if totalSize == 0 {
		totalSize = dataSize
	}

	w := wire.NewWriterSize(HeaderSize + len(f.Payload))
	w.WriteUint8(f.Flags)
	w.WriteUint8(f.IsReply)
	w.WriteUint16(f.Type)
	w.WriteUint32(f.ID)
	w.WriteUint32(f.ErrorCode)
	w.WriteUint32(totalSize)
	w.WriteUint32(dataSize)
	w.WriteBytes(f.Payload)
	return w.Bytes()
}

// Decode parses a frame from data. The payload must be fully present;
// a short buffer yields wire.ErrUnexpectedEnd, while inconsistent header
// fields yield ErrInvalidFrame. Trailing bytes past the payload are an
// error so stream desync is caught early.
func Decode(data []byte) (*Frame, error) {
	r := wire.NewReader(data)

	f, err := decodeHeader(r)
	if err != nil {
		return nil, err
	}

	f.Payload, err = r.ReadBytes(int(f.DataSize))
	if err != nil {
		return nil, fmt.Errorf("read payload (%d bytes): %w", f.DataSize, err)
	}
	if r.Remaining() != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes after payload", ErrInvalidFrame, r.Remaining())
	}
	return f, nil
}

// DecodeHeader parses only the 20-byte header from data.
func DecodeHeader(data []byte) (*Frame, error) {
	return decodeHeader(wire.NewReader(data))
}

func decodeHeader(r *wire.Reader) (*Frame, error) {
	var f Frame
	var err error
	if f.Flags, err = r.ReadUint8(); err != nil {
		return nil, fmt.Errorf("read flags: %w", err)
	}
	if f.IsReply, err = r.ReadUint8(); err != nil {
		return nil, fmt.Errorf("read is-reply: %w", err)
	}
	if f.Type, err = r.ReadUint16(); err != nil {
		return nil, fmt.Errorf("read type: %w", err)
	}
	if f.ID, err = r.ReadUint32(); err != nil {
		return nil, fmt.Errorf("read id: %w", err)
	}
	if f.ErrorCode, err = r.ReadUint32(); err != nil {
		return nil, fmt.Errorf("read error code: %w", err)
	}
	if f.TotalSize, err = r.ReadUint32(); err != nil {
		return nil, fmt.Errorf("read total size: %w", err)
	}
	if f.DataSize, err = r.ReadUint32(); err != nil {
		return nil, fmt.Errorf("read data size: %w", err)
	}
	if f.DataSize > f.TotalSize {
		return nil, fmt.Errorf("%w: data size %d exceeds total size %d",
			ErrInvalidFrame, f.DataSize, f.TotalSize)
	}
	return &f, nil
}

// Reader reads frames from a byte stream, enforcing a payload size limit.
type Reader struct {
	r          io.Reader
	maxPayload uint32
	header     [HeaderSize]byte
}

// NewReader creates a frame reader with DefaultMaxPayloadSize.
func NewReader(r io.Reader) *Reader {
	return NewReaderWithLimit(r, DefaultMaxPayloadSize)
}

// NewReaderWithLimit creates a frame reader with an explicit per-frame
// payload cap. A maxPayload of 0 means DefaultMaxPayloadSize.
func NewReaderWithLimit(r io.Reader, maxPayload uint32) *Reader {
	if maxPayload == 0 {
		maxPayload = DefaultMaxPayloadSize
	}
	return &Reader{r: r, maxPayload: maxPayload}
}

// ReadFrame reads exactly one frame: the 20-byte header, then DataSize
// payload bytes. A stream that ends mid-frame is io.ErrUnexpectedEOF.
// After an error the stream position is undefined and the connection
// should be torn down.
func (fr *Reader) ReadFrame() (*Frame, error) {
	if _, err := io.ReadFull(fr.r, fr.header[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("read frame header: %w", err)
	}

	f, err := DecodeHeader(fr.header[:])
	if err != nil {
		return nil, err
	}
	if f.DataSize > fr.maxPayload {
		return nil, fmt.Errorf("%w: %d bytes exceeds limit %d",
			ErrPayloadTooLarge, f.DataSize, fr.maxPayload)
	}

	f.Payload = make([]byte, f.DataSize)
	if _, err := io.ReadFull(fr.r, f.Payload); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, fmt.Errorf("read frame payload: %w", err)
	}
	return f, nil
}

// Write serializes the frame to w in one call. The caller is responsible
// for serializing concurrent writers; interleaved partial frames corrupt
// the stream.
func (f *Frame) Write(w io.Writer) error {
	if _, err := w.Write(f.Encode()); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}
