// Package params implements the typed parameter block carried by a
// transaction.
//
// A parameter block is an ordered sequence of (field id, data) pairs with
// no self-describing schema:
//
//	┌─────────────────────────────────────────────────────────┐
//	│  Count (2 bytes) - Number of parameters                 │
//	├─────────────────────────────────────────────────────────┤
//	│  FieldID (2 bytes)                                      │
//	├─────────────────────────────────────────────────────────┤
//	│  Length (2 bytes)                                       │
//	├─────────────────────────────────────────────────────────┤
//	│  Data (Length bytes)                                    │
//	├─────────────────────────────────────────────────────────┤
//	│  ... repeated Count times                               │
//	└─────────────────────────────────────────────────────────┘
//
// All multi-byte integers are big-endian.
//
// The block is decoded once into untyped raw bytes; callers then pull
// values out through the typed accessors (String, Uint16, Uint32, Date,
// Block), which fail with ErrTypeMismatch when the stored length does not
// match the requested fixed-width type. This keeps unknown fields intact
// for forward compatibility while giving known fields a safe surface.
//
// Order is preserved for wire compatibility, and a field id may legally
// appear more than once; GetAll returns every occurrence in order.
package params

import (
	"errors"
	"fmt"

	"github.com/smnsjas/go-hotline/wire"
)

var (
	// ErrInvalidBlock is returned when a parameter block's declared
	// lengths are inconsistent with the bytes actually present.
	ErrInvalidBlock = errors.New("invalid parameter block")
	// ErrTypeMismatch is returned when a typed accessor is used on a
	// parameter whose byte length does not match the requested type.
	ErrTypeMismatch = errors.New("parameter type mismatch")
	// ErrMissingField is returned when a required field id is absent.
	ErrMissingField = errors.New("missing field")
)

// FieldID identifies the semantic meaning of a parameter.
type FieldID uint16

// Field ids defined by the protocol. The core never interprets them; they
// are provided for the business-logic collaborators that do.
const (
	FieldError           FieldID = 100
	FieldData            FieldID = 101
	FieldUserName        FieldID = 102
	FieldUserID          FieldID = 103
	FieldUserIconID      FieldID = 104
	FieldUserLogin       FieldID = 105
	FieldUserPassword    FieldID = 106
	FieldReferenceNumber FieldID = 107
	FieldTransferSize    FieldID = 108
	FieldChatOptions     FieldID = 109
	FieldUserAccess      FieldID = 110
	FieldChatID          FieldID = 114
	FieldChatSubject     FieldID = 115
	FieldWaitingCount    FieldID = 116
	FieldVersion         FieldID = 160
)

// Parameter is a single (field id, raw bytes) entry.
type Parameter struct {
	ID   FieldID
	Data []byte
}

// New creates a parameter holding raw bytes.
func New(id FieldID, data []byte) Parameter {
	return Parameter{ID: id, Data: data}
}

// NewString creates a parameter holding the raw bytes of s.
// No charset conversion is applied; legacy clients use MacRoman, and
// transcoding is a collaborator concern.
func NewString(id FieldID, s string) Parameter {
	return Parameter{ID: id, Data: []byte(s)}
}

// NewUint16 creates a 2-byte big-endian integer parameter.
func NewUint16(id FieldID, v uint16) Parameter {
	w := wire.NewWriterSize(2)
	w.WriteUint16(v)
	return Parameter{ID: id, Data: w.Bytes()}
}

// NewUint32 creates a 4-byte big-endian integer parameter.
func NewUint32(id FieldID, v uint32) Parameter {
	w := wire.NewWriterSize(4)
	w.WriteUint32(v)
	return Parameter{ID: id, Data: w.Bytes()}
}

// Block is an ordered parameter list.
type Block []Parameter

// DecodeBlock decodes a complete parameter block from data.
// It fails with ErrInvalidBlock if a declared length would read past the
// end of data. Trailing bytes after the declared count are also an error:
// a reassembled transaction owns its whole payload.
func DecodeBlock(data []byte) (Block, error) {
	r := wire.NewReader(data)

	count, err := r.ReadUint16()
	if err != nil {
		return nil, fmt.Errorf("%w: read count: %w", ErrInvalidBlock, err)
	}

	block := make(Block, 0, count)
	for i := 0; i < int(count); i++ {
		id, err := r.ReadUint16()
		if err != nil {
			return nil, fmt.Errorf("%w: parameter %d: read field id: %w", ErrInvalidBlock, i, err)
		}
		length, err := r.ReadUint16()
		if err != nil {
			return nil, fmt.Errorf("%w: parameter %d: read length: %w", ErrInvalidBlock, i, err)
		}
		value, err := r.ReadBytes(int(length))
		if err != nil {
			return nil, fmt.Errorf("%w: parameter %d (field %d): declared %d bytes, %d remain",
				ErrInvalidBlock, i, id, length, r.Remaining())
		}
		block = append(block, Parameter{ID: FieldID(id), Data: value})
	}

	if r.Remaining() != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes after %d parameters",
			ErrInvalidBlock, r.Remaining(), count)
	}

	return block, nil
}

// Encode serializes the block. The result is deterministic: the count
// followed by each parameter in order. Its length becomes the frame
// header's total-size when the block is sent.
func (b Block) Encode() []byte {
	w := wire.NewWriterSize(b.EncodedLen())
	w.WriteUint16(uint16(len(b)))
	for _, p := range b {
		w.WriteUint16(uint16(p.ID))
		w.WriteUint16(uint16(len(p.Data)))
		w.WriteBytes(p.Data)
	}
	return w.Bytes()
}

// EncodedLen returns the exact byte length Encode will produce.
func (b Block) EncodedLen() int {
	n := 2
	for _, p := range b {
		n += 4 + len(p.Data)
	}
	return n
}

// Get returns the first parameter with the given field id.
func (b Block) Get(id FieldID) (Parameter, bool) {
	for _, p := range b {
		if p.ID == id {
			return p, true
		}
	}
	return Parameter{}, false
}

// GetAll returns every parameter with the given field id, in wire order.
// Some transaction types legitimately repeat a field.
func (b Block) GetAll(id FieldID) []Parameter {
	var out []Parameter
	for _, p := range b {
		if p.ID == id {
			out = append(out, p)
		}
	}
	return out
}

// GetString returns the first match's raw bytes as a string.
// No charset validation is performed at this layer.
func (b Block) GetString(id FieldID) (string, error) {
	p, ok := b.Get(id)
	if !ok {
		return "", fmt.Errorf("%w: %d", ErrMissingField, id)
	}
	return string(p.Data), nil
}

// GetBytes returns the first match's raw bytes.
func (b Block) GetBytes(id FieldID) ([]byte, error) {
	p, ok := b.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrMissingField, id)
	}
	return p.Data, nil
}

// GetUint16 decodes the first match as a big-endian 16-bit integer.
// A stored length other than exactly 2 is ErrTypeMismatch; the accessor
// never reads a prefix of a longer value.
func (b Block) GetUint16(id FieldID) (uint16, error) {
	p, ok := b.Get(id)
	if !ok {
		return 0, fmt.Errorf("%w: %d", ErrMissingField, id)
	}
	if len(p.Data) != 2 {
		return 0, fmt.Errorf("%w: field %d has %d bytes, want 2", ErrTypeMismatch, id, len(p.Data))
	}
	v, err := wire.NewReader(p.Data).ReadUint16()
	if err != nil {
		return 0, err
	}
	return v, nil
}

// GetUint32 decodes the first match as a big-endian 32-bit integer.
func (b Block) GetUint32(id FieldID) (uint32, error) {
	p, ok := b.Get(id)
	if !ok {
		return 0, fmt.Errorf("%w: %d", ErrMissingField, id)
	}
	if len(p.Data) != 4 {
		return 0, fmt.Errorf("%w: field %d has %d bytes, want 4", ErrTypeMismatch, id, len(p.Data))
	}
	v, err := wire.NewReader(p.Data).ReadUint32()
	if err != nil {
		return 0, err
	}
	return v, nil
}

// GetBlock decodes the first match's bytes as a nested parameter block.
func (b Block) GetBlock(id FieldID) (Block, error) {
	p, ok := b.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrMissingField, id)
	}
	return DecodeBlock(p.Data)
}
