package params

import (
	"fmt"
	"time"

	"github.com/smnsjas/go-hotline/wire"
)

// dateSize is the encoded length of a Date parameter.
const dateSize = 8

// Date is the protocol's 8-byte timestamp parameter:
//
//	┌───────────────────────────────────────────┐
//	│  Year (2 bytes)                           │
//	├───────────────────────────────────────────┤
//	│  Milliseconds (2 bytes)                   │
//	├───────────────────────────────────────────┤
//	│  Seconds since start of year (4 bytes)    │
//	└───────────────────────────────────────────┘
type Date struct {
	Year         uint16
	Milliseconds uint16
	Seconds      uint32
}

// NewDate converts t to its wire representation. Sub-second precision
// beyond milliseconds is discarded.
func NewDate(t time.Time) Date {
	t = t.UTC()
	startOfYear := time.Date(t.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
	return Date{
		Year:         uint16(t.Year()),
		Milliseconds: uint16(t.Nanosecond() / int(time.Millisecond)),
		Seconds:      uint32(t.Sub(startOfYear) / time.Second),
	}
}

// Time converts the wire representation back to a time.Time in UTC.
func (d Date) Time() time.Time {
	startOfYear := time.Date(int(d.Year), time.January, 1, 0, 0, 0, 0, time.UTC)
	return startOfYear.
		Add(time.Duration(d.Seconds) * time.Second).
		Add(time.Duration(d.Milliseconds) * time.Millisecond)
}

func (d Date) encode() []byte {
	w := wire.NewWriterSize(dateSize)
	w.WriteUint16(d.Year)
	w.WriteUint16(d.Milliseconds)
	w.WriteUint32(d.Seconds)
	return w.Bytes()
}

// NewDateParam creates a date parameter.
func NewDateParam(id FieldID, d Date) Parameter {
	return Parameter{ID: id, Data: d.encode()}
}

// GetDate decodes the first match as an 8-byte date.
func (b Block) GetDate(id FieldID) (Date, error) {
	p, ok := b.Get(id)
	if !ok {
		return Date{}, fmt.Errorf("%w: %d", ErrMissingField, id)
	}
	if len(p.Data) != dateSize {
		return Date{}, fmt.Errorf("%w: field %d has %d bytes, want %d", ErrTypeMismatch, id, len(p.Data), dateSize)
	}
	r := wire.NewReader(p.Data)
	var d Date
	var err error
	if d.Year, err = r.ReadUint16(); err != nil {
		return Date{}, err
	}
	if d.Milliseconds, err = r.ReadUint16(); err != nil {
		return Date{}, err
	}
	if d.Seconds, err = r.ReadUint32(); err != nil {
		return Date{}, err
	}
	return d, nil
}
