package fragments

import (
	"testing"

	"github.com/smnsjas/go-hotline/frame"
)

// FuzzAssemblerAdd feeds arbitrary frames to an assembler. No input may
// panic it or leave it refusing further work.
func FuzzAssemblerAdd(f *testing.F) {
	f.Add(uint8(0), uint16(105), uint32(1), uint32(7), uint32(7), []byte{0x00, 0x00})
	f.Add(uint8(1), uint16(0), uint32(2), uint32(100), uint32(10), []byte("fragment"))
	f.Add(uint8(0), uint16(500), uint32(3), uint32(0), uint32(0), []byte{})

	f.Fuzz(func(t *testing.T, isReply uint8, typ uint16, id, total, dataSize uint32, payload []byte) {
		asm := NewAssembler()
		fr := &frame.Frame{
			IsReply:   isReply,
			Type:      typ,
			ID:        id,
			TotalSize: total,
			DataSize:  dataSize,
			Payload:   payload,
		}
		_, _ = asm.Add(fr)

		// Feed it twice; a second fragment of the same ID exercises
		// the continuation path.
		_, _ = asm.Add(fr)
	})
}
