package fragments

import (
	"errors"
	"testing"
	"time"

	"github.com/smnsjas/go-hotline/params"
	"github.com/smnsjas/go-hotline/transaction"
)

func chatTransaction(id uint32, text string) *transaction.Transaction {
	t := transaction.NewRequest(transaction.TypeSendChat,
		params.NewString(params.FieldData, text))
	t.ID = id
	return t
}

func TestSplit(t *testing.T) {
	tests := []struct {
		name       string
		payloadLen int
		maxSize    int
		wantFrames int
	}{
		{
			name:       "fits in one frame",
			payloadLen: 10,
			maxSize:    100,
			wantFrames: 1,
		},
		{
			name:       "exact multiple of fragment size",
			payloadLen: 94, // block overhead of 6 brings the payload to 100
			maxSize:    50,
			wantFrames: 2,
		},
		{
			name:       "one byte over a multiple",
			payloadLen: 95,
			maxSize:    50,
			wantFrames: 3,
		},
		{
			name:       "one byte over a single frame",
			payloadLen: 95, // payload of 101 against a cap of 100
			maxSize:    100,
			wantFrames: 2,
		},
		{
			name:       "empty parameter block",
			payloadLen: -1,
			maxSize:    50,
			wantFrames: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var tx *transaction.Transaction
			if tt.payloadLen < 0 {
				tx = transaction.NewRequest(transaction.TypeConnectionKeepAlive)
				tx.ID = 1
			} else {
				tx = chatTransaction(1, string(make([]byte, tt.payloadLen)))
			}

			frames := NewSplitterWithSize(tt.maxSize).Split(tx)
			if len(frames) != tt.wantFrames {
				t.Fatalf("Split() produced %d frames, want %d", len(frames), tt.wantFrames)
			}

			total := frames[0].TotalSize
			var sum uint32
			for i, f := range frames {
				if f.ID != tx.ID {
					t.Errorf("frame %d: ID = %d, want %d", i, f.ID, tx.ID)
				}
				if f.Type != uint16(tx.Type) {
					t.Errorf("frame %d: Type = %d, want %d", i, f.Type, tx.Type)
				}
				if f.TotalSize != total {
					t.Errorf("frame %d: TotalSize = %d, want %d", i, f.TotalSize, total)
				}
				if f.DataSize != uint32(len(f.Payload)) {
					t.Errorf("frame %d: DataSize = %d, payload is %d", i, f.DataSize, len(f.Payload))
				}
				if i < len(frames)-1 && len(f.Payload) != tt.maxSize {
					t.Errorf("frame %d: payload %d bytes, want full %d", i, len(f.Payload), tt.maxSize)
				}
				sum += f.DataSize
			}
			if sum != total {
				t.Errorf("fragment sizes sum to %d, TotalSize is %d", sum, total)
			}
		})
	}
}

func TestSplitAssembleRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		maxSize int
		text    string
	}{
		{"single frame", DefaultMaxFragmentSize, "hello"},
		{"several frames", 16, "a rather longer chat line that will not fit in one fragment"},
		{"tiny fragments", 1, "split to single bytes"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx := chatTransaction(99, tt.text)
			frames := NewSplitterWithSize(tt.maxSize).Split(tx)

			asm := NewAssembler()
			var got *transaction.Transaction
			for i, f := range frames {
				out, err := asm.Add(f)
				if err != nil {
					t.Fatalf("Add() frame %d error = %v", i, err)
				}
				if i < len(frames)-1 {
					if out != nil {
						t.Fatalf("Add() frame %d returned a transaction early", i)
					}
				} else {
					got = out
				}
			}

			if got == nil {
				t.Fatal("final fragment did not complete the transaction")
			}
			if got.ID != tx.ID || got.Type != tx.Type {
				t.Errorf("reassembled ID, Type = %d, %v; want %d, %v", got.ID, got.Type, tx.ID, tx.Type)
			}
			text, err := got.Params.GetString(params.FieldData)
			if err != nil || text != tt.text {
				t.Errorf("reassembled text = %q, %v; want %q", text, err, tt.text)
			}
			if asm.Pending() != 0 {
				t.Errorf("Pending() = %d after completion, want 0", asm.Pending())
			}
		})
	}
}

func TestInterleavedTransactions(t *testing.T) {
	first := chatTransaction(1, "first transaction spread over fragments")
	second := chatTransaction(2, "second transaction also fragmented here")

	splitter := NewSplitterWithSize(16)
	f1 := splitter.Split(first)
	f2 := splitter.Split(second)

	asm := NewAssembler()
	var completed []*transaction.Transaction

	// Alternate fragments of the two transactions.
	for i := 0; i < len(f1) || i < len(f2); i++ {
		for _, f := range []int{0, 1} {
			frames := f1
			if f == 1 {
				frames = f2
			}
			if i >= len(frames) {
				continue
			}
			out, err := asm.Add(frames[i])
			if err != nil {
				t.Fatalf("Add() error = %v", err)
			}
			if out != nil {
				completed = append(completed, out)
			}
		}
	}

	if len(completed) != 2 {
		t.Fatalf("completed %d transactions, want 2", len(completed))
	}
	ids := map[uint32]bool{}
	for _, tx := range completed {
		ids[tx.ID] = true
	}
	if !ids[1] || !ids[2] {
		t.Errorf("completed IDs = %v, want 1 and 2", ids)
	}
}

func TestInconsistentTotal(t *testing.T) {
	tx := chatTransaction(5, "a transaction that spans frames")
	frames := NewSplitterWithSize(16).Split(tx)
	if len(frames) < 2 {
		t.Fatal("need at least two fragments for this test")
	}

	asm := NewAssembler()
	if _, err := asm.Add(frames[0]); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	lying := *frames[1]
	lying.TotalSize = frames[1].TotalSize + 1
	if _, err := asm.Add(&lying); !errors.Is(err, ErrInconsistentTotal) {
		t.Fatalf("Add() error = %v, want ErrInconsistentTotal", err)
	}
	if asm.Pending() != 0 {
		t.Errorf("Pending() = %d after purge, want 0", asm.Pending())
	}

	// The assembler must stay usable: the same transaction can be
	// resent from scratch.
	for i, f := range frames {
		out, err := asm.Add(f)
		if err != nil {
			t.Fatalf("Add() after purge, frame %d error = %v", i, err)
		}
		if i == len(frames)-1 && out == nil {
			t.Error("resent transaction did not complete")
		}
	}
}

func TestFragmentOverflow(t *testing.T) {
	tx := chatTransaction(6, "payload that spans multiple frames")
	frames := NewSplitterWithSize(16).Split(tx)

	asm := NewAssembler()
	if _, err := asm.Add(frames[0]); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	tooBig := *frames[1]
	tooBig.Payload = make([]byte, int(frames[0].TotalSize))
	tooBig.DataSize = uint32(len(tooBig.Payload))
	if _, err := asm.Add(&tooBig); !errors.Is(err, ErrFragmentOverflow) {
		t.Errorf("Add() error = %v, want ErrFragmentOverflow", err)
	}
}

func TestAssemblerLimits(t *testing.T) {
	t.Run("pending limit", func(t *testing.T) {
		asm := NewAssemblerWithLimits(2, 0)
		splitter := NewSplitterWithSize(16)

		for id := uint32(1); id <= 2; id++ {
			f := splitter.Split(chatTransaction(id, "spread across several fragments"))[0]
			if _, err := asm.Add(f); err != nil {
				t.Fatalf("Add() error = %v", err)
			}
		}

		f := splitter.Split(chatTransaction(3, "spread across several fragments"))[0]
		if _, err := asm.Add(f); !errors.Is(err, ErrTooManyPending) {
			t.Errorf("Add() error = %v, want ErrTooManyPending", err)
		}
	})

	t.Run("total size limit", func(t *testing.T) {
		asm := NewAssemblerWithLimits(0, 64)
		f := NewSplitterWithSize(16).Split(chatTransaction(1, string(make([]byte, 200))))[0]
		if _, err := asm.Add(f); !errors.Is(err, ErrTransactionTooLarge) {
			t.Errorf("Add() error = %v, want ErrTransactionTooLarge", err)
		}
	})
}

func TestDropStale(t *testing.T) {
	asm := NewAssembler()
	splitter := NewSplitterWithSize(16)

	stale := splitter.Split(chatTransaction(1, "never finishes, goes stale"))[0]
	if _, err := asm.Add(stale); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	if dropped := asm.DropStale(time.Minute); len(dropped) != 0 {
		t.Errorf("DropStale(1m) dropped %v, want nothing", dropped)
	}
	dropped := asm.DropStale(0)
	if len(dropped) != 1 || dropped[0] != 1 {
		t.Errorf("DropStale(0) = %v, want [1]", dropped)
	}
	if asm.Pending() != 0 {
		t.Errorf("Pending() = %d, want 0", asm.Pending())
	}
}

func TestMalformedPayloadAfterReassembly(t *testing.T) {
	asm := NewAssembler()
	frames := NewSplitterWithSize(16).Split(chatTransaction(7, "valid until corrupted"))

	// Corrupt the parameter length in the first fragment so the
	// reassembled block under-runs.
	first := *frames[0]
	corrupted := append([]byte{}, first.Payload...)
	corrupted[5] ^= 0xFF
	first.Payload = corrupted

	var err error
	if _, err = asm.Add(&first); err != nil {
		t.Fatalf("Add() first fragment error = %v", err)
	}
	var out *transaction.Transaction
	for _, f := range frames[1:] {
		if out, err = asm.Add(f); err != nil {
			break
		}
	}
	if !errors.Is(err, params.ErrInvalidBlock) {
		t.Errorf("Add() error = %v, want params.ErrInvalidBlock", err)
	}
	if out != nil {
		t.Error("Add() returned a transaction from a corrupt payload")
	}
}
