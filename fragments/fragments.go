// Package fragments splits outbound transactions into frames and
// reassembles inbound frames into transactions.
//
// A transaction whose encoded parameter block exceeds the frame payload
// limit is carried by several frames sharing one transaction ID. Every
// frame repeats the header, with TotalSize holding the full payload
// length and DataSize the slice carried by that frame:
//
//	payload:   ├────────────── TotalSize ──────────────┤
//	frame 1:   ├── DataSize ──┤
//	frame 2:                  ├── DataSize ──┤
//	frame 3:                                 ├─ rest ──┤
//
// The Assembler accumulates slices per transaction ID until the declared
// total is reached, then decodes the parameter block. Fragments of
// different transactions may interleave; slices of one transaction must
// arrive in order, as they carry no offsets.
package fragments

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/smnsjas/go-hotline/frame"
	"github.com/smnsjas/go-hotline/params"
	"github.com/smnsjas/go-hotline/transaction"
)

// DefaultMaxFragmentSize is the default per-frame payload size used when
// splitting outbound transactions.
const DefaultMaxFragmentSize = 32768

// Reassembly limits. These bound the memory a peer can pin with
// incomplete transactions.
const (
	DefaultMaxPendingTransactions = 1000
	DefaultMaxTransactionSize     = 8 << 20 // 8 MiB
)

var (
	// ErrInconsistentTotal is returned when a continuation fragment
	// declares a different TotalSize than the fragment that opened the
	// transaction. The partial transaction is discarded; other
	// transactions are unaffected.
	ErrInconsistentTotal = errors.New("inconsistent fragment total size")
	// ErrFragmentOverflow is returned when accumulated fragment data
	// would exceed the declared total.
	ErrFragmentOverflow = errors.New("fragment data exceeds declared total")
	// ErrTooManyPending is returned when a new transaction would exceed
	// the pending-transaction limit.
	ErrTooManyPending = errors.New("too many pending transactions")
	// ErrTransactionTooLarge is returned when a fragment declares a
	// total beyond the configured limit.
	ErrTransactionTooLarge = errors.New("transaction too large")
)

// Splitter turns transactions into wire frames.
type Splitter struct {
	maxFragmentSize int
}

// NewSplitter creates a splitter using DefaultMaxFragmentSize.
func NewSplitter() *Splitter {
	return NewSplitterWithSize(DefaultMaxFragmentSize)
}

// NewSplitterWithSize creates a splitter with an explicit per-frame
// payload size. A size <= 0 means DefaultMaxFragmentSize.
func NewSplitterWithSize(maxFragmentSize int) *Splitter {
	if maxFragmentSize <= 0 {
		maxFragmentSize = DefaultMaxFragmentSize
	}
	return &Splitter{maxFragmentSize: maxFragmentSize}
}

// Split encodes t's parameter block and cuts it into frames of at most
// the configured payload size. Every frame repeats the full header; a
// transaction that fits yields exactly one frame. The result is never
// empty.
func (s *Splitter) Split(t *transaction.Transaction) []*frame.Frame {
	payload := t.Params.Encode()
	total := uint32(len(payload))

	isReply := uint8(0)
	if t.IsReply {
		isReply = 1
	}

	n := (len(payload) + s.maxFragmentSize - 1) / s.maxFragmentSize
	if n == 0 {
		n = 1
	}

	frames := make([]*frame.Frame, 0, n)
	for i := 0; i < n; i++ {
		start := i * s.maxFragmentSize
		end := start + s.maxFragmentSize
		if end > len(payload) {
			end = len(payload)
		}
		frames = append(frames, &frame.Frame{
			Flags:     t.Flags,
			IsReply:   isReply,
			Type:      uint16(t.Type),
			ID:        t.ID,
			ErrorCode: t.ErrorCode,
			TotalSize: total,
			DataSize:  uint32(end - start),
			Payload:   payload[start:end],
		})
	}
	return frames
}

type pendingTransaction struct {
	first   *frame.Frame
	buf     []byte
	total   uint32
	started time.Time
}

// Assembler reassembles frames into complete transactions. It is safe
// for concurrent use; a session feeds it from its read loop while a
// timeout goroutine sweeps stale entries.
type Assembler struct {
	mu         sync.Mutex
	pending    map[uint32]*pendingTransaction
	maxPending int
	maxTotal   uint32
}

// NewAssembler creates an assembler with the default limits.
func NewAssembler() *Assembler {
	return NewAssemblerWithLimits(DefaultMaxPendingTransactions, DefaultMaxTransactionSize)
}

// NewAssemblerWithLimits creates an assembler with explicit limits.
// Zero or negative values fall back to the defaults.
func NewAssemblerWithLimits(maxPending int, maxTotal uint32) *Assembler {
	if maxPending <= 0 {
		maxPending = DefaultMaxPendingTransactions
	}
	if maxTotal == 0 {
		maxTotal = DefaultMaxTransactionSize
	}
	return &Assembler{
		pending:    make(map[uint32]*pendingTransaction),
		maxPending: maxPending,
		maxTotal:   maxTotal,
	}
}

// Add feeds one frame in. It returns a non-nil transaction once the
// frame completes one, and nil while more fragments are expected.
//
// A frame that contradicts its transaction's declared total discards
// that transaction's partial state and returns an error; the assembler
// itself stays usable. Continuation header fields other than TotalSize
// and DataSize are not compared: the first fragment's header wins.
func (a *Assembler) Add(f *frame.Frame) (*transaction.Transaction, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	p, ok := a.pending[f.ID]
	if !ok {
		if f.TotalSize > a.maxTotal {
			return nil, fmt.Errorf("%w: %d bytes exceeds limit %d",
				ErrTransactionTooLarge, f.TotalSize, a.maxTotal)
		}
		if uint32(len(f.Payload)) == f.TotalSize {
			// Complete in a single frame, the common case.
			return decode(f, f.Payload)
		}
		if len(a.pending) >= a.maxPending {
			return nil, fmt.Errorf("%w: limit %d", ErrTooManyPending, a.maxPending)
		}
		a.pending[f.ID] = &pendingTransaction{
			first:   f,
			buf:     append(make([]byte, 0, f.TotalSize), f.Payload...),
			total:   f.TotalSize,
			started: time.Now(),
		}
		return nil, nil
	}

	if f.TotalSize != p.total {
		delete(a.pending, f.ID)
		return nil, fmt.Errorf("%w: transaction %d declared %d, fragment says %d",
			ErrInconsistentTotal, f.ID, p.total, f.TotalSize)
	}
	if uint32(len(p.buf)+len(f.Payload)) > p.total {
		delete(a.pending, f.ID)
		return nil, fmt.Errorf("%w: transaction %d", ErrFragmentOverflow, f.ID)
	}

	p.buf = append(p.buf, f.Payload...)
	if uint32(len(p.buf)) < p.total {
		return nil, nil
	}

	delete(a.pending, f.ID)
	return decode(p.first, p.buf)
}

func decode(first *frame.Frame, payload []byte) (*transaction.Transaction, error) {
	t := &transaction.Transaction{
		Flags:     first.Flags,
		IsReply:   first.IsReply != 0,
		Type:      transaction.Type(first.Type),
		ID:        first.ID,
		ErrorCode: first.ErrorCode,
	}
	// A bare header with no payload is tolerated on read; our own
	// splitter always writes at least the parameter count.
	if len(payload) == 0 {
		return t, nil
	}
	block, err := params.DecodeBlock(payload)
	if err != nil {
		return nil, fmt.Errorf("transaction %d: %w", first.ID, err)
	}
	t.Params = block
	return t, nil
}

// Pending returns the number of incomplete transactions.
func (a *Assembler) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.pending)
}

// Drop discards the partial state of one transaction, if any.
func (a *Assembler) Drop(id uint32) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.pending, id)
}

// DropStale discards partial transactions whose first fragment arrived
// more than maxAge ago, returning their IDs.
func (a *Assembler) DropStale(maxAge time.Duration) []uint32 {
	a.mu.Lock()
	defer a.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	var dropped []uint32
	for id, p := range a.pending {
		if p.started.Before(cutoff) {
			delete(a.pending, id)
			dropped = append(dropped, id)
		}
	}
	return dropped
}

// Reset discards all partial state.
func (a *Assembler) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.pending = make(map[uint32]*pendingTransaction)
}
