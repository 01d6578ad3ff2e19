// Package session drives a handshaked connection: it pumps frames off the
// transport, reassembles them into transactions, correlates replies with
// outstanding requests, and dispatches inbound requests to registered
// handlers.
//
// A Session is symmetric. Client and server differ only in who initiates
// the handshake (Hello vs Accept) and in which handlers their registries
// carry; after the handshake both sides send requests, await replies, and
// serve the peer's requests concurrently.
//
// Lifecycle:
//
//	Handshaking ──► Ready ──► Closing ──► Closed
//	      │                                 ▲
//	      └───── handshake failure ─────────┘
//
// Closed is terminal. Any transport error tears the session down and
// fails every outstanding request with ErrSessionClosed.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/smnsjas/go-hotline/fragments"
	"github.com/smnsjas/go-hotline/frame"
	"github.com/smnsjas/go-hotline/handshake"
	"github.com/smnsjas/go-hotline/transaction"
)

var (
	// ErrInvalidState is returned when an operation is attempted in the
	// wrong session state.
	ErrInvalidState = errors.New("invalid session state")
	// ErrSessionClosed is returned to callers whose requests were
	// outstanding when the session went down, and on any send after.
	ErrSessionClosed = errors.New("session closed")
	// ErrRequestTimeout is returned when the peer does not reply within
	// the configured request timeout.
	ErrRequestTimeout = errors.New("request timed out")
	// ErrUnsolicitedReply marks a reply no request is waiting for. It
	// is reported through the session log, not returned: the requester
	// may have timed out or been cancelled a moment earlier.
	ErrUnsolicitedReply = errors.New("unsolicited reply")
	// ErrNotReply is returned by SendReply for a transaction that is
	// not marked as a reply.
	ErrNotReply = errors.New("transaction is not a reply")
)

// Logger is an optional interface for debug logging.
// If not set, no logging is performed.
type Logger interface {
	// Printf formats and logs a debug message.
	Printf(format string, v ...interface{})
}

// State represents the current state of a Session.
type State int

const (
	// StateHandshaking is the initial state before the preamble exchange.
	StateHandshaking State = iota
	// StateReady indicates transactions may flow in both directions.
	StateReady
	// StateClosing indicates teardown is in progress.
	StateClosing
	// StateClosed is terminal.
	StateClosed
)

// String returns a string representation of the state.
func (s State) String() string {
	switch s {
	case StateHandshaking:
		return "Handshaking"
	case StateReady:
		return "Ready"
	case StateClosing:
		return "Closing"
	case StateClosed:
		return "Closed"
	default:
		return fmt.Sprintf("Unknown(%d)", int(s))
	}
}

const (
	// DefaultRequestTimeout bounds how long SendRequest waits for a
	// reply before giving up on it.
	DefaultRequestTimeout = 30 * time.Second

	// DefaultReassemblyTimeout bounds how long a partially received
	// transaction may sit in the assembler before being discarded.
	DefaultReassemblyTimeout = time.Minute

	// DefaultMaxConcurrentHandlers limits handler goroutines per
	// session. This prevents resource exhaustion under request floods.
	DefaultMaxConcurrentHandlers = 64
)

// Session is one handshaked connection's protocol engine.
type Session struct {
	mu sync.RWMutex

	// Core fields
	id        uuid.UUID
	state     State
	transport io.ReadWriter
	registry  *Registry

	// Protocol state
	splitter  *fragments.Splitter
	assembler *fragments.Assembler
	reader    *frame.Reader
	nextID    uint32
	pending   map[uint32]chan *transaction.Transaction

	// Config
	requestTimeout    time.Duration
	reassemblyTimeout time.Duration

	// Debug logging
	logger Logger

	// Concurrency control
	writeMu        sync.Mutex
	handlerLimiter chan struct{}

	// Lifecycle
	ctx         context.Context
	cancel      context.CancelFunc
	cleanupOnce sync.Once
	closeErr    error
	doneCh      chan struct{}
}

// New creates a session over transport using the given handler registry.
// The registry may be nil for a pure client that never serves requests.
// The session starts in StateHandshaking; call Hello or Accept to bring
// it up.
func New(transport io.ReadWriter, registry *Registry) *Session {
	if registry == nil {
		registry = NewRegistry()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		id:                uuid.New(),
		state:             StateHandshaking,
		transport:         transport,
		registry:          registry,
		splitter:          fragments.NewSplitter(),
		assembler:         fragments.NewAssembler(),
		reader:            frame.NewReader(transport),
		pending:           make(map[uint32]chan *transaction.Transaction),
		requestTimeout:    DefaultRequestTimeout,
		reassemblyTimeout: DefaultReassemblyTimeout,
		handlerLimiter:    make(chan struct{}, DefaultMaxConcurrentHandlers),
		ctx:               ctx,
		cancel:            cancel,
		doneCh:            make(chan struct{}),
	}
}

// ID returns the session's local identity. It never travels on the wire;
// it exists to correlate log lines and server-side bookkeeping.
func (s *Session) ID() uuid.UUID {
	return s.id
}

// State returns the current session state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Done is closed when the session reaches StateClosed.
func (s *Session) Done() <-chan struct{} {
	return s.doneCh
}

// Err returns the error that tore the session down, or nil after a
// deliberate Close. It is meaningful once Done is closed.
func (s *Session) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closeErr
}

// SetLogger sets the logger for debug logging.
// This is optional - if not set, no logging is performed.
// Must be called before Hello or Accept.
func (s *Session) SetLogger(logger Logger) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateHandshaking {
		return ErrInvalidState
	}
	s.logger = logger
	return nil
}

// EnableDebugLogging enables debug logging to stderr using the standard
// log package.
func (s *Session) EnableDebugLogging() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logger = log.New(os.Stderr, "[hotline] ", log.LstdFlags)
}

// SetMaxFragmentSize sets the outbound fragment payload size.
// Must be called before Hello or Accept.
func (s *Session) SetMaxFragmentSize(n int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateHandshaking {
		return ErrInvalidState
	}
	s.splitter = fragments.NewSplitterWithSize(n)
	return nil
}

// SetRequestTimeout sets how long SendRequest waits for a reply.
// Zero disables the timeout. Must be called before Hello or Accept.
func (s *Session) SetRequestTimeout(d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateHandshaking {
		return ErrInvalidState
	}
	s.requestTimeout = d
	return nil
}

// SetReassemblyTimeout sets how long a partial transaction may wait for
// its remaining fragments. Zero disables the sweep. Must be called
// before Hello or Accept.
func (s *Session) SetReassemblyTimeout(d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateHandshaking {
		return ErrInvalidState
	}
	s.reassemblyTimeout = d
	return nil
}

// Hello performs the client side of the handshake and, on acceptance,
// starts the read loop. A rejected or failed handshake closes the
// session permanently.
func (s *Session) Hello() error {
	s.mu.Lock()
	if s.state != StateHandshaking {
		s.mu.Unlock()
		return fmt.Errorf("%w: cannot handshake from state %s", ErrInvalidState, s.state)
	}
	s.mu.Unlock()

	if _, err := handshake.Client(s.transport, handshake.New()); err != nil {
		s.teardown(err)
		return err
	}
	s.start()
	return nil
}

// Accept performs the server side of the handshake using policy (nil
// means handshake.EchoPolicy) and, on acceptance, starts the read loop.
// On rejection nothing is written back and the session closes; the
// caller should close the underlying connection.
func (s *Session) Accept(policy handshake.Policy) error {
	s.mu.Lock()
	if s.state != StateHandshaking {
		s.mu.Unlock()
		return fmt.Errorf("%w: cannot handshake from state %s", ErrInvalidState, s.state)
	}
	s.mu.Unlock()

	if _, err := handshake.Server(s.transport, policy); err != nil {
		s.teardown(err)
		return err
	}
	s.start()
	return nil
}

func (s *Session) start() {
	s.mu.Lock()
	s.setState(StateReady)
	reassemblyTimeout := s.reassemblyTimeout
	s.mu.Unlock()

	go s.readLoop(s.ctx)
	if reassemblyTimeout > 0 {
		go s.sweepLoop(s.ctx, reassemblyTimeout)
	}
}

// SendRequest sends a request and blocks until the matching reply
// arrives, ctx is cancelled, the request timeout fires, or the session
// goes down. The transaction's ID is assigned here; each session numbers
// its own requests independently.
//
// A reply with a nonzero error code is returned as a transaction, not an
// error; use its Err method to surface it.
func (s *Session) SendRequest(ctx context.Context, t *transaction.Transaction) (*transaction.Transaction, error) {
	s.mu.Lock()
	if s.state != StateReady {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: state %s", ErrSessionClosed, s.state)
	}
	s.nextID++
	t.ID = s.nextID
	waiter := make(chan *transaction.Transaction, 1)
	s.pending[t.ID] = waiter
	timeout := s.requestTimeout
	s.mu.Unlock()

	if err := s.writeTransaction(t); err != nil {
		s.dropWaiter(t.ID)
		return nil, err
	}

	var timeoutCh <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	select {
	case reply := <-waiter:
		return reply, nil
	case <-ctx.Done():
		s.dropWaiter(t.ID)
		return nil, ctx.Err()
	case <-timeoutCh:
		s.dropWaiter(t.ID)
		return nil, fmt.Errorf("%w: transaction %d (%s)", ErrRequestTimeout, t.ID, t.Type)
	case <-s.doneCh:
		return nil, ErrSessionClosed
	}
}

// Send sends a transaction without waiting for a reply. Notifications a
// server pushes at clients go through here; an ID is still assigned so
// fragments of concurrent sends cannot collide.
func (s *Session) Send(t *transaction.Transaction) error {
	s.mu.Lock()
	if s.state != StateReady {
		s.mu.Unlock()
		return fmt.Errorf("%w: state %s", ErrSessionClosed, s.state)
	}
	s.nextID++
	t.ID = s.nextID
	s.mu.Unlock()

	return s.writeTransaction(t)
}

// SendReply sends a reply built by NewReply or NewErrorReply. The ID is
// left untouched; it must echo the request's.
func (s *Session) SendReply(t *transaction.Transaction) error {
	if !t.IsReply {
		return fmt.Errorf("%w: %s", ErrNotReply, t.Type)
	}
	s.mu.RLock()
	ready := s.state == StateReady
	s.mu.RUnlock()
	if !ready {
		return ErrSessionClosed
	}
	return s.writeTransaction(t)
}

// writeTransaction splits t and writes its frames back to back. The
// write lock keeps frames of concurrent transactions from interleaving
// mid-frame; whole-frame interleaving would be legal, but simple beats
// clever here.
func (s *Session) writeTransaction(t *transaction.Transaction) error {
	frames := s.splitter.Split(t)

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	for _, f := range frames {
		if err := f.Write(s.transport); err != nil {
			err = fmt.Errorf("transaction %d: %w", t.ID, err)
			s.teardown(err)
			return err
		}
	}
	return nil
}

func (s *Session) dropWaiter(id uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, id)
}

// readLoop pumps frames off the transport until it fails or the session
// closes. An inconsistent fragment poisons only its own transaction and
// the loop keeps going, since frame boundaries are still intact. Read
// errors and malformed payloads are fatal.
func (s *Session) readLoop(ctx context.Context) {
	for {
		f, err := s.reader.ReadFrame()
		if err != nil {
			if ctx.Err() != nil {
				s.logf("[read] exiting: context cancelled")
				return
			}
			if errors.Is(err, io.EOF) {
				s.logf("[read] peer closed the connection")
				s.teardown(nil)
			} else {
				s.logf("[read] fatal: %v", err)
				s.teardown(err)
			}
			return
		}

		t, err := s.assembler.Add(f)
		if err != nil {
			// An inconsistent fragment poisons only its own
			// transaction; anything else means the stream cannot
			// be trusted.
			if errors.Is(err, fragments.ErrInconsistentTotal) {
				s.logf("[read] discarding transaction %d: %v", f.ID, err)
				continue
			}
			s.logf("[read] fatal: %v", err)
			s.teardown(err)
			return
		}
		if t == nil {
			continue
		}

		if t.IsReply {
			s.resolveReply(t)
			continue
		}

		select {
		case s.handlerLimiter <- struct{}{}:
			go func() {
				defer func() { <-s.handlerLimiter }()
				s.dispatch(ctx, t)
			}()
		case <-ctx.Done():
			return
		}
	}
}

// resolveReply hands a reply to the request that is waiting for it.
func (s *Session) resolveReply(t *transaction.Transaction) {
	s.mu.Lock()
	waiter, ok := s.pending[t.ID]
	if ok {
		delete(s.pending, t.ID)
	}
	s.mu.Unlock()

	if !ok {
		s.logf("[read] %v: transaction %d (%s)", ErrUnsolicitedReply, t.ID, t.Type)
		return
	}
	waiter <- t
}

// dispatch runs the handler for one inbound request and sends whatever
// reply it produces. A request type nobody registered gets an automatic
// error reply so the peer is not left waiting.
func (s *Session) dispatch(ctx context.Context, req *transaction.Transaction) {
	h, ok := s.registry.lookup(req.Type)
	if !ok {
		s.logf("[dispatch] no handler for %s", req.Type)
		s.replyTo(req, transaction.NewErrorReply(req, transaction.ErrorCodeUnsupported,
			fmt.Sprintf("transaction type %s not supported", req.Type)))
		return
	}

	reply, err := h(ctx, req)
	if err != nil {
		s.logf("[dispatch] handler for %s failed: %v", req.Type, err)
		var remote *transaction.RemoteError
		if errors.As(err, &remote) {
			s.replyTo(req, transaction.NewErrorReply(req, remote.Code, remote.Message))
		} else {
			s.replyTo(req, transaction.NewErrorReply(req, transaction.ErrorCodeUnsupported, err.Error()))
		}
		return
	}
	if reply != nil {
		s.replyTo(req, reply)
	}
}

func (s *Session) replyTo(req *transaction.Transaction, reply *transaction.Transaction) {
	if err := s.SendReply(reply); err != nil {
		s.logf("[dispatch] could not reply to transaction %d: %v", req.ID, err)
	}
}

// sweepLoop periodically discards partial transactions whose fragments
// stopped arriving.
func (s *Session) sweepLoop(ctx context.Context, maxAge time.Duration) {
	ticker := time.NewTicker(maxAge)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			for _, id := range s.assembler.DropStale(maxAge) {
				s.logf("[sweep] dropped stale partial transaction %d", id)
			}
		case <-ctx.Done():
			return
		}
	}
}

// Close shuts the session down. Outstanding requests fail with
// ErrSessionClosed. Close is idempotent and never blocks on the peer.
func (s *Session) Close() error {
	s.teardown(nil)
	return nil
}

// teardown moves the session to Closed exactly once, recording err as
// the cause. Closing doneCh is what fails the outstanding requests.
func (s *Session) teardown(err error) {
	s.cleanupOnce.Do(func() {
		s.mu.Lock()
		s.setState(StateClosing)
		s.closeErr = err
		// Forget the waiters so a reply arriving after teardown is
		// reported as unsolicited instead of being delivered to a
		// caller that already got ErrSessionClosed.
		s.pending = make(map[uint32]chan *transaction.Transaction)
		s.mu.Unlock()

		s.cancel()
		close(s.doneCh)
		s.assembler.Reset()

		s.mu.Lock()
		s.setState(StateClosed)
		s.mu.Unlock()
	})
}

// setState transitions to a new state (caller must hold lock).
func (s *Session) setState(newState State) {
	s.state = newState
}

func (s *Session) logf(format string, v ...interface{}) {
	if s.logger != nil {
		s.logger.Printf(format, v...)
	}
}
