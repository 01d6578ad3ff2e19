package hotline

import (
	"io"
	"time"

	"github.com/smnsjas/go-hotline/handshake"
	"github.com/smnsjas/go-hotline/session"
)

// Option configures a session before its handshake runs.
type Option func(*session.Session) error

// WithLogger enables debug logging on the session.
func WithLogger(l session.Logger) Option {
	return func(s *session.Session) error { return s.SetLogger(l) }
}

// WithMaxFragmentSize sets the outbound fragment payload size.
func WithMaxFragmentSize(n int) Option {
	return func(s *session.Session) error { return s.SetMaxFragmentSize(n) }
}

// WithRequestTimeout bounds how long SendRequest waits for a reply.
func WithRequestTimeout(d time.Duration) Option {
	return func(s *session.Session) error { return s.SetRequestTimeout(d) }
}

// Connect performs the client side of the handshake over transport and
// returns a ready session. The registry serves transactions the server
// pushes at the client; a pure requester passes nil.
func Connect(transport io.ReadWriter, registry *session.Registry, opts ...Option) (*session.Session, error) {
	return start(transport, registry, opts, func(s *session.Session) error {
		return s.Hello()
	})
}

// Accept performs the server side of the handshake over an accepted
// connection and returns a ready session dispatching inbound requests to
// registry. A nil policy accepts any peer speaking the Hotline
// sub-protocol.
func Accept(transport io.ReadWriter, registry *session.Registry, policy handshake.Policy, opts ...Option) (*session.Session, error) {
	return start(transport, registry, opts, func(s *session.Session) error {
		return s.Accept(policy)
	})
}

func start(transport io.ReadWriter, registry *session.Registry, opts []Option, shake func(*session.Session) error) (*session.Session, error) {
	s := session.New(transport, registry)
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	if err := shake(s); err != nil {
		return nil, err
	}
	return s, nil
}
