// Package hotline provides a pure Go implementation of the Hotline wire
// protocol.
//
// This library implements the binary transaction protocol following the
// sans-IO pattern - it handles protocol logic only, with no dialing or
// listening code. Consumers provide their own io.ReadWriter for the
// underlying connection, normally a TCP stream.
//
// # Architecture
//
// The library is organized into layers:
//
//   - session: Session engine - handshake, request/reply correlation,
//     handler dispatch
//   - transaction: Transaction model and type constants
//   - fragments: Transaction fragmentation and reassembly
//   - frame: The 20-byte frame header codec and stream framing
//   - handshake: The 12-byte connection preamble
//   - params: Typed parameter blocks
//   - wire: Bounds-checked big-endian cursors
//
// # Basic Usage
//
//	// Client side: connect, handshake, send a request.
//	sess, err := hotline.Connect(conn, nil)
//	if err != nil {
//	    return err
//	}
//	defer sess.Close()
//
//	reply, err := sess.SendRequest(ctx, transaction.NewRequest(
//	    transaction.TypeLogin,
//	    params.NewCredential(params.FieldUserLogin, "guest"),
//	    params.NewCredential(params.FieldUserPassword, ""),
//	))
//
// A server accepts connections itself and calls hotline.Accept with a
// registry of handlers for the transaction types it serves. Both sides
// may send requests and push notifications once the handshake completes.
//
// # Transport Agnostic
//
// This library does not include any transport code. You must provide an
// io.ReadWriter that carries the byte stream. Anything stream-shaped
// works: TCP connections, TLS wrappers, in-memory pipes for tests.
package hotline

// Version is the library version.
const Version = "0.1.0-dev"
