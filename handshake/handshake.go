// Package handshake implements the 12-byte connection preamble exchanged
// before any transaction frames flow.
//
// Both directions use the same layout:
//
//	┌───────────────────────────────────────────┐
//	│  Tag (4 bytes) - always "TRTP"            │
//	├───────────────────────────────────────────┤
//	│  SubProtocol (4 bytes) - e.g. "HOTL"      │
//	├───────────────────────────────────────────┤
//	│  Version (2 bytes)                        │
//	├───────────────────────────────────────────┤
//	│  SubVersion (2 bytes)                     │
//	└───────────────────────────────────────────┘
//
// The client sends first; the server answers with its own preamble or
// closes the connection. A rejected handshake is terminal: no transaction
// frame may be sent or decoded on the connection afterwards.
package handshake

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/smnsjas/go-hotline/wire"
)

// Size is the encoded length of a handshake in bytes.
const Size = 12

// Protocol constants.
var (
	// Tag opens every handshake in both directions.
	Tag = [4]byte{'T', 'R', 'T', 'P'}
	// SubProtocolHotline is the standard sub-protocol identifier.
	SubProtocolHotline = [4]byte{'H', 'O', 'T', 'L'}
)

// Version numbers spoken by this implementation.
const (
	Version    uint16 = 1
	SubVersion uint16 = 2
)

var (
	// ErrInvalidHandshake is returned when the preamble does not start
	// with the protocol tag or is otherwise malformed.
	ErrInvalidHandshake = errors.New("invalid handshake")
	// ErrRejected is returned when the acceptance policy turns the
	// peer away. The connection must not be used afterwards.
	ErrRejected = errors.New("handshake rejected")
)

// Handshake is one direction's preamble. The tag is implicit: it is
// always written and always verified on read.
type Handshake struct {
	SubProtocol [4]byte
	Version     uint16
	SubVersion  uint16
}

// New returns the handshake this implementation sends by default.
func New() Handshake {
	return Handshake{
		SubProtocol: SubProtocolHotline,
		Version:     Version,
		SubVersion:  SubVersion,
	}
}

// Encode serializes the handshake including the leading tag.
func (h Handshake) Encode() []byte {
	w := wire.NewWriterSize(Size)
	w.WriteBytes(Tag[:])
	w.WriteBytes(h.SubProtocol[:])
	w.WriteUint16(h.Version)
	w.WriteUint16(h.SubVersion)
	return w.Bytes()
}

// Decode parses a handshake, verifying the tag.
func Decode(data []byte) (Handshake, error) {
	r := wire.NewReader(data)

	tag, err := r.ReadBytes(4)
	if err != nil {
		return Handshake{}, fmt.Errorf("read tag: %w", err)
	}
	if !bytes.Equal(tag, Tag[:]) {
		return Handshake{}, fmt.Errorf("%w: tag %q", ErrInvalidHandshake, tag)
	}

	var h Handshake
	sub, err := r.ReadBytes(4)
	if err != nil {
		return Handshake{}, fmt.Errorf("read sub-protocol: %w", err)
	}
	copy(h.SubProtocol[:], sub)
	if h.Version, err = r.ReadUint16(); err != nil {
		return Handshake{}, fmt.Errorf("read version: %w", err)
	}
	if h.SubVersion, err = r.ReadUint16(); err != nil {
		return Handshake{}, fmt.Errorf("read sub-version: %w", err)
	}
	return h, nil
}

// Policy decides whether to accept a client's handshake. It returns the
// handshake to answer with, or an error to reject the connection.
type Policy func(client Handshake) (Handshake, error)

// EchoPolicy accepts any client speaking the Hotline sub-protocol and
// answers with this implementation's own version numbers.
func EchoPolicy(client Handshake) (Handshake, error) {
	if client.SubProtocol != SubProtocolHotline {
		return Handshake{}, fmt.Errorf("%w: sub-protocol %q", ErrRejected, client.SubProtocol[:])
	}
	return New(), nil
}

func read(r io.Reader) (Handshake, error) {
	var buf [Size]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return Handshake{}, fmt.Errorf("read handshake: %w", err)
	}
	return Decode(buf[:])
}

// Client performs the initiating side: send h, then read and return the
// server's answer. A connection closed without an answer means the
// server rejected us.
func Client(rw io.ReadWriter, h Handshake) (Handshake, error) {
	if _, err := rw.Write(h.Encode()); err != nil {
		return Handshake{}, fmt.Errorf("write handshake: %w", err)
	}
	server, err := read(rw)
	if err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return Handshake{}, fmt.Errorf("%w: connection closed by server", ErrRejected)
		}
		return Handshake{}, err
	}
	return server, nil
}

// Server performs the accepting side: read the client's handshake and
// consult policy. On acceptance the policy's answer is written back; on
// rejection nothing is written and the caller must close the connection.
func Server(rw io.ReadWriter, policy Policy) (Handshake, error) {
	if policy == nil {
		policy = EchoPolicy
	}
	client, err := read(rw)
	if err != nil {
		return Handshake{}, err
	}
	answer, err := policy(client)
	if err != nil {
		return Handshake{}, err
	}
	if _, err := rw.Write(answer.Encode()); err != nil {
		return Handshake{}, fmt.Errorf("write handshake: %w", err)
	}
	return client, nil
}
