// Package transport defines the pluggable byte-stream abstraction a
// handle sends and receives Message-encoded frames over (SPEC_FULL.md
// §6). The interface is deliberately narrow — Send/Recv/Close — so a
// handle never depends on whether its peer is in-process or remote,
// grounded on the teacher's transport package split between framing
// (pdu.go) and the single-owner send loop (sendmsg.go).
package transport

import "context"

// Transport moves already-encoded message frames. Implementations own
// their own internal framing; callers always pass a single encoded
// message's bytes per Send and receive exactly one message's bytes per
// Recv.
type Transport interface {
	// Send writes one encoded message. It may block but must not retain
	// b past return; implementations that need to buffer must copy it.
	Send(b []byte) error

	// Recv blocks for the next encoded message or until ctx is done.
	Recv(ctx context.Context) ([]byte, error)

	// Close unblocks any pending Recv/Send and releases resources.
	// Close is idempotent.
	Close() error
}
