// Package inproc implements an in-memory, paired-channel transport.Transport
// for same-process broker/module wiring and for tests, grounded on the
// teacher's mock-peer pattern (ais/test/target_mock.go) of wiring two
// endpoints directly through Go channels instead of a socket.
package inproc

import (
	"context"
	"sync"

	"github.com/flux-framework/flux-go/internal/ferrors"
	"github.com/flux-framework/flux-go/transport"
)

// Pair creates two connected Transports; a message sent on one is
// received on the other. Either end may be closed independently.
func Pair(bufSize int) (a, b transport.Transport) {
	ab := make(chan []byte, bufSize)
	ba := make(chan []byte, bufSize)
	left := &endpoint{send: ab, recv: ba, closed: make(chan struct{})}
	right := &endpoint{send: ba, recv: ab, closed: make(chan struct{})}
	return left, right
}

type endpoint struct {
	send chan<- []byte
	recv <-chan []byte

	mu       sync.Mutex
	closed   chan struct{}
	isClosed bool
}

func (e *endpoint) Send(b []byte) error {
	cp := append([]byte(nil), b...)
	select {
	case e.send <- cp:
		return nil
	case <-e.closed:
		return ferrors.New(ferrors.Transport, 0, "ECONNRESET: endpoint closed")
	}
}

func (e *endpoint) Recv(ctx context.Context) ([]byte, error) {
	select {
	case b, ok := <-e.recv:
		if !ok {
			return nil, ferrors.New(ferrors.Transport, 0, "EPIPE: peer closed")
		}
		return b, nil
	case <-e.closed:
		return nil, ferrors.New(ferrors.Transport, 0, "ECONNRESET: endpoint closed")
	case <-ctx.Done():
		return nil, ferrors.Wrap(ferrors.Timeout, 0, ctx.Err(), "recv canceled")
	}
}

func (e *endpoint) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.isClosed {
		return nil
	}
	e.isClosed = true
	close(e.closed)
	return nil
}
