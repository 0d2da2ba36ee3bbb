// Package tcp implements a length-prefixed TCP transport.Transport. Each
// encoded message is framed with a 4-byte big-endian length prefix ahead
// of its bytes, reusing the same prefix-then-body streaming shape as the
// teacher's PDU header-then-body framing (transport/pdu.go) without any
// of its object/multi-part bookkeeping — a Flux message is always sent
// and received whole.
//
// Writes are serialized through a single-owner goroutine fed by a work
// channel, grounded on the teacher's transport/sendmsg.go MsgStream
// pattern of funneling concurrent producers through one connection
// owner.
package tcp

import (
	"context"
	"encoding/binary"
	"io"
	"net"
	"sync"

	"github.com/flux-framework/flux-go/internal/ferrors"
	"github.com/flux-framework/flux-go/internal/flog"
)

const maxFrameSize = 64 << 20 // 64 MiB, guards against a corrupt length prefix

// Conn is a transport.Transport over a single net.Conn.
type Conn struct {
	log  *flog.Logger
	conn net.Conn

	workCh chan work
	done   chan struct{}

	closeOnce sync.Once
}

type work struct {
	b   []byte
	err chan<- error
}

// Dial connects to addr (host:port) and wraps the resulting net.Conn.
func Dial(addr string) (*Conn, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, ferrors.Wrap(ferrors.Transport, 0, err, "dial %s", addr)
	}
	return New(conn), nil
}

// New wraps an already-dialed/accepted net.Conn, starting its send loop.
func New(conn net.Conn) *Conn {
	c := &Conn{
		log:    flog.Default.With("transport.tcp"),
		conn:   conn,
		workCh: make(chan work, 64),
		done:   make(chan struct{}),
	}
	go c.sendLoop()
	return c
}

func (c *Conn) sendLoop() {
	for {
		select {
		case w := <-c.workCh:
			w.err <- c.writeFrame(w.b)
		case <-c.done:
			return
		}
	}
}

func (c *Conn) writeFrame(b []byte) error {
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(b)))
	if _, err := c.conn.Write(hdr[:]); err != nil {
		return ferrors.Wrap(ferrors.Transport, 0, err, "write frame header")
	}
	if _, err := c.conn.Write(b); err != nil {
		return ferrors.Wrap(ferrors.Transport, 0, err, "write frame body")
	}
	return nil
}

// Send enqueues b for the connection's send loop and waits for the
// write to complete (or the connection to close).
func (c *Conn) Send(b []byte) error {
	cp := append([]byte(nil), b...)
	errc := make(chan error, 1)
	select {
	case c.workCh <- work{b: cp, err: errc}:
	case <-c.done:
		return ferrors.New(ferrors.Transport, 0, "ECONNRESET: connection closed")
	}
	select {
	case err := <-errc:
		return err
	case <-c.done:
		return ferrors.New(ferrors.Transport, 0, "ECONNRESET: connection closed")
	}
}

// Recv reads the next length-prefixed frame. ctx cancellation races the
// underlying read (net.Conn has no native context support) by closing
// the connection's read side is not attempted; callers that need hard
// cancellation should also Close the Conn.
func (c *Conn) Recv(ctx context.Context) ([]byte, error) {
	type result struct {
		b   []byte
		err error
	}
	resc := make(chan result, 1)
	go func() {
		var hdr [4]byte
		if _, err := io.ReadFull(c.conn, hdr[:]); err != nil {
			resc <- result{err: ferrors.Wrap(ferrors.Transport, 0, err, "read frame header")}
			return
		}
		n := binary.BigEndian.Uint32(hdr[:])
		if n > maxFrameSize {
			resc <- result{err: ferrors.New(ferrors.Decode, 0, "frame length %d exceeds max %d", n, maxFrameSize)}
			return
		}
		buf := make([]byte, n)
		if _, err := io.ReadFull(c.conn, buf); err != nil {
			resc <- result{err: ferrors.Wrap(ferrors.Transport, 0, err, "read frame body")}
			return
		}
		resc <- result{b: buf}
	}()

	select {
	case r := <-resc:
		return r.b, r.err
	case <-ctx.Done():
		return nil, ferrors.Wrap(ferrors.Timeout, 0, ctx.Err(), "recv canceled")
	case <-c.done:
		return nil, ferrors.New(ferrors.Transport, 0, "ECONNRESET: connection closed")
	}
}

// Close is idempotent; it unblocks the send loop and closes the socket.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		err = c.conn.Close()
	})
	return err
}
