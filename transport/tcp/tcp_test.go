package tcp_test

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/flux-framework/flux-go/transport/tcp"
)

func pipePair(t *testing.T) (*tcp.Conn, *tcp.Conn) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	acceptedCh := make(chan net.Conn, 1)
	go func() {
		c, _ := ln.Accept()
		acceptedCh <- c
	}()

	dialed, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)

	accepted := <-acceptedCh
	require.NotNil(t, accepted)

	return tcp.New(dialed), tcp.New(accepted)
}

func TestRoundTripPreservesBytes(t *testing.T) {
	a, b := pipePair(t)
	defer a.Close()
	defer b.Close()

	payload := make([]byte, 4096)
	for i := range payload {
		payload[i] = byte(i)
	}
	require.NoError(t, a.Send(payload))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	got, err := b.Recv(ctx)
	require.NoError(t, err)
	require.Equal(t, payload, got)
}

func TestMultipleFramesArriveInOrder(t *testing.T) {
	a, b := pipePair(t)
	defer a.Close()
	defer b.Close()

	msgs := [][]byte{[]byte("one"), []byte("two"), []byte("three")}
	for _, m := range msgs {
		require.NoError(t, a.Send(m))
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	for _, want := range msgs {
		got, err := b.Recv(ctx)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
}

func TestCloseUnblocksSend(t *testing.T) {
	a, b := pipePair(t)
	defer b.Close()

	require.NoError(t, a.Close())
	require.Error(t, a.Send([]byte("x")))
}
