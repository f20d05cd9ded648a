// Copyright 2024 The go-ethereum Authors
// This file is part of the go-ethereum library.
//
// The go-ethereum library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The go-ethereum library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the go-ethereum library. If not, see <http://www.gnu.org/licenses/>.

package rlpx

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/devp2p-go/rlpx/internal/testlog"
	"github.com/devp2p-go/rlpx/log"
	"github.com/devp2p-go/rlpx/p2p/enode"
	"github.com/golang/snappy"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"golang.org/x/sync/errgroup"
)

func ignoreGoroutines() []goleak.Option {
	return []goleak.Option{
		goleak.IgnoreCurrent(),
		goleak.IgnoreTopFunction("github.com/rcrowley/go-metrics.(*meterArbiter).tick"),
	}
}

// newSessionPair connects two sessions over an in-memory pipe.
func newSessionPair(t *testing.T) (init, resp *Session) {
	log.Root().SetHandler(testlog.Handler(t, log.LvlTrace))
	t.Cleanup(func() { log.Root().SetHandler(log.DiscardHandler()) })

	initKey, respKey := newTestKey(t), newTestKey(t)
	c1, c2 := net.Pipe()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var g errgroup.Group
	g.Go(func() (err error) {
		init, err = Connect(ctx, c1, initKey, enode.PubkeyToIDV4(respKey.PubKey()))
		return err
	})
	g.Go(func() (err error) {
		resp, err = Accept(ctx, c2, respKey)
		return err
	})
	require.NoError(t, g.Wait())
	t.Cleanup(func() {
		init.Close()
		resp.Close()
	})

	require.Equal(t, enode.PubkeyToIDV4(respKey.PubKey()), init.RemoteID())
	require.Equal(t, enode.PubkeyToIDV4(initKey.PubKey()), resp.RemoteID())
	return init, resp
}

// readAuth reads one length-prefixed handshake packet from r.
func readAuth(r io.Reader) ([]byte, error) {
	prefix := make([]byte, 2)
	if _, err := io.ReadFull(r, prefix); err != nil {
		return nil, err
	}
	body := make([]byte, binary.BigEndian.Uint16(prefix))
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, err
	}
	return append(prefix, body...), nil
}

func TestSessionEndToEnd(t *testing.T) {
	defer goleak.VerifyNone(t, ignoreGoroutines()...)
	init, resp := newSessionPair(t)
	egress := egressTrafficMeter.Count()

	var g errgroup.Group
	g.Go(func() error { return init.WriteMsg([]byte{1, 2, 3}) })
	msg, err := resp.ReadMsg()
	require.NoError(t, err)
	require.Equal(t, []byte{1, 2, 3}, msg)
	require.NoError(t, g.Wait())

	g.Go(func() error { return resp.WriteMsg(nil) })
	msg, err = init.ReadMsg()
	require.NoError(t, err)
	require.Empty(t, msg)
	require.NoError(t, g.Wait())

	require.Greater(t, egressTrafficMeter.Count(), egress)
}

func TestSessionMessageCodes(t *testing.T) {
	defer goleak.VerifyNone(t, ignoreGoroutines()...)
	init, resp := newSessionPair(t)
	init.SetSnappy(true)
	resp.SetSnappy(true)

	data := []byte("snappy snappy snappy snappy snappy snappy snappy snappy")
	var g errgroup.Group
	g.Go(func() error {
		size, err := init.Write(0x10, data)
		if err == nil && int(size) != len(snappy.Encode(nil, data)) {
			err = errors.New("wrong wire size")
		}
		return err
	})
	code, got, wireSize, err := resp.Read()
	require.NoError(t, err)
	require.NoError(t, g.Wait())
	require.Equal(t, uint64(0x10), code)
	require.Equal(t, data, got)
	require.Less(t, wireSize, len(data))

	// Without snappy the payload is sent as is.
	init.SetSnappy(false)
	resp.SetSnappy(false)
	g.Go(func() error {
		_, err := resp.Write(0, []byte("plain"))
		return err
	})
	code, got, wireSize, err = init.Read()
	require.NoError(t, err)
	require.NoError(t, g.Wait())
	require.Zero(t, code)
	require.Equal(t, []byte("plain"), got)
	require.Equal(t, 5, wireSize)
}

func TestSessionWriteTooLarge(t *testing.T) {
	defer goleak.VerifyNone(t, ignoreGoroutines()...)
	init, resp := newSessionPair(t)

	require.ErrorIs(t, init.WriteMsg(make([]byte, maxUint24+1)), errPlainMessageTooLarge)
	_, err := init.Write(1, make([]byte, maxUint24+1))
	require.ErrorIs(t, err, errPlainMessageTooLarge)

	// The session is still usable.
	var g errgroup.Group
	g.Go(func() error { return init.WriteMsg([]byte("still here")) })
	msg, err := resp.ReadMsg()
	require.NoError(t, err)
	require.Equal(t, []byte("still here"), msg)
	require.NoError(t, g.Wait())
}

func TestSessionStickyReadError(t *testing.T) {
	defer goleak.VerifyNone(t, ignoreGoroutines()...)
	init, resp := newSessionPair(t)

	require.NoError(t, resp.Close())
	_, err := init.ReadMsg()
	require.ErrorIs(t, err, io.EOF)
	_, err = init.ReadMsg()
	require.ErrorIs(t, err, io.EOF)

	// The failed read closed the transport.
	require.Error(t, init.WriteMsg([]byte{1}))
}

// The initiator must fail if the first unit after auth is not an ack.
func TestConnectUnexpectedMessage(t *testing.T) {
	defer goleak.VerifyNone(t, ignoreGoroutines()...)

	_, _, otherInit, otherResp := newTestCodecs(t)
	establish(t, otherInit, otherResp)
	frame, err := otherResp.Encode(Message("not an ack"), nil)
	require.NoError(t, err)

	respKey := newTestKey(t)
	c1, c2 := net.Pipe()
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer c2.Close()
		if _, err := readAuth(c2); err != nil {
			return
		}
		c2.Write(frame)
	}()

	s, err := Connect(context.Background(), c1, newTestKey(t), enode.PubkeyToIDV4(respKey.PubKey()))
	require.Nil(t, s)
	require.ErrorIs(t, err, ErrUnexpectedMessage)
	<-done
}

func TestConnectStreamClosed(t *testing.T) {
	defer goleak.VerifyNone(t, ignoreGoroutines()...)

	respKey := newTestKey(t)
	c1, c2 := net.Pipe()
	go func() {
		readAuth(c2)
		c2.Close()
	}()
	_, err := Connect(context.Background(), c1, newTestKey(t), enode.PubkeyToIDV4(respKey.PubKey()))
	require.ErrorIs(t, err, ErrUnexpectedMessage)
	require.ErrorIs(t, err, io.EOF)
}

func TestAcceptUnexpectedMessage(t *testing.T) {
	defer goleak.VerifyNone(t, ignoreGoroutines()...)

	c1, c2 := net.Pipe()
	go func() {
		defer c1.Close()
		c1.Write([]byte{0x00, 0x01, 0xff})
	}()
	_, err := Accept(context.Background(), c2, newTestKey(t))
	require.ErrorIs(t, err, ErrUnexpectedMessage)
	require.ErrorIs(t, err, ErrMalformedLength)
}

func TestConnectCancel(t *testing.T) {
	defer goleak.VerifyNone(t, ignoreGoroutines()...)

	respKey := newTestKey(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c1, c2 := net.Pipe()
	go func() {
		defer c2.Close()
		if _, err := readAuth(c2); err == nil {
			cancel()
		}
		io.Copy(io.Discard, c2)
	}()

	_, err := Connect(ctx, c1, newTestKey(t), enode.PubkeyToIDV4(respKey.PubKey()))
	require.ErrorIs(t, err, context.Canceled)
	require.ErrorIs(t, err, ErrUnexpectedMessage)
}

func TestConnectTimeout(t *testing.T) {
	defer goleak.VerifyNone(t, ignoreGoroutines()...)

	respKey := newTestKey(t)
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	c1, c2 := net.Pipe()
	go func() {
		defer c2.Close()
		io.Copy(io.Discard, c2)
	}()

	start := time.Now()
	_, err := Connect(ctx, c1, newTestKey(t), enode.PubkeyToIDV4(respKey.PubKey()))
	require.ErrorIs(t, err, ErrUnexpectedMessage)
	require.Less(t, time.Since(start), 5*time.Second)
}
