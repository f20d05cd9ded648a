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
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/devp2p-go/rlpx/log"
	"github.com/devp2p-go/rlpx/p2p/enode"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/golang/snappy"
)

// Transport is the byte stream a Session runs over. net.Conn satisfies it.
type Transport interface {
	io.ReadWriteCloser
	RemoteAddr() net.Addr
}

// Session is an established RLPx connection. It reads and writes whole
// messages, each carried in exactly one encrypted frame.
//
// ReadMsg and WriteMsg may be called concurrently with each other, but only
// one goroutine should read and one should write at a time. Any read or write
// failure is terminal: it is returned by every later call and the underlying
// transport is closed.
type Session struct {
	conn   Transport
	codec  *Codec
	log    log.Logger
	snappy atomic.Bool

	rmu  sync.Mutex
	rbuf readBuffer
	rerr error

	wmu  sync.Mutex
	wbuf []byte
	werr error

	closeOnce sync.Once
	closeErr  error
}

// Connect performs the initiator side of the handshake over conn. It fails
// with an UnexpectedMessage HandshakeError unless the first unit received
// after auth is a valid ack.
//
// The deadline of ctx, if any, applies to the handshake. Cancelling ctx
// closes conn. The transport is closed if the handshake fails.
func Connect(ctx context.Context, conn Transport, prv *btcec.PrivateKey, remote enode.ID) (*Session, error) {
	codec, err := NewInitiatorCodec(prv, remote)
	if err != nil {
		conn.Close()
		return nil, err
	}
	s := newSession(conn, codec)
	s.log = s.log.New("id", remote)
	codec.log = s.log
	err = s.handshake(ctx, func() error {
		if err := s.write(Auth{}); err != nil {
			return err
		}
		s.log.Trace("Sent RLPx auth")
		unit, err := s.readUnit()
		if err != nil {
			return newHandshakeError(UnexpectedMessage, err)
		}
		if _, ok := unit.(AckReceived); !ok {
			return newHandshakeError(UnexpectedMessage, fmt.Errorf("got %T, want ack", unit))
		}
		s.log.Trace("Received RLPx ack")
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Accept performs the recipient side of the handshake over conn. The remote
// identity is available from RemoteID once it returns.
func Accept(ctx context.Context, conn Transport, prv *btcec.PrivateKey) (*Session, error) {
	s := newSession(conn, NewRecipientCodec(prv))
	err := s.handshake(ctx, func() error {
		unit, err := s.readUnit()
		if err != nil {
			return newHandshakeError(UnexpectedMessage, err)
		}
		auth, ok := unit.(AuthReceived)
		if !ok {
			return newHandshakeError(UnexpectedMessage, fmt.Errorf("got %T, want auth", unit))
		}
		s.log = s.log.New("id", auth.RemoteID)
		s.codec.log = s.log
		s.log.Trace("Received RLPx auth")
		return s.write(Ack{})
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

func newSession(conn Transport, codec *Codec) *Session {
	s := &Session{
		conn:  newMeteredTransport(conn),
		codec: codec,
		log:   log.New("peer", conn.RemoteAddr()),
	}
	codec.log = s.log
	return s
}

// handshake runs fn under the constraints of ctx and records its outcome.
func (s *Session) handshake(ctx context.Context, fn func() error) error {
	start := time.Now()
	d, hasDeadliner := s.conn.(deadliner)
	if deadline, ok := ctx.Deadline(); ok && hasDeadliner {
		d.SetDeadline(deadline)
	}
	stop := context.AfterFunc(ctx, func() { s.conn.Close() })

	err := fn()
	if !stop() && err == nil {
		// ctx fired after fn returned, the transport is already closed.
		err = ctx.Err()
	}
	if err != nil && ctx.Err() != nil && !errors.Is(err, ctx.Err()) {
		err = fmt.Errorf("%w: %w", ctx.Err(), err)
	}
	if err != nil {
		handshakeFailMeter.Mark(1)
		s.log.Debug("RLPx handshake failed", "err", err)
		s.Close()
		return err
	}
	if hasDeadliner {
		d.SetDeadline(time.Time{})
	}
	handshakeOkMeter.Mark(1)
	handshakeTimer.UpdateSince(start)
	s.log.Debug("RLPx handshake done", "initiator", s.codec.hs.Initiator())
	return nil
}

// readUnit returns the next decoded unit, reading from the transport until
// one is complete.
func (s *Session) readUnit() (Ingress, error) {
	s.rmu.Lock()
	defer s.rmu.Unlock()
	return s.readUnitLocked()
}

func (s *Session) readUnitLocked() (Ingress, error) {
	for s.rerr == nil {
		unit, n, err := s.codec.Decode(s.rbuf.unread())
		if err != nil {
			return nil, s.failRead(err)
		}
		if n > 0 {
			s.rbuf.consume(n)
		}
		if unit != nil {
			return unit, nil
		}
		if n > 0 {
			continue
		}
		if err := s.rbuf.fill(s.conn); err != nil {
			return nil, s.failRead(err)
		}
	}
	return nil, s.rerr
}

func (s *Session) failRead(err error) error {
	s.rerr = err
	s.Close()
	return err
}

// ReadMsg reads the next message from the connection.
func (s *Session) ReadMsg() ([]byte, error) {
	s.rmu.Lock()
	defer s.rmu.Unlock()

	unit, err := s.readUnitLocked()
	if err != nil {
		return nil, err
	}
	msg, ok := unit.(Message)
	if !ok {
		return nil, s.failRead(newHandshakeError(UnexpectedMessage, fmt.Errorf("got %T after handshake", unit)))
	}
	return msg, nil
}

// WriteMsg writes msg as a single frame.
func (s *Session) WriteMsg(msg []byte) error {
	if len(msg) > maxUint24 {
		return errPlainMessageTooLarge
	}
	return s.write(Message(msg))
}

func (s *Session) write(item Egress) error {
	s.wmu.Lock()
	defer s.wmu.Unlock()

	if s.werr != nil {
		return s.werr
	}
	var err error
	if s.wbuf, err = s.codec.Encode(item, s.wbuf[:0]); err == nil {
		_, err = s.conn.Write(s.wbuf)
	}
	if err != nil {
		s.werr = err
		s.Close()
	}
	return err
}

// SetSnappy enables or disables snappy compression of the payloads handled
// by Read and Write.
func (s *Session) SetSnappy(snappy bool) {
	s.snappy.Store(snappy)
}

// Read reads a devp2p message: an RLP-encoded message code followed by the
// payload. wireSize is the payload size before decompression.
func (s *Session) Read() (code uint64, data []byte, wireSize int, err error) {
	frame, err := s.ReadMsg()
	if err != nil {
		return 0, nil, 0, err
	}
	code, data, err = rlp.SplitUint64(frame)
	if err != nil {
		return 0, nil, 0, fmt.Errorf("invalid message code: %v", err)
	}
	wireSize = len(data)

	// If snappy is enabled, verify and decompress message.
	if s.snappy.Load() {
		var actualSize int
		actualSize, err = snappy.DecodedLen(data)
		if err != nil {
			return code, nil, 0, err
		}
		if actualSize > maxUint24 {
			return code, nil, 0, errPlainMessageTooLarge
		}
		data, err = snappy.Decode(nil, data)
	}
	return code, data, wireSize, err
}

// Write writes a devp2p message with the given code. It returns the size of
// the payload as written to the wire.
func (s *Session) Write(code uint64, data []byte) (uint32, error) {
	if len(data) > maxUint24 {
		return 0, errPlainMessageTooLarge
	}
	if s.snappy.Load() {
		data = snappy.Encode(nil, data)
	}
	frame := rlp.AppendUint64(make([]byte, 0, len(data)+9), code)
	frame = append(frame, data...)
	return uint32(len(data)), s.WriteMsg(frame)
}

// RemoteID returns the identity of the remote peer.
func (s *Session) RemoteID() enode.ID {
	return s.codec.RemoteID()
}

// RemoteAddr returns the address of the remote end of the transport.
func (s *Session) RemoteAddr() net.Addr {
	return s.conn.RemoteAddr()
}

// SetReadDeadline sets the deadline for all future read operations.
func (s *Session) SetReadDeadline(t time.Time) error {
	if d, ok := s.conn.(deadliner); ok {
		return d.SetReadDeadline(t)
	}
	return errors.ErrUnsupported
}

// SetWriteDeadline sets the deadline for all future write operations.
func (s *Session) SetWriteDeadline(t time.Time) error {
	if d, ok := s.conn.(deadliner); ok {
		return d.SetWriteDeadline(t)
	}
	return errors.ErrUnsupported
}

// Close wipes the session keys and closes the transport.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.codec.Close()
		s.closeErr = s.conn.Close()
	})
	return s.closeErr
}
