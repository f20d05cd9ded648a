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
	"errors"
	"fmt"
	"sync"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/devp2p-go/rlpx/log"
	"github.com/devp2p-go/rlpx/p2p/enode"
)

// State is the position of a Codec in the connection lifecycle.
type State int

const (
	StateAuth   State = iota // waiting for auth
	StateAck                 // auth sent, waiting for ack
	StateHeader              // established, next unit is a frame header
	StateBody                // header parsed, next unit is its frame body
)

func (s State) String() string {
	switch s {
	case StateAuth:
		return "auth"
	case StateAck:
		return "ack"
	case StateHeader:
		return "header"
	case StateBody:
		return "body"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Ingress is a unit decoded from the wire. It is one of AuthReceived,
// AckReceived or Message.
type Ingress interface {
	ingress()
}

// Egress is a unit to be encoded. It is one of Auth, Ack or Message.
type Egress interface {
	egress()
}

// AuthReceived is decoded by the recipient once the initiator's auth message
// has been verified.
type AuthReceived struct {
	RemoteID enode.ID
}

// AckReceived is decoded by the initiator once the session keys are derived.
type AckReceived struct{}

// Auth requests the initiator handshake message.
type Auth struct{}

// Ack requests the recipient handshake message.
type Ack struct{}

// Message is an application payload carried in a single frame.
type Message []byte

func (AuthReceived) ingress() {}
func (AckReceived) ingress()  {}
func (Message) ingress()      {}
func (Auth) egress()          {}
func (Ack) egress()           {}
func (Message) egress()       {}

// Codec converts between wire bytes and handshake/message units. Decoding and
// encoding share one state machine, which is why both sides of a connection
// must go through the same Codec.
//
// Codec is safe for concurrent use, but it performs no I/O. A failure to
// decode, or to produce a handshake packet, ends the codec: every later
// Decode and Encode returns the same error.
type Codec struct {
	mu     sync.Mutex
	hs     *Handshake
	state  State
	closed bool
	err    error
	log    log.Logger
}

// NewInitiatorCodec creates the codec of the dialing side.
func NewInitiatorCodec(prv *btcec.PrivateKey, remote enode.ID) (*Codec, error) {
	hs, err := NewInitiator(prv, remote)
	if err != nil {
		return nil, err
	}
	return newCodec(hs), nil
}

// NewRecipientCodec creates the codec of the listening side.
func NewRecipientCodec(prv *btcec.PrivateKey) *Codec {
	return newCodec(NewRecipient(prv))
}

func newCodec(hs *Handshake) *Codec {
	return &Codec{hs: hs, state: StateAuth, log: log.Root()}
}

// State returns the current codec state.
func (c *Codec) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// RemoteID returns the remote identity. For a recipient it is known only
// after AuthReceived has been decoded.
func (c *Codec) RemoteID() enode.ID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hs.RemoteID()
}

// check fails unless the codec is in one of the given states.
func (c *Codec) check(from ...State) error {
	if c.closed {
		return errCodecClosed
	}
	for _, s := range from {
		if c.state == s {
			return nil
		}
	}
	return fmt.Errorf("%w: %v", errInvalidTransition, c.state)
}

// advance moves the codec to next. It is the only place the state changes.
func (c *Codec) advance(next State, from ...State) error {
	if err := c.check(from...); err != nil {
		return err
	}
	if c.state != next {
		c.log.Trace("RLPx codec transition", "from", c.state, "to", next)
	}
	c.state = next
	return nil
}

// Decode decodes at most one unit from the front of buf. It returns the unit
// and the number of bytes consumed. A nil unit with zero bytes consumed means
// buf does not hold a complete unit yet. Frame headers are consumed without
// yielding a unit.
func (c *Codec) Decode(buf []byte) (Ingress, int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, 0, errCodecClosed
	}
	if c.err != nil {
		return nil, 0, c.err
	}
	unit, n, err := c.decode(buf)
	if err != nil {
		c.fail(err)
	}
	return unit, n, err
}

// fail makes err the result of every later call.
func (c *Codec) fail(err error) {
	c.err = err
	c.log.Debug("RLPx codec failed", "state", c.state, "err", err)
}

func (c *Codec) decode(buf []byte) (Ingress, int, error) {
	switch c.state {
	case StateAuth:
		if c.hs.Initiator() {
			return nil, 0, newHandshakeError(UnexpectedMessage, errors.New("data received before auth was sent"))
		}
		n, err := handshakePacketSize(buf)
		if err != nil || n == 0 || len(buf) < n {
			return nil, 0, err
		}
		if err := c.hs.ParseAuth(buf[:n]); err != nil {
			return nil, 0, err
		}
		if err := c.advance(StateHeader, StateAuth); err != nil {
			return nil, 0, err
		}
		return AuthReceived{RemoteID: c.hs.RemoteID()}, n, nil

	case StateAck:
		n, err := handshakePacketSize(buf)
		if err != nil || n == 0 || len(buf) < n {
			return nil, 0, err
		}
		if err := c.hs.ParseAck(buf[:n]); err != nil {
			return nil, 0, err
		}
		if err := c.advance(StateHeader, StateAck); err != nil {
			return nil, 0, err
		}
		return AckReceived{}, n, nil

	case StateHeader:
		n := c.hs.HeaderLen()
		if len(buf) < n {
			return nil, 0, nil
		}
		if err := c.hs.ParseHeader(buf[:n]); err != nil {
			return nil, 0, err
		}
		return nil, n, c.advance(StateBody, StateHeader)

	case StateBody:
		n := c.hs.BodyLen()
		if len(buf) < n {
			return nil, 0, nil
		}
		msg, err := c.hs.ParseBody(buf[:n])
		if err != nil {
			return nil, 0, err
		}
		if err := c.advance(StateHeader, StateBody); err != nil {
			return nil, 0, err
		}
		return Message(msg), n, nil
	}
	return nil, 0, fmt.Errorf("%w: %v", errInvalidTransition, c.state)
}

// Encode appends the wire encoding of item to dst. A Message is written as
// its header immediately followed by its body.
func (c *Codec) Encode(item Egress, dst []byte) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.err != nil && !c.closed {
		return dst, c.err
	}
	switch item := item.(type) {
	case Auth:
		if !c.hs.Initiator() {
			return dst, fmt.Errorf("%w: recipient cannot send auth", errInvalidTransition)
		}
		if err := c.check(StateAuth); err != nil {
			return dst, err
		}
		packet, err := c.hs.CreateAuth()
		if err != nil {
			c.fail(err)
			return dst, err
		}
		return append(dst, packet...), c.advance(StateAck, StateAuth)

	case Ack:
		if c.hs.Initiator() {
			return dst, fmt.Errorf("%w: initiator cannot send ack", errInvalidTransition)
		}
		if err := c.check(StateHeader); err != nil {
			return dst, err
		}
		packet, err := c.hs.CreateAck()
		if err != nil {
			c.fail(err)
			return dst, err
		}
		return append(dst, packet...), c.advance(StateHeader, StateHeader)

	case Message:
		if len(item) > maxUint24 {
			return dst, errPlainMessageTooLarge
		}
		if err := c.check(StateHeader, StateBody); err != nil {
			return dst, err
		}
		if !c.hs.Established() {
			return dst, ErrKeysNotReady
		}
		dst = c.hs.session.sealHeader(dst, len(item))
		return c.hs.session.sealBody(dst, item), nil
	}
	return dst, fmt.Errorf("rlpx: unknown egress unit %T", item)
}

// Close wipes the session keys. All later Decode and Encode calls fail.
func (c *Codec) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		c.hs.Close()
	}
}
