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
	"bytes"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/davecgh/go-spew/spew"
	"github.com/devp2p-go/rlpx/p2p/enode"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func newTestCodecs(t require.TestingT) (initKey, respKey *btcec.PrivateKey, init, resp *Codec) {
	initKey, respKey = newTestKey(t), newTestKey(t)
	init, err := NewInitiatorCodec(initKey, enode.PubkeyToIDV4(respKey.PubKey()))
	require.NoError(t, err)
	return initKey, respKey, init, NewRecipientCodec(respKey)
}

// establish runs the handshake between two fresh codecs.
func establish(t require.TestingT, init, resp *Codec) {
	auth, err := init.Encode(Auth{}, nil)
	require.NoError(t, err)
	unit, n, err := resp.Decode(auth)
	require.NoError(t, err)
	require.Equal(t, len(auth), n)
	require.IsType(t, AuthReceived{}, unit)

	ack, err := resp.Encode(Ack{}, nil)
	require.NoError(t, err)
	unit, n, err = init.Decode(ack)
	require.NoError(t, err)
	require.Equal(t, len(ack), n)
	require.Equal(t, AckReceived{}, unit)
}

// decodeAll decodes every unit in buf and fails on leftovers.
func decodeAll(t require.TestingT, c *Codec, buf []byte) []Ingress {
	var units []Ingress
	for len(buf) > 0 {
		unit, n, err := c.Decode(buf)
		require.NoError(t, err)
		require.NotZero(t, n, "incomplete unit")
		buf = buf[n:]
		if unit != nil {
			units = append(units, unit)
		}
	}
	return units
}

func TestCodecHandshake(t *testing.T) {
	initKey, respKey, init, resp := newTestCodecs(t)
	require.Equal(t, StateAuth, init.State())
	require.Equal(t, StateAuth, resp.State())

	auth, err := init.Encode(Auth{}, nil)
	require.NoError(t, err)
	require.Equal(t, StateAck, init.State())

	unit, n, err := resp.Decode(auth)
	require.NoError(t, err)
	require.Equal(t, len(auth), n)
	require.Equal(t, AuthReceived{RemoteID: enode.PubkeyToIDV4(initKey.PubKey())}, unit)
	require.Equal(t, StateHeader, resp.State())
	require.Equal(t, enode.PubkeyToIDV4(initKey.PubKey()), resp.RemoteID())

	ack, err := resp.Encode(Ack{}, nil)
	require.NoError(t, err)
	require.Equal(t, StateHeader, resp.State())

	unit, n, err = init.Decode(ack)
	require.NoError(t, err)
	require.Equal(t, len(ack), n)
	require.Equal(t, AckReceived{}, unit)
	require.Equal(t, StateHeader, init.State())
	require.Equal(t, enode.PubkeyToIDV4(respKey.PubKey()), init.RemoteID())

	// Header and body are decoded as separate steps.
	wire, err := init.Encode(Message{1, 2, 3}, nil)
	require.NoError(t, err)
	unit, n, err = resp.Decode(wire)
	require.NoError(t, err)
	require.Nil(t, unit)
	require.Equal(t, headerLen, n)
	require.Equal(t, StateBody, resp.State())

	unit, n, err = resp.Decode(wire[headerLen:])
	require.NoError(t, err)
	require.Equal(t, len(wire)-headerLen, n)
	require.Equal(t, Message{1, 2, 3}, unit)
	require.Equal(t, StateHeader, resp.State())
}

func TestCodecNeedMoreData(t *testing.T) {
	_, _, init, resp := newTestCodecs(t)
	auth, err := init.Encode(Auth{}, nil)
	require.NoError(t, err)

	for i := 0; i < len(auth); i++ {
		unit, n, err := resp.Decode(auth[:i])
		require.NoError(t, err, "prefix %d", i)
		require.Nil(t, unit)
		require.Zero(t, n)
	}
	require.Equal(t, StateAuth, resp.State())

	units := decodeAll(t, resp, auth)
	require.Len(t, units, 1)
	ack, err := resp.Encode(Ack{}, nil)
	require.NoError(t, err)
	decodeAll(t, init, ack)

	wire, err := resp.Encode(Message("hello"), nil)
	require.NoError(t, err)
	for i := 0; i < headerLen; i++ {
		unit, n, err := init.Decode(wire[:i])
		require.NoError(t, err)
		require.Nil(t, unit)
		require.Zero(t, n)
	}
	_, n, err := init.Decode(wire)
	require.NoError(t, err)
	body := wire[n:]
	for i := 0; i < len(body); i++ {
		unit, n, err := init.Decode(body[:i])
		require.NoError(t, err)
		require.Nil(t, unit)
		require.Zero(t, n)
	}
	unit, _, err := init.Decode(body)
	require.NoError(t, err)
	require.Equal(t, Message("hello"), unit)
}

func TestCodecInitiatorRejectsInput(t *testing.T) {
	_, _, init, _ := newTestCodecs(t)
	_, _, err := init.Decode([]byte{1})
	require.ErrorIs(t, err, ErrUnexpectedMessage)
	require.Equal(t, StateAuth, init.State())
}

func TestCodecMalformedLength(t *testing.T) {
	_, _, _, resp := newTestCodecs(t)
	_, _, err := resp.Decode([]byte{0x00, 0x70, 0x01})
	require.ErrorIs(t, err, ErrMalformedLength)
	require.Equal(t, StateAuth, resp.State())
}

// An initiator waiting for ack must never take a frame for a message.
func TestCodecMessageInsteadOfAck(t *testing.T) {
	_, _, init, _ := newTestCodecs(t)
	_, err := init.Encode(Auth{}, nil)
	require.NoError(t, err)

	_, _, otherInit, otherResp := newTestCodecs(t)
	establish(t, otherInit, otherResp)
	frame, err := otherResp.Encode(Message(bytes.Repeat([]byte{7}, 400)), nil)
	require.NoError(t, err)

	unit, n, err := init.Decode(frame)
	require.Nil(t, unit, spew.Sdump(unit))
	if err == nil {
		require.Zero(t, n)
	}
	require.Equal(t, StateAck, init.State())
}

func TestCodecEncodeOrder(t *testing.T) {
	_, _, init, resp := newTestCodecs(t)

	_, err := resp.Encode(Auth{}, nil)
	require.ErrorIs(t, err, errInvalidTransition)
	_, err = resp.Encode(Ack{}, nil)
	require.ErrorIs(t, err, errInvalidTransition)
	_, err = init.Encode(Ack{}, nil)
	require.ErrorIs(t, err, errInvalidTransition)
	_, err = init.Encode(Message{1}, nil)
	require.ErrorIs(t, err, errInvalidTransition)
	require.Equal(t, StateAuth, init.State())
	require.Equal(t, StateAuth, resp.State())

	auth, err := init.Encode(Auth{}, nil)
	require.NoError(t, err)
	_, err = init.Encode(Auth{}, nil)
	require.ErrorIs(t, err, errInvalidTransition)
	require.Equal(t, StateAck, init.State())

	decodeAll(t, resp, auth)
	_, err = resp.Encode(Message{1}, nil)
	require.ErrorIs(t, err, ErrKeysNotReady)

	ack, err := resp.Encode(Ack{}, nil)
	require.NoError(t, err)
	_, err = resp.Encode(Ack{}, nil)
	require.Error(t, err)
	decodeAll(t, init, ack)
}

func TestCodecMessageTooLarge(t *testing.T) {
	_, _, init, resp := newTestCodecs(t)
	establish(t, init, resp)

	dst := []byte{0xff}
	out, err := init.Encode(Message(make([]byte, maxUint24+1)), dst)
	require.ErrorIs(t, err, errPlainMessageTooLarge)
	require.Equal(t, dst, out)

	wire, err := init.Encode(Message("after"), nil)
	require.NoError(t, err)
	require.Equal(t, []Ingress{Message("after")}, decodeAll(t, resp, wire))
}

func TestCodecClosed(t *testing.T) {
	_, _, init, resp := newTestCodecs(t)
	establish(t, init, resp)
	init.Close()
	init.Close()

	_, err := init.Encode(Message{1}, nil)
	require.ErrorIs(t, err, errCodecClosed)
	_, _, err = init.Decode(make([]byte, headerLen))
	require.ErrorIs(t, err, errCodecClosed)
}

// Messages survive arbitrary re-chunking of the byte stream, in order.
func TestCodecStream(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		_, _, init, resp := newTestCodecs(t)
		establish(t, init, resp)

		msgs := rapid.SliceOfN(rapid.SliceOfN(rapid.Byte(), 0, 300), 1, 10).Draw(t, "msgs")
		var wire []byte
		for _, m := range msgs {
			var err error
			wire, err = init.Encode(Message(m), wire)
			require.NoError(t, err)
		}

		var (
			buf  []byte
			got  [][]byte
			rest = wire
		)
		for len(rest) > 0 || len(buf) > 0 {
			if len(rest) > 0 {
				k := rapid.IntRange(1, len(rest)).Draw(t, "chunk")
				buf, rest = append(buf, rest[:k]...), rest[k:]
			}
			unit, n, err := resp.Decode(buf)
			require.NoError(t, err)
			buf = buf[n:]
			if msg, ok := unit.(Message); ok {
				got = append(got, msg)
			}
			if n == 0 && len(rest) == 0 {
				break
			}
		}
		require.Empty(t, buf)
		require.Len(t, got, len(msgs))
		for i := range msgs {
			require.True(t, bytes.Equal(msgs[i], got[i]), "message %d", i)
		}
	})
}

// A rejected auth ends the codec, a second valid auth is not accepted.
func TestCodecFailureIsFinal(t *testing.T) {
	_, _, init, resp := newTestCodecs(t)
	auth, err := init.Encode(Auth{}, nil)
	require.NoError(t, err)

	tampered := append([]byte(nil), auth...)
	tampered[len(tampered)-1] ^= 0x01
	_, _, err = resp.Decode(tampered)
	require.ErrorIs(t, err, ErrInvalidAuth)

	unit, n, err2 := resp.Decode(auth)
	require.Nil(t, unit)
	require.Zero(t, n)
	require.Equal(t, err, err2)
	require.Equal(t, StateAuth, resp.State())

	_, err = resp.Encode(Ack{}, nil)
	require.ErrorIs(t, err, ErrInvalidAuth)
}

// A frame body arriving where a header is expected fails header
// verification and is never returned as a message.
func TestCodecBodyInsteadOfHeader(t *testing.T) {
	_, _, init, resp := newTestCodecs(t)
	establish(t, init, resp)

	wire, err := init.Encode(Message("longer than a single block of sixteen bytes"), nil)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(wire)-headerLen, headerLen)

	unit, n, err := resp.Decode(wire[headerLen:])
	require.ErrorIs(t, err, ErrHeaderMAC)
	require.Nil(t, unit, spew.Sdump(unit))
	require.Zero(t, n)
	require.Equal(t, StateHeader, resp.State())

	_, _, err = resp.Decode(wire)
	require.ErrorIs(t, err, ErrHeaderMAC)
}
