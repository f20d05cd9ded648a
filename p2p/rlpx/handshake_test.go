// Copyright 2015 The go-ethereum Authors
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
	"crypto/rand"
	"errors"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/devp2p-go/rlpx/crypto"
	"github.com/devp2p-go/rlpx/p2p/enode"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func newTestKey(t require.TestingT) *btcec.PrivateKey {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return key
}

func newTestHandshakes(t require.TestingT) (initKey, respKey *btcec.PrivateKey, init, resp *Handshake) {
	initKey, respKey = newTestKey(t), newTestKey(t)
	init, err := NewInitiator(initKey, enode.PubkeyToIDV4(respKey.PubKey()))
	require.NoError(t, err)
	return initKey, respKey, init, NewRecipient(respKey)
}

// runHandshake drives both roles through auth and ack.
func runHandshake(t require.TestingT) (init, resp *Handshake) {
	_, _, init, resp = newTestHandshakes(t)
	auth, err := init.CreateAuth()
	require.NoError(t, err)
	require.NoError(t, resp.ParseAuth(auth))
	ack, err := resp.CreateAck()
	require.NoError(t, err)
	require.NoError(t, init.ParseAck(ack))
	return init, resp
}

// sealTestAuth creates an auth message like CreateAuth does, but with
// arbitrary version and trailing list elements.
func sealTestAuth(t require.TestingT, h *Handshake, version uint, rest ...rlp.RawValue) []byte {
	nonce := make([]byte, shaLen)
	_, err := rand.Read(nonce)
	require.NoError(t, err)
	key := newTestKey(t)
	token, err := h.staticSharedSecret()
	require.NoError(t, err)
	sig, err := crypto.Sign(xor(token, nonce), key)
	require.NoError(t, err)

	msg := &authMsgV4{Version: version, Rest: rest}
	copy(msg.Signature[:], sig)
	copy(msg.InitiatorPubkey[:], exportPubkey(h.prv.PubKey()))
	copy(msg.Nonce[:], nonce)
	packet, err := h.sealEIP8(msg)
	require.NoError(t, err)
	h.initNonce, h.randomPrivKey, h.authPacket = nonce, key, packet
	return packet
}

// sealTestAck creates an ack message like CreateAck does, but with arbitrary
// version and trailing list elements. It does not derive the keys.
func sealTestAck(t require.TestingT, h *Handshake, version uint, rest ...rlp.RawValue) []byte {
	nonce := make([]byte, shaLen)
	_, err := rand.Read(nonce)
	require.NoError(t, err)
	h.randomPrivKey = newTestKey(t)

	msg := &authRespV4{Version: version, Rest: rest}
	copy(msg.RandomPubkey[:], exportPubkey(h.randomPrivKey.PubKey()))
	copy(msg.Nonce[:], nonce)
	packet, err := h.sealEIP8(msg)
	require.NoError(t, err)
	h.respNonce, h.ackPacket = nonce, packet
	return packet
}

// requireSameSession checks that the egress state of a matches the ingress
// state of b.
func requireSameSession(t require.TestingT, a, b *Handshake) {
	require.Equal(t, a.session.egressMAC.hash.Sum(nil), b.session.ingressMAC.hash.Sum(nil), "egress/ingress MAC")
	require.Equal(t, a.session.ingressMAC.hash.Sum(nil), b.session.egressMAC.hash.Sum(nil), "ingress/egress MAC")

	ka, kb := make([]byte, 64), make([]byte, 64)
	a.session.enc.XORKeyStream(ka, ka)
	b.session.dec.XORKeyStream(kb, kb)
	require.Equal(t, ka, kb, "keystream")
}

func TestHandshake(t *testing.T) {
	initKey, respKey, init, resp := newTestHandshakes(t)

	auth, err := init.CreateAuth()
	require.NoError(t, err)
	require.NoError(t, resp.ParseAuth(auth))
	require.Equal(t, enode.PubkeyToIDV4(initKey.PubKey()), resp.RemoteID())
	require.False(t, resp.Established())

	ack, err := resp.CreateAck()
	require.NoError(t, err)
	require.True(t, resp.Established())
	require.NoError(t, init.ParseAck(ack))
	require.True(t, init.Established())
	require.Equal(t, enode.PubkeyToIDV4(respKey.PubKey()), init.RemoteID())

	requireSameSession(t, init, resp)
	requireSameSession(t, resp, init)

	// Ephemeral material is gone once the keys are derived.
	for _, h := range []*Handshake{init, resp} {
		require.Nil(t, h.randomPrivKey)
		require.Nil(t, h.initNonce)
		require.Nil(t, h.respNonce)
		require.Nil(t, h.authPacket)
		require.Nil(t, h.ackPacket)
	}
}

func TestHandshakePacketSize(t *testing.T) {
	_, _, init, _ := newTestHandshakes(t)
	auth, err := init.CreateAuth()
	require.NoError(t, err)

	size, err := handshakePacketSize(auth)
	require.NoError(t, err)
	require.Equal(t, len(auth), size)
	// padding is between 100 and 300 bytes
	require.GreaterOrEqual(t, size, 2+crypto.SignatureLength+100)

	size, err = handshakePacketSize(auth[:1])
	require.NoError(t, err)
	require.Zero(t, size)

	_, err = handshakePacketSize([]byte{0x00, 0x05})
	require.ErrorIs(t, err, ErrMalformedLength)
}

func TestHandshakeInvalidRemote(t *testing.T) {
	_, err := NewInitiator(newTestKey(t), enode.ID{})
	require.Error(t, err)
}

func TestHandshakeOrder(t *testing.T) {
	_, _, init, resp := newTestHandshakes(t)

	_, err := resp.CreateAck()
	require.Error(t, err, "ack before auth")
	_, err = resp.CreateAuth()
	require.Error(t, err, "auth from recipient")
	require.ErrorIs(t, init.ParseAck([]byte{1, 2, 3}), ErrInvalidAck, "ack before auth")

	auth, err := init.CreateAuth()
	require.NoError(t, err)
	_, err = init.CreateAuth()
	require.Error(t, err, "second auth")
	require.ErrorIs(t, init.ParseAuth(auth), ErrInvalidAuth, "auth parsed by initiator")

	// Frame operations need the session keys.
	_, err = init.CreateHeader(1)
	require.ErrorIs(t, err, ErrKeysNotReady)
	require.ErrorIs(t, init.ParseHeader(make([]byte, headerLen)), ErrKeysNotReady)
	_, err = init.CreateBody([]byte{1})
	require.ErrorIs(t, err, ErrKeysNotReady)
	_, err = init.ParseBody(make([]byte, 32))
	require.ErrorIs(t, err, ErrKeysNotReady)

	require.NoError(t, resp.ParseAuth(auth))
	require.ErrorIs(t, resp.ParseAuth(auth), ErrInvalidAuth, "second auth")
	ack, err := resp.CreateAck()
	require.NoError(t, err)
	_, err = resp.CreateAck()
	require.Error(t, err, "second ack")
	require.NoError(t, init.ParseAck(ack))
	require.ErrorIs(t, init.ParseAck(ack), ErrInvalidAck, "second ack")
}

func TestHandshakeClose(t *testing.T) {
	init, resp := runHandshake(t)
	require.Equal(t, []byte("x"), sendFrame(t, init, resp, []byte("x")))
	sess := init.session
	require.NotEqual(t, [32]byte{}, sess.egressMAC.hashBuffer)

	init.Close()
	require.False(t, init.Established())
	require.Nil(t, sess.enc)
	require.Nil(t, sess.dec)
	require.Nil(t, sess.egressMAC.hash)
	require.Nil(t, sess.ingressMAC.hash)
	require.Equal(t, [32]byte{}, sess.egressMAC.hashBuffer)
	require.Equal(t, [16]byte{}, sess.egressMAC.aesBuffer)
	_, err := init.CreateHeader(1)
	require.ErrorIs(t, err, ErrKeysNotReady)
}

func TestHandshakeVersionMismatch(t *testing.T) {
	_, _, init, resp := newTestHandshakes(t)
	auth := sealTestAuth(t, init, 3)
	err := resp.ParseAuth(auth)
	require.ErrorIs(t, err, ErrInvalidAuth)
	require.ErrorIs(t, err, ErrVersionMismatch)

	_, _, init, resp = newTestHandshakes(t)
	auth, err = init.CreateAuth()
	require.NoError(t, err)
	require.NoError(t, resp.ParseAuth(auth))
	err = init.ParseAck(sealTestAck(t, resp, 2))
	require.ErrorIs(t, err, ErrInvalidAck)
	require.ErrorIs(t, err, ErrVersionMismatch)
}

// Auth and ack may carry a higher version and additional list elements.
func TestHandshakeForwardCompatible(t *testing.T) {
	extra := []rlp.RawValue{{0x01}, {0x82, 'h', 'i'}, {0xc0}}

	_, _, init, resp := newTestHandshakes(t)
	auth := sealTestAuth(t, init, 56, extra...)
	require.NoError(t, resp.ParseAuth(auth))

	ack := sealTestAck(t, resp, 57, extra...)
	require.NoError(t, resp.finalize())
	require.NoError(t, init.ParseAck(ack))
	requireSameSession(t, init, resp)
	requireSameSession(t, resp, init)
}

func TestHandshakeRecoverer(t *testing.T) {
	_, _, init, resp := newTestHandshakes(t)
	calls := 0
	resp.SetRecoverer(RecoverFunc(func(hash, sig []byte) (*btcec.PublicKey, error) {
		calls++
		return crypto.SigToPub(hash, sig)
	}))
	auth, err := init.CreateAuth()
	require.NoError(t, err)
	require.NoError(t, resp.ParseAuth(auth))
	require.Equal(t, 1, calls)

	_, _, init, resp = newTestHandshakes(t)
	failure := errors.New("no recovery")
	resp.SetRecoverer(RecoverFunc(func(hash, sig []byte) (*btcec.PublicKey, error) {
		return nil, failure
	}))
	auth, err = init.CreateAuth()
	require.NoError(t, err)
	err = resp.ParseAuth(auth)
	require.ErrorIs(t, err, ErrInvalidAuth)
	require.ErrorIs(t, err, failure)
}

func flipBit(t *rapid.T, b []byte) []byte {
	bit := rapid.IntRange(0, len(b)*8-1).Draw(t, "bit")
	out := append([]byte(nil), b...)
	out[bit/8] ^= 1 << (bit % 8)
	return out
}

func TestAuthTamper(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		_, _, init, resp := newTestHandshakes(t)
		auth, err := init.CreateAuth()
		require.NoError(t, err)
		require.ErrorIs(t, resp.ParseAuth(flipBit(t, auth)), ErrInvalidAuth)
	})
}

func TestAckTamper(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		_, _, init, resp := newTestHandshakes(t)
		auth, err := init.CreateAuth()
		require.NoError(t, err)
		require.NoError(t, resp.ParseAuth(auth))
		ack, err := resp.CreateAck()
		require.NoError(t, err)
		require.ErrorIs(t, init.ParseAck(flipBit(t, ack)), ErrInvalidAck)
		require.False(t, init.Established())
	})
}
