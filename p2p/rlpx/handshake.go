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

// Package rlpx implements the RLPx transport protocol: the ECIES handshake
// that authenticates two peers and the framing layer that encrypts and
// authenticates every message exchanged after it.
package rlpx

import (
	"bytes"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	mrand "math/rand"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/devp2p-go/rlpx/crypto"
	"github.com/devp2p-go/rlpx/crypto/ecies"
	"github.com/devp2p-go/rlpx/p2p/enode"
	"github.com/ethereum/go-ethereum/rlp"
	"golang.org/x/crypto/sha3"
)

// Constants for the handshake.
const (
	sskLen = 16                     // ecies.MaxSharedKeyLength(pubKey) / 2
	sigLen = crypto.SignatureLength // elliptic S256
	pubLen = 64                     // 512 bit pubkey in uncompressed representation without format byte
	shaLen = 32                     // hash length (for nonce etc)

	handshakeVersion = 4
)

// EphemeralRecoverer recovers the public key that produced a recoverable
// signature over hash.
type EphemeralRecoverer interface {
	Recover(hash, sig []byte) (*btcec.PublicKey, error)
}

// RecoverFunc adapts a function to the EphemeralRecoverer interface.
type RecoverFunc func(hash, sig []byte) (*btcec.PublicKey, error)

func (f RecoverFunc) Recover(hash, sig []byte) (*btcec.PublicKey, error) {
	return f(hash, sig)
}

// Handshake contains the state of the encryption handshake and, once it has
// completed, the session keys used by the frame operations.
//
// A Handshake is not safe for concurrent use. Codec serializes access to it.
type Handshake struct {
	initiator bool
	prv       *btcec.PrivateKey
	recoverer EphemeralRecoverer

	remote   *btcec.PublicKey // remote-pubk
	remoteID enode.ID

	initNonce, respNonce []byte            // nonce
	randomPrivKey        *btcec.PrivateKey // ecdhe-random
	remoteRandomPub      *btcec.PublicKey  // ecdhe-random-pubk

	// authPacket and ackPacket are the handshake messages as they appeared on
	// the wire. They seed the MAC states.
	authPacket, ackPacket []byte

	session   *sessionState
	frameSize int // payload size announced by the last parsed header
}

// RLPx v4 handshake auth (defined in EIP-8).
type authMsgV4 struct {
	Signature       [sigLen]byte
	InitiatorPubkey [pubLen]byte
	Nonce           [shaLen]byte
	Version         uint

	// Ignore additional fields (forward-compatibility)
	Rest []rlp.RawValue `rlp:"tail"`
}

// RLPx v4 handshake response (defined in EIP-8).
type authRespV4 struct {
	RandomPubkey [pubLen]byte
	Nonce        [shaLen]byte
	Version      uint

	// Ignore additional fields (forward-compatibility)
	Rest []rlp.RawValue `rlp:"tail"`
}

// NewInitiator creates the handshake state of the dialing side. The remote
// static key must be known in advance.
func NewInitiator(prv *btcec.PrivateKey, remote enode.ID) (*Handshake, error) {
	pub, err := remote.Pubkey()
	if err != nil {
		return nil, fmt.Errorf("invalid remote node id: %w", err)
	}
	return &Handshake{
		initiator: true,
		prv:       prv,
		recoverer: RecoverFunc(crypto.SigToPub),
		remote:    pub,
		remoteID:  remote,
	}, nil
}

// NewRecipient creates the handshake state of the listening side. The remote
// identity is learned from the auth message.
func NewRecipient(prv *btcec.PrivateKey) *Handshake {
	return &Handshake{
		prv:       prv,
		recoverer: RecoverFunc(crypto.SigToPub),
	}
}

// SetRecoverer replaces the signature recovery used to learn the remote
// ephemeral key from the auth message.
func (h *Handshake) SetRecoverer(r EphemeralRecoverer) {
	h.recoverer = r
}

// Initiator reports whether h is the dialing side.
func (h *Handshake) Initiator() bool {
	return h.initiator
}

// RemoteID returns the identity of the remote peer. On the recipient side it
// is the zero ID until ParseAuth has succeeded.
func (h *Handshake) RemoteID() enode.ID {
	return h.remoteID
}

// Established reports whether the session keys have been derived.
func (h *Handshake) Established() bool {
	return h.session != nil
}

// CreateAuth creates the initiator handshake message.
func (h *Handshake) CreateAuth() ([]byte, error) {
	if !h.initiator {
		return nil, errors.New("rlpx: auth must be created by the initiator")
	}
	if h.authPacket != nil || h.session != nil {
		return nil, errors.New("rlpx: auth already created")
	}

	// Generate random initiator nonce.
	nonce := make([]byte, shaLen)
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	// Generate random keypair to for ECDH.
	randomPrivKey, err := crypto.GenerateKey()
	if err != nil {
		return nil, err
	}

	// Sign known message: static-shared-secret ^ nonce
	token, err := h.staticSharedSecret()
	if err != nil {
		return nil, err
	}
	signed := xor(token, nonce)
	zero(token)
	signature, err := crypto.Sign(signed, randomPrivKey)
	if err != nil {
		return nil, err
	}

	msg := new(authMsgV4)
	copy(msg.Signature[:], signature)
	copy(msg.InitiatorPubkey[:], crypto.FromECDSAPub(h.prv.PubKey())[1:])
	copy(msg.Nonce[:], nonce)
	msg.Version = handshakeVersion
	packet, err := h.sealEIP8(msg)
	if err != nil {
		return nil, err
	}
	h.initNonce = nonce
	h.randomPrivKey = randomPrivKey
	h.authPacket = packet
	return packet, nil
}

// ParseAuth processes the initiator handshake message on the recipient side.
// It learns the initiator's static and ephemeral public keys and its nonce.
func (h *Handshake) ParseAuth(packet []byte) error {
	if h.initiator || h.authPacket != nil || h.session != nil {
		return newHandshakeError(InvalidAuth, errors.New("auth not expected"))
	}
	msg := new(authMsgV4)
	if err := h.openEIP8(msg, packet); err != nil {
		return newHandshakeError(InvalidAuth, err)
	}
	if msg.Version < handshakeVersion {
		return newHandshakeError(InvalidAuth, fmt.Errorf("%w: auth version %d", ErrVersionMismatch, msg.Version))
	}

	// Import the remote identity.
	rpub, err := importPublicKey(msg.InitiatorPubkey[:])
	if err != nil {
		return newHandshakeError(InvalidAuth, err)
	}
	token, err := ecies.GenerateShared(h.prv, rpub, sskLen, sskLen)
	if err != nil {
		return newHandshakeError(InvalidAuth, err)
	}
	// Check the signature.
	signedMsg := xor(token, msg.Nonce[:])
	zero(token)
	remoteRandomPub, err := h.recoverer.Recover(signedMsg, msg.Signature[:])
	if err != nil {
		return newHandshakeError(InvalidAuth, fmt.Errorf("can't recover ephemeral key: %w", err))
	}

	h.remote = rpub
	h.remoteID = enode.PubkeyToIDV4(rpub)
	h.initNonce = bytes.Clone(msg.Nonce[:])
	h.remoteRandomPub = remoteRandomPub
	h.authPacket = bytes.Clone(packet)
	return nil
}

// CreateAck creates the recipient handshake message and derives the session
// keys. It must be called after ParseAuth.
func (h *Handshake) CreateAck() ([]byte, error) {
	if h.initiator || h.authPacket == nil || h.session != nil {
		return nil, errors.New("rlpx: ack can only follow a received auth")
	}
	// Generate random keypair for ECDH.
	// If a private key is already set, use it instead of generating one (for testing).
	if h.randomPrivKey == nil {
		key, err := crypto.GenerateKey()
		if err != nil {
			return nil, err
		}
		h.randomPrivKey = key
	}
	nonce := make([]byte, shaLen)
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}

	msg := new(authRespV4)
	copy(msg.Nonce[:], nonce)
	copy(msg.RandomPubkey[:], exportPubkey(h.randomPrivKey.PubKey()))
	msg.Version = handshakeVersion
	packet, err := h.sealEIP8(msg)
	if err != nil {
		return nil, err
	}
	h.respNonce = nonce
	h.ackPacket = packet
	if err := h.finalize(); err != nil {
		return nil, err
	}
	return packet, nil
}

// ParseAck processes the recipient handshake message on the initiator side
// and derives the session keys. It must be called after CreateAuth.
func (h *Handshake) ParseAck(packet []byte) error {
	if !h.initiator || h.authPacket == nil || h.session != nil {
		return newHandshakeError(InvalidAck, errors.New("ack not expected"))
	}
	msg := new(authRespV4)
	if err := h.openEIP8(msg, packet); err != nil {
		return newHandshakeError(InvalidAck, err)
	}
	if msg.Version < handshakeVersion {
		return newHandshakeError(InvalidAck, fmt.Errorf("%w: ack version %d", ErrVersionMismatch, msg.Version))
	}
	rpub, err := importPublicKey(msg.RandomPubkey[:])
	if err != nil {
		return newHandshakeError(InvalidAck, err)
	}
	h.respNonce = bytes.Clone(msg.Nonce[:])
	h.remoteRandomPub = rpub
	h.ackPacket = bytes.Clone(packet)
	if err := h.finalize(); err != nil {
		return newHandshakeError(InvalidAck, err)
	}
	return nil
}

// secrets extracts the connection secrets from the handshake values.
func (h *Handshake) secrets() (Secrets, error) {
	ecdheSecret, err := ecies.GenerateShared(h.randomPrivKey, h.remoteRandomPub, sskLen, sskLen)
	if err != nil {
		return Secrets{}, err
	}
	defer zero(ecdheSecret)

	// derive base secrets from ephemeral key agreement
	nonceHash := crypto.Keccak256(h.respNonce, h.initNonce)
	sharedSecret := crypto.Keccak256(ecdheSecret, nonceHash)
	aesSecret := crypto.Keccak256(ecdheSecret, sharedSecret)
	s := Secrets{
		AES: aesSecret,
		MAC: crypto.Keccak256(ecdheSecret, aesSecret),
	}
	zero(nonceHash)
	zero(sharedSecret)

	// setup sha3 instances for the MACs
	seed1, seed2 := xor(s.MAC, h.respNonce), xor(s.MAC, h.initNonce)
	defer zero(seed1)
	defer zero(seed2)
	mac1 := sha3.NewLegacyKeccak256()
	mac1.Write(seed1)
	mac1.Write(h.authPacket)
	mac2 := sha3.NewLegacyKeccak256()
	mac2.Write(seed2)
	mac2.Write(h.ackPacket)
	if h.initiator {
		s.EgressMAC, s.IngressMAC = mac1, mac2
	} else {
		s.EgressMAC, s.IngressMAC = mac2, mac1
	}
	return s, nil
}

// finalize derives the session keys and erases the ephemeral key material.
func (h *Handshake) finalize() error {
	sec, err := h.secrets()
	if err != nil {
		return err
	}
	h.session = newSessionState(sec)
	zero(sec.AES)
	zero(sec.MAC)
	h.wipeEphemeral()
	return nil
}

// wipeEphemeral erases the ephemeral key, the nonces and the handshake
// packets.
func (h *Handshake) wipeEphemeral() {
	if h.randomPrivKey != nil {
		h.randomPrivKey.Zero()
		h.randomPrivKey = nil
	}
	zero(h.initNonce)
	zero(h.respNonce)
	h.initNonce, h.respNonce = nil, nil
	h.remoteRandomPub = nil
	h.authPacket, h.ackPacket = nil, nil
}

// Close erases all key material held by the handshake. Frame operations fail
// after Close.
func (h *Handshake) Close() {
	h.wipeEphemeral()
	if h.session != nil {
		h.session.wipe()
	}
	h.session = nil
	h.frameSize = 0
}

// staticSharedSecret returns the static shared secret, the result
// of key agreement between the local and remote static node key.
func (h *Handshake) staticSharedSecret() ([]byte, error) {
	return ecies.GenerateShared(h.prv, h.remote, sskLen, sskLen)
}

var padSpace = make([]byte, 300)

// sealEIP8 encodes a handshake message in the EIP-8 format: the RLP encoding
// plus random padding, ECIES-encrypted to the remote static key and preceded
// by its big-endian length.
func (h *Handshake) sealEIP8(msg interface{}) ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := rlp.Encode(buf, msg); err != nil {
		return nil, err
	}
	// pad with random amount of data. the amount needs to be at least 100 bytes to make
	// the message distinguishable from pre-EIP-8 handshakes.
	pad := padSpace[:mrand.Intn(len(padSpace)-100)+100]
	buf.Write(pad)
	prefix := make([]byte, 2)
	binary.BigEndian.PutUint16(prefix, uint16(buf.Len()+ecies.Overhead))

	enc, err := ecies.Encrypt(rand.Reader, h.remote, buf.Bytes(), nil, prefix)
	return append(prefix, enc...), err
}

// openEIP8 decrypts a complete EIP-8 handshake packet and decodes it into msg.
func (h *Handshake) openEIP8(msg interface{}, packet []byte) error {
	size, err := handshakePacketSize(packet)
	if err != nil {
		return err
	}
	if size != len(packet) {
		return ErrMalformedLength
	}
	dec, err := ecies.Decrypt(h.prv, packet[2:], nil, packet[:2])
	if err != nil {
		return err
	}
	// Can't use rlp.DecodeBytes here because it rejects
	// trailing data (forward-compatibility).
	s := rlp.NewStream(bytes.NewReader(dec), 0)
	return s.Decode(msg)
}

// handshakePacketSize returns the total length of the handshake packet that
// starts at buf, including the two byte prefix. It returns zero when fewer
// than two bytes are available.
func handshakePacketSize(buf []byte) (int, error) {
	if len(buf) < 2 {
		return 0, nil
	}
	size := int(binary.BigEndian.Uint16(buf))
	if size < ecies.Overhead {
		return 0, ErrMalformedLength
	}
	return size + 2, nil
}

// Frame operations. These fail with ErrKeysNotReady until the handshake has
// completed.

// HeaderLen returns the wire size of a frame header.
func (h *Handshake) HeaderLen() int {
	return headerLen
}

// BodyLen returns the wire size of the frame body announced by the most
// recently parsed header.
func (h *Handshake) BodyLen() int {
	return bodyLen(h.frameSize)
}

// CreateHeader returns the encrypted header of a frame carrying size bytes.
func (h *Handshake) CreateHeader(size int) ([]byte, error) {
	if h.session == nil {
		return nil, ErrKeysNotReady
	}
	if size > maxUint24 {
		return nil, errPlainMessageTooLarge
	}
	return h.session.sealHeader(nil, size), nil
}

// ParseHeader authenticates and decrypts a frame header.
func (h *Handshake) ParseHeader(b []byte) error {
	if h.session == nil {
		return ErrKeysNotReady
	}
	size, err := h.session.openHeader(b)
	if err != nil {
		return err
	}
	h.frameSize = size
	return nil
}

// CreateBody returns the encrypted body of a frame carrying payload.
func (h *Handshake) CreateBody(payload []byte) ([]byte, error) {
	if h.session == nil {
		return nil, ErrKeysNotReady
	}
	if len(payload) > maxUint24 {
		return nil, errPlainMessageTooLarge
	}
	return h.session.sealBody(nil, payload), nil
}

// ParseBody authenticates and decrypts the frame body that follows the last
// parsed header.
func (h *Handshake) ParseBody(b []byte) ([]byte, error) {
	if h.session == nil {
		return nil, ErrKeysNotReady
	}
	return h.session.openBody(b, h.frameSize)
}

// importPublicKey unmarshals 512 bit public keys.
func importPublicKey(pubKey []byte) (*btcec.PublicKey, error) {
	var pubKey65 []byte
	switch len(pubKey) {
	case 64:
		// add 'uncompressed key' flag
		pubKey65 = append([]byte{0x04}, pubKey...)
	case 65:
		pubKey65 = pubKey
	default:
		return nil, fmt.Errorf("invalid public key length %v (expect 64/65)", len(pubKey))
	}
	return crypto.UnmarshalPubkey(pubKey65)
}

func exportPubkey(pub *btcec.PublicKey) []byte {
	if pub == nil {
		panic("nil pubkey")
	}
	return crypto.FromECDSAPub(pub)[1:]
}

func xor(one, other []byte) (xor []byte) {
	xor = make([]byte, len(one))
	for i := 0; i < len(one); i++ {
		xor[i] = one[i] ^ other[i]
	}
	return xor
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
