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
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"hash"
)

const (
	// maxUint24 is the largest payload a frame header can describe.
	maxUint24 = int(^uint32(0) >> 8)

	headerLen = 32 // encrypted header block plus its MAC
	macLen    = 16
)

var (
	// this is used in place of actual frame header data.
	zeroHeader = []byte{0xC2, 0x80, 0x80}
	// sixteen zero bytes
	zero16 = make([]byte, 16)
)

// Secrets represents the connection secrets which are negotiated during the handshake.
type Secrets struct {
	AES, MAC              []byte
	EgressMAC, IngressMAC hash.Hash
}

// sessionState contains the session keys.
type sessionState struct {
	enc        cipher.Stream
	dec        cipher.Stream
	egressMAC  hashMAC
	ingressMAC hashMAC
}

func newSessionState(sec Secrets) *sessionState {
	macc, err := aes.NewCipher(sec.MAC)
	if err != nil {
		panic("invalid MAC secret: " + err.Error())
	}
	encc, err := aes.NewCipher(sec.AES)
	if err != nil {
		panic("invalid AES secret: " + err.Error())
	}
	// we use an all-zeroes IV for AES because the key used
	// for encryption is ephemeral.
	iv := make([]byte, encc.BlockSize())
	return &sessionState{
		enc:        cipher.NewCTR(encc, iv),
		dec:        cipher.NewCTR(encc, iv),
		egressMAC:  newHashMAC(macc, sec.EgressMAC),
		ingressMAC: newHashMAC(macc, sec.IngressMAC),
	}
}

// wipe clears both MAC states and drops the ciphers. The AES key schedules
// live inside crypto/cipher and go away with the last reference.
func (s *sessionState) wipe() {
	s.egressMAC.wipe()
	s.ingressMAC.wipe()
	s.enc, s.dec = nil, nil
}

// sealHeader appends the encrypted and MAC-tagged header of a frame holding
// size bytes to dst.
func (s *sessionState) sealHeader(dst []byte, size int) []byte {
	start := len(dst)
	dst = append(dst, make([]byte, headerLen)...)
	hdr := dst[start:]
	putUint24(uint32(size), hdr)
	copy(hdr[3:], zeroHeader)
	s.enc.XORKeyStream(hdr[:16], hdr[:16])
	copy(hdr[16:], s.egressMAC.computeHeader(hdr[:16]))
	return dst
}

// sealBody appends the encrypted, padded and MAC-tagged payload to dst.
func (s *sessionState) sealBody(dst, payload []byte) []byte {
	start := len(dst)
	dst = append(dst, payload...)
	if padding := len(payload) % 16; padding > 0 {
		dst = append(dst, zero16[:16-padding]...)
	}
	body := dst[start:]
	s.enc.XORKeyStream(body, body)
	return append(dst, s.egressMAC.computeFrame(body)...)
}

// openHeader verifies and decrypts a frame header, returning the payload size.
func (s *sessionState) openHeader(b []byte) (int, error) {
	if len(b) != headerLen {
		return 0, ErrMalformedLength
	}
	wantMAC := s.ingressMAC.computeHeader(b[:16])
	if !hmac.Equal(wantMAC, b[16:]) {
		return 0, ErrHeaderMAC
	}
	var hdr [16]byte
	s.dec.XORKeyStream(hdr[:], b[:16])
	return int(readUint24(hdr[:])), nil
}

// openBody verifies and decrypts a frame body of the given payload size.
func (s *sessionState) openBody(b []byte, size int) ([]byte, error) {
	if len(b) != bodyLen(size) {
		return nil, ErrMalformedLength
	}
	framedata := b[:len(b)-macLen]
	wantMAC := s.ingressMAC.computeFrame(framedata)
	if !hmac.Equal(wantMAC, b[len(b)-macLen:]) {
		return nil, ErrFrameMAC
	}
	out := make([]byte, len(framedata))
	s.dec.XORKeyStream(out, framedata)
	return out[:size], nil
}

// bodyLen returns the wire size of a frame body carrying size payload bytes.
func bodyLen(size int) int {
	rsize := size
	if padding := size % 16; padding > 0 {
		rsize += 16 - padding
	}
	return rsize + macLen
}

func readUint24(b []byte) uint32 {
	return uint32(b[2]) | uint32(b[1])<<8 | uint32(b[0])<<16
}

func putUint24(v uint32, b []byte) {
	b[0] = byte(v >> 16)
	b[1] = byte(v >> 8)
	b[2] = byte(v)
}
