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

// Package ecies implements the Elliptic Curve Integrated Encryption Scheme
// over secp256k1 in the form devp2p uses for its handshake messages.
package ecies

import (
	"crypto/cipher"
	"crypto/hmac"
	"crypto/subtle"
	"encoding/binary"
	"errors"
	"fmt"
	"hash"
	"io"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/devp2p-go/rlpx/crypto"
)

var (
	ErrInvalidPublicKey           = errors.New("ecies: invalid public key")
	ErrInvalidKeyLength           = errors.New("ecies: invalid key length")
	ErrSharedKeyIsPointAtInfinity = errors.New("ecies: shared key is point at infinity")
	ErrSharedKeyTooBig            = errors.New("ecies: shared key params are too big")
	ErrInvalidMessage             = errors.New("ecies: invalid message")
)

// maxSharedKeyLength is the byte length of a secp256k1 field element.
const maxSharedKeyLength = 32

// GenerateShared performs ECDH between prv and pub and returns the X
// coordinate of the shared point, right-aligned in skLen+macLen bytes.
func GenerateShared(prv *btcec.PrivateKey, pub *btcec.PublicKey, skLen, macLen int) ([]byte, error) {
	if prv == nil || !validPoint(pub) {
		return nil, ErrInvalidPublicKey
	}
	if skLen+macLen > maxSharedKeyLength {
		return nil, ErrSharedKeyTooBig
	}
	x := secp256k1.GenerateSharedSecret(prv, pub)
	if isZero(x) {
		return nil, ErrSharedKeyIsPointAtInfinity
	}
	sk := make([]byte, skLen+macLen)
	copy(sk[len(sk)-len(x):], x)
	zero(x)
	return sk, nil
}

func validPoint(pub *btcec.PublicKey) bool {
	if pub == nil {
		return false
	}
	_, err := btcec.ParsePubKey(pub.SerializeUncompressed())
	return err == nil
}

// ConcatKDF is the NIST SP 800-56 Concatenation Key Derivation Function
// (see section 5.8.1).
func ConcatKDF(hash hash.Hash, z, s1 []byte, kdLen int) []byte {
	counterBytes := make([]byte, 4)
	k := make([]byte, 0, roundup(kdLen, hash.Size()))
	for counter := uint32(1); len(k) < kdLen; counter++ {
		binary.BigEndian.PutUint32(counterBytes, counter)
		hash.Reset()
		hash.Write(counterBytes)
		hash.Write(z)
		hash.Write(s1)
		k = hash.Sum(k)
	}
	return k[:kdLen]
}

// roundup rounds size up to the next multiple of blocksize.
func roundup(size, blocksize int) int {
	return size + blocksize - (size % blocksize)
}

// deriveKeys creates the encryption key and the MAC key from the shared secret.
func deriveKeys(hash hash.Hash, z, s1 []byte, keyLen int) (Ke, Km []byte) {
	K := ConcatKDF(hash, z, s1, 2*keyLen)
	Ke = K[:keyLen]
	Km = K[keyLen:]
	hash.Reset()
	hash.Write(Km)
	Km = hash.Sum(Km[:0])
	return Ke, Km
}

// MessageTag computes the HMAC of msg and shared under km.
func MessageTag(hash func() hash.Hash, km, msg, shared []byte) []byte {
	mac := hmac.New(hash, km)
	mac.Write(msg)
	mac.Write(shared)
	return mac.Sum(nil)
}

// SymEncrypt runs the AES-CTR keystream for key and iv over data. The
// result has the same length as data.
func SymEncrypt(key, iv, data []byte) ([]byte, error) {
	return ctrXOR(ECIES_AES128_SHA256, key, iv, data)
}

// SymDecrypt inverts SymEncrypt.
func SymDecrypt(key, iv, data []byte) ([]byte, error) {
	return ctrXOR(ECIES_AES128_SHA256, key, iv, data)
}

func ctrXOR(params *ECIESParams, key, iv, data []byte) ([]byte, error) {
	c, err := params.Cipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKeyLength, err)
	}
	if len(iv) != params.BlockSize {
		return nil, fmt.Errorf("%w: iv must be %d bytes", ErrInvalidKeyLength, params.BlockSize)
	}
	out := make([]byte, len(data))
	cipher.NewCTR(c, iv).XORKeyStream(out, data)
	return out, nil
}

// Encrypt encrypts a message using ECIES as specified in SEC 1, 5.1.
//
// s1 and s2 contain shared information that is not part of the resulting
// ciphertext. s1 is fed into key derivation, s2 is fed into the MAC. If the
// shared information parameters aren't being used, they should be nil.
func Encrypt(rand io.Reader, pub *btcec.PublicKey, m, s1, s2 []byte) ([]byte, error) {
	params := ECIES_AES128_SHA256
	if !validPoint(pub) {
		return nil, ErrInvalidPublicKey
	}
	R, err := crypto.GenerateKeyFrom(rand)
	if err != nil {
		return nil, err
	}
	defer R.Zero()

	z, err := GenerateShared(R, pub, params.KeyLen, params.KeyLen)
	if err != nil {
		return nil, err
	}
	defer zero(z)
	Ke, Km := deriveKeys(params.Hash(), z, s1, params.KeyLen)
	defer zero(Ke)
	defer zero(Km)

	iv := make([]byte, params.BlockSize)
	if _, err := io.ReadFull(rand, iv); err != nil {
		return nil, err
	}
	em, err := ctrXOR(params, Ke, iv, m)
	if err != nil {
		return nil, err
	}
	ivem := append(iv, em...)
	d := MessageTag(params.Hash, Km, ivem, s2)

	Rb := R.PubKey().SerializeUncompressed()
	ct := make([]byte, 0, len(Rb)+len(ivem)+len(d))
	ct = append(ct, Rb...)
	ct = append(ct, ivem...)
	ct = append(ct, d...)
	return ct, nil
}

// Decrypt decrypts an ECIES ciphertext produced by Encrypt.
func Decrypt(prv *btcec.PrivateKey, c, s1, s2 []byte) ([]byte, error) {
	params := ECIES_AES128_SHA256
	hLen := params.Hash().Size()
	const rLen = crypto.PubkeyLength
	if len(c) < rLen+params.BlockSize+hLen {
		return nil, ErrInvalidMessage
	}
	if c[0] != 4 {
		return nil, ErrInvalidPublicKey
	}
	R, err := btcec.ParsePubKey(c[:rLen])
	if err != nil {
		return nil, ErrInvalidPublicKey
	}
	z, err := GenerateShared(prv, R, params.KeyLen, params.KeyLen)
	if err != nil {
		return nil, err
	}
	defer zero(z)
	Ke, Km := deriveKeys(params.Hash(), z, s1, params.KeyLen)
	defer zero(Ke)
	defer zero(Km)

	mStart, mEnd := rLen, len(c)-hLen
	d := MessageTag(params.Hash, Km, c[mStart:mEnd], s2)
	if subtle.ConstantTimeCompare(c[mEnd:], d) != 1 {
		return nil, ErrInvalidMessage
	}
	iv := c[mStart : mStart+params.BlockSize]
	return ctrXOR(params, Ke, iv, c[mStart+params.BlockSize:mEnd])
}

func isZero(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
