// Copyright 2014 The go-ethereum Authors
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

// Package crypto holds the secp256k1 key handling and hashing used by the
// RLPx transport.
package crypto

import (
	"bufio"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"os"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"golang.org/x/crypto/sha3"
)

// SignatureLength indicates the byte length required to carry a signature with recovery id.
const SignatureLength = 64 + 1 // 64 bytes ECDSA signature + 1 byte recovery id

// RecoveryIDOffset points to the byte offset within the signature that contains the recovery id.
const RecoveryIDOffset = 64

// DigestLength sets the signature digest exact length
const DigestLength = 32

// PubkeyLength is the length of an uncompressed public key including the
// 0x04 format byte.
const PubkeyLength = 65

var (
	// ErrInvalidKeyLength is returned for private keys that are not 32 bytes.
	ErrInvalidKeyLength = errors.New("invalid private key length, need 256 bits")

	errInvalidPrivkey = errors.New("invalid secp256k1 private key")
	errInvalidPubkey  = errors.New("invalid secp256k1 public key")
)

// KeccakState wraps sha3.state. In addition to the usual hash methods, it also supports
// Read to get a variable amount of data from the hash state. Read is faster than Sum
// because it doesn't copy the internal state, but also modifies the internal state.
type KeccakState interface {
	hash.Hash
	Read([]byte) (int, error)
}

// NewKeccakState creates a new KeccakState
func NewKeccakState() KeccakState {
	return sha3.NewLegacyKeccak256().(KeccakState)
}

// Keccak256 calculates and returns the Keccak256 hash of the input data.
func Keccak256(data ...[]byte) []byte {
	b := make([]byte, 32)
	d := NewKeccakState()
	for _, b := range data {
		d.Write(b)
	}
	d.Read(b)
	return b
}

// GenerateKey creates a fresh secp256k1 private key.
func GenerateKey() (*btcec.PrivateKey, error) {
	return btcec.NewPrivateKey()
}

// GenerateKeyFrom creates a private key from the given entropy source. Candidates
// that are zero or not below the group order are discarded.
func GenerateKeyFrom(rand io.Reader) (*btcec.PrivateKey, error) {
	var buf [32]byte
	defer zeroBytes(buf[:])
	for {
		if _, err := io.ReadFull(rand, buf[:]); err != nil {
			return nil, err
		}
		if key, err := ToPrivkey(buf[:]); err == nil {
			return key, nil
		}
	}
}

// ToPrivkey creates a private key with the given D value. The input must be
// exactly 32 bytes, nonzero and less than the curve order.
func ToPrivkey(d []byte) (*btcec.PrivateKey, error) {
	if len(d) != 32 {
		return nil, ErrInvalidKeyLength
	}
	var s secp256k1.ModNScalar
	if overflow := s.SetByteSlice(d); overflow || s.IsZero() {
		return nil, errInvalidPrivkey
	}
	return secp256k1.NewPrivateKey(&s), nil
}

// FromPrivkey exports a private key into a 32-byte big endian slice.
func FromPrivkey(prv *btcec.PrivateKey) []byte {
	if prv == nil {
		return nil
	}
	return prv.Serialize()
}

// UnmarshalPubkey converts bytes to a secp256k1 public key. Both the 65 byte
// uncompressed and the 33 byte compressed encodings are accepted.
func UnmarshalPubkey(pub []byte) (*btcec.PublicKey, error) {
	key, err := btcec.ParsePubKey(pub)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errInvalidPubkey, err)
	}
	return key, nil
}

// FromECDSAPub returns the 65 byte uncompressed encoding of pub.
func FromECDSAPub(pub *btcec.PublicKey) []byte {
	if pub == nil {
		return nil
	}
	return pub.SerializeUncompressed()
}

// HexToPrivkey parses a secp256k1 private key.
func HexToPrivkey(hexkey string) (*btcec.PrivateKey, error) {
	b, err := hex.DecodeString(hexkey)
	if byteErr, ok := err.(hex.InvalidByteError); ok {
		return nil, fmt.Errorf("invalid hex character %q in private key", byte(byteErr))
	} else if err != nil {
		return nil, errors.New("invalid hex data for private key")
	}
	defer zeroBytes(b)
	return ToPrivkey(b)
}

// LoadNodeKey loads a secp256k1 private key from the given file.
// The key data is expected to be hex-encoded, optionally followed by a newline.
func LoadNodeKey(file string) (*btcec.PrivateKey, error) {
	fd, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer fd.Close()

	r := bufio.NewReader(fd)
	buf := make([]byte, 64)
	defer zeroBytes(buf)
	n, err := readASCII(buf, r)
	if err != nil {
		return nil, err
	} else if n != len(buf) {
		return nil, errors.New("key file too short, want 64 hex characters")
	}
	if err := checkKeyFileEnd(r); err != nil {
		return nil, err
	}
	return HexToPrivkey(string(buf))
}

// readASCII reads into 'buf', stopping when the buffer is full or
// when a non-printable control character is encountered.
func readASCII(buf []byte, r *bufio.Reader) (n int, err error) {
	for ; n < len(buf); n++ {
		buf[n], err = r.ReadByte()
		switch {
		case err == io.EOF || buf[n] < '!':
			return n, nil
		case err != nil:
			return n, err
		}
	}
	return n, nil
}

// checkKeyFileEnd skips over additional newlines at the end of a key file.
func checkKeyFileEnd(r *bufio.Reader) error {
	for i := 0; ; i++ {
		b, err := r.ReadByte()
		switch {
		case err == io.EOF:
			return nil
		case err != nil:
			return err
		case b != '\n' && b != '\r':
			return fmt.Errorf("invalid character %q at end of key file", b)
		case i >= 2:
			return errors.New("key file too long, want 64 hex characters")
		}
	}
}

// SaveNodeKey saves a secp256k1 private key to the given file with
// restrictive permissions. The key data is saved hex-encoded.
func SaveNodeKey(file string, key *btcec.PrivateKey) error {
	k := hex.EncodeToString(FromPrivkey(key))
	return os.WriteFile(file, []byte(k), 0600)
}

func zeroBytes(bytes []byte) {
	for i := range bytes {
		bytes[i] = 0
	}
}
