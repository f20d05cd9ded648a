// Copyright 2018 The go-ethereum Authors
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

// Package enode defines peer identities and the enode URL format of devp2p
// nodes.
package enode

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/devp2p-go/rlpx/crypto"
	lru "github.com/hashicorp/golang-lru"
)

// ID is the identity of a peer: its uncompressed secp256k1 public key without
// the leading 0x04 format byte.
type ID [64]byte

// pubkeyCacheSize bounds the number of decompressed public keys kept around.
const pubkeyCacheSize = 512

var pubkeyCache, _ = lru.New(pubkeyCacheSize)

// PubkeyToIDV4 derives the v4 node identifier from a public key.
func PubkeyToIDV4(key *btcec.PublicKey) ID {
	var id ID
	copy(id[:], crypto.FromECDSAPub(key)[1:])
	return id
}

// Pubkey returns the public key represented by the node ID.
// It returns an error if the ID is not a point on the curve.
func (n ID) Pubkey() (*btcec.PublicKey, error) {
	if v, ok := pubkeyCache.Get(n); ok {
		return v.(*btcec.PublicKey), nil
	}
	buf := make([]byte, crypto.PubkeyLength)
	buf[0] = 4
	copy(buf[1:], n[:])
	key, err := crypto.UnmarshalPubkey(buf)
	if err != nil {
		return nil, fmt.Errorf("id is invalid secp256k1 curve point: %w", err)
	}
	pubkeyCache.Add(n, key)
	return key, nil
}

// Bytes returns a byte slice representation of the ID
func (n ID) Bytes() []byte {
	return n[:]
}

// ID prints as a long hexadecimal number.
func (n ID) String() string {
	return fmt.Sprintf("%x", n[:])
}

// The Go syntax representation of a ID is a call to HexID.
func (n ID) GoString() string {
	return fmt.Sprintf("enode.HexID(\"%x\")", n[:])
}

// TerminalString returns a shortened hex string for terminal logging.
func (n ID) TerminalString() string {
	return hex.EncodeToString(n[:8])
}

// MarshalText implements the encoding.TextMarshaler interface.
func (n ID) MarshalText() ([]byte, error) {
	return []byte(hex.EncodeToString(n[:])), nil
}

// UnmarshalText implements the encoding.TextUnmarshaler interface.
func (n *ID) UnmarshalText(text []byte) error {
	id, err := ParseID(string(text))
	if err != nil {
		return err
	}
	*n = id
	return nil
}

// HexID converts a hex string to an ID.
// The string may be prefixed with 0x.
// It panics if the string is not a valid ID.
func HexID(in string) ID {
	id, err := ParseID(in)
	if err != nil {
		panic(err)
	}
	return id
}

var errWrongIDLength = errors.New("wrong length, want 128 hex chars")

// ParseID decodes a hex-encoded node ID. The string may be prefixed with 0x.
func ParseID(in string) (ID, error) {
	var id ID
	b, err := hex.DecodeString(strings.TrimPrefix(in, "0x"))
	if err != nil {
		return id, err
	} else if len(b) != len(id) {
		return id, errWrongIDLength
	}
	copy(id[:], b)
	return id, nil
}
