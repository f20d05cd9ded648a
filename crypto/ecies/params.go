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

package ecies

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"hash"
)

// ECIESParams describes the symmetric half of an ECIES scheme.
type ECIESParams struct {
	Hash      func() hash.Hash // hash function
	Cipher    func([]byte) (cipher.Block, error)
	BlockSize int // block size of symmetric cipher
	KeyLen    int // length of symmetric key
}

// ECIES_AES128_SHA256 is the scheme used by the RLPx handshake: AES-128-CTR
// encryption, the SHA-256 concat KDF and HMAC-SHA-256 tags.
var ECIES_AES128_SHA256 = &ECIESParams{
	Hash:      sha256.New,
	Cipher:    aes.NewCipher,
	BlockSize: aes.BlockSize,
	KeyLen:    16,
}

// Overhead is the number of bytes Encrypt adds to a message under
// ECIES_AES128_SHA256: the 65 byte ephemeral key, the IV and the tag.
const Overhead = 65 + aes.BlockSize + sha256.Size
