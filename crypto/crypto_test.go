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

package crypto

import (
	"bytes"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"
)

const testPrivHex = "289c2857d4598e37fb9647507e47a309d6133539bf21a8b9cb6df88fd5232032"

func checkhash(t *testing.T, name string, f func([]byte) []byte, msg, exp []byte) {
	t.Helper()
	sum := f(msg)
	if !bytes.Equal(exp, sum) {
		t.Fatalf("hash %s mismatch: want: %x have: %x", name, exp, sum)
	}
}

func TestKeccak256(t *testing.T) {
	msg := []byte("abc")
	exp, _ := hex.DecodeString("4e03657aea45a94fc7d47ba826c8d667c0d1e6e33a64a036ec44f58fa12d6c45")
	checkhash(t, "Keccak256", func(in []byte) []byte { return Keccak256(in) }, msg, exp)

	empty, _ := hex.DecodeString("c5d2460186f7233c927e7db2dcc703c0e500b653ca82273b7bfad8045d85a470")
	checkhash(t, "Keccak256-empty", func(in []byte) []byte { return Keccak256(in) }, nil, empty)
}

func TestKeccak256Parts(t *testing.T) {
	whole := Keccak256([]byte("hello world"))
	parts := Keccak256([]byte("hello"), []byte(" "), []byte("world"))
	if !bytes.Equal(whole, parts) {
		t.Fatalf("multi-part hash mismatch: %x != %x", whole, parts)
	}
}

func TestSign(t *testing.T) {
	key, _ := HexToPrivkey(testPrivHex)
	msg := Keccak256([]byte("foo"))
	sig, err := Sign(msg, key)
	if err != nil {
		t.Errorf("Sign error: %s", err)
	}
	if len(sig) != SignatureLength {
		t.Fatalf("wrong signature length %d", len(sig))
	}
	if v := sig[RecoveryIDOffset]; v > 1 {
		t.Errorf("recovery id out of range: %d", v)
	}
	recoveredPub, err := Ecrecover(msg, sig)
	if err != nil {
		t.Errorf("ECRecover error: %s", err)
	}
	if !bytes.Equal(recoveredPub, FromECDSAPub(key.PubKey())) {
		t.Errorf("Ecrecover mismatch: want %x have %x", FromECDSAPub(key.PubKey()), recoveredPub)
	}

	// should be equal to SigToPub
	recoveredPub2, err := SigToPub(msg, sig)
	if err != nil {
		t.Errorf("ECRecover error: %s", err)
	}
	if !recoveredPub2.IsEqual(key.PubKey()) {
		t.Errorf("SigToPub mismatch")
	}
}

func TestInvalidSign(t *testing.T) {
	key, _ := GenerateKey()
	if _, err := Sign(make([]byte, 1), key); err == nil {
		t.Errorf("expected sign with hash 1 byte to error")
	}
	if _, err := Sign(make([]byte, 33), key); err == nil {
		t.Errorf("expected sign with hash 33 byte to error")
	}
	if _, err := SigToPub(make([]byte, 32), make([]byte, 64)); err == nil {
		t.Errorf("expected recovery from short signature to error")
	}
}

func TestToPrivkeyErrors(t *testing.T) {
	if _, err := HexToPrivkey("0000000000000000000000000000000000000000000000000000000000000000"); err == nil {
		t.Fatal("HexToPrivkey should've returned error")
	}
	if _, err := HexToPrivkey("ffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffff"); err == nil {
		t.Fatal("HexToPrivkey should've returned error")
	}
	if _, err := ToPrivkey(make([]byte, 31)); err != ErrInvalidKeyLength {
		t.Fatalf("wrong error for short key: %v", err)
	}
}

func TestUnmarshalPubkey(t *testing.T) {
	key, _ := GenerateKey()
	enc := FromECDSAPub(key.PubKey())
	if len(enc) != PubkeyLength || enc[0] != 0x04 {
		t.Fatalf("unexpected encoding %x", enc)
	}
	pub, err := UnmarshalPubkey(enc)
	if err != nil {
		t.Fatal(err)
	}
	if !pub.IsEqual(key.PubKey()) {
		t.Fatal("decoded key mismatch")
	}
	// Not on curve.
	enc[64] ^= 0x01
	if _, err := UnmarshalPubkey(enc); err == nil {
		t.Fatal("no error for point off the curve")
	}
	if _, err := UnmarshalPubkey(nil); err == nil {
		t.Fatal("no error for nil input")
	}
}

func TestLoadNodeKey(t *testing.T) {
	tests := []struct {
		input string
		err   string
	}{
		// good
		{input: testPrivHex},
		{input: testPrivHex + "\n"},
		{input: testPrivHex + "\n\r"},
		{input: testPrivHex + "\r\n"},
		{input: testPrivHex + "\n\n"},
		{input: testPrivHex + "\n\r"},
		// bad
		{
			input: testPrivHex[:len(testPrivHex)-2],
			err:   "key file too short, want 64 hex characters",
		},
		{
			input: testPrivHex + "\n\n\n",
			err:   "key file too long, want 64 hex characters",
		},
		{
			input: testPrivHex + "X",
			err:   "invalid character 'X' at end of key file",
		},
		{
			input: "X" + testPrivHex[1:],
			err:   "invalid hex character 'X' in private key",
		},
	}

	for _, test := range tests {
		f := filepath.Join(t.TempDir(), "key")
		if err := os.WriteFile(f, []byte(test.input), 0600); err != nil {
			t.Fatal(err)
		}
		key, err := LoadNodeKey(f)
		switch {
		case err != nil && test.err == "":
			t.Fatalf("unexpected error for input %q:\n  %v", test.input, err)
		case err != nil && err.Error() != test.err:
			t.Fatalf("wrong error for input %q:\n  %v", test.input, err)
		case err == nil && test.err != "":
			t.Fatalf("LoadNodeKey did not return error for input %q", test.input)
		case err == nil && hex.EncodeToString(FromPrivkey(key)) != testPrivHex:
			t.Fatalf("wrong key %x for input %q", FromPrivkey(key), test.input)
		}
	}
}

func TestSaveNodeKey(t *testing.T) {
	file := filepath.Join(t.TempDir(), "nodekey")
	key, _ := HexToPrivkey(testPrivHex)
	if err := SaveNodeKey(file, key); err != nil {
		t.Fatal(err)
	}
	loaded, err := LoadNodeKey(file)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(FromPrivkey(loaded), FromPrivkey(key)) {
		t.Fatal("loaded key not equal to saved key")
	}
}
