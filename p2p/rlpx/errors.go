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
)

// ErrorCode classifies handshake failures.
type ErrorCode int

const (
	InvalidAuth ErrorCode = iota + 1
	InvalidAck
	VersionMismatch
	UnexpectedMessage
)

var errorToString = map[ErrorCode]string{
	InvalidAuth:       "invalid auth",
	InvalidAck:        "invalid ack",
	VersionMismatch:   "version mismatch",
	UnexpectedMessage: "unexpected message",
}

func (c ErrorCode) String() string {
	if s, ok := errorToString[c]; ok {
		return s
	}
	return fmt.Sprintf("code(%d)", int(c))
}

// HandshakeError is returned for every failure during session establishment.
// The handshake cannot be retried after such an error, the connection must be
// discarded.
type HandshakeError struct {
	Code ErrorCode
	err  error
}

func newHandshakeError(code ErrorCode, err error) *HandshakeError {
	return &HandshakeError{Code: code, err: err}
}

func (e *HandshakeError) Error() string {
	if e.err == nil {
		return "rlpx handshake: " + e.Code.String()
	}
	return fmt.Sprintf("rlpx handshake: %v: %v", e.Code, e.err)
}

func (e *HandshakeError) Unwrap() error {
	return e.err
}

// Is reports whether target is a HandshakeError with the same code. This makes
// errors.Is(err, ErrUnexpectedMessage) work for wrapped errors.
func (e *HandshakeError) Is(target error) bool {
	t, ok := target.(*HandshakeError)
	return ok && t.Code == e.Code
}

var (
	ErrInvalidAuth       = &HandshakeError{Code: InvalidAuth}
	ErrInvalidAck        = &HandshakeError{Code: InvalidAck}
	ErrVersionMismatch   = &HandshakeError{Code: VersionMismatch}
	ErrUnexpectedMessage = &HandshakeError{Code: UnexpectedMessage}
)

// Codec and frame errors.
var (
	// ErrMalformedLength is returned for a handshake length prefix that is too
	// short to hold an ECIES envelope.
	ErrMalformedLength = errors.New("rlpx: malformed length prefix")
	ErrHeaderMAC       = errors.New("rlpx: bad header MAC")
	ErrFrameMAC        = errors.New("rlpx: bad frame MAC")
	ErrKeysNotReady    = errors.New("rlpx: session keys not derived yet")

	// errPlainMessageTooLarge is returned if a decompressed message length exceeds
	// the allowed 24 bits (i.e. length >= 16MB).
	errPlainMessageTooLarge = errors.New("message length >= 16MB")

	errInvalidTransition = errors.New("rlpx: invalid codec state transition")
	errCodecClosed       = errors.New("rlpx: codec closed")
)
