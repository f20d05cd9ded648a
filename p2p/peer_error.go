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

package p2p

import "fmt"

// RejectReason tells why the server refused a connection.
type RejectReason int

const (
	RejectSelf RejectReason = iota + 1
	RejectAlreadyConnected
	RejectTooManyAttempts
	RejectServerStopped
	RejectNetRestrict
)

var reasonToString = map[RejectReason]string{
	RejectSelf:             "connected to self",
	RejectAlreadyConnected: "already connected",
	RejectTooManyAttempts:  "too many attempts",
	RejectServerStopped:    "server stopped",
	RejectNetRestrict:      "not in netrestrict list",
}

func (r RejectReason) String() string {
	if s, ok := reasonToString[r]; ok {
		return s
	}
	return fmt.Sprintf("unknown reason %d", int(r))
}

// RejectError is returned for connections the server refuses to keep.
type RejectError struct {
	Reason RejectReason
}

func (e *RejectError) Error() string {
	return e.Reason.String()
}

// Is matches any RejectError with the same reason.
func (e *RejectError) Is(target error) bool {
	t, ok := target.(*RejectError)
	return ok && t.Reason == e.Reason
}

var (
	ErrSelf             = &RejectError{RejectSelf}
	ErrAlreadyConnected = &RejectError{RejectAlreadyConnected}
	ErrTooManyAttempts  = &RejectError{RejectTooManyAttempts}
	ErrServerStopped    = &RejectError{RejectServerStopped}
	ErrNetRestrict      = &RejectError{RejectNetRestrict}
)
