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

import "io"

const minReadSize = 4096

// readBuffer accumulates transport input until the codec can decode a unit.
type readBuffer struct {
	data []byte
	off  int
}

// unread returns the buffered bytes that have not been consumed yet.
func (b *readBuffer) unread() []byte {
	return b.data[b.off:]
}

// consume drops n bytes from the front of the unread data.
func (b *readBuffer) consume(n int) {
	b.off += n
	if b.off == len(b.data) {
		b.data = b.data[:0]
		b.off = 0
	}
}

// fill performs a single Read from r into the free space of the buffer,
// compacting and growing it as needed.
func (b *readBuffer) fill(r io.Reader) error {
	if b.off > 0 {
		n := copy(b.data, b.data[b.off:])
		b.data = b.data[:n]
		b.off = 0
	}
	if cap(b.data)-len(b.data) < minReadSize {
		grown := make([]byte, len(b.data), 2*cap(b.data)+minReadSize)
		copy(grown, b.data)
		b.data = grown
	}
	n, err := r.Read(b.data[len(b.data):cap(b.data)])
	b.data = b.data[:len(b.data)+n]
	if n > 0 {
		return nil
	}
	return err
}
