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

// Package transport provides the byte streams RLPx sessions run over. Both
// plain TCP connections and QUIC streams are supported.
package transport

import (
	"context"
	"fmt"
	"net"

	"github.com/devp2p-go/rlpx/p2p/rlpx"
)

// Networks supported by Listen and NewDialer.
const (
	TCP  = "tcp"
	QUIC = "quic"
)

// Listener accepts inbound transports.
type Listener interface {
	// Accept waits for the next inbound transport. It returns ctx.Err()
	// if ctx is done first.
	Accept(ctx context.Context) (rlpx.Transport, error)
	Addr() net.Addr
	Close() error
}

// Dialer creates outbound transports.
type Dialer interface {
	Dial(ctx context.Context, addr string) (rlpx.Transport, error)
}

// Listen announces on the local address using the given network.
func Listen(network, addr string) (Listener, error) {
	var (
		ln  Listener
		err error
	)
	switch network {
	case TCP:
		ln, err = listenTCP(addr)
	case QUIC:
		ln, err = listenQUIC(addr)
	default:
		err = fmt.Errorf("unknown transport network %q", network)
	}
	if err != nil {
		return nil, err
	}
	return ln, nil
}

// NewDialer returns a dialer for the given network.
func NewDialer(network string) (Dialer, error) {
	switch network {
	case TCP:
		return new(tcpDialer), nil
	case QUIC:
		d, err := newQUICDialer()
		if err != nil {
			return nil, err
		}
		return d, nil
	default:
		return nil, fmt.Errorf("unknown transport network %q", network)
	}
}
