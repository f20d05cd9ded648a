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
	"errors"
	"time"

	"github.com/rcrowley/go-metrics"
)

const (
	ingressMeterName = "rlpx/ingress"
	egressMeterName  = "rlpx/egress"
)

var (
	ingressTrafficMeter = metrics.NewRegisteredMeter(ingressMeterName, nil)
	egressTrafficMeter  = metrics.NewRegisteredMeter(egressMeterName, nil)

	handshakeOkMeter   = metrics.NewRegisteredMeter("rlpx/handshake/ok", nil)
	handshakeFailMeter = metrics.NewRegisteredMeter("rlpx/handshake/fail", nil)
	handshakeTimer     = metrics.NewRegisteredTimer("rlpx/handshake/time", nil)
)

// deadliner is implemented by transports that support I/O deadlines.
type deadliner interface {
	SetDeadline(time.Time) error
	SetReadDeadline(time.Time) error
	SetWriteDeadline(time.Time) error
}

// meteredTransport is a wrapper around a Transport that meters both the
// inbound and outbound network traffic.
type meteredTransport struct {
	Transport
}

// newMeteredTransport wraps t unless metrics are disabled.
func newMeteredTransport(t Transport) Transport {
	if metrics.UseNilMetrics {
		return t
	}
	return &meteredTransport{Transport: t}
}

// Read delegates a network read to the underlying transport, bumping the
// ingress traffic meter along the way.
func (c *meteredTransport) Read(b []byte) (n int, err error) {
	n, err = c.Transport.Read(b)
	ingressTrafficMeter.Mark(int64(n))
	return n, err
}

// Write delegates a network write to the underlying transport, bumping the
// egress traffic meter along the way.
func (c *meteredTransport) Write(b []byte) (n int, err error) {
	n, err = c.Transport.Write(b)
	egressTrafficMeter.Mark(int64(n))
	return n, err
}

func (c *meteredTransport) SetDeadline(t time.Time) error {
	if d, ok := c.Transport.(deadliner); ok {
		return d.SetDeadline(t)
	}
	return errors.ErrUnsupported
}

func (c *meteredTransport) SetReadDeadline(t time.Time) error {
	if d, ok := c.Transport.(deadliner); ok {
		return d.SetReadDeadline(t)
	}
	return errors.ErrUnsupported
}

func (c *meteredTransport) SetWriteDeadline(t time.Time) error {
	if d, ok := c.Transport.(deadliner); ok {
		return d.SetWriteDeadline(t)
	}
	return errors.ErrUnsupported
}
