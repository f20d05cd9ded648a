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

// Contains the meters used by the server.

package p2p

import "github.com/rcrowley/go-metrics"

const (
	MetricsInboundConnects  = "p2p/InboundConnects"
	MetricsOutboundConnects = "p2p/OutboundConnects"
	MetricsDialFailures     = "p2p/DialFailures"
	MetricsRejected         = "p2p/Rejected"
)

var (
	ingressConnectMeter = metrics.NewRegisteredMeter(MetricsInboundConnects, nil)
	egressConnectMeter  = metrics.NewRegisteredMeter(MetricsOutboundConnects, nil)
	dialFailureMeter    = metrics.NewRegisteredMeter(MetricsDialFailures, nil)
	rejectedMeter       = metrics.NewRegisteredMeter(MetricsRejected, nil)
	activePeerGauge     = metrics.NewRegisteredGauge("p2p/peers", nil)
)
