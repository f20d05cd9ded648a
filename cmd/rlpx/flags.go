// Copyright 2024 The go-ethereum Authors
// This file is part of go-ethereum.
//
// go-ethereum is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// go-ethereum is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with go-ethereum. If not, see <http://www.gnu.org/licenses/>.

package main

import (
	"github.com/urfave/cli/v2"
)

const nodeCategory = "NODE"

var (
	nodeKeyFlag = &cli.StringFlag{
		Name:     "nodekey",
		Usage:    "Node key file (a fresh key is generated when unset)",
		Category: nodeCategory,
	}
	listenAddrFlag = &cli.StringFlag{
		Name:     "addr",
		Usage:    "Listening address",
		Value:    ":30303",
		Category: nodeCategory,
	}
	transportFlag = &cli.StringFlag{
		Name:     "transport",
		Usage:    "Transport protocol (tcp|quic)",
		Value:    "tcp",
		Category: nodeCategory,
	}
	handshakeTimeoutFlag = &cli.DurationFlag{
		Name:     "handshake.timeout",
		Usage:    "Time limit for the RLPx handshake",
		Category: nodeCategory,
	}
	maxPendingPeersFlag = &cli.IntFlag{
		Name:     "maxpendpeers",
		Usage:    "Maximum number of pending connection attempts",
		Category: nodeCategory,
	}
	inboundRateFlag = &cli.Float64Flag{
		Name:     "inbound.rate",
		Usage:    "Accepted inbound connections per second (0 = unlimited)",
		Category: nodeCategory,
	}
	inboundBurstFlag = &cli.IntFlag{
		Name:     "inbound.burst",
		Usage:    "Burst size of the inbound connection limit",
		Category: nodeCategory,
	}
	snappyFlag = &cli.BoolFlag{
		Name:     "snappy",
		Usage:    "Compress messages with snappy",
		Category: nodeCategory,
	}
	nodeDBFlag = &cli.StringFlag{
		Name:     "nodedb",
		Usage:    "Node database directory (in-memory when unset)",
		Category: nodeCategory,
	}
	netRestrictFlag = &cli.StringFlag{
		Name:     "netrestrict",
		Usage:    "Restricts network communication to the given IP networks (CIDR masks)",
		Category: nodeCategory,
	}
	staticNodesFlag = &cli.StringSliceFlag{
		Name:     "static",
		Usage:    "enode URLs to dial on startup",
		Category: nodeCategory,
	}
)

var nodeFlags = []cli.Flag{
	nodeKeyFlag,
	listenAddrFlag,
	transportFlag,
	handshakeTimeoutFlag,
	maxPendingPeersFlag,
	inboundRateFlag,
	inboundBurstFlag,
	snappyFlag,
	nodeDBFlag,
	netRestrictFlag,
	staticNodesFlag,
}

// applyNodeFlags overrides cfg with the node flags set on the command line.
func applyNodeFlags(ctx *cli.Context, cfg *nodeConfig) {
	if ctx.IsSet(nodeKeyFlag.Name) {
		cfg.NodeKeyFile = ctx.String(nodeKeyFlag.Name)
	}
	if ctx.IsSet(listenAddrFlag.Name) {
		cfg.ListenAddr = ctx.String(listenAddrFlag.Name)
	}
	if ctx.IsSet(transportFlag.Name) {
		cfg.Transport = ctx.String(transportFlag.Name)
	}
	if ctx.IsSet(handshakeTimeoutFlag.Name) {
		cfg.HandshakeTimeout = ctx.Duration(handshakeTimeoutFlag.Name)
	}
	if ctx.IsSet(maxPendingPeersFlag.Name) {
		cfg.MaxPendingPeers = ctx.Int(maxPendingPeersFlag.Name)
	}
	if ctx.IsSet(inboundRateFlag.Name) {
		cfg.InboundRate = ctx.Float64(inboundRateFlag.Name)
	}
	if ctx.IsSet(inboundBurstFlag.Name) {
		cfg.InboundBurst = ctx.Int(inboundBurstFlag.Name)
	}
	if ctx.IsSet(snappyFlag.Name) {
		cfg.Snappy = ctx.Bool(snappyFlag.Name)
	}
	if ctx.IsSet(nodeDBFlag.Name) {
		cfg.NodeDatabase = ctx.String(nodeDBFlag.Name)
	}
	if ctx.IsSet(netRestrictFlag.Name) {
		cfg.NetRestrict = ctx.String(netRestrictFlag.Name)
	}
	if ctx.IsSet(staticNodesFlag.Name) {
		cfg.StaticNodes = ctx.StringSlice(staticNodesFlag.Name)
	}
}
