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
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/devp2p-go/rlpx/log"
	"github.com/devp2p-go/rlpx/p2p"
	"github.com/devp2p-go/rlpx/p2p/enode"
	"github.com/devp2p-go/rlpx/p2p/rlpx"
	"github.com/devp2p-go/rlpx/p2p/transport"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/urfave/cli/v2"
)

// devp2p base protocol message codes.
const (
	discMsg = 0x01
	pingMsg = 0x02
	pongMsg = 0x03
)

var (
	listenCommand = &cli.Command{
		Name:   "listen",
		Usage:  "Runs an RLPx endpoint that answers pings",
		Action: listen,
		Flags:  nodeFlags,
	}
	pingCommand = &cli.Command{
		Name:      "ping",
		Usage:     "Performs an RLPx handshake and measures the ping round trip",
		ArgsUsage: "<node>",
		Action:    ping,
		Flags:     nodeFlags,
	}
)

func listen(ctx *cli.Context) error {
	cfg, err := makeConfig(ctx)
	if err != nil {
		return err
	}
	scfg, err := cfg.Node.serverConfig()
	if err != nil {
		return err
	}
	srv := &p2p.Server{Config: scfg, Handler: pongHandler}
	if err := srv.Start(); err != nil {
		return err
	}
	defer srv.Stop()
	fmt.Fprintln(ctx.App.Writer, srv.Self().URLv4())

	sigctx, stop := signal.NotifyContext(ctx.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()
	if len(srv.StaticNodes) > 0 {
		if err := srv.DialStatic(sigctx); err != nil {
			log.Warn("Static dial failed", "err", err)
		}
	}
	<-sigctx.Done()
	return nil
}

// pongHandler answers ping messages until the peer disconnects.
func pongHandler(c *p2p.Conn) error {
	for {
		code, _, size, err := c.Read()
		if err != nil {
			return err
		}
		switch code {
		case pingMsg:
			if _, err := c.Write(pongMsg, rlp.EmptyList); err != nil {
				return err
			}
		case discMsg:
			return errors.New("peer disconnected")
		default:
			log.Debug("Ignoring message", "id", c.RemoteID(), "code", code, "size", size)
		}
	}
}

func ping(ctx *cli.Context) error {
	if ctx.NArg() != 1 {
		return errors.New("need node as argument")
	}
	n, err := enode.ParseV4(ctx.Args().Get(0))
	if err != nil {
		return err
	}
	cfg, err := makeConfig(ctx)
	if err != nil {
		return err
	}
	scfg, err := cfg.Node.serverConfig()
	if err != nil {
		return err
	}
	rtt, err := pingNode(ctx.Context, scfg, n)
	if err != nil {
		return err
	}
	fmt.Fprintf(ctx.App.Writer, "pong from %s in %v\n", n.ID().TerminalString(), rtt)
	return nil
}

// pingNode connects to n, sends a ping and waits for the pong. The whole
// exchange is bounded by the handshake timeout.
func pingNode(ctx context.Context, cfg p2p.Config, n *enode.Node) (time.Duration, error) {
	if n.Incomplete() {
		return 0, errors.New("node has no endpoint")
	}
	dialer, err := transport.NewDialer(cfg.Network)
	if err != nil {
		return 0, err
	}
	timeout := cfg.HandshakeTimeout
	if timeout == 0 {
		timeout = p2p.DefaultHandshakeTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn, err := dialer.Dial(ctx, n.Addr())
	if err != nil {
		return 0, err
	}
	s, err := rlpx.Connect(ctx, conn, cfg.PrivateKey, n.ID())
	if err != nil {
		return 0, err
	}
	defer s.Close()
	s.SetSnappy(cfg.Snappy)
	if deadline, ok := ctx.Deadline(); ok {
		s.SetReadDeadline(deadline)
	}

	start := time.Now()
	if _, err := s.Write(pingMsg, rlp.EmptyList); err != nil {
		return 0, err
	}
	for {
		code, _, _, err := s.Read()
		if err != nil {
			return 0, err
		}
		if code == pongMsg {
			return time.Since(start), nil
		}
	}
}
