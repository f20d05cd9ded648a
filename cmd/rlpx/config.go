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
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"reflect"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/devp2p-go/rlpx/crypto"
	"github.com/devp2p-go/rlpx/internal/debug"
	"github.com/devp2p-go/rlpx/p2p"
	"github.com/devp2p-go/rlpx/p2p/enode"
	"github.com/devp2p-go/rlpx/p2p/netutil"
	"github.com/devp2p-go/rlpx/p2p/transport"
	"github.com/naoina/toml"
	"github.com/urfave/cli/v2"
)

var (
	dumpConfigCommand = &cli.Command{
		Action:      dumpConfig,
		Name:        "dumpconfig",
		Usage:       "Show configuration values",
		ArgsUsage:   "",
		Flags:       nodeFlags,
		Description: `The dumpconfig command shows configuration values.`,
	}

	configFileFlag = &cli.StringFlag{
		Name:  "config",
		Usage: "TOML configuration file",
	}
)

// These settings ensure that TOML keys use the same names as Go struct fields.
var tomlSettings = toml.Config{
	NormFieldName: func(rt reflect.Type, key string) string {
		return key
	},
	FieldToKey: func(rt reflect.Type, field string) string {
		return field
	},
	MissingField: func(rt reflect.Type, field string) error {
		return fmt.Errorf("field '%s' is not defined in %s", field, rt.String())
	},
}

type nodeConfig struct {
	NodeKeyFile      string `toml:",omitempty"`
	ListenAddr       string
	Transport        string
	HandshakeTimeout time.Duration
	MaxPendingPeers  int
	InboundRate      float64 `toml:",omitempty"`
	InboundBurst     int     `toml:",omitempty"`
	Snappy           bool
	NodeDatabase     string `toml:",omitempty"`
	NetRestrict      string `toml:",omitempty"`
	StaticNodes      []string
}

type rlpxConfig struct {
	Node nodeConfig
	Log  debug.Config
}

func defaultConfig() rlpxConfig {
	return rlpxConfig{
		Node: nodeConfig{
			ListenAddr:       ":30303",
			Transport:        transport.TCP,
			HandshakeTimeout: p2p.DefaultHandshakeTimeout,
			MaxPendingPeers:  p2p.DefaultMaxPendingPeers,
			StaticNodes:      []string{},
		},
		Log: debug.DefaultConfig,
	}
}

func loadConfig(file string, cfg *rlpxConfig) error {
	f, err := os.Open(file)
	if err != nil {
		return err
	}
	defer f.Close()

	err = tomlSettings.NewDecoder(bufio.NewReader(f)).Decode(cfg)
	// Add file name to errors that have a line number.
	if _, ok := err.(*toml.LineError); ok {
		err = errors.New(file + ", " + err.Error())
	}
	return err
}

// makeConfig loads the configuration file, if any, and applies the flags set
// on the command line.
func makeConfig(ctx *cli.Context) (rlpxConfig, error) {
	cfg := defaultConfig()
	if file := ctx.String(configFileFlag.Name); file != "" {
		if err := loadConfig(file, &cfg); err != nil {
			return cfg, err
		}
	}
	applyNodeFlags(ctx, &cfg.Node)
	debug.ApplyFlags(ctx, &cfg.Log)
	return cfg, nil
}

// serverConfig converts the node settings into a p2p.Config. A fresh key is
// generated when no key file is configured.
func (c *nodeConfig) serverConfig() (p2p.Config, error) {
	var (
		key *btcec.PrivateKey
		err error
	)
	if c.NodeKeyFile != "" {
		key, err = crypto.LoadNodeKey(c.NodeKeyFile)
	} else {
		key, err = crypto.GenerateKey()
	}
	if err != nil {
		return p2p.Config{}, err
	}
	var restrict *netutil.Netlist
	if c.NetRestrict != "" {
		if restrict, err = netutil.ParseNetlist(c.NetRestrict); err != nil {
			return p2p.Config{}, fmt.Errorf("invalid netrestrict list: %w", err)
		}
	}
	it, err := enode.StaticNodes(c.StaticNodes)
	if err != nil {
		return p2p.Config{}, err
	}
	defer it.Close()

	return p2p.Config{
		PrivateKey:       key,
		ListenAddr:       c.ListenAddr,
		Network:          c.Transport,
		HandshakeTimeout: c.HandshakeTimeout,
		MaxPendingPeers:  c.MaxPendingPeers,
		InboundRate:      c.InboundRate,
		InboundBurst:     c.InboundBurst,
		Snappy:           c.Snappy,
		NetRestrict:      restrict,
		StaticNodes:      enode.ReadNodes(it, len(c.StaticNodes)),
		NodeDatabase:     c.NodeDatabase,
	}, nil
}

// dumpConfig is the dumpconfig command.
func dumpConfig(ctx *cli.Context) error {
	cfg, err := makeConfig(ctx)
	if err != nil {
		return err
	}
	return writeConfig(ctx.App.Writer, &cfg)
}

func writeConfig(w io.Writer, cfg *rlpxConfig) error {
	out, err := tomlSettings.Marshal(cfg)
	if err != nil {
		return err
	}
	_, err = w.Write(out)
	return err
}
