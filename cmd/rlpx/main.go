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

// Command rlpx generates node keys and runs RLPx endpoints for testing.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/devp2p-go/rlpx/internal/debug"
	"github.com/urfave/cli/v2"
)

// newApp sets up the CLI app.
func newApp() *cli.App {
	app := &cli.App{
		Name:        filepath.Base(os.Args[0]),
		Usage:       "RLPx transport tool",
		Writer:      os.Stdout,
		HideVersion: true,
	}
	app.Flags = append(app.Flags, debug.Flags...)
	app.Flags = append(app.Flags, configFileFlag)
	app.Before = func(ctx *cli.Context) error {
		cfg, err := makeConfig(ctx)
		if err != nil {
			return err
		}
		return debug.Setup(cfg.Log)
	}
	app.After = func(ctx *cli.Context) error {
		debug.Exit()
		return nil
	}
	app.CommandNotFound = func(ctx *cli.Context, cmd string) {
		fmt.Fprintf(os.Stderr, "No such command: %s\n", cmd)
		os.Exit(1)
	}
	app.Commands = []*cli.Command{
		keyCommand,
		listenCommand,
		pingCommand,
		dumpConfigCommand,
	}
	return app
}

func main() {
	exit(newApp().Run(os.Args))
}

func exit(err interface{}) {
	if err == nil {
		os.Exit(0)
	}
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
