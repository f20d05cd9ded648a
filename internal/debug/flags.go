// Copyright 2016 The go-ethereum Authors
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

// Package debug wires the logging command line flags to the root logger.
package debug

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/devp2p-go/rlpx/log"
	"github.com/golang/glog"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/urfave/cli/v2"
	"gopkg.in/natefinch/lumberjack.v2"
)

const loggingCategory = "LOGGING AND DEBUGGING"

var (
	VerbosityFlag = &cli.IntFlag{
		Name:     "verbosity",
		Usage:    "Logging verbosity: 0=crit, 1=error, 2=warn, 3=info, 4=debug, 5=trace",
		Value:    int(log.LvlInfo),
		Category: loggingCategory,
	}
	LogFormatFlag = &cli.StringFlag{
		Name:     "log.format",
		Usage:    "Log format to use (terminal|logfmt|json|glog)",
		Value:    "terminal",
		Category: loggingCategory,
	}
	LogFileFlag = &cli.StringFlag{
		Name:     "log.file",
		Usage:    "Write logs to a file",
		Category: loggingCategory,
	}
	LogMaxSizeFlag = &cli.IntFlag{
		Name:     "log.maxsize",
		Usage:    "Maximum size in MBs of a single log file",
		Value:    100,
		Category: loggingCategory,
	}
	LogCompressFlag = &cli.BoolFlag{
		Name:     "log.compress",
		Usage:    "Compress rotated log files",
		Category: loggingCategory,
	}
)

// Flags holds all command-line flags required for debugging.
var Flags = []cli.Flag{
	VerbosityFlag,
	LogFormatFlag,
	LogFileFlag,
	LogMaxSizeFlag,
	LogCompressFlag,
}

// Config is the logging section of the configuration file.
type Config struct {
	Verbosity int
	Format    string
	File      string `toml:",omitempty"`
	MaxSize   int    `toml:",omitempty"`
	Compress  bool   `toml:",omitempty"`
}

// DefaultConfig mirrors the flag defaults.
var DefaultConfig = Config{
	Verbosity: int(log.LvlInfo),
	Format:    "terminal",
	MaxSize:   100,
}

var (
	logFileMu sync.Mutex
	logFile   io.Closer
)

// ApplyFlags overrides cfg with the flags set on the command line.
func ApplyFlags(ctx *cli.Context, cfg *Config) {
	if ctx.IsSet(VerbosityFlag.Name) {
		cfg.Verbosity = ctx.Int(VerbosityFlag.Name)
	}
	if ctx.IsSet(LogFormatFlag.Name) {
		cfg.Format = ctx.String(LogFormatFlag.Name)
	}
	if ctx.IsSet(LogFileFlag.Name) {
		cfg.File = ctx.String(LogFileFlag.Name)
	}
	if ctx.IsSet(LogMaxSizeFlag.Name) {
		cfg.MaxSize = ctx.Int(LogMaxSizeFlag.Name)
	}
	if ctx.IsSet(LogCompressFlag.Name) {
		cfg.Compress = ctx.Bool(LogCompressFlag.Name)
	}
}

// Setup installs the root log handler described by cfg. Terminal output to
// stderr is colored when stderr is a terminal.
func Setup(cfg Config) error {
	usecolor := (isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd())) && os.Getenv("TERM") != "dumb"
	output := io.Writer(os.Stderr)
	if usecolor {
		output = colorable.NewColorableStderr()
	}
	h, closer, err := newHandler(cfg, output, usecolor)
	if err != nil {
		return err
	}
	logFileMu.Lock()
	if logFile != nil {
		logFile.Close()
	}
	logFile = closer
	logFileMu.Unlock()

	log.Root().SetHandler(h)
	return nil
}

// Exit flushes and closes the log file, if any.
func Exit() {
	glog.Flush()
	logFileMu.Lock()
	defer logFileMu.Unlock()
	if logFile != nil {
		logFile.Close()
		logFile = nil
	}
}

// newHandler builds the handler for cfg. Output goes to the rotating log file
// when one is configured, else to stderr.
func newHandler(cfg Config, stderr io.Writer, usecolor bool) (log.Handler, io.Closer, error) {
	if cfg.Verbosity < int(log.LvlCrit) || cfg.Verbosity > int(log.LvlTrace) {
		return nil, nil, fmt.Errorf("invalid verbosity %d", cfg.Verbosity)
	}
	if cfg.Format == "glog" {
		h, err := newGlogHandler(cfg)
		return h, nil, err
	}
	var (
		output = stderr
		closer io.Closer
	)
	if cfg.File != "" {
		rotator := &lumberjack.Logger{
			Filename: cfg.File,
			MaxSize:  cfg.MaxSize,
			Compress: cfg.Compress,
		}
		output, closer, usecolor = rotator, rotator, false
	}

	var format log.Format
	switch cfg.Format {
	case "", "terminal":
		format = log.TerminalFormat(usecolor)
	case "logfmt":
		format = log.LogfmtFormat()
	case "json":
		format = log.JSONFormat()
	default:
		return nil, nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}
	return log.LvlFilterHandler(log.Lvl(cfg.Verbosity), log.StreamHandler(output, format)), closer, nil
}

// newGlogHandler routes records through glog. glog does its own file
// handling: with a log file configured, glog writes into that file's
// directory, otherwise to stderr. Debug and trace map onto glog's -v levels.
func newGlogHandler(cfg Config) (log.Handler, error) {
	v := 0
	switch log.Lvl(cfg.Verbosity) {
	case log.LvlDebug:
		v = 2
	case log.LvlTrace:
		v = 3
	}
	settings := map[string]string{
		"v":           strconv.Itoa(v),
		"logtostderr": strconv.FormatBool(cfg.File == ""),
	}
	if cfg.File != "" {
		settings["log_dir"] = filepath.Dir(cfg.File)
	}
	for name, value := range settings {
		if err := flag.Set(name, value); err != nil {
			return nil, fmt.Errorf("glog flag %s: %v", name, err)
		}
	}
	return log.LvlFilterHandler(log.Lvl(cfg.Verbosity), log.GlogHandler(log.GlogFormat())), nil
}
