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

// Package p2p implements a server that accepts and dials RLPx sessions.
package p2p

import (
	"context"
	"errors"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/devp2p-go/rlpx/log"
	"github.com/devp2p-go/rlpx/p2p/enode"
	"github.com/devp2p-go/rlpx/p2p/netutil"
	"github.com/devp2p-go/rlpx/p2p/rlpx"
	"github.com/devp2p-go/rlpx/p2p/transport"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

const (
	DefaultHandshakeTimeout = 5 * time.Second
	DefaultMaxPendingPeers  = 50

	// Maximum number of known nodes taken from the database when dialing.
	seedCount  = 30
	seedMaxAge = 5 * 24 * time.Hour

	// Pause after a failed Accept before retrying.
	acceptRetryDelay = 50 * time.Millisecond
)

var errServerRunning = errors.New("server already running")

// Config holds Server options.
type Config struct {
	// This field must be set to a valid secp256k1 private key.
	PrivateKey *btcec.PrivateKey `toml:"-"`

	// ListenAddr is the address the server listens on. If empty, the server
	// does not accept inbound connections.
	ListenAddr string

	// Network selects the transport, transport.TCP (default) or transport.QUIC.
	Network string `toml:",omitempty"`

	// HandshakeTimeout bounds the RLPx handshake of every connection.
	HandshakeTimeout time.Duration `toml:",omitempty"`

	// MaxPendingPeers is the maximum number of peers that can be pending in the
	// handshake phase, counted separately for inbound and outbound connections.
	MaxPendingPeers int `toml:",omitempty"`

	// InboundRate limits accepted inbound connections per second. Zero means
	// no limit. InboundBurst is the bucket size of the limiter.
	InboundRate  float64 `toml:",omitempty"`
	InboundBurst int     `toml:",omitempty"`

	// If NetRestrict is set, connections are only accepted from and dialed to
	// IP networks contained in the list.
	NetRestrict *netutil.Netlist `toml:",omitempty"`

	// Snappy enables compression of messages sent and received through
	// Session.Read and Session.Write.
	Snappy bool

	// StaticNodes are dialed by DialStatic.
	StaticNodes []*enode.Node

	// NodeDatabase is the path to the database containing the previously seen
	// nodes in the network. An empty path selects an in-memory database.
	NodeDatabase string `toml:",omitempty"`

	// If Logger is set, it is used as the server's logger.
	Logger log.Logger `toml:"-"`
}

// Conn is an established session handed to the server's handler.
type Conn struct {
	*rlpx.Session
	Inbound bool
}

// Server manages RLPx connections.
type Server struct {
	// Config fields may not be modified while the server is running.
	Config

	// Handler runs in its own goroutine for every established connection. The
	// connection is closed when it returns. If nil, the connection is read
	// until it fails.
	Handler func(c *Conn) error

	lock     sync.Mutex
	running  bool
	listener transport.Listener
	dialer   transport.Dialer
	nodedb   *enode.DB
	limiter  *rate.Limiter
	ctx      context.Context
	cancel   context.CancelFunc
	log      log.Logger

	peers  mapset.Set[enode.ID]
	conns  map[*Conn]struct{}
	loopWG sync.WaitGroup
}

// Start starts running the server.
func (srv *Server) Start() (err error) {
	srv.lock.Lock()
	defer srv.lock.Unlock()
	if srv.running {
		return errServerRunning
	}
	if srv.PrivateKey == nil {
		return errors.New("Server.PrivateKey must be set to a non-nil key")
	}
	srv.log = srv.Config.Logger
	if srv.log == nil {
		srv.log = log.Root()
	}
	if srv.Network == "" {
		srv.Network = transport.TCP
	}
	if srv.HandshakeTimeout == 0 {
		srv.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if srv.MaxPendingPeers <= 0 {
		srv.MaxPendingPeers = DefaultMaxPendingPeers
	}
	if srv.InboundRate > 0 {
		burst := srv.InboundBurst
		if burst <= 0 {
			burst = 1
		}
		srv.limiter = rate.NewLimiter(rate.Limit(srv.InboundRate), burst)
	}
	if srv.Handler == nil {
		srv.Handler = drain
	}

	if srv.nodedb, err = enode.OpenDB(srv.NodeDatabase); err != nil {
		return err
	}
	if srv.dialer, err = transport.NewDialer(srv.Network); err != nil {
		srv.nodedb.Close()
		return err
	}
	if srv.ListenAddr != "" {
		if srv.listener, err = transport.Listen(srv.Network, srv.ListenAddr); err != nil {
			srv.nodedb.Close()
			return err
		}
	}

	srv.peers = mapset.NewSet[enode.ID]()
	srv.conns = make(map[*Conn]struct{})
	srv.ctx, srv.cancel = context.WithCancel(context.Background())
	srv.running = true
	self := srv.Self()
	srv.log.Info("Started RLPx server", "self", self.URLv4(), "network", srv.Network)

	if srv.listener != nil {
		srv.loopWG.Add(1)
		go srv.listenLoop()
	}
	return nil
}

// Stop terminates the server and all active connections. It blocks until
// all connection goroutines have exited.
func (srv *Server) Stop() {
	srv.lock.Lock()
	if !srv.running {
		srv.lock.Unlock()
		return
	}
	srv.running = false
	srv.cancel()
	if srv.listener != nil {
		srv.listener.Close()
	}
	for c := range srv.conns {
		c.Close()
	}
	srv.lock.Unlock()

	srv.loopWG.Wait()
	srv.nodedb.Close()
	srv.log.Info("RLPx server stopped")
}

// Self returns the local node's endpoint information.
func (srv *Server) Self() *enode.Node {
	var (
		ip   net.IP
		port int
	)
	if srv.listener != nil {
		if host, p, err := net.SplitHostPort(srv.listener.Addr().String()); err == nil {
			ip = net.ParseIP(host)
			port, _ = strconv.Atoi(p)
		}
	}
	if ip == nil || ip.IsUnspecified() {
		ip = net.IPv4(127, 0, 0, 1)
	}
	return enode.NewV4(srv.PrivateKey.PubKey(), ip, port)
}

// NodeDB returns the node database of a running server.
func (srv *Server) NodeDB() *enode.DB {
	return srv.nodedb
}

// PeerCount returns the number of connected peers.
func (srv *Server) PeerCount() int {
	if srv.peers == nil {
		return 0
	}
	return srv.peers.Cardinality()
}

// Connected reports whether a session with the given node is active.
func (srv *Server) Connected(id enode.ID) bool {
	return srv.peers != nil && srv.peers.Contains(id)
}

// listenLoop runs in its own goroutine and accepts inbound connections.
func (srv *Server) listenLoop() {
	defer srv.loopWG.Done()
	srv.log.Debug("TCP listener up", "addr", srv.listener.Addr())

	// The slots channel limits accepts of new connections.
	slots := make(chan struct{}, srv.MaxPendingPeers)
	for i := 0; i < srv.MaxPendingPeers; i++ {
		slots <- struct{}{}
	}

	for {
		// Wait for a free slot before accepting.
		select {
		case <-slots:
		case <-srv.ctx.Done():
			return
		}

		conn, err := srv.listener.Accept(srv.ctx)
		if err != nil {
			slots <- struct{}{}
			if srv.ctx.Err() != nil {
				return
			}
			srv.log.Debug("Read error", "err", err)
			select {
			case <-time.After(acceptRetryDelay):
			case <-srv.ctx.Done():
				return
			}
			continue
		}
		remote := conn.RemoteAddr()
		if err := srv.checkInboundConn(remote); err != nil {
			srv.log.Debug("Rejected inbound connection", "addr", remote, "err", err)
			rejectedMeter.Mark(1)
			conn.Close()
			slots <- struct{}{}
			continue
		}
		ingressConnectMeter.Mark(1)
		srv.log.Trace("Accepted connection", "addr", remote)

		srv.loopWG.Add(1)
		go func() {
			defer srv.loopWG.Done()
			c, err := srv.setupConn(conn, nil)
			slots <- struct{}{}
			if err != nil {
				srv.log.Debug("Inbound handshake failed", "addr", remote, "err", err)
				return
			}
			srv.run(c)
		}()
	}
}

func (srv *Server) checkInboundConn(remote net.Addr) error {
	if srv.NetRestrict != nil && !srv.NetRestrict.ContainsAddr(netutil.AddrIP(remote)) {
		return ErrNetRestrict
	}
	if srv.limiter != nil && !srv.limiter.Allow() {
		return ErrTooManyAttempts
	}
	return nil
}

// setupConn runs the handshake over conn and registers the session. dest is
// nil for inbound connections.
func (srv *Server) setupConn(conn rlpx.Transport, dest *enode.Node) (*Conn, error) {
	ctx, cancel := context.WithTimeout(srv.ctx, srv.HandshakeTimeout)
	defer cancel()

	var (
		s   *rlpx.Session
		err error
	)
	if dest == nil {
		s, err = rlpx.Accept(ctx, conn, srv.PrivateKey)
	} else {
		s, err = rlpx.Connect(ctx, conn, srv.PrivateKey, dest.ID())
	}
	if err != nil {
		return nil, err
	}

	c := &Conn{Session: s, Inbound: dest == nil}
	id := s.RemoteID()
	if err := srv.addPeer(c); err != nil {
		rejectedMeter.Mark(1)
		s.Close()
		return nil, err
	}
	s.SetSnappy(srv.Snappy)
	if dest != nil {
		srv.nodedb.UpdateNode(dest)
	}
	srv.nodedb.UpdateLastHandshake(id, time.Now())
	activePeerGauge.Update(int64(srv.peers.Cardinality()))
	srv.log.Debug("Adding peer", "id", id, "addr", s.RemoteAddr(), "inbound", c.Inbound)
	return c, nil
}

// addPeer registers c. On success the caller must hand c to run.
func (srv *Server) addPeer(c *Conn) error {
	srv.lock.Lock()
	defer srv.lock.Unlock()
	id := c.RemoteID()
	switch {
	case !srv.running:
		return ErrServerStopped
	case id == enode.PubkeyToIDV4(srv.PrivateKey.PubKey()):
		return ErrSelf
	case !srv.peers.Add(id):
		return ErrAlreadyConnected
	}
	srv.conns[c] = struct{}{}
	srv.loopWG.Add(1)
	return nil
}

// run executes the handler for c and unregisters the connection afterwards.
func (srv *Server) run(c *Conn) {
	defer srv.loopWG.Done()
	err := srv.Handler(c)
	c.Close()

	srv.lock.Lock()
	delete(srv.conns, c)
	srv.lock.Unlock()
	srv.peers.Remove(c.RemoteID())
	activePeerGauge.Update(int64(srv.peers.Cardinality()))
	srv.log.Debug("Removing peer", "id", c.RemoteID(), "err", err)
}

// Dial connects to the given node and hands the session to the handler. It
// returns once the handshake has completed.
func (srv *Server) Dial(ctx context.Context, n *enode.Node) error {
	srv.lock.Lock()
	running := srv.running
	srv.lock.Unlock()
	if !running {
		return ErrServerStopped
	}
	if n.Incomplete() {
		return errors.New("node has no endpoint")
	}
	if srv.Connected(n.ID()) {
		return ErrAlreadyConnected
	}
	if srv.NetRestrict != nil && !srv.NetRestrict.Contains(n.IP()) {
		return ErrNetRestrict
	}

	conn, err := srv.dialer.Dial(ctx, n.Addr())
	if err == nil {
		var c *Conn
		if c, err = srv.setupConn(conn, n); err == nil {
			egressConnectMeter.Mark(1)
			srv.nodedb.UpdateDialFails(n.ID(), 0)
			go srv.run(c)
			return nil
		}
	}
	if !errors.Is(err, ErrAlreadyConnected) {
		dialFailureMeter.Mark(1)
		srv.nodedb.UpdateDialFails(n.ID(), srv.nodedb.DialFails(n.ID())+1)
	}
	return err
}

// DialStatic dials the static nodes and recently seen nodes from the node
// database, at most MaxPendingPeers at a time. It returns the first dial
// error. Nodes that are already connected are skipped.
func (srv *Server) DialStatic(ctx context.Context) error {
	srv.lock.Lock()
	running := srv.running
	srv.lock.Unlock()
	if !running {
		return ErrServerStopped
	}
	self := enode.PubkeyToIDV4(srv.PrivateKey.PubKey())
	candidates := append([]*enode.Node(nil), srv.StaticNodes...)
	candidates = append(candidates, srv.nodedb.QuerySeeds(seedCount, seedMaxAge)...)
	it := enode.Filter(enode.IterNodes(candidates), func(n *enode.Node) bool {
		if srv.NetRestrict != nil && !srv.NetRestrict.Contains(n.IP()) {
			return false
		}
		return n.ID() != self && !n.Incomplete() && !srv.Connected(n.ID())
	})
	defer it.Close()
	nodes := enode.ReadNodes(it, len(candidates))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(srv.MaxPendingPeers)
	for _, n := range nodes {
		g.Go(func() error {
			err := srv.Dial(ctx, n)
			if err != nil && !errors.Is(err, ErrAlreadyConnected) {
				srv.log.Debug("Dial failed", "id", n.ID(), "addr", n.Addr(), "err", err)
				return err
			}
			return nil
		})
	}
	return g.Wait()
}

// drain reads from the connection until it fails.
func drain(c *Conn) error {
	for {
		if _, err := c.ReadMsg(); err != nil {
			return err
		}
	}
}
