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

package transport

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"net"
	"sync"
	"time"

	"github.com/devp2p-go/rlpx/p2p/rlpx"
	"github.com/quic-go/quic-go"
)

// ALPN is the application protocol negotiated on QUIC connections.
const ALPN = "rlpx"

const (
	streamAcceptTimeout = 10 * time.Second
	quicIdleTimeout     = 30 * time.Second
	quicKeepAlive       = 15 * time.Second

	closeErrorCode quic.ApplicationErrorCode = 0
)

var quicConfig = &quic.Config{
	MaxIdleTimeout:  quicIdleTimeout,
	KeepAlivePeriod: quicKeepAlive,
}

// newTLSConfig creates a throwaway self-signed certificate. TLS only provides
// the QUIC channel, peers authenticate each other in the RLPx handshake.
func newTLSConfig() (*tls.Config, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	serial, err := rand.Int(rand.Reader, big.NewInt(1<<62))
	if err != nil {
		return nil, err
	}
	tpl := x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{CommonName: ALPN},
		NotBefore:    time.Now().Add(-1 * time.Hour),
		NotAfter:     time.Now().Add(24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage: []x509.ExtKeyUsage{
			x509.ExtKeyUsageServerAuth,
			x509.ExtKeyUsageClientAuth,
		},
		BasicConstraintsValid: true,
	}
	der, err := x509.CreateCertificate(rand.Reader, &tpl, &tpl, pub, priv)
	if err != nil {
		return nil, err
	}
	keyBytes, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return nil, err
	}
	cert, err := tls.X509KeyPair(
		pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}),
		pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: keyBytes}),
	)
	if err != nil {
		return nil, err
	}
	return &tls.Config{
		Certificates:       []tls.Certificate{cert},
		MinVersion:         tls.VersionTLS13,
		NextProtos:         []string{ALPN},
		InsecureSkipVerify: true,
	}, nil
}

// quicStream carries one RLPx session over the first bidirectional stream of
// a QUIC connection. Closing it closes the connection.
//
// On the accepting side the stream is taken from the connection on first
// use, so waiting for it happens in the goroutine running the handshake.
type quicStream struct {
	conn *quic.Conn
	once sync.Once

	mu     sync.Mutex
	stream *quic.Stream
	err    error
	rdl    time.Time
	wdl    time.Time
}

func newQUICStream(conn *quic.Conn, stream *quic.Stream) *quicStream {
	s := &quicStream{conn: conn, stream: stream}
	if stream != nil {
		s.once.Do(func() {})
	}
	return s
}

// get returns the stream, waiting for the remote side to open it if needed.
func (s *quicStream) get() (*quic.Stream, error) {
	s.once.Do(s.accept)
	return s.stream, s.err
}

func (s *quicStream) accept() {
	s.mu.Lock()
	deadline := time.Now().Add(streamAcceptTimeout)
	if !s.rdl.IsZero() && s.rdl.Before(deadline) {
		deadline = s.rdl
	}
	s.mu.Unlock()

	ctx, cancel := context.WithDeadline(s.conn.Context(), deadline)
	defer cancel()
	stream, err := s.conn.AcceptStream(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.err = err
		s.conn.CloseWithError(closeErrorCode, "no stream")
		return
	}
	s.stream = stream
	stream.SetReadDeadline(s.rdl)
	stream.SetWriteDeadline(s.wdl)
}

func (s *quicStream) Read(b []byte) (int, error) {
	stream, err := s.get()
	if err != nil {
		return 0, err
	}
	return stream.Read(b)
}

func (s *quicStream) Write(b []byte) (int, error) {
	stream, err := s.get()
	if err != nil {
		return 0, err
	}
	return stream.Write(b)
}

func (s *quicStream) SetDeadline(t time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rdl, s.wdl = t, t
	if s.stream != nil {
		return s.stream.SetDeadline(t)
	}
	return nil
}

func (s *quicStream) SetReadDeadline(t time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rdl = t
	if s.stream != nil {
		return s.stream.SetReadDeadline(t)
	}
	return nil
}

func (s *quicStream) SetWriteDeadline(t time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.wdl = t
	if s.stream != nil {
		return s.stream.SetWriteDeadline(t)
	}
	return nil
}

func (s *quicStream) RemoteAddr() net.Addr {
	return s.conn.RemoteAddr()
}

func (s *quicStream) Close() error {
	s.mu.Lock()
	stream := s.stream
	s.mu.Unlock()

	var err error
	if stream != nil {
		stream.CancelRead(0)
		err = stream.Close()
	}
	s.conn.CloseWithError(closeErrorCode, "")
	return err
}

type quicListener struct {
	ln *quic.Listener
}

func listenQUIC(addr string) (*quicListener, error) {
	tlsConf, err := newTLSConfig()
	if err != nil {
		return nil, err
	}
	ln, err := quic.ListenAddr(addr, tlsConf, quicConfig)
	if err != nil {
		return nil, err
	}
	return &quicListener{ln: ln}, nil
}

func (l *quicListener) Accept(ctx context.Context) (rlpx.Transport, error) {
	conn, err := l.ln.Accept(ctx)
	if err != nil {
		return nil, err
	}
	return newQUICStream(conn, nil), nil
}

func (l *quicListener) Addr() net.Addr { return l.ln.Addr() }

func (l *quicListener) Close() error { return l.ln.Close() }

type quicDialer struct {
	tlsConf *tls.Config
}

func newQUICDialer() (*quicDialer, error) {
	tlsConf, err := newTLSConfig()
	if err != nil {
		return nil, err
	}
	return &quicDialer{tlsConf: tlsConf}, nil
}

func (d *quicDialer) Dial(ctx context.Context, addr string) (rlpx.Transport, error) {
	conn, err := quic.DialAddr(ctx, addr, d.tlsConf, quicConfig)
	if err != nil {
		return nil, err
	}
	stream, err := conn.OpenStreamSync(ctx)
	if err != nil {
		conn.CloseWithError(closeErrorCode, "")
		return nil, err
	}
	return newQUICStream(conn, stream), nil
}
