// Copyright 2018 The go-ethereum Authors
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

package enode

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"

	"github.com/btcsuite/btcd/btcec/v2"
)

var (
	errMissingPrefix = errors.New("missing 'enode://' prefix")
	errInvalidPort   = errors.New("invalid port")
)

// Node represents a host on the network: an identity plus the endpoint where
// it accepts RLPx connections.
type Node struct {
	id  ID
	ip  net.IP
	tcp uint16
}

// NewV4 creates a node from a public key and an endpoint.
func NewV4(pubkey *btcec.PublicKey, ip net.IP, tcp int) *Node {
	return newNodeWithID(PubkeyToIDV4(pubkey), ip, tcp)
}

func newNodeWithID(id ID, ip net.IP, tcp int) *Node {
	n := &Node{id: id, tcp: uint16(tcp)}
	if ip4 := ip.To4(); ip4 != nil {
		n.ip = ip4
	} else if len(ip) == net.IPv6len {
		n.ip = ip
	}
	return n
}

// ParseV4 parses a node URL of the form
//
//	enode://<hex node id>@10.3.58.6:30303
//
// The host must be an IP address. A bare hex node ID, with or without the
// enode:// scheme, yields an incomplete node without endpoint.
func ParseV4(rawurl string) (*Node, error) {
	if id, err := ParseID(rawurl); err == nil {
		return &Node{id: id}, nil
	}
	u, err := url.Parse(rawurl)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "enode" {
		return nil, errMissingPrefix
	}
	if u.User == nil {
		id, err := ParseID(u.Host)
		if err != nil {
			return nil, fmt.Errorf("invalid public key (%v)", err)
		}
		return &Node{id: id}, nil
	}
	id, err := ParseID(u.User.String())
	if err != nil {
		return nil, fmt.Errorf("invalid public key (%v)", err)
	}
	if _, err := id.Pubkey(); err != nil {
		return nil, err
	}
	ip := net.ParseIP(u.Hostname())
	if ip == nil {
		return nil, errors.New("invalid IP address")
	}
	port, err := strconv.ParseUint(u.Port(), 10, 16)
	if err != nil {
		return nil, errInvalidPort
	}
	return newNodeWithID(id, ip, int(port)), nil
}

// MustParseV4 parses a node URL. It panics if the URL is not valid.
func MustParseV4(rawurl string) *Node {
	n, err := ParseV4(rawurl)
	if err != nil {
		panic("invalid node URL: " + err.Error())
	}
	return n
}

// ID returns the node identifier.
func (n *Node) ID() ID {
	return n.id
}

// IP returns the IP address of the node.
func (n *Node) IP() net.IP {
	return n.ip
}

// TCP returns the TCP port of the node.
func (n *Node) TCP() int {
	return int(n.tcp)
}

// Incomplete returns true for nodes with no IP address.
func (n *Node) Incomplete() bool {
	return n.ip == nil
}

// Addr returns the dialable host:port of the node.
func (n *Node) Addr() string {
	return net.JoinHostPort(n.ip.String(), strconv.Itoa(int(n.tcp)))
}

// Pubkey returns the secp256k1 public key of the node, or nil if the ID is
// not a valid curve point.
func (n *Node) Pubkey() *btcec.PublicKey {
	key, err := n.id.Pubkey()
	if err != nil {
		return nil
	}
	return key
}

// URLv4 returns the enode URL of n.
func (n *Node) URLv4() string {
	u := url.URL{Scheme: "enode"}
	if n.Incomplete() {
		u.Host = n.id.String()
	} else {
		u.User = url.User(n.id.String())
		u.Host = n.Addr()
	}
	return u.String()
}

// The string representation of a Node is a URL.
// Please see ParseV4 for a description of the format.
func (n *Node) String() string {
	return n.URLv4()
}

// MarshalText implements encoding.TextMarshaler.
func (n *Node) MarshalText() ([]byte, error) {
	return []byte(n.URLv4()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (n *Node) UnmarshalText(text []byte) error {
	dec, err := ParseV4(string(text))
	if err == nil {
		*n = *dec
	}
	return err
}
