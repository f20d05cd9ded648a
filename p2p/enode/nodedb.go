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
	"bytes"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/iterator"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// Keys in the node database.
const (
	dbVersionKey = "version" // Version of the database to flush if changes
	dbNodePrefix = "n:"      // Identifier to prefix node entries with
	dbNodeRoot   = "v4"

	// These fields are stored per ID, the full key is "n:<ID>:v4:<field>".
	// Use nodeItemKey to create those keys.
	dbNodeHandshake = "lasthandshake"
	dbNodeDialFails = "dialfail"
)

const (
	dbNodeExpiration = 24 * time.Hour // Time after which an unreachable node should be dropped.
	dbCleanupCycle   = time.Hour      // Time period for running the expiration task.
	dbVersion        = 1
)

// DB is the node database. It remembers the endpoints of peers this node has
// completed an RLPx handshake with, along with dial statistics.
type DB struct {
	lvl    *leveldb.DB   // Interface to the database itself
	runner sync.Once     // Ensures we can start at most one expirer
	quit   chan struct{} // Channel to signal the expiring thread to stop
}

// nodeEntry is the stored form of a node endpoint.
type nodeEntry struct {
	IP  net.IP
	TCP uint16
}

// OpenDB opens a node database. If no path is given an in-memory, temporary
// database is constructed.
func OpenDB(path string) (*DB, error) {
	if path == "" {
		return newMemoryDB()
	}
	return newPersistentDB(path)
}

// newMemoryDB creates a new in-memory node database without a persistent backend.
func newMemoryDB() (*DB, error) {
	db, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		return nil, err
	}
	return &DB{lvl: db, quit: make(chan struct{})}, nil
}

// newPersistentDB creates/opens a leveldb backed persistent node database,
// also flushing its contents in case of a version mismatch.
func newPersistentDB(path string) (*DB, error) {
	opts := &opt.Options{OpenFilesCacheCapacity: 5}
	db, err := leveldb.OpenFile(path, opts)
	if _, iscorrupted := err.(*errors.ErrCorrupted); iscorrupted {
		db, err = leveldb.RecoverFile(path, nil)
	}
	if err != nil {
		return nil, err
	}
	currentVer := make([]byte, binary.MaxVarintLen64)
	currentVer = currentVer[:binary.PutVarint(currentVer, int64(dbVersion))]

	blob, err := db.Get([]byte(dbVersionKey), nil)
	switch err {
	case leveldb.ErrNotFound:
		if err := db.Put([]byte(dbVersionKey), currentVer, nil); err != nil {
			db.Close()
			return nil, err
		}
	case nil:
		if !bytes.Equal(blob, currentVer) {
			db.Close()
			if err = os.RemoveAll(path); err != nil {
				return nil, err
			}
			return newPersistentDB(path)
		}
	default:
		db.Close()
		return nil, err
	}
	return &DB{lvl: db, quit: make(chan struct{})}, nil
}

// nodeKey returns the database key for a node endpoint.
func nodeKey(id ID) []byte {
	key := append([]byte(dbNodePrefix), id[:]...)
	key = append(key, ':')
	key = append(key, dbNodeRoot...)
	return key
}

// nodeItemKey returns the database key for a node metadata field.
func nodeItemKey(id ID, field string) []byte {
	return bytes.Join([][]byte{nodeKey(id), []byte(field)}, []byte{':'})
}

// splitNodeKey returns the node ID of a key created by nodeKey or nodeItemKey
// and the remainder after the ID.
func splitNodeKey(key []byte) (id ID, rest []byte) {
	if !bytes.HasPrefix(key, []byte(dbNodePrefix)) || len(key) < len(dbNodePrefix)+len(id)+1 {
		return ID{}, nil
	}
	item := key[len(dbNodePrefix):]
	copy(id[:], item[:len(id)])
	return id, item[len(id)+1:]
}

// splitNodeItemKey returns the field name of a key created by nodeItemKey.
func splitNodeItemKey(key []byte) (id ID, field string) {
	id, rest := splitNodeKey(key)
	if len(rest) <= len(dbNodeRoot)+1 {
		return id, ""
	}
	return id, string(rest[len(dbNodeRoot)+1:])
}

// fetchInt64 retrieves an integer associated with a particular key.
func (db *DB) fetchInt64(key []byte) int64 {
	blob, err := db.lvl.Get(key, nil)
	if err != nil {
		return 0
	}
	val, read := binary.Varint(blob)
	if read <= 0 {
		return 0
	}
	return val
}

// storeInt64 stores an integer in the given key.
func (db *DB) storeInt64(key []byte, n int64) error {
	blob := make([]byte, binary.MaxVarintLen64)
	blob = blob[:binary.PutVarint(blob, n)]
	return db.lvl.Put(key, blob, nil)
}

// Node retrieves a node with a given id from the database.
func (db *DB) Node(id ID) *Node {
	blob, err := db.lvl.Get(nodeKey(id), nil)
	if err != nil {
		return nil
	}
	n, err := decodeNode(id, blob)
	if err != nil {
		return nil
	}
	return n
}

func decodeNode(id ID, data []byte) (*Node, error) {
	var e nodeEntry
	if err := rlp.DecodeBytes(data, &e); err != nil {
		return nil, fmt.Errorf("p2p/enode: can't decode node %x in DB: %v", id[:8], err)
	}
	return newNodeWithID(id, e.IP, int(e.TCP)), nil
}

// UpdateNode inserts - potentially overwriting - a node into the database.
// Incomplete nodes are ignored.
func (db *DB) UpdateNode(node *Node) error {
	if node.Incomplete() {
		return nil
	}
	blob, err := rlp.EncodeToBytes(&nodeEntry{IP: node.IP(), TCP: uint16(node.TCP())})
	if err != nil {
		return err
	}
	return db.lvl.Put(nodeKey(node.ID()), blob, nil)
}

// DeleteNode deletes all information associated with a node.
func (db *DB) DeleteNode(id ID) {
	deleteRange(db.lvl, nodeKey(id))
}

func deleteRange(db *leveldb.DB, prefix []byte) {
	it := db.NewIterator(util.BytesPrefix(prefix), nil)
	defer it.Release()
	for it.Next() {
		db.Delete(it.Key(), nil)
	}
}

// ensureExpirer starts the data expiration loop unless it is already running.
// It is triggered by the first handshake update so that a node that never
// connects keeps its seed entries.
func (db *DB) ensureExpirer() {
	db.runner.Do(func() { go db.expirer() })
}

// expirer drops stale entries until the database is closed.
func (db *DB) expirer() {
	tick := time.NewTicker(dbCleanupCycle)
	defer tick.Stop()
	for {
		select {
		case <-tick.C:
			db.expireNodes(time.Now())
		case <-db.quit:
			return
		}
	}
}

// expireNodes deletes all nodes whose last successful handshake is older than
// dbNodeExpiration at time now.
func (db *DB) expireNodes(now time.Time) {
	threshold := now.Add(-dbNodeExpiration).Unix()
	it := db.lvl.NewIterator(util.BytesPrefix([]byte(dbNodePrefix)), nil)
	defer it.Release()
	for it.Next() {
		id, field := splitNodeItemKey(it.Key())
		if field != dbNodeHandshake {
			continue
		}
		if last, _ := binary.Varint(it.Value()); last < threshold {
			deleteRange(db.lvl, nodeKey(id))
		}
	}
}

// LastHandshake retrieves the time of the last completed handshake with a node.
func (db *DB) LastHandshake(id ID) time.Time {
	return time.Unix(db.fetchInt64(nodeItemKey(id, dbNodeHandshake)), 0)
}

// UpdateLastHandshake records a completed handshake with a node.
func (db *DB) UpdateLastHandshake(id ID, instance time.Time) error {
	db.ensureExpirer()
	return db.storeInt64(nodeItemKey(id, dbNodeHandshake), instance.Unix())
}

// DialFails retrieves the number of failed dials since the last handshake.
func (db *DB) DialFails(id ID) int {
	return int(db.fetchInt64(nodeItemKey(id, dbNodeDialFails)))
}

// UpdateDialFails stores the number of failed dials since the last handshake.
func (db *DB) UpdateDialFails(id ID, fails int) error {
	return db.storeInt64(nodeItemKey(id, dbNodeDialFails), int64(fails))
}

// QuerySeeds retrieves random nodes that completed a handshake within maxAge.
func (db *DB) QuerySeeds(n int, maxAge time.Duration) []*Node {
	var (
		now   = time.Now()
		nodes = make([]*Node, 0, n)
		it    = db.lvl.NewIterator(nil, nil)
		id    ID
	)
	defer it.Release()

seek:
	for seeks := 0; len(nodes) < n && seeks < n*5; seeks++ {
		// Seek to a random entry. The first byte is incremented by a
		// random amount each time in order to increase the likelihood
		// of hitting all existing nodes in very small databases.
		ctr := id[0]
		rand.Read(id[:])
		id[0] = ctr + id[0]%16
		it.Seek(nodeKey(id))

		n := nextNode(it)
		if n == nil {
			id[0] = 0
			continue seek // iterator exhausted
		}
		if now.Sub(db.LastHandshake(n.ID())) > maxAge {
			continue seek
		}
		for i := range nodes {
			if nodes[i].ID() == n.ID() {
				continue seek // duplicate
			}
		}
		nodes = append(nodes, n)
	}
	return nodes
}

// nextNode reads the next node entry from the iterator, skipping over other
// database entries.
func nextNode(it iterator.Iterator) *Node {
	for end := false; !end; end = !it.Next() {
		id, rest := splitNodeKey(it.Key())
		if string(rest) != dbNodeRoot {
			continue
		}
		if n, err := decodeNode(id, it.Value()); err == nil {
			return n
		}
	}
	return nil
}

// Close flushes and closes the database files.
func (db *DB) Close() {
	close(db.quit)
	db.lvl.Close()
}
