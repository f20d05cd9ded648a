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
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDBNodeKey(t *testing.T) {
	id := HexID("0x51232b8d7821617d2b29b54b81cdefb9b3e9c37d7fd5f63270bcc9e1a6f6a4391dd9d65c4552b5eb43d5ad55a2ee3f56c6cbc1c64a5c8d659f51fcd51bace243")
	key := nodeKey(id)
	gotID, rest := splitNodeKey(key)
	require.Equal(t, id, gotID)
	require.Equal(t, dbNodeRoot, string(rest))

	itemID, field := splitNodeItemKey(nodeItemKey(id, dbNodeDialFails))
	require.Equal(t, id, itemID)
	require.Equal(t, dbNodeDialFails, field)

	_, field = splitNodeItemKey(key)
	require.Empty(t, field)
}

func TestDBNodeUpdate(t *testing.T) {
	db, err := OpenDB("")
	require.NoError(t, err)
	defer db.Close()

	n := testKey(t)
	require.Nil(t, db.Node(n.ID()))
	require.NoError(t, db.UpdateNode(n))

	stored := db.Node(n.ID())
	require.NotNil(t, stored)
	require.Equal(t, n.URLv4(), stored.URLv4())

	require.NoError(t, db.UpdateDialFails(n.ID(), 3))
	require.Equal(t, 3, db.DialFails(n.ID()))

	now := time.Unix(time.Now().Unix(), 0)
	require.NoError(t, db.UpdateLastHandshake(n.ID(), now))
	require.Equal(t, now, db.LastHandshake(n.ID()))

	db.DeleteNode(n.ID())
	require.Nil(t, db.Node(n.ID()))
	require.Zero(t, db.DialFails(n.ID()))
}

func TestDBExpiration(t *testing.T) {
	db, _ := OpenDB("")
	defer db.Close()

	fresh := testKey(t)
	stale := MustParseV4(parseNodeTests[4].input)
	now := time.Now()
	for _, n := range []*Node{fresh, stale} {
		require.NoError(t, db.UpdateNode(n))
	}
	require.NoError(t, db.storeInt64(nodeItemKey(fresh.ID(), dbNodeHandshake), now.Unix()))
	require.NoError(t, db.storeInt64(nodeItemKey(stale.ID(), dbNodeHandshake), now.Add(-2*dbNodeExpiration).Unix()))

	db.expireNodes(now)
	require.NotNil(t, db.Node(fresh.ID()))
	require.Nil(t, db.Node(stale.ID()))
}

func TestDBQuerySeeds(t *testing.T) {
	db, _ := OpenDB("")
	defer db.Close()

	n := testKey(t)
	old := newNodeWithID(HexID(parseNodeTests[4].input[8:136]), net.IP{10, 0, 0, 1}, 30303)
	require.NoError(t, db.UpdateNode(n))
	require.NoError(t, db.UpdateNode(old))
	require.NoError(t, db.storeInt64(nodeItemKey(n.ID(), dbNodeHandshake), time.Now().Unix()))
	require.NoError(t, db.storeInt64(nodeItemKey(old.ID(), dbNodeHandshake), time.Now().Add(-time.Hour).Unix()))

	seeds := db.QuerySeeds(5, time.Minute)
	require.Len(t, seeds, 1)
	require.Equal(t, n.ID(), seeds[0].ID())
}

func TestDBPersistent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nodes")
	db, err := OpenDB(path)
	require.NoError(t, err)
	n := testKey(t)
	require.NoError(t, db.UpdateNode(n))
	db.Close()

	db, err = OpenDB(path)
	require.NoError(t, err)
	defer db.Close()
	require.NotNil(t, db.Node(n.ID()))
}
