// Copyright 2019 The go-ethereum Authors
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
	"fmt"
	"sync"
)

// Iterator represents a sequence of nodes. The Next method moves to the next node in the
// sequence. It returns false when the sequence has ended or the iterator is closed. Close
// may be called concurrently with Next and Node, and interrupts Next if it is blocked.
type Iterator interface {
	Next() bool  // moves to next node
	Node() *Node // returns current node
	Close()      // ends the iterator
}

// ReadNodes reads at most n nodes from the given iterator. The return value contains no
// duplicates and no nil values, and keeps the order of first appearance.
func ReadNodes(it Iterator, n int) []*Node {
	var (
		seen   = make(map[ID]struct{}, n)
		result = make([]*Node, 0, n)
	)
	for i := 0; i < n && it.Next(); i++ {
		node := it.Node()
		if node == nil {
			continue
		}
		if _, ok := seen[node.ID()]; ok {
			continue
		}
		seen[node.ID()] = struct{}{}
		result = append(result, node)
	}
	return result
}

// StaticNodes parses a list of enode URLs into an iterator that yields each
// node once. Incomplete nodes cannot be dialed and are rejected.
func StaticNodes(urls []string) (Iterator, error) {
	nodes := make([]*Node, 0, len(urls))
	for _, u := range urls {
		n, err := ParseV4(u)
		if err != nil {
			return nil, fmt.Errorf("invalid static node %q: %w", u, err)
		}
		if n.Incomplete() {
			return nil, fmt.Errorf("static node %q has no endpoint", u)
		}
		nodes = append(nodes, n)
	}
	return IterNodes(nodes), nil
}

// IterNodes makes an iterator which runs through the given nodes once.
func IterNodes(nodes []*Node) Iterator {
	return &sliceIter{nodes: nodes, index: -1}
}

type sliceIter struct {
	mu    sync.Mutex
	nodes []*Node
	index int
}

func (it *sliceIter) Next() bool {
	it.mu.Lock()
	defer it.mu.Unlock()

	if it.index+1 >= len(it.nodes) {
		it.nodes = nil
		return false
	}
	it.index++
	return true
}

func (it *sliceIter) Node() *Node {
	it.mu.Lock()
	defer it.mu.Unlock()
	if it.index < 0 || it.index >= len(it.nodes) {
		return nil
	}
	return it.nodes[it.index]
}

func (it *sliceIter) Close() {
	it.mu.Lock()
	defer it.mu.Unlock()

	it.nodes = nil
}

// Filter wraps an iterator such that Next only returns nodes for which
// the 'check' function returns true.
func Filter(it Iterator, check func(*Node) bool) Iterator {
	return &filterIter{it, check}
}

type filterIter struct {
	Iterator
	check func(*Node) bool
}

func (f *filterIter) Next() bool {
	for f.Iterator.Next() {
		if f.check(f.Node()) {
			return true
		}
	}
	return false
}
