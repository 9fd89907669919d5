// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the Business Source License
// included in the file licenses/BSL.txt.
//
// As of the Change Date specified in that file, in accordance with
// the Business Source License, use of this software will be governed
// by the Apache License, Version 2.0, included in the file
// licenses/APL.txt.

package coordinator

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// TestClient is an in-memory implementation of Client, in the spirit of
// the teacher's hand-rolled testQueueImpl fakes (queue_test.go): enough
// behavior to drive the queue through its protocol, none of the real
// service's persistence or networking.
type TestClient struct {
	mu       sync.Mutex
	nodes    map[string][]byte
	children map[string]map[string]struct{}
	seq      map[string]int64
	watches  map[string][]chan<- struct{}
}

// NewTestClient returns an empty in-memory coordinator.
func NewTestClient() *TestClient {
	return &TestClient{
		nodes:    map[string][]byte{"/": nil},
		children: map[string]map[string]struct{}{},
		seq:      map[string]int64{},
		watches:  map[string][]chan<- struct{}{},
	}
}

var _ Client = (*TestClient)(nil)

func clean(p string) string {
	p = path.Clean("/" + p)
	return p
}

// Seed sets the data at path, creating any missing intermediate nodes. It
// exists for test setup and is not part of the Client interface.
func (c *TestClient) Seed(p string, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.createLocked(p, data)
}

func (c *TestClient) createLocked(p string, data []byte) {
	p = clean(p)
	c.nodes[p] = data
	dir, base := path.Split(p)
	dir = clean(dir)
	if dir == p {
		return
	}
	if _, ok := c.nodes[dir]; !ok {
		c.createLocked(dir, nil)
	}
	if c.children[dir] == nil {
		c.children[dir] = map[string]struct{}{}
	}
	c.children[dir][base] = struct{}{}
}

// Get implements Client.
func (c *TestClient) Get(_ context.Context, p string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p = clean(p)
	data, ok := c.nodes[p]
	if !ok {
		return nil, ErrNoNode
	}
	return data, nil
}

// GetChildren implements Client.
func (c *TestClient) GetChildren(_ context.Context, p string, watch chan<- struct{}) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p = clean(p)
	if _, ok := c.nodes[p]; !ok {
		return nil, ErrNoNode
	}
	names := make([]string, 0, len(c.children[p]))
	for name := range c.children[p] {
		names = append(names, name)
	}
	sort.Strings(names)
	if watch != nil {
		c.watches[p] = append(c.watches[p], watch)
	}
	return names, nil
}

func (c *TestClient) fireWatchesLocked(p string) {
	for _, ch := range c.watches[p] {
		close(ch)
	}
	delete(c.watches, p)
}

// Set implements Client.
func (c *TestClient) Set(_ context.Context, p string, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	p = clean(p)
	_, existed := c.nodes[p]
	c.createLocked(p, data)
	if !existed {
		dir, _ := path.Split(p)
		c.fireWatchesLocked(clean(dir))
	}
	return nil
}

// Remove implements Client.
func (c *TestClient) Remove(_ context.Context, p string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	p = clean(p)
	if _, ok := c.nodes[p]; !ok {
		return nil
	}
	delete(c.nodes, p)
	dir, base := path.Split(p)
	dir = clean(dir)
	if kids, ok := c.children[dir]; ok {
		delete(kids, base)
	}
	c.fireWatchesLocked(dir)
	return nil
}

// Multi implements Client.
func (c *TestClient) Multi(_ context.Context, ops []Op) ([]OpResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	results := make([]OpResult, len(ops))
	touched := map[string]struct{}{}
	for i, op := range ops {
		switch op.Type {
		case OpCreate:
			p := clean(op.Path)
			if op.Mode == PersistentSequential {
				dir, base := path.Split(op.Path)
				n := c.seq[dir]
				c.seq[dir] = n + 1
				p = clean(fmt.Sprintf("%s%s%010d", dir, base, n))
			}
			c.createLocked(p, op.Data)
			results[i] = OpResult{PathCreated: p}
			touched[path.Dir(p)] = struct{}{}
		case OpSet:
			p := clean(op.Path)
			c.createLocked(p, op.Data)
		case OpRemove:
			p := clean(op.Path)
			delete(c.nodes, p)
			dir, base := path.Split(p)
			dir = clean(dir)
			if kids, ok := c.children[dir]; ok {
				delete(kids, base)
			}
			touched[dir] = struct{}{}
		}
	}
	for p := range touched {
		c.fireWatchesLocked(p)
	}
	return results, nil
}

// NewLockPath returns a fresh "<root>/temp/abandonable_lock-<uuid>" style
// path, mirroring how the original coordination service names ephemeral
// insert locks; used by tests that populate current_inserts fixtures.
func NewLockPath(root string) string {
	return strings.TrimSuffix(root, "/") + "/temp/abandonable_lock-" + uuid.NewString()
}
