// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the Business Source License
// included in the file licenses/BSL.txt.
//
// As of the Change Date specified in that file, in accordance with
// the Business Source License, use of this software will be governed
// by the Apache License, Version 2.0, included in the file
// licenses/APL.txt.

// Package coordinator defines the narrow interface the replication queue
// consumes against the external strongly-consistent coordination service
// (an ordered tree of versioned nodes with watches). The coordinator
// client itself — its wire protocol, session management, and retry
// policy — is an external collaborator (spec §1) and out of scope; this
// package exists only to give the queue something concrete to call, and
// to let tests exercise the queue without a live coordination service.
package coordinator

import (
	"context"

	"github.com/cockroachdb/errors"
)

// ErrNoNode is returned by Get/GetChildren when the path does not exist.
var ErrNoNode = errors.New("coordinator: no node")

// CreateMode selects how a Create call names and retains the new node.
type CreateMode int

const (
	// Persistent nodes survive until explicitly removed.
	Persistent CreateMode = iota
	// PersistentSequential nodes have a monotonically increasing suffix
	// appended by the coordinator and survive until explicitly removed.
	// The queue's per-replica queue-<sequential> entries use this mode.
	PersistentSequential
)

// Op is one operation within a Multi batch.
type Op struct {
	Type    OpType
	Path    string
	Data    []byte
	Mode    CreateMode
	Version int32 // -1 means "don't check version", matching ZooKeeper's convention
}

// OpType discriminates the members of an Op.
type OpType int

// The operation kinds a Multi batch may contain.
const (
	OpCreate OpType = iota
	OpSet
	OpRemove
)

// OpResult is the per-operation outcome of a successful Multi call.
type OpResult struct {
	// PathCreated is populated for OpCreate; for PersistentSequential nodes
	// it includes the coordinator-assigned suffix.
	PathCreated string
}

// Client is the coordinator surface the queue depends on. A real
// implementation talks to the coordination service; TestClient (in this
// package) is an in-memory stand-in used by tests and cmd/replqueuedemo.
type Client interface {
	// Get returns the data stored at path, or ErrNoNode if it does not exist.
	Get(ctx context.Context, path string) ([]byte, error)

	// GetChildren lists the immediate children of path in no particular
	// order; callers that need a total order sort the result themselves.
	// If watch is non-nil, it is closed the next time the child set at
	// path changes.
	GetChildren(ctx context.Context, path string, watch chan<- struct{}) ([]string, error)

	// Set overwrites the data at path unconditionally (version -1 in the
	// original coordinator semantics), creating the node if it is absent.
	Set(ctx context.Context, path string, data []byte) error

	// Remove deletes path. Removing a path that does not exist is not an
	// error, matching the coordinator's idempotent-delete semantics that
	// callers in spec §4/§7 rely on ("best-effort remove").
	Remove(ctx context.Context, path string) error

	// Multi executes ops atomically: either every op takes effect and
	// results are returned in order, or none do and an error is returned.
	Multi(ctx context.Context, ops []Op) ([]OpResult, error)
}
