// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the Business Source License
// included in the file licenses/BSL.txt.
//
// As of the Change Date specified in that file, in accordance with
// the Business Source License, use of this software will be governed
// by the Apache License, Version 2.0, included in the file
// licenses/APL.txt.

// Package replqueue implements the per-replica replication queue: the
// in-memory materialization of a shared replication log, the coordinator
// sync protocol that keeps it current, the admission predicates a merge
// selector and executor consult before acting on an entry, and the queue
// manipulation primitives that reorder or remove entries as merge/fetch
// races are resolved.
//
// A Queue is safe for concurrent use by producers (pull goroutines),
// executors (worker goroutines), planners (a merge selector calling
// CanMergeParts), and readers (GetStatus/GetEntries).
package replqueue

import (
	"container/list"
	"time"

	"github.com/tidwall/btree"

	"github.com/eden-shiwm/replqueue/pkg/coordinator"
	"github.com/eden-shiwm/replqueue/pkg/replqueue/logentry"
	"github.com/eden-shiwm/replqueue/pkg/replqueue/partinfo"
	"github.com/eden-shiwm/replqueue/pkg/replqueue/virtualparts"
	"github.com/eden-shiwm/replqueue/pkg/util/syncutil"
)

// insertKey orders GET_PART entries by create_time, tiebroken by
// znode_name, matching spec §3's inserts_by_time.
type insertKey struct {
	createTime int64
	znodeName  string
	entry      *logentry.Entry
}

func lessInsertKey(a, b insertKey) bool {
	if a.createTime != b.createTime {
		return a.createTime < b.createTime
	}
	return a.znodeName < b.znodeName
}

// mutationBlock is one entry of a per-partition mutations_by_partition
// ordered map: block number -> mutation.
type mutationBlock struct {
	blockNumber int64
	mutation    *logentry.MutationEntry
}

func lessMutationBlock(a, b mutationBlock) bool {
	return a.blockNumber < b.blockNumber
}

func lessInt64(a, b int64) bool { return a < b }

// Queue is the per-replica replication queue described by spec §2-§5.
type Queue struct {
	coord coordinator.Client
	cfg   Config

	// mu is the state mutex (spec §5): it guards every field below plus
	// the mutable execution-state fields of every *logentry.Entry
	// currently reachable from queue.
	mu syncutil.Mutex

	queue        *list.List          // of *logentry.Entry, front-to-back execution order
	queuedZnodes map[string]struct{} // znode_name -> present, for load()'s dedup

	virtualParts     *virtualparts.Set
	nextVirtualParts *virtualparts.Set
	futureParts      map[string]struct{}

	insertsByTime *btree.BTreeG[insertKey]
	// currentInserts is partition_id -> ephemeral block numbers for inserts
	// still in flight on any replica, refreshed from the coordinator by
	// refreshCurrentInsertsLocked; a partition with none currently locked
	// simply has no entry here.
	currentInserts map[string]*btree.BTreeG[int64]

	mutations           []*logentry.MutationEntry
	mutationsByPartition map[string]*btree.BTreeG[mutationBlock]

	lastQuorumPart       string
	inprogressQuorumPart string

	minUnprocessedInsertTime time.Time
	maxProcessedInsertTime   time.Time
	lastQueueUpdate          time.Time

	metrics *Metrics

	// pullMu ensures at most one concurrent pullLogsToQueue, held across
	// coordinator I/O (spec §5 "pull_logs_to_queue_mutex").
	pullMu syncutil.Mutex
	// mutationsMu is the analogous guarantee for updateMutations (spec §5
	// "update_mutations_mutex").
	mutationsMu syncutil.Mutex
}

// New constructs an empty Queue. Call InitVirtualParts and Load before
// serving traffic.
func New(coord coordinator.Client, cfg Config) *Queue {
	q := &Queue{
		coord:                coord,
		cfg:                  cfg,
		queue:                list.New(),
		queuedZnodes:         make(map[string]struct{}),
		virtualParts:         virtualparts.New(),
		nextVirtualParts:     virtualparts.New(),
		futureParts:          make(map[string]struct{}),
		insertsByTime:        btree.NewBTreeG(lessInsertKey),
		currentInserts:       make(map[string]*btree.BTreeG[int64]),
		mutationsByPartition: make(map[string]*btree.BTreeG[mutationBlock]),
	}
	q.metrics = newMetrics()
	return q
}

// Metrics exposes the queue's prometheus collectors for registration.
func (q *Queue) Metrics() *Metrics { return q.metrics }

func (q *Queue) queuePath() string  { return q.cfg.ReplicaPath + "/queue" }
func (q *Queue) logPointerPath() string {
	return q.cfg.ReplicaPath + "/log_pointer"
}
func (q *Queue) minUnprocessedPath() string {
	return q.cfg.ReplicaPath + "/min_unprocessed_insert_time"
}
func (q *Queue) maxProcessedPath() string {
	return q.cfg.ReplicaPath + "/max_processed_insert_time"
}
func (q *Queue) logPath() string        { return q.cfg.SharedPath + "/log" }
func (q *Queue) mutationsPath() string  { return q.cfg.SharedPath + "/mutations" }
func (q *Queue) tempPath() string       { return q.cfg.SharedPath + "/temp" }
func (q *Queue) blockNumbersPath() string {
	return q.cfg.SharedPath + "/block_numbers"
}
func (q *Queue) quorumLastPartPath() string { return q.cfg.SharedPath + "/quorum/last_part" }
func (q *Queue) quorumStatusPath() string   { return q.cfg.SharedPath + "/quorum/status" }

// InitVirtualParts seeds next_virtual_parts from the names of
// currently-committed local parts and copies it to virtual_parts (spec
// §4.D).
func (q *Queue) InitVirtualParts(localPartNames []string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, name := range localPartNames {
		q.nextVirtualParts.Add(name)
	}
	q.virtualParts = q.nextVirtualParts.Clone()
}

// entryProducesContaining parses produced and reports whether it is
// contained by the part named rangeName. Nothing in the package calls it.
func entryProducesContaining(rangeName string, produced string) bool {
	pi, err := partinfo.Parse(produced)
	if err != nil {
		return false
	}
	return partinfo.ContainsName(rangeName, pi)
}
