// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the Business Source License
// included in the file licenses/BSL.txt.
//
// As of the Change Date specified in that file, in accordance with
// the Business Source License, use of this software will be governed
// by the Apache License, Version 2.0, included in the file
// licenses/APL.txt.

package replqueue

import (
	"github.com/tidwall/btree"

	"github.com/eden-shiwm/replqueue/pkg/replqueue/logentry"
)

// appendMutationLocked indexes a freshly-fetched mutation entry into
// mutations and mutationsByPartition (spec §4.F). Caller holds q.mu.
func (q *Queue) appendMutationLocked(m *logentry.MutationEntry) {
	q.mutations = append(q.mutations, m)
	for partition, block := range m.PartitionVersions() {
		set, ok := q.mutationsByPartition[partition]
		if !ok {
			set = btree.NewBTreeG(lessMutationBlock)
			q.mutationsByPartition[partition] = set
		}
		set.Set(mutationBlock{blockNumber: block, mutation: m})
	}
	q.metrics.PartMutations.Set(float64(q.countPendingPartMutationsLocked()))
}

// countPendingPartMutationsLocked sums, across every indexed partition,
// the number of mutation blocks recorded (spec §4.F, used for the
// part_mutations gauge; it counts index entries, not distinct parts,
// since this module has no view of which local parts are already caught
// up).
func (q *Queue) countPendingPartMutationsLocked() int {
	var total int
	for _, set := range q.mutationsByPartition {
		total += set.Len()
	}
	return total
}

// purgeMutationsBelowLocked drops every indexed mutation whose znode_name
// sorts below smallest, mirroring the coordinator having garbage-collected
// mutation log entries out from under this replica (spec §4.D
// "updateMutations" purge step). Caller holds q.mu.
func (q *Queue) purgeMutationsBelowLocked(smallest string) {
	purged := make(map[*logentry.MutationEntry]struct{})
	var kept []*logentry.MutationEntry
	for _, m := range q.mutations {
		if m.ZnodeName < smallest {
			purged[m] = struct{}{}
			continue
		}
		kept = append(kept, m)
	}
	if len(purged) == 0 {
		return
	}
	q.mutations = kept

	for partition, set := range q.mutationsByPartition {
		var toDelete []mutationBlock
		set.Ascend(mutationBlock{blockNumber: 0}, func(mb mutationBlock) bool {
			if _, ok := purged[mb.mutation]; ok {
				toDelete = append(toDelete, mb)
			}
			return true
		})
		for _, mb := range toDelete {
			set.Delete(mb)
		}
		if set.Len() == 0 {
			delete(q.mutationsByPartition, partition)
		}
	}
	q.metrics.PartMutations.Set(float64(q.countPendingPartMutationsLocked()))
}

// PurgeCompletedMutations drops every indexed mutation block at or below
// the given per-partition high-water mark, once every local part in that
// partition has been rewritten past it (spec §4.F "mutation index
// purge"). watermarks maps partition -> highest fully-applied block
// number.
func (q *Queue) PurgeCompletedMutations(watermarks map[string]int64) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for partition, upTo := range watermarks {
		set, ok := q.mutationsByPartition[partition]
		if !ok {
			continue
		}
		var toDelete []mutationBlock
		set.Ascend(mutationBlock{blockNumber: 0}, func(mb mutationBlock) bool {
			if mb.blockNumber > upTo {
				return false
			}
			toDelete = append(toDelete, mb)
			return true
		})
		for _, mb := range toDelete {
			set.Delete(mb)
		}
		if set.Len() == 0 {
			delete(q.mutationsByPartition, partition)
		}
	}

	var kept []*logentry.MutationEntry
	for _, m := range q.mutations {
		stillLive := false
		for partition, block := range m.BlockNumbers {
			if upTo, ok := watermarks[partition]; !ok || block > upTo {
				stillLive = true
				break
			}
		}
		if stillLive {
			kept = append(kept, m)
		}
	}
	q.mutations = kept
	q.metrics.PartMutations.Set(float64(q.countPendingPartMutationsLocked()))
}
