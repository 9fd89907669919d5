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
	"container/list"
	"context"
	"fmt"
	"sort"

	"github.com/cockroachdb/errors"

	"github.com/eden-shiwm/replqueue/pkg/replqueue/logentry"
	"github.com/eden-shiwm/replqueue/pkg/replqueue/partinfo"
	"github.com/eden-shiwm/replqueue/pkg/util/log"
)

// insertUnlocked links entry into the queue and indexes it. DROP_RANGE
// entries go to the front so nothing already queued races to produce a
// part the drop is about to remove (spec §4.D step 5, §9 "drop-range
// ordering"); every other type is appended, preserving log order. Caller
// holds q.mu.
func (q *Queue) insertUnlocked(entry *logentry.Entry) {
	if _, dup := q.queuedZnodes[entry.ZnodeName]; dup {
		return
	}
	entry.BindCond(&q.mu)
	q.queuedZnodes[entry.ZnodeName] = struct{}{}

	if entry.Type == logentry.DropRange {
		q.queue.PushFront(entry)
	} else {
		q.queue.PushBack(entry)
	}

	switch entry.Type {
	case logentry.GetPart, logentry.AttachPart:
		key := insertKey{createTime: entry.CreateTime.UnixNano(), znodeName: entry.ZnodeName, entry: entry}
		q.insertsByTime.Set(key)
		if entry.CreateTime.After(q.maxProcessedInsertTime) {
			q.maxProcessedInsertTime = entry.CreateTime
		}
	}

	if entry.Type.ProducesPart() && entry.NewPartName != "" {
		if info, err := partinfo.Parse(entry.NewPartName); err == nil {
			q.nextVirtualParts.AddInfo(info)
		}
	}

	q.recomputeInsertTimesLocked()
	q.updateQueueSizeMetricsLocked()
}

// removeUnlocked unlinks entry from the queue and its secondary indexes,
// and best-effort removes its persisted znode from the coordinator: a
// failure here is logged and swallowed rather than propagated, since the
// entry is already gone from this replica's in-memory queue and a stale
// znode is merely orphaned, not a correctness problem (spec §7 "remove",
// matching the original's tryRemove-and-ignore-failure pattern). Caller
// holds q.mu.
func (q *Queue) removeUnlocked(ctx context.Context, entry *logentry.Entry) {
	for e := q.queue.Front(); e != nil; e = e.Next() {
		if e.Value.(*logentry.Entry) == entry {
			q.queue.Remove(e)
			break
		}
	}
	delete(q.queuedZnodes, entry.ZnodeName)

	switch entry.Type {
	case logentry.GetPart, logentry.AttachPart:
		key := insertKey{createTime: entry.CreateTime.UnixNano(), znodeName: entry.ZnodeName}
		q.insertsByTime.Delete(key)
	}

	if entry.ZnodeName != "" {
		if err := q.coord.Remove(ctx, q.queuePath()+"/"+entry.ZnodeName); err != nil {
			log.Warningf(ctx, "removing queue entry %s: %v", entry.ZnodeName, err)
		}
	}

	q.recomputeInsertTimesLocked()
	q.updateQueueSizeMetricsLocked()
}

// RemoveByPartName removes and returns every queued entry that produces
// partName, without regard to whether it is currently executing (spec §7
// "remove(part_name)", used when a part is dropped or superseded out from
// under a still-queued producer).
func (q *Queue) RemoveByPartName(ctx context.Context, partName string) []*logentry.Entry {
	q.mu.Lock()
	defer q.mu.Unlock()

	var removed []*logentry.Entry
	var next *list.Element
	for e := q.queue.Front(); e != nil; e = next {
		next = e.Next()
		entry := e.Value.(*logentry.Entry)
		if entry.Type.ProducesPart() && entry.NewPartName == partName {
			q.removeUnlocked(ctx, entry)
			removed = append(removed, entry)
		}
	}
	return removed
}

// RemovePartProducingOpsInRange removes every queued, not-currently-
// executing entry whose produced part is contained by rangeInfo (spec
// §7 "removePartProducingOpsInRange", used ahead of a DROP_RANGE or an
// ALTER that will invalidate them), and blocks until any currently-
// executing conflicting entries finish. mustExclude, if non-nil, is never
// removed even if it matches (the DROP_RANGE entry itself).
func (q *Queue) RemovePartProducingOpsInRange(ctx context.Context, rangeInfo partinfo.Info, mustExclude *logentry.Entry) []*logentry.Entry {
	q.mu.Lock()
	defer q.mu.Unlock()

	var removed []*logentry.Entry
	for {
		var waiting *logentry.Entry
		var next *list.Element
		for e := q.queue.Front(); e != nil; e = next {
			next = e.Next()
			entry := e.Value.(*logentry.Entry)
			if entry == mustExclude || !entry.Type.ProducesPart() || entry.NewPartName == "" {
				continue
			}
			info, err := partinfo.Parse(entry.NewPartName)
			if err != nil || !partinfo.Contains(rangeInfo, info) {
				continue
			}
			if entry.CurrentlyExecuting {
				waiting = entry
				break
			}
			q.removeUnlocked(ctx, entry)
			removed = append(removed, entry)
		}
		if waiting == nil {
			break
		}
		waiting.WaitExecutionComplete()
	}
	return removed
}

// MoveSiblingPartsForMergeToEndOfQueue finds the first queued MERGE_PARTS
// or MUTATE_PART entry that consumes partName as a source, and splices
// every preceding MERGE_PARTS, GET_PART or MUTATE_PART entry that produces
// one of that entry's sources (partName included) to the back of the
// execution order, behind the merge entry, which itself stays in place
// (spec §4.E rule 2, §9 "reordering on gap"). It returns the full source-part set of the entry
// it found, or nil if partName is not a pending merge/mutation source.
func (q *Queue) MoveSiblingPartsForMergeToEndOfQueue(partName string) []string {
	q.mu.Lock()
	defer q.mu.Unlock()

	var siblings map[string]struct{}
	var mergeEntry *list.Element
	for e := q.queue.Front(); e != nil; e = e.Next() {
		entry := e.Value.(*logentry.Entry)
		if entry.Type != logentry.MergeParts && entry.Type != logentry.MutatePart {
			continue
		}
		for _, p := range entry.PartsToMerge {
			if p != partName {
				continue
			}
			siblings = make(map[string]struct{}, len(entry.PartsToMerge))
			for _, s := range entry.PartsToMerge {
				siblings[s] = struct{}{}
			}
			mergeEntry = e
			break
		}
		if mergeEntry != nil {
			break
		}
	}
	if mergeEntry == nil {
		return nil
	}

	var next *list.Element
	for e := q.queue.Front(); e != nil && e != mergeEntry; e = next {
		next = e.Next()
		entry := e.Value.(*logentry.Entry)
		if entry.Type != logentry.MergeParts && entry.Type != logentry.GetPart && entry.Type != logentry.MutatePart {
			continue
		}
		if _, ok := siblings[entry.NewPartName]; ok {
			q.queue.MoveToBack(e)
		}
	}

	out := make([]string, 0, len(siblings))
	for p := range siblings {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// DisableMergesInRange marks every source part touched by a queued
// MERGE_PARTS entry within rangeInfo as ineligible, by removing those
// entries from the queue (spec §7 "disableMergesInRange", used ahead of
// a DROP_RANGE so no merge can straddle the boundary being dropped).
func (q *Queue) DisableMergesInRange(ctx context.Context, rangeInfo partinfo.Info) []*logentry.Entry {
	q.mu.Lock()
	defer q.mu.Unlock()

	var removed []*logentry.Entry
	var next *list.Element
	for e := q.queue.Front(); e != nil; e = next {
		next = e.Next()
		entry := e.Value.(*logentry.Entry)
		if entry.Type != logentry.MergeParts || entry.CurrentlyExecuting {
			continue
		}
		for _, source := range entry.PartsToMerge {
			info, err := partinfo.Parse(source)
			if err == nil && partinfo.Intersects(rangeInfo, info) {
				q.removeUnlocked(ctx, entry)
				removed = append(removed, entry)
				break
			}
		}
	}
	return removed
}

// AddFuturePartIfNotCoveredByThem reserves rangeName in future_parts unless
// it is already present there or some existing future part contains it
// (spec §4.E "isNotCoveredByFuturePartsImpl", exposed here under its own
// name per §6's API surface since a DROP_RANGE or ALTER caller reserves its
// target range this way before calling DisableMergesAndFetchesInRange).
// Like notCoveredByFuturePartsLocked, this only looks at future_parts
// itself, so a merely-queued, non-executing entry (which
// DisableMergesAndFetchesInRange then evicts) does not block the
// reservation.
func (q *Queue) AddFuturePartIfNotCoveredByThem(rangeName string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.futureParts[rangeName]; ok {
		return false
	}
	info, err := partinfo.Parse(rangeName)
	if err != nil {
		return false
	}
	for existing := range q.futureParts {
		existingInfo, err := partinfo.Parse(existing)
		if err != nil {
			continue
		}
		if partinfo.Contains(existingInfo, info) {
			return false
		}
	}
	q.futureParts[rangeName] = struct{}{}
	q.metrics.FutureParts.Set(float64(len(q.futureParts)))
	return true
}

// DisableMergesAndFetchesInRange removes every queued, non-executing entry
// that produces a part contained by rangeInfo, ahead of a DROP_RANGE or
// ALTER over that range (spec §6 "disableMergesAndFetchesInRange",
// supplemented from original_source since §4 never spells it out). It
// fails with an errUnfinished-marked error if any currently-executing
// entry still conflicts with the range — the caller must retry once that
// entry's ExecutingEntry.Release runs. Calling this before reserving
// rangeName via AddFuturePartIfNotCoveredByThem is a logical bug, not a
// runtime condition to recover from.
func (q *Queue) DisableMergesAndFetchesInRange(ctx context.Context, rangeName string, rangeInfo partinfo.Info) ([]*logentry.Entry, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.futureParts[rangeName]; !ok {
		panic(errors.AssertionFailedf("disableMergesAndFetchesInRange(%s) called without a prior future_parts reservation", rangeName))
	}

	var conflicting []string
	for e := q.queue.Front(); e != nil; e = e.Next() {
		entry := e.Value.(*logentry.Entry)
		if !entry.CurrentlyExecuting || !entry.Type.ProducesPart() || entry.NewPartName == "" {
			continue
		}
		info, err := partinfo.Parse(entry.NewPartName)
		if err != nil || !partinfo.Intersects(rangeInfo, info) {
			continue
		}
		conflicting = append(conflicting, entry.NewPartName)
	}
	if len(conflicting) > 0 {
		return nil, errors.Mark(fmt.Errorf("range %s conflicts with in-flight parts %v", rangeName, conflicting), errUnfinished)
	}

	var removed []*logentry.Entry
	var next *list.Element
	for e := q.queue.Front(); e != nil; e = next {
		next = e.Next()
		entry := e.Value.(*logentry.Entry)
		if entry.CurrentlyExecuting || !entry.Type.ProducesPart() || entry.NewPartName == "" {
			continue
		}
		info, err := partinfo.Parse(entry.NewPartName)
		if err != nil || !partinfo.Intersects(rangeInfo, info) {
			continue
		}
		q.removeUnlocked(ctx, entry)
		removed = append(removed, entry)
	}
	return removed, nil
}

func (q *Queue) updateQueueSizeMetricsLocked() {
	var inserts, merges, mutations int
	for e := q.queue.Front(); e != nil; e = e.Next() {
		switch e.Value.(*logentry.Entry).Type {
		case logentry.GetPart, logentry.AttachPart:
			inserts++
		case logentry.MergeParts:
			merges++
		case logentry.MutatePart:
			mutations++
		}
	}
	q.metrics.QueueSize.Set(float64(q.queue.Len()))
	q.metrics.InsertsInQueue.Set(float64(inserts))
	q.metrics.MergesInQueue.Set(float64(merges))
	q.metrics.MutationsInQueue.Set(float64(mutations))
}
