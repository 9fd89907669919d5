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
	"time"

	"github.com/eden-shiwm/replqueue/pkg/replqueue/logentry"
)

// Status is a point-in-time snapshot of the queue, the shape
// system.replication_queue-equivalent introspection returns (spec §8).
type Status struct {
	QueueSize                int
	Inserts                  int
	Merges                   int
	PartMutations            int
	QueuedMutations          int
	FutureParts              int
	MinUnprocessedInsertTime time.Time
	MaxProcessedInsertTime   time.Time
	LastQueueUpdate          time.Time

	// OldestPartToGet/ToMergeTo/ToMutateTo name the part produced by the
	// longest-queued entry of each type, matching original_source's
	// oldest_part_to_get/oldest_part_to_merge_to/oldest_part_to_mutate_to
	// fields (empty if no such entry is queued).
	OldestPartToGet      string
	OldestPartToMergeTo  string
	OldestPartToMutateTo string
}

// GetStatus returns a snapshot of aggregate queue state (spec §8
// "getStatus").
func (q *Queue) GetStatus() Status {
	q.mu.Lock()
	defer q.mu.Unlock()

	inserts, merges, mutations := q.countMergesAndPartMutationsLocked()
	status := Status{
		QueueSize:                q.queue.Len(),
		Inserts:                  inserts,
		Merges:                   merges,
		PartMutations:            q.countPendingPartMutationsLocked(),
		QueuedMutations:          mutations,
		FutureParts:              len(q.futureParts),
		MinUnprocessedInsertTime: q.minUnprocessedInsertTime,
		MaxProcessedInsertTime:   q.maxProcessedInsertTime,
		LastQueueUpdate:          q.lastQueueUpdate,
	}
	status.OldestPartToGet, status.OldestPartToMergeTo, status.OldestPartToMutateTo = q.oldestPartsByTypeLocked()
	return status
}

// countMergesAndPartMutationsLocked tallies queued entries by type (spec
// §8 "countMergesAndPartMutations"). Caller holds q.mu.
func (q *Queue) countMergesAndPartMutationsLocked() (inserts, merges, mutations int) {
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
	return inserts, merges, mutations
}

// oldestPartsByTypeLocked finds, for each of GET_PART, MERGE_PARTS and
// MUTATE_PART, the part name of the queued entry with the earliest
// create_time (spec §8, supplemented from original_source's
// oldest_part_to_* status columns). Caller holds q.mu.
func (q *Queue) oldestPartsByTypeLocked() (get, mergeTo, mutateTo string) {
	var getTime, mergeTime, mutateTime time.Time
	for e := q.queue.Front(); e != nil; e = e.Next() {
		entry := e.Value.(*logentry.Entry)
		switch entry.Type {
		case logentry.GetPart:
			if get == "" || entry.CreateTime.Before(getTime) {
				get, getTime = entry.NewPartName, entry.CreateTime
			}
		case logentry.MergeParts:
			if mergeTo == "" || entry.CreateTime.Before(mergeTime) {
				mergeTo, mergeTime = entry.NewPartName, entry.CreateTime
			}
		case logentry.MutatePart:
			if mutateTo == "" || entry.CreateTime.Before(mutateTime) {
				mutateTo, mutateTime = entry.NewPartName, entry.CreateTime
			}
		}
	}
	return get, mergeTo, mutateTo
}

// EntrySnapshot is a defensive copy of one queue entry's visible state,
// safe to read without the queue's lock (spec §8 "getEntries").
type EntrySnapshot struct {
	ZnodeName          string
	Type               string
	NewPartName        string
	PartsToMerge       []string
	CreateTime         time.Time
	CurrentlyExecuting bool
	NumTries           int
	LastAttemptTime    time.Time
	NumPostponed       int
	LastPostponeTime   time.Time
	PostponeReason     string
	LastException      string
}

// GetEntries returns a snapshot of every queued entry, in execution order
// (spec §8 "getEntries").
func (q *Queue) GetEntries() []EntrySnapshot {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]EntrySnapshot, 0, q.queue.Len())
	for e := q.queue.Front(); e != nil; e = e.Next() {
		entry := e.Value.(*logentry.Entry)
		snap := EntrySnapshot{
			ZnodeName:          entry.ZnodeName,
			Type:               entry.Type.String(),
			NewPartName:        entry.NewPartName,
			PartsToMerge:       append([]string(nil), entry.PartsToMerge...),
			CreateTime:         entry.CreateTime,
			CurrentlyExecuting: entry.CurrentlyExecuting,
			NumTries:           entry.NumTries,
			LastAttemptTime:    entry.LastAttemptTime,
			NumPostponed:       entry.NumPostponed,
			LastPostponeTime:   entry.LastPostponeTime,
			PostponeReason:     entry.PostponeReason,
		}
		if entry.Exception != nil {
			snap.LastException = entry.Exception.Error()
		}
		out = append(out, snap)
	}
	return out
}

// GetInsertTimes returns the current insert-time watermarks (spec §4.C
// "getInsertTimes"), the same values UpdateTimesInCoordinator persists.
func (q *Queue) GetInsertTimes() (minUnprocessed, maxProcessed time.Time) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.minUnprocessedInsertTime, q.maxProcessedInsertTime
}
