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
	"context"

	"github.com/eden-shiwm/replqueue/pkg/replqueue/logentry"
	"github.com/eden-shiwm/replqueue/pkg/replqueue/partinfo"
	"github.com/eden-shiwm/replqueue/pkg/util/log"
	"github.com/eden-shiwm/replqueue/pkg/util/timeutil"
)

// SelectAndBeginExecuting picks the first not-currently-executing entry
// for which ShouldExecuteLogEntry holds, tags it CurrentlyExecuting, and
// returns a handle whose Release must be called exactly once regardless
// of outcome (spec §4.E, §9 "execution handle"). It returns nil if no
// entry is currently eligible.
func (q *Queue) SelectAndBeginExecuting(ctx context.Context) *ExecutingEntry {
	q.mu.Lock()
	defer q.mu.Unlock()

	for e := q.queue.Front(); e != nil; e = e.Next() {
		entry := e.Value.(*logentry.Entry)
		ok, reason := q.shouldExecuteLogEntryLocked(entry)
		if !ok {
			if reason != "" {
				entry.NumPostponed++
				entry.LastPostponeTime = timeutil.Now()
				entry.PostponeReason = reason
				q.metrics.PostponedEntries.Inc()
				log.VEventf(ctx, 2, "postponing %s: %s", entry.ZnodeName, reason)
			}
			continue
		}
		entry.CurrentlyExecuting = true
		entry.NumTries++
		entry.LastAttemptTime = timeutil.Now()
		entry.PostponeReason = ""
		if entry.Type.ProducesPart() && entry.NewPartName != "" {
			q.futureParts[entry.NewPartName] = struct{}{}
			q.metrics.FutureParts.Set(float64(len(q.futureParts)))
		}
		// Splice the selected entry to the back of the execution order so
		// that a repeatedly-failing entry naturally drifts backward rather
		// than blocking every entry behind it on each retry (spec §4.G
		// "selectEntryToProcess").
		q.queue.MoveToBack(e)
		return &ExecutingEntry{q: q, entry: entry}
	}
	return nil
}

// ExecutingEntry is the handle a worker holds while running one queue
// entry. It must be released exactly once.
type ExecutingEntry struct {
	q     *Queue
	entry *logentry.Entry

	released bool
}

// Entry returns the underlying log entry. Callers must not mutate its
// execution-state fields directly; use SetActualPartName and Release.
func (h *ExecutingEntry) Entry() *logentry.Entry { return h.entry }

// SetActualPartName records the part name the executor decided to produce
// after quorum resolution, which can differ from NewPartName. If distinct
// from the originally tagged name, it is also reserved in future_parts
// (spec §4.F "setActualPartName").
func (h *ExecutingEntry) SetActualPartName(name string) {
	q := h.q
	q.mu.Lock()
	defer q.mu.Unlock()
	h.entry.ActualNewPartName = name
	if name != "" && name != h.entry.NewPartName {
		q.futureParts[name] = struct{}{}
		q.metrics.FutureParts.Set(float64(len(q.futureParts)))
	}
}

// Release marks the entry no longer executing, updates virtual_parts and
// removes the entry from the queue on success, and wakes anything blocked in WaitExecutionComplete (spec §9
// "execution handle release"). runErr is nil on success. ctx is used only
// for the best-effort coordinator znode removal that follows a successful
// run; it is not required to be the context the entry executed under.
func (h *ExecutingEntry) Release(ctx context.Context, runErr error) {
	if h.released {
		return
	}
	h.released = true

	q := h.q
	q.mu.Lock()
	defer q.mu.Unlock()

	entry := h.entry
	entry.CurrentlyExecuting = false
	entry.Exception = runErr

	if entry.Type.ProducesPart() && entry.NewPartName != "" {
		delete(q.futureParts, entry.NewPartName)
	}
	if entry.ActualNewPartName != "" && entry.ActualNewPartName != entry.NewPartName {
		delete(q.futureParts, entry.ActualNewPartName)
	}
	q.metrics.FutureParts.Set(float64(len(q.futureParts)))

	if runErr == nil {
		if entry.Type.ProducesPart() {
			produced := entry.ActualNewPartName
			if produced == "" {
				produced = entry.NewPartName
			}
			if info, err := partinfo.Parse(produced); err == nil {
				q.virtualParts.AddInfo(info)
				q.nextVirtualParts.AddInfo(info)
			}
		}
		q.removeUnlocked(ctx, entry)
	}

	entry.ActualNewPartName = ""
	entry.BroadcastExecutionComplete()
}
