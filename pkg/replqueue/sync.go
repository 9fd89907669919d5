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
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/tidwall/btree"
	"golang.org/x/sync/errgroup"

	"github.com/eden-shiwm/replqueue/pkg/coordinator"
	"github.com/eden-shiwm/replqueue/pkg/replqueue/logentry"
	"github.com/eden-shiwm/replqueue/pkg/util/log"
	"github.com/eden-shiwm/replqueue/pkg/util/timeutil"
)

// EntryCodec decodes a log-entry payload fetched from the coordinator.
// Its concrete wire format is an external collaborator (spec §1, §6); this
// module only calls it.
type EntryCodec interface {
	DecodeLogEntry(znodeName string, data []byte) (*logentry.Entry, error)
	DecodeMutationEntry(znodeName string, data []byte) (*logentry.MutationEntry, error)
}

// Load performs the one-time initial load of this replica's persisted
// queue (spec §4.D step 1): every child of <replica>/queue is fetched and
// inserted, in znode-name order (which is coordinator sequence order, so
// also creation order).
func (q *Queue) Load(ctx context.Context, codec EntryCodec) error {
	names, err := q.coord.GetChildren(ctx, q.queuePath(), nil)
	if err != nil {
		return errors.Wrap(err, "listing persisted queue")
	}
	sort.Strings(names)

	g, gctx := errgroup.WithContext(ctx)
	entries := make([]*logentry.Entry, len(names))
	for i, name := range names {
		i, name := i, name
		g.Go(func() error {
			data, err := q.coord.Get(gctx, q.queuePath()+"/"+name)
			if err != nil {
				return errors.Wrapf(err, "fetching queue entry %s", name)
			}
			entry, err := codec.DecodeLogEntry(name, data)
			if err != nil {
				return errors.Wrapf(err, "decoding queue entry %s", name)
			}
			entries[i] = entry
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	q.mu.Lock()
	for _, entry := range entries {
		q.insertUnlocked(entry)
	}
	q.mu.Unlock()
	log.Infof(ctx, "loaded %d persisted queue entries", len(entries))

	if err := q.UpdateTimesInCoordinator(ctx); err != nil {
		log.Warningf(ctx, "persisting insert-time watermarks after load: %v", err)
	}
	return nil
}

// PullLogsToQueue fetches every /log entry newer than log_pointer,
// persists it to this replica's own queue subtree and the in-memory
// queue, and advances log_pointer, all inside one coordinator multi-
// request per batch (spec §4.D step 6, §9 "atomic batching").
//
// Only one caller may run this at a time; concurrent calls block on
// pullMu, matching the original's pull_logs_to_queue_mutex.
func (q *Queue) PullLogsToQueue(ctx context.Context, codec EntryCodec) (pulled int, err error) {
	q.pullMu.Lock()
	defer q.pullMu.Unlock()

	start := timeutil.Now()
	defer func() {
		q.metrics.PullLogLatency.Observe(timeutil.Now().Sub(start).Seconds())
	}()

	logChildren, err := q.coord.GetChildren(ctx, q.logPath(), nil)
	if err != nil {
		return 0, errors.Wrap(err, "listing shared log")
	}
	sort.Strings(logChildren)

	pointer, err := q.readLogPointer(ctx)
	if err != nil {
		return 0, err
	}
	// pointer is the next sequence number not yet pulled (spec §4.D step
	// 6.b), so entries at or after it — not strictly after — are new.
	var toFetch []string
	for _, name := range logChildren {
		n, err := logSequenceNumber(name)
		if err != nil {
			continue
		}
		if n >= pointer {
			toFetch = append(toFetch, name)
		}
	}
	if len(toFetch) == 0 {
		return 0, nil
	}

	// updateMutations must run before any new log entry lands in the
	// queue, so that a queue snapshot observed at time T reflects every
	// mutation known to the coordinator at time T (spec §4.D step 3).
	if _, err := q.UpdateMutations(ctx, codec); err != nil {
		return 0, errors.Wrap(err, "updating mutations before pulling log entries")
	}

	maxBatch := q.cfg.maxMultiOps() - 1 // reserve one op for the log_pointer set
	for len(toFetch) > 0 {
		batch := toFetch
		if len(batch) > maxBatch {
			batch = batch[:maxBatch]
		}
		toFetch = toFetch[len(batch):]

		n, err := q.pullBatch(ctx, codec, batch)
		if err != nil {
			return pulled, err
		}
		pulled += n
	}

	// Every entry pulled above already extended next_virtual_parts via
	// insertUnlocked, so next_virtual_parts now reflects every part
	// expected to materialize up through this pull. Publish that boundary
	// to virtual_parts (spec §4.D step 7 "virtual_parts ← next_virtual_parts")
	// before admission checks can observe it.
	q.mu.Lock()
	q.virtualParts = q.nextVirtualParts.Clone()
	q.mu.Unlock()

	if err := q.refreshQuorumPartsLocked(ctx); err != nil {
		log.Warningf(ctx, "refreshing quorum parts: %v", err)
	}
	if err := q.refreshCurrentInsertsLocked(ctx); err != nil {
		log.Warningf(ctx, "refreshing current inserts: %v", err)
	}

	return pulled, nil
}

// refreshCurrentInsertsLocked repopulates current_inserts from the
// coordinator's ephemeral insert locks (spec §4.D step 7 "loadCurrentInserts",
// spec §3 "current_inserts"). An insert lock is live only while its holder's
// path under <shared>/temp still exists; a block number under
// <shared>/block_numbers/<partition> whose stored contents no longer name a
// live holder belongs to an insert that has already committed or been
// abandoned, and is excluded.
func (q *Queue) refreshCurrentInsertsLocked(ctx context.Context) error {
	lockHolders, err := q.coord.GetChildren(ctx, q.tempPath(), nil)
	if err != nil && !errors.Is(err, coordinator.ErrNoNode) {
		return errors.Wrap(err, "listing insert locks")
	}
	live := make(map[string]struct{}, len(lockHolders))
	for _, name := range lockHolders {
		if strings.HasPrefix(name, "abandonable_lock-") {
			live[q.tempPath()+"/"+name] = struct{}{}
		}
	}
	if len(live) == 0 {
		q.mu.Lock()
		q.currentInserts = make(map[string]*btree.BTreeG[int64])
		q.mu.Unlock()
		return nil
	}

	partitions, err := q.coord.GetChildren(ctx, q.blockNumbersPath(), nil)
	if err != nil && !errors.Is(err, coordinator.ErrNoNode) {
		return errors.Wrap(err, "listing block-number partitions")
	}

	type blockNode struct {
		partition string
		number    int64
		path      string
	}
	var nodes []blockNode
	for _, partition := range partitions {
		children, err := q.coord.GetChildren(ctx, q.blockNumbersPath()+"/"+partition, nil)
		if err != nil {
			if errors.Is(err, coordinator.ErrNoNode) {
				continue
			}
			return errors.Wrapf(err, "listing block numbers for partition %s", partition)
		}
		for _, name := range children {
			n, err := strconv.ParseInt(strings.TrimPrefix(name, "block-"), 10, 64)
			if err != nil {
				continue
			}
			nodes = append(nodes, blockNode{
				partition: partition,
				number:    n,
				path:      q.blockNumbersPath() + "/" + partition + "/" + name,
			})
		}
	}

	fresh := make(map[string]*btree.BTreeG[int64])
	for _, node := range nodes {
		data, err := q.coord.Get(ctx, node.path)
		if errors.Is(err, coordinator.ErrNoNode) {
			continue
		}
		if err != nil {
			return errors.Wrapf(err, "reading block number %s", node.path)
		}
		if _, ok := live[string(data)]; !ok {
			continue
		}
		set, ok := fresh[node.partition]
		if !ok {
			set = btree.NewBTreeG(lessInt64)
			fresh[node.partition] = set
		}
		set.Set(node.number)
	}

	q.mu.Lock()
	q.currentInserts = fresh
	q.mu.Unlock()
	return nil
}

// refreshQuorumPartsLocked snapshots last_quorum_part and
// inprogress_quorum_part from the coordinator (spec §4.D step 7). Absence
// of either node just means no quorum insert has run yet; that is not an
// error.
func (q *Queue) refreshQuorumPartsLocked(ctx context.Context) error {
	last, err := q.readQuorumPart(ctx, q.quorumLastPartPath())
	if err != nil {
		return err
	}
	inprogress, err := q.readQuorumPart(ctx, q.quorumStatusPath())
	if err != nil {
		return err
	}

	q.mu.Lock()
	q.lastQuorumPart = last
	q.inprogressQuorumPart = inprogress
	q.mu.Unlock()
	return nil
}

// readQuorumPart reads a scalar part-name node, treating an absent node as
// "no such part" rather than an error.
func (q *Queue) readQuorumPart(ctx context.Context, path string) (string, error) {
	data, err := q.coord.Get(ctx, path)
	if errors.Is(err, coordinator.ErrNoNode) {
		return "", nil
	}
	if err != nil {
		return "", errors.Wrapf(err, "reading %s", path)
	}
	return string(data), nil
}

// pullBatch fetches, decodes, persists and inserts one batch of /log
// entries and commits the advanced log_pointer — plus, if this batch
// lowers min_unprocessed_insert_time, that watermark too — in a single
// coordinator Multi (spec §4.D step 6.b). If the Multi commits but the
// in-memory reconciliation that follows fails, the process aborts
// unconditionally (spec §9): a divergence between the coordinator's
// durable state and this replica's queue is unrecoverable in place.
func (q *Queue) pullBatch(ctx context.Context, codec EntryCodec, names []string) (int, error) {
	g, gctx := errgroup.WithContext(ctx)
	payloads := make([][]byte, len(names))
	for i, name := range names {
		i, name := i, name
		g.Go(func() error {
			data, err := q.coord.Get(gctx, q.logPath()+"/"+name)
			if err != nil {
				return errors.Wrapf(err, "fetching log entry %s", name)
			}
			payloads[i] = data
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	entries := make([]*logentry.Entry, len(names))
	for i, name := range names {
		entry, err := codec.DecodeLogEntry(name, payloads[i])
		if err != nil {
			return 0, errors.Wrapf(err, "decoding log entry %s", name)
		}
		entries[i] = entry
	}

	lastSeq, err := logSequenceNumber(names[len(names)-1])
	if err != nil {
		return 0, err
	}

	q.mu.Lock()
	newMin := q.minUnprocessedInsertTime
	for _, entry := range entries {
		if entry.Type != logentry.GetPart && entry.Type != logentry.AttachPart {
			continue
		}
		if newMin.IsZero() || entry.CreateTime.Before(newMin) {
			newMin = entry.CreateTime
		}
	}
	minChanged := !newMin.Equal(q.minUnprocessedInsertTime)
	q.mu.Unlock()

	ops := make([]coordinator.Op, 0, len(names)+2)
	for i := range names {
		ops = append(ops, coordinator.Op{
			Type: coordinator.OpCreate,
			Path: q.queuePath() + "/queue-",
			Data: payloads[i],
			Mode: coordinator.PersistentSequential,
		})
	}
	ops = append(ops, coordinator.Op{
		Type:    coordinator.OpSet,
		Path:    q.logPointerPath(),
		Data:    []byte(strconv.FormatInt(lastSeq+1, 10)),
		Version: -1,
	})
	if minChanged {
		ops = append(ops, coordinator.Op{
			Type:    coordinator.OpSet,
			Path:    q.minUnprocessedPath(),
			Data:    []byte(strconv.FormatInt(newMin.UnixNano(), 10)),
			Version: -1,
		})
	}

	results, err := q.coord.Multi(ctx, ops)
	if err != nil {
		return 0, errors.Wrap(err, "committing log pull batch")
	}

	// The multi-request has durably committed. From here on any failure to
	// reconcile in-memory state with what the coordinator now holds is a
	// desync this process cannot recover from: every entry above is already
	// persisted under a coordinator-assigned name we have not yet recorded
	// anywhere else, so the process aborts rather than risk silently
	// dropping or double-processing it.
	q.mu.Lock()
	for i, entry := range entries {
		_, znodeName := path.Split(results[i].PathCreated)
		if znodeName == "" {
			q.mu.Unlock()
			log.Fatalf(ctx, "log pull batch committed but create result %d has no usable path %q", i, results[i].PathCreated)
			return 0, errors.Newf("unreachable: log.Fatalf did not abort the process")
		}
		entry.ZnodeName = znodeName
		q.insertUnlocked(entry)
	}
	q.lastQueueUpdate = timeutil.Now()
	q.mu.Unlock()

	return len(entries), nil
}

func (q *Queue) readLogPointer(ctx context.Context) (int64, error) {
	data, err := q.coord.Get(ctx, q.logPointerPath())
	if errors.Is(err, coordinator.ErrNoNode) {
		return -1, nil // spec §4.D: absent pointer means "nothing pulled yet".
	}
	if err != nil {
		return -1, errors.Wrap(err, "reading log_pointer")
	}
	if len(data) == 0 {
		return -1, nil
	}
	n, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return 0, errors.Wrap(err, "parsing log_pointer")
	}
	return n, nil
}

// logSequenceNumber extracts the coordinator-assigned sequence suffix from
// a persistent-sequential znode name such as "log-0000000042".
func logSequenceNumber(name string) (int64, error) {
	if len(name) < 10 {
		return 0, errors.Newf("malformed log entry name %q", name)
	}
	suffix := name[len(name)-10:]
	return strconv.ParseInt(suffix, 10, 64)
}

// UpdateMutations fetches every /mutations entry not yet indexed and
// appends it to the per-partition mutation index (spec §4.F). Only one
// caller may run this at a time; concurrent calls block on mutationsMu,
// matching the original's update_mutations_mutex.
func (q *Queue) UpdateMutations(ctx context.Context, codec EntryCodec) (added int, err error) {
	q.mutationsMu.Lock()
	defer q.mutationsMu.Unlock()

	start := timeutil.Now()
	defer func() {
		q.metrics.UpdateMutationsLatency.Observe(timeutil.Now().Sub(start).Seconds())
	}()

	children, err := q.coord.GetChildren(ctx, q.mutationsPath(), nil)
	if err != nil && !errors.Is(err, coordinator.ErrNoNode) {
		return 0, errors.Wrap(err, "listing shared mutations")
	}
	sort.Strings(children)

	q.mu.Lock()
	if len(children) > 0 {
		q.purgeMutationsBelowLocked(children[0])
	}
	known := make(map[string]struct{}, len(q.mutations))
	for _, m := range q.mutations {
		known[m.ZnodeName] = struct{}{}
	}
	q.mu.Unlock()

	var toFetch []string
	for _, name := range children {
		if _, ok := known[name]; !ok {
			toFetch = append(toFetch, name)
		}
	}
	if len(toFetch) == 0 {
		return 0, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	fetched := make([]*logentry.MutationEntry, len(toFetch))
	for i, name := range toFetch {
		i, name := i, name
		g.Go(func() error {
			data, err := q.coord.Get(gctx, q.mutationsPath()+"/"+name)
			if err != nil {
				return errors.Wrapf(err, "fetching mutation %s", name)
			}
			mutation, err := codec.DecodeMutationEntry(name, data)
			if err != nil {
				return errors.Wrapf(err, "decoding mutation %s", name)
			}
			fetched[i] = mutation
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	q.mu.Lock()
	for _, m := range fetched {
		q.appendMutationLocked(m)
	}
	q.mu.Unlock()

	return len(fetched), nil
}

// Insert persists a locally-constructed, self-originated entry to this
// replica's own queue subtree and materializes it in memory (spec §4.D
// "insert(zk, entry)"). Unlike PullLogsToQueue, it never touches the
// shared log: it is for entries this replica decides to run on its own,
// such as a locally-triggered DROP_RANGE. encoded is the entry's payload
// in whatever wire format the caller's codec produces.
func (q *Queue) Insert(ctx context.Context, entry *logentry.Entry, encoded []byte) error {
	results, err := q.coord.Multi(ctx, []coordinator.Op{{
		Type: coordinator.OpCreate,
		Path: q.queuePath() + "/queue-",
		Data: encoded,
		Mode: coordinator.PersistentSequential,
	}})
	if err != nil {
		return errors.Wrap(err, "persisting self-originated entry")
	}
	_, entry.ZnodeName = path.Split(results[0].PathCreated)

	q.mu.Lock()
	q.insertUnlocked(entry)
	q.mu.Unlock()

	if err := q.UpdateTimesInCoordinator(ctx); err != nil {
		log.Warningf(ctx, "persisting insert-time watermarks after self-originated insert: %v", err)
	}
	return nil
}

// UpdateTimesInCoordinator persists min_unprocessed_insert_time and
// max_processed_insert_time (spec §4.C step 4). Load and Insert call it;
// pullBatch writes min_unprocessed_insert_time inside its own multi-request,
// and removals do not persist the watermarks.
func (q *Queue) UpdateTimesInCoordinator(ctx context.Context) error {
	q.mu.Lock()
	minT, maxT := q.minUnprocessedInsertTime, q.maxProcessedInsertTime
	q.mu.Unlock()

	ops := []coordinator.Op{
		{Type: coordinator.OpSet, Path: q.minUnprocessedPath(), Data: []byte(strconv.FormatInt(minT.UnixNano(), 10)), Version: -1},
		{Type: coordinator.OpSet, Path: q.maxProcessedPath(), Data: []byte(strconv.FormatInt(maxT.UnixNano(), 10)), Version: -1},
	}
	if _, err := q.coord.Multi(ctx, ops); err != nil {
		return errors.Wrap(err, "persisting insert-time watermarks")
	}
	return nil
}

// recomputeInsertTimesLocked recomputes min_unprocessed_insert_time from
// insertsByTime; max_processed_insert_time is left as insertUnlocked set it.
// Caller holds q.mu.
func (q *Queue) recomputeInsertTimesLocked() {
	if q.insertsByTime.Len() == 0 {
		q.minUnprocessedInsertTime = time.Time{}
		return
	}
	min, ok := q.insertsByTime.Min()
	if ok {
		q.minUnprocessedInsertTime = time.Unix(0, min.createTime)
	}
}
