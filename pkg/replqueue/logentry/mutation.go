// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the Business Source License
// included in the file licenses/BSL.txt.
//
// As of the Change Date specified in that file, in accordance with
// the Business Source License, use of this software will be governed
// by the Apache License, Version 2.0, included in the file
// licenses/APL.txt.

package logentry

// Command is one step of a mutation (a rewrite of a part at a new logical
// version). Its concrete shape is owned by an external codec (spec §6);
// this module treats commands as opaque payloads it concatenates in
// mutation-version order and hands back to the executor.
type Command struct {
	Kind    string
	Payload []byte
}

// MutationEntry is a single entry from the shared mutations log: an
// atomically-assigned block number per affected partition, plus the
// commands to apply.
type MutationEntry struct {
	ZnodeName    string
	BlockNumbers map[string]int64
	Commands     []Command
}

// PartitionVersions returns a defensive copy of e's block-number map, since
// handing out the map itself would let callers mutate mutation index state
// through a value the mutation index also holds a reference to.
func (e MutationEntry) PartitionVersions() map[string]int64 {
	out := make(map[string]int64, len(e.BlockNumbers))
	for k, v := range e.BlockNumbers {
		out[k] = v
	}
	return out
}
