// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the Business Source License
// included in the file licenses/BSL.txt.
//
// As of the Change Date specified in that file, in accordance with
// the Business Source License, use of this software will be governed
// by the Apache License, Version 2.0, included in the file
// licenses/APL.txt.

// Command replqueuedemo drives a replqueue.Queue against an in-memory
// coordinator through a scripted scenario, for manual inspection of the
// admission and status output without a live coordination service.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/eden-shiwm/replqueue/pkg/coordinator"
	"github.com/eden-shiwm/replqueue/pkg/replqueue"
	"github.com/eden-shiwm/replqueue/pkg/replqueue/logentry"
	"github.com/eden-shiwm/replqueue/pkg/util/humanizeutil"
	"github.com/eden-shiwm/replqueue/pkg/util/log"
)

type demoCodec struct{}

type wireEntry struct {
	Type         int
	NewPartName  string
	PartsToMerge []string
	CreateTime   time.Time
}

func (demoCodec) DecodeLogEntry(znodeName string, data []byte) (*logentry.Entry, error) {
	var w wireEntry
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, err
	}
	return &logentry.Entry{
		ZnodeName:    znodeName,
		Type:         logentry.Type(w.Type),
		NewPartName:  w.NewPartName,
		PartsToMerge: w.PartsToMerge,
		CreateTime:   w.CreateTime,
	}, nil
}

func (demoCodec) DecodeMutationEntry(znodeName string, data []byte) (*logentry.MutationEntry, error) {
	return &logentry.MutationEntry{ZnodeName: znodeName}, nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var sharedPath, replicaPath string
	maxMergeSize := int64(150 * 1024 * 1024 * 1024)
	maxMergeSizeFlag := humanizeutil.NewBytesValue(&maxMergeSize)
	var verbosity int32

	cmd := &cobra.Command{
		Use:   "replqueuedemo",
		Short: "Exercise a replication queue against an in-memory coordinator",
		RunE: func(cmd *cobra.Command, args []string) error {
			log.SetVerbosity(verbosity)
			return runDemo(sharedPath, replicaPath, maxMergeSize)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&sharedPath, "shared-path", "/tables/t1", "coordinator subtree shared by every replica")
	flags.StringVar(&replicaPath, "replica-path", "/tables/t1/replicas/r1", "this replica's own coordinator subtree")
	flags.Var(maxMergeSizeFlag, "max-merge-size", "cap on total input bytes for one merge")
	flags.Int32Var(&verbosity, "verbosity", 1, "log verbosity level")
	_ = pflag.CommandLine // demo wires spf13/pflag through cobra's flag set rather than parsing os.Args directly

	return cmd
}

type staticMerger struct{ max int64 }

func (m staticMerger) MergesCancelled() bool                { return false }
func (m staticMerger) MaxPartsSizeForMerge() int64           { return m.max }
func (m staticMerger) MaxPartsSizeForMergeAtMaxSpace() int64 { return m.max }

func runDemo(sharedPath, replicaPath string, maxMergeSize int64) error {
	ctx := context.Background()
	client := coordinator.NewTestClient()

	cfg := replqueue.Config{
		SharedPath:  sharedPath,
		ReplicaPath: replicaPath,
		Merger:      staticMerger{max: maxMergeSize},
	}
	q := replqueue.New(client, cfg)

	seedScenario(client, sharedPath)

	pulled, err := q.PullLogsToQueue(ctx, demoCodec{})
	if err != nil {
		return err
	}
	fmt.Printf("pulled %d log entries\n", pulled)

	for {
		h := q.SelectAndBeginExecuting(ctx)
		if h == nil {
			break
		}
		fmt.Printf("executing %s (%s)\n", h.Entry().ZnodeName, h.Entry().Type)
		h.Release(ctx, nil)
	}

	status := q.GetStatus()
	fmt.Printf("status: size=%d inserts=%d merges=%d mutations=%d\n",
		status.QueueSize, status.Inserts, status.Merges, status.QueuedMutations)
	return nil
}

func seedScenario(client *coordinator.TestClient, sharedPath string) {
	entries := []wireEntry{
		{Type: int(logentry.GetPart), NewPartName: "all_1_1_0", CreateTime: time.Unix(1000, 0)},
		{Type: int(logentry.GetPart), NewPartName: "all_2_2_0", CreateTime: time.Unix(1001, 0)},
	}
	for i, e := range entries {
		data, _ := json.Marshal(e)
		client.Seed(fmt.Sprintf("%s/log/log-%010d", sharedPath, i), data)
	}
}
