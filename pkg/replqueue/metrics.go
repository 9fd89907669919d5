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

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the queue's prometheus collectors. Callers register these
// with their own registry; the queue never registers itself, matching the
// teacher's convention of returning metrics for the caller to wire into a
// shared metric.Registry-equivalent.
type Metrics struct {
	QueueSize              prometheus.Gauge
	InsertsInQueue         prometheus.Gauge
	MergesInQueue          prometheus.Gauge
	MutationsInQueue       prometheus.Gauge
	PartMutations          prometheus.Gauge
	PostponedEntries       prometheus.Counter
	FutureParts            prometheus.Gauge
	PullLogLatency         prometheus.Histogram
	UpdateMutationsLatency prometheus.Histogram
}

func newMetrics() *Metrics {
	return &Metrics{
		QueueSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "replqueue",
			Name:      "size",
			Help:      "Number of entries currently in the replication queue.",
		}),
		InsertsInQueue: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "replqueue",
			Name:      "inserts_in_queue",
			Help:      "Number of GET_PART/ATTACH_PART entries currently in the replication queue.",
		}),
		MergesInQueue: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "replqueue",
			Name:      "merges_in_queue",
			Help:      "Number of MERGE_PARTS entries currently in the replication queue.",
		}),
		MutationsInQueue: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "replqueue",
			Name:      "mutations_in_queue",
			Help:      "Number of MUTATE_PART entries currently in the replication queue.",
		}),
		PartMutations: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "replqueue",
			Name:      "part_mutations",
			Help:      "Number of part-level mutations not yet fully applied, across all partitions.",
		}),
		PostponedEntries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "replqueue",
			Name:      "postponed_entries_total",
			Help:      "Cumulative count of entries postponed by the admission predicates.",
		}),
		FutureParts: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "replqueue",
			Name:      "future_parts",
			Help:      "Number of part names reserved by in-flight queue entries.",
		}),
		PullLogLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "replqueue",
			Name:      "pull_log_latency_seconds",
			Help:      "Latency of a single pullLogsToQueue round.",
			Buckets:   prometheus.DefBuckets,
		}),
		UpdateMutationsLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "replqueue",
			Name:      "update_mutations_latency_seconds",
			Help:      "Latency of a single updateMutations round.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}

// Collectors returns every collector for bulk registration.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.QueueSize,
		m.InsertsInQueue,
		m.MergesInQueue,
		m.MutationsInQueue,
		m.PartMutations,
		m.PostponedEntries,
		m.FutureParts,
		m.PullLogLatency,
		m.UpdateMutationsLatency,
	}
}
