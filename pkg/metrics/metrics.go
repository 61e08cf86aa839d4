// Package metrics exposes the engine's prometheus instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Driver-edge reconciliation
	DriverEdgesCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "metagraph_driver_edges_created_total",
		Help: "Driver edges created by reconciliation",
	})

	DriverEdgesDeleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "metagraph_driver_edges_deleted_total",
		Help: "Driver edges deleted by reconciliation",
	})

	// All-pairs relationship enforcement
	RelationshipEdgesCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "metagraph_relationship_edges_created_total",
		Help: "Default relationship edges created by the enforcer",
	})

	RelationshipEdgesNormalized = promauto.NewCounter(prometheus.CounterOpts{
		Name: "metagraph_relationship_edges_normalized_total",
		Help: "Default relationship edges whose properties were repaired",
	})

	RelationshipEdgesRemoved = promauto.NewCounter(prometheus.CounterOpts{
		Name: "metagraph_relationship_edges_removed_total",
		Help: "Duplicate default relationship edges removed by the audit",
	})

	// Tier-chain maintenance
	TierValuesCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "metagraph_tier_values_created_total",
		Help: "List values created while building tier chains",
	})

	// Sweeps
	SweepFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "metagraph_sweep_failures_total",
		Help: "Per-item failures inside best-effort sweeps",
	}, []string{"sweep"})

	GroupsRepaired = promauto.NewCounter(prometheus.CounterOpts{
		Name: "metagraph_group_exclusivity_repairs_total",
		Help: "Groups re-homed to a single part by the exclusivity auditor",
	})
)
