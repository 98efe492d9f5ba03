package main

import (
	"fmt"
	"io"

	"riftminer.ai/internal/sim/world"
)

// writeMetrics renders the minimal Prometheus exposition format.
func writeMetrics(out io.Writer, worldID string, w *world.World, idx runtimeIndex, cache *nodeCacheRuntime) {
	m := w.Metrics()
	tick := w.CurrentTick()
	if m.Tick != 0 {
		tick = m.Tick
	}

	fmt.Fprintf(out, "# HELP riftminer_world_tick Current world tick.\n")
	fmt.Fprintf(out, "# TYPE riftminer_world_tick gauge\n")
	fmt.Fprintf(out, "riftminer_world_tick{world=%q} %d\n", worldID, tick)

	fmt.Fprintf(out, "# HELP riftminer_nodes Placed rift miners.\n")
	fmt.Fprintf(out, "# TYPE riftminer_nodes gauge\n")
	fmt.Fprintf(out, "riftminer_nodes{world=%q} %d\n", worldID, m.Nodes)

	fmt.Fprintf(out, "# HELP riftminer_nodes_running Rift miners with a cycle in progress.\n")
	fmt.Fprintf(out, "# TYPE riftminer_nodes_running gauge\n")
	fmt.Fprintf(out, "riftminer_nodes_running{world=%q} %d\n", worldID, m.RunningNodes)

	fmt.Fprintf(out, "# HELP riftminer_observers Connected observer sessions.\n")
	fmt.Fprintf(out, "# TYPE riftminer_observers gauge\n")
	fmt.Fprintf(out, "riftminer_observers{world=%q} %d\n", worldID, m.Observers)

	fmt.Fprintf(out, "# HELP riftminer_world_queue_depth Channel backlog depth.\n")
	fmt.Fprintf(out, "# TYPE riftminer_world_queue_depth gauge\n")
	fmt.Fprintf(out, "riftminer_world_queue_depth{world=%q,queue=%q} %d\n", worldID, "place", m.QueueDepths.Place)
	fmt.Fprintf(out, "riftminer_world_queue_depth{world=%q,queue=%q} %d\n", worldID, "remove", m.QueueDepths.Remove)
	fmt.Fprintf(out, "riftminer_world_queue_depth{world=%q,queue=%q} %d\n", worldID, "access", m.QueueDepths.Access)

	fmt.Fprintf(out, "# HELP riftminer_world_step_ms Last tick step duration in milliseconds.\n")
	fmt.Fprintf(out, "# TYPE riftminer_world_step_ms gauge\n")
	fmt.Fprintf(out, "riftminer_world_step_ms{world=%q} %.3f\n", worldID, m.StepMS)

	fmt.Fprintf(out, "# HELP riftminer_cycle_events Cycle events (start/cancel/complete) in the last tick.\n")
	fmt.Fprintf(out, "# TYPE riftminer_cycle_events gauge\n")
	fmt.Fprintf(out, "riftminer_cycle_events{world=%q} %d\n", worldID, m.CyclesThisTick)

	if idx != nil {
		s := idx.Stats()
		fmt.Fprintf(out, "# HELP riftminer_index_queue_depth Index writer queue depth.\n")
		fmt.Fprintf(out, "# TYPE riftminer_index_queue_depth gauge\n")
		fmt.Fprintf(out, "riftminer_index_queue_depth %d\n", s.QueueDepth)

		fmt.Fprintf(out, "# HELP riftminer_index_dropped_total Index rows dropped because the queue was full.\n")
		fmt.Fprintf(out, "# TYPE riftminer_index_dropped_total counter\n")
		fmt.Fprintf(out, "riftminer_index_dropped_total{kind=%q} %d\n", "tick", s.DropTickTotal)
		fmt.Fprintf(out, "riftminer_index_dropped_total{kind=%q} %d\n", "audit", s.DropAuditTotal)
		fmt.Fprintf(out, "riftminer_index_dropped_total{kind=%q} %d\n", "snapshot", s.DropSnapshotTotal)
		fmt.Fprintf(out, "riftminer_index_dropped_total{kind=%q} %d\n", "snapshot_state", s.DropSnapshotStateTotal)
	}

	if cache != nil {
		fmt.Fprintf(out, "# HELP riftminer_node_cache_dropped_total Node mirror updates dropped because the queue was full.\n")
		fmt.Fprintf(out, "# TYPE riftminer_node_cache_dropped_total counter\n")
		fmt.Fprintf(out, "riftminer_node_cache_dropped_total %d\n", cache.store.Dropped())

		fmt.Fprintf(out, "# HELP riftminer_node_cache_failed_total Node mirror updates rejected by redis.\n")
		fmt.Fprintf(out, "# TYPE riftminer_node_cache_failed_total counter\n")
		fmt.Fprintf(out, "riftminer_node_cache_failed_total %d\n", cache.store.Failed())
	}
}
