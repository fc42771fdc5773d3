// Package engine is the execution core: the action registry and dispatcher,
// the per-execution variable context, the data-flow graph and its region
// classifier, the fused streaming pipeline executor, and the runtime that
// ties them to the subscription table and repository manager.
//
// A Runtime is loaded once with compiled feature sets and then triggered.
// Each triggering event instantiates its handlers as independent executions;
// handlers spawned by a cascade share activity-scoped published variables
// and nothing else.
package engine
