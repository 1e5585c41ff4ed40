// Package scheduler orchestrates the pipeline: it polls active
// subscriptions for new items, drives a single-item worker through the
// queue, and sweeps stale claims and aged log entries.
//
// Three independent ticker loops (poll, process, cleanup) run against one
// cancellable context. Processing is intentionally one item per tick to
// keep backpressure on the rate-limited processor simple; raise the tick
// frequency for more throughput rather than parallelizing the claim.
package scheduler
