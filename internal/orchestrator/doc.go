// Package orchestrator reconciles a compose project against the
// container runtime: it ensures networks, builds images, creates or
// recreates containers by configuration fingerprint, starts them in
// dependency order under the declared readiness gates, streams logs,
// executes commands, and tears projects down.
//
// The orchestrator is a single-writer actor: every mutation of its
// project state happens under one lock, while runtime I/O runs outside
// it so concurrent operations interleave only at those boundaries.
package orchestrator
