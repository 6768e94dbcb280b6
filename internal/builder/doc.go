// Package builder invokes an external image build executable. Keeping
// the build out of process leaves the orchestrator independent of any
// particular builder implementation; swapping in another executable
// that accepts the same argument shape requires no orchestrator change.
package builder
