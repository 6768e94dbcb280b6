// Package runtime declares the container runtime abstractions the
// orchestrator is written against: container lifecycle, in-container
// processes, log sources, images, networks, and volumes.
//
// The orchestrator never talks to a concrete runtime directly; the
// docker package provides the production implementation and tests
// substitute in-memory fakes at this boundary.
package runtime
