// Package model defines the canonical domain types shared across the
// compose pipeline, the dependency resolver, and the orchestrator.
//
// A Project is the normalized form of one or more compose files after
// interpolation, merging, inheritance resolution, and validation. All
// entities here are transient: durable truth lives in the container
// runtime through labels, and every invocation rebuilds its view of the
// world from runtime queries.
package model
