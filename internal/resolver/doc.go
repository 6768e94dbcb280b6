// Package resolver computes the start order of a project's services.
//
// The graph unions all four dependency conditions into plain edges,
// orders them with Kahn's algorithm, and groups services whose
// dependencies are fully satisfied into parallel start levels. A
// separate DFS reports cycles with the full offending path before the
// topological pass runs.
package resolver
