// Package compose implements the pipeline that turns compose YAML files
// into a canonical model.Project: security-limited parsing, environment
// variable interpolation, .env loading, multi-file merging, extends
// resolution, profile and selection filtering, and normalization.
//
// The AST types in this package mirror the permissive YAML shape of a
// compose file (fields that accept two shapes decode through variant
// types); only Convert produces the strict canonical form the resolver
// and orchestrator consume.
package compose
