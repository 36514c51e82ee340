// Package timeline defines the editing model: effects, their kind-specific
// property variants, and project settings. It owns the structural invariants
// (trim window arithmetic, non-negative positions, half-open intervals) that
// the placement engine, compositor, and export pipeline all rely on.
package timeline
