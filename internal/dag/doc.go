// Package dag stores the job dependency graph as an index arena: every
// vertex gets a stable integer id when it is added, and edges are kept as
// adjacency sets keyed by those ids. Removing a vertex leaves a tombstone so
// ids held elsewhere never shift.
//
// Besides the basic edge operations the package offers cycle detection and
// transitive reduction, which the job list runs after wiring dependencies.
package dag
