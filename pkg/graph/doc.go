// Package graph composes the connector, node registry and topological
// sorter into the assembled, executable dataflow graph: construction from a
// declarative definition, incremental mutation with rollback on failure,
// and the two execution strategies (serial walk of the linear order;
// parallel, data-dependency-driven scheduling).
package graph
