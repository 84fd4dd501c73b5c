// Package graph is the lineage DAG store.
//
// Nodes are ir.Node records addressed by ir.NodeID; edges carry an
// ir.EdgeLabel. A "same" edge is one hop along a field's lineage spine; a
// "synthetic" edge orders execution between lineages (a split feeding the
// fields it introduces) without being part of either spine.
//
// The store enforces only local well-formedness (known endpoints, one edge
// per node pair, valid labels). Global invariants are checked by package
// validate after every edit.
package graph
