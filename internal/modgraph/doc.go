// Package modgraph holds the project's buildable units as a tree of named
// modules.
//
// # Structure
//
// Modules live in an arena owned by the Graph and are addressed by a stable
// integer Handle. Every module has at most one parent; root modules are
// owned by the graph itself. A module's full name is its lineage joined with
// ':' (for example "hello:tests"), which is also how build targets refer to
// it.
//
// The tree invariant is enforced at every mutation: names are unique among
// siblings (DuplicateModuleError) and a module can never become its own
// descendant (CycleError).
//
// # Demand-driven traversal
//
// Traverse validates the requested targets up front and then returns a lazy
// sequence covering only the requested subtrees, in pre-order with siblings
// in declaration order. Nothing outside those subtrees is ever yielded, so
// the orchestrator never configures or builds a module nobody asked for.
package modgraph
