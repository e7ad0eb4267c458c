// Package depgraph evaluates job dependencies.
//
// A job may run when every job it depends on exists and completed within the
// freshness window. Cycle and dangling-reference reports are advisory: jobs
// may be created with forward references and fixed up later.
package depgraph
