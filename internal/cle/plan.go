// Package cle is the Columnar Lazy Engine: a minimal lazy-plan/table
// abstraction good enough to exercise FlowNode closures, DataHandle
// materialization, and the Worker Offload Client's artifact handoff. Its
// I/O and addressing concerns still lean on third-party codecs (msgpack,
// blake2b via internal/domain) rather than a hand-rolled wire format.
package cle

import "github.com/flowfile/dataflow-core/internal/domain"

// Row is one record: column name to value. Using a map keeps node closures
// simple; a production CLE would use typed columnar vectors instead, but
// this package only needs to prove the DataHandle contract end to end.
type Row map[string]any

// Table is a fully in-memory realization of a LazyPlan's output.
type Table struct {
	Schema domain.Schema
	Rows   []Row
}

// LazyPlan is the minimal surface FlowNode closures and the Execution
// Engine need from a CLE plan: ask for its schema without running it, and
// collect it to memory when asked.
type LazyPlan interface {
	Schema() domain.Schema
	Collect() (*Table, error)
}

// FuncPlan adapts a plain function into a LazyPlan. Composing closures so
// each node's collect calls into its parents' collect is just Go function
// composition:
// a node's closure builds a new FuncPlan that calls its input plans'
// Collect() only when its own Collect() is invoked, so intermediate
// Performance-mode nodes never materialize anything on their own.
type FuncPlan struct {
	schema    domain.Schema
	collectFn func() (*Table, error)
}

// NewFuncPlan builds a LazyPlan from a schema (known up front, without
// running collectFn) and a deferred collection function.
func NewFuncPlan(schema domain.Schema, collectFn func() (*Table, error)) *FuncPlan {
	return &FuncPlan{schema: schema, collectFn: collectFn}
}

func (p *FuncPlan) Schema() domain.Schema { return p.schema }

func (p *FuncPlan) Collect() (*Table, error) { return p.collectFn() }

// StaticPlan wraps an already-collected Table as a LazyPlan, used by
// manual_input and by the Worker client when rehydrating an on-disk
// artifact back into a plan for a downstream node to read from.
type StaticPlan struct {
	table *Table
}

// NewStaticPlan wraps table as a LazyPlan whose Collect is free.
func NewStaticPlan(table *Table) *StaticPlan { return &StaticPlan{table: table} }

func (p *StaticPlan) Schema() domain.Schema { return p.table.Schema }

func (p *StaticPlan) Collect() (*Table, error) { return p.table, nil }

// Sample returns the first n rows of t (or all of them if t has fewer),
// used by read_sample and by Development mode's 100-row preview.
func (t *Table) Sample(n int) *Table {
	if n > len(t.Rows) {
		n = len(t.Rows)
	}
	out := &Table{Schema: t.Schema, Rows: make([]Row, n)}
	copy(out.Rows, t.Rows[:n])
	return out
}
