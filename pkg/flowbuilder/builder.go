// Package flowbuilder is a fluent constructor for domain.FlowGraph values.
// Callers refer to nodes by caller-chosen string labels instead of raw
// int64 node ids; the builder assigns ids and resolves labels to edges at
// Build time. Uses a functional-options, accumulated-error style: each
// fluent call records the first error it hits and later calls become
// no-ops until Build surfaces it.
package flowbuilder

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/flowfile/dataflow-core/internal/domain"
	"github.com/flowfile/dataflow-core/internal/settings"
)

// FlowBuilder builds a domain.FlowGraph fluently, accumulating the first
// error encountered and surfacing it from Build rather than from every
// intermediate call.
type FlowBuilder struct {
	graph   *domain.FlowGraph
	catalog settings.Catalog
	labels  map[string]int64
	nextID  int64
	err     error
}

// FlowOption configures flow-wide settings before any node is added.
type FlowOption func(*domain.FlowSettings)

// New starts a builder for a flow named name, owned by flowID.
func New(flowID uint64, name string, catalog settings.Catalog, logger zerolog.Logger, opts ...FlowOption) *FlowBuilder {
	fs := domain.NewFlowSettings(flowID, name)
	for _, opt := range opts {
		opt(&fs)
	}
	return &FlowBuilder{
		graph:   domain.NewFlowGraph(flowID, fs, logger),
		catalog: catalog,
		labels:  make(map[string]int64),
		nextID:  1,
	}
}

// WithDescription sets the flow description.
func WithDescription(desc string) FlowOption {
	return func(fs *domain.FlowSettings) { fs.Description = desc }
}

// WithExecutionMode sets the default execution mode (Performance unless
// overridden).
func WithExecutionMode(mode domain.ExecutionMode) FlowOption {
	return func(fs *domain.FlowSettings) { fs.ExecutionMode = mode }
}

// WithExecutionLocation sets where nodes run by default.
func WithExecutionLocation(loc domain.ExecutionLocation) FlowOption {
	return func(fs *domain.FlowSettings) { fs.ExecutionLocation = loc }
}

// WithAutoSave sets FlowSettings.AutoSave and SavePath. Neither the engine
// nor FlowGraph.Run reads AutoSave, so no save happens after a run.
func WithAutoSave(path string) FlowOption {
	return func(fs *domain.FlowSettings) { fs.AutoSave = true; fs.SavePath = path }
}

// WithDetailedProgress turns on per-node progress.Hub publication.
func WithDetailedProgress() FlowOption {
	return func(fs *domain.FlowSettings) { fs.ShowDetailedProgress = true }
}

// NodeOption configures one node's settings before it is registered.
type NodeOption func(*domain.NodeSettings)

// WithPosition sets the node's canvas position. Purely cosmetic: it plays
// no part in the node's content hash.
func WithPosition(x, y float64) NodeOption {
	return func(s *domain.NodeSettings) { s.PosX = x; s.PosY = y }
}

// WithNodeDescription sets the node's description. Also cosmetic.
func WithNodeDescription(desc string) NodeOption {
	return func(s *domain.NodeSettings) { s.Description = desc }
}

// WithCacheResults forces the node to materialize through the Worker even
// in Performance mode, as though it were an explicit sink.
func WithCacheResults() NodeOption {
	return func(s *domain.NodeSettings) { s.CacheResults = true }
}

// AddNode registers a node of kind under label, using payload as its
// kind-specific configuration. label must be unique within the builder;
// later Connect calls reference nodes by this label rather than by the
// node id the builder assigns internally.
func (b *FlowBuilder) AddNode(label string, kind domain.NodeKind, payload any, opts ...NodeOption) *FlowBuilder {
	if b.err != nil {
		return b
	}
	if label == "" {
		b.err = fmt.Errorf("flowbuilder: node label cannot be empty")
		return b
	}
	if _, exists := b.labels[label]; exists {
		b.err = fmt.Errorf("flowbuilder: duplicate node label %q", label)
		return b
	}

	id := b.nextID
	b.nextID++

	s := domain.NewNodeSettings(b.graph.FlowID, id, kind, payload)
	for _, opt := range opts {
		opt(&s)
	}

	closure, err := b.catalog.Closure(s)
	if err != nil {
		b.err = fmt.Errorf("flowbuilder: node %q: %w", label, err)
		return b
	}
	schemaCB, err := b.catalog.SchemaCallback(kind)
	if err != nil {
		b.err = fmt.Errorf("flowbuilder: node %q: %w", label, err)
		return b
	}
	validator, err := b.catalog.Validator(kind)
	if err != nil {
		b.err = fmt.Errorf("flowbuilder: node %q: %w", label, err)
		return b
	}

	if _, err := b.graph.AddNodeStep(s, closure, schemaCB, validator); err != nil {
		b.err = fmt.Errorf("flowbuilder: node %q: %w", label, err)
		return b
	}

	b.labels[label] = id
	return b
}

// Connect wires fromLabel's fromPort output into toLabel's toPort input.
func (b *FlowBuilder) Connect(fromLabel string, fromPort domain.Port, toLabel string, toPort domain.Port) *FlowBuilder {
	if b.err != nil {
		return b
	}
	fromID, ok := b.labels[fromLabel]
	if !ok {
		b.err = fmt.Errorf("flowbuilder: unknown node label %q", fromLabel)
		return b
	}
	toID, ok := b.labels[toLabel]
	if !ok {
		b.err = fmt.Errorf("flowbuilder: unknown node label %q", toLabel)
		return b
	}

	if err := b.graph.ConnectNode(domain.Edge{
		FromNodeID: fromID,
		FromPort:   fromPort,
		ToNodeID:   toID,
		ToPort:     toPort,
	}); err != nil {
		b.err = fmt.Errorf("flowbuilder: connect %q->%q: %w", fromLabel, toLabel, err)
	}
	return b
}

// ConnectMain is Connect with both ports defaulted to domain.PortMain, the
// common case for single- and set-arity nodes.
func (b *FlowBuilder) ConnectMain(fromLabel, toLabel string) *FlowBuilder {
	return b.Connect(fromLabel, domain.PortMain, toLabel, domain.PortMain)
}

// NodeID resolves a label to the node id the builder assigned it, for
// callers that need it before Build returns (e.g. engine.WithExplicitSinks).
func (b *FlowBuilder) NodeID(label string) (int64, bool) {
	id, ok := b.labels[label]
	return id, ok
}

// Build returns the assembled graph, or the first error encountered while
// constructing it.
func (b *FlowBuilder) Build() (*domain.FlowGraph, error) {
	if b.err != nil {
		return nil, b.err
	}
	return b.graph, nil
}

// MustBuild builds and panics on error. Intended for tests and examples,
// mirroring the MustBuild convention used by similar builders.
func (b *FlowBuilder) MustBuild() *domain.FlowGraph {
	g, err := b.Build()
	if err != nil {
		panic(err)
	}
	return g
}
