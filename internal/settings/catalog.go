// Package settings is the Settings Catalog: one payload type,
// closure factory, schema callback, and validator per node kind, registered
// in a Catalog keyed by domain.NodeKind. Expression-driven kinds (filter,
// formula, graph_solver) compile through github.com/expr-lang/expr, with
// compiled programs cached in a github.com/puzpuzpuz/xsync/v3 map keyed by
// expression text so repeated runs of an unchanged node don't recompile.
package settings

import (
	"fmt"

	"github.com/flowfile/dataflow-core/internal/domain"
)

// Registration bundles everything FlowGraph.AddNodeStep needs for one node
// kind.
type Registration struct {
	ClosureFactory func(settings domain.NodeSettings) domain.Closure
	SchemaCallback domain.SchemaCallback
	Validator      domain.Validator
}

// Catalog maps each node kind to its Registration.
type Catalog map[domain.NodeKind]Registration

// NewCatalog builds the full Settings Catalog.
func NewCatalog() Catalog {
	c := make(Catalog)
	registerSources(c)
	registerTransforms(c)
	registerCombinators(c)
	registerSinks(c)
	return c
}

// Build constructs a fully-wired domain.FlowNode for settings, looking up
// its kind's Registration. It is the single entry point callers (FlowGraph
// wiring code, pkg/flowbuilder, tests) use instead of hand-assembling a
// FlowNode's three function fields themselves.
func (c Catalog) Build(settings domain.NodeSettings) (*domain.FlowNode, error) {
	reg, ok := c[settings.Kind]
	if !ok {
		return nil, fmt.Errorf("settings: unknown node kind %q", settings.Kind)
	}
	closure := reg.ClosureFactory(settings)
	return domain.NewFlowNode(settings, closure, reg.SchemaCallback, reg.Validator, nil), nil
}

// Closure, SchemaCallback, and Validator for settings.Kind, used by
// FlowGraph.AddNodeStep/UpdateSettings which need the three functions
// separately rather than a constructed FlowNode.
func (c Catalog) Closure(settings domain.NodeSettings) (domain.Closure, error) {
	reg, ok := c[settings.Kind]
	if !ok {
		return nil, fmt.Errorf("settings: unknown node kind %q", settings.Kind)
	}
	return reg.ClosureFactory(settings), nil
}

func (c Catalog) SchemaCallback(kind domain.NodeKind) (domain.SchemaCallback, error) {
	reg, ok := c[kind]
	if !ok {
		return nil, fmt.Errorf("settings: unknown node kind %q", kind)
	}
	return reg.SchemaCallback, nil
}

func (c Catalog) Validator(kind domain.NodeKind) (domain.Validator, error) {
	reg, ok := c[kind]
	if !ok {
		return nil, fmt.Errorf("settings: unknown node kind %q", kind)
	}
	return reg.Validator, nil
}

func payloadOf[T any](s domain.NodeSettings) (T, error) {
	var zero T
	p, ok := s.Payload.(T)
	if !ok {
		return zero, fmt.Errorf("settings: node %d has wrong payload type for kind %s", s.NodeID, s.Kind)
	}
	return p, nil
}

func singleInputSchema(inputs []domain.Schema) (domain.Schema, error) {
	if len(inputs) != 1 {
		return domain.Schema{}, fmt.Errorf("settings: expected exactly one input schema, got %d", len(inputs))
	}
	return inputs[0], nil
}

func singleInput(inputs []domain.DataHandle) (domain.DataHandle, error) {
	if len(inputs) != 1 {
		return nil, fmt.Errorf("settings: expected exactly one input handle, got %d", len(inputs))
	}
	return inputs[0], nil
}
