package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/flowfile/dataflow-core/internal/domain"
	"github.com/flowfile/dataflow-core/internal/settings"
)

// nodeDocument is one node's on-disk representation.
type nodeDocument struct {
	NodeID             int64           `json:"node_id" yaml:"node_id"`
	Kind               domain.NodeKind `json:"kind" yaml:"kind"`
	PosX               float64         `json:"pos_x" yaml:"pos_x"`
	PosY               float64         `json:"pos_y" yaml:"pos_y"`
	Description        string          `json:"description,omitempty" yaml:"description,omitempty"`
	CacheResults       bool            `json:"cache_results" yaml:"cache_results"`
	DependingOnID      int64           `json:"depending_on_id" yaml:"depending_on_id"`
	DependingOnIDs     []int64         `json:"depending_on_ids,omitempty" yaml:"depending_on_ids,omitempty"`
	DependingOnIDLeft  int64           `json:"depending_on_id_left" yaml:"depending_on_id_left"`
	DependingOnIDRight int64           `json:"depending_on_id_right" yaml:"depending_on_id_right"`
	Payload            json.RawMessage `json:"payload" yaml:"payload"`
}

// edgeDocument is one edge's on-disk representation.
type edgeDocument struct {
	FromNodeID int64       `json:"from_node_id" yaml:"from_node_id"`
	FromPort   domain.Port `json:"from_port" yaml:"from_port"`
	ToNodeID   int64       `json:"to_node_id" yaml:"to_node_id"`
	ToPort     domain.Port `json:"to_port" yaml:"to_port"`
}

// graphDocument is a whole FlowGraph's on-disk representation.
type graphDocument struct {
	FlowID            uint64       `json:"flow_id" yaml:"flow_id"`
	Name              string       `json:"name" yaml:"name"`
	Description       string       `json:"description,omitempty" yaml:"description,omitempty"`
	ExecutionMode     string       `json:"execution_mode" yaml:"execution_mode"`
	ExecutionLocation string       `json:"execution_location" yaml:"execution_location"`

	Nodes []nodeDocument `json:"nodes" yaml:"nodes"`
	Edges []edgeDocument `json:"edges" yaml:"edges"`
}

// Save writes g to path, choosing YAML (via gopkg.in/yaml.v3) when path
// ends in .yaml/.yml and JSON otherwise.
func Save(g *domain.FlowGraph, path string) error {
	doc := graphDocument{
		FlowID:            g.FlowID,
		Name:              g.Settings.Name,
		Description:       g.Settings.Description,
		ExecutionMode:     string(g.Settings.ExecutionMode),
		ExecutionLocation: string(g.Settings.ExecutionLocation),
	}

	seenEdges := make(map[edgeDocument]struct{})
	for _, id := range g.NodeIDs() {
		n, ok := g.Node(id)
		if !ok {
			continue
		}
		payloadBytes, err := json.Marshal(n.Settings.Payload)
		if err != nil {
			return fmt.Errorf("storage: marshal payload for node %d: %w", id, err)
		}
		doc.Nodes = append(doc.Nodes, nodeDocument{
			NodeID:             n.Settings.NodeID,
			Kind:               n.Settings.Kind,
			PosX:               n.Settings.PosX,
			PosY:               n.Settings.PosY,
			Description:        n.Settings.Description,
			CacheResults:       n.Settings.CacheResults,
			DependingOnID:      n.Settings.DependingOnID,
			DependingOnIDs:     n.Settings.DependingOnIDs,
			DependingOnIDLeft:  n.Settings.DependingOnIDLeft,
			DependingOnIDRight: n.Settings.DependingOnIDRight,
			Payload:            payloadBytes,
		})
		for _, p := range n.Parents {
			e := edgeDocument{FromNodeID: p.NodeID, FromPort: domain.PortMain, ToNodeID: id, ToPort: p.Port}
			if _, dup := seenEdges[e]; dup {
				continue
			}
			seenEdges[e] = struct{}{}
			doc.Edges = append(doc.Edges, e)
		}
	}

	var out []byte
	var err error
	if isYAMLPath(path) {
		out, err = yaml.Marshal(doc)
	} else {
		out, err = json.MarshalIndent(doc, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("storage: encode graph: %w", err)
	}
	return os.WriteFile(path, out, 0o644)
}

// Load reads a graph document from path and rebuilds a fully-wired
// FlowGraph through catalog, ready to Run.
func Load(path string, catalog settings.Catalog, logger zerolog.Logger) (*domain.FlowGraph, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("storage: read %s: %w", path, err)
	}

	var doc graphDocument
	if isYAMLPath(path) {
		err = yaml.Unmarshal(raw, &doc)
	} else {
		err = json.Unmarshal(raw, &doc)
	}
	if err != nil {
		return nil, fmt.Errorf("storage: decode %s: %w", path, err)
	}

	flowSettings := domain.NewFlowSettings(doc.FlowID, doc.Name)
	flowSettings.Description = doc.Description
	if m := domain.ExecutionMode(doc.ExecutionMode); m.IsValid() {
		flowSettings.ExecutionMode = m
	}
	if l := domain.ExecutionLocation(doc.ExecutionLocation); l.IsValid() {
		flowSettings.ExecutionLocation = l
	}

	g := domain.NewFlowGraph(doc.FlowID, flowSettings, logger)

	for _, nd := range doc.Nodes {
		payload, err := decodePayload(nd.Kind, nd.Payload)
		if err != nil {
			return nil, err
		}
		ns := domain.NewNodeSettings(doc.FlowID, nd.NodeID, nd.Kind, payload)
		ns.PosX, ns.PosY, ns.Description = nd.PosX, nd.PosY, nd.Description
		ns.CacheResults = nd.CacheResults
		ns.DependingOnID = nd.DependingOnID
		ns.DependingOnIDs = nd.DependingOnIDs
		ns.DependingOnIDLeft = nd.DependingOnIDLeft
		ns.DependingOnIDRight = nd.DependingOnIDRight

		closure, err := catalog.Closure(ns)
		if err != nil {
			return nil, err
		}
		schemaCB, err := catalog.SchemaCallback(nd.Kind)
		if err != nil {
			return nil, err
		}
		validator, err := catalog.Validator(nd.Kind)
		if err != nil {
			return nil, err
		}
		if _, err := g.AddNodeStep(ns, closure, schemaCB, validator); err != nil {
			return nil, err
		}
	}

	for _, ed := range doc.Edges {
		edge := domain.Edge{FromNodeID: ed.FromNodeID, FromPort: ed.FromPort, ToNodeID: ed.ToNodeID, ToPort: ed.ToPort}
		if err := g.ConnectNode(edge); err != nil {
			return nil, err
		}
	}

	return g, nil
}

func isYAMLPath(path string) bool {
	lower := strings.ToLower(path)
	return strings.HasSuffix(lower, ".yaml") || strings.HasSuffix(lower, ".yml")
}
