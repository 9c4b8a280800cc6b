// Package flowfile is the public facade over the dataflow core: it wires
// the Settings Catalog, Execution Engine, and Worker Offload Client
// together from a single Config and exposes graph construction, save/load,
// and run as one cohesive API instead of making callers assemble
// internal/* packages themselves.
package flowfile

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/tmthrgd/go-hex"

	"github.com/flowfile/dataflow-core/internal/domain"
	"github.com/flowfile/dataflow-core/internal/engine"
	"github.com/flowfile/dataflow-core/internal/infrastructure/config"
	"github.com/flowfile/dataflow-core/internal/infrastructure/logger"
	"github.com/flowfile/dataflow-core/internal/infrastructure/progress"
	"github.com/flowfile/dataflow-core/internal/infrastructure/storage"
	"github.com/flowfile/dataflow-core/internal/settings"
	"github.com/flowfile/dataflow-core/internal/worker"
	"github.com/flowfile/dataflow-core/pkg/flowbuilder"
)

// Re-export the handful of domain types callers need without reaching into
// internal/domain directly.
type (
	FlowGraph      = domain.FlowGraph
	RunInformation = domain.RunInformation
	ExecutionMode  = domain.ExecutionMode
	NodeKind       = domain.NodeKind
	Port           = domain.Port
)

const (
	ModePerformance  = domain.ModePerformance
	ModeDevelopment  = domain.ModeDevelopment
	PortMain         = domain.PortMain
	PortLeft         = domain.PortLeft
	PortRight        = domain.PortRight
)

// Core bundles everything a caller needs to build, run, save, and load
// flows: the Settings Catalog, the Execution Engine, the Worker Offload
// Client, and a logger, all wired from a single Config.
type Core struct {
	Catalog settings.Catalog
	Engine  *engine.Engine
	Worker  *worker.Client
	Hub     *progress.Hub
	Log     zerolog.Logger
	cfg     *config.Config
}

// New builds a Core from cfg. If cfg.DatabaseDSN is set, database_reader
// and database_writer nodes are wired to a real Postgres connection via
// storage.WireHooks; otherwise those kinds fail at execution time with
// "no storage backend wired", not at construction time.
func New(cfg *config.Config) (*Core, error) {
	if cfg == nil {
		cfg = config.Load()
	}

	log := logger.Setup(cfg.LogLevel)

	var signingKey []byte
	if cfg.WorkerSignHex != "" {
		key, err := hex.DecodeString(cfg.WorkerSignHex)
		if err != nil {
			return nil, fmt.Errorf("flowfile: invalid FLOWFILE_WORKER_SIGNING_KEY: %w", err)
		}
		signingKey = key
	}

	mode := worker.ModeRemote
	if cfg.IsEmbeddedWorker() {
		mode = worker.ModeEmbedded
	}
	w := worker.New(mode, cfg.WorkerURL, cfg.CacheRoot, cfg.ArtifactFormat, signingKey)

	if cfg.DatabaseDSN != "" {
		storage.WireHooks()
	}

	hub := progress.NewHub(log)
	eng := engine.New(w)
	eng.SetHub(hub)

	return &Core{
		Catalog: settings.NewCatalog(),
		Engine:  eng,
		Worker:  w,
		Hub:     hub,
		Log:     log,
		cfg:     cfg,
	}, nil
}

// NewGraph starts a flowbuilder.FlowBuilder for a new flow, using this
// Core's catalog and logger.
func (c *Core) NewGraph(flowID uint64, name string, opts ...flowbuilder.FlowOption) *flowbuilder.FlowBuilder {
	return flowbuilder.New(flowID, name, c.Catalog, c.Log, opts...)
}

// Attach installs this Core's Engine as g's executor, required before
// g.Run will do anything.
func (c *Core) Attach(g *FlowGraph) {
	g.SetExecutor(c.Engine)
}

// Load reads a saved graph from path (YAML or JSON, by extension) and
// attaches this Core's Engine to it.
func (c *Core) Load(path string) (*FlowGraph, error) {
	g, err := storage.Load(path, c.Catalog, c.Log)
	if err != nil {
		return nil, err
	}
	c.Attach(g)
	return g, nil
}

// Save writes g to path (YAML or JSON, by extension).
func (c *Core) Save(g *FlowGraph, path string) error {
	return storage.Save(g, path)
}

// Run attaches this Core's Engine to g, replacing any executor g already
// has, then runs g to completion.
func (c *Core) Run(ctx context.Context, g *FlowGraph) (RunInformation, error) {
	c.Attach(g)
	return g.Run(ctx)
}

// WithExplicitSinks marks node ids that must materialize through the
// Worker even if they are not sink-writing kinds, forwarding to
// engine.WithExplicitSinks.
func WithExplicitSinks(ctx context.Context, ids ...int64) context.Context {
	return engine.WithExplicitSinks(ctx, ids...)
}
