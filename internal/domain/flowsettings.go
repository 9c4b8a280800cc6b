package domain

import "time"

// FlowSettings holds the flow-wide configuration.
type FlowSettings struct {
	FlowID               uint64
	Name                 string
	Description          string
	SavePath             string
	ExecutionMode        ExecutionMode
	ExecutionLocation    ExecutionLocation
	AutoSave             bool
	ShowDetailedProgress bool
	IsRunning            bool
	IsCanceled           bool
	ModifiedOn           time.Time
}

// NewFlowSettings builds FlowSettings defaulted to Performance/Local;
// environment-configurable defaults are applied by the caller
// (internal/infrastructure/config) when constructing a FlowGraph.
func NewFlowSettings(flowID uint64, name string) FlowSettings {
	return FlowSettings{
		FlowID:            flowID,
		Name:              name,
		ExecutionMode:     ModePerformance,
		ExecutionLocation: LocationLocal,
		ModifiedOn:        time.Now(),
	}
}

// RunInformation is the accumulated outcome of one FlowGraph.Run call.
type RunInformation struct {
	FlowID         uint64
	ExecutionID    string
	StartTS        time.Time
	EndTS          time.Time
	Success        bool
	NodesCompleted uint32
	TotalNodes     uint32
	PerNodeResults []NodeRunSummary
}

// NodeRunSummary is the per-node entry inside a RunInformation.
type NodeRunSummary struct {
	NodeID    int64
	Kind      NodeKind
	Success   bool
	Skipped   bool
	SkipNote  string
	Error     string
	StartTS   time.Time
	EndTS     time.Time
	RuntimeMS int64
}
