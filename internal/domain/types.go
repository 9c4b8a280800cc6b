package domain

// TypeTag is the closed set of logical field types a Schema can carry.
type TypeTag string

const (
	TypeInt8     TypeTag = "int8"
	TypeInt16    TypeTag = "int16"
	TypeInt32    TypeTag = "int32"
	TypeInt64    TypeTag = "int64"
	TypeUInt8    TypeTag = "uint8"
	TypeUInt16   TypeTag = "uint16"
	TypeUInt32   TypeTag = "uint32"
	TypeUInt64   TypeTag = "uint64"
	TypeFloat32  TypeTag = "float32"
	TypeFloat64  TypeTag = "float64"
	TypeBoolean  TypeTag = "boolean"
	TypeString   TypeTag = "string"
	TypeDate     TypeTag = "date"
	TypeDatetime TypeTag = "datetime"
	TypeDuration TypeTag = "duration"
	TypeList     TypeTag = "list"
	TypeStruct   TypeTag = "struct"
)

// IsValid reports whether t is one of the closed TypeTag variants.
func (t TypeTag) IsValid() bool {
	switch t {
	case TypeInt8, TypeInt16, TypeInt32, TypeInt64,
		TypeUInt8, TypeUInt16, TypeUInt32, TypeUInt64,
		TypeFloat32, TypeFloat64, TypeBoolean, TypeString,
		TypeDate, TypeDatetime, TypeDuration, TypeList, TypeStruct:
		return true
	default:
		return false
	}
}

func (t TypeTag) String() string { return string(t) }

// IsNumeric reports whether t is an integer or floating point type.
func (t TypeTag) IsNumeric() bool {
	switch t {
	case TypeInt8, TypeInt16, TypeInt32, TypeInt64,
		TypeUInt8, TypeUInt16, TypeUInt32, TypeUInt64,
		TypeFloat32, TypeFloat64:
		return true
	default:
		return false
	}
}

// Port names the three input slots a node can accept. Only join-like node
// kinds accept Left/Right; every other kind accepts Main only.
type Port string

const (
	PortMain  Port = "main"
	PortLeft  Port = "left"
	PortRight Port = "right"
)

func (p Port) IsValid() bool {
	switch p {
	case PortMain, PortLeft, PortRight:
		return true
	default:
		return false
	}
}

func (p Port) String() string { return string(p) }

// ExecutionMode selects how FlowGraph.Run schedules and materializes nodes.
type ExecutionMode string

const (
	// ModeDevelopment pushes through the graph node by node, materializing
	// each one and exposing a row sample for inspection.
	ModeDevelopment ExecutionMode = "development"
	// ModePerformance pulls from sinks, composing closures into one lazy
	// plan per sink path and materializing only at the sink.
	ModePerformance ExecutionMode = "performance"
)

func (m ExecutionMode) IsValid() bool {
	return m == ModeDevelopment || m == ModePerformance
}

func (m ExecutionMode) String() string { return string(m) }

// ExecutionLocation selects whether materialization happens in-process or
// is offloaded to a Worker.
type ExecutionLocation string

const (
	LocationLocal  ExecutionLocation = "local"
	LocationRemote ExecutionLocation = "remote"
)

func (l ExecutionLocation) IsValid() bool {
	return l == LocationLocal || l == LocationRemote
}

func (l ExecutionLocation) String() string { return string(l) }

// NodeKind is the closed taxonomy of the Settings Catalog:
// one variant per transformation the dataflow core knows how to run.
type NodeKind string

const (
	KindRead               NodeKind = "read"
	KindManualInput        NodeKind = "manual_input"
	KindFilter             NodeKind = "filter"
	KindFormula            NodeKind = "formula"
	KindSelect             NodeKind = "select"
	KindJoin               NodeKind = "join"
	KindCrossJoin          NodeKind = "cross_join"
	KindUnion              NodeKind = "union"
	KindGroupBy            NodeKind = "group_by"
	KindPivot              NodeKind = "pivot"
	KindUnpivot            NodeKind = "unpivot"
	KindSort               NodeKind = "sort"
	KindUnique             NodeKind = "unique"
	KindSample             NodeKind = "sample"
	KindRecordID           NodeKind = "record_id"
	KindTextToRows         NodeKind = "text_to_rows"
	KindPolarsCode         NodeKind = "polars_code"
	KindGraphSolver        NodeKind = "graph_solver"
	KindDatabaseReader     NodeKind = "database_reader"
	KindDatabaseWriter     NodeKind = "database_writer"
	KindCloudStorageReader NodeKind = "cloud_storage_reader"
	KindCloudStorageWriter NodeKind = "cloud_storage_writer"
	KindOutput             NodeKind = "output"
	KindExternalSource     NodeKind = "external_source"
	KindUserDefined        NodeKind = "user_defined"
)

var allKinds = []NodeKind{
	KindRead, KindManualInput, KindFilter, KindFormula, KindSelect, KindJoin,
	KindCrossJoin, KindUnion, KindGroupBy, KindPivot, KindUnpivot, KindSort,
	KindUnique, KindSample, KindRecordID, KindTextToRows, KindPolarsCode,
	KindGraphSolver, KindDatabaseReader, KindDatabaseWriter,
	KindCloudStorageReader, KindCloudStorageWriter, KindOutput,
	KindExternalSource, KindUserDefined,
}

func (k NodeKind) IsValid() bool {
	for _, candidate := range allKinds {
		if candidate == k {
			return true
		}
	}
	return false
}

func (k NodeKind) String() string { return string(k) }

// Arity describes how many upstream nodes a kind depends on and through
// which ports.
type Arity int

const (
	ArityZero   Arity = iota // no parent: manual_input, read, external_source, cloud_storage_reader, database_reader
	AritySingle              // depending_on_id
	AritySet                 // depending_on_ids[]: union, user_defined
	ArityTwo                 // depending_on_id_left / depending_on_id_right: join, cross_join
)

// ArityOf returns the declared arity for a node kind.
func ArityOf(k NodeKind) Arity {
	switch k {
	case KindManualInput, KindRead, KindExternalSource, KindCloudStorageReader, KindDatabaseReader:
		return ArityZero
	case KindUnion, KindUserDefined:
		return AritySet
	case KindJoin, KindCrossJoin:
		return ArityTwo
	default:
		return AritySingle
	}
}

// AcceptsPort reports whether kind k may be connected on port p.
func AcceptsPort(k NodeKind, p Port) bool {
	if ArityOf(k) == ArityTwo {
		return p == PortLeft || p == PortRight
	}
	return p == PortMain
}
