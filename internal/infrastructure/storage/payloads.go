package storage

import (
	"encoding/json"
	"fmt"

	"github.com/flowfile/dataflow-core/internal/domain"
	"github.com/flowfile/dataflow-core/internal/settings"
)

// decodePayload unmarshals raw into the concrete payload struct kind's
// Settings Catalog registration expects, so a reloaded NodeSettings.Payload
// type-asserts correctly inside each closure factory (settings.payloadOf).
// This is the save-format's one piece of kind-awareness; everything else
// about a node is opaque bytes to the codec.
func decodePayload(kind domain.NodeKind, raw json.RawMessage) (any, error) {
	var target any
	switch kind {
	case domain.KindRead:
		target = &settings.ReadPayload{}
	case domain.KindManualInput:
		target = &settings.ManualInputPayload{}
	case domain.KindExternalSource:
		target = &settings.ExternalSourcePayload{}
	case domain.KindDatabaseReader:
		target = &settings.DatabaseReaderPayload{}
	case domain.KindCloudStorageReader:
		target = &settings.CloudStorageReaderPayload{}
	case domain.KindFilter:
		target = &settings.FilterPayload{}
	case domain.KindFormula:
		target = &settings.FormulaPayload{}
	case domain.KindSelect:
		target = &settings.SelectPayload{}
	case domain.KindSort:
		target = &settings.SortPayload{}
	case domain.KindUnique:
		target = &settings.UniquePayload{}
	case domain.KindSample:
		target = &settings.SamplePayload{}
	case domain.KindRecordID:
		target = &settings.RecordIDPayload{}
	case domain.KindTextToRows:
		target = &settings.TextToRowsPayload{}
	case domain.KindPolarsCode:
		target = &settings.PolarsCodePayload{}
	case domain.KindJoin:
		target = &settings.JoinPayload{}
	case domain.KindCrossJoin:
		target = &settings.CrossJoinPayload{}
	case domain.KindUnion:
		target = &settings.UnionPayload{}
	case domain.KindGroupBy:
		target = &settings.GroupByPayload{}
	case domain.KindPivot:
		target = &settings.PivotPayload{}
	case domain.KindUnpivot:
		target = &settings.UnpivotPayload{}
	case domain.KindGraphSolver:
		target = &settings.GraphSolverPayload{}
	case domain.KindOutput:
		target = &settings.OutputPayload{}
	case domain.KindDatabaseWriter:
		target = &settings.DatabaseWriterPayload{}
	case domain.KindCloudStorageWriter:
		target = &settings.CloudStorageWriterPayload{}
	case domain.KindUserDefined:
		target = &settings.UserDefinedPayload{}
	default:
		return nil, fmt.Errorf("storage: unknown node kind %q", kind)
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, target); err != nil {
			return nil, fmt.Errorf("storage: decode %s payload: %w", kind, err)
		}
	}
	// Dereference back to the value type settings.payloadOf expects.
	switch v := target.(type) {
	case *settings.ReadPayload:
		return *v, nil
	case *settings.ManualInputPayload:
		return *v, nil
	case *settings.ExternalSourcePayload:
		return *v, nil
	case *settings.DatabaseReaderPayload:
		return *v, nil
	case *settings.CloudStorageReaderPayload:
		return *v, nil
	case *settings.FilterPayload:
		return *v, nil
	case *settings.FormulaPayload:
		return *v, nil
	case *settings.SelectPayload:
		return *v, nil
	case *settings.SortPayload:
		return *v, nil
	case *settings.UniquePayload:
		return *v, nil
	case *settings.SamplePayload:
		return *v, nil
	case *settings.RecordIDPayload:
		return *v, nil
	case *settings.TextToRowsPayload:
		return *v, nil
	case *settings.PolarsCodePayload:
		return *v, nil
	case *settings.JoinPayload:
		return *v, nil
	case *settings.CrossJoinPayload:
		return *v, nil
	case *settings.UnionPayload:
		return *v, nil
	case *settings.GroupByPayload:
		return *v, nil
	case *settings.PivotPayload:
		return *v, nil
	case *settings.UnpivotPayload:
		return *v, nil
	case *settings.GraphSolverPayload:
		return *v, nil
	case *settings.OutputPayload:
		return *v, nil
	case *settings.DatabaseWriterPayload:
		return *v, nil
	case *settings.CloudStorageWriterPayload:
		return *v, nil
	case *settings.UserDefinedPayload:
		return *v, nil
	default:
		return nil, fmt.Errorf("storage: unhandled payload type for kind %q", kind)
	}
}
