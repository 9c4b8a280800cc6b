package settings

import "github.com/flowfile/dataflow-core/internal/domain"

// FieldSpec is the serializable field declaration node settings payloads
// use to state an expected schema up front — required because schema
// prediction must never touch data, so zero-input kinds (read,
// manual_input, external_source, database_reader, cloud_storage_reader)
// carry their output schema directly in settings instead of inferring it.
type FieldSpec struct {
	Name     string
	Type     domain.TypeTag
	Nullable bool
}

func toSchema(specs []FieldSpec) domain.Schema {
	fields := make([]domain.Field, len(specs))
	for i, s := range specs {
		fields[i] = domain.Field{Name: s.Name, Type: s.Type, Nullable: s.Nullable}
	}
	return domain.Schema{Fields: fields}
}

func staticSchemaCallback(specs []FieldSpec) domain.SchemaCallback {
	schema := toSchema(specs)
	return func(domain.NodeSettings, []domain.Schema) (domain.Schema, error) {
		return schema.Clone(), nil
	}
}
