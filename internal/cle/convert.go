package cle

import "github.com/flowfile/dataflow-core/internal/domain"

func toArtifactDoc(t *Table) artifact {
	fields := make([]fieldDoc, len(t.Schema.Fields))
	for i, f := range t.Schema.Fields {
		fields[i] = fieldDoc{Name: f.Name, Type: string(f.Type), Nullable: f.Nullable}
	}
	rows := make([]map[string]any, len(t.Rows))
	for i, r := range t.Rows {
		rows[i] = map[string]any(r)
	}
	return artifact{Schema: schemaDoc{Fields: fields}, Rows: rows}
}

func fromArtifactDoc(doc artifact) *Table {
	fields := make([]domain.Field, len(doc.Schema.Fields))
	for i, f := range doc.Schema.Fields {
		fields[i] = domain.Field{Name: f.Name, Type: domain.TypeTag(f.Type), Nullable: f.Nullable}
	}
	rows := make([]Row, len(doc.Rows))
	for i, r := range doc.Rows {
		rows[i] = Row(r)
	}
	return &Table{Schema: domain.Schema{Fields: fields}, Rows: rows}
}
