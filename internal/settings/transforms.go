package settings

import (
	"fmt"
	"sort"
	"strings"

	"github.com/flowfile/dataflow-core/internal/cle"
	"github.com/flowfile/dataflow-core/internal/domain"
)

// FilterPayload keeps rows for which Expression evaluates true, compiled
// through expr-lang with each row's columns bound as top-level identifiers.
type FilterPayload struct {
	Expression string
}

// FormulaPayload adds or replaces column Column with the result of
// evaluating Expression against each row.
type FormulaPayload struct {
	Column     string
	Expression string
	ResultType domain.TypeTag
}

// SelectPayload projects the input schema down to Columns, in order.
type SelectPayload struct {
	Columns []string
}

// SortKey is one column/direction pair in a sort settings payload.
type SortKey struct {
	Column     string
	Descending bool
}

// SortPayload orders rows by Keys in priority order.
type SortPayload struct {
	Keys []SortKey
}

// UniquePayload drops rows that duplicate an earlier row on Columns (or the
// whole row, when Columns is empty).
type UniquePayload struct {
	Columns []string
}

// SamplePayload keeps the first N rows.
type SamplePayload struct {
	N int
}

// RecordIDPayload adds a 1-based sequential id column named ColumnName.
type RecordIDPayload struct {
	ColumnName string
}

// TextToRowsPayload explodes Column on Delimiter into one row per piece,
// duplicating the rest of the row's columns.
type TextToRowsPayload struct {
	Column    string
	Delimiter string
}

// PolarsCodePayload runs an expr-lang row transform as a stand-in for an
// actual Polars expression DSL, since no Polars-equivalent library is
// available: Expression is evaluated per row and must return a map of
// column name to value, replacing the row wholesale.
type PolarsCodePayload struct {
	Expression     string
	ExpectedSchema []FieldSpec
}

func registerTransforms(c Catalog) {
	c[domain.KindFilter] = Registration{
		ClosureFactory: func(s domain.NodeSettings) domain.Closure {
			return func(inputs []domain.DataHandle) (domain.DataHandle, error) {
				in, err := singleInput(inputs)
				if err != nil {
					return nil, err
				}
				p, err := payloadOf[FilterPayload](s)
				if err != nil {
					return nil, err
				}
				plan := cle.NewFuncPlan(in.Schema(), func() (*cle.Table, error) {
					table, err := collectOf(in)
					if err != nil {
						return nil, err
					}
					var kept []cle.Row
					for _, row := range table.Rows {
						ok, err := runBoolExpr(p.Expression, rowEnv(row))
						if err != nil {
							return nil, fmt.Errorf("filter: %w", err)
						}
						if ok {
							kept = append(kept, row)
						}
					}
					return &cle.Table{Schema: table.Schema, Rows: kept}, nil
				})
				return cle.NewLazy(plan), nil
			}
		},
		SchemaCallback: passthroughSchema,
		Validator: func(s domain.NodeSettings, inputs []domain.Schema) error {
			p, err := payloadOf[FilterPayload](s)
			if err != nil {
				return err
			}
			if p.Expression == "" {
				return fmt.Errorf("filter: expression must not be empty")
			}
			return nil
		},
	}

	c[domain.KindFormula] = Registration{
		ClosureFactory: func(s domain.NodeSettings) domain.Closure {
			return func(inputs []domain.DataHandle) (domain.DataHandle, error) {
				in, err := singleInput(inputs)
				if err != nil {
					return nil, err
				}
				p, err := payloadOf[FormulaPayload](s)
				if err != nil {
					return nil, err
				}
				outSchema := addOrReplaceColumn(in.Schema(), p.Column, p.ResultType)
				plan := cle.NewFuncPlan(outSchema, func() (*cle.Table, error) {
					table, err := collectOf(in)
					if err != nil {
						return nil, err
					}
					out := make([]cle.Row, len(table.Rows))
					for i, row := range table.Rows {
						v, err := runValueExpr(p.Expression, rowEnv(row))
						if err != nil {
							return nil, fmt.Errorf("formula: %w", err)
						}
						newRow := cloneRow(row)
						newRow[p.Column] = v
						out[i] = newRow
					}
					return &cle.Table{Schema: outSchema, Rows: out}, nil
				})
				return cle.NewLazy(plan), nil
			}
		},
		SchemaCallback: func(s domain.NodeSettings, inputs []domain.Schema) (domain.Schema, error) {
			in, err := singleInputSchema(inputs)
			if err != nil {
				return domain.Schema{}, err
			}
			p, err := payloadOf[FormulaPayload](s)
			if err != nil {
				return domain.Schema{}, err
			}
			return addOrReplaceColumn(in, p.Column, p.ResultType), nil
		},
	}

	c[domain.KindSelect] = Registration{
		ClosureFactory: func(s domain.NodeSettings) domain.Closure {
			return func(inputs []domain.DataHandle) (domain.DataHandle, error) {
				in, err := singleInput(inputs)
				if err != nil {
					return nil, err
				}
				p, err := payloadOf[SelectPayload](s)
				if err != nil {
					return nil, err
				}
				outSchema := in.Schema().WithColumns(p.Columns)
				plan := cle.NewFuncPlan(outSchema, func() (*cle.Table, error) {
					table, err := collectOf(in)
					if err != nil {
						return nil, err
					}
					out := make([]cle.Row, len(table.Rows))
					for i, row := range table.Rows {
						nr := make(cle.Row, len(p.Columns))
						for _, col := range p.Columns {
							nr[col] = row[col]
						}
						out[i] = nr
					}
					return &cle.Table{Schema: outSchema, Rows: out}, nil
				})
				return cle.NewLazy(plan), nil
			}
		},
		SchemaCallback: func(s domain.NodeSettings, inputs []domain.Schema) (domain.Schema, error) {
			in, err := singleInputSchema(inputs)
			if err != nil {
				return domain.Schema{}, err
			}
			p, err := payloadOf[SelectPayload](s)
			if err != nil {
				return domain.Schema{}, err
			}
			return in.WithColumns(p.Columns), nil
		},
		Validator: func(s domain.NodeSettings, inputs []domain.Schema) error {
			in, err := singleInputSchema(inputs)
			if err != nil {
				return nil
			}
			p, err := payloadOf[SelectPayload](s)
			if err != nil {
				return err
			}
			for _, col := range p.Columns {
				if !in.Has(col) {
					return fmt.Errorf("select: column %q does not exist in input schema", col)
				}
			}
			return nil
		},
	}

	c[domain.KindSort] = Registration{
		ClosureFactory: func(s domain.NodeSettings) domain.Closure {
			return func(inputs []domain.DataHandle) (domain.DataHandle, error) {
				in, err := singleInput(inputs)
				if err != nil {
					return nil, err
				}
				p, err := payloadOf[SortPayload](s)
				if err != nil {
					return nil, err
				}
				plan := cle.NewFuncPlan(in.Schema(), func() (*cle.Table, error) {
					table, err := collectOf(in)
					if err != nil {
						return nil, err
					}
					out := append([]cle.Row(nil), table.Rows...)
					sort.SliceStable(out, func(i, j int) bool {
						for _, key := range p.Keys {
							cmp := compareValues(out[i][key.Column], out[j][key.Column])
							if cmp == 0 {
								continue
							}
							if key.Descending {
								return cmp > 0
							}
							return cmp < 0
						}
						return false
					})
					return &cle.Table{Schema: table.Schema, Rows: out}, nil
				})
				return cle.NewLazy(plan), nil
			}
		},
		SchemaCallback: passthroughSchema,
	}

	c[domain.KindUnique] = Registration{
		ClosureFactory: func(s domain.NodeSettings) domain.Closure {
			return func(inputs []domain.DataHandle) (domain.DataHandle, error) {
				in, err := singleInput(inputs)
				if err != nil {
					return nil, err
				}
				p, err := payloadOf[UniquePayload](s)
				if err != nil {
					return nil, err
				}
				plan := cle.NewFuncPlan(in.Schema(), func() (*cle.Table, error) {
					table, err := collectOf(in)
					if err != nil {
						return nil, err
					}
					seen := make(map[string]struct{})
					var out []cle.Row
					cols := p.Columns
					if len(cols) == 0 {
						cols = table.Schema.Names()
					}
					for _, row := range table.Rows {
						key := rowKey(row, cols)
						if _, ok := seen[key]; ok {
							continue
						}
						seen[key] = struct{}{}
						out = append(out, row)
					}
					return &cle.Table{Schema: table.Schema, Rows: out}, nil
				})
				return cle.NewLazy(plan), nil
			}
		},
		SchemaCallback: passthroughSchema,
	}

	c[domain.KindSample] = Registration{
		ClosureFactory: func(s domain.NodeSettings) domain.Closure {
			return func(inputs []domain.DataHandle) (domain.DataHandle, error) {
				in, err := singleInput(inputs)
				if err != nil {
					return nil, err
				}
				p, err := payloadOf[SamplePayload](s)
				if err != nil {
					return nil, err
				}
				plan := cle.NewFuncPlan(in.Schema(), func() (*cle.Table, error) {
					table, err := collectOf(in)
					if err != nil {
						return nil, err
					}
					return table.Sample(p.N), nil
				})
				return cle.NewLazy(plan), nil
			}
		},
		SchemaCallback: passthroughSchema,
	}

	c[domain.KindRecordID] = Registration{
		ClosureFactory: func(s domain.NodeSettings) domain.Closure {
			return func(inputs []domain.DataHandle) (domain.DataHandle, error) {
				in, err := singleInput(inputs)
				if err != nil {
					return nil, err
				}
				p, err := payloadOf[RecordIDPayload](s)
				if err != nil {
					return nil, err
				}
				outSchema := addOrReplaceColumn(in.Schema(), p.ColumnName, domain.TypeInt64)
				plan := cle.NewFuncPlan(outSchema, func() (*cle.Table, error) {
					table, err := collectOf(in)
					if err != nil {
						return nil, err
					}
					out := make([]cle.Row, len(table.Rows))
					for i, row := range table.Rows {
						nr := cloneRow(row)
						nr[p.ColumnName] = int64(i + 1)
						out[i] = nr
					}
					return &cle.Table{Schema: outSchema, Rows: out}, nil
				})
				return cle.NewLazy(plan), nil
			}
		},
		SchemaCallback: func(s domain.NodeSettings, inputs []domain.Schema) (domain.Schema, error) {
			in, err := singleInputSchema(inputs)
			if err != nil {
				return domain.Schema{}, err
			}
			p, err := payloadOf[RecordIDPayload](s)
			if err != nil {
				return domain.Schema{}, err
			}
			return addOrReplaceColumn(in, p.ColumnName, domain.TypeInt64), nil
		},
	}

	c[domain.KindTextToRows] = Registration{
		ClosureFactory: func(s domain.NodeSettings) domain.Closure {
			return func(inputs []domain.DataHandle) (domain.DataHandle, error) {
				in, err := singleInput(inputs)
				if err != nil {
					return nil, err
				}
				p, err := payloadOf[TextToRowsPayload](s)
				if err != nil {
					return nil, err
				}
				plan := cle.NewFuncPlan(in.Schema(), func() (*cle.Table, error) {
					table, err := collectOf(in)
					if err != nil {
						return nil, err
					}
					var out []cle.Row
					for _, row := range table.Rows {
						text, _ := row[p.Column].(string)
						parts := strings.Split(text, p.Delimiter)
						for _, part := range parts {
							nr := cloneRow(row)
							nr[p.Column] = part
							out = append(out, nr)
						}
					}
					return &cle.Table{Schema: table.Schema, Rows: out}, nil
				})
				return cle.NewLazy(plan), nil
			}
		},
		SchemaCallback: passthroughSchema,
	}

	c[domain.KindPolarsCode] = Registration{
		ClosureFactory: func(s domain.NodeSettings) domain.Closure {
			return func(inputs []domain.DataHandle) (domain.DataHandle, error) {
				in, err := singleInput(inputs)
				if err != nil {
					return nil, err
				}
				p, err := payloadOf[PolarsCodePayload](s)
				if err != nil {
					return nil, err
				}
				outSchema := toSchema(p.ExpectedSchema)
				plan := cle.NewFuncPlan(outSchema, func() (*cle.Table, error) {
					table, err := collectOf(in)
					if err != nil {
						return nil, err
					}
					out := make([]cle.Row, len(table.Rows))
					for i, row := range table.Rows {
						v, err := runValueExpr(p.Expression, rowEnv(row))
						if err != nil {
							return nil, fmt.Errorf("polars_code: %w", err)
						}
						m, ok := v.(map[string]any)
						if !ok {
							return nil, fmt.Errorf("polars_code: expression must evaluate to a row map")
						}
						out[i] = cle.Row(m)
					}
					return &cle.Table{Schema: outSchema, Rows: out}, nil
				})
				return cle.NewLazy(plan), nil
			}
		},
		SchemaCallback: func(s domain.NodeSettings, _ []domain.Schema) (domain.Schema, error) {
			p, err := payloadOf[PolarsCodePayload](s)
			if err != nil {
				return domain.Schema{}, err
			}
			return toSchema(p.ExpectedSchema), nil
		},
	}
}

func passthroughSchema(s domain.NodeSettings, inputs []domain.Schema) (domain.Schema, error) {
	return singleInputSchema(inputs)
}

func addOrReplaceColumn(schema domain.Schema, name string, typ domain.TypeTag) domain.Schema {
	out := schema.Clone()
	for i, f := range out.Fields {
		if f.Name == name {
			out.Fields[i].Type = typ
			return out
		}
	}
	out.Fields = append(out.Fields, domain.Field{Name: name, Type: typ})
	return out
}

func collectOf(h domain.DataHandle) (*cle.Table, error) {
	if handle, ok := h.(*cle.Handle); ok {
		return handle.Collect()
	}
	return nil, fmt.Errorf("settings: data handle is not a cle.Handle")
}

func rowEnv(row cle.Row) map[string]any {
	return map[string]any(row)
}

func cloneRow(row cle.Row) cle.Row {
	out := make(cle.Row, len(row))
	for k, v := range row {
		out[k] = v
	}
	return out
}

func rowKey(row cle.Row, columns []string) string {
	var b strings.Builder
	for _, c := range columns {
		fmt.Fprintf(&b, "%v\x1f", row[c])
	}
	return b.String()
}

func compareValues(a, b any) int {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		default:
			return 0
		}
	}
	as, bs := fmt.Sprintf("%v", a), fmt.Sprintf("%v", b)
	return strings.Compare(as, bs)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
