package settings

import (
	"fmt"

	"github.com/flowfile/dataflow-core/internal/cle"
	"github.com/flowfile/dataflow-core/internal/domain"
)

// JoinPayload joins the Left and Right inputs on the named key columns.
type JoinPayload struct {
	LeftOn  string
	RightOn string
	How     string // "inner" | "left"
}

// CrossJoinPayload produces the full cartesian product of Left and Right.
type CrossJoinPayload struct{}

// UnionPayload stacks every input's rows; schemas must already agree.
type UnionPayload struct{}

// Aggregation is one output column of a group_by: apply Func to Column,
// named As in the result.
type Aggregation struct {
	Column string
	Func   string // "sum" | "mean" | "count" | "min" | "max"
	As     string
}

// GroupByPayload groups by GroupColumns and computes Aggregations per group.
type GroupByPayload struct {
	GroupColumns []string
	Aggregations []Aggregation
}

// PivotPayload reshapes rows: one output column per distinct value of
// PivotColumn, cell values taken from ValueColumn aggregated with AggFunc.
type PivotPayload struct {
	IndexColumns []string
	PivotColumn  string
	ValueColumn  string
	AggFunc      string
}

// UnpivotPayload is pivot's inverse: melts ValueColumns into two columns,
// NameColumn and ValueColumnOut.
type UnpivotPayload struct {
	IDColumns      []string
	ValueColumns   []string
	NameColumn     string
	ValueColumnOut string
}

// GraphSolverPayload iteratively applies Expression to each row until
// ConvergeWhen evaluates true or MaxIterations is reached — modeling the
// source system's fixed-point graph transforms (e.g. connected components,
// label propagation) as a bounded expr-lang loop rather than a dedicated
// graph library, since none is wired into this module.
type GraphSolverPayload struct {
	Expression    string
	ConvergeWhen  string
	MaxIterations int
}

func registerCombinators(c Catalog) {
	c[domain.KindJoin] = Registration{
		ClosureFactory: func(s domain.NodeSettings) domain.Closure {
			return func(inputs []domain.DataHandle) (domain.DataHandle, error) {
				left, right, err := leftRight(inputs)
				if err != nil {
					return nil, err
				}
				p, err := payloadOf[JoinPayload](s)
				if err != nil {
					return nil, err
				}
				outSchema := joinSchema(left.Schema(), right.Schema())
				plan := cle.NewFuncPlan(outSchema, func() (*cle.Table, error) {
					lt, err := collectOf(left)
					if err != nil {
						return nil, err
					}
					rt, err := collectOf(right)
					if err != nil {
						return nil, err
					}
					index := make(map[string][]cle.Row)
					for _, row := range rt.Rows {
						key := fmt.Sprintf("%v", row[p.RightOn])
						index[key] = append(index[key], row)
					}
					var out []cle.Row
					for _, lrow := range lt.Rows {
						key := fmt.Sprintf("%v", lrow[p.LeftOn])
						matches := index[key]
						if len(matches) == 0 && p.How == "left" {
							out = append(out, mergeRows(lrow, nil))
							continue
						}
						for _, rrow := range matches {
							out = append(out, mergeRows(lrow, rrow))
						}
					}
					return &cle.Table{Schema: outSchema, Rows: out}, nil
				})
				return cle.NewLazy(plan), nil
			}
		},
		SchemaCallback: func(s domain.NodeSettings, inputs []domain.Schema) (domain.Schema, error) {
			left, right, err := leftRightSchemas(inputs)
			if err != nil {
				return domain.Schema{}, err
			}
			return joinSchema(left, right), nil
		},
		Validator: func(s domain.NodeSettings, inputs []domain.Schema) error {
			left, right, err := leftRightSchemas(inputs)
			if err != nil {
				return nil
			}
			p, err := payloadOf[JoinPayload](s)
			if err != nil {
				return err
			}
			if !left.Has(p.LeftOn) {
				return fmt.Errorf("join: left key %q not in left schema", p.LeftOn)
			}
			if !right.Has(p.RightOn) {
				return fmt.Errorf("join: right key %q not in right schema", p.RightOn)
			}
			return nil
		},
	}

	c[domain.KindCrossJoin] = Registration{
		ClosureFactory: func(s domain.NodeSettings) domain.Closure {
			return func(inputs []domain.DataHandle) (domain.DataHandle, error) {
				left, right, err := leftRight(inputs)
				if err != nil {
					return nil, err
				}
				outSchema := joinSchema(left.Schema(), right.Schema())
				plan := cle.NewFuncPlan(outSchema, func() (*cle.Table, error) {
					lt, err := collectOf(left)
					if err != nil {
						return nil, err
					}
					rt, err := collectOf(right)
					if err != nil {
						return nil, err
					}
					out := make([]cle.Row, 0, len(lt.Rows)*len(rt.Rows))
					for _, lrow := range lt.Rows {
						for _, rrow := range rt.Rows {
							out = append(out, mergeRows(lrow, rrow))
						}
					}
					return &cle.Table{Schema: outSchema, Rows: out}, nil
				})
				return cle.NewLazy(plan), nil
			}
		},
		SchemaCallback: func(s domain.NodeSettings, inputs []domain.Schema) (domain.Schema, error) {
			left, right, err := leftRightSchemas(inputs)
			if err != nil {
				return domain.Schema{}, err
			}
			return joinSchema(left, right), nil
		},
	}

	c[domain.KindUnion] = Registration{
		ClosureFactory: func(s domain.NodeSettings) domain.Closure {
			return func(inputs []domain.DataHandle) (domain.DataHandle, error) {
				if len(inputs) == 0 {
					return nil, fmt.Errorf("union: at least one input required")
				}
				schema := inputs[0].Schema()
				plan := cle.NewFuncPlan(schema, func() (*cle.Table, error) {
					var out []cle.Row
					for _, in := range inputs {
						t, err := collectOf(in)
						if err != nil {
							return nil, err
						}
						out = append(out, t.Rows...)
					}
					return &cle.Table{Schema: schema, Rows: out}, nil
				})
				return cle.NewLazy(plan), nil
			}
		},
		SchemaCallback: func(s domain.NodeSettings, inputs []domain.Schema) (domain.Schema, error) {
			if len(inputs) == 0 {
				return domain.Schema{}, fmt.Errorf("union: at least one input schema required")
			}
			return inputs[0], nil
		},
	}

	c[domain.KindGroupBy] = Registration{
		ClosureFactory: func(s domain.NodeSettings) domain.Closure {
			return func(inputs []domain.DataHandle) (domain.DataHandle, error) {
				in, err := singleInput(inputs)
				if err != nil {
					return nil, err
				}
				p, err := payloadOf[GroupByPayload](s)
				if err != nil {
					return nil, err
				}
				outSchema := groupBySchema(p)
				plan := cle.NewFuncPlan(outSchema, func() (*cle.Table, error) {
					table, err := collectOf(in)
					if err != nil {
						return nil, err
					}
					return computeGroupBy(table, p, outSchema)
				})
				return cle.NewLazy(plan), nil
			}
		},
		SchemaCallback: func(s domain.NodeSettings, _ []domain.Schema) (domain.Schema, error) {
			p, err := payloadOf[GroupByPayload](s)
			if err != nil {
				return domain.Schema{}, err
			}
			return groupBySchema(p), nil
		},
	}

	c[domain.KindPivot] = Registration{
		ClosureFactory: func(s domain.NodeSettings) domain.Closure {
			return func(inputs []domain.DataHandle) (domain.DataHandle, error) {
				in, err := singleInput(inputs)
				if err != nil {
					return nil, err
				}
				p, err := payloadOf[PivotPayload](s)
				if err != nil {
					return nil, err
				}
				plan := cle.NewFuncPlan(in.Schema(), func() (*cle.Table, error) {
					table, err := collectOf(in)
					if err != nil {
						return nil, err
					}
					return computePivot(table, p)
				})
				return cle.NewLazy(plan), nil
			}
		},
		SchemaCallback: passthroughSchema,
	}

	c[domain.KindUnpivot] = Registration{
		ClosureFactory: func(s domain.NodeSettings) domain.Closure {
			return func(inputs []domain.DataHandle) (domain.DataHandle, error) {
				in, err := singleInput(inputs)
				if err != nil {
					return nil, err
				}
				p, err := payloadOf[UnpivotPayload](s)
				if err != nil {
					return nil, err
				}
				outSchema := unpivotSchema(in.Schema(), p)
				plan := cle.NewFuncPlan(outSchema, func() (*cle.Table, error) {
					table, err := collectOf(in)
					if err != nil {
						return nil, err
					}
					var out []cle.Row
					for _, row := range table.Rows {
						for _, vc := range p.ValueColumns {
							nr := make(cle.Row)
							for _, idc := range p.IDColumns {
								nr[idc] = row[idc]
							}
							nr[p.NameColumn] = vc
							nr[p.ValueColumnOut] = row[vc]
							out = append(out, nr)
						}
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
			p, err := payloadOf[UnpivotPayload](s)
			if err != nil {
				return domain.Schema{}, err
			}
			return unpivotSchema(in, p), nil
		},
	}

	c[domain.KindGraphSolver] = Registration{
		ClosureFactory: func(s domain.NodeSettings) domain.Closure {
			return func(inputs []domain.DataHandle) (domain.DataHandle, error) {
				in, err := singleInput(inputs)
				if err != nil {
					return nil, err
				}
				p, err := payloadOf[GraphSolverPayload](s)
				if err != nil {
					return nil, err
				}
				plan := cle.NewFuncPlan(in.Schema(), func() (*cle.Table, error) {
					table, err := collectOf(in)
					if err != nil {
						return nil, err
					}
					rows := table.Rows
					maxIter := p.MaxIterations
					if maxIter <= 0 {
						maxIter = 50
					}
					for i := 0; i < maxIter; i++ {
						next := make([]cle.Row, len(rows))
						for j, row := range rows {
							v, err := runValueExpr(p.Expression, rowEnv(row))
							if err != nil {
								return nil, fmt.Errorf("graph_solver: %w", err)
							}
							m, ok := v.(map[string]any)
							if !ok {
								return nil, fmt.Errorf("graph_solver: expression must return a row map")
							}
							next[j] = cle.Row(m)
						}
						rows = next
						if p.ConvergeWhen != "" {
							converged, err := runBoolExpr(p.ConvergeWhen, map[string]any{"rows": rowsAsAny(rows), "iteration": i})
							if err != nil {
								return nil, fmt.Errorf("graph_solver: converge check: %w", err)
							}
							if converged {
								break
							}
						}
					}
					return &cle.Table{Schema: table.Schema, Rows: rows}, nil
				})
				return cle.NewLazy(plan), nil
			}
		},
		SchemaCallback: passthroughSchema,
	}
}

func leftRight(inputs []domain.DataHandle) (domain.DataHandle, domain.DataHandle, error) {
	if len(inputs) != 2 {
		return nil, nil, fmt.Errorf("settings: join-like kind expects exactly two inputs, got %d", len(inputs))
	}
	return inputs[0], inputs[1], nil
}

func leftRightSchemas(inputs []domain.Schema) (domain.Schema, domain.Schema, error) {
	if len(inputs) != 2 {
		return domain.Schema{}, domain.Schema{}, fmt.Errorf("settings: join-like kind expects exactly two input schemas, got %d", len(inputs))
	}
	return inputs[0], inputs[1], nil
}

func joinSchema(left, right domain.Schema) domain.Schema {
	out := left.Clone()
	seen := make(map[string]bool, len(out.Fields))
	for _, f := range out.Fields {
		seen[f.Name] = true
	}
	for _, f := range right.Fields {
		name := f.Name
		if seen[name] {
			name = "right_" + name
		}
		out.Fields = append(out.Fields, domain.Field{Name: name, Type: f.Type, Nullable: f.Nullable})
	}
	return out
}

func mergeRows(left, right cle.Row) cle.Row {
	out := cloneRow(left)
	for k, v := range right {
		if _, exists := out[k]; exists {
			out["right_"+k] = v
		} else {
			out[k] = v
		}
	}
	return out
}

func groupBySchema(p GroupByPayload) domain.Schema {
	fields := make([]domain.Field, 0, len(p.GroupColumns)+len(p.Aggregations))
	for _, g := range p.GroupColumns {
		fields = append(fields, domain.Field{Name: g, Type: domain.TypeString})
	}
	for _, agg := range p.Aggregations {
		fields = append(fields, domain.Field{Name: agg.As, Type: domain.TypeFloat64})
	}
	return domain.Schema{Fields: fields}
}

func computeGroupBy(table *cle.Table, p GroupByPayload, outSchema domain.Schema) (*cle.Table, error) {
	type group struct {
		key    cle.Row
		values map[string][]float64
	}
	groups := make(map[string]*group)
	var order []string
	for _, row := range table.Rows {
		key := rowKey(row, p.GroupColumns)
		g, ok := groups[key]
		if !ok {
			gk := make(cle.Row, len(p.GroupColumns))
			for _, c := range p.GroupColumns {
				gk[c] = row[c]
			}
			g = &group{key: gk, values: make(map[string][]float64)}
			groups[key] = g
			order = append(order, key)
		}
		for _, agg := range p.Aggregations {
			if v, ok := toFloat(row[agg.Column]); ok {
				g.values[agg.Column] = append(g.values[agg.Column], v)
			}
		}
	}
	out := make([]cle.Row, 0, len(order))
	for _, key := range order {
		g := groups[key]
		row := cloneRow(g.key)
		for _, agg := range p.Aggregations {
			row[agg.As] = aggregate(agg.Func, g.values[agg.Column])
		}
		out = append(out, row)
	}
	return &cle.Table{Schema: outSchema, Rows: out}, nil
}

func aggregate(fn string, values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	switch fn {
	case "count":
		return float64(len(values))
	case "mean":
		var sum float64
		for _, v := range values {
			sum += v
		}
		return sum / float64(len(values))
	case "min":
		m := values[0]
		for _, v := range values {
			if v < m {
				m = v
			}
		}
		return m
	case "max":
		m := values[0]
		for _, v := range values {
			if v > m {
				m = v
			}
		}
		return m
	default: // "sum"
		var sum float64
		for _, v := range values {
			sum += v
		}
		return sum
	}
}

func computePivot(table *cle.Table, p PivotPayload) (*cle.Table, error) {
	type group struct {
		key    cle.Row
		values map[string][]float64
	}
	groups := make(map[string]*group)
	var order []string
	columns := make(map[string]bool)
	for _, row := range table.Rows {
		key := rowKey(row, p.IndexColumns)
		g, ok := groups[key]
		if !ok {
			gk := make(cle.Row, len(p.IndexColumns))
			for _, c := range p.IndexColumns {
				gk[c] = row[c]
			}
			g = &group{key: gk, values: make(map[string][]float64)}
			groups[key] = g
			order = append(order, key)
		}
		col := fmt.Sprintf("%v", row[p.PivotColumn])
		columns[col] = true
		if v, ok := toFloat(row[p.ValueColumn]); ok {
			g.values[col] = append(g.values[col], v)
		}
	}
	fields := make([]domain.Field, 0, len(p.IndexColumns)+len(columns))
	for _, c := range p.IndexColumns {
		fields = append(fields, domain.Field{Name: c, Type: domain.TypeString})
	}
	for col := range columns {
		fields = append(fields, domain.Field{Name: col, Type: domain.TypeFloat64})
	}
	schema := domain.Schema{Fields: fields}

	out := make([]cle.Row, 0, len(order))
	for _, key := range order {
		g := groups[key]
		row := cloneRow(g.key)
		for col := range columns {
			row[col] = aggregate(p.AggFunc, g.values[col])
		}
		out = append(out, row)
	}
	return &cle.Table{Schema: schema, Rows: out}, nil
}

func unpivotSchema(in domain.Schema, p UnpivotPayload) domain.Schema {
	fields := make([]domain.Field, 0, len(p.IDColumns)+2)
	for _, c := range p.IDColumns {
		if f, ok := in.Column(c); ok {
			fields = append(fields, f)
		}
	}
	fields = append(fields, domain.Field{Name: p.NameColumn, Type: domain.TypeString})
	fields = append(fields, domain.Field{Name: p.ValueColumnOut, Type: domain.TypeFloat64})
	return domain.Schema{Fields: fields}
}

func rowsAsAny(rows []cle.Row) []map[string]any {
	out := make([]map[string]any, len(rows))
	for i, r := range rows {
		out[i] = map[string]any(r)
	}
	return out
}
