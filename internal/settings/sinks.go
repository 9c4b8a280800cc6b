package settings

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/flowfile/dataflow-core/internal/cle"
	"github.com/flowfile/dataflow-core/internal/domain"
	"github.com/flowfile/dataflow-core/internal/utils"
)

// OutputPayload writes the input table to Path in Format ("csv" | "json"),
// an output-writing kind that makes a node a sink.
type OutputPayload struct {
	Path   string
	Format string
}

// DatabaseWriterPayload writes the input table into Table via DSN.
type DatabaseWriterPayload struct {
	DSN   string
	Table string
}

// CloudStorageWriterPayload writes the input table as JSON to URI.
type CloudStorageWriterPayload struct {
	URI string
}

// UserDefinedPayload applies a natural-language transform Instruction to
// the concatenation of all its inputs via go-openai, the multi-input
// (AritySet) custom-transform kind alongside union.
type UserDefinedPayload struct {
	Instruction    string
	Model          string
	APIKey         string
	ExpectedSchema []FieldSpec
}

func registerSinks(c Catalog) {
	c[domain.KindOutput] = Registration{
		ClosureFactory: func(s domain.NodeSettings) domain.Closure {
			return func(inputs []domain.DataHandle) (domain.DataHandle, error) {
				in, err := singleInput(inputs)
				if err != nil {
					return nil, err
				}
				p, err := payloadOf[OutputPayload](s)
				if err != nil {
					return nil, err
				}
				table, err := collectOf(in)
				if err != nil {
					return nil, err
				}
				if err := writeOutput(p, table); err != nil {
					return nil, err
				}
				return cle.NewInMemory(table), nil
			}
		},
		SchemaCallback: passthroughSchema,
		Validator: func(s domain.NodeSettings, _ []domain.Schema) error {
			p, err := payloadOf[OutputPayload](s)
			if err != nil {
				return err
			}
			if p.Path == "" {
				return fmt.Errorf("output: path must not be empty")
			}
			return nil
		},
	}

	c[domain.KindDatabaseWriter] = Registration{
		ClosureFactory: func(s domain.NodeSettings) domain.Closure {
			return func(inputs []domain.DataHandle) (domain.DataHandle, error) {
				in, err := singleInput(inputs)
				if err != nil {
					return nil, err
				}
				p, err := payloadOf[DatabaseWriterPayload](s)
				if err != nil {
					return nil, err
				}
				table, err := collectOf(in)
				if err != nil {
					return nil, err
				}
				if err := DatabaseWriteHook(p.DSN, p.Table, table.Rows); err != nil {
					return nil, fmt.Errorf("database_writer: %w", err)
				}
				return cle.NewInMemory(table), nil
			}
		},
		SchemaCallback: passthroughSchema,
	}

	c[domain.KindCloudStorageWriter] = Registration{
		ClosureFactory: func(s domain.NodeSettings) domain.Closure {
			return func(inputs []domain.DataHandle) (domain.DataHandle, error) {
				in, err := singleInput(inputs)
				if err != nil {
					return nil, err
				}
				p, err := payloadOf[CloudStorageWriterPayload](s)
				if err != nil {
					return nil, err
				}
				table, err := collectOf(in)
				if err != nil {
					return nil, err
				}
				bytes, err := json.Marshal(rowsAsAny(table.Rows))
				if err != nil {
					return nil, fmt.Errorf("cloud_storage_writer: %w", err)
				}
				if err := os.MkdirAll(filepath.Dir(p.URI), 0o755); err != nil {
					return nil, fmt.Errorf("cloud_storage_writer: %w", err)
				}
				if err := os.WriteFile(p.URI, bytes, 0o644); err != nil {
					return nil, fmt.Errorf("cloud_storage_writer: %w", err)
				}
				return cle.NewInMemory(table), nil
			}
		},
		SchemaCallback: passthroughSchema,
	}

	c[domain.KindUserDefined] = Registration{
		ClosureFactory: func(s domain.NodeSettings) domain.Closure {
			return func(inputs []domain.DataHandle) (domain.DataHandle, error) {
				if len(inputs) == 0 {
					return nil, fmt.Errorf("user_defined: at least one input required")
				}
				p, err := payloadOf[UserDefinedPayload](s)
				if err != nil {
					return nil, err
				}
				outSchema := toSchema(p.ExpectedSchema)
				plan := cle.NewFuncPlan(outSchema, func() (*cle.Table, error) {
					var rows []cle.Row
					for _, in := range inputs {
						t, err := collectOf(in)
						if err != nil {
							return nil, err
						}
						rows = append(rows, t.Rows...)
					}
					transformed, err := applyUserDefinedTransform(p, rows)
					if err != nil {
						return nil, err
					}
					return &cle.Table{Schema: outSchema, Rows: transformed}, nil
				})
				return cle.NewLazy(plan), nil
			}
		},
		SchemaCallback: func(s domain.NodeSettings, _ []domain.Schema) (domain.Schema, error) {
			p, err := payloadOf[UserDefinedPayload](s)
			if err != nil {
				return domain.Schema{}, err
			}
			return toSchema(p.ExpectedSchema), nil
		},
	}
}

// DatabaseWriteHook is installed by internal/infrastructure/storage,
// mirroring DatabaseQueryHook's init-time wiring (sources.go).
var DatabaseWriteHook = func(dsn, table string, rows []cle.Row) error {
	return fmt.Errorf("database_writer: no storage backend wired")
}

func writeOutput(p OutputPayload, table *cle.Table) error {
	if err := os.MkdirAll(filepath.Dir(p.Path), 0o755); err != nil {
		return fmt.Errorf("output: %w", err)
	}
	switch p.Format {
	case "json":
		bytes, err := json.Marshal(rowsAsAny(table.Rows))
		if err != nil {
			return fmt.Errorf("output: %w", err)
		}
		return os.WriteFile(p.Path, bytes, 0o644)
	default:
		f, err := os.Create(p.Path)
		if err != nil {
			return fmt.Errorf("output: %w", err)
		}
		defer f.Close()
		w := csv.NewWriter(f)
		names := table.Schema.Names()
		if err := w.Write(names); err != nil {
			return err
		}
		for _, row := range table.Rows {
			record := make([]string, len(names))
			for i, n := range names {
				record[i] = stringify(row[n])
			}
			if err := w.Write(record); err != nil {
				return err
			}
		}
		w.Flush()
		return w.Error()
	}
}

func stringify(v any) string {
	switch n := v.(type) {
	case float64:
		return strconv.FormatFloat(n, 'f', -1, 64)
	case string:
		return n
	default:
		return fmt.Sprintf("%v", v)
	}
}

func applyUserDefinedTransform(p UserDefinedPayload, rows []cle.Row) ([]cle.Row, error) {
	client := openai.NewClient(p.APIKey)
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	input, err := json.Marshal(rowsAsAny(rows))
	if err != nil {
		return nil, fmt.Errorf("user_defined: %w", err)
	}

	model := utils.DefaultValue(p.Model, openai.GPT4oMini)
	resp, err := client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: "Transform the given JSON row array per the instruction. Return only the resulting JSON array."},
			{Role: openai.ChatMessageRoleUser, Content: p.Instruction + "\n\nRows:\n" + string(input)},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("user_defined: completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("user_defined: empty completion")
	}

	var raw []map[string]any
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &raw); err != nil {
		return nil, fmt.Errorf("user_defined: parse completion json: %w", err)
	}
	out := make([]cle.Row, len(raw))
	for i, r := range raw {
		out[i] = cle.Row(r)
	}
	return out, nil
}
