package settings

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/flowfile/dataflow-core/internal/cle"
	"github.com/flowfile/dataflow-core/internal/domain"
	"github.com/flowfile/dataflow-core/internal/utils"
)

// ReadPayload reads rows from a local file, a zero-input kind.
// The expected schema is declared up front since schema prediction must
// never touch data.
type ReadPayload struct {
	Path           string
	Format         string // "csv" | "json"
	ExpectedSchema []FieldSpec
}

// ManualInputPayload embeds its rows directly in settings — the simplest
// zero-input kind, used for tests and small literal datasets.
type ManualInputPayload struct {
	Rows           []map[string]any
	ExpectedSchema []FieldSpec
}

// ExternalSourcePayload fetches rows from an LLM-backed generator: a prompt
// describing the desired dataset, realized against go-openai's chat
// completion API and parsed as a JSON array of row objects matching
// ExpectedSchema.
type ExternalSourcePayload struct {
	Prompt         string
	Model          string
	APIKey         string
	ExpectedSchema []FieldSpec
}

// DatabaseReaderPayload runs Query against DSN via database_reader's bun
// connection (internal/infrastructure/storage wires the actual *bun.DB;
// this payload only carries the query text and connection string).
type DatabaseReaderPayload struct {
	DSN            string
	Query          string
	ExpectedSchema []FieldSpec
}

// CloudStorageReaderPayload reads a single object from a URI. No
// object-storage SDK (AWS/GCS/Azure) is a dependency anywhere in this
// stack, so this reads http(s) URIs with net/http and local paths
// otherwise — a stdlib fallback standing in for
// whatever concrete cloud SDK a deployment wires in.
type CloudStorageReaderPayload struct {
	URI            string
	ExpectedSchema []FieldSpec
}

func registerSources(c Catalog) {
	c[domain.KindRead] = Registration{
		ClosureFactory: readClosureFactory,
		SchemaCallback: func(s domain.NodeSettings, _ []domain.Schema) (domain.Schema, error) {
			p, err := payloadOf[ReadPayload](s)
			if err != nil {
				return domain.Schema{}, err
			}
			return toSchema(p.ExpectedSchema), nil
		},
		Validator: func(s domain.NodeSettings, _ []domain.Schema) error {
			p, err := payloadOf[ReadPayload](s)
			if err != nil {
				return err
			}
			if p.Path == "" {
				return fmt.Errorf("read: path must not be empty")
			}
			return nil
		},
	}

	c[domain.KindManualInput] = Registration{
		ClosureFactory: func(s domain.NodeSettings) domain.Closure {
			return func([]domain.DataHandle) (domain.DataHandle, error) {
				p, err := payloadOf[ManualInputPayload](s)
				if err != nil {
					return nil, err
				}
				schema := toSchema(p.ExpectedSchema)
				table := &cle.Table{Schema: schema, Rows: make([]cle.Row, len(p.Rows))}
				for i, r := range p.Rows {
					table.Rows[i] = cle.Row(r)
				}
				return cle.NewInMemory(table), nil
			}
		},
		SchemaCallback: func(s domain.NodeSettings, _ []domain.Schema) (domain.Schema, error) {
			p, err := payloadOf[ManualInputPayload](s)
			if err != nil {
				return domain.Schema{}, err
			}
			return toSchema(p.ExpectedSchema), nil
		},
	}

	c[domain.KindExternalSource] = Registration{
		ClosureFactory: externalSourceClosureFactory,
		SchemaCallback: func(s domain.NodeSettings, _ []domain.Schema) (domain.Schema, error) {
			p, err := payloadOf[ExternalSourcePayload](s)
			if err != nil {
				return domain.Schema{}, err
			}
			return toSchema(p.ExpectedSchema), nil
		},
		Validator: func(s domain.NodeSettings, _ []domain.Schema) error {
			p, err := payloadOf[ExternalSourcePayload](s)
			if err != nil {
				return err
			}
			if p.Prompt == "" {
				return fmt.Errorf("external_source: prompt must not be empty")
			}
			return nil
		},
	}

	c[domain.KindDatabaseReader] = Registration{
		ClosureFactory: databaseReaderClosureFactory,
		SchemaCallback: func(s domain.NodeSettings, _ []domain.Schema) (domain.Schema, error) {
			p, err := payloadOf[DatabaseReaderPayload](s)
			if err != nil {
				return domain.Schema{}, err
			}
			return toSchema(p.ExpectedSchema), nil
		},
		Validator: func(s domain.NodeSettings, _ []domain.Schema) error {
			p, err := payloadOf[DatabaseReaderPayload](s)
			if err != nil {
				return err
			}
			if p.Query == "" {
				return fmt.Errorf("database_reader: query must not be empty")
			}
			return nil
		},
	}

	c[domain.KindCloudStorageReader] = Registration{
		ClosureFactory: cloudReaderClosureFactory,
		SchemaCallback: func(s domain.NodeSettings, _ []domain.Schema) (domain.Schema, error) {
			p, err := payloadOf[CloudStorageReaderPayload](s)
			if err != nil {
				return domain.Schema{}, err
			}
			return toSchema(p.ExpectedSchema), nil
		},
	}
}

func readClosureFactory(s domain.NodeSettings) domain.Closure {
	return func([]domain.DataHandle) (domain.DataHandle, error) {
		p, err := payloadOf[ReadPayload](s)
		if err != nil {
			return nil, err
		}
		schema := toSchema(p.ExpectedSchema)
		var rows []cle.Row
		switch p.Format {
		case "json":
			rows, err = readJSONRows(p.Path)
		default:
			rows, err = readCSVRows(p.Path, schema)
		}
		if err != nil {
			return nil, err
		}
		plan := cle.NewFuncPlan(schema, func() (*cle.Table, error) {
			return &cle.Table{Schema: schema, Rows: rows}, nil
		})
		return cle.NewLazy(plan), nil
	}
}

func readCSVRows(path string, schema domain.Schema) ([]cle.Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("read: open %s: %w", path, err)
	}
	defer f.Close()
	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read: csv header: %w", err)
	}
	var rows []cle.Row
	for {
		record, err := r.Read()
		if err != nil {
			break
		}
		row := make(cle.Row, len(header))
		for i, col := range header {
			if i < len(record) {
				row[col] = coerce(record[i], schema)
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func coerce(raw string, schema domain.Schema) any {
	if f, ok := schema.Column(raw); ok && f.Type.IsNumeric() {
		if v, err := strconv.ParseFloat(raw, 64); err == nil {
			return v
		}
	}
	return raw
}

func readJSONRows(path string) ([]cle.Row, error) {
	bytes, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read: open %s: %w", path, err)
	}
	var raw []map[string]any
	if err := json.Unmarshal(bytes, &raw); err != nil {
		return nil, fmt.Errorf("read: decode json: %w", err)
	}
	rows := make([]cle.Row, len(raw))
	for i, r := range raw {
		rows[i] = cle.Row(r)
	}
	return rows, nil
}

func externalSourceClosureFactory(s domain.NodeSettings) domain.Closure {
	return func([]domain.DataHandle) (domain.DataHandle, error) {
		p, err := payloadOf[ExternalSourcePayload](s)
		if err != nil {
			return nil, err
		}
		schema := toSchema(p.ExpectedSchema)

		client := openai.NewClient(p.APIKey)
		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		defer cancel()

		model := utils.DefaultValue(p.Model, openai.GPT4oMini)
		resp, err := client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model: model,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleSystem, Content: "Return only a JSON array of row objects matching the requested schema, no prose."},
				{Role: openai.ChatMessageRoleUser, Content: p.Prompt},
			},
		})
		if err != nil {
			return nil, fmt.Errorf("external_source: completion failed: %w", err)
		}
		if len(resp.Choices) == 0 {
			return nil, fmt.Errorf("external_source: empty completion")
		}

		var raw []map[string]any
		if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &raw); err != nil {
			return nil, fmt.Errorf("external_source: parse completion json: %w", err)
		}
		rows := make([]cle.Row, len(raw))
		for i, r := range raw {
			rows[i] = cle.Row(r)
		}
		return cle.NewInMemory(&cle.Table{Schema: schema, Rows: rows}), nil
	}
}

func databaseReaderClosureFactory(s domain.NodeSettings) domain.Closure {
	return func([]domain.DataHandle) (domain.DataHandle, error) {
		p, err := payloadOf[DatabaseReaderPayload](s)
		if err != nil {
			return nil, err
		}
		schema := toSchema(p.ExpectedSchema)
		// The actual *bun.DB connection and row scan live in
		// internal/infrastructure/storage's queryRows, which this closure
		// calls through a package-level hook so internal/settings does not
		// import internal/infrastructure/storage directly (that package in
		// turn imports internal/settings's payload types to decode saved
		// graphs) — see storage.WireHooks.
		rows, err := DatabaseQueryHook(p.DSN, p.Query)
		if err != nil {
			return nil, fmt.Errorf("database_reader: %w", err)
		}
		return cle.NewInMemory(&cle.Table{Schema: schema, Rows: rows}), nil
	}
}

// DatabaseQueryHook is installed by internal/infrastructure/storage at
// program startup (init-time wiring, mirroring the dependency
// injection in factory.go) to avoid a direct import cycle between
// internal/settings and internal/infrastructure/storage.
var DatabaseQueryHook = func(dsn, query string) ([]cle.Row, error) {
	return nil, fmt.Errorf("database_reader: no storage backend wired")
}

func cloudReaderClosureFactory(s domain.NodeSettings) domain.Closure {
	return func([]domain.DataHandle) (domain.DataHandle, error) {
		p, err := payloadOf[CloudStorageReaderPayload](s)
		if err != nil {
			return nil, err
		}
		schema := toSchema(p.ExpectedSchema)
		var data []byte
		if len(p.URI) > 4 && (p.URI[:4] == "http") {
			resp, err := http.Get(p.URI)
			if err != nil {
				return nil, fmt.Errorf("cloud_storage_reader: %w", err)
			}
			defer resp.Body.Close()
			data = make([]byte, 0)
			buf := make([]byte, 32*1024)
			for {
				n, rerr := resp.Body.Read(buf)
				data = append(data, buf[:n]...)
				if rerr != nil {
					break
				}
			}
		} else {
			data, err = os.ReadFile(p.URI)
			if err != nil {
				return nil, fmt.Errorf("cloud_storage_reader: %w", err)
			}
		}
		var raw []map[string]any
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("cloud_storage_reader: decode: %w", err)
		}
		rows := make([]cle.Row, len(raw))
		for i, r := range raw {
			rows[i] = cle.Row(r)
		}
		return cle.NewInMemory(&cle.Table{Schema: schema, Rows: rows}), nil
	}
}
