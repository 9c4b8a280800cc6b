package settings_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowfile/dataflow-core/internal/cle"
	"github.com/flowfile/dataflow-core/internal/domain"
	"github.com/flowfile/dataflow-core/internal/settings"
)

func fieldSpecs() []settings.FieldSpec {
	return []settings.FieldSpec{
		{Name: "name", Type: domain.TypeString},
		{Name: "age", Type: domain.TypeFloat64},
	}
}

func manualInputNode(t *testing.T, c settings.Catalog, id int64, rows []map[string]any) *domain.FlowNode {
	t.Helper()
	payload := settings.ManualInputPayload{Rows: rows, ExpectedSchema: fieldSpecs()}
	s := domain.NewNodeSettings(1, id, domain.KindManualInput, payload)
	n, err := c.Build(s)
	require.NoError(t, err)
	return n
}

func TestManualInputProducesSchemaWithoutRunning(t *testing.T) {
	c := settings.NewCatalog()
	n := manualInputNode(t, c, 1, []map[string]any{{"name": "a", "age": 30.0}})

	schema, err := n.PredictSchema(nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"name", "age"}, schema.Names())
}

func TestManualInputExecuteYieldsInMemoryHandle(t *testing.T) {
	c := settings.NewCatalog()
	n := manualInputNode(t, c, 1, []map[string]any{{"name": "a", "age": 30.0}, {"name": "b", "age": 40.0}})

	result := n.Execute(nil)
	require.NoError(t, result.Error)
	assert.Equal(t, domain.MaterializationInMemory, result.DataHandle.State())
	require.NotNil(t, result.RowCount)
	assert.Equal(t, uint64(2), *result.RowCount)
}

func TestFilterKeepsMatchingRows(t *testing.T) {
	c := settings.NewCatalog()
	source := manualInputNode(t, c, 1, []map[string]any{
		{"name": "a", "age": 10.0},
		{"name": "b", "age": 30.0},
	})
	sourceResult := source.Execute(nil)
	require.NoError(t, sourceResult.Error)

	filterSettings := domain.NewNodeSettings(1, 2, domain.KindFilter, settings.FilterPayload{Expression: "age >= 18"})
	filterNode, err := c.Build(filterSettings)
	require.NoError(t, err)

	result := filterNode.Execute([]domain.DataHandle{sourceResult.DataHandle})
	require.NoError(t, result.Error)

	handle, ok := result.DataHandle.(*cle.Handle)
	require.True(t, ok)
	table, err := handle.Collect()
	require.NoError(t, err)
	require.Len(t, table.Rows, 1)
	assert.Equal(t, "b", table.Rows[0]["name"])
}

func TestFilterValidatorRejectsEmptyExpression(t *testing.T) {
	c := settings.NewCatalog()
	validator, err := c.Validator(domain.KindFilter)
	require.NoError(t, err)
	s := domain.NewNodeSettings(1, 1, domain.KindFilter, settings.FilterPayload{Expression: ""})
	assert.Error(t, validator(s, nil))
}

func TestFormulaAddsColumn(t *testing.T) {
	c := settings.NewCatalog()
	source := manualInputNode(t, c, 1, []map[string]any{{"name": "a", "age": 10.0}})
	sourceResult := source.Execute(nil)
	require.NoError(t, sourceResult.Error)

	formulaSettings := domain.NewNodeSettings(1, 2, domain.KindFormula, settings.FormulaPayload{
		Column:     "age_plus_one",
		Expression: "age + 1",
		ResultType: domain.TypeFloat64,
	})
	node, err := c.Build(formulaSettings)
	require.NoError(t, err)

	schema, err := node.PredictSchema([]domain.Schema{source.CachedSchema.Clone()})
	require.NoError(t, err)
	assert.True(t, schema.Has("age_plus_one"))

	result := node.Execute([]domain.DataHandle{sourceResult.DataHandle})
	require.NoError(t, result.Error)
	handle := result.DataHandle.(*cle.Handle)
	table, err := handle.Collect()
	require.NoError(t, err)
	assert.EqualValues(t, 11, table.Rows[0]["age_plus_one"])
}

func TestSelectProjectsColumns(t *testing.T) {
	c := settings.NewCatalog()
	source := manualInputNode(t, c, 1, []map[string]any{{"name": "a", "age": 10.0}})
	sourceResult := source.Execute(nil)
	require.NoError(t, sourceResult.Error)

	selectSettings := domain.NewNodeSettings(1, 2, domain.KindSelect, settings.SelectPayload{Columns: []string{"name"}})
	node, err := c.Build(selectSettings)
	require.NoError(t, err)

	result := node.Execute([]domain.DataHandle{sourceResult.DataHandle})
	require.NoError(t, result.Error)
	handle := result.DataHandle.(*cle.Handle)
	table, err := handle.Collect()
	require.NoError(t, err)
	require.Len(t, table.Rows, 1)
	_, hasAge := table.Rows[0]["age"]
	assert.False(t, hasAge)
	assert.Equal(t, "a", table.Rows[0]["name"])
}

func TestSelectValidatorRejectsUnknownColumn(t *testing.T) {
	c := settings.NewCatalog()
	validator, err := c.Validator(domain.KindSelect)
	require.NoError(t, err)
	schema := domain.NewSchema(domain.Field{Name: "name", Type: domain.TypeString})
	s := domain.NewNodeSettings(1, 1, domain.KindSelect, settings.SelectPayload{Columns: []string{"missing"}})
	assert.Error(t, validator(s, []domain.Schema{schema}))
}

func TestCatalogBuildUnknownKindFails(t *testing.T) {
	c := settings.NewCatalog()
	_, err := c.Build(domain.NewNodeSettings(1, 1, domain.NodeKind("not_a_kind"), nil))
	assert.Error(t, err)
}

func TestUniqueDropsDuplicateRows(t *testing.T) {
	c := settings.NewCatalog()
	source := manualInputNode(t, c, 1, []map[string]any{
		{"name": "a", "age": 10.0},
		{"name": "a", "age": 10.0},
		{"name": "b", "age": 20.0},
	})
	sourceResult := source.Execute(nil)
	require.NoError(t, sourceResult.Error)

	uniqueSettings := domain.NewNodeSettings(1, 2, domain.KindUnique, settings.UniquePayload{})
	node, err := c.Build(uniqueSettings)
	require.NoError(t, err)

	result := node.Execute([]domain.DataHandle{sourceResult.DataHandle})
	require.NoError(t, result.Error)
	handle := result.DataHandle.(*cle.Handle)
	table, err := handle.Collect()
	require.NoError(t, err)
	assert.Len(t, table.Rows, 2)
}
