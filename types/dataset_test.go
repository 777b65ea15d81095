package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func sample() *Dataset {
	ds := NewDataset("name", "score")
	_ = ds.AppendRow("alice", float64(91))
	_ = ds.AppendRow("bob", float64(78))
	_ = ds.AppendRow("carol", nil)
	return ds
}

func TestDataset_AppendRowShapeChecked(t *testing.T) {
	ds := NewDataset("a", "b")
	require.NoError(t, ds.AppendRow(1, 2))
	require.Error(t, ds.AppendRow(1))
	require.Error(t, ds.AppendRow(1, 2, 3))
	assert.Equal(t, 1, ds.NumRows())
}

func TestDataset_Columns(t *testing.T) {
	ds := sample()

	scores, err := ds.Float64Column("score")
	require.NoError(t, err)
	assert.Equal(t, []float64{91, 78}, scores, "nil cells are skipped")

	_, err = ds.Float64Column("name")
	require.Error(t, err, "non-numeric cells are an error")

	_, err = ds.Column("ghost")
	require.Error(t, err)

	names, err := ds.Column("name")
	require.NoError(t, err)
	assert.Len(t, names, 3)
}

func TestDataset_CloneIsDeep(t *testing.T) {
	ds := sample()
	clone := ds.Clone()
	require.True(t, ds.Equal(clone))

	clone.Rows[0][1] = float64(0)
	clone.Columns[0] = "renamed"
	assert.Equal(t, float64(91), ds.Rows[0][1])
	assert.Equal(t, "name", ds.Columns[0])
	assert.False(t, ds.Equal(clone))
}

func TestDataset_EqualNormalizesNumericTypes(t *testing.T) {
	a := NewDataset("x")
	_ = a.AppendRow(1)
	b := NewDataset("x")
	_ = b.AppendRow(float64(1))
	assert.True(t, a.Equal(b), "int and float64 cells with equal values compare equal")

	var nilDS *Dataset
	assert.False(t, a.Equal(nil))
	assert.True(t, nilDS.Equal(nil))
}

func TestDataset_Head(t *testing.T) {
	ds := sample()
	head := ds.Head(2)
	assert.Equal(t, 2, head.NumRows())
	assert.Equal(t, 10, ds.Head(10).NumRows())

	head.Rows[0][0] = "mallory"
	assert.Equal(t, "alice", ds.Rows[0][0], "head is a copy")
}

func TestDataset_JSONWireShape(t *testing.T) {
	ds := NewDataset("x")
	_ = ds.AppendRow(float64(1))
	data, err := json.Marshal(ds)
	require.NoError(t, err)
	assert.JSONEq(t, `{"columns":["x"],"rows":[[1]]}`, string(data))

	var back Dataset
	require.NoError(t, json.Unmarshal(data, &back))
	assert.True(t, ds.Equal(&back))
}

func TestDataset_CloneRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		cols := rapid.IntRange(1, 4).Draw(t, "cols")
		ds := &Dataset{}
		for c := 0; c < cols; c++ {
			ds.Columns = append(ds.Columns, rapid.StringMatching(`[a-z]{1,8}`).Draw(t, "col"))
		}
		rows := rapid.IntRange(0, 10).Draw(t, "rows")
		for r := 0; r < rows; r++ {
			row := make([]any, cols)
			for c := 0; c < cols; c++ {
				row[c] = rapid.Float64Range(-1e6, 1e6).Draw(t, "cell")
			}
			ds.Rows = append(ds.Rows, row)
		}

		clone := ds.Clone()
		if !ds.Equal(clone) {
			t.Fatalf("clone not equal to original")
		}
		if len(clone.Rows) > 0 {
			clone.Rows[0][0] = clone.Rows[0][0].(float64) + 1
			if ds.Rows[0][0] == clone.Rows[0][0] {
				t.Fatalf("clone shares row storage with original")
			}
		}
	})
}

func TestSkillResult_Flags(t *testing.T) {
	var nilResult *SkillResult
	assert.False(t, nilResult.HasChart())
	assert.False(t, nilResult.HasDataFrame())

	result := &SkillResult{Success: true}
	assert.False(t, result.HasChart())
	result.Chart = &Chart{Kind: "line"}
	assert.True(t, result.HasChart())

	result.WithMetadata("k", "v").WithMetadata("n", 1)
	assert.Equal(t, "v", result.Metadata["k"])

	failed := FailedResult("boom")
	assert.False(t, failed.Success)
	assert.Equal(t, "boom", failed.Message)
}
