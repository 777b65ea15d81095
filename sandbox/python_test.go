package sandbox

import (
	"context"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datamind-ai/datamind/types"
)

func TestPython_PolicyViolationFailsFast(t *testing.T) {
	// A nonexistent interpreter proves no subprocess is spawned: the
	// policy gate must reject before exec.
	e := NewPythonExecutor(PythonConfig{Bin: "/nonexistent/python3"}, nil, nil, nil)

	out := e.Execute(context.Background(), ExecRequest{Code: "import os\nos.system('ls')"})
	require.False(t, out.Success)
	assert.Contains(t, out.Error, "policy violation")
	assert.Contains(t, out.Error, "os")
}

func TestPython_MissingInterpreterReported(t *testing.T) {
	e := NewPythonExecutor(PythonConfig{Bin: "/nonexistent/python3"}, nil, nil, nil)

	out := e.Execute(context.Background(), ExecRequest{Code: "result = 1"})
	require.False(t, out.Success)
	assert.Contains(t, out.Error, "sandbox process failed")
}

// requirePython skips tests that need a real interpreter with pandas.
func requirePython(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("python3"); err != nil {
		t.Skip("python3 not installed")
	}
	if err := exec.Command("python3", "-c", "import pandas, numpy").Run(); err != nil {
		t.Skip("pandas/numpy not installed")
	}
}

func sampleDatasets() map[string]*types.Dataset {
	raw := types.NewDataset("x", "y")
	_ = raw.AppendRow(float64(1), float64(10))
	_ = raw.AppendRow(float64(2), float64(20))
	_ = raw.AppendRow(float64(3), float64(30))
	return map[string]*types.Dataset{"raw": raw}
}

func TestPython_Execute(t *testing.T) {
	requirePython(t)
	e := NewPythonExecutor(DefaultPythonConfig(), nil, nil, nil)

	out := e.Execute(context.Background(), ExecRequest{
		Code:      "print('hello')\nresult = int(df['x'].sum())",
		SessionID: "s1",
		Datasets:  sampleDatasets(),

		DatasetName: "raw",
	})
	require.True(t, out.Success, "error: %s", out.Error)
	assert.Contains(t, out.Stdout, "hello")
	assert.EqualValues(t, 6, out.Result)
	assert.Empty(t, out.Datasets, "no persistence requested")
}

func TestPython_PersistFlagIsSoleMutationGate(t *testing.T) {
	requirePython(t)
	e := NewPythonExecutor(DefaultPythonConfig(), nil, nil, nil)
	code := "df['z'] = df['x'] * 2"

	datasets := sampleDatasets()
	before := datasets["raw"].Clone()

	out := e.Execute(context.Background(), ExecRequest{
		Code: code, Datasets: datasets, DatasetName: "raw", PersistDataset: false,
	})
	require.True(t, out.Success, "error: %s", out.Error)
	_, mutated := out.Datasets["raw"]
	assert.False(t, mutated)
	assert.True(t, before.Equal(datasets["raw"]), "caller's dataset must be untouched")

	out = e.Execute(context.Background(), ExecRequest{
		Code: code, Datasets: datasets, DatasetName: "raw", PersistDataset: true,
	})
	require.True(t, out.Success, "error: %s", out.Error)
	updated, ok := out.Datasets["raw"]
	require.True(t, ok)
	assert.Contains(t, updated.Columns, "z")
	// The executor reports the mutation; it never applies it itself.
	assert.True(t, before.Equal(datasets["raw"]))
}

func TestPython_UserExceptionCaptured(t *testing.T) {
	requirePython(t)
	e := NewPythonExecutor(DefaultPythonConfig(), nil, nil, nil)

	out := e.Execute(context.Background(), ExecRequest{
		Code:     "x = 1\nraise ValueError('boom')",
		Datasets: sampleDatasets(), DatasetName: "raw", PersistDataset: true,
	})
	require.False(t, out.Success)
	assert.Contains(t, out.Error, "ValueError")
	assert.Contains(t, out.Error, "boom")
	assert.Empty(t, out.Datasets, "failed call must report no mutations")
}

func TestPython_CPUTimeLimitKills(t *testing.T) {
	requirePython(t)
	cfg := DefaultPythonConfig()
	cfg.CPUSeconds = 1
	cfg.Timeout = 30 * time.Second
	e := NewPythonExecutor(cfg, nil, nil, nil)

	out := e.Execute(context.Background(), ExecRequest{
		Code: "while True:\n    pass",
	})
	require.False(t, out.Success)
	assert.Contains(t, out.Error, "limit")
}

func TestPython_WallClockTimeout(t *testing.T) {
	requirePython(t)
	cfg := DefaultPythonConfig()
	cfg.Timeout = 2 * time.Second
	cfg.CPUSeconds = 60
	e := NewPythonExecutor(cfg, nil, nil, nil)

	out := e.Execute(context.Background(), ExecRequest{
		Code: "import datetime\nstart = datetime.datetime.now()\nwhile (datetime.datetime.now() - start).seconds < 30:\n    pass",
	})
	require.False(t, out.Success)
	assert.Contains(t, out.Error, "wall-clock")
}

func TestPython_DerivedOutputDataset(t *testing.T) {
	requirePython(t)
	e := NewPythonExecutor(DefaultPythonConfig(), nil, nil, nil)

	out := e.Execute(context.Background(), ExecRequest{
		Code:     "output_df = df[df['x'] > 1]",
		Datasets: sampleDatasets(), DatasetName: "raw",
	})
	require.True(t, out.Success, "error: %s", out.Error)
	derived, ok := out.Datasets["raw_derived"]
	require.True(t, ok)
	assert.Equal(t, 2, derived.NumRows())
}
