package datamind_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	datamind "github.com/datamind-ai/datamind"
	"github.com/datamind-ai/datamind/config"
	"github.com/datamind-ai/datamind/types"
	"github.com/datamind-ai/datamind/workflow"
)

type sinkRecorder struct {
	mu     sync.Mutex
	events []types.AgentEvent
}

func (s *sinkRecorder) Emit(event types.AgentEvent) {
	s.mu.Lock()
	s.events = append(s.events, event)
	s.mu.Unlock()
}

func (s *sinkRecorder) kinds() []types.EventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.EventType, len(s.events))
	for i, e := range s.events {
		out[i] = e.Type
	}
	return out
}

func newTestEngine(t *testing.T) *datamind.Engine {
	t.Helper()
	cfg := config.Default()
	cfg.Store.DSN = ":memory:"
	engine, err := datamind.New(cfg, nil)
	require.NoError(t, err)
	t.Cleanup(engine.Close)
	return engine
}

func seedSession(t *testing.T, engine *datamind.Engine) string {
	t.Helper()
	sess := engine.CreateSession(nil)
	ds := types.NewDataset("x", "y")
	for i := 1; i <= 20; i++ {
		require.NoError(t, ds.AppendRow(float64(i), float64(i)*2))
	}
	sess.SetDataset("raw", ds)
	return sess.ID
}

func TestEngine_ExecuteSkillStreamsEvents(t *testing.T) {
	engine := newTestEngine(t)
	sessionID := seedSession(t, engine)
	sink := &sinkRecorder{}

	result, err := engine.ExecuteSkill(context.Background(), sessionID, "descriptive_stats",
		map[string]any{"dataset": "raw", "column": "x"}, sink)
	require.NoError(t, err)
	require.True(t, result.Success, result.Message)

	kinds := sink.kinds()
	require.Len(t, kinds, 2)
	assert.Equal(t, types.EventToolCall, kinds[0])
	assert.Equal(t, types.EventToolResult, kinds[1])
	assert.Equal(t, "descriptive_stats", sink.events[0].ToolName)
	assert.Equal(t, sink.events[0].ToolCallID, sink.events[1].ToolCallID)
}

func TestEngine_UnknownSessionRejected(t *testing.T) {
	engine := newTestEngine(t)
	_, err := engine.ExecuteSkill(context.Background(), "ghost", "list_datasets", nil, nil)
	require.Error(t, err)
}

func TestEngine_SkillFailureIsResultNotError(t *testing.T) {
	engine := newTestEngine(t)
	sessionID := seedSession(t, engine)
	sink := &sinkRecorder{}

	result, err := engine.ExecuteSkill(context.Background(), sessionID, "descriptive_stats",
		map[string]any{"dataset": "ghost", "column": "x"}, sink)
	require.NoError(t, err)
	require.False(t, result.Success)
	assert.Contains(t, sink.kinds(), types.EventError)
}

func TestEngine_RecordAndReplayWorkflow(t *testing.T) {
	engine := newTestEngine(t)
	sessionID := seedSession(t, engine)

	for _, call := range []struct {
		skill  string
		params map[string]any
	}{
		{"descriptive_stats", map[string]any{"dataset": "raw", "column": "x"}},
		{"correlation", map[string]any{"dataset": "raw", "column_a": "x", "column_b": "y"}},
		{"create_chart", map[string]any{"dataset": "raw", "kind": "scatter", "x": "x", "y": "y"}},
	} {
		result, err := engine.ExecuteSkill(context.Background(), sessionID, call.skill, call.params, nil)
		require.NoError(t, err)
		require.True(t, result.Success, "%s: %s", call.skill, result.Message)
	}

	tpl, err := engine.RecordWorkflow(sessionID, "captured analysis", "recorded from session")
	require.NoError(t, err)
	require.Len(t, tpl.Steps, 3)

	loaded, err := engine.Workflows().Get(tpl.ID)
	require.NoError(t, err)
	assert.Equal(t, tpl.Name, loaded.Name)

	// Replay against a fresh session with the same input data.
	replayID := seedSession(t, engine)
	sink := &sinkRecorder{}
	require.NoError(t, engine.RunWorkflow(context.Background(), replayID, tpl.ID, nil, sink))

	kinds := sink.kinds()
	assert.Equal(t, types.EventDone, kinds[len(kinds)-1])
	assert.Contains(t, kinds, types.EventChart)
}

func TestEngine_RunWorkflowUnknownTemplate(t *testing.T) {
	engine := newTestEngine(t)
	sessionID := seedSession(t, engine)
	err := engine.RunWorkflow(context.Background(), sessionID, "ghost", nil, nil)
	require.Error(t, err)
}

func TestEngine_SessionLifecycleEvents(t *testing.T) {
	engine := newTestEngine(t)
	sink := &sinkRecorder{}

	sess := engine.CreateSession(sink)
	engine.CloseSession(context.Background(), sess.ID, sink)

	kinds := sink.kinds()
	require.Len(t, kinds, 2)
	assert.Equal(t, types.EventSessionStart, kinds[0])
	assert.Equal(t, types.EventSessionEnd, kinds[1])

	_, err := engine.Sessions().Get(sess.ID)
	require.Error(t, err)
}

func TestEngine_WorkflowValidationGuardsReplay(t *testing.T) {
	engine := newTestEngine(t)

	err := engine.Workflows().Save(&workflow.Template{
		Name: "cyclic",
		Steps: []workflow.Step{
			{ID: "A", Skill: "list_datasets", DependsOn: []string{"B"}},
			{ID: "B", Skill: "list_datasets", DependsOn: []string{"A"}},
		},
	})
	require.Error(t, err, "cyclic template must be refused at save time")
}
