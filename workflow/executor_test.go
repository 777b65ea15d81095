package workflow

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datamind-ai/datamind/lane"
	"github.com/datamind-ai/datamind/session"
	"github.com/datamind-ai/datamind/types"
)

// scriptedRunner returns canned results per skill and records the call
// order.
type scriptedRunner struct {
	mu      sync.Mutex
	results map[string]*types.SkillResult
	calls   []string
	params  []map[string]any
}

func (r *scriptedRunner) ExecuteWithFallback(ctx context.Context, name string, sess *session.Session, params map[string]any) *types.SkillResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, name)
	r.params = append(r.params, params)
	if result, ok := r.results[name]; ok {
		copied := *result
		return &copied
	}
	return &types.SkillResult{Success: true, Message: name + " ok"}
}

// collectSink gathers events in order.
type collectSink struct {
	mu     sync.Mutex
	events []types.AgentEvent
}

func (s *collectSink) Emit(event types.AgentEvent) {
	s.mu.Lock()
	s.events = append(s.events, event)
	s.mu.Unlock()
}

func (s *collectSink) kinds() []types.EventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.EventType, len(s.events))
	for i, e := range s.events {
		out[i] = e.Type
	}
	return out
}

func TestExecutor_EmitsOrderedEvents(t *testing.T) {
	runner := &scriptedRunner{}
	e := NewExecutor(runner, lane.NewQueue(nil), nil, nil)
	sink := &collectSink{}
	sess := session.New()

	err := e.Run(context.Background(), analysisTemplate(), sess, nil, sink)
	require.NoError(t, err)

	assert.Equal(t, []string{"descriptive_stats", "t_test", "create_chart"}, runner.calls)
	assert.Equal(t, []types.EventType{
		types.EventToolCall, types.EventToolResult,
		types.EventToolCall, types.EventToolResult,
		types.EventToolCall, types.EventToolResult,
		types.EventDone,
	}, sink.kinds())

	for i, event := range sink.events {
		assert.Equal(t, int64(i+1), event.Seq, "seq must be gapless and ordered")
		assert.Equal(t, sess.ID, event.SessionID)
	}
}

func TestExecutor_HaltsOnFirstFailure(t *testing.T) {
	runner := &scriptedRunner{results: map[string]*types.SkillResult{
		"t_test": types.FailedResult("columns are not comparable"),
	}}
	e := NewExecutor(runner, lane.NewQueue(nil), nil, nil)
	sink := &collectSink{}

	err := e.Run(context.Background(), analysisTemplate(), session.New(), nil, sink)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "halted")

	// create_chart must never run after t_test failed.
	assert.Equal(t, []string{"descriptive_stats", "t_test"}, runner.calls)

	kinds := sink.kinds()
	require.NotEmpty(t, kinds)
	assert.Equal(t, types.EventDone, kinds[len(kinds)-1], "done is always terminal")
	assert.Contains(t, kinds, types.EventError)

	done := sink.events[len(sink.events)-1]
	payload, ok := done.Payload.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, false, payload["success"])
}

func TestExecutor_ResolvesReferences(t *testing.T) {
	runner := &scriptedRunner{results: map[string]*types.SkillResult{
		"descriptive_stats": {Success: true, Message: "n=20 mean=10.5"},
	}}
	e := NewExecutor(runner, lane.NewQueue(nil), nil, nil)
	sess := session.New()

	tpl := analysisTemplate()
	err := e.Run(context.Background(), tpl, sess, map[string]any{"dataset": "override"}, types.DiscardEvents)
	require.NoError(t, err)

	require.Len(t, runner.params, 3)
	assert.Equal(t, "override", runner.params[0]["dataset"], "overrides beat defaults")

	title, ok := runner.params[2]["title"].(string)
	require.True(t, ok)
	assert.Contains(t, title, sess.ID, "context.session_id resolved")
	assert.Contains(t, title, "t_test ok", "steps.compare.message resolved")
}

func TestExecutor_WholeStringReferenceKeepsType(t *testing.T) {
	runner := &scriptedRunner{}
	e := NewExecutor(runner, lane.NewQueue(nil), nil, nil)

	tpl := &Template{
		Name:     "typed",
		Defaults: map[string]any{"rows": 5},
		Steps: []Step{{
			ID: "preview", Skill: "preview_dataset",
			Params: map[string]any{"dataset": "raw", "rows": "${params.rows}"},
		}},
	}
	require.NoError(t, e.Run(context.Background(), tpl, session.New(), nil, types.DiscardEvents))
	require.Len(t, runner.params, 1)
	assert.Equal(t, 5, runner.params[0]["rows"], "whole-string reference keeps the int")
}

func TestExecutor_RejectsInvalidTemplateBeforeAnyStep(t *testing.T) {
	runner := &scriptedRunner{}
	e := NewExecutor(runner, lane.NewQueue(nil), nil, nil)

	tpl := analysisTemplate()
	tpl.Steps[0].Params["column"] = "${__import__('os')}"
	err := e.Run(context.Background(), tpl, session.New(), nil, types.DiscardEvents)
	require.Error(t, err)
	assert.Empty(t, runner.calls, "no step may run for a refused template")
}

func TestExecutor_ResultPayloadEventsEmitted(t *testing.T) {
	runner := &scriptedRunner{results: map[string]*types.SkillResult{
		"create_chart": {
			Success: true,
			Message: "chart built",
			Chart:   &types.Chart{Kind: "scatter"},
			Artifacts: []types.Artifact{
				{Name: "plot.png", Type: "image/png", Path: "/tmp/plot.png"},
			},
		},
	}}
	e := NewExecutor(runner, lane.NewQueue(nil), nil, nil)
	sink := &collectSink{}

	err := e.Run(context.Background(), analysisTemplate(), session.New(), nil, sink)
	require.NoError(t, err)
	kinds := sink.kinds()
	assert.Contains(t, kinds, types.EventChart)
	assert.Contains(t, kinds, types.EventArtifact)
}

// Replaying a template against two fresh sessions must produce the same
// skill invocations with the same parameters, session-scoped values
// aside.
func TestExecutor_DeterministicReplay(t *testing.T) {
	run := func() ([]string, []map[string]any) {
		runner := &scriptedRunner{}
		e := NewExecutor(runner, lane.NewQueue(nil), nil, nil)
		tpl := &Template{
			Name:     "replay",
			Defaults: map[string]any{"dataset": "raw"},
			Steps: []Step{
				{ID: "a", Skill: "descriptive_stats",
					Params: map[string]any{"dataset": "${params.dataset}", "column": "x"}},
				{ID: "b", Skill: "mann_whitney", DependsOn: []string{"a"},
					Params: map[string]any{"note": "${steps.a.message}"}},
			},
		}
		require.NoError(t, e.Run(context.Background(), tpl, session.New(), nil, types.DiscardEvents))
		return runner.calls, runner.params
	}

	calls1, params1 := run()
	calls2, params2 := run()
	assert.Equal(t, calls1, calls2)
	assert.Equal(t, params1, params2)
}

func TestRecord_DistillsSessionHistory(t *testing.T) {
	sess := session.New()
	sess.RecordToolCall("c1", "descriptive_stats", map[string]any{"dataset": "raw", "column": "x"}, true)
	sess.RecordToolCall("c2", "t_test", map[string]any{"dataset": "raw"}, false)
	sess.RecordToolCall("c3", "create_chart", map[string]any{"dataset": "raw", "kind": "bar", "y": "x"}, true)

	tpl, err := Record(sess, "recorded", "from chat")
	require.NoError(t, err)
	require.Len(t, tpl.Steps, 2, "failed calls are skipped")
	assert.Equal(t, "descriptive_stats", tpl.Steps[0].Skill)
	assert.Equal(t, "create_chart", tpl.Steps[1].Skill)
	assert.Equal(t, []string{"step_1"}, tpl.Steps[1].DependsOn)
	require.NoError(t, Validate(tpl))
}

func TestRecord_EmptyHistory(t *testing.T) {
	_, err := Record(session.New(), "empty", "")
	require.Error(t, err)
}

func ExampleValidate() {
	tpl := &Template{
		Name: "cyclic",
		Steps: []Step{
			{ID: "A", Skill: "list_datasets", DependsOn: []string{"B"}},
			{ID: "B", Skill: "list_datasets", DependsOn: []string{"A"}},
		},
	}
	fmt.Println(Validate(tpl) != nil)
	// Output: true
}
