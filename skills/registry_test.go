package skills

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/datamind-ai/datamind/internal/pool"
	"github.com/datamind-ai/datamind/session"
	"github.com/datamind-ai/datamind/types"
)

func testSkill(name string, handler func(ctx context.Context, sess *session.Session, params map[string]any) (*types.SkillResult, error)) Skill {
	return &funcSkill{
		name:       name,
		parameters: json.RawMessage(`{"type":"object"}`),
		category:   CategoryData,
		exposed:    true,
		handler:    handler,
	}
}

func okSkill(name, message string) Skill {
	return testSkill(name, func(ctx context.Context, sess *session.Session, params map[string]any) (*types.SkillResult, error) {
		return &types.SkillResult{Success: true, Message: message}, nil
	})
}

func TestRegistry_ExecuteUnknownSkill(t *testing.T) {
	r := NewRegistry(nil, nil, nil)
	sess := session.New()

	result := r.Execute(context.Background(), "no_such_skill", sess, nil)
	require.False(t, result.Success)
	assert.Contains(t, result.Message, "unknown skill")
}

func TestRegistry_DuplicateRegistrationWarnsAndWins(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	r := NewRegistry(nil, nil, zap.New(core))

	r.Register(okSkill("dup", "first"))
	r.Register(okSkill("dup", "second"))

	result := r.Execute(context.Background(), "dup", session.New(), nil)
	require.True(t, result.Success)
	assert.Equal(t, "second", result.Message)
	assert.Equal(t, 1, logs.FilterMessage("skill name collision, newer registration wins").Len())
}

func TestRegistry_PanicBecomesFailedResult(t *testing.T) {
	r := NewRegistry(nil, nil, nil)
	r.Register(testSkill("boom", func(ctx context.Context, sess *session.Session, params map[string]any) (*types.SkillResult, error) {
		panic("kaboom")
	}))

	result := r.Execute(context.Background(), "boom", session.New(), nil)
	require.False(t, result.Success)
	assert.Contains(t, result.Message, "kaboom")
}

func TestRegistry_HandlerErrorBecomesFailedResult(t *testing.T) {
	r := NewRegistry(nil, nil, nil)
	r.Register(testSkill("bad", func(ctx context.Context, sess *session.Session, params map[string]any) (*types.SkillResult, error) {
		return nil, errors.New("disk on fire")
	}))

	result := r.Execute(context.Background(), "bad", session.New(), nil)
	require.False(t, result.Success)
	assert.Contains(t, result.Message, "disk on fire")
}

func TestRegistry_FallbackAnnotated(t *testing.T) {
	r := NewRegistry(nil, nil, nil)
	r.Register(testSkill("primary", func(ctx context.Context, sess *session.Session, params map[string]any) (*types.SkillResult, error) {
		return nil, &PreconditionError{Reason: "sample too skewed"}
	}))
	r.Register(okSkill("alternate", "alternate ran"))
	r.RegisterFallback("primary", "alternate")

	result := r.ExecuteWithFallback(context.Background(), "primary", session.New(), nil)
	require.True(t, result.Success)
	assert.Equal(t, "primary", result.Metadata["fallback_from"])
	assert.Equal(t, "sample too skewed", result.Metadata["fallback_reason"])
	assert.Contains(t, result.Message, "fallback from primary")
}

func TestRegistry_NoFallbackRegistered(t *testing.T) {
	r := NewRegistry(nil, nil, nil)
	r.Register(testSkill("primary", func(ctx context.Context, sess *session.Session, params map[string]any) (*types.SkillResult, error) {
		return nil, &PreconditionError{Reason: "not normal"}
	}))

	result := r.ExecuteWithFallback(context.Background(), "primary", session.New(), nil)
	require.False(t, result.Success)
	assert.Contains(t, result.Message, "no fallback is registered")
}

func TestRegistry_PlainExecuteHidesNoFallbackMachinery(t *testing.T) {
	r := NewRegistry(nil, nil, nil)
	r.Register(testSkill("primary", func(ctx context.Context, sess *session.Session, params map[string]any) (*types.SkillResult, error) {
		return nil, &PreconditionError{Reason: "not normal"}
	}))

	// Execute (without fallback) surfaces the precondition as a plain
	// failed result.
	result := r.Execute(context.Background(), "primary", session.New(), nil)
	require.False(t, result.Success)
	assert.Contains(t, result.Message, "precondition not met")
}

func TestRegistry_StatsAndToolCallRecording(t *testing.T) {
	r := NewRegistry(nil, nil, nil)
	r.Register(okSkill("fine", "ok"))
	r.Register(testSkill("broken", func(ctx context.Context, sess *session.Session, params map[string]any) (*types.SkillResult, error) {
		return types.FailedResult("nope"), nil
	}))
	sess := session.New()

	r.Execute(context.Background(), "fine", sess, nil)
	r.Execute(context.Background(), "fine", sess, nil)
	r.Execute(context.Background(), "broken", sess, nil)

	fine := r.Stats("fine")
	assert.EqualValues(t, 2, fine.Invocations)
	assert.EqualValues(t, 2, fine.Successes)
	broken := r.Stats("broken")
	assert.EqualValues(t, 1, broken.Failures)

	require.Len(t, sess.ToolCalls, 3)
	assert.Equal(t, "fine", sess.ToolCalls[0].Skill)
	assert.True(t, sess.ToolCalls[0].Success)
	assert.False(t, sess.ToolCalls[2].Success)
}

func TestRegistry_CancelledCallerWaitsForRunningSkill(t *testing.T) {
	r := NewRegistry(pool.New(pool.Config{MaxWorkers: 1, QueueSize: 2}), nil, nil)
	started := make(chan struct{})
	release := make(chan struct{})
	var finished atomic.Bool
	r.Register(testSkill("slow", func(ctx context.Context, sess *session.Session, params map[string]any) (*types.SkillResult, error) {
		close(started)
		<-release
		finished.Store(true)
		return &types.SkillResult{Success: true, Message: "done late"}, nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan *types.SkillResult, 1)
	go func() { done <- r.Execute(ctx, "slow", session.New(), nil) }()

	// Cancelling the caller must not abandon a skill that is already
	// executing: it would keep mutating session state after the lane
	// has been handed to the next invocation.
	<-started
	cancel()
	select {
	case <-done:
		t.Fatal("Execute returned while the skill was still running")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	result := <-done
	assert.True(t, finished.Load())
	require.True(t, result.Success)
	assert.Equal(t, "done late", result.Message)
}

func TestRegistry_CancelledBeforeDispatchFailsCleanly(t *testing.T) {
	workers := pool.New(pool.Config{MaxWorkers: 1, QueueSize: 2})
	r := NewRegistry(workers, nil, nil)
	started := make(chan struct{})
	release := make(chan struct{})
	r.Register(testSkill("blocker", func(ctx context.Context, sess *session.Session, params map[string]any) (*types.SkillResult, error) {
		close(started)
		<-release
		return &types.SkillResult{Success: true}, nil
	}))
	r.Register(okSkill("starved", "ran"))

	go r.Execute(context.Background(), "blocker", session.New(), nil)
	<-started

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	result := r.Execute(ctx, "starved", session.New(), nil)
	require.False(t, result.Success)
	assert.Contains(t, result.Message, "could not be scheduled")
	close(release)
}

func TestRegistry_ListExposed(t *testing.T) {
	r := NewRegistry(nil, nil, nil)
	r.Register(okSkill("b_public", "ok"))
	r.Register(&funcSkill{name: "a_internal", category: CategoryData, handler: nil})

	exposed := r.ListExposed()
	require.Len(t, exposed, 1)
	assert.Equal(t, "b_public", exposed[0].Name())

	all := r.List()
	require.Len(t, all, 2)
	assert.Equal(t, "a_internal", all[0].Name(), "List is sorted by name")
}
