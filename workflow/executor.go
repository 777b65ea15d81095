package workflow

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/datamind-ai/datamind/internal/metrics"
	"github.com/datamind-ai/datamind/lane"
	"github.com/datamind-ai/datamind/session"
	"github.com/datamind-ai/datamind/types"
)

// SkillRunner is the slice of the skill registry the executor needs.
type SkillRunner interface {
	ExecuteWithFallback(ctx context.Context, name string, sess *session.Session, params map[string]any) *types.SkillResult
}

// Executor replays validated templates through the skill registry. Each
// run holds the session's lane for its whole duration, so a replay and
// a live tool call can never interleave on the same session.
type Executor struct {
	registry  SkillRunner
	lanes     *lane.Queue
	collector *metrics.Collector
	tracer    trace.Tracer
	logger    *zap.Logger
}

// NewExecutor creates a workflow executor. collector may be nil.
func NewExecutor(registry SkillRunner, lanes *lane.Queue, collector *metrics.Collector, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{
		registry:  registry,
		lanes:     lanes,
		collector: collector,
		tracer:    otel.Tracer("datamind/workflow"),
		logger:    logger.With(zap.String("component", "workflow_executor")),
	}
}

// emitter assigns per-run sequence numbers so the sink sees a totally
// ordered stream for the session.
type emitter struct {
	sink      types.EventSink
	sessionID string
	turnID    string
	seq       int64
}

func (e *emitter) emit(eventType types.EventType, toolCallID, toolName string, payload any) {
	e.seq++
	e.sink.Emit(types.AgentEvent{
		Type:       eventType,
		SessionID:  e.sessionID,
		TurnID:     e.turnID,
		ToolCallID: toolCallID,
		ToolName:   toolName,
		Seq:        e.seq,
		Timestamp:  time.Now(),
		Payload:    payload,
	})
}

// Run validates the template and executes its steps in dependency
// order, emitting the same event contract as live skill execution. On
// the first failed step the run halts, emits an error event and the
// terminal done event, and returns the step's failure.
func (e *Executor) Run(ctx context.Context, t *Template, sess *session.Session, overrides map[string]any, sink types.EventSink) error {
	if sink == nil {
		sink = types.DiscardEvents
	}
	if err := Validate(t); err != nil {
		return err
	}

	ctx, span := e.tracer.Start(ctx, "workflow.run",
		trace.WithAttributes(
			attribute.String("workflow.id", t.ID),
			attribute.String("session.id", sess.ID),
		))
	defer span.End()

	runID := uuid.NewString()
	em := &emitter{sink: sink, sessionID: sess.ID, turnID: runID}
	params := mergedParams(t.Defaults, overrides)
	refCtx := map[string]any{
		"session_id":  sess.ID,
		"workflow_id": t.ID,
		"run_id":      runID,
	}

	e.logger.Info("workflow run starting",
		zap.String("workflow", t.Name),
		zap.String("session_id", sess.ID),
		zap.Int("steps", len(t.Steps)))

	err := e.lanes.Execute(ctx, sess.ID, func(ctx context.Context) error {
		outputs := make(map[string]map[string]any, len(t.Steps))
		for _, stepID := range executionOrder(t) {
			step, _ := t.step(stepID)
			if err := ctx.Err(); err != nil {
				return err
			}

			stepParams, err := resolveParams(step.Params, params, outputs, refCtx)
			if err != nil {
				em.emit(types.EventError, "", step.Skill, map[string]any{
					"step": step.ID, "error": err.Error(),
				})
				return err
			}

			callID := uuid.NewString()
			em.emit(types.EventToolCall, callID, step.Skill, map[string]any{
				"step": step.ID, "params": stepParams,
			})

			result := e.registry.ExecuteWithFallback(ctx, step.Skill, sess, stepParams)
			em.emit(types.EventToolResult, callID, step.Skill, result)
			emitResultEvents(em, callID, step.Skill, result)

			if !result.Success {
				em.emit(types.EventError, callID, step.Skill, map[string]any{
					"step": step.ID, "error": result.Message,
				})
				return fmt.Errorf("workflow %q halted: step %q failed: %s", t.Name, step.ID, result.Message)
			}

			outputs[step.ID] = map[string]any{
				"message": result.Message,
				"data":    result.Data,
				"success": result.Success,
			}
		}
		return nil
	})

	em.emit(types.EventDone, "", "", map[string]any{"workflow_id": t.ID, "success": err == nil})
	if e.collector != nil {
		e.collector.ObserveWorkflow(err == nil)
	}
	if err != nil {
		e.logger.Warn("workflow run failed",
			zap.String("workflow", t.Name),
			zap.Error(err))
	}
	return err
}

// emitResultEvents fans a result's optional payloads out into their
// dedicated event kinds, matching what live execution emits.
func emitResultEvents(em *emitter, callID, skill string, result *types.SkillResult) {
	if result.HasChart() {
		em.emit(types.EventChart, callID, skill, result.Chart)
	}
	if result.HasDataFrame() {
		em.emit(types.EventData, callID, skill, result.DataFrame)
	}
	for _, artifact := range result.Artifacts {
		em.emit(types.EventArtifact, callID, skill, artifact)
	}
}

// ResultEvents converts one live skill result into its event sequence,
// shared with the replay path so both are observationally identical.
func ResultEvents(sink types.EventSink, sessionID, turnID, callID, skill string, result *types.SkillResult, seq *int64) {
	em := &emitter{sink: sink, sessionID: sessionID, turnID: turnID, seq: *seq}
	em.emit(types.EventToolResult, callID, skill, result)
	emitResultEvents(em, callID, skill, result)
	if !result.Success {
		em.emit(types.EventError, callID, skill, map[string]any{"error": result.Message})
	}
	*seq = em.seq
}

// mergedParams layers caller overrides over template defaults.
func mergedParams(defaults, overrides map[string]any) map[string]any {
	merged := make(map[string]any, len(defaults)+len(overrides))
	for k, v := range defaults {
		merged[k] = v
	}
	for k, v := range overrides {
		merged[k] = v
	}
	return merged
}

// resolveParams substitutes ${...} references in a step's parameters.
// A string that is exactly one reference keeps the referenced value's
// type; embedded references are interpolated as text. Validation has
// already confined every reference to the permitted namespaces.
func resolveParams(raw, params map[string]any, outputs map[string]map[string]any, refCtx map[string]any) (map[string]any, error) {
	resolved := make(map[string]any, len(raw))
	for k, v := range raw {
		rv, err := resolveValue(v, params, outputs, refCtx)
		if err != nil {
			return nil, err
		}
		resolved[k] = rv
	}
	return resolved, nil
}

func resolveValue(v any, params map[string]any, outputs map[string]map[string]any, refCtx map[string]any) (any, error) {
	switch vv := v.(type) {
	case string:
		return resolveString(vv, params, outputs, refCtx)
	case map[string]any:
		return resolveParams(vv, params, outputs, refCtx)
	case []any:
		out := make([]any, len(vv))
		for i, inner := range vv {
			rv, err := resolveValue(inner, params, outputs, refCtx)
			if err != nil {
				return nil, err
			}
			out[i] = rv
		}
		return out, nil
	default:
		return v, nil
	}
}

func resolveString(s string, params map[string]any, outputs map[string]map[string]any, refCtx map[string]any) (any, error) {
	// Whole-string reference: preserve the referenced value's type.
	if m := refPattern.FindStringSubmatch(s); m != nil && m[0] == s {
		return lookupRef(m[1], params, outputs, refCtx)
	}
	var resolveErr error
	out := refPattern.ReplaceAllStringFunc(s, func(match string) string {
		ref := match[2 : len(match)-1]
		val, err := lookupRef(ref, params, outputs, refCtx)
		if err != nil {
			resolveErr = err
			return match
		}
		return fmt.Sprint(val)
	})
	if resolveErr != nil {
		return nil, resolveErr
	}
	return out, nil
}

func lookupRef(ref string, params map[string]any, outputs map[string]map[string]any, refCtx map[string]any) (any, error) {
	switch {
	case strings.HasPrefix(ref, "params."):
		name := strings.TrimPrefix(ref, "params.")
		if v, ok := params[name]; ok {
			return v, nil
		}
		return nil, fmt.Errorf("parameter %q has no value", name)
	case strings.HasPrefix(ref, "context."):
		key := strings.TrimPrefix(ref, "context.")
		if v, ok := refCtx[key]; ok {
			return v, nil
		}
		return nil, fmt.Errorf("context key %q has no value", key)
	case strings.HasPrefix(ref, "steps."):
		rest := strings.TrimPrefix(ref, "steps.")
		dot := strings.LastIndex(rest, ".")
		stepID, field := rest[:dot], rest[dot+1:]
		out, ok := outputs[stepID]
		if !ok {
			return nil, fmt.Errorf("step %q has not produced output yet", stepID)
		}
		return out[field], nil
	default:
		return nil, fmt.Errorf("reference ${%s} resolves outside the permitted namespaces", ref)
	}
}
