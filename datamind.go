// Package datamind wires the execution core together: policy-gated
// sandboxes, the skill registry, per-session lanes, and the workflow
// template engine, behind one Engine facade.
//
// Usage:
//
//	engine, err := datamind.New(config.Default(), logger)
//	sess := engine.CreateSession()
//	result := engine.ExecuteSkill(ctx, sess.ID, "descriptive_stats", params, sink)
package datamind

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/datamind-ai/datamind/config"
	"github.com/datamind-ai/datamind/internal/metrics"
	"github.com/datamind-ai/datamind/internal/pool"
	"github.com/datamind-ai/datamind/lane"
	"github.com/datamind-ai/datamind/sandbox"
	"github.com/datamind-ai/datamind/session"
	"github.com/datamind-ai/datamind/skills"
	"github.com/datamind-ai/datamind/types"
	"github.com/datamind-ai/datamind/workflow"
)

// Engine is the composition root the transport layer talks to. Every
// public method is safe for concurrent use; per-session ordering is
// enforced by the lane queue, never by the caller.
type Engine struct {
	cfg       *config.Config
	logger    *zap.Logger
	promReg   *prometheus.Registry
	collector *metrics.Collector
	workers   *pool.WorkerPool
	lanes     *lane.Queue
	sessions  *session.Manager
	registry  *skills.Registry
	workflows *workflow.Executor
	store     *workflow.Store
}

// New builds a fully wired engine from the config.
func New(cfg *config.Config, logger *zap.Logger) (*Engine, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	promReg := prometheus.NewRegistry()
	var collector *metrics.Collector
	if cfg.Metrics.Enabled {
		collector = metrics.NewCollector(cfg.Metrics.Namespace, promReg)
	}

	workers := pool.New(cfg.Pool)
	lanes := lane.NewQueue(logger)
	if collector != nil {
		lanes.SetWaitObserver(collector.ObserveLaneWait)
	}

	var cache *session.RedisCache
	if cfg.Redis.Enabled {
		var err error
		cache, err = session.NewRedisCache(cfg.Redis.CacheConfig(), logger)
		if err != nil {
			return nil, fmt.Errorf("session cache: %w", err)
		}
	}
	sessions := session.NewManager(cache, logger)

	// One spawn limiter shared by both sandboxes keeps subprocess churn
	// bounded across languages.
	limiter := rate.NewLimiter(rate.Every(100*time.Millisecond), 4)
	python := sandbox.NewPythonExecutor(cfg.Sandbox.Python, limiter, collector, logger)
	rExec := sandbox.NewHybridRExecutor(cfg.Sandbox.R, limiter, collector, logger)

	registry := skills.NewRegistry(workers, collector, logger)
	skills.RegisterBuiltins(registry, python, rExec)

	store, err := workflow.NewStore(cfg.Store, logger)
	if err != nil {
		return nil, fmt.Errorf("workflow store: %w", err)
	}

	return &Engine{
		cfg:       cfg,
		logger:    logger.With(zap.String("component", "engine")),
		promReg:   promReg,
		collector: collector,
		workers:   workers,
		lanes:     lanes,
		sessions:  sessions,
		registry:  registry,
		workflows: workflow.NewExecutor(registry, lanes, collector, logger),
		store:     store,
	}, nil
}

// Skills exposes the registry for capability discovery.
func (e *Engine) Skills() *skills.Registry { return e.registry }

// Workflows exposes the template store.
func (e *Engine) Workflows() *workflow.Store { return e.store }

// Sessions exposes the session manager.
func (e *Engine) Sessions() *session.Manager { return e.sessions }

// MetricsGatherer exposes the engine's Prometheus registry for the
// transport layer to serve.
func (e *Engine) MetricsGatherer() prometheus.Gatherer { return e.promReg }

// CreateSession starts a new empty session and emits its start event.
func (e *Engine) CreateSession(sink types.EventSink) *session.Session {
	sess := e.sessions.Create()
	if sink != nil {
		sink.Emit(types.AgentEvent{
			Type:      types.EventSessionStart,
			SessionID: sess.ID,
			Seq:       1,
			Timestamp: time.Now(),
		})
	}
	return sess
}

// CloseSession tears a session down: lane, in-memory state, snapshot.
func (e *Engine) CloseSession(ctx context.Context, sessionID string, sink types.EventSink) {
	e.sessions.Remove(ctx, sessionID)
	e.lanes.Remove(sessionID)
	if sink != nil {
		sink.Emit(types.AgentEvent{
			Type:      types.EventSessionEnd,
			SessionID: sessionID,
			Seq:       1,
			Timestamp: time.Now(),
		})
	}
}

// ExecuteSkill runs one skill under the session's lane and streams the
// resulting events to the sink. Skill-level failures come back as a
// failed result, not an error; the error covers session lookup and
// cancellation only.
func (e *Engine) ExecuteSkill(ctx context.Context, sessionID, name string, params map[string]any, sink types.EventSink) (*types.SkillResult, error) {
	sess, err := e.sessions.Get(sessionID)
	if err != nil {
		return nil, err
	}
	if sink == nil {
		sink = types.DiscardEvents
	}

	var result *types.SkillResult
	err = e.lanes.Execute(ctx, sessionID, func(ctx context.Context) error {
		callID := uuid.NewString()
		var seq int64
		seq++
		sink.Emit(types.AgentEvent{
			Type:       types.EventToolCall,
			SessionID:  sessionID,
			ToolCallID: callID,
			ToolName:   name,
			Seq:        seq,
			Timestamp:  time.Now(),
			Payload:    map[string]any{"params": params},
		})

		result = e.registry.ExecuteWithFallback(ctx, name, sess, params)
		workflow.ResultEvents(sink, sessionID, "", callID, name, result, &seq)
		e.sessions.Snapshot(ctx, sess)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// RunWorkflow loads a stored template and replays it against the
// session, emitting the same event stream as live execution.
func (e *Engine) RunWorkflow(ctx context.Context, sessionID, templateID string, overrides map[string]any, sink types.EventSink) error {
	sess, err := e.sessions.Get(sessionID)
	if err != nil {
		return err
	}
	tpl, err := e.store.Get(templateID)
	if err != nil {
		return err
	}
	if err := e.workflows.Run(ctx, tpl, sess, overrides, sink); err != nil {
		return err
	}
	e.sessions.Snapshot(ctx, sess)
	return nil
}

// RecordWorkflow distills the session's successful tool calls into a
// stored, replayable template and returns it.
func (e *Engine) RecordWorkflow(sessionID, name, description string) (*workflow.Template, error) {
	sess, err := e.sessions.Get(sessionID)
	if err != nil {
		return nil, err
	}
	tpl, err := workflow.Record(sess, name, description)
	if err != nil {
		return nil, err
	}
	if err := e.store.Save(tpl); err != nil {
		return nil, err
	}
	return tpl, nil
}

// Close releases the worker pool. Sessions and lanes need no teardown
// beyond garbage collection.
func (e *Engine) Close() {
	e.workers.Close()
	e.logger.Info("engine closed")
}
