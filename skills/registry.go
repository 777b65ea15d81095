package skills

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/datamind-ai/datamind/internal/metrics"
	"github.com/datamind-ai/datamind/internal/pool"
	"github.com/datamind-ai/datamind/session"
	"github.com/datamind-ai/datamind/types"
)

// Stats tracks per-skill usage.
type Stats struct {
	Invocations int64         `json:"invocations"`
	Successes   int64         `json:"successes"`
	Failures    int64         `json:"failures"`
	AvgLatency  time.Duration `json:"avg_latency"`
}

// Registry manages skill registration and dispatch. Skill execution
// always happens on the worker pool so the orchestration loop never
// blocks on CPU-heavy or sandboxed work.
type Registry struct {
	skills    map[string]Skill
	fallbacks map[string]string
	stats     map[string]*Stats
	workers   *pool.WorkerPool
	collector *metrics.Collector
	tracer    trace.Tracer
	logger    *zap.Logger
	mu        sync.RWMutex
}

// NewRegistry creates a registry dispatching onto workers. collector
// may be nil.
func NewRegistry(workers *pool.WorkerPool, collector *metrics.Collector, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	if workers == nil {
		workers = pool.New(pool.DefaultConfig())
	}
	return &Registry{
		skills:    make(map[string]Skill),
		fallbacks: make(map[string]string),
		stats:     make(map[string]*Stats),
		workers:   workers,
		collector: collector,
		tracer:    otel.Tracer("datamind/skills"),
		logger:    logger.With(zap.String("component", "skill_registry")),
	}
}

// Register adds a skill. A name collision is never silent: the newer
// skill wins and the overwrite is logged.
func (r *Registry) Register(s Skill) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.skills[s.Name()]; exists {
		r.logger.Warn("skill name collision, newer registration wins",
			zap.String("skill", s.Name()))
	}
	r.skills[s.Name()] = s
	r.logger.Info("skill registered",
		zap.String("skill", s.Name()),
		zap.String("category", string(s.Category())),
		zap.Bool("exposed", s.ExposedToModel()))
}

// RegisterFallback designates the alternate to run when the primary
// reports a failed statistical precondition.
func (r *Registry) RegisterFallback(primary, alternate string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallbacks[primary] = alternate
}

// Get returns the named skill.
func (r *Registry) Get(name string) (Skill, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.skills[name]
	return s, ok
}

// List returns all skills sorted by name.
func (r *Registry) List() []Skill {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Skill, 0, len(r.skills))
	for _, s := range r.skills {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// ListExposed returns the skills the model may invoke directly.
func (r *Registry) ListExposed() []Skill {
	var out []Skill
	for _, s := range r.List() {
		if s.ExposedToModel() {
			out = append(out, s)
		}
	}
	return out
}

// Stats returns a copy of the named skill's usage counters.
func (r *Registry) Stats(name string) Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if s, ok := r.stats[name]; ok {
		return *s
	}
	return Stats{}
}

// Execute dispatches the named skill on a worker and converts every
// failure mode (unknown skill, handler error, panic) into a failed
// SkillResult rather than propagating.
func (r *Registry) Execute(ctx context.Context, name string, sess *session.Session, params map[string]any) *types.SkillResult {
	result, _ := r.execute(ctx, name, sess, params)
	return result
}

// ExecuteWithFallback behaves like Execute, but when the primary skill
// reports an unmet statistical precondition it transparently
// re-dispatches to the designated alternate. The result is always
// annotated with the fallback and its reason; a fallback is never
// hidden from the caller.
func (r *Registry) ExecuteWithFallback(ctx context.Context, name string, sess *session.Session, params map[string]any) *types.SkillResult {
	result, err := r.execute(ctx, name, sess, params)

	var precondition *PreconditionError
	if !errors.As(err, &precondition) {
		return result
	}

	r.mu.RLock()
	alternate, ok := r.fallbacks[name]
	r.mu.RUnlock()
	if !ok {
		return types.FailedResult(fmt.Sprintf(
			"%s preconditions not met (%s) and no fallback is registered", name, precondition.Reason))
	}

	r.logger.Info("statistical precondition failed, dispatching fallback",
		zap.String("primary", name),
		zap.String("fallback", alternate),
		zap.String("reason", precondition.Reason))

	result, _ = r.execute(ctx, alternate, sess, params)
	result.WithMetadata("fallback_from", name)
	result.WithMetadata("fallback_reason", precondition.Reason)
	if result.Success {
		result.Message = fmt.Sprintf("%s (fallback from %s: %s)", result.Message, name, precondition.Reason)
	}
	return result
}

// execute is the common dispatch path. The returned error is non-nil
// only for precondition failures, which ExecuteWithFallback inspects.
func (r *Registry) execute(ctx context.Context, name string, sess *session.Session, params map[string]any) (*types.SkillResult, error) {
	skill, ok := r.Get(name)
	if !ok {
		r.logger.Warn("unknown skill requested", zap.String("skill", name))
		return types.FailedResult("unknown skill: " + name), nil
	}

	ctx, span := r.tracer.Start(ctx, "skill.execute",
		trace.WithAttributes(
			attribute.String("skill.name", name),
			attribute.String("session.id", sess.ID),
		))
	defer span.End()

	start := time.Now()
	var result *types.SkillResult
	var execErr error

	// SubmitWait never returns while the closure is still running, so
	// the captured writes below are safe and the skill cannot outlive
	// the caller's hold on the session lane.
	submitErr := r.workers.SubmitWait(ctx, func(ctx context.Context) error {
		defer func() {
			if rec := recover(); rec != nil {
				r.logger.Error("skill panicked",
					zap.String("skill", name),
					zap.Any("panic", rec),
					zap.ByteString("stack", debug.Stack()))
				result = types.FailedResult(fmt.Sprintf("skill %s failed unexpectedly: %v", name, rec))
			}
		}()
		result, execErr = skill.Execute(ctx, sess, params)
		return nil
	})

	duration := time.Since(start)

	switch {
	case submitErr != nil:
		result = types.FailedResult(fmt.Sprintf("skill %s could not be scheduled: %v", name, submitErr))
		execErr = nil
	case execErr != nil:
		var precondition *PreconditionError
		if errors.As(execErr, &precondition) {
			// Returned to the caller for fallback handling; Execute
			// callers see it as a plain failure.
			result = types.FailedResult(precondition.Error())
			r.record(name, false, duration)
			return result, execErr
		}
		result = types.FailedResult(fmt.Sprintf("skill %s failed: %v", name, execErr))
		execErr = nil
	case result == nil:
		result = types.FailedResult(fmt.Sprintf("skill %s returned no result", name))
	}

	r.record(name, result.Success, duration)
	sess.RecordToolCall("", name, params, result.Success)
	return result, nil
}

func (r *Registry) record(name string, success bool, duration time.Duration) {
	r.mu.Lock()
	s, ok := r.stats[name]
	if !ok {
		s = &Stats{}
		r.stats[name] = s
	}
	s.Invocations++
	if success {
		s.Successes++
	} else {
		s.Failures++
	}
	s.AvgLatency = time.Duration((int64(s.AvgLatency)*(s.Invocations-1) + int64(duration)) / s.Invocations)
	r.mu.Unlock()

	if r.collector != nil {
		r.collector.ObserveSkill(name, success, duration)
	}
}
