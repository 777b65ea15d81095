// Package skills defines the capability contract of the execution core
// and the registry that dispatches it.
//
// A Skill is an immutable descriptor plus an execute function; the
// Registry is a name-to-implementation map with worker offload,
// last-write-wins registration, and assumption-check fallback chains
// for statistical skills.
package skills

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/datamind-ai/datamind/session"
	"github.com/datamind-ai/datamind/types"
)

// Category groups skills for discovery.
type Category string

const (
	CategoryCode  Category = "code"
	CategoryStats Category = "stats"
	CategoryChart Category = "chart"
	CategoryData  Category = "data"
)

// Skill is one named, schema-described unit of capability invokable by
// the model or a workflow.
type Skill interface {
	// Name is the unique key within a registry.
	Name() string
	// Description is shown to the model when the skill is exposed.
	Description() string
	// Parameters is the JSON-schema-shaped parameter contract.
	Parameters() json.RawMessage
	// Category tags the skill for discovery.
	Category() Category
	// Idempotent reports whether re-running with the same parameters
	// is safe.
	Idempotent() bool
	// ExposedToModel reports whether the model may call this skill
	// directly; internal skills remain workflow-only.
	ExposedToModel() bool
	// Execute runs the skill against exactly one session. It is always
	// invoked on a worker, never on the orchestration loop.
	Execute(ctx context.Context, sess *session.Session, params map[string]any) (*types.SkillResult, error)
}

// PreconditionError signals that a skill's statistical preconditions
// are not met and a registered fallback should run instead. It is the
// only error the registry treats as retryable-with-alternate.
type PreconditionError struct {
	Reason string
}

// Error implements the error interface.
func (e *PreconditionError) Error() string {
	return "precondition not met: " + e.Reason
}

// funcSkill is the standard Skill implementation: a descriptor plus a
// handler function.
type funcSkill struct {
	name        string
	description string
	parameters  json.RawMessage
	category    Category
	idempotent  bool
	exposed     bool
	handler     func(ctx context.Context, sess *session.Session, params map[string]any) (*types.SkillResult, error)
}

func (s *funcSkill) Name() string                { return s.name }
func (s *funcSkill) Description() string         { return s.description }
func (s *funcSkill) Parameters() json.RawMessage { return s.parameters }
func (s *funcSkill) Category() Category          { return s.category }
func (s *funcSkill) Idempotent() bool            { return s.idempotent }
func (s *funcSkill) ExposedToModel() bool        { return s.exposed }

func (s *funcSkill) Execute(ctx context.Context, sess *session.Session, params map[string]any) (*types.SkillResult, error) {
	return s.handler(ctx, sess, params)
}

// param helpers shared by the built-in skills.

func stringParam(params map[string]any, key string) (string, error) {
	v, ok := params[key]
	if !ok {
		return "", fmt.Errorf("missing required parameter: %s", key)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("parameter %s must be a string, got %T", key, v)
	}
	return s, nil
}

func optionalStringParam(params map[string]any, key, fallback string) string {
	if v, ok := params[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return fallback
}

func boolParam(params map[string]any, key string) bool {
	if v, ok := params[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return false
}

func intParam(params map[string]any, key string, fallback int) int {
	switch v := params[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return fallback
	}
}
