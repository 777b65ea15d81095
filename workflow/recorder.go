package workflow

import (
	"fmt"

	"github.com/datamind-ai/datamind/session"
)

// Record distills a session's successful tool calls into a replayable
// template: one step per call with its literal parameters, chained
// sequentially. Failed calls are skipped — replaying a known-bad step
// is never useful.
func Record(sess *session.Session, name, description string) (*Template, error) {
	t := &Template{
		Name:        name,
		Description: description,
	}
	for _, call := range sess.ToolCalls {
		if !call.Success {
			continue
		}
		step := Step{
			ID:     fmt.Sprintf("step_%d", len(t.Steps)+1),
			Skill:  call.Skill,
			Params: call.Params,
		}
		if len(t.Steps) > 0 {
			step.DependsOn = []string{t.Steps[len(t.Steps)-1].ID}
		}
		t.Steps = append(t.Steps, step)
	}
	if len(t.Steps) == 0 {
		return nil, fmt.Errorf("session %s has no successful tool calls to record", sess.ID)
	}
	if err := Validate(t); err != nil {
		return nil, err
	}
	return t, nil
}
