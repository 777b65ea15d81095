// Package workflow implements declarative, replayable skill pipelines:
// templates of dependency-ordered steps validated up front (reference
// namespaces, cycles) and executed through the skill registry under the
// session's lane, emitting the same event stream as a live run.
package workflow

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Step is one unit of a template: a skill invocation with literal or
// referenced parameters and explicit dependencies.
type Step struct {
	ID        string         `yaml:"id" json:"id"`
	Skill     string         `yaml:"skill" json:"skill"`
	Params    map[string]any `yaml:"params,omitempty" json:"params,omitempty"`
	DependsOn []string       `yaml:"depends_on,omitempty" json:"depends_on,omitempty"`
}

// Template is an ordered list of steps plus template-level defaults.
// Once validated, a template is replayed read-only; the executor never
// mutates it.
type Template struct {
	ID          string         `yaml:"id" json:"id"`
	Name        string         `yaml:"name" json:"name"`
	Description string         `yaml:"description,omitempty" json:"description,omitempty"`
	Defaults    map[string]any `yaml:"defaults,omitempty" json:"defaults,omitempty"`
	Steps       []Step         `yaml:"steps" json:"steps"`
}

// ParseYAML decodes and validates a template.
func ParseYAML(data []byte) (*Template, error) {
	var t Template
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("workflow yaml: %w", err)
	}
	if err := Validate(&t); err != nil {
		return nil, err
	}
	return &t, nil
}

// EncodeYAML serializes a template.
func EncodeYAML(t *Template) ([]byte, error) {
	return yaml.Marshal(t)
}

// step returns the step with the given id.
func (t *Template) step(id string) (*Step, bool) {
	for i := range t.Steps {
		if t.Steps[i].ID == id {
			return &t.Steps[i], true
		}
	}
	return nil, false
}
