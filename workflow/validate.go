package workflow

import (
	"fmt"
	"regexp"
	"strings"
)

// refPattern finds ${...} references inside parameter strings.
var refPattern = regexp.MustCompile(`\$\{([^}]*)\}`)

// allowedRef is the closed reference grammar: step outputs, declared
// template parameters, or the fixed read-only context. Anything else —
// in particular anything shaped like code — is rejected outright.
var allowedRef = regexp.MustCompile(`^(steps\.[A-Za-z0-9_-]+\.[A-Za-z0-9_]+|params\.[A-Za-z0-9_]+|context\.[A-Za-z0-9_]+)$`)

// stepOutputFields is the set of per-step output fields a reference may
// name.
var stepOutputFields = map[string]bool{
	"message": true,
	"data":    true,
	"success": true,
}

// contextKeys is the fixed read-only context namespace.
var contextKeys = map[string]bool{
	"session_id":  true,
	"workflow_id": true,
	"run_id":      true,
}

// Validate checks a template before any step can execute: shape, the
// ${...} reference grammar, and acyclicity of the dependency graph.
// A template that fails validation is refused whole.
func Validate(t *Template) error {
	if t == nil {
		return fmt.Errorf("workflow invalid: template is nil")
	}
	if len(t.Steps) == 0 {
		return fmt.Errorf("workflow invalid: template %q has no steps", t.Name)
	}

	ids := make(map[string]bool, len(t.Steps))
	for _, s := range t.Steps {
		if s.ID == "" {
			return fmt.Errorf("workflow invalid: step without id")
		}
		if s.Skill == "" {
			return fmt.Errorf("workflow invalid: step %q names no skill", s.ID)
		}
		if ids[s.ID] {
			return fmt.Errorf("workflow invalid: duplicate step id %q", s.ID)
		}
		ids[s.ID] = true
	}

	for _, s := range t.Steps {
		for _, dep := range s.DependsOn {
			if !ids[dep] {
				return fmt.Errorf("workflow invalid: step %q depends on unknown step %q", s.ID, dep)
			}
		}
		if err := checkRefs(t, &s, ids); err != nil {
			return err
		}
	}

	return checkAcyclic(t)
}

// checkRefs walks every string in the step's parameter values and
// verifies each ${...} reference resolves inside one of the three
// permitted namespaces.
func checkRefs(t *Template, s *Step, ids map[string]bool) error {
	var walk func(v any) error
	walk = func(v any) error {
		switch vv := v.(type) {
		case string:
			for _, m := range refPattern.FindAllStringSubmatch(vv, -1) {
				if err := checkRef(t, s, ids, m[1]); err != nil {
					return err
				}
			}
		case map[string]any:
			for _, inner := range vv {
				if err := walk(inner); err != nil {
					return err
				}
			}
		case []any:
			for _, inner := range vv {
				if err := walk(inner); err != nil {
					return err
				}
			}
		}
		return nil
	}
	for _, v := range s.Params {
		if err := walk(v); err != nil {
			return err
		}
	}
	return nil
}

func checkRef(t *Template, s *Step, ids map[string]bool, ref string) error {
	if !allowedRef.MatchString(ref) {
		return fmt.Errorf("workflow invalid: step %q: reference ${%s} resolves outside the permitted namespaces", s.ID, ref)
	}
	switch {
	case strings.HasPrefix(ref, "steps."):
		rest := strings.TrimPrefix(ref, "steps.")
		dot := strings.LastIndex(rest, ".")
		stepID, field := rest[:dot], rest[dot+1:]
		if !ids[stepID] {
			return fmt.Errorf("workflow invalid: step %q references unknown step %q", s.ID, stepID)
		}
		if stepID == s.ID {
			return fmt.Errorf("workflow invalid: step %q references its own output", s.ID)
		}
		if !stepOutputFields[field] {
			return fmt.Errorf("workflow invalid: step %q references unknown output field %q", s.ID, field)
		}
	case strings.HasPrefix(ref, "params."):
		name := strings.TrimPrefix(ref, "params.")
		if _, ok := t.Defaults[name]; !ok {
			return fmt.Errorf("workflow invalid: step %q references undeclared parameter %q", s.ID, name)
		}
	case strings.HasPrefix(ref, "context."):
		key := strings.TrimPrefix(ref, "context.")
		if !contextKeys[key] {
			return fmt.Errorf("workflow invalid: step %q references unknown context key %q", s.ID, key)
		}
	}
	return nil
}

// DFS colors for cycle detection.
const (
	colorWhite = iota // unvisited
	colorGray         // on the current DFS path
	colorBlack        // fully explored
)

// checkAcyclic rejects any cycle in the depends_on graph, reporting the
// cycle's members.
func checkAcyclic(t *Template) error {
	color := make(map[string]int, len(t.Steps))
	var path []string

	var visit func(id string) error
	visit = func(id string) error {
		switch color[id] {
		case colorGray:
			return fmt.Errorf("workflow invalid: dependency cycle: %s -> %s",
				strings.Join(path, " -> "), id)
		case colorBlack:
			return nil
		}
		color[id] = colorGray
		path = append(path, id)
		step, _ := t.step(id)
		for _, dep := range step.DependsOn {
			if err := visit(dep); err != nil {
				return err
			}
		}
		path = path[:len(path)-1]
		color[id] = colorBlack
		return nil
	}

	for _, s := range t.Steps {
		if err := visit(s.ID); err != nil {
			return err
		}
	}
	return nil
}

// executionOrder returns the step ids in a deterministic topological
// order: Kahn's algorithm, with ready steps taken in declaration order
// so that replays schedule identically. Validate must have passed.
func executionOrder(t *Template) []string {
	indeg := make(map[string]int, len(t.Steps))
	dependents := make(map[string][]string)
	for _, s := range t.Steps {
		indeg[s.ID] += 0
		for _, dep := range s.DependsOn {
			indeg[s.ID]++
			dependents[dep] = append(dependents[dep], s.ID)
		}
	}

	order := make([]string, 0, len(t.Steps))
	done := make(map[string]bool, len(t.Steps))
	for len(order) < len(t.Steps) {
		for _, s := range t.Steps {
			if !done[s.ID] && indeg[s.ID] == 0 {
				done[s.ID] = true
				order = append(order, s.ID)
				for _, d := range dependents[s.ID] {
					indeg[d]--
				}
			}
		}
	}
	return order
}
