package workflow

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/stacpipe/stacpipe/internal/stacerrors"
	"github.com/stacpipe/stacpipe/internal/stage"
)

var (
	validatorOnce sync.Once
	validateInst  *validator.Validate

	stepIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
)

func validatorInstance() *validator.Validate {
	validatorOnce.Do(func() {
		v := validator.New()
		_ = v.RegisterValidation("step_id", func(fl validator.FieldLevel) bool {
			return stepIDPattern.MatchString(fl.Field().String())
		})
		validateInst = v
	})
	return validateInst
}

// Validate performs schema and cross-field validation on a compiled
// Document: struct tags, duplicate step ids, unknown module kinds,
// unknown dependency ids, and dependency cycles.
func Validate(doc *Document) error {
	if doc == nil {
		return stacerrors.NewConfigurationError("workflow", "workflow document is nil", nil)
	}

	v := validatorInstance()
	if err := v.Struct(doc); err != nil {
		return convertValidationError(err)
	}

	stepIndex := make(map[string]int, len(doc.Steps))
	for i, step := range doc.Steps {
		if _, exists := stepIndex[step.ID]; exists {
			return stacerrors.NewConfigurationError(fmt.Sprintf("steps[%d].id", i), fmt.Sprintf("duplicate step id %q", step.ID), nil)
		}
		if _, ok := stage.RoleOf(step.Module); !ok {
			return stacerrors.NewConfigurationError(fmt.Sprintf("steps[%d].module", i), fmt.Sprintf("unknown module %q", step.Module), nil)
		}
		stepIndex[step.ID] = i
	}

	for i, step := range doc.Steps {
		for _, dep := range step.DependsOn {
			if _, ok := stepIndex[dep]; !ok {
				return stacerrors.NewConfigurationError(fmt.Sprintf("steps[%d].depends_on", i), fmt.Sprintf("step %q references unknown dependency %q", step.ID, dep), nil)
			}
		}
	}

	if cycle := detectCycle(doc.Steps); len(cycle) > 0 {
		return stacerrors.NewConfigurationError("steps", fmt.Sprintf("dependency cycle detected: %s", strings.Join(cycle, " -> ")), nil)
	}

	return nil
}

func convertValidationError(err error) error {
	if err == nil {
		return nil
	}
	if ves, ok := err.(validator.ValidationErrors); ok {
		ve := ves[0]
		field := yamlishFieldName(ve)
		return stacerrors.NewConfigurationError(field, fmt.Sprintf("%s failed validation for tag %q", field, ve.Tag()), err)
	}
	return stacerrors.NewConfigurationError("workflow", err.Error(), err)
}

func yamlishFieldName(fe validator.FieldError) string {
	ns := fe.StructNamespace()
	parts := strings.Split(ns, ".")
	lowered := make([]string, 0, len(parts))
	for _, part := range parts {
		lowered = append(lowered, strings.ToLower(part))
	}
	return strings.Join(lowered, ".")
}

// detectCycle returns the offending cycle (as a slice of step ids) if the
// dependency graph has one, or nil if it is acyclic.
func detectCycle(steps []Step) []string {
	graph := make(map[string][]string, len(steps))
	for _, step := range steps {
		graph[step.ID] = step.DependsOn
	}

	visiting := make(map[string]bool, len(steps))
	visited := make(map[string]bool, len(steps))
	var stack []string
	var cycle []string

	var dfs func(string) bool
	dfs = func(node string) bool {
		visiting[node] = true
		stack = append(stack, node)

		for _, dep := range graph[node] {
			if visited[dep] {
				continue
			}
			if visiting[dep] {
				idx := indexOf(stack, dep)
				if idx >= 0 {
					cycle = append([]string{}, stack[idx:]...)
					cycle = append(cycle, dep)
				}
				return true
			}
			if dfs(dep) {
				return true
			}
		}

		visiting[node] = false
		visited[node] = true
		stack = stack[:len(stack)-1]
		return false
	}

	ids := make([]string, 0, len(steps))
	for _, step := range steps {
		ids = append(ids, step.ID)
	}
	sort.Strings(ids)

	for _, id := range ids {
		if visited[id] {
			continue
		}
		if dfs(id) {
			break
		}
	}

	return cycle
}

func indexOf(slice []string, target string) int {
	for i, v := range slice {
		if v == target {
			return i
		}
	}
	return -1
}
