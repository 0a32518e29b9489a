package workflow

import (
	"fmt"
	"sort"
	"strings"

	"github.com/stacpipe/stacpipe/internal/stage"
)

// ExpandedStep is one concrete pipeline instance after matrix expansion: a
// step with a matrix spec turns into one ExpandedStep per Cartesian-product
// coordinate; a step without a matrix spec turns into exactly one.
type ExpandedStep struct {
	ID         string
	OriginalID string
	Module     stage.Kind
	Config     map[string]any
	DependsOn  []string // original (pre-expansion) step ids
	Coordinate map[string]any
	LogLevel   string
}

// ExpandMatrix performs static matrix expansion over a compiled Document's
// steps, in declaration order. It is deterministic: for a given document
// the same ids and coordinate assignment are produced every time.
func ExpandMatrix(doc *Document) []ExpandedStep {
	var out []ExpandedStep
	for _, step := range doc.Steps {
		if len(step.Matrix) == 0 {
			out = append(out, ExpandedStep{
				ID:         step.ID,
				OriginalID: step.ID,
				Module:     step.Module,
				Config:     step.Config,
				DependsOn:  step.DependsOn,
				LogLevel:   step.LogLevel,
			})
			continue
		}

		for _, coord := range cartesianProduct(step.Matrix) {
			out = append(out, ExpandedStep{
				ID:         step.ID + "#" + coordinateSuffix(coord),
				OriginalID: step.ID,
				Module:     step.Module,
				Config:     step.Config,
				DependsOn:  step.DependsOn,
				Coordinate: coord,
				LogLevel:   step.LogLevel,
			})
		}
	}
	return out
}

// cartesianProduct returns every coordinate (axis name -> one value) in the
// Cartesian product of the matrix's axes, in a deterministic order (axes
// sorted by name, values in declaration order).
func cartesianProduct(matrix map[string][]any) []map[string]any {
	axes := make([]string, 0, len(matrix))
	for axis := range matrix {
		axes = append(axes, axis)
	}
	sort.Strings(axes)

	combos := []map[string]any{{}}
	for _, axis := range axes {
		values := matrix[axis]
		var next []map[string]any
		for _, combo := range combos {
			for _, v := range values {
				c := make(map[string]any, len(combo)+1)
				for k, cv := range combo {
					c[k] = cv
				}
				c[axis] = v
				next = append(next, c)
			}
		}
		combos = next
	}
	return combos
}

func coordinateSuffix(coord map[string]any) string {
	axes := make([]string, 0, len(coord))
	for axis := range coord {
		axes = append(axes, axis)
	}
	sort.Strings(axes)

	parts := make([]string, 0, len(axes))
	for _, axis := range axes {
		parts = append(parts, fmt.Sprintf("%s=%v", axis, coord[axis]))
	}
	return strings.Join(parts, ",")
}

// SiblingsOf groups expanded steps by their original (pre-expansion) id.
func SiblingsOf(expanded []ExpandedStep) map[string][]string {
	out := make(map[string][]string)
	for _, es := range expanded {
		out[es.OriginalID] = append(out[es.OriginalID], es.ID)
	}
	return out
}
