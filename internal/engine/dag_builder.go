package engine

import (
	"fmt"

	"github.com/stacpipe/stacpipe/internal/stacerrors"
	"github.com/stacpipe/stacpipe/internal/stage"
	"github.com/stacpipe/stacpipe/internal/workflow"
)

// Pipeline is a maximal chain of expanded steps connected by the stream
// they share: a Source begins it, zero or more Processors continue it, and
// an optional Sink terminates it. Every expanded step belongs to exactly
// one Pipeline.
type Pipeline struct {
	ID    string // the root (Source) step's expanded id
	Steps []workflow.ExpandedStep
}

// buildPipelines groups expanded steps into their stream chains. A step
// continues the stream of the first of its DependsOn entries that is
// itself a Source or Processor role and has not already been claimed as
// another step's stream continuation; every other DependsOn entry is a
// barrier dependency resolved purely through graph ordering, not streaming.
func buildPipelines(expanded []workflow.ExpandedStep) ([]Pipeline, map[string]string, map[string]string, error) {
	byID := make(map[string]workflow.ExpandedStep, len(expanded))
	for _, es := range expanded {
		byID[es.ID] = es
	}

	claimed := make(map[string]string) // upstream step id -> downstream step id that consumes its stream
	streamParent := make(map[string]string, len(expanded))

	for _, es := range expanded {
		role, ok := stage.RoleOf(es.Module)
		if !ok {
			return nil, nil, nil, stacerrors.NewConfigurationError("module", fmt.Sprintf("step %q has unknown module %q", es.ID, es.Module), nil)
		}
		if role == stage.RoleSource {
			continue
		}
		for _, dep := range es.DependsOn {
			upstream, ok := byID[dep]
			if !ok {
				continue
			}
			upstreamRole, _ := stage.RoleOf(upstream.Module)
			if upstreamRole == stage.RoleSink {
				continue
			}
			if _, taken := claimed[dep]; taken {
				continue
			}
			claimed[dep] = es.ID
			streamParent[es.ID] = dep
			break
		}
	}

	// chainHead maps any step id to the id of the Source that roots its chain.
	chainHead := make(map[string]string, len(expanded))
	var resolveHead func(id string) string
	resolveHead = func(id string) string {
		if head, ok := chainHead[id]; ok {
			return head
		}
		parent, hasParent := streamParent[id]
		if !hasParent {
			chainHead[id] = id
			return id
		}
		head := resolveHead(parent)
		chainHead[id] = head
		return head
	}

	pipelineOrder := make([]string, 0)
	pipelineSteps := make(map[string][]workflow.ExpandedStep)
	stepPipeline := make(map[string]string, len(expanded))

	for _, es := range expanded {
		head := resolveHead(es.ID)
		if _, seen := pipelineSteps[head]; !seen {
			pipelineOrder = append(pipelineOrder, head)
		}
		pipelineSteps[head] = append(pipelineSteps[head], es)
		stepPipeline[es.ID] = head
	}

	pipelines := make([]Pipeline, 0, len(pipelineOrder))
	for _, head := range pipelineOrder {
		steps := pipelineSteps[head]
		ordered := make([]workflow.ExpandedStep, 0, len(steps))
		seen := make(map[string]bool, len(steps))
		var walk func(id string)
		walk = func(id string) {
			if seen[id] {
				return
			}
			seen[id] = true
			for _, es := range steps {
				if es.ID == id {
					ordered = append(ordered, es)
				}
			}
			if next, ok := claimed[id]; ok {
				walk(next)
			}
		}
		walk(head)
		pipelines = append(pipelines, Pipeline{ID: head, Steps: ordered})
	}

	return pipelines, stepPipeline, streamParent, nil
}

// BuildGraph resolves matrix-sibling dependencies and constructs the
// pipeline-level dependency graph: pipeline A depends on pipeline B if any
// step in A has a barrier dependency (a DependsOn entry not consumed as a
// stream continuation) on any step in B.
func BuildGraph(doc *workflow.Document) (*Graph, []Pipeline, error) {
	expanded := workflow.ExpandMatrix(doc)
	siblings := workflow.SiblingsOf(expanded)

	resolved := make([]workflow.ExpandedStep, len(expanded))
	for i, es := range expanded {
		var deps []string
		for _, dep := range es.DependsOn {
			if group, ok := siblings[dep]; ok {
				deps = append(deps, group...)
				continue
			}
			deps = append(deps, dep)
		}
		es.DependsOn = deps
		resolved[i] = es
	}

	pipelines, stepPipeline, _, err := buildPipelines(resolved)
	if err != nil {
		return nil, nil, err
	}

	graph := NewGraph()
	for _, p := range pipelines {
		if _, err := graph.AddNode(workflow.ExpandedStep{ID: p.ID, Module: p.Steps[0].Module}); err != nil {
			return nil, nil, err
		}
	}

	seenEdge := make(map[string]bool)
	for _, es := range resolved {
		toPipeline := stepPipeline[es.ID]
		for _, dep := range es.DependsOn {
			fromPipeline, ok := stepPipeline[dep]
			if !ok {
				return nil, nil, stacerrors.NewConfigurationError("depends_on", fmt.Sprintf("step %q depends on unknown step %q", es.ID, dep), nil)
			}
			if fromPipeline == toPipeline {
				continue
			}
			edgeKey := fromPipeline + "->" + toPipeline
			if seenEdge[edgeKey] {
				continue
			}
			seenEdge[edgeKey] = true
			if err := graph.AddEdge(fromPipeline, toPipeline); err != nil {
				return nil, nil, err
			}
		}
	}

	if err := graph.TopologicalSort(); err != nil {
		return nil, nil, err
	}

	return graph, pipelines, nil
}
