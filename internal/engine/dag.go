// Package engine drives a compiled workflow: it resolves matrix-expanded
// steps into a dependency graph, groups steps into streaming pipelines,
// topologically schedules those pipelines, and runs each one as a
// Source -> Processor* -> Sink pull loop.
package engine

import (
	"sort"

	"github.com/stacpipe/stacpipe/internal/stacerrors"
	"github.com/stacpipe/stacpipe/internal/workflow"
)

// Node is a vertex in the step dependency graph.
type Node struct {
	ID         string
	Step       workflow.ExpandedStep
	DependsOn  []*Node
	Dependents []*Node
}

// Graph is the step dependency DAG plus its topological levels.
type Graph struct {
	Nodes  map[string]*Node
	Levels [][]string
}

// NewGraph returns an empty graph.
func NewGraph() *Graph {
	return &Graph{Nodes: make(map[string]*Node)}
}

// AddNode inserts a step as a vertex.
func (g *Graph) AddNode(step workflow.ExpandedStep) (*Node, error) {
	if _, exists := g.Nodes[step.ID]; exists {
		return nil, stacerrors.NewConfigurationError("steps", "duplicate expanded step id \""+step.ID+"\"", nil)
	}
	node := &Node{ID: step.ID, Step: step}
	g.Nodes[step.ID] = node
	return node, nil
}

// AddEdge records that "from" must complete before "to" may start.
func (g *Graph) AddEdge(from, to string) error {
	source, ok := g.Nodes[from]
	if !ok {
		return stacerrors.NewConfigurationError("steps", "unknown dependency \""+from+"\"", nil)
	}
	target, ok := g.Nodes[to]
	if !ok {
		return stacerrors.NewConfigurationError("steps", "unknown dependency target \""+to+"\"", nil)
	}
	source.Dependents = append(source.Dependents, target)
	target.DependsOn = append(target.DependsOn, source)
	return nil
}

// TopologicalSort computes the graph's levels using Kahn's algorithm; a
// cycle yields a ConfigurationError.
func (g *Graph) TopologicalSort() error {
	indegree := make(map[string]int, len(g.Nodes))
	for id := range g.Nodes {
		indegree[id] = 0
	}
	for _, node := range g.Nodes {
		for _, dependent := range node.Dependents {
			indegree[dependent.ID]++
		}
	}

	var queue []string
	for id, degree := range indegree {
		if degree == 0 {
			queue = append(queue, id)
		}
	}
	sort.Strings(queue)

	processed := 0
	var levels [][]string

	for len(queue) > 0 {
		level := append([]string(nil), queue...)
		levels = append(levels, level)

		var next []string
		for _, id := range level {
			processed++
			for _, dependent := range g.Nodes[id].Dependents {
				indegree[dependent.ID]--
				if indegree[dependent.ID] == 0 {
					next = append(next, dependent.ID)
				}
			}
		}
		sort.Strings(next)
		queue = next
	}

	if processed != len(g.Nodes) {
		return stacerrors.NewConfigurationError("steps", "dependency cycle detected among expanded steps", nil)
	}

	g.Levels = levels
	return nil
}
