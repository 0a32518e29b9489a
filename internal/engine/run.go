package engine

import (
	"sync"
	"sync/atomic"

	"github.com/stacpipe/stacpipe/internal/execctx"
	"github.com/stacpipe/stacpipe/internal/stacerrors"
	"github.com/stacpipe/stacpipe/internal/stacitem"
	"github.com/stacpipe/stacpipe/internal/stage"
	"github.com/stacpipe/stacpipe/internal/workflow"
)

// Summary is the final run report returned once every pipeline has
// finished (successfully, aborted, or skipped via checkpoint resume).
type Summary struct {
	Succeeded int
	Failed    int
	Skipped   int
	Manifests map[string]any
}

// Runner drives a compiled workflow document to completion.
type Runner struct {
	root *execctx.Context
}

// NewRunner constructs a Runner around the workflow's root context.
func NewRunner(root *execctx.Context) *Runner {
	return &Runner{root: root}
}

// Run builds the pipeline graph for doc and executes every pipeline in
// topological order, running pipelines within the same level concurrently.
func (r *Runner) Run(doc *workflow.Document) (Summary, error) {
	graph, pipelines, err := BuildGraph(doc)
	if err != nil {
		return Summary{}, err
	}

	byID := make(map[string]Pipeline, len(pipelines))
	for _, p := range pipelines {
		byID[p.ID] = p
	}

	manifestsMu := sync.Mutex{}
	manifests := make(map[string]any)

	abortedGroups := sync.Map{} // original step id (matrix group key) -> *int32 (1 = aborted)

	var summaryMu sync.Mutex
	summary := Summary{Manifests: manifests}

	for _, level := range graph.Levels {
		var wg sync.WaitGroup
		for _, pipelineID := range level {
			pipeline := byID[pipelineID]
			wg.Add(1)
			go func(p Pipeline) {
				defer wg.Done()

				if r.root.Checkpoint.IsComplete(p.ID) {
					summaryMu.Lock()
					summary.Skipped++
					summaryMu.Unlock()
					return
				}

				groupKey := p.Steps[0].OriginalID
				flag := groupFlag(&abortedGroups, groupKey)
				if atomic.LoadInt32(flag) == 1 {
					summaryMu.Lock()
					summary.Skipped++
					summaryMu.Unlock()
					return
				}

				manifest, err := r.runPipeline(p, manifests, &manifestsMu, flag)

				summaryMu.Lock()
				if err != nil {
					summary.Failed++
					if isMatrixAbortTrigger(p) {
						atomic.StoreInt32(flag, 1)
					}
				} else {
					summary.Succeeded++
					if manifest != nil {
						manifestsMu.Lock()
						manifests[p.Steps[len(p.Steps)-1].ID] = manifest
						manifests[p.Steps[len(p.Steps)-1].OriginalID] = manifest
						manifestsMu.Unlock()
					}
					_ = r.root.Checkpoint.MarkComplete(p.ID)
				}
				summaryMu.Unlock()
			}(pipeline)
		}
		wg.Wait()
	}

	return summary, nil
}

// isMatrixAbortTrigger reports whether this pipeline is part of a matrix
// expansion, in which case the default failure policy aborts its siblings.
func isMatrixAbortTrigger(p Pipeline) bool {
	return p.Steps[0].Coordinate != nil
}

func groupFlag(groups *sync.Map, key string) *int32 {
	v, _ := groups.LoadOrStore(key, new(int32))
	return v.(*int32)
}

// runPipeline constructs each step's stage and drives the Source ->
// Processor* -> Sink pull loop for one pipeline, returning the Sink's
// manifest (nil if the pipeline has no Sink).
func (r *Runner) runPipeline(p Pipeline, manifests map[string]any, manifestsMu *sync.Mutex, abortFlag *int32) (map[string]any, error) {
	ctx := r.forkContextFor(p.Steps[0], manifests, manifestsMu)

	var source stage.Source
	var processors []stage.Processor
	var sink stage.Sink

	for _, es := range p.Steps {
		built, err := stage.New(es.Module, es.Config)
		if err != nil {
			return nil, err
		}
		built.SetLogger(ctx.Logger)

		role, _ := stage.RoleOf(es.Module)
		switch role {
		case stage.RoleSource:
			s, ok := built.(stage.Source)
			if !ok {
				return nil, stacerrors.NewConfigurationError(es.ID, "module declared as Source does not implement Source", nil)
			}
			source = s
		case stage.RoleProcessor:
			proc, ok := built.(stage.Processor)
			if !ok {
				return nil, stacerrors.NewConfigurationError(es.ID, "module declared as Processor does not implement Processor", nil)
			}
			processors = append(processors, proc)
		case stage.RoleSink:
			sk, ok := built.(stage.Sink)
			if !ok {
				return nil, stacerrors.NewConfigurationError(es.ID, "module declared as Sink does not implement Sink", nil)
			}
			sink = sk
		}
	}

	if source == nil {
		return nil, stacerrors.NewConfigurationError(p.ID, "pipeline has no Source stage", nil)
	}

	for {
		if atomic.LoadInt32(abortFlag) == 1 {
			ctx.Logger.Warn("pipeline aborted: sibling matrix pipeline failed")
			const msg = "a sibling matrix pipeline failed"
			ctx.Failures.Append(p.ID, "", "SiblingAborted", msg, nil)
			return nil, stacerrors.NewDataProcessingError(p.ID, "", "SiblingAborted", msg, nil, nil)
		}

		item, ok, err := source.Next(ctx)
		if err != nil {
			return nil, classifyAndAbort(ctx, p.ID, "", err)
		}
		if !ok {
			break
		}
		if stacitem.ID(item) == "" {
			const msg = "source yielded an item with no id"
			ctx.Failures.Append(p.ID, "", "EmptyItemID", msg, nil)
			return nil, stacerrors.NewDataProcessingError(p.ID, "", "EmptyItemID", msg, nil, nil)
		}

		dropped := false
		for _, proc := range processors {
			next, err := proc.Modify(item, ctx)
			if err != nil {
				return nil, classifyAndAbort(ctx, p.ID, stacitem.ID(item), err)
			}
			if stacitem.IsDropped(next) {
				dropped = true
				break
			}
			item = next
		}
		if dropped {
			continue
		}

		if sink != nil {
			if err := sink.Bundle(item, ctx); err != nil {
				return nil, classifyAndAbort(ctx, p.ID, stacitem.ID(item), err)
			}
		}
	}

	if sink == nil {
		return nil, nil
	}

	manifest, err := sink.Finalize(ctx)
	if err != nil {
		return nil, classifyAndAbort(ctx, p.ID, "", err)
	}
	return manifest, nil
}

// classifyAndAbort always aborts the pipeline. DataProcessingErrors and
// ConfigurationErrors are returned unchanged; the stage (or engine call
// site) that raised them is responsible for appending their failure
// record before returning. An UnexpectedError has no such origin point,
// so it is recorded here.
func classifyAndAbort(ctx *execctx.Context, stepID, itemID string, err error) error {
	switch e := err.(type) {
	case *stacerrors.DataProcessingError:
		return e
	case *stacerrors.ConfigurationError:
		return e
	default:
		ctx.Failures.Append(stepID, itemID, "unexpected", err.Error(), nil)
		return stacerrors.NewUnexpectedError(stepID, err)
	}
}

// forkContextFor builds the per-pipeline Context: a matrix coordinate
// overlay (if any) plus every manifest recorded by the pipelines that have
// finished so far, keyed by the step that produced it.
func (r *Runner) forkContextFor(head workflow.ExpandedStep, manifests map[string]any, manifestsMu *sync.Mutex) *execctx.Context {
	overlay := make(map[string]any)
	for k, v := range head.Coordinate {
		overlay[k] = v
	}

	manifestsMu.Lock()
	for k, v := range manifests {
		overlay[k] = v
	}
	manifestsMu.Unlock()

	coord := ""
	if len(head.Coordinate) > 0 {
		coord = head.ID[len(head.OriginalID)+1:]
	}

	return r.root.Fork(head.OriginalID, coord, overlay)
}
