// Package execctx implements the per-run Execution Context: the value
// object stages read configuration and inter-stage data from, and the two
// concurrency-safe shared resources (failure collector, checkpoint
// manager) that survive matrix-fork boundaries.
package execctx

import (
	"context"

	"github.com/stacpipe/stacpipe/internal/logger"
)

// Context is the per-run (or per matrix-sibling) value object passed to
// every stage call. It is created once at workflow start, frozen for the
// run's duration, and forked per matrix child.
type Context struct {
	WorkflowID string
	Logger     *logger.Logger
	Failures   *FailureCollector
	Checkpoint *CheckpointManager
	Data       map[string]any

	// GoContext carries the workflow-level cancellation signal; stages
	// must observe it at their suspension points (I/O reads/writes,
	// HTTP calls) and must not be expected to interrupt a running
	// Processor.Modify call.
	GoContext context.Context
}

// New constructs the root Context for a workflow run.
func New(goCtx context.Context, workflowID string, log *logger.Logger, failures *FailureCollector, checkpoint *CheckpointManager) *Context {
	return &Context{
		WorkflowID: workflowID,
		Logger:     log,
		Failures:   failures,
		Checkpoint: checkpoint,
		Data:       make(map[string]any),
		GoContext:  goCtx,
	}
}

// Fork returns a new Context sharing this context's failure collector,
// checkpoint manager, and workflow id, with Data = {parent.Data, overlay}.
// The fork never mutates the parent's Data map. step is used to extend
// the logger hierarchy; matrixCoord, when non-empty, is appended too
// (engine.<workflow>.<step>.<matrix_coord>).
func (c *Context) Fork(step, matrixCoord string, overlay map[string]any) *Context {
	data := make(map[string]any, len(c.Data)+len(overlay))
	for k, v := range c.Data {
		data[k] = v
	}
	for k, v := range overlay {
		data[k] = v
	}

	name := step
	if matrixCoord != "" {
		name = step + "." + matrixCoord
	}

	return &Context{
		WorkflowID: c.WorkflowID,
		Logger:     c.Logger.Named(name),
		Failures:   c.Failures,
		Checkpoint: c.Checkpoint,
		Data:       data,
		GoContext:  c.GoContext,
	}
}

// WithLogger returns a shallow copy of c with a replaced logger, used by
// the engine to hand each step its own `engine.<workflow>.<step>` logger
// without forking the data map.
func (c *Context) WithLogger(log *logger.Logger) *Context {
	cp := *c
	cp.Logger = log
	return &cp
}
