// Package stage defines the three capability contracts — Source,
// Processor, Sink — that any concrete stage must satisfy, and the closed
// registry of the seven stage kinds the engine knows how to construct.
package stage

import (
	"github.com/stacpipe/stacpipe/internal/execctx"
	"github.com/stacpipe/stacpipe/internal/logger"
	"github.com/stacpipe/stacpipe/internal/stacitem"
)

// Stage is the common lifecycle every concrete stage satisfies in
// addition to its capability contract (Source, Processor, or Sink).
type Stage interface {
	// SetLogger injects the step-scoped logger. Called once before any
	// execution method, after construction.
	SetLogger(log *logger.Logger)
}

// Source yields items one at a time from a finite, pull-based sequence.
// Every item it yields must satisfy the non-empty-id invariant.
type Source interface {
	Stage
	// Next returns the next item, or ok=false when the sequence is
	// exhausted. It is the synchronous pull-iterator form of the
	// fetch/yield contract: the only suspension points in a Source are
	// inside Next (HTTP requests, file reads).
	Next(ctx *execctx.Context) (item stacitem.Item, ok bool, err error)
}

// Processor synchronously transforms one item at a time. It never
// suspends: all of its work is CPU-bound, which is what makes the
// item-level pipeline a simple pull loop.
type Processor interface {
	Stage
	// Modify returns either the modified item (the same reference,
	// in-place mutation permitted) or stacitem.Dropped. It must not
	// raise an error for item-scoped data errors when configured for
	// "collect" failure mode, and must raise a DataProcessingError when
	// configured for "strict" mode.
	Modify(item stacitem.Item, ctx *execctx.Context) (stacitem.Item, error)
}

// Sink accepts items for eventual persistence and produces a manifest
// once the stream is exhausted.
type Sink interface {
	Stage
	// Bundle accepts one item. It may flush synchronously once its
	// buffer threshold is reached.
	Bundle(item stacitem.Item, ctx *execctx.Context) error
	// Finalize flushes any remaining buffer, writes trailer artifacts,
	// and returns the run manifest.
	Finalize(ctx *execctx.Context) (map[string]any, error)
}

// Kind is the closed set of stage-class identifiers a workflow document
// may reference. The core favors this closed variant over an open plugin
// registry; external plugins may be added behind the same Source /
// Processor / Sink contracts once the core surface is stable.
type Kind string

const (
	KindSeed      Kind = "SeedModule"
	KindIngest    Kind = "IngestModule"
	KindUpdate    Kind = "UpdateModule"
	KindValidate  Kind = "ValidateModule"
	KindExtension Kind = "ExtensionModule"
	KindTransform Kind = "TransformModule"
	KindOutput    Kind = "OutputModule"
)

// Role classifies whether a Kind constructs a Source, a Processor, or a
// Sink.
type Role int

const (
	RoleSource Role = iota
	RoleProcessor
	RoleSink
)

var roles = map[Kind]Role{
	KindSeed:      RoleSource,
	KindIngest:    RoleSource,
	KindUpdate:    RoleProcessor,
	KindValidate:  RoleProcessor,
	KindExtension: RoleProcessor,
	KindTransform: RoleProcessor,
	KindOutput:    RoleSink,
}

// RoleOf reports the Role for a known Kind.
func RoleOf(k Kind) (Role, bool) {
	r, ok := roles[k]
	return r, ok
}

// KnownKinds returns every Kind the registry can construct, in a stable
// order.
func KnownKinds() []Kind {
	return []Kind{KindSeed, KindIngest, KindUpdate, KindValidate, KindExtension, KindTransform, KindOutput}
}
