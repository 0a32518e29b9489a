package engine

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	_ "github.com/stacpipe/stacpipe/internal/stages"

	"github.com/stacpipe/stacpipe/internal/execctx"
	"github.com/stacpipe/stacpipe/internal/logger"
	"github.com/stacpipe/stacpipe/internal/stacerrors"
	"github.com/stacpipe/stacpipe/internal/stage"
	"github.com/stacpipe/stacpipe/internal/workflow"
)

func newRootContext(t *testing.T) *execctx.Context {
	t.Helper()
	log, err := logger.New(logger.Options{Level: "INFO", Name: "engine.test"})
	require.NoError(t, err)
	checkpoint, err := execctx.NewCheckpointManager("test-workflow", "", false)
	require.NoError(t, err)
	return execctx.New(context.Background(), "test-workflow", log, execctx.NewFailureCollector(), checkpoint)
}

func TestRun_ExecutesSeedToOutputPipelineAndProducesManifest(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	doc := &workflow.Document{
		Name: "seed-to-output",
		Steps: []workflow.Step{
			{ID: "seed", Module: stage.KindSeed, Config: map[string]any{
				"items": []any{map[string]any{"id": "item-1"}, map[string]any{"id": "item-2"}},
			}},
			{ID: "output", Module: stage.KindOutput, DependsOn: []string{"seed"}, Config: map[string]any{
				"base_dir": dir,
			}},
		},
	}

	runner := NewRunner(newRootContext(t))
	summary, err := runner.Run(doc)
	require.NoError(t, err)
	require.Equal(t, 1, summary.Succeeded)
	require.Equal(t, 0, summary.Failed)

	manifest, ok := summary.Manifests["output"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, 2, manifest["items_written"])

	for _, id := range []string{"item-1", "item-2"} {
		_, err := os.Stat(filepath.Join(dir, id+".json"))
		require.NoError(t, err)
	}
}

func TestRun_PropagatesManifestAcrossBarrierDependency(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	doc := &workflow.Document{
		Name: "manifest-propagation",
		Steps: []workflow.Step{
			{ID: "seed-a", Module: stage.KindSeed, Config: map[string]any{
				"items": []any{map[string]any{"id": "a-1"}},
			}},
			{ID: "output-a", Module: stage.KindOutput, DependsOn: []string{"seed-a"}, Config: map[string]any{
				"base_dir": filepath.Join(dir, "a"),
			}},
			{ID: "seed-b", Module: stage.KindSeed, DependsOn: []string{"output-a"}, Config: map[string]any{
				"items": []any{map[string]any{"id": "b-1"}},
			}},
			{ID: "output-b", Module: stage.KindOutput, DependsOn: []string{"seed-b"}, Config: map[string]any{
				"base_dir": filepath.Join(dir, "b"),
			}},
		},
	}
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "a"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "b"), 0o755))

	runner := NewRunner(newRootContext(t))
	summary, err := runner.Run(doc)
	require.NoError(t, err)
	require.Equal(t, 2, summary.Succeeded)

	_, ok := summary.Manifests["output-a"]
	require.True(t, ok)
}

func TestRun_SkipsPipelineAlreadyMarkedCompleteInCheckpoint(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	checkpointPath := filepath.Join(t.TempDir(), "checkpoint.json")
	data, err := json.Marshal(execctx.CheckpointState{
		WorkflowID:     "resume-test",
		CompletedSteps: []string{"seed"},
		Cursors:        map[string]any{},
	})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(checkpointPath, data, 0o644))

	checkpoint, err := execctx.NewCheckpointManager("resume-test", checkpointPath, true)
	require.NoError(t, err)

	log, err := logger.New(logger.Options{Level: "INFO", Name: "engine.test"})
	require.NoError(t, err)
	root := execctx.New(context.Background(), "resume-test", log, execctx.NewFailureCollector(), checkpoint)

	doc := &workflow.Document{
		Name: "resume-test",
		Steps: []workflow.Step{
			{ID: "seed", Module: stage.KindSeed, Config: map[string]any{
				"items": []any{map[string]any{"id": "item-1"}},
			}},
			{ID: "output", Module: stage.KindOutput, DependsOn: []string{"seed"}, Config: map[string]any{
				"base_dir": dir,
			}},
		},
	}

	runner := NewRunner(root)
	summary, err := runner.Run(doc)
	require.NoError(t, err)
	require.Equal(t, 1, summary.Skipped)
	require.Equal(t, 0, summary.Succeeded)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestRun_EmptyItemIDAbortsPipelineAsDataProcessingFailure(t *testing.T) {
	t.Parallel()

	doc := &workflow.Document{
		Name: "bad-seed",
		Steps: []workflow.Step{
			{ID: "seed", Module: stage.KindSeed, Config: map[string]any{
				"items": []any{""},
			}},
			{ID: "output", Module: stage.KindOutput, DependsOn: []string{"seed"}, Config: map[string]any{
				"base_dir": t.TempDir(),
			}},
		},
	}

	root := newRootContext(t)
	runner := NewRunner(root)
	summary, err := runner.Run(doc)
	require.NoError(t, err)
	require.Equal(t, 1, summary.Failed)
	require.Equal(t, 0, summary.Succeeded)
	require.Equal(t, 1, root.Failures.Count())
}

func TestRun_UnknownPipelineModuleSurfacesAsConfigurationError(t *testing.T) {
	t.Parallel()

	doc := &workflow.Document{
		Name: "broken-module",
		Steps: []workflow.Step{
			{ID: "mystery", Module: stage.Kind("NotARealModule")},
		},
	}

	runner := NewRunner(newRootContext(t))
	_, err := runner.Run(doc)
	require.Error(t, err)
}

func TestIsMatrixAbortTrigger_TrueOnlyForMatrixExpandedSteps(t *testing.T) {
	t.Parallel()

	plain := Pipeline{Steps: []workflow.ExpandedStep{{ID: "seed", OriginalID: "seed"}}}
	require.False(t, isMatrixAbortTrigger(plain))

	matrixed := Pipeline{Steps: []workflow.ExpandedStep{{
		ID: "seed#collection=a", OriginalID: "seed", Coordinate: map[string]any{"collection": "a"},
	}}}
	require.True(t, isMatrixAbortTrigger(matrixed))
}

func TestClassifyAndAbort_DataProcessingErrorSurfacesUnchanged(t *testing.T) {
	t.Parallel()

	root := newRootContext(t)
	dpErr := stacerrors.NewDataProcessingError("output", "item-1", "MissingItemID", "boom", nil, nil)

	err := classifyAndAbort(root, "output", "item-1", dpErr)
	require.Same(t, dpErr, err)
	require.Equal(t, 0, root.Failures.Count())
}

func TestClassifyAndAbort_UnexpectedErrorIsRecordedAndWrapped(t *testing.T) {
	t.Parallel()

	root := newRootContext(t)
	raw := os.ErrClosed

	err := classifyAndAbort(root, "output", "item-1", raw)
	require.Error(t, err)
	require.Equal(t, "unexpected", stacerrors.Kind(err))
	require.Equal(t, 1, root.Failures.Count())
}
