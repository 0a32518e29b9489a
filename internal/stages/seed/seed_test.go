package seed

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/stacpipe/stacpipe/internal/execctx"
	"github.com/stacpipe/stacpipe/internal/logger"
)

func newTestContext(t *testing.T) *execctx.Context {
	t.Helper()
	log, err := logger.New(logger.Options{Level: "INFO", Name: "engine.test"})
	require.NoError(t, err)
	checkpoint, err := execctx.NewCheckpointManager("wf", "", false)
	require.NoError(t, err)
	return execctx.New(context.Background(), "wf", log, execctx.NewFailureCollector(), checkpoint)
}

func TestSeed_EmitsInlineItems(t *testing.T) {
	t.Parallel()

	s, err := New(map[string]any{
		"items": []any{
			map[string]any{"id": "item-1"},
			map[string]any{"id": "item-2"},
		},
	})
	require.NoError(t, err)
	stg := s.(*seedStage)
	stg.SetLogger(mustLogger(t))

	ctx := newTestContext(t)

	item1, ok, err := stg.Next(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "item-1", item1["id"])

	item2, ok, err := stg.Next(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "item-2", item2["id"])

	_, ok, err = stg.Next(ctx)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestSeed_NormalizesStringEntryToIDOnlyItem(t *testing.T) {
	t.Parallel()

	s, err := New(map[string]any{"items": []any{"just-an-id"}})
	require.NoError(t, err)
	stg := s.(*seedStage)
	stg.SetLogger(mustLogger(t))

	item, ok, err := stg.Next(newTestContext(t))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "just-an-id", item["id"])
}

func TestSeed_AppliesDefaultsUnderneathEntry(t *testing.T) {
	t.Parallel()

	s, err := New(map[string]any{
		"items":    []any{map[string]any{"id": "item-1", "properties": map[string]any{"platform": "override"}}},
		"defaults": map[string]any{"properties": map[string]any{"platform": "default", "instrument": "oli"}},
	})
	require.NoError(t, err)
	stg := s.(*seedStage)
	stg.SetLogger(mustLogger(t))

	item, ok, err := stg.Next(newTestContext(t))
	require.NoError(t, err)
	require.True(t, ok)

	props := item["properties"].(map[string]any)
	require.Equal(t, "override", props["platform"])
	require.Equal(t, "oli", props["instrument"])
}

func TestSeed_FillsCollectionFromContextWhenAbsent(t *testing.T) {
	t.Parallel()

	s, err := New(map[string]any{"items": []any{map[string]any{"id": "item-1"}}})
	require.NoError(t, err)
	stg := s.(*seedStage)
	stg.SetLogger(mustLogger(t))

	ctx := newTestContext(t)
	ctx.Data["collection_id"] = "landsat-8"

	item, ok, err := stg.Next(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "landsat-8", item["collection"])
}

func TestSeed_SkipsMalformedEntryAndRecordsFailure(t *testing.T) {
	t.Parallel()

	s, err := New(map[string]any{"items": []any{42, map[string]any{"id": "good"}}})
	require.NoError(t, err)
	stg := s.(*seedStage)
	stg.SetLogger(mustLogger(t))

	ctx := newTestContext(t)
	item, ok, err := stg.Next(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "good", item["id"])
	require.Equal(t, 1, ctx.Failures.Count())
}

func TestSeed_ReadsEntriesFromSourceFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "seed.json")
	data, err := json.Marshal([]any{map[string]any{"id": "from-file"}})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	s, err := New(map[string]any{"source_file": path})
	require.NoError(t, err)
	stg := s.(*seedStage)
	stg.SetLogger(mustLogger(t))

	item, ok, err := stg.Next(newTestContext(t))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "from-file", item["id"])
}

func TestSeed_MissingSourceFileIsConfigurationError(t *testing.T) {
	t.Parallel()

	_, err := New(map[string]any{"source_file": "/does/not/exist.json"})
	require.Error(t, err)
}

func mustLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New(logger.Options{Level: "INFO", Name: "engine.test"})
	require.NoError(t, err)
	return log
}
