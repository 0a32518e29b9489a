package output

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

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

func newStage(t *testing.T, raw map[string]any) *outputStage {
	t.Helper()
	s, err := New(raw)
	require.NoError(t, err)
	stg := s.(*outputStage)
	log, err := logger.New(logger.Options{Level: "INFO", Name: "engine.test"})
	require.NoError(t, err)
	stg.SetLogger(log)
	return stg
}

func TestOutput_JSONModeWritesOneFilePerItem(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	stg := newStage(t, map[string]any{"base_dir": dir})
	ctx := newTestContext(t)

	require.NoError(t, stg.Bundle(map[string]any{"id": "item-1"}, ctx))
	require.NoError(t, stg.Bundle(map[string]any{"id": "item-2"}, ctx))

	manifest, err := stg.Finalize(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, manifest["items_written"])

	for _, id := range []string{"item-1", "item-2"} {
		data, err := os.ReadFile(filepath.Join(dir, id+".json"))
		require.NoError(t, err)
		var got map[string]any
		require.NoError(t, json.Unmarshal(data, &got))
		require.Equal(t, id, got["id"])
	}
}

func TestOutput_FlushesAutomaticallyAtBufferThreshold(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	stg := newStage(t, map[string]any{"base_dir": dir, "buffer_size": 1})
	ctx := newTestContext(t)

	require.NoError(t, stg.Bundle(map[string]any{"id": "item-1"}, ctx))
	require.Equal(t, 1, stg.flushCount)

	_, err := stg.Finalize(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, stg.flushCount)
}

func TestOutput_FlushFailsOnItemWithEmptyID(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	stg := newStage(t, map[string]any{"base_dir": dir, "buffer_size": 1})
	ctx := newTestContext(t)

	require.NoError(t, stg.Bundle(map[string]any{"id": "item-1"}, ctx))
	require.Error(t, stg.Bundle(map[string]any{}, ctx))
	require.Equal(t, 1, ctx.Failures.Count())
}

func TestOutput_RewritesSelfLinkWhenBaseURLConfigured(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	stg := newStage(t, map[string]any{"base_dir": dir, "base_url": "https://stac.example.com/items/"})
	ctx := newTestContext(t)

	item := map[string]any{
		"id":    "item-1",
		"links": []any{map[string]any{"rel": "self", "href": "old.json"}},
	}
	require.NoError(t, stg.Bundle(item, ctx))
	_, err := stg.Finalize(ctx)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, "item-1.json"))
	require.NoError(t, err)
	var got map[string]any
	require.NoError(t, json.Unmarshal(data, &got))
	link := got["links"].([]any)[0].(map[string]any)
	require.Equal(t, "https://stac.example.com/items/item-1.json", link["href"])
}

func TestOutput_ParquetModeWritesReadableFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	stg := newStage(t, map[string]any{"base_dir": dir, "format": "parquet"})
	stg.now = func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }
	ctx := newTestContext(t)

	require.NoError(t, stg.Bundle(map[string]any{"id": "item-1"}, ctx))
	manifest, err := stg.Finalize(ctx)
	require.NoError(t, err)
	require.Equal(t, "parquet", manifest["format"])

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Contains(t, entries[0].Name(), ".parquet")
}

func TestOutput_WritesCollectionTrailerWhenConfigured(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	stg := newStage(t, map[string]any{"base_dir": dir, "include_collection": true})
	ctx := newTestContext(t)
	ctx.Data["collection"] = map[string]any{"id": "landsat-8"}

	require.NoError(t, stg.Bundle(map[string]any{"id": "item-1"}, ctx))
	_, err := stg.Finalize(ctx)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, "collection.json"))
	require.NoError(t, err)
	var got map[string]any
	require.NoError(t, json.Unmarshal(data, &got))
	require.Equal(t, "landsat-8", got["id"])
}

func TestOutput_MissingBaseDirIsConfigurationError(t *testing.T) {
	t.Parallel()

	_, err := New(map[string]any{})
	require.Error(t, err)
}

func TestOutput_InvalidFormatIsConfigurationError(t *testing.T) {
	t.Parallel()

	_, err := New(map[string]any{"base_dir": t.TempDir(), "format": "xml"})
	require.Error(t, err)
}
