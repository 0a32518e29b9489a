package field

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func sampleItemWithAssets() map[string]any {
	return map[string]any{
		"id": "LC08_item",
		"assets": map[string]any{
			"B1": map[string]any{"href": "b1.tif"},
			"B2": map[string]any{"href": "b2.tif"},
		},
	}
}

func TestExpandWildcards_ProducesOneTargetPerAsset(t *testing.T) {
	t.Parallel()

	item := sampleItemWithAssets()
	mapping := map[string]string{"assets.*.derived_from": "{item_id}"}

	got, err := ExpandWildcards(mapping, item, nil)
	require.NoError(t, err)
	require.Len(t, got, len(item["assets"].(map[string]any)))
	require.Equal(t, "LC08_item", got[`assets.B1.derived_from`])
	require.Equal(t, "LC08_item", got[`assets.B2.derived_from`])
}

func TestExpandWildcards_UsesAssetKeyBindingUnderAssets(t *testing.T) {
	t.Parallel()

	item := sampleItemWithAssets()
	mapping := map[string]string{"assets.*.label": "{asset_key}"}

	got, err := ExpandWildcards(mapping, item, nil)
	require.NoError(t, err)
	require.Equal(t, "B1", got[`assets.B1.label`])
	require.Equal(t, "B2", got[`assets.B2.label`])
}

func TestExpandWildcards_RejectsMultipleWildcardSegments(t *testing.T) {
	t.Parallel()

	item := sampleItemWithAssets()
	mapping := map[string]string{"assets.*.nested.*.href": "x"}

	_, err := ExpandWildcards(mapping, item, nil)
	require.Error(t, err)
}

func TestExpandWildcards_NoMatchYieldsNoEntries(t *testing.T) {
	t.Parallel()

	item := map[string]any{"id": "no-assets-item"}
	mapping := map[string]string{"assets.*.label": "{asset_key}"}

	got, err := ExpandWildcards(mapping, item, nil)
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestExpandWildcards_FailsOnUnboundTemplateVariable(t *testing.T) {
	t.Parallel()

	item := sampleItemWithAssets()
	mapping := map[string]string{"assets.*.label": "{not_bound}"}

	_, err := ExpandWildcards(mapping, item, nil)
	require.Error(t, err)
}

func TestExpandTargetPaths_ReturnsBindingsWithoutResolvingSource(t *testing.T) {
	t.Parallel()

	item := sampleItemWithAssets()
	mapping := map[string]string{"assets.*.extra": "record.value"}

	got, err := ExpandTargetPaths(mapping, item)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "B1", got[`assets.B1.extra`]["asset_key"])
	require.Equal(t, "record.value", got[`assets.B1.extra`]["__source__"])
}

func TestSubstituteTemplate_ResolvesFromBindingsOnly(t *testing.T) {
	t.Parallel()

	got, err := SubstituteTemplate("{asset_key}-{suffix}", map[string]string{"asset_key": "B1", "suffix": "v2"})
	require.NoError(t, err)
	require.Equal(t, "B1-v2", got)
}

func TestSubstituteTemplate_FailsOnMissingBinding(t *testing.T) {
	t.Parallel()

	_, err := SubstituteTemplate("{missing}", map[string]string{})
	require.Error(t, err)
}
