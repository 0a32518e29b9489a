package stacitem

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestID_ReturnsEmptyForNilOrMissing(t *testing.T) {
	t.Parallel()

	require.Equal(t, "", ID(nil))
	require.Equal(t, "", ID(Item{}))
	require.Equal(t, "item-1", ID(Item{KeyID: "item-1"}))
}

func TestProperties_CreatesMapWhenAbsent(t *testing.T) {
	t.Parallel()

	item := Item{}
	props := Properties(item)
	require.NotNil(t, props)
	require.Same(t, props, item[KeyProperties].(map[string]any))
}

func TestProperties_ReturnsExistingMapUnchanged(t *testing.T) {
	t.Parallel()

	existing := map[string]any{"datetime": "2026-01-01T00:00:00Z"}
	item := Item{KeyProperties: existing}

	props := Properties(item)
	props["eo:cloud_cover"] = 5.0
	require.Equal(t, 5.0, existing["eo:cloud_cover"])
}

func TestAssets_DoesNotCreateMapWhenAbsent(t *testing.T) {
	t.Parallel()

	item := Item{}
	require.Nil(t, Assets(item))
	require.NotContains(t, item, KeyAssets)
}

func TestNowUTC_FormatsAsRFC3339WithZSuffix(t *testing.T) {
	t.Parallel()

	got := NowUTC(time.Date(2026, 7, 30, 12, 0, 0, 0, time.FixedZone("UTC-5", -5*60*60)))
	require.Equal(t, "2026-07-30T17:00:00Z", got)
}

func TestIsDropped_DistinguishesSentinelFromOrdinaryItem(t *testing.T) {
	t.Parallel()

	require.True(t, IsDropped(Dropped))
	require.False(t, IsDropped(Item{KeyID: "item-1"}))
	require.False(t, IsDropped(nil))
}
