package geometry

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidateAndRepair_ClosesUnclosedRing(t *testing.T) {
	t.Parallel()

	geom := map[string]any{
		"type": "Polygon",
		"coordinates": []any{
			[]any{
				[]any{0.0, 0.0}, []any{0.0, 2.0}, []any{2.0, 2.0}, []any{2.0, 0.0},
			},
		},
	}

	repaired, warnings := ValidateAndRepair(geom)
	require.NotNil(t, repaired)
	require.NotEmpty(t, warnings)

	ring := repaired["coordinates"].([]any)[0].([]any)
	require.Len(t, ring, 5)
	require.Equal(t, ring[0], ring[len(ring)-1])
}

func TestValidateAndRepair_ValidGeometryPassesThroughUnchanged(t *testing.T) {
	t.Parallel()

	geom := map[string]any{
		"type": "Polygon",
		"coordinates": []any{
			[]any{
				[]any{0.0, 0.0}, []any{0.0, 2.0}, []any{2.0, 2.0}, []any{2.0, 0.0}, []any{0.0, 0.0},
			},
		},
	}

	repaired, warnings := ValidateAndRepair(geom)
	require.Equal(t, geom, repaired)
	require.Empty(t, warnings)
}

func TestValidateAndRepair_TooFewPointsIsUnrepairable(t *testing.T) {
	t.Parallel()

	geom := map[string]any{
		"type":        "Polygon",
		"coordinates": []any{[]any{[]any{0.0, 0.0}, []any{1.0, 1.0}}},
	}

	repaired, warnings := ValidateAndRepair(geom)
	require.Nil(t, repaired)
	require.NotEmpty(t, warnings)
}

func TestValidateAndRepair_NilGeometryIsNoOp(t *testing.T) {
	t.Parallel()

	repaired, warnings := ValidateAndRepair(nil)
	require.Nil(t, repaired)
	require.Nil(t, warnings)
}

func TestValidateAndRepair_UnrecognizedTypeFails(t *testing.T) {
	t.Parallel()

	geom := map[string]any{"type": "NotAGeometry"}
	repaired, warnings := ValidateAndRepair(geom)
	require.Nil(t, repaired)
	require.NotEmpty(t, warnings)
}
