package workflow

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/stacpipe/stacpipe/internal/stage"
)

func TestExpandMatrix_StepWithoutMatrixYieldsOneStep(t *testing.T) {
	t.Parallel()

	doc := &Document{Steps: []Step{{ID: "ingest", Module: stage.KindIngest}}}
	got := ExpandMatrix(doc)

	require.Len(t, got, 1)
	require.Equal(t, "ingest", got[0].ID)
	require.Equal(t, "ingest", got[0].OriginalID)
	require.Nil(t, got[0].Coordinate)
}

func TestExpandMatrix_ProducesCartesianProductOfAxes(t *testing.T) {
	t.Parallel()

	doc := &Document{Steps: []Step{{
		ID:     "ingest",
		Module: stage.KindIngest,
		Matrix: map[string][]any{
			"collection": {"landsat-8", "sentinel-2"},
			"region":     {"us", "eu"},
		},
	}}}

	got := ExpandMatrix(doc)
	require.Len(t, got, 4)

	var ids []string
	for _, es := range got {
		require.Equal(t, "ingest", es.OriginalID)
		ids = append(ids, es.ID)
	}
	require.ElementsMatch(t, []string{
		"ingest#collection=landsat-8,region=us",
		"ingest#collection=landsat-8,region=eu",
		"ingest#collection=sentinel-2,region=us",
		"ingest#collection=sentinel-2,region=eu",
	}, ids)
}

func TestExpandMatrix_IsDeterministicAcrossCalls(t *testing.T) {
	t.Parallel()

	doc := &Document{Steps: []Step{{
		ID:     "ingest",
		Module: stage.KindIngest,
		Matrix: map[string][]any{"collection": {"a", "b", "c"}},
	}}}

	first := ExpandMatrix(doc)
	second := ExpandMatrix(doc)

	require.Equal(t, first, second)
}

func TestSiblingsOf_GroupsByOriginalID(t *testing.T) {
	t.Parallel()

	doc := &Document{Steps: []Step{{
		ID:     "ingest",
		Module: stage.KindIngest,
		Matrix: map[string][]any{"collection": {"a", "b"}},
	}}}

	expanded := ExpandMatrix(doc)
	siblings := SiblingsOf(expanded)

	require.Len(t, siblings["ingest"], 2)
}
