package field

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestJMESPath_EvaluatesSimpleQuery(t *testing.T) {
	t.Parallel()

	data := map[string]any{"properties": map[string]any{"eo:cloud_cover": 12.5}}
	got, err := JMESPath(data, "properties.\"eo:cloud_cover\"")
	require.NoError(t, err)
	require.Equal(t, 12.5, got)
}

func TestJMESPath_ReturnsDataProcessingErrorOnMalformedQuery(t *testing.T) {
	t.Parallel()

	_, err := JMESPath(map[string]any{}, "properties.[[")
	require.Error(t, err)
}

func TestJMESPath_CachesCompiledExpressions(t *testing.T) {
	t.Parallel()

	data := map[string]any{"a": 1}
	_, err := JMESPath(data, "a")
	require.NoError(t, err)

	compiledMu.Lock()
	_, cached := compiledCache["a"]
	compiledMu.Unlock()
	require.True(t, cached)
}
