package field

import (
	"sync"

	"github.com/jmespath/go-jmespath"

	"github.com/stacpipe/stacpipe/internal/stacerrors"
)

// compiledCache memoizes compiled JMESPath expressions; the same query
// string is typically evaluated once per item across a run.
var (
	compiledMu    sync.Mutex
	compiledCache = make(map[string]*jmespath.JMESPath)
)

// JMESPath evaluates a JMESPath query against item (or any JSON-like
// value), returning a DataProcessingError of kind "JMESPathError" for
// malformed queries or evaluation failures.
func JMESPath(data any, query string) (any, error) {
	expr, err := compile(query)
	if err != nil {
		return nil, stacerrors.NewDataProcessingError("", "", "JMESPathError", "malformed JMESPath query: "+query, nil, err)
	}

	result, err := expr.Search(data)
	if err != nil {
		return nil, stacerrors.NewDataProcessingError("", "", "JMESPathError", "JMESPath evaluation failed for query: "+query, nil, err)
	}
	return result, nil
}

func compile(query string) (*jmespath.JMESPath, error) {
	compiledMu.Lock()
	defer compiledMu.Unlock()

	if expr, ok := compiledCache[query]; ok {
		return expr, nil
	}

	expr, err := jmespath.Compile(query)
	if err != nil {
		return nil, err
	}
	compiledCache[query] = expr
	return expr, nil
}
