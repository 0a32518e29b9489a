package field

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"

	"github.com/stacpipe/stacpipe/internal/stacerrors"
	"github.com/stacpipe/stacpipe/internal/stacitem"
)

var templateVarPattern = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_:.\-]*)\}`)

// ExpandWildcards takes a mapping whose keys are dotted paths that may
// contain a single "*" segment and returns the mapping with each "*"
// replaced by every concrete key found in item at that position. Values
// are templates: "{asset_key}", "{item_id}", "{collection_id}", and any
// key present in bindings are substituted per expansion. A key with more
// than one "*" segment is rejected — wildcards do not compose.
func ExpandWildcards(mapping map[string]string, item map[string]any, bindings map[string]string) (map[string]string, error) {
	out := make(map[string]string, len(mapping))

	keys := make([]string, 0, len(mapping))
	for k := range mapping {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, rawKey := range keys {
		template := mapping[rawKey]
		path := ParsePath(rawKey)

		star := -1
		for i, seg := range path {
			if seg == "*" {
				if star != -1 {
					return nil, stacerrors.NewConfigurationError(rawKey,
						"wildcard path contains more than one '*' segment; multiple wildcards in one key are forbidden", nil)
				}
				star = i
			}
		}

		if star == -1 {
			value, err := substituteTemplate(template, item, bindings, nil)
			if err != nil {
				return nil, err
			}
			out[rawKey] = value
			continue
		}

		parentPath := path[:star]
		parent := Get(item, parentPath, nil)
		parentMap, ok := parent.(map[string]any)
		if !ok {
			// No matches at this position; nothing to expand.
			continue
		}

		bindingName := "key_" + strconv.Itoa(star)
		if star > 0 && path[star-1] == stacitem.KeyAssets {
			bindingName = "asset_key"
		}

		matchKeys := make([]string, 0, len(parentMap))
		for k := range parentMap {
			matchKeys = append(matchKeys, k)
		}
		sort.Strings(matchKeys)

		for _, matchKey := range matchKeys {
			expandedPath := make(Path, 0, len(path))
			expandedPath = append(expandedPath, path[:star]...)
			expandedPath = append(expandedPath, matchKey)
			expandedPath = append(expandedPath, path[star+1:]...)

			localBindings := map[string]string{bindingName: matchKey}
			for k, v := range bindings {
				localBindings[k] = v
			}

			value, err := substituteTemplate(template, item, bindings, localBindings)
			if err != nil {
				return nil, err
			}
			out[expandedPath.String()] = value
		}
	}

	return out, nil
}

// ExpandTargetPaths expands the wildcard segment in each key of mapping
// against item's structure, like ExpandWildcards, but returns the matched
// wildcard binding (name -> concrete key) per expansion instead of
// resolving the value side as a template. Transform uses this to expand
// target paths against the item while resolving each source expression
// against a separate sidecar record.
func ExpandTargetPaths(mapping map[string]string, item map[string]any) (map[string]map[string]string, error) {
	out := make(map[string]map[string]string, len(mapping))

	keys := make([]string, 0, len(mapping))
	for k := range mapping {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, rawKey := range keys {
		sourceExpr := mapping[rawKey]
		path := ParsePath(rawKey)

		star := -1
		for i, seg := range path {
			if seg == "*" {
				if star != -1 {
					return nil, stacerrors.NewConfigurationError(rawKey,
						"wildcard path contains more than one '*' segment; multiple wildcards in one key are forbidden", nil)
				}
				star = i
			}
		}

		if star == -1 {
			out[rawKey] = map[string]string{"__source__": sourceExpr}
			continue
		}

		parentPath := path[:star]
		parent := Get(item, parentPath, nil)
		parentMap, ok := parent.(map[string]any)
		if !ok {
			continue
		}

		bindingName := "key_" + strconv.Itoa(star)
		if star > 0 && path[star-1] == stacitem.KeyAssets {
			bindingName = "asset_key"
		}

		matchKeys := make([]string, 0, len(parentMap))
		for k := range parentMap {
			matchKeys = append(matchKeys, k)
		}
		sort.Strings(matchKeys)

		for _, matchKey := range matchKeys {
			expandedPath := make(Path, 0, len(path))
			expandedPath = append(expandedPath, path[:star]...)
			expandedPath = append(expandedPath, matchKey)
			expandedPath = append(expandedPath, path[star+1:]...)

			out[expandedPath.String()] = map[string]string{
				bindingName:  matchKey,
				"__source__": sourceExpr,
			}
		}
	}

	return out, nil
}

func substituteTemplate(template string, item map[string]any, bindings, wildcardBindings map[string]string) (string, error) {
	var outErr error
	result := templateVarPattern.ReplaceAllStringFunc(template, func(match string) string {
		name := templateVarPattern.FindStringSubmatch(match)[1]

		if wildcardBindings != nil {
			if v, ok := wildcardBindings[name]; ok {
				return v
			}
		}
		switch name {
		case "item_id":
			return stacitem.ID(item)
		case "collection_id":
			if v, ok := item[stacitem.KeyCollection].(string); ok {
				return v
			}
			return ""
		}
		if v, ok := bindings[name]; ok {
			return v
		}
		outErr = stacerrors.NewDataProcessingError("", stacitem.ID(item), "TemplateBindingMissing",
			fmt.Sprintf("no binding for template variable %q", name), nil, nil)
		return match
	})
	if outErr != nil {
		return "", outErr
	}
	return result, nil
}

// SubstituteTemplate resolves "{name}" placeholders in template purely
// from bindings (no item traversal), for callers — like Transform — that
// resolve source expressions against a sidecar record rather than the
// item itself.
func SubstituteTemplate(template string, bindings map[string]string) (string, error) {
	var outErr error
	result := templateVarPattern.ReplaceAllStringFunc(template, func(match string) string {
		name := templateVarPattern.FindStringSubmatch(match)[1]
		if v, ok := bindings[name]; ok {
			return v
		}
		outErr = stacerrors.NewDataProcessingError("", "", "TemplateBindingMissing",
			fmt.Sprintf("no binding for template variable %q", name), nil, nil)
		return match
	})
	if outErr != nil {
		return "", outErr
	}
	return result, nil
}
