// Package transform implements the Transform processor stage: enriches
// items from a sidecar record file using declarative, wildcard-expanded
// field mappings.
package transform

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/stacpipe/stacpipe/internal/execctx"
	"github.com/stacpipe/stacpipe/internal/field"
	"github.com/stacpipe/stacpipe/internal/logger"
	"github.com/stacpipe/stacpipe/internal/stacerrors"
	"github.com/stacpipe/stacpipe/internal/stacitem"
	"github.com/stacpipe/stacpipe/internal/stage"
)

const stepKind = "transform"

const (
	strategyUpdateExisting = "update_existing"
	strategyMerge          = "merge"
)

type transformStage struct {
	log *logger.Logger

	fieldMapping map[string]string
	strategy     string

	index map[string]map[string]any
}

// New constructs the Transform stage, building its id -> record index once
// from the configured sidecar file.
func New(raw map[string]any) (stage.Stage, error) {
	s := &transformStage{
		strategy: strategyUpdateExisting,
	}

	mapping, ok := raw["field_mapping"].(map[string]any)
	if !ok || len(mapping) == 0 {
		return nil, stacerrors.NewConfigurationError("field_mapping", "transform stage requires a non-empty field_mapping", nil)
	}
	s.fieldMapping = make(map[string]string, len(mapping))
	for k, v := range mapping {
		vs, ok := v.(string)
		if !ok {
			return nil, stacerrors.NewConfigurationError("field_mapping", fmt.Sprintf("field_mapping value for %q must be a string expression", k), nil)
		}
		s.fieldMapping[k] = vs
	}

	if strat, ok := raw["strategy"].(string); ok && strat != "" {
		if strat != strategyUpdateExisting && strat != strategyMerge {
			return nil, stacerrors.NewConfigurationError("strategy", "strategy must be update_existing or merge, got "+strat, nil)
		}
		s.strategy = strat
	}

	inputFile, _ := raw["input_file"].(string)
	if inputFile == "" {
		return nil, stacerrors.NewConfigurationError("input_file", "transform stage requires input_file", nil)
	}
	joinKey, _ := raw["input_join_key"].(string)
	if joinKey == "" {
		joinKey = "id"
	}
	dataPath, _ := raw["data_path"].(string)

	index, err := buildIndex(inputFile, joinKey, dataPath)
	if err != nil {
		return nil, stacerrors.NewConfigurationError("input_file", "failed to build transform index from "+inputFile, err)
	}
	s.index = index

	return s, nil
}

func (s *transformStage) SetLogger(log *logger.Logger) {
	s.log = log.Named(stepKind)
}

func (s *transformStage) Modify(item stacitem.Item, ctx *execctx.Context) (stacitem.Item, error) {
	itemID := stacitem.ID(item)

	record, ok := s.index[itemID]
	if !ok {
		return item, nil
	}

	baseBindings := map[string]string{"item_id": itemID}
	if cid, ok := item[stacitem.KeyCollection].(string); ok {
		baseBindings["collection_id"] = cid
	}

	expanded, err := field.ExpandTargetPaths(s.fieldMapping, item)
	if err != nil {
		return item, err
	}

	written := 0
	for targetPath, wildcardBindings := range expanded {
		sourceExpr := wildcardBindings["__source__"]

		localBindings := make(map[string]string, len(baseBindings)+len(wildcardBindings))
		for k, v := range baseBindings {
			localBindings[k] = v
		}
		for k, v := range wildcardBindings {
			if k != "__source__" {
				localBindings[k] = v
			}
		}

		value, evalErr := resolveSource(sourceExpr, record, localBindings)
		if evalErr != nil {
			ctx.Failures.Append(stepKind, itemID, stacerrors.Kind(evalErr), evalErr.Error(), map[string]any{"field_name": targetPath})
			s.log.Warn("could not resolve transform source expression", "path", targetPath, "error", evalErr)
			continue
		}

		path := field.ParsePath(targetPath)
		if s.strategy == strategyUpdateExisting {
			existing := field.Get(item, path, nil)
			if existing == nil {
				continue
			}
		}

		if setErr := field.Set(item, path, value, true); setErr != nil {
			ctx.Failures.Append(stepKind, itemID, stacerrors.Kind(setErr), setErr.Error(), map[string]any{"field_name": targetPath})
			s.log.Warn("could not write transform field", "path", targetPath, "error", setErr)
			continue
		}
		written++
		s.log.Debug("wrote transform field", "path", targetPath, "value", value)
	}

	s.log.Info("transform applied to item", "item_id", itemID, "fields_written", written)

	return item, nil
}

// resolveSource evaluates a field_mapping source expression against a
// record. Template placeholders ("{asset_key}" and friends) are resolved
// first; the result is then tried as a JMESPath query against the record,
// falling back to the substituted string itself when that query yields
// nothing (a plain literal, not a path into the record).
func resolveSource(expr string, record map[string]any, bindings map[string]string) (any, error) {
	query := expr
	if strings.ContainsAny(expr, "{}") {
		substituted, err := field.SubstituteTemplate(expr, bindings)
		if err != nil {
			return nil, err
		}
		query = substituted
	}
	if v, err := field.JMESPath(record, query); err == nil && v != nil {
		return v, nil
	}
	return query, nil
}

// buildIndex loads the sidecar file and returns an id -> record index.
func buildIndex(path, joinKey, dataPath string) (map[string]map[string]any, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	records, err := extractRecords(path, raw, dataPath)
	if err != nil {
		return nil, err
	}

	index := make(map[string]map[string]any, len(records))
	for _, rec := range records {
		id, _ := rec[joinKey].(string)
		if id == "" {
			continue
		}
		index[id] = rec
	}
	return index, nil
}

func extractRecords(path string, raw []byte, dataPath string) ([]map[string]any, error) {
	if strings.HasSuffix(path, ".csv") {
		return parseCSV(raw)
	}

	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, err
	}

	if dataPath != "" {
		extracted, err := field.JMESPath(decoded, dataPath)
		if err != nil {
			return nil, err
		}
		decoded = extracted
	}

	switch v := decoded.(type) {
	case map[string]any:
		records := make([]map[string]any, 0, len(v))
		for id, val := range v {
			rec, ok := val.(map[string]any)
			if !ok {
				continue
			}
			if _, has := rec["id"]; !has {
				rec["id"] = id
			}
			records = append(records, rec)
		}
		return records, nil
	case []any:
		records := make([]map[string]any, 0, len(v))
		for _, item := range v {
			if rec, ok := item.(map[string]any); ok {
				records = append(records, rec)
			}
		}
		return records, nil
	default:
		return nil, fmt.Errorf("transform input_file did not decode to an object or array")
	}
}

func parseCSV(raw []byte) ([]map[string]any, error) {
	reader := csv.NewReader(strings.NewReader(string(raw)))
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	header := rows[0]
	records := make([]map[string]any, 0, len(rows)-1)
	for _, row := range rows[1:] {
		rec := make(map[string]any, len(header))
		for i, col := range header {
			if i < len(row) {
				rec[col] = row[i]
			}
		}
		records = append(records, rec)
	}
	return records, nil
}

func init() {
	stage.Register(stage.KindTransform, New)
}
