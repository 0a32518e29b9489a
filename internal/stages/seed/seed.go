// Package seed implements the Seed source stage: it produces skeleton
// items from inline configuration or a JSON array file.
package seed

import (
	"encoding/json"
	"fmt"
	"os"

	"dario.cat/mergo"

	"github.com/stacpipe/stacpipe/internal/execctx"
	"github.com/stacpipe/stacpipe/internal/logger"
	"github.com/stacpipe/stacpipe/internal/stacerrors"
	"github.com/stacpipe/stacpipe/internal/stacitem"
	"github.com/stacpipe/stacpipe/internal/stage"
)

const stepKind = "seed"

type seedStage struct {
	log      *logger.Logger
	entries  []any
	defaults map[string]any
	idx      int
	emitted  int
}

// New constructs the Seed stage from its raw config mapping.
func New(raw map[string]any) (stage.Stage, error) {
	s := &seedStage{}

	var entries []any
	if sourceFile, ok := raw["source_file"].(string); ok && sourceFile != "" {
		data, err := os.ReadFile(sourceFile)
		if err != nil {
			return nil, stacerrors.NewConfigurationError("source_file", "cannot read seed source file: "+sourceFile, err)
		}
		var fileEntries []any
		if err := json.Unmarshal(data, &fileEntries); err != nil {
			return nil, stacerrors.NewConfigurationError("source_file", "seed source file is not a JSON array: "+sourceFile, err)
		}
		entries = append(entries, fileEntries...)
	}

	if items, ok := raw["items"].([]any); ok {
		entries = append(entries, items...)
	}
	s.entries = entries

	if defaults, ok := raw["defaults"].(map[string]any); ok {
		s.defaults = defaults
	} else {
		s.defaults = map[string]any{}
	}

	return s, nil
}

func (s *seedStage) SetLogger(log *logger.Logger) {
	s.log = log.Named(stepKind)
}

func (s *seedStage) Next(ctx *execctx.Context) (stacitem.Item, bool, error) {
	for s.idx < len(s.entries) {
		raw := s.entries[s.idx]
		s.idx++

		entry, err := normalize(raw)
		if err != nil {
			ctx.Failures.Append(stepKind, "", stacerrors.Kind(err), err.Error(), nil)
			s.log.Warn("skipping malformed seed entry", "error", err)
			continue
		}

		merged := map[string]any{}
		if err := mergo.Merge(&merged, s.defaults); err != nil {
			return nil, false, stacerrors.NewUnexpectedError(stepKind, err)
		}
		if err := mergo.Merge(&merged, entry, mergo.WithOverride()); err != nil {
			return nil, false, stacerrors.NewUnexpectedError(stepKind, err)
		}

		if _, hasCollection := merged[stacitem.KeyCollection]; !hasCollection {
			if collectionID, ok := ctx.Data["collection_id"]; ok {
				merged[stacitem.KeyCollection] = collectionID
			}
		}

		s.emitted++
		return merged, true, nil
	}

	if s.emitted == 0 && len(s.entries) == 0 {
		s.log.Warn("seed produced zero items")
	}
	return nil, false, nil
}

func normalize(raw any) (map[string]any, error) {
	switch v := raw.(type) {
	case string:
		return map[string]any{stacitem.KeyID: v}, nil
	case map[string]any:
		return v, nil
	default:
		return nil, stacerrors.NewDataProcessingError(stepKind, "", "InvalidSeedEntry",
			fmt.Sprintf("seed entry is neither a string nor a mapping: %v", raw), nil, nil)
	}
}

func init() {
	stage.Register(stage.KindSeed, New)
}
