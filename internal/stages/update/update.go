// Package update implements the Update processor stage: declarative field
// edits via direct values, wildcard-expanded templates, and per-item
// patch files.
package update

import (
	"encoding/json"
	"os"
	"strings"
	"time"

	"github.com/stacpipe/stacpipe/internal/execctx"
	"github.com/stacpipe/stacpipe/internal/field"
	"github.com/stacpipe/stacpipe/internal/logger"
	"github.com/stacpipe/stacpipe/internal/stacerrors"
	"github.com/stacpipe/stacpipe/internal/stacitem"
	"github.com/stacpipe/stacpipe/internal/stage"
)

const stepKind = "update"

type updateStage struct {
	log *logger.Logger

	updates             map[string]any
	removes             []string
	patches             map[string]map[string]any
	createMissingPaths  bool
	autoUpdateTimestamp bool
	strict              bool

	now func() time.Time
}

// New constructs the Update stage from its raw config mapping.
func New(raw map[string]any) (stage.Stage, error) {
	s := &updateStage{
		createMissingPaths:  true,
		autoUpdateTimestamp: true,
		now:                 time.Now,
	}

	if updates, ok := raw["updates"].(map[string]any); ok {
		s.updates = updates
	}
	if removes, ok := raw["removes"].([]any); ok {
		for _, r := range removes {
			if rs, ok := r.(string); ok {
				s.removes = append(s.removes, rs)
			}
		}
	}
	if v, ok := raw["create_missing_paths"].(bool); ok {
		s.createMissingPaths = v
	}
	if v, ok := raw["auto_update_timestamp"].(bool); ok {
		s.autoUpdateTimestamp = v
	}
	if v, ok := raw["strict"].(bool); ok {
		s.strict = v
	}

	if patchFile, ok := raw["patch_file"].(string); ok && patchFile != "" {
		data, err := os.ReadFile(patchFile)
		if err != nil {
			return nil, stacerrors.NewConfigurationError("patch_file", "cannot read patch file: "+patchFile, err)
		}
		var patches map[string]map[string]any
		if err := json.Unmarshal(data, &patches); err != nil {
			return nil, stacerrors.NewConfigurationError("patch_file", "patch file is not a JSON object of id -> path/value: "+patchFile, err)
		}
		s.patches = patches
	}

	return s, nil
}

func (s *updateStage) SetLogger(log *logger.Logger) {
	s.log = log.Named(stepKind)
}

func (s *updateStage) Modify(item stacitem.Item, ctx *execctx.Context) (stacitem.Item, error) {
	itemID := stacitem.ID(item)

	for _, raw := range s.removes {
		field.Remove(item, field.ParsePath(raw))
	}

	if err := s.applyUpdates(item, ctx, s.updates, itemID); err != nil {
		return item, err
	}

	if s.patches != nil {
		if patch, ok := s.patches[itemID]; ok {
			if err := s.applyUpdates(item, ctx, patch, itemID); err != nil {
				return item, err
			}
		}
	}

	if s.autoUpdateTimestamp {
		props := stacitem.Properties(item)
		props["updated"] = stacitem.NowUTC(s.now())
	}

	return item, nil
}

func (s *updateStage) applyUpdates(item stacitem.Item, ctx *execctx.Context, updates map[string]any, itemID string) error {
	if len(updates) == 0 {
		return nil
	}

	templates := make(map[string]string, len(updates))
	literals := make(map[string]any, len(updates))
	for k, v := range updates {
		if str, ok := v.(string); ok {
			templates[k] = str
			continue
		}
		if strings.Contains(k, "*") {
			return stacerrors.NewConfigurationError(k, "wildcard update targets require a string template value", nil)
		}
		literals[k] = v
	}

	expanded, err := field.ExpandWildcards(templates, item, nil)
	if err != nil {
		if _, itemScoped := err.(*stacerrors.DataProcessingError); !itemScoped {
			return err
		}
		ctx.Failures.Append(stepKind, itemID, stacerrors.Kind(err), err.Error(), nil)
		if s.strict {
			return err
		}
		s.log.Warn("update templates could not be expanded", "error", err)
		expanded = nil
	}

	for path, value := range expanded {
		if setErr := field.Set(item, field.ParsePath(path), value, s.createMissingPaths); setErr != nil {
			ctx.Failures.Append(stepKind, itemID, stacerrors.Kind(setErr), setErr.Error(), map[string]any{"field_name": path})
			if s.strict {
				return setErr
			}
			s.log.Warn("update could not be applied", "path", path, "error", setErr)
		}
	}

	for path, value := range literals {
		if setErr := field.Set(item, field.ParsePath(path), value, s.createMissingPaths); setErr != nil {
			ctx.Failures.Append(stepKind, itemID, stacerrors.Kind(setErr), setErr.Error(), map[string]any{"field_name": path})
			if s.strict {
				return setErr
			}
			s.log.Warn("update could not be applied", "path", path, "error", setErr)
		}
	}

	return nil
}

func init() {
	stage.Register(stage.KindUpdate, New)
}
