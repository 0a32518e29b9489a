// Package validate implements the Validate processor stage: checks items
// against the STAC core schema and configured extension schemas.
package validate

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/kaptinlin/jsonschema"

	"github.com/stacpipe/stacpipe/internal/execctx"
	"github.com/stacpipe/stacpipe/internal/logger"
	"github.com/stacpipe/stacpipe/internal/stacerrors"
	"github.com/stacpipe/stacpipe/internal/stacitem"
	"github.com/stacpipe/stacpipe/internal/stage"
)

const stepKind = "validate"

type validateStage struct {
	log *logger.Logger

	strict           bool
	extensionSchemas []string
	compiler         *jsonschema.Compiler
	core             *jsonschema.Schema
	extensionCacheMu sync.Mutex
	extensionCache   map[string]*jsonschema.Schema
	httpClient       *http.Client
}

// New constructs the Validate stage, compiling the core schema eagerly.
func New(raw map[string]any) (stage.Stage, error) {
	s := &validateStage{
		compiler:       jsonschema.NewCompiler(),
		extensionCache: make(map[string]*jsonschema.Schema),
		httpClient:     &http.Client{Timeout: 15 * time.Second},
	}

	if v, ok := raw["strict"].(bool); ok {
		s.strict = v
	}
	if schemas, ok := raw["extension_schemas"].([]any); ok {
		for _, sc := range schemas {
			if scs, ok := sc.(string); ok {
				s.extensionSchemas = append(s.extensionSchemas, scs)
			}
		}
	}

	core, err := s.compiler.Compile([]byte(coreSchema))
	if err != nil {
		return nil, stacerrors.NewConfigurationError("validate", "failed to compile core STAC schema", err)
	}
	s.core = core

	return s, nil
}

func (s *validateStage) SetLogger(log *logger.Logger) {
	s.log = log.Named(stepKind)
}

func (s *validateStage) Modify(item stacitem.Item, ctx *execctx.Context) (stacitem.Item, error) {
	itemID := stacitem.ID(item)

	var messages []string

	if result := s.core.Validate(item); !result.IsValid() {
		messages = append(messages, collectErrors(result)...)
	}

	schemaURLs := append([]string{}, s.extensionSchemas...)
	if exts, ok := item[stacitem.KeyStacExtensions].([]any); ok {
		for _, e := range exts {
			if es, ok := e.(string); ok {
				schemaURLs = append(schemaURLs, es)
			}
		}
	}

	for _, url := range schemaURLs {
		schema, err := s.loadExtensionSchema(url)
		if err != nil {
			messages = append(messages, fmt.Sprintf("schema %s: %v", url, err))
			continue
		}
		if result := schema.Validate(item); !result.IsValid() {
			messages = append(messages, collectErrors(result)...)
		}
	}

	if len(messages) == 0 {
		return item, nil
	}

	joined := strings.Join(messages, "; ")
	err := stacerrors.NewDataProcessingError(stepKind, itemID, "ValidationError", joined, nil, nil)
	ctx.Failures.Append(stepKind, itemID, "ValidationError", joined, nil)

	if s.strict {
		return item, err
	}

	s.log.Info("item failed validation and was dropped", "item_id", itemID, "reason", joined)
	return stacitem.Dropped, nil
}

func (s *validateStage) loadExtensionSchema(url string) (*jsonschema.Schema, error) {
	s.extensionCacheMu.Lock()
	if schema, ok := s.extensionCache[url]; ok {
		s.extensionCacheMu.Unlock()
		return schema, nil
	}
	s.extensionCacheMu.Unlock()

	resp, err := s.httpClient.Get(url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	schema, err := s.compiler.Compile(body)
	if err != nil {
		return nil, err
	}

	s.extensionCacheMu.Lock()
	s.extensionCache[url] = schema
	s.extensionCacheMu.Unlock()
	return schema, nil
}

func collectErrors(result *jsonschema.EvaluationResult) []string {
	if result == nil || len(result.Errors) == 0 {
		return []string{"schema validation failed"}
	}
	out := make([]string, 0, len(result.Errors))
	for path, detail := range result.Errors {
		out = append(out, fmt.Sprintf("%s: %v", path, detail))
	}
	return out
}

func init() {
	stage.Register(stage.KindValidate, New)
}
