// Package extension implements the Extension processor stage: scaffolds a
// STAC extension onto items using the extension's own JSON Schema as a
// source of truth for which fields belong under properties.
package extension

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/stacpipe/stacpipe/internal/execctx"
	"github.com/stacpipe/stacpipe/internal/field"
	"github.com/stacpipe/stacpipe/internal/logger"
	"github.com/stacpipe/stacpipe/internal/stacerrors"
	"github.com/stacpipe/stacpipe/internal/stacitem"
	"github.com/stacpipe/stacpipe/internal/stage"
)

const stepKind = "extension"

type extensionStage struct {
	log *logger.Logger

	schemaURI     string
	template      map[string]any
	validate      bool
	validateStage stage.Processor
}

// New constructs the Extension stage, fetching and compiling its template
// from schema_uri once so every item reuses the same scaffold.
func New(raw map[string]any) (stage.Stage, error) {
	schemaURI, _ := raw["schema_uri"].(string)
	if schemaURI == "" {
		return nil, stacerrors.NewConfigurationError("schema_uri", "extension stage requires schema_uri", nil)
	}

	schema, err := fetchSchema(schemaURI)
	if err != nil {
		return nil, stacerrors.NewConfigurationError("schema_uri", "failed to fetch extension schema: "+schemaURI, err)
	}

	template := deriveTemplate(schema)

	// defaults is shaped like an item fragment (e.g. {"properties":
	// {"custom:value": 42}}), matching the shape stages like Seed accept,
	// not a flat property-bag — only its "properties" sub-map overlays
	// the derived template.
	if defaults, ok := raw["defaults"].(map[string]any); ok {
		if propDefaults, ok := defaults[stacitem.KeyProperties].(map[string]any); ok {
			template = field.DeepMerge(template, propDefaults, field.StrategyOverwrite)
		}
	}

	s := &extensionStage{
		schemaURI: schemaURI,
		template:  template,
	}
	if v, ok := raw["validate"].(bool); ok && v {
		s.validate = true
		validator, err := stage.New(stage.KindValidate, map[string]any{"strict": false})
		if err != nil {
			return nil, stacerrors.NewConfigurationError("validate", "extension stage could not construct validator", err)
		}
		processor, ok := validator.(stage.Processor)
		if !ok {
			return nil, stacerrors.NewConfigurationError("validate", "validate module does not implement Processor", nil)
		}
		s.validateStage = processor
	}

	return s, nil
}

func (s *extensionStage) SetLogger(log *logger.Logger) {
	s.log = log.Named(stepKind)
	if s.validateStage != nil {
		s.validateStage.SetLogger(s.log)
	}
}

func (s *extensionStage) Modify(item stacitem.Item, ctx *execctx.Context) (stacitem.Item, error) {
	exts, _ := item[stacitem.KeyStacExtensions].([]any)
	found := false
	for _, e := range exts {
		if es, ok := e.(string); ok && es == s.schemaURI {
			found = true
			break
		}
	}
	if !found {
		item[stacitem.KeyStacExtensions] = append(exts, s.schemaURI)
	}

	props := stacitem.Properties(item)
	merged := field.DeepMerge(props, s.template, field.StrategyKeepExisting)
	item[stacitem.KeyProperties] = merged

	s.log.Debug("scaffolded extension onto item", "item_id", stacitem.ID(item), "schema_uri", s.schemaURI)

	if s.validateStage != nil {
		return s.validateStage.Modify(item, ctx)
	}

	return item, nil
}

// fetchSchema retrieves and decodes the extension's JSON Schema document.
func fetchSchema(uri string) (map[string]any, error) {
	client := &http.Client{Timeout: 15 * time.Second}
	resp, err := client.Get(uri)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d fetching %s", resp.StatusCode, uri)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var schema map[string]any
	if err := json.Unmarshal(body, &schema); err != nil {
		return nil, err
	}
	return schema, nil
}

// deriveTemplate walks an extension schema down to its item-properties
// sub-schema and produces a zero-valued scaffold of the fields it declares.
// STAC extension schemas typically shape the Item variant as
// properties.properties.properties (top-level Item schema -> "properties"
// field -> the nested property-bag schema), or as a oneOf listing separate
// Item/Collection/Catalog variants.
func deriveTemplate(schema map[string]any) map[string]any {
	variant := schema
	if oneOf, ok := schema["oneOf"].([]any); ok {
		for _, v := range oneOf {
			vm, ok := v.(map[string]any)
			if !ok {
				continue
			}
			if isFeatureVariant(vm) {
				variant = vm
				break
			}
		}
	}

	propBag := diveProperties(variant)
	if propBag == nil {
		return map[string]any{}
	}

	out := make(map[string]any, len(propBag))
	for name, def := range propBag {
		out[name] = zeroValueFor(def)
	}
	return out
}

func isFeatureVariant(schema map[string]any) bool {
	props, ok := schema["properties"].(map[string]any)
	if !ok {
		return false
	}
	typeSchema, ok := props["type"].(map[string]any)
	if !ok {
		return false
	}
	constVal, _ := typeSchema["const"].(string)
	return constVal == stacitem.FeatureType
}

// diveProperties descends schema.properties.properties.properties, the
// conventional path to an extension's property-bag field definitions.
func diveProperties(schema map[string]any) map[string]any {
	props, ok := schema["properties"].(map[string]any)
	if !ok {
		return nil
	}
	propertiesField, ok := props["properties"].(map[string]any)
	if !ok {
		return nil
	}
	bag, ok := propertiesField["properties"].(map[string]any)
	if !ok {
		return nil
	}
	return bag
}

func zeroValueFor(def any) any {
	defSchema, ok := def.(map[string]any)
	if !ok {
		return nil
	}
	if dflt, ok := defSchema["default"]; ok {
		return dflt
	}
	switch defSchema["type"] {
	case "string":
		return ""
	case "number":
		return 0.0
	case "integer":
		return 0
	case "boolean":
		return false
	case "array":
		return []any{}
	case "object":
		return map[string]any{}
	default:
		return nil
	}
}

func init() {
	stage.Register(stage.KindExtension, New)
}
