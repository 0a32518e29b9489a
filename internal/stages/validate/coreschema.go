package validate

// coreSchema is the minimal STAC Item core schema the engine validates
// against. The canonical, fully-featured STAC core/extension schema
// catalog is explicitly out of scope for the core (consumed via
// libraries in a full deployment); this is the structural subset needed
// to enforce the invariants in the data model (non-empty id, Feature
// type, properties.datetime).
const coreSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://stacpipe.internal/schemas/core-item.json",
  "type": "object",
  "required": ["id", "type", "stac_version", "properties", "assets", "links"],
  "properties": {
    "id": {"type": "string", "minLength": 1},
    "type": {"const": "Feature"},
    "stac_version": {"type": "string"},
    "geometry": {"type": ["object", "null"]},
    "bbox": {"type": ["array", "null"]},
    "properties": {
      "type": "object",
      "required": ["datetime"]
    },
    "assets": {"type": "object"},
    "links": {"type": "array"},
    "stac_extensions": {"type": "array", "items": {"type": "string"}}
  }
}`
