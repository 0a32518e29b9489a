// Package stacitem defines the wire representation of a STAC Item flowing
// through the pipeline: a plain, dynamically-typed map. Stages never
// promote items to a strongly typed struct; this keeps the engine
// agnostic to whichever STAC extensions a given workflow happens to use.
package stacitem

import (
	"reflect"
	"time"
)

// Item is a STAC Item: a GeoJSON Feature plus STAC-required fields. It is
// never replaced by a typed struct on the hot path.
type Item = map[string]any

// Well-known top-level keys.
const (
	KeyID             = "id"
	KeyType           = "type"
	KeyStacVersion    = "stac_version"
	KeyGeometry       = "geometry"
	KeyBBox           = "bbox"
	KeyProperties     = "properties"
	KeyAssets         = "assets"
	KeyLinks          = "links"
	KeyStacExtensions = "stac_extensions"
	KeyCollection     = "collection"
)

const FeatureType = "Feature"

// ID returns the item's id, or "" if absent or not a string.
func ID(item Item) string {
	if item == nil {
		return ""
	}
	v, _ := item[KeyID].(string)
	return v
}

// Properties returns item's "properties" map, creating it if absent.
func Properties(item Item) map[string]any {
	if item == nil {
		return nil
	}
	props, ok := item[KeyProperties].(map[string]any)
	if !ok {
		props = make(map[string]any)
		item[KeyProperties] = props
	}
	return props
}

// Assets returns item's "assets" map without creating it.
func Assets(item Item) map[string]any {
	if item == nil {
		return nil
	}
	assets, _ := item[KeyAssets].(map[string]any)
	return assets
}

// Failure is an immutable diagnostic record appended to the failure
// collector. Once appended it is never mutated, reordered, or deduplicated.
type Failure struct {
	StepID    string         `json:"step_id"`
	ItemID    string         `json:"item_id,omitempty"`
	ErrorType string         `json:"error_type"`
	Message   string         `json:"message"`
	Timestamp string         `json:"timestamp"`
	Context   map[string]any `json:"context,omitempty"`
}

// NowUTC returns the current instant formatted as RFC 3339 UTC with a "Z"
// suffix, the canonical timestamp shape used in failure records and the
// Update stage's auto_update_timestamp feature.
func NowUTC(now time.Time) string {
	return now.UTC().Format("2006-01-02T15:04:05Z")
}

// Dropped is the drop signal a Processor returns from Modify, in place of
// the item, when it wants the item removed from the stream rather than
// passed downstream. It is a distinguished Item; since Item is a map and
// thus not comparable, IsDropped recognises it by the identity of its
// underlying map, never by its contents.
var Dropped = Item{"__stacpipe_dropped__": true}

// IsDropped reports whether the supplied value is the drop signal.
func IsDropped(sentinel any) bool {
	item, ok := sentinel.(Item)
	if !ok || item == nil {
		return false
	}
	return reflect.ValueOf(item).Pointer() == reflect.ValueOf(Dropped).Pointer()
}

// ParquetRow is the fixed two-column Parquet row shape the Ingest and
// Output stages agree on. Items are schemaless maps, so rather than
// inferring a per-field column layout (which would require a full
// STAC-extension-aware schema registry), each row carries the item's id
// for fast lookups plus its full canonical JSON encoding.
type ParquetRow struct {
	ID       string `parquet:"id"`
	ItemJSON string `parquet:"item_json"`
}
