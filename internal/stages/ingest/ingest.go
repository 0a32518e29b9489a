// Package ingest implements the Ingest source stage: bulk item retrieval
// from either the local filesystem (JSON, Parquet, or a directory of
// items) or a STAC API.
package ingest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/stacpipe/stacpipe/internal/execctx"
	"github.com/stacpipe/stacpipe/internal/logger"
	"github.com/stacpipe/stacpipe/internal/stacerrors"
	"github.com/stacpipe/stacpipe/internal/stacitem"
	"github.com/stacpipe/stacpipe/internal/stage"
)

const stepKind = "ingest"

type ingestStage struct {
	log *logger.Logger

	source   string
	apiMode  bool
	maxItems int
	limit    int
	strict   bool
	client   *http.Client

	collections []string
	bbox        []float64
	datetime    string
	query       map[string]any

	fileItems []stacitem.Item
	fileIdx   int
	emitted   int

	apiPage     []stacitem.Item
	apiPageIdx  int
	nextURL     string
	apiStarted  bool
	apiFinished bool
}

// New constructs the Ingest stage from its raw config mapping.
func New(raw map[string]any) (stage.Stage, error) {
	s := &ingestStage{
		client: &http.Client{Timeout: 30 * time.Second},
		strict: boolOr(raw["strict"], false),
	}

	source, _ := raw["source"].(string)
	if source == "" {
		return nil, stacerrors.NewConfigurationError("source", "ingest requires a non-empty source", nil)
	}
	s.source = source
	s.apiMode = strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://")

	if v, ok := raw["max_items"]; ok {
		s.maxItems = intOr(v, 0)
	}
	if v, ok := raw["limit"]; ok {
		s.limit = intOr(v, 100)
	} else {
		s.limit = 100
	}

	if cols, ok := raw["collections"].([]any); ok {
		for _, c := range cols {
			if cs, ok := c.(string); ok {
				s.collections = append(s.collections, cs)
			}
		}
	}
	if bboxRaw, ok := raw["bbox"].([]any); ok {
		for _, v := range bboxRaw {
			if f, ok := toFloat(v); ok {
				s.bbox = append(s.bbox, f)
			}
		}
	}
	if dt, ok := raw["datetime"].(string); ok {
		s.datetime = dt
	}
	if q, ok := raw["query"].(map[string]any); ok {
		s.query = q
	}

	if !s.apiMode {
		items, err := loadFileItems(source)
		if err != nil {
			return nil, stacerrors.NewConfigurationError("source", "cannot load ingest source: "+source, err)
		}
		s.fileItems = items
	}

	return s, nil
}

func (s *ingestStage) SetLogger(log *logger.Logger) {
	s.log = log.Named(stepKind)
}

// Next yields the next item from the file list or the API page stream.
func (s *ingestStage) Next(ctx *execctx.Context) (stacitem.Item, bool, error) {
	if s.maxItems > 0 && s.emitted >= s.maxItems {
		return nil, false, nil
	}

	if !s.apiMode {
		if s.fileIdx >= len(s.fileItems) {
			return nil, false, nil
		}
		item := s.fileItems[s.fileIdx]
		s.fileIdx++
		s.emitted++
		return item, true, nil
	}

	return s.nextFromAPI(ctx)
}

func (s *ingestStage) nextFromAPI(ctx *execctx.Context) (stacitem.Item, bool, error) {
	for {
		if s.apiPageIdx < len(s.apiPage) {
			item := s.apiPage[s.apiPageIdx]
			s.apiPageIdx++
			s.emitted++
			return item, true, nil
		}

		if s.apiFinished {
			return nil, false, nil
		}

		if err := s.fetchPage(ctx); err != nil {
			if s.strict {
				return nil, false, err
			}
			s.apiFinished = true
			return nil, false, nil
		}

		if len(s.apiPage) == 0 {
			s.apiFinished = true
			return nil, false, nil
		}
	}
}

func (s *ingestStage) fetchPage(ctx *execctx.Context) error {
	overrides := ctx.Data
	collections := s.collections
	if v, ok := overrides["collections"].([]string); ok {
		collections = v
	}
	bbox := s.bbox
	if v, ok := overrides["bbox"].([]float64); ok {
		bbox = v
	}
	datetime := s.datetime
	if v, ok := overrides["datetime"].(string); ok {
		datetime = v
	}

	url := s.nextURL
	var body []byte
	if url == "" {
		if !s.apiStarted {
			s.apiStarted = true
			searchBody := map[string]any{"limit": s.limit}
			if len(collections) > 0 {
				searchBody["collections"] = collections
			}
			if len(bbox) > 0 {
				searchBody["bbox"] = bbox
			}
			if datetime != "" {
				searchBody["datetime"] = datetime
			}
			if len(s.query) > 0 {
				searchBody["query"] = s.query
			}
			encoded, err := json.Marshal(searchBody)
			if err != nil {
				return stacerrors.NewUnexpectedError(stepKind, err)
			}
			body = encoded
			url = strings.TrimRight(s.source, "/") + "/search"
		} else {
			s.apiFinished = true
			return nil
		}
	}

	req, err := http.NewRequestWithContext(ctx.GoContext, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return stacerrors.NewUnexpectedError(stepKind, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/geo+json")

	resp, err := s.client.Do(req)
	if err != nil {
		ctx.Failures.Append(stepKind, "", "DataProcessingError", "STAC API request failed: "+err.Error(),
			map[string]any{"url": url})
		return stacerrors.NewDataProcessingError(stepKind, "", "APIError", "STAC API request failed", map[string]any{"url": url}, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		ctx.Failures.Append(stepKind, "", "DataProcessingError", fmt.Sprintf("STAC API returned status %d", resp.StatusCode),
			map[string]any{"url": url, "http_status": resp.StatusCode})
		return stacerrors.NewDataProcessingError(stepKind, "", "APIError", fmt.Sprintf("STAC API returned status %d", resp.StatusCode),
			map[string]any{"url": url, "http_status": resp.StatusCode}, nil)
	}

	var page struct {
		Features []stacitem.Item `json:"features"`
		Links    []struct {
			Rel  string `json:"rel"`
			Href string `json:"href"`
		} `json:"links"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		ctx.Failures.Append(stepKind, "", "DataProcessingError", "malformed STAC API response: "+err.Error(),
			map[string]any{"url": url})
		return stacerrors.NewDataProcessingError(stepKind, "", "APIError", "malformed STAC API response", map[string]any{"url": url}, err)
	}

	s.apiPage = page.Features
	s.apiPageIdx = 0

	s.nextURL = ""
	for _, l := range page.Links {
		if l.Rel == "next" {
			s.nextURL = l.Href
			break
		}
	}
	if s.nextURL == "" {
		s.apiFinished = true
	}
	return nil
}

func loadFileItems(source string) ([]stacitem.Item, error) {
	info, err := os.Stat(source)
	if err != nil {
		return nil, err
	}

	if info.IsDir() {
		var items []stacitem.Item
		entries, err := os.ReadDir(source)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
				continue
			}
			data, err := os.ReadFile(filepath.Join(source, e.Name()))
			if err != nil {
				return nil, err
			}
			var item stacitem.Item
			if err := json.Unmarshal(data, &item); err != nil {
				return nil, err
			}
			items = append(items, item)
		}
		return items, nil
	}

	if strings.HasSuffix(source, ".parquet") {
		return readParquetItems(source)
	}

	data, err := os.ReadFile(source)
	if err != nil {
		return nil, err
	}
	return parseJSONItems(data)
}

func parseJSONItems(data []byte) ([]stacitem.Item, error) {
	var probe map[string]any
	if err := json.Unmarshal(data, &probe); err == nil {
		if probe["type"] == "FeatureCollection" {
			var fc struct {
				Features []stacitem.Item `json:"features"`
			}
			if err := json.Unmarshal(data, &fc); err != nil {
				return nil, err
			}
			return fc.Features, nil
		}
		return []stacitem.Item{probe}, nil
	}

	var arr []stacitem.Item
	if err := json.Unmarshal(data, &arr); err != nil {
		return nil, err
	}
	return arr, nil
}

func boolOr(v any, def bool) bool {
	if b, ok := v.(bool); ok {
		return b
	}
	return def
}

func intOr(v any, def int) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return def
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}

func init() {
	stage.Register(stage.KindIngest, New)
}
