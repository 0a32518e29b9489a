// Package output implements the Output sink stage: persists items to disk
// as individual JSON files or as batched Parquet files.
package output

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/stacpipe/stacpipe/internal/execctx"
	"github.com/stacpipe/stacpipe/internal/logger"
	"github.com/stacpipe/stacpipe/internal/stacerrors"
	"github.com/stacpipe/stacpipe/internal/stacitem"
	"github.com/stacpipe/stacpipe/internal/stage"
)

const stepKind = "output"

const (
	formatJSON    = "json"
	formatParquet = "parquet"
)

type outputStage struct {
	log *logger.Logger

	baseDir           string
	format            string
	bufferSize        int
	baseURL           string
	includeCollection bool

	buffer       []stacitem.Item
	itemsWritten int
	flushCount   int
	now          func() time.Time
}

// New constructs the Output stage from its raw config mapping.
func New(raw map[string]any) (stage.Stage, error) {
	s := &outputStage{
		format:     formatJSON,
		bufferSize: 100,
		now:        time.Now,
	}

	baseDir, _ := raw["base_dir"].(string)
	if baseDir == "" {
		return nil, stacerrors.NewConfigurationError("base_dir", "output stage requires base_dir", nil)
	}
	s.baseDir = baseDir

	if f, ok := raw["format"].(string); ok && f != "" {
		if f != formatJSON && f != formatParquet {
			return nil, stacerrors.NewConfigurationError("format", "format must be json or parquet, got "+f, nil)
		}
		s.format = f
	}
	if bs, ok := raw["buffer_size"].(int); ok && bs > 0 {
		s.bufferSize = bs
	} else if bs, ok := raw["buffer_size"].(float64); ok && bs > 0 {
		s.bufferSize = int(bs)
	}
	if url, ok := raw["base_url"].(string); ok {
		s.baseURL = url
	}
	if v, ok := raw["include_collection"].(bool); ok {
		s.includeCollection = v
	}

	return s, nil
}

func (s *outputStage) SetLogger(log *logger.Logger) {
	s.log = log.Named(stepKind)
}

// Bundle applies link rewrites, buffers the item, and flushes once the
// buffer reaches its threshold.
func (s *outputStage) Bundle(item stacitem.Item, ctx *execctx.Context) error {
	if s.baseURL != "" {
		rewriteSelfLinks(item, s.baseURL)
	}

	s.buffer = append(s.buffer, item)
	if len(s.buffer) >= s.bufferSize {
		return s.flush(ctx)
	}
	return nil
}

// Finalize flushes any remaining buffer and optionally writes the
// collection trailer, then returns the run manifest.
func (s *outputStage) Finalize(ctx *execctx.Context) (map[string]any, error) {
	if len(s.buffer) > 0 {
		if err := s.flush(ctx); err != nil {
			return nil, err
		}
	}

	if s.includeCollection {
		if collection, ok := ctx.Data["collection"].(map[string]any); ok {
			if err := s.writeJSONFile(filepath.Join(s.baseDir, "collection.json"), collection); err != nil {
				return nil, err
			}
		}
	}

	manifest := map[string]any{
		"items_written": s.itemsWritten,
		"format":        s.format,
		"output_dir":    s.baseDir,
		"flush_count":   s.flushCount,
	}
	s.log.Info("output finalized", "items_written", s.itemsWritten, "output_dir", s.baseDir)
	return manifest, nil
}

func (s *outputStage) flush(ctx *execctx.Context) error {
	if err := os.MkdirAll(s.baseDir, 0o755); err != nil {
		return fmt.Errorf("output: creating base_dir: %w", err)
	}

	switch s.format {
	case formatParquet:
		if err := s.flushParquet(); err != nil {
			return err
		}
	default:
		if err := s.flushJSON(ctx); err != nil {
			return err
		}
	}

	s.itemsWritten += len(s.buffer)
	s.flushCount++
	s.log.Debug("flushed output buffer", "count", len(s.buffer), "format", s.format)
	s.buffer = s.buffer[:0]
	return nil
}

func (s *outputStage) flushJSON(ctx *execctx.Context) error {
	for _, item := range s.buffer {
		id := stacitem.ID(item)
		if id == "" {
			err := stacerrors.NewDataProcessingError(stepKind, "", "MissingItemID", "cannot write output file for item with empty id", nil, nil)
			ctx.Failures.Append(stepKind, "", "MissingItemID", err.Error(), nil)
			return err
		}
		finalPath := filepath.Join(s.baseDir, id+".json")
		if err := s.writeJSONFile(finalPath, item); err != nil {
			return err
		}
	}
	return nil
}

func (s *outputStage) writeJSONFile(finalPath string, data any) error {
	tmpPath := finalPath + ".tmp"
	body, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(tmpPath, body, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}

func (s *outputStage) flushParquet() error {
	rows := make([]stacitem.ParquetRow, 0, len(s.buffer))
	for _, item := range s.buffer {
		body, err := json.Marshal(item)
		if err != nil {
			return err
		}
		rows = append(rows, stacitem.ParquetRow{
			ID:       stacitem.ID(item),
			ItemJSON: string(body),
		})
	}

	name := fmt.Sprintf("items_%s.parquet", stacitem.NowUTC(s.now()))
	finalPath := filepath.Join(s.baseDir, name)
	tmpPath := finalPath + ".tmp"

	// Guard against two flushes landing in the same UTC second.
	for i := 1; fileExists(tmpPath) || fileExists(finalPath); i++ {
		name = fmt.Sprintf("items_%s_%d.parquet", stacitem.NowUTC(s.now()), i)
		finalPath = filepath.Join(s.baseDir, name)
		tmpPath = finalPath + ".tmp"
	}

	f, err := os.Create(tmpPath)
	if err != nil {
		return err
	}

	writer := parquet.NewGenericWriter[stacitem.ParquetRow](f)
	if _, err := writer.Write(rows); err != nil {
		writer.Close()
		f.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := writer.Close(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// rewriteSelfLinks rewrites any "self" rel link's href to be rooted at
// baseURL, joined with the item's id.
func rewriteSelfLinks(item stacitem.Item, baseURL string) {
	links, ok := item[stacitem.KeyLinks].([]any)
	if !ok {
		return
	}
	id := stacitem.ID(item)
	for _, l := range links {
		link, ok := l.(map[string]any)
		if !ok {
			continue
		}
		if rel, _ := link["rel"].(string); rel == "self" {
			link["href"] = fmt.Sprintf("%s/%s.json", trimTrailingSlash(baseURL), id)
		}
	}
}

func trimTrailingSlash(s string) string {
	for len(s) > 0 && s[len(s)-1] == '/' {
		s = s[:len(s)-1]
	}
	return s
}

func init() {
	stage.Register(stage.KindOutput, New)
}
