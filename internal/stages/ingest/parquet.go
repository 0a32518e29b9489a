package ingest

import (
	"encoding/json"
	"io"
	"os"

	"github.com/parquet-go/parquet-go"

	"github.com/stacpipe/stacpipe/internal/stacitem"
)

// readParquetItems reads a Parquet file written in the engine's own
// {id, item_json} row shape and decodes each row's JSON column back into
// an Item.
func readParquetItems(path string) ([]stacitem.Item, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	reader := parquet.NewGenericReader[stacitem.ParquetRow](f)
	defer reader.Close()

	var items []stacitem.Item
	buf := make([]stacitem.ParquetRow, 256)
	for {
		n, err := reader.Read(buf)
		for i := 0; i < n; i++ {
			var item stacitem.Item
			if jsonErr := json.Unmarshal([]byte(buf[i].ItemJSON), &item); jsonErr != nil {
				return nil, jsonErr
			}
			items = append(items, item)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if n == 0 {
			break
		}
	}
	return items, nil
}
