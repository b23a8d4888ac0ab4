package convert

import (
	"context"
	"fmt"

	"github.com/apache/arrow/go/v10/arrow"
	"github.com/apache/arrow/go/v10/arrow/array"
	"github.com/apache/arrow/go/v10/arrow/memory"
	"github.com/apache/arrow/go/v10/parquet/file"
	"github.com/apache/arrow/go/v10/parquet/pqarrow"
)

// ArtifactData is a Parquet artifact read back into memory: field names in
// column order plus typed row values (string, int64, float64, bool or nil).
type ArtifactData struct {
	Fields []string
	Rows   []map[string]interface{}
}

// ReadArtifact reads a Parquet artifact fully into memory. Used by the
// loader to stage rows for the destination table, and by round-trip checks.
// Parameters:
//   - ctx: context for cancellation.
//   - path: artifact path.
// Returns:
//   - *ArtifactData: all rows with typed values.
//   - error: non-nil if the file cannot be opened or decoded.
func ReadArtifact(ctx context.Context, path string) (*ArtifactData, error) {
	rdr, err := file.OpenParquetFile(path, false)
	if err != nil {
		return nil, fmt.Errorf("open artifact %s: %w", path, err)
	}
	defer rdr.Close()

	fr, err := pqarrow.NewFileReader(rdr, pqarrow.ArrowReadProperties{BatchSize: 1024}, memory.DefaultAllocator)
	if err != nil {
		return nil, fmt.Errorf("read artifact %s: %w", path, err)
	}

	tbl, err := fr.ReadTable(ctx)
	if err != nil {
		return nil, fmt.Errorf("decode artifact %s: %w", path, err)
	}
	defer tbl.Release()

	numCols := int(tbl.NumCols())
	numRows := int(tbl.NumRows())

	data := &ArtifactData{
		Fields: make([]string, numCols),
		Rows:   make([]map[string]interface{}, numRows),
	}
	for i := range data.Rows {
		data.Rows[i] = make(map[string]interface{}, numCols)
	}

	for col := 0; col < numCols; col++ {
		fieldName := tbl.Schema().Field(col).Name
		data.Fields[col] = fieldName

		row := 0
		for _, chunk := range tbl.Column(col).Data().Chunks() {
			for j := 0; j < chunk.Len(); j++ {
				data.Rows[row][fieldName] = cellValue(chunk, j)
				row++
			}
		}
	}

	return data, nil
}

func cellValue(a arrow.Array, i int) interface{} {
	if a.IsNull(i) {
		return nil
	}
	switch arr := a.(type) {
	case *array.String:
		return arr.Value(i)
	case *array.Int64:
		return arr.Value(i)
	case *array.Float64:
		return arr.Value(i)
	case *array.Boolean:
		return arr.Value(i)
	default:
		// Artifacts are written by Converter, which only emits the four
		// types above; anything else is treated as null.
		return nil
	}
}
