package convert

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/apache/arrow/go/v10/arrow"
	"github.com/apache/arrow/go/v10/arrow/array"
	"github.com/apache/arrow/go/v10/arrow/memory"
	"github.com/apache/arrow/go/v10/parquet"
	"github.com/apache/arrow/go/v10/parquet/compress"
	"github.com/apache/arrow/go/v10/parquet/pqarrow"

	"github.com/mkline/granary/internal/domain"
	"github.com/mkline/granary/internal/schema"
)

// Converter serializes cleaned record-sets into Parquet artifacts. The
// artifact filename is derived deterministically from the source artifact's
// name, so re-running on the same source overwrites rather than duplicates.
type Converter struct {
	def *schema.Definition
	dir string
}

// NewConverter creates a Converter writing artifacts under dir.
func NewConverter(def *schema.Definition, dir string) *Converter {
	return &Converter{def: def, dir: dir}
}

// ArtifactPath returns the artifact path Convert would publish for the given
// source artifact. Deterministic: <dir>/<source stem>.parquet.
func (c *Converter) ArtifactPath(sourceName string) string {
	base := filepath.Base(sourceName)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(c.dir, stem+".parquet")
}

// Convert writes the record-set as a Parquet file preserving the schema's
// declared field order and types. The write goes to a temporary file in the
// destination directory and is atomically renamed into place on success, so
// no partial artifact is ever visible; the temporary file is removed on any
// failure path.
// Parameters:
//   - ctx: context for cancellation.
//   - rs: cleaned record-set in schema field order.
//   - sourceName: originating input artifact name the output name derives from.
// Returns:
//   - string: published artifact path.
//   - error: non-nil on destination-write failure.
func (c *Converter) Convert(ctx context.Context, rs *domain.RecordSet, sourceName string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return "", fmt.Errorf("create destination dir: %w", err)
	}

	rec, arrowSchema, err := c.buildRecord(rs)
	if err != nil {
		return "", err
	}
	defer rec.Release()

	dest := c.ArtifactPath(sourceName)

	tmp, err := os.CreateTemp(c.dir, "."+filepath.Base(dest)+".tmp-*")
	if err != nil {
		return "", fmt.Errorf("create temp artifact: %w", err)
	}
	tmpPath := tmp.Name()
	published := false
	defer func() {
		if !published {
			os.Remove(tmpPath)
		}
	}()

	props := parquet.NewWriterProperties(parquet.WithCompression(compress.Codecs.Snappy))
	w, err := pqarrow.NewFileWriter(arrowSchema, tmp, props, pqarrow.DefaultWriterProps())
	if err != nil {
		tmp.Close()
		return "", fmt.Errorf("open parquet writer: %w", err)
	}

	if err := w.Write(rec); err != nil {
		w.Close()
		return "", fmt.Errorf("write parquet: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("finalize parquet: %w", err)
	}

	if err := os.Rename(tmpPath, dest); err != nil {
		return "", fmt.Errorf("publish artifact: %w", err)
	}
	published = true

	return dest, nil
}

// buildRecord turns the record-set into a single Arrow record in schema
// field order. Empty and unparseable cells become nulls.
func (c *Converter) buildRecord(rs *domain.RecordSet) (arrow.Record, *arrow.Schema, error) {
	fields := make([]arrow.Field, len(c.def.Fields))
	for i, f := range c.def.Fields {
		fields[i] = arrow.Field{Name: f.Name, Type: arrowType(f.Type), Nullable: true}
	}
	arrowSchema := arrow.NewSchema(fields, nil)

	bld := array.NewRecordBuilder(memory.DefaultAllocator, arrowSchema)
	defer bld.Release()

	for _, row := range rs.Rows {
		for i, f := range c.def.Fields {
			appendCell(bld.Field(i), f.Type, row[f.Name])
		}
	}

	return bld.NewRecord(), arrowSchema, nil
}

func arrowType(t schema.LogicalType) arrow.DataType {
	switch t {
	case schema.TypeInteger:
		return arrow.PrimitiveTypes.Int64
	case schema.TypeDecimal:
		return arrow.PrimitiveTypes.Float64
	case schema.TypeBoolean:
		return arrow.FixedWidthTypes.Boolean
	default:
		return arrow.BinaryTypes.String
	}
}

func appendCell(b array.Builder, t schema.LogicalType, orig string) {
	raw := strings.TrimSpace(orig)
	switch t {
	case schema.TypeInteger:
		v, err := strconv.ParseInt(raw, 10, 64)
		if raw == "" || err != nil {
			b.AppendNull()
			return
		}
		b.(*array.Int64Builder).Append(v)
	case schema.TypeDecimal:
		v, err := strconv.ParseFloat(raw, 64)
		if raw == "" || err != nil {
			b.AppendNull()
			return
		}
		b.(*array.Float64Builder).Append(v)
	case schema.TypeBoolean:
		v, err := strconv.ParseBool(strings.ToLower(raw))
		if raw == "" || err != nil {
			b.AppendNull()
			return
		}
		b.(*array.BooleanBuilder).Append(v)
	default:
		if raw == "" {
			b.AppendNull()
			return
		}
		// String values are preserved verbatim, whitespace included.
		b.(*array.StringBuilder).Append(orig)
	}
}
