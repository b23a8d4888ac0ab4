package load

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/mkline/granary/internal/convert"
	"github.com/mkline/granary/internal/schema"
)

// LoadError wraps a connectivity or constraint failure during a table load.
// Loads are transient failures: the converted artifact is never deleted on a
// failed load so it can be retried as-is.
type LoadError struct {
	Artifact string
	Err      error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load %s: %v", e.Artifact, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// Loader appends converted artifacts into the destination table. The table
// schema comes from the column spec, independent from the dataset schema.
type Loader struct {
	db    *gorm.DB
	spec  *schema.ColumnSpec
	batch int
}

// NewLoader creates a Loader bound to a database handle and column spec.
func NewLoader(db *gorm.DB, spec *schema.ColumnSpec) *Loader {
	return &Loader{db: db, spec: spec, batch: 500}
}

// EnsureTable verifies the destination table exists, creating it from the
// column spec if absent. Called once at startup so a bad spec fails before
// watching begins.
// Parameters:
//   - ctx: context for cancellation and deadlines.
// Returns:
//   - error: non-nil if the DDL fails.
func (l *Loader) EnsureTable(ctx context.Context) error {
	if l.db.Migrator().HasTable(l.spec.Table) {
		return nil
	}

	cols := make([]string, len(l.spec.Columns))
	for i, c := range l.spec.Columns {
		cols[i] = fmt.Sprintf("%q %s", c.Name, c.Type)
	}
	ddl := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %q (%s)", l.spec.Table, strings.Join(cols, ", "))

	if err := l.db.WithContext(ctx).Exec(ddl).Error; err != nil {
		return fmt.Errorf("create table %s: %w", l.spec.Table, err)
	}
	return nil
}

// Load reads a converted artifact back and appends all its rows to the
// destination table as a single transaction. A failure anywhere in the batch
// rolls the whole artifact back; no partial-row recovery is attempted and
// the artifact stays on disk for retry.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - artifactPath: path of the converted artifact to load.
// Returns:
//   - int64: number of rows appended.
//   - error: *LoadError wrapping the underlying failure.
func (l *Loader) Load(ctx context.Context, artifactPath string) (int64, error) {
	data, err := convert.ReadArtifact(ctx, artifactPath)
	if err != nil {
		return 0, &LoadError{Artifact: artifactPath, Err: err}
	}
	if len(data.Rows) == 0 {
		return 0, nil
	}

	// Stage rows keyed by the destination columns that exist in the
	// artifact; columns missing from the artifact are left to the table's
	// defaults.
	columns := l.matchColumns(data.Fields)
	if len(columns) == 0 {
		return 0, &LoadError{Artifact: artifactPath, Err: fmt.Errorf("artifact shares no columns with table %s", l.spec.Table)}
	}

	rows := make([]map[string]interface{}, len(data.Rows))
	for i, src := range data.Rows {
		row := make(map[string]interface{}, len(columns))
		for _, col := range columns {
			row[col] = src[col]
		}
		rows[i] = row
	}

	err = l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for start := 0; start < len(rows); start += l.batch {
			end := start + l.batch
			if end > len(rows) {
				end = len(rows)
			}
			if err := tx.Table(l.spec.Table).Create(rows[start:end]).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, &LoadError{Artifact: artifactPath, Err: err}
	}

	return int64(len(rows)), nil
}

func (l *Loader) matchColumns(artifactFields []string) []string {
	have := make(map[string]struct{}, len(artifactFields))
	for _, f := range artifactFields {
		have[schema.NormalizeFieldName(f)] = struct{}{}
	}
	var columns []string
	for _, c := range l.spec.Columns {
		if _, ok := have[c.Name]; ok {
			columns = append(columns, c.Name)
		}
	}
	return columns
}
