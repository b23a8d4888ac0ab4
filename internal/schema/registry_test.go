package schema

import (
	"errors"
	"testing"

	"github.com/mkline/granary/internal/config"
)

func validDataset() *config.DatasetConfig {
	return &config.DatasetConfig{
		Name:               "students",
		Delimiter:          ",",
		AlternateDelimiter: ";",
		Fields: []config.FieldConfig{
			{Name: "School", Type: "string"},
			{Name: " sex ", Type: "STRING"},
			{Name: "age", Type: "integer"},
			{Name: "g1", Type: "decimal"},
			{Name: "enrolled", Type: "boolean"},
		},
	}
}

func TestLoadDefinition(t *testing.T) {
	def, err := LoadDefinition(validDataset())
	if err != nil {
		t.Fatalf("LoadDefinition failed: %v", err)
	}

	if def.Dataset != "students" {
		t.Errorf("dataset name: got %q, want %q", def.Dataset, "students")
	}
	if def.Delimiter != ',' || def.AltDelimiter != ';' {
		t.Errorf("delimiters: got %q/%q", def.Delimiter, def.AltDelimiter)
	}

	wantFields := []string{"school", "sex", "age", "g1", "enrolled"}
	got := def.FieldNames()
	if len(got) != len(wantFields) {
		t.Fatalf("field count: got %d, want %d", len(got), len(wantFields))
	}
	for i, name := range wantFields {
		if got[i] != name {
			t.Errorf("field %d: got %q, want %q", i, got[i], name)
		}
	}

	if typ, ok := def.TypeOf("sex"); !ok || typ != TypeString {
		t.Errorf("TypeOf(sex): got %v, %v", typ, ok)
	}
	if typ, ok := def.TypeOf("age"); !ok || typ != TypeInteger {
		t.Errorf("TypeOf(age): got %v, %v", typ, ok)
	}
}

func TestLoadDefinitionErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.DatasetConfig)
	}{
		{
			name:   "missing dataset name",
			mutate: func(c *config.DatasetConfig) { c.Name = "" },
		},
		{
			name:   "no fields",
			mutate: func(c *config.DatasetConfig) { c.Fields = nil },
		},
		{
			name: "unknown type token",
			mutate: func(c *config.DatasetConfig) {
				c.Fields[0].Type = "varchar"
			},
		},
		{
			name: "missing field name",
			mutate: func(c *config.DatasetConfig) {
				c.Fields[0].Name = "   "
			},
		},
		{
			name: "duplicate field after normalization",
			mutate: func(c *config.DatasetConfig) {
				c.Fields[1].Name = "SCHOOL"
			},
		},
		{
			name: "multi-character delimiter",
			mutate: func(c *config.DatasetConfig) {
				c.Delimiter = ";;"
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validDataset()
			tc.mutate(cfg)

			_, err := LoadDefinition(cfg)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			var cfgErr *ConfigError
			if !errors.As(err, &cfgErr) {
				t.Errorf("expected *ConfigError, got %T", err)
			}
		})
	}
}

func TestLoadDefinitionDefaultDelimiter(t *testing.T) {
	cfg := validDataset()
	cfg.Delimiter = ""
	cfg.AlternateDelimiter = ""

	def, err := LoadDefinition(cfg)
	if err != nil {
		t.Fatalf("LoadDefinition failed: %v", err)
	}
	if def.Delimiter != ',' {
		t.Errorf("default delimiter: got %q, want ','", def.Delimiter)
	}
	if def.AltDelimiter != 0 {
		t.Errorf("alternate delimiter: got %q, want none", def.AltDelimiter)
	}
}

func TestLoadColumnSpec(t *testing.T) {
	spec, err := LoadColumnSpec(&config.TableConfig{
		Name: "students",
		Columns: []config.ColumnConfig{
			{Name: "School", Type: "VARCHAR(32)"},
			{Name: "age", Type: "BIGINT"},
			{Name: "g1", Type: "DOUBLE PRECISION"},
			{Name: "g2", Type: "NUMERIC(10,2)"},
		},
	})
	if err != nil {
		t.Fatalf("LoadColumnSpec failed: %v", err)
	}

	if spec.Table != "students" {
		t.Errorf("table: got %q", spec.Table)
	}
	if len(spec.Columns) != 4 {
		t.Fatalf("columns: got %d, want 4", len(spec.Columns))
	}
	if spec.Columns[0].Name != "school" {
		t.Errorf("column 0 not normalized: got %q", spec.Columns[0].Name)
	}
}

func TestLoadColumnSpecErrors(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.TableConfig
	}{
		{
			name: "missing table name",
			cfg: config.TableConfig{
				Columns: []config.ColumnConfig{{Name: "a", Type: "TEXT"}},
			},
		},
		{
			name: "invalid table name",
			cfg: config.TableConfig{
				Name:    "students; DROP TABLE x",
				Columns: []config.ColumnConfig{{Name: "a", Type: "TEXT"}},
			},
		},
		{
			name: "no columns",
			cfg:  config.TableConfig{Name: "students"},
		},
		{
			name: "invalid storage type",
			cfg: config.TableConfig{
				Name:    "students",
				Columns: []config.ColumnConfig{{Name: "a", Type: "TEXT); DROP TABLE x; --"}},
			},
		},
		{
			name: "duplicate column",
			cfg: config.TableConfig{
				Name: "students",
				Columns: []config.ColumnConfig{
					{Name: "a", Type: "TEXT"},
					{Name: "A", Type: "TEXT"},
				},
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadColumnSpec(&tc.cfg)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			var cfgErr *ConfigError
			if !errors.As(err, &cfgErr) {
				t.Errorf("expected *ConfigError, got %T", err)
			}
		})
	}
}
