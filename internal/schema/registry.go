package schema

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/mkline/granary/internal/config"
)

// LogicalType is the declared type of a dataset field.
type LogicalType string

const (
	TypeString  LogicalType = "string"
	TypeInteger LogicalType = "integer"
	TypeDecimal LogicalType = "decimal"
	TypeBoolean LogicalType = "boolean"
)

// ConfigError reports invalid or missing static configuration. It is fatal
// at startup: the process must not begin watching with a bad schema or
// column spec.
type ConfigError struct {
	Section string
	Reason  string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid %s configuration: %s", e.Section, e.Reason)
}

// Field is one (name, logical type) pair of a dataset schema. Name is stored
// normalized (lower-cased, trimmed).
type Field struct {
	Name string
	Type LogicalType
}

// Definition is the immutable, ordered schema of a dataset. Loaded once at
// process start and shared read-only across all validations.
type Definition struct {
	Dataset   string
	Fields    []Field
	Delimiter rune
	// AltDelimiter is tried when parsing with Delimiter does not yield the
	// declared field count; zero means no alternate is declared.
	AltDelimiter rune

	byName map[string]LogicalType
}

// Column is one (name, SQL storage type) pair of the destination table.
type Column struct {
	Name string
	Type string
}

// ColumnSpec is the ordered destination-table schema. Its type vocabulary is
// independent from the dataset schema's logical types.
type ColumnSpec struct {
	Table   string
	Columns []Column
}

// NormalizeFieldName case-folds and trims a raw field name. Validation and
// loading both compare names through this function.
func NormalizeFieldName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// FieldNames returns the normalized field names in declared order.
func (d *Definition) FieldNames() []string {
	names := make([]string, len(d.Fields))
	for i, f := range d.Fields {
		names[i] = f.Name
	}
	return names
}

// TypeOf looks up the logical type of a normalized field name.
func (d *Definition) TypeOf(name string) (LogicalType, bool) {
	t, ok := d.byName[name]
	return t, ok
}

// identifierPattern restricts table and column names to plain SQL identifiers
// so they can be interpolated into DDL safely.
var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// storageTypePattern admits the usual SQL type spellings, e.g. TEXT,
// VARCHAR(255), DOUBLE PRECISION, NUMERIC(10,2).
var storageTypePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9 ]*(\([0-9]+(,[0-9]+)?\))?$`)

// LoadDefinition builds the immutable schema Definition from static
// configuration.
// Parameters:
//   - cfg: dataset section of the loaded configuration.
// Returns:
//   - *Definition: validated, normalized schema.
//   - error: *ConfigError if the configuration is absent or malformed.
func LoadDefinition(cfg *config.DatasetConfig) (*Definition, error) {
	if cfg.Name == "" {
		return nil, &ConfigError{Section: "dataset", Reason: "missing dataset name"}
	}
	if len(cfg.Fields) == 0 {
		return nil, &ConfigError{Section: "dataset", Reason: "no fields declared"}
	}

	delim, err := delimiterRune(cfg.Delimiter, ',')
	if err != nil {
		return nil, &ConfigError{Section: "dataset", Reason: err.Error()}
	}
	alt, err := delimiterRune(cfg.AlternateDelimiter, 0)
	if err != nil {
		return nil, &ConfigError{Section: "dataset", Reason: err.Error()}
	}
	if alt == delim {
		alt = 0
	}

	def := &Definition{
		Dataset:      cfg.Name,
		Delimiter:    delim,
		AltDelimiter: alt,
		byName:       make(map[string]LogicalType, len(cfg.Fields)),
	}

	for i, f := range cfg.Fields {
		name := NormalizeFieldName(f.Name)
		if name == "" {
			return nil, &ConfigError{Section: "dataset", Reason: fmt.Sprintf("field %d has no name", i)}
		}
		if _, dup := def.byName[name]; dup {
			return nil, &ConfigError{Section: "dataset", Reason: fmt.Sprintf("duplicate field %q", name)}
		}
		t := LogicalType(strings.ToLower(strings.TrimSpace(f.Type)))
		switch t {
		case TypeString, TypeInteger, TypeDecimal, TypeBoolean:
		default:
			return nil, &ConfigError{Section: "dataset", Reason: fmt.Sprintf("field %q has unknown type %q", name, f.Type)}
		}
		def.Fields = append(def.Fields, Field{Name: name, Type: t})
		def.byName[name] = t
	}

	return def, nil
}

// LoadColumnSpec builds the destination-table spec from static configuration.
// Parameters:
//   - cfg: table section of the loaded configuration.
// Returns:
//   - *ColumnSpec: validated column spec.
//   - error: *ConfigError if the configuration is absent or malformed.
func LoadColumnSpec(cfg *config.TableConfig) (*ColumnSpec, error) {
	if cfg.Name == "" {
		return nil, &ConfigError{Section: "table", Reason: "missing table name"}
	}
	if !identifierPattern.MatchString(cfg.Name) {
		return nil, &ConfigError{Section: "table", Reason: fmt.Sprintf("invalid table name %q", cfg.Name)}
	}
	if len(cfg.Columns) == 0 {
		return nil, &ConfigError{Section: "table", Reason: "no columns declared"}
	}

	spec := &ColumnSpec{Table: cfg.Name}
	seen := make(map[string]struct{}, len(cfg.Columns))
	for i, c := range cfg.Columns {
		name := NormalizeFieldName(c.Name)
		if name == "" {
			return nil, &ConfigError{Section: "table", Reason: fmt.Sprintf("column %d has no name", i)}
		}
		if !identifierPattern.MatchString(name) {
			return nil, &ConfigError{Section: "table", Reason: fmt.Sprintf("invalid column name %q", c.Name)}
		}
		if _, dup := seen[name]; dup {
			return nil, &ConfigError{Section: "table", Reason: fmt.Sprintf("duplicate column %q", name)}
		}
		storageType := strings.TrimSpace(c.Type)
		if !storageTypePattern.MatchString(storageType) {
			return nil, &ConfigError{Section: "table", Reason: fmt.Sprintf("column %q has invalid storage type %q", name, c.Type)}
		}
		spec.Columns = append(spec.Columns, Column{Name: name, Type: storageType})
		seen[name] = struct{}{}
	}

	return spec, nil
}

func delimiterRune(s string, fallback rune) (rune, error) {
	if s == "" {
		return fallback, nil
	}
	runes := []rune(s)
	if len(runes) != 1 {
		return 0, fmt.Errorf("delimiter %q must be a single character", s)
	}
	return runes[0], nil
}
