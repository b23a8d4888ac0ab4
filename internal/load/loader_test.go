package load

import (
	"context"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/mkline/granary/internal/config"
	"github.com/mkline/granary/internal/convert"
	"github.com/mkline/granary/internal/domain"
	"github.com/mkline/granary/internal/schema"
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	return db
}

func testSpec(t *testing.T) *schema.ColumnSpec {
	t.Helper()
	spec, err := schema.LoadColumnSpec(&config.TableConfig{
		Name: "students",
		Columns: []config.ColumnConfig{
			{Name: "school", Type: "VARCHAR(10)"},
			{Name: "age", Type: "BIGINT"},
			{Name: "g3", Type: "DOUBLE PRECISION"},
		},
	})
	if err != nil {
		t.Fatalf("LoadColumnSpec failed: %v", err)
	}
	return spec
}

func testDefinition(t *testing.T) *schema.Definition {
	t.Helper()
	def, err := schema.LoadDefinition(&config.DatasetConfig{
		Name: "students",
		Fields: []config.FieldConfig{
			{Name: "school", Type: "string"},
			{Name: "age", Type: "integer"},
			{Name: "g3", Type: "decimal"},
		},
	})
	if err != nil {
		t.Fatalf("LoadDefinition failed: %v", err)
	}
	return def
}

func writeArtifact(t *testing.T, rows [][]string) string {
	t.Helper()
	def := testDefinition(t)
	c := convert.NewConverter(def, t.TempDir())

	rs := domain.NewRecordSet(def.FieldNames())
	for _, r := range rows {
		rs.Append(r)
	}
	path, err := c.Convert(context.Background(), rs, "students.csv")
	if err != nil {
		t.Fatalf("Convert failed: %v", err)
	}
	return path
}

func TestEnsureTable(t *testing.T) {
	db := testDB(t)
	l := NewLoader(db, testSpec(t))

	if err := l.EnsureTable(context.Background()); err != nil {
		t.Fatalf("EnsureTable failed: %v", err)
	}
	if !db.Migrator().HasTable("students") {
		t.Fatal("table was not created")
	}

	// Idempotent on a second call.
	if err := l.EnsureTable(context.Background()); err != nil {
		t.Fatalf("second EnsureTable failed: %v", err)
	}
}

func TestLoadAppendsAllRows(t *testing.T) {
	db := testDB(t)
	l := NewLoader(db, testSpec(t))
	if err := l.EnsureTable(context.Background()); err != nil {
		t.Fatalf("EnsureTable failed: %v", err)
	}

	path := writeArtifact(t, [][]string{
		{"GP", "18", "12.5"},
		{"MS", "17", "9"},
		{"GP", "16", "14"},
	})

	n, err := l.Load(context.Background(), path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if n != 3 {
		t.Errorf("rows loaded: got %d, want 3", n)
	}

	var count int64
	if err := db.Table("students").Count(&count).Error; err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 3 {
		t.Errorf("table rows: got %d, want 3", count)
	}

	var age int64
	if err := db.Table("students").Where("school = ?", "MS").Select("age").Scan(&age).Error; err != nil {
		t.Fatalf("select failed: %v", err)
	}
	if age != 17 {
		t.Errorf("age: got %d, want 17", age)
	}
}

func TestLoadAppendsAcrossArtifacts(t *testing.T) {
	db := testDB(t)
	l := NewLoader(db, testSpec(t))
	if err := l.EnsureTable(context.Background()); err != nil {
		t.Fatalf("EnsureTable failed: %v", err)
	}

	for i := 0; i < 2; i++ {
		path := writeArtifact(t, [][]string{{"GP", "18", "10"}})
		if _, err := l.Load(context.Background(), path); err != nil {
			t.Fatalf("Load %d failed: %v", i, err)
		}
	}

	var count int64
	if err := db.Table("students").Count(&count).Error; err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 2 {
		t.Errorf("loads must append, not replace: got %d rows, want 2", count)
	}
}

func TestLoadEmptyArtifact(t *testing.T) {
	db := testDB(t)
	l := NewLoader(db, testSpec(t))
	if err := l.EnsureTable(context.Background()); err != nil {
		t.Fatalf("EnsureTable failed: %v", err)
	}

	path := writeArtifact(t, nil)

	n, err := l.Load(context.Background(), path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if n != 0 {
		t.Errorf("rows loaded: got %d, want 0", n)
	}
}

func TestLoadMissingArtifact(t *testing.T) {
	db := testDB(t)
	l := NewLoader(db, testSpec(t))

	_, err := l.Load(context.Background(), "/nonexistent/students.parquet")
	if err == nil {
		t.Fatal("expected error for missing artifact")
	}
	le, ok := err.(*LoadError)
	if !ok {
		t.Fatalf("error type: got %T, want *LoadError", err)
	}
	if le.Artifact != "/nonexistent/students.parquet" {
		t.Errorf("artifact: got %q", le.Artifact)
	}
}
