package validate

import (
	"strings"
	"testing"

	"github.com/mkline/granary/internal/config"
	"github.com/mkline/granary/internal/domain"
	"github.com/mkline/granary/internal/schema"
)

func testDefinition(t *testing.T) *schema.Definition {
	t.Helper()
	def, err := schema.LoadDefinition(&config.DatasetConfig{
		Name: "students",
		Fields: []config.FieldConfig{
			{Name: "school", Type: "string"},
			{Name: "sex", Type: "string"},
			{Name: "age", Type: "integer"},
			{Name: "famsize", Type: "string"},
		},
	})
	if err != nil {
		t.Fatalf("LoadDefinition failed: %v", err)
	}
	return def
}

func TestCheckHeader(t *testing.T) {
	v := New(testDefinition(t))

	tests := []struct {
		name      string
		header    []string
		compliant bool
		reason    string
	}{
		{
			name:      "exact match",
			header:    []string{"school", "sex", "age", "famsize"},
			compliant: true,
		},
		{
			name:      "order differences do not fail",
			header:    []string{"famsize", "age", "school", "sex"},
			compliant: true,
		},
		{
			name:      "case and whitespace normalize",
			header:    []string{"School", " SEX ", "Age", "FamSize"},
			compliant: true,
		},
		{
			name:      "missing field",
			header:    []string{"school", "sex", "age"},
			compliant: false,
			reason:    "missing famsize",
		},
		{
			name:      "extra field",
			header:    []string{"school", "sex", "age", "famsize", "guardian"},
			compliant: false,
			reason:    "unexpected guardian",
		},
		{
			name:      "missing and extra",
			header:    []string{"school", "sex", "age", "guardian"},
			compliant: false,
			reason:    "missing famsize",
		},
		{
			name:      "duplicated field",
			header:    []string{"school", "sex", "age", "famsize", "age"},
			compliant: false,
			reason:    "unexpected age",
		},
		{
			name:      "duplicate after normalization",
			header:    []string{"school", "sex", "age", "famsize", " AGE "},
			compliant: false,
			reason:    "unexpected age",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			verdict := v.CheckHeader(tc.header)
			if verdict.Compliant != tc.compliant {
				t.Fatalf("compliant: got %v, want %v (reason: %s)", verdict.Compliant, tc.compliant, verdict.Reason)
			}
			if !tc.compliant {
				if !strings.HasPrefix(verdict.Reason, "schema mismatch") {
					t.Errorf("reason should start with 'schema mismatch': %q", verdict.Reason)
				}
				if !strings.Contains(verdict.Reason, tc.reason) {
					t.Errorf("reason %q should mention %q", verdict.Reason, tc.reason)
				}
			}
		})
	}
}

func TestValidateReordersToSchemaOrder(t *testing.T) {
	v := New(testDefinition(t))

	rs := domain.NewRecordSet([]string{"famsize", "age", "school", "sex"})
	rs.Append([]string{"GT3", "18", "GP", "F"})

	verdict, cleaned, removed := v.Validate(rs)
	if !verdict.Compliant {
		t.Fatalf("verdict: %v", verdict.Reason)
	}
	if removed != 0 {
		t.Errorf("removed: got %d, want 0", removed)
	}

	want := []string{"school", "sex", "age", "famsize"}
	for i, f := range cleaned.Fields {
		if f != want[i] {
			t.Errorf("field %d: got %q, want %q", i, f, want[i])
		}
	}
	if cleaned.Rows[0]["school"] != "GP" || cleaned.Rows[0]["famsize"] != "GT3" {
		t.Errorf("row values lost in reorder: %v", cleaned.Rows[0])
	}
}

func TestValidateNullRowRemoval(t *testing.T) {
	v := New(testDefinition(t))

	rs := domain.NewRecordSet([]string{"school", "sex", "age", "famsize"})
	rs.Append([]string{"GP", "F", "18", "GT3"})
	rs.Append([]string{"MS", "", "17", "LE3"})   // empty sex
	rs.Append([]string{"GP", "M", "16", "   "})  // whitespace-only famsize
	rs.Append([]string{"MS", "F", "15", "GT3"})

	verdict, cleaned, removed := v.Validate(rs)
	if !verdict.Compliant {
		t.Fatalf("verdict: %v", verdict.Reason)
	}
	if removed != 2 {
		t.Errorf("removed: got %d, want 2", removed)
	}
	if cleaned.Len() != 2 {
		t.Fatalf("cleaned rows: got %d, want 2", cleaned.Len())
	}
	if cleaned.Rows[0]["school"] != "GP" || cleaned.Rows[1]["school"] != "MS" {
		t.Errorf("surviving rows out of order: %v", cleaned.Rows)
	}
}

func TestValidateCleansBeforeVerdict(t *testing.T) {
	// Null rows are removed even when the verdict is NonCompliant, so the
	// verdict reflects post-cleaning data.
	v := New(testDefinition(t))

	rs := domain.NewRecordSet([]string{"school", "sex", "age"})
	rs.Append([]string{"GP", "F", "18"})
	rs.Append([]string{"", "F", "18"})

	verdict, _, removed := v.Validate(rs)
	if verdict.Compliant {
		t.Fatal("expected NonCompliant for missing famsize")
	}
	if removed != 1 {
		t.Errorf("removed: got %d, want 1", removed)
	}
}

func TestValidateEmptyRecordSet(t *testing.T) {
	v := New(testDefinition(t))

	rs := domain.NewRecordSet([]string{"school", "sex", "age", "famsize"})

	verdict, cleaned, removed := v.Validate(rs)
	if !verdict.Compliant {
		t.Fatalf("empty record-set with matching header should be Compliant: %v", verdict.Reason)
	}
	if removed != 0 || cleaned.Len() != 0 {
		t.Errorf("got removed=%d len=%d, want 0/0", removed, cleaned.Len())
	}
}
