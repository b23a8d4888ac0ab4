package validate

import (
	"fmt"
	"sort"
	"strings"

	"github.com/mkline/granary/internal/domain"
	"github.com/mkline/granary/internal/schema"
)

// Verdict is the validation outcome for one record-set. It is produced once
// and drives routing: Compliant artifacts convert and load, NonCompliant
// artifacts quarantine.
type Verdict struct {
	Compliant bool
	Reason    string
}

// Compliant is the passing verdict.
var Compliant = Verdict{Compliant: true}

// NonCompliant builds a failing verdict with the given reason.
func NonCompliant(reason string) Verdict {
	return Verdict{Reason: reason}
}

// Validator checks record-sets against a dataset schema. It is stateless and
// safe for concurrent use.
type Validator struct {
	def *schema.Definition
}

// New creates a Validator bound to an immutable schema definition.
func New(def *schema.Definition) *Validator {
	return &Validator{def: def}
}

// CheckHeader compares a normalized header field-name set against the
// schema's field-name set as an unordered set equality. Field order
// differences do not fail; extra or missing fields both do, and a name
// appearing more than once is reported as unexpected since rows cannot
// carry two values for one field. Used to reject a mismatched file before
// its body is parsed.
// Parameters:
//   - header: normalized header field names.
// Returns:
//   - Verdict: Compliant when the sets are equal.
func (v *Validator) CheckHeader(header []string) Verdict {
	want := make(map[string]struct{}, len(v.def.Fields))
	for _, f := range v.def.Fields {
		want[f.Name] = struct{}{}
	}

	extraSet := make(map[string]struct{})
	got := make(map[string]struct{}, len(header))
	for _, h := range header {
		name := schema.NormalizeFieldName(h)
		if _, dup := got[name]; dup {
			extraSet[name] = struct{}{}
			continue
		}
		got[name] = struct{}{}
		if _, ok := want[name]; !ok {
			extraSet[name] = struct{}{}
		}
	}
	extra := make([]string, 0, len(extraSet))
	for name := range extraSet {
		extra = append(extra, name)
	}

	var missing []string
	for name := range want {
		if _, ok := got[name]; !ok {
			missing = append(missing, name)
		}
	}

	if len(missing) == 0 && len(extra) == 0 {
		return Compliant
	}

	sort.Strings(missing)
	sort.Strings(extra)
	detail := make([]string, 0, 2)
	if len(missing) > 0 {
		detail = append(detail, fmt.Sprintf("missing %s", strings.Join(missing, ", ")))
	}
	if len(extra) > 0 {
		detail = append(detail, fmt.Sprintf("unexpected %s", strings.Join(extra, ", ")))
	}
	return NonCompliant(fmt.Sprintf("schema mismatch: %s", strings.Join(detail, "; ")))
}

// Validate runs the full validation of a parsed record-set: null-row removal
// first, then field-name set equality. Both cleaning steps happen before the
// verdict is computed, so the verdict reflects post-cleaning data. On a
// Compliant verdict the cleaned record-set carries the schema's declared
// field order; on NonCompliant the input is returned unchanged.
// Parameters:
//   - rs: parsed record-set with normalized field names.
// Returns:
//   - Verdict: Compliant or NonCompliant("schema mismatch: ...").
//   - *domain.RecordSet: cleaned record-set (schema field order) when
//     Compliant, the input otherwise.
//   - int: number of null rows removed.
func (v *Validator) Validate(rs *domain.RecordSet) (Verdict, *domain.RecordSet, int) {
	removed := v.dropNullRows(rs)

	verdict := v.CheckHeader(rs.Fields)
	if !verdict.Compliant {
		return verdict, rs, removed
	}

	cleaned := domain.NewRecordSet(v.def.FieldNames())
	cleaned.Rows = rs.Rows
	return Compliant, cleaned, removed
}

// dropNullRows removes, in place, every row with at least one fully-empty
// required field. The removal is silent with respect to the data; callers
// record the count in the audit trail.
func (v *Validator) dropNullRows(rs *domain.RecordSet) int {
	kept := rs.Rows[:0]
	removed := 0
	for _, row := range rs.Rows {
		if rowHasNull(row, rs.Fields) {
			removed++
			continue
		}
		kept = append(kept, row)
	}
	rs.Rows = kept
	return removed
}

func rowHasNull(row domain.Row, fields []string) bool {
	for _, f := range fields {
		if strings.TrimSpace(row[f]) == "" {
			return true
		}
	}
	return false
}
