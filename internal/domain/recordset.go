package domain

// Row is one tabular row, a mapping from field name to its raw scalar value.
type Row map[string]string

// RecordSet is an in-memory ordered sequence of rows materialized from
// exactly one input artifact. Fields carries the field names in order;
// every Row is keyed by those names. A RecordSet is owned by the pipeline
// stage currently processing it and is never shared across stages.
type RecordSet struct {
	Fields []string
	Rows   []Row
}

// NewRecordSet creates an empty record-set with the given field order.
func NewRecordSet(fields []string) *RecordSet {
	return &RecordSet{Fields: fields}
}

// Append adds one row built from values aligned with the field order.
// Values beyond the field count are ignored; missing values become empty.
func (rs *RecordSet) Append(values []string) {
	row := make(Row, len(rs.Fields))
	for i, f := range rs.Fields {
		if i < len(values) {
			row[f] = values[i]
		} else {
			row[f] = ""
		}
	}
	rs.Rows = append(rs.Rows, row)
}

// Len returns the number of data rows.
func (rs *RecordSet) Len() int {
	return len(rs.Rows)
}
