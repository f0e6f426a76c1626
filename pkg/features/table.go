package features

// FeatureRow is one entity with its numeric features aligned to Table.Features.
type FeatureRow struct {
	EntityID string    `json:"entity_id"`
	Category string    `json:"category_label"`
	Values   []float64 `json:"numeric_features"`
}

// Table is the feature matrix for one run. It is never modified after Build;
// accessors hand out copies.
type Table struct {
	features []string
	index    map[string]int
	rows     []FeatureRow
}

// NewTable assembles a table from rows that already follow the given feature order.
// Each row must carry exactly len(names) values.
func NewTable(names []string, rows []FeatureRow) *Table {
	t := &Table{
		features: append([]string(nil), names...),
		index:    make(map[string]int, len(names)),
		rows:     make([]FeatureRow, len(rows)),
	}
	for i, name := range names {
		t.index[name] = i
	}
	for i, r := range rows {
		t.rows[i] = FeatureRow{
			EntityID: r.EntityID,
			Category: r.Category,
			Values:   append([]float64(nil), r.Values...),
		}
	}
	return t
}

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.rows) }

// Features returns the feature names in column order.
func (t *Table) Features() []string { return append([]string(nil), t.features...) }

// Index returns the column of a feature, or -1.
func (t *Table) Index(name string) int {
	if i, ok := t.index[name]; ok {
		return i
	}
	return -1
}

// Row returns a copy of row i.
func (t *Table) Row(i int) FeatureRow {
	r := t.rows[i]
	r.Values = append([]float64(nil), r.Values...)
	return r
}

// Rows returns a copy of all rows.
func (t *Table) Rows() []FeatureRow {
	out := make([]FeatureRow, len(t.rows))
	for i := range t.rows {
		out[i] = t.Row(i)
	}
	return out
}

// EntityIDs returns the entity ids in row order.
func (t *Table) EntityIDs() []string {
	ids := make([]string, len(t.rows))
	for i, r := range t.rows {
		ids[i] = r.EntityID
	}
	return ids
}

// Categories returns the category labels in row order.
func (t *Table) Categories() []string {
	cats := make([]string, len(t.rows))
	for i, r := range t.rows {
		cats[i] = r.Category
	}
	return cats
}

// Matrix returns a fresh copy of the raw feature values, one slice per row.
func (t *Table) Matrix() [][]float64 {
	m := make([][]float64, len(t.rows))
	for i, r := range t.rows {
		m[i] = append([]float64(nil), r.Values...)
	}
	return m
}

// Column returns a copy of one feature's values, or nil if the feature is unknown.
func (t *Table) Column(name string) []float64 {
	j := t.Index(name)
	if j < 0 {
		return nil
	}
	col := make([]float64, len(t.rows))
	for i, r := range t.rows {
		col[i] = r.Values[j]
	}
	return col
}

// Value returns the raw value of a feature for row i.
func (t *Table) Value(i int, name string) (float64, bool) {
	j := t.Index(name)
	if j < 0 {
		return 0, false
	}
	return t.rows[i].Values[j], true
}
