// Package tablespec holds the static table specifications that drive extraction:
// which tables to read, which columns, in what order, and each column's declared type.
// Declared types are checked before numeric/categorical transforms run so a bad pipe
// definition fails up front instead of deep inside a row function.
package tablespec

import (
	"fmt"
	"strings"

	om "github.com/cevaris/ordered_map"
	"github.com/dmorley/colsnap/constants"
)

// ColumnSpec names one column and its declared type.
type ColumnSpec struct {
	Name string `json:"name" errorTxt:"column name" mandatory:"yes"`
	Type string `json:"type" errorTxt:"column type" mandatory:"yes"`
}

// TableSpec is one entry of the extraction scope: a table and its ordered column list.
type TableSpec struct {
	Name    string       `json:"name" errorTxt:"table name" mandatory:"yes"`
	Columns []ColumnSpec `json:"columns" errorTxt:"column list" mandatory:"yes"`
}

var validColumnTypes = map[string]struct{}{
	constants.ColumnTypeString:    {},
	constants.ColumnTypeInteger:   {},
	constants.ColumnTypeFloat:     {},
	constants.ColumnTypeBoolean:   {},
	constants.ColumnTypeTimestamp: {},
}

// Validate checks the spec has a table name, at least one column and known column types.
func (t TableSpec) Validate() error {
	if t.Name == "" {
		return fmt.Errorf("missing table name in table specification")
	}
	if len(t.Columns) == 0 {
		return fmt.Errorf("table %q has no columns in its specification", t.Name)
	}
	seen := make(map[string]struct{}, len(t.Columns))
	for _, c := range t.Columns {
		if c.Name == "" {
			return fmt.Errorf("table %q has a column with no name", t.Name)
		}
		if _, ok := validColumnTypes[c.Type]; !ok {
			return fmt.Errorf("table %q column %q has unsupported type %q", t.Name, c.Name, c.Type)
		}
		if _, dup := seen[c.Name]; dup {
			return fmt.Errorf("table %q lists column %q more than once", t.Name, c.Name)
		}
		seen[c.Name] = struct{}{}
	}
	return nil
}

// ColumnNames returns the column names in specification order.
func (t TableSpec) ColumnNames() []string {
	retval := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		retval[i] = c.Name
	}
	return retval
}

// ColumnType returns the declared type for the named column, or an error if the
// column is not part of the specification.
func (t TableSpec) ColumnType(name string) (string, error) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c.Type, nil
		}
	}
	return "", fmt.Errorf("column %q is not declared in the specification for table %q", name, t.Name)
}

// HasColumn reports whether the named column is part of the specification.
func (t TableSpec) HasColumn(name string) bool {
	_, err := t.ColumnType(name)
	return err == nil
}

// SelectSql generates the column-projecting SELECT for this table in specification order.
func (t TableSpec) SelectSql() string {
	return fmt.Sprintf("select %v from %v", strings.Join(t.ColumnNames(), ", "), t.Name)
}

// WithColumn returns a copy of the spec extended by one column.
// Transforms that create columns use this to keep the spec and the stream aligned.
func (t TableSpec) WithColumn(name string, columnType string) TableSpec {
	if t.HasColumn(name) { // replacement keeps the original position.
		cols := make([]ColumnSpec, len(t.Columns))
		copy(cols, t.Columns)
		for i := range cols {
			if cols[i].Name == name {
				cols[i].Type = columnType
			}
		}
		return TableSpec{Name: t.Name, Columns: cols}
	}
	cols := make([]ColumnSpec, len(t.Columns), len(t.Columns)+1)
	copy(cols, t.Columns)
	return TableSpec{Name: t.Name, Columns: append(cols, ColumnSpec{Name: name, Type: columnType})}
}

// ToOrderedMap returns column name -> declared type preserving specification order.
func (t TableSpec) ToOrderedMap() *om.OrderedMap {
	retval := om.NewOrderedMap()
	for _, c := range t.Columns {
		retval.Set(c.Name, c.Type)
	}
	return retval
}
