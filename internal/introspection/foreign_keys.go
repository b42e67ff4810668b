package introspection

import (
	"cmp"
	"slices"
)

// ForeignKeyConstraint is one foreign key constraint with its column pairs in
// key order.
type ForeignKeyConstraint struct {
	ConstraintName    string
	ReferencedTable   string
	ColumnNames       []string
	ReferencedColumns []string
}

// ForeignKeyConstraints folds the table's per-column foreign key rows into
// constraints ordered by name. Rows without a constraint name each form a
// constraint of their own.
func ForeignKeyConstraints(table Table) []ForeignKeyConstraint {
	if len(table.ForeignKeys) == 0 {
		return nil
	}

	byName := make(map[string][]ForeignKey)
	var unnamed [][]ForeignKey
	for _, fk := range table.ForeignKeys {
		if fk.ConstraintName == "" {
			unnamed = append(unnamed, []ForeignKey{fk})
			continue
		}
		byName[fk.ConstraintName] = append(byName[fk.ConstraintName], fk)
	}

	names := make([]string, 0, len(byName))
	for name := range byName {
		names = append(names, name)
	}
	slices.Sort(names)

	groups := make([][]ForeignKey, 0, len(names)+len(unnamed))
	for _, name := range names {
		groups = append(groups, byName[name])
	}
	groups = append(groups, unnamed...)

	result := make([]ForeignKeyConstraint, 0, len(groups))
	for _, rows := range groups {
		slices.SortStableFunc(rows, func(a, b ForeignKey) int {
			return cmp.Compare(a.OrdinalPosition, b.OrdinalPosition)
		})
		c := ForeignKeyConstraint{
			ConstraintName:  rows[0].ConstraintName,
			ReferencedTable: rows[0].ReferencedTable,
		}
		for _, fk := range rows {
			c.ColumnNames = append(c.ColumnNames, fk.ColumnName)
			c.ReferencedColumns = append(c.ReferencedColumns, fk.ReferencedColumn)
		}
		result = append(result, c)
	}
	return result
}
