package introspection

import (
	"log/slog"

	"pg-graphql/internal/naming"
)

// buildRelationships resolves foreign keys into relationship descriptors on
// both ends, plus many-to-many relationships across pure junction tables.
// Foreign keys referencing unregistered tables are skipped.
func (s *Schema) buildRelationships(namer *naming.Namer) {
	for i := range s.Tables {
		s.Tables[i].IsJunction = s.isPureJunction(&s.Tables[i])
	}

	// Count constraints per (source, target) to pick disambiguated field names.
	fkCount := make(map[string]map[string]int)
	for _, table := range s.Tables {
		for _, fk := range ForeignKeyConstraints(table) {
			if fkCount[table.Name] == nil {
				fkCount[table.Name] = make(map[string]int)
			}
			fkCount[table.Name][fk.ReferencedTable]++
		}
	}

	for i := range s.Tables {
		table := &s.Tables[i]
		for _, fk := range ForeignKeyConstraints(*table) {
			target, ok := s.Table(fk.ReferencedTable)
			if !ok || len(fk.ColumnNames) == 0 || len(fk.ColumnNames) != len(fk.ReferencedColumns) {
				slog.Default().Warn("skipping foreign key",
					slog.String("table", table.Name),
					slog.String("constraint", fk.ConstraintName),
					slog.String("referenced_table", fk.ReferencedTable),
				)
				continue
			}

			var fieldName string
			if len(fk.ColumnNames) == 1 {
				fieldName = namer.ManyToOneFieldName(fk.ColumnNames[0])
			} else {
				fieldName = namer.Singularize(namer.ToGraphQLFieldName(target.Name))
			}
			nullable := false
			for _, name := range fk.ColumnNames {
				if col, ok := table.Column(name); ok && col.IsNullable {
					nullable = true
				}
			}
			table.Relationships = append(table.Relationships, Relationship{
				Direction:      ManyToOne,
				ConstraintName: fk.ConstraintName,
				LocalColumns:   append([]string(nil), fk.ColumnNames...),
				RemoteTable:    target.Name,
				RemoteColumns:  append([]string(nil), fk.ReferencedColumns...),
				IsNullable:     nullable,
				FieldName:      fieldName,
			})

			// Junction rows are reached through many-to-many instead.
			if table.IsJunction {
				continue
			}
			isOnlyFK := fkCount[table.Name][target.Name] == 1
			target.Relationships = append(target.Relationships, Relationship{
				Direction:      OneToMany,
				ConstraintName: fk.ConstraintName,
				LocalColumns:   append([]string(nil), fk.ReferencedColumns...),
				RemoteTable:    table.Name,
				RemoteColumns:  append([]string(nil), fk.ColumnNames...),
				FieldName:      namer.OneToManyFieldName(table.Name, fk.ColumnNames[0], isOnlyFK),
			})
		}
	}

	for i := range s.Tables {
		junction := &s.Tables[i]
		if !junction.IsJunction {
			continue
		}
		fks := ForeignKeyConstraints(*junction)
		left, _ := s.Table(fks[0].ReferencedTable)
		right, _ := s.Table(fks[1].ReferencedTable)
		left.Relationships = append(left.Relationships, Relationship{
			Direction:             ManyToMany,
			LocalColumns:          append([]string(nil), fks[0].ReferencedColumns...),
			RemoteTable:           right.Name,
			RemoteColumns:         append([]string(nil), fks[1].ReferencedColumns...),
			JunctionTable:         junction.Name,
			JunctionLocalColumns:  append([]string(nil), fks[0].ColumnNames...),
			JunctionRemoteColumns: append([]string(nil), fks[1].ColumnNames...),
			FieldName:             namer.JunctionFieldName(junction.Name, left.Name, right.Name, right.Name),
		})
		right.Relationships = append(right.Relationships, Relationship{
			Direction:             ManyToMany,
			LocalColumns:          append([]string(nil), fks[1].ReferencedColumns...),
			RemoteTable:           left.Name,
			RemoteColumns:         append([]string(nil), fks[0].ReferencedColumns...),
			JunctionTable:         junction.Name,
			JunctionLocalColumns:  append([]string(nil), fks[1].ColumnNames...),
			JunctionRemoteColumns: append([]string(nil), fks[0].ColumnNames...),
			FieldName:             namer.JunctionFieldName(junction.Name, left.Name, right.Name, left.Name),
		})
	}
}

// isPureJunction reports whether a table only links two other tables:
// exactly two foreign keys to distinct registered tables, NOT NULL key columns,
// a primary key equal to the union of both keys, and no other columns.
func (s *Schema) isPureJunction(table *Table) bool {
	if table.IsView {
		return false
	}
	fks := ForeignKeyConstraints(*table)
	if len(fks) != 2 || fks[0].ReferencedTable == fks[1].ReferencedTable {
		return false
	}
	fkCols := make(map[string]bool)
	for _, fk := range fks {
		if _, ok := s.Table(fk.ReferencedTable); !ok {
			return false
		}
		if len(fk.ColumnNames) != len(fk.ReferencedColumns) {
			return false
		}
		for _, name := range fk.ColumnNames {
			fkCols[name] = true
		}
	}
	for _, col := range table.Columns {
		if !fkCols[col.Name] || col.IsNullable {
			return false
		}
	}
	if len(table.PrimaryKey) != len(fkCols) {
		return false
	}
	for _, name := range table.PrimaryKey {
		if !fkCols[name] {
			return false
		}
	}
	return true
}
