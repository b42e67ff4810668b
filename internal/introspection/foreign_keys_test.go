package introspection

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestForeignKeyConstraints_CompositeKeysInOrdinalOrder(t *testing.T) {
	table := Table{
		Name: "membership",
		ForeignKeys: []ForeignKey{
			{ConstraintName: "membership_account_fkey", ColumnName: "account_id", ReferencedTable: "account", ReferencedColumn: "id", OrdinalPosition: 2},
			{ConstraintName: "membership_account_fkey", ColumnName: "tenant_id", ReferencedTable: "account", ReferencedColumn: "tenant_id", OrdinalPosition: 1},
			{ConstraintName: "membership_team_fkey", ColumnName: "team_id", ReferencedTable: "team", ReferencedColumn: "id", OrdinalPosition: 1},
		},
	}

	got := ForeignKeyConstraints(table)
	require.Len(t, got, 2)
	assert.Equal(t, ForeignKeyConstraint{
		ConstraintName:    "membership_account_fkey",
		ReferencedTable:   "account",
		ColumnNames:       []string{"tenant_id", "account_id"},
		ReferencedColumns: []string{"tenant_id", "id"},
	}, got[0])
	assert.Equal(t, "membership_team_fkey", got[1].ConstraintName)
}

func TestForeignKeyConstraints_UnnamedRowsStayApart(t *testing.T) {
	table := Table{
		Name: "post",
		ForeignKeys: []ForeignKey{
			{ColumnName: "author_id", ReferencedTable: "account", ReferencedColumn: "id"},
			{ColumnName: "editor_id", ReferencedTable: "account", ReferencedColumn: "id"},
		},
	}

	got := ForeignKeyConstraints(table)
	require.Len(t, got, 2)
	assert.Equal(t, []string{"author_id"}, got[0].ColumnNames)
	assert.Equal(t, []string{"editor_id"}, got[1].ColumnNames)
	assert.Nil(t, ForeignKeyConstraints(Table{Name: "lonely"}))
}
