package resolver

import (
	"encoding/json"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/graphql-go/graphql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pg-graphql/internal/dbexec"
	"pg-graphql/internal/introspection"
	"pg-graphql/internal/nodeid"
)

func testSchema(t *testing.T) *introspection.Schema {
	t.Helper()
	schema, err := introspection.NewSchema(introspection.Definition{
		Name:  "app",
		Enums: []introspection.EnumType{{Name: "mood", Values: []string{"happy", "sad", "so-so"}}},
		Composites: []introspection.CompositeType{{
			Name: "address",
			Attributes: []introspection.Column{
				{Name: "street", DataType: "text"},
				{Name: "zip_code", DataType: "text"},
			},
		}},
		Tables: []introspection.Table{
			{
				Schema: "app",
				Name:   "account",
				Columns: []introspection.Column{
					{Name: "id", DataType: "integer", HasDefault: true},
					{Name: "name", DataType: "text"},
					{Name: "mood", DataType: "USER-DEFINED", UDTName: "mood", IsNullable: true},
					{Name: "address", DataType: "USER-DEFINED", UDTName: "address", IsNullable: true},
					{Name: "balance", DataType: "bigint", IsNullable: true},
					{Name: "meta", DataType: "jsonb", IsNullable: true},
				},
				PrimaryKey: []string{"id"},
			},
			{
				Schema: "app",
				Name:   "post",
				Columns: []introspection.Column{
					{Name: "id", DataType: "integer"},
					{Name: "account_id", DataType: "integer", IsNullable: true},
					{Name: "title", DataType: "text"},
				},
				PrimaryKey: []string{"id"},
				ForeignKeys: []introspection.ForeignKey{
					{ConstraintName: "post_account_id_fkey", ColumnName: "account_id", ReferencedTable: "account", ReferencedColumn: "id", OrdinalPosition: 1},
				},
			},
			{
				Schema: "app",
				Name:   "account_summary",
				IsView: true,
				Columns: []introspection.Column{
					{Name: "id", DataType: "integer"},
					{Name: "posts", DataType: "bigint", IsNullable: true},
				},
				PrimaryKey: []string{"id"},
			},
			{
				Schema: "app",
				Name:   "audit_log",
				Columns: []introspection.Column{
					{Name: "message", DataType: "text"},
				},
			},
		},
		Functions: []introspection.Function{
			{Schema: "app", Name: "account_count", ReturnType: "bigint"},
			{Schema: "app", Name: "bump_counter", ReturnType: "integer", Volatile: true},
		},
	}, nil)
	require.NoError(t, err)
	return schema
}

func newMock(t *testing.T) (*dbexec.StandardExecutor, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return dbexec.NewStandardExecutor(db), mock
}

func buildSchema(t *testing.T, r *Resolver) graphql.Schema {
	t.Helper()
	schema, err := r.BuildGraphQLSchema()
	require.NoError(t, err)
	return schema
}

func mustTable(t *testing.T, schema *introspection.Schema, name string) *introspection.Table {
	t.Helper()
	table, ok := schema.Table(name)
	require.True(t, ok)
	return table
}

func relationshipField(t *testing.T, table *introspection.Table, direction introspection.Direction) string {
	t.Helper()
	for _, rel := range table.Relationships {
		if rel.Direction == direction {
			return rel.FieldName
		}
	}
	t.Fatalf("table %s has no %s relationship", table.Name, direction)
	return ""
}

func encoded(t *testing.T, table string, pk int64) string {
	t.Helper()
	s, err := nodeid.Encode(nodeid.New(table, "id", pk))
	require.NoError(t, err)
	return s
}

func jsonRow(doc string) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"result"}).AddRow([]byte(doc))
}

func assertData(t *testing.T, want string, result *graphql.Result) {
	t.Helper()
	require.Empty(t, result.Errors)
	got, err := json.Marshal(result.Data)
	require.NoError(t, err)
	assert.JSONEq(t, want, string(got))
}

func sqlmockNullRow() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"result"}).AddRow(nil)
}

func sqlmockStringRow(value string) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"result"}).AddRow(value)
}

func sqlmockStringRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"result"})
}
