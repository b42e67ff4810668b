package planner

import (
	"testing"

	"github.com/stretchr/testify/require"

	"pg-graphql/internal/introspection"
	"pg-graphql/internal/nodeid"
	"pg-graphql/internal/selection"
)

func testSchema(t *testing.T) *introspection.Schema {
	t.Helper()
	schema, err := introspection.NewSchema(introspection.Definition{
		Name:  "app",
		Enums: []introspection.EnumType{{Name: "mood", Values: []string{"happy", "sad"}}},
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
				Name:   "post_tag",
				Columns: []introspection.Column{
					{Name: "post_id", DataType: "integer"},
					{Name: "tag_id", DataType: "integer"},
				},
				PrimaryKey: []string{"post_id", "tag_id"},
				ForeignKeys: []introspection.ForeignKey{
					{ConstraintName: "post_tag_post_id_fkey", ColumnName: "post_id", ReferencedTable: "post", ReferencedColumn: "id", OrdinalPosition: 1},
					{ConstraintName: "post_tag_tag_id_fkey", ColumnName: "tag_id", ReferencedTable: "tag", ReferencedColumn: "id", OrdinalPosition: 1},
				},
			},
			{
				Schema: "app",
				Name:   "tag",
				Columns: []introspection.Column{
					{Name: "id", DataType: "integer"},
					{Name: "label", DataType: "text"},
				},
				PrimaryKey: []string{"id"},
			},
		},
		Functions: []introspection.Function{
			{Schema: "app", Name: "account_count", ReturnType: "bigint"},
			{Schema: "app", Name: "search_titles", ReturnType: "text", Args: []introspection.FunctionArg{{Name: "needle", DataType: "text"}}},
		},
	}, nil)
	require.NoError(t, err)
	return schema
}

// field builds a selection node and links its children.
func field(name string, tag selection.Tag, typeName string, args map[string]interface{}, children ...*selection.Node) *selection.Node {
	n := &selection.Node{Name: name, Alias: name, Tag: tag, TypeName: typeName, Args: args, Children: children}
	for _, child := range children {
		child.Parent = n
	}
	return n
}

func scalar(name string) *selection.Node {
	return field(name, selection.TagScalar, "", nil)
}

func aliased(alias string, n *selection.Node) *selection.Node {
	n.Alias = alias
	return n
}

func rowID(table string, pk int64) nodeid.Identifier {
	return nodeid.New(table, "id", pk)
}

func encoded(t *testing.T, table string, pk int64) string {
	t.Helper()
	s, err := nodeid.Encode(rowID(table, pk))
	require.NoError(t, err)
	return s
}
