package introspection

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pg-graphql/internal/naming"
)

func expectReflection(mock sqlmock.Sqlmock) {
	mock.ExpectQuery("FROM information_schema.tables").
		WithArgs("app").
		WillReturnRows(sqlmock.NewRows([]string{"table_name", "table_type"}).
			AddRow("account", "BASE TABLE").
			AddRow("account_names", "VIEW").
			AddRow("post", "BASE TABLE").
			AddRow("post_tag", "BASE TABLE").
			AddRow("tag", "BASE TABLE"))

	mock.ExpectQuery("FROM information_schema.columns").
		WithArgs("app").
		WillReturnRows(sqlmock.NewRows([]string{"table_name", "column_name", "data_type", "udt_name", "is_nullable", "has_default", "is_generated"}).
			AddRow("account", "id", "integer", "int4", "NO", true, false).
			AddRow("account", "name", "text", "text", "NO", false, false).
			AddRow("account", "mood", "USER-DEFINED", "mood", "YES", false, false).
			AddRow("account", "address", "USER-DEFINED", "address", "YES", false, false).
			AddRow("account_names", "name", "text", "text", "YES", false, false).
			AddRow("post", "id", "integer", "int4", "NO", true, false).
			AddRow("post", "account_id", "integer", "int4", "YES", false, false).
			AddRow("post", "title", "text", "text", "NO", false, false).
			AddRow("post_tag", "post_id", "integer", "int4", "NO", false, false).
			AddRow("post_tag", "tag_id", "integer", "int4", "NO", false, false).
			AddRow("tag", "id", "integer", "int4", "NO", true, false).
			AddRow("tag", "label", "text", "text", "NO", false, false))

	mock.ExpectQuery("constraint_type = 'PRIMARY KEY'").
		WithArgs("app").
		WillReturnRows(sqlmock.NewRows([]string{"table_name", "column_name"}).
			AddRow("account", "id").
			AddRow("post", "id").
			AddRow("post_tag", "post_id").
			AddRow("post_tag", "tag_id").
			AddRow("tag", "id"))

	mock.ExpectQuery("con.contype = 'f'").
		WithArgs("app").
		WillReturnRows(sqlmock.NewRows([]string{"conname", "relname", "attname", "frelname", "fattname", "ord"}).
			AddRow("post_account_id_fkey", "post", "account_id", "account", "id", 1).
			AddRow("post_tag_post_id_fkey", "post_tag", "post_id", "post", "id", 1).
			AddRow("post_tag_tag_id_fkey", "post_tag", "tag_id", "tag", "id", 1))

	mock.ExpectQuery("pg_catalog.pg_enum").
		WithArgs("app").
		WillReturnRows(sqlmock.NewRows([]string{"typname", "enumlabel"}).
			AddRow("mood", "happy").
			AddRow("mood", "sad"))

	mock.ExpectQuery("t.typtype = 'c'").
		WithArgs("app").
		WillReturnRows(sqlmock.NewRows([]string{"typname", "attname", "format_type"}).
			AddRow("address", "street", "text").
			AddRow("address", "zip_code", "text"))

	mock.ExpectQuery("FROM pg_catalog.pg_proc").
		WithArgs("app").
		WillReturnRows(sqlmock.NewRows([]string{"oid", "proname", "provolatile", "rettype", "argname", "argtype", "ord"}).
			AddRow(100, "account_count", "s", "bigint", "", "", 0).
			AddRow(101, "search_titles", "s", "text", "needle", "text", 1).
			AddRow(101, "search_titles", "s", "text", "max_len", "integer", 2).
			AddRow(102, "search_titles", "s", "text", "needle", "integer", 1).
			AddRow(103, "touch_account", "v", "integer", "", "integer", 1))
}

func TestReflect(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	expectReflection(mock)

	schema, err := Reflect(context.Background(), db, "app", naming.Default())
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	names := make([]string, 0, len(schema.Tables))
	for _, table := range schema.Tables {
		names = append(names, table.Name)
	}
	assert.Equal(t, []string{"account", "post", "post_tag", "tag"}, names, "view without primary key is skipped")

	account, ok := schema.Table("account")
	require.True(t, ok)
	assert.Equal(t, "app", account.Schema)
	assert.Equal(t, "Account", account.TypeName)
	assert.Equal(t, "account", account.FieldName)
	assert.Equal(t, "allAccounts", account.ListFieldName)
	assert.Equal(t, []string{"id"}, account.PrimaryKey)

	id, ok := account.ColumnByField("id")
	require.True(t, ok)
	assert.True(t, id.IsPrimaryKey)
	assert.True(t, id.HasDefault)

	mood, ok := account.Column("mood")
	require.True(t, ok)
	assert.Equal(t, "mood", mood.EnumType)
	assert.Equal(t, []string{"happy", "sad"}, mood.EnumValues)

	address, ok := account.Column("address")
	require.True(t, ok)
	assert.Equal(t, "address", address.CompositeType)
	composite, ok := schema.Composite("address")
	require.True(t, ok)
	attr, ok := composite.AttributeByField("zipCode")
	require.True(t, ok)
	assert.Equal(t, "zip_code", attr.Name)

	posts, ok := account.RelationshipByField("posts")
	require.True(t, ok)
	assert.Equal(t, OneToMany, posts.Direction)
	assert.Equal(t, []string{"id"}, posts.LocalColumns)
	assert.Equal(t, []string{"account_id"}, posts.RemoteColumns)

	post, _ := schema.Table("post")
	owner, ok := post.RelationshipByField("account")
	require.True(t, ok)
	assert.Equal(t, ManyToOne, owner.Direction)
	assert.True(t, owner.IsNullable)

	tags, ok := post.RelationshipByField("tags")
	require.True(t, ok)
	assert.Equal(t, ManyToMany, tags.Direction)
	assert.Equal(t, "post_tag", tags.JunctionTable)
	assert.Equal(t, []string{"post_id"}, tags.JunctionLocalColumns)
	assert.Equal(t, []string{"tag_id"}, tags.JunctionRemoteColumns)

	tag, _ := schema.Table("tag")
	_, ok = tag.RelationshipByField("posts")
	assert.True(t, ok)
	_, ok = tag.RelationshipByField("postTags")
	assert.False(t, ok, "pure junction does not produce one-to-many fields")

	junction, _ := schema.Table("post_tag")
	assert.True(t, junction.IsJunction)

	require.Len(t, schema.Functions, 3, "overloads are dropped")
	assert.Equal(t, "accountCount", schema.Functions[0].FieldName)
	assert.Empty(t, schema.Functions[0].Args)
	assert.Equal(t, "searchTitles", schema.Functions[1].FieldName)
	require.Len(t, schema.Functions[1].Args, 2)
	assert.Equal(t, "maxLen", schema.Functions[1].Args[1].FieldName)
	assert.False(t, schema.Functions[1].Volatile)
	assert.True(t, schema.Functions[2].Volatile)
	assert.Equal(t, "arg1", schema.Functions[2].Args[0].Name)
}

func TestReflectPropagatesQueryErrors(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	boom := errors.New("permission denied")
	mock.ExpectQuery("FROM information_schema.tables").WillReturnError(boom)

	_, err = Reflect(context.Background(), db, "app", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, boom))
	assert.Contains(t, err.Error(), "failed to get tables")
}
