package planner

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pg-graphql/internal/introspection"
	"pg-graphql/internal/selection"
)

func mustTable(t *testing.T, c *Compiler, name string) *introspection.Table {
	t.Helper()
	table, ok := c.schema.Table(name)
	require.True(t, ok)
	return table
}

func allAccounts(args map[string]interface{}, children ...*selection.Node) *selection.Node {
	return field("allAccounts", selection.TagConnection, "AccountConnection", args, children...)
}

func accountEdges(children ...*selection.Node) *selection.Node {
	return field("edges", selection.TagComposite, "AccountEdge", nil,
		append([]*selection.Node{scalar("cursor")}, field("node", selection.TagTableRow, "Account", nil, children...))...)
}

func pageInfo() *selection.Node {
	return field("pageInfo", selection.TagComposite, "PageInfo", nil,
		scalar("hasNextPage"), scalar("hasPreviousPage"), scalar("startCursor"), scalar("endCursor"))
}

func TestCompile_ForwardConnection(t *testing.T) {
	c := New(testSchema(t))
	query, err := c.Compile(allAccounts(
		map[string]interface{}{"first": 1, "after": rowID("account", 2)},
		accountEdges(scalar("id")),
		pageInfo(),
		scalar("totalCount"),
	))
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(query.SQL, "SELECT ((SELECT json_build_object('edges', COALESCE(json_agg("))
	assert.Contains(t, query.SQL, `json_build_object('cursor', "page_2"."__cursor", 'node', "page_2"."__n0") ORDER BY "page_2"."__k0" ASC) FILTER (WHERE "page_2"."__rn" <= 1), '[]'::json)`)
	assert.Contains(t, query.SQL, `'hasNextPage', count(*) > 1`)
	assert.Contains(t, query.SQL, `'hasPreviousPage', EXISTS (SELECT 1 FROM "app"."account" AS "account_3" WHERE ("account_3"."id") <= ($1))`)
	assert.Contains(t, query.SQL, `'startCursor', (array_agg("page_2"."__cursor" ORDER BY "page_2"."__k0" ASC) FILTER (WHERE "page_2"."__rn" <= 1))[1]`)
	assert.Contains(t, query.SQL, `'endCursor', (array_agg("page_2"."__cursor" ORDER BY "page_2"."__k0" DESC) FILTER (WHERE "page_2"."__rn" <= 1))[1]`)
	assert.Contains(t, query.SQL, `'totalCount', (SELECT count(*) FROM "app"."account" AS "account_4")`)
	assert.Contains(t, query.SQL, `row_number() OVER (ORDER BY "account_1"."id" ASC) AS "__rn"`)
	assert.Contains(t, query.SQL, `WHERE ("account_1"."id") > ($2) ORDER BY "account_1"."id" ASC LIMIT 2) AS "page_2"`)
	assert.Equal(t, []interface{}{int64(2), int64(2)}, query.Args)
}

func TestCompile_BackwardConnection(t *testing.T) {
	c := New(testSchema(t))
	query, err := c.Compile(allAccounts(
		map[string]interface{}{"last": 2, "before": encoded(t, "account", 4)},
		accountEdges(scalar("id")),
		pageInfo(),
	))
	require.NoError(t, err)

	assert.Contains(t, query.SQL, `'hasNextPage', EXISTS (SELECT 1 FROM "app"."account" AS "account_3" WHERE ("account_3"."id") >= ($1))`)
	assert.Contains(t, query.SQL, `'hasPreviousPage', count(*) > 2`)
	assert.Contains(t, query.SQL, `ORDER BY "page_2"."__k0" ASC) FILTER (WHERE "page_2"."__rn" <= 2)`, "edges are re-sorted ascending")
	assert.Contains(t, query.SQL, `WHERE ("account_1"."id") < ($2) ORDER BY "account_1"."id" DESC LIMIT 3`)
	assert.Equal(t, []interface{}{int64(4), int64(4)}, query.Args)
}

func TestCompile_BeforeAloneIsBackward(t *testing.T) {
	c := New(testSchema(t))
	query, err := c.Compile(allAccounts(
		map[string]interface{}{"before": rowID("account", 4)},
		accountEdges(scalar("id")),
	))
	require.NoError(t, err)
	assert.Contains(t, query.SQL, `ORDER BY "account_1"."id" DESC LIMIT 26`)
}

func TestCompile_PageSizes(t *testing.T) {
	tests := []struct {
		name  string
		opts  []Option
		args  map[string]interface{}
		limit string
	}{
		{name: "default", args: nil, limit: "LIMIT 26"},
		{name: "clamped", args: map[string]interface{}{"first": 500}, limit: "LIMIT 101"},
		{name: "zero", args: map[string]interface{}{"first": 0}, limit: "LIMIT 1"},
		{name: "configured default", opts: []Option{WithPageSizes(10, 50)}, limit: "LIMIT 11"},
		{name: "configured max", opts: []Option{WithPageSizes(10, 50)}, args: map[string]interface{}{"last": 80}, limit: "LIMIT 51"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New(testSchema(t), tt.opts...)
			query, err := c.Compile(allAccounts(tt.args, accountEdges(scalar("id"))))
			require.NoError(t, err)
			assert.Contains(t, query.SQL, tt.limit+") AS")
		})
	}
}

func TestCompile_InvalidPaginationArguments(t *testing.T) {
	after := rowID("account", 1)
	tests := map[string]map[string]interface{}{
		"first and last":    {"first": 1, "last": 1},
		"after and before":  {"after": after, "before": after},
		"last with after":   {"last": 1, "after": after},
		"first with before": {"first": 1, "before": after},
		"negative first":    {"first": -1},
		"negative last":     {"last": -3},
	}
	c := New(testSchema(t))
	for name, args := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := c.Compile(allAccounts(args, accountEdges(scalar("id"))))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidPaginationArguments))
		})
	}
}

func TestCompile_CursorFromAnotherTable(t *testing.T) {
	c := New(testSchema(t))
	_, err := c.Compile(allAccounts(
		map[string]interface{}{"after": rowID("post", 1)},
		accountEdges(scalar("id")),
	))
	assert.True(t, errors.Is(err, ErrInvalidCursor))
}

func TestCompile_Condition(t *testing.T) {
	c := New(testSchema(t))
	query, err := c.Compile(allAccounts(
		map[string]interface{}{"condition": map[string]interface{}{"name": "sophie", "mood": nil}},
		accountEdges(scalar("name")),
		scalar("totalCount"),
	))
	require.NoError(t, err)
	assert.Contains(t, query.SQL, `FROM "app"."account" AS "account_3" WHERE "account_3"."mood" IS NULL AND "account_3"."name" = $1)`)
	assert.Contains(t, query.SQL, `WHERE "account_1"."mood" IS NULL AND "account_1"."name" = $2 ORDER BY`)
	assert.Equal(t, []interface{}{"sophie", "sophie"}, query.Args)

	_, err = c.Compile(allAccounts(
		map[string]interface{}{"condition": map[string]interface{}{"nickname": "x"}},
		accountEdges(scalar("name")),
	))
	assert.True(t, errors.Is(err, ErrInvalidCondition))
}

func TestCompile_OneToManyConnection(t *testing.T) {
	c := New(testSchema(t))
	query, err := c.Compile(accountRow(
		map[string]interface{}{"nodeId": rowID("account", 1)},
		field("posts", selection.TagConnection, "PostConnection", map[string]interface{}{"first": 5},
			field("edges", selection.TagComposite, "PostEdge", nil,
				field("node", selection.TagTableRow, "Post", nil, scalar("title"))),
			scalar("totalCount"),
		),
	))
	require.NoError(t, err)
	assert.Contains(t, query.SQL, `FROM "app"."post" AS "post_2" WHERE ("post_2"."account_id" = "account_1"."id") ORDER BY "post_2"."id" ASC LIMIT 6`)
	assert.Contains(t, query.SQL, `(SELECT count(*) FROM "app"."post" AS "post_4" WHERE ("post_4"."account_id" = "account_1"."id"))`)
}

func TestCompile_ManyToManyConnection(t *testing.T) {
	c := New(testSchema(t))
	query, err := c.Compile(field("post", selection.TagTableRow, "Post",
		map[string]interface{}{"nodeId": rowID("post", 1)},
		field("tags", selection.TagConnection, "TagConnection", nil,
			field("edges", selection.TagComposite, "TagEdge", nil,
				field("node", selection.TagTableRow, "Tag", nil, scalar("label"))),
		),
	))
	require.NoError(t, err)
	assert.Contains(t, query.SQL,
		`WHERE EXISTS (SELECT 1 FROM "app"."post_tag" AS "post_tag_3" `+
			`WHERE ("post_tag_3"."post_id" = "post_1"."id") AND ("post_tag_3"."tag_id" = "tag_2"."id"))`)
}

func TestCompile_ConnectionWithoutAggregatesIsOneRow(t *testing.T) {
	tests := []struct {
		name     string
		node     *selection.Node
		contains []string
	}{
		{
			name: "total count only",
			node: allAccounts(nil, scalar("totalCount")),
			contains: []string{
				`SELECT ((SELECT json_build_object('totalCount', (SELECT count(*) FROM "app"."account" AS "account_3")) FROM (`,
				`LIMIT 26) AS "page_2" GROUP BY ())) AS result`,
			},
		},
		{
			name: "forward hasPreviousPage only",
			node: allAccounts(nil, field("pageInfo", selection.TagComposite, "PageInfo", nil, scalar("hasPreviousPage"))),
			contains: []string{
				`json_build_object('pageInfo', json_build_object('hasPreviousPage', false)) FROM (`,
				`AS "page_2" GROUP BY ())`,
			},
		},
		{
			name: "backward hasNextPage only",
			node: allAccounts(map[string]interface{}{"last": 2, "before": rowID("account", 4)},
				field("pageInfo", selection.TagComposite, "PageInfo", nil, scalar("hasNextPage"))),
			contains: []string{
				`'hasNextPage', EXISTS (SELECT 1 FROM "app"."account" AS "account_3" WHERE ("account_3"."id") >= ($1))`,
				`AS "page_2" GROUP BY ())`,
			},
		},
		{
			name: "nested total count only",
			node: accountRow(map[string]interface{}{"nodeId": rowID("account", 1)},
				field("posts", selection.TagConnection, "PostConnection", nil, scalar("totalCount"))),
			contains: []string{
				`(SELECT count(*) FROM "app"."post" AS "post_4" WHERE ("post_4"."account_id" = "account_1"."id"))`,
				`GROUP BY ())`,
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			query, err := New(testSchema(t)).Compile(tt.node)
			require.NoError(t, err)
			for _, want := range tt.contains {
				assert.Contains(t, query.SQL, want)
			}
		})
	}
}

func TestCompile_ConnectionRejectsUnknownFields(t *testing.T) {
	c := New(testSchema(t))
	_, err := c.Compile(allAccounts(nil, scalar("nodes")))
	assert.True(t, errors.Is(err, ErrUnsupportedSelection))
}

func TestJSONObjectChunksWideObjects(t *testing.T) {
	pairs := make([]jsonPair, 0, 51)
	for i := 0; i < 51; i++ {
		pairs = append(pairs, jsonPair{key: "k", value: raw("1")})
	}
	sql, _, err := jsonObject(pairs).ToSql()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(sql, "(json_build_object("))
	assert.Contains(t, sql, ")::jsonb || json_build_object('k', 1)::jsonb)::json")
	assert.Equal(t, 2, strings.Count(sql, "json_build_object("))
}
