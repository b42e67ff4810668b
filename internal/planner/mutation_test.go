package planner

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pg-graphql/internal/nodeid"
	"pg-graphql/internal/selection"
)

func payload(name string, tag selection.Tag, typeName string, input map[string]interface{}, children ...*selection.Node) *selection.Node {
	return field(name, tag, typeName, map[string]interface{}{"input": input}, children...)
}

func TestCompileMutation_Create(t *testing.T) {
	c := New(testSchema(t))
	plan, err := c.CompileMutation(payload("createAccount", selection.TagCreatePayload, "CreateAccountPayload",
		map[string]interface{}{
			"account":          map[string]interface{}{"id": 31, "name": "Buddy", "meta": map[string]interface{}{"a": 1}},
			"clientMutationId": "abc",
		},
		field("account", selection.TagTableRow, "Account", nil, scalar("id"), scalar("name")),
		scalar("clientMutationId"),
	))
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(plan.Statement.SQL,
		`INSERT INTO "app"."account" AS "account_1" ("id","name","meta") VALUES ($1,$2,$3) RETURNING translate(`))
	assert.Equal(t, []interface{}{31, "Buddy", `{"a":1}`}, plan.Statement.Args)
	assert.Equal(t, "abc", plan.ClientMutationID)

	id := encoded(t, "account", 31)
	reselect, ok, err := plan.Reselect(id)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t,
		`SELECT (json_build_object('account', (SELECT json_build_object('id', "account_1"."id", 'name', "account_1"."name") `+
			`FROM "app"."account" AS "account_1" WHERE "account_1"."id" = $1))) AS result`,
		reselect.SQL)
	assert.Equal(t, []interface{}{int64(31)}, reselect.Args)

	row := map[string]interface{}{"id": float64(31), "name": "Buddy"}
	doc := plan.Payload(id, map[string]interface{}{"account": row})
	assert.Equal(t, map[string]interface{}{"account": row, "clientMutationId": "abc"}, doc)
}

func TestCompileMutation_CreateWithDefaults(t *testing.T) {
	c := New(testSchema(t))
	plan, err := c.CompileMutation(payload("createAccount", selection.TagCreatePayload, "CreateAccountPayload",
		map[string]interface{}{"account": map[string]interface{}{}},
		scalar("clientMutationId"),
	))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(plan.Statement.SQL, `INSERT INTO "app"."account" AS "account_1" DEFAULT VALUES RETURNING translate(`))
	assert.Empty(t, plan.Statement.Args)

	_, ok, err := plan.Reselect(encoded(t, "account", 1))
	require.NoError(t, err)
	assert.False(t, ok, "no row selected")
}

func TestCompileMutation_CompositeValue(t *testing.T) {
	c := New(testSchema(t))
	plan, err := c.CompileMutation(payload("createAccount", selection.TagCreatePayload, "CreateAccountPayload",
		map[string]interface{}{"account": map[string]interface{}{"name": "x", "address": map[string]interface{}{"street": "Main"}}},
	))
	require.NoError(t, err)
	assert.Contains(t, plan.Statement.SQL, `VALUES ($1,json_populate_record(NULL::"app"."address", $2::json))`)
	assert.Equal(t, []interface{}{"x", `{"street":"Main"}`}, plan.Statement.Args)
}

func TestCompileMutation_Update(t *testing.T) {
	c := New(testSchema(t))
	plan, err := c.CompileMutation(payload("updateAccount", selection.TagUpdatePayload, "UpdateAccountPayload",
		map[string]interface{}{
			"nodeId":       rowID("account", 1),
			"accountPatch": map[string]interface{}{"name": "sophie"},
		},
		aliased("updated", field("account", selection.TagTableRow, "Account", nil, scalar("name"))),
	))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(plan.Statement.SQL,
		`UPDATE "app"."account" AS "account_1" SET "name" = $1 WHERE "account_1"."id" = $2 RETURNING translate(`))
	assert.Equal(t, []interface{}{"sophie", int64(1)}, plan.Statement.Args)

	reselect, ok, err := plan.Reselect(encoded(t, "account", 1))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Contains(t, reselect.SQL, `json_build_object('updated', (SELECT`)
}

func TestCompileMutation_UpdateWithEmptyPatch(t *testing.T) {
	c := New(testSchema(t))
	plan, err := c.CompileMutation(payload("updateAccount", selection.TagUpdatePayload, "UpdateAccountPayload",
		map[string]interface{}{"nodeId": rowID("account", 1), "accountPatch": map[string]interface{}{}},
	))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(plan.Statement.SQL, "SELECT translate("))
	assert.True(t, strings.HasSuffix(plan.Statement.SQL, `FROM "app"."account" AS "account_1" WHERE "account_1"."id" = $1`))
}

func TestCompileMutation_Delete(t *testing.T) {
	c := New(testSchema(t))
	plan, err := c.CompileMutation(payload("deleteAccount", selection.TagDeletePayload, "DeleteAccountPayload",
		map[string]interface{}{"nodeId": rowID("account", 4), "clientMutationId": "x1"},
		aliased("deleted", scalar("nodeId")),
		scalar("clientMutationId"),
	))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(plan.Statement.SQL,
		`DELETE FROM "app"."account" AS "account_1" WHERE "account_1"."id" = $1 RETURNING translate(`))
	assert.Equal(t, []interface{}{int64(4)}, plan.Statement.Args)

	id := encoded(t, "account", 4)
	_, ok, err := plan.Reselect(id)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, map[string]interface{}{"deleted": id, "clientMutationId": "x1"}, plan.Payload(id, nil))
}

func TestCompileMutation_Errors(t *testing.T) {
	c := New(testSchema(t))

	_, err := c.CompileMutation(payload("deleteAccount", selection.TagDeletePayload, "DeleteAccountPayload",
		map[string]interface{}{"nodeId": rowID("post", 4)}))
	assert.True(t, errors.Is(err, ErrIdentifierMismatch))

	_, err = c.CompileMutation(payload("deleteAccount", selection.TagDeletePayload, "DeleteAccountPayload",
		map[string]interface{}{}))
	assert.True(t, errors.Is(err, nodeid.ErrBadIdentifier))

	_, err = c.CompileMutation(payload("updateAccount", selection.TagUpdatePayload, "UpdateAccountPayload",
		map[string]interface{}{"nodeId": rowID("account", 1), "accountPatch": map[string]interface{}{"nickname": "x"}}))
	require.Error(t, err)

	_, err = c.CompileMutation(payload("createAccount", selection.TagCreatePayload, "CreateAccountPayload",
		map[string]interface{}{"account": map[string]interface{}{}},
		field("account", selection.TagTableRow, "Account", nil, scalar("nickname"))))
	assert.True(t, errors.Is(err, ErrUnsupportedSelection), "row selection is validated before execution")

	_, err = c.CompileMutation(field("account", selection.TagTableRow, "Account", nil))
	assert.True(t, errors.Is(err, ErrUnsupportedSelection))

	plan, err := c.CompileMutation(payload("createAccount", selection.TagCreatePayload, "CreateAccountPayload",
		map[string]interface{}{"account": map[string]interface{}{}},
		field("account", selection.TagTableRow, "Account", nil, scalar("id"))))
	require.NoError(t, err)
	_, _, err = plan.Reselect(encoded(t, "post", 1))
	assert.True(t, errors.Is(err, ErrIdentifierMismatch))
}
