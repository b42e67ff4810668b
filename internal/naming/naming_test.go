package naming

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCaseConversion(t *testing.T) {
	tests := []struct {
		in, pascal, camel string
	}{
		{"account", "Account", "account"},
		{"user_profiles", "UserProfiles", "userProfiles"},
		{"api_v2_key", "ApiV2Key", "apiV2Key"},
		{"order-items", "OrderItems", "orderItems"},
		{"created at", "CreatedAt", "createdAt"},
		{"_private", "Private", "private"},
		{"2fa_codes", "_2faCodes", "_2faCodes"},
		{"", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.pascal, toPascalCase(tt.in))
			assert.Equal(t, tt.camel, toCamelCase(tt.in))
		})
	}
}

func TestInflectionOverrides(t *testing.T) {
	n := New(Config{
		PluralOverrides:   map[string]string{"status": "statuses", "datum": "data"},
		SingularOverrides: map[string]string{"data": "datum"},
	}, nil)

	assert.Equal(t, "statuses", n.Pluralize("status"))
	assert.Equal(t, "data", n.Pluralize("datum"))
	assert.Equal(t, "datum", n.Singularize("data"))
	assert.Equal(t, "accounts", n.Pluralize("account"))
	assert.Equal(t, "person", n.Singularize("people"))
}

func TestToGraphQLTypeName_Reserved(t *testing.T) {
	n := Default()
	tests := map[string]string{
		"account":         "Account",
		"query":           "Query_",
		"page_info":       "PageInfo_",
		"json":            "Json_",
		"account_edge":    "AccountEdge_",
		"invoice_payload": "InvoicePayload_",
		"input":           "Input",
	}
	for in, want := range tests {
		assert.Equal(t, want, n.ToGraphQLTypeName(in), in)
	}
}

func TestRelationshipFieldNames(t *testing.T) {
	n := Default()

	assert.Equal(t, "author", n.ManyToOneFieldName("author_id"))
	assert.Equal(t, "createdByUser", n.ManyToOneFieldName("created_by_user_id"))
	assert.Equal(t, "parent", n.ManyToOneFieldName("parent_fk"))
	assert.Equal(t, "owner", n.ManyToOneFieldName("owner"))
	assert.Equal(t, "id", n.ManyToOneFieldName("_id"))

	assert.Equal(t, "comments", n.OneToManyFieldName("comment", "post_id", true))
	assert.Equal(t, "authorPosts", n.OneToManyFieldName("post", "author_id", false))

	assert.Equal(t, "roles", n.JunctionFieldName("user_roles", "users", "role", "role"))
	assert.Equal(t, "users", n.JunctionFieldName("user_roles", "users", "role", "users"))
	assert.Equal(t, "memberships", n.JunctionFieldName("membership", "account", "team", "team"))
}

func TestRegisterType_Collision(t *testing.T) {
	var logs bytes.Buffer
	n := New(DefaultConfig(), slog.New(slog.NewTextHandler(&logs, nil)))

	assert.Equal(t, "UserProfile", n.RegisterType("user_profile"))
	assert.Equal(t, "UserProfile2", n.RegisterType("user-profile"))
	assert.Equal(t, "UserProfile3", n.RegisterType("UserProfile"))
	assert.Contains(t, logs.String(), "existing_owner=user_profile")
}

func TestRegisterFields(t *testing.T) {
	n := Default()

	n.ReserveField("Account", "nodeId")
	assert.Equal(t, "nodeId2", n.RegisterColumnField("Account", "node_id"))
	assert.Equal(t, "author", n.RegisterColumnField("Account", "author"))
	assert.Equal(t, "authorRef", n.RegisterRelationshipField("Account", "author", "many_to_one:person", true))
	assert.Equal(t, "posts", n.RegisterRelationshipField("Account", "posts", "one_to_many:post", false))
	assert.Equal(t, "postsRel", n.RegisterRelationshipField("Account", "posts", "one_to_many:post", false))
	assert.Equal(t, "teams", n.RegisterManyToManyField("Account", "teams", "membership"))
	assert.Equal(t, "teamsViaAccountTeam", n.RegisterManyToManyField("Account", "teams", "account_team"))

	// Field namespaces are per type.
	assert.Equal(t, "author", n.RegisterColumnField("Post", "author"))
}

func TestRegisterRootFields(t *testing.T) {
	n := Default()

	assert.Equal(t, "account", n.RegisterQueryField("account"))
	assert.Equal(t, "allAccounts", n.RegisterListQueryField("accounts"))
	assert.Equal(t, "allPeople", n.RegisterListQueryField("person"))
	assert.Equal(t, "account2", n.RegisterQueryField("account"))

	n.Reset()
	assert.Equal(t, "account", n.RegisterQueryField("account"))
}
