package planner

import (
	"strings"

	sq "github.com/Masterminds/squirrel"

	"pg-graphql/internal/introspection"
	"pg-graphql/internal/sqltype"
	"pg-graphql/internal/sqlutil"
)

// maxObjectPairs keeps json_build_object under PostgreSQL's 100 argument limit.
const maxObjectPairs = 50

type jsonPair struct {
	key   string
	value sq.Sqlizer
}

// jsonObject builds a json_build_object over pairs. Wide objects are built in
// chunks and merged through jsonb.
func jsonObject(pairs []jsonPair) sq.Sqlizer {
	if len(pairs) <= maxObjectPairs {
		return buildObject(pairs)
	}
	parts := []interface{}{"("}
	for start := 0; start < len(pairs); start += maxObjectPairs {
		end := start + maxObjectPairs
		if end > len(pairs) {
			end = len(pairs)
		}
		if start > 0 {
			parts = append(parts, " || ")
		}
		parts = append(parts, buildObject(pairs[start:end]), "::jsonb")
	}
	parts = append(parts, ")::json")
	return sq.ConcatExpr(parts...)
}

func buildObject(pairs []jsonPair) sq.Sqlizer {
	parts := []interface{}{"json_build_object("}
	for i, pair := range pairs {
		if i > 0 {
			parts = append(parts, ", ")
		}
		parts = append(parts, sqlutil.QuoteString(pair.key)+", ", pair.value)
	}
	parts = append(parts, ")")
	return sq.ConcatExpr(parts...)
}

// subquery parenthesizes a select for use as a correlated scalar value.
func subquery(b sq.SelectBuilder) sq.Sqlizer {
	return sq.ConcatExpr("(", b, ")")
}

func raw(sql string) sq.Sqlizer {
	return sq.Expr(sql)
}

// qualify renders alias."column".
func qualify(alias, column string) string {
	return sqlutil.QuoteIdentifier(alias) + "." + sqlutil.QuoteIdentifier(column)
}

// relation renders "schema"."table" AS "alias".
func relation(table *introspection.Table, alias string) string {
	return sqlutil.QualifiedName(table.Schema, table.Name) + " AS " + sqlutil.QuoteIdentifier(alias)
}

// identifierExpr encodes a row's table name and primary key values exactly
// like nodeid.Encode: json_build_object text, base64 without line breaks.
func identifierExpr(table *introspection.Table, alias string) string {
	values := make([]string, 0, len(table.PrimaryKey))
	for _, col := range table.PrimaryKey {
		values = append(values, sqlutil.QuoteString(col)+", "+qualify(alias, col))
	}
	return "translate(encode(convert_to(json_build_object('table_name', " +
		sqlutil.QuoteString(table.Name) +
		", 'values', json_build_object(" + strings.Join(values, ", ") + "))::text, 'UTF8'), 'base64'), E'\\n', '')"
}

// columnValue renders a scalar or enum column for JSON projection. bigint is
// projected as text so values survive float64 decoding.
func columnValue(expr string, col introspection.Column) string {
	if sqltype.IsBigInt(col.DataType) {
		return expr + "::text"
	}
	return expr
}

// pkList renders (alias."k1", alias."k2") in primary key order.
func pkList(table *introspection.Table, alias string) string {
	cols := make([]string, len(table.PrimaryKey))
	for i, col := range table.PrimaryKey {
		cols[i] = qualify(alias, col)
	}
	return "(" + strings.Join(cols, ", ") + ")"
}

func placeholders(n int) string {
	return "(" + strings.TrimSuffix(strings.Repeat("?, ", n), ", ") + ")"
}

// pkEquals matches alias's primary key against args in key order.
func pkEquals(table *introspection.Table, alias string, args []interface{}) sq.Sqlizer {
	eq := sq.Eq{}
	for i, col := range table.PrimaryKey {
		eq[qualify(alias, col)] = args[i]
	}
	return eq
}

// correlate joins local columns of the outer alias to remote columns of the inner one.
func correlate(innerAlias string, innerCols []string, outerAlias string, outerCols []string) sq.Sqlizer {
	and := sq.And{}
	for i := range innerCols {
		and = append(and, raw(qualify(innerAlias, innerCols[i])+" = "+qualify(outerAlias, outerCols[i])))
	}
	return and
}

func isJSONColumn(col introspection.Column) bool {
	return sqltype.MapToGraphQL(col.DataType) == sqltype.TypeJSON
}
