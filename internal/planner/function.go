package planner

import (
	"encoding/json"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"pg-graphql/internal/selection"
	"pg-graphql/internal/sqltype"
	"pg-graphql/internal/sqlutil"
)

// compileFunction compiles SELECT to_json("schema"."fn"(?::type, ...)).
// Missing arguments are passed as NULL.
func (c *Compiler) compileFunction(node *selection.Node) (SQLQuery, error) {
	fn, ok := c.functionsByField[node.Name]
	if !ok {
		return SQLQuery{}, fmt.Errorf("%w: no function for field %s", ErrUnsupportedSelection, node.Name)
	}
	params := make([]string, len(fn.Args))
	args := make([]interface{}, len(fn.Args))
	for i, arg := range fn.Args {
		params[i] = "?::" + arg.DataType
		v, _ := node.Arg(arg.FieldName)
		if v != nil && sqltype.MapToGraphQL(arg.DataType) == sqltype.TypeJSON {
			encoded, err := json.Marshal(v)
			if err != nil {
				return SQLQuery{}, fmt.Errorf("invalid value for argument %s: %w", arg.FieldName, err)
			}
			v = string(encoded)
		}
		args[i] = v
	}
	call := sqlutil.QualifiedName(fn.Schema, fn.Name) + "(" + strings.Join(params, ", ") + ")"
	if sqltype.IsBigInt(fn.ReturnType) {
		call += "::text"
	}
	return toSQL(sq.Select().Column(sq.Expr("to_json("+call+") AS "+resultColumn, args...)))
}
