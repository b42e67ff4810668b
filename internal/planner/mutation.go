package planner

import (
	"encoding/json"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"pg-graphql/internal/introspection"
	"pg-graphql/internal/nodeid"
	"pg-graphql/internal/selection"
	"pg-graphql/internal/sqlutil"
)

// Mutation verbs, used in payload and input type names.
const (
	VerbCreate = "Create"
	VerbUpdate = "Update"
	VerbDelete = "Delete"
)

// Mutation input and payload field names.
const (
	InputArg              = "input"
	ClientMutationIDField = "clientMutationId"
)

// MutationPlan is a compiled create, update or delete. Statement returns the
// encoded identifier of the affected row, or no row when nothing matched.
type MutationPlan struct {
	Kind      selection.Tag
	Table     *introspection.Table
	Statement SQLQuery
	// ClientMutationID is echoed into the payload untouched.
	ClientMutationID interface{}

	node *selection.Node
	c    *Compiler
}

// CompileMutation compiles a create, update or delete payload selection.
// The payload's row selection is validated here so compile errors surface
// before any statement runs.
func (c *Compiler) CompileMutation(node *selection.Node) (*MutationPlan, error) {
	switch node.Tag {
	case selection.TagCreatePayload, selection.TagUpdatePayload, selection.TagDeletePayload:
	default:
		return nil, fmt.Errorf("%w: %s is not a mutation payload", ErrUnsupportedSelection, node.PathString())
	}
	table, ok := c.tablesByPayload[node.TypeName]
	if !ok {
		return nil, fmt.Errorf("%w: no table for payload %s", ErrUnsupportedSelection, node.TypeName)
	}
	if !table.Mutable() {
		return nil, fmt.Errorf("%w: table %s is read-only", ErrUnsupportedSelection, table.Name)
	}

	input, _ := node.Arg(InputArg)
	fields, _ := input.(map[string]interface{})
	plan := &MutationPlan{Kind: node.Tag, Table: table, node: node, c: c}
	if fields != nil {
		plan.ClientMutationID = fields[ClientMutationIDField]
	}
	if err := plan.validatePayload(); err != nil {
		return nil, err
	}

	p := c.newPass()
	alias := p.alias(table.Name)
	var (
		stmt SQLQuery
		err  error
	)
	switch node.Tag {
	case selection.TagCreatePayload:
		values, _ := fields[table.FieldName].(map[string]interface{})
		stmt, err = planInsert(table, alias, values)
	case selection.TagUpdatePayload:
		var args []interface{}
		if args, err = mutationKey(table, fields); err == nil {
			patch, _ := fields[table.PatchFieldName()].(map[string]interface{})
			stmt, err = planUpdate(table, alias, patch, args)
		}
	case selection.TagDeletePayload:
		var args []interface{}
		if args, err = mutationKey(table, fields); err == nil {
			stmt, err = planDelete(table, alias, args)
		}
	}
	if err != nil {
		return nil, err
	}
	plan.Statement = stmt
	return plan, nil
}

// Reselect compiles the payload's row selections for the mutated row. It
// reports false when the payload selects no row (always for deletes).
func (m *MutationPlan) Reselect(encodedID string) (SQLQuery, bool, error) {
	if m.Kind == selection.TagDeletePayload || len(m.rowChildren()) == 0 {
		return SQLQuery{}, false, nil
	}
	id, err := nodeid.Decode(encodedID)
	if err != nil {
		return SQLQuery{}, false, err
	}
	if id.TableName != m.Table.Name {
		return SQLQuery{}, false, fmt.Errorf("%w: %s returned identifier for %s", ErrIdentifierMismatch, m.Table.Name, id.TableName)
	}
	args, err := nodeid.PKArgs(m.Table, id)
	if err != nil {
		return SQLQuery{}, false, err
	}
	query, err := m.reselect(args)
	if err != nil {
		return SQLQuery{}, false, err
	}
	return query, true, nil
}

// Payload assembles the payload document keyed by response alias. rows is
// the decoded Reselect result, or nil.
func (m *MutationPlan) Payload(encodedID string, rows map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(m.node.Children))
	for _, child := range m.node.Children {
		switch child.Name {
		case ClientMutationIDField:
			out[child.Alias] = m.ClientMutationID
		case introspection.NodeIDField:
			out[child.Alias] = encodedID
		default:
			out[child.Alias] = rows[child.Alias]
		}
	}
	return out
}

func (m *MutationPlan) rowChildren() []*selection.Node {
	var out []*selection.Node
	for _, child := range m.node.Children {
		if child.Name == m.Table.FieldName && child.Tag == selection.TagTableRow {
			out = append(out, child)
		}
	}
	return out
}

// reselect builds SELECT json_build_object('<alias>', (<row>), ...) for
// every row selection of the payload.
func (m *MutationPlan) reselect(args []interface{}) (SQLQuery, error) {
	p := m.c.newPass()
	children := m.rowChildren()
	pairs := make([]jsonPair, 0, len(children))
	for _, child := range children {
		row, err := p.rowByKey(child, m.Table, args)
		if err != nil {
			return SQLQuery{}, err
		}
		pairs = append(pairs, jsonPair{key: child.Alias, value: row})
	}
	return toSQL(sq.Select().Column(sq.Alias(jsonObject(pairs), resultColumn)))
}

func (m *MutationPlan) validatePayload() error {
	for _, child := range m.node.Children {
		switch {
		case child.Name == ClientMutationIDField:
		case child.Name == introspection.NodeIDField && m.Kind == selection.TagDeletePayload:
		case child.Name == m.Table.FieldName && child.Tag == selection.TagTableRow && m.Kind != selection.TagDeletePayload:
		default:
			return fmt.Errorf("%w: payload has no field %s at %s", ErrUnsupportedSelection, child.Name, child.PathString())
		}
	}
	if len(m.rowChildren()) == 0 {
		return nil
	}
	_, err := m.reselect(make([]interface{}, len(m.Table.PrimaryKey)))
	return err
}

func mutationKey(table *introspection.Table, fields map[string]interface{}) ([]interface{}, error) {
	raw, ok := fields[introspection.NodeIDField]
	if !ok || raw == nil {
		return nil, fmt.Errorf("%w: %s requires nodeId", nodeid.ErrBadIdentifier, table.TypeName)
	}
	id, err := asIdentifier(raw)
	if err != nil {
		return nil, err
	}
	if id.TableName != table.Name {
		return nil, fmt.Errorf("%w: %s expects %s, got %s", ErrIdentifierMismatch, table.TypeName, table.Name, id.TableName)
	}
	return nodeid.PKArgs(table, id)
}

// planInsert builds INSERT ... RETURNING <identifier>. Columns follow table order.
func planInsert(table *introspection.Table, alias string, values map[string]interface{}) (SQLQuery, error) {
	columns, args, err := writeColumns(table, values)
	if err != nil {
		return SQLQuery{}, err
	}
	returning := "RETURNING " + identifierExpr(table, alias)
	if len(columns) == 0 {
		return SQLQuery{SQL: "INSERT INTO " + relation(table, alias) + " DEFAULT VALUES " + returning}, nil
	}
	query, queryArgs, err := sq.Insert(relation(table, alias)).
		Columns(columns...).
		Values(args...).
		Suffix(returning).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return SQLQuery{}, err
	}
	return SQLQuery{SQL: query, Args: queryArgs}, nil
}

// planUpdate builds UPDATE ... WHERE <pk> RETURNING <identifier>. An empty
// patch still selects the identifier so a missing row is detected.
func planUpdate(table *introspection.Table, alias string, patch map[string]interface{}, pkArgs []interface{}) (SQLQuery, error) {
	columns, args, err := writeColumns(table, patch)
	if err != nil {
		return SQLQuery{}, err
	}
	if len(columns) == 0 {
		return toSQL(sq.Select(identifierExpr(table, alias)).
			From(relation(table, alias)).
			Where(pkEquals(table, alias, pkArgs)))
	}
	update := sq.Update(relation(table, alias))
	for i, col := range columns {
		update = update.Set(col, args[i])
	}
	query, queryArgs, err := update.
		Where(pkEquals(table, alias, pkArgs)).
		Suffix("RETURNING " + identifierExpr(table, alias)).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return SQLQuery{}, err
	}
	return SQLQuery{SQL: query, Args: queryArgs}, nil
}

// planDelete builds DELETE ... WHERE <pk> RETURNING <identifier>.
func planDelete(table *introspection.Table, alias string, pkArgs []interface{}) (SQLQuery, error) {
	query, args, err := sq.Delete(relation(table, alias)).
		Where(pkEquals(table, alias, pkArgs)).
		Suffix("RETURNING " + identifierExpr(table, alias)).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return SQLQuery{}, err
	}
	return SQLQuery{SQL: query, Args: args}, nil
}

// writeColumns maps input fields to quoted column names and SQL values, in
// table column order.
func writeColumns(table *introspection.Table, values map[string]interface{}) ([]string, []interface{}, error) {
	for field := range values {
		col, ok := table.ColumnByField(field)
		if !ok || !col.Writable() {
			return nil, nil, fmt.Errorf("%s has no writable field %s", table.TypeName, field)
		}
	}
	var (
		columns []string
		args    []interface{}
	)
	for _, col := range table.Columns {
		v, ok := values[col.FieldName]
		if !ok {
			continue
		}
		arg, err := writeValue(table, col, v)
		if err != nil {
			return nil, nil, err
		}
		columns = append(columns, sqlutil.QuoteIdentifier(col.Name))
		args = append(args, arg)
	}
	return columns, args, nil
}

// writeValue converts a GraphQL input value into a SQL argument. JSON,
// array and composite columns are sent as JSON text and converted in SQL.
func writeValue(table *introspection.Table, col introspection.Column, v interface{}) (interface{}, error) {
	if v == nil {
		return nil, nil
	}
	switch {
	case col.IsComposite():
		encoded, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("invalid value for %s: %w", col.Name, err)
		}
		return sq.Expr("json_populate_record(NULL::"+sqlutil.QualifiedName(table.Schema, col.CompositeType)+", ?::json)", string(encoded)), nil
	case col.DataType == "ARRAY":
		encoded, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("invalid value for %s: %w", col.Name, err)
		}
		return sq.Expr("ARRAY(SELECT json_array_elements_text(?::json))::"+sqlutil.QuoteIdentifier(col.UDTName), string(encoded)), nil
	case isJSONColumn(col):
		encoded, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("invalid value for %s: %w", col.Name, err)
		}
		return string(encoded), nil
	default:
		return v, nil
	}
}
