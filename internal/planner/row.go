package planner

import (
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"pg-graphql/internal/introspection"
	"pg-graphql/internal/nodeid"
	"pg-graphql/internal/selection"
	"pg-graphql/internal/sqlutil"
)

// rootRow compiles a single row looked up by the mandatory nodeId argument.
func (p *pass) rootRow(node *selection.Node, table *introspection.Table) (sq.Sqlizer, error) {
	id, err := identifierArg(node, introspection.NodeIDField)
	if err != nil {
		return nil, err
	}
	if id.TableName != table.Name {
		return nil, fmt.Errorf("%w: %s expects %s, got %s", ErrIdentifierMismatch, node.PathString(), table.Name, id.TableName)
	}
	args, err := nodeid.PKArgs(table, id)
	if err != nil {
		return nil, err
	}
	return p.rowByKey(node, table, args)
}

// rowByKey compiles a row whose primary key equals args.
func (p *pass) rowByKey(node *selection.Node, table *introspection.Table, args []interface{}) (sq.Sqlizer, error) {
	alias := p.alias(table.Name)
	b, err := p.rowSelect(node, table, alias)
	if err != nil {
		return nil, err
	}
	return subquery(b.Where(pkEquals(table, alias, args))), nil
}

// manyToOne compiles the row referenced by a many-to-one relationship of the
// row aliased parentAlias.
func (p *pass) manyToOne(node *selection.Node, rel introspection.Relationship, parentAlias string) (sq.Sqlizer, error) {
	remote, ok := p.c.schema.Table(rel.RemoteTable)
	if !ok {
		return nil, fmt.Errorf("%w: unknown table %s at %s", ErrUnsupportedSelection, rel.RemoteTable, node.PathString())
	}
	alias := p.alias(remote.Name)
	b, err := p.rowSelect(node, remote, alias)
	if err != nil {
		return nil, err
	}
	return subquery(b.Where(correlate(alias, rel.RemoteColumns, parentAlias, rel.LocalColumns))), nil
}

func (p *pass) rowSelect(node *selection.Node, table *introspection.Table, alias string) (sq.SelectBuilder, error) {
	obj, err := p.object(node, table, alias)
	if err != nil {
		return sq.SelectBuilder{}, err
	}
	return sq.Select().Column(obj).From(relation(table, alias)), nil
}

// object projects the children of a row selection into one JSON object keyed
// by response alias.
func (p *pass) object(node *selection.Node, table *introspection.Table, alias string) (sq.Sqlizer, error) {
	pairs := make([]jsonPair, 0, len(node.Children))
	for _, child := range node.Children {
		value, err := p.field(child, table, alias)
		if err != nil {
			return nil, err
		}
		pairs = append(pairs, jsonPair{key: child.Alias, value: value})
	}
	return jsonObject(pairs), nil
}

func (p *pass) field(node *selection.Node, table *introspection.Table, alias string) (sq.Sqlizer, error) {
	switch node.Tag {
	case selection.TagScalar, selection.TagEnum:
		if node.Name == introspection.NodeIDField {
			return raw(identifierExpr(table, alias)), nil
		}
		col, ok := table.ColumnByField(node.Name)
		if !ok {
			return nil, unknownField(node, table)
		}
		return raw(columnValue(qualify(alias, col.Name), col)), nil
	case selection.TagComposite:
		col, ok := table.ColumnByField(node.Name)
		if !ok || !col.IsComposite() {
			return nil, unknownField(node, table)
		}
		return p.composite(node, qualify(alias, col.Name), col.CompositeType)
	case selection.TagTableRow:
		rel, ok := table.RelationshipByField(node.Name)
		if !ok || rel.Direction != introspection.ManyToOne {
			return nil, unknownField(node, table)
		}
		return p.manyToOne(node, rel, alias)
	case selection.TagConnection:
		rel, ok := table.RelationshipByField(node.Name)
		if !ok || rel.Direction == introspection.ManyToOne {
			return nil, unknownField(node, table)
		}
		remote, ok := p.c.schema.Table(rel.RemoteTable)
		if !ok {
			return nil, fmt.Errorf("%w: unknown table %s at %s", ErrUnsupportedSelection, rel.RemoteTable, node.PathString())
		}
		return p.connection(node, remote, &parentJoin{rel: rel, alias: alias})
	case selection.TagCreatePayload, selection.TagUpdatePayload, selection.TagDeletePayload, selection.TagFunctionResult:
		return nil, fmt.Errorf("%w: %s cannot be nested", ErrUnsupportedSelection, node.PathString())
	default:
		return nil, fmt.Errorf("%w: unknown tag %d at %s", ErrUnsupportedSelection, node.Tag, node.PathString())
	}
}

// composite projects the selected attributes of a composite value, keeping
// NULL composites NULL.
func (p *pass) composite(node *selection.Node, expr, typeName string) (sq.Sqlizer, error) {
	comp, ok := p.c.schema.Composite(typeName)
	if !ok {
		return nil, fmt.Errorf("%w: unknown composite type %s at %s", ErrUnsupportedSelection, typeName, node.PathString())
	}
	pairs := make([]jsonPair, 0, len(node.Children))
	for _, child := range node.Children {
		attr, ok := comp.AttributeByField(child.Name)
		if !ok {
			return nil, fmt.Errorf("%w: %s has no field %s at %s", ErrUnsupportedSelection, comp.TypeName, child.Name, child.PathString())
		}
		attrExpr := "(" + expr + ")." + sqlutil.QuoteIdentifier(attr.Name)
		var value sq.Sqlizer
		switch {
		case child.Tag == selection.TagComposite && attr.IsComposite():
			nested, err := p.composite(child, attrExpr, attr.CompositeType)
			if err != nil {
				return nil, err
			}
			value = nested
		case child.Tag == selection.TagScalar || child.Tag == selection.TagEnum:
			value = raw(columnValue(attrExpr, attr))
		default:
			return nil, fmt.Errorf("%w: %s at %s", ErrUnsupportedSelection, child.Tag, child.PathString())
		}
		pairs = append(pairs, jsonPair{key: child.Alias, value: value})
	}
	return sq.ConcatExpr("CASE WHEN "+expr+" IS NULL THEN NULL ELSE ", jsonObject(pairs), " END"), nil
}

func identifierArg(node *selection.Node, name string) (nodeid.Identifier, error) {
	v, ok := node.Arg(name)
	if !ok {
		return nodeid.Identifier{}, fmt.Errorf("%w: %s requires %s", nodeid.ErrBadIdentifier, node.PathString(), name)
	}
	return asIdentifier(v)
}

// asIdentifier accepts decoded identifiers as well as their encoded form.
func asIdentifier(v interface{}) (nodeid.Identifier, error) {
	switch id := v.(type) {
	case nodeid.Identifier:
		return id, nil
	case *nodeid.Identifier:
		return *id, nil
	case string:
		return nodeid.Decode(id)
	default:
		return nodeid.Identifier{}, fmt.Errorf("%w: unexpected %T", nodeid.ErrBadIdentifier, v)
	}
}

func unknownField(node *selection.Node, table *introspection.Table) error {
	return fmt.Errorf("%w: %s has no %s field %s at %s", ErrUnsupportedSelection, table.TypeName, node.Tag, node.Name, node.PathString())
}
