package resolver

import (
	"strconv"
	"strings"

	"github.com/graphql-go/graphql"

	"pg-graphql/internal/introspection"
	"pg-graphql/internal/planner"
	"pg-graphql/internal/scalars"
	"pg-graphql/internal/selection"
	"pg-graphql/internal/sqltype"
)

// schemaBuilder holds the types of one schema build. Types are created once
// per name and looked up by SQL name afterwards.
type schemaBuilder struct {
	dbSchema *introspection.Schema

	nodeID *graphql.Scalar
	cursor *graphql.Scalar
	json   *graphql.Scalar
	bigInt *graphql.Scalar

	pageInfo        *graphql.Object
	enums           map[string]*graphql.Enum
	composites      map[string]*graphql.Object
	compositeInputs map[string]*graphql.InputObject
	objects         map[string]*graphql.Object
	connections     map[string]*graphql.Object
	conditions      map[string]*graphql.InputObject

	tags  selection.TypeTags
	roots map[string]selection.Tag
}

func newSchemaBuilder(dbSchema *introspection.Schema) *schemaBuilder {
	return &schemaBuilder{
		dbSchema:        dbSchema,
		nodeID:          scalars.NodeID(),
		cursor:          scalars.Cursor(),
		json:            scalars.JSON(),
		bigInt:          scalars.BigInt(),
		enums:           make(map[string]*graphql.Enum),
		composites:      make(map[string]*graphql.Object),
		compositeInputs: make(map[string]*graphql.InputObject),
		objects:         make(map[string]*graphql.Object),
		connections:     make(map[string]*graphql.Object),
		conditions:      make(map[string]*graphql.InputObject),
		tags:            selection.TypeTags{},
		roots:           make(map[string]selection.Tag),
	}
}

// addObjectType registers the object type of a table with its nodeId and
// column fields. Relationship fields are attached later.
func (b *schemaBuilder) addObjectType(table *introspection.Table) {
	fields := graphql.Fields{
		introspection.NodeIDField: &graphql.Field{
			Type:        graphql.NewNonNull(b.nodeID),
			Description: "Globally unique identifier of this " + table.TypeName,
			Resolve:     resolveFromResult,
		},
	}
	for _, col := range table.Columns {
		fields[col.FieldName] = &graphql.Field{
			Type:    b.columnOutputType(col, !col.IsNullable),
			Resolve: resolveFromResult,
		}
	}
	b.objects[table.Name] = graphql.NewObject(graphql.ObjectConfig{
		Name:   table.TypeName,
		Fields: fields,
	})
	b.tags[table.TypeName] = selection.TagTableRow
}

// addConnectionType registers the Connection and Edge types of a table and
// its Condition input.
func (b *schemaBuilder) addConnectionType(table *introspection.Table) {
	node := b.objects[table.Name]
	edge := graphql.NewObject(graphql.ObjectConfig{
		Name: table.EdgeTypeName(),
		Fields: graphql.Fields{
			planner.CursorField: &graphql.Field{
				Type:    graphql.NewNonNull(b.cursor),
				Resolve: resolveFromResult,
			},
			planner.NodeField: &graphql.Field{
				Type:    graphql.NewNonNull(node),
				Resolve: resolveFromResult,
			},
		},
	})
	b.connections[table.Name] = graphql.NewObject(graphql.ObjectConfig{
		Name: table.ConnectionTypeName(),
		Fields: graphql.Fields{
			planner.EdgesField: &graphql.Field{
				Type:    graphql.NewNonNull(graphql.NewList(graphql.NewNonNull(edge))),
				Resolve: resolveFromResult,
			},
			planner.PageInfoField: &graphql.Field{
				Type:    graphql.NewNonNull(b.pageInfoType()),
				Resolve: resolveFromResult,
			},
			planner.TotalCountField: &graphql.Field{
				Type:    graphql.NewNonNull(graphql.Int),
				Resolve: resolveFromResult,
			},
		},
	})
	b.tags[table.ConnectionTypeName()] = selection.TagConnection

	condition := graphql.InputObjectConfigFieldMap{}
	for _, col := range table.Columns {
		if col.IsComposite() || sqltype.MapToGraphQL(col.DataType) == sqltype.TypeJSON {
			continue
		}
		condition[col.FieldName] = &graphql.InputObjectFieldConfig{
			Type:        b.columnInputType(col, false),
			Description: "Equality filter on " + col.Name + "; null matches SQL NULL",
		}
	}
	if len(condition) > 0 {
		b.conditions[table.Name] = graphql.NewInputObject(graphql.InputObjectConfig{
			Name:   table.ConditionTypeName(),
			Fields: condition,
		})
	}
}

// addRelationshipFields attaches relationship fields once every object type
// exists. Relationships into tables that are not exposed are skipped.
func (b *schemaBuilder) addRelationshipFields(table *introspection.Table) {
	obj := b.objects[table.Name]
	for _, rel := range table.Relationships {
		remote, ok := b.objects[rel.RemoteTable]
		if !ok {
			continue
		}
		if rel.Direction == introspection.ManyToOne {
			obj.AddFieldConfig(rel.FieldName, &graphql.Field{
				Type:    remote,
				Resolve: resolveFromResult,
			})
			continue
		}
		remoteTable, _ := b.dbSchema.Table(rel.RemoteTable)
		obj.AddFieldConfig(rel.FieldName, &graphql.Field{
			Type:    graphql.NewNonNull(b.connections[rel.RemoteTable]),
			Args:    b.connectionArgs(remoteTable),
			Resolve: resolveFromResult,
		})
	}
}

func (b *schemaBuilder) connectionArgs(table *introspection.Table) graphql.FieldConfigArgument {
	args := graphql.FieldConfigArgument{
		planner.FirstArg:  &graphql.ArgumentConfig{Type: graphql.Int, Description: "Forward page size"},
		planner.LastArg:   &graphql.ArgumentConfig{Type: graphql.Int, Description: "Backward page size"},
		planner.AfterArg:  &graphql.ArgumentConfig{Type: b.cursor, Description: "Return rows after this cursor"},
		planner.BeforeArg: &graphql.ArgumentConfig{Type: b.cursor, Description: "Return rows before this cursor"},
	}
	if condition, ok := b.conditions[table.Name]; ok {
		args[planner.ConditionArg] = &graphql.ArgumentConfig{Type: condition}
	}
	return args
}

// pageInfoType returns the PageInfo type shared by every connection.
func (b *schemaBuilder) pageInfoType() *graphql.Object {
	if b.pageInfo != nil {
		return b.pageInfo
	}
	b.pageInfo = graphql.NewObject(graphql.ObjectConfig{
		Name: "PageInfo",
		Fields: graphql.Fields{
			planner.HasNextPageField: &graphql.Field{
				Type:    graphql.NewNonNull(graphql.Boolean),
				Resolve: resolveFromResult,
			},
			planner.HasPrevPageField: &graphql.Field{
				Type:    graphql.NewNonNull(graphql.Boolean),
				Resolve: resolveFromResult,
			},
			planner.StartCursorField: &graphql.Field{
				Type:    b.cursor,
				Resolve: resolveFromResult,
			},
			planner.EndCursorField: &graphql.Field{
				Type:    b.cursor,
				Resolve: resolveFromResult,
			},
		},
	})
	return b.pageInfo
}

func (b *schemaBuilder) columnOutputType(col introspection.Column, nonNull bool) graphql.Output {
	var t graphql.Output
	switch {
	case col.IsEnum():
		t = b.enumType(col.EnumType, col.EnumValues)
	case col.IsComposite():
		if composite := b.compositeType(col.CompositeType); composite != nil {
			t = composite
		} else {
			t = b.json
		}
	default:
		t = b.scalarType(col.DataType)
	}
	if nonNull {
		return graphql.NewNonNull(t)
	}
	return t
}

func (b *schemaBuilder) columnInputType(col introspection.Column, nonNull bool) graphql.Input {
	var t graphql.Input
	switch {
	case col.IsEnum():
		t = b.enumType(col.EnumType, col.EnumValues)
	case col.IsComposite():
		if composite := b.compositeInputType(col.CompositeType); composite != nil {
			t = composite
		} else {
			t = b.json
		}
	default:
		t = b.scalarType(col.DataType)
	}
	if nonNull {
		return graphql.NewNonNull(t)
	}
	return t
}

// scalarType maps a SQL type to its GraphQL scalar. 64-bit integers use the
// BigInt scalar since they are carried as text.
func (b *schemaBuilder) scalarType(dataType string) *graphql.Scalar {
	if sqltype.IsBigInt(dataType) {
		return b.bigInt
	}
	switch sqltype.MapToGraphQL(dataType) {
	case sqltype.TypeInt:
		return graphql.Int
	case sqltype.TypeFloat:
		return graphql.Float
	case sqltype.TypeBoolean:
		return graphql.Boolean
	case sqltype.TypeJSON:
		return b.json
	default:
		return graphql.String
	}
}

// enumType returns the GraphQL enum for a PostgreSQL enum. Value names are
// sanitized labels; the label itself is the value, so results and arguments
// carry labels unchanged.
func (b *schemaBuilder) enumType(name string, fallback []string) *graphql.Enum {
	if cached, ok := b.enums[name]; ok {
		return cached
	}
	typeName := name
	labels := fallback
	if enum, ok := b.dbSchema.Enum(name); ok {
		typeName = enum.TypeName
		labels = enum.Values
	}
	values := graphql.EnumValueConfigMap{}
	for _, label := range labels {
		key := enumValueName(label)
		for i := 2; values[key] != nil; i++ {
			key = enumValueName(label) + "_" + strconv.Itoa(i)
		}
		values[key] = &graphql.EnumValueConfig{Value: label}
	}
	enum := graphql.NewEnum(graphql.EnumConfig{
		Name:   typeName,
		Values: values,
	})
	b.enums[name] = enum
	return enum
}

// enumValueName turns an enum label into a valid GraphQL name.
func enumValueName(label string) string {
	var sb strings.Builder
	for i, r := range label {
		switch {
		case r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z'):
			sb.WriteRune(r)
		case r >= '0' && r <= '9':
			if i == 0 {
				sb.WriteByte('_')
			}
			sb.WriteRune(r)
		default:
			sb.WriteByte('_')
		}
	}
	name := sb.String()
	switch name {
	case "", "true", "false", "null":
		return "_" + name
	}
	return name
}

// compositeType returns the object type of a composite type, or nil when
// the type is unknown. Attributes are always nullable.
func (b *schemaBuilder) compositeType(name string) *graphql.Object {
	if cached, ok := b.composites[name]; ok {
		return cached
	}
	composite, ok := b.dbSchema.Composite(name)
	if !ok || len(composite.Attributes) == 0 {
		return nil
	}
	fields := graphql.Fields{}
	for _, attr := range composite.Attributes {
		fields[attr.FieldName] = &graphql.Field{
			Type:    b.columnOutputType(attr, false),
			Resolve: resolveFromResult,
		}
	}
	obj := graphql.NewObject(graphql.ObjectConfig{
		Name:   composite.TypeName,
		Fields: fields,
	})
	b.composites[name] = obj
	return obj
}

func (b *schemaBuilder) compositeInputType(name string) *graphql.InputObject {
	if cached, ok := b.compositeInputs[name]; ok {
		return cached
	}
	composite, ok := b.dbSchema.Composite(name)
	if !ok || len(composite.Attributes) == 0 {
		return nil
	}
	fields := graphql.InputObjectConfigFieldMap{}
	for _, attr := range composite.Attributes {
		fields[attr.FieldName] = &graphql.InputObjectFieldConfig{Type: b.columnInputType(attr, false)}
	}
	input := graphql.NewInputObject(graphql.InputObjectConfig{
		Name:   composite.TypeName + "Input",
		Fields: fields,
	})
	b.compositeInputs[name] = input
	return input
}

// functionReturnType maps a function's return type. Enums keep their enum
// type; row and composite results are returned as JSON.
func (b *schemaBuilder) functionReturnType(returnType string) graphql.Output {
	if _, ok := b.dbSchema.Enum(returnType); ok {
		return b.enumType(returnType, nil)
	}
	if _, ok := b.dbSchema.Composite(returnType); ok {
		return b.json
	}
	if _, ok := b.dbSchema.Table(returnType); ok {
		return b.json
	}
	return b.scalarType(returnType)
}

func (b *schemaBuilder) functionArgType(dataType string) graphql.Input {
	if _, ok := b.dbSchema.Enum(dataType); ok {
		return b.enumType(dataType, nil)
	}
	if _, ok := b.dbSchema.Composite(dataType); ok {
		return b.json
	}
	return b.scalarType(dataType)
}
