package resolver

import (
	"github.com/graphql-go/graphql"

	"pg-graphql/internal/introspection"
	"pg-graphql/internal/planner"
	"pg-graphql/internal/selection"
)

// addTableQueries adds the single-row lookup by nodeId and the root connection.
func (r *Resolver) addTableQueries(b *schemaBuilder, fields graphql.Fields, table *introspection.Table) {
	fields[table.FieldName] = &graphql.Field{
		Type: b.objects[table.Name],
		Args: graphql.FieldConfigArgument{
			introspection.NodeIDField: &graphql.ArgumentConfig{
				Type: graphql.NewNonNull(b.nodeID),
			},
		},
		Description: "Look up one " + table.TypeName + " by its node identifier",
		Resolve:     r.resolveQuery,
	}
	fields[table.ListFieldName] = &graphql.Field{
		Type:        graphql.NewNonNull(b.connections[table.Name]),
		Args:        b.connectionArgs(table),
		Description: "Paginate over " + table.Name + " in primary key order",
		Resolve:     r.resolveQuery,
	}
}

// addTableMutations adds create, update and delete with their input and
// payload types. Update is omitted when no column is writable.
func (r *Resolver) addTableMutations(b *schemaBuilder, fields graphql.Fields, table *introspection.Table) {
	clientMutationID := &graphql.InputObjectFieldConfig{Type: graphql.String}
	nodeID := &graphql.InputObjectFieldConfig{Type: graphql.NewNonNull(b.nodeID)}

	values := graphql.InputObjectConfigFieldMap{}
	patch := graphql.InputObjectConfigFieldMap{}
	for _, col := range table.Columns {
		if !col.Writable() {
			continue
		}
		required := !col.IsNullable && !col.HasDefault
		values[col.FieldName] = &graphql.InputObjectFieldConfig{Type: b.columnInputType(col, required)}
		patch[col.FieldName] = &graphql.InputObjectFieldConfig{Type: b.columnInputType(col, false)}
	}

	createInput := graphql.InputObjectConfigFieldMap{planner.ClientMutationIDField: clientMutationID}
	if len(values) > 0 {
		createInput[table.FieldName] = &graphql.InputObjectFieldConfig{
			Type: graphql.NewNonNull(graphql.NewInputObject(graphql.InputObjectConfig{
				Name:   table.InputTypeName(),
				Fields: values,
			})),
		}
	}
	r.addMutationField(b, fields, table, table.CreateFieldName(), planner.VerbCreate, selection.TagCreatePayload, createInput)

	if len(patch) > 0 {
		r.addMutationField(b, fields, table, table.UpdateFieldName(), planner.VerbUpdate, selection.TagUpdatePayload,
			graphql.InputObjectConfigFieldMap{
				introspection.NodeIDField: nodeID,
				table.PatchFieldName(): &graphql.InputObjectFieldConfig{
					Type: graphql.NewNonNull(graphql.NewInputObject(graphql.InputObjectConfig{
						Name:   table.PatchTypeName(),
						Fields: patch,
					})),
				},
				planner.ClientMutationIDField: clientMutationID,
			})
	}

	r.addMutationField(b, fields, table, table.DeleteFieldName(), planner.VerbDelete, selection.TagDeletePayload,
		graphql.InputObjectConfigFieldMap{
			introspection.NodeIDField:     nodeID,
			planner.ClientMutationIDField: clientMutationID,
		})
}

func (r *Resolver) addMutationField(b *schemaBuilder, fields graphql.Fields, table *introspection.Table, name, verb string, tag selection.Tag, input graphql.InputObjectConfigFieldMap) {
	payloadFields := graphql.Fields{
		planner.ClientMutationIDField: &graphql.Field{
			Type:    graphql.String,
			Resolve: resolveFromResult,
		},
	}
	if tag == selection.TagDeletePayload {
		payloadFields[introspection.NodeIDField] = &graphql.Field{
			Type:        b.nodeID,
			Description: "Identifier of the deleted " + table.TypeName,
			Resolve:     resolveFromResult,
		}
	} else {
		payloadFields[table.FieldName] = &graphql.Field{
			Type:    b.objects[table.Name],
			Resolve: resolveFromResult,
		}
	}
	payload := graphql.NewObject(graphql.ObjectConfig{
		Name:   table.PayloadTypeName(verb),
		Fields: payloadFields,
	})
	b.tags[payload.Name()] = tag

	fields[name] = &graphql.Field{
		Type: payload,
		Args: graphql.FieldConfigArgument{
			planner.InputArg: &graphql.ArgumentConfig{
				Type: graphql.NewNonNull(graphql.NewInputObject(graphql.InputObjectConfig{
					Name:   table.MutationInputTypeName(verb),
					Fields: input,
				})),
			},
		},
		Resolve: r.resolveMutation,
	}
}

// addFunctionField exposes a SQL function as a root field with one nullable
// argument per function argument.
func (r *Resolver) addFunctionField(b *schemaBuilder, fields graphql.Fields, fn *introspection.Function) {
	args := graphql.FieldConfigArgument{}
	for _, arg := range fn.Args {
		args[arg.FieldName] = &graphql.ArgumentConfig{Type: b.functionArgType(arg.DataType)}
	}
	fields[fn.FieldName] = &graphql.Field{
		Type:        b.functionReturnType(fn.ReturnType),
		Args:        args,
		Description: "Calls " + fn.Schema + "." + fn.Name,
		Resolve:     r.resolveQuery,
	}
	b.roots[fn.FieldName] = selection.TagFunctionResult
}
