package introspection

import "pg-graphql/internal/naming"

// NodeIDField is the reserved field carrying a row's opaque identifier.
const NodeIDField = "nodeId"

// applyNames resolves every GraphQL name in the schema. Columns win over
// relationships on the same type; collisions get suffixes from the namer.
func (s *Schema) applyNames(namer *naming.Namer) {
	for i := range s.Tables {
		t := &s.Tables[i]
		t.TypeName = namer.RegisterType(namer.Singularize(t.Name))
	}
	for i := range s.Enums {
		s.Enums[i].TypeName = namer.RegisterType(s.Enums[i].Name)
	}
	for i := range s.Composites {
		c := &s.Composites[i]
		c.TypeName = namer.RegisterType(c.Name)
		for j := range c.Attributes {
			c.Attributes[j].FieldName = namer.RegisterColumnField(c.TypeName, c.Attributes[j].Name)
		}
	}

	for i := range s.Tables {
		t := &s.Tables[i]
		namer.ReserveField(t.TypeName, NodeIDField)
		for j := range t.Columns {
			t.Columns[j].FieldName = namer.RegisterColumnField(t.TypeName, t.Columns[j].Name)
		}
		for j := range t.Relationships {
			rel := &t.Relationships[j]
			source := rel.Direction.String() + ":" + rel.RemoteTable
			if rel.Direction == ManyToMany {
				rel.FieldName = namer.RegisterManyToManyField(t.TypeName, rel.FieldName, rel.JunctionTable)
				continue
			}
			rel.FieldName = namer.RegisterRelationshipField(t.TypeName, rel.FieldName, source, rel.Direction == ManyToOne)
		}
		t.FieldName = namer.RegisterQueryField(namer.Singularize(t.Name))
		t.ListFieldName = namer.RegisterListQueryField(t.Name)
	}

	for i := range s.Functions {
		fn := &s.Functions[i]
		fn.FieldName = namer.RegisterQueryField(fn.Name)
		fn.Args = append([]FunctionArg(nil), fn.Args...)
		for j := range fn.Args {
			fn.Args[j].FieldName = namer.ToGraphQLFieldName(fn.Args[j].Name)
		}
	}
}

// ConnectionTypeName is the paginated list type ("AccountConnection").
func (t *Table) ConnectionTypeName() string { return t.TypeName + "Connection" }

// EdgeTypeName is the connection edge type ("AccountEdge").
func (t *Table) EdgeTypeName() string { return t.TypeName + "Edge" }

// ConditionTypeName is the equality filter input ("AccountCondition").
func (t *Table) ConditionTypeName() string { return t.TypeName + "Condition" }

// InputTypeName is the create input row type ("AccountInput").
func (t *Table) InputTypeName() string { return t.TypeName + "Input" }

// PatchTypeName is the update input row type ("AccountPatch").
func (t *Table) PatchTypeName() string { return t.TypeName + "Patch" }

// PatchFieldName is the update input field carrying the patch ("accountPatch").
func (t *Table) PatchFieldName() string { return t.FieldName + "Patch" }

// CreateFieldName is the create mutation field ("createAccount").
func (t *Table) CreateFieldName() string { return "create" + t.TypeName }

// UpdateFieldName is the update mutation field ("updateAccount").
func (t *Table) UpdateFieldName() string { return "update" + t.TypeName }

// DeleteFieldName is the delete mutation field ("deleteAccount").
func (t *Table) DeleteFieldName() string { return "delete" + t.TypeName }

// PayloadTypeName is the mutation payload type for a verb ("CreateAccountPayload").
func (t *Table) PayloadTypeName(verb string) string { return verb + t.TypeName + "Payload" }

// MutationInputTypeName is the mutation input type for a verb ("CreateAccountInput").
func (t *Table) MutationInputTypeName(verb string) string { return verb + t.TypeName + "Input" }
