// Package introspection describes the tables, columns, relationships and
// functions of a PostgreSQL schema. Descriptors are produced once by a build
// phase (Reflect or NewSchema) and are read-only afterwards.
package introspection

import (
	"fmt"
	"sort"
	"strings"

	"pg-graphql/internal/naming"
)

// Column represents a table column or a composite type attribute.
type Column struct {
	Name string
	// DataType is information_schema's data_type ("integer", "USER-DEFINED", "ARRAY", ...).
	DataType     string
	UDTName      string
	IsNullable   bool
	IsPrimaryKey bool
	HasDefault   bool
	IsGenerated  bool
	// EnumType names the PostgreSQL enum backing this column, if any.
	EnumType   string
	EnumValues []string
	// CompositeType names the PostgreSQL composite type backing this column, if any.
	CompositeType string
	// FieldName is the resolved GraphQL field name for this column.
	FieldName string
}

// IsEnum reports whether the column holds an enum value.
func (c Column) IsEnum() bool {
	return c.EnumType != ""
}

// IsComposite reports whether the column holds a composite value.
func (c Column) IsComposite() bool {
	return c.CompositeType != ""
}

// Writable reports whether the column may appear in INSERT or UPDATE statements.
func (c Column) Writable() bool {
	return !c.IsGenerated
}

// ForeignKey is one column of a foreign key constraint.
type ForeignKey struct {
	ConstraintName   string
	ColumnName       string
	ReferencedTable  string
	ReferencedColumn string
	OrdinalPosition  int
}

// Direction is the cardinality of a relationship seen from its owning table.
type Direction int

const (
	// ManyToOne points from a referencing table to the row it references.
	ManyToOne Direction = iota + 1
	// OneToMany points from a referenced table to the rows referencing it.
	OneToMany
	// ManyToMany points across a pure junction table.
	ManyToMany
)

func (d Direction) String() string {
	switch d {
	case ManyToOne:
		return "many_to_one"
	case OneToMany:
		return "one_to_many"
	case ManyToMany:
		return "many_to_many"
	default:
		return "unknown"
	}
}

// Relationship joins the owning table to RemoteTable.
//
// LocalColumns[i] pairs with RemoteColumns[i]. For many-to-many the pairs are
// LocalColumns[i] = junction.JunctionLocalColumns[i] and
// RemoteColumns[i] = junction.JunctionRemoteColumns[i].
type Relationship struct {
	Direction             Direction
	ConstraintName        string
	LocalColumns          []string
	RemoteTable           string
	RemoteColumns         []string
	JunctionTable         string
	JunctionLocalColumns  []string
	JunctionRemoteColumns []string
	// IsNullable is set for many-to-one relationships with a nullable local column.
	IsNullable bool
	FieldName  string
}

// Table represents a table or view.
type Table struct {
	Schema      string
	Name        string
	IsView      bool
	Columns     []Column
	PrimaryKey  []string
	ForeignKeys []ForeignKey
	// Relationships are resolved after every table is registered.
	Relationships []Relationship
	IsJunction    bool

	// TypeName is the GraphQL object type name ("Account").
	TypeName string
	// FieldName is the single-row root field and payload field name ("account").
	FieldName string
	// ListFieldName is the connection root field name ("allAccounts").
	ListFieldName string
}

// Column returns the column with the given SQL name.
func (t *Table) Column(name string) (Column, bool) {
	for _, col := range t.Columns {
		if col.Name == name {
			return col, true
		}
	}
	return Column{}, false
}

// ColumnByField returns the column exposed as the given GraphQL field.
func (t *Table) ColumnByField(field string) (Column, bool) {
	for _, col := range t.Columns {
		if col.FieldName == field {
			return col, true
		}
	}
	return Column{}, false
}

// RelationshipByField returns the relationship exposed as the given GraphQL field.
func (t *Table) RelationshipByField(field string) (Relationship, bool) {
	for _, rel := range t.Relationships {
		if rel.FieldName == field {
			return rel, true
		}
	}
	return Relationship{}, false
}

// PrimaryKeyColumns returns the primary key columns in key order.
func (t *Table) PrimaryKeyColumns() []Column {
	cols := make([]Column, 0, len(t.PrimaryKey))
	for _, name := range t.PrimaryKey {
		if col, ok := t.Column(name); ok {
			cols = append(cols, col)
		}
	}
	return cols
}

// Mutable reports whether create/update/delete operations apply to the table.
func (t *Table) Mutable() bool {
	return !t.IsView && len(t.PrimaryKey) > 0
}

// EnumType is a PostgreSQL enum.
type EnumType struct {
	Name     string
	Values   []string
	TypeName string
}

// CompositeType is a PostgreSQL composite type.
type CompositeType struct {
	Name       string
	Attributes []Column
	TypeName   string
}

// AttributeByField returns the attribute exposed as the given GraphQL field.
func (c *CompositeType) AttributeByField(field string) (Column, bool) {
	for _, attr := range c.Attributes {
		if attr.FieldName == field {
			return attr, true
		}
	}
	return Column{}, false
}

// FunctionArg is one input argument of a function.
type FunctionArg struct {
	Name      string
	DataType  string
	FieldName string
}

// Function is a scalar SQL function exposed as a root field.
type Function struct {
	Schema     string
	Name       string
	Args       []FunctionArg
	ReturnType string
	// Volatile functions are exposed as mutations, stable and immutable ones as queries.
	Volatile  bool
	FieldName string
}

// Schema is the immutable descriptor graph handed to the schema builder and compiler.
type Schema struct {
	Name       string
	Tables     []Table
	Enums      []EnumType
	Composites []CompositeType
	Functions  []Function

	tableIndex     map[string]int
	enumIndex      map[string]int
	compositeIndex map[string]int
}

// Table looks up a table by SQL name.
func (s *Schema) Table(name string) (*Table, bool) {
	i, ok := s.tableIndex[name]
	if !ok {
		return nil, false
	}
	return &s.Tables[i], true
}

// Enum looks up an enum type by SQL name.
func (s *Schema) Enum(name string) (*EnumType, bool) {
	i, ok := s.enumIndex[name]
	if !ok {
		return nil, false
	}
	return &s.Enums[i], true
}

// Composite looks up a composite type by SQL name.
func (s *Schema) Composite(name string) (*CompositeType, bool) {
	i, ok := s.compositeIndex[name]
	if !ok {
		return nil, false
	}
	return &s.Composites[i], true
}

// Definition is the raw, un-linked material a Schema is built from.
type Definition struct {
	Name       string
	Tables     []Table
	Enums      []EnumType
	Composites []CompositeType
	Functions  []Function
}

// NewSchema builds a Schema in two phases: every descriptor is registered by
// name first, then relationships are resolved by name lookup. GraphQL names
// are applied last using namer.
func NewSchema(def Definition, namer *naming.Namer) (*Schema, error) {
	if namer == nil {
		namer = naming.Default()
	}
	s := &Schema{
		Name:           def.Name,
		tableIndex:     make(map[string]int, len(def.Tables)),
		enumIndex:      make(map[string]int, len(def.Enums)),
		compositeIndex: make(map[string]int, len(def.Composites)),
	}

	for _, e := range def.Enums {
		if _, dup := s.enumIndex[e.Name]; dup {
			return nil, fmt.Errorf("duplicate enum type %s", e.Name)
		}
		s.enumIndex[e.Name] = len(s.Enums)
		s.Enums = append(s.Enums, e)
	}
	for _, c := range def.Composites {
		if _, dup := s.compositeIndex[c.Name]; dup {
			return nil, fmt.Errorf("duplicate composite type %s", c.Name)
		}
		s.compositeIndex[c.Name] = len(s.Composites)
		s.Composites = append(s.Composites, c)
	}

	tables := append([]Table(nil), def.Tables...)
	sort.SliceStable(tables, func(i, j int) bool { return tables[i].Name < tables[j].Name })
	for _, t := range tables {
		if _, dup := s.tableIndex[t.Name]; dup {
			return nil, fmt.Errorf("duplicate table %s", t.Name)
		}
		t.Columns = append([]Column(nil), t.Columns...)
		t.Relationships = nil
		markPrimaryKey(&t)
		s.linkColumnTypes(t.Columns)
		s.tableIndex[t.Name] = len(s.Tables)
		s.Tables = append(s.Tables, t)
	}
	for i := range s.Composites {
		s.Composites[i].Attributes = append([]Column(nil), s.Composites[i].Attributes...)
		s.linkColumnTypes(s.Composites[i].Attributes)
	}
	s.Functions = append([]Function(nil), def.Functions...)

	namer.Reset()
	s.buildRelationships(namer)
	s.applyNames(namer)
	return s, nil
}

func markPrimaryKey(t *Table) {
	if len(t.PrimaryKey) == 0 {
		for _, col := range t.Columns {
			if col.IsPrimaryKey {
				t.PrimaryKey = append(t.PrimaryKey, col.Name)
			}
		}
		return
	}
	pk := make(map[string]struct{}, len(t.PrimaryKey))
	for _, name := range t.PrimaryKey {
		pk[name] = struct{}{}
	}
	for i := range t.Columns {
		_, ok := pk[t.Columns[i].Name]
		t.Columns[i].IsPrimaryKey = ok
	}
}

// linkColumnTypes attaches enum and composite metadata to USER-DEFINED columns.
func (s *Schema) linkColumnTypes(cols []Column) {
	for i := range cols {
		col := &cols[i]
		if !strings.EqualFold(col.DataType, "USER-DEFINED") || col.UDTName == "" {
			continue
		}
		if e, ok := s.Enum(col.UDTName); ok {
			col.EnumType = e.Name
			col.EnumValues = append([]string(nil), e.Values...)
		} else if c, ok := s.Composite(col.UDTName); ok {
			col.CompositeType = c.Name
		}
	}
}
