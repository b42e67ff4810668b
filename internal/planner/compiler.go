// Package planner compiles a selection tree into a single correlated
// PostgreSQL statement whose one column holds the JSON response document.
package planner

import (
	"fmt"
	"strconv"

	sq "github.com/Masterminds/squirrel"

	"pg-graphql/internal/introspection"
	"pg-graphql/internal/selection"
)

const (
	// DefaultConnectionLimit is the default page size for connection queries.
	DefaultConnectionLimit = 25
	// MaxConnectionLimit is the maximum allowed page size.
	MaxConnectionLimit = 100
)

// SQLQuery is a compiled statement with PostgreSQL ($n) placeholders.
type SQLQuery struct {
	SQL  string
	Args []interface{}
}

// Compiler turns selection trees into SQL. It holds no per-request state and
// is safe for concurrent use once built.
type Compiler struct {
	schema          *introspection.Schema
	defaultPageSize int
	maxPageSize     int

	tablesByType     map[string]*introspection.Table
	tablesByConn     map[string]*introspection.Table
	tablesByPayload  map[string]*introspection.Table
	functionsByField map[string]*introspection.Function
}

// Option configures a Compiler.
type Option func(*Compiler)

// WithPageSizes overrides the default and maximum connection page sizes.
// Non-positive values keep the built-in limits.
func WithPageSizes(defaultSize, maxSize int) Option {
	return func(c *Compiler) {
		if maxSize > 0 {
			c.maxPageSize = maxSize
		}
		if defaultSize > 0 {
			c.defaultPageSize = defaultSize
		}
	}
}

// New builds a Compiler over a reflected schema.
func New(schema *introspection.Schema, opts ...Option) *Compiler {
	c := &Compiler{
		schema:           schema,
		defaultPageSize:  DefaultConnectionLimit,
		maxPageSize:      MaxConnectionLimit,
		tablesByType:     make(map[string]*introspection.Table, len(schema.Tables)),
		tablesByConn:     make(map[string]*introspection.Table, len(schema.Tables)),
		tablesByPayload:  make(map[string]*introspection.Table, len(schema.Tables)*3),
		functionsByField: make(map[string]*introspection.Function, len(schema.Functions)),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.defaultPageSize > c.maxPageSize {
		c.defaultPageSize = c.maxPageSize
	}
	for i := range schema.Tables {
		t := &schema.Tables[i]
		c.tablesByType[t.TypeName] = t
		c.tablesByConn[t.ConnectionTypeName()] = t
		for _, verb := range []string{VerbCreate, VerbUpdate, VerbDelete} {
			c.tablesByPayload[t.PayloadTypeName(verb)] = t
		}
	}
	for i := range schema.Functions {
		fn := &schema.Functions[i]
		c.functionsByField[fn.FieldName] = fn
	}
	return c
}

// Compile compiles a root query selection: a single row looked up by nodeId,
// a connection, or a function call.
func (c *Compiler) Compile(node *selection.Node) (SQLQuery, error) {
	p := c.newPass()
	var (
		expr sq.Sqlizer
		err  error
	)
	switch node.Tag {
	case selection.TagTableRow:
		table, terr := c.rowTable(node)
		if terr != nil {
			return SQLQuery{}, terr
		}
		expr, err = p.rootRow(node, table)
	case selection.TagConnection:
		table, terr := c.connectionTable(node)
		if terr != nil {
			return SQLQuery{}, terr
		}
		expr, err = p.connection(node, table, nil)
	case selection.TagFunctionResult:
		return c.compileFunction(node)
	case selection.TagCreatePayload, selection.TagUpdatePayload, selection.TagDeletePayload:
		return SQLQuery{}, fmt.Errorf("%w: %s is a mutation payload", ErrUnsupportedSelection, node.PathString())
	case selection.TagScalar, selection.TagComposite, selection.TagEnum:
		return SQLQuery{}, fmt.Errorf("%w: %s cannot be a root selection", ErrUnsupportedSelection, node.PathString())
	default:
		return SQLQuery{}, fmt.Errorf("%w: unknown tag %d at %s", ErrUnsupportedSelection, node.Tag, node.PathString())
	}
	if err != nil {
		return SQLQuery{}, err
	}
	return toSQL(sq.Select().Column(sq.Alias(expr, resultColumn)))
}

func (c *Compiler) rowTable(node *selection.Node) (*introspection.Table, error) {
	table, ok := c.tablesByType[node.TypeName]
	if !ok {
		return nil, fmt.Errorf("%w: no table for type %s at %s", ErrUnsupportedSelection, node.TypeName, node.PathString())
	}
	return table, nil
}

func (c *Compiler) connectionTable(node *selection.Node) (*introspection.Table, error) {
	table, ok := c.tablesByConn[node.TypeName]
	if !ok {
		return nil, fmt.Errorf("%w: no table for connection %s at %s", ErrUnsupportedSelection, node.TypeName, node.PathString())
	}
	return table, nil
}

// pass is the state of one compilation. Aliases come from a monotonic
// counter so self-joins and repeated relations never collide.
type pass struct {
	c    *Compiler
	next int
}

func (c *Compiler) newPass() *pass {
	return &pass{c: c}
}

func (p *pass) alias(name string) string {
	p.next++
	return name + "_" + strconv.Itoa(p.next)
}

// resultColumn names the single JSON column of every root statement.
const resultColumn = "result"

func toSQL(b sq.SelectBuilder) (SQLQuery, error) {
	query, args, err := b.PlaceholderFormat(sq.Dollar).ToSql()
	if err != nil {
		return SQLQuery{}, err
	}
	return SQLQuery{SQL: query, Args: args}, nil
}
