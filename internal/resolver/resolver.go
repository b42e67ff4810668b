// Package resolver builds the executable GraphQL schema for a reflected
// PostgreSQL schema. Every root field is resolved by compiling its whole
// selection into one SQL statement; nested fields read the resulting JSON
// document by response path.
package resolver

import (
	"context"

	"github.com/graphql-go/graphql"

	"pg-graphql/internal/dbexec"
	"pg-graphql/internal/introspection"
	"pg-graphql/internal/planner"
	"pg-graphql/internal/selection"
)

// CompileErrorObserver is told about selections that failed to compile.
type CompileErrorObserver func(ctx context.Context, kind string, err error)

// Resolver handles GraphQL execution against one database schema.
type Resolver struct {
	executor dbexec.QueryExecutor
	dbSchema *introspection.Schema
	compiler *planner.Compiler
	parser   *selection.Parser

	claimsCfg         dbexec.ClaimsConfig
	statementObserver dbexec.StatementObserver
	compileObserver   CompileErrorObserver
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithCompiler replaces the default compiler, typically to set page sizes.
func WithCompiler(c *planner.Compiler) Option {
	return func(r *Resolver) {
		r.compiler = c
	}
}

// WithClaimsConfig sets how context claims are applied in sessions the
// resolver opens itself.
func WithClaimsConfig(cfg dbexec.ClaimsConfig) Option {
	return func(r *Resolver) {
		r.claimsCfg = cfg
	}
}

// WithStatementObserver is attached to sessions the resolver opens itself.
func WithStatementObserver(observer dbexec.StatementObserver) Option {
	return func(r *Resolver) {
		r.statementObserver = observer
	}
}

// WithCompileErrorObserver reports compile failures, typically to metrics.
func WithCompileErrorObserver(observer CompileErrorObserver) Option {
	return func(r *Resolver) {
		r.compileObserver = observer
	}
}

// NewResolver creates a resolver for dbSchema. The executor is used when a
// request carries no session of its own.
func NewResolver(executor dbexec.QueryExecutor, dbSchema *introspection.Schema, opts ...Option) *Resolver {
	r := &Resolver{
		executor:  executor,
		dbSchema:  dbSchema,
		parser:    &selection.Parser{},
		claimsCfg: dbexec.DefaultClaimsConfig(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.compiler == nil {
		r.compiler = planner.New(dbSchema)
	}
	return r
}

// BuildGraphQLSchema constructs the executable schema. Object types are
// registered for every exposed table first; relationship fields are attached
// in a second pass once every target type exists.
func (r *Resolver) BuildGraphQLSchema() (graphql.Schema, error) {
	b := newSchemaBuilder(r.dbSchema)
	tables := exposedTables(r.dbSchema)

	for _, table := range tables {
		b.addObjectType(table)
	}
	for _, table := range tables {
		b.addConnectionType(table)
	}
	for _, table := range tables {
		b.addRelationshipFields(table)
	}

	queryFields := graphql.Fields{}
	mutationFields := graphql.Fields{}
	for _, table := range tables {
		r.addTableQueries(b, queryFields, table)
		if table.Mutable() {
			r.addTableMutations(b, mutationFields, table)
		}
	}
	for i := range r.dbSchema.Functions {
		fn := &r.dbSchema.Functions[i]
		if fn.Volatile {
			r.addFunctionField(b, mutationFields, fn)
		} else {
			r.addFunctionField(b, queryFields, fn)
		}
	}

	// GraphQL requires at least one query field.
	if len(queryFields) == 0 {
		queryFields["_schema"] = &graphql.Field{
			Type: graphql.String,
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				return "No tables found in database", nil
			},
			Description: "Placeholder field when the schema exposes no tables",
		}
	}

	schemaConfig := graphql.SchemaConfig{
		Query: graphql.NewObject(graphql.ObjectConfig{
			Name:   "Query",
			Fields: queryFields,
		}),
	}
	if len(mutationFields) > 0 {
		schemaConfig.Mutation = graphql.NewObject(graphql.ObjectConfig{
			Name:   "Mutation",
			Fields: mutationFields,
		})
	}

	schema, err := graphql.NewSchema(schemaConfig)
	if err != nil {
		return graphql.Schema{}, err
	}
	r.parser = &selection.Parser{Types: b.tags, Roots: b.roots}
	return schema, nil
}

// exposedTables returns the tables that can be addressed by node identifier.
// Tables and views without a primary key are left out.
func exposedTables(schema *introspection.Schema) []*introspection.Table {
	tables := make([]*introspection.Table, 0, len(schema.Tables))
	for i := range schema.Tables {
		if len(schema.Tables[i].PrimaryKey) == 0 {
			continue
		}
		tables = append(tables, &schema.Tables[i])
	}
	return tables
}
