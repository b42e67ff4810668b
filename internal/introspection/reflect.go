package introspection

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"pg-graphql/internal/naming"
)

// Queryer provides query access for schema reflection.
type Queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

const tablesQuery = `
	SELECT table_name, table_type
	FROM information_schema.tables
	WHERE table_schema = $1
	AND table_type IN ('BASE TABLE', 'VIEW')
	ORDER BY table_name`

const columnsQuery = `
	SELECT table_name, column_name, data_type, udt_name, is_nullable,
		column_default IS NOT NULL OR is_identity = 'YES' AS has_default,
		is_generated = 'ALWAYS' OR identity_generation = 'ALWAYS' AS is_generated
	FROM information_schema.columns
	WHERE table_schema = $1
	ORDER BY table_name, ordinal_position`

const primaryKeysQuery = `
	SELECT tc.table_name, kcu.column_name
	FROM information_schema.table_constraints tc
	JOIN information_schema.key_column_usage kcu
		ON kcu.constraint_schema = tc.constraint_schema
		AND kcu.constraint_name = tc.constraint_name
		AND kcu.table_name = tc.table_name
	WHERE tc.constraint_type = 'PRIMARY KEY' AND tc.table_schema = $1
	ORDER BY tc.table_name, kcu.ordinal_position`

const foreignKeysQuery = `
	SELECT con.conname, cl.relname, att.attname, fcl.relname, fatt.attname, k.ord
	FROM pg_catalog.pg_constraint con
	JOIN pg_catalog.pg_class cl ON cl.oid = con.conrelid
	JOIN pg_catalog.pg_namespace ns ON ns.oid = cl.relnamespace
	JOIN pg_catalog.pg_class fcl ON fcl.oid = con.confrelid
	JOIN pg_catalog.pg_namespace fns ON fns.oid = fcl.relnamespace
	CROSS JOIN LATERAL unnest(con.conkey, con.confkey) WITH ORDINALITY AS k(attnum, fattnum, ord)
	JOIN pg_catalog.pg_attribute att ON att.attrelid = con.conrelid AND att.attnum = k.attnum
	JOIN pg_catalog.pg_attribute fatt ON fatt.attrelid = con.confrelid AND fatt.attnum = k.fattnum
	WHERE con.contype = 'f' AND ns.nspname = $1 AND fns.nspname = $1
	ORDER BY cl.relname, con.conname, k.ord`

const enumsQuery = `
	SELECT t.typname, e.enumlabel
	FROM pg_catalog.pg_type t
	JOIN pg_catalog.pg_enum e ON e.enumtypid = t.oid
	JOIN pg_catalog.pg_namespace n ON n.oid = t.typnamespace
	WHERE n.nspname = $1
	ORDER BY t.typname, e.enumsortorder`

const compositesQuery = `
	SELECT t.typname, a.attname, format_type(a.atttypid, a.atttypmod)
	FROM pg_catalog.pg_type t
	JOIN pg_catalog.pg_class c ON c.oid = t.typrelid
	JOIN pg_catalog.pg_attribute a ON a.attrelid = c.oid
	JOIN pg_catalog.pg_namespace n ON n.oid = t.typnamespace
	WHERE n.nspname = $1 AND t.typtype = 'c' AND c.relkind = 'c'
	AND a.attnum > 0 AND NOT a.attisdropped
	ORDER BY t.typname, a.attnum`

// Set-returning, trigger and pseudo-type functions are left out, as are
// functions owned by extensions.
const functionsQuery = `
	SELECT p.oid::bigint, p.proname, p.provolatile::text, format_type(p.prorettype, NULL),
		COALESCE(a.name, ''), COALESCE(format_type(a.typ, NULL), ''), COALESCE(a.ord, 0)
	FROM pg_catalog.pg_proc p
	JOIN pg_catalog.pg_namespace n ON n.oid = p.pronamespace
	LEFT JOIN LATERAL unnest(p.proargtypes::oid[], p.proargnames[1:p.pronargs])
		WITH ORDINALITY AS a(typ, name, ord) ON true
	WHERE n.nspname = $1 AND p.prokind = 'f' AND NOT p.proretset
	AND format_type(p.prorettype, NULL) NOT IN ('trigger', 'void', 'record', 'internal', 'event_trigger')
	AND NOT EXISTS (SELECT 1 FROM pg_catalog.pg_depend d WHERE d.objid = p.oid AND d.deptype = 'e')
	ORDER BY p.proname, p.oid, a.ord`

// Reflect reads the descriptors of one PostgreSQL schema and builds the
// linked Schema. Tables without a primary key cannot be addressed by NodeID
// and are skipped with a warning.
func Reflect(ctx context.Context, db Queryer, schemaName string, namer *naming.Namer) (*Schema, error) {
	ctx, span := startSpan(ctx, "introspection.reflect", attribute.String("db.schema", schemaName))
	defer span.End()

	def, err := readDefinition(ctx, db, schemaName)
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	schema, err := NewSchema(def, namer)
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	span.SetAttributes(
		attribute.Int("schema.tables", len(schema.Tables)),
		attribute.Int("schema.functions", len(schema.Functions)),
	)
	return schema, nil
}

func readDefinition(ctx context.Context, db Queryer, schemaName string) (Definition, error) {
	def := Definition{Name: schemaName}

	tables, err := getTables(ctx, db, schemaName)
	if err != nil {
		return def, fmt.Errorf("failed to get tables: %w", err)
	}
	if err := getColumns(ctx, db, schemaName, tables); err != nil {
		return def, fmt.Errorf("failed to get columns: %w", err)
	}
	if err := getPrimaryKeys(ctx, db, schemaName, tables); err != nil {
		return def, fmt.Errorf("failed to get primary keys: %w", err)
	}
	if err := getForeignKeys(ctx, db, schemaName, tables); err != nil {
		return def, fmt.Errorf("failed to get foreign keys: %w", err)
	}
	if def.Enums, err = getEnums(ctx, db, schemaName); err != nil {
		return def, fmt.Errorf("failed to get enums: %w", err)
	}
	if def.Composites, err = getComposites(ctx, db, schemaName); err != nil {
		return def, fmt.Errorf("failed to get composite types: %w", err)
	}
	if def.Functions, err = getFunctions(ctx, db, schemaName); err != nil {
		return def, fmt.Errorf("failed to get functions: %w", err)
	}

	for _, t := range tables.ordered {
		if len(t.PrimaryKey) == 0 {
			slog.Default().Warn("skipping relation without primary key",
				slog.String("schema", schemaName),
				slog.String("table", t.Name),
			)
			continue
		}
		def.Tables = append(def.Tables, *t)
	}
	return def, nil
}

type tableSet struct {
	ordered []*Table
	byName  map[string]*Table
}

func getTables(ctx context.Context, db Queryer, schemaName string) (*tableSet, error) {
	rows, err := db.QueryContext(ctx, tablesQuery, schemaName)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = rows.Close()
	}()

	set := &tableSet{byName: make(map[string]*Table)}
	for rows.Next() {
		var name, tableType string
		if err := rows.Scan(&name, &tableType); err != nil {
			return nil, err
		}
		t := &Table{
			Schema: schemaName,
			Name:   name,
			IsView: strings.EqualFold(tableType, "VIEW"),
		}
		set.ordered = append(set.ordered, t)
		set.byName[name] = t
	}
	return set, rows.Err()
}

func getColumns(ctx context.Context, db Queryer, schemaName string, tables *tableSet) error {
	rows, err := db.QueryContext(ctx, columnsQuery, schemaName)
	if err != nil {
		return err
	}
	defer func() {
		_ = rows.Close()
	}()

	for rows.Next() {
		var tableName, isNullable string
		var col Column
		if err := rows.Scan(&tableName, &col.Name, &col.DataType, &col.UDTName, &isNullable, &col.HasDefault, &col.IsGenerated); err != nil {
			return err
		}
		col.IsNullable = strings.EqualFold(isNullable, "YES")
		if t, ok := tables.byName[tableName]; ok {
			t.Columns = append(t.Columns, col)
		}
	}
	return rows.Err()
}

func getPrimaryKeys(ctx context.Context, db Queryer, schemaName string, tables *tableSet) error {
	rows, err := db.QueryContext(ctx, primaryKeysQuery, schemaName)
	if err != nil {
		return err
	}
	defer func() {
		_ = rows.Close()
	}()

	for rows.Next() {
		var tableName, column string
		if err := rows.Scan(&tableName, &column); err != nil {
			return err
		}
		if t, ok := tables.byName[tableName]; ok {
			t.PrimaryKey = append(t.PrimaryKey, column)
		}
	}
	return rows.Err()
}

func getForeignKeys(ctx context.Context, db Queryer, schemaName string, tables *tableSet) error {
	rows, err := db.QueryContext(ctx, foreignKeysQuery, schemaName)
	if err != nil {
		return err
	}
	defer func() {
		_ = rows.Close()
	}()

	for rows.Next() {
		var tableName string
		var fk ForeignKey
		if err := rows.Scan(&fk.ConstraintName, &tableName, &fk.ColumnName, &fk.ReferencedTable, &fk.ReferencedColumn, &fk.OrdinalPosition); err != nil {
			return err
		}
		if t, ok := tables.byName[tableName]; ok {
			t.ForeignKeys = append(t.ForeignKeys, fk)
		}
	}
	return rows.Err()
}

func getEnums(ctx context.Context, db Queryer, schemaName string) ([]EnumType, error) {
	rows, err := db.QueryContext(ctx, enumsQuery, schemaName)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = rows.Close()
	}()

	var enums []EnumType
	for rows.Next() {
		var typeName, label string
		if err := rows.Scan(&typeName, &label); err != nil {
			return nil, err
		}
		if n := len(enums); n == 0 || enums[n-1].Name != typeName {
			enums = append(enums, EnumType{Name: typeName})
		}
		enums[len(enums)-1].Values = append(enums[len(enums)-1].Values, label)
	}
	return enums, rows.Err()
}

func getComposites(ctx context.Context, db Queryer, schemaName string) ([]CompositeType, error) {
	rows, err := db.QueryContext(ctx, compositesQuery, schemaName)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = rows.Close()
	}()

	var composites []CompositeType
	for rows.Next() {
		var typeName string
		var attr Column
		if err := rows.Scan(&typeName, &attr.Name, &attr.DataType); err != nil {
			return nil, err
		}
		attr.IsNullable = true
		if n := len(composites); n == 0 || composites[n-1].Name != typeName {
			composites = append(composites, CompositeType{Name: typeName})
		}
		last := &composites[len(composites)-1]
		last.Attributes = append(last.Attributes, attr)
	}
	return composites, rows.Err()
}

func getFunctions(ctx context.Context, db Queryer, schemaName string) ([]Function, error) {
	rows, err := db.QueryContext(ctx, functionsQuery, schemaName)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = rows.Close()
	}()

	var functions []Function
	var lastOID int64 = -1
	for rows.Next() {
		var oid, ord int64
		var name, volatility, returnType, argName, argType string
		if err := rows.Scan(&oid, &name, &volatility, &returnType, &argName, &argType, &ord); err != nil {
			return nil, err
		}
		if oid != lastOID {
			functions = append(functions, Function{
				Schema:     schemaName,
				Name:       name,
				ReturnType: returnType,
				Volatile:   volatility == "v",
			})
			lastOID = oid
		}
		if argType == "" {
			continue
		}
		if argName == "" {
			argName = fmt.Sprintf("arg%d", ord)
		}
		fn := &functions[len(functions)-1]
		fn.Args = append(fn.Args, FunctionArg{Name: argName, DataType: argType})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return dropOverloads(functions), nil
}

// dropOverloads keeps the first definition of overloaded function names;
// GraphQL root fields cannot be overloaded.
func dropOverloads(functions []Function) []Function {
	seen := make(map[string]struct{}, len(functions))
	out := functions[:0]
	for _, fn := range functions {
		if _, dup := seen[fn.Name]; dup {
			slog.Default().Warn("skipping overloaded function", slog.String("function", fn.Name))
			continue
		}
		seen[fn.Name] = struct{}{}
		out = append(out, fn)
	}
	return out
}

func startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	tracer := otel.Tracer("pg-graphql/introspection")
	ctx, span := tracer.Start(ctx, name)
	if len(attrs) > 0 {
		span.SetAttributes(attrs...)
	}
	return ctx, span
}

func recordSpanError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
