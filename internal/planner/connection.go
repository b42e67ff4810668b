package planner

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"pg-graphql/internal/introspection"
	"pg-graphql/internal/nodeid"
	"pg-graphql/internal/selection"
	"pg-graphql/internal/sqlutil"
)

// PaginationMode is the direction rows are fetched in.
type PaginationMode string

const (
	PaginationModeForward  PaginationMode = "forward"
	PaginationModeBackward PaginationMode = "backward"
)

// Connection field and argument names.
const (
	EdgesField       = "edges"
	PageInfoField    = "pageInfo"
	TotalCountField  = "totalCount"
	CursorField      = "cursor"
	NodeField        = "node"
	HasNextPageField = "hasNextPage"
	HasPrevPageField = "hasPreviousPage"
	StartCursorField = "startCursor"
	EndCursorField   = "endCursor"

	FirstArg     = "first"
	LastArg      = "last"
	AfterArg     = "after"
	BeforeArg    = "before"
	ConditionArg = "condition"
)

// Columns projected by the page subquery.
const (
	keyColumnPrefix  = "__k"
	nodeColumnPrefix = "__n"
	cursorColumn     = "__cursor"
	rowNumberColumn  = "__rn"
)

// connectionWindow is the resolved pagination request.
type connectionWindow struct {
	mode  PaginationMode
	limit int
	// cursor is the after cursor in forward mode, the before cursor in backward mode.
	cursor     *nodeid.Identifier
	cursorArgs []interface{}
}

// parentJoin correlates a nested connection to the row that owns it.
type parentJoin struct {
	rel   introspection.Relationship
	alias string
}

type conditionTerm struct {
	column string
	value  interface{}
}

// connectionScope is the filtered, unpaginated base relation of a connection.
type connectionScope struct {
	table     *introspection.Table
	join      *parentJoin
	condition []conditionTerm
}

// connection compiles a connection into a scalar subquery producing
// {edges, pageInfo, totalCount}. Rows are fetched in key order for the page
// direction, one beyond the page size, and re-sorted ascending when aggregated.
func (p *pass) connection(node *selection.Node, table *introspection.Table, join *parentJoin) (sq.Sqlizer, error) {
	if len(table.PrimaryKey) == 0 {
		return nil, fmt.Errorf("%w: connections require a primary key on table %s", ErrUnsupportedSelection, table.Name)
	}
	window, err := p.c.parseConnectionWindow(node, table)
	if err != nil {
		return nil, err
	}
	condition, err := parseCondition(node, table)
	if err != nil {
		return nil, err
	}
	scope := &connectionScope{table: table, join: join, condition: condition}

	alias := p.alias(table.Name)
	order := keyOrder(table, alias, seekDirection(window.mode))
	page := sq.Select()
	for i, col := range table.PrimaryKey {
		page = page.Column(qualify(alias, col) + " AS " + sqlutil.QuoteIdentifier(keyColumn(i)))
	}
	page = page.Column(identifierExpr(table, alias) + " AS " + sqlutil.QuoteIdentifier(cursorColumn))

	// One page column per selected edge node, in selection order.
	nodeColumns := make(map[*selection.Node]string)
	for _, edges := range childrenNamed(node, EdgesField) {
		for _, child := range edges.Children {
			if child.Name != NodeField {
				continue
			}
			obj, err := p.object(child, table, alias)
			if err != nil {
				return nil, err
			}
			name := nodeColumnPrefix + strconv.Itoa(len(nodeColumns))
			nodeColumns[child] = name
			page = page.Column(sq.Alias(obj, sqlutil.QuoteIdentifier(name)))
		}
	}
	page = page.Column("row_number() OVER (ORDER BY " + order + ") AS " + sqlutil.QuoteIdentifier(rowNumberColumn))

	filters, err := p.scopeFilters(scope, alias)
	if err != nil {
		return nil, err
	}
	page = page.From(relation(table, alias))
	for _, f := range filters {
		page = page.Where(f)
	}
	if window.cursor != nil {
		op := ">"
		if window.mode == PaginationModeBackward {
			op = "<"
		}
		page = page.Where(seek(table, alias, op, window.cursorArgs))
	}
	page = page.OrderBy(order).Limit(uint64(window.limit) + 1)

	pageAlias := p.alias("page")
	pairs := make([]jsonPair, 0, len(node.Children))
	for _, child := range node.Children {
		var value sq.Sqlizer
		switch {
		case child.Name == EdgesField && child.Tag == selection.TagComposite:
			value, err = edgesValue(child, table, pageAlias, window, nodeColumns)
		case child.Name == PageInfoField && child.Tag == selection.TagComposite:
			value, err = p.pageInfoValue(child, scope, pageAlias, window)
		case child.Name == TotalCountField && child.Tag == selection.TagScalar:
			value, err = p.totalCount(scope)
		default:
			err = fmt.Errorf("%w: connection has no field %s at %s", ErrUnsupportedSelection, child.Name, child.PathString())
		}
		if err != nil {
			return nil, err
		}
		pairs = append(pairs, jsonPair{key: child.Alias, value: value})
	}

	// The empty grouping set folds the page into exactly one row, also when
	// no selected field aggregates and when the page is empty.
	outer := sq.Select().Column(jsonObject(pairs)).
		FromSelect(page, sqlutil.QuoteIdentifier(pageAlias)).
		GroupBy("()")
	return subquery(outer), nil
}

func edgesValue(node *selection.Node, table *introspection.Table, pageAlias string, window connectionWindow, nodeColumns map[*selection.Node]string) (sq.Sqlizer, error) {
	pairs := make([]jsonPair, 0, len(node.Children))
	for _, child := range node.Children {
		switch {
		case child.Name == CursorField && child.Tag == selection.TagScalar:
			pairs = append(pairs, jsonPair{key: child.Alias, value: raw(qualify(pageAlias, cursorColumn))})
		case child.Name == NodeField && child.Tag == selection.TagTableRow:
			pairs = append(pairs, jsonPair{key: child.Alias, value: raw(qualify(pageAlias, nodeColumns[child]))})
		default:
			return nil, fmt.Errorf("%w: edge has no field %s at %s", ErrUnsupportedSelection, child.Name, child.PathString())
		}
	}
	return sq.ConcatExpr(
		"COALESCE(json_agg(", jsonObject(pairs),
		" ORDER BY "+pageKeyOrder(table, pageAlias, "ASC")+") FILTER (WHERE "+inPage(pageAlias, window)+"), '[]'::json)",
	), nil
}

func (p *pass) pageInfoValue(node *selection.Node, scope *connectionScope, pageAlias string, window connectionWindow) (sq.Sqlizer, error) {
	table := scope.table
	hasExtra := raw("count(*) > " + strconv.Itoa(window.limit))
	pairs := make([]jsonPair, 0, len(node.Children))
	for _, child := range node.Children {
		var value sq.Sqlizer
		switch child.Name {
		case HasNextPageField:
			if window.mode == PaginationModeForward {
				value = hasExtra
			} else {
				v, err := p.beyondCursor(scope, window, ">=")
				if err != nil {
					return nil, err
				}
				value = v
			}
		case HasPrevPageField:
			if window.mode == PaginationModeBackward {
				value = hasExtra
			} else {
				v, err := p.beyondCursor(scope, window, "<=")
				if err != nil {
					return nil, err
				}
				value = v
			}
		case StartCursorField:
			value = raw(edgeCursor(table, pageAlias, window, "ASC"))
		case EndCursorField:
			value = raw(edgeCursor(table, pageAlias, window, "DESC"))
		default:
			return nil, fmt.Errorf("%w: pageInfo has no field %s at %s", ErrUnsupportedSelection, child.Name, child.PathString())
		}
		pairs = append(pairs, jsonPair{key: child.Alias, value: value})
	}
	return jsonObject(pairs), nil
}

// beyondCursor reports whether the base relation holds rows on the far side
// of the supplied cursor. Without a cursor there are none.
func (p *pass) beyondCursor(scope *connectionScope, window connectionWindow, op string) (sq.Sqlizer, error) {
	if window.cursor == nil {
		return raw("false"), nil
	}
	alias := p.alias(scope.table.Name)
	filters, err := p.scopeFilters(scope, alias)
	if err != nil {
		return nil, err
	}
	b := sq.Select("1").From(relation(scope.table, alias))
	for _, f := range filters {
		b = b.Where(f)
	}
	b = b.Where(seek(scope.table, alias, op, window.cursorArgs))
	return sq.ConcatExpr("EXISTS (", b, ")"), nil
}

func (p *pass) totalCount(scope *connectionScope) (sq.Sqlizer, error) {
	alias := p.alias(scope.table.Name)
	filters, err := p.scopeFilters(scope, alias)
	if err != nil {
		return nil, err
	}
	b := sq.Select("count(*)").From(relation(scope.table, alias))
	for _, f := range filters {
		b = b.Where(f)
	}
	return subquery(b), nil
}

// scopeFilters renders the relationship join and condition against alias.
func (p *pass) scopeFilters(scope *connectionScope, alias string) ([]sq.Sqlizer, error) {
	var filters []sq.Sqlizer
	if scope.join != nil {
		join, err := p.joinFilter(scope.join, alias)
		if err != nil {
			return nil, err
		}
		filters = append(filters, join)
	}
	if len(scope.condition) > 0 {
		eq := sq.Eq{}
		for _, term := range scope.condition {
			eq[qualify(alias, term.column)] = term.value
		}
		filters = append(filters, eq)
	}
	return filters, nil
}

func (p *pass) joinFilter(join *parentJoin, alias string) (sq.Sqlizer, error) {
	rel := join.rel
	switch rel.Direction {
	case introspection.OneToMany:
		return correlate(alias, rel.RemoteColumns, join.alias, rel.LocalColumns), nil
	case introspection.ManyToMany:
		junction, ok := p.c.schema.Table(rel.JunctionTable)
		if !ok {
			return nil, fmt.Errorf("%w: unknown junction table %s", ErrUnsupportedSelection, rel.JunctionTable)
		}
		junctionAlias := p.alias(junction.Name)
		b := sq.Select("1").From(relation(junction, junctionAlias)).
			Where(correlate(junctionAlias, rel.JunctionLocalColumns, join.alias, rel.LocalColumns)).
			Where(correlate(junctionAlias, rel.JunctionRemoteColumns, alias, rel.RemoteColumns))
		return sq.ConcatExpr("EXISTS (", b, ")"), nil
	default:
		return nil, fmt.Errorf("%w: %s relationship %s is not a connection", ErrUnsupportedSelection, rel.Direction, rel.FieldName)
	}
}

// parseConnectionWindow validates first/last/after/before and resolves the
// pagination mode and page size.
func (c *Compiler) parseConnectionWindow(node *selection.Node, table *introspection.Table) (connectionWindow, error) {
	first, hasFirst, err := parseConnectionLimitArg(node, FirstArg)
	if err != nil {
		return connectionWindow{}, err
	}
	last, hasLast, err := parseConnectionLimitArg(node, LastArg)
	if err != nil {
		return connectionWindow{}, err
	}
	afterRaw, hasAfter := node.Arg(AfterArg)
	beforeRaw, hasBefore := node.Arg(BeforeArg)

	switch {
	case hasFirst && hasLast:
		return connectionWindow{}, fmt.Errorf("%w: cannot use both first and last", ErrInvalidPaginationArguments)
	case hasAfter && hasBefore:
		return connectionWindow{}, fmt.Errorf("%w: cannot use both after and before", ErrInvalidPaginationArguments)
	case hasLast && hasAfter:
		return connectionWindow{}, fmt.Errorf("%w: last cannot be used with after", ErrInvalidPaginationArguments)
	case hasFirst && hasBefore:
		return connectionWindow{}, fmt.Errorf("%w: before cannot be used with first", ErrInvalidPaginationArguments)
	}

	window := connectionWindow{mode: PaginationModeForward, limit: c.defaultPageSize}
	if hasLast || hasBefore {
		window.mode = PaginationModeBackward
	}
	switch {
	case hasFirst:
		window.limit = c.normalizeLimit(first)
	case hasLast:
		window.limit = c.normalizeLimit(last)
	}

	cursorRaw, hasCursor := afterRaw, hasAfter
	if window.mode == PaginationModeBackward {
		cursorRaw, hasCursor = beforeRaw, hasBefore
	}
	if hasCursor {
		id, err := asIdentifier(cursorRaw)
		if err != nil {
			return connectionWindow{}, err
		}
		if id.TableName != table.Name {
			return connectionWindow{}, fmt.Errorf("%w: cursor for %s used on %s", ErrInvalidCursor, id.TableName, table.Name)
		}
		args, err := nodeid.PKArgs(table, id)
		if err != nil {
			return connectionWindow{}, err
		}
		window.cursor = &id
		window.cursorArgs = args
	}
	return window, nil
}

func (c *Compiler) normalizeLimit(limit int) int {
	if limit > c.maxPageSize {
		return c.maxPageSize
	}
	return limit
}

func parseConnectionLimitArg(node *selection.Node, name string) (int, bool, error) {
	raw, ok := node.Arg(name)
	if !ok {
		return 0, false, nil
	}
	var v int64
	switch n := raw.(type) {
	case int:
		v = int64(n)
	case int32:
		v = int64(n)
	case int64:
		v = n
	case float64:
		if n != math.Trunc(n) {
			return 0, false, fmt.Errorf("%w: %s must be an integer", ErrInvalidPaginationArguments, name)
		}
		v = int64(n)
	default:
		return 0, false, fmt.Errorf("%w: %s must be an integer", ErrInvalidPaginationArguments, name)
	}
	if v < 0 {
		return 0, false, fmt.Errorf("%w: %s must be non-negative", ErrInvalidPaginationArguments, name)
	}
	if v > math.MaxInt32 {
		v = math.MaxInt32
	}
	return int(v), true, nil
}

// parseCondition maps the condition input onto columns. Terms are sorted by
// column so the rendered SQL is stable.
func parseCondition(node *selection.Node, table *introspection.Table) ([]conditionTerm, error) {
	raw, ok := node.Arg(ConditionArg)
	if !ok {
		return nil, nil
	}
	fields, ok := raw.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("%w: condition must be an object", ErrInvalidCondition)
	}
	terms := make([]conditionTerm, 0, len(fields))
	for field, value := range fields {
		col, ok := table.ColumnByField(field)
		if !ok || col.IsComposite() || isJSONColumn(col) {
			return nil, fmt.Errorf("%w: %s has no condition field %s", ErrInvalidCondition, table.TypeName, field)
		}
		terms = append(terms, conditionTerm{column: col.Name, value: value})
	}
	sort.Slice(terms, func(i, j int) bool { return terms[i].column < terms[j].column })
	return terms, nil
}

// seek compares alias's key tuple against the cursor's: (k1, k2) > (?, ?).
func seek(table *introspection.Table, alias, op string, args []interface{}) sq.Sqlizer {
	return sq.Expr(pkList(table, alias)+" "+op+" "+placeholders(len(args)), args...)
}

func seekDirection(mode PaginationMode) string {
	if mode == PaginationModeBackward {
		return "DESC"
	}
	return "ASC"
}

func keyOrder(table *introspection.Table, alias, direction string) string {
	parts := make([]string, len(table.PrimaryKey))
	for i, col := range table.PrimaryKey {
		parts[i] = qualify(alias, col) + " " + direction
	}
	return strings.Join(parts, ", ")
}

func pageKeyOrder(table *introspection.Table, pageAlias, direction string) string {
	parts := make([]string, len(table.PrimaryKey))
	for i := range table.PrimaryKey {
		parts[i] = qualify(pageAlias, keyColumn(i)) + " " + direction
	}
	return strings.Join(parts, ", ")
}

func inPage(pageAlias string, window connectionWindow) string {
	return qualify(pageAlias, rowNumberColumn) + " <= " + strconv.Itoa(window.limit)
}

func edgeCursor(table *introspection.Table, pageAlias string, window connectionWindow, direction string) string {
	return "(array_agg(" + qualify(pageAlias, cursorColumn) + " ORDER BY " + pageKeyOrder(table, pageAlias, direction) +
		") FILTER (WHERE " + inPage(pageAlias, window) + "))[1]"
}

func keyColumn(i int) string {
	return keyColumnPrefix + strconv.Itoa(i)
}

func childrenNamed(node *selection.Node, name string) []*selection.Node {
	var out []*selection.Node
	for _, child := range node.Children {
		if child.Name == name {
			out = append(out, child)
		}
	}
	return out
}
