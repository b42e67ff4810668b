package selection

import (
	"errors"
	"fmt"

	"github.com/graphql-go/graphql"
	"github.com/graphql-go/graphql/language/ast"

	"pg-graphql/internal/nodeid"
	"pg-graphql/internal/scalars"
)

// Parser builds selection trees. Its maps are produced by the schema build
// and shared read-only across requests.
type Parser struct {
	// Types tags object types by GraphQL type name.
	Types TypeTags
	// Roots overrides the tag of root fields by field name, for root fields
	// whose return type alone does not identify them (function calls).
	Roots map[string]Tag
}

// Parse builds the tree for the root field being resolved. Fragments are
// flattened in place, "__" fields are skipped, arguments are coerced against
// their declared types and NodeID/Cursor arguments are decoded into
// nodeid.Identifier values.
func (p *Parser) Parse(params graphql.ResolveParams) (*Node, error) {
	info := params.Info
	if len(info.FieldASTs) == 0 {
		return nil, errors.New("missing field selection")
	}

	parentType, ok := info.ParentType.(*graphql.Object)
	if !ok {
		return nil, fmt.Errorf("unsupported parent type %v", info.ParentType)
	}
	def, ok := parentType.Fields()[info.FieldName]
	if !ok {
		return nil, fmt.Errorf("unknown root field %s", info.FieldName)
	}

	args, err := decodeArgs(def.Args, params.Args)
	if err != nil {
		return nil, err
	}

	alias := info.FieldName
	if first := info.FieldASTs[0]; first.Alias != nil && first.Alias.Value != "" {
		alias = first.Alias.Value
	}

	namedType := unwrap(info.ReturnType)
	root := &Node{
		Name:     info.FieldName,
		Alias:    alias,
		Tag:      p.tagFor(namedType),
		TypeName: namedType.Name(),
		Args:     args,
	}
	if tag, ok := p.Roots[info.FieldName]; ok {
		root.Tag = tag
	}

	w := &walker{parser: p, fragments: info.Fragments, variables: info.VariableValues}
	for _, field := range info.FieldASTs {
		if field.SelectionSet == nil {
			continue
		}
		if err := w.collect(root, namedType, field.SelectionSet.Selections, map[string]bool{}); err != nil {
			return nil, err
		}
	}
	return root, nil
}

func (p *Parser) tagFor(t graphql.Type) Tag {
	switch t.(type) {
	case *graphql.Scalar:
		return TagScalar
	case *graphql.Enum:
		return TagEnum
	}
	if tag, ok := p.Types[t.Name()]; ok {
		return tag
	}
	return TagComposite
}

type walker struct {
	parser    *Parser
	fragments map[string]ast.Definition
	variables map[string]interface{}
}

// collect appends the fields of selections to parent, flattening fragment
// spreads and inline fragments at their position. visited guards against
// fragment cycles along one spread chain.
func (w *walker) collect(parent *Node, parentType graphql.Type, selections []ast.Selection, visited map[string]bool) error {
	obj, ok := parentType.(*graphql.Object)
	if !ok {
		return fmt.Errorf("field %s has no selectable fields", parent.Name)
	}

	for _, selection := range selections {
		switch sel := selection.(type) {
		case *ast.Field:
			if sel.Name == nil || isReserved(sel.Name.Value) {
				continue
			}
			include, err := w.included(sel.Directives)
			if err != nil {
				return err
			}
			if !include {
				continue
			}
			if err := w.addField(parent, obj, sel, visited); err != nil {
				return err
			}
		case *ast.InlineFragment:
			include, err := w.included(sel.Directives)
			if err != nil {
				return err
			}
			if !include || sel.SelectionSet == nil {
				continue
			}
			if err := w.collect(parent, parentType, sel.SelectionSet.Selections, visited); err != nil {
				return err
			}
		case *ast.FragmentSpread:
			if sel.Name == nil {
				continue
			}
			include, err := w.included(sel.Directives)
			if err != nil {
				return err
			}
			if !include {
				continue
			}
			name := sel.Name.Value
			if visited[name] {
				return fmt.Errorf("fragment %s spreads itself", name)
			}
			def, ok := w.fragments[name]
			if !ok {
				return fmt.Errorf("unknown fragment %s", name)
			}
			fragment, ok := def.(*ast.FragmentDefinition)
			if !ok || fragment.SelectionSet == nil {
				continue
			}
			visited[name] = true
			err = w.collect(parent, parentType, fragment.SelectionSet.Selections, visited)
			delete(visited, name)
			if err != nil {
				return err
			}
		}
	}
	return nil
}

func (w *walker) addField(parent *Node, obj *graphql.Object, field *ast.Field, visited map[string]bool) error {
	name := field.Name.Value
	def, ok := obj.Fields()[name]
	if !ok {
		return fmt.Errorf("unknown field %s on %s", name, obj.Name())
	}

	alias := name
	if field.Alias != nil && field.Alias.Value != "" {
		alias = field.Alias.Value
	}

	namedType := unwrap(def.Type)

	// Repeated response keys merge into one node.
	node := findAlias(parent, alias)
	if node == nil {
		args, err := w.coerceArgs(def.Args, field.Arguments)
		if err != nil {
			return fmt.Errorf("%s: %w", alias, err)
		}
		node = &Node{
			Name:     name,
			Alias:    alias,
			Tag:      w.parser.tagFor(namedType),
			TypeName: namedType.Name(),
			Args:     args,
			Parent:   parent,
		}
		parent.Children = append(parent.Children, node)
	}

	if field.SelectionSet == nil {
		return nil
	}
	return w.collect(node, namedType, field.SelectionSet.Selections, visited)
}

func unwrap(t graphql.Type) graphql.Type {
	for {
		switch wrapped := t.(type) {
		case *graphql.NonNull:
			t = wrapped.OfType
		case *graphql.List:
			t = wrapped.OfType
		default:
			return t
		}
	}
}

func findAlias(parent *Node, alias string) *Node {
	for _, child := range parent.Children {
		if child.Alias == alias {
			return child
		}
	}
	return nil
}

func isReserved(name string) bool {
	return len(name) >= 2 && name[:2] == "__"
}

// included evaluates @skip and @include.
func (w *walker) included(directives []*ast.Directive) (bool, error) {
	for _, d := range directives {
		if d.Name == nil {
			continue
		}
		if d.Name.Value != "skip" && d.Name.Value != "include" {
			continue
		}
		var cond bool
		for _, arg := range d.Arguments {
			if arg.Name == nil || arg.Name.Value != "if" {
				continue
			}
			v, err := valueFromAST(arg.Value, graphql.NewNonNull(graphql.Boolean), w.variables)
			if err != nil {
				return false, err
			}
			cond, _ = v.(bool)
		}
		if d.Name.Value == "skip" && cond {
			return false, nil
		}
		if d.Name.Value == "include" && !cond {
			return false, nil
		}
	}
	return true, nil
}

// coerceArgs resolves a field's arguments from literals and variables,
// applying declared defaults.
func (w *walker) coerceArgs(defs []*graphql.Argument, given []*ast.Argument) (map[string]interface{}, error) {
	if len(defs) == 0 {
		return nil, nil
	}
	byName := make(map[string]ast.Value, len(given))
	for _, arg := range given {
		if arg.Name != nil {
			byName[arg.Name.Value] = arg.Value
		}
	}

	raw := make(map[string]interface{}, len(defs))
	for _, def := range defs {
		valueAST, ok := byName[def.Name()]
		if !ok {
			if def.DefaultValue != nil {
				raw[def.Name()] = def.DefaultValue
			}
			continue
		}
		v, err := valueFromAST(valueAST, def.Type, w.variables)
		if err != nil {
			return nil, fmt.Errorf("argument %s: %w", def.Name(), err)
		}
		raw[def.Name()] = v
	}
	return decodeArgs(defs, raw)
}

// valueFromAST coerces a literal or variable reference against a declared input type.
func valueFromAST(value ast.Value, typ graphql.Input, variables map[string]interface{}) (interface{}, error) {
	if v, ok := value.(*ast.Variable); ok {
		if v.Name == nil {
			return nil, nil
		}
		// Variables arrive already coerced by the executor.
		return variables[v.Name.Value], nil
	}

	switch t := typ.(type) {
	case *graphql.NonNull:
		out, err := valueFromAST(value, t.OfType.(graphql.Input), variables)
		if err != nil {
			return nil, err
		}
		if out == nil {
			return nil, errors.New("required value is null")
		}
		return out, nil
	case *graphql.List:
		itemType := t.OfType.(graphql.Input)
		list, ok := value.(*ast.ListValue)
		if !ok {
			item, err := valueFromAST(value, itemType, variables)
			if err != nil {
				return nil, err
			}
			return []interface{}{item}, nil
		}
		out := make([]interface{}, 0, len(list.Values))
		for _, itemAST := range list.Values {
			item, err := valueFromAST(itemAST, itemType, variables)
			if err != nil {
				return nil, err
			}
			out = append(out, item)
		}
		return out, nil
	case *graphql.InputObject:
		obj, ok := value.(*ast.ObjectValue)
		if !ok {
			return nil, fmt.Errorf("expected input object %s", t.Name())
		}
		given := make(map[string]ast.Value, len(obj.Fields))
		for _, f := range obj.Fields {
			if f.Name != nil {
				given[f.Name.Value] = f.Value
			}
		}
		fields := t.Fields()
		for name := range given {
			if _, ok := fields[name]; !ok {
				return nil, fmt.Errorf("unknown field %s on %s", name, t.Name())
			}
		}
		out := make(map[string]interface{}, len(given))
		for name, field := range fields {
			fieldAST, ok := given[name]
			if !ok {
				if field.DefaultValue != nil {
					out[name] = field.DefaultValue
				}
				continue
			}
			v, err := valueFromAST(fieldAST, field.Type, variables)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", name, err)
			}
			out[name] = v
		}
		return out, nil
	case *graphql.Scalar:
		// Literal validity is checked by query validation; null parses to nil.
		return t.ParseLiteral(value), nil
	case *graphql.Enum:
		// Literal validity is checked by query validation; null parses to nil.
		return t.ParseLiteral(value), nil
	default:
		return nil, fmt.Errorf("unsupported input type %v", typ)
	}
}

// decodeArgs replaces NodeID and Cursor strings with decoded identifiers.
func decodeArgs(defs []*graphql.Argument, args map[string]interface{}) (map[string]interface{}, error) {
	if len(args) == 0 {
		return args, nil
	}
	out := make(map[string]interface{}, len(args))
	for k, v := range args {
		out[k] = v
	}
	for _, def := range defs {
		v, ok := out[def.Name()]
		if !ok || v == nil {
			continue
		}
		decoded, err := decodeValue(v, def.Type)
		if err != nil {
			return nil, fmt.Errorf("argument %s: %w", def.Name(), err)
		}
		out[def.Name()] = decoded
	}
	return out, nil
}

func decodeValue(v interface{}, typ graphql.Input) (interface{}, error) {
	if v == nil {
		return nil, nil
	}
	switch t := typ.(type) {
	case *graphql.NonNull:
		return decodeValue(v, t.OfType.(graphql.Input))
	case *graphql.List:
		items, ok := v.([]interface{})
		if !ok {
			return v, nil
		}
		out := make([]interface{}, len(items))
		for i, item := range items {
			decoded, err := decodeValue(item, t.OfType.(graphql.Input))
			if err != nil {
				return nil, err
			}
			out[i] = decoded
		}
		return out, nil
	case *graphql.InputObject:
		obj, ok := v.(map[string]interface{})
		if !ok {
			return v, nil
		}
		out := make(map[string]interface{}, len(obj))
		for name, fieldValue := range obj {
			out[name] = fieldValue
			field, ok := t.Fields()[name]
			if !ok {
				continue
			}
			decoded, err := decodeValue(fieldValue, field.Type)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", name, err)
			}
			out[name] = decoded
		}
		return out, nil
	case *graphql.Scalar:
		if t.Name() != scalars.NodeIDName && t.Name() != scalars.CursorName {
			return v, nil
		}
		if id, ok := v.(nodeid.Identifier); ok {
			return id, nil
		}
		raw, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("%w: expected string", nodeid.ErrBadIdentifier)
		}
		return nodeid.Decode(raw)
	default:
		return v, nil
	}
}
