// Package selection turns the field selection of one GraphQL root field into
// an annotated tree the SQL compiler walks.
package selection

import "strings"

// Tag classifies what a selected field returns. The compiler switches over
// tags exhaustively.
type Tag int

const (
	// TagScalar is a leaf value: column, nodeId, cursor, count or flag.
	TagScalar Tag = iota + 1
	// TagComposite is a plain object without its own table: composite columns, PageInfo, edges.
	TagComposite
	// TagEnum is an enum leaf.
	TagEnum
	// TagTableRow is one row of a table.
	TagTableRow
	// TagConnection is a paginated list of table rows.
	TagConnection
	// TagCreatePayload is the result of a create mutation.
	TagCreatePayload
	// TagUpdatePayload is the result of an update mutation.
	TagUpdatePayload
	// TagDeletePayload is the result of a delete mutation.
	TagDeletePayload
	// TagFunctionResult is the result of a SQL function call.
	TagFunctionResult
)

func (t Tag) String() string {
	switch t {
	case TagScalar:
		return "scalar"
	case TagComposite:
		return "composite"
	case TagEnum:
		return "enum"
	case TagTableRow:
		return "table_row"
	case TagConnection:
		return "connection"
	case TagCreatePayload:
		return "create_payload"
	case TagUpdatePayload:
		return "update_payload"
	case TagDeletePayload:
		return "delete_payload"
	case TagFunctionResult:
		return "function_result"
	default:
		return "unknown"
	}
}

// TypeTags maps GraphQL object type names to their tag. Object types that are
// absent are treated as TagComposite. Built once with the schema; read-only.
type TypeTags map[string]Tag

const rootPathElement = "root"

// Node is one selected field.
type Node struct {
	// Name is the schema field name.
	Name string
	// Alias is the response key; it equals Name when no alias was given.
	Alias string
	Tag   Tag
	// TypeName is the unwrapped GraphQL type name the field returns.
	TypeName string
	Args     map[string]interface{}
	Parent   *Node
	Children []*Node
}

// Path is the chain of response keys from the root. The root node's path is ["root"].
func (n *Node) Path() []string {
	if n.Parent == nil {
		return []string{rootPathElement}
	}
	return append(n.Parent.Path(), n.Alias)
}

// PathString joins Path with dots, for logs and errors.
func (n *Node) PathString() string {
	return strings.Join(n.Path(), ".")
}

// Arg returns a resolved argument value.
func (n *Node) Arg(name string) (interface{}, bool) {
	v, ok := n.Args[name]
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

// Child returns the first child selecting the given schema field.
func (n *Node) Child(name string) *Node {
	for _, child := range n.Children {
		if child.Name == name {
			return child
		}
	}
	return nil
}

// Selects reports whether any child selects the given schema field.
func (n *Node) Selects(name string) bool {
	return n.Child(name) != nil
}
