package naming

import "strings"

// builtinTypeNames are the GraphQL keywords, built-in scalars and the types
// every generated schema defines on its own.
var builtinTypeNames = map[string]struct{}{
	"query": {}, "mutation": {}, "subscription": {}, "schema": {},
	"int": {}, "float": {}, "string": {}, "boolean": {}, "id": {},
	"pageinfo": {}, "nodeid": {}, "cursor": {}, "json": {}, "bigint": {},
}

// generatedTypeSuffixes are appended to table type names for the derived
// connection, filter, input and payload types.
var generatedTypeSuffixes = []string{"Connection", "Edge", "Condition", "Input", "Patch", "Payload"}

// isReservedTypeName reports names that would shadow a built-in type or
// could collide with the derived types of another table.
func isReservedTypeName(name string) bool {
	if strings.HasPrefix(name, "__") {
		return true
	}
	if _, ok := builtinTypeNames[strings.ToLower(name)]; ok {
		return true
	}
	for _, suffix := range generatedTypeSuffixes {
		if len(name) > len(suffix) && strings.HasSuffix(name, suffix) {
			return true
		}
	}
	return false
}
