// Package sqltype provides a shared mapping from PostgreSQL data types to GraphQL type categories.
// This ensures consistent type mapping across schema generation and query compilation.
package sqltype

import "strings"

// GraphQLType represents the category of GraphQL scalar type for a SQL column.
type GraphQLType int

const (
	// TypeString is the default type for text, dates, and unknown SQL types.
	TypeString GraphQLType = iota
	// TypeInt represents integer numeric types.
	TypeInt
	// TypeFloat represents floating-point and fixed-point numeric types.
	TypeFloat
	// TypeBoolean represents boolean types.
	TypeBoolean
	// TypeJSON represents json, jsonb and array data types.
	TypeJSON
)

// MapToGraphQL converts a PostgreSQL data type string to its corresponding GraphQL type category.
// The input is case-insensitive and accepts both information_schema spellings
// ("character varying", "timestamp with time zone") and udt names ("varchar", "timestamptz").
// Size specifiers like (10,2) or (255) are stripped before matching; arrays map to JSON.
func MapToGraphQL(sqlType string) GraphQLType {
	if idx := strings.Index(sqlType, "("); idx != -1 {
		sqlType = sqlType[:idx]
	}
	sqlType = strings.TrimSpace(sqlType)
	if strings.HasSuffix(sqlType, "[]") {
		return TypeJSON
	}
	switch strings.ToLower(sqlType) {
	case "smallint", "integer", "bigint", "int", "int2", "int4", "int8",
		"smallserial", "serial", "bigserial", "serial2", "serial4", "serial8":
		return TypeInt
	case "real", "double precision", "float4", "float8", "numeric", "decimal", "money":
		return TypeFloat
	case "boolean", "bool":
		return TypeBoolean
	case "json", "jsonb", "array":
		return TypeJSON
	default:
		// text, varchar, char, uuid, date, time, timestamp, interval, bytea, inet, ...
		return TypeString
	}
}

// String returns the GraphQL scalar type name for schema generation.
func (t GraphQLType) String() string {
	switch t {
	case TypeInt:
		return "Int"
	case TypeFloat:
		return "Float"
	case TypeBoolean:
		return "Boolean"
	case TypeJSON:
		return "JSON"
	default:
		return "String"
	}
}

// IsBigInt reports whether sqlType is a 64-bit integer. Such values exceed the
// float64 range of JSON numbers and are carried as text.
func IsBigInt(sqlType string) bool {
	switch strings.ToLower(strings.TrimSpace(sqlType)) {
	case "bigint", "int8", "bigserial", "serial8":
		return true
	}
	return false
}
