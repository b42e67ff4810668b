// Package naming turns PostgreSQL identifiers into GraphQL names: PascalCase
// types, camelCase fields, inflected list and relationship names, and
// per-namespace collision suffixes.
package naming

import (
	"log/slog"
	"strings"

	"github.com/jinzhu/inflection"
)

// Config holds naming overrides for words the inflection rules get wrong.
type Config struct {
	// PluralOverrides maps singular to plural, e.g. {"person": "people"}.
	PluralOverrides map[string]string `mapstructure:"plural_overrides"`
	// SingularOverrides maps plural to singular, e.g. {"data": "datum"}.
	SingularOverrides map[string]string `mapstructure:"singular_overrides"`
}

// DefaultConfig returns a Config without overrides.
func DefaultConfig() Config {
	return Config{
		PluralOverrides:   map[string]string{},
		SingularOverrides: map[string]string{},
	}
}

// Namer resolves GraphQL names for one schema build. Names are claimed in
// three namespaces: types, root fields, and the fields of each type.
type Namer struct {
	config Config
	logger *slog.Logger

	types  namespace
	roots  namespace
	fields map[string]namespace
}

// New creates a Namer. A nil logger uses slog.Default.
func New(cfg Config, logger *slog.Logger) *Namer {
	if logger == nil {
		logger = slog.Default()
	}
	n := &Namer{config: cfg, logger: logger}
	n.Reset()
	return n
}

// Default returns a Namer without overrides.
func Default() *Namer {
	return New(DefaultConfig(), nil)
}

// Reset forgets every claimed name so the Namer can build another schema.
func (n *Namer) Reset() {
	n.types = namespace{}
	n.roots = namespace{}
	n.fields = map[string]namespace{}
}

// Pluralize inflects word to its plural, honoring PluralOverrides.
func (n *Namer) Pluralize(word string) string {
	if override, ok := n.config.PluralOverrides[word]; ok {
		return override
	}
	return inflection.Plural(word)
}

// Singularize inflects word to its singular, honoring SingularOverrides.
func (n *Namer) Singularize(word string) string {
	if override, ok := n.config.SingularOverrides[word]; ok {
		return override
	}
	return inflection.Singular(word)
}

// ToGraphQLTypeName converts an identifier to a PascalCase type name
// ("user_profiles" becomes "UserProfiles"). Reserved names get a trailing
// underscore.
func (n *Namer) ToGraphQLTypeName(identifier string) string {
	name := toPascalCase(identifier)
	if isReservedTypeName(name) {
		return n.escape(name)
	}
	return name
}

// ToGraphQLFieldName converts an identifier to a camelCase field name
// ("user_name" becomes "userName").
func (n *Namer) ToGraphQLFieldName(identifier string) string {
	return toCamelCase(identifier)
}

func (n *Namer) escape(name string) string {
	n.logger.Warn("GraphQL name is reserved, appending underscore",
		slog.String("original", name),
		slog.String("renamed", name+"_"),
	)
	return name + "_"
}

// words splits an identifier on anything that cannot appear in a GraphQL
// name, so "order-items", "order items" and "order_items" agree.
func words(identifier string) []string {
	return strings.FieldsFunc(identifier, func(r rune) bool {
		return !isASCIIAlnum(r)
	})
}

func isASCIIAlnum(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}

func upperFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// leadingDigit prefixes names that would otherwise start with a digit.
func leadingDigit(name string) string {
	if name != "" && name[0] >= '0' && name[0] <= '9' {
		return "_" + name
	}
	return name
}

func toPascalCase(identifier string) string {
	var b strings.Builder
	for _, w := range words(identifier) {
		b.WriteString(upperFirst(w))
	}
	return leadingDigit(b.String())
}

func toCamelCase(identifier string) string {
	ws := words(identifier)
	if len(ws) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString(ws[0])
	for _, w := range ws[1:] {
		b.WriteString(upperFirst(w))
	}
	return leadingDigit(b.String())
}
