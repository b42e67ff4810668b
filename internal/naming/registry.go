package naming

import (
	"log/slog"
	"strconv"
)

// namespace maps each claimed name to the identifier that owns it.
type namespace map[string]string

// claim registers name for owner. A taken name gets the smallest free
// numeric suffix starting at 2.
func (ns namespace) claim(name, owner string) (resolved string, renamed bool) {
	if _, taken := ns[name]; !taken {
		ns[name] = owner
		return name, false
	}
	for i := 2; ; i++ {
		candidate := name + strconv.Itoa(i)
		if _, taken := ns[candidate]; !taken {
			ns[candidate] = owner
			return candidate, true
		}
	}
}

func (n *Namer) claim(ns namespace, scope, name, owner string) string {
	resolved, renamed := ns.claim(name, owner)
	if renamed {
		n.logger.Warn("GraphQL name collision, applying suffix",
			slog.String("scope", scope),
			slog.String("name", name),
			slog.String("existing_owner", ns[name]),
			slog.String("owner", owner),
			slog.String("renamed", resolved),
		)
	}
	return resolved
}

func (n *Namer) typeFields(typeName string) namespace {
	ns, ok := n.fields[typeName]
	if !ok {
		ns = namespace{}
		n.fields[typeName] = ns
	}
	return ns
}

// RegisterType claims the type name for a table, enum or composite.
func (n *Namer) RegisterType(identifier string) string {
	return n.claim(n.types, "type", n.ToGraphQLTypeName(identifier), identifier)
}

// ReserveField claims fieldName on typeName ahead of the columns, so a
// column of the same name is suffixed instead.
func (n *Namer) ReserveField(typeName, fieldName string) {
	n.typeFields(typeName).claim(fieldName, "reserved")
}

// RegisterColumnField claims the field for a column or composite attribute.
func (n *Namer) RegisterColumnField(typeName, column string) string {
	return n.claim(n.typeFields(typeName), typeName, toCamelCase(column), "column:"+column)
}

// RegisterRelationshipField claims a relationship field. When a column
// already owns the name, many-to-one fields become "<name>Ref" and
// one-to-many fields "<name>Rel".
func (n *Namer) RegisterRelationshipField(typeName, fieldName, source string, isManyToOne bool) string {
	ns := n.typeFields(typeName)
	if _, taken := ns[fieldName]; taken {
		if isManyToOne {
			fieldName += "Ref"
		} else {
			fieldName += "Rel"
		}
	}
	return n.claim(ns, typeName, fieldName, "relationship:"+source)
}

// RegisterManyToManyField claims a many-to-many field, qualifying it with
// "Via<Junction>" when the plain name is taken.
func (n *Namer) RegisterManyToManyField(typeName, fieldName, junctionTable string) string {
	ns := n.typeFields(typeName)
	if _, taken := ns[fieldName]; taken {
		fieldName += "Via" + toPascalCase(junctionTable)
	}
	return n.claim(ns, typeName, fieldName, "junction:"+junctionTable)
}

// RegisterQueryField claims a root field for a table row lookup or a
// function. Query and mutation roots share one namespace.
func (n *Namer) RegisterQueryField(identifier string) string {
	return n.claim(n.roots, "root", toCamelCase(identifier), identifier)
}

// RegisterListQueryField claims the connection root field of a table,
// "all" followed by the plural type name ("accounts" becomes "allAccounts").
func (n *Namer) RegisterListQueryField(table string) string {
	plural := n.Pluralize(n.Singularize(table))
	return n.claim(n.roots, "root", "all"+toPascalCase(plural), table)
}
