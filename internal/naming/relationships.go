package naming

import "strings"

// foreignKeySuffixes are stripped from a foreign key column to name the row
// it points at.
var foreignKeySuffixes = []string{"_id", "_fk"}

// ManyToOneFieldName names the field that follows a single-column foreign
// key: "author_id" becomes "author".
func (n *Namer) ManyToOneFieldName(fkColumn string) string {
	lower := strings.ToLower(fkColumn)
	for _, suffix := range foreignKeySuffixes {
		if strings.HasSuffix(lower, suffix) && len(fkColumn) > len(suffix) {
			return toCamelCase(fkColumn[:len(fkColumn)-len(suffix)])
		}
	}
	return toCamelCase(fkColumn)
}

// OneToManyFieldName names the reverse of a foreign key on the referenced
// table. When the referencing table has one foreign key to that table the
// name is its plural ("comments"); otherwise the foreign key column leads
// ("authorPosts").
func (n *Namer) OneToManyFieldName(sourceTable, fkColumn string, isOnlyFK bool) string {
	plural := n.Pluralize(toCamelCase(sourceTable))
	if isOnlyFK {
		return plural
	}
	return n.ManyToOneFieldName(fkColumn) + upperFirst(plural)
}

// ManyToManyFieldName is the plural of the far table ("role" becomes "roles").
func (n *Namer) ManyToManyFieldName(targetTable string) string {
	return n.Pluralize(toCamelCase(targetTable))
}

// JunctionFieldName names a many-to-many field reached through junction.
// A junction named only after the two tables it joins ("user_roles") yields
// the far table's plural; any other junction name is used itself.
func (n *Namer) JunctionFieldName(junction, leftTable, rightTable, targetTable string) string {
	if n.namedAfter(junction, leftTable, rightTable) {
		return n.ManyToManyFieldName(targetTable)
	}
	return n.Pluralize(toCamelCase(junction))
}

func (n *Namer) namedAfter(junction string, tables ...string) bool {
	known := map[string]struct{}{}
	for _, table := range tables {
		for _, w := range words(strings.ToLower(table)) {
			known[w] = struct{}{}
			known[n.Singularize(w)] = struct{}{}
			known[n.Pluralize(w)] = struct{}{}
		}
	}
	parts := words(strings.ToLower(junction))
	if len(parts) == 0 {
		return false
	}
	for _, w := range parts {
		if _, ok := known[w]; !ok {
			return false
		}
	}
	return true
}
