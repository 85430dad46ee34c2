package sqlutil

import (
	"fmt"
	"regexp"
	"strings"
)

var identRe = regexp.MustCompile(`^[A-Za-z0-9_\.]+$`)

// QuoteIdent validates and quotes an SQL identifier (optionally schema-qualified)
// according to the target driver. It supports dot-separated identifiers like schema.table.
// Drivers: pgx/postgres -> "name", mysql/mariadb/sqlite -> `name`.
func QuoteIdent(driver, name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("empty identifier")
	}
	if !identRe.MatchString(name) {
		return "", fmt.Errorf("invalid identifier: %s", name)
	}
	parts := strings.Split(name, ".")
	for i, p := range parts {
		if p == "" {
			return "", fmt.Errorf("invalid identifier: %s", name)
		}
		switch driver {
		case "mysql", "mariadb", "sqlite":
			parts[i] = "`" + p + "`"
		default:
			parts[i] = `"` + p + `"`
		}
	}
	return strings.Join(parts, "."), nil
}

// Placeholder returns a placeholder suitable for the driver and 1-based index.
func Placeholder(driver string, index int) string {
	switch driver {
	case "pgx", "postgres":
		return fmt.Sprintf("$%d", index)
	default:
		return "?"
	}
}

// Placeholders returns n comma-separated placeholders starting at index 1.
func Placeholders(driver string, n int) string {
	ph := make([]string, n)
	for i := range ph {
		ph[i] = Placeholder(driver, i+1)
	}
	return strings.Join(ph, ", ")
}
