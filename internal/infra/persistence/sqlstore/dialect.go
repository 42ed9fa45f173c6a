package sqlstore

import (
	"strconv"
	"strings"

	"github.com/pressly/goose/v3"
)

// Dialect captures the differences between the supported SQL engines.
type Dialect struct {
	// Name is used for logging and error messages.
	Name string
	// Migrations is the directory under the embedded migrations tree.
	Migrations string
	goose      goose.Dialect
	numbered   bool
}

var (
	// SQLite targets modernc.org/sqlite.
	SQLite = Dialect{Name: "sqlite", Migrations: "migrations/sqlite", goose: goose.DialectSQLite3}
	// Postgres targets the pgx database/sql driver.
	Postgres = Dialect{Name: "postgres", Migrations: "migrations/postgres", goose: goose.DialectPostgres, numbered: true}
)

// Rebind rewrites '?' placeholders into the dialect's bind syntax.
func (d Dialect) Rebind(query string) string {
	if !d.numbered || !strings.Contains(query, "?") {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
