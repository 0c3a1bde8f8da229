package db

import (
	"fmt"
	"strings"
)

// SearchQuery accumulates a parameterized WHERE clause for a single table and
// renders matching count and page queries.
type SearchQuery struct {
	table   string
	cols    string
	where   []string
	args    []interface{}
	orderBy string
}

// NewSearchQuery creates a SearchQuery selecting cols from table.
func NewSearchQuery(table, cols string) *SearchQuery {
	return &SearchQuery{table: table, cols: cols}
}

func (q *SearchQuery) next() int { return len(q.args) + 1 }

// Where appends a raw clause. Placeholders are written as "?" and numbered
// in order as the clause is added.
func (q *SearchQuery) Where(clause string, args ...interface{}) *SearchQuery {
	for range args {
		clause = strings.Replace(clause, "?", fmt.Sprintf("$%d", q.next()), 1)
		q.args = append(q.args, nil)
	}
	copy(q.args[len(q.args)-len(args):], args)
	q.where = append(q.where, clause)
	return q
}

// Equal adds column = value, skipping empty values.
func (q *SearchQuery) Equal(column, value string) *SearchQuery {
	if value == "" {
		return q
	}
	return q.Where(column+" = ?", value)
}

// In adds column = ANY(values), skipping an empty set.
func (q *SearchQuery) In(column string, values []string) *SearchQuery {
	if len(values) == 0 {
		return q
	}
	return q.Where(column+" = ANY(?)", values)
}

// Prefix adds an anchored LIKE match. The value is escaped so only the
// trailing wildcard is significant, which keeps it index-friendly.
func (q *SearchQuery) Prefix(column, value string) *SearchQuery {
	if value == "" {
		return q
	}
	return q.Where(column+` LIKE ? ESCAPE '\'`, EscapeLike(value)+"%")
}

// Range adds inclusive lower and upper bounds, each skipped when empty.
func (q *SearchQuery) Range(column, from, to string) *SearchQuery {
	if from != "" {
		q.Where(column+" >= ?", from)
	}
	if to != "" {
		q.Where(column+" <= ?", to)
	}
	return q
}

// OrderBy sets the ORDER BY clause (without the keyword).
func (q *SearchQuery) OrderBy(orderBy string) *SearchQuery {
	q.orderBy = orderBy
	return q
}

func (q *SearchQuery) whereSQL() string {
	if len(q.where) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(q.where, " AND ")
}

// CountSQL returns the count query and its arguments.
func (q *SearchQuery) CountSQL() (string, []interface{}) {
	return fmt.Sprintf("SELECT COUNT(*) FROM %s%s", q.table, q.whereSQL()), q.args
}

// DataSQL returns the page query with ORDER BY, LIMIT and OFFSET.
func (q *SearchQuery) DataSQL(limit, offset int) (string, []interface{}) {
	sql := fmt.Sprintf("SELECT %s FROM %s%s", q.cols, q.table, q.whereSQL())
	if q.orderBy != "" {
		sql += " ORDER BY " + q.orderBy
	}
	n := q.next()
	sql += fmt.Sprintf(" LIMIT $%d OFFSET $%d", n, n+1)

	args := make([]interface{}, len(q.args), len(q.args)+2)
	copy(args, q.args)
	return sql, append(args, limit, offset)
}

// FirstSQL returns a single-row query without LIMIT pagination arguments.
func (q *SearchQuery) FirstSQL() (string, []interface{}) {
	sql := fmt.Sprintf("SELECT %s FROM %s%s", q.cols, q.table, q.whereSQL())
	if q.orderBy != "" {
		sql += " ORDER BY " + q.orderBy
	}
	return sql + " LIMIT 1", q.args
}

// AllSQL returns the unpaged query with ORDER BY.
func (q *SearchQuery) AllSQL() (string, []interface{}) {
	sql := fmt.Sprintf("SELECT %s FROM %s%s", q.cols, q.table, q.whereSQL())
	if q.orderBy != "" {
		sql += " ORDER BY " + q.orderBy
	}
	return sql, q.args
}

// EscapeLike escapes LIKE metacharacters in user input.
func EscapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
