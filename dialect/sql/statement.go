package sql

import (
	"errors"
	"sort"
	"strings"

	"github.com/osputil/osputil"
)

// Statement kinds, used for metrics labels and error operations.
const (
	KindSelect = "select"
	KindInsert = "insert"
	KindUpdate = "update"
	KindDelete = "delete"
)

var (
	errEmptyTable       = errors.New("table name is empty")
	errEmptyColumns     = errors.New("column list is empty")
	errEmptyColumn      = errors.New("column name is empty")
	errEmptyAssignments = errors.New("assignment map is empty")
	errLimitNoOrder     = errors.New("limit requires order")
	errHavingNoGroup    = errors.New("having requires group")
)

// SelectOptions holds the optional parts of a SELECT statement.
// Empty strings mean the clause is not provided. Values are emitted
// verbatim; string literals must be quoted by the caller (see Quote).
type SelectOptions struct {
	// Columns to select. nil selects all columns (*). A non-nil empty
	// slice is an error.
	Columns []string
	Where   string
	OrderBy string
	Limit   string // Requires OrderBy.
	GroupBy string
	Having  string // Requires GroupBy.
}

// Assignments maps column names to value expressions for INSERT and UPDATE.
// Values are emitted verbatim.
type Assignments map[string]string

// columns returns the keys of the map in sorted order so that column and
// value lists generated from it stay aligned.
func (a Assignments) columns() []string {
	cols := make([]string, 0, len(a))
	for c := range a {
		cols = append(cols, c)
	}
	sort.Strings(cols)
	return cols
}

// CreateSelectStatement returns a SELECT statement reading from table:
//
//	SELECT <cols> FROM <table> [WHERE w] [GROUP BY g [HAVING h]] [ORDER BY o [LIMIT l]]
//
// It returns an empty string and an ErrInvalidArgument error if table is
// empty, Columns is a non-nil empty slice, Limit is set without OrderBy or
// Having is set without GroupBy.
func CreateSelectStatement(table string, opts SelectOptions) (string, error) {
	if err := checkTable(KindSelect, table); err != nil {
		return "", err
	}
	cols := "*"
	if opts.Columns != nil {
		if len(opts.Columns) == 0 {
			return "", invalid(KindSelect, table, errEmptyColumns)
		}
		for _, c := range opts.Columns {
			if strings.TrimSpace(c) == "" {
				return "", invalid(KindSelect, table, errEmptyColumn)
			}
		}
		cols = strings.Join(opts.Columns, ", ")
	}
	if opts.Limit != "" && opts.OrderBy == "" {
		return "", invalid(KindSelect, table, errLimitNoOrder)
	}
	if opts.Having != "" && opts.GroupBy == "" {
		return "", invalid(KindSelect, table, errHavingNoGroup)
	}
	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(cols)
	b.WriteString(" FROM ")
	b.WriteString(table)
	clause(&b, "WHERE", opts.Where)
	clause(&b, "GROUP BY", opts.GroupBy)
	clause(&b, "HAVING", opts.Having)
	clause(&b, "ORDER BY", opts.OrderBy)
	clause(&b, "LIMIT", opts.Limit)
	return b.String(), nil
}

// CreateInsertStatement returns an INSERT statement adding one row to table:
//
//	INSERT INTO <table> (c1, c2) VALUES (v1, v2)
//
// Columns are emitted in sorted order.
func CreateInsertStatement(table string, values Assignments) (string, error) {
	if err := checkAssignments(KindInsert, table, values); err != nil {
		return "", err
	}
	cols := values.columns()
	vals := make([]string, len(cols))
	for i, c := range cols {
		vals[i] = values[c]
	}
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(table)
	b.WriteString(" (")
	b.WriteString(strings.Join(cols, ", "))
	b.WriteString(") VALUES (")
	b.WriteString(strings.Join(vals, ", "))
	b.WriteString(")")
	return b.String(), nil
}

// CreateUpdateStatement returns an UPDATE statement:
//
//	UPDATE <table> SET c1 = v1, c2 = v2 [WHERE w]
//
// An empty where updates every row.
func CreateUpdateStatement(table string, values Assignments, where string) (string, error) {
	if err := checkAssignments(KindUpdate, table, values); err != nil {
		return "", err
	}
	var b strings.Builder
	b.WriteString("UPDATE ")
	b.WriteString(table)
	b.WriteString(" SET ")
	for i, c := range values.columns() {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(c)
		b.WriteString(" = ")
		b.WriteString(values[c])
	}
	clause(&b, "WHERE", where)
	return b.String(), nil
}

// CreateDeleteStatement returns a DELETE statement:
//
//	DELETE FROM <table> [WHERE w]
//
// An empty where deletes every row of the table.
func CreateDeleteStatement(table string, where string) (string, error) {
	if err := checkTable(KindDelete, table); err != nil {
		return "", err
	}
	var b strings.Builder
	b.WriteString("DELETE FROM ")
	b.WriteString(table)
	clause(&b, "WHERE", where)
	return b.String(), nil
}

// Quote wraps s in single quotes, doubling any embedded quote, so it can be
// used as a string literal in a predicate or assignment value.
func Quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func clause(b *strings.Builder, keyword, body string) {
	if body == "" {
		return
	}
	b.WriteByte(' ')
	b.WriteString(keyword)
	b.WriteByte(' ')
	b.WriteString(body)
}

func checkTable(op, table string) error {
	if strings.TrimSpace(table) == "" {
		return invalid(op, "", errEmptyTable)
	}
	return nil
}

func checkAssignments(op, table string, values Assignments) error {
	if err := checkTable(op, table); err != nil {
		return err
	}
	if len(values) == 0 {
		return invalid(op, table, errEmptyAssignments)
	}
	for c := range values {
		if strings.TrimSpace(c) == "" {
			return invalid(op, table, errEmptyColumn)
		}
	}
	return nil
}

func invalid(op, table string, err error) error {
	return osputil.NewError(op, table, osputil.ErrInvalidArgument, err)
}
