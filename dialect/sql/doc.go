// Package sql builds SQL statement text and runs it against database/sql.
//
// # Statement Construction
//
// Four functions assemble statements from structured inputs:
//
//	sql.CreateSelectStatement("users", sql.SelectOptions{
//	    Columns: []string{"id", "name"},
//	    Where:   "age > 18",
//	    OrderBy: "name",
//	    Limit:   "10",
//	})
//	// SELECT id, name FROM users WHERE age > 18 ORDER BY name LIMIT 10
//
//	sql.CreateInsertStatement("users", sql.Assignments{"name": sql.Quote("john"), "age": "30"})
//	// INSERT INTO users (age, name) VALUES (30, 'john')
//
//	sql.CreateUpdateStatement("users", sql.Assignments{"age": "31"}, "id = 1")
//	// UPDATE users SET age = 31 WHERE id = 1
//
//	sql.CreateDeleteStatement("users", "id = 1")
//	// DELETE FROM users WHERE id = 1
//
// Nothing is quoted or escaped. Predicates and values are emitted as given,
// so string literals must be wrapped with Quote by the caller.
//
// CreateDeleteStatement with an empty predicate deletes every row.
//
// # Last Result
//
// StatementBuilder exposes the same operations returning only the statement
// text. On failure the text is empty and LastResult reports why:
//
//	b := sql.NewStatementBuilder()
//	stmt := b.CreateSelectStatement("users", sql.SelectOptions{Limit: "1"})
//	if err := b.LastResult(); err != nil {
//	    // osputil.IsInvalidArgument(err) == true: limit requires order
//	}
//
// # Execution
//
// Driver wraps a *sql.DB and runs built statements, mapping driver failures
// to osputil error kinds:
//
//	drv, _ := sql.Open(dialect.SQLite, "file:app.db")
//	_, err := drv.ExecStatement(ctx, stmt)
//	if osputil.IsAlreadyExists(err) {
//	    // unique constraint violated
//	}
package sql
