// Package dialect names the SQL dialects osputil statements can be executed
// against and defines the driver interfaces used to run them.
//
// # Supported Dialects
//
//	dialect.Postgres = "postgres"
//	dialect.MySQL    = "mysql"
//	dialect.SQLite   = "sqlite"
//
// Statements produced by dialect/sql target SQLite syntax. Plain SELECT,
// INSERT, UPDATE and DELETE statements are also accepted by the other two.
//
// # Driver Interface
//
//	type Driver interface {
//	    Exec(ctx context.Context, query string, args, v any) error
//	    Query(ctx context.Context, query string, args, v any) error
//	    Tx(ctx context.Context) (Tx, error)
//	    Close() error
//	    Dialect() string
//	}
//
// # Usage
//
//	drv, err := sql.Open(dialect.SQLite, "file:app.db")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer drv.Close()
//
//	stmt, err := sql.CreateDeleteStatement("sessions", "expired = 1")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	res, err := drv.ExecStatement(ctx, stmt)
package dialect
