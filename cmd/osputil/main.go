// osputil builds SQL statements and writes or extracts zip archives.
//
//	osputil select -table users -columns id,name -where "age > 18" -order name -limit 10
//	osputil insert -table users -set name="'john'" -set age=30 -exec
//	osputil zip -level best backup.zip notes.txt todo.txt
//	osputil unzip backup.zip ./out
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/osputil/osputil"
	"github.com/osputil/osputil/config"
	vsql "github.com/osputil/osputil/dialect/sql"
	"github.com/osputil/osputil/internal/metrics"
	"github.com/osputil/osputil/zipper"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

const usage = `usage: osputil [-config file] [-env file] [-metrics] <command> [flags] [args]

commands:
  select   build (and run) a SELECT statement
  insert   build (and run) an INSERT statement
  update   build (and run) an UPDATE statement
  delete   build (and run) a DELETE statement
  zip      add files to a zip archive
  unzip    extract a zip archive
  ls       list the entries of a zip archive
`

// app carries the state shared by every command.
type app struct {
	cfg     config.Config
	log     *slog.Logger
	metrics *metrics.Recorder
	stdout  io.Writer
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("osputil", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() { fmt.Fprint(stderr, usage) }
	var (
		cfgPath     = fs.String("config", "", "path to YAML configuration file")
		envPath     = fs.String("env", ".env", "path to .env file with OSPUTIL_* variables")
		showMetrics = fs.Bool("metrics", false, "write collected metrics to stderr after the command")
	)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return 2
	}
	a, err := setup(*cfgPath, *envPath, stdout, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "osputil: %v\n", err)
		return 1
	}
	cmd, rest := fs.Arg(0), fs.Args()[1:]
	switch cmd {
	case vsql.KindSelect, vsql.KindInsert, vsql.KindUpdate, vsql.KindDelete:
		err = a.statement(ctx, cmd, rest, stderr)
	case "zip":
		err = a.zip(ctx, rest, stderr)
	case "unzip":
		err = a.unzip(ctx, rest, stderr)
	case "ls":
		err = a.list(rest)
	default:
		fmt.Fprintf(stderr, "osputil: unknown command %q\n", cmd)
		fs.Usage()
		return 2
	}
	if *showMetrics {
		if werr := a.metrics.WriteText(stderr); werr != nil {
			a.log.Warn("write metrics", "error", werr)
		}
	}
	switch {
	case err == nil:
		return 0
	case errors.Is(err, flag.ErrHelp):
		return 0
	case errors.Is(err, errUsage):
		fmt.Fprintf(stderr, "osputil %s: %v\n", cmd, err)
		return 2
	default:
		a.log.Error("command failed", "command", cmd, "error", err)
		return 1
	}
}

var errUsage = errors.New("invalid usage")

// parse parses subcommand flags, reporting bad flags as usage errors.
func parse(fs *flag.FlagSet, args []string) error {
	err := fs.Parse(args)
	if err == nil || errors.Is(err, flag.ErrHelp) {
		return err
	}
	return fmt.Errorf("%w: %v", errUsage, err)
}

func setup(cfgPath, envPath string, stdout, stderr io.Writer) (*app, error) {
	if err := config.LoadEnvFile(envPath); err != nil {
		return nil, err
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger, err := cfg.Logger(stderr)
	if err != nil {
		return nil, err
	}
	return &app{cfg: cfg, log: logger, metrics: metrics.New(), stdout: stdout}, nil
}

// assignments collects repeated -set col=value flags.
type assignments vsql.Assignments

func (a assignments) String() string { return fmt.Sprint(map[string]string(a)) }

func (a assignments) Set(s string) error {
	col, val, ok := strings.Cut(s, "=")
	if !ok || strings.TrimSpace(col) == "" {
		return fmt.Errorf("expected column=value, got %q", s)
	}
	a[strings.TrimSpace(col)] = val
	return nil
}

func (a *app) statement(ctx context.Context, kind string, args []string, stderr io.Writer) error {
	fs := flag.NewFlagSet(kind, flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		table   = fs.String("table", "", "table name")
		columns = fs.String("columns", "", "comma separated columns (select)")
		where   = fs.String("where", "", "predicate")
		order   = fs.String("order", "", "ORDER BY clause (select)")
		limit   = fs.String("limit", "", "LIMIT clause, requires -order (select)")
		group   = fs.String("group", "", "GROUP BY clause (select)")
		having  = fs.String("having", "", "HAVING clause, requires -group (select)")
		exec    = fs.Bool("exec", false, "run the statement against sql.dsn")
		values  = assignments{}
	)
	fs.Var(values, "set", "column=value assignment (insert, update; repeatable)")
	if err := parse(fs, args); err != nil {
		return err
	}
	b := vsql.NewStatementBuilder(vsql.WithLogger(a.log), vsql.WithMetrics(a.metrics))
	var stmt string
	switch kind {
	case vsql.KindSelect:
		opts := vsql.SelectOptions{Where: *where, OrderBy: *order, Limit: *limit, GroupBy: *group, Having: *having}
		if *columns != "" {
			opts.Columns = strings.Split(*columns, ",")
			for i := range opts.Columns {
				opts.Columns[i] = strings.TrimSpace(opts.Columns[i])
			}
		}
		stmt = b.CreateSelectStatement(*table, opts)
	case vsql.KindInsert:
		stmt = b.CreateInsertStatement(*table, vsql.Assignments(values))
	case vsql.KindUpdate:
		stmt = b.CreateUpdateStatement(*table, vsql.Assignments(values), *where)
	case vsql.KindDelete:
		stmt = b.CreateDeleteStatement(*table, *where)
	}
	if err := b.LastResult(); err != nil {
		return err
	}
	fmt.Fprintln(a.stdout, stmt)
	if !*exec {
		return nil
	}
	return a.execute(ctx, kind, stmt)
}

func (a *app) execute(ctx context.Context, kind, stmt string) error {
	if a.cfg.SQL.DSN == "" {
		return fmt.Errorf("%w: -exec requires sql.dsn", errUsage)
	}
	drv, err := vsql.Open(a.cfg.SQL.Dialect, a.cfg.SQL.DSN)
	if err != nil {
		return err
	}
	defer drv.Close()
	sd := vsql.NewStatsDriver(drv,
		vsql.WithSlowThreshold(a.cfg.SQL.SlowThreshold),
		vsql.WithSlowQueryLog(a.log),
	)
	defer func() { a.log.Debug("statement stats", "stats", sd.QueryStats().Stats().String()) }()
	if kind != vsql.KindSelect {
		res, err := sd.ExecStatement(ctx, stmt)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err == nil {
			fmt.Fprintf(a.stdout, "%d row(s) affected\n", n)
		}
		return nil
	}
	rows, err := sd.QueryStatement(ctx, stmt)
	if err != nil {
		return err
	}
	defer rows.Close()
	return printRows(a.stdout, rows)
}

func printRows(w io.Writer, rows *vsql.Rows) error {
	cols, err := rows.Columns()
	if err != nil {
		return osputil.NewError("query", "", osputil.ErrSystem, err)
	}
	fmt.Fprintln(w, strings.Join(cols, "\t"))
	vals := make([]sql.NullString, len(cols))
	dest := make([]any, len(cols))
	for i := range vals {
		dest[i] = &vals[i]
	}
	for rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return osputil.NewError("query", "", osputil.ErrSystem, err)
		}
		out := make([]string, len(vals))
		for i, v := range vals {
			if v.Valid {
				out[i] = v.String
			} else {
				out[i] = "NULL"
			}
		}
		fmt.Fprintln(w, strings.Join(out, "\t"))
	}
	if err := rows.Err(); err != nil {
		return osputil.NewError("query", "", osputil.ErrSystem, err)
	}
	return nil
}

func (a *app) zipOptions() ([]zipper.Option, zipper.Level, error) {
	opts, level, err := a.cfg.ZipOptions()
	if err != nil {
		return nil, 0, err
	}
	return append(opts, zipper.WithLogger(a.log), zipper.WithMetrics(a.metrics)), level, nil
}

func (a *app) zip(ctx context.Context, args []string, stderr io.Writer) error {
	opts, defaultLevel, err := a.zipOptions()
	if err != nil {
		return err
	}
	fs := flag.NewFlagSet("zip", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		keepPath  = fs.Bool("keep-path", false, "store the full source path instead of the base name")
		levelName = fs.String("level", defaultLevel.String(), "compression level: none, speed, default, best or 0-9")
		overwrite = fs.Bool("overwrite", a.cfg.Zip.Overwrite, "replace entries that already exist")
	)
	if err := parse(fs, args); err != nil {
		return err
	}
	if fs.NArg() < 2 {
		return fmt.Errorf("%w: zip [flags] <archive> <file>...", errUsage)
	}
	level, err := zipper.ParseLevel(*levelName)
	if err != nil {
		return err
	}
	z, err := zipper.Open(fs.Arg(0), opts...)
	if err != nil {
		return err
	}
	defer z.Close()
	z.SetOverwriteFlag(*overwrite)
	if err := z.AddAll(ctx, fs.Args()[1:], !*keepPath, level); err != nil {
		return err
	}
	a.log.Info("archive updated", "archive", z.Path(), "files", fs.NArg()-1)
	return nil
}

func (a *app) unzip(ctx context.Context, args []string, stderr io.Writer) error {
	opts, _, err := a.zipOptions()
	if err != nil {
		return err
	}
	fs := flag.NewFlagSet("unzip", flag.ContinueOnError)
	fs.SetOutput(stderr)
	if err := parse(fs, args); err != nil {
		return err
	}
	if fs.NArg() < 2 || fs.NArg() > 3 {
		return fmt.Errorf("%w: unzip <archive> <dir> [entry]", errUsage)
	}
	u, err := zipper.OpenReader(fs.Arg(0), opts...)
	if err != nil {
		return err
	}
	defer u.Close()
	if fs.NArg() == 3 {
		return u.UnzipEntryTo(ctx, fs.Arg(1), fs.Arg(2))
	}
	return u.UnzipTo(ctx, fs.Arg(1))
}

func (a *app) list(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: ls <archive>", errUsage)
	}
	opts, _, err := a.zipOptions()
	if err != nil {
		return err
	}
	u, err := zipper.OpenReader(args[0], opts...)
	if err != nil {
		return err
	}
	defer u.Close()
	for _, e := range u.Entries() {
		fmt.Fprintf(a.stdout, "%10d %10d  %s\n", e.UncompressedSize, e.CompressedSize, e.Name)
	}
	fmt.Fprintf(a.stdout, "%d entries (%d files, %d directories)\n", u.EntryCount(), u.FileCount(), u.DirectoryCount())
	return nil
}
