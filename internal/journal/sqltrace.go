package journal

import (
	"context"
	"database/sql/driver"
	"fmt"
	"log/slog"

	sqlite3 "github.com/mattn/go-sqlite3"
)

// traceConnector opens sqlite3 connections that log every statement and
// its arguments at debug level.
type traceConnector struct {
	dsn    string
	logger *slog.Logger
}

type traceConn struct {
	conn   driver.Conn
	logger *slog.Logger
}

type traceStmt struct {
	stmt   driver.Stmt
	query  string
	logger *slog.Logger
}

func newTraceConnector(dsn string, logger *slog.Logger) driver.Connector {
	if logger == nil {
		logger = slog.Default()
	}
	return &traceConnector{dsn: dsn, logger: logger}
}

func (c *traceConnector) Connect(_ context.Context) (driver.Conn, error) {
	conn, err := (&sqlite3.SQLiteDriver{}).Open(c.dsn)
	if err != nil {
		return nil, err
	}
	return &traceConn{conn: conn, logger: c.logger}, nil
}

func (c *traceConnector) Driver() driver.Driver {
	return traceDriver{}
}

// traceDriver only exists to satisfy driver.Connector; connections are
// opened through sql.OpenDB.
type traceDriver struct{}

func (traceDriver) Open(string) (driver.Conn, error) {
	return nil, fmt.Errorf("journal: open through sql.OpenDB")
}

func (c *traceConn) Prepare(query string) (driver.Stmt, error) {
	return c.PrepareContext(context.Background(), query)
}

func (c *traceConn) PrepareContext(ctx context.Context, query string) (driver.Stmt, error) {
	var (
		stmt driver.Stmt
		err  error
	)
	if prep, ok := c.conn.(driver.ConnPrepareContext); ok {
		stmt, err = prep.PrepareContext(ctx, query)
	} else {
		stmt, err = c.conn.Prepare(query)
	}
	if err != nil {
		return nil, err
	}
	return &traceStmt{stmt: stmt, query: query, logger: c.logger}, nil
}

// ExecContext runs unprepared statements directly so multi-statement
// migration scripts execute in full.
func (c *traceConn) ExecContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	execer, ok := c.conn.(driver.ExecerContext)
	if !ok {
		return nil, driver.ErrSkip
	}
	logStatement(c.logger, "exec", query, args)
	return execer.ExecContext(ctx, query, args)
}

func (c *traceConn) Close() error {
	return c.conn.Close()
}

func (c *traceConn) Begin() (driver.Tx, error) {
	return c.BeginTx(context.Background(), driver.TxOptions{})
}

func (c *traceConn) BeginTx(ctx context.Context, opts driver.TxOptions) (driver.Tx, error) {
	if beginTx, ok := c.conn.(driver.ConnBeginTx); ok {
		return beginTx.BeginTx(ctx, opts)
	}
	//nolint:staticcheck // SA1019 fallback when the conn lacks BeginTx
	return c.conn.Begin()
}

func (s *traceStmt) Exec(args []driver.Value) (driver.Result, error) {
	return s.ExecContext(context.Background(), valuesToNamed(args))
}

func (s *traceStmt) ExecContext(ctx context.Context, args []driver.NamedValue) (driver.Result, error) {
	logStatement(s.logger, "exec", s.query, args)
	if execCtx, ok := s.stmt.(driver.StmtExecContext); ok {
		return execCtx.ExecContext(ctx, args)
	}
	//nolint:staticcheck // SA1019 fallback when the stmt lacks ExecContext
	return s.stmt.Exec(namedToValues(args))
}

func (s *traceStmt) Query(args []driver.Value) (driver.Rows, error) {
	return s.QueryContext(context.Background(), valuesToNamed(args))
}

func (s *traceStmt) QueryContext(ctx context.Context, args []driver.NamedValue) (driver.Rows, error) {
	logStatement(s.logger, "query", s.query, args)
	if queryCtx, ok := s.stmt.(driver.StmtQueryContext); ok {
		return queryCtx.QueryContext(ctx, args)
	}
	//nolint:staticcheck // SA1019 fallback when the stmt lacks QueryContext
	return s.stmt.Query(namedToValues(args))
}

func (s *traceStmt) Close() error {
	return s.stmt.Close()
}

func (s *traceStmt) NumInput() int {
	return s.stmt.NumInput()
}

func logStatement(logger *slog.Logger, op, query string, args []driver.NamedValue) {
	if !logger.Enabled(context.Background(), slog.LevelDebug) {
		return
	}
	formatted := make([]string, len(args))
	for i, a := range args {
		formatted[i] = formatArg(a.Value)
		if a.Name != "" {
			formatted[i] = a.Name + "=" + formatted[i]
		}
	}
	logger.Debug("journal: sql", "op", op, "sql", query, "args", formatted)
}

func valuesToNamed(args []driver.Value) []driver.NamedValue {
	out := make([]driver.NamedValue, len(args))
	for i, v := range args {
		out[i] = driver.NamedValue{Ordinal: i + 1, Value: v}
	}
	return out
}

func namedToValues(args []driver.NamedValue) []driver.Value {
	out := make([]driver.Value, len(args))
	for i := range args {
		out[i] = args[i].Value
	}
	return out
}

func formatArg(v driver.Value) string {
	if v == nil {
		return "NULL"
	}
	switch t := v.(type) {
	case []byte:
		return string(t)
	default:
		return fmt.Sprint(t)
	}
}
