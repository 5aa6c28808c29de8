// Package mssql is the Microsoft SQL Server storage backend. It registers
// the go-mssqldb driver and loads rows with parameterized multi-row INSERTs
// inside one transaction.
package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/microsoft/go-mssqldb"

	"trafficstops/internal/storage"
	"trafficstops/internal/table"
)

// Kind is the registry name of this backend.
const Kind = "mssql"

// SQL Server allows 2100 parameters per request and 1000 rows per VALUES
// list.
const (
	maxParams = 2000
	maxRows   = 1000
)

func init() {
	storage.Register(Kind, NewRepo)
}

// Repo implements storage.Repository for SQL Server.
type Repo struct {
	db dbConn
	tx txConn
}

// NewRepo opens cfg.DSN with the "sqlserver" driver and pings it.
func NewRepo(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	raw, err := sql.Open("sqlserver", cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := raw.PingContext(ctx); err != nil {
		_ = raw.Close()
		return nil, fmt.Errorf("mssql ping: %w", err)
	}
	return &Repo{db: &sqlDB{db: raw}}, nil
}

func (r *Repo) begin(ctx context.Context) (txConn, error) {
	if r.tx != nil {
		return r.tx, nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("mssql: begin: %w", err)
	}
	r.tx = tx
	return tx, nil
}

// EnsureTable creates the table when it does not exist.
func (r *Repo) EnsureTable(ctx context.Context, spec storage.TableSpec) error {
	ddl, err := buildCreateSQL(spec)
	if err != nil {
		return err
	}
	tx, err := r.begin(ctx)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create table %s: %w", spec.Name, err)
	}
	return nil
}

// InsertRows inserts rows in chunks that respect SQL Server's request limits.
func (r *Repo) InsertRows(ctx context.Context, tbl string, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	tx, err := r.begin(ctx)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, chunk := range chunkRows(rows, len(columns)) {
		q, args := buildBulkInsertSQL(tbl, columns, chunk)
		res, err := tx.ExecContext(ctx, q, args...)
		if err != nil {
			return total, fmt.Errorf("insert into %s: %w", tbl, err)
		}
		n, _ := res.RowsAffected()
		total += n
	}
	return total, nil
}

// Commit commits the pending transaction, if any.
func (r *Repo) Commit(ctx context.Context) error {
	if r.tx == nil {
		return nil
	}
	err := r.tx.Commit()
	r.tx = nil
	if err != nil {
		return fmt.Errorf("mssql: commit: %w", err)
	}
	return nil
}

// Close rolls back uncommitted writes and closes the database.
func (r *Repo) Close() {
	if r == nil || r.db == nil {
		return
	}
	if r.tx != nil {
		_ = r.tx.Rollback()
		r.tx = nil
	}
	_ = r.db.Close()
}

// chunkRows splits rows so each chunk stays under maxParams and maxRows.
func chunkRows(rows [][]any, ncols int) [][][]any {
	per := maxRows
	if ncols > 0 && maxParams/ncols < per {
		per = maxParams / ncols
	}
	if per < 1 {
		per = 1
	}
	out := make([][][]any, 0, (len(rows)+per-1)/per)
	for start := 0; start < len(rows); start += per {
		out = append(out, rows[start:min(start+per, len(rows))])
	}
	return out
}

func columnType(k table.Kind) string {
	switch k {
	case table.KindInteger:
		return "BIGINT"
	case table.KindTimestamp:
		return "DATETIME2"
	default:
		return "NVARCHAR(MAX)"
	}
}

// buildCreateSQL wraps CREATE TABLE in an OBJECT_ID guard, since SQL Server
// has no CREATE TABLE IF NOT EXISTS.
func buildCreateSQL(t storage.TableSpec) (string, error) {
	if strings.TrimSpace(t.Name) == "" {
		return "", fmt.Errorf("mssql: table name is empty")
	}
	if len(t.Columns) == 0 {
		return "", fmt.Errorf("mssql: table %s has no columns", t.Name)
	}
	defs := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		if strings.TrimSpace(c.Name) == "" {
			return "", fmt.Errorf("mssql: column name is empty")
		}
		defs[i] = mssqlIdent(c.Name) + " " + columnType(c.Kind) + " NULL"
	}
	return fmt.Sprintf(
		"IF OBJECT_ID(N'%s', N'U') IS NULL BEGIN CREATE TABLE %s (%s); END;",
		strings.ReplaceAll(t.Name, "'", "''"),
		mssqlTableIdent(t.Name),
		strings.Join(defs, ", "),
	), nil
}

// buildBulkInsertSQL builds a single INSERT ... VALUES statement for rows
// with @pN placeholders.
func buildBulkInsertSQL(tbl string, columns []string, rows [][]any) (string, []any) {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(mssqlTableIdent(tbl))
	b.WriteString(" (")
	for i, c := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(mssqlIdent(c))
	}
	b.WriteString(") VALUES ")

	args := make([]any, 0, len(rows)*len(columns))
	p := 1
	for i, row := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(")
		for j := range columns {
			if j > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "@p%d", p)
			args = append(args, row[j])
			p++
		}
		b.WriteString(")")
	}
	return b.String(), args
}

func mssqlIdent(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}

// mssqlTableIdent quotes each part of a schema-qualified name:
// "dbo.stops" -> [dbo].[stops].
func mssqlTableIdent(name string) string {
	parts := strings.Split(name, ".")
	for i := range parts {
		parts[i] = mssqlIdent(strings.TrimSpace(parts[i]))
	}
	return strings.Join(parts, ".")
}

// dbConn and txConn narrow *sql.DB and *sql.Tx so tests can run without a
// server.
type dbConn interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (txConn, error)
	Close() error
}

type txConn interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	Commit() error
	Rollback() error
}

type sqlDB struct {
	db *sql.DB
}

func (s *sqlDB) BeginTx(ctx context.Context, opts *sql.TxOptions) (txConn, error) {
	tx, err := s.db.BeginTx(ctx, opts)
	if err != nil {
		return nil, err
	}
	return tx, nil
}

func (s *sqlDB) Close() error { return s.db.Close() }

var _ storage.Repository = (*Repo)(nil)
