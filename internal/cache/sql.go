package cache

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"regexp"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"

	"fraudocr/pkg/models"
)

// Dialect holds the SQL that differs between Postgres and MySQL.
type Dialect struct {
	Name       string
	DriverName string

	lookup    string
	list      string
	upsert    string
	selectVer string // empty when upsert returns the stored columns
	del       string
	delAll    string
	schema    string
}

const recordColumns = "filename, formatted_json, original_ocr_data, total_pages, keywords, key_metrics, formatted, version, created_at, cached_at"

// Postgres targets Supabase or any Postgres 12+.
var Postgres = Dialect{
	Name:       "postgres",
	DriverName: "postgres",
	lookup:     `SELECT ` + recordColumns + ` FROM %[1]s WHERE filename = $1 ORDER BY cached_at DESC LIMIT 1`,
	list:       `SELECT ` + recordColumns + ` FROM %[1]s ORDER BY cached_at DESC, filename`,
	upsert: `
INSERT INTO %[1]s AS t
  (filename, formatted_json, original_ocr_data, total_pages, keywords, key_metrics, formatted, version, created_at, cached_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, 1, $8, $8)
ON CONFLICT (filename) DO UPDATE SET
  formatted_json = EXCLUDED.formatted_json,
  original_ocr_data = EXCLUDED.original_ocr_data,
  total_pages = EXCLUDED.total_pages,
  keywords = EXCLUDED.keywords,
  key_metrics = EXCLUDED.key_metrics,
  formatted = EXCLUDED.formatted,
  version = t.version + 1,
  cached_at = EXCLUDED.cached_at
RETURNING version, created_at, cached_at`,
	del:    `DELETE FROM %[1]s WHERE filename = $1`,
	delAll: `DELETE FROM %[1]s`,
	schema: `
CREATE TABLE IF NOT EXISTS %[1]s (
  id BIGSERIAL PRIMARY KEY,
  filename TEXT NOT NULL UNIQUE,
  formatted_json TEXT,
  original_ocr_data JSONB,
  total_pages INTEGER NOT NULL DEFAULT 0,
  keywords JSONB,
  key_metrics JSONB,
  formatted BOOLEAN NOT NULL DEFAULT FALSE,
  version BIGINT NOT NULL DEFAULT 1,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  cached_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`,
}

// MySQL targets MySQL 8 / MariaDB 10.5+.
var MySQL = Dialect{
	Name:       "mysql",
	DriverName: "mysql",
	lookup:     `SELECT ` + recordColumns + ` FROM %[1]s WHERE filename = ? ORDER BY cached_at DESC LIMIT 1`,
	list:       `SELECT ` + recordColumns + ` FROM %[1]s ORDER BY cached_at DESC, filename`,
	upsert: `
INSERT INTO %[1]s
  (filename, formatted_json, original_ocr_data, total_pages, keywords, key_metrics, formatted, version, created_at, cached_at)
VALUES (?, ?, ?, ?, ?, ?, ?, 1, ?, ?)
ON DUPLICATE KEY UPDATE
  formatted_json = VALUES(formatted_json),
  original_ocr_data = VALUES(original_ocr_data),
  total_pages = VALUES(total_pages),
  keywords = VALUES(keywords),
  key_metrics = VALUES(key_metrics),
  formatted = VALUES(formatted),
  version = version + 1,
  cached_at = VALUES(cached_at)`,
	selectVer: `SELECT version, created_at, cached_at FROM %[1]s WHERE filename = ?`,
	del:       `DELETE FROM %[1]s WHERE filename = ?`,
	delAll:    `DELETE FROM %[1]s`,
	schema: `
CREATE TABLE IF NOT EXISTS %[1]s (
  id BIGINT AUTO_INCREMENT PRIMARY KEY,
  filename VARCHAR(512) NOT NULL UNIQUE,
  formatted_json LONGTEXT,
  original_ocr_data JSON,
  total_pages INT NOT NULL DEFAULT 0,
  keywords JSON,
  key_metrics JSON,
  formatted BOOLEAN NOT NULL DEFAULT FALSE,
  version BIGINT NOT NULL DEFAULT 1,
  created_at DATETIME(6) NOT NULL,
  cached_at DATETIME(6) NOT NULL
)`,
}

var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// SQLStore is a Store over database/sql.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
	table   string
	now     func() time.Time
}

// OpenSQL opens a pool for dialect and pings it.
func OpenSQL(ctx context.Context, dialect Dialect, dsn, table string, timeout time.Duration) (*SQLStore, error) {
	const op = "Open"

	if strings.TrimSpace(dsn) == "" {
		return nil, NewStoreError(op, "", ErrConnectivity, fmt.Errorf("empty %s data source name", dialect.Name))
	}
	if dialect.Name == MySQL.Name {
		cfg, err := mysql.ParseDSN(dsn)
		if err != nil {
			return nil, NewStoreError(op, "", ErrConnectivity, fmt.Errorf("parse mysql dsn: %w", err))
		}
		cfg.ParseTime = true
		dsn = cfg.FormatDSN()
	}

	db, err := sql.Open(dialect.DriverName, dsn)
	if err != nil {
		return nil, NewStoreError(op, "", ErrConnectivity, err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, classify(op, "", err)
	}

	return NewSQLStore(db, dialect, table)
}

// NewSQLStore wraps an existing pool.
func NewSQLStore(db *sql.DB, dialect Dialect, table string) (*SQLStore, error) {
	if table == "" {
		table = DefaultTable
	}
	if !tableNamePattern.MatchString(table) {
		return nil, NewStoreError("Open", "", ErrSchema, fmt.Errorf("invalid table name %q", table))
	}
	return &SQLStore{
		db:      db,
		dialect: dialect,
		table:   table,
		now:     func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *SQLStore) q(tmpl string) string {
	return fmt.Sprintf(tmpl, s.table)
}

// CreateSchema creates the records table when it does not exist.
func (s *SQLStore) CreateSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, s.q(s.dialect.schema)); err != nil {
		return classify("CreateSchema", "", err)
	}
	return nil
}

func (s *SQLStore) Lookup(ctx context.Context, filename string) (*models.Record, error) {
	const op = "Lookup"

	row := s.db.QueryRowContext(ctx, s.q(s.dialect.lookup), filename)
	rec, err := scanRecord(row)
	if err != nil {
		return nil, classify(op, filename, err)
	}
	return rec, nil
}

func (s *SQLStore) Save(ctx context.Context, rec *models.Record) error {
	const op = "Save"
	if err := validateRecord(op, rec); err != nil {
		return err
	}
	enc, err := encodeRecord(rec)
	if err != nil {
		return NewStoreError(op, rec.Filename, ErrSchema, err)
	}
	now := s.now()

	var (
		version             int64
		createdAt, cachedAt time.Time
	)
	if s.dialect.selectVer == "" {
		err = s.db.QueryRowContext(ctx, s.q(s.dialect.upsert),
			rec.Filename, enc.formatted, enc.ocr, rec.TotalPages, enc.keywords, enc.keyMetrics, rec.Formatted, now,
		).Scan(&version, &createdAt, &cachedAt)
		if err != nil {
			return classify(op, rec.Filename, err)
		}
	} else {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return classify(op, rec.Filename, err)
		}
		defer func() { _ = tx.Rollback() }()

		if _, err := tx.ExecContext(ctx, s.q(s.dialect.upsert),
			rec.Filename, enc.formatted, enc.ocr, rec.TotalPages, enc.keywords, enc.keyMetrics, rec.Formatted, now, now,
		); err != nil {
			return classify(op, rec.Filename, err)
		}
		if err := tx.QueryRowContext(ctx, s.q(s.dialect.selectVer), rec.Filename).
			Scan(&version, &createdAt, &cachedAt); err != nil {
			return classify(op, rec.Filename, err)
		}
		if err := tx.Commit(); err != nil {
			return classify(op, rec.Filename, err)
		}
	}

	rec.Version = version
	rec.CreatedAt = createdAt
	rec.CachedAt = cachedAt
	return nil
}

func (s *SQLStore) Delete(ctx context.Context, filename string) error {
	const op = "Delete"

	res, err := s.db.ExecContext(ctx, s.q(s.dialect.del), filename)
	if err != nil {
		return classify(op, filename, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return classify(op, filename, err)
	}
	if n == 0 {
		return notFound(op, filename)
	}
	return nil
}

func (s *SQLStore) DeleteAll(ctx context.Context) (int64, error) {
	const op = "DeleteAll"

	res, err := s.db.ExecContext(ctx, s.q(s.dialect.delAll))
	if err != nil {
		return 0, classify(op, "", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, classify(op, "", err)
	}
	return n, nil
}

func (s *SQLStore) List(ctx context.Context) ([]*models.Record, error) {
	const op = "List"

	rows, err := s.db.QueryContext(ctx, s.q(s.dialect.list))
	if err != nil {
		return nil, classify(op, "", err)
	}
	defer rows.Close()

	var out []*models.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, classify(op, "", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(op, "", err)
	}
	return out, nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*models.Record, error) {
	var (
		rec                      models.Record
		formatted                sql.NullString
		ocr, keywords, keyMetric []byte
		totalPages               sql.NullInt64
		isFormatted              sql.NullBool
		createdAt, cachedAt      sql.NullTime
	)
	if err := row.Scan(&rec.Filename, &formatted, &ocr, &totalPages, &keywords, &keyMetric,
		&isFormatted, &rec.Version, &createdAt, &cachedAt); err != nil {
		return nil, err
	}
	if formatted.Valid {
		rec.FormattedJSON = []byte(formatted.String)
	}
	rec.TotalPages = int(totalPages.Int64)
	rec.Formatted = isFormatted.Bool
	rec.CreatedAt = createdAt.Time
	rec.CachedAt = cachedAt.Time
	if err := decodeColumns(&rec, ocr, keywords, keyMetric); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSchema, err)
	}
	return &rec, nil
}

// classify maps driver errors onto the package failure classes.
func classify(op, filename string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if errors.Is(err, sql.ErrNoRows) {
		return notFound(op, filename)
	}
	if errors.Is(err, ErrSchema) {
		return NewStoreError(op, filename, ErrSchema, err)
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		code := string(pqErr.Code)
		switch {
		case strings.HasPrefix(code, "08"):
			return NewStoreError(op, filename, ErrConnectivity, err)
		case code == "42501":
			se := NewStoreError(op, filename, ErrAuthorization, err)
			se.Details = "row-level security rejected the call; use a service role connection"
			return se
		case strings.HasPrefix(code, "28"):
			return NewStoreError(op, filename, ErrAuthorization, err)
		case code == "42P01" || code == "42703":
			se := NewStoreError(op, filename, ErrSchema, err)
			se.Details = "run `fraudocr cache init` to create the table"
			return se
		}
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		switch myErr.Number {
		case 1044, 1045, 1142, 1143:
			return NewStoreError(op, filename, ErrAuthorization, err)
		case 1146, 1054:
			se := NewStoreError(op, filename, ErrSchema, err)
			se.Details = "run `fraudocr cache init` to create the table"
			return se
		}
	}

	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, mysql.ErrInvalidConn) || errors.Is(err, sql.ErrConnDone) {
		return NewStoreError(op, filename, ErrConnectivity, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return NewStoreError(op, filename, ErrConnectivity, err)
	}
	return NewStoreError(op, filename, nil, err)
}
