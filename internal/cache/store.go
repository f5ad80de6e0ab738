// Package cache stores analysed documents keyed by filename.
//
// One logical table holds at most one current record per filename; Save
// overwrites the previous record and bumps its version. Backends:
//   - postgres (Supabase or any Postgres, lib/pq)
//   - mysql (go-sql-driver/mysql)
//   - mongo (mongo-driver)
//   - memory (tests and dry runs)
package cache

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	"github.com/rs/zerolog"

	"fraudocr/pkg/models"
)

// DefaultTable is the table (or collection) holding records.
const DefaultTable = "ocr_results"

// Store is the cache adapter used by the pipeline and the CLI.
type Store interface {
	// Lookup returns the current record for filename or ErrNotFound.
	Lookup(ctx context.Context, filename string) (*models.Record, error)

	// Save upserts rec. On success rec.Version, rec.CreatedAt and
	// rec.CachedAt hold the stored values.
	Save(ctx context.Context, rec *models.Record) error

	// Delete removes the record for filename or returns ErrNotFound.
	Delete(ctx context.Context, filename string) error

	// DeleteAll empties the table and returns the number of removed records.
	DeleteAll(ctx context.Context) (int64, error)

	// List returns every record, most recently cached first.
	List(ctx context.Context) ([]*models.Record, error)

	// Close releases the connection.
	Close() error
}

// Config selects and configures a backend.
type Config struct {
	Backend        string // postgres, supabase, mysql, mongo, memory
	DSN            string // SQL data source name
	Table          string
	MongoURI       string
	MongoDatabase  string
	ConnectTimeout time.Duration
}

// Validate checks that the selected backend has a usable connection string.
// It does not connect.
func (c Config) Validate() error {
	const op = "Validate"

	switch strings.ToLower(strings.TrimSpace(c.Backend)) {
	case "memory":
		return nil
	case "postgres", "supabase":
		if c.DSN == "" {
			return NewStoreError(op, "", ErrInvalidConfig, fmt.Errorf("DATABASE_URL is required for the %s backend", c.Backend))
		}
		if strings.HasPrefix(c.DSN, "postgres://") || strings.HasPrefix(c.DSN, "postgresql://") {
			if _, err := pq.ParseURL(c.DSN); err != nil {
				return NewStoreError(op, "", ErrInvalidConfig, fmt.Errorf("invalid DATABASE_URL: %w", err))
			}
		} else if !strings.Contains(c.DSN, "=") {
			return NewStoreError(op, "", ErrInvalidConfig, fmt.Errorf("DATABASE_URL must be a postgres:// URL or key=value string"))
		}
	case "mysql":
		if c.DSN == "" {
			return NewStoreError(op, "", ErrInvalidConfig, fmt.Errorf("MYSQL_DSN is required for the mysql backend"))
		}
		if _, err := mysql.ParseDSN(c.DSN); err != nil {
			return NewStoreError(op, "", ErrInvalidConfig, fmt.Errorf("invalid MYSQL_DSN: %w", err))
		}
	case "mongo", "mongodb":
		if !strings.HasPrefix(c.MongoURI, "mongodb://") && !strings.HasPrefix(c.MongoURI, "mongodb+srv://") {
			return NewStoreError(op, "", ErrInvalidConfig, fmt.Errorf("MONGO_URI must start with mongodb:// or mongodb+srv://"))
		}
	default:
		return NewStoreError(op, "", ErrUnsupportedBackend, fmt.Errorf("%w: %q", ErrUnsupportedBackend, c.Backend))
	}
	return nil
}

// Open connects to the configured backend and verifies the connection.
func Open(ctx context.Context, cfg Config, log zerolog.Logger) (Store, error) {
	const op = "Open"

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Table == "" {
		cfg.Table = DefaultTable
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}

	backend := strings.ToLower(strings.TrimSpace(cfg.Backend))
	log.Debug().
		Str("backend", backend).
		Str("table", cfg.Table).
		Msg("Opening cache store")

	switch backend {
	case "memory":
		return NewMemoryStore(), nil
	case "postgres", "supabase":
		return OpenSQL(ctx, Postgres, cfg.DSN, cfg.Table, cfg.ConnectTimeout)
	case "mysql":
		return OpenSQL(ctx, MySQL, cfg.DSN, cfg.Table, cfg.ConnectTimeout)
	case "mongo", "mongodb":
		return OpenMongo(ctx, cfg.MongoURI, cfg.MongoDatabase, cfg.Table, cfg.ConnectTimeout)
	default:
		return nil, NewStoreError(op, "", ErrUnsupportedBackend, fmt.Errorf("%w: %q", ErrUnsupportedBackend, cfg.Backend))
	}
}

// Latest returns the most recently cached record, or ErrNotFound when the
// table is empty.
func Latest(ctx context.Context, s Store) (*models.Record, error) {
	records, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, notFound("Latest", "")
	}
	return records[0], nil
}

func validateRecord(op string, rec *models.Record) error {
	if rec == nil || strings.TrimSpace(rec.Filename) == "" {
		return NewStoreError(op, "", ErrSchema, fmt.Errorf("record has no filename"))
	}
	return nil
}
