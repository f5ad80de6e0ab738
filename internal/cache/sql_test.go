package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
)

var columns = []string{"filename", "formatted_json", "original_ocr_data", "total_pages", "keywords",
	"key_metrics", "formatted", "version", "created_at", "cached_at"}

func newMockStore(t *testing.T, dialect Dialect) (*SQLStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	store, err := NewSQLStore(db, dialect, "")
	if err != nil {
		t.Fatalf("NewSQLStore: %v", err)
	}
	return store, mock
}

func TestSQLStoreLookup(t *testing.T) {
	store, mock := newMockStore(t, Postgres)
	created := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT .* FROM ocr_results WHERE filename = \$1`).
		WithArgs("2023_IC3Report.pdf").
		WillReturnRows(sqlmock.NewRows(columns).AddRow(
			"2023_IC3Report.pdf",
			`{"Phishing/Spoofing":23252}`,
			[]byte(`{"filename":"2023_IC3Report.pdf","total_pages":1,"results":[{"page":1,"text":"x","status":"success"}]}`),
			int64(1),
			[]byte(`["Phishing/Spoofing"]`),
			[]byte(`{"document_type":"fraud report","year":2023}`),
			true,
			int64(3),
			created,
			created.Add(time.Hour),
		))

	rec, err := store.Lookup(context.Background(), "2023_IC3Report.pdf")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if rec.Version != 3 || !rec.Formatted || rec.OCR == nil || rec.OCR.Results[0].Text != "x" {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if rec.KeyMetrics == nil || rec.KeyMetrics.Year != 2023 || rec.Keywords[0] != "Phishing/Spoofing" {
		t.Fatalf("unexpected derived columns: %+v %v", rec.KeyMetrics, rec.Keywords)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestSQLStoreLookupMiss(t *testing.T) {
	store, mock := newMockStore(t, Postgres)
	mock.ExpectQuery(`SELECT .* FROM ocr_results`).WithArgs("missing.pdf").
		WillReturnRows(sqlmock.NewRows(columns))

	if _, err := store.Lookup(context.Background(), "missing.pdf"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestSQLStoreSavePostgres(t *testing.T) {
	store, mock := newMockStore(t, Postgres)
	created := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	cached := created.Add(2 * time.Hour)

	mock.ExpectQuery(`INSERT INTO ocr_results AS t`).
		WithArgs("a.pdf", `{"Phishing/Spoofing":23252}`, sqlmock.AnyArg(), sqlmock.AnyArg(),
			`["Phishing/Spoofing"]`, sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"version", "created_at", "cached_at"}).
			AddRow(int64(2), created, cached))

	rec := sampleRecord("a.pdf")
	if err := store.Save(context.Background(), rec); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if rec.Version != 2 || !rec.CreatedAt.Equal(created) || !rec.CachedAt.Equal(cached) {
		t.Fatalf("stored metadata not reported back: %+v", rec)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestSQLStoreSaveMySQL(t *testing.T) {
	store, mock := newMockStore(t, MySQL)
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO ocr_results`).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery(`SELECT version, created_at, cached_at FROM ocr_results WHERE filename = \?`).
		WithArgs("a.pdf").
		WillReturnRows(sqlmock.NewRows([]string{"version", "created_at", "cached_at"}).AddRow(int64(1), now, now))
	mock.ExpectCommit()

	rec := sampleRecord("a.pdf")
	if err := store.Save(context.Background(), rec); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if rec.Version != 1 {
		t.Fatalf("Version = %d", rec.Version)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestSQLStoreDelete(t *testing.T) {
	store, mock := newMockStore(t, Postgres)
	mock.ExpectExec(`DELETE FROM ocr_results WHERE filename = \$1`).WithArgs("a.pdf").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`DELETE FROM ocr_results WHERE filename = \$1`).WithArgs("a.pdf").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`DELETE FROM ocr_results`).WillReturnResult(sqlmock.NewResult(0, 4))

	ctx := context.Background()
	if err := store.Delete(ctx, "a.pdf"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := store.Delete(ctx, "a.pdf"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second Delete: %v, want ErrNotFound", err)
	}
	n, err := store.DeleteAll(ctx)
	if err != nil || n != 4 {
		t.Fatalf("DeleteAll = %d, %v", n, err)
	}
}

func TestSQLStoreErrorClasses(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"missing table", &pq.Error{Code: "42P01", Message: `relation "ocr_results" does not exist`}, ErrSchema},
		{"row level security", &pq.Error{Code: "42501", Message: "new row violates row-level security policy"}, ErrAuthorization},
		{"bad password", &pq.Error{Code: "28P01"}, ErrAuthorization},
		{"connection failure", &pq.Error{Code: "08006"}, ErrConnectivity},
		{"mysql access denied", &mysql.MySQLError{Number: 1045}, ErrAuthorization},
		{"mysql missing table", &mysql.MySQLError{Number: 1146}, ErrSchema},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, mock := newMockStore(t, Postgres)
			mock.ExpectQuery(`SELECT .* FROM ocr_results`).WillReturnError(tt.err)

			_, err := store.Lookup(context.Background(), "a.pdf")
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
			var se *StoreError
			if !errors.As(err, &se) || se.Op != "Lookup" || se.Filename != "a.pdf" {
				t.Fatalf("err is not a StoreError for Lookup: %#v", err)
			}
		})
	}
}

func TestNewSQLStoreRejectsBadTable(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	if _, err := NewSQLStore(db, Postgres, "ocr_results; DROP TABLE x"); !errors.Is(err, ErrSchema) {
		t.Fatalf("err = %v, want ErrSchema", err)
	}
}
