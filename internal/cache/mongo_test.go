package cache

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"

	"fraudocr/pkg/models"
)

func TestSaveUpdate(t *testing.T) {
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	rec := sampleRecord("2023_IC3Report.pdf")
	rec.Keywords = []string{"Phishing/Spoofing"}
	rec.KeyMetrics = &models.KeyMetrics{Year: 2023}
	enc, err := encodeRecord(rec)
	if err != nil {
		t.Fatal(err)
	}
	update := saveUpdate(enc, rec, now)

	set := update["$set"].(bson.M)
	if set["cached_at"] != now || set["formatted_json"] != enc.formatted || set["keywords"] != `["Phishing/Spoofing"]` {
		t.Errorf("$set = %v", set)
	}
	if _, ok := set["created_at"]; ok {
		t.Error("created_at must only be set on insert")
	}
	if set["original_ocr_data"] == nil || set["key_metrics"] == nil {
		t.Errorf("$set missing json columns: %v", set)
	}
	if got := update["$setOnInsert"].(bson.M)["created_at"]; got != now {
		t.Errorf("$setOnInsert created_at = %v", got)
	}
	if got := update["$inc"].(bson.M)["version"]; got != 1 {
		t.Errorf("$inc version = %v", got)
	}
	if _, ok := update["$unset"]; ok {
		t.Errorf("unexpected $unset: %v", update["$unset"])
	}

	bare := &models.Record{Filename: "bare.pdf", FormattedJSON: []byte(`{}`)}
	enc, err = encodeRecord(bare)
	if err != nil {
		t.Fatal(err)
	}
	unset, ok := saveUpdate(enc, bare, now)["$unset"].(bson.M)
	if !ok {
		t.Fatal("missing $unset for empty columns")
	}
	for _, key := range []string{"original_ocr_data", "key_metrics"} {
		if _, ok := unset[key]; !ok {
			t.Errorf("$unset missing %s", key)
		}
	}
}

func TestMongoRecordDecode(t *testing.T) {
	created := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	doc := mongoRecord{
		Filename:        "2023_IC3Report.pdf",
		FormattedJSON:   `{"Phishing/Spoofing":23252}`,
		OriginalOCRData: `{"filename":"2023_IC3Report.pdf","total_pages":1,"results":[{"page":1,"text":"x","status":"success"}]}`,
		TotalPages:      1,
		Keywords:        `["Phishing/Spoofing","Tech Support"]`,
		KeyMetrics:      `{"year":2023}`,
		Formatted:       true,
		Version:         3,
		CreatedAt:       created,
		CachedAt:        created.Add(time.Hour),
	}

	rec, err := doc.record()
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if rec.Version != 3 || !rec.Formatted || rec.TotalPages != 1 || !rec.CreatedAt.Equal(created) {
		t.Errorf("unexpected record: %+v", rec)
	}
	if rec.OCR == nil || len(rec.OCR.Results) != 1 || rec.KeyMetrics.Year != 2023 || len(rec.Keywords) != 2 {
		t.Errorf("json columns not decoded: %+v", rec)
	}

	doc.Keywords = `not json`
	if _, err := doc.record(); err == nil {
		t.Fatal("expected error for corrupt keywords")
	}
}

func TestClassifyMongo(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"no documents", mongo.ErrNoDocuments, ErrNotFound},
		{"disconnected", mongo.ErrClientDisconnected, ErrConnectivity},
		{"unauthorized", mongo.CommandError{Code: 13, Name: "Unauthorized"}, ErrAuthorization},
		{"auth failed", mongo.CommandError{Code: 18, Name: "AuthenticationFailed"}, ErrAuthorization},
		{"canceled", fmt.Errorf("find: %w", context.Canceled), context.Canceled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classifyMongo("Lookup", "a.pdf", tt.err); !errors.Is(got, tt.want) {
				t.Fatalf("classifyMongo(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}

	other := classifyMongo("Save", "a.pdf", mongo.CommandError{Code: 2, Name: "BadValue"})
	var se *StoreError
	if !errors.As(other, &se) || errors.Is(other, ErrNotFound) || errors.Is(other, ErrConnectivity) {
		t.Fatalf("unclassified error = %v", other)
	}
}

func TestMongoStore(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	created := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	stored := bson.D{
		{Key: "filename", Value: "2023_IC3Report.pdf"},
		{Key: "formatted_json", Value: `{"Phishing/Spoofing":23252}`},
		{Key: "total_pages", Value: 1},
		{Key: "keywords", Value: `["Phishing/Spoofing"]`},
		{Key: "formatted", Value: true},
		{Key: "version", Value: int64(2)},
		{Key: "created_at", Value: created},
		{Key: "cached_at", Value: created.Add(time.Hour)},
	}
	ns := func(mt *mtest.T) string { return mt.Coll.Database().Name() + "." + mt.Coll.Name() }

	mt.Run("lookup hit", func(mt *mtest.T) {
		store := newMongoStore(mt.Client, mt.Coll)
		mt.AddMockResponses(mtest.CreateCursorResponse(1, ns(mt), mtest.FirstBatch, stored))

		rec, err := store.Lookup(context.Background(), "2023_IC3Report.pdf")
		if err != nil {
			t.Fatalf("Lookup: %v", err)
		}
		if rec.Version != 2 || !rec.CreatedAt.Equal(created) || len(rec.Keywords) != 1 {
			t.Fatalf("unexpected record: %+v", rec)
		}
	})

	mt.Run("lookup miss", func(mt *mtest.T) {
		store := newMongoStore(mt.Client, mt.Coll)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns(mt), mtest.FirstBatch))

		if _, err := store.Lookup(context.Background(), "missing.pdf"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("err = %v, want ErrNotFound", err)
		}
	})

	mt.Run("lookup unauthorized", func(mt *mtest.T) {
		store := newMongoStore(mt.Client, mt.Coll)
		mt.AddMockResponses(mtest.CreateCommandErrorResponse(mtest.CommandError{
			Code: 13, Name: "Unauthorized", Message: "not authorized on fraudocr",
		}))

		if _, err := store.Lookup(context.Background(), "2023_IC3Report.pdf"); !errors.Is(err, ErrAuthorization) {
			t.Fatalf("err = %v, want ErrAuthorization", err)
		}
	})

	mt.Run("save returns stored version", func(mt *mtest.T) {
		store := newMongoStore(mt.Client, mt.Coll)
		store.now = func() time.Time { return created.Add(time.Hour) }
		mt.AddMockResponses(bson.D{{Key: "ok", Value: 1}, {Key: "value", Value: stored}})

		rec := sampleRecord("2023_IC3Report.pdf")
		if err := store.Save(context.Background(), rec); err != nil {
			t.Fatalf("Save: %v", err)
		}
		if rec.Version != 2 || !rec.CreatedAt.Equal(created) || !rec.CachedAt.Equal(created.Add(time.Hour)) {
			t.Fatalf("record not updated from stored document: %+v", rec)
		}
	})

	mt.Run("delete", func(mt *mtest.T) {
		store := newMongoStore(mt.Client, mt.Coll)
		mt.AddMockResponses(
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}),
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 0}),
		)

		if err := store.Delete(context.Background(), "2023_IC3Report.pdf"); err != nil {
			t.Fatalf("Delete: %v", err)
		}
		if err := store.Delete(context.Background(), "2023_IC3Report.pdf"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("second Delete err = %v, want ErrNotFound", err)
		}
	})
}
