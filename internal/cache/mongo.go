package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"fraudocr/pkg/models"
)

// MongoStore keeps one document per filename in a collection.
type MongoStore struct {
	client     *mongo.Client
	collection *mongo.Collection
	now        func() time.Time
}

type mongoRecord struct {
	Filename        string    `bson:"filename"`
	FormattedJSON   string    `bson:"formatted_json"`
	OriginalOCRData string    `bson:"original_ocr_data,omitempty"`
	TotalPages      int       `bson:"total_pages"`
	Keywords        string    `bson:"keywords"`
	KeyMetrics      string    `bson:"key_metrics,omitempty"`
	Formatted       bool      `bson:"formatted"`
	Version         int64     `bson:"version"`
	CreatedAt       time.Time `bson:"created_at"`
	CachedAt        time.Time `bson:"cached_at"`
}

// OpenMongo connects, pings and ensures the unique filename index.
func OpenMongo(ctx context.Context, uri, database, collection string, timeout time.Duration) (*MongoStore, error) {
	const op = "Open"

	if strings.TrimSpace(uri) == "" {
		return nil, NewStoreError(op, "", ErrConnectivity, fmt.Errorf("empty mongo uri"))
	}
	if database == "" {
		database = "fraudocr"
	}

	connectCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, classifyMongo(op, "", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, classifyMongo(op, "", err)
	}

	s := newMongoStore(client, client.Database(database).Collection(collection))
	if err := s.createIndexes(connectCtx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return s, nil
}

func newMongoStore(client *mongo.Client, collection *mongo.Collection) *MongoStore {
	return &MongoStore{
		client:     client,
		collection: collection,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (s *MongoStore) createIndexes(ctx context.Context) error {
	_, err := s.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "filename", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "cached_at", Value: -1}}},
	})
	if err != nil {
		return classifyMongo("CreateIndexes", "", err)
	}
	return nil
}

func (s *MongoStore) Lookup(ctx context.Context, filename string) (*models.Record, error) {
	const op = "Lookup"

	var doc mongoRecord
	err := s.collection.FindOne(ctx, bson.M{"filename": filename}).Decode(&doc)
	if err != nil {
		return nil, classifyMongo(op, filename, err)
	}
	rec, err := doc.record()
	if err != nil {
		return nil, NewStoreError(op, filename, ErrSchema, err)
	}
	return rec, nil
}

func (s *MongoStore) Save(ctx context.Context, rec *models.Record) error {
	const op = "Save"
	if err := validateRecord(op, rec); err != nil {
		return err
	}
	enc, err := encodeRecord(rec)
	if err != nil {
		return NewStoreError(op, rec.Filename, ErrSchema, err)
	}
	update := saveUpdate(enc, rec, s.now())

	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	var doc mongoRecord
	if err := s.collection.FindOneAndUpdate(ctx, bson.M{"filename": rec.Filename}, update, opts).Decode(&doc); err != nil {
		return classifyMongo(op, rec.Filename, err)
	}

	rec.Version = doc.Version
	rec.CreatedAt = doc.CreatedAt
	rec.CachedAt = doc.CachedAt
	return nil
}

// saveUpdate overwrites every column, bumps version and only sets created_at
// when the upsert inserts.
func saveUpdate(enc *encodedRecord, rec *models.Record, now time.Time) bson.M {
	set := bson.M{
		"formatted_json": enc.formatted,
		"total_pages":    rec.TotalPages,
		"keywords":       enc.keywords,
		"formatted":      rec.Formatted,
		"cached_at":      now,
	}
	unset := bson.M{}
	if enc.ocr != nil {
		set["original_ocr_data"] = *enc.ocr
	} else {
		unset["original_ocr_data"] = ""
	}
	if enc.keyMetrics != nil {
		set["key_metrics"] = *enc.keyMetrics
	} else {
		unset["key_metrics"] = ""
	}
	update := bson.M{
		"$set":         set,
		"$setOnInsert": bson.M{"created_at": now},
		"$inc":         bson.M{"version": 1},
	}
	if len(unset) > 0 {
		update["$unset"] = unset
	}
	return update
}

func (s *MongoStore) Delete(ctx context.Context, filename string) error {
	const op = "Delete"

	res, err := s.collection.DeleteOne(ctx, bson.M{"filename": filename})
	if err != nil {
		return classifyMongo(op, filename, err)
	}
	if res.DeletedCount == 0 {
		return notFound(op, filename)
	}
	return nil
}

func (s *MongoStore) DeleteAll(ctx context.Context) (int64, error) {
	res, err := s.collection.DeleteMany(ctx, bson.D{})
	if err != nil {
		return 0, classifyMongo("DeleteAll", "", err)
	}
	return res.DeletedCount, nil
}

func (s *MongoStore) List(ctx context.Context) ([]*models.Record, error) {
	const op = "List"

	opts := options.Find().SetSort(bson.D{{Key: "cached_at", Value: -1}, {Key: "filename", Value: 1}})
	cur, err := s.collection.Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, classifyMongo(op, "", err)
	}
	defer cur.Close(ctx)

	var out []*models.Record
	for cur.Next(ctx) {
		var doc mongoRecord
		if err := cur.Decode(&doc); err != nil {
			return nil, NewStoreError(op, "", ErrSchema, err)
		}
		rec, err := doc.record()
		if err != nil {
			return nil, NewStoreError(op, doc.Filename, ErrSchema, err)
		}
		out = append(out, rec)
	}
	if err := cur.Err(); err != nil {
		return nil, classifyMongo(op, "", err)
	}
	return out, nil
}

func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func (d *mongoRecord) record() (*models.Record, error) {
	rec := &models.Record{
		Filename:      d.Filename,
		FormattedJSON: []byte(d.FormattedJSON),
		TotalPages:    d.TotalPages,
		Formatted:     d.Formatted,
		Version:       d.Version,
		CreatedAt:     d.CreatedAt,
		CachedAt:      d.CachedAt,
	}
	if err := decodeColumns(rec, []byte(d.OriginalOCRData), []byte(d.Keywords), []byte(d.KeyMetrics)); err != nil {
		return nil, err
	}
	return rec, nil
}

func classifyMongo(op, filename string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if errors.Is(err, mongo.ErrNoDocuments) {
		return notFound(op, filename)
	}
	if mongo.IsNetworkError(err) || mongo.IsTimeout(err) || errors.Is(err, mongo.ErrClientDisconnected) {
		return NewStoreError(op, filename, ErrConnectivity, err)
	}
	var se mongo.ServerError
	if errors.As(err, &se) && (se.HasErrorCode(13) || se.HasErrorCode(18)) {
		return NewStoreError(op, filename, ErrAuthorization, err)
	}
	return NewStoreError(op, filename, nil, err)
}
