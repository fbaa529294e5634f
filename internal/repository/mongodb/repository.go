package mongodb

import (
	"context"
	"errors"
	"fmt"
	"iter"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/mamadbah2/coffee-counter/internal/repository/store"
)

const idField = "_id"

// MongoDBRepository owns the client connection and hands out collections.
type MongoDBRepository struct {
	client *mongo.Client
	dbName string
	logger *zap.Logger
}

// NewMongoDBRepository connects to MongoDB and verifies the connection.
func NewMongoDBRepository(ctx context.Context, uri string, dbName string, logger *zap.Logger) (*MongoDBRepository, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	clientOptions := options.Client().ApplyURI(uri)
	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	logger.Info("connected to mongodb", zap.String("database", dbName))

	return &MongoDBRepository{
		client: client,
		dbName: dbName,
		logger: logger,
	}, nil
}

// Collection returns a store.Collection backed by the named MongoDB collection.
func (r *MongoDBRepository) Collection(name string) *Collection {
	return NewCollection(r.client.Database(r.dbName).Collection(name), r.logger.With(zap.String("collection", name)))
}

// Close closes the MongoDB connection.
func (r *MongoDBRepository) Close(ctx context.Context) error {
	return r.client.Disconnect(ctx)
}

// Collection adapts a MongoDB collection to store.Collection. The record key is
// stored as the document _id.
type Collection struct {
	coll   *mongo.Collection
	logger *zap.Logger
}

// NewCollection wraps an existing mongo collection.
func NewCollection(coll *mongo.Collection, logger *zap.Logger) *Collection {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Collection{coll: coll, logger: logger}
}

// Get implements store.Collection.
func (c *Collection) Get(ctx context.Context, key string) (store.Record, error) {
	var doc bson.M
	err := c.coll.FindOne(ctx, bson.M{idField: key}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("find %s: %w", key, err)
	}
	return fromDocument(doc), nil
}

// Put implements store.Collection.
func (c *Collection) Put(ctx context.Context, record store.Record) (store.Record, error) {
	doc := toDocument(record)
	if key, _ := doc[idField].(string); key == "" {
		doc[idField] = uuid.NewString()
	}

	opts := options.Replace().SetUpsert(true)
	if _, err := c.coll.ReplaceOne(ctx, bson.M{idField: doc[idField]}, doc, opts); err != nil {
		return nil, fmt.Errorf("put %v: %w", doc[idField], err)
	}
	return fromDocument(doc), nil
}

// Insert implements store.Collection.
func (c *Collection) Insert(ctx context.Context, record store.Record) error {
	doc := toDocument(record)
	if key, _ := doc[idField].(string); key == "" {
		doc[idField] = uuid.NewString()
	}

	if _, err := c.coll.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return store.ErrExists
		}
		return fmt.Errorf("insert %v: %w", doc[idField], err)
	}
	return nil
}

// Update implements store.Collection. Increment values become $inc operations;
// negative ones only match while the field stays at or above zero.
func (c *Collection) Update(ctx context.Context, key string, fields store.Record) error {
	filter := bson.M{idField: key}
	set := bson.M{}
	inc := bson.M{}
	for field, value := range fields {
		if field == store.KeyField {
			continue
		}
		if delta, ok := value.(store.Increment); ok {
			inc[field] = delta.Delta
			if delta.Delta < 0 {
				filter[field] = bson.M{"$gte": -delta.Delta}
			}
			continue
		}
		set[field] = value
	}

	update := bson.M{}
	if len(set) > 0 {
		update["$set"] = set
	}
	if len(inc) > 0 {
		update["$inc"] = inc
	}
	if len(update) == 0 {
		return nil
	}

	result, err := c.coll.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("update %s: %w", key, err)
	}
	if result.MatchedCount > 0 {
		return nil
	}
	if len(filter) == 1 {
		return store.ErrNotFound
	}

	n, err := c.coll.CountDocuments(ctx, bson.M{idField: key}, options.Count().SetLimit(1))
	if err != nil {
		return fmt.Errorf("check %s after guarded update: %w", key, err)
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return store.ErrNegativeCounter
}

// Delete implements store.Collection.
func (c *Collection) Delete(ctx context.Context, key string) error {
	if _, err := c.coll.DeleteOne(ctx, bson.M{idField: key}); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// Fetch implements store.Collection. Each page is a separate skip/limit query
// ordered by _id; no snapshot is held between pages.
func (c *Collection) Fetch(ctx context.Context, query store.Query, pageSize, maxPages int) iter.Seq2[[]store.Record, error] {
	filter := buildFilter(query)
	return func(yield func([]store.Record, error) bool) {
		if pageSize <= 0 {
			yield(nil, fmt.Errorf("page size must be positive, got %d", pageSize))
			return
		}
		for page := 0; page < maxPages; page++ {
			opts := options.Find().
				SetSort(bson.D{{Key: idField, Value: 1}}).
				SetSkip(int64(page * pageSize)).
				SetLimit(int64(pageSize))

			records, err := c.findPage(ctx, filter, opts)
			if err != nil {
				yield(nil, err)
				return
			}

			c.logger.Debug("fetched page", zap.Int("page", page), zap.Int("records", len(records)))

			if len(records) == 0 {
				return
			}
			if !yield(records, nil) {
				return
			}
			if len(records) < pageSize {
				return
			}
		}
	}
}

func (c *Collection) findPage(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]store.Record, error) {
	cursor, err := c.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find page: %w", err)
	}
	defer cursor.Close(ctx)

	var records []store.Record
	for cursor.Next(ctx) {
		var doc bson.M
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode document: %w", err)
		}
		records = append(records, fromDocument(doc))
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("cursor error: %w", err)
	}
	return records, nil
}

func buildFilter(query store.Query) bson.M {
	filter := bson.M{}
	for _, cond := range query.Conditions() {
		field := cond.Field
		if field == store.KeyField {
			field = idField
		}
		if cond.GreaterThan {
			filter[field] = bson.M{"$gt": cond.Value}
			continue
		}
		filter[field] = cond.Value
	}
	return filter
}

func toDocument(record store.Record) bson.M {
	doc := bson.M{}
	for field, value := range record {
		if field == store.KeyField {
			doc[idField] = value
			continue
		}
		doc[field] = value
	}
	return doc
}

func fromDocument(doc bson.M) store.Record {
	record := store.Record{}
	for field, value := range doc {
		if field == idField {
			record[store.KeyField] = value
			continue
		}
		record[field] = value
	}
	return record
}
