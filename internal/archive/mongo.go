package archive

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const mongoOpTimeout = 5 * time.Second

type mongoDoc struct {
	Key       string     `bson:"_id"`
	Value     []byte     `bson:"value"`
	Tags      []string   `bson:"tags"`
	ExpiresAt *time.Time `bson:"expires_at,omitempty"`
	CreatedAt time.Time  `bson:"created_at"`
}

// MongoDriver is a MongoDB-backed Driver. Expiry is enforced by a TTL index
// on expires_at, so reads never need to filter on retention themselves
// beyond the index's minute-level sweep granularity.
type MongoDriver struct {
	client   *mongo.Client
	records  *mongo.Collection
	counters *mongo.Collection
}

// NewMongoDriver connects to MongoDB and ensures the archive indexes.
func NewMongoDriver(ctx context.Context, connURL, dbName string) (*MongoDriver, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(connURL))
	if err != nil {
		return nil, fmt.Errorf("mongo archive connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("mongo archive ping: %w", err)
	}

	db := client.Database(dbName)
	d := &MongoDriver{
		client:   client,
		records:  db.Collection("archive_records"),
		counters: db.Collection("archive_counters"),
	}
	if err := d.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("mongo archive indexes: %w", err)
	}

	log.Info().Str("db", dbName).Msg("Mongo archive driver initialized")
	return d, nil
}

func (d *MongoDriver) ensureIndexes(ctx context.Context) error {
	_, err := d.records.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "tags", Value: 1}, {Key: "created_at", Value: 1}}},
		{
			Keys:    bson.D{{Key: "expires_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(0),
		},
	})
	return err
}

func (d *MongoDriver) Kind() string { return "mongo" }

func (d *MongoDriver) Set(ctx context.Context, key string, value []byte, opts SetOptions) error {
	ctx, cancel := context.WithTimeout(ctx, mongoOpTimeout)
	defer cancel()

	doc := mongoDoc{
		Key:       key,
		Value:     value,
		Tags:      opts.Tags,
		CreatedAt: time.Now().UTC(),
	}
	if doc.Tags == nil {
		doc.Tags = []string{}
	}
	if opts.TTL > 0 {
		t := time.Now().Add(opts.TTL)
		doc.ExpiresAt = &t
	}

	_, err := d.records.ReplaceOne(ctx, bson.M{"_id": key}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("mongo archive set %s: %w", key, err)
	}
	return nil
}

func (d *MongoDriver) Get(ctx context.Context, key string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, mongoOpTimeout)
	defer cancel()

	res := d.records.FindOne(ctx, bson.M{"_id": key})
	if errors.Is(res.Err(), mongo.ErrNoDocuments) {
		return nil, &ErrKeyNotFound{Key: key}
	}
	if res.Err() != nil {
		return nil, fmt.Errorf("mongo archive get %s: %w", key, res.Err())
	}

	var doc mongoDoc
	if err := res.Decode(&doc); err != nil {
		return nil, fmt.Errorf("mongo archive decode %s: %w", key, err)
	}
	if doc.ExpiresAt != nil && doc.ExpiresAt.Before(time.Now()) {
		return nil, &ErrKeyNotFound{Key: key}
	}
	return doc.Value, nil
}

func (d *MongoDriver) ListTag(ctx context.Context, tag string) ([][]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, mongoOpTimeout)
	defer cancel()

	cur, err := d.records.Find(ctx, bson.M{"tags": tag},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("mongo archive list %s: %w", tag, err)
	}
	defer cur.Close(ctx)

	now := time.Now()
	var out [][]byte
	for cur.Next(ctx) {
		var doc mongoDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("mongo archive decode: %w", err)
		}
		if doc.ExpiresAt != nil && doc.ExpiresAt.Before(now) {
			continue
		}
		out = append(out, doc.Value)
	}
	return out, cur.Err()
}

func (d *MongoDriver) Incr(ctx context.Context, key string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, mongoOpTimeout)
	defer cancel()

	res := d.counters.FindOneAndUpdate(ctx,
		bson.M{"_id": key},
		bson.M{"$inc": bson.M{"value": int64(1)}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	)
	if res.Err() != nil {
		return 0, fmt.Errorf("mongo archive incr %s: %w", key, res.Err())
	}

	var doc struct {
		Value int64 `bson:"value"`
	}
	if err := res.Decode(&doc); err != nil {
		return 0, fmt.Errorf("mongo archive incr decode %s: %w", key, err)
	}
	return doc.Value, nil
}

func (d *MongoDriver) Close(ctx context.Context) error {
	return d.client.Disconnect(ctx)
}
