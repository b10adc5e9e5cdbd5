package catalog

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// NewMongoClient connects to uri and pings the primary.
func NewMongoClient(ctx context.Context, uri string) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}
	return client, nil
}

// MongoStore reads accommodations from a MongoDB collection.
type MongoStore struct {
	coll *mongo.Collection
}

// NewMongoStore creates a store over coll.
func NewMongoStore(coll *mongo.Collection) *MongoStore {
	return &MongoStore{coll: coll}
}

var sortFields = map[SortBy]bson.D{
	SortPopularity: {{Key: "view_count", Value: -1}, {Key: "_id", Value: 1}},
	SortPrice:      {{Key: "price", Value: 1}, {Key: "_id", Value: 1}},
	SortRating:     {{Key: "rating", Value: -1}, {Key: "_id", Value: 1}},
}

func (s *MongoStore) FindByCity(ctx context.Context, q Query) ([]Accommodation, error) {
	sort, ok := sortFields[q.SortBy]
	if !ok {
		sort = sortFields[SortPopularity]
	}

	filter := bson.M{"city": primitive.Regex{
		Pattern: regexp.QuoteMeta(strings.TrimSpace(q.City)),
		Options: "i",
	}}
	opts := options.Find().SetSort(sort).SetLimit(int64(q.limit()))

	cur, err := s.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query accommodations: %w", err)
	}
	defer func() {
		_ = cur.Close(ctx)
	}()

	var out []Accommodation
	for cur.Next(ctx) {
		var d record
		if err := cur.Decode(&d); err != nil {
			return nil, fmt.Errorf("failed to decode accommodation: %w", err)
		}
		out = append(out, d.accommodation())
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("failed to read accommodations: %w", err)
	}
	return out, nil
}

func (s *MongoStore) Get(ctx context.Context, id string) (Accommodation, error) {
	var d record
	err := s.coll.FindOne(ctx, idFilter(id)).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return Accommodation{}, ErrNotFound
	}
	if err != nil {
		return Accommodation{}, fmt.Errorf("failed to get accommodation: %w", err)
	}
	return d.accommodation(), nil
}

// IncrementViews applies $inc server-side.
func (s *MongoStore) IncrementViews(ctx context.Context, id string) (int64, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var d record
	err := s.coll.FindOneAndUpdate(ctx, idFilter(id), bson.M{"$inc": bson.M{"view_count": 1}}, opts).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to increment views: %w", err)
	}
	return d.ViewCount, nil
}

// idFilter matches ObjectID, numeric and plain string ids.
func idFilter(id string) bson.M {
	if oid, err := primitive.ObjectIDFromHex(id); err == nil {
		return bson.M{"_id": bson.M{"$in": bson.A{oid, id}}}
	}
	if n, err := strconv.ParseInt(id, 10, 64); err == nil {
		return bson.M{"_id": bson.M{"$in": bson.A{n, id}}}
	}
	return bson.M{"_id": id}
}
