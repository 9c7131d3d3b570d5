// Package mongodb implements the feature provider contract on a
// MongoDB collection holding GeoJSON feature documents.
package mongodb

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"strings"

	"github.com/paulmach/orb/geojson"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/ogcapi/featureserv/internal/provider"
)

// Mongo serves one feature collection from a MongoDB collection. The
// MongoDB _id is the feature identifier, exposed as its hex form.
type Mongo struct {
	client        *mongo.Client
	coll          *mongo.Collection
	datetimeField string
}

// New connects to the MongoDB instance named by def.Data, using the
// database from the URI path and the collection from def.Collection.
// A 2dsphere index on the geometry field is ensured at startup.
func New(ctx context.Context, def provider.Definition) (provider.Provider, error) {
	if def.Data == "" {
		return nil, errors.New("mongodb: connection URI is required")
	}
	if def.Collection == "" {
		return nil, errors.New("mongodb: collection name is required")
	}

	dbName, err := databaseFromURI(def.Data)
	if err != nil {
		return nil, err
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(def.Data))
	if err != nil {
		return nil, fmt.Errorf("mongodb: connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("mongodb: ping: %w", err)
	}

	m := &Mongo{
		client:        client,
		coll:          client.Database(dbName).Collection(def.Collection),
		datetimeField: def.DatetimeProperty(),
	}

	_, err = m.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "geometry", Value: "2dsphere"}},
	})
	if err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("mongodb: ensure geometry index: %w", err)
	}

	log.Printf("mongodb: serving %s.%s", dbName, def.Collection)
	return m, nil
}

// databaseFromURI extracts the database name from the URI path, the
// database the connection would default to.
func databaseFromURI(uri string) (string, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", fmt.Errorf("mongodb: parse URI: %w", err)
	}
	name := strings.Trim(u.Path, "/")
	if name == "" {
		return "", errors.New("mongodb: URI must name a database in its path")
	}
	return name, nil
}

// featureDoc is the stored document shape.
type featureDoc struct {
	ID         primitive.ObjectID `bson:"_id,omitempty"`
	Type       string             `bson:"type"`
	Geometry   *geojson.Geometry  `bson:"geometry"`
	Properties bson.M             `bson:"properties"`
}

func (d *featureDoc) toFeature() *provider.Feature {
	return &provider.Feature{
		Type:       "Feature",
		ID:         d.ID.Hex(),
		Geometry:   d.Geometry,
		Properties: normalizeProperties(d.Properties),
	}
}

// Query applies the AND of all filters, counts the full match set, and
// returns the requested page.
func (m *Mongo) Query(ctx context.Context, q provider.Query) (*provider.FeatureCollection, error) {
	filter := buildFilter(q, m.datetimeField)

	matched, err := m.coll.CountDocuments(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("mongodb: count: %w", err)
	}

	if q.ResultType == provider.ResultTypeHits {
		return provider.NewFeatureCollection(nil, matched), nil
	}

	opts := options.Find().SetSkip(int64(q.Offset))
	if q.Limit > 0 {
		opts.SetLimit(int64(q.Limit))
	}
	if sort := buildSort(q.SortBy, m.datetimeField); len(sort) > 0 {
		opts.SetSort(sort)
	}

	cur, err := m.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("mongodb: find: %w", err)
	}
	defer cur.Close(ctx) //nolint:errcheck

	var docs []featureDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("mongodb: decode: %w", err)
	}

	features := make([]*provider.Feature, 0, len(docs))
	for i := range docs {
		features = append(features, docs[i].toFeature())
	}
	return provider.NewFeatureCollection(features, matched), nil
}

// Get returns a single feature by its hex ObjectID.
func (m *Mongo) Get(ctx context.Context, id string) (*provider.Feature, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", provider.ErrInvalidIdentifier, id)
	}

	var doc featureDoc
	err = m.coll.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, provider.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("mongodb: get %s: %w", id, err)
	}
	return doc.toFeature(), nil
}

// Create stores a new feature and returns the hex form of its assigned
// ObjectID.
func (m *Mongo) Create(ctx context.Context, f *provider.Feature) (string, error) {
	res, err := m.coll.InsertOne(ctx, storedDoc(f, m.datetimeField))
	if err != nil {
		return "", fmt.Errorf("mongodb: insert: %w", err)
	}
	oid, ok := res.InsertedID.(primitive.ObjectID)
	if !ok {
		return "", fmt.Errorf("mongodb: unexpected inserted id type %T", res.InsertedID)
	}
	return oid.Hex(), nil
}

// Update replaces the geometry and properties of an existing feature.
func (m *Mongo) Update(ctx context.Context, id string, f *provider.Feature) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return fmt.Errorf("%w: %q", provider.ErrInvalidIdentifier, id)
	}

	res, err := m.coll.UpdateOne(ctx, bson.M{"_id": oid}, bson.M{"$set": storedDoc(f, m.datetimeField)})
	if err != nil {
		return fmt.Errorf("mongodb: update %s: %w", id, err)
	}
	if res.MatchedCount == 0 {
		return provider.ErrNotFound
	}
	return nil
}

// Delete removes a feature by its hex ObjectID.
func (m *Mongo) Delete(ctx context.Context, id string) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return fmt.Errorf("%w: %q", provider.ErrInvalidIdentifier, id)
	}

	res, err := m.coll.DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		return fmt.Errorf("mongodb: delete %s: %w", id, err)
	}
	if res.DeletedCount == 0 {
		return provider.ErrNotFound
	}
	return nil
}

// Fields scans the stored features and reports property names with
// inferred types. The datetime property is always reported under the
// "datetime" key.
func (m *Mongo) Fields(ctx context.Context) (map[string]provider.FieldType, error) {
	fc, err := m.Query(ctx, provider.Query{Limit: -1})
	if err != nil {
		return nil, err
	}

	fields := make(map[string]provider.FieldType)
	for _, f := range fc.Features {
		for key, val := range f.Properties {
			if _, seen := fields[key]; seen {
				continue
			}
			if t := provider.InferFieldType(val); t != "" {
				fields[key] = t
			}
		}
	}
	fields["datetime"] = provider.FieldDatetime
	return fields, nil
}

// Close disconnects from the server.
func (m *Mongo) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}
