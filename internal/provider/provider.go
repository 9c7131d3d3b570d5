// Package provider defines the storage contract for feature collections:
// GeoJSON feature types, the query parameter model, and the Provider
// interface that each backend implements.
package provider

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/paulmach/orb/geojson"
)

// Sentinel errors returned by providers. Handlers map these to HTTP
// status codes; anything else is treated as an internal failure.
var (
	ErrNotFound          = errors.New("feature not found")
	ErrInvalidIdentifier = errors.New("invalid feature identifier")
	ErrInvalidQuery      = errors.New("invalid query")
	ErrInvalidFeature    = errors.New("invalid feature")
)

// FieldType describes the inferred type of a feature property.
type FieldType string

const (
	FieldString   FieldType = "string"
	FieldInt      FieldType = "int"
	FieldFloat    FieldType = "float"
	FieldDatetime FieldType = "datetime"
)

// Feature is a single GeoJSON feature. Properties hold arbitrary JSON
// values; the identifier is assigned by the backing store.
type Feature struct {
	Type       string            `json:"type" bson:"type"`
	ID         string            `json:"id,omitempty" bson:"-"`
	Geometry   *geojson.Geometry `json:"geometry" bson:"geometry"`
	Properties map[string]any    `json:"properties" bson:"properties"`
}

// FeatureCollection is the result of a query. NumberMatched counts all
// features matching the filters; NumberReturned counts the page.
type FeatureCollection struct {
	Type           string     `json:"type"`
	Features       []*Feature `json:"features"`
	NumberMatched  int64      `json:"numberMatched"`
	NumberReturned int        `json:"numberReturned"`
}

// NewFeatureCollection builds a collection from a page of features,
// normalizing nil pages to an empty slice so JSON renders [] not null.
func NewFeatureCollection(features []*Feature, matched int64) *FeatureCollection {
	if features == nil {
		features = []*Feature{}
	}
	return &FeatureCollection{
		Type:           "FeatureCollection",
		Features:       features,
		NumberMatched:  matched,
		NumberReturned: len(features),
	}
}

// ResultType selects between returning features and returning counts only.
const (
	ResultTypeResults = "results"
	ResultTypeHits    = "hits"
)

// BBox is a WGS84 bounding box: minx, miny, maxx, maxy.
type BBox [4]float64

// ParseBBox parses a comma-separated bbox parameter. An empty string
// yields (nil, nil): no spatial filter.
func ParseBBox(s string) (*BBox, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return nil, fmt.Errorf("%w: bbox must have 4 coordinates, got %d", ErrInvalidQuery, len(parts))
	}
	var b BBox
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: bbox coordinate %q is not a number", ErrInvalidQuery, p)
		}
		b[i] = v
	}
	if b[0] > b[2] || b[1] > b[3] {
		return nil, fmt.Errorf("%w: bbox minimum exceeds maximum", ErrInvalidQuery)
	}
	return &b, nil
}

// PropertyFilter is an exact-equality filter on a feature property.
type PropertyFilter struct {
	Name  string
	Value string
}

// SortCriterion orders results by a property. "datetime" resolves to
// the collection's configured datetime property.
type SortCriterion struct {
	Property   string
	Descending bool
}

// ParseSortBy parses a comma-separated sortby parameter where a leading
// "-" marks descending order and an optional leading "+" ascending.
func ParseSortBy(s string) ([]SortCriterion, error) {
	if s == "" {
		return nil, nil
	}
	var criteria []SortCriterion
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		c := SortCriterion{Property: part}
		switch {
		case strings.HasPrefix(part, "-"):
			c.Property = part[1:]
			c.Descending = true
		case strings.HasPrefix(part, "+"):
			c.Property = part[1:]
		}
		if c.Property == "" {
			return nil, fmt.Errorf("%w: empty sortby key", ErrInvalidQuery)
		}
		criteria = append(criteria, c)
	}
	return criteria, nil
}

// Query carries all filter, ordering, and paging parameters for a
// collection items request.
type Query struct {
	Offset     int
	Limit      int
	ResultType string
	BBox       *BBox
	Datetime   *Interval
	Properties []PropertyFilter
	SortBy     []SortCriterion
}

// Provider is the storage contract for one feature collection.
type Provider interface {
	// Query returns features matching all filters, paged by
	// Offset/Limit. NumberMatched is the unpaged match count. When
	// ResultType is "hits" no features are returned.
	Query(ctx context.Context, q Query) (*FeatureCollection, error)

	// Get returns a single feature by identifier.
	Get(ctx context.Context, id string) (*Feature, error)

	// Create stores a new feature and returns its assigned identifier.
	Create(ctx context.Context, f *Feature) (string, error)

	// Update replaces the geometry and properties of an existing
	// feature. The identifier is never changed.
	Update(ctx context.Context, id string, f *Feature) error

	// Delete removes a feature by identifier.
	Delete(ctx context.Context, id string) error

	// Fields reports property names and inferred types from the
	// stored data. The datetime property is always reported as a
	// datetime field.
	Fields(ctx context.Context) (map[string]FieldType, error)

	// Close releases the underlying store connection.
	Close(ctx context.Context) error
}

// InferFieldType maps a decoded property value to a FieldType. Values
// outside the supported scalar types report an empty FieldType and are
// omitted from field listings.
func InferFieldType(v any) FieldType {
	switch v.(type) {
	case string:
		return FieldString
	case float64, float32:
		return FieldFloat
	case int, int32, int64:
		return FieldInt
	}
	return ""
}
