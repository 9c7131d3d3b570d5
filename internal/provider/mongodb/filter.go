package mongodb

import (
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/ogcapi/featureserv/internal/provider"
)

// buildFilter translates query parameters into a MongoDB filter
// document: the AND of a $geoWithin $box clause, a datetime range on
// the configured datetime property, and property equality clauses.
func buildFilter(q provider.Query, datetimeField string) bson.M {
	var and []bson.M

	if q.BBox != nil {
		b := *q.BBox
		and = append(and, bson.M{
			"geometry": bson.M{
				"$geoWithin": bson.M{
					"$box": bson.A{
						bson.A{b[0], b[1]},
						bson.A{b[2], b[3]},
					},
				},
			},
		})
	}

	if q.Datetime != nil {
		rng := bson.M{}
		if q.Datetime.Start != nil {
			rng["$gte"] = *q.Datetime.Start
		}
		if q.Datetime.End != nil {
			rng["$lt"] = widenToMillisecond(*q.Datetime.End)
		}
		and = append(and, bson.M{"properties." + datetimeField: rng})
	}

	for _, pf := range q.Properties {
		and = append(and, bson.M{"properties." + pf.Name: bson.M{"$eq": pf.Value}})
	}

	if len(and) == 0 {
		return bson.M{}
	}
	return bson.M{"$and": and}
}

// widenToMillisecond pushes an interval end with sub-millisecond
// precision one millisecond later. MongoDB compares dates at
// millisecond precision, so an end of 11:16:02.989001 would otherwise
// collapse to 11:16:02.989 and exclude features at that instant.
func widenToMillisecond(end time.Time) time.Time {
	if end.Nanosecond()%int(time.Millisecond) != 0 {
		return end.Add(time.Millisecond)
	}
	return end
}

// buildSort maps sort criteria onto properties.* keys; the "datetime"
// key resolves to the collection's configured datetime property.
func buildSort(criteria []provider.SortCriterion, datetimeField string) bson.D {
	var d bson.D
	for _, c := range criteria {
		name := c.Property
		if name == "datetime" {
			name = datetimeField
		}
		dir := 1
		if c.Descending {
			dir = -1
		}
		d = append(d, bson.E{Key: "properties." + name, Value: dir})
	}
	return d
}

// storedDoc builds the document persisted for a feature. The incoming
// identifier is never stored; MongoDB owns _id. The datetime property
// is parsed from RFC 3339 text into a real date so range filters work.
func storedDoc(f *provider.Feature, datetimeField string) bson.M {
	props := make(bson.M, len(f.Properties))
	for k, v := range f.Properties {
		props[k] = v
	}
	if raw, ok := props[datetimeField].(string); ok {
		if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			props[datetimeField] = t.UTC()
		}
	}
	return bson.M{
		"type":       "Feature",
		"geometry":   f.Geometry,
		"properties": props,
	}
}

// normalizeProperties converts BSON decode artifacts into plain JSON
// friendly values: dates to time.Time, arrays to []any, and embedded
// documents to maps.
func normalizeProperties(props bson.M) map[string]any {
	out := make(map[string]any, len(props))
	for k, v := range props {
		out[k] = normalizeValue(v)
	}
	return out
}

func normalizeValue(v any) any {
	switch t := v.(type) {
	case primitive.DateTime:
		return t.Time().UTC()
	case primitive.ObjectID:
		return t.Hex()
	case primitive.A:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = normalizeValue(e)
		}
		return out
	case bson.M:
		return normalizeProperties(t)
	case bson.D:
		out := make(map[string]any, len(t))
		for _, e := range t {
			out[e.Key] = normalizeValue(e.Value)
		}
		return out
	default:
		return v
	}
}
