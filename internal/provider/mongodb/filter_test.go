package mongodb

import (
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/ogcapi/featureserv/internal/provider"
)

func TestBuildFilterEmpty(t *testing.T) {
	f := buildFilter(provider.Query{}, "datetime")
	if len(f) != 0 {
		t.Fatalf("expected empty filter, got %v", f)
	}
}

func TestBuildFilterBBox(t *testing.T) {
	bbox := provider.BBox{-10, -5, 10, 5}
	f := buildFilter(provider.Query{BBox: &bbox}, "datetime")

	and, ok := f["$and"].([]bson.M)
	if !ok || len(and) != 1 {
		t.Fatalf("expected single $and clause, got %v", f)
	}
	geom, ok := and[0]["geometry"].(bson.M)
	if !ok {
		t.Fatalf("expected geometry clause, got %v", and[0])
	}
	within, ok := geom["$geoWithin"].(bson.M)
	if !ok {
		t.Fatalf("expected $geoWithin, got %v", geom)
	}
	box, ok := within["$box"].(bson.A)
	if !ok || len(box) != 2 {
		t.Fatalf("expected $box with two corners, got %v", within)
	}
	min := box[0].(bson.A)
	max := box[1].(bson.A)
	if min[0] != -10.0 || min[1] != -5.0 || max[0] != 10.0 || max[1] != 5.0 {
		t.Fatalf("wrong box corners: %v / %v", min, max)
	}
}

func TestBuildFilterDatetimeRange(t *testing.T) {
	start := time.Date(2019, 11, 14, 11, 0, 0, 0, time.UTC)
	end := time.Date(2019, 11, 15, 11, 0, 0, 0, time.UTC)
	q := provider.Query{Datetime: &provider.Interval{Start: &start, End: &end}}

	f := buildFilter(q, "when")
	and := f["$and"].([]bson.M)
	rng, ok := and[0]["properties.when"].(bson.M)
	if !ok {
		t.Fatalf("expected properties.when clause, got %v", and[0])
	}
	if got := rng["$gte"].(time.Time); !got.Equal(start) {
		t.Fatalf("wrong $gte: %v", got)
	}
	if got := rng["$lt"].(time.Time); !got.Equal(end) {
		t.Fatalf("wrong $lt: %v", got)
	}
}

func TestBuildFilterDatetimeOpenSides(t *testing.T) {
	start := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

	f := buildFilter(provider.Query{Datetime: &provider.Interval{Start: &start}}, "datetime")
	rng := f["$and"].([]bson.M)[0]["properties.datetime"].(bson.M)
	if _, has := rng["$lt"]; has {
		t.Fatalf("open end should have no $lt: %v", rng)
	}
	if _, has := rng["$gte"]; !has {
		t.Fatalf("expected $gte: %v", rng)
	}

	f = buildFilter(provider.Query{Datetime: &provider.Interval{End: &start}}, "datetime")
	rng = f["$and"].([]bson.M)[0]["properties.datetime"].(bson.M)
	if _, has := rng["$gte"]; has {
		t.Fatalf("open start should have no $gte: %v", rng)
	}
}

func TestWidenToMillisecond(t *testing.T) {
	// A sub-millisecond end moves one millisecond later.
	end := time.Date(2019, 11, 14, 11, 16, 2, 989001000, time.UTC)
	got := widenToMillisecond(end)
	want := end.Add(time.Millisecond)
	if !got.Equal(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}

	// A millisecond-aligned end is untouched.
	aligned := time.Date(2019, 11, 14, 11, 16, 2, 989000000, time.UTC)
	if got := widenToMillisecond(aligned); !got.Equal(aligned) {
		t.Fatalf("aligned end changed: %v", got)
	}
}

func TestBuildFilterProperties(t *testing.T) {
	q := provider.Query{Properties: []provider.PropertyFilter{
		{Name: "stn_id", Value: "35"},
		{Name: "name", Value: "Helsinki"},
	}}
	f := buildFilter(q, "datetime")
	and := f["$and"].([]bson.M)
	if len(and) != 2 {
		t.Fatalf("expected 2 clauses, got %d", len(and))
	}
	eq := and[0]["properties.stn_id"].(bson.M)
	if eq["$eq"] != "35" {
		t.Fatalf("wrong equality clause: %v", eq)
	}
}

func TestBuildSort(t *testing.T) {
	criteria := []provider.SortCriterion{
		{Property: "name"},
		{Property: "datetime", Descending: true},
	}
	d := buildSort(criteria, "when")
	if len(d) != 2 {
		t.Fatalf("expected 2 sort keys, got %d", len(d))
	}
	if d[0].Key != "properties.name" || d[0].Value != 1 {
		t.Fatalf("wrong first sort key: %v", d[0])
	}
	if d[1].Key != "properties.when" || d[1].Value != -1 {
		t.Fatalf("datetime should resolve to configured property: %v", d[1])
	}
}

func TestBuildSortEmpty(t *testing.T) {
	if d := buildSort(nil, "datetime"); len(d) != 0 {
		t.Fatalf("expected no sort, got %v", d)
	}
}

func TestStoredDocParsesDatetime(t *testing.T) {
	f := &provider.Feature{
		Type: "Feature",
		Properties: map[string]any{
			"datetime": "2019-11-14T11:16:02.989Z",
			"name":     "obs-1",
		},
	}
	doc := storedDoc(f, "datetime")

	props := doc["properties"].(bson.M)
	ts, ok := props["datetime"].(time.Time)
	if !ok {
		t.Fatalf("datetime was not parsed: %T", props["datetime"])
	}
	want := time.Date(2019, 11, 14, 11, 16, 2, 989000000, time.UTC)
	if !ts.Equal(want) {
		t.Fatalf("expected %v, got %v", want, ts)
	}
	if props["name"] != "obs-1" {
		t.Fatalf("other properties must pass through: %v", props)
	}
	// The incoming feature must not be mutated.
	if _, isTime := f.Properties["datetime"].(time.Time); isTime {
		t.Fatal("storedDoc mutated the input feature")
	}
}

func TestStoredDocNeverStoresID(t *testing.T) {
	f := &provider.Feature{ID: "abc", Properties: map[string]any{}}
	doc := storedDoc(f, "datetime")
	if _, has := doc["id"]; has {
		t.Fatalf("id must not be stored: %v", doc)
	}
	if _, has := doc["_id"]; has {
		t.Fatalf("_id must be left to the server: %v", doc)
	}
}

func TestNormalizeValue(t *testing.T) {
	ts := time.Date(2020, 6, 1, 12, 0, 0, 0, time.UTC)
	oid := primitive.NewObjectID()

	props := bson.M{
		"when":   primitive.NewDateTimeFromTime(ts),
		"tags":   primitive.A{"a", "b"},
		"nested": bson.D{{Key: "ref", Value: oid}},
		"count":  int32(7),
	}
	out := normalizeProperties(props)

	if got, ok := out["when"].(time.Time); !ok || !got.Equal(ts) {
		t.Fatalf("datetime not normalized: %v", out["when"])
	}
	tags, ok := out["tags"].([]any)
	if !ok || len(tags) != 2 || tags[0] != "a" {
		t.Fatalf("array not normalized: %v", out["tags"])
	}
	nested, ok := out["nested"].(map[string]any)
	if !ok || nested["ref"] != oid.Hex() {
		t.Fatalf("embedded document not normalized: %v", out["nested"])
	}
	if out["count"] != int32(7) {
		t.Fatalf("scalar changed: %v", out["count"])
	}
}

func TestDatabaseFromURI(t *testing.T) {
	tests := []struct {
		uri     string
		want    string
		wantErr bool
	}{
		{"mongodb://localhost:27017/testdb", "testdb", false},
		{"mongodb://user:pw@host:27017/features?authSource=admin", "features", false},
		{"mongodb://localhost:27017", "", true},
		{"mongodb://localhost:27017/", "", true},
	}
	for _, tt := range tests {
		got, err := databaseFromURI(tt.uri)
		if tt.wantErr {
			if err == nil {
				t.Fatalf("%s: expected error", tt.uri)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%s: %v", tt.uri, err)
		}
		if got != tt.want {
			t.Fatalf("%s: expected %q, got %q", tt.uri, tt.want, got)
		}
	}
}
