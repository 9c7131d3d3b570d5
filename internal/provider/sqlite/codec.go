package sqlite

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/ogcapi/featureserv/internal/provider"
)

// encodeGeometry serializes a feature's geometry to GeoJSON text and
// computes its bounding box for the denormalized bbox columns.
func encodeGeometry(f *provider.Feature) (string, orb.Bound, error) {
	if f.Geometry == nil {
		return "", orb.Bound{}, fmt.Errorf("%w: geometry is required", provider.ErrInvalidFeature)
	}
	data, err := json.Marshal(f.Geometry)
	if err != nil {
		return "", orb.Bound{}, fmt.Errorf("%w: geometry: %v", provider.ErrInvalidFeature, err)
	}
	return string(data), f.Geometry.Geometry().Bound(), nil
}

// encodeProperties serializes properties to a JSON document and pulls
// out the configured datetime property for the datetime column. The
// column value is nil when the property is missing or not RFC 3339.
func encodeProperties(props map[string]any, datetimeField string) (string, any, error) {
	if props == nil {
		props = map[string]any{}
	}
	data, err := json.Marshal(props)
	if err != nil {
		return "", nil, fmt.Errorf("%w: properties: %v", provider.ErrInvalidFeature, err)
	}

	var dt any
	if raw, ok := props[datetimeField].(string); ok {
		if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			dt = t.UTC().Format(timeLayout)
		}
	}
	return string(data), dt, nil
}

func decodeFeature(id int64, geomText, propsText string) (*provider.Feature, error) {
	geom, err := geojson.UnmarshalGeometry([]byte(geomText))
	if err != nil {
		return nil, fmt.Errorf("sqlite: decode geometry for feature %d: %w", id, err)
	}
	var props map[string]any
	if err := json.Unmarshal([]byte(propsText), &props); err != nil {
		return nil, fmt.Errorf("sqlite: decode properties for feature %d: %w", id, err)
	}
	return &provider.Feature{
		Type:       "Feature",
		ID:         strconv.FormatInt(id, 10),
		Geometry:   geom,
		Properties: props,
	}, nil
}
