package web

import (
	"fmt"
	"net/http"
	"sort"
	"strconv"

	"github.com/ogcapi/featureserv/internal/provider"
)

// reservedParams are items query parameters with dedicated meaning;
// every other parameter is treated as a property filter and must name
// a known field.
var reservedParams = map[string]bool{
	"bbox":       true,
	"datetime":   true,
	"limit":      true,
	"offset":     true,
	"sortby":     true,
	"resulttype": true,
}

// parseItemsQuery translates the request query string into a provider
// query, validating every parameter against the collection's fields.
func (s *Server) parseItemsQuery(r *http.Request, c *Collection) (provider.Query, error) {
	q := provider.Query{
		Limit:      s.cfg.DefaultLimit,
		ResultType: provider.ResultTypeResults,
	}
	values := r.URL.Query()

	if v := values.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 1 {
			return q, fmt.Errorf("%w: limit must be a positive integer", provider.ErrInvalidQuery)
		}
		if limit > s.cfg.MaxLimit {
			limit = s.cfg.MaxLimit
		}
		q.Limit = limit
	}
	if v := values.Get("offset"); v != "" {
		offset, err := strconv.Atoi(v)
		if err != nil || offset < 0 {
			return q, fmt.Errorf("%w: offset must be a non-negative integer", provider.ErrInvalidQuery)
		}
		q.Offset = offset
	}

	bbox, err := provider.ParseBBox(values.Get("bbox"))
	if err != nil {
		return q, err
	}
	q.BBox = bbox

	interval, err := provider.ParseInterval(values.Get("datetime"))
	if err != nil {
		return q, err
	}
	q.Datetime = interval

	criteria, err := provider.ParseSortBy(values.Get("sortby"))
	if err != nil {
		return q, err
	}
	for _, criterion := range criteria {
		if _, ok := c.Fields[criterion.Property]; !ok {
			return q, fmt.Errorf("%w: unknown sortby key %q", provider.ErrInvalidQuery, criterion.Property)
		}
	}
	q.SortBy = criteria

	switch v := values.Get("resulttype"); v {
	case "", provider.ResultTypeResults:
	case provider.ResultTypeHits:
		q.ResultType = provider.ResultTypeHits
	default:
		return q, fmt.Errorf("%w: resulttype must be %q or %q", provider.ErrInvalidQuery,
			provider.ResultTypeResults, provider.ResultTypeHits)
	}

	// Remaining parameters are property equality filters. Keys are
	// sorted so the resulting filter order is deterministic.
	var keys []string
	for key := range values {
		if !reservedParams[key] {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	for _, key := range keys {
		if _, ok := c.Fields[key]; !ok {
			return q, fmt.Errorf("%w: unknown parameter %q", provider.ErrInvalidQuery, key)
		}
		q.Properties = append(q.Properties, provider.PropertyFilter{
			Name:  key,
			Value: values.Get(key),
		})
	}

	return q, nil
}
