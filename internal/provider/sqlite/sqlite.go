// Package sqlite implements the feature provider contract on an
// embedded SQLite database. Each collection uses its own database file;
// features live in a single table with the geometry as GeoJSON text,
// properties as a JSON document, and denormalized bbox columns for
// spatial filtering.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/ogcapi/featureserv/internal/provider"
)

// timeLayout is a fixed-width millisecond RFC 3339 form. Fixed width
// keeps lexicographic comparison consistent with chronological order,
// which the datetime range filter relies on.
const timeLayout = "2006-01-02T15:04:05.000Z07:00"

// identifierRe limits property names that get interpolated into
// json_extract paths and ORDER BY clauses.
var identifierRe = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// SQLite serves one feature collection from a SQLite database file.
type SQLite struct {
	conn          *sql.DB
	datetimeField string
}

// New opens (or creates) the database file named by def.Data and runs
// pending migrations.
func New(ctx context.Context, def provider.Definition) (provider.Provider, error) {
	if def.Data == "" {
		return nil, errors.New("sqlite: database path is required")
	}

	conn, err := sql.Open("sqlite", def.Data+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	conn.SetMaxOpenConns(1)

	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("sqlite: ping: %w", err)
	}

	goose.SetBaseFS(migrationFS)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("sqlite3"); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("sqlite: set dialect: %w", err)
	}
	if err := goose.Up(conn, "migrations"); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("sqlite: migrate: %w", err)
	}

	return &SQLite{conn: conn, datetimeField: def.DatetimeProperty()}, nil
}

// buildWhere translates query parameters into a WHERE clause and its
// arguments. The clause is empty when no filters apply.
func (s *SQLite) buildWhere(q provider.Query) (string, []any, error) {
	var clauses []string
	var args []any

	if q.BBox != nil {
		b := *q.BBox
		clauses = append(clauses, "maxx >= ? AND minx <= ? AND maxy >= ? AND miny <= ?")
		args = append(args, b[0], b[2], b[1], b[3])
	}

	if q.Datetime != nil {
		if q.Datetime.Start != nil {
			clauses = append(clauses, "datetime >= ?")
			args = append(args, q.Datetime.Start.UTC().Format(timeLayout))
		}
		if q.Datetime.End != nil {
			end := *q.Datetime.End
			// The column stores millisecond precision; widen a
			// sub-millisecond end so the boundary instant stays included.
			if end.Nanosecond()%int(time.Millisecond) != 0 {
				end = end.Add(time.Millisecond)
			}
			clauses = append(clauses, "datetime < ?")
			args = append(args, end.UTC().Format(timeLayout))
		}
	}

	for _, pf := range q.Properties {
		if !identifierRe.MatchString(pf.Name) {
			return "", nil, fmt.Errorf("%w: property name %q", provider.ErrInvalidQuery, pf.Name)
		}
		clauses = append(clauses, fmt.Sprintf("json_extract(properties, '$.%s') = ?", pf.Name))
		args = append(args, pf.Value)
	}

	if len(clauses) == 0 {
		return "", args, nil
	}
	where := " WHERE " + clauses[0]
	for _, c := range clauses[1:] {
		where += " AND " + c
	}
	return where, args, nil
}

// buildOrderBy translates sort criteria into an ORDER BY clause.
// Sorting on "datetime" uses the dedicated column; everything else
// sorts on the extracted JSON property.
func (s *SQLite) buildOrderBy(criteria []provider.SortCriterion) (string, error) {
	if len(criteria) == 0 {
		return "", nil
	}
	clause := " ORDER BY "
	for i, c := range criteria {
		if !identifierRe.MatchString(c.Property) {
			return "", fmt.Errorf("%w: sort key %q", provider.ErrInvalidQuery, c.Property)
		}
		if i > 0 {
			clause += ", "
		}
		if c.Property == "datetime" || c.Property == s.datetimeField {
			clause += "datetime"
		} else {
			clause += fmt.Sprintf("json_extract(properties, '$.%s')", c.Property)
		}
		if c.Descending {
			clause += " DESC"
		}
	}
	return clause, nil
}

// Query applies the AND of all filters, counts the full match set, and
// returns the requested page.
func (s *SQLite) Query(ctx context.Context, q provider.Query) (*provider.FeatureCollection, error) {
	where, args, err := s.buildWhere(q)
	if err != nil {
		return nil, err
	}

	var matched int64
	if err := s.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM features"+where, args...).Scan(&matched); err != nil {
		return nil, fmt.Errorf("sqlite: count: %w", err)
	}

	if q.ResultType == provider.ResultTypeHits {
		return provider.NewFeatureCollection(nil, matched), nil
	}

	orderBy, err := s.buildOrderBy(q.SortBy)
	if err != nil {
		return nil, err
	}

	limit := int64(-1) // SQLite treats a negative LIMIT as unlimited
	if q.Limit > 0 {
		limit = int64(q.Limit)
	}

	rows, err := s.conn.QueryContext(ctx,
		"SELECT id, geometry, properties FROM features"+where+orderBy+" LIMIT ? OFFSET ?",
		append(args, limit, q.Offset)...,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: query: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var features []*provider.Feature
	for rows.Next() {
		f, err := scanFeature(rows)
		if err != nil {
			return nil, err
		}
		features = append(features, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: rows: %w", err)
	}
	return provider.NewFeatureCollection(features, matched), nil
}

func scanFeature(scanner interface{ Scan(...any) error }) (*provider.Feature, error) {
	var (
		id        int64
		geomText  string
		propsText string
	)
	if err := scanner.Scan(&id, &geomText, &propsText); err != nil {
		return nil, fmt.Errorf("sqlite: scan feature: %w", err)
	}
	return decodeFeature(id, geomText, propsText)
}

// Get returns a single feature by its numeric identifier.
func (s *SQLite) Get(ctx context.Context, id string) (*provider.Feature, error) {
	rowID, err := parseID(id)
	if err != nil {
		return nil, err
	}

	row := s.conn.QueryRowContext(ctx, "SELECT id, geometry, properties FROM features WHERE id = ?", rowID)
	f, err := scanFeature(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, provider.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return f, nil
}

// Create stores a new feature and returns its assigned row identifier.
func (s *SQLite) Create(ctx context.Context, f *provider.Feature) (string, error) {
	geomText, bound, err := encodeGeometry(f)
	if err != nil {
		return "", err
	}
	propsText, dt, err := encodeProperties(f.Properties, s.datetimeField)
	if err != nil {
		return "", err
	}

	res, err := s.conn.ExecContext(ctx,
		`INSERT INTO features (geometry, properties, minx, miny, maxx, maxy, datetime)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		geomText, propsText, bound.Min[0], bound.Min[1], bound.Max[0], bound.Max[1], dt,
	)
	if err != nil {
		return "", fmt.Errorf("sqlite: insert: %w", err)
	}
	rowID, err := res.LastInsertId()
	if err != nil {
		return "", fmt.Errorf("sqlite: insert id: %w", err)
	}
	return strconv.FormatInt(rowID, 10), nil
}

// Update replaces the geometry and properties of an existing feature.
func (s *SQLite) Update(ctx context.Context, id string, f *provider.Feature) error {
	rowID, err := parseID(id)
	if err != nil {
		return err
	}
	geomText, bound, err := encodeGeometry(f)
	if err != nil {
		return err
	}
	propsText, dt, err := encodeProperties(f.Properties, s.datetimeField)
	if err != nil {
		return err
	}

	res, err := s.conn.ExecContext(ctx,
		`UPDATE features SET geometry = ?, properties = ?, minx = ?, miny = ?, maxx = ?, maxy = ?, datetime = ?
		 WHERE id = ?`,
		geomText, propsText, bound.Min[0], bound.Min[1], bound.Max[0], bound.Max[1], dt, rowID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: update %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: update %s: %w", id, err)
	}
	if n == 0 {
		return provider.ErrNotFound
	}
	return nil
}

// Delete removes a feature by its numeric identifier.
func (s *SQLite) Delete(ctx context.Context, id string) error {
	rowID, err := parseID(id)
	if err != nil {
		return err
	}
	res, err := s.conn.ExecContext(ctx, "DELETE FROM features WHERE id = ?", rowID)
	if err != nil {
		return fmt.Errorf("sqlite: delete %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: delete %s: %w", id, err)
	}
	if n == 0 {
		return provider.ErrNotFound
	}
	return nil
}

// Fields scans the stored features and reports property names with
// inferred types. The datetime property is always reported under the
// "datetime" key.
func (s *SQLite) Fields(ctx context.Context) (map[string]provider.FieldType, error) {
	rows, err := s.conn.QueryContext(ctx, "SELECT properties FROM features")
	if err != nil {
		return nil, fmt.Errorf("sqlite: fields: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	fields := make(map[string]provider.FieldType)
	for rows.Next() {
		var propsText string
		if err := rows.Scan(&propsText); err != nil {
			return nil, fmt.Errorf("sqlite: scan properties: %w", err)
		}
		var props map[string]any
		if err := json.Unmarshal([]byte(propsText), &props); err != nil {
			return nil, fmt.Errorf("sqlite: decode properties: %w", err)
		}
		for key, val := range props {
			if _, seen := fields[key]; seen {
				continue
			}
			if t := provider.InferFieldType(val); t != "" {
				fields[key] = t
			}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: rows: %w", err)
	}
	fields["datetime"] = provider.FieldDatetime
	return fields, nil
}

// Close closes the database file.
func (s *SQLite) Close(ctx context.Context) error {
	return s.conn.Close()
}

func parseID(id string) (int64, error) {
	rowID, err := strconv.ParseInt(id, 10, 64)
	if err != nil || rowID < 1 {
		return 0, fmt.Errorf("%w: %q", provider.ErrInvalidIdentifier, id)
	}
	return rowID, nil
}
