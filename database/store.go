package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/arangodb/go-driver/v2/arangodb"
	"github.com/vulnfed/vulnfed-backend/model"
)

// Op is a filter comparison operator.
type Op string

// Supported filter operators.
const (
	OpEq       Op = "eq"
	OpContains Op = "contains" // case-insensitive substring
	OpGTE      Op = "gte"
	OpLT       Op = "lt"
)

// Condition matches one document field. Field is a dot path; a path segment
// may carry a [*] marker to match inside an array of objects, e.g.
// "descriptions[*].value" or "metrics.cvssMetricV31[*].cvssData.baseSeverity".
type Condition struct {
	Field string
	Op    Op
	Value interface{}
}

// Filter combines conditions. Every entry of All must hold; when Any is
// non-empty, at least one of its groups must hold, with the conditions
// inside a group ANDed (a group expresses e.g. a date range). An empty
// filter matches everything.
type Filter struct {
	All []Condition
	Any [][]Condition
}

// Store is the document-store capability the engine is written against. The
// production implementation runs on ArangoDB; tests use an in-memory one.
type Store interface {
	FindCVEs(ctx context.Context, coll string, filter Filter, sortField string, skip, limit int) ([]model.CVERecord, error)
	FindLatestCVE(ctx context.Context, coll string, sortField string) (*model.CVERecord, error)
	CountCVEs(ctx context.Context, coll string, filter Filter) (int, error)
	UpsertCVEs(ctx context.Context, coll string, records []model.CVERecord) error
	FindAssetByID(ctx context.Context, id string) (*model.Asset, error)
}

// ArangoStore implements Store with AQL queries against the shared connection.
type ArangoStore struct {
	db DBConnection
}

// NewStore wraps an initialized connection in the Store capability.
func NewStore(db DBConnection) *ArangoStore {
	return &ArangoStore{db: db}
}

// FindCVEs runs a filtered, sorted, paginated query against one collection.
// limit <= 0 returns the full result set.
func (s *ArangoStore) FindCVEs(ctx context.Context, coll string, filter Filter, sortField string, skip, limit int) ([]model.CVERecord, error) {
	bindVars := map[string]interface{}{"@coll": coll}

	query := "FOR doc IN @@coll"
	query += buildFilterAQL(filter, bindVars)
	if sortField != "" {
		query += fmt.Sprintf(" SORT doc.%s DESC", sortField)
	}
	if limit > 0 {
		query += " LIMIT @skip, @limit"
		bindVars["skip"] = skip
		bindVars["limit"] = limit
	}
	query += " RETURN doc"

	cursor, err := s.db.Database.Query(ctx, query, &arangodb.QueryOptions{BindVars: bindVars})
	if err != nil {
		return nil, err
	}
	defer cursor.Close()

	var records []model.CVERecord
	for cursor.HasMore() {
		var rec model.CVERecord
		if _, err := cursor.ReadDocument(ctx, &rec); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

// FindLatestCVE returns the single record with the greatest value of
// sortField, or nil on an empty collection.
func (s *ArangoStore) FindLatestCVE(ctx context.Context, coll string, sortField string) (*model.CVERecord, error) {
	records, err := s.FindCVEs(ctx, coll, Filter{}, sortField, 0, 1)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	return &records[0], nil
}

// CountCVEs returns the number of documents matching the filter.
func (s *ArangoStore) CountCVEs(ctx context.Context, coll string, filter Filter) (int, error) {
	bindVars := map[string]interface{}{"@coll": coll}

	query := "FOR doc IN @@coll"
	query += buildFilterAQL(filter, bindVars)
	query += " COLLECT WITH COUNT INTO total RETURN total"

	cursor, err := s.db.Database.Query(ctx, query, &arangodb.QueryOptions{BindVars: bindVars})
	if err != nil {
		return 0, err
	}
	defer cursor.Close()

	var total int
	if _, err := cursor.ReadDocument(ctx, &total); err != nil {
		return 0, err
	}
	return total, nil
}

// UpsertCVEs writes the batch keyed by the feed id. An existing document is
// fully replaced, so a re-fetched record never merges with stale fields.
func (s *ArangoStore) UpsertCVEs(ctx context.Context, coll string, records []model.CVERecord) error {
	if len(records) == 0 {
		return nil
	}

	query := `
		FOR rec IN @records
			UPSERT { id: rec.id }
			INSERT rec
			REPLACE rec
			IN @@coll
	`

	bindVars := map[string]interface{}{
		"@coll":   coll,
		"records": records,
	}

	cursor, err := s.db.Database.Query(ctx, query, &arangodb.QueryOptions{BindVars: bindVars})
	if err != nil {
		return err
	}
	return cursor.Close()
}

// FindAssetByID looks up one asset document by key, returning nil when absent.
func (s *ArangoStore) FindAssetByID(ctx context.Context, id string) (*model.Asset, error) {
	query := `FOR doc IN asset FILTER doc._key == @key LIMIT 1 RETURN doc`
	bindVars := map[string]interface{}{"key": id}

	cursor, err := s.db.Database.Query(ctx, query, &arangodb.QueryOptions{BindVars: bindVars})
	if err != nil {
		return nil, err
	}
	defer cursor.Close()

	if !cursor.HasMore() {
		return nil, nil
	}
	var asset model.Asset
	if _, err := cursor.ReadDocument(ctx, &asset); err != nil {
		return nil, err
	}
	return &asset, nil
}

// buildFilterAQL renders the filter as AQL FILTER clauses, appending bind
// variables as it goes.
func buildFilterAQL(filter Filter, bindVars map[string]interface{}) string {
	var clauses []string

	for _, cond := range filter.All {
		clauses = append(clauses, " FILTER "+conditionAQL(cond, bindVars))
	}

	if len(filter.Any) > 0 {
		var ors []string
		for _, group := range filter.Any {
			var ands []string
			for _, cond := range group {
				ands = append(ands, conditionAQL(cond, bindVars))
			}
			ors = append(ors, "("+strings.Join(ands, " AND ")+")")
		}
		clauses = append(clauses, " FILTER ("+strings.Join(ors, " OR ")+")")
	}

	return strings.Join(clauses, "")
}

func conditionAQL(cond Condition, bindVars map[string]interface{}) string {
	param := fmt.Sprintf("p%d", len(bindVars))
	bindVars[param] = bindValue(cond.Value)
	_, isInstant := cond.Value.(time.Time)

	// Array paths expand through an inline filter on the array elements.
	if prefix, rest, ok := strings.Cut(cond.Field, "[*]."); ok {
		inner := compareAQL("CURRENT."+rest, param, cond.Op, isInstant)
		return fmt.Sprintf("LENGTH(doc.%s[* FILTER %s]) > 0", prefix, inner)
	}

	return compareAQL("doc."+cond.Field, param, cond.Op, isInstant)
}

// compareAQL renders one comparison. Instant bounds go through
// DATE_TIMESTAMP on both sides: stored timestamps carry whatever fractional
// precision the feed supplied, so a string comparison would misorder values
// at a precision boundary.
func compareAQL(field, param string, op Op, isInstant bool) string {
	lhs, rhs := field, "@"+param
	if isInstant {
		lhs = fmt.Sprintf("DATE_TIMESTAMP(%s)", field)
		rhs = fmt.Sprintf("DATE_TIMESTAMP(@%s)", param)
	}
	switch op {
	case OpContains:
		return fmt.Sprintf("CONTAINS(LOWER(%s), LOWER(@%s))", field, param)
	case OpGTE:
		return fmt.Sprintf("%s >= %s", lhs, rhs)
	case OpLT:
		return fmt.Sprintf("%s < %s", lhs, rhs)
	default:
		return fmt.Sprintf("%s == %s", lhs, rhs)
	}
}

// bindValue normalizes condition values for AQL. Timestamps become RFC3339
// UTC strings matching the stored encoding.
func bindValue(v interface{}) interface{} {
	if t, ok := v.(time.Time); ok {
		return t.UTC().Format(time.RFC3339Nano)
	}
	return v
}
