// Package search serves queries that span the three vulnerability stores:
// federated free-text/date search and asset correlation. The stores keep
// their own schemas; results are tagged with provenance instead of being
// forced into a merged shape.
package search

import (
	"context"
	"time"

	"github.com/araddon/dateparse"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/vulnfed/vulnfed-backend/database"
	"github.com/vulnfed/vulnfed-backend/model"
)

// Provenance labels, in merge order.
const (
	SourceNVD    = "NVD API"
	SourceCvss   = "CVSS API"
	SourceBackup = "Red Hat Backup API"
)

// Result is one federated hit: the record plus where it came from.
type Result struct {
	model.CVERecord
	Source string `json:"source"`
}

// Page is the federated search response envelope. Total is the sum of the
// three independently paginated result counts, not a true global count.
type Page struct {
	CVEs  []Result `json:"cves"`
	Total int      `json:"total"`
	Page  int      `json:"page"`
	Pages int      `json:"pages"`
}

// Engine dispatches equivalent lookups against all three stores and merges
// the tagged results.
type Engine struct {
	store database.Store
	log   *zap.SugaredLogger
}

// NewEngine builds the federated search engine over the store capability.
func NewEngine(store database.Store, log *zap.SugaredLogger) *Engine {
	return &Engine{store: store, log: log}
}

const defaultLimit = 20

// Search runs the query against all three stores, each paginated by the same
// page/limit, and merges the results in fixed store order. A query that
// parses as a calendar date matches the stores' primary date fields over
// that day; anything else is a case-insensitive pattern match. An unmatched
// query returns an empty page, never an error. Out-of-range page and limit
// values are clamped, so callers may pass user input through unchecked.
func (e *Engine) Search(ctx context.Context, q string, page, limit int) (Page, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultLimit
	}
	skip := (page - 1) * limit

	var filters map[string]database.Filter
	if day, ok := parseQueryDate(q); ok {
		filters = dateFilters(day)
	} else {
		filters = patternFilters(q)
	}

	nvd, err := e.store.FindCVEs(ctx, database.CollCVE, filters[database.CollCVE], "lastModified", skip, limit)
	if err != nil {
		return Page{}, err
	}
	cvss, err := e.store.FindCVEs(ctx, database.CollCvss, filters[database.CollCvss], "lastModified", skip, limit)
	if err != nil {
		return Page{}, err
	}
	backup, err := e.store.FindCVEs(ctx, database.CollBackup, filters[database.CollBackup], "lastModified", skip, limit)
	if err != nil {
		return Page{}, err
	}

	results := append(tag(nvd, SourceNVD), tag(cvss, SourceCvss)...)
	results = append(results, tag(backup, SourceBackup)...)

	total := len(nvd) + len(cvss) + len(backup)
	return Page{
		CVEs:  results,
		Total: total,
		Page:  page,
		Pages: (total + limit - 1) / limit,
	}, nil
}

func tag(records []model.CVERecord, source string) []Result {
	return lo.Map(records, func(rec model.CVERecord, _ int) Result {
		return Result{CVERecord: rec, Source: source}
	})
}

// parseQueryDate decides the search branch: a query that parses as a
// calendar date routes to the date-range match.
func parseQueryDate(q string) (time.Time, bool) {
	t, err := dateparse.ParseAny(q)
	if err != nil {
		return time.Time{}, false
	}
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), true
}

// dateFilters matches records whose primary date fields fall on the given
// day. The backup family keys its date branch on public_date instead of
// published.
func dateFilters(day time.Time) map[string]database.Filter {
	next := day.AddDate(0, 0, 1)
	nvdFilter := database.Filter{Any: [][]database.Condition{
		dayRange("published", day, next),
		dayRange("lastModified", day, next),
	}}
	backupFilter := database.Filter{Any: [][]database.Condition{
		dayRange("public_date", day, next),
		dayRange("lastModified", day, next),
	}}

	return map[string]database.Filter{
		database.CollCVE:    nvdFilter,
		database.CollCvss:   nvdFilter,
		database.CollBackup: backupFilter,
	}
}

// dayRange bounds one date field to [day, next).
func dayRange(field string, day, next time.Time) []database.Condition {
	return []database.Condition{
		{Field: field, Op: database.OpGTE, Value: day},
		{Field: field, Op: database.OpLT, Value: next},
	}
}

// patternFilters matches the query case-insensitively against the id, the
// description texts and the known severity fields. The backup family has no
// nested metrics, so it matches its flat severity field instead.
func patternFilters(q string) map[string]database.Filter {
	nvdFilter := database.Filter{Any: [][]database.Condition{
		{{Field: "id", Op: database.OpContains, Value: q}},
		{{Field: "descriptions[*].value", Op: database.OpContains, Value: q}},
		{{Field: "metrics.cvssMetricV2[*].baseSeverity", Op: database.OpContains, Value: q}},
		{{Field: "metrics.cvssMetricV31[*].cvssData.baseSeverity", Op: database.OpContains, Value: q}},
	}}

	backupFilter := database.Filter{Any: [][]database.Condition{
		{{Field: "id", Op: database.OpContains, Value: q}},
		{{Field: "descriptions[*].value", Op: database.OpContains, Value: q}},
		{{Field: "severity", Op: database.OpContains, Value: q}},
	}}

	return map[string]database.Filter{
		database.CollCVE:    nvdFilter,
		database.CollCvss:   nvdFilter,
		database.CollBackup: backupFilter,
	}
}
