// Package testutil provides an in-memory Store implementation so the feed
// and search logic can be tested without a running ArangoDB.
package testutil

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/vulnfed/vulnfed-backend/database"
	"github.com/vulnfed/vulnfed-backend/model"
)

// MemStore keeps records per collection keyed by id and evaluates filters
// the way the AQL builder does. UpsertBatches records the size of every
// UpsertCVEs call for batching assertions.
type MemStore struct {
	mu            sync.Mutex
	colls         map[string]map[string]model.CVERecord
	assets        map[string]model.Asset
	UpsertBatches map[string][]int
}

// NewMemStore returns an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		colls:         map[string]map[string]model.CVERecord{},
		assets:        map[string]model.Asset{},
		UpsertBatches: map[string][]int{},
	}
}

// AddAsset seeds one asset record.
func (s *MemStore) AddAsset(asset model.Asset) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assets[asset.Key] = asset
}

// Count returns the number of records in coll.
func (s *MemStore) Count(coll string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.colls[coll])
}

// Get returns the stored record with the given id.
func (s *MemStore) Get(coll, id string) (model.CVERecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.colls[coll][id]
	return rec, ok
}

// UpsertCVEs implements database.Store.
func (s *MemStore) UpsertCVEs(_ context.Context, coll string, records []model.CVERecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.colls[coll] == nil {
		s.colls[coll] = map[string]model.CVERecord{}
	}
	for _, rec := range records {
		s.colls[coll][rec.ID] = rec
	}
	s.UpsertBatches[coll] = append(s.UpsertBatches[coll], len(records))
	return nil
}

// FindCVEs implements database.Store.
func (s *MemStore) FindCVEs(_ context.Context, coll string, filter database.Filter, sortField string, skip, limit int) ([]model.CVERecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []model.CVERecord
	for _, rec := range s.colls[coll] {
		if matchFilter(recordDoc(rec), filter) {
			matched = append(matched, rec)
		}
	}

	if sortField != "" {
		sort.SliceStable(matched, func(i, j int) bool {
			return sortKey(matched[i], sortField) > sortKey(matched[j], sortField)
		})
	} else {
		sort.SliceStable(matched, func(i, j int) bool { return matched[i].ID < matched[j].ID })
	}

	if skip >= len(matched) {
		return nil, nil
	}
	matched = matched[skip:]
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

// FindLatestCVE implements database.Store.
func (s *MemStore) FindLatestCVE(ctx context.Context, coll string, sortField string) (*model.CVERecord, error) {
	records, err := s.FindCVEs(ctx, coll, database.Filter{}, sortField, 0, 1)
	if err != nil || len(records) == 0 {
		return nil, err
	}
	return &records[0], nil
}

// CountCVEs implements database.Store.
func (s *MemStore) CountCVEs(ctx context.Context, coll string, filter database.Filter) (int, error) {
	records, err := s.FindCVEs(ctx, coll, filter, "", 0, 0)
	return len(records), err
}

// FindAssetByID implements database.Store.
func (s *MemStore) FindAssetByID(_ context.Context, id string) (*model.Asset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	asset, ok := s.assets[id]
	if !ok {
		return nil, nil
	}
	return &asset, nil
}

// recordDoc exposes a record through its JSON encoding so filter paths see
// the same field names AQL does.
func recordDoc(rec model.CVERecord) map[string]interface{} {
	data, _ := json.Marshal(rec)
	var doc map[string]interface{}
	_ = json.Unmarshal(data, &doc)
	return doc
}

func sortKey(rec model.CVERecord, field string) string {
	vals := resolvePath(recordDoc(rec), field)
	for _, v := range vals {
		if str, ok := v.(string); ok {
			return str
		}
	}
	return ""
}

func matchFilter(doc map[string]interface{}, filter database.Filter) bool {
	for _, cond := range filter.All {
		if !matchCondition(doc, cond) {
			return false
		}
	}
	if len(filter.Any) == 0 {
		return true
	}
	for _, group := range filter.Any {
		ok := true
		for _, cond := range group {
			if !matchCondition(doc, cond) {
				ok = false
				break
			}
		}
		if ok {
			return true
		}
	}
	return false
}

func matchCondition(doc map[string]interface{}, cond database.Condition) bool {
	vals := resolvePath(doc, cond.Field)
	bound := bindString(cond.Value)

	for _, v := range vals {
		str, ok := v.(string)
		if !ok {
			continue
		}
		switch cond.Op {
		case database.OpContains:
			if strings.Contains(strings.ToLower(str), strings.ToLower(bound)) {
				return true
			}
		case database.OpGTE:
			if compareValues(str, bound) >= 0 {
				return true
			}
		case database.OpLT:
			if compareValues(str, bound) < 0 {
				return true
			}
		default:
			if str == bound {
				return true
			}
		}
	}
	return false
}

// compareValues orders two field values. Values that both parse as
// timestamps compare as instants, matching the DATE_TIMESTAMP comparison the
// AQL builder emits; stored timestamps may carry fractional seconds the
// bound does not.
func compareValues(a, b string) int {
	ta, errA := time.Parse(time.RFC3339Nano, a)
	tb, errB := time.Parse(time.RFC3339Nano, b)
	if errA == nil && errB == nil {
		return ta.Compare(tb)
	}
	return strings.Compare(a, b)
}

// resolvePath walks a dot path through the document; a segment suffixed
// with [*] fans out over an array of objects.
func resolvePath(doc interface{}, path string) []interface{} {
	vals := []interface{}{doc}
	for _, seg := range strings.Split(path, ".") {
		expand := strings.HasSuffix(seg, "[*]")
		key := strings.TrimSuffix(seg, "[*]")

		var next []interface{}
		for _, cur := range vals {
			m, ok := cur.(map[string]interface{})
			if !ok {
				continue
			}
			child, ok := m[key]
			if !ok || child == nil {
				continue
			}
			if expand {
				if arr, ok := child.([]interface{}); ok {
					next = append(next, arr...)
				}
			} else {
				next = append(next, child)
			}
		}
		vals = next
	}
	return vals
}

func bindString(v interface{}) string {
	switch t := v.(type) {
	case time.Time:
		return t.UTC().Format(time.RFC3339Nano)
	case string:
		return t
	default:
		data, _ := json.Marshal(t)
		return string(data)
	}
}
