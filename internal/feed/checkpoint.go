package feed

import (
	"context"
	"time"

	"github.com/vulnfed/vulnfed-backend/database"
)

// resolveCheckpoint derives the resume point for an ingestor from the store:
// the lastModified of the most recently modified record, or fallback when
// the store is empty. Checkpoint state is never written anywhere; the next
// run recomputes it from what actually got persisted.
func resolveCheckpoint(ctx context.Context, store database.Store, coll string, fallback time.Time) (time.Time, error) {
	latest, err := store.FindLatestCVE(ctx, coll, "lastModified")
	if err != nil {
		return time.Time{}, err
	}
	if latest == nil || latest.LastModified == nil {
		return fallback, nil
	}
	return *latest.LastModified, nil
}
