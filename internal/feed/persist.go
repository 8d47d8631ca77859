package feed

import (
	"context"
	"fmt"

	"github.com/vulnfed/vulnfed-backend/database"
	"github.com/vulnfed/vulnfed-backend/model"
)

// PersistenceError reports a failed batch write. Batches are not
// transactional: writes before the failing batch stay persisted, which is
// safe because re-running the ingestor upserts the same records again.
type PersistenceError struct {
	Coll string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("unable to persist records into %s: %v", e.Coll, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// persistRecords upserts the records into coll in batches of batchSize.
// batchSize <= 0 writes everything as a single batch; zero records is a
// no-op.
func persistRecords(ctx context.Context, store database.Store, coll string, records []model.CVERecord, batchSize int) error {
	if len(records) == 0 {
		return nil
	}
	if batchSize <= 0 {
		batchSize = len(records)
	}

	for start := 0; start < len(records); start += batchSize {
		end := start + batchSize
		if end > len(records) {
			end = len(records)
		}
		if err := store.UpsertCVEs(ctx, coll, records[start:end]); err != nil {
			return &PersistenceError{Coll: coll, Err: err}
		}
	}
	return nil
}
