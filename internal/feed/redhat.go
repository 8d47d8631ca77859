package feed

import (
	"context"
	"encoding/json"
	"net/url"

	"go.uber.org/zap"
	"golang.org/x/xerrors"

	"github.com/vulnfed/vulnfed-backend/config"
	"github.com/vulnfed/vulnfed-backend/database"
	"github.com/vulnfed/vulnfed-backend/model"
)

// BackupIngestor pulls the Red Hat security data API, the secondary source.
// The feed reports no total count, so pagination is cursor-by-date: each
// call returns up to MaxPage items after the cursor, and a short page
// signals exhaustion. The cursor advances to the published date of the last
// record plus one day.
type BackupIngestor struct {
	store     database.Store
	client    *Client
	cfg       config.BackupConfig
	batchSize int
	log       *zap.SugaredLogger
}

// NewBackupIngestor wires the secondary-source ingestor.
func NewBackupIngestor(store database.Store, client *Client, cfg config.BackupConfig, log *zap.SugaredLogger) *BackupIngestor {
	return &BackupIngestor{
		store:     store,
		client:    client,
		cfg:       cfg,
		batchSize: cfg.BatchSize,
		log:       log,
	}
}

// Name identifies the ingestor in supervisor status reports.
func (ing *BackupIngestor) Name() string { return "backup" }

// Run walks the date cursor from the fixed start and persists once over all
// accumulated records.
func (ing *BackupIngestor) Run(ctx context.Context) error {
	cursor := ing.cfg.DefaultStart
	var records []model.CVERecord

	ing.log.Infof("[Backup] starting pull after %s", cursor)

	for {
		page, err := ing.fetchPage(ctx, cursor)
		if err != nil {
			ing.log.Errorf("[Backup] fetch after %s failed, dropping %d unpersisted records: %v",
				cursor, len(records), err)
			return err
		}

		for _, item := range page {
			records = append(records, normalizeBackupItem(item))
		}
		ing.log.Infof("[Backup] fetched %d records after %s", len(page), cursor)

		if len(page) < ing.cfg.MaxPage {
			break
		}

		last := records[len(records)-1]
		if last.Published == nil {
			// cannot advance the cursor without a parseable date
			ing.log.Warnf("[Backup] last record %s has no published date, stopping pagination", last.ID)
			break
		}
		cursor = last.Published.AddDate(0, 0, 1).Format("2006-01-02")
	}

	if err := persistRecords(ctx, ing.store, database.CollBackup, records, ing.batchSize); err != nil {
		ing.log.Errorf("[Backup] persist failed: %v", err)
		return err
	}
	ing.log.Infof("[Backup] persisted %d records, pull complete", len(records))
	return nil
}

func (ing *BackupIngestor) fetchPage(ctx context.Context, after string) ([]backupItem, error) {
	q := url.Values{}
	q.Set("after", after)
	pageURL := ing.cfg.BaseURL + "?" + q.Encode()

	var items []backupItem
	err := ing.client.GetJSON(ctx, pageURL, nil, func(body []byte) error {
		items = nil
		// the backup feed serves a bare array with no envelope
		if err := json.Unmarshal(body, &items); err != nil {
			return xerrors.Errorf("backup feed response is not an array: %w", err)
		}
		return nil
	})
	return items, err
}
