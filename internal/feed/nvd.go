package feed

import (
	"context"
	"encoding/json"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/xerrors"

	"github.com/vulnfed/vulnfed-backend/config"
	"github.com/vulnfed/vulnfed-backend/database"
	"github.com/vulnfed/vulnfed-backend/model"
)

const nvdTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// NVDIngestor pulls the primary NVD feed in fixed-size date windows,
// resuming from the lastModified high-water mark already in the store.
// Pagination inside a window is offset-driven against the feed-reported
// totalResults.
type NVDIngestor struct {
	store     database.Store
	client    *Client
	cfg       config.NVDConfig
	batchSize int
	now       func() time.Time
	log       *zap.SugaredLogger
}

// NewNVDIngestor wires the windowed primary-feed ingestor.
func NewNVDIngestor(store database.Store, client *Client, cfg config.NVDConfig, log *zap.SugaredLogger) *NVDIngestor {
	return &NVDIngestor{
		store:     store,
		client:    client,
		cfg:       cfg,
		batchSize: cfg.BatchSize,
		now:       time.Now,
		log:       log,
	}
}

// Name identifies the ingestor in supervisor status reports.
func (ing *NVDIngestor) Name() string { return "nvd" }

// Run advances from the checkpoint to now in windows of WindowDays,
// persisting once per window. A fetch failure that exhausts retries aborts
// the run; the unpersisted window is dropped and re-covered next run because
// the checkpoint only moves via persisted records.
func (ing *NVDIngestor) Run(ctx context.Context) error {
	fallback, err := time.ParseInLocation("2006-01-02", ing.cfg.DefaultStart, time.UTC)
	if err != nil {
		return xerrors.Errorf("invalid default start date %q: %w", ing.cfg.DefaultStart, err)
	}

	start, err := resolveCheckpoint(ctx, ing.store, database.CollCVE, fallback)
	if err != nil {
		return xerrors.Errorf("unable to resolve NVD checkpoint: %w", err)
	}

	end := ing.now()
	ing.log.Infof("[NVD] starting windowed pull from %s to %s", start.Format(time.RFC3339), end.Format(time.RFC3339))

	for start.Before(end) {
		windowEnd := start.AddDate(0, 0, ing.cfg.WindowDays)
		if windowEnd.After(end) {
			windowEnd = end
		}

		records, err := ing.fetchWindow(ctx, start, windowEnd)
		if err != nil {
			ing.log.Errorf("[NVD] window %s..%s failed, dropping %d unpersisted records: %v",
				start.Format(time.RFC3339), windowEnd.Format(time.RFC3339), len(records), err)
			return err
		}

		if err := persistRecords(ctx, ing.store, database.CollCVE, records, ing.batchSize); err != nil {
			ing.log.Errorf("[NVD] persist failed: %v", err)
			return err
		}
		ing.log.Infof("[NVD] persisted %d records for window %s..%s",
			len(records), start.Format(time.RFC3339), windowEnd.Format(time.RFC3339))

		if err := sleepContext(ctx, ing.cfg.WindowDelay()); err != nil {
			return err
		}
		start = windowEnd.AddDate(0, 0, 1)
	}

	ing.log.Info("[NVD] pull complete")
	return nil
}

// fetchWindow pages through one window until the cumulative count reaches
// the feed-reported total.
func (ing *NVDIngestor) fetchWindow(ctx context.Context, start, end time.Time) ([]model.CVERecord, error) {
	var records []model.CVERecord
	startIndex := 0

	for {
		env, err := ing.fetchPage(ctx, start, end, startIndex)
		if err != nil {
			return records, err
		}

		page := *env.Vulnerabilities
		for _, item := range page {
			records = append(records, normalizeNVDItem(item))
		}
		ing.log.Infof("[NVD] fetched %d records at offset %d (total %d)", len(page), startIndex, env.TotalResults)

		startIndex += ing.cfg.PageSize
		if len(records) >= env.TotalResults || len(page) == 0 {
			return records, nil
		}
	}
}

func (ing *NVDIngestor) fetchPage(ctx context.Context, start, end time.Time, startIndex int) (nvdEnvelope, error) {
	q := url.Values{}
	q.Set("pubStartDate", start.UTC().Format(nvdTimeFormat))
	q.Set("pubEndDate", end.UTC().Format(nvdTimeFormat))
	q.Set("resultsPerPage", strconv.Itoa(ing.cfg.PageSize))
	q.Set("startIndex", strconv.Itoa(startIndex))
	pageURL := ing.cfg.BaseURL + "?" + q.Encode()

	var env nvdEnvelope
	err := ing.client.GetJSON(ctx, pageURL, nvdHeaders(ing.cfg.APIKey), func(body []byte) error {
		env = nvdEnvelope{}
		if err := json.Unmarshal(body, &env); err != nil {
			return xerrors.Errorf("unable to decode NVD response: %w", err)
		}
		if env.Vulnerabilities == nil {
			return xerrors.New("NVD response is missing the vulnerabilities array")
		}
		return nil
	})
	return env, err
}

func nvdHeaders(apiKey string) map[string]string {
	if apiKey == "" {
		return nil
	}
	return map[string]string{"apiKey": apiKey}
}
