package feed

import (
	"context"
	"encoding/json"
	"net/url"
	"strconv"

	"go.uber.org/zap"
	"golang.org/x/xerrors"

	"github.com/vulnfed/vulnfed-backend/config"
	"github.com/vulnfed/vulnfed-backend/database"
	"github.com/vulnfed/vulnfed-backend/model"
)

// CVSSIngestor pulls the CVSS-vector-filtered NVD feed. It has no
// checkpoint: every run rescans the full filtered set, which stays small
// because of the fixed vector filter. The first page establishes the
// feed-reported total; pagination advances by offset until it is reached.
type CVSSIngestor struct {
	store     database.Store
	client    *Client
	cfg       config.CVSSConfig
	apiKey    string
	batchSize int
	log       *zap.SugaredLogger
}

// NewCVSSIngestor wires the filtered-feed ingestor.
func NewCVSSIngestor(store database.Store, client *Client, cfg config.CVSSConfig, apiKey string, log *zap.SugaredLogger) *CVSSIngestor {
	return &CVSSIngestor{
		store:     store,
		client:    client,
		cfg:       cfg,
		apiKey:    apiKey,
		batchSize: cfg.BatchSize,
		log:       log,
	}
}

// Name identifies the ingestor in supervisor status reports.
func (ing *CVSSIngestor) Name() string { return "cvss" }

// Run rescans the filtered feed and persists once over the full set.
func (ing *CVSSIngestor) Run(ctx context.Context) error {
	ing.log.Infof("[CVSS] starting full rescan with vector %s", ing.cfg.Vector)

	env, err := ing.fetchPage(ctx, 0)
	if err != nil {
		ing.log.Errorf("[CVSS] initial fetch failed: %v", err)
		return err
	}

	total := env.TotalResults
	var records []model.CVERecord
	for _, item := range *env.Vulnerabilities {
		records = append(records, normalizeNVDItem(item))
	}
	ing.log.Infof("[CVSS] %d records to fetch, got initial %d", total, len(records))

	startIndex := ing.cfg.PageSize
	for len(records) < total {
		env, err := ing.fetchPage(ctx, startIndex)
		if err != nil {
			ing.log.Errorf("[CVSS] fetch at offset %d failed, dropping %d unpersisted records: %v",
				startIndex, len(records), err)
			return err
		}
		page := *env.Vulnerabilities
		if len(page) == 0 {
			break
		}
		for _, item := range page {
			records = append(records, normalizeNVDItem(item))
		}
		startIndex += ing.cfg.PageSize
		ing.log.Infof("[CVSS] fetched %d records, %d so far", len(page), len(records))
	}

	if err := persistRecords(ctx, ing.store, database.CollCvss, records, ing.batchSize); err != nil {
		ing.log.Errorf("[CVSS] persist failed: %v", err)
		return err
	}
	ing.log.Infof("[CVSS] persisted %d records, rescan complete", len(records))
	return nil
}

func (ing *CVSSIngestor) fetchPage(ctx context.Context, startIndex int) (nvdEnvelope, error) {
	q := url.Values{}
	q.Set("cvssV3Metrics", ing.cfg.Vector)
	q.Set("resultsPerPage", strconv.Itoa(ing.cfg.PageSize))
	q.Set("startIndex", strconv.Itoa(startIndex))
	pageURL := ing.cfg.BaseURL + "?" + q.Encode()

	var env nvdEnvelope
	err := ing.client.GetJSON(ctx, pageURL, nvdHeaders(ing.apiKey), func(body []byte) error {
		env = nvdEnvelope{}
		if err := json.Unmarshal(body, &env); err != nil {
			return xerrors.Errorf("unable to decode filtered NVD response: %w", err)
		}
		if env.Vulnerabilities == nil {
			return xerrors.New("filtered NVD response is missing the vulnerabilities array")
		}
		return nil
	})
	return env, err
}
