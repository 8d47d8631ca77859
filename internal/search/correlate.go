package search

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/vulnfed/vulnfed-backend/database"
	"github.com/vulnfed/vulnfed-backend/model"
)

// ErrAssetNotFound reports that the asset id could not be resolved. It is
// the only error the correlation resolver surfaces for a valid request; a
// match miss is just an empty result.
var ErrAssetNotFound = errors.New("asset not found")

// Resolver answers "which vulnerability records mention this asset": a
// case-insensitive substring match of the asset's free text against the
// description field of every store, unpaginated.
type Resolver struct {
	store database.Store
	log   *zap.SugaredLogger
}

// NewResolver builds the correlation resolver over the store capability.
func NewResolver(store database.Store, log *zap.SugaredLogger) *Resolver {
	return &Resolver{store: store, log: log}
}

// CVEsForAsset concatenates the matches in fixed store order: primary,
// CVSS-filtered, backup.
func (r *Resolver) CVEsForAsset(ctx context.Context, assetID string) ([]model.CVERecord, error) {
	asset, err := r.store.FindAssetByID(ctx, assetID)
	if err != nil {
		return nil, err
	}
	if asset == nil {
		return nil, ErrAssetNotFound
	}

	filter := database.Filter{All: []database.Condition{
		{Field: "descriptions[*].value", Op: database.OpContains, Value: asset.Text},
	}}

	matches := []model.CVERecord{}
	for _, coll := range []string{database.CollCVE, database.CollCvss, database.CollBackup} {
		records, err := r.store.FindCVEs(ctx, coll, filter, "", 0, 0)
		if err != nil {
			return nil, err
		}
		matches = append(matches, records...)
	}
	return matches, nil
}
