package services

import (
	"context"
	"fmt"

	"github.com/dkeller/form4ingest/internal/models"
	log "github.com/sirupsen/logrus"
)

// FilingLookup answers whether a filing has already been persisted.
// Implemented by repository.FilingRepository.
type FilingLookup interface {
	Status(ctx context.Context, accession models.AccessionNumber) (models.FilingStatus, error)
}

// ReconciliationResolver normalizes an extraction before persistence: it
// substitutes the extractor's authoritative issuer CIK for the filing
// metadata's CIK, collapses duplicate entities and securities instantiated
// twice within one pass, and detects filings that are already fully
// persisted.
type ReconciliationResolver struct {
	lookup FilingLookup
}

// NewReconciliationResolver creates a ReconciliationResolver.
func NewReconciliationResolver(lookup FilingLookup) *ReconciliationResolver {
	return &ReconciliationResolver{lookup: lookup}
}

// AlreadyPersisted reports whether the accession number has been fully
// persisted (status completed). Failed filings report false so a later
// run retries them.
func (r *ReconciliationResolver) AlreadyPersisted(ctx context.Context, accession models.AccessionNumber) (bool, error) {
	status, err := r.lookup.Status(ctx, accession)
	if err != nil {
		return false, fmt.Errorf("failed to check persisted status of %s: %w", accession, err)
	}
	return status == models.StatusCompleted, nil
}

// Resolve returns the normalized extraction and the authoritative filing
// reference. The issuer CIK embedded in the XML always wins over the
// filing metadata's CIK for every subsequent URL and path construction;
// the metadata CIK is frequently the reporting owner's.
func (r *ReconciliationResolver) Resolve(ex *models.FilingExtraction, ref models.FilingReference) (*models.FilingExtraction, models.FilingReference) {
	authoritative := ref
	metadataCIK := models.PadCIK(ref.CIK)
	if ex.IssuerCIK != "" && ex.IssuerCIK != metadataCIK {
		log.Infof("filing %s: issuer CIK %s from XML overrides metadata CIK %s",
			ref.AccessionNumber, ex.IssuerCIK, metadataCIK)
		authoritative.CIK = ex.IssuerCIK
	}

	ex.Entities = dedupeEntities(ex.Entities)
	ex.Securities = dedupeSecurities(ex.Securities)
	ex.Derivatives = dedupeDerivatives(ex.Derivatives)

	return ex, authoritative
}

// dedupeEntities collapses entities sharing a CIK. The first occurrence
// wins; later occurrences only contribute fields the first was missing.
func dedupeEntities(entities []models.OwnershipEntity) []models.OwnershipEntity {
	seen := make(map[string]int, len(entities))
	out := entities[:0]
	for _, e := range entities {
		if i, ok := seen[e.CIK]; ok {
			if out[i].Name == "" {
				out[i].Name = e.Name
			}
			if out[i].TradingSymbol == nil {
				out[i].TradingSymbol = e.TradingSymbol
			}
			continue
		}
		seen[e.CIK] = len(out)
		out = append(out, e)
	}
	return out
}

func dedupeSecurities(securities []models.Security) []models.Security {
	type key struct{ cik, title string }
	seen := make(map[key]int, len(securities))
	out := securities[:0]
	for _, s := range securities {
		k := key{s.IssuerCIK, s.Title}
		if i, ok := seen[k]; ok {
			if out[i].StandardCusip == nil {
				out[i].StandardCusip = s.StandardCusip
			}
			continue
		}
		seen[k] = len(out)
		out = append(out, s)
	}
	return out
}

func dedupeDerivatives(derivatives []models.DerivativeSecurity) []models.DerivativeSecurity {
	seen := make(map[string]bool, len(derivatives))
	out := derivatives[:0]
	for _, d := range derivatives {
		if seen[d.SecurityTitle] {
			continue
		}
		seen[d.SecurityTitle] = true
		out = append(out, d)
	}
	return out
}
