package services

import (
	"context"
	"fmt"

	"github.com/dkeller/form4ingest/internal/metrics"
	"github.com/dkeller/form4ingest/internal/models"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// DocumentSource resolves a filing reference to its raw SGML submission.
// Implemented by cache.DocumentCache.
type DocumentSource interface {
	Resolve(ctx context.Context, ref models.FilingReference) (string, error)
}

// SubmissionSplitter partitions raw SGML into embedded documents.
// Implemented by sgml.Splitter.
type SubmissionSplitter interface {
	Split(rawText string, ref models.FilingReference) ([]models.EmbeddedDocument, error)
}

// OwnershipExtractor builds the extraction graph from embedded documents.
// Implemented by form4.Extractor.
type OwnershipExtractor interface {
	Extract(ctx context.Context, docs []models.EmbeddedDocument, ref models.FilingReference) (*models.FilingExtraction, error)
}

// ExtractionWriter persists one extraction atomically. Implemented by
// repository.PersistenceWriter.
type ExtractionWriter interface {
	Write(ctx context.Context, ex *models.FilingExtraction, writeRawXML bool) error
	MarkFailed(ctx context.Context, ref models.FilingReference, status models.FilingStatus, reason string) error
}

// IngestionService drives a batch of filing references through
// cache → splitter → extractor → resolver → writer. Each filing moves
// through pending → fetched → split → extracted → persisted, with terminal
// failure exits that never abort the batch. Processing is sequential by
// design: one filing fully commits before the next begins, so shared
// entity and security rows are never written concurrently.
type IngestionService struct {
	source    DocumentSource
	splitter  SubmissionSplitter
	extractor OwnershipExtractor
	resolver  *ReconciliationResolver
	writer    ExtractionWriter
	metrics   *metrics.Metrics
}

// NewIngestionService creates an IngestionService.
func NewIngestionService(
	source DocumentSource,
	splitter SubmissionSplitter,
	extractor OwnershipExtractor,
	resolver *ReconciliationResolver,
	writer ExtractionWriter,
	m *metrics.Metrics,
) *IngestionService {
	return &IngestionService{
		source:    source,
		splitter:  splitter,
		extractor: extractor,
		resolver:  resolver,
		writer:    writer,
		metrics:   m,
	}
}

// Run carries each filing through the pipeline and returns the batch
// summary. Per-filing failures are isolated: they are recorded in the
// result and processing continues. Only a misconfiguration detected before
// any filing is processed propagates as an error. The database commits
// once per filing, so partial batch progress survives a crash.
func (s *IngestionService) Run(ctx context.Context, refs []models.FilingReference, opts models.IngestOptions) (*models.BatchResult, error) {
	if s.source == nil || s.splitter == nil || s.extractor == nil || s.resolver == nil || s.writer == nil {
		return nil, fmt.Errorf("ingestion service is misconfigured: missing collaborator")
	}

	result := &models.BatchResult{RunID: uuid.New().String()}
	seen := make(map[models.AccessionNumber]bool, len(refs))

	for _, ref := range refs {
		if opts.Limit > 0 && result.Succeeded+result.Failed >= opts.Limit {
			break
		}

		// The same accession number can appear under multiple index
		// entries; only the first occurrence is processed.
		if seen[ref.AccessionNumber] {
			log.Debugf("duplicate accession %s in batch, skipping", ref.AccessionNumber)
			result.Skipped++
			result.Processed++
			continue
		}
		seen[ref.AccessionNumber] = true

		outcome := s.processFiling(ctx, ref, opts, result)
		result.Processed++
		s.metrics.IncFiling(outcome)
	}

	log.Infof("batch %s done: %d processed, %d succeeded, %d failed, %d skipped",
		result.RunID, result.Processed, result.Succeeded, result.Failed, result.Skipped)
	return result, nil
}

// processFiling runs the per-filing state machine and returns the outcome
// label ("succeeded", "failed", "skipped").
func (s *IngestionService) processFiling(ctx context.Context, ref models.FilingReference, opts models.IngestOptions, result *models.BatchResult) string {
	logger := log.WithField("accession", ref.AccessionNumber.String())

	if !opts.Reprocess {
		persisted, err := s.resolver.AlreadyPersisted(ctx, ref.AccessionNumber)
		if err != nil {
			return s.fail(ctx, ref, models.StatusPersistFailed, err, result, logger)
		}
		if persisted {
			logger.Debug("already persisted, skipping")
			result.Skipped++
			return "skipped"
		}
	}

	raw, err := s.source.Resolve(ctx, ref)
	if err != nil {
		return s.fail(ctx, ref, models.StatusFetchFailed, err, result, logger)
	}

	docs, err := s.splitter.Split(raw, ref)
	if err != nil {
		return s.fail(ctx, ref, models.StatusExtractFailed, err, result, logger)
	}

	extraction, err := s.extractor.Extract(ctx, docs, ref)
	if err != nil {
		return s.fail(ctx, ref, models.StatusExtractFailed, err, result, logger)
	}

	extraction, authoritative := s.resolver.Resolve(extraction, ref)

	if err := s.writer.Write(ctx, extraction, opts.WriteRawXml); err != nil {
		return s.fail(ctx, authoritative, models.StatusPersistFailed, err, result, logger)
	}

	logger.Infof("persisted filing for issuer %s (%d relationships, %d transactions)",
		extraction.IssuerCIK, len(extraction.Relationships), len(extraction.Transactions))
	result.Succeeded++
	return "succeeded"
}

// fail records a terminal failure for one filing without aborting the
// batch.
func (s *IngestionService) fail(ctx context.Context, ref models.FilingReference, status models.FilingStatus, cause error, result *models.BatchResult, logger *log.Entry) string {
	logger.Warnf("filing %s: %v", status, cause)
	if err := s.writer.MarkFailed(ctx, ref, status, cause.Error()); err != nil {
		logger.Errorf("failed to record failure status: %v", err)
	}
	result.Failed++
	result.Failures = append(result.Failures, models.FilingFailure{
		AccessionNumber: ref.AccessionNumber,
		Error:           cause.Error(),
	})
	return "failed"
}
