package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/dkeller/form4ingest/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"
)

// ErrPersistenceConflict marks a write whose extraction graph violated a
// referential invariant (e.g. a derivative position referencing a security
// that was never registered). The filing's write rolls back in full.
var ErrPersistenceConflict = errors.New("persistence conflict")

// PersistenceWriter translates a FilingExtraction into storage rows inside
// a single transaction, upserting in foreign-key order: entities →
// securities → derivative securities → filing → relationships →
// transactions → positions. Either the full graph commits or none of it.
type PersistenceWriter struct {
	pool       *pgxpool.Pool
	entities   *EntityRepository
	securities *SecurityRepository
	filings    *FilingRepository
}

// NewPersistenceWriter creates a PersistenceWriter over the given repos.
func NewPersistenceWriter(pool *pgxpool.Pool, entities *EntityRepository, securities *SecurityRepository, filings *FilingRepository) *PersistenceWriter {
	return &PersistenceWriter{
		pool:       pool,
		entities:   entities,
		securities: securities,
		filings:    filings,
	}
}

// Write commits one filing's extraction graph atomically. Re-running with
// identical extraction data leaves row counts and field values unchanged:
// shared rows upsert by natural key and filing-scoped rows are superseded
// wholesale.
func (w *PersistenceWriter) Write(ctx context.Context, ex *models.FilingExtraction, writeRawXML bool) error {
	tx, err := w.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			log.Errorf("rollback of filing %s failed: %v", ex.AccessionNumber, err)
		}
	}()

	entityIDs, err := w.entities.UpsertAll(ctx, tx, ex.Entities)
	if err != nil {
		return err
	}

	securityIDs, err := w.securities.UpsertAll(ctx, tx, ex.Securities, entityIDs)
	if err != nil {
		return err
	}

	derivativeIDs, err := w.securities.UpsertDerivatives(ctx, tx, ex.Derivatives, securityIDs)
	if err != nil {
		return err
	}

	filingID, err := w.filings.UpsertFiling(ctx, tx, ex)
	if err != nil {
		return err
	}

	if err := w.filings.ReplaceDocuments(ctx, tx, filingID, ex, writeRawXML); err != nil {
		return err
	}

	if err := w.filings.ReplaceRelationships(ctx, tx, filingID, ex, entityIDs, securityIDs, derivativeIDs); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit filing %s: %w", ex.AccessionNumber, err)
	}
	return nil
}

// MarkFailed records a terminal failure status for a filing.
func (w *PersistenceWriter) MarkFailed(ctx context.Context, ref models.FilingReference, status models.FilingStatus, reason string) error {
	return w.filings.MarkFailed(ctx, ref, status, reason)
}
