package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dkeller/form4ingest/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrFilingNotFound = errors.New("filing not found")

// FilingRepository handles database operations for filings, relationships,
// transactions, and positions.
type FilingRepository struct {
	pool *pgxpool.Pool
}

// NewFilingRepository creates a new FilingRepository
func NewFilingRepository(pool *pgxpool.Pool) *FilingRepository {
	return &FilingRepository{pool: pool}
}

// Status returns the persisted status for an accession number, or "" when
// the filing has never been recorded.
func (r *FilingRepository) Status(ctx context.Context, accession models.AccessionNumber) (models.FilingStatus, error) {
	var status models.FilingStatus
	err := r.pool.QueryRow(ctx,
		`SELECT status FROM form4_filings WHERE accession_number = $1`,
		accession.String(),
	).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get filing status: %w", err)
	}
	return status, nil
}

// UpsertFiling upserts the filing row as completed inside tx and returns
// its id. A prior failure_reason clears on successful reprocessing.
func (r *FilingRepository) UpsertFiling(ctx context.Context, tx pgx.Tx, ex *models.FilingExtraction) (int64, error) {
	query := `
		INSERT INTO form4_filings
			(accession_number, cik, form_type, filing_date, period_of_report, has_multiple_owners, status, failure_reason, processed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NULL, NOW())
		ON CONFLICT (accession_number) DO UPDATE SET
			cik = EXCLUDED.cik,
			form_type = EXCLUDED.form_type,
			filing_date = EXCLUDED.filing_date,
			period_of_report = EXCLUDED.period_of_report,
			has_multiple_owners = EXCLUDED.has_multiple_owners,
			status = EXCLUDED.status,
			failure_reason = NULL,
			processed_at = NOW()
		RETURNING id
	`
	var id int64
	err := tx.QueryRow(ctx, query,
		ex.AccessionNumber.String(), ex.IssuerCIK, ex.FormType, nullableDate(ex.FilingDate),
		ex.PeriodOfReport, ex.HasMultipleOwners, models.StatusCompleted,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to upsert filing %s: %w", ex.AccessionNumber, err)
	}
	return id, nil
}

// MarkFailed records a terminal failure status for a filing outside any
// write transaction, so the outcome survives the rollback of the write
// itself.
func (r *FilingRepository) MarkFailed(ctx context.Context, ref models.FilingReference, status models.FilingStatus, reason string) error {
	query := `
		INSERT INTO form4_filings
			(accession_number, cik, form_type, filing_date, status, failure_reason, processed_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (accession_number) DO UPDATE SET
			status = EXCLUDED.status,
			failure_reason = EXCLUDED.failure_reason,
			processed_at = NOW()
	`
	_, err := r.pool.Exec(ctx, query,
		ref.AccessionNumber.String(), models.PadCIK(ref.CIK), ref.FormType,
		nullableDate(ref.FilingDate), status, reason,
	)
	if err != nil {
		return fmt.Errorf("failed to mark filing %s as %s: %w", ref.AccessionNumber, status, err)
	}
	return nil
}

// ReplaceDocuments supersedes the embedded-document metadata for a filing.
// Raw content is stored only for the ownership XML, and only when asked.
func (r *FilingRepository) ReplaceDocuments(ctx context.Context, tx pgx.Tx, filingID int64, ex *models.FilingExtraction, writeRawXML bool) error {
	if _, err := tx.Exec(ctx, `DELETE FROM filing_documents WHERE filing_id = $1`, filingID); err != nil {
		return fmt.Errorf("failed to delete existing filing documents: %w", err)
	}

	query := `
		INSERT INTO filing_documents (filing_id, sequence, doc_type, filename, description, is_primary, content)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	for _, d := range ex.Documents {
		var content *string
		if writeRawXML && d.Filename == ex.OwnershipDocName {
			content = &ex.RawXML
		}
		if _, err := tx.Exec(ctx, query, filingID, d.Sequence, d.Type, d.Filename, d.Description, d.Primary, content); err != nil {
			return fmt.Errorf("failed to insert filing document %q: %w", d.Filename, err)
		}
	}
	return nil
}

// ReplaceRelationships supersedes the relationship graph for one filing:
// existing relationships are deleted (transactions and positions cascade)
// and the extraction's relationships, transactions, and positions are
// inserted fresh in foreign-key order.
func (r *FilingRepository) ReplaceRelationships(
	ctx context.Context,
	tx pgx.Tx,
	filingID int64,
	ex *models.FilingExtraction,
	entityIDs map[string]int64,
	securityIDs map[string]int64,
	derivativeIDs map[string]int64,
) error {
	if _, err := tx.Exec(ctx, `DELETE FROM form4_relationships WHERE filing_id = $1`, filingID); err != nil {
		return fmt.Errorf("failed to delete existing relationships: %w", err)
	}

	relQuery := `
		INSERT INTO form4_relationships
			(filing_id, issuer_entity_id, owner_entity_id, is_director, is_officer, is_ten_percent_owner, is_other, officer_title, other_text, filing_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id
	`
	relIDs := make(map[string]int64, len(ex.Relationships))
	for _, rel := range ex.Relationships {
		issuerID, ok := entityIDs[rel.IssuerCIK]
		if !ok {
			return fmt.Errorf("%w: relationship references unknown issuer %s", ErrPersistenceConflict, rel.IssuerCIK)
		}
		ownerID, ok := entityIDs[rel.OwnerCIK]
		if !ok {
			return fmt.Errorf("%w: relationship references unknown owner %s", ErrPersistenceConflict, rel.OwnerCIK)
		}
		var relID int64
		err := tx.QueryRow(ctx, relQuery,
			filingID, issuerID, ownerID,
			rel.IsDirector, rel.IsOfficer, rel.IsTenPercentOwner, rel.IsOther,
			rel.OfficerTitle, rel.OtherText, nullableDate(rel.FilingDate),
		).Scan(&relID)
		if err != nil {
			return fmt.Errorf("failed to insert relationship for owner %s: %w", rel.OwnerCIK, err)
		}
		relIDs[rel.OwnerCIK] = relID
	}

	txnQuery := `
		INSERT INTO form4_transactions
			(relationship_id, security_id, derivative_security_id, transaction_code, transaction_date, shares, price_per_share, acq_disp_flag, direct_ownership, timeliness)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id
	`
	txnIDs := make([]int64, len(ex.Transactions))
	for i, t := range ex.Transactions {
		relID, secID, derivID, err := resolveRefs(t.OwnerCIK, t.SecurityTitle, t.Derivative, relIDs, securityIDs, derivativeIDs)
		if err != nil {
			return err
		}
		err = tx.QueryRow(ctx, txnQuery,
			relID, secID, derivID, t.TransactionCode, t.TransactionDate,
			t.Shares, t.PricePerShare, t.AcqDispFlag, t.DirectOwnership, t.Timeliness,
		).Scan(&txnIDs[i])
		if err != nil {
			return fmt.Errorf("failed to insert transaction for %q: %w", t.SecurityTitle, err)
		}
	}

	posQuery := `
		INSERT INTO relationship_positions
			(relationship_id, security_id, derivative_security_id, position_date, shares, is_position_only, transaction_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	for _, p := range ex.Positions {
		relID, secID, derivID, err := resolveRefs(p.OwnerCIK, p.SecurityTitle, p.Derivative, relIDs, securityIDs, derivativeIDs)
		if err != nil {
			return err
		}
		var txnID *int64
		if p.TransactionIndex != nil {
			if *p.TransactionIndex < 0 || *p.TransactionIndex >= len(txnIDs) {
				return fmt.Errorf("%w: position references transaction index %d out of range", ErrPersistenceConflict, *p.TransactionIndex)
			}
			txnID = &txnIDs[*p.TransactionIndex]
		}
		if _, err := tx.Exec(ctx, posQuery, relID, secID, derivID, p.PositionDate, p.Shares, p.PositionOnly, txnID); err != nil {
			return fmt.Errorf("failed to insert position for %q: %w", p.SecurityTitle, err)
		}
	}
	return nil
}

// resolveRefs maps the natural keys a transaction or position carries to
// the row ids created earlier in the write.
func resolveRefs(
	ownerCIK, securityTitle string,
	derivative bool,
	relIDs, securityIDs, derivativeIDs map[string]int64,
) (int64, int64, *int64, error) {
	relID, ok := relIDs[ownerCIK]
	if !ok {
		return 0, 0, nil, fmt.Errorf("%w: row references unknown relationship for owner %s", ErrPersistenceConflict, ownerCIK)
	}
	secID, ok := securityIDs[securityTitle]
	if !ok {
		return 0, 0, nil, fmt.Errorf("%w: row references unknown security %q", ErrPersistenceConflict, securityTitle)
	}
	var derivID *int64
	if derivative {
		id, ok := derivativeIDs[securityTitle]
		if !ok {
			return 0, 0, nil, fmt.Errorf("%w: derivative row for %q has no derivative security", ErrPersistenceConflict, securityTitle)
		}
		derivID = &id
	}
	return relID, secID, derivID, nil
}

// PriorTotal returns the most recent persisted position total for the
// given relationship and security before a date. Implements the
// extractor's PriorPositions interface.
func (r *FilingRepository) PriorTotal(ctx context.Context, ownerCIK, issuerCIK, securityTitle string, derivative bool, before time.Time) (float64, bool, error) {
	query := `
		SELECT p.shares
		FROM relationship_positions p
		JOIN form4_relationships rel ON rel.id = p.relationship_id
		JOIN entities owner ON owner.id = rel.owner_entity_id
		JOIN entities issuer ON issuer.id = rel.issuer_entity_id
		JOIN securities s ON s.id = p.security_id
		WHERE owner.cik = $1
		  AND issuer.cik = $2
		  AND s.title = $3
		  AND (p.derivative_security_id IS NOT NULL) = $4
		  AND p.position_date < $5
		ORDER BY p.position_date DESC, p.id DESC
		LIMIT 1
	`
	var shares float64
	err := r.pool.QueryRow(ctx, query, ownerCIK, issuerCIK, securityTitle, derivative, before).Scan(&shares)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to query prior position: %w", err)
	}
	return shares, true, nil
}

// GetFiling loads the persisted graph for one filing.
func (r *FilingRepository) GetFiling(ctx context.Context, accession models.AccessionNumber) (*models.FilingResponse, error) {
	var (
		resp     models.FilingResponse
		filingID int64
		filed    *time.Time
	)
	err := r.pool.QueryRow(ctx, `
		SELECT id, accession_number, cik, form_type, filing_date, status, failure_reason
		FROM form4_filings
		WHERE accession_number = $1
	`, accession.String()).Scan(
		&filingID, &resp.AccessionNumber, &resp.CIK, &resp.FormType, &filed, &resp.Status, &resp.FailureReason,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrFilingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get filing: %w", err)
	}
	if filed != nil {
		resp.FilingDate = *filed
	}

	rows, err := r.pool.Query(ctx, `
		SELECT rel.id, issuer.cik, issuer.name, owner.cik, owner.name,
		       rel.is_director, rel.is_officer, rel.is_ten_percent_owner, rel.is_other, rel.officer_title
		FROM form4_relationships rel
		JOIN entities issuer ON issuer.id = rel.issuer_entity_id
		JOIN entities owner ON owner.id = rel.owner_entity_id
		WHERE rel.filing_id = $1
		ORDER BY rel.id
	`, filingID)
	if err != nil {
		return nil, fmt.Errorf("failed to query relationships: %w", err)
	}
	defer rows.Close()

	relIndex := make(map[int64]int)
	var relDBIDs []int64
	for rows.Next() {
		var (
			relID int64
			rel   models.RelationshipResponse
		)
		if err := rows.Scan(&relID, &rel.IssuerCIK, &rel.IssuerName, &rel.OwnerCIK, &rel.OwnerName,
			&rel.IsDirector, &rel.IsOfficer, &rel.IsTenPercentOwner, &rel.IsOther, &rel.OfficerTitle); err != nil {
			return nil, fmt.Errorf("failed to scan relationship: %w", err)
		}
		relIndex[relID] = len(resp.Relationships)
		relDBIDs = append(relDBIDs, relID)
		resp.Relationships = append(resp.Relationships, rel)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(relDBIDs) == 0 {
		return &resp, nil
	}

	txRows, err := r.pool.Query(ctx, `
		SELECT t.id, t.relationship_id, s.title, t.derivative_security_id IS NOT NULL,
		       t.transaction_code, t.transaction_date, t.shares, t.price_per_share, t.acq_disp_flag, t.direct_ownership
		FROM form4_transactions t
		JOIN securities s ON s.id = t.security_id
		WHERE t.relationship_id = ANY($1)
		ORDER BY t.id
	`, relDBIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer txRows.Close()

	for txRows.Next() {
		var (
			relID int64
			row   models.TransactionRow
		)
		if err := txRows.Scan(&row.ID, &relID, &row.SecurityTitle, &row.Derivative,
			&row.TransactionCode, &row.TransactionDate, &row.Shares, &row.PricePerShare,
			&row.AcqDispFlag, &row.DirectOwnership); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		i := relIndex[relID]
		resp.Relationships[i].Transactions = append(resp.Relationships[i].Transactions, row)
	}
	if err := txRows.Err(); err != nil {
		return nil, err
	}

	posRows, err := r.pool.Query(ctx, `
		SELECT p.id, p.relationship_id, s.title, p.derivative_security_id IS NOT NULL,
		       p.position_date, p.shares, p.is_position_only
		FROM relationship_positions p
		JOIN securities s ON s.id = p.security_id
		WHERE p.relationship_id = ANY($1)
		ORDER BY p.position_date, p.id
	`, relDBIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to query positions: %w", err)
	}
	defer posRows.Close()

	for posRows.Next() {
		var (
			relID int64
			row   models.PositionRow
		)
		if err := posRows.Scan(&row.ID, &relID, &row.SecurityTitle, &row.Derivative,
			&row.PositionDate, &row.Shares, &row.PositionOnly); err != nil {
			return nil, fmt.Errorf("failed to scan position: %w", err)
		}
		i := relIndex[relID]
		resp.Relationships[i].Positions = append(resp.Relationships[i].Positions, row)
	}
	return &resp, posRows.Err()
}

// nullableDate maps the zero time to SQL NULL.
func nullableDate(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
