package repository

import (
	"context"
	"fmt"

	"github.com/dkeller/form4ingest/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SecurityRepository handles database operations for securities and their
// derivative extensions. Securities are keyed by (issuer entity, title)
// and are immutable once created except for CUSIP backfill.
type SecurityRepository struct {
	pool *pgxpool.Pool
}

// NewSecurityRepository creates a new SecurityRepository
func NewSecurityRepository(pool *pgxpool.Pool) *SecurityRepository {
	return &SecurityRepository{pool: pool}
}

// UpsertAll upserts securities inside tx and returns the title → row id
// mapping for this extraction's issuer. The CUSIP only backfills a null
// column; an existing CUSIP is never overwritten.
func (r *SecurityRepository) UpsertAll(ctx context.Context, tx pgx.Tx, securities []models.Security, entityIDs map[string]int64) (map[string]int64, error) {
	if len(securities) == 0 {
		return map[string]int64{}, nil
	}

	query := `
		INSERT INTO securities (issuer_entity_id, title, security_type, standard_cusip)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (issuer_entity_id, title) DO UPDATE SET
			standard_cusip = COALESCE(securities.standard_cusip, EXCLUDED.standard_cusip)
		RETURNING id
	`

	batch := &pgx.Batch{}
	for _, s := range securities {
		issuerID, ok := entityIDs[s.IssuerCIK]
		if !ok {
			return nil, fmt.Errorf("%w: security %q references unknown issuer %s", ErrPersistenceConflict, s.Title, s.IssuerCIK)
		}
		batch.Queue(query, issuerID, s.Title, s.SecurityType, s.StandardCusip)
	}

	br := tx.SendBatch(ctx, batch)
	defer br.Close()

	ids := make(map[string]int64, len(securities))
	for _, s := range securities {
		var id int64
		if err := br.QueryRow().Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to upsert security %q: %w", s.Title, err)
		}
		ids[s.Title] = id
	}
	return ids, nil
}

// UpsertDerivatives upserts the 1:1 derivative extensions inside tx and
// returns the security title → derivative row id mapping. The underlying
// security reference resolves only when the underlying title is one of
// this extraction's own securities; otherwise the textual title stands
// alone.
func (r *SecurityRepository) UpsertDerivatives(ctx context.Context, tx pgx.Tx, derivatives []models.DerivativeSecurity, securityIDs map[string]int64) (map[string]int64, error) {
	if len(derivatives) == 0 {
		return map[string]int64{}, nil
	}

	query := `
		INSERT INTO derivative_securities
			(security_id, underlying_security_title, underlying_security_id, conversion_price, exercise_date, expiration_date)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (security_id) DO UPDATE SET
			underlying_security_title = EXCLUDED.underlying_security_title,
			underlying_security_id = EXCLUDED.underlying_security_id,
			conversion_price = EXCLUDED.conversion_price,
			exercise_date = EXCLUDED.exercise_date,
			expiration_date = EXCLUDED.expiration_date
		RETURNING id
	`

	batch := &pgx.Batch{}
	for _, d := range derivatives {
		secID, ok := securityIDs[d.SecurityTitle]
		if !ok {
			return nil, fmt.Errorf("%w: derivative extension references unknown security %q", ErrPersistenceConflict, d.SecurityTitle)
		}
		var underlyingID *int64
		if id, ok := securityIDs[d.UnderlyingSecurityTitle]; ok {
			underlyingID = &id
		}
		batch.Queue(query, secID, d.UnderlyingSecurityTitle, underlyingID, d.ConversionPrice, d.ExerciseDate, d.ExpirationDate)
	}

	br := tx.SendBatch(ctx, batch)
	defer br.Close()

	ids := make(map[string]int64, len(derivatives))
	for _, d := range derivatives {
		var id int64
		if err := br.QueryRow().Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to upsert derivative security %q: %w", d.SecurityTitle, err)
		}
		ids[d.SecurityTitle] = id
	}
	return ids, nil
}
