package repository

import (
	"context"
	"fmt"

	"github.com/dkeller/form4ingest/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// EntityRepository handles database operations for ownership entities.
// Entities are shared by reference across filings: the same CIK always
// maps to the same row. Created on first sight, never deleted.
type EntityRepository struct {
	pool *pgxpool.Pool
}

// NewEntityRepository creates a new EntityRepository
func NewEntityRepository(pool *pgxpool.Pool) *EntityRepository {
	return &EntityRepository{pool: pool}
}

// UpsertAll upserts entities by CIK inside tx and returns the CIK → row id
// mapping. Names and trading symbols refresh on conflict; empty incoming
// values never clobber existing ones.
func (r *EntityRepository) UpsertAll(ctx context.Context, tx pgx.Tx, entities []models.OwnershipEntity) (map[string]int64, error) {
	if len(entities) == 0 {
		return map[string]int64{}, nil
	}

	query := `
		INSERT INTO entities (cik, name, entity_type, trading_symbol)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (cik) DO UPDATE SET
			name = CASE WHEN EXCLUDED.name <> '' THEN EXCLUDED.name ELSE entities.name END,
			trading_symbol = COALESCE(EXCLUDED.trading_symbol, entities.trading_symbol)
		RETURNING id
	`

	batch := &pgx.Batch{}
	for _, e := range entities {
		batch.Queue(query, e.CIK, e.Name, e.EntityType, e.TradingSymbol)
	}

	br := tx.SendBatch(ctx, batch)
	defer br.Close()

	ids := make(map[string]int64, len(entities))
	for _, e := range entities {
		var id int64
		if err := br.QueryRow().Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to upsert entity %s: %w", e.CIK, err)
		}
		ids[e.CIK] = id
	}
	return ids, nil
}
