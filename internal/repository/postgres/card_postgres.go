package postgres

import (
	"context"
	"database/sql"

	"cardapi/internal/model"
	"cardapi/internal/repository"
)

// CardPostgres is a read-only PostgreSQL implementation of
// repository.CardRepository. Cards are written by the approval subsystem.
type CardPostgres struct {
	db *sql.DB
}

// NewCardPostgres creates a new CardPostgres repository.
func NewCardPostgres(db *sql.DB) *CardPostgres {
	return &CardPostgres{db: db}
}

var _ repository.CardRepository = (*CardPostgres)(nil)

// FindByID fetches a single card by its ID.
func (r *CardPostgres) FindByID(ctx context.Context, id string) (*model.Card, error) {
	const q = `
		SELECT id, card_number, display_name, status, status_label,
		       council_name, affiliation_type, qr_payload,
		       date_issued, date_expires, created_at
		FROM cards
		WHERE id = $1`
	row := r.db.QueryRowContext(ctx, q, id)

	var (
		c           model.Card
		dateIssued  sql.NullTime
		dateExpires sql.NullTime
	)
	if err := row.Scan(
		&c.ID,
		&c.CardNumber,
		&c.DisplayName,
		&c.Status,
		&c.StatusLabel,
		&c.CouncilName,
		&c.AffiliationType,
		&c.QRPayload,
		&dateIssued,
		&dateExpires,
		&c.CreatedAt,
	); err != nil {
		return nil, err
	}
	if dateIssued.Valid {
		t := dateIssued.Time
		c.DateIssued = &t
	}
	if dateExpires.Valid {
		t := dateExpires.Time
		c.DateExpires = &t
	}
	return &c, nil
}
