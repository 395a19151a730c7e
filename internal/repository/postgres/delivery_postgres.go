package postgres

import (
	"context"
	"database/sql"
	"time"

	"cardapi/internal/model"
	"cardapi/internal/repository"
)

// DeliveryPostgres is a PostgreSQL implementation of
// repository.DeliveryRepository. It uses database/sql with parameterized
// queries and contains no business logic.
type DeliveryPostgres struct {
	db *sql.DB
}

// NewDeliveryPostgres creates a new DeliveryPostgres repository.
func NewDeliveryPostgres(db *sql.DB) *DeliveryPostgres {
	return &DeliveryPostgres{db: db}
}

var _ repository.DeliveryRepository = (*DeliveryPostgres)(nil)

const deliveryColumns = `
	id, card_id, delivery_channel, recipient_email, recipient_name,
	file_format, status, failure_reason, initiated_by, email_subject,
	email_message, access_token, token_expires_at, max_downloads,
	download_count, delivery_notes, completed_at, created_at`

// Create inserts a new delivery row and returns the stored record.
func (r *DeliveryPostgres) Create(ctx context.Context, rec *model.DeliveryRecord) (*model.DeliveryRecord, error) {
	const q = `
		INSERT INTO card_deliveries (
			id, card_id, delivery_channel, recipient_email, recipient_name,
			file_format, status, failure_reason, initiated_by, email_subject,
			email_message, access_token, token_expires_at, max_downloads,
			download_count, delivery_notes, completed_at, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		RETURNING` + deliveryColumns
	row := r.db.QueryRowContext(ctx, q,
		rec.ID,
		rec.CardID,
		string(rec.DeliveryChannel),
		rec.RecipientEmail,
		rec.RecipientName,
		string(rec.FileFormat),
		string(rec.Status),
		rec.FailureReason,
		nullString(rec.InitiatedBy),
		rec.EmailSubject,
		rec.EmailMessage,
		nullString(rec.AccessToken),
		nullTime(rec.TokenExpiresAt),
		rec.MaxDownloads,
		rec.DownloadCount,
		rec.DeliveryNotes,
		nullTime(rec.CompletedAt),
		rec.CreatedAt,
	)
	return scanDelivery(row)
}

// FindByID fetches a single delivery record by its ID.
func (r *DeliveryPostgres) FindByID(ctx context.Context, id string) (*model.DeliveryRecord, error) {
	const q = `SELECT` + deliveryColumns + `
		FROM card_deliveries
		WHERE id = $1`
	return scanDelivery(r.db.QueryRowContext(ctx, q, id))
}

// FindByToken fetches a single delivery record by its access token.
func (r *DeliveryPostgres) FindByToken(ctx context.Context, token string) (*model.DeliveryRecord, error) {
	const q = `SELECT` + deliveryColumns + `
		FROM card_deliveries
		WHERE access_token = $1`
	return scanDelivery(r.db.QueryRowContext(ctx, q, token))
}

// List returns delivery records using LIMIT/OFFSET pagination and a total count.
func (r *DeliveryPostgres) List(ctx context.Context, pq repository.PageQuery) (*repository.PageResult[model.DeliveryRecord], error) {
	const qCount = `SELECT COUNT(*) FROM card_deliveries`
	var total int
	if err := r.db.QueryRowContext(ctx, qCount).Scan(&total); err != nil {
		return nil, err
	}

	const qList = `SELECT` + deliveryColumns + `
		FROM card_deliveries
		ORDER BY created_at DESC, id DESC
		LIMIT $1 OFFSET $2`
	rows, err := r.db.QueryContext(ctx, qList, pq.Limit, pq.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]model.DeliveryRecord, 0)
	for rows.Next() {
		rec, err := scanDelivery(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &repository.PageResult[model.DeliveryRecord]{
		Items: items,
		Total: total,
	}, nil
}

// Update persists the mutable columns of an existing record.
func (r *DeliveryPostgres) Update(ctx context.Context, rec *model.DeliveryRecord) error {
	const q = `
		UPDATE card_deliveries
		SET status = $2,
		    failure_reason = $3,
		    access_token = $4,
		    token_expires_at = $5,
		    max_downloads = $6,
		    download_count = $7,
		    delivery_notes = $8,
		    completed_at = $9
		WHERE id = $1`
	_, err := r.db.ExecContext(ctx, q,
		rec.ID,
		string(rec.Status),
		rec.FailureReason,
		nullString(rec.AccessToken),
		nullTime(rec.TokenExpiresAt),
		rec.MaxDownloads,
		rec.DownloadCount,
		rec.DeliveryNotes,
		nullTime(rec.CompletedAt),
	)
	return err
}

// ConsumeDownload is the single conditional UPDATE serializing concurrent
// redemptions of one token. Rows affected decides the outcome.
func (r *DeliveryPostgres) ConsumeDownload(ctx context.Context, token string, now time.Time) (bool, error) {
	const q = `
		UPDATE card_deliveries
		SET download_count = download_count + 1
		WHERE access_token = $1
		  AND download_count < max_downloads
		  AND token_expires_at > $2`
	res, err := r.db.ExecContext(ctx, q, token, now)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanDelivery(row rowScanner) (*model.DeliveryRecord, error) {
	var (
		rec            model.DeliveryRecord
		channel        string
		format         string
		status         string
		initiatedBy    sql.NullString
		accessToken    sql.NullString
		tokenExpiresAt sql.NullTime
		completedAt    sql.NullTime
	)
	if err := row.Scan(
		&rec.ID,
		&rec.CardID,
		&channel,
		&rec.RecipientEmail,
		&rec.RecipientName,
		&format,
		&status,
		&rec.FailureReason,
		&initiatedBy,
		&rec.EmailSubject,
		&rec.EmailMessage,
		&accessToken,
		&tokenExpiresAt,
		&rec.MaxDownloads,
		&rec.DownloadCount,
		&rec.DeliveryNotes,
		&completedAt,
		&rec.CreatedAt,
	); err != nil {
		return nil, err
	}
	rec.DeliveryChannel = model.DeliveryChannel(channel)
	rec.FileFormat = model.FileFormat(format)
	rec.Status = model.DeliveryStatus(status)
	rec.InitiatedBy = initiatedBy.String
	rec.AccessToken = accessToken.String
	if tokenExpiresAt.Valid {
		t := tokenExpiresAt.Time
		rec.TokenExpiresAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time
		rec.CompletedAt = &t
	}
	return &rec, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
