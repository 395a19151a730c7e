package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"cardapi/internal/model"
	"cardapi/internal/repository"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var deliveryCols = []string{
	"id", "card_id", "delivery_channel", "recipient_email", "recipient_name",
	"file_format", "status", "failure_reason", "initiated_by", "email_subject",
	"email_message", "access_token", "token_expires_at", "max_downloads",
	"download_count", "delivery_notes", "completed_at", "created_at",
}

func deliveryRow(rec *model.DeliveryRecord) *sqlmock.Rows {
	var token any
	if rec.AccessToken != "" {
		token = rec.AccessToken
	}
	var expires any
	if rec.TokenExpiresAt != nil {
		expires = *rec.TokenExpiresAt
	}
	var completed any
	if rec.CompletedAt != nil {
		completed = *rec.CompletedAt
	}
	return sqlmock.NewRows(deliveryCols).AddRow(
		rec.ID, rec.CardID, string(rec.DeliveryChannel), rec.RecipientEmail,
		rec.RecipientName, string(rec.FileFormat), string(rec.Status),
		rec.FailureReason, rec.InitiatedBy, rec.EmailSubject, rec.EmailMessage,
		token, expires, rec.MaxDownloads, rec.DownloadCount, rec.DeliveryNotes,
		completed, rec.CreatedAt,
	)
}

func TestDeliveryPostgres_Create(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewDeliveryPostgres(db)
	ctx := context.Background()

	now := time.Now().UTC()
	rec := &model.DeliveryRecord{
		ID:              "del-1",
		CardID:          "card-1",
		DeliveryChannel: model.ChannelEmailAttachment,
		RecipientEmail:  "a@x.com",
		RecipientName:   "A",
		FileFormat:      model.FormatPDF,
		Status:          model.StatusProcessing,
		MaxDownloads:    5,
		CreatedAt:       now,
	}

	mock.ExpectQuery("INSERT INTO card_deliveries").
		WillReturnRows(deliveryRow(rec))

	stored, err := repo.Create(ctx, rec)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, stored.ID)
	assert.Equal(t, model.StatusProcessing, stored.Status)
	assert.Empty(t, stored.AccessToken)
	assert.Nil(t, stored.TokenExpiresAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeliveryPostgres_FindByToken(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewDeliveryPostgres(db)
	ctx := context.Background()

	t.Run("found", func(t *testing.T) {
		expires := time.Now().UTC().Add(24 * time.Hour)
		rec := &model.DeliveryRecord{
			ID:              "del-2",
			CardID:          "card-1",
			DeliveryChannel: model.ChannelDirectDownload,
			RecipientEmail:  "a@x.com",
			RecipientName:   "A",
			FileFormat:      model.FormatPDF,
			Status:          model.StatusReadyForDownload,
			AccessToken:     "tok123",
			TokenExpiresAt:  &expires,
			MaxDownloads:    1,
			CreatedAt:       time.Now().UTC(),
		}
		mock.ExpectQuery("SELECT (.+) FROM card_deliveries WHERE access_token = ?").
			WithArgs("tok123").
			WillReturnRows(deliveryRow(rec))

		got, err := repo.FindByToken(ctx, "tok123")
		require.NoError(t, err)
		assert.Equal(t, "tok123", got.AccessToken)
		require.NotNil(t, got.TokenExpiresAt)
		assert.WithinDuration(t, expires, *got.TokenExpiresAt, time.Second)
	})

	t.Run("not found", func(t *testing.T) {
		mock.ExpectQuery("SELECT (.+) FROM card_deliveries WHERE access_token = ?").
			WithArgs("missing").
			WillReturnError(sql.ErrNoRows)

		_, err := repo.FindByToken(ctx, "missing")
		assert.ErrorIs(t, err, sql.ErrNoRows)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeliveryPostgres_List(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewDeliveryPostgres(db)

	mock.ExpectQuery("SELECT COUNT").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	rec := &model.DeliveryRecord{
		ID: "del-3", CardID: "card-1",
		DeliveryChannel: model.ChannelEmailLink,
		RecipientEmail:  "a@x.com", RecipientName: "A",
		FileFormat: model.FormatPDF, Status: model.StatusCompleted,
		MaxDownloads: 5, CreatedAt: time.Now().UTC(),
	}
	mock.ExpectQuery("SELECT (.+) FROM card_deliveries ORDER BY").
		WithArgs(10, 0).
		WillReturnRows(deliveryRow(rec))

	res, err := repo.List(context.Background(), repository.PageQuery{Limit: 10, Offset: 0})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Total)
	require.Len(t, res.Items, 1)
	assert.Equal(t, "del-3", res.Items[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeliveryPostgres_Update(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewDeliveryPostgres(db)

	now := time.Now().UTC()
	rec := &model.DeliveryRecord{
		ID:             "del-4",
		Status:         model.StatusCompleted,
		AccessToken:    "tok456",
		TokenExpiresAt: &now,
		MaxDownloads:   5,
		DownloadCount:  0,
		DeliveryNotes:  "sent",
		CompletedAt:    &now,
	}

	mock.ExpectExec("UPDATE card_deliveries").
		WithArgs(rec.ID, string(rec.Status), rec.FailureReason,
			sql.NullString{String: "tok456", Valid: true},
			sql.NullTime{Time: now, Valid: true},
			rec.MaxDownloads, rec.DownloadCount, rec.DeliveryNotes,
			sql.NullTime{Time: now, Valid: true}).
		WillReturnResult(sqlmock.NewResult(0, 1))

	assert.NoError(t, repo.Update(context.Background(), rec))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeliveryPostgres_ConsumeDownload(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewDeliveryPostgres(db)
	now := time.Now().UTC()

	t.Run("consumed", func(t *testing.T) {
		mock.ExpectExec("UPDATE card_deliveries SET download_count = download_count").
			WithArgs("tok789", now).
			WillReturnResult(sqlmock.NewResult(0, 1))

		ok, err := repo.ConsumeDownload(context.Background(), "tok789", now)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("quota exhausted or expired", func(t *testing.T) {
		mock.ExpectExec("UPDATE card_deliveries SET download_count = download_count").
			WithArgs("tok789", now).
			WillReturnResult(sqlmock.NewResult(0, 0))

		ok, err := repo.ConsumeDownload(context.Background(), "tok789", now)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}
