package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-kit/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"cardapi/internal/mail"
	mailmocks "cardapi/internal/mail/mocks"
	"cardapi/internal/model"
	"cardapi/internal/render"
	"cardapi/internal/repository"
	repomocks "cardapi/internal/repository/mocks"
	"cardapi/internal/token"
)

// fakeDeliveryRepo is an in-memory DeliveryRepository. The mutex matters: the
// download tests hammer ConsumeDownload from many goroutines.
type fakeDeliveryRepo struct {
	mu        sync.Mutex
	records   map[string]*model.DeliveryRecord
	updates   int
	createErr error
	updateErr error
}

func newFakeDeliveryRepo() *fakeDeliveryRepo {
	return &fakeDeliveryRepo{records: map[string]*model.DeliveryRecord{}}
}

func (f *fakeDeliveryRepo) Create(_ context.Context, rec *model.DeliveryRecord) (*model.DeliveryRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	stored := *rec
	f.records[rec.ID] = &stored
	return rec, nil
}

func (f *fakeDeliveryRepo) FindByID(_ context.Context, id string) (*model.DeliveryRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	out := *rec
	return &out, nil
}

func (f *fakeDeliveryRepo) FindByToken(_ context.Context, tok string) (*model.DeliveryRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, rec := range f.records {
		if rec.AccessToken == tok && tok != "" {
			out := *rec
			return &out, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (f *fakeDeliveryRepo) List(_ context.Context, pq repository.PageQuery) (*repository.PageResult[model.DeliveryRecord], error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	items := make([]model.DeliveryRecord, 0, len(f.records))
	for _, rec := range f.records {
		items = append(items, *rec)
	}
	return &repository.PageResult[model.DeliveryRecord]{Items: items, Total: len(f.records)}, nil
}

func (f *fakeDeliveryRepo) Update(_ context.Context, rec *model.DeliveryRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return f.updateErr
	}
	f.updates++
	stored := *rec
	f.records[rec.ID] = &stored
	return nil
}

func (f *fakeDeliveryRepo) ConsumeDownload(_ context.Context, tok string, now time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, rec := range f.records {
		if rec.AccessToken != tok || tok == "" {
			continue
		}
		if rec.DownloadCount >= rec.MaxDownloads {
			return false, nil
		}
		if rec.TokenExpiresAt == nil || !rec.TokenExpiresAt.After(now) {
			return false, nil
		}
		rec.DownloadCount++
		return true, nil
	}
	return false, nil
}

func (f *fakeDeliveryRepo) stored(id string) *model.DeliveryRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[id]
	if !ok {
		return nil
	}
	out := *rec
	return &out
}

type stubRenderer struct {
	err   error
	calls atomic.Int64
}

func (r *stubRenderer) Render(card *model.Card, format model.FileFormat) (render.Artifact, error) {
	r.calls.Add(1)
	if r.err != nil {
		return render.Artifact{}, r.err
	}
	return render.Artifact{
		Bytes:    []byte("rendered:" + card.CardNumber + ":" + string(format)),
		Filename: fmt.Sprintf("affiliation_card_%s.%s", card.CardNumber, format),
		MIMEType: "application/octet-stream",
	}, nil
}

func testCard() *model.Card {
	return &model.Card{
		ID:          "card-1",
		CardNumber:  "AC-2026-0042",
		DisplayName: "Jane Doe",
		Status:      "active",
		StatusLabel: "Active",
		CouncilName: "Northern Council",
	}
}

func testPolicy() Policy {
	return Policy{
		BaseURL:          "https://cards.example.com",
		FromEmail:        "cards@example.com",
		FromName:         "Card Service",
		LinkTokenTTL:     30 * 24 * time.Hour,
		LinkMaxDownloads: 5,
		DirectTokenTTL:   24 * time.Hour,
	}
}

func newTestDeliveryService(t *testing.T, deliveries repository.DeliveryRepository, renderer render.Renderer, mailer mail.Mailer) (DeliveryService, *repomocks.MockCardRepository) {
	t.Helper()
	cards := new(repomocks.MockCardRepository)
	svc := NewDeliveryService(
		cards, deliveries, renderer,
		token.NewIssuer(), mailer,
		testPolicy(), log.NewNopLogger(), nil,
	)
	return svc, cards
}

func TestCreateDelivery_EmailAttachment(t *testing.T) {
	deliveries := newFakeDeliveryRepo()
	renderer := &stubRenderer{}
	mailer := new(mailmocks.MockMailer)

	var sent mail.Message
	mailer.On("Send", mock.Anything, mock.AnythingOfType("mail.Message")).
		Run(func(args mock.Arguments) { sent = args.Get(1).(mail.Message) }).
		Return(nil)

	svc, cards := newTestDeliveryService(t, deliveries, renderer, mailer)
	cards.On("FindByID", mock.Anything, "card-1").Return(testCard(), nil)

	rec, err := svc.CreateDelivery(context.Background(), CreateDeliveryInput{
		CardID:         "card-1",
		Channel:        model.ChannelEmailAttachment,
		RecipientEmail: "jane@example.com",
		RecipientName:  "Jane Doe",
	})
	require.NoError(t, err)

	assert.Equal(t, model.StatusCompleted, rec.Status)
	assert.NotNil(t, rec.CompletedAt)
	assert.Equal(t, model.FormatPDF, rec.FileFormat)
	assert.Zero(t, rec.MaxDownloads)
	assert.False(t, rec.HasToken())

	require.Len(t, sent.Attachments, 1)
	assert.Equal(t, "affiliation_card_AC-2026-0042.pdf", sent.Attachments[0].Filename)
	assert.Contains(t, sent.Subject, "AC-2026-0042")
	assert.Equal(t, "jane@example.com", sent.To[0].Email)

	stored := deliveries.stored(rec.ID)
	require.NotNil(t, stored)
	assert.Equal(t, model.StatusCompleted, stored.Status)
	mailer.AssertExpectations(t)
}

func TestCreateDelivery_EmailLink(t *testing.T) {
	deliveries := newFakeDeliveryRepo()
	mailer := new(mailmocks.MockMailer)

	var sent mail.Message
	mailer.On("Send", mock.Anything, mock.AnythingOfType("mail.Message")).
		Run(func(args mock.Arguments) { sent = args.Get(1).(mail.Message) }).
		Return(nil)

	svc, cards := newTestDeliveryService(t, deliveries, &stubRenderer{}, mailer)
	cards.On("FindByID", mock.Anything, "card-1").Return(testCard(), nil)

	before := time.Now().UTC()
	rec, err := svc.CreateDelivery(context.Background(), CreateDeliveryInput{
		CardID:         "card-1",
		Channel:        model.ChannelEmailLink,
		RecipientEmail: "jane@example.com",
		FileFormat:     "png",
	})
	require.NoError(t, err)

	assert.Equal(t, model.StatusCompleted, rec.Status)
	assert.Len(t, rec.AccessToken, 43)
	assert.Equal(t, 5, rec.MaxDownloads)
	require.NotNil(t, rec.TokenExpiresAt)
	wantExpiry := before.Add(30 * 24 * time.Hour)
	assert.WithinDuration(t, wantExpiry, *rec.TokenExpiresAt, time.Minute)

	// The mailed link must match the stored token exactly, and the link is
	// echoed on the returned record for the caller.
	wantURL := "https://cards.example.com/download/" + rec.AccessToken
	assert.Equal(t, wantURL, rec.DownloadURL)
	assert.Contains(t, sent.TextBody, wantURL)
	assert.Contains(t, sent.HTMLBody, wantURL)

	stored := deliveries.stored(rec.ID)
	require.NotNil(t, stored)
	assert.Equal(t, rec.AccessToken, stored.AccessToken)
}

func TestCreateDelivery_EmailLink_QuotaOverride(t *testing.T) {
	deliveries := newFakeDeliveryRepo()
	mailer := new(mailmocks.MockMailer)
	mailer.On("Send", mock.Anything, mock.Anything).Return(nil)

	svc, cards := newTestDeliveryService(t, deliveries, &stubRenderer{}, mailer)
	cards.On("FindByID", mock.Anything, "card-1").Return(testCard(), nil)

	rec, err := svc.CreateDelivery(context.Background(), CreateDeliveryInput{
		CardID:         "card-1",
		Channel:        model.ChannelEmailLink,
		RecipientEmail: "jane@example.com",
		MaxDownloads:   2,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, rec.MaxDownloads)
}

func TestChannelHandlers_NeverReissueToken(t *testing.T) {
	// A token, once set, is fixed for the record's lifetime: re-dispatching
	// a record that already carries one must not mint a replacement.
	existingExpiry := time.Now().UTC().Add(72 * time.Hour)
	seed := func(channel model.DeliveryChannel) (*fakeDeliveryRepo, *model.DeliveryRecord) {
		deliveries := newFakeDeliveryRepo()
		rec := &model.DeliveryRecord{
			ID:              "d-1",
			CardID:          "card-1",
			DeliveryChannel: channel,
			RecipientEmail:  "jane@example.com",
			FileFormat:      model.FormatPDF,
			Status:          model.StatusProcessing,
			AccessToken:     "token-already-minted",
			TokenExpiresAt:  &existingExpiry,
			MaxDownloads:    3,
		}
		_, err := deliveries.Create(context.Background(), rec)
		require.NoError(t, err)
		return deliveries, rec
	}

	t.Run("email link", func(t *testing.T) {
		deliveries, rec := seed(model.ChannelEmailLink)
		mailer := new(mailmocks.MockMailer)
		var sent mail.Message
		mailer.On("Send", mock.Anything, mock.AnythingOfType("mail.Message")).
			Run(func(args mock.Arguments) { sent = args.Get(1).(mail.Message) }).
			Return(nil)

		svc, _ := newTestDeliveryService(t, deliveries, &stubRenderer{}, mailer)
		err := svc.(*deliveryService).handleEmailLink(context.Background(), testCard(), rec)
		require.NoError(t, err)

		assert.Equal(t, "token-already-minted", rec.AccessToken)
		assert.Equal(t, existingExpiry, *rec.TokenExpiresAt)
		assert.Equal(t, 3, rec.MaxDownloads)
		assert.Contains(t, sent.TextBody, "/download/token-already-minted")

		stored := deliveries.stored(rec.ID)
		assert.Equal(t, "token-already-minted", stored.AccessToken)
	})

	t.Run("direct download", func(t *testing.T) {
		deliveries, rec := seed(model.ChannelDirectDownload)
		svc, _ := newTestDeliveryService(t, deliveries, &stubRenderer{}, new(mailmocks.MockMailer))

		err := svc.(*deliveryService).handleDirectDownload(context.Background(), testCard(), rec)
		require.NoError(t, err)

		assert.Equal(t, "token-already-minted", rec.AccessToken)
		assert.Equal(t, existingExpiry, *rec.TokenExpiresAt)
		assert.Equal(t, "https://cards.example.com/download/token-already-minted", rec.DownloadURL)
	})
}

func TestCreateDelivery_DirectDownload(t *testing.T) {
	deliveries := newFakeDeliveryRepo()
	renderer := &stubRenderer{}
	mailer := new(mailmocks.MockMailer)

	svc, cards := newTestDeliveryService(t, deliveries, renderer, mailer)
	cards.On("FindByID", mock.Anything, "card-1").Return(testCard(), nil)

	rec, err := svc.CreateDelivery(context.Background(), CreateDeliveryInput{
		CardID:         "card-1",
		Channel:        model.ChannelDirectDownload,
		RecipientEmail: "jane@example.com",
		FileFormat:     "JPEG",
	})
	require.NoError(t, err)

	assert.Equal(t, model.StatusReadyForDownload, rec.Status)
	assert.Equal(t, model.FormatJPG, rec.FileFormat)
	assert.Len(t, rec.AccessToken, 43)
	// The caller redeems immediately, so the response must carry the URL.
	assert.Equal(t, "https://cards.example.com/download/"+rec.AccessToken, rec.DownloadURL)
	assert.Equal(t, 1, rec.MaxDownloads)
	require.NotNil(t, rec.TokenExpiresAt)
	assert.WithinDuration(t, time.Now().UTC().Add(24*time.Hour), *rec.TokenExpiresAt, time.Minute)

	// No mail and no render for direct downloads.
	mailer.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
	assert.Zero(t, renderer.calls.Load())
}

func TestCreateDelivery_ValidationBeforeSideEffects(t *testing.T) {
	t.Run("unknown channel", func(t *testing.T) {
		deliveries := newFakeDeliveryRepo()
		svc, cards := newTestDeliveryService(t, deliveries, &stubRenderer{}, new(mailmocks.MockMailer))

		_, err := svc.CreateDelivery(context.Background(), CreateDeliveryInput{
			CardID:         "card-1",
			Channel:        model.DeliveryChannel("carrier_pigeon"),
			RecipientEmail: "jane@example.com",
		})
		assert.ErrorIs(t, err, ErrUnsupportedChannel)
		assert.Empty(t, deliveries.records)
		cards.AssertNotCalled(t, "FindByID", mock.Anything, mock.Anything)
	})

	t.Run("missing recipient", func(t *testing.T) {
		deliveries := newFakeDeliveryRepo()
		svc, _ := newTestDeliveryService(t, deliveries, &stubRenderer{}, new(mailmocks.MockMailer))

		_, err := svc.CreateDelivery(context.Background(), CreateDeliveryInput{
			CardID:         "card-1",
			Channel:        model.ChannelEmailLink,
			RecipientEmail: "   ",
		})
		assert.ErrorIs(t, err, ErrRecipientRequired)
		assert.Empty(t, deliveries.records)
	})

	t.Run("bad format", func(t *testing.T) {
		deliveries := newFakeDeliveryRepo()
		svc, _ := newTestDeliveryService(t, deliveries, &stubRenderer{}, new(mailmocks.MockMailer))

		_, err := svc.CreateDelivery(context.Background(), CreateDeliveryInput{
			CardID:         "card-1",
			Channel:        model.ChannelEmailLink,
			RecipientEmail: "jane@example.com",
			FileFormat:     "docx",
		})
		assert.ErrorIs(t, err, ErrUnsupportedFormat)
		assert.Empty(t, deliveries.records)
	})
}

func TestCreateDelivery_CardNotFound(t *testing.T) {
	deliveries := newFakeDeliveryRepo()
	svc, cards := newTestDeliveryService(t, deliveries, &stubRenderer{}, new(mailmocks.MockMailer))
	cards.On("FindByID", mock.Anything, "missing").Return(nil, sql.ErrNoRows)

	_, err := svc.CreateDelivery(context.Background(), CreateDeliveryInput{
		CardID:         "missing",
		Channel:        model.ChannelEmailLink,
		RecipientEmail: "jane@example.com",
	})
	assert.ErrorIs(t, err, ErrCardNotFound)
	assert.Empty(t, deliveries.records)
}

func TestCreateDelivery_MailFailureMarksRecordFailed(t *testing.T) {
	deliveries := newFakeDeliveryRepo()
	mailer := new(mailmocks.MockMailer)
	mailer.On("Send", mock.Anything, mock.Anything).Return(errors.New("smtp: connection refused"))

	svc, cards := newTestDeliveryService(t, deliveries, &stubRenderer{}, mailer)
	cards.On("FindByID", mock.Anything, "card-1").Return(testCard(), nil)

	rec, err := svc.CreateDelivery(context.Background(), CreateDeliveryInput{
		CardID:         "card-1",
		Channel:        model.ChannelEmailAttachment,
		RecipientEmail: "jane@example.com",
	})
	require.Error(t, err)
	require.NotNil(t, rec)

	assert.Equal(t, model.StatusFailed, rec.Status)
	assert.Contains(t, rec.FailureReason, "connection refused")

	// The failure is persisted, never left in processing.
	stored := deliveries.stored(rec.ID)
	require.NotNil(t, stored)
	assert.Equal(t, model.StatusFailed, stored.Status)
	assert.NotEmpty(t, stored.FailureReason)
}

func TestCreateDelivery_RenderFailureMarksRecordFailed(t *testing.T) {
	deliveries := newFakeDeliveryRepo()
	mailer := new(mailmocks.MockMailer)

	svc, cards := newTestDeliveryService(t, deliveries, &stubRenderer{err: errors.New("font missing")}, mailer)
	cards.On("FindByID", mock.Anything, "card-1").Return(testCard(), nil)

	rec, err := svc.CreateDelivery(context.Background(), CreateDeliveryInput{
		CardID:         "card-1",
		Channel:        model.ChannelEmailAttachment,
		RecipientEmail: "jane@example.com",
	})
	require.Error(t, err)
	assert.Equal(t, model.StatusFailed, rec.Status)
	mailer.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
}

func TestDeliveryService_Get(t *testing.T) {
	deliveries := new(repomocks.MockDeliveryRepository)
	deliveries.On("FindByID", mock.Anything, "d-1").
		Return(&model.DeliveryRecord{ID: "d-1", CardID: "card-1", Status: model.StatusCompleted}, nil)
	deliveries.On("FindByID", mock.Anything, "nope").Return(nil, sql.ErrNoRows)

	svc, _ := newTestDeliveryService(t, deliveries, &stubRenderer{}, new(mailmocks.MockMailer))

	got, err := svc.Get(context.Background(), "d-1")
	require.NoError(t, err)
	assert.Equal(t, "card-1", got.CardID)

	_, err = svc.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrDeliveryNotFound)
	deliveries.AssertExpectations(t)
}

func TestDeliveryService_List(t *testing.T) {
	deliveries := new(repomocks.MockDeliveryRepository)
	// Non-positive limit and negative offset are normalized before the
	// repository sees them.
	deliveries.On("List", mock.Anything, repository.PageQuery{Limit: 10, Offset: 0}).
		Return(&repository.PageResult[model.DeliveryRecord]{
			Items: []model.DeliveryRecord{{ID: "d-1"}, {ID: "d-2"}},
			Total: 2,
		}, nil)

	svc, _ := newTestDeliveryService(t, deliveries, &stubRenderer{}, new(mailmocks.MockMailer))

	res, err := svc.List(context.Background(), 0, -5)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Total)
	assert.Len(t, res.Items, 2)
	deliveries.AssertExpectations(t)
}

func TestLinkBodies_ContainDownloadURL(t *testing.T) {
	data := emailData{Card: testCard(), DownloadURL: "https://cards.example.com/download/tok", Year: 2026}

	html, text := linkBodies(data, log.NewNopLogger())
	assert.NotEmpty(t, text)
	assert.True(t, strings.Contains(text, data.DownloadURL) || strings.Contains(html, data.DownloadURL))
}

func TestFallbackBodies_CarryAllFields(t *testing.T) {
	expires := time.Date(2026, 9, 27, 0, 0, 0, 0, time.UTC)
	data := emailData{
		Card:          testCard(),
		RecipientName: "Maria",
		CustomMessage: "Welcome to the council!",
		DownloadURL:   "https://cards.example.com/download/tok-xyz",
		MaxDownloads:  5,
		ExpiresAt:     &expires,
		Year:          2026,
	}

	t.Run("attachment", func(t *testing.T) {
		html, text := fallbackAttachmentBodies(data)
		for _, body := range []string{html, text} {
			assert.Contains(t, body, "Maria")
			assert.Contains(t, body, "AC-2026-0042")
			assert.Contains(t, body, "Welcome to the council!")
		}
	})

	t.Run("link", func(t *testing.T) {
		html, text := fallbackLinkBodies(data)
		for _, body := range []string{html, text} {
			assert.Contains(t, body, "Maria")
			assert.Contains(t, body, data.DownloadURL)
			assert.Contains(t, body, "September 27, 2026")
			assert.Contains(t, body, "5 times")
			assert.Contains(t, body, "Welcome to the council!")
		}
	})
}
