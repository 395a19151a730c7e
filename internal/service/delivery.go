package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/google/uuid"

	"cardapi/internal/mail"
	"cardapi/internal/model"
	"cardapi/internal/render"
	"cardapi/internal/repository"
	"cardapi/internal/token"
)

// Policy holds the channel defaults applied when the caller does not
// override them.
type Policy struct {
	BaseURL          string
	FromEmail        string
	FromName         string
	LinkTokenTTL     time.Duration
	LinkMaxDownloads int
	DirectTokenTTL   time.Duration
}

// CreateDeliveryInput carries the caller's request for one distribution
// attempt.
type CreateDeliveryInput struct {
	CardID         string
	Channel        model.DeliveryChannel
	RecipientEmail string
	RecipientName  string
	FileFormat     string // defaults to pdf
	InitiatedBy    string
	EmailSubject   string
	EmailMessage   string
	MaxDownloads   int // link channel only; 0 means the policy default
}

// DeliveryListResult is the service-level DTO for paginated delivery records.
type DeliveryListResult struct {
	Items []model.DeliveryRecord `json:"data"`
	Total int                    `json:"total"`
}

// DeliveryService is the public entry point for card distribution.
type DeliveryService interface {
	// CreateDelivery creates a delivery record, dispatches it to the channel
	// handler, and returns the record in a terminal or ready state. When the
	// handler fails the record is persisted as failed and the error returned;
	// no call ever leaves a record in processing.
	CreateDelivery(ctx context.Context, in CreateDeliveryInput) (*model.DeliveryRecord, error)

	// Get returns a single delivery record by its ID.
	Get(ctx context.Context, id string) (*model.DeliveryRecord, error)

	// List returns delivery records for auditing, newest first.
	List(ctx context.Context, limit, offset int) (*DeliveryListResult, error)
}

type channelHandler func(ctx context.Context, card *model.Card, rec *model.DeliveryRecord) error

type deliveryService struct {
	cards      repository.CardRepository
	deliveries repository.DeliveryRepository
	renderer   render.Renderer
	issuer     *token.Issuer
	mailer     mail.Mailer
	policy     Policy
	logger     log.Logger
	metrics    *Metrics
	handlers   map[model.DeliveryChannel]channelHandler
	now        func() time.Time
}

// NewDeliveryService constructs a DeliveryService with explicitly injected
// collaborators.
func NewDeliveryService(
	cards repository.CardRepository,
	deliveries repository.DeliveryRepository,
	renderer render.Renderer,
	issuer *token.Issuer,
	mailer mail.Mailer,
	policy Policy,
	logger log.Logger,
	metrics *Metrics,
) DeliveryService {
	s := &deliveryService{
		cards:      cards,
		deliveries: deliveries,
		renderer:   renderer,
		issuer:     issuer,
		mailer:     mailer,
		policy:     policy,
		logger:     logger,
		metrics:    metrics,
		now:        time.Now,
	}
	s.handlers = map[model.DeliveryChannel]channelHandler{
		model.ChannelEmailAttachment: s.handleEmailAttachment,
		model.ChannelEmailLink:       s.handleEmailLink,
		model.ChannelDirectDownload:  s.handleDirectDownload,
	}
	return s
}

func (s *deliveryService) CreateDelivery(ctx context.Context, in CreateDeliveryInput) (*model.DeliveryRecord, error) {
	// All validation happens before any side effect.
	handler, ok := s.handlers[in.Channel]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedChannel, in.Channel)
	}
	if strings.TrimSpace(in.RecipientEmail) == "" {
		return nil, ErrRecipientRequired
	}
	rawFormat := in.FileFormat
	if rawFormat == "" {
		rawFormat = string(model.FormatPDF)
	}
	format, ok := model.NormalizeFormat(rawFormat)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, in.FileFormat)
	}

	card, err := s.cards.FindByID(ctx, in.CardID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCardNotFound
		}
		return nil, fmt.Errorf("look up card %s: %w", in.CardID, err)
	}

	rec := &model.DeliveryRecord{
		ID:              uuid.NewString(),
		CardID:          card.ID,
		DeliveryChannel: in.Channel,
		RecipientEmail:  in.RecipientEmail,
		RecipientName:   in.RecipientName,
		FileFormat:      format,
		Status:          model.StatusProcessing,
		InitiatedBy:     in.InitiatedBy,
		EmailSubject:    in.EmailSubject,
		EmailMessage:    in.EmailMessage,
		MaxDownloads:    s.quotaFor(in),
		CreatedAt:       s.now().UTC(),
	}
	rec, err = s.deliveries.Create(ctx, rec)
	if err != nil {
		return nil, fmt.Errorf("create delivery record: %w", err)
	}

	level.Info(s.logger).Log(
		"msg", "created card delivery",
		"delivery_id", rec.ID,
		"card_number", card.CardNumber,
		"channel", rec.DeliveryChannel,
	)

	if err := handler(ctx, card, rec); err != nil {
		rec.Status = model.StatusFailed
		rec.FailureReason = err.Error()
		if updErr := s.deliveries.Update(ctx, rec); updErr != nil {
			level.Error(s.logger).Log(
				"msg", "failed to persist delivery failure",
				"delivery_id", rec.ID,
				"err", updErr,
			)
		}
		s.metrics.observeDelivery(rec.DeliveryChannel, rec.Status)
		level.Error(s.logger).Log(
			"msg", "card delivery failed",
			"delivery_id", rec.ID,
			"card_number", card.CardNumber,
			"channel", rec.DeliveryChannel,
			"err", err,
		)
		return rec, fmt.Errorf("delivery %s failed: %w", rec.ID, err)
	}

	s.metrics.observeDelivery(rec.DeliveryChannel, rec.Status)
	return rec, nil
}

// quotaFor decides the download quota recorded at creation time. Only the
// link channel honors a caller override; direct downloads are single-use.
func (s *deliveryService) quotaFor(in CreateDeliveryInput) int {
	switch in.Channel {
	case model.ChannelEmailLink:
		if in.MaxDownloads > 0 {
			return in.MaxDownloads
		}
		return s.policy.LinkMaxDownloads
	case model.ChannelDirectDownload:
		return 1
	}
	return 0
}

// handleEmailAttachment renders the card inline and mails it as an
// attachment.
func (s *deliveryService) handleEmailAttachment(ctx context.Context, card *model.Card, rec *model.DeliveryRecord) error {
	artifact, err := s.renderer.Render(card, rec.FileFormat)
	if err != nil {
		return fmt.Errorf("render artifact: %w", err)
	}

	html, text := attachmentBodies(s.emailData(card, rec), s.logger)
	subject := rec.EmailSubject
	if subject == "" {
		subject = fmt.Sprintf("Your Digital Affiliation Card - %s", card.CardNumber)
	}

	msg := mail.Message{
		From:     mail.Address{Email: s.policy.FromEmail, Name: s.policy.FromName},
		To:       []mail.Address{{Email: rec.RecipientEmail, Name: rec.RecipientName}},
		Subject:  subject,
		HTMLBody: html,
		TextBody: text,
		Attachments: []mail.Attachment{{
			Filename:    artifact.Filename,
			ContentType: artifact.MIMEType,
			Content:     artifact.Bytes,
		}},
	}
	if err := s.mailer.Send(ctx, msg); err != nil {
		return fmt.Errorf("send attachment email: %w", err)
	}

	now := s.now().UTC()
	rec.Status = model.StatusCompleted
	rec.CompletedAt = &now
	rec.DeliveryNotes = fmt.Sprintf("Card attachment sent to %s", rec.RecipientEmail)
	if err := s.deliveries.Update(ctx, rec); err != nil {
		return fmt.Errorf("persist completion: %w", err)
	}
	return nil
}

// handleEmailLink mails a tokenized download URL. The artifact itself is
// rendered later, at redemption time, so unclaimed links cost nothing.
func (s *deliveryService) handleEmailLink(ctx context.Context, card *model.Card, rec *model.DeliveryRecord) error {
	if !rec.HasToken() {
		grant, err := s.issuer.Issue(s.policy.LinkTokenTTL, rec.MaxDownloads)
		if err != nil {
			return fmt.Errorf("issue download token: %w", err)
		}
		rec.AccessToken = grant.Token
		rec.TokenExpiresAt = &grant.ExpiresAt
		rec.MaxDownloads = grant.MaxDownloads
		// Persist before sending so a delivered link always matches a
		// stored token.
		if err := s.deliveries.Update(ctx, rec); err != nil {
			return fmt.Errorf("persist download token: %w", err)
		}
	}

	rec.DownloadURL = s.downloadURL(rec.AccessToken)

	data := s.emailData(card, rec)
	data.DownloadURL = rec.DownloadURL
	html, text := linkBodies(data, s.logger)

	subject := rec.EmailSubject
	if subject == "" {
		subject = fmt.Sprintf("Download Your Digital Affiliation Card - %s", card.CardNumber)
	}
	msg := mail.Message{
		From:     mail.Address{Email: s.policy.FromEmail, Name: s.policy.FromName},
		To:       []mail.Address{{Email: rec.RecipientEmail, Name: rec.RecipientName}},
		Subject:  subject,
		HTMLBody: html,
		TextBody: text,
	}
	if err := s.mailer.Send(ctx, msg); err != nil {
		return fmt.Errorf("send link email: %w", err)
	}

	now := s.now().UTC()
	rec.Status = model.StatusCompleted
	rec.CompletedAt = &now
	rec.DeliveryNotes = fmt.Sprintf("Download link sent to %s", rec.RecipientEmail)
	if err := s.deliveries.Update(ctx, rec); err != nil {
		return fmt.Errorf("persist completion: %w", err)
	}
	return nil
}

// handleDirectDownload prepares a single-use token and marks the record
// ready. No email is sent; the caller redirects to the download endpoint.
func (s *deliveryService) handleDirectDownload(ctx context.Context, card *model.Card, rec *model.DeliveryRecord) error {
	if !rec.HasToken() {
		grant, err := s.issuer.Issue(s.policy.DirectTokenTTL, 1)
		if err != nil {
			return fmt.Errorf("issue download token: %w", err)
		}
		rec.AccessToken = grant.Token
		rec.TokenExpiresAt = &grant.ExpiresAt
		rec.MaxDownloads = grant.MaxDownloads
	}
	// The caller redeems immediately, so the creation response must carry
	// the redemption URL.
	rec.DownloadURL = s.downloadURL(rec.AccessToken)

	now := s.now().UTC()
	rec.Status = model.StatusReadyForDownload
	rec.CompletedAt = &now
	rec.DeliveryNotes = fmt.Sprintf("Direct download prepared for %s", card.CardNumber)
	if err := s.deliveries.Update(ctx, rec); err != nil {
		return fmt.Errorf("persist ready state: %w", err)
	}
	return nil
}

func (s *deliveryService) downloadURL(tok string) string {
	return strings.TrimRight(s.policy.BaseURL, "/") + "/download/" + tok
}

func (s *deliveryService) emailData(card *model.Card, rec *model.DeliveryRecord) emailData {
	return emailData{
		Card:          card,
		RecipientName: rec.RecipientName,
		CustomMessage: rec.EmailMessage,
		MaxDownloads:  rec.MaxDownloads,
		ExpiresAt:     rec.TokenExpiresAt,
		Year:          s.now().UTC().Year(),
	}
}

// Get returns a delivery record by ID.
func (s *deliveryService) Get(ctx context.Context, id string) (*model.DeliveryRecord, error) {
	rec, err := s.deliveries.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDeliveryNotFound
		}
		return nil, err
	}
	return rec, nil
}

// List returns paginated delivery records without exposing repository types.
func (s *deliveryService) List(ctx context.Context, limit, offset int) (*DeliveryListResult, error) {
	if limit <= 0 {
		limit = 10
	}
	if offset < 0 {
		offset = 0
	}
	res, err := s.deliveries.List(ctx, repository.PageQuery{Limit: limit, Offset: offset})
	if err != nil {
		return nil, err
	}
	return &DeliveryListResult{Items: res.Items, Total: res.Total}, nil
}
