package service

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"cardapi/internal/model"
	"cardapi/internal/render"
	"cardapi/internal/repository"
	"cardapi/internal/storage"
)

const filenameMetaKey = "Filename"

// DownloadService redeems access tokens for rendered card artifacts.
type DownloadService interface {
	// Redeem consumes one download from the token's quota and returns the
	// card artifact. Each successful call decrements the remaining quota
	// atomically, so concurrent redemptions never exceed it.
	Redeem(ctx context.Context, tok string) (*render.Artifact, error)
}

type downloadService struct {
	cards      repository.CardRepository
	deliveries repository.DeliveryRepository
	renderer   render.Renderer
	store      storage.Storage
	logger     log.Logger
	metrics    *Metrics
	now        func() time.Time
}

// NewDownloadService constructs a DownloadService. store may be nil, in which
// case every redemption renders the artifact inline.
func NewDownloadService(
	cards repository.CardRepository,
	deliveries repository.DeliveryRepository,
	renderer render.Renderer,
	store storage.Storage,
	logger log.Logger,
	metrics *Metrics,
) DownloadService {
	return &downloadService{
		cards:      cards,
		deliveries: deliveries,
		renderer:   renderer,
		store:      store,
		logger:     logger,
		metrics:    metrics,
		now:        time.Now,
	}
}

func (s *downloadService) Redeem(ctx context.Context, tok string) (*render.Artifact, error) {
	rec, err := s.deliveries.FindByToken(ctx, tok)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.metrics.observeDownload("not_found")
			return nil, ErrTokenNotFound
		}
		s.metrics.observeDownload("error")
		return nil, fmt.Errorf("look up token: %w", err)
	}

	now := s.now().UTC()
	if rec.TokenExpiresAt == nil || !rec.TokenExpiresAt.After(now) {
		s.metrics.observeDownload("expired")
		return nil, ErrTokenExpired
	}

	consumed, err := s.deliveries.ConsumeDownload(ctx, tok, now)
	if err != nil {
		s.metrics.observeDownload("error")
		return nil, fmt.Errorf("consume download: %w", err)
	}
	if !consumed {
		// The conditional update also re-checks expiry, so a token that
		// expired between the read and the update reports as expired.
		if !rec.TokenExpiresAt.After(s.now().UTC()) {
			s.metrics.observeDownload("expired")
			return nil, ErrTokenExpired
		}
		s.metrics.observeDownload("exhausted")
		return nil, ErrDownloadsExhausted
	}

	artifact, err := s.artifactFor(ctx, rec)
	if err != nil {
		s.metrics.observeDownload("error")
		return nil, err
	}
	s.metrics.observeDownload("success")
	return artifact, nil
}

// artifactFor returns the rendered card for a delivery record, serving from
// the object cache when a prior redemption populated it.
func (s *downloadService) artifactFor(ctx context.Context, rec *model.DeliveryRecord) (*render.Artifact, error) {
	key := cacheKey(rec)
	if s.store != nil {
		if artifact, ok := s.fromCache(ctx, key); ok {
			return artifact, nil
		}
	}

	card, err := s.cards.FindByID(ctx, rec.CardID)
	if err != nil {
		return nil, fmt.Errorf("look up card %s: %w", rec.CardID, err)
	}
	rendered, err := s.renderer.Render(card, rec.FileFormat)
	if err != nil {
		return nil, fmt.Errorf("render artifact: %w", err)
	}
	artifact := &rendered

	if s.store != nil {
		_, err := s.store.Put(ctx, key, bytes.NewReader(artifact.Bytes), storage.PutObjectOptions{
			Size:        int64(len(artifact.Bytes)),
			ContentType: artifact.MIMEType,
			Metadata:    map[string]string{filenameMetaKey: artifact.Filename},
		})
		if err != nil {
			// Cache miss on the next redemption; the download still succeeds.
			level.Warn(s.logger).Log("msg", "failed to cache card artifact", "key", key, "err", err)
		}
	}
	return artifact, nil
}

func (s *downloadService) fromCache(ctx context.Context, key string) (*render.Artifact, bool) {
	rc, info, err := s.store.Get(ctx, key)
	if err != nil {
		return nil, false
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		level.Warn(s.logger).Log("msg", "failed to read cached card artifact", "key", key, "err", err)
		return nil, false
	}
	filename := info.Metadata[filenameMetaKey]
	if filename == "" {
		return nil, false
	}
	return &render.Artifact{Bytes: data, Filename: filename, MIMEType: info.ContentType}, true
}

func cacheKey(rec *model.DeliveryRecord) string {
	return fmt.Sprintf("cards/%s.%s", rec.ID, rec.FileFormat)
}
