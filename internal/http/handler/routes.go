package handler

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"

	"cardapi/internal/model"
	"cardapi/internal/service"
)

// createDeliveryRequest is the JSON body for POST /deliveries.
type createDeliveryRequest struct {
	CardID          string `json:"card_id"`
	DeliveryChannel string `json:"delivery_channel"`
	RecipientEmail  string `json:"recipient_email"`
	RecipientName   string `json:"recipient_name"`
	FileFormat      string `json:"file_format"`
	InitiatedBy     string `json:"initiated_by"`
	EmailSubject    string `json:"email_subject"`
	EmailMessage    string `json:"email_message"`
	MaxDownloads    int    `json:"max_downloads"`
}

// RegisterRoutes attaches HTTP routes to the provided Fiber app.
// Keep handlers minimal: parsing, error translation, and response shaping only.
func RegisterRoutes(app *fiber.App, db *sql.DB, deliverySvc service.DeliveryService, downloadSvc service.DownloadService, gatherer prometheus.Gatherer) {
	// Health endpoint: checks DB connectivity only
	app.Get("/health", func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			return writeError(c, fiber.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "dependency unavailable")
		}
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "healthy"})
	})

	// Simple liveness probe
	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	if gatherer != nil {
		metricsHandler := fasthttpadaptor.NewFastHTTPHandler(
			promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}),
		)
		app.Get("/metrics", func(c *fiber.Ctx) error {
			metricsHandler(c.Context())
			return nil
		})
	}

	// Create a card delivery. The record is returned in its final state; a
	// channel failure still returns the failed record alongside a 502.
	app.Post("/deliveries", func(c *fiber.Ctx) error {
		var req createDeliveryRequest
		if err := c.BodyParser(&req); err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_BODY", "cannot parse request body")
		}
		if _, err := uuid.Parse(req.CardID); err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_CARD_ID", "invalid card_id format")
		}

		rec, err := deliverySvc.CreateDelivery(c.UserContext(), service.CreateDeliveryInput{
			CardID:         req.CardID,
			Channel:        model.DeliveryChannel(req.DeliveryChannel),
			RecipientEmail: req.RecipientEmail,
			RecipientName:  req.RecipientName,
			FileFormat:     req.FileFormat,
			InitiatedBy:    req.InitiatedBy,
			EmailSubject:   req.EmailSubject,
			EmailMessage:   req.EmailMessage,
			MaxDownloads:   req.MaxDownloads,
		})
		if err != nil {
			switch {
			case errors.Is(err, service.ErrUnsupportedChannel):
				return writeError(c, fiber.StatusBadRequest, "INVALID_CHANNEL", "unsupported delivery channel")
			case errors.Is(err, service.ErrRecipientRequired):
				return writeError(c, fiber.StatusBadRequest, "RECIPIENT_REQUIRED", "recipient email is required")
			case errors.Is(err, service.ErrUnsupportedFormat):
				return writeError(c, fiber.StatusBadRequest, "INVALID_FORMAT", "unsupported file format")
			case errors.Is(err, service.ErrCardNotFound):
				return writeError(c, fiber.StatusNotFound, "CARD_NOT_FOUND", "card not found")
			case rec != nil:
				// The record exists and is marked failed; the upstream
				// channel (mailer, renderer) is what broke.
				return c.Status(fiber.StatusBadGateway).JSON(rec)
			default:
				return writeError(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
			}
		}
		return c.Status(fiber.StatusCreated).JSON(rec)
	})

	// List deliveries with limit & offset
	app.Get("/deliveries", func(c *fiber.Ctx) error {
		limitStr := c.Query("limit", "10")
		offsetStr := c.Query("offset", "0")
		limit, err := strconv.Atoi(limitStr)
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_LIMIT", "invalid limit")
		}
		offset, err := strconv.Atoi(offsetStr)
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_OFFSET", "invalid offset")
		}

		res, err := deliverySvc.List(c.UserContext(), limit, offset)
		if err != nil {
			return writeError(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		}
		return c.JSON(res)
	})

	// Get delivery by ID
	app.Get("/deliveries/:id", func(c *fiber.Ctx) error {
		id := c.Params("id")
		if _, err := uuid.Parse(id); err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}
		rec, err := deliverySvc.Get(c.UserContext(), id)
		if err != nil {
			if errors.Is(err, service.ErrDeliveryNotFound) {
				return writeError(c, fiber.StatusNotFound, "NOT_FOUND", "delivery not found")
			}
			return writeError(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		}
		return c.JSON(rec)
	})

	// Redeem a download token, streaming the card artifact back
	app.Get("/download/:token", func(c *fiber.Ctx) error {
		artifact, err := downloadSvc.Redeem(c.UserContext(), c.Params("token"))
		if err != nil {
			switch {
			case errors.Is(err, service.ErrTokenNotFound):
				return writeError(c, fiber.StatusNotFound, "TOKEN_NOT_FOUND", "download token not found")
			case errors.Is(err, service.ErrTokenExpired):
				return writeError(c, fiber.StatusGone, "TOKEN_EXPIRED", "download token expired")
			case errors.Is(err, service.ErrDownloadsExhausted):
				return writeError(c, fiber.StatusConflict, "DOWNLOADS_EXHAUSTED", "download quota exhausted")
			default:
				return writeError(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
			}
		}

		c.Set(fiber.HeaderContentType, artifact.MIMEType)
		c.Set(fiber.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", artifact.Filename))
		return c.Send(artifact.Bytes)
	})
}
