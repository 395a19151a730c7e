// Package render turns a Card into a downloadable artifact (PDF, PNG, or
// JPEG). Two strategies are tried in order: a styled layout with branding
// and a QR verification code, then a dependency-light simple layout. The
// styled strategy may fail when optional assets (a scalable font) are
// missing; the simple one is deterministic and has no external inputs.
package render

import (
	"errors"
	"fmt"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"cardapi/internal/model"
)

// ErrUnsupportedFormat is returned before any rendering starts when the
// requested format is not one of pdf, png, or jpg.
var ErrUnsupportedFormat = errors.New("unsupported file format")

// Artifact is a rendered card ready to be attached or streamed.
type Artifact struct {
	Bytes    []byte
	Filename string
	MIMEType string
}

// Renderer produces a card artifact in the requested format.
type Renderer interface {
	Render(card *model.Card, format model.FileFormat) (Artifact, error)
}

type strategy struct {
	name   string
	render func(card *model.Card, format model.FileFormat) ([]byte, error)
}

// Options configure a CardRenderer.
type Options struct {
	// FilenamePrefix is prepended to generated filenames as
	// {prefix}_{card_number}.{ext}. Defaults to "affiliation_card".
	FilenamePrefix string
	// FontPath points at a TTF file for the styled raster strategy.
	// When empty or unreadable the styled raster render fails and the
	// simple strategy takes over.
	FontPath string
}

// CardRenderer renders cards by walking an ordered strategy list until one
// succeeds.
type CardRenderer struct {
	prefix     string
	fontPath   string
	logger     log.Logger
	strategies []strategy
}

// New builds a CardRenderer with the styled strategy first and the simple
// fallback second.
func New(logger log.Logger, opts Options) *CardRenderer {
	prefix := opts.FilenamePrefix
	if prefix == "" {
		prefix = "affiliation_card"
	}
	r := &CardRenderer{
		prefix:   prefix,
		fontPath: opts.FontPath,
		logger:   logger,
	}
	r.strategies = []strategy{
		{name: "styled", render: r.renderStyled},
		{name: "simple", render: r.renderSimple},
	}
	return r
}

// Render validates the format, then tries each strategy in order. Failures
// of non-final strategies are logged and swallowed; only the last failure
// propagates.
func (r *CardRenderer) Render(card *model.Card, format model.FileFormat) (Artifact, error) {
	switch format {
	case model.FormatPDF, model.FormatPNG, model.FormatJPG:
	default:
		return Artifact{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}

	var lastErr error
	for i, s := range r.strategies {
		b, err := s.render(card, format)
		if err == nil {
			return Artifact{
				Bytes:    b,
				Filename: fmt.Sprintf("%s_%s.%s", r.prefix, card.CardNumber, format),
				MIMEType: mimeFor(format),
			}, nil
		}
		lastErr = err
		if i < len(r.strategies)-1 {
			level.Warn(r.logger).Log(
				"msg", "card render strategy failed, trying next",
				"strategy", s.name,
				"card_number", card.CardNumber,
				"format", format,
				"err", err,
			)
		}
	}
	return Artifact{}, fmt.Errorf("render card %s as %s: %w", card.CardNumber, format, lastErr)
}

func mimeFor(format model.FileFormat) string {
	switch format {
	case model.FormatPDF:
		return "application/pdf"
	case model.FormatPNG:
		return "image/png"
	default:
		return "image/jpeg"
	}
}

// qrPayload is the content encoded into the verification QR code.
func qrPayload(card *model.Card) string {
	if card.QRPayload != "" {
		return card.QRPayload
	}
	return card.CardNumber
}
