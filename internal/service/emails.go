package service

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"strings"
	texttemplate "text/template"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"cardapi/internal/model"
)

//go:embed templates/*.html templates/*.txt
var templateFS embed.FS

var (
	htmlTemplates = template.Must(template.ParseFS(templateFS, "templates/*.html"))
	textTemplates = texttemplate.Must(texttemplate.ParseFS(templateFS, "templates/*.txt"))
)

type emailData struct {
	Card          *model.Card
	RecipientName string
	CustomMessage string
	DownloadURL   string
	MaxDownloads  int
	ExpiresAt     *time.Time
	Year          int
}

// attachmentBodies renders the attachment email in HTML and plain text.
// A failed template render degrades to the hard-coded body for that part,
// so a broken template never blocks a delivery.
func attachmentBodies(data emailData, logger log.Logger) (html, text string) {
	html = renderTemplate("card_attachment.html", data, logger)
	text = renderTextTemplate("card_attachment.txt", data, logger)
	if html == "" || text == "" {
		fh, ft := fallbackAttachmentBodies(data)
		if html == "" {
			html = fh
		}
		if text == "" {
			text = ft
		}
	}
	return html, text
}

// linkBodies renders the download-link email in HTML and plain text, with
// the same per-part fallback as attachmentBodies.
func linkBodies(data emailData, logger log.Logger) (html, text string) {
	html = renderTemplate("card_link.html", data, logger)
	text = renderTextTemplate("card_link.txt", data, logger)
	if html == "" || text == "" {
		fh, ft := fallbackLinkBodies(data)
		if html == "" {
			html = fh
		}
		if text == "" {
			text = ft
		}
	}
	return html, text
}

// fallbackAttachmentBodies builds minimal hard-coded bodies carrying the
// same fields as the templates: greeting, card number, custom message.
func fallbackAttachmentBodies(data emailData) (html, text string) {
	var hb strings.Builder
	hb.WriteString("<html><body>")
	fmt.Fprintf(&hb, "<p>Hello %s,</p>", template.HTMLEscapeString(displayName(data)))
	fmt.Fprintf(&hb, "<p>Your digital affiliation card <strong>%s</strong> is attached to this email.</p>",
		template.HTMLEscapeString(cardNumber(data)))
	if data.CustomMessage != "" {
		fmt.Fprintf(&hb, "<p>%s</p>", template.HTMLEscapeString(data.CustomMessage))
	}
	hb.WriteString("</body></html>")

	var tb strings.Builder
	fmt.Fprintf(&tb, "Hello %s,\n\nYour digital affiliation card %s is attached to this email.\n",
		displayName(data), cardNumber(data))
	if data.CustomMessage != "" {
		fmt.Fprintf(&tb, "\n%s\n", data.CustomMessage)
	}
	return hb.String(), tb.String()
}

// fallbackLinkBodies is the link-channel counterpart: download URL, expiry,
// quota, custom message.
func fallbackLinkBodies(data emailData) (html, text string) {
	var hb strings.Builder
	hb.WriteString("<html><body>")
	fmt.Fprintf(&hb, "<p>Hello %s,</p>", template.HTMLEscapeString(displayName(data)))
	fmt.Fprintf(&hb, "<p>Download your digital affiliation card %s here:<br><a href=%q>%s</a></p>",
		template.HTMLEscapeString(cardNumber(data)), data.DownloadURL,
		template.HTMLEscapeString(data.DownloadURL))
	if data.ExpiresAt != nil {
		fmt.Fprintf(&hb, "<p>This link expires on %s.", data.ExpiresAt.Format("January 2, 2006"))
		if data.MaxDownloads > 0 {
			fmt.Fprintf(&hb, " It can be used up to %d times.", data.MaxDownloads)
		}
		hb.WriteString("</p>")
	}
	if data.CustomMessage != "" {
		fmt.Fprintf(&hb, "<p>%s</p>", template.HTMLEscapeString(data.CustomMessage))
	}
	hb.WriteString("</body></html>")

	var tb strings.Builder
	fmt.Fprintf(&tb, "Hello %s,\n\nDownload your digital affiliation card %s here:\n%s\n",
		displayName(data), cardNumber(data), data.DownloadURL)
	if data.ExpiresAt != nil {
		fmt.Fprintf(&tb, "\nThis link expires on %s.\n", data.ExpiresAt.Format("January 2, 2006"))
	}
	if data.MaxDownloads > 0 {
		fmt.Fprintf(&tb, "It can be used up to %d times.\n", data.MaxDownloads)
	}
	if data.CustomMessage != "" {
		fmt.Fprintf(&tb, "\n%s\n", data.CustomMessage)
	}
	return hb.String(), tb.String()
}

func renderTemplate(name string, data emailData, logger log.Logger) string {
	var buf bytes.Buffer
	if err := htmlTemplates.ExecuteTemplate(&buf, name, data); err != nil {
		level.Warn(logger).Log("msg", "email template failed", "template", name, "err", err)
		return ""
	}
	return buf.String()
}

func renderTextTemplate(name string, data emailData, logger log.Logger) string {
	var buf bytes.Buffer
	if err := textTemplates.ExecuteTemplate(&buf, name, data); err != nil {
		level.Warn(logger).Log("msg", "email template failed", "template", name, "err", err)
		return ""
	}
	return buf.String()
}

func displayName(data emailData) string {
	if data.RecipientName != "" {
		return data.RecipientName
	}
	if data.Card != nil {
		return data.Card.DisplayName
	}
	return "Member"
}

func cardNumber(data emailData) string {
	if data.Card != nil {
		return data.Card.CardNumber
	}
	return ""
}
