package model

import (
	"strings"
	"time"
)

// DeliveryChannel is the distribution method for a card artifact.
type DeliveryChannel string

const (
	ChannelEmailAttachment DeliveryChannel = "email_attachment"
	ChannelEmailLink       DeliveryChannel = "email_link"
	ChannelDirectDownload  DeliveryChannel = "direct_download"
)

// Valid reports whether the channel is one of the supported values.
func (c DeliveryChannel) Valid() bool {
	switch c {
	case ChannelEmailAttachment, ChannelEmailLink, ChannelDirectDownload:
		return true
	}
	return false
}

// DeliveryStatus is the state of one distribution attempt.
// A record starts in processing and moves exactly once to completed,
// failed, or ready_for_download. Completed and failed are terminal.
type DeliveryStatus string

const (
	StatusProcessing       DeliveryStatus = "processing"
	StatusCompleted        DeliveryStatus = "completed"
	StatusFailed           DeliveryStatus = "failed"
	StatusReadyForDownload DeliveryStatus = "ready_for_download"
)

// Terminal reports whether the status permits no further transitions.
func (s DeliveryStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// FileFormat is the artifact format requested for a delivery.
type FileFormat string

const (
	FormatPDF FileFormat = "pdf"
	FormatPNG FileFormat = "png"
	FormatJPG FileFormat = "jpg"
)

// NormalizeFormat lowercases the input and maps the jpeg alias to jpg.
// The boolean is false for unsupported formats.
func NormalizeFormat(s string) (FileFormat, bool) {
	switch strings.ToLower(s) {
	case "pdf":
		return FormatPDF, true
	case "png":
		return FormatPNG, true
	case "jpg", "jpeg":
		return FormatJPG, true
	}
	return "", false
}

// DeliveryRecord tracks one attempt to get a card artifact to a recipient.
// Records are never deleted; they are the audit trail for distribution.
type DeliveryRecord struct {
	ID              string          `json:"id"`
	CardID          string          `json:"card_id"`
	DeliveryChannel DeliveryChannel `json:"delivery_channel"`
	RecipientEmail  string          `json:"recipient_email"`
	RecipientName   string          `json:"recipient_name"`
	FileFormat      FileFormat      `json:"file_format"`
	Status          DeliveryStatus  `json:"status"`
	FailureReason   string          `json:"failure_reason,omitempty"`
	InitiatedBy     string          `json:"initiated_by,omitempty"`
	EmailSubject    string          `json:"email_subject,omitempty"`
	EmailMessage    string          `json:"email_message,omitempty"`
	AccessToken     string          `json:"-"`
	// DownloadURL carries the redemption URL back to the caller on the
	// creation response for token-minting channels. It is never persisted,
	// so records fetched later keep the token secret.
	DownloadURL    string     `json:"download_url,omitempty"`
	TokenExpiresAt *time.Time `json:"token_expires_at,omitempty"`
	MaxDownloads   int        `json:"max_downloads"`
	DownloadCount  int        `json:"download_count"`
	DeliveryNotes  string     `json:"delivery_notes,omitempty"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// HasToken reports whether an access token has already been minted for the
// record. A token, once set, is never reissued.
func (r *DeliveryRecord) HasToken() bool {
	return r.AccessToken != ""
}
