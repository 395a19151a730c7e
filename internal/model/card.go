package model

import "time"

// Card is the credential record being distributed. It is produced and owned
// by the approval subsystem; this service only reads it to render artifacts.
type Card struct {
	ID              string     `json:"id"`
	CardNumber      string     `json:"card_number"`
	DisplayName     string     `json:"display_name"`
	Status          string     `json:"status"`
	StatusLabel     string     `json:"status_label"`
	CouncilName     string     `json:"council_name,omitempty"`
	AffiliationType string     `json:"affiliation_type,omitempty"`
	QRPayload       string     `json:"qr_payload,omitempty"`
	DateIssued      *time.Time `json:"date_issued,omitempty"`
	DateExpires     *time.Time `json:"date_expires,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}
