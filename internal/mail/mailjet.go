package mail

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

const mailjetSendEndpoint = "https://api.mailjet.com/v3.1/send"

// MailjetMailer sends messages through the Mailjet v3.1 Send API.
type MailjetMailer struct {
	apiKey    string
	secretKey string
	endpoint  string
	client    *http.Client
}

// NewMailjet creates a Mailjet-backed Mailer.
func NewMailjet(apiKey, secretKey string) *MailjetMailer {
	return &MailjetMailer{
		apiKey:    apiKey,
		secretKey: secretKey,
		endpoint:  mailjetSendEndpoint,
		client:    http.DefaultClient,
	}
}

func (m *MailjetMailer) Send(ctx context.Context, msg Message) error {
	if m.apiKey == "" || m.secretKey == "" {
		return fmt.Errorf("mailjet credentials not configured")
	}

	to := make([]mjAddress, 0, len(msg.To))
	for _, a := range msg.To {
		to = append(to, mjAddress{Email: a.Email, Name: a.Name})
	}
	attachments := make([]mjAttachment, 0, len(msg.Attachments))
	for _, a := range msg.Attachments {
		attachments = append(attachments, mjAttachment{
			ContentType:   a.ContentType,
			Filename:      a.Filename,
			Base64Content: base64.StdEncoding.EncodeToString(a.Content),
		})
	}

	payload := mjPayload{
		Messages: []mjMessage{{
			From:        mjAddress{Email: msg.From.Email, Name: msg.From.Name},
			To:          to,
			Subject:     msg.Subject,
			TextPart:    msg.TextBody,
			HTMLPart:    msg.HTMLBody,
			Attachments: attachments,
		}},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal mailjet payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create mailjet request: %w", err)
	}
	req.SetBasicAuth(m.apiKey, m.secretKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("mailjet request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("mailjet returned status %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

// Mailjet v3.1 Send API payload types.
type mjPayload struct {
	Messages []mjMessage `json:"Messages"`
}

type mjMessage struct {
	From        mjAddress      `json:"From"`
	To          []mjAddress    `json:"To"`
	Subject     string         `json:"Subject"`
	TextPart    string         `json:"TextPart"`
	HTMLPart    string         `json:"HTMLPart"`
	Attachments []mjAttachment `json:"Attachments,omitempty"`
}

type mjAddress struct {
	Email string `json:"Email"`
	Name  string `json:"Name,omitempty"`
}

type mjAttachment struct {
	ContentType   string `json:"ContentType"`
	Filename      string `json:"Filename"`
	Base64Content string `json:"Base64Content"`
}
