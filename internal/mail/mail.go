// Package mail contains the outbound mail transport abstraction and its
// providers. The delivery service depends only on the Mailer interface so
// tests can substitute fakes without process-wide patching.
package mail

import "context"

// Address is an email address with an optional display name.
type Address struct {
	Email string
	Name  string
}

// Attachment is a file attached to an outbound message.
type Attachment struct {
	Filename    string
	ContentType string
	Content     []byte
}

// Message is one outbound email with HTML and plain-text alternatives.
type Message struct {
	From        Address
	To          []Address
	Subject     string
	HTMLBody    string
	TextBody    string
	Attachments []Attachment
}

// Mailer sends a single message. Implementations must be safe for
// concurrent use.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}
