package service

import "errors"

// Validation errors are returned before any side effect; the caller can fix
// the request and retry.
var (
	ErrUnsupportedChannel = errors.New("unsupported delivery channel")
	ErrRecipientRequired  = errors.New("recipient email is required")
	ErrUnsupportedFormat  = errors.New("unsupported file format")
	ErrCardNotFound       = errors.New("card not found")
	ErrDeliveryNotFound   = errors.New("delivery not found")
)

// Redemption errors are distinct and never conflated: the download endpoint
// maps them to 404, 410, and 409 respectively.
var (
	ErrTokenNotFound      = errors.New("download token not found")
	ErrTokenExpired       = errors.New("download token expired")
	ErrDownloadsExhausted = errors.New("download quota exhausted")
)
