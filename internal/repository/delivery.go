package repository

import (
	"context"
	"time"

	"cardapi/internal/model"
)

// DeliveryRepository defines data access for delivery records. Persistence
// operations only, no business logic.
type DeliveryRepository interface {
	// Create inserts a new delivery record and returns the stored row.
	Create(ctx context.Context, rec *model.DeliveryRecord) (*model.DeliveryRecord, error)

	// FindByID returns a delivery record by its ID.
	FindByID(ctx context.Context, id string) (*model.DeliveryRecord, error)

	// FindByToken returns the delivery record carrying the given access
	// token. Returns sql.ErrNoRows when no record matches.
	FindByToken(ctx context.Context, token string) (*model.DeliveryRecord, error)

	// List returns a paginated list of delivery records, newest first.
	List(ctx context.Context, pq PageQuery) (*PageResult[model.DeliveryRecord], error)

	// Update persists the mutable fields of an existing record.
	Update(ctx context.Context, rec *model.DeliveryRecord) error

	// ConsumeDownload atomically increments download_count for the record
	// carrying token, but only while the token is unexpired and under its
	// quota. Returns false when the conditional update matched no row, so
	// concurrent redemptions of the same token can never overshoot the quota.
	ConsumeDownload(ctx context.Context, token string, now time.Time) (bool, error)
}
