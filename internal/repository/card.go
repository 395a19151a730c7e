package repository

import (
	"context"

	"cardapi/internal/model"
)

// CardRepository reads cards produced by the approval subsystem.
// This service never writes cards.
type CardRepository interface {
	// FindByID returns a card by its ID.
	FindByID(ctx context.Context, id string) (*model.Card, error)
}
