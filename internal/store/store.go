// Package store holds the durable shadow copy of an in-progress acquisition.
// It is a cache, not a source of truth: inventory numbers inside a stored
// selection are advisory and the purchase API remains the single writer.
package store

import (
	"context"
	"errors"

	"ticket-acquisition/models"
)

var ErrNotFound = errors.New("selection store: not found")

// SelectionStore persists what a user was trying to buy, keyed by event id,
// so the flow survives reloads, queue waits and provider switches. Entries
// are cleared only on confirmed purchase success.
type SelectionStore interface {
	Get(ctx context.Context, eventID string) (*models.StoredSelection, error)
	Set(ctx context.Context, eventID string, sel *models.StoredSelection) error
	Remove(ctx context.Context, eventID string) error
}
