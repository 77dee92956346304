package repo

import (
	"context"
	"errors"

	"eventdesk/models"
)

var (
	ErrEventNotFound  = errors.New("event not found")
	ErrTierNotFound   = errors.New("ticket tier not found")
	ErrTierHasSales   = errors.New("ticket tier has sales attached")
	ErrEventConflict  = errors.New("event was modified by another editor")
	ErrInvalidID      = errors.New("invalid id")
	ErrSoldOut        = errors.New("not enough tickets available")
	ErrTierNotInEvent = errors.New("ticket tier does not belong to event")
)

// Store is the persistence collaborator of the publishing workflow.
type Store interface {
	// GetEvent returns the event with its tiers selected.
	GetEvent(ctx context.Context, eventID string) (models.Event, error)
	ListEvents(ctx context.Context, accountID string, skip, limit int64) ([]models.Event, int64, error)
	CreateEvent(ctx context.Context, event models.Event) (models.Event, error)
	// UpdateEvent writes every scalar field of event when the stored version
	// equals expectedVersion, and bumps the version.
	UpdateEvent(ctx context.Context, event models.Event, expectedVersion int64) (models.Event, error)
	// DeleteEvent removes the event and its tiers. Tiers with sales block it.
	DeleteEvent(ctx context.Context, eventID string) error

	ListTierIDs(ctx context.Context, eventID string) ([]string, error)
	ListTiers(ctx context.Context, eventID string) ([]models.TicketTier, error)
	// DeleteTiers deletes all ids or none. It returns ErrTierHasSales when any
	// of them has recorded sales.
	DeleteTiers(ctx context.Context, eventID string, ids []string) error
	// UpsertTiers updates tiers that carry a TicketID and inserts the others.
	UpsertTiers(ctx context.Context, eventID string, tiers []models.TicketTier) ([]models.TicketTier, error)
	RecordSale(ctx context.Context, eventID, tierID, buyerID string, quantity int) (models.TicketTier, error)

	// RunInTx runs fn so that every store call made with the ctx it receives
	// commits or rolls back together.
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}
