// Package tiers reconciles the submitted ticket tiers of an event with the
// stored ones.
package tiers

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"eventdesk/models"
	"eventdesk/repo"
	"eventdesk/validate"

	"github.com/rs/zerolog"
)

// DefaultMaxPerOrder applies when a tier leaves max-per-order empty.
const DefaultMaxPerOrder = 5

var ErrDeletionBlocked = errors.New("cannot delete ticket tiers that already have sales attached to them")

type Stage string

const (
	StageRead   Stage = "read"
	StageDelete Stage = "delete"
	StageParse  Stage = "parse"
	StageUpsert Stage = "upsert"
)

// Error tells which request of the reconciliation failed.
type Error struct {
	Stage Stage
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("reconcile tiers (%s): %v", e.Stage, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

type Result struct {
	Deleted  []string
	Upserted []models.TicketTier
}

// Store is the slice of repo.Store the reconciler talks to.
type Store interface {
	ListTierIDs(ctx context.Context, eventID string) ([]string, error)
	DeleteTiers(ctx context.Context, eventID string, ids []string) error
	UpsertTiers(ctx context.Context, eventID string, tiers []models.TicketTier) ([]models.TicketTier, error)
}

// Diff returns the existing ids no submitted tier refers to, in the order
// they were listed.
func Diff(existing []string, submitted []models.TicketTierDraft) []string {
	incoming := make(map[string]struct{}, len(submitted))
	for _, t := range submitted {
		if t.ID != "" {
			incoming[t.ID] = struct{}{}
		}
	}
	out := []string{}
	for _, id := range existing {
		if _, keep := incoming[id]; !keep {
			out = append(out, id)
		}
	}
	return out
}

// BuildUpserts turns form rows into tier records. Empty sale bounds fall
// back to the event window and an empty max-per-order to maxPerOrder.
func BuildUpserts(event models.Event, submitted []models.TicketTierDraft, maxPerOrder int, loc *time.Location) ([]models.TicketTier, error) {
	out := make([]models.TicketTier, 0, len(submitted))
	for i, d := range submitted {
		t := models.TicketTier{
			TicketID:    d.ID,
			EventID:     event.EventID,
			Name:        strings.TrimSpace(d.Name),
			Description: d.Description,
			SaleStart:   event.StartDateTime,
			SaleEnd:     event.EndDateTime,
			MaxPerOrder: maxPerOrder,
		}

		price, err := strconv.ParseFloat(strings.TrimSpace(d.Price), 64)
		if err != nil || price < 0 {
			return nil, fmt.Errorf("tickets[%d].price: invalid amount %q", i, d.Price)
		}
		t.Price = price

		qty, err := strconv.Atoi(strings.TrimSpace(d.Quantity))
		if err != nil || qty < 0 {
			return nil, fmt.Errorf("tickets[%d].quantity: invalid count %q", i, d.Quantity)
		}
		t.Quantity = qty

		if s := strings.TrimSpace(d.MaxPerOrder); s != "" {
			n, err := strconv.Atoi(s)
			if err != nil || n <= 0 {
				return nil, fmt.Errorf("tickets[%d].max_per_order: invalid count %q", i, d.MaxPerOrder)
			}
			t.MaxPerOrder = n
		}
		if d.SaleStart != "" {
			if t.SaleStart, err = validate.ParseDateTimeLocal(d.SaleStart, loc); err != nil {
				return nil, fmt.Errorf("tickets[%d].sale_start: %w", i, err)
			}
		}
		if d.SaleEnd != "" {
			if t.SaleEnd, err = validate.ParseDateTimeLocal(d.SaleEnd, loc); err != nil {
				return nil, fmt.Errorf("tickets[%d].sale_end: %w", i, err)
			}
		}
		out = append(out, t)
	}
	return out, nil
}

type Reconciler struct {
	store       Store
	maxPerOrder int
	loc         *time.Location
	log         *zerolog.Logger
}

func NewReconciler(store Store, maxPerOrder int, loc *time.Location, log *zerolog.Logger) *Reconciler {
	if maxPerOrder <= 0 {
		maxPerOrder = DefaultMaxPerOrder
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Reconciler{store: store, maxPerOrder: maxPerOrder, loc: loc, log: log}
}

// Reconcile deletes the stored tiers the submission dropped, then upserts
// the submitted ones when the event is paid. A blocked deletion stops it
// before any upsert. Tiers of an event switched to free are left alone
// unless they were removed from the submission.
func (r *Reconciler) Reconcile(ctx context.Context, event models.Event, submitted []models.TicketTierDraft) (Result, error) {
	res := Result{Deleted: []string{}, Upserted: []models.TicketTier{}}

	existing, err := r.store.ListTierIDs(ctx, event.EventID)
	if err != nil {
		return res, &Error{Stage: StageRead, Err: err}
	}

	toDelete := Diff(existing, submitted)
	if len(toDelete) > 0 {
		if err := r.store.DeleteTiers(ctx, event.EventID, toDelete); err != nil {
			if errors.Is(err, repo.ErrTierHasSales) {
				return res, &Error{Stage: StageDelete, Err: fmt.Errorf("%w: %w", ErrDeletionBlocked, err)}
			}
			return res, &Error{Stage: StageDelete, Err: err}
		}
		res.Deleted = toDelete
		r.log.Debug().Str("eventid", event.EventID).Strs("tiers", toDelete).Msg("tiers deleted")
	}

	if !event.Paid || len(submitted) == 0 {
		return res, nil
	}

	payload, err := BuildUpserts(event, submitted, r.maxPerOrder, r.loc)
	if err != nil {
		return res, &Error{Stage: StageParse, Err: err}
	}
	upserted, err := r.store.UpsertTiers(ctx, event.EventID, payload)
	if err != nil {
		return res, &Error{Stage: StageUpsert, Err: err}
	}
	res.Upserted = upserted
	r.log.Debug().Str("eventid", event.EventID).Int("tiers", len(upserted)).Msg("tiers upserted")
	return res, nil
}
