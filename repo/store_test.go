package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"eventdesk/models"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func sampleEvent(accountID string) models.Event {
	return models.Event{
		AccountID:     accountID,
		CreatorID:     "user-1",
		Title:         "Launch party",
		Description:   "Drinks and demos",
		Category:      "party",
		Location:      "Hall 4",
		StartDateTime: fixedNow.Add(48 * time.Hour),
		EndDateTime:   fixedNow.Add(52 * time.Hour),
		Paid:          true,
		Status:        models.EventStatusActive,
	}
}

func sampleTier(name string, qty int) models.TicketTier {
	return models.TicketTier{
		Name:        name,
		Price:       25,
		Quantity:    qty,
		SaleStart:   fixedNow,
		SaleEnd:     fixedNow.Add(24 * time.Hour),
		MaxPerOrder: 5,
	}
}

// runStoreContract exercises behaviour every Store implementation shares.
// newStore must return an empty store. transactional is false for stores
// whose RunInTx cannot roll back.
func runStoreContract(t *testing.T, transactional bool, newStore func(t *testing.T) Store) {
	t.Run("create then get", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		created, err := s.CreateEvent(ctx, sampleEvent("acct-1"))
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		if created.EventID == "" || created.Version != 1 {
			t.Fatalf("unexpected created event: %+v", created)
		}

		got, err := s.GetEvent(ctx, created.EventID)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if got.Title != "Launch party" || len(got.Tickets) != 0 {
			t.Fatalf("unexpected event: %+v", got)
		}
	})

	t.Run("update checks version", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		created, err := s.CreateEvent(ctx, sampleEvent("acct-1"))
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		created.Title = "Renamed"
		updated, err := s.UpdateEvent(ctx, created, 1)
		if err != nil {
			t.Fatalf("update: %v", err)
		}
		if updated.Version != 2 || updated.Title != "Renamed" {
			t.Fatalf("unexpected updated event: %+v", updated)
		}

		if _, err := s.UpdateEvent(ctx, created, 1); !errors.Is(err, ErrEventConflict) {
			t.Fatalf("expected ErrEventConflict, got %v", err)
		}
	})

	t.Run("upsert inserts and updates", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		ev, err := s.CreateEvent(ctx, sampleEvent("acct-1"))
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		first, err := s.UpsertTiers(ctx, ev.EventID, []models.TicketTier{sampleTier("General", 100)})
		if err != nil {
			t.Fatalf("upsert: %v", err)
		}
		if len(first) != 1 || first[0].TicketID == "" {
			t.Fatalf("expected one inserted tier, got %+v", first)
		}

		changed := first[0]
		changed.Name = "General admission"
		changed.Price = 30
		second, err := s.UpsertTiers(ctx, ev.EventID, []models.TicketTier{changed, sampleTier("VIP", 10)})
		if err != nil {
			t.Fatalf("second upsert: %v", err)
		}
		if len(second) != 2 || second[0].TicketID != changed.TicketID {
			t.Fatalf("unexpected upsert result: %+v", second)
		}
		if second[0].Name != "General admission" || second[0].CreatedAt.IsZero() {
			t.Fatalf("upsert should return the stored row, got %+v", second[0])
		}

		if _, err := s.RecordSale(ctx, ev.EventID, changed.TicketID, "buyer-1", 2); err != nil {
			t.Fatalf("sale: %v", err)
		}
		changed.Quantity = 120
		third, err := s.UpsertTiers(ctx, ev.EventID, []models.TicketTier{changed})
		if err != nil {
			t.Fatalf("third upsert: %v", err)
		}
		if len(third) != 1 || third[0].Sold != 2 || third[0].Quantity != 120 {
			t.Fatalf("upsert should report sold count, got %+v", third)
		}

		tiers, err := s.ListTiers(ctx, ev.EventID)
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if len(tiers) != 2 {
			t.Fatalf("expected 2 tiers, got %d", len(tiers))
		}
		var found bool
		for _, tier := range tiers {
			if tier.TicketID == changed.TicketID {
				found = true
				if tier.Name != "General admission" || tier.Price != 30 {
					t.Fatalf("tier not updated: %+v", tier)
				}
			}
		}
		if !found {
			t.Fatalf("updated tier missing from %+v", tiers)
		}
	})

	t.Run("tiers with sales block deletion", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		ev, err := s.CreateEvent(ctx, sampleEvent("acct-1"))
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		tiers, err := s.UpsertTiers(ctx, ev.EventID, []models.TicketTier{sampleTier("A", 10), sampleTier("B", 10)})
		if err != nil {
			t.Fatalf("upsert: %v", err)
		}
		if _, err := s.RecordSale(ctx, ev.EventID, tiers[0].TicketID, "buyer-1", 2); err != nil {
			t.Fatalf("sale: %v", err)
		}

		err = s.DeleteTiers(ctx, ev.EventID, []string{tiers[0].TicketID, tiers[1].TicketID})
		if !errors.Is(err, ErrTierHasSales) {
			t.Fatalf("expected ErrTierHasSales, got %v", err)
		}
		ids, err := s.ListTierIDs(ctx, ev.EventID)
		if err != nil {
			t.Fatalf("list ids: %v", err)
		}
		if len(ids) != 2 {
			t.Fatalf("expected deletion to be all or none, have %v", ids)
		}

		if err := s.DeleteTiers(ctx, ev.EventID, []string{tiers[1].TicketID}); err != nil {
			t.Fatalf("delete unsold tier: %v", err)
		}
		if err := s.DeleteEvent(ctx, ev.EventID); !errors.Is(err, ErrTierHasSales) {
			t.Fatalf("expected event delete to be blocked, got %v", err)
		}
	})

	t.Run("sale respects availability", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		ev, err := s.CreateEvent(ctx, sampleEvent("acct-1"))
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		tiers, err := s.UpsertTiers(ctx, ev.EventID, []models.TicketTier{sampleTier("A", 3)})
		if err != nil {
			t.Fatalf("upsert: %v", err)
		}
		tier, err := s.RecordSale(ctx, ev.EventID, tiers[0].TicketID, "buyer-1", 3)
		if err != nil {
			t.Fatalf("sale: %v", err)
		}
		if tier.Sold != 3 || tier.Available() != 0 {
			t.Fatalf("unexpected tier after sale: %+v", tier)
		}
		if _, err := s.RecordSale(ctx, ev.EventID, tiers[0].TicketID, "buyer-2", 1); !errors.Is(err, ErrSoldOut) {
			t.Fatalf("expected ErrSoldOut, got %v", err)
		}
	})

	t.Run("failed transaction rolls back", func(t *testing.T) {
		if !transactional {
			t.Skip("store runs without transactions")
		}
		s := newStore(t)
		ctx := context.Background()

		ev, err := s.CreateEvent(ctx, sampleEvent("acct-1"))
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		boom := errors.New("boom")
		err = s.RunInTx(ctx, func(ctx context.Context) error {
			if _, err := s.UpsertTiers(ctx, ev.EventID, []models.TicketTier{sampleTier("A", 3)}); err != nil {
				return err
			}
			return boom
		})
		if !errors.Is(err, boom) {
			t.Fatalf("expected boom, got %v", err)
		}
		ids, err := s.ListTierIDs(ctx, ev.EventID)
		if err != nil {
			t.Fatalf("list ids: %v", err)
		}
		if len(ids) != 0 {
			t.Fatalf("expected rollback, have tiers %v", ids)
		}
	})

	t.Run("panicking transaction rolls back", func(t *testing.T) {
		if !transactional {
			t.Skip("store runs without transactions")
		}
		s := newStore(t)
		ctx := context.Background()

		ev, err := s.CreateEvent(ctx, sampleEvent("acct-1"))
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		func() {
			defer func() {
				if rec := recover(); rec == nil {
					t.Fatalf("expected the panic to propagate")
				}
			}()
			_ = s.RunInTx(ctx, func(ctx context.Context) error {
				renamed := ev
				renamed.Title = "Renamed"
				if _, err := s.UpdateEvent(ctx, renamed, ev.Version); err != nil {
					return err
				}
				panic("boom")
			})
		}()

		got, err := s.GetEvent(ctx, ev.EventID)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if got.Title != "Launch party" || got.Version != ev.Version {
			t.Fatalf("expected rollback, have %+v", got)
		}

		// The row must not stay locked by the abandoned transaction.
		again := got
		again.Title = "Renamed later"
		if _, err := s.UpdateEvent(ctx, again, got.Version); err != nil {
			t.Fatalf("update after panic: %v", err)
		}
	})

	t.Run("list is scoped and paged", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		for i := 0; i < 3; i++ {
			if _, err := s.CreateEvent(ctx, sampleEvent("acct-1")); err != nil {
				t.Fatalf("create: %v", err)
			}
		}
		if _, err := s.CreateEvent(ctx, sampleEvent("acct-2")); err != nil {
			t.Fatalf("create: %v", err)
		}

		page, total, err := s.ListEvents(ctx, "acct-1", 0, 2)
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if total != 3 || len(page) != 2 {
			t.Fatalf("expected 2 of 3, got %d of %d", len(page), total)
		}
	})
}
