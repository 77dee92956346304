package repo

import (
	"context"
	"errors"
	"testing"

	"eventdesk/clock"
	"eventdesk/models"
)

func TestMemoryStore(t *testing.T) {
	runStoreContract(t, true, func(t *testing.T) Store {
		return NewMemoryStore(clock.NewFixed(fixedNow))
	})
}

func TestMemoryStoreKeepsTierInsertionOrder(t *testing.T) {
	s := NewMemoryStore(clock.NewFixed(fixedNow))
	ctx := context.Background()

	ev, err := s.CreateEvent(ctx, sampleEvent("acct-1"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	names := []string{"Early bird", "General", "VIP"}
	var input []models.TicketTier
	for _, n := range names {
		input = append(input, sampleTier(n, 10))
	}
	if _, err := s.UpsertTiers(ctx, ev.EventID, input); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	tiers, err := s.ListTiers(ctx, ev.EventID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	for i, tier := range tiers {
		if tier.Name != names[i] {
			t.Fatalf("position %d: expected %s, got %s", i, names[i], tier.Name)
		}
	}
}

func TestMemoryStoreRejectsForeignTier(t *testing.T) {
	s := NewMemoryStore(clock.NewFixed(fixedNow))
	ctx := context.Background()

	a, _ := s.CreateEvent(ctx, sampleEvent("acct-1"))
	b, _ := s.CreateEvent(ctx, sampleEvent("acct-1"))
	tiers, err := s.UpsertTiers(ctx, a.EventID, []models.TicketTier{sampleTier("A", 1)})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}

	if _, err := s.UpsertTiers(ctx, b.EventID, tiers); !errors.Is(err, ErrTierNotInEvent) {
		t.Fatalf("expected ErrTierNotInEvent, got %v", err)
	}
	if _, err := s.UpsertTiers(ctx, "missing", []models.TicketTier{sampleTier("A", 1)}); !errors.Is(err, ErrEventNotFound) {
		t.Fatalf("expected ErrEventNotFound, got %v", err)
	}
}

func TestMemoryStoreNestedTxSharesSnapshot(t *testing.T) {
	s := NewMemoryStore(clock.NewFixed(fixedNow))
	ctx := context.Background()
	ev, _ := s.CreateEvent(ctx, sampleEvent("acct-1"))

	boom := errors.New("boom")
	err := s.RunInTx(ctx, func(ctx context.Context) error {
		inner := s.RunInTx(ctx, func(ctx context.Context) error {
			_, err := s.UpsertTiers(ctx, ev.EventID, []models.TicketTier{sampleTier("A", 1)})
			return err
		})
		if inner != nil {
			return inner
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if ids, _ := s.ListTierIDs(ctx, ev.EventID); len(ids) != 0 {
		t.Fatalf("expected outer rollback to undo inner work, have %v", ids)
	}
}
