package tiers

import (
	"context"
	"errors"
	"testing"
	"time"

	"eventdesk/clock"
	"eventdesk/models"
	"eventdesk/repo"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	eventStart = time.Date(2026, 9, 1, 18, 0, 0, 0, time.UTC)
	eventEnd   = time.Date(2026, 9, 1, 23, 0, 0, 0, time.UTC)
)

type fakeStore struct {
	existing  []string
	deleteErr error
	upsertErr error

	calls   []string
	deleted [][]string
	upserts [][]models.TicketTier
}

func (f *fakeStore) ListTierIDs(_ context.Context, _ string) ([]string, error) {
	f.calls = append(f.calls, "list")
	return f.existing, nil
}

func (f *fakeStore) DeleteTiers(_ context.Context, _ string, ids []string) error {
	f.calls = append(f.calls, "delete")
	f.deleted = append(f.deleted, ids)
	return f.deleteErr
}

func (f *fakeStore) UpsertTiers(_ context.Context, eventID string, tiers []models.TicketTier) ([]models.TicketTier, error) {
	f.calls = append(f.calls, "upsert")
	f.upserts = append(f.upserts, tiers)
	if f.upsertErr != nil {
		return nil, f.upsertErr
	}
	out := make([]models.TicketTier, len(tiers))
	for i, t := range tiers {
		if t.TicketID == "" {
			t.TicketID = "new-" + t.Name
		}
		t.EventID = eventID
		out[i] = t
	}
	return out, nil
}

func paidEvent() models.Event {
	return models.Event{EventID: "ev-1", Paid: true, StartDateTime: eventStart, EndDateTime: eventEnd}
}

func newReconciler(s Store) *Reconciler {
	log := zerolog.Nop()
	return NewReconciler(s, DefaultMaxPerOrder, time.UTC, &log)
}

func TestDiff(t *testing.T) {
	tests := []struct {
		name      string
		existing  []string
		submitted []models.TicketTierDraft
		want      []string
	}{
		{"nothing stored", nil, []models.TicketTierDraft{{Name: "A"}}, []string{}},
		{"all kept", []string{"a", "b"}, []models.TicketTierDraft{{ID: "b"}, {ID: "a"}}, []string{}},
		{"one dropped", []string{"a", "b", "c"}, []models.TicketTierDraft{{ID: "a"}, {ID: "c"}, {Name: "new"}}, []string{"b"}},
		{"all dropped keeps order", []string{"c", "a", "b"}, nil, []string{"c", "a", "b"}},
		{"unknown incoming id ignored", []string{"a"}, []models.TicketTierDraft{{ID: "zzz"}}, []string{"a"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Diff(tt.existing, tt.submitted))
		})
	}
}

func TestBuildUpsertsDefaultsSaleWindowAndMax(t *testing.T) {
	got, err := BuildUpserts(paidEvent(), []models.TicketTierDraft{
		{ID: "t1", Name: " VIP ", Price: "49.90", Quantity: "20"},
		{Name: "Early", Price: "10", Quantity: "5", SaleStart: "2026-08-01T09:00", MaxPerOrder: "2"},
	}, DefaultMaxPerOrder, time.UTC)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "t1", got[0].TicketID)
	assert.Equal(t, "VIP", got[0].Name)
	assert.Equal(t, 49.90, got[0].Price)
	assert.Equal(t, eventStart, got[0].SaleStart)
	assert.Equal(t, eventEnd, got[0].SaleEnd)
	assert.Equal(t, 5, got[0].MaxPerOrder)

	assert.Empty(t, got[1].TicketID)
	assert.Equal(t, time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC), got[1].SaleStart)
	assert.Equal(t, eventEnd, got[1].SaleEnd)
	assert.Equal(t, 2, got[1].MaxPerOrder)
}

func TestBuildUpsertsRejectsBadNumbers(t *testing.T) {
	for _, d := range []models.TicketTierDraft{
		{Name: "x", Price: "abc", Quantity: "1"},
		{Name: "x", Price: "-1", Quantity: "1"},
		{Name: "x", Price: "1", Quantity: "1.5"},
		{Name: "x", Price: "1", Quantity: "1", MaxPerOrder: "0"},
		{Name: "x", Price: "1", Quantity: "1", SaleEnd: "later"},
	} {
		_, err := BuildUpserts(paidEvent(), []models.TicketTierDraft{d}, 5, time.UTC)
		assert.Error(t, err, "%+v", d)
	}
}

func TestReconcileDeletesThenUpserts(t *testing.T) {
	s := &fakeStore{existing: []string{"a", "b"}}
	res, err := newReconciler(s).Reconcile(context.Background(), paidEvent(), []models.TicketTierDraft{
		{ID: "a", Name: "A", Price: "1", Quantity: "1"},
		{Name: "C", Price: "2", Quantity: "2"},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"list", "delete", "upsert"}, s.calls)
	assert.Equal(t, [][]string{{"b"}}, s.deleted)
	require.Len(t, s.upserts, 1, "one upsert request for the whole list")
	assert.Len(t, s.upserts[0], 2)
	assert.Equal(t, []string{"b"}, res.Deleted)
	assert.Len(t, res.Upserted, 2)
}

func TestReconcileSkipsDeleteWhenNothingDropped(t *testing.T) {
	s := &fakeStore{existing: []string{"a"}}
	_, err := newReconciler(s).Reconcile(context.Background(), paidEvent(), []models.TicketTierDraft{
		{ID: "a", Name: "A", Price: "1", Quantity: "1"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"list", "upsert"}, s.calls)
}

func TestReconcileBlockedDeletionStopsBeforeUpsert(t *testing.T) {
	s := &fakeStore{existing: []string{"a", "b"}, deleteErr: repo.ErrTierHasSales}
	_, err := newReconciler(s).Reconcile(context.Background(), paidEvent(), []models.TicketTierDraft{
		{ID: "a", Name: "A", Price: "1", Quantity: "1"},
	})

	var rerr *Error
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, StageDelete, rerr.Stage)
	assert.ErrorIs(t, err, ErrDeletionBlocked)
	assert.ErrorIs(t, err, repo.ErrTierHasSales)
	assert.Empty(t, s.upserts, "no upsert after a blocked deletion")
}

func TestReconcileOtherDeleteFailure(t *testing.T) {
	boom := errors.New("connection reset")
	s := &fakeStore{existing: []string{"a"}, deleteErr: boom}
	_, err := newReconciler(s).Reconcile(context.Background(), paidEvent(), nil)

	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrDeletionBlocked)
}

func TestReconcileUpsertFailure(t *testing.T) {
	s := &fakeStore{upsertErr: errors.New("rejected")}
	_, err := newReconciler(s).Reconcile(context.Background(), paidEvent(), []models.TicketTierDraft{
		{Name: "A", Price: "1", Quantity: "1"},
	})
	var rerr *Error
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, StageUpsert, rerr.Stage)
}

func TestReconcileParseFailureSendsNoUpsert(t *testing.T) {
	s := &fakeStore{}
	_, err := newReconciler(s).Reconcile(context.Background(), paidEvent(), []models.TicketTierDraft{
		{Name: "A", Price: "free", Quantity: "1"},
	})
	var rerr *Error
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, StageParse, rerr.Stage)
	assert.Empty(t, s.upserts)
}

func TestFreeEventDoesNotCascade(t *testing.T) {
	s := &fakeStore{existing: []string{"a", "b"}}
	ev := paidEvent()
	ev.Paid = false

	res, err := newReconciler(s).Reconcile(context.Background(), ev, []models.TicketTierDraft{
		{ID: "a", Name: "A", Price: "1", Quantity: "1"},
		{ID: "b", Name: "B", Price: "1", Quantity: "1"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"list"}, s.calls)
	assert.Empty(t, res.Deleted)
	assert.Empty(t, res.Upserted)
}

// Edit scenario against a real store: one tier dropped, one changed, one added.
func TestReconcileAgainstMemoryStore(t *testing.T) {
	ctx := context.Background()
	store := repo.NewMemoryStore(clock.NewFixed(eventStart.Add(-30 * 24 * time.Hour)))
	ev, err := store.CreateEvent(ctx, paidEvent())
	require.NoError(t, err)
	seeded, err := store.UpsertTiers(ctx, ev.EventID, []models.TicketTier{
		{Name: "Standard", Price: 20, Quantity: 100, MaxPerOrder: 5},
		{Name: "Student", Price: 10, Quantity: 50, MaxPerOrder: 5},
	})
	require.NoError(t, err)

	r := newReconciler(store)
	res, err := r.Reconcile(ctx, ev, []models.TicketTierDraft{
		{ID: seeded[0].TicketID, Name: "Standard", Price: "25", Quantity: "100"},
		{Name: "VIP", Price: "80", Quantity: "10"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{seeded[1].TicketID}, res.Deleted)

	stored, err := store.ListTiers(ctx, ev.EventID)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, seeded[0].TicketID, stored[0].TicketID)
	assert.Equal(t, 25.0, stored[0].Price)
	assert.Equal(t, "VIP", stored[1].Name)
	assert.Equal(t, ev.StartDateTime, stored[1].SaleStart)

	// A sold tier cannot be dropped; nothing else changes.
	_, err = store.RecordSale(ctx, ev.EventID, stored[1].TicketID, "buyer", 1)
	require.NoError(t, err)
	_, err = r.Reconcile(ctx, ev, []models.TicketTierDraft{
		{ID: stored[0].TicketID, Name: "Standard", Price: "30", Quantity: "100"},
	})
	assert.ErrorIs(t, err, ErrDeletionBlocked)

	after, err := store.ListTiers(ctx, ev.EventID)
	require.NoError(t, err)
	assert.Len(t, after, 2)
	assert.Equal(t, 25.0, after[0].Price)
}
