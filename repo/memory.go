package repo

import (
	"context"
	"sort"
	"sync"

	"eventdesk/clock"
	"eventdesk/models"

	"github.com/google/uuid"
)

type memoryTxKey struct{}

// MemoryStore keeps everything in maps. It backs the memory store driver and
// the handler tests.
type MemoryStore struct {
	mu     sync.Mutex
	txMu   sync.Mutex
	clock  clock.Clock
	events map[string]models.Event
	tiers  map[string]models.TicketTier
	order  []string
	seq    int64
	rank   map[string]int64
}

func NewMemoryStore(clk clock.Clock) *MemoryStore {
	return &MemoryStore{
		clock:  clk,
		events: make(map[string]models.Event),
		tiers:  make(map[string]models.TicketTier),
		rank:   make(map[string]int64),
	}
}

func (s *MemoryStore) GetEvent(_ context.Context, eventID string) (models.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ev, ok := s.events[eventID]
	if !ok {
		return models.Event{}, ErrEventNotFound
	}
	ev.Tickets = s.tiersOf(eventID)
	return ev, nil
}

func (s *MemoryStore) ListEvents(_ context.Context, accountID string, skip, limit int64) ([]models.Event, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []models.Event
	for i := len(s.order) - 1; i >= 0; i-- {
		ev, ok := s.events[s.order[i]]
		if !ok || ev.AccountID != accountID {
			continue
		}
		matched = append(matched, ev)
	}
	total := int64(len(matched))
	if skip >= total {
		return []models.Event{}, total, nil
	}
	end := skip + limit
	if limit <= 0 || end > total {
		end = total
	}
	return matched[skip:end], total, nil
}

func (s *MemoryStore) CreateEvent(_ context.Context, event models.Event) (models.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if event.EventID == "" {
		event.EventID = uuid.NewString()
	}
	if _, exists := s.events[event.EventID]; exists {
		return models.Event{}, ErrEventConflict
	}
	now := s.clock.Now()
	event.CreatedAt = now
	event.UpdatedAt = now
	event.Version = 1
	event.Tickets = nil
	s.events[event.EventID] = event
	s.order = append(s.order, event.EventID)
	return event, nil
}

func (s *MemoryStore) UpdateEvent(_ context.Context, event models.Event, expectedVersion int64) (models.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.events[event.EventID]
	if !ok {
		return models.Event{}, ErrEventNotFound
	}
	if current.Version != expectedVersion {
		return models.Event{}, ErrEventConflict
	}
	event.AccountID = current.AccountID
	event.CreatorID = current.CreatorID
	event.CreatedAt = current.CreatedAt
	event.UpdatedAt = s.clock.Now()
	event.Version = current.Version + 1
	event.Tickets = nil
	s.events[event.EventID] = event
	return event, nil
}

func (s *MemoryStore) DeleteEvent(_ context.Context, eventID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.events[eventID]; !ok {
		return ErrEventNotFound
	}
	for _, t := range s.tiersOf(eventID) {
		if t.Sold > 0 {
			return ErrTierHasSales
		}
	}
	for _, t := range s.tiersOf(eventID) {
		delete(s.tiers, t.TicketID)
		delete(s.rank, t.TicketID)
	}
	delete(s.events, eventID)
	return nil
}

func (s *MemoryStore) ListTierIDs(_ context.Context, eventID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tiers := s.tiersOf(eventID)
	ids := make([]string, 0, len(tiers))
	for _, t := range tiers {
		ids = append(ids, t.TicketID)
	}
	return ids, nil
}

func (s *MemoryStore) ListTiers(_ context.Context, eventID string) ([]models.TicketTier, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tiersOf(eventID), nil
}

func (s *MemoryStore) DeleteTiers(_ context.Context, eventID string, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range ids {
		t, ok := s.tiers[id]
		if !ok || t.EventID != eventID {
			continue
		}
		if t.Sold > 0 {
			return ErrTierHasSales
		}
	}
	for _, id := range ids {
		if t, ok := s.tiers[id]; ok && t.EventID == eventID {
			delete(s.tiers, id)
			delete(s.rank, id)
		}
	}
	return nil
}

func (s *MemoryStore) UpsertTiers(_ context.Context, eventID string, tiers []models.TicketTier) ([]models.TicketTier, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.events[eventID]; !ok {
		return nil, ErrEventNotFound
	}
	now := s.clock.Now()
	out := make([]models.TicketTier, 0, len(tiers))
	for _, t := range tiers {
		t.EventID = eventID
		t.UpdatedAt = now
		if existing, ok := s.tiers[t.TicketID]; ok && t.TicketID != "" {
			if existing.EventID != eventID {
				return nil, ErrTierNotInEvent
			}
			t.CreatedAt = existing.CreatedAt
			t.Sold = existing.Sold
		} else {
			if t.TicketID == "" {
				t.TicketID = uuid.NewString()
			}
			t.CreatedAt = now
			t.Sold = 0
			s.seq++
			s.rank[t.TicketID] = s.seq
		}
		s.tiers[t.TicketID] = t
		out = append(out, t)
	}
	return out, nil
}

func (s *MemoryStore) RecordSale(_ context.Context, eventID, tierID, _ string, quantity int) (models.TicketTier, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tiers[tierID]
	if !ok {
		return models.TicketTier{}, ErrTierNotFound
	}
	if t.EventID != eventID {
		return models.TicketTier{}, ErrTierNotInEvent
	}
	if t.Available() < quantity {
		return models.TicketTier{}, ErrSoldOut
	}
	t.Sold += quantity
	t.UpdatedAt = s.clock.Now()
	s.tiers[tierID] = t
	return t, nil
}

// RunInTx serializes transactions and restores a snapshot when fn fails
// or panics.
func (s *MemoryStore) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(memoryTxKey{}) != nil {
		return fn(ctx)
	}
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	events := make(map[string]models.Event, len(s.events))
	for k, v := range s.events {
		events[k] = v
	}
	tiers := make(map[string]models.TicketTier, len(s.tiers))
	for k, v := range s.tiers {
		tiers[k] = v
	}
	rank := make(map[string]int64, len(s.rank))
	for k, v := range s.rank {
		rank[k] = v
	}
	order := append([]string(nil), s.order...)
	seq := s.seq
	s.mu.Unlock()

	restore := func() {
		s.mu.Lock()
		s.events, s.tiers, s.order = events, tiers, order
		s.rank, s.seq = rank, seq
		s.mu.Unlock()
	}
	defer func() {
		if rec := recover(); rec != nil {
			restore()
			panic(rec)
		}
	}()

	if err := fn(context.WithValue(ctx, memoryTxKey{}, true)); err != nil {
		restore()
		return err
	}
	return nil
}

// tiersOf must be called with mu held.
func (s *MemoryStore) tiersOf(eventID string) []models.TicketTier {
	out := []models.TicketTier{}
	for _, t := range s.tiers {
		if t.EventID == eventID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return s.rank[out[i].TicketID] < s.rank[out[j].TicketID]
	})
	return out
}
