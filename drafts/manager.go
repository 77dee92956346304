// Package drafts tracks an event draft while the organizer edits it.
package drafts

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"eventdesk/models"
)

var (
	ErrUnknownField = errors.New("unknown draft field")
	ErrFieldType    = errors.New("wrong value type for draft field")
	ErrTierIndex    = errors.New("ticket tier index out of range")
)

// UnloadGuard is armed while there are unsaved changes.
type UnloadGuard interface {
	Arm()
	Disarm()
}

// FlagGuard records the guard state so it can be reported to the client.
type FlagGuard struct {
	armed atomic.Bool
}

func (g *FlagGuard) Arm()        { g.armed.Store(true) }
func (g *FlagGuard) Disarm()     { g.armed.Store(false) }
func (g *FlagGuard) Armed() bool { return g.armed.Load() }

// Manager holds the current draft next to the snapshot it started from.
// The snapshot and its encoding are captured once and never change until
// Discard accepts the current draft as the new baseline.
type Manager struct {
	mu          sync.Mutex
	initial     models.EventDraft
	initialJSON []byte
	current     models.EventDraft
	dirty       bool
	guard       UnloadGuard
}

func New(initial models.EventDraft, guard UnloadGuard) *Manager {
	if guard == nil {
		guard = &FlagGuard{}
	}
	initial = normalize(initial.Clone())
	return &Manager{
		initial:     initial,
		initialJSON: canonical(initial),
		current:     initial.Clone(),
		guard:       guard,
	}
}

// Restore rebuilds a manager from a stored session, keeping the stored
// baseline rather than capturing a new one.
func Restore(s Session, guard UnloadGuard) *Manager {
	m := New(s.Initial, guard)
	m.mu.Lock()
	m.current = normalize(s.Current.Clone())
	m.recompute()
	m.mu.Unlock()
	return m
}

func (m *Manager) Draft() models.EventDraft {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current.Clone()
}

func (m *Manager) Initial() models.EventDraft {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.initial.Clone()
}

func (m *Manager) Session() Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Session{Initial: m.initial.Clone(), Current: m.current.Clone()}
}

func (m *Manager) Dirty() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dirty
}

// Set changes one scalar field, addressed by its json name.
func (m *Manager) Set(field string, value any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	d := &m.current
	if p := textField(d, field); p != nil {
		s, ok := value.(string)
		if !ok {
			return fmt.Errorf("%w: %s expects text, got %T", ErrFieldType, field, value)
		}
		*p = s
		m.recompute()
		return nil
	}
	if p := toggleField(d, field); p != nil {
		b, ok := value.(bool)
		if !ok {
			return fmt.Errorf("%w: %s expects a toggle, got %T", ErrFieldType, field, value)
		}
		*p = b
		m.recompute()
		return nil
	}
	return fmt.Errorf("%w: %s", ErrUnknownField, field)
}

func (m *Manager) SetTier(i int, field, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if i < 0 || i >= len(m.current.Tickets) {
		return fmt.Errorf("%w: %d", ErrTierIndex, i)
	}
	t := &m.current.Tickets[i]
	var p *string
	switch field {
	case "name":
		p = &t.Name
	case "price":
		p = &t.Price
	case "quantity":
		p = &t.Quantity
	case "description":
		p = &t.Description
	case "sale_start":
		p = &t.SaleStart
	case "sale_end":
		p = &t.SaleEnd
	case "max_per_order":
		p = &t.MaxPerOrder
	default:
		return fmt.Errorf("%w: tickets[%d].%s", ErrUnknownField, i, field)
	}
	*p = value
	m.recompute()
	return nil
}

// AddTier appends a blank tier and returns its index.
func (m *Manager) AddTier() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current.Tickets = append(m.current.Tickets, models.TicketTierDraft{})
	m.recompute()
	return len(m.current.Tickets) - 1
}

func (m *Manager) RemoveTier(i int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if i < 0 || i >= len(m.current.Tickets) {
		return fmt.Errorf("%w: %d", ErrTierIndex, i)
	}
	m.current.Tickets = append(m.current.Tickets[:i:i], m.current.Tickets[i+1:]...)
	m.recompute()
	return nil
}

// SetTickets replaces the whole tier list.
func (m *Manager) SetTickets(tiers []models.TicketTierDraft) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current.Tickets = append([]models.TicketTierDraft{}, tiers...)
	m.recompute()
}

// Discard accepts the current draft as the new baseline, so the draft is
// clean again and the guard is released. Called after a submit went through.
func (m *Manager) Discard() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.initial = m.current.Clone()
	m.initialJSON = canonical(m.initial)
	m.dirty = false
	m.guard.Disarm()
}

// recompute must be called with mu held.
func (m *Manager) recompute() {
	dirty := !bytes.Equal(canonical(m.current), m.initialJSON)
	switch {
	case dirty && !m.dirty:
		m.guard.Arm()
	case !dirty && m.dirty:
		m.guard.Disarm()
	}
	m.dirty = dirty
}

func textField(d *models.EventDraft, field string) *string {
	switch field {
	case "title":
		return &d.Title
	case "description":
		return &d.Description
	case "category":
		return &d.Category
	case "location":
		return &d.Location
	case "start_date":
		return &d.StartDate
	case "start_time":
		return &d.StartTime
	case "end_date":
		return &d.EndDate
	case "end_time":
		return &d.EndTime
	case "thumbnail":
		return &d.Thumbnail
	}
	return nil
}

func toggleField(d *models.EventDraft, field string) *bool {
	switch field {
	case "online":
		return &d.Online
	case "private":
		return &d.Private
	case "paid":
		return &d.Paid
	}
	return nil
}

// normalize makes a nil and an empty tier list encode the same way.
func normalize(d models.EventDraft) models.EventDraft {
	if d.Tickets == nil {
		d.Tickets = []models.TicketTierDraft{}
	}
	return d
}

func canonical(d models.EventDraft) []byte {
	data, err := json.Marshal(normalize(d))
	if err != nil {
		// A draft only holds strings and bools.
		panic(fmt.Sprintf("drafts: encode draft: %v", err))
	}
	return data
}
