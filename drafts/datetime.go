package drafts

import (
	"fmt"
	"strconv"
	"time"

	"eventdesk/models"
)

const (
	dateLayout          = "2006-01-02"
	clockLayout         = "15:04"
	dateTimeLocalLayout = "2006-01-02T15:04"
)

// ComposeDateTime combines the separate date and time inputs into one
// instant in loc.
func ComposeDateTime(date, clock string, loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation(dateLayout+" "+clockLayout, date+" "+clock, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("compose %q %q: %w", date, clock, err)
	}
	return t, nil
}

// SplitDateTime is the inverse of ComposeDateTime.
func SplitDateTime(t time.Time, loc *time.Location) (date, clock string) {
	if t.IsZero() {
		return "", ""
	}
	local := t.In(loc)
	return local.Format(dateLayout), local.Format(clockLayout)
}

// Empty is the draft the create flow starts from.
func Empty() models.EventDraft {
	return models.EventDraft{Tickets: []models.TicketTierDraft{}}
}

// FromEvent hydrates the edit form from a stored event and its tiers.
func FromEvent(ev models.Event, loc *time.Location) models.EventDraft {
	d := models.EventDraft{
		EventID:     ev.EventID,
		Version:     ev.Version,
		Title:       ev.Title,
		Description: ev.Description,
		Category:    ev.Category,
		Online:      ev.Online,
		Private:     ev.Private,
		Location:    ev.Location,
		Paid:        ev.Paid,
		Tickets:     make([]models.TicketTierDraft, 0, len(ev.Tickets)),
	}
	d.StartDate, d.StartTime = SplitDateTime(ev.StartDateTime, loc)
	d.EndDate, d.EndTime = SplitDateTime(ev.EndDateTime, loc)
	if ev.Thumbnail != nil {
		d.Thumbnail = *ev.Thumbnail
	}
	for _, t := range ev.Tickets {
		d.Tickets = append(d.Tickets, models.TicketTierDraft{
			ID:          t.TicketID,
			Name:        t.Name,
			Price:       strconv.FormatFloat(t.Price, 'f', 2, 64),
			Quantity:    strconv.Itoa(t.Quantity),
			Description: t.Description,
			SaleStart:   formatLocal(t.SaleStart, loc),
			SaleEnd:     formatLocal(t.SaleEnd, loc),
			MaxPerOrder: strconv.Itoa(t.MaxPerOrder),
		})
	}
	return d
}

func formatLocal(t time.Time, loc *time.Location) string {
	if t.IsZero() {
		return ""
	}
	return t.In(loc).Format(dateTimeLocalLayout)
}
