package models

// EventDraft is the editable form of an event. Dates and times are kept as
// the separate strings the organizer typed; they are only combined into
// timestamps when the draft is published.
type EventDraft struct {
	EventID     string            `json:"eventid,omitempty"`
	Version     int64             `json:"version,omitempty"`
	Title       string            `json:"title" validate:"required,max=200"`
	Description string            `json:"description" validate:"required"`
	Category    string            `json:"category" validate:"required"`
	Online      bool              `json:"online"`
	Private     bool              `json:"private"`
	Location    string            `json:"location" validate:"required_without=Online"`
	StartDate   string            `json:"start_date" validate:"required,date"`
	StartTime   string            `json:"start_time" validate:"required,clock"`
	EndDate     string            `json:"end_date" validate:"required,date"`
	EndTime     string            `json:"end_time" validate:"required,clock"`
	Thumbnail   string            `json:"thumbnail,omitempty" validate:"omitempty,url"`
	Paid        bool              `json:"paid"`
	Tickets     []TicketTierDraft `json:"tickets" validate:"-"`
}

// TicketTierDraft is one tier row of the form. An empty ID means the tier
// has not been created yet.
type TicketTierDraft struct {
	ID          string `json:"id,omitempty"`
	Name        string `json:"name" validate:"required,max=100"`
	Price       string `json:"price" validate:"required,decimal"`
	Quantity    string `json:"quantity" validate:"required,count"`
	Description string `json:"description,omitempty"`
	SaleStart   string `json:"sale_start,omitempty" validate:"omitempty,datetime_local"`
	SaleEnd     string `json:"sale_end,omitempty" validate:"omitempty,datetime_local"`
	MaxPerOrder string `json:"max_per_order,omitempty" validate:"omitempty,positive_count"`
}

// Clone returns a deep copy of the draft.
func (d EventDraft) Clone() EventDraft {
	out := d
	if d.Tickets != nil {
		out.Tickets = make([]TicketTierDraft, len(d.Tickets))
		copy(out.Tickets, d.Tickets)
	}
	return out
}
