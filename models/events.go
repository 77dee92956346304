package models

import "time"

// Event is the persisted event row. Tickets is only populated on fetches
// that select the nested tier rows.
type Event struct {
	EventID       string       `json:"eventid" bson:"eventid"`
	AccountID     string       `json:"accountid" bson:"accountid"`
	CreatorID     string       `json:"creatorid" bson:"creatorid"`
	Title         string       `json:"title" bson:"title"`
	Description   string       `json:"description" bson:"description"`
	Category      string       `json:"category" bson:"category"`
	Online        bool         `json:"online" bson:"online"`
	Private       bool         `json:"private" bson:"private"`
	Location      string       `json:"location" bson:"location"`
	StartDateTime time.Time    `json:"start_date_time" bson:"start_date_time"`
	EndDateTime   time.Time    `json:"end_date_time" bson:"end_date_time"`
	Thumbnail     *string      `json:"thumbnail" bson:"thumbnail"`
	Paid          bool         `json:"paid" bson:"paid"`
	Status        string       `json:"status" bson:"status"`
	Version       int64        `json:"version" bson:"version"`
	Tickets       []TicketTier `json:"tickets" bson:"-"`
	CreatedAt     time.Time    `json:"created_at" bson:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at" bson:"updated_at"`
}

// TicketTier is one price tier of an event.
type TicketTier struct {
	TicketID    string    `json:"ticketid" bson:"ticketid"`
	EventID     string    `json:"eventid" bson:"eventid"`
	Name        string    `json:"name" bson:"name"`
	Price       float64   `json:"price" bson:"price"`
	Quantity    int       `json:"quantity" bson:"quantity"`
	Description string    `json:"description,omitempty" bson:"description,omitempty"`
	SaleStart   time.Time `json:"sale_start" bson:"sale_start"`
	SaleEnd     time.Time `json:"sale_end" bson:"sale_end"`
	MaxPerOrder int       `json:"max_per_order" bson:"max_per_order"`
	Sold        int       `json:"sold" bson:"sold"`
	CreatedAt   time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" bson:"updated_at"`
}

// Available is the number of seats left in the tier.
func (t TicketTier) Available() int {
	if t.Sold >= t.Quantity {
		return 0
	}
	return t.Quantity - t.Sold
}

const (
	EventStatusActive = "active"
)
