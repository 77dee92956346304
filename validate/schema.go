package validate

import (
	"reflect"
	"strings"

	"eventdesk/models"
)

// Schema is the client copy of the rules, served so the form can check
// fields as they are typed.
type Schema struct {
	Event    map[string]string `json:"event"`
	Ticket   map[string]string `json:"ticket"`
	Formats  map[string]string `json:"formats"`
	Messages map[string]string `json:"messages"`
	Notes    []string          `json:"notes"`
}

func Rules() Schema {
	return Schema{
		Event:  tags(reflect.TypeOf(models.EventDraft{})),
		Ticket: tags(reflect.TypeOf(models.TicketTierDraft{})),
		Formats: map[string]string{
			"date":           DateLayout,
			"clock":          ClockLayout,
			"datetime_local": DateTimeLocalLayout,
			"decimal":        decimalRegex.String(),
			"count":          countRegex.String(),
			"positive_count": positiveCountRegex.String(),
		},
		Messages: map[string]string{
			"required":         MsgFieldRequired,
			"required_without": MsgLocationRequired,
			"max":              MsgFieldExceedsMaxLen,
			"date":             MsgInvalidDate,
			"clock":            MsgInvalidClock,
			"datetime_local":   MsgInvalidDateTime,
			"decimal":          MsgInvalidAmount,
			"count":            MsgInvalidCount,
			"positive_count":   MsgInvalidPositive,
			"url":              MsgInvalidURL,
			"after_start":      MsgEndBeforeStart,
			"sale_after_end":   MsgSaleAfterEventEnd,
			"duplicate_tier":   MsgDuplicateTier,
		},
		Notes: []string{
			"end_time: end date and time must come after start date and time",
			"ticket.sale_end: must come after sale_start; an empty sale_start or sale_end takes the event start or end",
			"ticket.id: each tier id may appear only once",
			"tickets are only checked when paid is true",
		},
	}
}

func tags(t reflect.Type) map[string]string {
	out := make(map[string]string)
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		rule := f.Tag.Get("validate")
		if rule == "" || rule == "-" {
			continue
		}
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		out[name] = rule
	}
	return out
}
