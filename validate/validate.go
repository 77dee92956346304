// Package validate holds the declarative rules an event draft must satisfy
// before it can be published.
package validate

import (
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strings"
	"time"

	"eventdesk/models"

	"github.com/go-playground/validator/v10"
)

const (
	DateLayout          = "2006-01-02"
	ClockLayout         = "15:04"
	DateTimeLocalLayout = "2006-01-02T15:04"
)

const (
	MsgFieldRequired      = "Field is required"
	MsgFieldExceedsMaxLen = "Field exceeds maximum length"
	MsgInvalidDate        = "Use the YYYY-MM-DD format"
	MsgInvalidClock       = "Use the HH:MM format"
	MsgInvalidDateTime    = "Use the YYYY-MM-DDTHH:MM format"
	MsgInvalidAmount      = "Must be a non-negative amount with at most two decimals"
	MsgInvalidCount       = "Must be a whole number"
	MsgInvalidPositive    = "Must be a whole number greater than zero"
	MsgInvalidURL         = "Must be a valid URL"
	MsgLocationRequired   = "Location is required for in-person events"
	MsgEndBeforeStart     = "End must be after start"
	MsgSaleAfterEventEnd  = "Sale must start before the event ends"
	MsgDuplicateTier      = "Ticket tier appears more than once"
	MsgUnknownValidation  = "Invalid value"
)

var (
	decimalRegex       = regexp.MustCompile(`^\d+(\.\d{1,2})?$`)
	countRegex         = regexp.MustCompile(`^\d{1,9}$`)
	positiveCountRegex = regexp.MustCompile(`^[1-9]\d{0,8}$`)
)

// FieldErrors maps a json field path (e.g. "tickets[1].price") to a message.
type FieldErrors map[string]string

func (e FieldErrors) Error() string {
	keys := make([]string, 0, len(e))
	for k := range e {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e[k])
	}
	return "invalid draft: " + strings.Join(parts, "; ")
}

type Validator struct {
	v *validator.Validate
}

func New() *Validator {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	_ = v.RegisterValidation("date", layoutRule(DateLayout))
	_ = v.RegisterValidation("clock", layoutRule(ClockLayout))
	_ = v.RegisterValidation("datetime_local", validateDateTimeLocal)
	_ = v.RegisterValidation("decimal", validateDecimal)
	_ = v.RegisterValidation("count", matches(countRegex))
	_ = v.RegisterValidation("positive_count", matches(positiveCountRegex))
	v.RegisterStructValidation(eventWindow, models.EventDraft{})
	return &Validator{v: v}
}

// Draft checks the whole draft. Tier rows are only checked on paid events,
// since free events never write tiers. It returns nil when the draft is
// publishable.
func (val *Validator) Draft(d models.EventDraft) FieldErrors {
	out := FieldErrors{}
	collect(out, "", val.v.Struct(d))
	if d.Paid {
		start, end, windowOK := eventBounds(d)
		seen := make(map[string]int, len(d.Tickets))
		for i, t := range d.Tickets {
			prefix := fmt.Sprintf("tickets[%d].", i)
			collect(out, prefix, val.v.Struct(t))
			if t.ID != "" {
				if _, dup := seen[t.ID]; dup {
					out[prefix+"id"] = MsgDuplicateTier
				}
				seen[t.ID] = i
			}
			if windowOK {
				checkSaleWindow(out, prefix, t, start, end)
			}
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// checkSaleWindow checks the window a tier will actually be stored with:
// an empty bound takes the event start or end.
func checkSaleWindow(out FieldErrors, prefix string, t models.TicketTierDraft, eventStart, eventEnd time.Time) {
	if _, bad := out[prefix+"sale_start"]; bad {
		return
	}
	if _, bad := out[prefix+"sale_end"]; bad {
		return
	}
	start, end := eventStart, eventEnd
	var err error
	if t.SaleStart != "" {
		if start, err = ParseDateTimeLocal(t.SaleStart, time.UTC); err != nil {
			return
		}
	}
	if t.SaleEnd != "" {
		if end, err = ParseDateTimeLocal(t.SaleEnd, time.UTC); err != nil {
			return
		}
	}
	if end.After(start) {
		return
	}
	if t.SaleEnd == "" {
		out[prefix+"sale_start"] = MsgSaleAfterEventEnd
		return
	}
	out[prefix+"sale_end"] = MsgEndBeforeStart
}

func collect(out FieldErrors, prefix string, err error) {
	if err == nil {
		return
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		out[strings.TrimSuffix(prefix, ".")] = err.Error()
		return
	}
	for _, fe := range verrs {
		key := prefix + fieldPath(fe.Namespace())
		if _, seen := out[key]; !seen {
			out[key] = message(fe)
		}
	}
}

// fieldPath drops the struct name the namespace starts with.
func fieldPath(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return MsgFieldRequired
	case "required_without":
		return MsgLocationRequired
	case "max":
		return MsgFieldExceedsMaxLen
	case "date":
		return MsgInvalidDate
	case "clock":
		return MsgInvalidClock
	case "datetime_local":
		return MsgInvalidDateTime
	case "decimal":
		return MsgInvalidAmount
	case "count":
		return MsgInvalidCount
	case "positive_count":
		return MsgInvalidPositive
	case "url":
		return MsgInvalidURL
	case "after_start":
		return MsgEndBeforeStart
	default:
		return MsgUnknownValidation
	}
}

func layoutRule(layout string) validator.Func {
	return func(fl validator.FieldLevel) bool {
		_, err := time.Parse(layout, fl.Field().String())
		return err == nil
	}
}

// ParseDateTimeLocal accepts a datetime-local input value or RFC3339.
func ParseDateTimeLocal(s string, loc *time.Location) (time.Time, error) {
	if t, err := time.ParseInLocation(DateTimeLocalLayout, s, loc); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}

func validateDateTimeLocal(fl validator.FieldLevel) bool {
	_, err := ParseDateTimeLocal(fl.Field().String(), time.UTC)
	return err == nil
}

func validateDecimal(fl validator.FieldLevel) bool {
	return decimalRegex.MatchString(strings.TrimSpace(fl.Field().String()))
}

// matches checks the raw value, so it agrees with the pattern served to
// the form.
func matches(re *regexp.Regexp) validator.Func {
	return func(fl validator.FieldLevel) bool {
		return re.MatchString(fl.Field().String())
	}
}

// eventBounds composes the event window as wall-clock times. Wall clocks in
// one zone compare the same way in any zone.
func eventBounds(d models.EventDraft) (start, end time.Time, ok bool) {
	start, err1 := time.Parse(DateLayout+" "+ClockLayout, d.StartDate+" "+d.StartTime)
	end, err2 := time.Parse(DateLayout+" "+ClockLayout, d.EndDate+" "+d.EndTime)
	return start, end, err1 == nil && err2 == nil
}

// eventWindow reports end_time when the end does not come after the start.
// Malformed parts are already reported by their own field rules.
func eventWindow(sl validator.StructLevel) {
	d := sl.Current().Interface().(models.EventDraft)
	start, end, ok := eventBounds(d)
	if !ok {
		return
	}
	if !end.After(start) {
		sl.ReportError(d.EndTime, "end_time", "EndTime", "after_start", "")
	}
}
