// Package events serves the organizer side of events: listing, draft
// sessions, publishing and deletion.
package events

import (
	"time"

	"eventdesk/drafts"
	"eventdesk/mq"
	"eventdesk/publish"
	"eventdesk/repo"
	"eventdesk/validate"

	"github.com/rs/zerolog"
)

type Handler struct {
	store     repo.Store
	drafts    drafts.Store
	publisher *publish.Publisher
	validator *validate.Validator
	emitter   mq.Emitter
	loc       *time.Location
	maxUpload int64
	log       *zerolog.Logger
}

type Deps struct {
	Store     repo.Store
	Drafts    drafts.Store
	Publisher *publish.Publisher
	Validator *validate.Validator
	Emitter   mq.Emitter
	Location  *time.Location
	// MaxUpload bounds the multipart body of a publish request.
	MaxUpload int64
	Log       *zerolog.Logger
}

func NewHandler(d Deps) *Handler {
	if d.Location == nil {
		d.Location = time.UTC
	}
	if d.Validator == nil {
		d.Validator = validate.New()
	}
	if d.MaxUpload <= 0 {
		d.MaxUpload = 12 << 20
	}
	return &Handler{
		store:     d.Store,
		drafts:    d.Drafts,
		publisher: d.Publisher,
		validator: d.Validator,
		emitter:   d.Emitter,
		loc:       d.Location,
		maxUpload: d.MaxUpload,
		log:       d.Log,
	}
}
