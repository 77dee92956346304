// Package publish saves an event draft: optional image upload, the event
// record, then its ticket tiers, in that order.
package publish

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"eventdesk/account"
	"eventdesk/clock"
	"eventdesk/drafts"
	"eventdesk/filemgr"
	"eventdesk/models"
	"eventdesk/mq"
	"eventdesk/notify"
	"eventdesk/repo"
	"eventdesk/tiers"
	"eventdesk/validate"

	"github.com/rs/zerolog"
)

type State string

const (
	StateIdle            State = "Idle"
	StateUploading       State = "Uploading"
	StateEventUpserting  State = "EventUpserting"
	StateTierReconciling State = "TierReconciling"
	StateDone            State = "Done"
	StateFailed          State = "Failed"
)

const (
	// DashboardRoute is where the organizer lands after a successful save.
	DashboardRoute = "/dashboard/events"
	// AssetCacheSeconds is the cache policy stored with uploaded images.
	AssetCacheSeconds = "3600"

	EventCreated = "event-created"
	EventUpdated = "event-updated"
)

type Attachment struct {
	Filename    string
	ContentType string
	Body        io.Reader
}

// Navigator is the page routing collaborator.
type Navigator interface {
	Navigate(route string)
	Back()
}

// Session is the draft session to forget once the save went through.
type Session interface {
	Discard(ctx context.Context) error
}

// Guard keeps two saves of the same event from running at once.
type Guard interface {
	TryAcquire(ctx context.Context, key string) (release func(), ok bool, err error)
}

type AssetStore interface {
	Upload(ctx context.Context, path string, r io.Reader, opts filemgr.UploadOptions) error
	PublicURL(path string) string
	Remove(ctx context.Context, path string) error
}

type Request struct {
	Account    account.Context
	Draft      models.EventDraft
	Attachment *Attachment
	Navigator  Navigator
	Session    Session
}

type Result struct {
	Event    models.Event
	Tiers    tiers.Result
	Created  bool
	AssetURL string
	Redirect string
	Trace    []State
}

type Deps struct {
	Store       repo.Store
	Assets      AssetStore
	Guard       Guard
	Validator   *validate.Validator
	Notifier    notify.Sink
	Emitter     mq.Emitter
	Clock       clock.Clock
	Location    *time.Location
	MaxPerOrder int
	StepTimeout time.Duration
	Log         *zerolog.Logger
}

type Publisher struct {
	store       repo.Store
	assets      AssetStore
	guard       Guard
	validator   *validate.Validator
	reconciler  *tiers.Reconciler
	notifier    notify.Sink
	emitter     mq.Emitter
	clock       clock.Clock
	loc         *time.Location
	stepTimeout time.Duration
	log         *zerolog.Logger
}

func New(d Deps) *Publisher {
	if d.Location == nil {
		d.Location = time.UTC
	}
	if d.Clock == nil {
		d.Clock = clock.NewSystem()
	}
	if d.Guard == nil {
		d.Guard = NewLocalGuard()
	}
	if d.Validator == nil {
		d.Validator = validate.New()
	}
	if d.StepTimeout <= 0 {
		d.StepTimeout = 10 * time.Second
	}
	if d.Log == nil {
		nop := zerolog.Nop()
		d.Log = &nop
	}
	return &Publisher{
		store:       d.Store,
		assets:      d.Assets,
		guard:       d.Guard,
		validator:   d.Validator,
		reconciler:  tiers.NewReconciler(d.Store, d.MaxPerOrder, d.Location, d.Log),
		notifier:    d.Notifier,
		emitter:     d.Emitter,
		clock:       d.Clock,
		loc:         d.Location,
		stepTimeout: d.StepTimeout,
		log:         d.Log,
	}
}

type run struct {
	trace []State
}

func (r *run) enter(s State) { r.trace = append(r.trace, s) }

func (r *run) state() State { return r.trace[len(r.trace)-1] }

// Publish runs one save. On failure the draft session is left as it was and
// no navigation happens.
func (p *Publisher) Publish(ctx context.Context, req Request) (res Result, err error) {
	r := &run{trace: []State{StateIdle}}
	log := p.log.With().
		Str("accountid", req.Account.AccountID()).
		Str("userid", req.Account.UserID()).
		Str("eventid", req.Draft.EventID).
		Logger()

	// assetPath is set once an upload went through; committed once the
	// event and tier writes are durable.
	var assetPath string
	var committed bool
	defer func() {
		if rec := recover(); rec != nil {
			log.Error().Str("panic", fmt.Sprint(rec)).Bytes("stack", debug.Stack()).Msg("publish panicked")
			err = &Error{Kind: KindUnexpected, Stage: r.state(), Err: fmt.Errorf("panic: %v", rec)}
		}
		if err == nil {
			return
		}
		if assetPath != "" && !committed {
			if rmErr := p.assets.Remove(context.WithoutCancel(ctx), assetPath); rmErr != nil {
				log.Warn().Err(rmErr).Str("path", assetPath).Msg("remove orphaned asset")
			}
		}
		res = Result{Trace: append(r.trace, StateFailed)}
		p.reportFailure(ctx, req, err, &log)
	}()

	release, ok, gerr := p.guard.TryAcquire(ctx, lockKey(req))
	if gerr != nil {
		return res, &Error{Kind: KindUnexpected, Stage: StateIdle, Err: gerr}
	}
	if !ok {
		return res, &Error{Kind: KindPublishInProgress, Stage: StateIdle}
	}
	defer release()

	draft := req.Draft
	if fields := p.validator.Draft(draft); fields != nil {
		return res, &Error{Kind: KindInvalidDraft, Stage: StateIdle, Err: fields, Fields: fields}
	}
	start, serr := drafts.ComposeDateTime(draft.StartDate, draft.StartTime, p.loc)
	end, eerr := drafts.ComposeDateTime(draft.EndDate, draft.EndTime, p.loc)
	if serr != nil || eerr != nil {
		return res, &Error{Kind: KindInvalidDraft, Stage: StateIdle, Err: errors.Join(serr, eerr)}
	}

	var current models.Event
	if draft.EventID != "" {
		current, err = p.store.GetEvent(ctx, draft.EventID)
		if err == nil && current.AccountID != req.Account.AccountID() {
			err = repo.ErrEventNotFound
		}
		if err != nil {
			return res, &Error{Kind: KindEventUpsertFailed, Stage: StateIdle, Err: err}
		}
	}

	var assetURL string
	if req.Attachment != nil {
		r.enter(StateUploading)
		path := filemgr.AssetPath(req.Account.AccountID(), req.Attachment.Filename, p.clock.Now())
		uctx, cancel := context.WithTimeout(ctx, p.stepTimeout)
		err = p.assets.Upload(uctx, path, req.Attachment.Body, filemgr.UploadOptions{
			CacheControl: AssetCacheSeconds,
			Upsert:       false,
			ContentType:  req.Attachment.ContentType,
		})
		cancel()
		if err != nil {
			return res, &Error{Kind: KindAssetUploadFailed, Stage: StateUploading, Err: err}
		}
		assetPath = path
		assetURL = p.assets.PublicURL(assetPath)
		log.Debug().Str("path", assetPath).Msg("asset uploaded")
	}

	event := models.Event{
		EventID:       draft.EventID,
		AccountID:     req.Account.AccountID(),
		CreatorID:     req.Account.UserID(),
		Title:         strings.TrimSpace(draft.Title),
		Description:   draft.Description,
		Category:      draft.Category,
		Online:        draft.Online,
		Private:       draft.Private,
		Location:      draft.Location,
		StartDateTime: start,
		EndDateTime:   end,
		Thumbnail:     thumbnail(assetURL, draft.Thumbnail),
		Paid:          draft.Paid,
		Status:        models.EventStatusActive,
	}
	if draft.EventID != "" {
		event.Status = current.Status
	}

	var saved models.Event
	var reconciled tiers.Result
	tctx, cancel := context.WithTimeout(ctx, p.stepTimeout)
	err = p.store.RunInTx(tctx, func(ctx context.Context) error {
		r.enter(StateEventUpserting)
		var uerr error
		if draft.EventID == "" {
			saved, uerr = p.store.CreateEvent(ctx, event)
		} else {
			saved, uerr = p.store.UpdateEvent(ctx, event, draft.Version)
		}
		if uerr != nil {
			return &Error{Kind: KindEventUpsertFailed, Stage: StateEventUpserting, Err: uerr}
		}

		r.enter(StateTierReconciling)
		var rerr error
		reconciled, rerr = p.reconciler.Reconcile(ctx, saved, draft.Tickets)
		if rerr != nil {
			kind := KindTierUpsertFailed
			if errors.Is(rerr, tiers.ErrDeletionBlocked) {
				kind = KindTierDeletionBlocked
			}
			return &Error{Kind: kind, Stage: StateTierReconciling, Err: rerr}
		}
		return nil
	})
	cancel()
	if err != nil {
		var perr *Error
		if !errors.As(err, &perr) {
			err = &Error{Kind: KindEventUpsertFailed, Stage: r.state(), Err: err}
		}
		return res, err
	}
	committed = true
	saved.Tickets = reconciled.Upserted

	r.enter(StateDone)
	created := draft.EventID == ""
	p.notify(ctx, req.Account.UserID(), notify.KindSuccess, successMessage(created))

	if req.Session != nil {
		if derr := req.Session.Discard(ctx); derr != nil {
			log.Warn().Err(derr).Msg("discard draft session")
		}
	}
	if req.Navigator != nil {
		req.Navigator.Navigate(DashboardRoute)
	}
	p.emit(ctx, saved.EventID, created, &log)

	log.Info().Str("eventid", saved.EventID).Bool("created", created).
		Int("tiers_upserted", len(reconciled.Upserted)).Int("tiers_deleted", len(reconciled.Deleted)).
		Msg("event published")

	return Result{
		Event:    saved,
		Tiers:    reconciled,
		Created:  created,
		AssetURL: assetURL,
		Redirect: DashboardRoute,
		Trace:    r.trace,
	}, nil
}

func (p *Publisher) reportFailure(ctx context.Context, req Request, err error, log *zerolog.Logger) {
	var perr *Error
	msg := MsgGeneric
	if errors.As(err, &perr) {
		msg = perr.UserMessage()
	}
	ev := log.Warn()
	if perr == nil || perr.Kind == KindUnexpected {
		ev = log.Error()
	}
	ev.Err(err).Msg("publish failed")
	p.notify(ctx, req.Account.UserID(), notify.KindError, msg)
}

func (p *Publisher) notify(ctx context.Context, userID string, kind notify.Kind, msg string) {
	if p.notifier == nil {
		return
	}
	p.notifier.Notify(ctx, notify.Notification{Kind: kind, Message: msg, UserID: userID, At: p.clock.Now()})
}

func (p *Publisher) emit(ctx context.Context, eventID string, created bool, log *zerolog.Logger) {
	if p.emitter == nil {
		return
	}
	name, method := EventUpdated, "PUT"
	if created {
		name, method = EventCreated, "POST"
	}
	if err := p.emitter.Emit(ctx, name, mq.Index{EntityType: "event", Method: method, EntityId: eventID}); err != nil {
		log.Warn().Err(err).Str("event", name).Msg("emit failed")
	}
}

func successMessage(created bool) string {
	if created {
		return "Event created successfully"
	}
	return "Event updated successfully"
}

// thumbnail picks the new upload, else the previous URL, else null.
func thumbnail(uploaded, previous string) *string {
	switch {
	case uploaded != "":
		return &uploaded
	case previous != "":
		return &previous
	}
	return nil
}

func lockKey(req Request) string {
	id := req.Draft.EventID
	if id == "" {
		id = "new:" + req.Account.UserID()
	}
	return "publish:" + req.Account.AccountID() + ":" + id
}

// LocalGuard is an in-process Guard for single instance deployments.
type LocalGuard struct {
	mu   sync.Mutex
	held map[string]bool
}

func NewLocalGuard() *LocalGuard {
	return &LocalGuard{held: make(map[string]bool)}
}

func (g *LocalGuard) TryAcquire(_ context.Context, key string) (func(), bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.held[key] {
		return nil, false, nil
	}
	g.held[key] = true
	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			delete(g.held, key)
			g.mu.Unlock()
		})
	}, true, nil
}
