package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strings"

	"eventdesk/account"
	"eventdesk/filemgr"
	"eventdesk/models"
	"eventdesk/publish"
	"eventdesk/repo"
	"eventdesk/tiers"
	"eventdesk/utils"

	"github.com/julienschmidt/httprouter"
)

var errMissingEvent = errors.New("missing event data")

// POST /api/organizer/events
func (h *Handler) CreateEvent(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	h.publishEvent(w, r, "")
}

// PUT /api/organizer/events/:eventid
func (h *Handler) EditEvent(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	eventID := ps.ByName("eventid")
	if eventID == "" {
		utils.RespondWithError(w, http.StatusBadRequest, "Missing event ID")
		return
	}
	h.publishEvent(w, r, eventID)
}

// publishEvent accepts either a multipart form with an "event" JSON part and
// an optional "thumbnail" file, a JSON draft body, or nothing, in which case
// the stored draft session is published.
func (h *Handler) publishEvent(w http.ResponseWriter, r *http.Request, eventID string) {
	acct, ok := account.FromContext(r.Context())
	if !ok {
		utils.RespondWithError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	if !acct.CanPublish() {
		utils.RespondWithError(w, http.StatusForbidden, "Your role cannot change events")
		return
	}

	draft, att, err := h.readSubmission(w, r, acct, eventID)
	if err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	if r.MultipartForm != nil {
		defer r.MultipartForm.RemoveAll()
	}
	draft.EventID = eventID
	if eventID == "" {
		draft.Version = 0
	}

	nav := &redirectRecorder{}
	req := publish.Request{Account: acct, Draft: draft, Attachment: att, Navigator: nav}
	if h.drafts != nil {
		req.Session = storedSession{store: h.drafts, accountID: acct.AccountID(), eventID: eventID}
	}

	res, err := h.publisher.Publish(r.Context(), req)
	if err != nil {
		respondPublishError(w, err)
		return
	}

	status, msg := http.StatusOK, "Event updated successfully"
	if res.Created {
		status, msg = http.StatusCreated, "Event created successfully"
	}
	utils.RespondWithJSON(w, status, nav.into(utils.M{
		"message": msg,
		"event":   res.Event,
		"deleted": res.Tiers.Deleted,
		"trace":   res.Trace,
	}))
}

func (h *Handler) readSubmission(w http.ResponseWriter, r *http.Request, acct account.Context, eventID string) (models.EventDraft, *publish.Attachment, error) {
	var draft models.EventDraft
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	switch mediaType {
	case "multipart/form-data":
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
		if err := r.ParseMultipartForm(h.maxUpload); err != nil {
			return draft, nil, fmt.Errorf("unable to parse form: %w", err)
		}
		var att *publish.Attachment
		file, header, err := r.FormFile("thumbnail")
		switch {
		case err == nil:
			att = &publish.Attachment{Filename: header.Filename, ContentType: header.Header.Get("Content-Type"), Body: file}
		case !errors.Is(err, http.ErrMissingFile):
			return draft, nil, fmt.Errorf("error retrieving thumbnail: %w", err)
		}

		raw := r.FormValue("event")
		if raw == "" {
			d, err := h.storedDraft(r, acct, eventID)
			return d, att, err
		}
		dec := json.NewDecoder(strings.NewReader(raw))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&draft); err != nil {
			return draft, nil, fmt.Errorf("invalid JSON format: %w", err)
		}
		return draft, att, nil

	case "application/json":
		if err := utils.DecodeJSON(w, r, 1<<20, &draft); err != nil {
			return draft, nil, err
		}
		return draft, nil, nil
	}

	d, err := h.storedDraft(r, acct, eventID)
	return d, nil, err
}

func (h *Handler) storedDraft(r *http.Request, acct account.Context, eventID string) (models.EventDraft, error) {
	if h.drafts == nil {
		return models.EventDraft{}, errMissingEvent
	}
	sess, ok, err := h.drafts.Load(r.Context(), acct.AccountID(), eventID)
	if err != nil {
		return models.EventDraft{}, fmt.Errorf("load draft: %w", err)
	}
	if !ok {
		return models.EventDraft{}, errMissingEvent
	}
	return sess.Current, nil
}

func respondPublishError(w http.ResponseWriter, err error) {
	var perr *publish.Error
	if !errors.As(err, &perr) {
		utils.RespondWithError(w, http.StatusInternalServerError, publish.MsgGeneric)
		return
	}
	utils.RespondWithProblem(w, publishStatus(perr), string(perr.Kind), perr.UserMessage(), perr.Fields)
}

func publishStatus(perr *publish.Error) int {
	switch perr.Kind {
	case publish.KindInvalidDraft:
		return http.StatusUnprocessableEntity
	case publish.KindPublishInProgress, publish.KindTierDeletionBlocked:
		return http.StatusConflict
	case publish.KindEventUpsertFailed:
		switch {
		case errors.Is(perr.Err, repo.ErrEventConflict):
			return http.StatusConflict
		case errors.Is(perr.Err, repo.ErrEventNotFound), errors.Is(perr.Err, repo.ErrInvalidID):
			return http.StatusNotFound
		}
	case publish.KindAssetUploadFailed:
		if errors.Is(perr.Err, filemgr.ErrInvalidExtension) || errors.Is(perr.Err, filemgr.ErrInvalidMIME) || errors.Is(perr.Err, filemgr.ErrFileTooLarge) {
			return http.StatusBadRequest
		}
	case publish.KindTierUpsertFailed:
		var terr *tiers.Error
		if errors.As(perr.Err, &terr) && terr.Stage == tiers.StageParse {
			return http.StatusBadRequest
		}
		if errors.Is(perr.Err, repo.ErrTierNotInEvent) {
			return http.StatusBadRequest
		}
	}
	return http.StatusInternalServerError
}
