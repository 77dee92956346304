package events

import (
	"context"
	"errors"
	"net/http"

	"eventdesk/account"
	"eventdesk/drafts"
	"eventdesk/models"
	"eventdesk/repo"
	"eventdesk/utils"

	"github.com/julienschmidt/httprouter"
)

// newEventParam stands in for the event id while creating.
const newEventParam = "new"

type draftPatch struct {
	Set     map[string]any            `json:"set"`
	Tickets *[]models.TicketTierDraft `json:"tickets"`
}

// draftView is what the form renders. UnloadGuard tells the client to
// warn before the page is left.
type draftView struct {
	Draft       models.EventDraft `json:"draft"`
	Dirty       bool              `json:"dirty"`
	UnloadGuard bool              `json:"unload_guard"`
	Errors      map[string]string `json:"errors,omitempty"`
}

// GET /api/organizer/events/:eventid/draft
func (h *Handler) OpenDraft(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	ws, ok := h.workspace(w, r, ps)
	if !ok {
		return
	}
	if err := ws.Save(r.Context()); err != nil {
		h.log.Error().Err(err).Msg("save draft session")
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to store draft")
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, h.view(ws))
}

// PATCH /api/organizer/events/:eventid/draft
func (h *Handler) PatchDraft(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var patch draftPatch
	if err := utils.DecodeJSON(w, r, 1<<20, &patch); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	ws, ok := h.workspace(w, r, ps)
	if !ok {
		return
	}

	for field, value := range patch.Set {
		if err := ws.Manager.Set(field, value); err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, drafts.ErrUnknownField) || errors.Is(err, drafts.ErrFieldType) {
				status = http.StatusBadRequest
			}
			utils.RespondWithError(w, status, err.Error())
			return
		}
	}
	if patch.Tickets != nil {
		ws.Manager.SetTickets(*patch.Tickets)
	}

	if err := ws.Save(r.Context()); err != nil {
		h.log.Error().Err(err).Msg("save draft session")
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to store draft")
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, h.view(ws))
}

// DELETE /api/organizer/events/:eventid/draft
func (h *Handler) DiscardDraft(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	acct, ok := account.FromContext(r.Context())
	if !ok {
		utils.RespondWithError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	if err := h.drafts.Delete(r.Context(), acct.AccountID(), draftEventID(ps)); err != nil {
		h.log.Error().Err(err).Msg("discard draft session")
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to discard draft")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) view(ws *drafts.Workspace) draftView {
	d := ws.Manager.Draft()
	v := draftView{Draft: d, Dirty: ws.Manager.Dirty(), UnloadGuard: ws.Guard.Armed()}
	if fields := h.validator.Draft(d); fields != nil {
		v.Errors = fields
	}
	return v
}

// workspace resumes the caller's draft session, hydrating it from the stored
// event the first time. It writes the error response itself.
func (h *Handler) workspace(w http.ResponseWriter, r *http.Request, ps httprouter.Params) (*drafts.Workspace, bool) {
	acct, ok := account.FromContext(r.Context())
	if !ok {
		utils.RespondWithError(w, http.StatusUnauthorized, "Unauthorized")
		return nil, false
	}
	eventID := draftEventID(ps)

	ws, err := drafts.Open(r.Context(), h.drafts, acct.AccountID(), eventID, func(ctx context.Context) (models.EventDraft, error) {
		if eventID == "" {
			return drafts.Empty(), nil
		}
		ev, err := h.store.GetEvent(ctx, eventID)
		if err != nil {
			return models.EventDraft{}, err
		}
		if ev.AccountID != acct.AccountID() {
			return models.EventDraft{}, repo.ErrEventNotFound
		}
		return drafts.FromEvent(ev, h.loc), nil
	})
	switch {
	case errors.Is(err, repo.ErrEventNotFound), errors.Is(err, repo.ErrInvalidID):
		utils.RespondWithError(w, http.StatusNotFound, "Event not found")
		return nil, false
	case err != nil:
		h.log.Error().Err(err).Str("eventid", eventID).Msg("open draft")
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to open draft")
		return nil, false
	}
	return ws, true
}

func draftEventID(ps httprouter.Params) string {
	id := ps.ByName("eventid")
	if id == newEventParam {
		return ""
	}
	return id
}

// storedSession forgets the stored draft once a publish succeeded.
type storedSession struct {
	store     drafts.Store
	accountID string
	eventID   string
}

func (s storedSession) Discard(ctx context.Context) error {
	return s.store.Delete(ctx, s.accountID, s.eventID)
}

// redirectRecorder turns the publisher's navigation into a response field.
type redirectRecorder struct {
	route string
	back  bool
}

func (n *redirectRecorder) Navigate(route string) { n.route = route }
func (n *redirectRecorder) Back()                 { n.back = true }

// into adds the recorded decision to a response body.
func (n *redirectRecorder) into(body utils.M) utils.M {
	body["redirect"] = n.route
	if n.back {
		body["back"] = true
	}
	return body
}
