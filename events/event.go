package events

import (
	"context"
	"errors"
	"net/http"
	"time"

	"eventdesk/account"
	"eventdesk/models"
	"eventdesk/mq"
	"eventdesk/repo"
	"eventdesk/utils"
	"eventdesk/validate"

	"github.com/julienschmidt/httprouter"
)

// GET /api/organizer/events
func (h *Handler) GetEvents(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	acct, ok := account.FromContext(r.Context())
	if !ok {
		utils.RespondWithError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	skip, limit := utils.ParsePagination(r, 10, 100)
	events, total, err := h.store.ListEvents(ctx, acct.AccountID(), skip, limit)
	if err != nil {
		h.log.Error().Err(err).Str("accountid", acct.AccountID()).Msg("list events")
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to fetch events")
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, utils.M{
		"events":     events,
		"eventCount": total,
		"page":       skip/limit + 1,
		"limit":      limit,
	})
}

// GET /api/organizer/events/:eventid
func (h *Handler) GetEvent(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	ev, ok := h.ownedEvent(w, r, ps.ByName("eventid"))
	if !ok {
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, ev)
}

// DELETE /api/organizer/events/:eventid
func (h *Handler) DeleteEvent(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	acct, _ := account.FromContext(r.Context())
	if !acct.CanPublish() {
		utils.RespondWithError(w, http.StatusForbidden, "Your role cannot change events")
		return
	}
	ev, ok := h.ownedEvent(w, r, ps.ByName("eventid"))
	if !ok {
		return
	}

	err := h.store.DeleteEvent(r.Context(), ev.EventID)
	switch {
	case errors.Is(err, repo.ErrTierHasSales):
		utils.RespondWithProblem(w, http.StatusConflict, "TierHasSales", "Cannot delete an event whose tickets have been sold", nil)
		return
	case errors.Is(err, repo.ErrEventNotFound):
		utils.RespondWithError(w, http.StatusNotFound, "Event not found")
		return
	case err != nil:
		h.log.Error().Err(err).Str("eventid", ev.EventID).Msg("delete event")
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to delete event")
		return
	}

	if h.emitter != nil {
		if err := h.emitter.Emit(r.Context(), "event-deleted", mq.Index{EntityType: "event", Method: "DELETE", EntityId: ev.EventID}); err != nil {
			h.log.Warn().Err(err).Str("eventid", ev.EventID).Msg("emit event-deleted")
		}
	}
	if h.drafts != nil {
		_ = h.drafts.Delete(r.Context(), acct.AccountID(), ev.EventID)
	}
	w.WriteHeader(http.StatusNoContent)
}

// GET /api/schema/event
func (h *Handler) GetSchema(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	utils.RespondWithJSON(w, http.StatusOK, validate.Rules())
}

// POST /api/account/switch
func (h *Handler) SwitchAccount(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	acct, ok := account.FromContext(r.Context())
	if !ok {
		utils.RespondWithError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	var body struct {
		AccountID string `json:"accountid"`
	}
	if err := utils.DecodeJSON(w, r, 1<<10, &body); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	next, err := acct.SwitchAccount(body.AccountID)
	if err != nil {
		utils.RespondWithError(w, http.StatusForbidden, "Not a member of this account")
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, utils.M{
		"accountid":   next.AccountID(),
		"role":        next.Role(),
		"canPublish":  next.CanPublish(),
		"memberships": next.Memberships(),
	})
}

// ownedEvent loads the event and hides it unless it belongs to the active
// account. It writes the error response itself.
func (h *Handler) ownedEvent(w http.ResponseWriter, r *http.Request, eventID string) (models.Event, bool) {
	acct, ok := account.FromContext(r.Context())
	if !ok {
		utils.RespondWithError(w, http.StatusUnauthorized, "Unauthorized")
		return models.Event{}, false
	}
	ev, err := h.store.GetEvent(r.Context(), eventID)
	if err == nil && ev.AccountID != acct.AccountID() {
		err = repo.ErrEventNotFound
	}
	switch {
	case errors.Is(err, repo.ErrEventNotFound), errors.Is(err, repo.ErrInvalidID):
		utils.RespondWithError(w, http.StatusNotFound, "Event not found")
		return models.Event{}, false
	case err != nil:
		h.log.Error().Err(err).Str("eventid", eventID).Msg("get event")
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to fetch event")
		return models.Event{}, false
	}
	return ev, true
}
