// Package tickets serves the buyer side of ticket tiers.
package tickets

import (
	"context"
	"errors"
	"net/http"
	"time"

	"eventdesk/account"
	"eventdesk/clock"
	"eventdesk/models"
	"eventdesk/mq"
	"eventdesk/repo"
	"eventdesk/utils"

	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog"
)

var (
	ErrInvalidQuantity = errors.New("invalid quantity")
	ErrOverOrderLimit  = errors.New("quantity exceeds the per-order limit")
	ErrSaleNotOpen     = errors.New("ticket sales have not started")
	ErrSaleClosed      = errors.New("ticket sales have ended")
)

type Handler struct {
	store   repo.Store
	clock   clock.Clock
	emitter mq.Emitter
	log     *zerolog.Logger
}

func NewHandler(store repo.Store, clk clock.Clock, emitter mq.Emitter, log *zerolog.Logger) *Handler {
	return &Handler{store: store, clock: clk, emitter: emitter, log: log}
}

// TierView is the public face of a tier.
type TierView struct {
	TicketID    string    `json:"ticketid"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Price       float64   `json:"price"`
	Available   int       `json:"available"`
	MaxPerOrder int       `json:"max_per_order"`
	SaleStart   time.Time `json:"sale_start"`
	SaleEnd     time.Time `json:"sale_end"`
	OnSale      bool      `json:"on_sale"`
}

// CheckPurchase validates a purchase of qty seats of t at now.
func CheckPurchase(t models.TicketTier, qty int, now time.Time) error {
	switch {
	case qty < 1:
		return ErrInvalidQuantity
	case t.MaxPerOrder > 0 && qty > t.MaxPerOrder:
		return ErrOverOrderLimit
	case !t.SaleStart.IsZero() && now.Before(t.SaleStart):
		return ErrSaleNotOpen
	case !t.SaleEnd.IsZero() && !now.Before(t.SaleEnd):
		return ErrSaleClosed
	case qty > t.Available():
		return repo.ErrSoldOut
	}
	return nil
}

// GET /api/ticket/event/:eventid
func (h *Handler) GetTickets(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	ev, err := h.store.GetEvent(r.Context(), ps.ByName("eventid"))
	switch {
	case errors.Is(err, repo.ErrEventNotFound), errors.Is(err, repo.ErrInvalidID):
		utils.RespondWithError(w, http.StatusNotFound, "Event not found")
		return
	case err != nil:
		h.log.Error().Err(err).Msg("get event tickets")
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to fetch tickets")
		return
	}

	now := h.clock.Now()
	views := make([]TierView, 0, len(ev.Tickets))
	for _, t := range ev.Tickets {
		views = append(views, TierView{
			TicketID:    t.TicketID,
			Name:        t.Name,
			Description: t.Description,
			Price:       t.Price,
			Available:   t.Available(),
			MaxPerOrder: t.MaxPerOrder,
			SaleStart:   t.SaleStart,
			SaleEnd:     t.SaleEnd,
			OnSale:      CheckPurchase(t, 1, now) == nil,
		})
	}
	utils.RespondWithJSON(w, http.StatusOK, utils.M{"eventid": ev.EventID, "paid": ev.Paid, "tickets": views})
}

// POST /api/ticket/event/:eventid/:ticketid/buy
func (h *Handler) BuyTicket(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	acct, ok := account.FromContext(r.Context())
	if !ok {
		utils.RespondWithError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	eventID, ticketID := ps.ByName("eventid"), ps.ByName("ticketid")

	var body struct {
		Quantity int `json:"quantity"`
	}
	if err := utils.DecodeJSON(w, r, 1<<10, &body); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	var tier models.TicketTier
	err := h.store.RunInTx(r.Context(), func(ctx context.Context) error {
		tiers, err := h.store.ListTiers(ctx, eventID)
		if err != nil {
			return err
		}
		found := false
		for _, t := range tiers {
			if t.TicketID == ticketID {
				tier, found = t, true
				break
			}
		}
		if !found {
			return repo.ErrTierNotFound
		}
		if err := CheckPurchase(tier, body.Quantity, h.clock.Now()); err != nil {
			return err
		}
		tier, err = h.store.RecordSale(ctx, eventID, ticketID, acct.UserID(), body.Quantity)
		return err
	})

	switch {
	case errors.Is(err, ErrInvalidQuantity), errors.Is(err, ErrOverOrderLimit):
		utils.RespondWithProblem(w, http.StatusBadRequest, "InvalidQuantity", err.Error(), nil)
		return
	case errors.Is(err, ErrSaleNotOpen), errors.Is(err, ErrSaleClosed):
		utils.RespondWithProblem(w, http.StatusConflict, "SaleWindow", err.Error(), nil)
		return
	case errors.Is(err, repo.ErrSoldOut):
		utils.RespondWithProblem(w, http.StatusConflict, "SoldOut", "Not enough tickets available", nil)
		return
	case errors.Is(err, repo.ErrTierNotFound), errors.Is(err, repo.ErrEventNotFound), errors.Is(err, repo.ErrInvalidID):
		utils.RespondWithError(w, http.StatusNotFound, "Ticket not found")
		return
	case err != nil:
		h.log.Error().Err(err).Str("eventid", eventID).Str("ticketid", ticketID).Msg("buy ticket")
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to buy ticket")
		return
	}

	if h.emitter != nil {
		if err := h.emitter.Emit(r.Context(), "ticket-purchased", mq.Index{EntityType: "ticket", Method: "POST", EntityId: ticketID, ItemId: eventID, ItemType: "event"}); err != nil {
			h.log.Warn().Err(err).Str("ticketid", ticketID).Msg("emit ticket-purchased")
		}
	}
	utils.RespondWithJSON(w, http.StatusOK, utils.M{
		"success":   true,
		"ticketid":  tier.TicketID,
		"quantity":  body.Quantity,
		"available": tier.Available(),
	})
}
