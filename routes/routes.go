package routes

import (
	"fmt"
	"net/http"

	"eventdesk/events"
	"eventdesk/filemgr"
	"eventdesk/middleware"
	"eventdesk/notify"
	"eventdesk/ratelim"
	"eventdesk/tickets"

	"github.com/julienschmidt/httprouter"
)

// Handlers is everything the router mounts.
type Handlers struct {
	Auth    *middleware.Auth
	Limiter *ratelim.RateLimiter
	Events  *events.Handler
	Tickets *tickets.Handler
	Assets  *filemgr.DiskStore
	Hub     *notify.Hub
}

// Index is a simple health check handler.
func Index(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	fmt.Fprint(w, "200")
}

func New(h Handlers) *httprouter.Router {
	router := httprouter.New()
	router.GET("/health", Index)

	AddStaticRoutes(router, h)
	AddEventsRoutes(router, h)
	AddTicketRoutes(router, h)
	AddAccountRoutes(router, h)
	AddNotifyRoutes(router, h)
	return router
}

func AddStaticRoutes(router *httprouter.Router, h Handlers) {
	router.GET("/uploads/*filepath", h.Assets.ServeAssets())
}

func AddEventsRoutes(router *httprouter.Router, h Handlers) {
	auth, limit := h.Auth.Authenticate, h.Limiter.Limit

	router.GET("/api/organizer/events", auth(h.Events.GetEvents))
	router.POST("/api/organizer/events", auth(limit(h.Events.CreateEvent)))
	router.GET("/api/organizer/events/:eventid", auth(h.Events.GetEvent))
	router.PUT("/api/organizer/events/:eventid", auth(limit(h.Events.EditEvent)))
	router.DELETE("/api/organizer/events/:eventid", auth(limit(h.Events.DeleteEvent)))

	router.GET("/api/organizer/events/:eventid/draft", auth(h.Events.OpenDraft))
	router.PATCH("/api/organizer/events/:eventid/draft", auth(h.Events.PatchDraft))
	router.DELETE("/api/organizer/events/:eventid/draft", auth(h.Events.DiscardDraft))

	router.GET("/api/schema/event", h.Events.GetSchema)
}

func AddTicketRoutes(router *httprouter.Router, h Handlers) {
	router.GET("/api/ticket/event/:eventid", h.Tickets.GetTickets)
	router.POST("/api/ticket/event/:eventid/:ticketid/buy", h.Auth.Authenticate(h.Limiter.Limit(h.Tickets.BuyTicket)))
}

func AddAccountRoutes(router *httprouter.Router, h Handlers) {
	router.POST("/api/account/switch", h.Auth.Authenticate(h.Events.SwitchAccount))
}

func AddNotifyRoutes(router *httprouter.Router, h Handlers) {
	router.GET("/api/notify/ws", h.Auth.Authenticate(notify.WebSocketHandler(h.Hub)))
}
