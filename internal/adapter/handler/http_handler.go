package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rl1809/farm-market/internal/core/domain"
	"github.com/rl1809/farm-market/internal/core/service"
	"github.com/rl1809/farm-market/internal/port"
)

const accountKey = "account"

// Services bundles what the transports call into.
type Services struct {
	Auth          *service.AuthService
	Market        *service.MarketplaceService
	Listings      *service.ListingService
	Notifications *service.NotificationService
	Portal        *service.PortalService
	Harvests      *service.RecordService[domain.Harvest]
	Reminders     *service.RecordService[domain.Reminder]
	Agenda        *service.RecordService[domain.AgendaItem]
	Feed          port.ChangeFeed
	Broker        BrokerStatus // nil when notifications are not forwarded
}

// BrokerStatus reports the circuit breaker state of the notification broker.
type BrokerStatus interface {
	State() string
}

type HTTPHandler struct {
	svc    Services
	logger *zap.Logger
}

type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

type ReserveHTTPRequest struct {
	RequestID   string          `json:"request_id"`
	Quantity    decimal.Decimal `json:"quantity"`
	Destination string          `json:"destination"`
}

type LoginHTTPRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type InvoiceHTTPRequest struct {
	ListingID string          `json:"listing_id" binding:"required"`
	Quantity  decimal.Decimal `json:"quantity"`
}

type EarningsHTTPRequest struct {
	ShipmentID string          `json:"shipment_id" binding:"required"`
	DistanceKm decimal.Decimal `json:"distance_km"`
}

func NewHTTPHandler(svc Services, logger *zap.Logger) *HTTPHandler {
	return &HTTPHandler{svc: svc, logger: logger}
}

func (h *HTTPHandler) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", h.HealthCheck)

	api := r.Group("/api")
	api.POST("/auth/register", h.Register)
	api.POST("/auth/login", h.Login)
	api.GET("/market", h.Market)

	authed := api.Group("", h.authenticate)
	authed.POST("/auth/logout", h.Logout)
	authed.GET("/auth/session", h.Session)
	authed.GET("/portal", h.Portal)
	authed.GET("/feed", h.Feed)

	authed.GET("/listings/mine", h.MyListings)
	authed.POST("/listings", h.CreateListing)
	authed.PATCH("/listings/:id", h.UpdateListing)
	authed.DELETE("/listings/:id", h.DeleteListing)
	authed.POST("/listings/:id/reserve", h.Reserve)

	authed.POST("/quotes/invoice", h.QuoteInvoice)
	authed.POST("/quotes/earnings", h.QuoteEarnings)

	authed.GET("/shipments", h.Shipments)
	authed.POST("/shipments/:id/accept", h.processShipment(domain.ShipmentActionAccept))
	authed.POST("/shipments/:id/reject", h.processShipment(domain.ShipmentActionReject))
	authed.POST("/shipments/:id/cancel", h.CancelOrder)
	authed.POST("/shipments/:id/deliver", h.CompleteDelivery)

	authed.GET("/notifications", h.Notifications)
	authed.POST("/notifications/read", h.MarkNotificationsRead)

	registerRecords(authed.Group("/harvests"), h, h.svc.Harvests)
	reminders := authed.Group("/reminders")
	registerRecords(reminders, h, h.svc.Reminders)
	reminders.POST("/:id/toggle", h.ToggleReminder)
	registerRecords(authed.Group("/agenda"), h, h.svc.Agenda)

	return r
}

func (h *HTTPHandler) HealthCheck(c *gin.Context) {
	body := gin.H{"status": "ok"}
	if h.svc.Broker != nil {
		body["broker"] = h.svc.Broker.State()
	}
	c.JSON(http.StatusOK, body)
}

func (h *HTTPHandler) authenticate(c *gin.Context) {
	token, ok := bearerToken(c.GetHeader("Authorization"))
	if !ok {
		h.fail(c, service.ErrNoSession)
		c.Abort()
		return
	}
	account, err := h.svc.Auth.CurrentSession(c.Request.Context(), token)
	if err != nil {
		h.fail(c, err)
		c.Abort()
		return
	}
	c.Set(accountKey, account)
	c.Next()
}

func bearerToken(header string) (string, bool) {
	const prefix = "bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	return strings.TrimSpace(header[len(prefix):]), true
}

func currentAccount(c *gin.Context) domain.Account {
	return c.MustGet(accountKey).(domain.Account)
}

func (h *HTTPHandler) Register(c *gin.Context) {
	var req domain.Registration
	if !h.bind(c, &req) {
		return
	}
	id, err := h.svc.Auth.CreateAccount(c.Request.Context(), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, Response{Success: true, Data: gin.H{"id": id}})
}

func (h *HTTPHandler) Login(c *gin.Context) {
	var req LoginHTTPRequest
	if !h.bind(c, &req) {
		return
	}
	session, err := h.svc.Auth.SignIn(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, session)
}

func (h *HTTPHandler) Logout(c *gin.Context) {
	token, _ := bearerToken(c.GetHeader("Authorization"))
	if err := h.svc.Auth.SignOut(c.Request.Context(), token); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Message: "signed out"})
}

func (h *HTTPHandler) Session(c *gin.Context) {
	ok(c, currentAccount(c))
}

func (h *HTTPHandler) Portal(c *gin.Context) {
	overview, err := h.svc.Portal.Overview(c.Request.Context(), currentAccount(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, overview)
}

// Feed streams the market and the caller's own changes as server-sent
// events until the client goes away.
func (h *HTTPHandler) Feed(c *gin.Context) {
	ctx := c.Request.Context()
	account := currentAccount(c)
	changes, err := h.svc.Feed.Subscribe(ctx, service.TopicMarket, service.UserTopic(account.ID))
	if err != nil {
		h.fail(c, err)
		return
	}

	c.Stream(func(w io.Writer) bool {
		select {
		case change, open := <-changes:
			if !open {
				return false
			}
			c.SSEvent(change.Collection, change)
			return true
		case <-ctx.Done():
			return false
		}
	})
}

func (h *HTTPHandler) Market(c *gin.Context) {
	listings, err := h.svc.Market.Market(c.Request.Context(), domain.ListingStatus(c.Query("status")))
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, listings)
}

func (h *HTTPHandler) MyListings(c *gin.Context) {
	listings, err := h.svc.Listings.ListByOwner(c.Request.Context(), currentAccount(c).ID)
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, listings)
}

func (h *HTTPHandler) CreateListing(c *gin.Context) {
	var req domain.Listing
	if !h.bind(c, &req) {
		return
	}
	listing, err := h.svc.Listings.Create(c.Request.Context(), currentAccount(c), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, Response{Success: true, Data: listing})
}

func (h *HTTPHandler) UpdateListing(c *gin.Context) {
	var patch domain.ListingPatch
	if !h.bind(c, &patch) {
		return
	}
	listing, err := h.svc.Listings.Update(c.Request.Context(), currentAccount(c), c.Param("id"), patch)
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, listing)
}

func (h *HTTPHandler) DeleteListing(c *gin.Context) {
	if err := h.svc.Listings.Delete(c.Request.Context(), currentAccount(c), c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *HTTPHandler) Reserve(c *gin.Context) {
	var req ReserveHTTPRequest
	if !h.bind(c, &req) {
		return
	}
	if req.RequestID == "" {
		req.RequestID = c.GetHeader("Idempotency-Key")
	}

	shipment, err := h.svc.Market.Reserve(c.Request.Context(), service.ReserveRequest{
		RequestID:   req.RequestID,
		ListingID:   c.Param("id"),
		Quantity:    req.Quantity,
		Destination: req.Destination,
	}, currentAccount(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, Response{Success: true, Message: "order placed successfully", Data: shipment})
}

func (h *HTTPHandler) QuoteInvoice(c *gin.Context) {
	var req InvoiceHTTPRequest
	if !h.bind(c, &req) {
		return
	}
	invoice, err := h.svc.Market.QuoteInvoice(c.Request.Context(), req.ListingID, req.Quantity)
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, invoice)
}

func (h *HTTPHandler) QuoteEarnings(c *gin.Context) {
	var req EarningsHTTPRequest
	if !h.bind(c, &req) {
		return
	}
	earnings, err := h.svc.Market.QuoteEarnings(c.Request.Context(), req.ShipmentID, req.DistanceKm, currentAccount(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, earnings)
}

func (h *HTTPHandler) Shipments(c *gin.Context) {
	list, err := h.svc.Market.ShipmentsFor(c.Request.Context(), currentAccount(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, list)
}

func (h *HTTPHandler) processShipment(action domain.ShipmentAction) gin.HandlerFunc {
	return func(c *gin.Context) {
		shipment, err := h.svc.Market.ProcessShipment(c.Request.Context(), c.Param("id"), action, currentAccount(c))
		if err != nil {
			h.fail(c, err)
			return
		}
		ok(c, shipment)
	}
}

func (h *HTTPHandler) CancelOrder(c *gin.Context) {
	shipment, err := h.svc.Market.CancelOrder(c.Request.Context(), c.Param("id"), currentAccount(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, shipment)
}

func (h *HTTPHandler) CompleteDelivery(c *gin.Context) {
	shipment, err := h.svc.Market.CompleteDelivery(c.Request.Context(), c.Param("id"), currentAccount(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, shipment)
}

func (h *HTTPHandler) Notifications(c *gin.Context) {
	list, err := h.svc.Notifications.Inbox(c.Request.Context(), currentAccount(c).ID)
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, list)
}

func (h *HTTPHandler) MarkNotificationsRead(c *gin.Context) {
	n, err := h.svc.Notifications.MarkAllRead(c.Request.Context(), currentAccount(c).ID)
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, gin.H{"marked": n})
}

func (h *HTTPHandler) ToggleReminder(c *gin.Context) {
	reminder, err := service.ToggleReminder(c.Request.Context(), h.svc.Reminders, currentAccount(c), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, reminder)
}

// registerRecords mounts list, create, patch and delete for one record kind.
// A patch is a partial JSON document merged over the stored record.
func registerRecords[T domain.Record[T]](g *gin.RouterGroup, h *HTTPHandler, svc *service.RecordService[T]) {
	g.GET("", func(c *gin.Context) {
		list, err := svc.List(c.Request.Context(), currentAccount(c).ID)
		if err != nil {
			h.fail(c, err)
			return
		}
		ok(c, list)
	})

	g.POST("", func(c *gin.Context) {
		var record T
		if !h.bind(c, &record) {
			return
		}
		created, err := svc.Create(c.Request.Context(), currentAccount(c), record)
		if err != nil {
			h.fail(c, err)
			return
		}
		c.JSON(http.StatusCreated, Response{Success: true, Data: created})
	})

	g.PATCH("/:id", func(c *gin.Context) {
		body, err := io.ReadAll(c.Request.Body)
		if err != nil || !json.Valid(body) {
			c.JSON(http.StatusBadRequest, Response{Message: "invalid request body"})
			return
		}
		updated, err := svc.Update(c.Request.Context(), currentAccount(c), c.Param("id"), func(r *T) error {
			if err := json.Unmarshal(body, r); err != nil {
				return errBadPatch
			}
			return nil
		})
		if err != nil {
			h.fail(c, err)
			return
		}
		ok(c, updated)
	})

	g.DELETE("/:id", func(c *gin.Context) {
		if err := svc.Delete(c.Request.Context(), currentAccount(c), c.Param("id")); err != nil {
			h.fail(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	})
}

func (h *HTTPHandler) bind(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		msg := "invalid request body"
		var fields validator.ValidationErrors
		if errors.As(err, &fields) && len(fields) > 0 {
			msg = fmt.Sprintf("%s is %s", fields[0].Field(), fields[0].Tag())
		}
		c.JSON(http.StatusBadRequest, Response{Message: msg})
		return false
	}
	return true
}

func (h *HTTPHandler) fail(c *gin.Context, err error) {
	status := httpStatus(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err))
	}
	c.JSON(status, Response{Message: publicMessage(err)})
}

func ok(c *gin.Context, data any) {
	c.JSON(http.StatusOK, Response{Success: true, Data: data})
}
