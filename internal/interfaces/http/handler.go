package http

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	appdeals "dealdesk/internal/application/service/deals"
	appnegotiation "dealdesk/internal/application/service/negotiation"
	"dealdesk/internal/domain/entity/chat"
	domaindeals "dealdesk/internal/domain/entity/deals"
	"dealdesk/internal/domain/interfaces"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

const apiBasePath = "/api/v1"

var (
	errInvalidDealID = errors.New("invalid deal id")
	errInvalidTarget = errors.New("target must be seller or buyer")
)

type Handler struct {
	router       *gin.Engine
	deals        *appdeals.Service
	engine       *appnegotiation.Engine
	negotiations interfaces.NegotiationRepository
	outbox       interfaces.OutboxRepository
	ledger       interfaces.LedgerRepository
	settings     interfaces.SettingsStore
	cache        *redis.Client
	cacheTTL     time.Duration
}

func NewHandler(
	dealsService *appdeals.Service,
	engine *appnegotiation.Engine,
	negotiations interfaces.NegotiationRepository,
	outbox interfaces.OutboxRepository,
	ledger interfaces.LedgerRepository,
	settings interfaces.SettingsStore,
	cache *redis.Client,
	cacheTTL time.Duration,
) *Handler {
	router := gin.New()
	router.Use(gin.Recovery())

	h := &Handler{
		router:       router,
		deals:        dealsService,
		engine:       engine,
		negotiations: negotiations,
		outbox:       outbox,
		ledger:       ledger,
		settings:     settings,
		cache:        cache,
		cacheTTL:     cacheTTL,
	}
	h.registerRoutes()
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

func (h *Handler) registerRoutes() {
	h.router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	h.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := h.router.Group(apiBasePath)

	dealsGroup := api.Group("/deals")
	{
		reads := dealsGroup.Group("")
		if h.cache != nil {
			reads.Use(h.cacheMiddleware())
		}
		reads.GET("", h.listDeals)
		reads.GET("/:id", h.getDeal)
		reads.GET("/:id/messages", h.listMessages)

		dealsGroup.POST("/:id/take", h.takeDeal)
		dealsGroup.POST(":id/skip", h.skipDeal)
		dealsGroup.POST("/:id/close", h.closeDeal)
		dealsGroup.DELETE("/:id", h.deleteDeal)
		dealsGroup.POST("/:id/message", h.sendMessage)
		dealsGroup.POST("/:id/draft", h.draftMessage)
	}

	api.POST("/leads", h.createLead)
	api.GET("/ledger", h.listLedger)
	api.POST("/outbox/:id/requeue", h.requeueOutbox)
	api.PUT("/settings/:key", h.putSetting)
}

// Deals

func (h *Handler) listDeals(c *gin.Context) {
	var filter interfaces.DealFilter

	if raw := c.Query("status"); raw != "" {
		status := domaindeals.DealStatus(raw)
		if !status.IsValid() {
			writeError(c, http.StatusBadRequest, fmt.Errorf("invalid status %q", raw))
			return
		}
		filter.Status = &status
	}
	if raw := c.Query("manager_id"); raw != "" {
		managerID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(c, http.StatusBadRequest, errors.New("invalid manager_id"))
			return
		}
		filter.ManagerID = &managerID
	}
	filter.Limit, _ = strconv.Atoi(c.DefaultQuery("limit", "50"))
	filter.Offset, _ = strconv.Atoi(c.DefaultQuery("offset", "0"))

	list, err := h.deals.List(c.Request.Context(), filter)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *Handler) getDeal(c *gin.Context) {
	dealID, err := parseDealID(c)
	if err != nil {
		writeError(c, http.StatusBadRequest, err)
		return
	}
	deal, err := h.deals.Get(c.Request.Context(), dealID)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, deal)
}

type takePayload struct {
	ManagerID int64 `json:"manager_id" binding:"required"`
}

func (h *Handler) takeDeal(c *gin.Context) {
	dealID, err := parseDealID(c)
	if err != nil {
		writeError(c, http.StatusBadRequest, err)
		return
	}
	var payload takePayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		writeError(c, http.StatusBadRequest, err)
		return
	}
	if err := h.deals.Take(c.Request.Context(), dealID, payload.ManagerID); err != nil {
		writeDomainError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type skipPayload struct {
	ManagerID int64  `json:"manager_id" binding:"required"`
	Reason    string `json:"reason" binding:"required"`
}

func (h *Handler) skipDeal(c *gin.Context) {
	dealID, err := parseDealID(c)
	if err != nil {
		writeError(c, http.StatusBadRequest, err)
		return
	}
	var payload skipPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		writeError(c, http.StatusBadRequest, err)
		return
	}
	if err := h.deals.Skip(c.Request.Context(), dealID, payload.ManagerID, payload.Reason); err != nil {
		writeDomainError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type closePayload struct {
	UserID     int64  `json:"user_id" binding:"required"`
	Won        bool   `json:"won"`
	Resolution string `json:"resolution"`
}

func (h *Handler) closeDeal(c *gin.Context) {
	dealID, err := parseDealID(c)
	if err != nil {
		writeError(c, http.StatusBadRequest, err)
		return
	}
	var payload closePayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		writeError(c, http.StatusBadRequest, err)
		return
	}
	if err := h.deals.Close(c.Request.Context(), dealID, payload.UserID, payload.Won, payload.Resolution); err != nil {
		writeDomainError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) deleteDeal(c *gin.Context) {
	dealID, err := parseDealID(c)
	if err != nil {
		writeError(c, http.StatusBadRequest, err)
		return
	}
	userID, err := strconv.ParseInt(c.Query("user_id"), 10, 64)
	if err != nil {
		writeError(c, http.StatusBadRequest, errors.New("user_id query param required"))
		return
	}
	if err := h.deals.Delete(c.Request.Context(), dealID, userID); err != nil {
		writeDomainError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Negotiation

func (h *Handler) listMessages(c *gin.Context) {
	dealID, err := parseDealID(c)
	if err != nil {
		writeError(c, http.StatusBadRequest, err)
		return
	}
	negotiation, err := h.negotiations.GetNegotiationByDeal(c.Request.Context(), dealID)
	if err != nil {
		writeDomainError(c, err)
		return
	}

	var target *chat.MessageTarget
	if raw := c.Query("target"); raw != "" {
		t := chat.MessageTarget(raw)
		if !t.IsValid() {
			writeError(c, http.StatusBadRequest, errInvalidTarget)
			return
		}
		target = &t
	}

	messages, err := h.negotiations.ListMessages(c.Request.Context(), negotiation.ID, target)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"negotiation": negotiation,
		"messages":    messages,
	})
}

type messagePayload struct {
	UserID  int64  `json:"user_id" binding:"required"`
	Target  string `json:"target" binding:"required"`
	Content string `json:"content" binding:"required"`
}

func (h *Handler) sendMessage(c *gin.Context) {
	dealID, err := parseDealID(c)
	if err != nil {
		writeError(c, http.StatusBadRequest, err)
		return
	}
	var payload messagePayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		writeError(c, http.StatusBadRequest, err)
		return
	}
	target := chat.MessageTarget(payload.Target)
	if !target.IsValid() {
		writeError(c, http.StatusBadRequest, errInvalidTarget)
		return
	}
	if err := h.engine.ManagerSend(c.Request.Context(), dealID, payload.UserID, target, payload.Content); err != nil {
		writeDomainError(c, err)
		return
	}
	c.Status(http.StatusAccepted)
}

type draftPayload struct {
	Target string `json:"target" binding:"required"`
}

func (h *Handler) draftMessage(c *gin.Context) {
	dealID, err := parseDealID(c)
	if err != nil {
		writeError(c, http.StatusBadRequest, err)
		return
	}
	var payload draftPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		writeError(c, http.StatusBadRequest, err)
		return
	}
	target := chat.MessageTarget(payload.Target)
	if !target.IsValid() {
		writeError(c, http.StatusBadRequest, errInvalidTarget)
		return
	}
	text, err := h.engine.DraftInitial(c.Request.Context(), dealID, target)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"draft": text})
}

// Leads

type leadPayload struct {
	ManagerID      int64   `json:"manager_id" binding:"required"`
	Product        string  `json:"product" binding:"required"`
	Region         string  `json:"region"`
	BuyPrice       string  `json:"buy_price" binding:"required"`
	SellPrice      string  `json:"sell_price" binding:"required"`
	SellerChatID   int64   `json:"seller_chat_id" binding:"required"`
	SellerSenderID int64   `json:"seller_sender_id" binding:"required"`
	SellerListing  string  `json:"seller_listing"`
	BuyerChatID    *int64  `json:"buyer_chat_id"`
	BuyerSenderID  *int64  `json:"buyer_sender_id"`
	Notes          string  `json:"notes"`
}

func (h *Handler) createLead(c *gin.Context) {
	var payload leadPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		writeError(c, http.StatusBadRequest, err)
		return
	}
	buyPrice, err := decimal.NewFromString(payload.BuyPrice)
	if err != nil {
		writeError(c, http.StatusBadRequest, errors.New("invalid buy_price"))
		return
	}
	sellPrice, err := decimal.NewFromString(payload.SellPrice)
	if err != nil {
		writeError(c, http.StatusBadRequest, errors.New("invalid sell_price"))
		return
	}

	deal, err := h.deals.CreateManagerLead(c.Request.Context(), payload.ManagerID, appdeals.LeadInput{
		Product:        payload.Product,
		Region:         payload.Region,
		BuyPrice:       buyPrice,
		SellPrice:      sellPrice,
		SellerChatID:   payload.SellerChatID,
		SellerSenderID: payload.SellerSenderID,
		SellerListing:  payload.SellerListing,
		BuyerChatID:    payload.BuyerChatID,
		BuyerSenderID:  payload.BuyerSenderID,
		Notes:          payload.Notes,
	})
	if err != nil {
		writeDomainError(c, err)
		return
	}
	c.JSON(http.StatusCreated, deal)
}

// Ledger

func (h *Handler) listLedger(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	entries, err := h.ledger.ListLedgerEntries(c.Request.Context(), limit, offset)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, entries)
}

// Outbox

// requeueOutbox clones a failed message as a fresh pending row. This is
// the only recovery path for failed sends.
func (h *Handler) requeueOutbox(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		writeError(c, http.StatusBadRequest, errors.New("invalid outbox id"))
		return
	}

	original, err := h.outbox.GetOutboxMessage(c.Request.Context(), id)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	if original.Status != chat.OutboxFailed {
		writeError(c, http.StatusConflict, fmt.Errorf("outbox message is %s, only failed messages can be requeued", original.Status))
		return
	}

	clone := &chat.OutboxMessage{
		RecipientID:       original.RecipientID,
		Text:              original.Text,
		MediaRef:          original.MediaRef,
		ReplyToExternalID: original.ReplyToExternalID,
		Status:            chat.OutboxPending,
		NegotiationID:     original.NegotiationID,
		SentByUserID:      original.SentByUserID,
	}
	if err := h.outbox.Enqueue(c.Request.Context(), clone); err != nil {
		writeDomainError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": clone.ID})
}

// Settings

type settingPayload struct {
	Value any `json:"value"`
}

func (h *Handler) putSetting(c *gin.Context) {
	key := c.Param("key")
	var payload settingPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		writeError(c, http.StatusBadRequest, err)
		return
	}
	if err := h.settings.Put(c.Request.Context(), key, payload.Value); err != nil {
		writeDomainError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Helpers

func parseDealID(c *gin.Context) (int64, error) {
	dealID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || dealID <= 0 {
		return 0, errInvalidDealID
	}
	return dealID, nil
}

func writeError(c *gin.Context, status int, err error) {
	if err == nil {
		status = http.StatusInternalServerError
		err = errors.New("unknown error")
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func writeDomainError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, interfaces.ErrNotFound):
		writeError(c, http.StatusNotFound, err)
	case errors.Is(err, appdeals.ErrInvalidSkipReason):
		writeError(c, http.StatusBadRequest, err)
	case errors.Is(err, interfaces.ErrAlreadyAssigned),
		errors.Is(err, interfaces.ErrNotWarm),
		errors.Is(err, appdeals.ErrDealClosed),
		errors.Is(err, appdeals.ErrAtCapacity),
		errors.Is(err, appdeals.ErrNotOwner),
		errors.Is(err, appnegotiation.ErrDealClosed),
		errors.Is(err, appnegotiation.ErrNotOwner):
		writeError(c, http.StatusConflict, err)
	case errors.Is(err, appdeals.ErrManagerInactive):
		writeError(c, http.StatusUnprocessableEntity, err)
	default:
		writeError(c, http.StatusInternalServerError, err)
	}
}

// cacheMiddleware caches GET responses in Redis.
func (h *Handler) cacheMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if h.cache == nil || c.Request.Method != http.MethodGet {
			c.Next()
			return
		}

		key := h.cacheKey(c)
		ctx := c.Request.Context()

		if cached, err := h.cache.Get(ctx, key).Result(); err == nil {
			c.Data(http.StatusOK, "application/json", []byte(cached))
			c.Abort()
			return
		}

		recorder := &responseRecorder{
			ResponseWriter: c.Writer,
			status:         http.StatusOK,
			body:           &bytes.Buffer{},
		}
		c.Writer = recorder

		c.Next()

		if recorder.status >= 200 && recorder.status < 300 && recorder.body.Len() > 0 {
			_ = h.cache.Set(ctx, key, recorder.body.Bytes(), h.cacheTTL).Err()
		}
	}
}

type responseRecorder struct {
	gin.ResponseWriter
	body   *bytes.Buffer
	status int
}

func (r *responseRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseRecorder) Write(data []byte) (int, error) {
	if len(data) > 0 {
		r.body.Write(data)
	}
	return r.ResponseWriter.Write(data)
}

func (h *Handler) cacheKey(c *gin.Context) string {
	return fmt.Sprintf("cache:%s:%s?%s", c.Request.Method, c.Request.URL.Path, c.Request.URL.RawQuery)
}
