package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"dining-service/internal/models"
	"dining-service/internal/realtime"
	"dining-service/internal/service"
	"dining-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Pinger is a dependency checked by the readiness probe
type Pinger interface {
	Ping(ctx context.Context) error
}

// ActivityLog reads the recorded history of a check
type ActivityLog interface {
	ActivityForCheck(ctx context.Context, checkID string) ([]models.ActivityEntry, error)
}

// Handler contains HTTP handlers
type Handler struct {
	sessions    *service.SessionStore
	tables      *service.TableSessionManager
	orders      *service.OrderAggregator
	tickets     *service.TicketDispatcher
	payments    *service.PaymentReconciler
	broadcaster *realtime.Broadcaster
	keepalive   time.Duration
	deps        map[string]Pinger
	activity    ActivityLog
	logger      *zap.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(
	sessions *service.SessionStore,
	tables *service.TableSessionManager,
	orders *service.OrderAggregator,
	tickets *service.TicketDispatcher,
	payments *service.PaymentReconciler,
	broadcaster *realtime.Broadcaster,
) *Handler {
	return &Handler{
		sessions:    sessions,
		tables:      tables,
		orders:      orders,
		tickets:     tickets,
		payments:    payments,
		broadcaster: broadcaster,
		keepalive:   15 * time.Second,
		deps:        make(map[string]Pinger),
		logger:      util.GetLogger(),
	}
}

// SetKeepalive sets the interval of SSE keepalive comments
func (h *Handler) SetKeepalive(d time.Duration) {
	if d > 0 {
		h.keepalive = d
	}
}

// AddReadinessCheck registers a dependency for /ready
func (h *Handler) AddReadinessCheck(name string, p Pinger) {
	h.deps[name] = p
}

// SetActivityLog enables GET /checks/:check/activity
func (h *Handler) SetActivityLog(a ActivityLog) {
	h.activity = a
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.POST("/stores/:store/tables/:table/occupy", h.occupyTable)
		v1.POST("/stores/:store/tables/:table/release", h.releaseTable)
		v1.GET("/stores/:store/tables/:table/check", h.getActiveCheck)
		v1.GET("/stores/:store/tables", h.listTables)
		v1.GET("/stores/:store/snapshot", h.getSnapshot)
		v1.GET("/stores/:store/events", h.streamEvents)

		v1.GET("/checks/:check", h.getCheck)
		v1.POST("/checks/:check/orders", h.submitOrder)
		v1.DELETE("/checks/:check/order-items/:item", h.cancelOrderItem)
		v1.GET("/checks/:check/due", h.quoteDue)
		v1.POST("/checks/:check/payments", h.confirmPayment)
		v1.GET("/checks/:check/activity", h.checkActivity)

		v1.PATCH("/ticket-items/:id", h.advanceTicketItem)

		v1.POST("/payments/:id/refund", h.refundPayment)
		v1.POST("/payment-verifications/:key", h.verifyPayment)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck pings every registered dependency
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	failed := gin.H{}
	for name, dep := range h.deps {
		if err := dep.Ping(ctx); err != nil {
			failed[name] = err.Error()
		}
	}
	if len(failed) > 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"failed": failed,
			"time":   time.Now().Unix(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

type occupyRequest struct {
	OpenedBy  string `json:"opened_by"`
	PartySize int    `json:"party_size"`
}

func tableRef(c *gin.Context) (models.TableRef, bool) {
	number, err := strconv.Atoi(c.Param("table"))
	if err != nil || number <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid table number",
		})
		return models.TableRef{}, false
	}
	return models.TableRef{StoreID: c.Param("store"), Number: number}, true
}

// occupyTable opens a check on a table
func (h *Handler) occupyTable(c *gin.Context) {
	ref, ok := tableRef(c)
	if !ok {
		return
	}

	var req occupyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	check, err := h.tables.Occupy(c.Request.Context(), ref, req.OpenedBy, req.PartySize)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"check_id": check.ID,
		"check":    check,
	})
}

// releaseTable closes a settled check and frees the table
func (h *Handler) releaseTable(c *gin.Context) {
	ref, ok := tableRef(c)
	if !ok {
		return
	}

	if err := h.tables.Release(c.Request.Context(), ref); err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"store_id": ref.StoreID,
		"table":    ref.Number,
		"state":    models.TableAvailable,
	})
}

func (h *Handler) getActiveCheck(c *gin.Context) {
	ref, ok := tableRef(c)
	if !ok {
		return
	}

	check, err := h.tables.GetActiveCheck(ref)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, check)
}

func (h *Handler) listTables(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"tables": h.sessions.Tables(c.Param("store")),
	})
}

// getSnapshot is the polling fallback for realtime clients
func (h *Handler) getSnapshot(c *gin.Context) {
	c.JSON(http.StatusOK, h.sessions.Snapshot(c.Param("store")))
}

func (h *Handler) getCheck(c *gin.Context) {
	check, err := h.tables.GetCheck(c.Param("check"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, check)
}

// checkActivity returns a check's recorded events, including closed checks
func (h *Handler) checkActivity(c *gin.Context) {
	if h.activity == nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "activity log not configured",
		})
		return
	}

	entries, err := h.activity.ActivityForCheck(c.Request.Context(), c.Param("check"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	if entries == nil {
		entries = []models.ActivityEntry{}
	}
	c.JSON(http.StatusOK, gin.H{
		"check_id": c.Param("check"),
		"entries":  entries,
	})
}

type submitOrderRequest struct {
	Source models.OrderSource       `json:"source"`
	Items  []service.OrderItemInput `json:"items"`
}

// submitOrder merges an order into the check
func (h *Handler) submitOrder(c *gin.Context) {
	var req submitOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	resp, err := h.orders.SubmitOrder(c.Request.Context(), c.Param("check"), req.Source, req.Items)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

type cancelItemRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) cancelOrderItem(c *gin.Context) {
	var req cancelItemRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "Invalid request body",
				"details": err.Error(),
			})
			return
		}
	}
	if req.Reason == "" {
		req.Reason = c.Query("reason")
	}

	resp, err := h.orders.CancelOrderItem(c.Request.Context(), c.Param("check"), c.Param("item"), req.Reason)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

type advanceRequest struct {
	Status string `json:"status"`
}

// advanceTicketItem moves a ticket item along the kitchen transition table
func (h *Handler) advanceTicketItem(c *gin.Context) {
	var req advanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	target, err := models.ParseTicketItemStatus(strings.ToUpper(req.Status))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid status",
			"details": err.Error(),
		})
		return
	}

	item, err := h.tickets.Advance(c.Request.Context(), c.Param("id"), target)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":     item.ID,
		"status": item.Status,
	})
}

func (h *Handler) quoteDue(c *gin.Context) {
	checkID := c.Param("check")
	due, err := h.payments.QuoteDue(checkID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"check_id": checkID,
		"due":      due,
	})
}

// confirmPayment applies a split payment. A repeated idempotency key returns the stored result.
func (h *Handler) confirmPayment(c *gin.Context) {
	var req service.ConfirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	if req.IdempotencyKey == "" {
		req.IdempotencyKey = c.GetHeader("Idempotency-Key")
	}
	req.CheckID = c.Param("check")

	result, err := h.payments.Confirm(c.Request.Context(), req)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// verifyPayment resolves a payment left pending verification
func (h *Handler) verifyPayment(c *gin.Context) {
	result, err := h.payments.Verify(c.Request.Context(), c.Param("key"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

type refundRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) refundPayment(c *gin.Context) {
	var req refundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	payment, err := h.payments.Refund(c.Request.Context(), c.Param("id"), req.Reason)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, payment)
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
