package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/anime-shed/roi-gridview-go/internal/cache"
	"github.com/anime-shed/roi-gridview-go/internal/config"
	apperrors "github.com/anime-shed/roi-gridview-go/internal/errors"
	"github.com/anime-shed/roi-gridview-go/internal/logger"
	"github.com/anime-shed/roi-gridview-go/internal/observer"
	"github.com/anime-shed/roi-gridview-go/internal/registry"
	"github.com/anime-shed/roi-gridview-go/internal/service"
	"github.com/anime-shed/roi-gridview-go/internal/sorting"
	"github.com/anime-shed/roi-gridview-go/internal/strategy"
	"github.com/anime-shed/roi-gridview-go/pkg/models"
)

const defaultThumbnailSize = 128

type handler struct {
	service service.GridService
	metrics *observer.MetricsObserver
	store   cache.Store
}

// NewHandler builds the HTTP API over the grid service
func NewHandler(svc service.GridService, metrics *observer.MetricsObserver, store cache.Store, cfg *config.Config) http.Handler {
	h := &handler{service: svc, metrics: metrics, store: store}
	r := gin.Default()

	// Add middleware
	r.Use(
		requestSizeLimiter(cfg.MaxRequestBodySize),
		errorHandler(),
	)

	// Configure routes
	r.GET("/health", healthCheck)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/stats", h.stats)
	r.GET("/events", h.streamEvents)

	items := r.Group("/items")
	items.PUT("", h.replaceItems)
	items.GET("", h.listItems)
	items.DELETE("/:id", h.deleteItem)
	items.GET("/:id/thumbnail", h.thumbnail)
	items.POST("/load", h.loadItems)
	items.POST("/reload", h.reloadItems)

	r.POST("/sort", h.sort)
	r.DELETE("/cache", h.clearCache)

	return r
}

func (h *handler) replaceItems(c *gin.Context) {
	var req models.ReplaceItemsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid request format", err)
		return
	}
	items := make([]*models.Item, len(req.Items))
	for i := range req.Items {
		items[i] = &req.Items[i]
	}

	epoch, err := h.service.Replace(items)
	if err != nil {
		respondError(c, apperrors.GetStatusCode(err), "failed to replace items", err)
		return
	}
	logger.WithFields(logrus.Fields{
		"epoch": epoch,
		"items": len(items),
		"ip":    c.ClientIP(),
	}).Info("Replaced item set")

	entries, _ := h.service.Items()
	c.JSON(http.StatusOK, toItemsResponse(entries, epoch))
}

func (h *handler) listItems(c *gin.Context) {
	entries, epoch := h.service.Items()
	c.JSON(http.StatusOK, toItemsResponse(entries, epoch))
}

func (h *handler) deleteItem(c *gin.Context) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		respondError(c, apperrors.GetStatusCode(err), "invalid item id", err)
		return
	}
	if err := h.service.Delete(id); err != nil {
		respondError(c, apperrors.GetStatusCode(err), "failed to delete item", err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handler) loadItems(c *gin.Context) {
	h.queueLoads(c, h.service.Load)
}

func (h *handler) reloadItems(c *gin.Context) {
	h.queueLoads(c, h.service.Reload)
}

func (h *handler) queueLoads(c *gin.Context, queue func([]uuid.UUID) (int, error)) {
	var req models.LoadRequest
	// An empty body means every item
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, http.StatusBadRequest, "invalid request format", err)
			return
		}
	}
	ids, err := parseIDs(req.IDs)
	if err != nil {
		respondError(c, apperrors.GetStatusCode(err), "invalid item id", err)
		return
	}
	n, err := queue(ids)
	if err != nil {
		respondError(c, apperrors.GetStatusCode(err), "failed to queue loads", err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"queued": n})
}

func (h *handler) sort(c *gin.Context) {
	startTime := time.Now()
	var req models.SortRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid request format", err)
		return
	}
	sortReq, err := toSortRequest(req)
	if err != nil {
		respondError(c, apperrors.GetStatusCode(err), "invalid sort request", err)
		return
	}

	out, err := h.service.Sort(sortReq)
	if err != nil {
		respondError(c, apperrors.GetStatusCode(err), "failed to sort items", err)
		return
	}

	logger.WithFields(logrus.Fields{
		"strategy":           req.Criteria[0].Strategy,
		"ordered":            len(out.IDs),
		"pending":            len(out.Pending),
		"processing_time_ms": time.Since(startTime).Milliseconds(),
	}).Info("Sort completed")

	status := http.StatusOK
	if len(out.Pending) > 0 {
		// The complete ordering follows on /events once the pending loads resolve
		status = http.StatusAccepted
	}
	c.JSON(status, models.OrderingResponse{
		IDs:     idStrings(out.IDs),
		Pending: idStrings(out.Pending),
		Failed:  idStrings(out.Failed),
	})
}

func (h *handler) thumbnail(c *gin.Context) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		respondError(c, apperrors.GetStatusCode(err), "invalid item id", err)
		return
	}
	width, err := queryInt(c, "w", defaultThumbnailSize)
	if err != nil {
		respondError(c, http.StatusBadRequest, "invalid width", err)
		return
	}
	height, err := queryInt(c, "h", defaultThumbnailSize)
	if err != nil {
		respondError(c, http.StatusBadRequest, "invalid height", err)
		return
	}

	data, err := h.service.Thumbnail(id, width, height)
	if err != nil {
		respondError(c, apperrors.GetStatusCode(err), "failed to render thumbnail", err)
		return
	}
	c.Data(http.StatusOK, "image/png", data)
}

func (h *handler) clearCache(c *gin.Context) {
	if err := h.service.ClearCache(); err != nil {
		respondError(c, apperrors.GetStatusCode(err), "failed to clear cache", err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handler) stats(c *gin.Context) {
	body := gin.H{
		"cache_entries": h.store.Len(),
		"cache_bytes":   h.store.Size(),
	}
	if h.metrics != nil {
		body["loads"] = h.metrics.GetMetrics()
	}
	c.JSON(http.StatusOK, body)
}

// streamEvents sends item state changes and ready orderings as server-sent events
func (h *handler) streamEvents(c *gin.Context) {
	sink := newEventSink(256)
	unsubscribe := h.service.Subscribe(sink)
	defer unsubscribe()

	ctx := c.Request.Context()
	c.Stream(func(w io.Writer) bool {
		select {
		case ev := <-sink.events:
			c.SSEvent(ev.name, ev.data)
			return true
		case <-ctx.Done():
			return false
		}
	})
}

func healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "available",
		"version": "1.0.0",
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

// Middleware and helper functions
func requestSizeLimiter(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

func errorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) > 0 {
			err := c.Errors.Last()
			respondError(c, determineStatusCode(err.Err), "request processing failed", err)
		}
	}
}

func determineStatusCode(err error) int {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	// Fallback to context-based errors
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, code int, message string, err error) {
	// Log the error with context
	entry := logger.WithError(err).WithFields(logrus.Fields{
		"status_code": code,
		"message":     message,
		"path":        c.Request.URL.Path,
		"method":      c.Request.Method,
		"ip":          c.ClientIP(),
	})
	if code >= http.StatusInternalServerError {
		entry.Error("Request failed")
	} else {
		entry.Warn("Request rejected")
	}

	c.AbortWithStatusJSON(code, models.ErrorResponse{
		Error:   http.StatusText(code),
		Message: fmt.Sprintf("%s: %v", message, err),
	})
}

func parseID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, apperrors.NewValidationError(fmt.Sprintf("%q is not a valid id", raw), err)
	}
	return id, nil
}

func parseIDs(raw []string) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, len(raw))
	for _, r := range raw {
		id, err := parseID(r)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func queryInt(c *gin.Context, key string, def int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}

func toSortRequest(req models.SortRequest) (sorting.Request, error) {
	out := sorting.Request{
		Criteria:  make([]sorting.Criterion, 0, len(req.Criteria)),
		Reference: strategy.Reference{Label: req.ReferenceLabel, Vector: req.ReferenceVector},
	}
	for _, c := range req.Criteria {
		kind, err := strategy.ParseKind(c.Strategy)
		if err != nil {
			return sorting.Request{}, apperrors.NewValidationError(err.Error(), err)
		}
		out.Criteria = append(out.Criteria, sorting.Criterion{Kind: kind, Descending: c.Descending})
	}
	ids, err := parseIDs(req.ReferenceIDs)
	if err != nil {
		return sorting.Request{}, err
	}
	out.ReferenceIDs = ids
	return out, nil
}

func toItemsResponse(entries []registry.Entry, epoch uint64) models.ItemsResponse {
	resp := models.ItemsResponse{Epoch: epoch, Items: make([]models.ItemStatus, 0, len(entries))}
	for _, e := range entries {
		status := models.ItemStatus{
			ID:         e.Item.ID.String(),
			Label:      e.Item.Metadata.Label(),
			State:      e.State,
			Generation: e.Generation,
		}
		if e.Pixels != nil {
			status.Source = string(e.Pixels.Source)
			status.Warnings = e.Pixels.Warnings
		}
		if e.Err != nil {
			status.Error = e.Err.Error()
			status.ErrorType = string(apperrors.TypeOf(e.Err))
		}
		resp.Items = append(resp.Items, status)
	}
	return resp
}

func idStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}
