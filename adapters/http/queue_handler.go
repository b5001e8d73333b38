package http

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/khoahotran/prospect-sync/internal/application/service"
	queueUC "github.com/khoahotran/prospect-sync/internal/application/usecase/queue"
	"github.com/khoahotran/prospect-sync/internal/domain/prospect"
	"github.com/khoahotran/prospect-sync/pkg/apperror"
)

type QueueHandler struct {
	queueUseCase *queueUC.QueueUseCase
}

func NewQueueHandler(uc *queueUC.QueueUseCase) *QueueHandler {
	return &QueueHandler{queueUseCase: uc}
}

func queueFilter(c *gin.Context) service.QueueFilter {
	return service.QueueFilter{
		CampaignID: c.Query("campaignId"),
		ProfileID:  c.Query("profileId"),
		Command:    c.Query("command"),
	}
}

func (h *QueueHandler) Status(c *gin.Context) {
	data, err := h.queueUseCase.Status(c.Request.Context(), queueFilter(c))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, success("Queue status retrieved successfully", data))
}

func (h *QueueHandler) Items(c *gin.Context) {
	data, err := h.queueUseCase.Items(c.Request.Context(), queueFilter(c))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, success("Queued items retrieved successfully", data))
}

func (h *QueueHandler) Clear(c *gin.Context) {
	data, err := h.queueUseCase.Clear(c.Request.Context())
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, success("Queue cleared successfully", data))
}

// Enqueue handles the single-profile visit, connect and message routes.
func (h *QueueHandler) Enqueue(command service.QueueCommand) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req QueueProfileRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.Error(apperror.NewInvalidInput("invalid request body", err))
			return
		}

		receipt, err := h.queueUseCase.Enqueue(c.Request.Context(), queueUC.EnqueueInput{
			Command:    command,
			ProfileURL: req.ProfileURL,
			Message:    req.MessageText,
			Options:    req.ToOptions(),
		})
		if err != nil {
			c.Error(err)
			return
		}
		c.JSON(http.StatusOK, success(fmt.Sprintf("Profile %s queued successfully", command), receipt))
	}
}

func (h *QueueHandler) Batch(c *gin.Context) {
	var req QueueBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperror.NewInvalidInput("invalid request body", err))
		return
	}

	out, err := h.queueUseCase.BatchVisits(c.Request.Context(), queueUC.BatchInput{
		ProfileURLs: req.ProfileURLs,
		Options:     req.ToOptions(),
		BatchSize:   req.BatchSize,
	})
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, success(fmt.Sprintf("Batch queued: %d succeeded, %d failed", out.Queued, out.Failed), out))
}

func (h *QueueHandler) All(c *gin.Context) {
	var req QueueAllRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperror.NewInvalidInput("invalid request body", err))
		return
	}

	kind := prospect.KindScan
	if req.CollectionType != "" {
		k, ok := prospect.ParseKind(strings.TrimSuffix(req.CollectionType, "s"))
		if !ok {
			c.Error(apperror.NewInvalidInput(fmt.Sprintf("unknown collectionType %q", req.CollectionType), nil))
			return
		}
		kind = k
	}

	out, err := h.queueUseCase.QueueStale(c.Request.Context(), queueUC.StaleInput{
		Kind:      kind,
		Limit:     req.Limit,
		Options:   req.ToOptions(),
		BatchSize: req.BatchSize,
	})
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, success(fmt.Sprintf("Queued %d of %d stale %s profiles", out.Queued, out.Total, kind), out))
}
