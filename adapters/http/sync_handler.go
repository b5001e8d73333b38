package http

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	syncUC "github.com/khoahotran/prospect-sync/internal/application/usecase/sync"
	"github.com/khoahotran/prospect-sync/internal/domain/prospect"
)

type SyncTrigger interface {
	Trigger(ctx context.Context, kind prospect.Kind) (*syncUC.SyncOutput, error)
}

type SyncHandler struct {
	trigger SyncTrigger
}

func NewSyncHandler(trigger SyncTrigger) *SyncHandler {
	return &SyncHandler{trigger: trigger}
}

// Run executes one sync of kind synchronously and returns its tally.
func (h *SyncHandler) Run(kind prospect.Kind) gin.HandlerFunc {
	return func(c *gin.Context) {
		out, err := h.trigger.Trigger(c.Request.Context(), kind)
		if err != nil {
			c.Error(err)
			return
		}
		c.JSON(http.StatusOK, out)
	}
}
