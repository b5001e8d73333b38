package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	recordsUC "github.com/khoahotran/prospect-sync/internal/application/usecase/records"
	"github.com/khoahotran/prospect-sync/internal/domain/prospect"
	"github.com/khoahotran/prospect-sync/pkg/apperror"
)

type ProspectHandler struct {
	listUseCase *recordsUC.ListRecordsUseCase
	getUseCase  *recordsUC.GetRecordUseCase
}

func NewProspectHandler(listUC *recordsUC.ListRecordsUseCase, getUC *recordsUC.GetRecordUseCase) *ProspectHandler {
	return &ProspectHandler{listUseCase: listUC, getUseCase: getUC}
}

func (h *ProspectHandler) List(kind prospect.Kind) gin.HandlerFunc {
	return func(c *gin.Context) {
		filter := prospect.ListFilter{Company: c.Query("company")}

		if s := c.Query("since"); s != "" {
			since, err := time.Parse(time.RFC3339, s)
			if err != nil {
				c.Error(apperror.NewInvalidInput("since must be an RFC3339 timestamp", err))
				return
			}
			filter.Since = since.UTC()
		}

		var err error
		if filter.Limit, err = queryInt(c, "limit"); err != nil {
			c.Error(err)
			return
		}
		if filter.Offset, err = queryInt(c, "offset"); err != nil {
			c.Error(err)
			return
		}

		out, err := h.listUseCase.Execute(c.Request.Context(), recordsUC.ListInput{Kind: kind, Filter: filter})
		if err != nil {
			c.Error(err)
			return
		}
		c.JSON(http.StatusOK, ToRecordDTOs(out.Records))
	}
}

func (h *ProspectHandler) Get(kind prospect.Kind) gin.HandlerFunc {
	return func(c *gin.Context) {
		rec, err := h.getUseCase.Execute(c.Request.Context(), kind, c.Param("id"))
		if err != nil {
			c.Error(err)
			return
		}
		c.JSON(http.StatusOK, ToRecordDTO(rec))
	}
}

func queryInt(c *gin.Context, name string) (int, error) {
	s := c.Query(name)
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, apperror.NewInvalidInput(name+" must be an integer", err)
	}
	return n, nil
}
