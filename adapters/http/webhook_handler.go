package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/khoahotran/prospect-sync/adapters/event"
	webhookUC "github.com/khoahotran/prospect-sync/internal/application/usecase/webhook"
	"github.com/khoahotran/prospect-sync/pkg/apperror"
	"github.com/khoahotran/prospect-sync/pkg/logger"
)

const maxWebhookBody = 1 << 20

type WebhookHandler struct {
	receiver webhookUC.Receiver
	logger   logger.Logger
}

func NewWebhookHandler(receiver webhookUC.Receiver, log logger.Logger) *WebhookHandler {
	return &WebhookHandler{receiver: receiver, logger: log}
}

// Receive acknowledges every delivery whose body is a JSON object with 200,
// including events that are ignored, so the sender does not retry them.
func (h *WebhookHandler) Receive(c *gin.Context) {
	payload, ok, err := decodeWebhook(c.Request.Body)
	if err != nil {
		h.logger.Warn("Rejecting unreadable webhook body", zap.Error(err))
		c.Error(apperror.NewInvalidInput("webhook body must be a JSON object", err))
		return
	}
	if !ok {
		h.logger.Warn("Ignoring webhook with malformed envelope fields")
		c.JSON(http.StatusOK, gin.H{"status": "success", "outcome": webhookUC.OutcomeIgnored})
		return
	}

	out, err := h.receiver.Execute(c.Request.Context(), payload)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "success", "outcome": out.Outcome})
}

type rawEnvelope struct {
	Type  json.RawMessage `json:"type"`
	Event json.RawMessage `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// decodeWebhook returns an error only when the body is not a JSON object.
// ok is false when type or event is not a string, or data is not an object.
func decodeWebhook(body io.Reader) (payload event.WebhookEventPayload, ok bool, err error) {
	raw, err := io.ReadAll(io.LimitReader(body, maxWebhookBody))
	if err != nil {
		return payload, false, err
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return payload, false, errors.New("body is not a JSON object")
	}

	var env rawEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return payload, false, err
	}

	if !decodeOptionalString(env.Type, &payload.Type) || !decodeOptionalString(env.Event, &payload.Event) {
		return payload, false, nil
	}
	if isAbsent(env.Data) {
		return payload, true, nil
	}
	if env.Data[0] != '{' {
		return payload, false, nil
	}
	dec := json.NewDecoder(bytes.NewReader(env.Data))
	dec.UseNumber()
	if err := dec.Decode(&payload.Data); err != nil {
		return payload, false, nil
	}
	return payload, true, nil
}

func isAbsent(v json.RawMessage) bool {
	return len(v) == 0 || string(v) == "null"
}

func decodeOptionalString(v json.RawMessage, dst *string) bool {
	if isAbsent(v) {
		return true
	}
	if v[0] != '"' {
		return false
	}
	return json.Unmarshal(v, dst) == nil
}
