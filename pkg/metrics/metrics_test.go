package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecorder_SyncRun(t *testing.T) {
	r := NewRecorder()
	r.SyncRun("visit", "completed", 3, 1, 2)
	r.SyncRun("visit", "completed", 1, 0, 0)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.syncRuns.WithLabelValues("visit", "completed")))
	assert.Equal(t, 4.0, testutil.ToFloat64(r.syncItems.WithLabelValues("visit", "added")))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.syncItems.WithLabelValues("visit", "failed")))
}

func TestRecorder_WebhookUnknownKind(t *testing.T) {
	r := NewRecorder()
	r.WebhookEvent("", "ignored")

	assert.Equal(t, 1.0, testutil.ToFloat64(r.webhooks.WithLabelValues("unknown", "ignored")))
}

func TestRecorder_NilIsSafe(t *testing.T) {
	var r *Recorder
	assert.NotPanics(t, func() {
		r.SyncRun("scan", "failed", 0, 0, 0)
		r.WebhookEvent("scan", "created")
	})
}
