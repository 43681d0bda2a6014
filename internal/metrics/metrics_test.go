package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestSendResult(t *testing.T) {
	before := testutil.ToFloat64(MessagesSent.WithLabelValues("test", "failure"))

	SendResult("test", false)
	SendResult("test", true)

	assert.Equal(t, before+1, testutil.ToFloat64(MessagesSent.WithLabelValues("test", "failure")))
	assert.GreaterOrEqual(t, testutil.ToFloat64(MessagesSent.WithLabelValues("test", "success")), 1.0)
}

func TestWebhookRequestsLabels(t *testing.T) {
	WebhookRequests.WithLabelValues("telegram", "ok").Inc()
	assert.GreaterOrEqual(t, testutil.ToFloat64(WebhookRequests.WithLabelValues("telegram", "ok")), 1.0)
}
