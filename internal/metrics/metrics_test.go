package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	m := New()

	m.Connected()
	m.Connected()
	m.Disconnected()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.connectionsActive))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.connectionsTotal))

	m.HandshakeRejected("auth")
	m.HandshakeRejected("auth")
	m.HandshakeRejected("already_connected")
	assert.Equal(t, 2.0, testutil.ToFloat64(m.handshakeRejections.WithLabelValues("auth")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.handshakeRejections.WithLabelValues("already_connected")))

	m.Event("chat/message")
	m.RateLimited()
	m.MessagePosted()
	m.MessageRemoved()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.eventsTotal.WithLabelValues("chat/message")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.rateLimitedTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.messagesPosted))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.messagesRemoved))

	m.UploadCompleted(4096)
	m.UploadFailed()
	m.SetActiveTransfers(3)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.uploadsTotal.WithLabelValues("completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.uploadsTotal.WithLabelValues("failed")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.transfersActive))
}

func TestMetrics_IndependentRegistries(t *testing.T) {
	a, b := New(), New()
	a.MessagePosted()
	assert.Equal(t, 0.0, testutil.ToFloat64(b.messagesPosted))
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.MessagePosted()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "chat_messages_posted_total 1")
	assert.Contains(t, string(body), "go_goroutines")
}
