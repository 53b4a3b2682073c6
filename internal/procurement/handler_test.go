package procurement

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newWebhook(t *testing.T) (*fixture, http.Handler) {
	t.Helper()
	f := newFixture(t)
	r := chi.NewRouter()
	NewHandler(zap.NewNop().Sugar(), f.svc).Routes(r)
	return f, r
}

func pushEnvelope(t *testing.T, ev Event) *bytes.Buffer {
	t.Helper()
	data, err := json.Marshal(ev)
	require.NoError(t, err)
	body, err := json.Marshal(map[string]any{
		"message":      map[string]any{"data": base64.StdEncoding.EncodeToString(data), "messageId": "m-1"},
		"subscription": "projects/p/subscriptions/s",
	})
	require.NoError(t, err)
	return bytes.NewBuffer(body)
}

func TestWebhookProcessesEvent(t *testing.T) {
	f, h := newWebhook(t)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/events", pushEnvelope(t, accountEvent(EventAccountActive, "acct-1"))))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, AccountStateActive, f.accountState(t, "acct-1"))
}

func TestWebhookUnknownEventTypeStill200(t *testing.T) {
	_, h := newWebhook(t)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/events", pushEnvelope(t, Event{EventID: "e", EventType: "SOMETHING_NEW"})))

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestWebhookProcessingFailureStill200(t *testing.T) {
	// Event payload missing the account reference: a processing error, not a
	// malformed envelope. Must be acknowledged.
	_, h := newWebhook(t)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/events", pushEnvelope(t, Event{EventID: "e", EventType: EventAccountActive})))

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestWebhookMalformedEnvelope(t *testing.T) {
	_, h := newWebhook(t)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/events", bytes.NewBufferString("{not json")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWebhookUndecodableData(t *testing.T) {
	_, h := newWebhook(t)

	body, err := json.Marshal(map[string]any{
		"message": map[string]any{"data": base64.StdEncoding.EncodeToString([]byte("not json")), "messageId": "m-1"},
	})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/events", bytes.NewBuffer(body)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
