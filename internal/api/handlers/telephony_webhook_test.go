package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alakhotia160011/voxbharat-sub000/internal/call"
	"github.com/alakhotia160011/voxbharat-sub000/internal/models"
	"github.com/alakhotia160011/voxbharat-sub000/internal/providers/convo"
)

type stubTTS struct{}

func (stubTTS) Synthesize(context.Context, string, string, string) ([]byte, error) {
	return make([]byte, 320), nil
}

func quietLog() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

func newWebhookFixture(t *testing.T) (*gin.Engine, *call.Registry, *call.Session) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	registry := call.NewRegistry()
	script := convo.ScriptFor("pilot", "hi-IN", []models.Question{{ID: "q0", Prompt: "Sawaal?"}})
	sess := call.NewSession(call.Config{
		CallID:   "call-1",
		Phone:    "+919800000001",
		Language: "hi-IN",
	}, call.Deps{
		TTS:      stubTTS{},
		Convo:    script,
		Fallback: script,
		Registry: registry,
		Logger:   quietLog(),
	})
	require.NoError(t, registry.Add(sess))

	h := NewTelephonyWebhookHandler(registry, "https://calls.example.in", quietLog())
	r := gin.New()
	r.POST("/webhooks/telephony/voice", h.Voice)
	r.POST("/webhooks/telephony/status", h.Status)
	return r, registry, sess
}

func postWebhook(r http.Handler, target string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestVoiceWebhookConnectsKnownCall(t *testing.T) {
	r, _, _ := newWebhookFixture(t)

	w := postWebhook(r, "/webhooks/telephony/voice?call_id=call-1", url.Values{})
	assert.Equal(t, http.StatusOK, w.Code)

	body := w.Body.String()
	assert.Contains(t, body, "<Connect>")
	assert.Contains(t, body, `url="wss://calls.example.in/ws/media"`)
	assert.Contains(t, body, `name="call_id"`)
	assert.Contains(t, body, `value="call-1"`)
}

func TestVoiceWebhookHangsUpUnknownCall(t *testing.T) {
	r, _, _ := newWebhookFixture(t)

	w := postWebhook(r, "/webhooks/telephony/voice?call_id=ghost", url.Values{})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "<Hangup>")
	assert.NotContains(t, w.Body.String(), "<Connect>")
}

func TestStatusWebhookDrivesLifecycle(t *testing.T) {
	r, registry, sess := newWebhookFixture(t)

	w := postWebhook(r, "/webhooks/telephony/status?call_id=call-1",
		url.Values{"CallStatus": {"ringing"}, "CallSid": {"PA99"}})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.CallRinging, sess.Status())
	assert.Equal(t, "PA99", sess.TelephonyCallID())

	w = postWebhook(r, "/webhooks/telephony/status?call_id=call-1",
		url.Values{"CallStatus": {"no-answer"}})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.CallNoAnswer, sess.Status())

	// the finished session deregisters itself
	_, ok := registry.Get("call-1")
	assert.False(t, ok)
}

func TestStatusWebhookIgnoresUnknownCall(t *testing.T) {
	r, _, _ := newWebhookFixture(t)
	w := postWebhook(r, "/webhooks/telephony/status?call_id=ghost",
		url.Values{"CallStatus": {"completed"}})
	assert.Equal(t, http.StatusOK, w.Code)
}
