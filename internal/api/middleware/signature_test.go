package middleware

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func signatureRouter(secret, base string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/webhooks/telephony/status", WebhookSignature(secret, base), func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	return r
}

func postForm(r http.Handler, target, remoteAddr, signature string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.RemoteAddr = remoteAddr
	if signature != "" {
		req.Header.Set(signatureHeader, signature)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestWebhookSignatureAcceptsValid(t *testing.T) {
	const secret = "s3cr3t"
	const base = "https://calls.example.in"
	r := signatureRouter(secret, base)

	form := url.Values{}
	form.Set("CallStatus", "completed")
	form.Set("CallSid", "PA123")

	target := "/webhooks/telephony/status?call_id=abc"
	sig := ComputeSignature(secret, base+target, form)

	w := postForm(r, target, "203.0.113.9:5060", sig, form)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestWebhookSignatureRejectsTampering(t *testing.T) {
	const secret = "s3cr3t"
	const base = "https://calls.example.in"
	r := signatureRouter(secret, base)

	form := url.Values{}
	form.Set("CallStatus", "completed")
	target := "/webhooks/telephony/status?call_id=abc"
	sig := ComputeSignature(secret, base+target, form)

	// flip a form value after signing
	form.Set("CallStatus", "failed")
	w := postForm(r, target, "203.0.113.9:5060", sig, form)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestWebhookSignatureRejectsMissingHeader(t *testing.T) {
	r := signatureRouter("s3cr3t", "https://calls.example.in")
	w := postForm(r, "/webhooks/telephony/status", "203.0.113.9:5060", "", url.Values{"CallStatus": {"ringing"}})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestWebhookSignatureSkipsLoopback(t *testing.T) {
	r := signatureRouter("s3cr3t", "https://calls.example.in")
	w := postForm(r, "/webhooks/telephony/status", "127.0.0.1:40000", "", url.Values{"CallStatus": {"ringing"}})
	assert.Equal(t, http.StatusOK, w.Code)
}
