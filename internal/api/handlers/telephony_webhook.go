package handlers

import (
	"encoding/xml"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/alakhotia160011/voxbharat-sub000/internal/call"
)

// TelephonyWebhookHandler answers the voice provider's HTTP callbacks:
// the answer webhook that bridges the call onto our media stream, and
// the status callbacks that drive the session lifecycle.
type TelephonyWebhookHandler struct {
	registry      *call.Registry
	publicBaseURL string
	log           *logrus.Logger
}

func NewTelephonyWebhookHandler(registry *call.Registry, publicBaseURL string, log *logrus.Logger) *TelephonyWebhookHandler {
	return &TelephonyWebhookHandler{registry: registry, publicBaseURL: publicBaseURL, log: log}
}

type streamParameter struct {
	XMLName xml.Name `xml:"Parameter"`
	Name    string   `xml:"name,attr"`
	Value   string   `xml:"value,attr"`
}

type connectStream struct {
	XMLName    xml.Name `xml:"Stream"`
	URL        string   `xml:"url,attr"`
	Parameters []streamParameter
}

type connectVerb struct {
	XMLName xml.Name `xml:"Connect"`
	Stream  connectStream
}

type voiceResponse struct {
	XMLName xml.Name     `xml:"Response"`
	Connect *connectVerb `xml:",omitempty"`
	Hangup  *struct{}    `xml:"Hangup,omitempty"`
}

// Voice handles the answered call: it tells the provider to open a
// media stream back to us, tagged with our call id.
func (h *TelephonyWebhookHandler) Voice(c *gin.Context) {
	callID := c.Query("call_id")
	if _, ok := h.registry.Get(callID); !ok {
		h.log.WithField("call_id", callID).Warn("voice webhook for unknown call")
		c.XML(http.StatusOK, voiceResponse{Hangup: &struct{}{}})
		return
	}

	c.XML(http.StatusOK, voiceResponse{
		Connect: &connectVerb{Stream: connectStream{
			URL: h.mediaStreamURL(),
			Parameters: []streamParameter{
				{Name: "call_id", Value: callID},
			},
		}},
	})
}

// Status handles lifecycle callbacks (ringing, answered, completed,
// no-answer...). Late callbacks for finished calls are acknowledged
// and dropped.
func (h *TelephonyWebhookHandler) Status(c *gin.Context) {
	callID := c.Query("call_id")
	status := c.PostForm("CallStatus")

	sess, ok := h.registry.Get(callID)
	if !ok {
		c.Status(http.StatusOK)
		return
	}

	if sid := c.PostForm("CallSid"); sid != "" && sess.TelephonyCallID() == "" {
		sess.SetTelephonyCallID(sid)
	}

	h.log.WithFields(logrus.Fields{"call_id": callID, "status": status}).Debug("telephony status callback")
	sess.OnTelephonyStatus(status)
	c.Status(http.StatusOK)
}

func (h *TelephonyWebhookHandler) mediaStreamURL() string {
	ws := h.publicBaseURL
	switch {
	case strings.HasPrefix(ws, "https://"):
		ws = "wss://" + strings.TrimPrefix(ws, "https://")
	case strings.HasPrefix(ws, "http://"):
		ws = "ws://" + strings.TrimPrefix(ws, "http://")
	}
	return ws + "/ws/media"
}
