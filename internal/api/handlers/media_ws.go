package handlers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/alakhotia160011/voxbharat-sub000/internal/call"
)

var errStreamClosed = errors.New("media stream closed")

// Telephony media-stream message shapes. The provider speaks JSON over
// the WebSocket: a start event naming the stream, then base64 mu-law
// media frames, then stop.
type mediaMessage struct {
	Event     string        `json:"event"`
	StreamSID string        `json:"streamSid,omitempty"`
	Start     *startMessage `json:"start,omitempty"`
	Media     *mediaPayload `json:"media,omitempty"`
}

type startMessage struct {
	StreamSID    string            `json:"streamSid"`
	CallSID      string            `json:"callSid"`
	CustomParams map[string]string `json:"customParameters"`
}

type mediaPayload struct {
	Track   string `json:"track,omitempty"`
	Payload string `json:"payload"` // base64 mu-law
}

// MediaStreamHandler owns the WS leg between the telephony provider
// and the call engine. One connection carries one call.
type MediaStreamHandler struct {
	registry *call.Registry
	endCall  func(ctx context.Context, telephonyCallID string) error
	log      *logrus.Logger
	upgrader websocket.Upgrader
}

func NewMediaStreamHandler(registry *call.Registry, endCall func(ctx context.Context, telephonyCallID string) error, log *logrus.Logger) *MediaStreamHandler {
	return &MediaStreamHandler{
		registry: registry,
		endCall:  endCall,
		log:      log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// the provider's media gateway sends no browser origin
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

func (h *MediaStreamHandler) Stream(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.WithError(err).Warn("media stream upgrade failed")
		return
	}

	mc := &mediaConn{ws: conn, endCall: h.endCall}
	defer mc.close()

	var sess *call.Session
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			// carrier dropped the stream mid-call
			if sess != nil {
				sess.Hangup()
			}
			return
		}

		var msg mediaMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}

		switch msg.Event {
		case "connected":
			// handshake, nothing to bind yet

		case "start":
			if msg.Start == nil || sess != nil {
				continue
			}
			callID := msg.Start.CustomParams["call_id"]
			s, err := h.registry.ClaimStream(callID, msg.Start.StreamSID)
			if err != nil {
				h.log.WithError(err).WithField("call_id", callID).Warn("media stream refused")
				return
			}
			mc.bind(msg.Start.StreamSID, msg.Start.CallSID)
			if err := s.AttachStream(c.Request.Context(), mc, msg.Start.CallSID, msg.Start.StreamSID); err != nil {
				h.log.WithError(err).WithField("call_id", callID).Error("stream attach failed")
				return
			}
			sess = s

		case "media":
			if sess == nil || msg.Media == nil {
				continue
			}
			payload, err := base64.StdEncoding.DecodeString(msg.Media.Payload)
			if err != nil {
				continue
			}
			sess.OnMedia(payload)

		case "stop":
			if sess != nil {
				sess.Hangup()
			}
			return
		}
	}
}

// mediaConn is the write side of one media stream; it satisfies
// call.Outbound.
type mediaConn struct {
	mu              sync.Mutex
	ws              *websocket.Conn
	streamSID       string
	telephonyCallID string
	endCall         func(ctx context.Context, telephonyCallID string) error
	closed          bool
}

func (m *mediaConn) bind(streamSID, telephonyCallID string) {
	m.mu.Lock()
	m.streamSID = streamSID
	m.telephonyCallID = telephonyCallID
	m.mu.Unlock()
}

func (m *mediaConn) SendAudioFrame(mulaw []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errStreamClosed
	}
	return m.ws.WriteJSON(mediaMessage{
		Event:     "media",
		StreamSID: m.streamSID,
		Media:     &mediaPayload{Payload: base64.StdEncoding.EncodeToString(mulaw)},
	})
}

// Hangup asks the provider to end the call; closing only our socket
// would leave the phone leg up.
func (m *mediaConn) Hangup() error {
	m.mu.Lock()
	sid := m.telephonyCallID
	m.mu.Unlock()

	var err error
	if sid != "" && m.endCall != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err = m.endCall(ctx, sid)
	}
	m.close()
	return err
}

func (m *mediaConn) close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	_ = m.ws.Close()
}
