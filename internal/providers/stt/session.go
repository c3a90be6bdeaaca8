package stt

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	eventBuffer = 64
	closeGrace  = 500 * time.Millisecond
)

type Options struct {
	// URL is the provider's streaming endpoint (ws:// or wss://).
	URL    string
	APIKey string

	Model      string
	Language   string // empty means provider-side auto-detect
	SampleRate int
	Encoding   string

	Logger *logrus.Entry
}

func (o *Options) withDefaults() {
	if o.Model == "" {
		o.Model = "saarika:v2"
	}
	if o.SampleRate == 0 {
		o.SampleRate = 16000
	}
	if o.Encoding == "" {
		o.Encoding = "linear16"
	}
	if o.Logger == nil {
		o.Logger = logrus.NewEntry(logrus.New())
	}
}

// Session is one long-lived recognizer stream. The caller-visible
// identity survives a language switch even though the underlying
// socket is re-established.
type Session struct {
	opts Options

	mu        sync.Mutex
	conn      *websocket.Conn
	state     State
	closing   bool
	switching bool
	retried   bool // one automatic reconnect per unexpected close

	// emitMu serializes emit against finish so no event is ever sent
	// on the closed channel
	emitMu sync.Mutex
	events chan Event
	done   chan struct{}
}

// Connect dials the provider and starts the read loop.
func Connect(ctx context.Context, opts Options) (*Session, error) {
	opts.withDefaults()

	s := &Session{
		opts:   opts,
		state:  StateConnecting,
		events: make(chan Event, eventBuffer),
		done:   make(chan struct{}),
	}

	conn, err := s.dial(ctx, opts.Language)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.conn = conn
	s.state = StateConnected
	s.mu.Unlock()

	go s.readLoop(conn)
	return s, nil
}

func (s *Session) dial(ctx context.Context, language string) (*websocket.Conn, error) {
	u, err := url.Parse(s.opts.URL)
	if err != nil {
		return nil, err
	}

	q := u.Query()
	q.Set("model", s.opts.Model)
	q.Set("sample_rate", strconv.Itoa(s.opts.SampleRate))
	q.Set("encoding", s.opts.Encoding)
	if language != "" {
		q.Set("language", language)
	}
	u.RawQuery = q.Encode()

	hdr := http.Header{}
	if s.opts.APIKey != "" {
		hdr.Set("Authorization", "Token "+s.opts.APIKey)
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), hdr)
	return conn, err
}

// Events delivers partial/final transcripts and errors in arrival
// order. The channel closes when the session is fully torn down.
func (s *Session) Events() <-chan Event { return s.events }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SendAudio writes one PCM frame to the stream.
func (s *Session) SendAudio(pcm []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil || s.state != StateConnected {
		return ErrNotConnected
	}
	return s.conn.WriteMessage(websocket.BinaryMessage, pcm)
}

// Flush forces finalization of audio buffered on the provider side.
// The stream is FIFO, so the next final transcript (if any) covers
// audio sent before this call.
func (s *Session) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil || s.state != StateConnected {
		return ErrNotConnected
	}
	return s.conn.WriteMessage(websocket.TextMessage, []byte(controlFinalize))
}

// SwitchLanguage tears the socket down and re-establishes it with the
// new language. Automatic reconnect is suppressed for the duration.
func (s *Session) SwitchLanguage(ctx context.Context, language string) error {
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		return ErrClosed
	}
	s.switching = true
	old := s.conn
	s.conn = nil
	s.state = StateConnecting
	s.mu.Unlock()

	if old != nil {
		_ = old.WriteMessage(websocket.TextMessage, []byte(controlDone))
		_ = old.Close()
	}

	conn, err := s.dial(ctx, language)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.switching = false
	if s.closing {
		// Close won the race while we were dialing and has already
		// finished the session; the fresh socket must not come up
		s.state = StateDisconnected
		if conn != nil {
			_ = conn.Close()
		}
		return ErrClosed
	}
	if err != nil {
		s.state = StateDisconnected
		return err
	}

	s.opts.Language = language
	s.conn = conn
	s.state = StateConnected
	s.retried = false
	go s.readLoop(conn)
	return nil
}

// Close sends the graceful done signal, allows a short grace period
// for the provider to flush remaining transcripts, then hard-closes.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		return nil
	}
	s.closing = true
	conn := s.conn
	s.mu.Unlock()

	if conn != nil {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(controlDone))

		// grace period: let the provider flush remaining transcripts
		// before the hard close. The read loop closes the event channel
		// once the socket actually drops.
		select {
		case <-s.done:
		case <-time.After(closeGrace):
		}
		_ = conn.Close()
	} else {
		// no read loop is running, so nobody else will finish the session
		s.finish()
	}

	s.mu.Lock()
	s.state = StateDisconnected
	s.mu.Unlock()
	return nil
}

func (s *Session) readLoop(conn *websocket.Conn) {
	log := s.opts.Logger

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			s.onReadClosed(conn, err)
			return
		}

		var msg serverMessage
		if jerr := json.Unmarshal(data, &msg); jerr != nil {
			log.WithError(jerr).Debug("recognizer sent malformed message, dropping")
			continue
		}

		switch msg.Type {
		case "transcript":
			if msg.Text == "" {
				continue
			}
			ev := Event{Type: EventPartial, Text: msg.Text, Language: msg.Language}
			if msg.IsFinal {
				ev.Type = EventFinal
			}
			s.emit(ev)

		case "error":
			s.emit(Event{Type: EventError, Err: &ProviderError{Code: msg.Code, Message: msg.Message}})

		default:
			log.WithField("type", msg.Type).Debug("recognizer sent unknown message type, dropping")
		}
	}
}

// onReadClosed decides whether a socket close is expected (switch or
// Close in progress), retryable (one automatic reconnect), or final.
func (s *Session) onReadClosed(conn *websocket.Conn, err error) {
	s.mu.Lock()

	// a stale loop from before a language switch must not interfere
	if s.conn != nil && s.conn != conn {
		s.mu.Unlock()
		return
	}

	if s.closing {
		s.mu.Unlock()
		s.finish()
		return
	}
	if s.switching {
		s.mu.Unlock()
		return
	}

	if !s.retried {
		s.retried = true
		s.state = StateConnecting
		s.conn = nil
		lang := s.opts.Language
		s.mu.Unlock()

		s.opts.Logger.WithError(err).Warn("recognizer stream closed unexpectedly, reconnecting once")

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		next, derr := s.dial(ctx, lang)

		s.mu.Lock()
		if derr != nil || s.closing {
			s.state = StateDisconnected
			s.mu.Unlock()
			if next != nil {
				_ = next.Close()
			}
			s.emit(Event{Type: EventError, Err: err})
			s.finish()
			return
		}
		s.conn = next
		s.state = StateConnected
		s.mu.Unlock()
		go s.readLoop(next)
		return
	}

	s.state = StateDisconnected
	s.conn = nil
	s.mu.Unlock()

	s.emit(Event{Type: EventError, Err: err})
	s.finish()
}

func (s *Session) emit(ev Event) {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()
	select {
	case <-s.done:
		// session already finished; drop
		return
	default:
	}
	select {
	case s.events <- ev:
	default:
		// consumer fell behind; drop rather than block the read loop
		s.opts.Logger.Warn("recognizer event buffer full, dropping event")
	}
}

func (s *Session) finish() {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()
	select {
	case <-s.done:
	default:
		close(s.done)
		close(s.events)
	}
}
