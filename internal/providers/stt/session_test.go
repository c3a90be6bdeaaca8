package stt

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeProvider echoes a transcript for every binary frame and
// finalizes on the "finalize" control message.
type fakeProvider struct {
	upgrader websocket.Upgrader

	gotLanguage chan string
	gotDone     chan struct{}
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		gotLanguage: make(chan string, 4),
		gotDone:     make(chan struct{}, 4),
	}
}

func (f *fakeProvider) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.gotLanguage <- r.URL.Query().Get("language")

	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	frames := 0
	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		switch mt {
		case websocket.BinaryMessage:
			frames++
			_ = conn.WriteJSON(map[string]any{
				"type": "transcript", "text": "partial", "is_final": false,
			})

		case websocket.TextMessage:
			switch string(data) {
			case controlFinalize:
				_ = conn.WriteJSON(map[string]any{
					"type": "transcript", "text": "final after " + strings.Repeat("x", frames), "is_final": true, "language": "hi",
				})
			case controlDone:
				f.gotDone <- struct{}{}
				return
			}
		}
	}
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func connect(t *testing.T, srv *httptest.Server, language string) *Session {
	t.Helper()
	s, err := Connect(context.Background(), Options{URL: wsURL(srv), APIKey: "k", Language: language})
	require.NoError(t, err)
	return s
}

func recvEvent(t *testing.T, s *Session) Event {
	t.Helper()
	select {
	case ev := <-s.Events():
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for recognizer event")
		return Event{}
	}
}

func TestFlushOrdering(t *testing.T) {
	fp := newFakeProvider()
	srv := httptest.NewServer(fp)
	defer srv.Close()

	s := connect(t, srv, "hi")
	defer s.Close()

	require.NoError(t, s.SendAudio(make([]byte, 320)))
	require.NoError(t, s.SendAudio(make([]byte, 320)))
	require.NoError(t, s.Flush())

	ev := recvEvent(t, s)
	assert.Equal(t, EventPartial, ev.Type)
	ev = recvEvent(t, s)
	assert.Equal(t, EventPartial, ev.Type)

	// the final transcript reflects both frames sent before the flush
	ev = recvEvent(t, s)
	assert.Equal(t, EventFinal, ev.Type)
	assert.Equal(t, "final after xx", ev.Text)
	assert.Equal(t, "hi", ev.Language)
}

func TestAutoDetectOmitsLanguageParam(t *testing.T) {
	fp := newFakeProvider()
	srv := httptest.NewServer(fp)
	defer srv.Close()

	s := connect(t, srv, "")
	defer s.Close()

	assert.Equal(t, "", <-fp.gotLanguage)
}

func TestSwitchLanguageRedials(t *testing.T) {
	fp := newFakeProvider()
	srv := httptest.NewServer(fp)
	defer srv.Close()

	s := connect(t, srv, "hi")
	defer s.Close()
	assert.Equal(t, "hi", <-fp.gotLanguage)

	require.NoError(t, s.SwitchLanguage(context.Background(), "bn"))
	assert.Equal(t, "bn", <-fp.gotLanguage)
	assert.Equal(t, StateConnected, s.State())

	// the new socket is live
	require.NoError(t, s.SendAudio(make([]byte, 320)))
	assert.Equal(t, EventPartial, recvEvent(t, s).Type)
}

func TestCloseSendsDoneAndClosesEvents(t *testing.T) {
	fp := newFakeProvider()
	srv := httptest.NewServer(fp)
	defer srv.Close()

	s := connect(t, srv, "hi")
	require.NoError(t, s.Close())

	select {
	case <-fp.gotDone:
	case <-time.After(time.Second):
		t.Fatal("provider never saw the done control message")
	}

	// channel drains then closes
	for range s.Events() {
	}
	assert.Equal(t, StateDisconnected, s.State())
}

func TestMalformedMessagesAreDropped(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()

		_ = conn.WriteMessage(websocket.TextMessage, []byte("{not json"))
		_ = conn.WriteJSON(map[string]any{"type": "transcript", "text": "ok", "is_final": true})

		// hold the socket open until the client closes
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	s := connect(t, srv, "hi")
	defer s.Close()

	ev := recvEvent(t, s)
	assert.Equal(t, EventFinal, ev.Type)
	assert.Equal(t, "ok", ev.Text)
}

func TestUnexpectedCloseReconnectsOnce(t *testing.T) {
	fp := newFakeProvider()
	var mu sync.Mutex
	dials := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		dials++
		first := dials == 1
		mu.Unlock()
		if first {
			// upgrade then slam the socket: an unexpected provider drop
			conn, err := fp.upgrader.Upgrade(w, r, nil)
			require.NoError(t, err)
			conn.Close()
			return
		}
		fp.ServeHTTP(w, r)
	}))
	defer srv.Close()

	s := connect(t, srv, "hi")
	defer s.Close()

	// the replacement socket comes up transparently; keep feeding audio
	// until it answers
	var ev Event
	for i := 0; i < 200; i++ {
		_ = s.SendAudio(make([]byte, 320))
		select {
		case ev = <-s.Events():
		case <-time.After(10 * time.Millisecond):
			continue
		}
		break
	}
	assert.Equal(t, EventPartial, ev.Type)
	assert.Equal(t, StateConnected, s.State())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 2, dials, "expected exactly one redial")
}

func TestSecondUnexpectedCloseIsFatal(t *testing.T) {
	upgrader := websocket.Upgrader{}
	var mu sync.Mutex
	dials := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		dials++
		mu.Unlock()
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		conn.Close()
	}))
	defer srv.Close()

	s := connect(t, srv, "hi")

	// the single retry is also dropped: the session surfaces the error
	// and tears down for good
	ev := recvEvent(t, s)
	require.Equal(t, EventError, ev.Type)
	require.Error(t, ev.Err)

	select {
	case _, open := <-s.Events():
		assert.False(t, open, "event channel should close after the fatal error")
	case <-time.After(2 * time.Second):
		t.Fatal("event channel never closed")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 2, dials)
}

func TestCloseDuringLanguageSwitchDoesNotRevive(t *testing.T) {
	fp := newFakeProvider()
	var mu sync.Mutex
	dials := 0
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		dials++
		n := dials
		mu.Unlock()
		if n == 2 {
			// hold the switch redial open until Close has run
			<-release
		}
		fp.ServeHTTP(w, r)
	}))
	defer srv.Close()

	s := connect(t, srv, "hi")

	switchErr := make(chan error, 1)
	go func() { switchErr <- s.SwitchLanguage(context.Background(), "bn") }()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		n := dials
		mu.Unlock()
		if n == 2 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	require.NoError(t, s.Close())
	close(release)

	// the switch must not install a socket into a finished session
	require.ErrorIs(t, <-switchErr, ErrClosed)
	assert.Equal(t, StateDisconnected, s.State())

	// the event channel stays closed and nothing panics afterwards
	for range s.Events() {
	}
}

func TestProviderErrorIsSurfacedNotFatal(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()

		_ = conn.WriteJSON(map[string]any{"type": "error", "message": "rate limited", "code": "429"})
		_ = conn.WriteJSON(map[string]any{"type": "transcript", "text": "still here", "is_final": true})

		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	s := connect(t, srv, "hi")
	defer s.Close()

	ev := recvEvent(t, s)
	require.Equal(t, EventError, ev.Type)
	var pe *ProviderError
	require.ErrorAs(t, ev.Err, &pe)
	assert.Equal(t, "429", pe.Code)

	ev = recvEvent(t, s)
	assert.Equal(t, EventFinal, ev.Type)
}
