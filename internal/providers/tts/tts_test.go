package tts

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunk(t *testing.T) {
	audio := make([]byte, 420)
	frames := Chunk(audio, 160)
	require.Len(t, frames, 3)
	assert.Len(t, frames[0], 160)
	assert.Len(t, frames[1], 160)
	assert.Len(t, frames[2], 100, "last frame may be shorter")

	assert.Nil(t, Chunk(nil, 160))

	// zero frame size falls back to the default
	frames = Chunk(make([]byte, 320), 0)
	require.Len(t, frames, 2)
}

func TestSynthesize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		w.Write([]byte{1, 2, 3, 4})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "test-key")
	audio, err := c.Synthesize(context.Background(), "namaste", "hi", "anushka")
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4}, audio)
}

func TestSynthesizeProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "test-key")
	_, err := c.Synthesize(context.Background(), "namaste", "hi", "anushka")
	require.Error(t, err)

	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, http.StatusTooManyRequests, pe.StatusCode)
	assert.Contains(t, pe.Body, "quota exceeded")
	assert.True(t, pe.Transient())
}

func TestVoiceFor(t *testing.T) {
	assert.Equal(t, "abhilash", VoiceFor("male", "hi"))
	assert.Equal(t, "vidya", VoiceFor("female", "en"))
	assert.Equal(t, "abhilash", VoiceFor("male", "xx"), "unknown language falls back to hindi")
	assert.Equal(t, "anushka", VoiceFor("", ""), "unknown gender falls back to default voice")
}
