package call

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alakhotia160011/voxbharat-sub000/internal/models"
)

func newTestSession(callID string) *Session {
	return NewSession(Config{CallID: callID, Phone: "+911112223334"}, Deps{})
}

func TestRegistryLookups(t *testing.T) {
	r := NewRegistry()

	a := newTestSession("a")
	b := newTestSession("b")
	require.NoError(t, r.Add(a))
	require.NoError(t, r.Add(b))

	got, ok := r.Get("a")
	require.True(t, ok)
	assert.Same(t, a, got)

	a.mu.Lock()
	a.streamSID = "MZ123"
	a.mu.Unlock()

	got, ok = r.GetByStreamID("MZ123")
	require.True(t, ok)
	assert.Same(t, a, got)

	_, ok = r.GetByStreamID("")
	assert.False(t, ok)

	r.Remove("a")
	_, ok = r.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 1, r.Len())
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Add(newTestSession("x")))
	assert.ErrorIs(t, r.Add(newTestSession("x")), ErrDuplicateCall)

	s1 := newTestSession("s1")
	s1.streamSID = "MZ9"
	require.NoError(t, r.Add(s1))

	s2 := newTestSession("s2")
	s2.streamSID = "MZ9"
	assert.ErrorIs(t, r.Add(s2), ErrDuplicateStream)
}

func TestRegistryUpdate(t *testing.T) {
	r := NewRegistry()
	s := newTestSession("u1")
	require.NoError(t, r.Add(s))

	ok := r.Update("u1", func(s *Session) {
		s.SetTelephonyCallID("PA42")
	})
	require.True(t, ok)
	assert.Equal(t, "PA42", s.TelephonyCallID())

	assert.False(t, r.Update("missing", func(*Session) {
		t.Fatal("fn must not run for an unknown call")
	}))
}

func TestClaimStreamEnforcesUniqueness(t *testing.T) {
	r := NewRegistry()
	a := newTestSession("a")
	b := newTestSession("b")
	require.NoError(t, r.Add(a))
	require.NoError(t, r.Add(b))

	got, err := r.ClaimStream("a", "MZ1")
	require.NoError(t, err)
	assert.Same(t, a, got)
	assert.Equal(t, "MZ1", a.StreamSID())

	// same stream id for another session
	_, err = r.ClaimStream("b", "MZ1")
	assert.ErrorIs(t, err, ErrDuplicateStream)

	// a second stream for the same session
	_, err = r.ClaimStream("a", "MZ2")
	assert.ErrorIs(t, err, ErrDuplicateStream)

	_, err = r.ClaimStream("missing", "MZ3")
	assert.ErrorIs(t, err, ErrUnknownCall)

	// the distinct id is still free for the other session
	_, err = r.ClaimStream("b", "MZ2")
	require.NoError(t, err)
}

func TestListActiveExcludesTerminal(t *testing.T) {
	r := NewRegistry()

	live := newTestSession("live")
	done := newTestSession("done")
	require.NoError(t, r.Add(live))
	require.NoError(t, r.Add(done))

	done.mu.Lock()
	done.status = models.CallFailed
	done.mu.Unlock()

	active := r.ListActive()
	require.Len(t, active, 1)
	assert.Equal(t, "live", active[0].ID)
}
