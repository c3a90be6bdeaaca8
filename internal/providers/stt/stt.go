// Package stt maintains a duplex streaming session with the speech
// recognition provider. Audio goes out as binary frames; transcripts
// come back as JSON and are surfaced on an event channel so the call
// session can consume them pull-style.
package stt

type EventType string

const (
	EventPartial EventType = "partial"
	EventFinal   EventType = "final"
	EventError   EventType = "error"
)

// Event is one recognizer emission. Final transcripts carry the
// detected language when the session runs in auto-detect mode.
type Event struct {
	Type     EventType
	Text     string
	Language string
	Err      error
}

type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

// wire shapes, per the provider's streaming contract
type serverMessage struct {
	Type     string `json:"type"`
	Text     string `json:"text"`
	IsFinal  bool   `json:"is_final"`
	Language string `json:"language"`
	Message  string `json:"message"`
	Code     string `json:"code"`
}

const (
	controlFinalize = "finalize"
	controlDone     = "done"
)
