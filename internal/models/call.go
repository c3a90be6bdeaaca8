package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Call lifecycle statuses. Transitions are monotonic; failed and
// voicemail absorb from any pre-completed state.
type CallStatus string

const (
	CallInitiating CallStatus = "initiating"
	CallRinging    CallStatus = "ringing"
	CallConnected  CallStatus = "connected"
	CallVoicemail  CallStatus = "voicemail"
	CallInProgress CallStatus = "in_progress"
	CallCompleted  CallStatus = "completed"
	CallSaved      CallStatus = "saved"
	CallFailed     CallStatus = "failed"
	CallNoAnswer   CallStatus = "no_answer"
)

// Terminal reports whether no further lifecycle progress is possible
// (other than archival).
func (s CallStatus) Terminal() bool {
	switch s {
	case CallCompleted, CallSaved, CallFailed, CallVoicemail, CallNoAnswer:
		return true
	}
	return false
}

// rank orders statuses so updates can never regress the lifecycle.
func (s CallStatus) rank() int {
	switch s {
	case CallInitiating:
		return 0
	case CallRinging:
		return 1
	case CallConnected:
		return 2
	case CallVoicemail, CallInProgress:
		return 3
	case CallCompleted, CallFailed, CallNoAnswer:
		return 4
	case CallSaved:
		return 5
	}
	return -1
}

// CanTransitionTo reports whether moving from s to next is a forward
// move in the call lifecycle.
func (s CallStatus) CanTransitionTo(next CallStatus) bool {
	if next == CallFailed || next == CallNoAnswer || next == CallVoicemail {
		return s.rank() < CallCompleted.rank()
	}
	return next.rank() > s.rank()
}

type TranscriptEntry struct {
	Role      string    `bson:"role" json:"role"` // interviewer|respondent
	Text      string    `bson:"text" json:"text"`
	Timestamp time.Time `bson:"timestamp" json:"timestamp"`
}

// Question is one entry of a campaign's survey definition.
type Question struct {
	ID       string   `bson:"id" json:"id"`
	Type     string   `bson:"type" json:"type"` // open|single_choice|rating
	Prompt   string   `bson:"prompt" json:"prompt"`
	Options  []string `bson:"options,omitempty" json:"options,omitempty"`
	Required bool     `bson:"required" json:"required"`
}

// CallRecord is the durable archive of a finished call: transcript,
// extracted answers, and timing. Live call state lives in the call
// registry, never here.
type CallRecord struct {
	ID primitive.ObjectID `bson:"_id,omitempty" json:"-"`

	CallID     string `bson:"call_id" json:"call_id"`
	CampaignID string `bson:"campaign_id,omitempty" json:"campaign_id,omitempty"`
	Phone      string `bson:"phone" json:"phone"`

	Language         string `bson:"language" json:"language"`
	DetectedLanguage string `bson:"detected_language,omitempty" json:"detected_language,omitempty"`
	VoiceGender      string `bson:"voice_gender" json:"voice_gender"`

	Status     CallStatus        `bson:"status" json:"status"`
	Transcript []TranscriptEntry `bson:"transcript" json:"transcript"`
	Answers    bson.M            `bson:"answers,omitempty" json:"answers,omitempty"`

	StartedAt   time.Time  `bson:"started_at" json:"started_at"`
	ConnectedAt *time.Time `bson:"connected_at,omitempty" json:"connected_at,omitempty"`
	EndedAt     *time.Time `bson:"ended_at,omitempty" json:"ended_at,omitempty"`
}
