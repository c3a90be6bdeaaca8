package models

import (
	"time"

	"gorm.io/datatypes"
)

type CampaignStatus string

const (
	CampaignPending   CampaignStatus = "pending"
	CampaignRunning   CampaignStatus = "running"
	CampaignPaused    CampaignStatus = "paused"
	CampaignCompleted CampaignStatus = "completed"
	CampaignCancelled CampaignStatus = "cancelled"
)

type NumberStatus string

const (
	NumberPending   NumberStatus = "pending"
	NumberCalling   NumberStatus = "calling"
	NumberCompleted NumberStatus = "completed"
	NumberFailed    NumberStatus = "failed"
	NumberNoAnswer  NumberStatus = "no_answer"
)

// Retryable reports whether a finished attempt with this outcome may
// be scheduled again.
func RetryableOutcome(s CallStatus) bool {
	switch s {
	case CallFailed, CallNoAnswer, CallVoicemail:
		return true
	}
	return false
}

// CallingWindow is one allowed time-of-day range, civil hours
// [StartHour, EndHour) in the campaign timezone.
type CallingWindow struct {
	StartHour int `json:"start_hour"`
	EndHour   int `json:"end_hour"`
}

type Campaign struct {
	ID     string         `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	Name   string         `gorm:"column:name;type:text" json:"name"`
	Status CampaignStatus `gorm:"column:status;type:text;index" json:"status"`

	Language       string `gorm:"column:language;type:text" json:"language"`
	DetectLanguage bool   `gorm:"column:detect_language" json:"detect_language"`
	VoiceGender    string `gorm:"column:voice_gender;type:text" json:"voice_gender"`

	Concurrency int `gorm:"column:concurrency" json:"concurrency"`
	MaxRetries  int `gorm:"column:max_retries" json:"max_retries"`

	CallingWindows datatypes.JSONType[[]CallingWindow] `gorm:"column:calling_windows;type:jsonb" json:"calling_windows"`
	Questions      datatypes.JSONType[[]Question]      `gorm:"column:questions;type:jsonb" json:"questions"`

	TotalNumbers     int `gorm:"column:total_numbers" json:"total_numbers"`
	CompletedNumbers int `gorm:"column:completed_numbers" json:"completed_numbers"`
	FailedNumbers    int `gorm:"column:failed_numbers" json:"failed_numbers"`

	CreatedAt time.Time `gorm:"column:created_at;type:timestamptz" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at;type:timestamptz" json:"updated_at"`
}

func (Campaign) TableName() string { return "campaigns" }

type CampaignNumber struct {
	ID         uint         `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	CampaignID string       `gorm:"column:campaign_id;type:uuid;index" json:"campaign_id"`
	Phone      string       `gorm:"column:phone;type:text" json:"phone"`
	Status     NumberStatus `gorm:"column:status;type:text;index" json:"status"`

	CallID      string     `gorm:"column:call_id;type:text" json:"call_id,omitempty"`
	Attempts    int        `gorm:"column:attempts" json:"attempts"`
	NextRetryAt *time.Time `gorm:"column:next_retry_at;type:timestamptz;index" json:"next_retry_at,omitempty"`
	LastError   string     `gorm:"column:last_error;type:text" json:"last_error,omitempty"`

	UpdatedAt time.Time `gorm:"column:updated_at;type:timestamptz" json:"updated_at"`
}

func (CampaignNumber) TableName() string { return "campaign_numbers" }
